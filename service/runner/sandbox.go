package runner

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/viant/exegol/internal/idgen"
	"github.com/viant/exegol/model"
	"github.com/viant/exegol/service/diagnostics"
)

const (
	DefaultImage           = "python:3.11-slim"
	DefaultTimeout         = 10 * time.Minute
	DefaultMount           = "/repo"
	defaultTeardownTimeout = 30 * time.Second
)

// Sandbox runs test commands in a throwaway container with the workspace
// mounted read-write. The container is removed on every exit path.
type Sandbox struct {
	engine          Engine
	image           string
	mount           string
	timeout         time.Duration
	teardownTimeout time.Duration
	recorder        *diagnostics.Recorder
}

// SandboxOption customises a Sandbox.
type SandboxOption func(s *Sandbox)

// WithEngine replaces the docker CLI engine.
func WithEngine(engine Engine) SandboxOption {
	return func(s *Sandbox) { s.engine = engine }
}

// WithImage sets the container image.
func WithImage(image string) SandboxOption {
	return func(s *Sandbox) {
		if image != "" {
			s.image = image
		}
	}
}

// WithTimeout bounds a single run.
func WithTimeout(timeout time.Duration) SandboxOption {
	return func(s *Sandbox) {
		if timeout > 0 {
			s.timeout = timeout
		}
	}
}

// WithRecorder sets the diagnostic sink for teardown events.
func WithRecorder(recorder *diagnostics.Recorder) SandboxOption {
	return func(s *Sandbox) { s.recorder = recorder }
}

// NewSandbox creates a sandboxed runner.
func NewSandbox(options ...SandboxOption) *Sandbox {
	ret := &Sandbox{
		image:           DefaultImage,
		mount:           DefaultMount,
		timeout:         DefaultTimeout,
		teardownTimeout: defaultTeardownTimeout,
	}
	for _, option := range options {
		option(ret)
	}
	if ret.engine == nil {
		ret.engine = NewDockerCLI(nil)
	}
	return ret
}

func (s *Sandbox) Name() string { return ModeSandboxed }

func (s *Sandbox) Run(ctx context.Context, workspace, command string) *model.ExecutionResult {
	spec := &ContainerSpec{
		Name:      "exegol-" + idgen.Short(12),
		Image:     s.image,
		Workspace: workspace,
		Mount:     s.mount,
		Command:   command,
		Timeout:   s.timeout,
	}
	defer s.teardown(spec.Name)

	runCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	started := time.Now()
	observed, err := s.engine.Run(runCtx, spec)
	elapsed := time.Since(started)

	timedOut := errors.Is(runCtx.Err(), context.DeadlineExceeded) || (observed != nil && observed.TimedOut)
	var result *model.ExecutionResult
	switch {
	case timedOut:
		result = model.Failed(ModeSandboxed, fmt.Sprintf("timed out after %s", s.timeout))
		if observed != nil && observed.Output != "" {
			result.Output = observed.Output + "\n" + result.Reason
		}
	case err != nil:
		result = model.Failed(ModeSandboxed, "sandbox launch failed: "+err.Error())
	default:
		result = &model.ExecutionResult{
			Status:   model.ExecSuccess,
			ExitCode: model.IntPtr(observed.ExitCode),
			Output:   observed.Output,
			Runner:   ModeSandboxed,
		}
		if observed.ExitCode != 0 {
			result.Status = model.ExecFailed
			result.Reason = fmt.Sprintf("exit status %d", observed.ExitCode)
		}
	}
	result.Command = command
	result.Workspace = workspace
	result.Elapsed = elapsed
	return result
}

// teardown uses a fresh context so a cancelled or expired caller context still
// removes the container.
func (s *Sandbox) teardown(name string) {
	ctx, cancel := context.WithTimeout(context.Background(), s.teardownTimeout)
	defer cancel()
	err := s.engine.Remove(ctx, name)
	fields := map[string]interface{}{"container": name, "status": diagnostics.StatusOK}
	if err != nil {
		fields["status"] = diagnostics.StatusError
		fields["error"] = err.Error()
	}
	s.recorder.Emit(ctx, "sandbox_teardown", fields)
}

var _ Runner = (*Sandbox)(nil)
