package shell

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/viant/gosh"
	"github.com/viant/gosh/runner"
	"github.com/viant/gosh/runner/local"
)

// DefaultTimeout applies when Input.TimeoutMs is not set.
const DefaultTimeout = time.Minute

// Executor runs shell commands.
type Executor interface {
	Execute(ctx context.Context, input *Input, output *Output) error
}

// Service runs commands in a fresh local gosh session per Execute call, so a
// working directory change or a timed out command never leaks into another
// caller.
type Service struct{}

// New creates a Service.
func New() *Service {
	return &Service{}
}

// Execute runs input.Commands and fills output. A non-zero status is reported
// through output, not as an error.
func (s *Service) Execute(ctx context.Context, input *Input, output *Output) error {
	var options []runner.Option
	if len(input.Env) > 0 {
		options = append(options, runner.WithEnvironment(input.Env))
	}
	session, err := gosh.New(ctx, local.New(options...))
	if err != nil {
		return fmt.Errorf("failed to start shell session: %w", err)
	}
	defer session.Close()

	if input.Workdir != "" {
		if _, status, err := session.Run(ctx, "cd "+Quote(input.Workdir)); err != nil || status != 0 {
			if err == nil {
				err = fmt.Errorf("exit status %d", status)
			}
			return fmt.Errorf("failed to change directory to %s: %w", input.Workdir, err)
		}
	}

	timeout := time.Duration(input.TimeoutMs) * time.Millisecond
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	commands := make([]*Command, 0, len(input.Commands))
	var combined strings.Builder
	for _, cmd := range input.Commands {
		command := s.run(ctx, session, cmd, timeout)
		commands = append(commands, command)
		if command.Output != "" {
			combined.WriteString(command.Output)
			combined.WriteString("\n")
		}
		output.Status = command.Status
		if command.TimedOut {
			output.TimedOut = true
			break
		}
		if input.abortOnError() && command.Status != 0 {
			break
		}
	}
	output.Commands = commands
	output.Stdout = strings.TrimSpace(combined.String())
	return nil
}

func (s *Service) run(ctx context.Context, session *gosh.Service, cmd string, timeout time.Duration) *Command {
	started := time.Now()
	stdout, status, err := session.Run(ctx, cmd, runner.WithTimeout(int(timeout.Milliseconds())))
	elapsed := time.Since(started)
	command := &Command{Input: cmd, Output: stdout, Status: status}
	if elapsed >= timeout {
		command.TimedOut = true
		if command.Status == 0 {
			command.Status = -1
		}
		if err == nil {
			err = fmt.Errorf("command %v timed out after: %s", cmd, elapsed)
		}
	}
	if err != nil && command.Status == 0 {
		command.Status = -1
	}
	if err != nil && command.Output == "" {
		command.Output = err.Error()
	}
	return command
}

// Quote wraps value in single quotes for POSIX shells.
func Quote(value string) string {
	return "'" + strings.ReplaceAll(value, "'", `'"'"'`) + "'"
}

var _ Executor = (*Service)(nil)
