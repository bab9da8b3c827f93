package runner

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/viant/exegol/service/shell"
)

// ContainerSpec describes one throwaway container.
type ContainerSpec struct {
	Name      string
	Image     string
	Workspace string // host directory
	Mount     string // container mount point, also the working directory
	Command   string // run through bash -lc
	Timeout   time.Duration
}

// ContainerResult is what the engine observed.
type ContainerResult struct {
	Output   string
	ExitCode int
	TimedOut bool
}

// Engine starts and removes containers. Run returns an error only when the
// container could not be launched.
type Engine interface {
	Run(ctx context.Context, spec *ContainerSpec) (*ContainerResult, error)
	Remove(ctx context.Context, name string) error
}

// dockerLaunchFailure is the exit status docker run uses for its own errors.
const dockerLaunchFailure = 125

// DockerCLI drives the docker command line through a local shell.
type DockerCLI struct {
	Binary string
	shell  shell.Executor
}

// NewDockerCLI creates an engine using executor, or a local shell when nil.
func NewDockerCLI(executor shell.Executor) *DockerCLI {
	if executor == nil {
		executor = shell.New()
	}
	return &DockerCLI{Binary: "docker", shell: executor}
}

func (d *DockerCLI) Run(ctx context.Context, spec *ContainerSpec) (*ContainerResult, error) {
	if _, err := exec.LookPath(d.Binary); err != nil {
		return nil, fmt.Errorf("container engine %s not available: %w", d.Binary, err)
	}
	cmd := d.runCommand(spec)
	output := &shell.Output{}
	input := &shell.Input{Commands: []string{cmd}, TimeoutMs: int(spec.Timeout.Milliseconds())}
	if err := d.shell.Execute(ctx, input, output); err != nil {
		return nil, fmt.Errorf("failed to launch container %s: %w", spec.Name, err)
	}
	if output.TimedOut {
		return &ContainerResult{Output: output.Stdout, ExitCode: output.Status, TimedOut: true}, nil
	}
	if output.Status == dockerLaunchFailure {
		return nil, fmt.Errorf("failed to launch container %s: %s", spec.Name, output.Stdout)
	}
	return &ContainerResult{Output: output.Stdout, ExitCode: output.Status}, nil
}

func (d *DockerCLI) runCommand(spec *ContainerSpec) string {
	args := []string{
		d.Binary, "run",
		"--name", shell.Quote(spec.Name),
		"-v", shell.Quote(spec.Workspace + ":" + spec.Mount + ":rw"),
		"-w", shell.Quote(spec.Mount),
		shell.Quote(spec.Image),
		"bash", "-lc", shell.Quote(spec.Command),
	}
	return strings.Join(args, " ") + " 2>&1"
}

func (d *DockerCLI) Remove(ctx context.Context, name string) error {
	output := &shell.Output{}
	input := &shell.Input{Commands: []string{d.Binary + " rm -f " + shell.Quote(name) + " 2>&1"}, TimeoutMs: 30000}
	if err := d.shell.Execute(ctx, input, output); err != nil {
		return err
	}
	if output.Status != 0 {
		return fmt.Errorf("failed to remove container %s: %s", name, output.Stdout)
	}
	return nil
}

var _ Engine = (*DockerCLI)(nil)
