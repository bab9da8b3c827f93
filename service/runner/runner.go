package runner

import (
	"context"
	"strings"

	"github.com/viant/exegol/model"
)

// Modes accepted by New.
const (
	ModeNoop      = "noop"
	ModeSandboxed = "sandboxed"
	modeDocker    = "docker"
)

// Runner executes a test command against a workspace. Failures, including a
// runner that could not start, are reported in the result.
type Runner interface {
	Name() string
	Run(ctx context.Context, workspace, command string) *model.ExecutionResult
}

// ParseMode normalises a configured mode; "docker" is accepted as an alias of
// sandboxed.
func ParseMode(mode string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(mode)) {
	case "", ModeNoop:
		return ModeNoop, nil
	case ModeSandboxed, modeDocker:
		return ModeSandboxed, nil
	}
	return "", model.NewConfigurationError("sandbox mode", "unsupported mode "+mode, nil)
}

// New returns the runner for mode. Options only apply to the sandboxed runner.
func New(mode string, options ...SandboxOption) (Runner, error) {
	parsed, err := ParseMode(mode)
	if err != nil {
		return nil, err
	}
	if parsed == ModeSandboxed {
		return NewSandbox(options...), nil
	}
	return NewNoop(), nil
}
