package runner

import (
	"context"

	"github.com/viant/exegol/model"
)

// NoopOutput is reported by the noop runner.
const NoopOutput = "Sandbox mode is noop; no tests executed."

// Noop reports every run as skipped without starting a process.
type Noop struct{}

// NewNoop creates a Noop runner.
func NewNoop() *Noop { return &Noop{} }

func (n *Noop) Name() string { return ModeNoop }

func (n *Noop) Run(_ context.Context, workspace, command string) *model.ExecutionResult {
	return &model.ExecutionResult{
		Status:    model.ExecSkipped,
		Output:    NoopOutput,
		Runner:    ModeNoop,
		Command:   command,
		Workspace: workspace,
	}
}

var _ Runner = (*Noop)(nil)
