package model

import "time"

// ExecStatus is the outcome of a single dispatch.
type ExecStatus string

const (
	ExecSuccess ExecStatus = "success"
	ExecFailed  ExecStatus = "failed"
	ExecSkipped ExecStatus = "skipped"
	ExecQueued  ExecStatus = "queued"
)

// OK reports whether the outcome is anything but a failure.
func (s ExecStatus) OK() bool { return s != ExecFailed }

// ExecutionResult captures what a runner did. Failures are reported here, not
// as Go errors.
type ExecutionResult struct {
	Status    ExecStatus    `json:"status"`
	ExitCode  *int          `json:"exit_code,omitempty"`
	Output    string        `json:"output"`
	Runner    string        `json:"runner"`
	Command   string        `json:"command,omitempty"`
	Workspace string        `json:"workspace,omitempty"`
	CommitID  string        `json:"commit_id,omitempty"`
	Reason    string        `json:"reason,omitempty"`
	Elapsed   time.Duration `json:"elapsed,omitempty"`
}

// IntPtr returns a pointer to v.
func IntPtr(v int) *int { return &v }

// Failed builds a failed result carrying reason.
func Failed(runner, reason string) *ExecutionResult {
	return &ExecutionResult{Status: ExecFailed, Runner: runner, Reason: reason, Output: reason}
}
