package orchestrator

import (
	"github.com/viant/exegol/policy"
	"github.com/viant/exegol/service/approval"
	"github.com/viant/exegol/service/diagnostics"
	"github.com/viant/exegol/service/dispatcher"
	"github.com/viant/exegol/service/plan"
)

// Option customises a Service.
type Option func(s *Service)

// WithEvaluator sets the policy evaluator.
func WithEvaluator(evaluator *policy.Evaluator) Option {
	return func(s *Service) { s.evaluator = evaluator }
}

// WithExecutor sets what runs auto-approved actions, a dispatcher or a processor pool.
func WithExecutor(executor dispatcher.Executor) Option {
	return func(s *Service) { s.executor = executor }
}

// WithApprovals sets the approval service.
func WithApprovals(approvals approval.Service) Option {
	return func(s *Service) { s.approvals = approvals }
}

// WithPlan sets the plan service used to build instruction tasks.
func WithPlan(plans *plan.Service) Option {
	return func(s *Service) { s.plans = plans }
}

// WithRecorder sets the diagnostics recorder.
func WithRecorder(recorder *diagnostics.Recorder) Option {
	return func(s *Service) { s.recorder = recorder }
}

// WithWorkspaceRoot sets the directory holding the workspaces.
func WithWorkspaceRoot(root string) Option {
	return func(s *Service) { s.workspaceRoot = root }
}

// WithDemoAgent names the agent driving the demo flow; the last agent by default.
func WithDemoAgent(name string) Option {
	return func(s *Service) { s.demoAgent = name }
}

// WithTestCommand sets the command proposed by the test audit.
func WithTestCommand(command string) Option {
	return func(s *Service) { s.testCommand = command }
}

// WithConcurrency bounds how many workspaces a batch flow handles at once.
func WithConcurrency(n int) Option {
	return func(s *Service) { s.concurrency = n }
}
