package orchestrator

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/viant/exegol/model"
	"github.com/viant/exegol/policy"
	"github.com/viant/exegol/service/approval"
	"github.com/viant/exegol/service/diagnostics"
	"github.com/viant/exegol/service/dispatcher"
	"github.com/viant/exegol/service/plan"
	"github.com/viant/exegol/service/state"
)

// Request origins.
const (
	OriginDemo             = "demo_flow"
	OriginTestAudit        = "test_audit"
	OriginInstructionBatch = "instruction_batch"
)

// Permission prefixes used to pick the agent of a batch flow.
const (
	PrefixTests       = "tests:run"
	PrefixInstruction = "instruction:queue"
)

// AutoApproved is the Outcome reference of an action that ran without approval.
const AutoApproved = "auto-approved"

// DefaultConcurrency bounds the workspaces processed at once by a batch flow.
const DefaultConcurrency = 4

// Service coordinates the demo and batch flows over the agent roster.
type Service struct {
	agents        model.Agents
	store         *state.Service
	evaluator     *policy.Evaluator
	executor      dispatcher.Executor
	approvals     approval.Service
	plans         *plan.Service
	recorder      *diagnostics.Recorder
	workspaceRoot string
	demoAgent     string
	testCommand   string
	concurrency   int
}

// New creates an orchestrator over store. Unset collaborators get defaults: a
// DefaultRules evaluator, a dispatcher writing to store and an approval store
// dispatching through the executor.
func New(store *state.Service, agents model.Agents, options ...Option) *Service {
	s := &Service{store: store, agents: agents}
	for _, option := range options {
		option(s)
	}
	if s.recorder == nil {
		s.recorder = diagnostics.Nop()
	}
	if s.evaluator == nil {
		s.evaluator = policy.New(policy.WithRecorder(s.recorder))
	}
	if s.executor == nil {
		s.executor = dispatcher.New(store, dispatcher.WithWorkspaceRoot(s.workspaceRoot), dispatcher.WithRecorder(s.recorder))
	}
	if s.approvals == nil {
		s.approvals = approval.New(store, approval.WithExecutor(s.executor), approval.WithRecorder(s.recorder))
	}
	if s.plans == nil {
		s.plans = plan.New()
	}
	if s.testCommand == "" {
		s.testCommand = model.DefaultTestCommand
	}
	if s.concurrency <= 0 {
		s.concurrency = DefaultConcurrency
	}
	return s
}

// Agents returns the roster.
func (s *Service) Agents() model.Agents { return s.agents }

// Approvals returns the approval service requests are queued on.
func (s *Service) Approvals() approval.Service { return s.approvals }

// Outcome is the result of proposing one action.
type Outcome struct {
	RequestID    string                 `json:"request_id,omitempty"`
	AutoApproved bool                   `json:"auto_approved"`
	Decision     model.Decision         `json:"decision"`
	Result       *model.ExecutionResult `json:"result,omitempty"`
}

// Ref returns the request id, or AutoApproved when the action ran at once.
func (o *Outcome) Ref() string {
	if o.AutoApproved {
		return AutoApproved
	}
	return o.RequestID
}

type proposal struct {
	agent  *model.AgentProfile
	action *model.ActionRequest
	title  string
	origin string
}

// propose evaluates the action and either dispatches it or queues it for
// approval. Uncertain decisions always resolve to approval.
func (s *Service) propose(ctx context.Context, p *proposal) (*Outcome, error) {
	decision := s.evaluator.EvaluateContext(ctx, p.action, p.agent)
	outcome := &Outcome{Decision: decision}
	if decision.RequiresApproval {
		id, err := s.approvals.RequestApproval(ctx, &approval.Request{
			Title:  p.title,
			Action: p.action,
			Agent:  p.agent.Ref(),
			Reason: decision.Reason,
			Origin: p.origin,
		})
		if err != nil {
			return nil, err
		}
		outcome.RequestID = id
		return outcome, nil
	}
	outcome.AutoApproved = true
	result, err := s.executor.Execute(ctx, p.action)
	outcome.Result = result
	return outcome, err
}

// RunDemo proposes the demo commit on behalf of the designated agent.
func (s *Service) RunDemo(ctx context.Context) (outcome *Outcome, err error) {
	ctx, timer := s.recorder.Start(ctx, OriginDemo, nil)
	defer func() { timer.Done(err) }()

	agent, err := s.designatedAgent()
	if err != nil {
		return nil, err
	}
	timer.Set("agent", agent.Name)
	for _, message := range []string{agent.Name + " reads plan.md", "Preparing git commit action"} {
		if _, err = s.store.AppendActivity(ctx, message, nil); err != nil {
			return nil, err
		}
	}
	action, err := model.NewCommitAction("Attempt demo git commit in workspace", model.CommitPayload{})
	if err != nil {
		return nil, err
	}
	outcome, err = s.propose(ctx, &proposal{agent: agent, action: action, title: "Git commit requested", origin: OriginDemo})
	if err != nil {
		return outcome, err
	}
	if outcome.AutoApproved {
		s.recorder.Emit(ctx, "demo_flow_auto_approved", map[string]interface{}{"reason": outcome.Decision.Reason})
		return outcome, nil
	}
	if _, err = s.store.AppendActivity(ctx, "Permission requested for git commit", map[string]interface{}{"request_id": outcome.RequestID}); err != nil {
		return outcome, err
	}
	s.recorder.Emit(ctx, "demo_flow_paused", map[string]interface{}{"request_id": outcome.RequestID, "reason": outcome.Decision.Reason})
	return outcome, nil
}

func (s *Service) designatedAgent() (*model.AgentProfile, error) {
	if len(s.agents) == 0 {
		return nil, model.NewConfigurationError("agents", "no agents loaded", nil)
	}
	if s.demoAgent == "" {
		return s.agents[len(s.agents)-1], nil
	}
	if agent := s.agents.Lookup(s.demoAgent); agent != nil {
		return agent, nil
	}
	return nil, model.NewConfigurationError("agents", fmt.Sprintf("demo agent %q not found", s.demoAgent), nil)
}

func (s *Service) agentWithPrefix(prefix string) (*model.AgentProfile, error) {
	if agent := s.agents.FirstWithPrefix(prefix); agent != nil {
		return agent, nil
	}
	return nil, model.NewConfigurationError("agents", fmt.Sprintf("no agent holds a %s permission", prefix), nil)
}

// Resolve applies an operator decision to a pending request; approving it
// dispatches the stored action once.
func (s *Service) Resolve(ctx context.Context, id string, status model.Status, reason string) (*approval.Decision, error) {
	if !status.Terminal() {
		return nil, fmt.Errorf("request %s: cannot resolve to %q", id, status)
	}
	return s.approvals.Decide(ctx, id, status == model.StatusApproved, reason)
}

// Workspaces lists the git working copies directly under the workspace root
// in name order.
func (s *Service) Workspaces() ([]string, error) {
	entries, err := os.ReadDir(s.workspaceRoot)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, model.NewNotFoundError("workspace root", s.workspaceRoot)
		}
		return nil, fmt.Errorf("failed to list workspaces in %s: %w", s.workspaceRoot, err)
	}
	var ret []string
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		location := filepath.Join(s.workspaceRoot, entry.Name())
		if _, err := os.Stat(filepath.Join(location, ".git")); err == nil {
			ret = append(ret, location)
		}
	}
	sort.Strings(ret)
	return ret, nil
}
