package policy

import (
	"context"

	"github.com/viant/exegol/model"
	"github.com/viant/exegol/service/diagnostics"
)

// NoMatchingRule is the reason returned for action types with no rule.
const NoMatchingRule = "no matching permission rule"

// Rule maps an action type onto the two permission strings that govern it.
type Rule struct {
	Type              model.ActionType
	Allow             string // executes without approval
	AllowWithApproval string // executes after approval
	Label             string // human readable subject used in reasons
}

// DefaultRules is the rule table for the built-in action types.
var DefaultRules = []*Rule{
	{Type: model.ActionCommit, Allow: "git:commit", AllowWithApproval: "git:commit:requires-approval", Label: "Commit"},
	{Type: model.ActionRunTests, Allow: "tests:run", AllowWithApproval: "tests:run:requires-approval", Label: "Test run"},
	{Type: model.ActionQueueInstruction, Allow: "instruction:queue", AllowWithApproval: "instruction:queue:requires-approval", Label: "Instruction queueing"},
}

// Evaluator applies the rule table and the optional overlay.
type Evaluator struct {
	rules    map[model.ActionType]*Rule
	policy   *Policy
	recorder *diagnostics.Recorder
}

// Option customises an Evaluator.
type Option func(e *Evaluator)

// WithPolicy installs an overlay.
func WithPolicy(p *Policy) Option {
	return func(e *Evaluator) { e.policy = p }
}

// WithRecorder sets the diagnostic sink for permission_check events.
func WithRecorder(recorder *diagnostics.Recorder) Option {
	return func(e *Evaluator) { e.recorder = recorder }
}

// WithRules replaces the rule table.
func WithRules(rules ...*Rule) Option {
	return func(e *Evaluator) {
		e.rules = make(map[model.ActionType]*Rule, len(rules))
		for _, rule := range rules {
			e.rules[rule.Type] = rule
		}
	}
}

// New creates an Evaluator with DefaultRules.
func New(options ...Option) *Evaluator {
	ret := &Evaluator{}
	WithRules(DefaultRules...)(ret)
	for _, option := range options {
		option(ret)
	}
	return ret
}

// Evaluate returns the decision for agent proposing action.
func (e *Evaluator) Evaluate(action *model.ActionRequest, agent *model.AgentProfile) model.Decision {
	return e.EvaluateContext(context.Background(), action, agent)
}

// EvaluateContext is Evaluate with a caller context for the diagnostic event.
func (e *Evaluator) EvaluateContext(ctx context.Context, action *model.ActionRequest, agent *model.AgentProfile) model.Decision {
	decision := e.decide(action, agent)
	var actionType model.ActionType
	if action != nil {
		actionType = action.Type
	}
	e.recorder.Emit(ctx, "permission_check", map[string]interface{}{
		"action_type":       string(actionType),
		"agent":             agent.Ref().Name,
		"requires_approval": decision.RequiresApproval,
		"reason":            decision.Reason,
	})
	e.recorder.Metrics().RecordDecision(ctx, string(actionType), decision.RequiresApproval)
	return decision
}

func (e *Evaluator) decide(action *model.ActionRequest, agent *model.AgentProfile) model.Decision {
	if action == nil {
		return model.Decision{RequiresApproval: true, Reason: NoMatchingRule}
	}
	rule, ok := e.rules[action.Type]
	if !ok {
		return model.Decision{RequiresApproval: true, Reason: NoMatchingRule}
	}
	var decision model.Decision
	switch {
	case agent.Has(rule.Allow):
		decision = model.Decision{Reason: rule.Label + " allowed.", Permission: rule.Allow}
	case agent.Has(rule.AllowWithApproval):
		return model.Decision{RequiresApproval: true, Reason: rule.Label + " allowed with approval.", Permission: rule.AllowWithApproval}
	default:
		return model.Decision{RequiresApproval: true, Reason: rule.Label + " not permitted outright; approval required."}
	}
	if reason := e.policy.holds(action.Type); reason != "" {
		return model.Decision{RequiresApproval: true, Reason: reason, Permission: decision.Permission}
	}
	return decision
}
