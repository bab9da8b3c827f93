package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/viant/exegol/model"
	"github.com/viant/exegol/service/plan"
	"golang.org/x/sync/errgroup"
)

const snippetLines = 3

// BatchItem is the outcome of a batch flow for one workspace.
type BatchItem struct {
	Workspace string `json:"workspace"`
	Outcome
	Err error `json:"-"`
}

// BatchReport lists per-workspace outcomes in workspace order.
type BatchReport struct {
	Origin string       `json:"origin"`
	Agent  string       `json:"agent"`
	Items  []*BatchItem `json:"items"`
}

// RequestIDs returns the ids of requests created by the batch.
func (r *BatchReport) RequestIDs() []string {
	var ret []string
	for _, item := range r.Items {
		if item.RequestID != "" {
			ret = append(ret, item.RequestID)
		}
	}
	return ret
}

// Err joins the errors of failed items.
func (r *BatchReport) Err() error {
	var errs []error
	for _, item := range r.Items {
		if item.Err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", filepath.Base(item.Workspace), item.Err))
		}
	}
	return errors.Join(errs...)
}

// AuditTests proposes a test run in every workspace on behalf of the first
// agent holding a tests:run permission.
func (s *Service) AuditTests(ctx context.Context) (*BatchReport, error) {
	return s.batch(ctx, OriginTestAudit, PrefixTests, func(ctx context.Context, _ *model.AgentProfile, workspace string) (*proposal, error) {
		name := filepath.Base(workspace)
		action, err := model.NewTestAction(fmt.Sprintf("Run %s in %s", s.testCommand, name), model.TestPayload{RepoPath: workspace, Command: s.testCommand})
		if err != nil {
			return nil, err
		}
		return &proposal{action: action, title: "Test run requested for " + name, origin: OriginTestAudit}, nil
	})
}

// QueueInstructions proposes an edit instruction built from each workspace's
// plan on behalf of the first agent holding an instruction:queue permission.
func (s *Service) QueueInstructions(ctx context.Context) (*BatchReport, error) {
	return s.batch(ctx, OriginInstructionBatch, PrefixInstruction, func(ctx context.Context, agent *model.AgentProfile, workspace string) (*proposal, error) {
		name := filepath.Base(workspace)
		snippet, err := s.plans.Snippet(ctx, plan.Path(workspace), snippetLines)
		if err != nil {
			return nil, err
		}
		task := "Review plan for " + name
		if snippet != "" {
			task += ": " + snippet
		}
		action, err := model.NewInstructionAction("Queue plan instruction for "+name, model.InstructionPayload{RepoPath: workspace, Task: task, Agent: agent.Name})
		if err != nil {
			return nil, err
		}
		return &proposal{action: action, title: "Instruction queue requested for " + name, origin: OriginInstructionBatch}, nil
	})
}

type proposalFunc func(ctx context.Context, agent *model.AgentProfile, workspace string) (*proposal, error)

// batch runs build+propose for every workspace concurrently. A failing
// workspace is recorded on its item and never stops the others.
func (s *Service) batch(ctx context.Context, origin, prefix string, build proposalFunc) (report *BatchReport, err error) {
	ctx, timer := s.recorder.Start(ctx, origin, nil)
	defer func() { timer.Done(err) }()

	agent, err := s.agentWithPrefix(prefix)
	if err != nil {
		return nil, err
	}
	workspaces, err := s.Workspaces()
	if err != nil {
		return nil, err
	}
	timer.Set("agent", agent.Name)
	timer.Set("workspaces", len(workspaces))

	report = &BatchReport{Origin: origin, Agent: agent.Name, Items: make([]*BatchItem, len(workspaces))}
	var group errgroup.Group
	group.SetLimit(s.concurrency)
	for i, workspace := range workspaces {
		item := &BatchItem{Workspace: workspace}
		report.Items[i] = item
		group.Go(func() error {
			p, err := build(ctx, agent, workspace)
			if err == nil {
				p.agent = agent
				var outcome *Outcome
				if outcome, err = s.propose(ctx, p); outcome != nil {
					item.Outcome = *outcome
				}
			}
			item.Err = err
			fields := map[string]interface{}{"workspace": workspace, "ref": item.Ref()}
			if err != nil {
				fields["error"] = err.Error()
			}
			s.recorder.Emit(ctx, origin+"_item", fields)
			return nil
		})
	}
	_ = group.Wait()
	timer.Set("requests", len(report.RequestIDs()))
	return report, nil
}
