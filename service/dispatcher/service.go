package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/viant/exegol/internal/idgen"
	"github.com/viant/exegol/model"
	"github.com/viant/exegol/service/diagnostics"
	"github.com/viant/exegol/service/plan"
	"github.com/viant/exegol/service/runner"
	"github.com/viant/exegol/service/state"
	"github.com/viant/exegol/service/vcs"
)

// RunnerGit labels results produced by the commit runner.
const RunnerGit = "git"

// Executor executes approved actions.
type Executor interface {
	Execute(ctx context.Context, action *model.ActionRequest) (*model.ExecutionResult, error)
}

// Service routes actions to the commit, test and instruction runners.
type Service struct {
	store         *state.Service
	runner        runner.Runner
	repository    *vcs.Repository
	plan          *plan.Service
	recorder      *diagnostics.Recorder
	workspaceRoot string
}

// Option customises a Service.
type Option func(s *Service)

// WithRunner sets the test runner, Noop by default.
func WithRunner(r runner.Runner) Option {
	return func(s *Service) { s.runner = r }
}

// WithRepository sets the git driver used by commits.
func WithRepository(repository *vcs.Repository) Option {
	return func(s *Service) { s.repository = repository }
}

// WithPlan sets the plan document service.
func WithPlan(p *plan.Service) Option {
	return func(s *Service) { s.plan = p }
}

// WithRecorder sets the diagnostics recorder.
func WithRecorder(recorder *diagnostics.Recorder) Option {
	return func(s *Service) { s.recorder = recorder }
}

// WithWorkspaceRoot sets the directory commit repositories and relative
// workspace paths resolve against.
func WithWorkspaceRoot(root string) Option {
	return func(s *Service) { s.workspaceRoot = root }
}

// New creates a dispatcher writing its activity to store.
func New(store *state.Service, options ...Option) *Service {
	s := &Service{store: store}
	for _, option := range options {
		option(s)
	}
	if s.runner == nil {
		s.runner = runner.NewNoop()
	}
	if s.repository == nil {
		s.repository = vcs.New(nil)
	}
	if s.plan == nil {
		s.plan = plan.New()
	}
	if s.recorder == nil {
		s.recorder = diagnostics.Nop()
	}
	return s
}

// Execute runs action. Runner failures come back as a failed result; an error
// means the action could not be dispatched at all, for example an unsupported
// type or a missing workspace. Either way one activity entry is written.
func (s *Service) Execute(ctx context.Context, action *model.ActionRequest) (*model.ExecutionResult, error) {
	if action == nil {
		return nil, fmt.Errorf("action was nil")
	}
	ctx, timer := s.recorder.Start(ctx, "dispatch."+string(action.Type), map[string]interface{}{"action_type": string(action.Type)})
	var (
		result *model.ExecutionResult
		entry  *activity
		err    error
	)
	switch action.Type {
	case model.ActionCommit:
		result, entry, err = s.commit(ctx, action.CommitPayload())
	case model.ActionRunTests:
		result, entry, err = s.runTests(ctx, action.TestPayload())
	case model.ActionQueueInstruction:
		result, entry, err = s.queueInstruction(ctx, action.InstructionPayload())
	default:
		err = &model.UnsupportedActionError{Type: action.Type}
	}
	if err == nil {
		entry.metadata["action_type"] = string(action.Type)
		entry.metadata["result"] = result
		if entry.instruction != nil {
			if _, err = s.store.QueueInstructionWithActivity(ctx, entry.instruction, entry.message, entry.metadata); err != nil {
				err = fmt.Errorf("failed to queue instruction: %w", err)
			}
		}
	}
	if err != nil {
		elapsed := timer.Done(err)
		s.recorder.Metrics().RecordDispatch(ctx, string(action.Type), diagnostics.StatusError, elapsed)
		return nil, s.recordFailure(ctx, action, err)
	}
	timer.Set("result", string(result.Status))
	result.Elapsed = timer.Done(nil)
	s.recorder.Metrics().RecordDispatch(ctx, string(action.Type), string(result.Status), result.Elapsed)
	if entry.instruction != nil {
		return result, nil
	}
	if _, err = s.store.AppendActivity(ctx, entry.message, entry.metadata); err != nil {
		return result, fmt.Errorf("failed to record %s activity: %w", action.Type, err)
	}
	return result, nil
}

// recordFailure leaves a trace of a dispatch that did not happen.
func (s *Service) recordFailure(ctx context.Context, action *model.ActionRequest, cause error) error {
	metadata := map[string]interface{}{"action_type": string(action.Type), "error": cause.Error()}
	if _, err := s.store.AppendActivity(ctx, fmt.Sprintf("Dispatch failed for %s", action.Type), metadata); err != nil {
		return errors.Join(cause, fmt.Errorf("failed to record %s failure: %w", action.Type, err))
	}
	return cause
}

type activity struct {
	message  string
	metadata map[string]interface{}
	// instruction is stored together with the entry when set
	instruction *model.Instruction
}

func (s *Service) commit(ctx context.Context, payload *model.CommitPayload) (*model.ExecutionResult, *activity, error) {
	if payload == nil {
		return nil, nil, fmt.Errorf("commit action has no commit payload")
	}
	repoPath := filepath.Join(s.workspaceRoot, payload.Repo)
	marker := payload.Marker
	if marker == "" {
		marker = model.DefaultCommitMarker
	}
	result := &model.ExecutionResult{Runner: RunnerGit, Workspace: repoPath, Command: "git commit -m " + payload.Message}
	entry := &activity{metadata: map[string]interface{}{"repo": payload.Repo}}
	commit, err := s.repository.Commit(ctx, repoPath, marker, payload.Message)
	if err != nil {
		result.Status = model.ExecFailed
		result.Reason = err.Error()
		result.Output = err.Error()
		entry.message = fmt.Sprintf("Commit failed in %s", payload.Repo)
		return result, entry, nil
	}
	result.Status = model.ExecSuccess
	result.CommitID = commit.CommitID
	result.Output = commit.Output
	entry.message = fmt.Sprintf("Commit %s recorded in %s", shortID(commit.CommitID), payload.Repo)
	s.recorder.Emit(ctx, "git_commit", map[string]interface{}{"repo": payload.Repo, "commit": commit.CommitID, "message": payload.Message})
	return result, entry, nil
}

func (s *Service) runTests(ctx context.Context, payload *model.TestPayload) (*model.ExecutionResult, *activity, error) {
	if payload == nil {
		return nil, nil, fmt.Errorf("run_tests action has no test payload")
	}
	repoPath := s.resolve(payload.RepoPath)
	if info, err := os.Stat(repoPath); err != nil || !info.IsDir() {
		return nil, nil, model.NewNotFoundError("workspace", repoPath)
	}
	result := s.runner.Run(ctx, repoPath, payload.Command)
	entry := &activity{
		message:  fmt.Sprintf("Tests executed for %s", filepath.Base(repoPath)),
		metadata: map[string]interface{}{"repo_path": repoPath, "runner": result.Runner},
	}
	if payload.ShouldUpdatePlan() {
		location := plan.Path(repoPath)
		change, err := s.plan.AppendRequirementsUpdate(ctx, location, &plan.Update{Command: payload.Command, Status: result.Status})
		if err != nil {
			entry.metadata["plan_error"] = err.Error()
		} else {
			entry.metadata["plan"] = change
		}
	}
	s.recorder.Emit(ctx, "test_run", map[string]interface{}{"repo_path": repoPath, "status": string(result.Status), "runner": result.Runner})
	return result, entry, nil
}

func (s *Service) queueInstruction(_ context.Context, payload *model.InstructionPayload) (*model.ExecutionResult, *activity, error) {
	if payload == nil {
		return nil, nil, fmt.Errorf("queue_instruction action has no instruction payload")
	}
	instruction := &model.Instruction{
		ID:       idgen.New(),
		RepoPath: payload.RepoPath,
		Task:     payload.Task,
		Block:    RenderInstruction(payload.Task),
		Agent:    payload.Agent,
	}
	result := &model.ExecutionResult{Status: model.ExecQueued, Runner: "instruction", Workspace: payload.RepoPath, Output: instruction.Block}
	entry := &activity{
		message:     fmt.Sprintf("Instruction queued for %s", filepath.Base(payload.RepoPath)),
		metadata:    map[string]interface{}{"instruction_id": instruction.ID, "repo_path": payload.RepoPath},
		instruction: instruction,
	}
	if payload.Agent != "" {
		entry.metadata["agent"] = payload.Agent
	}
	return result, entry, nil
}

func (s *Service) resolve(location string) string {
	if filepath.IsAbs(location) || s.workspaceRoot == "" {
		return location
	}
	return filepath.Join(s.workspaceRoot, location)
}

func shortID(commitID string) string {
	if len(commitID) > 12 {
		return commitID[:12]
	}
	return commitID
}

var _ Executor = (*Service)(nil)
