package state

import (
	"context"
	"fmt"

	"github.com/viant/exegol/internal/clock"
	"github.com/viant/exegol/internal/idgen"
	"github.com/viant/exegol/model"
	"github.com/viant/exegol/service/diagnostics"
)

// Service is the only writer of persisted runtime state. Every mutation is a
// single read-modify-write on the backend.
type Service struct {
	backend  Backend
	recorder *diagnostics.Recorder
}

// Option customises a Service.
type Option func(s *Service)

// WithRecorder sets the diagnostic sink.
func WithRecorder(recorder *diagnostics.Recorder) Option {
	return func(s *Service) { s.recorder = recorder }
}

// New creates a Service over backend.
func New(backend Backend, options ...Option) *Service {
	ret := &Service{backend: backend}
	for _, option := range options {
		option(ret)
	}
	return ret
}

// NewRequest describes a permission request to create.
type NewRequest struct {
	Title  string
	Action *model.ActionRequest
	Agent  model.AgentRef
	Reason string
	Origin string
}

// Location returns the backend location.
func (s *Service) Location() string { return s.backend.Location() }

// Load returns a snapshot of the whole document.
func (s *Service) Load(ctx context.Context) (*Document, error) {
	return s.backend.Snapshot(ctx)
}

func (s *Service) update(ctx context.Context, fn func(doc *Document) error) error {
	return s.backend.Transact(ctx, func(doc *Document) error {
		if err := fn(doc); err != nil {
			return err
		}
		now := clock.Now().UTC()
		doc.LastUpdated = &now
		return nil
	})
}

// AppendActivity appends an entry to the activity trail.
func (s *Service) AppendActivity(ctx context.Context, message string, metadata map[string]interface{}) (*model.ActivityEntry, error) {
	entry := &model.ActivityEntry{
		ID:        idgen.New(),
		Message:   message,
		Metadata:  metadata,
		Timestamp: clock.Now().UTC(),
	}
	err := s.update(ctx, func(doc *Document) error {
		doc.Activity = append(doc.Activity, entry)
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.recorder.Emit(ctx, "activity", map[string]interface{}{"id": entry.ID, "message": message})
	return entry, nil
}

// Activity returns the last limit entries in append order; limit <= 0 returns
// all of them.
func (s *Service) Activity(ctx context.Context, limit int) ([]*model.ActivityEntry, error) {
	doc, err := s.backend.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	entries := doc.Activity
	if limit > 0 && len(entries) > limit {
		entries = entries[len(entries)-limit:]
	}
	return entries, nil
}

// CreatePermissionRequest stores a new pending request and returns its id.
func (s *Service) CreatePermissionRequest(ctx context.Context, input *NewRequest) (string, error) {
	if input == nil || input.Action == nil {
		return "", fmt.Errorf("permission request: action was empty")
	}
	request := &model.PermissionRequest{
		ID:        idgen.New(),
		Title:     input.Title,
		Action:    *input.Action,
		Agent:     input.Agent,
		Status:    model.StatusPending,
		Reason:    input.Reason,
		Origin:    input.Origin,
		CreatedAt: clock.Now().UTC(),
	}
	err := s.update(ctx, func(doc *Document) error {
		if doc.PermissionRequest(request.ID) != nil {
			return fmt.Errorf("permission request %s already exists", request.ID)
		}
		doc.PermissionRequests = append(doc.PermissionRequests, request)
		return nil
	})
	if err != nil {
		return "", err
	}
	s.recorder.Emit(ctx, "permission_request", map[string]interface{}{
		"id":          request.ID,
		"title":       request.Title,
		"action_type": string(request.Action.Type),
		"agent":       request.Agent.Name,
		"origin":      request.Origin,
	})
	s.recorder.Metrics().RecordTransition(ctx, string(model.StatusPending))
	return request.ID, nil
}

// UpdatePermissionRequestStatus moves a pending request to a terminal status.
// An unknown id yields a NotFoundError; a request that is already terminal
// yields a ResolvedError and is left untouched.
func (s *Service) UpdatePermissionRequestStatus(ctx context.Context, id string, status model.Status) (*model.PermissionRequest, error) {
	if !status.Terminal() {
		return nil, fmt.Errorf("permission request %s: invalid target status %q", id, status)
	}
	var updated *model.PermissionRequest
	err := s.update(ctx, func(doc *Document) error {
		request := doc.PermissionRequest(id)
		if request == nil {
			return model.NewNotFoundError("permission request", id)
		}
		if request.Status.Terminal() {
			return &model.ResolvedError{ID: id, Status: request.Status}
		}
		now := clock.Now().UTC()
		request.Status = status
		request.ResolvedAt = &now
		updated = request.Clone()
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.recorder.Emit(ctx, "permission_decision", map[string]interface{}{"id": id, "status": string(status)})
	s.recorder.Metrics().RecordTransition(ctx, string(status))
	return updated, nil
}

// PermissionRequest returns the request with id.
func (s *Service) PermissionRequest(ctx context.Context, id string) (*model.PermissionRequest, error) {
	doc, err := s.backend.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	request := doc.PermissionRequest(id)
	if request == nil {
		return nil, model.NewNotFoundError("permission request", id)
	}
	return request, nil
}

// PermissionRequests returns requests matching every filter in creation order.
func (s *Service) PermissionRequests(ctx context.Context, filters ...Filter) ([]*model.PermissionRequest, error) {
	doc, err := s.backend.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	ret := make([]*model.PermissionRequest, 0, len(doc.PermissionRequests))
	for _, candidate := range doc.PermissionRequests {
		if matches(candidate, filters) {
			ret = append(ret, candidate)
		}
	}
	return ret, nil
}

// QueueInstruction appends an instruction artifact.
func (s *Service) QueueInstruction(ctx context.Context, instruction *model.Instruction) error {
	return s.queueInstruction(ctx, instruction, nil)
}

// QueueInstructionWithActivity appends instruction and its activity entry in
// a single write; either both are stored or neither is.
func (s *Service) QueueInstructionWithActivity(ctx context.Context, instruction *model.Instruction, message string, metadata map[string]interface{}) (*model.ActivityEntry, error) {
	entry := &model.ActivityEntry{
		ID:        idgen.New(),
		Message:   message,
		Metadata:  metadata,
		Timestamp: clock.Now().UTC(),
	}
	if err := s.queueInstruction(ctx, instruction, entry); err != nil {
		return nil, err
	}
	s.recorder.Emit(ctx, "activity", map[string]interface{}{"id": entry.ID, "message": message})
	return entry, nil
}

func (s *Service) queueInstruction(ctx context.Context, instruction *model.Instruction, entry *model.ActivityEntry) error {
	if instruction == nil {
		return fmt.Errorf("instruction was nil")
	}
	if instruction.ID == "" {
		instruction.ID = idgen.New()
	}
	if instruction.CreatedAt.IsZero() {
		instruction.CreatedAt = clock.Now().UTC()
	}
	err := s.update(ctx, func(doc *Document) error {
		doc.Instructions = append(doc.Instructions, instruction)
		if entry != nil {
			doc.Activity = append(doc.Activity, entry)
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.recorder.Emit(ctx, "instruction_queued", map[string]interface{}{"id": instruction.ID, "repo_path": instruction.RepoPath, "agent": instruction.Agent})
	return nil
}

// Instructions returns queued instructions in queue order.
func (s *Service) Instructions(ctx context.Context) ([]*model.Instruction, error) {
	doc, err := s.backend.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	return doc.Instructions, nil
}
