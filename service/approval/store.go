package approval

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/viant/exegol/internal/clock"
	"github.com/viant/exegol/model"
	"github.com/viant/exegol/service/diagnostics"
	"github.com/viant/exegol/service/messaging"
	"github.com/viant/exegol/service/state"
)

const publishTimeout = 100 * time.Millisecond

// Store keeps approval requests in the state store.
type Store struct {
	store    *state.Service
	executor Executor
	queue    messaging.Queue[Event]
	recorder *diagnostics.Recorder
}

// Option customises a Store.
type Option func(s *Store)

// WithExecutor runs approved actions through executor.
func WithExecutor(executor Executor) Option {
	return func(s *Store) { s.executor = executor }
}

// WithQueue attaches an event queue. Without one no events are published, so
// a queue must only be attached together with a consumer.
func WithQueue(queue messaging.Queue[Event]) Option {
	return func(s *Store) { s.queue = queue }
}

// WithRecorder sets the diagnostics recorder.
func WithRecorder(recorder *diagnostics.Recorder) Option {
	return func(s *Store) { s.recorder = recorder }
}

// New creates an approval Store over store.
func New(store *state.Service, options ...Option) *Store {
	s := &Store{store: store}
	for _, option := range options {
		option(s)
	}
	if s.recorder == nil {
		s.recorder = diagnostics.Nop()
	}
	return s
}

func (s *Store) RequestApproval(ctx context.Context, r *Request) (string, error) {
	if r == nil || r.Action == nil {
		return "", fmt.Errorf("approval request: action was empty")
	}
	id, err := s.store.CreatePermissionRequest(ctx, &state.NewRequest{
		Title:  r.Title,
		Action: r.Action,
		Agent:  r.Agent,
		Reason: r.Reason,
		Origin: r.Origin,
	})
	if err != nil {
		return "", err
	}
	if s.queue == nil {
		return id, nil
	}
	if request, err := s.store.PermissionRequest(ctx, id); err == nil {
		s.publish(ctx, &Event{Topic: TopicRequestCreated, Data: request})
	}
	return id, nil
}

func (s *Store) Request(ctx context.Context, id string) (*model.PermissionRequest, error) {
	return s.store.PermissionRequest(ctx, id)
}

func (s *Store) ListPending(ctx context.Context, filters ...state.Filter) ([]*model.PermissionRequest, error) {
	return s.store.PermissionRequests(ctx, append([]state.Filter{state.WithStatus(model.StatusPending)}, filters...)...)
}

func (s *Store) Decide(ctx context.Context, id string, approved bool, reason string) (*Decision, error) {
	status := model.StatusDenied
	if approved {
		status = model.StatusApproved
	}
	request, err := s.store.UpdatePermissionRequestStatus(ctx, id, status)
	if err != nil {
		return nil, err
	}
	decision := &Decision{ID: id, Status: status, Reason: reason, DecidedAt: clock.Now().UTC()}
	if request.ResolvedAt != nil {
		decision.DecidedAt = *request.ResolvedAt
	}
	// the transition winner dispatches before any further write
	var dispatchErr error
	if approved && s.executor != nil {
		action := request.Action
		decision.Result, dispatchErr = s.executor.Execute(ctx, &action)
		if dispatchErr != nil {
			dispatchErr = fmt.Errorf("request %s approved but dispatch failed: %w", id, dispatchErr)
		}
	}
	metadata := map[string]interface{}{"request_id": id, "status": string(status)}
	if reason != "" {
		metadata["reason"] = reason
	}
	if decision.Result != nil {
		metadata["result_status"] = string(decision.Result.Status)
	}
	if dispatchErr != nil {
		metadata["dispatch_error"] = dispatchErr.Error()
	}
	if _, err = s.store.AppendActivity(ctx, fmt.Sprintf("%s %s", request.Title, status), metadata); err != nil {
		err = fmt.Errorf("request %s %s but its activity was not recorded: %w", id, status, err)
		return decision, errors.Join(dispatchErr, err)
	}
	s.publish(ctx, &Event{Topic: TopicDecisionCreated, Data: decision})
	return decision, dispatchErr
}

// Queue returns the attached event queue, nil when none was attached.
func (s *Store) Queue() messaging.Queue[Event] { return s.queue }

func (s *Store) publish(ctx context.Context, event *Event) {
	if s.queue == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()
	if err := s.queue.Publish(ctx, event); err != nil {
		s.recorder.Emit(ctx, "approval_event_dropped", map[string]interface{}{"topic": event.Topic, "error": err.Error()})
	}
}

var _ Service = (*Store)(nil)
