package approval

import (
	"context"

	"github.com/viant/exegol/model"
	"github.com/viant/exegol/service/messaging"
	"github.com/viant/exegol/service/state"
)

// Service manages permission requests awaiting a human decision.
type Service interface {
	RequestApproval(ctx context.Context, r *Request) (string, error)
	Request(ctx context.Context, id string) (*model.PermissionRequest, error)
	ListPending(ctx context.Context, filters ...state.Filter) ([]*model.PermissionRequest, error)
	// Decide resolves a pending request. Only the caller that performs the
	// transition gets a Decision; a request already resolved yields
	// model.ErrAlreadyResolved.
	Decide(ctx context.Context, id string, approved bool, reason string) (*Decision, error)
	Queue() messaging.Queue[Event]
}

// Executor runs approved actions.
type Executor interface {
	Execute(ctx context.Context, action *model.ActionRequest) (*model.ExecutionResult, error)
}
