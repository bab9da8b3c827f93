package approval

import (
	"time"

	"github.com/viant/exegol/model"
)

// Event is published on the approval queue for every request and decision.
type Event struct {
	Topic   string            `json:"topic"`
	Data    interface{}       `json:"data"` // *model.PermissionRequest | *Decision
	Headers map[string]string `json:"headers,omitempty"`
}

// Event topics.
const (
	TopicRequestCreated  = "request.created"
	TopicDecisionCreated = "decision.created"
)

// Request asks for approval of an action the policy held back.
type Request struct {
	Title  string
	Action *model.ActionRequest
	Agent  model.AgentRef
	Reason string
	Origin string
}

// Decision records how a request was resolved.
type Decision struct {
	ID        string                 `json:"id"` // same as the request id
	Status    model.Status           `json:"status"`
	Reason    string                 `json:"reason,omitempty"`
	DecidedAt time.Time              `json:"decided_at"`
	Result    *model.ExecutionResult `json:"result,omitempty"` // set when the approved action ran
}

// Approved reports whether the request was approved.
func (d *Decision) Approved() bool { return d != nil && d.Status == model.StatusApproved }
