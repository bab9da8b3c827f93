package model

import (
	"fmt"
	"time"
)

// Decision is the policy verdict for one action proposed by one agent.
type Decision struct {
	RequiresApproval bool   `json:"requires_approval"`
	Reason           string `json:"reason"`
	// Permission is the permission string that matched, empty when none did.
	Permission string `json:"permission,omitempty"`
}

// Status is the lifecycle state of a permission request.
type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusDenied   Status = "denied"
)

// Terminal reports whether no further transition is allowed.
func (s Status) Terminal() bool {
	return s == StatusApproved || s == StatusDenied
}

// ParseStatus validates a textual status.
func ParseStatus(value string) (Status, error) {
	switch s := Status(value); s {
	case StatusPending, StatusApproved, StatusDenied:
		return s, nil
	}
	return "", fmt.Errorf("unsupported status: %q", value)
}

// PermissionRequest is a held action awaiting a human decision.
type PermissionRequest struct {
	ID         string        `json:"id"`
	Title      string        `json:"title"`
	Action     ActionRequest `json:"action"`
	Agent      AgentRef      `json:"agent"`
	Status     Status        `json:"status"`
	Reason     string        `json:"reason"`
	Origin     string        `json:"origin"`
	CreatedAt  time.Time     `json:"created_at"`
	ResolvedAt *time.Time    `json:"resolved_at,omitempty"`
}

// Clone returns a copy safe to hand out of the store.
func (r *PermissionRequest) Clone() *PermissionRequest {
	if r == nil {
		return nil
	}
	ret := *r
	if r.ResolvedAt != nil {
		at := *r.ResolvedAt
		ret.ResolvedAt = &at
	}
	return &ret
}
