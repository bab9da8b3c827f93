package state

import "github.com/viant/exegol/model"

// Filter selects permission requests.
type Filter func(r *model.PermissionRequest) bool

// WithStatus keeps requests in status.
func WithStatus(status model.Status) Filter {
	return func(r *model.PermissionRequest) bool { return r.Status == status }
}

// WithOrigin keeps requests created by origin.
func WithOrigin(origin string) Filter {
	return func(r *model.PermissionRequest) bool { return r.Origin == origin }
}

// WithAgent keeps requests proposed by the named agent.
func WithAgent(name string) Filter {
	return func(r *model.PermissionRequest) bool { return r.Agent.Name == name }
}

func matches(r *model.PermissionRequest, filters []Filter) bool {
	for _, filter := range filters {
		if !filter(r) {
			return false
		}
	}
	return true
}
