package model

import "strings"

// AgentProfile describes an automated agent and the permission strings it was
// granted in the agents source.
type AgentProfile struct {
	Name        string   `json:"name" yaml:"name"`
	Role        string   `json:"role" yaml:"role"`
	Permissions []string `json:"permissions" yaml:"permissions"`
}

// Has reports whether the profile holds the exact permission.
func (a *AgentProfile) Has(permission string) bool {
	if a == nil {
		return false
	}
	for _, candidate := range a.Permissions {
		if candidate == permission {
			return true
		}
	}
	return false
}

// HasPrefix reports whether any permission starts with prefix.
func (a *AgentProfile) HasPrefix(prefix string) bool {
	if a == nil {
		return false
	}
	for _, candidate := range a.Permissions {
		if strings.HasPrefix(candidate, prefix) {
			return true
		}
	}
	return false
}

// Ref returns the snapshot stored alongside permission requests.
func (a *AgentProfile) Ref() AgentRef {
	if a == nil {
		return AgentRef{}
	}
	return AgentRef{Name: a.Name, Role: a.Role}
}

// AgentRef identifies the agent that proposed an action.
type AgentRef struct {
	Name string `json:"name"`
	Role string `json:"role"`
}

// Agents is an ordered agent roster.
type Agents []*AgentProfile

// Lookup returns the agent with name or nil.
func (a Agents) Lookup(name string) *AgentProfile {
	for _, agent := range a {
		if agent.Name == name {
			return agent
		}
	}
	return nil
}

// FirstWithPrefix returns the first agent holding a permission with prefix.
func (a Agents) FirstWithPrefix(prefix string) *AgentProfile {
	for _, agent := range a {
		if agent.HasPrefix(prefix) {
			return agent
		}
	}
	return nil
}
