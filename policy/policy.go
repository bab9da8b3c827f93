package policy

import (
	"strings"

	"github.com/viant/exegol/model"
)

// Overlay modes.
const (
	ModeAsk  = "ask"  // hold every action for approval
	ModeAuto = "auto" // rule table only (default)
	ModeDeny = "deny" // treated as ask; actions are queued, never dropped
)

// Policy is the runtime overlay applied after the rule table.
//
//   - Mode controls the high-level behaviour (ask / auto / deny).
//   - AllowList, BlockList name action types; listed types are matched
//     case-insensitively.
//
// A nil *Policy leaves the rule table verdict untouched.
type Policy struct {
	Mode      string
	AllowList []string
	BlockList []string
}

// Config represents the serialisable form of a Policy.
type Config struct {
	Mode      string   `json:"mode,omitempty" yaml:"mode,omitempty"`
	AllowList []string `json:"allow,omitempty" yaml:"allow,omitempty"`
	BlockList []string `json:"block,omitempty" yaml:"block,omitempty"`
}

// ToConfig converts a runtime Policy into a persistable Config.
func ToConfig(p *Policy) *Config {
	if p == nil {
		return nil
	}
	return &Config{
		Mode:      p.Mode,
		AllowList: append([]string(nil), p.AllowList...),
		BlockList: append([]string(nil), p.BlockList...),
	}
}

// FromConfig converts a stored Config back to a runtime Policy.
func FromConfig(c *Config) *Policy {
	if c == nil {
		return nil
	}
	return &Policy{
		Mode:      c.Mode,
		AllowList: append([]string(nil), c.AllowList...),
		BlockList: append([]string(nil), c.BlockList...),
	}
}

// IsAllowed evaluates BlockList then AllowList for an action type. An empty
// AllowList admits every type that is not blocked.
func (p *Policy) IsAllowed(actionType model.ActionType) bool {
	if p == nil {
		return true
	}
	normalized := strings.ToLower(string(actionType))
	for _, b := range p.BlockList {
		if normalized == strings.ToLower(b) {
			return false
		}
	}
	if len(p.AllowList) == 0 {
		return true
	}
	for _, a := range p.AllowList {
		if normalized == strings.ToLower(a) {
			return true
		}
	}
	return false
}

// holds returns a non-empty reason when the overlay requires approval.
func (p *Policy) holds(actionType model.ActionType) string {
	if p == nil {
		return ""
	}
	switch strings.ToLower(p.Mode) {
	case ModeAsk, ModeDeny:
		return "policy mode " + strings.ToLower(p.Mode) + " requires approval"
	}
	if !p.IsAllowed(actionType) {
		return "action " + string(actionType) + " is blocked by policy; approval required"
	}
	return ""
}
