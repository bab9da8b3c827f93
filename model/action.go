package model

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/viant/toolbox"
)

// ActionType identifies the kind of side effect an agent proposes.
type ActionType string

const (
	ActionCommit           ActionType = "commit"
	ActionRunTests         ActionType = "run_tests"
	ActionQueueInstruction ActionType = "queue_instruction"
)

// Known reports whether the type has a registered payload and runner.
func (t ActionType) Known() bool {
	switch t {
	case ActionCommit, ActionRunTests, ActionQueueInstruction:
		return true
	}
	return false
}

const (
	DefaultCommitRepo    = "demo-repo"
	DefaultCommitMessage = "demo commit"
	DefaultCommitMarker  = "demo.txt"
	DefaultTestCommand   = "pytest"
)

// Payload is the type-specific part of an ActionRequest.
type Payload interface {
	// Kind returns the action type the payload belongs to.
	Kind() ActionType
	Validate() error
}

// CommitPayload describes a commit into a repository under the workspace root.
type CommitPayload struct {
	Repo    string `json:"repo"`
	Message string `json:"message"`
	Marker  string `json:"marker,omitempty"`
}

func (p *CommitPayload) Kind() ActionType { return ActionCommit }

func (p *CommitPayload) Validate() error {
	if p.Repo == "" {
		return fmt.Errorf("commit payload: repo was empty")
	}
	if p.Message == "" {
		return fmt.Errorf("commit payload: message was empty")
	}
	return nil
}

func (p *CommitPayload) init() {
	if p.Repo == "" {
		p.Repo = DefaultCommitRepo
	}
	if p.Message == "" {
		p.Message = DefaultCommitMessage
	}
	if p.Marker == "" {
		p.Marker = DefaultCommitMarker
	}
}

// TestPayload describes a test run inside a workspace.
type TestPayload struct {
	RepoPath   string `json:"repo_path"`
	Command    string `json:"command"`
	UpdatePlan *bool  `json:"update_plan,omitempty"`
}

func (p *TestPayload) Kind() ActionType { return ActionRunTests }

func (p *TestPayload) Validate() error {
	if p.RepoPath == "" {
		return fmt.Errorf("run_tests payload: repo_path was empty")
	}
	if strings.TrimSpace(p.Command) == "" {
		return fmt.Errorf("run_tests payload: command was empty")
	}
	return nil
}

// ShouldUpdatePlan returns true unless update_plan was explicitly disabled.
func (p *TestPayload) ShouldUpdatePlan() bool {
	return p.UpdatePlan == nil || *p.UpdatePlan
}

func (p *TestPayload) init() {
	if p.Command == "" {
		p.Command = DefaultTestCommand
	}
}

// InstructionPayload describes an edit instruction for a human operator.
type InstructionPayload struct {
	RepoPath string `json:"repo_path"`
	Task     string `json:"task"`
	// Agent names the agent the instruction is attributed to.
	Agent string `json:"agent,omitempty"`
}

func (p *InstructionPayload) Kind() ActionType { return ActionQueueInstruction }

func (p *InstructionPayload) Validate() error {
	if p.RepoPath == "" {
		return fmt.Errorf("queue_instruction payload: repo_path was empty")
	}
	if strings.TrimSpace(p.Task) == "" {
		return fmt.Errorf("queue_instruction payload: task was empty")
	}
	return nil
}

// RawPayload carries the payload of an action type with no registered shape.
type RawPayload struct {
	Type   ActionType
	Values map[string]interface{}
}

func (p *RawPayload) Kind() ActionType { return p.Type }

func (p *RawPayload) Validate() error { return nil }

func (p *RawPayload) MarshalJSON() ([]byte, error) {
	if p.Values == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(p.Values)
}

// ActionRequest is a proposed side effect awaiting evaluation.
type ActionRequest struct {
	Type        ActionType
	Description string
	Payload     Payload
}

// NewCommitAction builds a validated commit action.
func NewCommitAction(description string, payload CommitPayload) (*ActionRequest, error) {
	payload.init()
	return newAction(ActionCommit, description, &payload)
}

// NewTestAction builds a validated run_tests action.
func NewTestAction(description string, payload TestPayload) (*ActionRequest, error) {
	payload.init()
	return newAction(ActionRunTests, description, &payload)
}

// NewInstructionAction builds a validated queue_instruction action.
func NewInstructionAction(description string, payload InstructionPayload) (*ActionRequest, error) {
	return newAction(ActionQueueInstruction, description, &payload)
}

// NewAction converts a loosely typed payload map into the typed payload for
// actionType. Keys match payload fields regardless of case and separators, so
// "repo_path", "repoPath" and "RepoPath" are equivalent.
func NewAction(actionType ActionType, description string, values map[string]interface{}) (*ActionRequest, error) {
	normalized := make(map[string]interface{}, len(values))
	for k, v := range values {
		normalized[normalizeKey(k)] = v
	}
	switch actionType {
	case ActionCommit:
		payload := CommitPayload{}
		if err := toolbox.DefaultConverter.AssignConverted(&payload, normalized); err != nil {
			return nil, fmt.Errorf("failed to convert %v payload: %w", actionType, err)
		}
		return NewCommitAction(description, payload)
	case ActionRunTests:
		payload := TestPayload{}
		updatePlan, hasUpdatePlan := normalized["updateplan"]
		delete(normalized, "updateplan")
		if err := toolbox.DefaultConverter.AssignConverted(&payload, normalized); err != nil {
			return nil, fmt.Errorf("failed to convert %v payload: %w", actionType, err)
		}
		if hasUpdatePlan {
			flag := toolbox.AsBoolean(updatePlan)
			payload.UpdatePlan = &flag
		}
		return NewTestAction(description, payload)
	case ActionQueueInstruction:
		payload := InstructionPayload{}
		if err := toolbox.DefaultConverter.AssignConverted(&payload, normalized); err != nil {
			return nil, fmt.Errorf("failed to convert %v payload: %w", actionType, err)
		}
		return NewInstructionAction(description, payload)
	}
	return &ActionRequest{Type: actionType, Description: description, Payload: &RawPayload{Type: actionType, Values: values}}, nil
}

func newAction(actionType ActionType, description string, payload Payload) (*ActionRequest, error) {
	if err := payload.Validate(); err != nil {
		return nil, err
	}
	return &ActionRequest{Type: actionType, Description: description, Payload: payload}, nil
}

func normalizeKey(key string) string {
	key = strings.ReplaceAll(key, "_", "")
	key = strings.ReplaceAll(key, "-", "")
	return strings.ToLower(key)
}

// CommitPayload returns the typed payload or nil when the action is not a commit.
func (a *ActionRequest) CommitPayload() *CommitPayload {
	p, _ := a.Payload.(*CommitPayload)
	return p
}

// TestPayload returns the typed payload or nil when the action is not run_tests.
func (a *ActionRequest) TestPayload() *TestPayload {
	p, _ := a.Payload.(*TestPayload)
	return p
}

// InstructionPayload returns the typed payload or nil when the action is not
// queue_instruction.
func (a *ActionRequest) InstructionPayload() *InstructionPayload {
	p, _ := a.Payload.(*InstructionPayload)
	return p
}

type actionJSON struct {
	Type        ActionType      `json:"action_type"`
	Description string          `json:"description"`
	Payload     json.RawMessage `json:"payload"`
}

func (a ActionRequest) MarshalJSON() ([]byte, error) {
	payload := json.RawMessage("{}")
	if a.Payload != nil {
		data, err := json.Marshal(a.Payload)
		if err != nil {
			return nil, err
		}
		payload = data
	}
	return json.Marshal(actionJSON{Type: a.Type, Description: a.Description, Payload: payload})
}

func (a *ActionRequest) UnmarshalJSON(data []byte) error {
	aux := actionJSON{}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	a.Type = aux.Type
	a.Description = aux.Description
	if len(aux.Payload) == 0 || string(aux.Payload) == "null" {
		aux.Payload = json.RawMessage("{}")
	}
	var payload Payload
	switch aux.Type {
	case ActionCommit:
		payload = &CommitPayload{}
	case ActionRunTests:
		payload = &TestPayload{}
	case ActionQueueInstruction:
		payload = &InstructionPayload{}
	default:
		raw := &RawPayload{Type: aux.Type}
		if err := json.Unmarshal(aux.Payload, &raw.Values); err != nil {
			return fmt.Errorf("failed to decode %v payload: %w", aux.Type, err)
		}
		a.Payload = raw
		return nil
	}
	if err := json.Unmarshal(aux.Payload, payload); err != nil {
		return fmt.Errorf("failed to decode %v payload: %w", aux.Type, err)
	}
	a.Payload = payload
	return nil
}
