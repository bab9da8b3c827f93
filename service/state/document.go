package state

import (
	"bytes"
	"encoding/json"
	"time"

	"github.com/viant/exegol/model"
)

// Document is the single persisted runtime state. Top-level keys it does not
// know about are carried through unchanged.
type Document struct {
	Activity           []*model.ActivityEntry     `json:"activity"`
	PermissionRequests []*model.PermissionRequest `json:"permission_requests"`
	Instructions       []*model.Instruction       `json:"instructions"`
	LastUpdated        *time.Time                 `json:"last_updated,omitempty"`

	extra map[string]json.RawMessage
}

var knownKeys = map[string]bool{
	"activity":            true,
	"permission_requests": true,
	"instructions":        true,
	"last_updated":        true,
}

// NewDocument returns the empty state.
func NewDocument() *Document {
	return &Document{
		Activity:           []*model.ActivityEntry{},
		PermissionRequests: []*model.PermissionRequest{},
		Instructions:       []*model.Instruction{},
	}
}

// Decode parses a persisted document. Empty input is the empty state; any
// other undecodable input is a CorruptStateError.
func Decode(data []byte, location string) (*Document, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return NewDocument(), nil
	}
	doc := &Document{}
	if err := json.Unmarshal(data, doc); err != nil {
		return nil, &model.CorruptStateError{Location: location, Err: err}
	}
	doc.normalize()
	return doc, nil
}

// Encode renders the document in its persisted form.
func Encode(doc *Document) ([]byte, error) {
	doc.normalize()
	return json.MarshalIndent(doc, "", "  ")
}

// Clone returns a deep copy.
func (d *Document) Clone() (*Document, error) {
	data, err := json.Marshal(d)
	if err != nil {
		return nil, err
	}
	return Decode(data, "clone")
}

// PermissionRequest returns the stored record with id or nil.
func (d *Document) PermissionRequest(id string) *model.PermissionRequest {
	for _, candidate := range d.PermissionRequests {
		if candidate.ID == id {
			return candidate
		}
	}
	return nil
}

func (d *Document) normalize() {
	if d.Activity == nil {
		d.Activity = []*model.ActivityEntry{}
	}
	if d.PermissionRequests == nil {
		d.PermissionRequests = []*model.PermissionRequest{}
	}
	if d.Instructions == nil {
		d.Instructions = []*model.Instruction{}
	}
}

type documentAlias Document

func (d *Document) MarshalJSON() ([]byte, error) {
	data, err := json.Marshal((*documentAlias)(d))
	if err != nil || len(d.extra) == 0 {
		return data, err
	}
	merged := map[string]json.RawMessage{}
	if err = json.Unmarshal(data, &merged); err != nil {
		return nil, err
	}
	for k, v := range d.extra {
		if !knownKeys[k] {
			merged[k] = v
		}
	}
	return json.Marshal(merged)
}

func (d *Document) UnmarshalJSON(data []byte) error {
	if err := json.Unmarshal(data, (*documentAlias)(d)); err != nil {
		return err
	}
	all := map[string]json.RawMessage{}
	if err := json.Unmarshal(data, &all); err != nil {
		return err
	}
	for k := range knownKeys {
		delete(all, k)
	}
	if len(all) > 0 {
		d.extra = all
	}
	return nil
}
