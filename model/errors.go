package model

import (
	"errors"
	"fmt"
)

// Sentinels matched with errors.Is against the typed errors below.
var (
	ErrConfiguration     = errors.New("configuration error")
	ErrNotFound          = errors.New("not found")
	ErrCorruptState      = errors.New("corrupt state")
	ErrUnsupportedAction = errors.New("unsupported action")
	ErrAlreadyResolved   = errors.New("already resolved")
)

// ConfigurationError reports a malformed source or a flow that cannot find an
// eligible agent.
type ConfigurationError struct {
	Source string
	Reason string
	Err    error
}

func (e *ConfigurationError) Error() string {
	msg := "configuration error"
	if e.Source != "" {
		msg += " in " + e.Source
	}
	msg += ": " + e.Reason
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

func (e *ConfigurationError) Is(target error) bool { return target == ErrConfiguration }

// NewConfigurationError creates a ConfigurationError.
func NewConfigurationError(source, reason string, err error) error {
	return &ConfigurationError{Source: source, Reason: reason, Err: err}
}

// NotFoundError reports an unknown identifier or a missing path.
type NotFoundError struct {
	Kind string
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Kind, e.ID)
}

func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

// NewNotFoundError creates a NotFoundError.
func NewNotFoundError(kind, id string) error {
	return &NotFoundError{Kind: kind, ID: id}
}

// CorruptStateError reports a persisted document that cannot be decoded.
type CorruptStateError struct {
	Location string
	Err      error
}

func (e *CorruptStateError) Error() string {
	return fmt.Sprintf("corrupt state at %s: %v", e.Location, e.Err)
}

func (e *CorruptStateError) Unwrap() error { return e.Err }

func (e *CorruptStateError) Is(target error) bool { return target == ErrCorruptState }

// UnsupportedActionError reports a dispatch of an action type with no runner.
type UnsupportedActionError struct {
	Type ActionType
}

func (e *UnsupportedActionError) Error() string {
	return fmt.Sprintf("unsupported action type: %q", string(e.Type))
}

func (e *UnsupportedActionError) Is(target error) bool { return target == ErrUnsupportedAction }

// ResolvedError reports an attempt to resolve a request that already reached a
// terminal status.
type ResolvedError struct {
	ID     string
	Status Status
}

func (e *ResolvedError) Error() string {
	return fmt.Sprintf("permission request %s already %s", e.ID, e.Status)
}

func (e *ResolvedError) Is(target error) bool { return target == ErrAlreadyResolved }

// IsConfiguration reports whether err is a ConfigurationError.
func IsConfiguration(err error) bool { return errors.Is(err, ErrConfiguration) }

// IsNotFound reports whether err is a NotFoundError.
func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }

// IsCorruptState reports whether err is a CorruptStateError.
func IsCorruptState(err error) bool { return errors.Is(err, ErrCorruptState) }
