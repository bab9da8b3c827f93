package state

import "context"

// FileName is the persisted document name used by file based backends.
const FileName = "runtime_state.json"

// Backend persists the Document.
type Backend interface {
	// Snapshot returns a private copy of the current document.
	Snapshot(ctx context.Context) (*Document, error)

	// Transact runs fn on the current document under an exclusive lock and
	// persists the result. An error from fn aborts without writing.
	Transact(ctx context.Context, fn func(doc *Document) error) error

	// Location describes where the document lives, for diagnostics.
	Location() string
}
