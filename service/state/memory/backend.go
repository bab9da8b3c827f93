package memory

import (
	"context"
	"sync"

	"github.com/viant/exegol/service/state"
)

// Backend keeps the encoded document in memory. It shares the encode/decode
// path with durable backends so callers never alias stored values.
type Backend struct {
	mu   sync.Mutex
	data []byte
}

// New creates an empty in-memory backend.
func New() *Backend {
	return &Backend{}
}

func (b *Backend) Location() string { return "memory://state" }

func (b *Backend) Snapshot(ctx context.Context) (*state.Document, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return state.Decode(b.data, b.Location())
}

func (b *Backend) Transact(ctx context.Context, fn func(doc *state.Document) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	doc, err := state.Decode(b.data, b.Location())
	if err != nil {
		return err
	}
	if err = fn(doc); err != nil {
		return err
	}
	data, err := state.Encode(doc)
	if err != nil {
		return err
	}
	b.data = data
	return nil
}

var _ state.Backend = (*Backend)(nil)
