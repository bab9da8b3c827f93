package fs

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"sync"

	"github.com/viant/afs"
	"github.com/viant/afs/file"
	"github.com/viant/exegol/internal/idgen"
	"github.com/viant/exegol/service/state"
)

const lockFileName = "runtime_state.lock"

// Backend stores the document as a JSON file under a state directory.
// Writers in this process are serialised by a mutex; writers in other
// processes by an advisory lock on a sibling lock file.
type Backend struct {
	dir      string
	location string
	lockPath string
	fs       afs.Service
	mu       sync.Mutex
}

// New creates the state directory when needed.
func New(ctx context.Context, dir string) (*Backend, error) {
	fs := afs.New()
	exists, _ := fs.Exists(ctx, dir)
	if !exists {
		if err := fs.Create(ctx, dir, file.DefaultDirOsMode, true); err != nil {
			return nil, fmt.Errorf("failed to create state dir %s: %w", dir, err)
		}
	}
	return &Backend{
		dir:      dir,
		location: path.Join(dir, state.FileName),
		lockPath: path.Join(dir, lockFileName),
		fs:       fs,
	}, nil
}

func (b *Backend) Location() string { return b.location }

func (b *Backend) Snapshot(ctx context.Context) (*state.Document, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	unlock, err := lockFile(b.lockPath)
	if err != nil {
		return nil, err
	}
	defer unlock()
	return b.read(ctx)
}

func (b *Backend) Transact(ctx context.Context, fn func(doc *state.Document) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	unlock, err := lockFile(b.lockPath)
	if err != nil {
		return err
	}
	defer unlock()

	doc, err := b.read(ctx)
	if err != nil {
		return err
	}
	if err = fn(doc); err != nil {
		return err
	}
	return b.write(ctx, doc)
}

func (b *Backend) read(ctx context.Context) (*state.Document, error) {
	exists, err := b.fs.Exists(ctx, b.location)
	if err != nil {
		return nil, fmt.Errorf("failed to check state %s: %w", b.location, err)
	}
	if !exists {
		return state.NewDocument(), nil
	}
	data, err := b.fs.DownloadWithURL(ctx, b.location)
	if err != nil {
		return nil, fmt.Errorf("failed to read state %s: %w", b.location, err)
	}
	return state.Decode(data, b.location)
}

// write replaces the document through a temp sibling so readers never see a
// partial file.
func (b *Backend) write(ctx context.Context, doc *state.Document) error {
	data, err := state.Encode(doc)
	if err != nil {
		return fmt.Errorf("failed to encode state: %w", err)
	}
	tmp := b.location + ".tmp-" + idgen.New()
	if err = b.fs.Upload(ctx, tmp, file.DefaultFileOsMode, bytes.NewReader(data)); err != nil {
		_ = b.fs.Delete(ctx, tmp)
		return fmt.Errorf("failed to write state %s: %w", tmp, err)
	}
	if err = b.fs.Move(ctx, tmp, b.location); err != nil {
		_ = b.fs.Delete(ctx, tmp)
		return fmt.Errorf("failed to replace state %s: %w", b.location, err)
	}
	return nil
}

var _ state.Backend = (*Backend)(nil)
