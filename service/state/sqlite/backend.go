package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/viant/exegol/service/state"
	_ "modernc.org/sqlite"
)

// FileName is the database created under the state directory.
const FileName = "runtime_state.db"

const schema = `CREATE TABLE IF NOT EXISTS runtime_state (
	id         INTEGER PRIMARY KEY CHECK (id = 1),
	document   TEXT NOT NULL,
	updated_at TEXT NOT NULL
)`

// Backend stores the document as a single row. Each Transact is one
// immediate SQL transaction; busy_timeout lets concurrent processes queue on
// the write lock.
type Backend struct {
	db       *sql.DB
	location string
	mu       sync.Mutex
}

// New opens (and creates when needed) dir/runtime_state.db.
func New(ctx context.Context, dir string) (*Backend, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create state dir %s: %w", dir, err)
	}
	location := filepath.Join(dir, FileName)
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", location)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", location, err)
	}
	db.SetMaxOpenConns(1)
	if _, err = db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to migrate %s: %w", location, err)
	}
	return &Backend{db: db, location: location}, nil
}

func (b *Backend) Location() string { return b.location }

// Close releases the database handle.
func (b *Backend) Close() error { return b.db.Close() }

func (b *Backend) Snapshot(ctx context.Context) (*state.Document, error) {
	var data string
	err := b.db.QueryRowContext(ctx, `SELECT document FROM runtime_state WHERE id = 1`).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return state.NewDocument(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read state %s: %w", b.location, err)
	}
	return state.Decode([]byte(data), b.location)
}

// Transact holds the database write lock from the first read, so a writer in
// another process can never interleave between read and write.
func (b *Backend) Transact(ctx context.Context, fn func(doc *state.Document) error) (err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	conn, err := b.db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("failed to acquire state connection: %w", err)
	}
	defer conn.Close()
	if _, err = conn.ExecContext(ctx, "BEGIN IMMEDIATE"); err != nil {
		return fmt.Errorf("failed to begin state transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_, _ = conn.ExecContext(context.Background(), "ROLLBACK")
		}
	}()

	doc := state.NewDocument()
	var data string
	switch scanErr := conn.QueryRowContext(ctx, `SELECT document FROM runtime_state WHERE id = 1`).Scan(&data); {
	case errors.Is(scanErr, sql.ErrNoRows):
	case scanErr != nil:
		return fmt.Errorf("failed to read state %s: %w", b.location, scanErr)
	default:
		if doc, err = state.Decode([]byte(data), b.location); err != nil {
			return err
		}
	}
	if err = fn(doc); err != nil {
		return err
	}
	encoded, err := state.Encode(doc)
	if err != nil {
		return fmt.Errorf("failed to encode state: %w", err)
	}
	_, err = conn.ExecContext(ctx, `INSERT INTO runtime_state (id, document, updated_at) VALUES (1, ?, ?)
ON CONFLICT(id) DO UPDATE SET document = excluded.document, updated_at = excluded.updated_at`,
		string(encoded), time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("failed to write state %s: %w", b.location, err)
	}
	if _, err = conn.ExecContext(ctx, "COMMIT"); err != nil {
		return fmt.Errorf("failed to commit state %s: %w", b.location, err)
	}
	return nil
}

var _ state.Backend = (*Backend)(nil)
