package state_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/viant/exegol/model"
	"github.com/viant/exegol/service/state"
	"github.com/viant/exegol/service/state/fs"
	"github.com/viant/exegol/service/state/memory"
	"github.com/viant/exegol/service/state/sqlite"
)

type backendFactory struct {
	name string
	// open returns a backend; calling it twice with the same dir simulates a
	// second process attached to the same state.
	open func(t *testing.T, dir string) state.Backend
}

func backends() []backendFactory {
	shared := map[string]*memory.Backend{}
	var sharedMu sync.Mutex
	return []backendFactory{
		{name: "fs", open: func(t *testing.T, dir string) state.Backend {
			backend, err := fs.New(context.Background(), dir)
			require.NoError(t, err)
			return backend
		}},
		{name: "sqlite", open: func(t *testing.T, dir string) state.Backend {
			backend, err := sqlite.New(context.Background(), dir)
			require.NoError(t, err)
			t.Cleanup(func() { _ = backend.Close() })
			return backend
		}},
		{name: "memory", open: func(t *testing.T, dir string) state.Backend {
			sharedMu.Lock()
			defer sharedMu.Unlock()
			if backend, ok := shared[dir]; ok {
				return backend
			}
			backend := memory.New()
			shared[dir] = backend
			return backend
		}},
	}
}

func newAction(t *testing.T) *model.ActionRequest {
	t.Helper()
	action, err := model.NewCommitAction("Commit changes for demo", model.CommitPayload{Repo: "demo-repo", Message: "demo commit"})
	require.NoError(t, err)
	return action
}

func TestService_PermissionRequestRoundTrip(t *testing.T) {
	for _, factory := range backends() {
		t.Run(factory.name, func(t *testing.T) {
			ctx := context.Background()
			dir := t.TempDir()
			srv := state.New(factory.open(t, dir))

			ids := make([]string, 0, 3)
			for i := 0; i < 3; i++ {
				id, err := srv.CreatePermissionRequest(ctx, &state.NewRequest{
					Title:  fmt.Sprintf("Git commit requested %d", i),
					Action: newAction(t),
					Agent:  model.AgentRef{Name: "maul", Role: "apprentice"},
					Reason: "Commit allowed with approval.",
					Origin: "demo_flow",
				})
				require.NoError(t, err)
				ids = append(ids, id)
			}
			assert.Len(t, map[string]bool{ids[0]: true, ids[1]: true, ids[2]: true}, 3)

			before, err := srv.PermissionRequests(ctx)
			require.NoError(t, err)

			reopened := state.New(factory.open(t, dir))
			after, err := reopened.PermissionRequests(ctx)
			require.NoError(t, err)
			require.Len(t, after, 3)
			for i, request := range after {
				assert.Equal(t, ids[i], request.ID)
				assert.Equal(t, model.StatusPending, request.Status)
				assert.Equal(t, "maul", request.Agent.Name)
				assert.Equal(t, "apprentice", request.Agent.Role)
				assert.Equal(t, "demo_flow", request.Origin)
				assert.Nil(t, request.ResolvedAt)
				assert.False(t, request.CreatedAt.IsZero())
				assert.EqualValues(t, newAction(t), &request.Action)
			}
			assert.EqualValues(t, before, after)
		})
	}
}

func TestService_UpdatePermissionRequestStatus(t *testing.T) {
	for _, factory := range backends() {
		t.Run(factory.name, func(t *testing.T) {
			ctx := context.Background()
			srv := state.New(factory.open(t, t.TempDir()))
			id, err := srv.CreatePermissionRequest(ctx, &state.NewRequest{Title: "t", Action: newAction(t), Origin: "test"})
			require.NoError(t, err)

			updated, err := srv.UpdatePermissionRequestStatus(ctx, id, model.StatusApproved)
			require.NoError(t, err)
			assert.Equal(t, model.StatusApproved, updated.Status)
			require.NotNil(t, updated.ResolvedAt)

			_, err = srv.UpdatePermissionRequestStatus(ctx, id, model.StatusDenied)
			assert.ErrorIs(t, err, model.ErrAlreadyResolved)
			stored, err := srv.PermissionRequest(ctx, id)
			require.NoError(t, err)
			assert.Equal(t, model.StatusApproved, stored.Status)

			_, err = srv.UpdatePermissionRequestStatus(ctx, "missing", model.StatusApproved)
			assert.ErrorIs(t, err, model.ErrNotFound)

			_, err = srv.UpdatePermissionRequestStatus(ctx, id, model.StatusPending)
			assert.Error(t, err)

			_, err = srv.PermissionRequest(ctx, "missing")
			assert.True(t, model.IsNotFound(err))
		})
	}
}

func TestService_ConcurrentAppends(t *testing.T) {
	for _, factory := range backends() {
		t.Run(factory.name, func(t *testing.T) {
			ctx := context.Background()
			dir := t.TempDir()
			first := state.New(factory.open(t, dir))
			second := state.New(factory.open(t, dir))

			const perWriter = 15
			wg := sync.WaitGroup{}
			for i := 0; i < perWriter; i++ {
				for w, srv := range []*state.Service{first, second} {
					wg.Add(1)
					go func(srv *state.Service, w, i int) {
						defer wg.Done()
						_, err := srv.AppendActivity(ctx, fmt.Sprintf("writer %d entry %d", w, i), nil)
						assert.NoError(t, err)
					}(srv, w, i)
				}
			}
			wg.Wait()

			entries, err := first.Activity(ctx, 0)
			require.NoError(t, err)
			assert.Len(t, entries, 2*perWriter)
			seen := map[string]bool{}
			for _, entry := range entries {
				seen[entry.Message] = true
			}
			assert.Len(t, seen, 2*perWriter)
		})
	}
}

func TestService_Filters(t *testing.T) {
	ctx := context.Background()
	srv := state.New(memory.New())
	for _, item := range []struct{ agent, origin string }{{"maul", "demo_flow"}, {"sidious", "test_audit"}, {"sidious", "test_audit"}} {
		_, err := srv.CreatePermissionRequest(ctx, &state.NewRequest{Title: "t", Action: newAction(t), Agent: model.AgentRef{Name: item.agent}, Origin: item.origin})
		require.NoError(t, err)
	}
	all, err := srv.PermissionRequests(ctx)
	require.NoError(t, err)
	_, err = srv.UpdatePermissionRequestStatus(ctx, all[1].ID, model.StatusDenied)
	require.NoError(t, err)

	testCases := []struct {
		description string
		filters     []state.Filter
		expect      int
	}{
		{description: "no filters", expect: 3},
		{description: "pending", filters: []state.Filter{state.WithStatus(model.StatusPending)}, expect: 2},
		{description: "origin", filters: []state.Filter{state.WithOrigin("test_audit")}, expect: 2},
		{description: "agent and status", filters: []state.Filter{state.WithAgent("sidious"), state.WithStatus(model.StatusPending)}, expect: 1},
	}
	for _, testCase := range testCases {
		t.Run(testCase.description, func(t *testing.T) {
			actual, err := srv.PermissionRequests(ctx, testCase.filters...)
			require.NoError(t, err)
			assert.Len(t, actual, testCase.expect)
		})
	}
}

func TestService_ActivityAndInstructions(t *testing.T) {
	ctx := context.Background()
	srv := state.New(memory.New())
	for i := 0; i < 5; i++ {
		_, err := srv.AppendActivity(ctx, fmt.Sprintf("entry %d", i), map[string]interface{}{"i": i})
		require.NoError(t, err)
	}
	last, err := srv.Activity(ctx, 2)
	require.NoError(t, err)
	require.Len(t, last, 2)
	assert.Equal(t, "entry 3", last[0].Message)
	assert.Equal(t, "entry 4", last[1].Message)

	require.NoError(t, srv.QueueInstruction(ctx, &model.Instruction{RepoPath: "/w/a", Task: "t1", Block: "b1"}))
	require.NoError(t, srv.QueueInstruction(ctx, &model.Instruction{RepoPath: "/w/b", Task: "t2", Block: "b2"}))
	instructions, err := srv.Instructions(ctx)
	require.NoError(t, err)
	require.Len(t, instructions, 2)
	assert.Equal(t, "t1", instructions[0].Task)
	assert.NotEmpty(t, instructions[1].ID)

	doc, err := srv.Load(ctx)
	require.NoError(t, err)
	assert.NotNil(t, doc.LastUpdated)
}

// rejectingBackend applies every mutation and then fails the write.
type rejectingBackend struct {
	state.Backend
}

func (r *rejectingBackend) Transact(ctx context.Context, fn func(doc *state.Document) error) error {
	return r.Backend.Transact(ctx, func(doc *state.Document) error {
		if err := fn(doc); err != nil {
			return err
		}
		return errors.New("disk full")
	})
}

func TestService_QueueInstructionWithActivity(t *testing.T) {
	ctx := context.Background()
	for _, factory := range backends() {
		t.Run(factory.name, func(t *testing.T) {
			backend := factory.open(t, t.TempDir())
			srv := state.New(backend)
			instruction := &model.Instruction{RepoPath: "/w/a", Task: "Add retries", Block: "b1", Agent: "Maul"}
			entry, err := srv.QueueInstructionWithActivity(ctx, instruction, "Instruction queued for a", map[string]interface{}{"repo_path": "/w/a"})
			require.NoError(t, err)
			assert.NotEmpty(t, instruction.ID)

			doc, err := srv.Load(ctx)
			require.NoError(t, err)
			require.Len(t, doc.Instructions, 1)
			require.Len(t, doc.Activity, 1)
			assert.Equal(t, "Maul", doc.Instructions[0].Agent)
			assert.Equal(t, entry.ID, doc.Activity[0].ID)

			failing := state.New(&rejectingBackend{Backend: backend})
			_, err = failing.QueueInstructionWithActivity(ctx, &model.Instruction{RepoPath: "/w/b", Task: "t2"}, "Instruction queued for b", nil)
			require.Error(t, err)
			doc, err = srv.Load(ctx)
			require.NoError(t, err)
			assert.Len(t, doc.Instructions, 1)
			assert.Len(t, doc.Activity, 1)
		})
	}
}

func TestFS_MissingAndCorrupt(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	backend, err := fs.New(ctx, dir)
	require.NoError(t, err)
	srv := state.New(backend)

	doc, err := srv.Load(ctx)
	require.NoError(t, err)
	assert.Empty(t, doc.Activity)
	assert.Empty(t, doc.PermissionRequests)

	location := filepath.Join(dir, state.FileName)
	require.NoError(t, os.WriteFile(location, []byte(`{"activity": [`), 0o644))

	_, err = srv.Load(ctx)
	assert.True(t, model.IsCorruptState(err))
	_, err = srv.AppendActivity(ctx, "should not land", nil)
	assert.ErrorIs(t, err, model.ErrCorruptState)

	data, err := os.ReadFile(location)
	require.NoError(t, err)
	assert.Equal(t, `{"activity": [`, string(data))
}

func TestFS_PreservesUnknownKeys(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	location := filepath.Join(dir, state.FileName)
	require.NoError(t, os.WriteFile(location, []byte(`{"activity": [], "permission_requests": [], "interview": {"answers": ["a", "b"]}}`), 0o644))

	backend, err := fs.New(ctx, dir)
	require.NoError(t, err)
	srv := state.New(backend)
	_, err = srv.AppendActivity(ctx, "hello", nil)
	require.NoError(t, err)

	data, err := os.ReadFile(location)
	require.NoError(t, err)
	raw := map[string]interface{}{}
	require.NoError(t, json.Unmarshal(data, &raw))
	assert.Equal(t, map[string]interface{}{"answers": []interface{}{"a", "b"}}, raw["interview"])
	assert.Len(t, raw["activity"], 1)
	assert.Contains(t, raw, "last_updated")

	matches, err := filepath.Glob(filepath.Join(dir, state.FileName+".tmp-*"))
	require.NoError(t, err)
	assert.Empty(t, matches)
}
