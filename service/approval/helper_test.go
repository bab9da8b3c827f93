package approval_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/viant/exegol/model"
	"github.com/viant/exegol/service/approval"
	mqueue "github.com/viant/exegol/service/messaging/memory"
	"github.com/viant/exegol/service/state"
	"github.com/viant/exegol/service/state/memory"
)

type countingExecutor struct {
	calls atomic.Int32
	err   error
}

func (c *countingExecutor) Execute(_ context.Context, action *model.ActionRequest) (*model.ExecutionResult, error) {
	c.calls.Add(1)
	if c.err != nil {
		return nil, c.err
	}
	return &model.ExecutionResult{Status: model.ExecSuccess, Runner: "fake", Command: string(action.Type)}, nil
}

func newRequest(t *testing.T, agent, origin string) *approval.Request {
	t.Helper()
	action, err := model.NewCommitAction("Attempt demo git commit", model.CommitPayload{})
	require.NoError(t, err)
	return &approval.Request{
		Title:  "Git commit requested",
		Action: action,
		Agent:  model.AgentRef{Name: agent, Role: "builder"},
		Reason: "Commit allowed with approval.",
		Origin: origin,
	}
}

func TestStore_Decide(t *testing.T) {
	testCases := []struct {
		description  string
		approved     bool
		executorErr  error
		expectStatus model.Status
		expectCalls  int32
		expectErr    bool
	}{
		{description: "approve runs action", approved: true, expectStatus: model.StatusApproved, expectCalls: 1},
		{description: "deny skips action", approved: false, expectStatus: model.StatusDenied},
		{description: "approve with failing dispatch", approved: true, executorErr: errors.New("workspace missing"), expectStatus: model.StatusApproved, expectCalls: 1, expectErr: true},
	}

	for _, testCase := range testCases {
		t.Run(testCase.description, func(t *testing.T) {
			ctx := context.Background()
			store := state.New(memory.New())
			executor := &countingExecutor{err: testCase.executorErr}
			svc := approval.New(store, approval.WithExecutor(executor))

			id, err := svc.RequestApproval(ctx, newRequest(t, "Maul", "demo_flow"))
			require.NoError(t, err)

			decision, err := svc.Decide(ctx, id, testCase.approved, "operator")
			if testCase.expectErr {
				assert.Error(t, err)
			} else {
				require.NoError(t, err)
			}
			require.NotNil(t, decision)
			assert.Equal(t, testCase.expectStatus, decision.Status)
			assert.Equal(t, testCase.approved, decision.Approved())
			assert.Equal(t, testCase.expectCalls, executor.calls.Load())
			if testCase.expectCalls > 0 && testCase.executorErr == nil {
				require.NotNil(t, decision.Result)
				assert.Equal(t, model.ExecSuccess, decision.Result.Status)
			}

			stored, err := svc.Request(ctx, id)
			require.NoError(t, err)
			assert.Equal(t, testCase.expectStatus, stored.Status)
			require.NotNil(t, stored.ResolvedAt)

			_, err = svc.Decide(ctx, id, !testCase.approved, "second thoughts")
			assert.ErrorIs(t, err, model.ErrAlreadyResolved)
			assert.Equal(t, testCase.expectCalls, executor.calls.Load())
			stored, err = svc.Request(ctx, id)
			require.NoError(t, err)
			assert.Equal(t, testCase.expectStatus, stored.Status)

			entries, err := store.Activity(ctx, 0)
			require.NoError(t, err)
			require.Len(t, entries, 1)
			assert.Equal(t, "Git commit requested "+string(testCase.expectStatus), entries[0].Message)
		})
	}
}

// failingBackend fails the failOn-th write and delegates everything else.
type failingBackend struct {
	state.Backend
	writes atomic.Int32
	failOn int32
}

func (f *failingBackend) Transact(ctx context.Context, fn func(doc *state.Document) error) error {
	if f.writes.Add(1) == f.failOn {
		return errors.New("disk full")
	}
	return f.Backend.Transact(ctx, fn)
}

func TestStore_DecideDispatchesBeforeBookkeeping(t *testing.T) {
	ctx := context.Background()
	// writes: 1 create request, 2 status transition, 3 decision activity
	backend := &failingBackend{Backend: memory.New(), failOn: 3}
	executor := &countingExecutor{}
	svc := approval.New(state.New(backend), approval.WithExecutor(executor))

	id, err := svc.RequestApproval(ctx, newRequest(t, "Maul", "demo_flow"))
	require.NoError(t, err)

	decision, err := svc.Decide(ctx, id, true, "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
	require.NotNil(t, decision)
	require.NotNil(t, decision.Result)
	assert.Equal(t, model.ExecSuccess, decision.Result.Status)
	assert.Equal(t, int32(1), executor.calls.Load())

	stored, err := svc.Request(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, model.StatusApproved, stored.Status)

	_, err = svc.Decide(ctx, id, true, "")
	assert.ErrorIs(t, err, model.ErrAlreadyResolved)
	assert.Equal(t, int32(1), executor.calls.Load())
}

func TestStore_WithoutQueueNeverBlocks(t *testing.T) {
	ctx := context.Background()
	svc := approval.New(state.New(memory.New()))
	assert.Nil(t, svc.Queue())

	started := time.Now()
	for i := 0; i < 150; i++ {
		id, err := svc.RequestApproval(ctx, newRequest(t, "Maul", "test_audit"))
		require.NoError(t, err)
		_, err = svc.Decide(ctx, id, false, "")
		require.NoError(t, err)
	}
	assert.Less(t, time.Since(started), 2*time.Second)
}

func TestStore_DecideConcurrently(t *testing.T) {
	ctx := context.Background()
	executor := &countingExecutor{}
	svc := approval.New(state.New(memory.New()), approval.WithExecutor(executor))
	id, err := svc.RequestApproval(ctx, newRequest(t, "Maul", "demo_flow"))
	require.NoError(t, err)

	var wg sync.WaitGroup
	var winners atomic.Int32
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := svc.Decide(ctx, id, true, ""); err == nil {
				winners.Add(1)
			} else {
				assert.ErrorIs(t, err, model.ErrAlreadyResolved)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), winners.Load())
	assert.Equal(t, int32(1), executor.calls.Load())
}

func TestStore_Events(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	svc := approval.New(state.New(memory.New()), approval.WithQueue(mqueue.NewQueue[approval.Event](mqueue.DefaultConfig())))

	id, err := svc.RequestApproval(ctx, newRequest(t, "Maul", "demo_flow"))
	require.NoError(t, err)
	_, err = svc.Decide(ctx, id, false, "not today")
	require.NoError(t, err)

	msg, err := svc.Queue().Consume(ctx)
	require.NoError(t, err)
	assert.Equal(t, approval.TopicRequestCreated, msg.T().Topic)
	created, ok := msg.T().Data.(*model.PermissionRequest)
	require.True(t, ok)
	assert.Equal(t, id, created.ID)
	require.NoError(t, msg.Ack())

	msg, err = svc.Queue().Consume(ctx)
	require.NoError(t, err)
	assert.Equal(t, approval.TopicDecisionCreated, msg.T().Topic)
	decision, ok := msg.T().Data.(*approval.Decision)
	require.True(t, ok)
	assert.Equal(t, model.StatusDenied, decision.Status)
	assert.Equal(t, "not today", decision.Reason)
	require.NoError(t, msg.Ack())
}

func TestStore_ListPending(t *testing.T) {
	ctx := context.Background()
	svc := approval.New(state.New(memory.New()))
	first, err := svc.RequestApproval(ctx, newRequest(t, "Maul", "demo_flow"))
	require.NoError(t, err)
	second, err := svc.RequestApproval(ctx, newRequest(t, "Maul", "test_audit"))
	require.NoError(t, err)
	third, err := svc.RequestApproval(ctx, newRequest(t, "Vader", "test_audit"))
	require.NoError(t, err)
	_, err = svc.Decide(ctx, second, false, "")
	require.NoError(t, err)

	testCases := []struct {
		description string
		filters     []state.Filter
		expect      []string
	}{
		{description: "no filters", expect: []string{first, third}},
		{description: "by origin", filters: []state.Filter{state.WithOrigin("test_audit")}, expect: []string{third}},
		{description: "by agent", filters: []state.Filter{state.WithAgent("Maul")}, expect: []string{first}},
		{description: "by agent and origin", filters: []state.Filter{state.WithAgent("Maul"), state.WithOrigin("test_audit")}},
	}
	for _, testCase := range testCases {
		t.Run(testCase.description, func(t *testing.T) {
			pending, err := svc.ListPending(ctx, testCase.filters...)
			require.NoError(t, err)
			var ids []string
			for _, r := range pending {
				ids = append(ids, r.ID)
			}
			assert.Equal(t, testCase.expect, ids)
		})
	}
}

func TestAutoDecider(t *testing.T) {
	testCases := []struct {
		description string
		start       func(ctx context.Context, svc approval.Service) func()
		expect      model.Status
	}{
		{
			description: "auto approve",
			start: func(ctx context.Context, svc approval.Service) func() {
				return approval.AutoApprove(ctx, svc, 5*time.Millisecond)
			},
			expect: model.StatusApproved,
		},
		{
			description: "auto reject",
			start: func(ctx context.Context, svc approval.Service) func() {
				return approval.AutoReject(ctx, svc, "freeze window", 5*time.Millisecond)
			},
			expect: model.StatusDenied,
		},
	}

	for _, testCase := range testCases {
		t.Run(testCase.description, func(t *testing.T) {
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			executor := &countingExecutor{}
			svc := approval.New(state.New(memory.New()), approval.WithExecutor(executor))
			id, err := svc.RequestApproval(ctx, newRequest(t, "Maul", "demo_flow"))
			require.NoError(t, err)

			stop := testCase.start(ctx, svc)
			defer stop()

			resolved, err := approval.WaitForDecision(ctx, svc, id, time.Second)
			require.NoError(t, err)
			assert.Equal(t, testCase.expect, resolved.Status)
		})
	}
}

func TestWaitForDecision_Timeout(t *testing.T) {
	ctx := context.Background()
	svc := approval.New(state.New(memory.New()))
	id, err := svc.RequestApproval(ctx, newRequest(t, "Maul", "demo_flow"))
	require.NoError(t, err)

	_, err = approval.WaitForDecision(ctx, svc, id, 30*time.Millisecond)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	_, err = approval.WaitForDecision(ctx, svc, "missing", 30*time.Millisecond)
	assert.True(t, model.IsNotFound(err))
}
