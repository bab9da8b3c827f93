package processor

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/viant/exegol/model"
	"github.com/viant/exegol/service/messaging/memory"
)

type scriptedExecutor struct {
	calls   atomic.Int32
	failFor int32
	err     error
	panics  bool
}

func (e *scriptedExecutor) Execute(_ context.Context, action *model.ActionRequest) (*model.ExecutionResult, error) {
	call := e.calls.Add(1)
	if e.panics {
		panic("runner exploded")
	}
	if call <= e.failFor {
		return nil, e.err
	}
	return &model.ExecutionResult{Status: model.ExecQueued, Runner: "instruction", Workspace: action.InstructionPayload().RepoPath}, nil
}

func instruction(t *testing.T) *model.ActionRequest {
	t.Helper()
	action, err := model.NewInstructionAction("Queue edit", model.InstructionPayload{RepoPath: "/work/alpha", Task: "Add retries"})
	require.NoError(t, err)
	return action
}

func TestService_Execute(t *testing.T) {
	testCases := []struct {
		description  string
		executor     *scriptedExecutor
		config       Config
		expectStatus model.ExecStatus
		expectErr    string
		expectCalls  int32
	}{
		{
			description:  "dispatches on a worker",
			executor:     &scriptedExecutor{},
			config:       Config{WorkerCount: 2},
			expectStatus: model.ExecQueued,
			expectCalls:  1,
		},
		{
			description:  "transient error retried",
			executor:     &scriptedExecutor{failFor: 1, err: errors.New("state locked")},
			config:       Config{WorkerCount: 1, MaxJobRetries: 2, RetryDelay: 5 * time.Millisecond},
			expectStatus: model.ExecQueued,
			expectCalls:  2,
		},
		{
			description: "retries exhausted",
			executor:    &scriptedExecutor{failFor: 10, err: errors.New("state locked")},
			config:      Config{WorkerCount: 1, MaxJobRetries: 1, RetryDelay: 5 * time.Millisecond},
			expectErr:   "state locked",
			expectCalls: 2,
		},
		{
			description: "not found never retried",
			executor:    &scriptedExecutor{failFor: 10, err: model.NewNotFoundError("workspace", "/work/alpha")},
			config:      Config{WorkerCount: 1, MaxJobRetries: 3, RetryDelay: 5 * time.Millisecond},
			expectErr:   "/work/alpha",
			expectCalls: 1,
		},
		{
			description: "panic recovered",
			executor:    &scriptedExecutor{panics: true},
			config:      Config{WorkerCount: 1},
			expectErr:   "panicked: runner exploded",
			expectCalls: 1,
		},
	}

	for _, testCase := range testCases {
		t.Run(testCase.description, func(t *testing.T) {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			queue := memory.NewQueue[Job](memory.DefaultConfig())
			service, err := New(WithMessageQueue(queue), WithExecutor(testCase.executor), WithConfig(testCase.config))
			require.NoError(t, err)
			require.NoError(t, service.Start(ctx))
			defer service.Shutdown()

			result, err := service.Execute(ctx, instruction(t))
			if testCase.expectErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), testCase.expectErr)
			} else {
				require.NoError(t, err)
				assert.Equal(t, testCase.expectStatus, result.Status)
			}
			assert.Equal(t, testCase.expectCalls, testCase.executor.calls.Load())
		})
	}
}

func TestService_SubmitWait(t *testing.T) {
	ctx := context.Background()
	queue := memory.NewQueue[Job](memory.DefaultConfig())
	service, err := New(WithMessageQueue(queue), WithExecutor(&scriptedExecutor{}))
	require.NoError(t, err)

	wait, err := service.Submit(ctx, instruction(t))
	require.NoError(t, err)
	_, err = wait(20 * time.Millisecond)
	assert.Error(t, err)

	require.NoError(t, service.Start(ctx))
	outcome, err := wait(time.Second)
	require.NoError(t, err)
	assert.Equal(t, 1, outcome.Attempts)
	assert.Equal(t, model.ExecQueued, outcome.Result.Status)

	service.Shutdown()
	_, err = service.Submit(ctx, nil)
	assert.Error(t, err)
}

type blockingExecutor struct {
	started chan struct{}
	release chan struct{}
}

func (e *blockingExecutor) Execute(_ context.Context, _ *model.ActionRequest) (*model.ExecutionResult, error) {
	close(e.started)
	<-e.release
	return &model.ExecutionResult{Status: model.ExecSuccess}, nil
}

func TestService_ExecuteCancelled(t *testing.T) {
	executor := &blockingExecutor{started: make(chan struct{}), release: make(chan struct{})}
	queue := memory.NewQueue[Job](memory.DefaultConfig())
	service, err := New(WithMessageQueue(queue), WithExecutor(executor))
	require.NoError(t, err)
	require.NoError(t, service.Start(context.Background()))
	defer service.Shutdown()
	defer close(executor.release)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-executor.started
		cancel()
	}()
	started := time.Now()
	result, err := service.Execute(ctx, instruction(t))
	assert.Nil(t, result)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Less(t, time.Since(started), time.Second)

	service.mu.Lock()
	assert.Empty(t, service.waiters)
	service.mu.Unlock()
}

func TestNew_Validation(t *testing.T) {
	_, err := New(WithExecutor(&scriptedExecutor{}))
	assert.EqualError(t, err, "message queue is required")
	_, err = New(WithMessageQueue(memory.NewQueue[Job](memory.DefaultConfig())))
	assert.EqualError(t, err, "executor is required")
}
