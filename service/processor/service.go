package processor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/viant/exegol/model"
	"github.com/viant/exegol/service/diagnostics"
	"github.com/viant/exegol/service/dispatcher"
	"github.com/viant/exegol/service/messaging"
	"github.com/viant/exegol/tracing"
)

// ErrShutdown is returned to waiters whose job never ran.
var ErrShutdown = errors.New("processor shut down")

// Config represents processor configuration.
type Config struct {
	// WorkerCount is the number of workers dispatching jobs.
	WorkerCount int

	// MaxJobRetries is how many times a job whose dispatch returned an error
	// is attempted again. Errors classified by the model are never retried.
	MaxJobRetries int

	// RetryDelay is the delay between job attempts.
	RetryDelay time.Duration
}

// DefaultConfig returns the default processor configuration.
func DefaultConfig() Config {
	return Config{
		WorkerCount:   4,
		MaxJobRetries: 0,
		RetryDelay:    time.Second,
	}
}

// Job is one queued dispatch.
type Job struct {
	ID       string               `json:"id"`
	Action   *model.ActionRequest `json:"action"`
	Attempts int                  `json:"attempts"`
}

// Outcome is the settled result of a Job.
type Outcome struct {
	JobID    string
	Result   *model.ExecutionResult
	Err      error
	Attempts int
}

// Wait blocks for a submitted job's outcome for at most timeout.
type Wait func(timeout time.Duration) (*Outcome, error)

// Service dispatches queued jobs on a worker pool.
type Service struct {
	config   Config
	queue    messaging.Queue[Job]
	executor dispatcher.Executor
	logger   *slog.Logger

	mu      sync.Mutex
	waiters map[string]chan *Outcome

	workers    []*worker
	workerWg   sync.WaitGroup
	shutdownCh chan struct{}
	once       sync.Once
}

type worker struct {
	id       int
	service  *Service
	ctx      context.Context
	cancelFn context.CancelFunc
}

// New creates a processor Service.
func New(options ...Option) (*Service, error) {
	s := &Service{
		config:     DefaultConfig(),
		waiters:    map[string]chan *Outcome{},
		shutdownCh: make(chan struct{}),
	}
	for _, opt := range options {
		opt(s)
	}
	if s.executor == nil {
		return nil, fmt.Errorf("executor is required")
	}
	if s.queue == nil {
		return nil, fmt.Errorf("message queue is required")
	}
	if s.config.WorkerCount <= 0 {
		s.config.WorkerCount = 1
	}
	if s.logger == nil {
		s.logger = diagnostics.NopLogger()
	}
	return s, nil
}

// Start launches the workers.
func (s *Service) Start(ctx context.Context) error {
	for i := 0; i < s.config.WorkerCount; i++ {
		workerCtx, cancel := context.WithCancel(ctx)
		w := &worker{id: i, service: s, ctx: workerCtx, cancelFn: cancel}
		s.workers = append(s.workers, w)
		s.workerWg.Add(1)
		go w.run()
	}
	return nil
}

func (w *worker) run() {
	defer w.service.workerWg.Done()
	for {
		msg, err := w.service.queue.Consume(w.ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, messaging.ErrClosed) {
				return
			}
			select {
			case <-w.ctx.Done():
				return
			case <-time.After(100 * time.Millisecond):
			}
			continue
		}
		if msg == nil {
			continue
		}
		if pErr := w.service.processMessage(w.ctx, msg); pErr != nil {
			w.service.logger.Error("failed to process job", "worker", w.id, "error", pErr)
		}
	}
}

// Submit queues action and returns a Wait for its outcome.
func (s *Service) Submit(ctx context.Context, action *model.ActionRequest) (Wait, error) {
	jobID, done, err := s.enqueue(ctx, action)
	if err != nil {
		return nil, err
	}
	return func(timeout time.Duration) (*Outcome, error) {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		select {
		case outcome := <-done:
			return outcome, nil
		case <-s.shutdownCh:
			return nil, ErrShutdown
		case <-timer.C:
			return nil, fmt.Errorf("job %s: no outcome after %s", jobID, timeout)
		}
	}, nil
}

// Execute submits action and waits for it while ctx is live. A cancelled
// ctx releases the caller; the job itself may still run.
func (s *Service) Execute(ctx context.Context, action *model.ActionRequest) (*model.ExecutionResult, error) {
	jobID, done, err := s.enqueue(ctx, action)
	if err != nil {
		return nil, err
	}
	select {
	case outcome := <-done:
		return outcome.Result, outcome.Err
	case <-s.shutdownCh:
		return nil, ErrShutdown
	case <-ctx.Done():
		s.forget(jobID)
		return nil, fmt.Errorf("job %s: %w", jobID, ctx.Err())
	}
}

func (s *Service) enqueue(ctx context.Context, action *model.ActionRequest) (string, chan *Outcome, error) {
	if action == nil {
		return "", nil, fmt.Errorf("action was nil")
	}
	job := &Job{ID: uuid.New().String(), Action: action}
	done := make(chan *Outcome, 1)
	s.mu.Lock()
	s.waiters[job.ID] = done
	s.mu.Unlock()
	if err := s.queue.Publish(ctx, job); err != nil {
		s.forget(job.ID)
		return "", nil, fmt.Errorf("failed to queue %s job: %w", action.Type, err)
	}
	return job.ID, done, nil
}

// forget drops a waiter nobody listens to anymore; settle skips unknown jobs.
func (s *Service) forget(jobID string) {
	s.mu.Lock()
	delete(s.waiters, jobID)
	s.mu.Unlock()
}

func (s *Service) processMessage(ctx context.Context, message messaging.Message[Job]) (err error) {
	job := message.T()
	ctx, span := tracing.StartSpan(ctx, "processor.job "+string(job.Action.Type), "INTERNAL")
	defer func() { tracing.EndSpan(span, err) }()
	span.WithAttributes(map[string]string{"job.id": job.ID})

	result, execErr := s.dispatch(ctx, job.Action)
	job.Attempts++
	if execErr != nil && s.shouldRetry(execErr, job.Attempts) {
		retry := *job
		go func() {
			select {
			case <-time.After(s.config.RetryDelay):
			case <-s.shutdownCh:
				return
			}
			if pubErr := s.queue.Publish(context.Background(), &retry); pubErr != nil {
				s.settle(&Outcome{JobID: retry.ID, Err: execErr, Attempts: retry.Attempts})
			}
		}()
		return message.Ack()
	}
	s.settle(&Outcome{JobID: job.ID, Result: result, Err: execErr, Attempts: job.Attempts})
	if execErr != nil {
		err = execErr
	}
	if ackErr := message.Ack(); ackErr != nil {
		return ackErr
	}
	return err
}

func (s *Service) dispatch(ctx context.Context, action *model.ActionRequest) (result *model.ExecutionResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			result = nil
			err = fmt.Errorf("dispatch of %s panicked: %v", action.Type, r)
		}
	}()
	return s.executor.Execute(ctx, action)
}

func (s *Service) shouldRetry(err error, attempts int) bool {
	if attempts > s.config.MaxJobRetries {
		return false
	}
	for _, permanent := range []error{model.ErrNotFound, model.ErrUnsupportedAction, model.ErrConfiguration, model.ErrCorruptState} {
		if errors.Is(err, permanent) {
			return false
		}
	}
	return true
}

func (s *Service) settle(outcome *Outcome) {
	s.mu.Lock()
	done, ok := s.waiters[outcome.JobID]
	delete(s.waiters, outcome.JobID)
	s.mu.Unlock()
	if ok {
		done <- outcome
	}
}

// Shutdown stops the workers. Waiters of jobs that never ran get ErrShutdown.
func (s *Service) Shutdown() {
	s.once.Do(func() {
		close(s.shutdownCh)
		for _, w := range s.workers {
			w.cancelFn()
		}
		s.workerWg.Wait()
	})
}

var _ dispatcher.Executor = (*Service)(nil)
