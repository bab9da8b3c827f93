package exegol

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/viant/exegol/model"
	"github.com/viant/exegol/policy"
	"github.com/viant/exegol/service/agents"
	"github.com/viant/exegol/service/approval"
	"github.com/viant/exegol/service/diagnostics"
	"github.com/viant/exegol/service/dispatcher"
	"github.com/viant/exegol/service/messaging"
	"github.com/viant/exegol/service/messaging/memory"
	"github.com/viant/exegol/service/orchestrator"
	"github.com/viant/exegol/service/processor"
	"github.com/viant/exegol/service/runner"
	"github.com/viant/exegol/service/state"
	fsstate "github.com/viant/exegol/service/state/fs"
	"github.com/viant/exegol/service/state/sqlite"
	"github.com/viant/exegol/tracing"
)

// Service wires the pipeline together: state store, dispatcher, approvals and,
// once agents are needed, the orchestrator.
type Service struct {
	config     *Config
	logger     *slog.Logger
	recorder   *diagnostics.Recorder
	metrics    *diagnostics.Metrics
	backend    state.Backend
	store      *state.Service
	runner     runner.Runner
	dispatcher *dispatcher.Service
	processor  *processor.Service
	executor   dispatcher.Executor
	approvals  *approval.Store
	// approvalQueue is optional; approvals publish nothing without it
	approvalQueue messaging.Queue[approval.Event]
	agents     model.Agents
	closers    []func() error

	mux          sync.Mutex
	orchestrator *orchestrator.Service
	shutdownOnce sync.Once
}

// New creates a Service. Agents are not read here, so request commands work
// without an agents file.
func New(ctx context.Context, options ...Option) (*Service, error) {
	s := &Service{}
	for _, option := range options {
		option(s)
	}
	if err := s.init(ctx); err != nil {
		_ = s.Shutdown(ctx)
		return nil, err
	}
	return s, nil
}

func (s *Service) init(ctx context.Context) error {
	if s.config == nil {
		s.config = DefaultConfig(".")
	}
	if err := s.config.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if s.logger == nil {
		s.logger = diagnostics.NewLogger(diagnostics.LogConfig{Level: s.config.LogLevel})
	}
	if s.recorder == nil {
		var recorderOptions []diagnostics.Option
		if s.metrics != nil {
			recorderOptions = append(recorderOptions, diagnostics.WithMetrics(s.metrics))
		}
		recorder, err := diagnostics.Open(s.config.LogDir, recorderOptions...)
		if err != nil {
			return err
		}
		s.recorder = recorder
		s.closers = append(s.closers, recorder.Close)
	}
	if s.backend == nil {
		backend, err := s.openBackend(ctx)
		if err != nil {
			return err
		}
		s.backend = backend
	}
	s.store = state.New(s.backend, state.WithRecorder(s.recorder))

	if s.runner == nil {
		r, err := runner.New(s.config.SandboxMode,
			runner.WithImage(s.config.SandboxImage),
			runner.WithTimeout(s.config.SandboxTimeout),
			runner.WithRecorder(s.recorder))
		if err != nil {
			return err
		}
		s.runner = r
	}
	s.dispatcher = dispatcher.New(s.store,
		dispatcher.WithRunner(s.runner),
		dispatcher.WithWorkspaceRoot(s.config.WorkspaceDir),
		dispatcher.WithRecorder(s.recorder))
	s.executor = s.dispatcher

	if s.config.Workers > 0 {
		queue := memory.NewQueue[processor.Job](memory.DefaultConfig())
		pool, err := processor.New(
			processor.WithExecutor(s.dispatcher),
			processor.WithMessageQueue(queue),
			processor.WithWorkers(s.config.Workers),
			processor.WithLogger(s.logger))
		if err != nil {
			return err
		}
		if err = pool.Start(context.WithoutCancel(ctx)); err != nil {
			return err
		}
		s.processor = pool
		s.executor = pool
		s.closers = append(s.closers, func() error {
			pool.Shutdown()
			return queue.Close()
		})
	}
	approvalOptions := []approval.Option{approval.WithExecutor(s.executor), approval.WithRecorder(s.recorder)}
	if s.approvalQueue != nil {
		approvalOptions = append(approvalOptions, approval.WithQueue(s.approvalQueue))
	}
	s.approvals = approval.New(s.store, approvalOptions...)
	s.logger.Debug("pipeline ready",
		"state", s.store.Location(),
		"runner", s.runner.Name(),
		"workers", s.config.Workers)
	return nil
}

func (s *Service) openBackend(ctx context.Context) (state.Backend, error) {
	switch s.config.StateBackend {
	case BackendSQLite:
		backend, err := sqlite.New(ctx, s.config.StateDir)
		if err != nil {
			return nil, err
		}
		s.closers = append(s.closers, backend.Close)
		return backend, nil
	default:
		return fsstate.New(ctx, s.config.StateDir)
	}
}

// Config returns the effective configuration.
func (s *Service) Config() *Config { return s.config }

// State returns the state store.
func (s *Service) State() *state.Service { return s.store }

// Approvals returns the approval service.
func (s *Service) Approvals() approval.Service { return s.approvals }

// Executor returns what runs approved actions: the dispatcher, or the worker
// pool when workers are configured.
func (s *Service) Executor() dispatcher.Executor { return s.executor }

// Recorder returns the diagnostics recorder.
func (s *Service) Recorder() *diagnostics.Recorder { return s.recorder }

// Logger returns the operator-facing logger.
func (s *Service) Logger() *slog.Logger { return s.logger }

// Orchestrator returns the orchestrator, loading the agent roster on first use.
func (s *Service) Orchestrator(ctx context.Context) (*orchestrator.Service, error) {
	s.mux.Lock()
	defer s.mux.Unlock()
	if s.orchestrator != nil {
		return s.orchestrator, nil
	}
	if s.agents == nil {
		roster, err := agents.New().Load(ctx, s.config.AgentsPath)
		if err != nil {
			return nil, err
		}
		s.agents = roster
	}
	evaluator := policy.New(
		policy.WithPolicy(policy.FromConfig(s.config.Policy)),
		policy.WithRecorder(s.recorder))
	s.orchestrator = orchestrator.New(s.store, s.agents,
		orchestrator.WithEvaluator(evaluator),
		orchestrator.WithExecutor(s.executor),
		orchestrator.WithApprovals(s.approvals),
		orchestrator.WithRecorder(s.recorder),
		orchestrator.WithWorkspaceRoot(s.config.WorkspaceDir),
		orchestrator.WithDemoAgent(s.config.DemoAgent),
		orchestrator.WithTestCommand(s.config.TestCommand),
		orchestrator.WithConcurrency(s.config.Concurrency))
	return s.orchestrator, nil
}

// Resolve moves a pending request to approved or denied. Approving dispatches
// the request's action exactly once.
func (s *Service) Resolve(ctx context.Context, id string, status model.Status, reason string) (*approval.Decision, error) {
	if !status.Terminal() {
		return nil, fmt.Errorf("request %s: cannot resolve to %q", id, status)
	}
	return s.approvals.Decide(ctx, id, status == model.StatusApproved, reason)
}

// Shutdown stops the worker pool and releases the recorder and backend.
func (s *Service) Shutdown(ctx context.Context) error {
	var errs []error
	s.shutdownOnce.Do(func() {
		for i := len(s.closers) - 1; i >= 0; i-- {
			if err := s.closers[i](); err != nil {
				errs = append(errs, err)
			}
		}
		if err := tracing.Shutdown(ctx); err != nil {
			errs = append(errs, err)
		}
	})
	return errors.Join(errs...)
}
