package processor

import (
	"log/slog"

	"github.com/viant/exegol/service/dispatcher"
	"github.com/viant/exegol/service/messaging"
)

// Option customises a Service.
type Option func(*Service)

// WithMessageQueue sets the job queue.
func WithMessageQueue(queue messaging.Queue[Job]) Option {
	return func(s *Service) {
		s.queue = queue
	}
}

// WithExecutor sets the executor jobs are dispatched to.
func WithExecutor(executor dispatcher.Executor) Option {
	return func(s *Service) {
		s.executor = executor
	}
}

// WithWorkers sets the number of worker goroutines.
func WithWorkers(count int) Option {
	return func(s *Service) {
		s.config.WorkerCount = count
	}
}

// WithLogger sets the logger for worker failures.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

// WithConfig sets the configuration for the service.
func WithConfig(config Config) Option {
	return func(s *Service) {
		s.config = config
	}
}
