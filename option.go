package exegol

import (
	"log/slog"

	"github.com/viant/exegol/model"
	"github.com/viant/exegol/service/approval"
	"github.com/viant/exegol/service/diagnostics"
	"github.com/viant/exegol/service/messaging"
	"github.com/viant/exegol/service/runner"
	"github.com/viant/exegol/service/state"
	"github.com/viant/exegol/tracing"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// Option customises a Service.
type Option func(s *Service)

// WithConfig replaces the configuration; DefaultConfig(".") is used otherwise.
func WithConfig(config *Config) Option {
	return func(s *Service) { s.config = config }
}

// WithRecorder sets the diagnostics recorder instead of opening logDir/ops.jsonl.
func WithRecorder(recorder *diagnostics.Recorder) Option {
	return func(s *Service) { s.recorder = recorder }
}

// WithLogger sets the operator-facing logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

// WithAgents supplies the roster instead of loading the agents file.
func WithAgents(agents model.Agents) Option {
	return func(s *Service) { s.agents = agents }
}

// WithRunner replaces the test runner selected by the sandbox mode.
func WithRunner(r runner.Runner) Option {
	return func(s *Service) { s.runner = r }
}

// WithStateBackend replaces the state backend selected by the configuration.
func WithStateBackend(backend state.Backend) Option {
	return func(s *Service) { s.backend = backend }
}

// WithApprovalQueue publishes approval events on queue. The caller must
// consume it; without this option no events are published.
func WithApprovalQueue(queue messaging.Queue[approval.Event]) Option {
	return func(s *Service) { s.approvalQueue = queue }
}

// WithMetrics attaches metric instruments to the recorder opened by New.
func WithMetrics(metrics *diagnostics.Metrics) Option {
	return func(s *Service) { s.metrics = metrics }
}

// WithTracing configures OpenTelemetry tracing. If outputFile is empty the
// stdout exporter is used. The first successful initialisation wins.
func WithTracing(serviceName, serviceVersion, outputFile string) Option {
	return func(s *Service) {
		_ = tracing.Init(serviceName, serviceVersion, outputFile)
	}
}

// WithTracingExporter configures OpenTelemetry tracing using a custom SpanExporter.
func WithTracingExporter(serviceName, serviceVersion string, exporter sdktrace.SpanExporter) Option {
	return func(s *Service) {
		_ = tracing.InitWithExporter(serviceName, serviceVersion, exporter)
	}
}
