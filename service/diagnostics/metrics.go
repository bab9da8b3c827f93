package diagnostics

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics holds the pipeline instruments. A nil *Metrics records nothing.
type Metrics struct {
	dispatches       metric.Int64Counter
	dispatchDuration metric.Float64Histogram
	decisions        metric.Int64Counter
	transitions      metric.Int64Counter
}

// NewMetrics creates instruments on the global meter provider, so callers
// install an exporter (for example prometheus) before calling it.
func NewMetrics() (*Metrics, error) {
	return NewMetricsWithMeter(otel.Meter(instrumentationScope))
}

const instrumentationScope = "github.com/viant/exegol"

// NewMetricsWithMeter creates instruments on meter.
func NewMetricsWithMeter(meter metric.Meter) (*Metrics, error) {
	dispatches, err := meter.Int64Counter(
		"exegol.dispatch.total",
		metric.WithDescription("Dispatched actions by type and outcome"),
		metric.WithUnit("{action}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create dispatch counter: %w", err)
	}
	dispatchDuration, err := meter.Float64Histogram(
		"exegol.dispatch.duration",
		metric.WithDescription("Dispatch duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create dispatch histogram: %w", err)
	}
	decisions, err := meter.Int64Counter(
		"exegol.policy.decisions.total",
		metric.WithDescription("Policy decisions by action type and outcome"),
		metric.WithUnit("{decision}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create decision counter: %w", err)
	}
	transitions, err := meter.Int64Counter(
		"exegol.requests.transitions.total",
		metric.WithDescription("Permission request status transitions"),
		metric.WithUnit("{transition}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create transition counter: %w", err)
	}
	return &Metrics{
		dispatches:       dispatches,
		dispatchDuration: dispatchDuration,
		decisions:        decisions,
		transitions:      transitions,
	}, nil
}

// RecordDispatch records one dispatch.
func (m *Metrics) RecordDispatch(ctx context.Context, actionType, status string, elapsed time.Duration) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("action_type", actionType),
		attribute.String("status", status),
	)
	m.dispatches.Add(ctx, 1, attrs)
	m.dispatchDuration.Record(ctx, elapsed.Seconds(), attrs)
}

// RecordDecision records one policy evaluation.
func (m *Metrics) RecordDecision(ctx context.Context, actionType string, requiresApproval bool) {
	if m == nil {
		return
	}
	m.decisions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("action_type", actionType),
		attribute.Bool("requires_approval", requiresApproval),
	))
}

// RecordTransition records a permission request reaching status.
func (m *Metrics) RecordTransition(ctx context.Context, status string) {
	if m == nil {
		return
	}
	m.transitions.Add(ctx, 1, metric.WithAttributes(attribute.String("status", status)))
}
