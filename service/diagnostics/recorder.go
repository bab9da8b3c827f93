package diagnostics

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/viant/exegol/tracing"
)

// FileName is the diagnostic sink file created under the log directory.
const FileName = "ops.jsonl"

const (
	StatusOK    = "ok"
	StatusError = "error"
)

// Recorder writes one JSON object per event to the diagnostic sink:
// {"event_type": ..., "timestamp": ..., <fields>}. A nil *Recorder discards.
type Recorder struct {
	logger  *slog.Logger
	closer  io.Closer
	metrics *Metrics
}

// Option customises a Recorder.
type Option func(r *Recorder)

// WithMetrics attaches a metrics collector.
func WithMetrics(metrics *Metrics) Option {
	return func(r *Recorder) { r.metrics = metrics }
}

// New creates a recorder writing to w.
func New(w io.Writer, options ...Option) *Recorder {
	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level:       slog.LevelDebug,
		ReplaceAttr: replaceAttr,
	})
	ret := &Recorder{logger: slog.New(handler)}
	for _, option := range options {
		option(ret)
	}
	return ret
}

// Open creates logDir when needed and appends to logDir/ops.jsonl.
func Open(logDir string, options ...Option) (*Recorder, error) {
	if err := os.MkdirAll(logDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create log dir %s: %w", logDir, err)
	}
	location := filepath.Join(logDir, FileName)
	f, err := os.OpenFile(location, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open diagnostic sink %s: %w", location, err)
	}
	ret := New(f, options...)
	ret.closer = f
	return ret, nil
}

// Nop returns a recorder that discards every event.
func Nop() *Recorder {
	return New(io.Discard)
}

func replaceAttr(groups []string, a slog.Attr) slog.Attr {
	if len(groups) > 0 {
		return a
	}
	switch a.Key {
	case slog.LevelKey:
		return slog.Attr{}
	case slog.MessageKey:
		a.Key = "event_type"
	case slog.TimeKey:
		a.Key = "timestamp"
		a.Value = slog.StringValue(a.Value.Time().UTC().Format(time.RFC3339Nano))
	}
	return a
}

// Emit writes a single event.
func (r *Recorder) Emit(ctx context.Context, eventType string, fields map[string]interface{}) {
	if r == nil || r.logger == nil {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}
	r.logger.LogAttrs(ctx, slog.LevelInfo, eventType, attrs(fields)...)
}

// Metrics returns the attached collector, possibly nil.
func (r *Recorder) Metrics() *Metrics {
	if r == nil {
		return nil
	}
	return r.metrics
}

// Close closes the underlying sink when the recorder owns it.
func (r *Recorder) Close() error {
	if r == nil || r.closer == nil {
		return nil
	}
	return r.closer.Close()
}

// Start opens a tracing span and a timer for an operation. Done emits the
// timed event with elapsed_ms and status.
func (r *Recorder) Start(ctx context.Context, eventType string, fields map[string]interface{}) (context.Context, *Timer) {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, span := tracing.StartSpan(ctx, eventType, "INTERNAL")
	copied := make(map[string]interface{}, len(fields)+3)
	for k, v := range fields {
		copied[k] = v
	}
	return ctx, &Timer{recorder: r, ctx: ctx, eventType: eventType, fields: copied, span: span, started: time.Now()}
}

// Timer measures one operation started with Recorder.Start.
type Timer struct {
	recorder  *Recorder
	ctx       context.Context
	eventType string
	fields    map[string]interface{}
	span      *tracing.Span
	started   time.Time
}

// Set adds a field to the event emitted by Done.
func (t *Timer) Set(key string, value interface{}) {
	t.fields[key] = value
}

// Done records the outcome and returns the elapsed time.
func (t *Timer) Done(err error) time.Duration {
	elapsed := time.Since(t.started)
	t.fields["elapsed_ms"] = float64(elapsed.Microseconds()) / 1000.0
	t.fields["status"] = StatusOK
	if err != nil {
		t.fields["status"] = StatusError
		t.fields["error"] = err.Error()
	}
	if traceID := t.span.TraceID(); traceID != "" {
		t.fields["trace_id"] = traceID
	}
	t.recorder.Emit(t.ctx, t.eventType, t.fields)
	tracing.EndSpan(t.span, err)
	return elapsed
}

func attrs(fields map[string]interface{}) []slog.Attr {
	if len(fields) == 0 {
		return nil
	}
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	ret := make([]slog.Attr, 0, len(keys))
	for _, k := range keys {
		ret = append(ret, slog.Any(k, fields[k]))
	}
	return ret
}
