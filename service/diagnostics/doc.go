// Package diagnostics owns the append-only ops.jsonl sink, the timers that
// wrap every dispatch, the OpenTelemetry metric instruments and the
// operator-facing slog logger.
package diagnostics
