// Package tracing wraps OpenTelemetry so that dispatches, state transitions
// and batch flows can be traced without the rest of the code base importing
// the upstream packages directly.  Spans are no-ops until Init or
// InitWithExporter installs a provider.
package tracing
