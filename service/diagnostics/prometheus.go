package diagnostics

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/prometheus"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// MetricsPath is where ServePrometheus exposes the scrape endpoint.
const MetricsPath = "/metrics"

// PrometheusServer exposes pipeline metrics for scraping.
type PrometheusServer struct {
	server   *http.Server
	provider *sdkmetric.MeterProvider
	metrics  *Metrics
}

// ServePrometheus installs a prometheus-backed meter provider and serves it on
// addr in the background.
func ServePrometheus(addr string, logger *slog.Logger) (*PrometheusServer, error) {
	if logger == nil {
		logger = NopLogger()
	}
	exporter, err := prometheus.New()
	if err != nil {
		return nil, fmt.Errorf("failed to create prometheus exporter: %w", err)
	}
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter))
	otel.SetMeterProvider(provider)
	metrics, err := NewMetricsWithMeter(provider.Meter(instrumentationScope))
	if err != nil {
		_ = provider.Shutdown(context.Background())
		return nil, err
	}
	mux := http.NewServeMux()
	mux.Handle(MetricsPath, promhttp.Handler())
	ret := &PrometheusServer{
		server:   &http.Server{Addr: addr, Handler: mux},
		provider: provider,
		metrics:  metrics,
	}
	go func() {
		logger.Info("serving metrics", "addr", addr, "path", MetricsPath)
		if err := ret.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server stopped", "error", err)
		}
	}()
	return ret, nil
}

// Metrics returns the instruments registered on the prometheus provider.
func (p *PrometheusServer) Metrics() *Metrics { return p.metrics }

// Shutdown stops the HTTP server and the meter provider.
func (p *PrometheusServer) Shutdown(ctx context.Context) error {
	return errors.Join(p.server.Shutdown(ctx), p.provider.Shutdown(ctx))
}
