package diagnostics

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestServePrometheus(t *testing.T) {
	ctx := context.Background()
	server, err := ServePrometheus("127.0.0.1:0", nil)
	require.NoError(t, err)
	defer server.Shutdown(ctx)

	server.Metrics().RecordDispatch(ctx, "run_tests", StatusOK, 2*time.Second)
	server.Metrics().RecordTransition(ctx, "approved")

	recorder := httptest.NewRecorder()
	promhttp.Handler().ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, MetricsPath, nil))
	body := recorder.Body.String()
	assert.Contains(t, body, "exegol_dispatch")
	assert.Contains(t, body, `action_type="run_tests"`)
	assert.Contains(t, body, "exegol_requests_transitions")
}
