package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordToolCall(t *testing.T) {
	m := New()
	m.RecordToolCall("start_timer", "", 20*time.Millisecond)
	m.RecordToolCall("start_timer", "validation_error", time.Millisecond)
	m.RecordToolCall("start_timer", "", 40*time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.ToolCallsTotal.WithLabelValues("start_timer", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ToolCallsTotal.WithLabelValues("start_timer", "validation_error")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.ToolCallDuration))
}

func TestRecordUpstream(t *testing.T) {
	m := New()
	m.RecordUpstream("fetch identity", http.StatusOK)
	m.RecordUpstream("fetch identity", http.StatusUnauthorized)
	m.RecordUpstream("list entries", 0)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.UpstreamTotal.WithLabelValues("fetch identity", "200")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.UpstreamTotal.WithLabelValues("fetch identity", "401")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.UpstreamTotal.WithLabelValues("list entries", "error")))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.RecordToolCall("stop_timer", "", time.Second)
		m.RecordUpstream("stop entry", http.StatusOK)
	})
}

func TestInstancesDoNotShareRegistries(t *testing.T) {
	a, b := New(), New()
	a.RecordToolCall("stop_timer", "", time.Millisecond)

	assert.Equal(t, 1.0, testutil.ToFloat64(a.ToolCallsTotal.WithLabelValues("stop_timer", "ok")))
	assert.Equal(t, 0.0, testutil.ToFloat64(b.ToolCallsTotal.WithLabelValues("stop_timer", "ok")))
	assert.NotSame(t, a.Registry(), b.Registry())
}

func TestHandlerExposesCollectors(t *testing.T) {
	m := New()
	m.RecordUpstream("create entry", http.StatusOK)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, `toggl_mcp_upstream_requests_total{op="create entry",status="200"} 1`)
	assert.Contains(t, body, "go_goroutines")
}
