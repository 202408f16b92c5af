// Package metrics holds the Prometheus collectors for tool calls and
// upstream Toggl requests.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics owns its registry so several servers (and tests) can coexist in
// one process without duplicate registration panics.
//
// Metrics:
//   - toggl_mcp_tool_calls_total{tool,code} - tool calls by outcome ("ok" or an error code)
//   - toggl_mcp_tool_call_duration_seconds{tool} - tool call latency
//   - toggl_mcp_upstream_requests_total{op,status} - Toggl API requests by HTTP status ("error" on transport failure)
type Metrics struct {
	registry *prometheus.Registry

	ToolCallsTotal   *prometheus.CounterVec
	ToolCallDuration *prometheus.HistogramVec
	UpstreamTotal    *prometheus.CounterVec
}

// New creates a registry with the toggl-mcp collectors plus the Go and
// process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		ToolCallsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "toggl_mcp_tool_calls_total",
				Help: "Total number of MCP tool calls by outcome",
			},
			[]string{"tool", "code"},
		),
		ToolCallDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "toggl_mcp_tool_call_duration_seconds",
				Help:    "Duration of MCP tool calls in seconds",
				Buckets: prometheus.ExponentialBuckets(0.01, 2, 10), // 10ms to ~5s
			},
			[]string{"tool"},
		),
		UpstreamTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "toggl_mcp_upstream_requests_total",
				Help: "Total number of Toggl API requests by status",
			},
			[]string{"op", "status"},
		),
	}
}

// RecordToolCall records one tool call. An empty code means success.
func (m *Metrics) RecordToolCall(tool, code string, d time.Duration) {
	if m == nil {
		return
	}
	if code == "" {
		code = "ok"
	}
	m.ToolCallsTotal.WithLabelValues(tool, code).Inc()
	m.ToolCallDuration.WithLabelValues(tool).Observe(d.Seconds())
}

// RecordUpstream records one Toggl API request. status is 0 when the request
// never got a response.
func (m *Metrics) RecordUpstream(op string, status int) {
	if m == nil {
		return
	}
	label := "error"
	if status > 0 {
		label = strconv.Itoa(status)
	}
	m.UpstreamTotal.WithLabelValues(op, label).Inc()
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry exposes the underlying registry for tests and custom collectors.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
