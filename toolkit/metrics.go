package toolkit

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/agentscope-ai/agentscope-go/types"
)

// Metrics records tool execution outcomes in Prometheus.
type Metrics struct {
	calls     *prometheus.CounterVec
	durations *prometheus.HistogramVec
}

// NewMetrics creates tool metrics and registers them with the registerer.
// Pass prometheus.DefaultRegisterer for the process-wide registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		calls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "agentscope",
			Subsystem: "toolkit",
			Name:      "tool_calls_total",
			Help:      "Tool invocations by outcome.",
		}, []string{"tool", "status"}),
		durations: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "agentscope",
			Subsystem: "toolkit",
			Name:      "tool_duration_seconds",
			Help:      "Tool execution wall time.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 14),
		}, []string{"tool"}),
	}
	if reg != nil {
		reg.MustRegister(m.calls, m.durations)
	}
	return m
}

// Observe records one finished tool call.
func (m *Metrics) Observe(tool string, result types.ToolResult) {
	status := "ok"
	switch {
	case result.Interrupted:
		status = "interrupted"
	case result.IsError():
		status = "error"
	}
	m.calls.WithLabelValues(tool, status).Inc()
	m.durations.WithLabelValues(tool).Observe(result.Duration.Seconds())
}
