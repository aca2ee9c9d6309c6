// Package metrics provides internal metrics collection.
// This package is internal and should not be imported by external projects.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

// Collector registers and records all Prometheus metrics for the service.
// All record methods are safe on a nil receiver so that components can
// treat metrics as optional.
type Collector struct {
	// HTTP
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// Orchestration
	runsTotal         *prometheus.CounterVec
	runDuration       *prometheus.HistogramVec
	agentTurnsTotal   *prometheus.CounterVec
	agentTurnDuration *prometheus.HistogramVec
	terminationsTotal *prometheus.CounterVec
	summaryFallbacks  prometheus.Counter

	// Session store
	storeOpsTotal *prometheus.CounterVec

	logger *zap.Logger
}

// NewCollector registers all metrics under namespace in the default
// registry. Create it once per process.
func NewCollector(namespace string, logger *zap.Logger) *Collector {
	return newCollector(namespace, prometheus.DefaultRegisterer, logger)
}

// NewCollectorWithRegistry registers metrics in a caller-provided registry.
// Used by tests to avoid duplicate registration in the default registry.
func NewCollectorWithRegistry(namespace string, reg prometheus.Registerer, logger *zap.Logger) *Collector {
	return newCollector(namespace, reg, logger)
}

func newCollector(namespace string, reg prometheus.Registerer, logger *zap.Logger) *Collector {
	if logger == nil {
		logger = zap.NewNop()
	}
	factory := promauto.With(reg)

	c := &Collector{
		logger: logger.With(zap.String("component", "metrics")),
	}

	c.httpRequestsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	c.httpRequestDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	c.runsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "groupchat_runs_total",
			Help:      "Total number of orchestrated group-chat runs",
		},
		[]string{"mode", "status"},
	)

	c.runDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "groupchat_run_duration_seconds",
			Help:      "Group-chat run duration in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120, 240},
		},
		[]string{"mode"},
	)

	c.agentTurnsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "agent_turns_total",
			Help:      "Total number of agent turns",
		},
		[]string{"agent", "outcome"}, // outcome: ok, absorbed, skipped
	)

	c.agentTurnDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "agent_turn_duration_seconds",
			Help:      "Agent turn duration in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
		},
		[]string{"agent"},
	)

	c.terminationsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "agent_terminations_total",
			Help:      "Total number of agents leaving a conversation",
		},
		[]string{"agent", "reason"}, // reason: signal, failure
	)

	c.summaryFallbacks = factory.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "summary_fallbacks_total",
			Help:      "Total number of summaries replaced by the fallback text",
		},
	)

	c.storeOpsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "session_store_ops_total",
			Help:      "Total number of session store operations",
		},
		[]string{"op", "status"},
	)

	logger.Info("metrics collector initialized", zap.String("namespace", namespace))

	return c
}

// RecordHTTPRequest records one served HTTP request.
func (c *Collector) RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	if c == nil {
		return
	}
	c.httpRequestsTotal.WithLabelValues(method, path, statusClass(status)).Inc()
	c.httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// RecordRun records one orchestrated run.
func (c *Collector) RecordRun(mode, status string, duration time.Duration) {
	if c == nil {
		return
	}
	c.runsTotal.WithLabelValues(mode, status).Inc()
	c.runDuration.WithLabelValues(mode).Observe(duration.Seconds())
}

// RecordAgentTurn records one agent turn and its outcome.
func (c *Collector) RecordAgentTurn(agent, outcome string, duration time.Duration) {
	if c == nil {
		return
	}
	c.agentTurnsTotal.WithLabelValues(agent, outcome).Inc()
	c.agentTurnDuration.WithLabelValues(agent).Observe(duration.Seconds())
}

// RecordTermination records an agent leaving a conversation.
func (c *Collector) RecordTermination(agent, reason string) {
	if c == nil {
		return
	}
	c.terminationsTotal.WithLabelValues(agent, reason).Inc()
}

// RecordSummaryFallback records a summary replaced by the fallback text.
func (c *Collector) RecordSummaryFallback() {
	if c == nil {
		return
	}
	c.summaryFallbacks.Inc()
}

// RecordStoreOp records one session store operation.
func (c *Collector) RecordStoreOp(op string, err error) {
	if c == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	c.storeOpsTotal.WithLabelValues(op, status).Inc()
}

// statusClass buckets HTTP status codes to keep label cardinality low.
func statusClass(code int) string {
	switch {
	case code >= 200 && code < 300:
		return "2xx"
	case code >= 300 && code < 400:
		return "3xx"
	case code >= 400 && code < 500:
		return "4xx"
	case code >= 500:
		return "5xx"
	default:
		return "unknown"
	}
}
