package observability

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type moduleMetrics struct {
	turnTotal    *prometheus.CounterVec
	turnDuration prometheus.Histogram

	activeSessions  prometheus.Gauge
	sessionsExpired prometheus.Counter
	bootstrapTotal  *prometheus.CounterVec
	rateLimited     prometheus.Counter

	toolExecutionTotal    *prometheus.CounterVec
	toolExecutionDuration *prometheus.HistogramVec

	agentRunTotal    *prometheus.CounterVec
	agentRunDuration *prometheus.HistogramVec
	providerRetries  *prometheus.CounterVec
}

var (
	metricsOnce sync.Once
	metricsInst *moduleMetrics
)

func getMetrics() *moduleMetrics {
	metricsOnce.Do(func() {
		m := &moduleMetrics{
			turnTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "chat_turns_total",
					Help: "Total chat turns by status (success, error).",
				},
				[]string{"status"},
			),
			turnDuration: prometheus.NewHistogram(
				prometheus.HistogramOpts{
					Name:    "chat_turn_duration_seconds",
					Help:    "Chat turn duration in seconds, agent call included.",
					Buckets: prometheus.DefBuckets,
				},
			),
			activeSessions: prometheus.NewGauge(
				prometheus.GaugeOpts{
					Name: "chat_active_sessions",
					Help: "Current number of browser sessions held in memory.",
				},
			),
			sessionsExpired: prometheus.NewCounter(
				prometheus.CounterOpts{
					Name: "chat_sessions_expired_total",
					Help: "Total sessions removed by the idle sweeper.",
				},
			),
			bootstrapTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "chat_bootstrap_total",
					Help: "Total session bootstrap attempts by status.",
				},
				[]string{"status"},
			),
			rateLimited: prometheus.NewCounter(
				prometheus.CounterOpts{
					Name: "chat_rate_limited_total",
					Help: "Total turn submissions rejected by the rate limiter.",
				},
			),
			toolExecutionTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "tool_execution_total",
					Help: "Total tool executions by tool and status.",
				},
				[]string{"tool", "status"},
			),
			toolExecutionDuration: prometheus.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "tool_execution_duration_seconds",
					Help:    "Tool execution duration in seconds by tool.",
					Buckets: prometheus.DefBuckets,
				},
				[]string{"tool"},
			),
			agentRunTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "agent_run_total",
					Help: "Total agent runs by provider and status.",
				},
				[]string{"provider", "status"},
			),
			agentRunDuration: prometheus.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "agent_run_duration_seconds",
					Help:    "Agent run duration in seconds by provider.",
					Buckets: prometheus.DefBuckets,
				},
				[]string{"provider"},
			),
			providerRetries: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "provider_retries_total",
					Help: "Total retried provider calls by provider.",
				},
				[]string{"provider"},
			),
		}

		prometheus.MustRegister(
			m.turnTotal,
			m.turnDuration,
			m.activeSessions,
			m.sessionsExpired,
			m.bootstrapTotal,
			m.rateLimited,
			m.toolExecutionTotal,
			m.toolExecutionDuration,
			m.agentRunTotal,
			m.agentRunDuration,
			m.providerRetries,
		)

		metricsInst = m
	})

	return metricsInst
}

// EnsureRegistered initializes and registers metrics the first time it is called.
func EnsureRegistered() {
	_ = getMetrics()
}

func MetricsHandler() http.Handler {
	EnsureRegistered()
	return promhttp.Handler()
}

func RecordTurn(duration time.Duration, success bool) {
	m := getMetrics()
	m.turnTotal.WithLabelValues(status(success)).Inc()
	m.turnDuration.Observe(duration.Seconds())
}

func SetActiveSessions(count int) {
	getMetrics().activeSessions.Set(float64(count))
}

func RecordSessionsExpired(count int) {
	getMetrics().sessionsExpired.Add(float64(count))
}

func RecordBootstrap(success bool) {
	getMetrics().bootstrapTotal.WithLabelValues(status(success)).Inc()
}

func RecordRateLimited() {
	getMetrics().rateLimited.Inc()
}

func RecordToolExecution(tool string, duration time.Duration, success bool) {
	m := getMetrics()
	m.toolExecutionTotal.WithLabelValues(tool, status(success)).Inc()
	m.toolExecutionDuration.WithLabelValues(tool).Observe(duration.Seconds())
}

func RecordAgentRun(provider string, duration time.Duration, success bool) {
	m := getMetrics()
	m.agentRunTotal.WithLabelValues(provider, status(success)).Inc()
	m.agentRunDuration.WithLabelValues(provider).Observe(duration.Seconds())
}

func RecordProviderRetry(provider string) {
	getMetrics().providerRetries.WithLabelValues(provider).Inc()
}

func status(success bool) string {
	if success {
		return "success"
	}
	return "error"
}
