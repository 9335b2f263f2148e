package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	attemptsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "queryai_attempts_total",
			Help: "Total number of generation attempts by outcome.",
		},
		[]string{"outcome"},
	)
	sessionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "queryai_sessions_total",
			Help: "Total number of question sessions by terminal status.",
		},
		[]string{"status"},
	)
	generationLatencySeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "queryai_generation_latency_seconds",
			Help:    "Latency of text-generation backend calls.",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 20, 30, 60},
		},
	)
	executionLatencySeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "queryai_execution_latency_seconds",
			Help:    "Latency of candidate statement execution.",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30},
		},
	)
)

func init() {
	prometheus.MustRegister(
		attemptsTotal,
		sessionsTotal,
		generationLatencySeconds,
		executionLatencySeconds,
	)
}

// ObserveAttempt records one attempt outcome: success, policy_violation or
// execution_error.
func ObserveAttempt(outcome string) {
	attemptsTotal.WithLabelValues(outcome).Inc()
}

// ObserveSession records a terminal session status: success, exhausted,
// generation_failed or connection_failed.
func ObserveSession(status string) {
	sessionsTotal.WithLabelValues(status).Inc()
}

func ObserveGenerationLatency(elapsed time.Duration) {
	generationLatencySeconds.Observe(elapsed.Seconds())
}

func ObserveExecutionLatency(elapsed time.Duration) {
	executionLatencySeconds.Observe(elapsed.Seconds())
}
