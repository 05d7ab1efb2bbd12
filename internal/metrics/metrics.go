// Package metrics holds the process-wide Prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RetryAttempts counts failed attempts that were followed by a retry
	RetryAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crucible_retry_attempts_total",
			Help: "Total number of retried attempts",
		},
		[]string{"category"},
	)

	// RecoveryStrategies counts strategies chosen by the recovery handler
	RecoveryStrategies = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crucible_recovery_strategies_total",
			Help: "Total number of recovery strategy dispatches",
		},
		[]string{"category", "strategy"},
	)

	// SandboxRuns counts sandbox executions by final status
	SandboxRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crucible_sandbox_runs_total",
			Help: "Total number of sandbox executions",
		},
		[]string{"toolchain", "status"},
	)

	// SandboxDuration tracks wall-clock time of sandbox executions
	SandboxDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "crucible_sandbox_duration_seconds",
			Help:    "Sandbox execution duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"toolchain"},
	)

	// FailuresAnalyzed counts analyzed failures per category
	FailuresAnalyzed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crucible_failures_analyzed_total",
			Help: "Total number of failures produced by the analyzer",
		},
		[]string{"category"},
	)

	// RefinementOutcomes counts finished refinement loops by outcome
	RefinementOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crucible_refinement_outcomes_total",
			Help: "Total number of refinement loops by outcome",
		},
		[]string{"outcome"},
	)

	// RefinementIterations tracks how many iterations a loop used
	RefinementIterations = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "crucible_refinement_iterations",
			Help:    "Number of iterations per refinement loop",
			Buckets: prometheus.LinearBuckets(1, 1, 10),
		},
	)

	// LastPassRate is the pass rate of the most recent iteration
	LastPassRate = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "crucible_last_pass_rate",
			Help: "Pass rate of the most recent refinement iteration",
		},
	)
)

// WriteTextfile dumps the default registry in text exposition format to path,
// for pickup by a node_exporter textfile collector.
func WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, prometheus.DefaultGatherer)
}
