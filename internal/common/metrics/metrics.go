// internal/common/metrics/metrics.go
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	WorkerJobsCompleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "worker_jobs_completed_total",
			Help: "Total number of jobs completed by worker",
		},
		[]string{"task_type"},
	)

	WorkerJobsFailed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "worker_jobs_failed_total",
			Help: "Total number of jobs failed by worker",
		},
		[]string{"task_type", "error_code"},
	)

	WorkerJobDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "worker_job_duration_seconds",
			Help: "Duration of job processing in seconds",
		},
		[]string{"task_type"},
	)

	WorkerJobsActive = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "worker_jobs_active",
			Help: "Number of active jobs per worker",
		},
		[]string{"task_type"},
	)
)

// ==========================
// Resolver
// ==========================

var (
	QueriesResolved = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nlq_queries_resolved_total",
			Help: "Natural-language queries resolved, by intent and outcome",
		},
		[]string{"intent", "outcome"},
	)

	FallbackAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nlq_fallback_attempts_total",
			Help: "Statements issued per execution strategy",
		},
		[]string{"strategy", "success"},
	)

	ExecutionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "nlq_execution_duration_seconds",
			Help:    "Duration of a single statement",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 12),
		},
		[]string{"strategy"},
	)

	PlanConfidence = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "nlq_plan_confidence",
			Help:    "Confidence of the chosen query plan",
			Buckets: prometheus.LinearBuckets(0, 0.1, 11),
		},
	)
)

// ResolverRecorder feeds the resolver metrics. The zero value is ready to use.
type ResolverRecorder struct{}

func NewResolverRecorder() *ResolverRecorder {
	return &ResolverRecorder{}
}

func (ResolverRecorder) RecordAttempt(strategy string, success bool, duration time.Duration) {
	label := "false"
	if success {
		label = "true"
	}
	FallbackAttempts.WithLabelValues(strategy, label).Inc()
	ExecutionDuration.WithLabelValues(strategy).Observe(duration.Seconds())
}

func (ResolverRecorder) RecordResolution(intent, outcome string, planConfidence float64) {
	QueriesResolved.WithLabelValues(intent, outcome).Inc()
	PlanConfidence.Observe(planConfidence)
}
