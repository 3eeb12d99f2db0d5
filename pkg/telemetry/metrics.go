package telemetry

import "github.com/prometheus/client_golang/prometheus"

// Metrics collects the processor/executor counters and histograms
// spec SPEC_FULL.md §4.6 calls for, grounded on the teacher's
// CounterVec/HistogramVec shape
// (test/unit/gateway/metrics/error_recovery_test.go).
type Metrics struct {
	Registry *prometheus.Registry

	JobsLeased    prometheus.Counter
	JobsCompleted prometheus.Counter
	JobsFailed    *prometheus.CounterVec // labeled by error_code
	StepDuration  *prometheus.HistogramVec // labeled by step
}

// NewMetrics registers every pipeline metric against a fresh registry.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		Registry: registry,
		JobsLeased: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "photopipeline",
			Name:      "jobs_leased_total",
			Help:      "Total number of jobs leased by the processor.",
		}),
		JobsCompleted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "photopipeline",
			Name:      "jobs_completed_total",
			Help:      "Total number of jobs that reached DONE.",
		}),
		JobsFailed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "photopipeline",
			Name:      "jobs_failed_total",
			Help:      "Total number of jobs that entered FAILED, labeled by error_code.",
		}, []string{"error_code"}),
		StepDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "photopipeline",
			Name:      "step_duration_seconds",
			Help:      "Duration of each executor step.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"step"}),
	}

	registry.MustRegister(m.JobsLeased, m.JobsCompleted, m.JobsFailed, m.StepDuration)
	return m
}
