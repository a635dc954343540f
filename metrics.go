/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package reqsched

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Outcome labels reported to MetricsCollector.
const (
	OutcomeSucceeded    = "succeeded"
	OutcomeFailed       = "failed"
	OutcomeTimedOut     = "timed_out"
	OutcomeExpired      = "expired"
	OutcomeRetried      = "retried"
	OutcomeRejected     = "rejected"
	OutcomeCancelled    = "cancelled"
	OutcomeDeduplicated = "deduplicated"
)

// MetricsCollector is an interface for collecting metrics of scheduler state transitions.
type MetricsCollector interface {
	// SetQueueDepth sets the number of queued requests for the given priority.
	SetQueueDepth(priority Priority, depth int)

	// SetInFlight sets the number of currently executing requests.
	SetInFlight(n int)

	// ObserveExecutionTime observes the duration of a finished execution attempt.
	ObserveExecutionTime(outcome string, elapsed time.Duration)

	// IncOutcome increments the counter of the given request outcome.
	IncOutcome(outcome string)
}

type disabledMetrics struct{}

func (disabledMetrics) SetQueueDepth(Priority, int)                {}
func (disabledMetrics) SetInFlight(int)                            {}
func (disabledMetrics) ObserveExecutionTime(string, time.Duration) {}
func (disabledMetrics) IncOutcome(string)                          {}

// PrometheusMetricsOpts represents options for PrometheusMetrics.
type PrometheusMetricsOpts struct {
	// Namespace is a namespace for metrics. It will be prepended to all metric names.
	Namespace string

	// ConstLabels is a set of labels that will be applied to all metrics.
	ConstLabels prometheus.Labels

	// DurationBuckets is a list of buckets for execution duration histogram.
	DurationBuckets []float64
}

// PrometheusMetrics represents the scheduler metrics for Prometheus.
type PrometheusMetrics struct {
	// QueueDepth is a gauge of queued requests per priority.
	QueueDepth *prometheus.GaugeVec

	// InFlight is a gauge of currently executing requests.
	InFlight prometheus.Gauge

	// ExecutionDurations is a histogram of execution attempt durations per outcome.
	ExecutionDurations *prometheus.HistogramVec

	// Outcomes is a counter of request outcomes.
	Outcomes *prometheus.CounterVec
}

var defaultExecutionDurationBuckets = []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 150, 300, 600}

// NewPrometheusMetrics creates a new scheduler metrics collector for Prometheus with default options.
func NewPrometheusMetrics() *PrometheusMetrics {
	return NewPrometheusMetricsWithOpts(PrometheusMetricsOpts{})
}

// NewPrometheusMetricsWithOpts creates a new scheduler metrics collector for Prometheus with the provided options.
func NewPrometheusMetricsWithOpts(opts PrometheusMetricsOpts) *PrometheusMetrics {
	durationBuckets := opts.DurationBuckets
	if durationBuckets == nil {
		durationBuckets = defaultExecutionDurationBuckets
	}
	return &PrometheusMetrics{
		QueueDepth: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace:   opts.Namespace,
			Name:        "request_scheduler_queue_depth",
			Help:        "The number of queued requests per priority.",
			ConstLabels: opts.ConstLabels,
		}, []string{"priority"}),
		InFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   opts.Namespace,
			Name:        "request_scheduler_in_flight_requests",
			Help:        "The number of currently executing requests.",
			ConstLabels: opts.ConstLabels,
		}),
		ExecutionDurations: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:   opts.Namespace,
			Name:        "request_scheduler_execution_duration_seconds",
			Help:        "A histogram of execution attempt durations.",
			ConstLabels: opts.ConstLabels,
			Buckets:     durationBuckets,
		}, []string{"outcome"}),
		Outcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   opts.Namespace,
			Name:        "request_scheduler_outcomes_total",
			Help:        "The total number of request outcomes.",
			ConstLabels: opts.ConstLabels,
		}, []string{"outcome"}),
	}
}

// MustRegister registers the Prometheus metrics in the default registry.
func (pm *PrometheusMetrics) MustRegister() {
	prometheus.MustRegister(
		pm.QueueDepth,
		pm.InFlight,
		pm.ExecutionDurations,
		pm.Outcomes,
	)
}

// Unregister unregisters the Prometheus metrics.
func (pm *PrometheusMetrics) Unregister() {
	prometheus.Unregister(pm.QueueDepth)
	prometheus.Unregister(pm.InFlight)
	prometheus.Unregister(pm.ExecutionDurations)
	prometheus.Unregister(pm.Outcomes)
}

// SetQueueDepth sets the number of queued requests for the given priority.
func (pm *PrometheusMetrics) SetQueueDepth(priority Priority, depth int) {
	pm.QueueDepth.WithLabelValues(priority.String()).Set(float64(depth))
}

// SetInFlight sets the number of currently executing requests.
func (pm *PrometheusMetrics) SetInFlight(n int) {
	pm.InFlight.Set(float64(n))
}

// ObserveExecutionTime observes the duration of a finished execution attempt.
func (pm *PrometheusMetrics) ObserveExecutionTime(outcome string, elapsed time.Duration) {
	pm.ExecutionDurations.WithLabelValues(outcome).Observe(elapsed.Seconds())
}

// IncOutcome increments the counter of the given request outcome.
func (pm *PrometheusMetrics) IncOutcome(outcome string) {
	pm.Outcomes.WithLabelValues(outcome).Inc()
}
