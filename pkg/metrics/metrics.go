package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Deployment metrics
	DeploymentsStarted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "drydock_deployments_started_total",
			Help: "Total number of domain deployments started",
		},
	)

	DeploymentsCompleted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "drydock_deployments_completed_total",
			Help: "Total number of domain deployments by terminal status",
		},
		[]string{"status"},
	)

	// Phase metrics
	PhasesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "drydock_phases_total",
			Help: "Total number of executed phases by phase and result",
		},
		[]string{"phase", "result"},
	)

	PhaseDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "drydock_phase_duration_seconds",
			Help:    "Phase execution duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"phase"},
	)

	// Scheduler metrics
	BatchesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "drydock_batches_total",
			Help: "Total number of deployment batches started",
		},
	)

	// Rollback metrics
	RollbacksTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "drydock_rollbacks_total",
			Help: "Total number of portfolio rollback sweeps started",
		},
	)

	// Run metrics
	RunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "drydock_runs_total",
			Help: "Total number of orchestration runs by outcome",
		},
		[]string{"outcome"},
	)
)

func init() {
	prometheus.MustRegister(DeploymentsStarted)
	prometheus.MustRegister(DeploymentsCompleted)
	prometheus.MustRegister(PhasesTotal)
	prometheus.MustRegister(PhaseDuration)
	prometheus.MustRegister(BatchesTotal)
	prometheus.MustRegister(RollbacksTotal)
	prometheus.MustRegister(RunsTotal)
}

// Handler returns the Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObservePhase records one executed phase. Its signature matches the
// deploy package's phase hook, so it can be assigned directly.
func ObservePhase(domain, phase string, duration time.Duration, success bool) {
	result := "success"
	if !success {
		result = "failure"
	}
	PhasesTotal.WithLabelValues(phase, result).Inc()
	PhaseDuration.WithLabelValues(phase).Observe(duration.Seconds())
}

// Timer measures elapsed time for histogram observation
type Timer struct {
	start time.Time
}

// NewTimer starts a new timer
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// Duration returns the elapsed time since the timer started
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}

// ObserveDuration records the elapsed time in the given histogram
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	histogram.Observe(t.Duration().Seconds())
}

// ObserveDurationVec records the elapsed time in the given histogram vec
func (t *Timer) ObserveDurationVec(histogram *prometheus.HistogramVec, labels ...string) {
	histogram.WithLabelValues(labels...).Observe(t.Duration().Seconds())
}
