// Package obs holds the Prometheus metrics of an invalidation run.
package obs

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics groups the collectors updated by the invalidator.
//
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	tasksVisited prometheus.Counter
	deletions    *prometheus.CounterVec
	failures     *prometheus.CounterVec
	runDuration  prometheus.Histogram
}

// NewMetrics creates the collectors and registers them on reg.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		tasksVisited: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cachepurge_tasks_visited_total",
			Help: "Tasks discovered in dependency closures.",
		}),
		deletions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cachepurge_deletions_total",
				Help: "Artifact deletions by backend scheme and outcome.",
			},
			[]string{"backend", "outcome"},
		),
		failures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cachepurge_task_failures_total",
				Help: "Per-task invalidation failures by reason.",
			},
			[]string{"reason"},
		),
		runDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "cachepurge_run_duration_seconds",
			Help:    "Wall time of invalidation runs.",
			Buckets: prometheus.DefBuckets,
		}),
	}
	for _, c := range []prometheus.Collector{m.tasksVisited, m.deletions, m.failures, m.runDuration} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// TasksVisited adds n discovered tasks.
func (m *Metrics) TasksVisited(n int) {
	if m == nil {
		return
	}
	m.tasksVisited.Add(float64(n))
}

// Deletion counts one successful delete on backend with the given outcome.
func (m *Metrics) Deletion(backend, outcome string) {
	if m == nil {
		return
	}
	m.deletions.WithLabelValues(backend, outcome).Inc()
}

// Failure counts one per-task failure.
func (m *Metrics) Failure(reason string) {
	if m == nil {
		return
	}
	m.failures.WithLabelValues(reason).Inc()
}

// ObserveRun records the duration of a run started at start.
func (m *Metrics) ObserveRun(start time.Time) {
	if m == nil {
		return
	}
	m.runDuration.Observe(time.Since(start).Seconds())
}
