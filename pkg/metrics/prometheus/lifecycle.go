// Package prometheus provides the Prometheus implementations of the
// metrics interfaces declared by agentd's packages.
//
// Every constructor returns nil when metrics are disabled (see
// metrics.InitRegistry); consumers accept nil as "do not collect".
package prometheus

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/marmos91/agentd/pkg/lifecycle"
	"github.com/marmos91/agentd/pkg/metrics"
)

type lifecycleMetrics struct {
	tasksStarted     *prometheus.CounterVec
	tasksFinished    *prometheus.CounterVec
	tasksActive      *prometheus.GaugeVec
	startupFailures  prometheus.Counter
	shutdownFailures prometheus.Counter
	tasksCancelled   prometheus.Counter
	shutdownDuration prometheus.Histogram
}

// NewLifecycleMetrics creates Prometheus-backed lifecycle metrics.
//
// Returns nil if metrics are not enabled (InitRegistry not called).
func NewLifecycleMetrics() lifecycle.Metrics {
	if !metrics.IsEnabled() {
		return nil
	}

	reg := metrics.GetRegistry()
	f := promauto.With(reg)

	return &lifecycleMetrics{
		tasksStarted: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metrics.Namespace,
				Subsystem: "lifecycle",
				Name:      "tasks_started_total",
				Help:      "Total number of loop tasks started by name",
			},
			[]string{"task"},
		),
		tasksFinished: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metrics.Namespace,
				Subsystem: "lifecycle",
				Name:      "tasks_finished_total",
				Help:      "Total number of loop tasks finished by name and outcome",
			},
			[]string{"task", "outcome"}, // ok, error, cancelled, panic
		),
		tasksActive: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: metrics.Namespace,
				Subsystem: "lifecycle",
				Name:      "tasks_active",
				Help:      "Number of loop tasks currently running by name",
			},
			[]string{"task"},
		),
		startupFailures: f.NewCounter(prometheus.CounterOpts{
			Namespace: metrics.Namespace,
			Subsystem: "lifecycle",
			Name:      "startup_failures_total",
			Help:      "Total number of failed startup routines",
		}),
		shutdownFailures: f.NewCounter(prometheus.CounterOpts{
			Namespace: metrics.Namespace,
			Subsystem: "lifecycle",
			Name:      "shutdown_failures_total",
			Help:      "Total number of failed shutdown routines",
		}),
		tasksCancelled: f.NewCounter(prometheus.CounterOpts{
			Namespace: metrics.Namespace,
			Subsystem: "lifecycle",
			Name:      "shutdown_tasks_cancelled_total",
			Help:      "Total number of outstanding tasks that ended cancelled during shutdown",
		}),
		shutdownDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: metrics.Namespace,
			Subsystem: "lifecycle",
			Name:      "shutdown_duration_seconds",
			Help:      "Time from termination signal to loop stop",
			Buckets:   []float64{.01, .05, .1, .5, 1, 5, 10, 30, 60},
		}),
	}
}

func (m *lifecycleMetrics) TaskStarted(name string) {
	if m == nil {
		return
	}
	m.tasksStarted.WithLabelValues(name).Inc()
	m.tasksActive.WithLabelValues(name).Inc()
}

func (m *lifecycleMetrics) TaskFinished(name, outcome string) {
	if m == nil {
		return
	}
	m.tasksFinished.WithLabelValues(name, outcome).Inc()
	m.tasksActive.WithLabelValues(name).Dec()
}

func (m *lifecycleMetrics) StartupFailed() {
	if m == nil {
		return
	}
	m.startupFailures.Inc()
}

func (m *lifecycleMetrics) ShutdownFailed() {
	if m == nil {
		return
	}
	m.shutdownFailures.Inc()
}

func (m *lifecycleMetrics) TasksCancelled(n int) {
	if m == nil {
		return
	}
	m.tasksCancelled.Add(float64(n))
}

func (m *lifecycleMetrics) ShutdownDuration(d time.Duration) {
	if m == nil {
		return
	}
	m.shutdownDuration.Observe(d.Seconds())
}
