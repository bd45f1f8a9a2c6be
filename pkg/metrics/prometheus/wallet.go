package prometheus

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/marmos91/agentd/pkg/metrics"
	"github.com/marmos91/agentd/pkg/wallet"
)

type walletMetrics struct {
	operations *prometheus.CounterVec
	duration   *prometheus.HistogramVec
}

// NewWalletMetrics creates Prometheus-backed wallet metrics.
//
// Returns nil if metrics are not enabled (InitRegistry not called).
func NewWalletMetrics() wallet.Metrics {
	if !metrics.IsEnabled() {
		return nil
	}

	f := promauto.With(metrics.GetRegistry())

	return &walletMetrics{
		operations: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metrics.Namespace,
				Subsystem: "wallet",
				Name:      "operations_total",
				Help:      "Total number of wallet operations by backend, operation and status",
			},
			[]string{"backend", "operation", "status"}, // status: ok, not_found, error
		),
		duration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metrics.Namespace,
				Subsystem: "wallet",
				Name:      "operation_duration_seconds",
				Help:      "Duration of wallet operations by backend and operation",
				Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 8),
			},
			[]string{"backend", "operation"},
		),
	}
}

func (m *walletMetrics) ObserveOperation(backend, op string, d time.Duration, err error) {
	if m == nil {
		return
	}

	status := "ok"
	switch {
	case err == nil:
	case errors.Is(err, wallet.ErrNotFound):
		status = "not_found"
	default:
		status = "error"
	}

	m.operations.WithLabelValues(backend, op, status).Inc()
	m.duration.WithLabelValues(backend, op).Observe(d.Seconds())
}
