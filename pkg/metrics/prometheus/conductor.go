package prometheus

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/marmos91/agentd/pkg/conductor"
	"github.com/marmos91/agentd/pkg/metrics"
)

type conductorMetrics struct {
	messagesReceived *prometheus.CounterVec
	messageBytes     *prometheus.HistogramVec
	messagesStored   *prometheus.CounterVec
	connections      *prometheus.GaugeVec
}

// NewConductorMetrics creates Prometheus-backed conductor metrics.
//
// Returns nil if metrics are not enabled (InitRegistry not called).
func NewConductorMetrics() conductor.Metrics {
	if !metrics.IsEnabled() {
		return nil
	}

	f := promauto.With(metrics.GetRegistry())

	return &conductorMetrics{
		messagesReceived: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metrics.Namespace,
				Subsystem: "conductor",
				Name:      "messages_received_total",
				Help:      "Total number of inbound messages by transport",
			},
			[]string{"transport"},
		),
		messageBytes: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metrics.Namespace,
				Subsystem: "conductor",
				Name:      "message_size_bytes",
				Help:      "Size of inbound messages by transport",
				Buckets:   prometheus.ExponentialBuckets(64, 4, 8), // 64B to 1MiB
			},
			[]string{"transport"},
		),
		messagesStored: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metrics.Namespace,
				Subsystem: "conductor",
				Name:      "messages_stored_total",
				Help:      "Total number of inbound messages persisted to the wallet by status",
			},
			[]string{"status"},
		),
		connections: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: metrics.Namespace,
				Subsystem: "conductor",
				Name:      "connections_active",
				Help:      "Number of open WebSocket sessions by transport",
			},
			[]string{"transport"},
		),
	}
}

func (m *conductorMetrics) MessageReceived(transport string, bytes int) {
	if m == nil {
		return
	}
	m.messagesReceived.WithLabelValues(transport).Inc()
	m.messageBytes.WithLabelValues(transport).Observe(float64(bytes))
}

func (m *conductorMetrics) MessageStored(err error) {
	if m == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.messagesStored.WithLabelValues(status).Inc()
}

func (m *conductorMetrics) ConnectionOpened(transport string) {
	if m == nil {
		return
	}
	m.connections.WithLabelValues(transport).Inc()
}

func (m *conductorMetrics) ConnectionClosed(transport string) {
	if m == nil {
		return
	}
	m.connections.WithLabelValues(transport).Dec()
}
