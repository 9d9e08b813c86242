package notifier

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metric name parts.
const (
	namespace = "ironic_exporter"
)

// Result label values of notificationsTotal.
const (
	resultWritten     = "written"
	resultIgnored     = "ignored"
	resultError       = "error"
	resultWriteFailed = "write_error"
)

// Metrics instruments the exporter itself.
type Metrics struct {
	notificationsTotal *prometheus.CounterVec
	processingDuration *prometheus.HistogramVec
	lastWrite          *prometheus.GaugeVec
	amqpConnected      prometheus.Gauge
}

// NewMetrics registers the self metrics with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		notificationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "notifications_total",
				Help:      "Notifications received, by event type and outcome.",
			},
			[]string{"event_type", "result"},
		),
		processingDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "processing_duration_seconds",
				Help:      "Time spent turning a notification into a metrics file.",
				Buckets:   prometheus.ExponentialBuckets(0.0005, 4, 8),
			},
			[]string{"event_type"},
		),
		lastWrite: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "last_write_timestamp_seconds",
				Help:      "Time a metrics file was last written, by event type.",
			},
			[]string{"event_type"},
		),
		amqpConnected: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "amqp_connected",
				Help:      "Whether the notification listener is connected to the broker.",
			},
		),
	}
	reg.MustRegister(m.notificationsTotal, m.processingDuration, m.lastWrite, m.amqpConnected)
	return m
}
