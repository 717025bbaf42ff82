package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const metricPrefix = "graylogic_commands_"

// Metrics bundles the command delivery metrics.
type Metrics struct {
	InvocationsTotal *prometheus.CounterVec
	DeliveriesTotal  *prometheus.CounterVec
	DeliveryLatency  *prometheus.HistogramVec
	UndeliveredTotal *prometheus.CounterVec
	QueueDepthGauge  prometheus.Gauge
	WorkerPanics     prometheus.Counter
}

// New constructs the metrics and registers them with reg. A nil reg uses
// the default registerer.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	m := &Metrics{
		InvocationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "invocations_total",
				Help: "Inbound command invocations by consumer result",
			},
			[]string{"result"},
		),
		DeliveriesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "deliveries_total",
				Help: "Command deliveries by destination, status and error kind",
			},
			[]string{"destination", "status", "error_kind"},
		),
		DeliveryLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "delivery_latency_seconds",
				Help:    "Command delivery latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"destination"},
		),
		UndeliveredTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "undelivered_total",
				Help: "Invocations published to the undelivered topic by error kind",
			},
			[]string{"error_kind"},
		),
		QueueDepthGauge: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: metricPrefix + "queue_depth",
			Help: "Invocations waiting in the consumer queue",
		}),
		WorkerPanics: prometheus.NewCounter(prometheus.CounterOpts{
			Name: metricPrefix + "worker_panics_total",
			Help: "Panics recovered by consumer workers",
		}),
	}

	reg.MustRegister(
		m.InvocationsTotal,
		m.DeliveriesTotal,
		m.DeliveryLatency,
		m.UndeliveredTotal,
		m.QueueDepthGauge,
		m.WorkerPanics,
	)
	return m
}

// InvocationReceived counts an inbound invocation by result
// ("accepted", "rejected", "invalid").
func (m *Metrics) InvocationReceived(result string) {
	m.InvocationsTotal.WithLabelValues(result).Inc()
}

// DeliveryCompleted records one delivery attempt.
func (m *Metrics) DeliveryCompleted(destination, status, errorKind string, latency time.Duration) {
	if destination == "" {
		destination = "none"
	}
	m.DeliveriesTotal.WithLabelValues(destination, status, errorKind).Inc()
	if latency > 0 {
		m.DeliveryLatency.WithLabelValues(destination).Observe(latency.Seconds())
	}
}

// Undelivered counts an invocation handed to the undelivered sink.
func (m *Metrics) Undelivered(errorKind string) {
	m.UndeliveredTotal.WithLabelValues(errorKind).Inc()
}

// QueueDepth reports the current consumer queue length.
func (m *Metrics) QueueDepth(depth int) {
	m.QueueDepthGauge.Set(float64(depth))
}

// WorkerPanic counts a recovered worker panic.
func (m *Metrics) WorkerPanic() {
	m.WorkerPanics.Inc()
}
