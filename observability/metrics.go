// Package observability provides Prometheus metrics and OpenTelemetry
// tracing instruments for the delivery pipeline.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus instruments for the delivery pipeline.
type Metrics struct {
	EventsTotal       prometheus.Counter
	DeliveriesTotal   *prometheus.CounterVec
	DeliveryLatency   prometheus.Histogram
	EscalationsTotal  prometheus.Counter
	DLQSize           prometheus.Gauge
	PendingDeliveries prometheus.Gauge
}

// NewMetrics creates the delivery pipeline instruments and registers them
// with the given registerer. Pass prometheus.DefaultRegisterer for the
// process-wide registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		EventsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dispatch_events_total",
			Help: "Total number of events accepted for fan-out.",
		}),
		DeliveriesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dispatch_deliveries_total",
			Help: "Total delivery attempts by outcome.",
		}, []string{"status"}),
		DeliveryLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "dispatch_delivery_latency_seconds",
			Help:    "Latency of outbound webhook requests.",
			Buckets: prometheus.DefBuckets,
		}),
		EscalationsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dispatch_subscription_escalations_total",
			Help: "Subscriptions auto-disabled after exhausting their retry budget.",
		}),
		DLQSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "dispatch_dlq_size",
			Help: "Entries currently in the dead letter queue.",
		}),
		PendingDeliveries: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "dispatch_pending_deliveries",
			Help: "Deliveries awaiting an attempt.",
		}),
	}

	reg.MustRegister(
		m.EventsTotal,
		m.DeliveriesTotal,
		m.DeliveryLatency,
		m.EscalationsTotal,
		m.DLQSize,
		m.PendingDeliveries,
	)

	return m
}

// RecordDelivery records a delivery attempt with the given outcome and latency.
func (m *Metrics) RecordDelivery(status string, latencySeconds float64) {
	m.DeliveriesTotal.WithLabelValues(status).Inc()
	m.DeliveryLatency.Observe(latencySeconds)
}
