// Package observability holds the Prometheus instrumentation for the
// platform: tick outcomes, feed fetch latency, and dispatch counters.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus counters and histograms for the poll and
// notify workers.
type Metrics struct {
	TickOutcomes    *prometheus.CounterVec // labels: data_source, outcome
	TickDuration    *prometheus.HistogramVec
	FeedFetchErrors *prometheus.CounterVec // labels: data_source

	TriggersFired        *prometheus.CounterVec // labels: data_source
	NotificationsEmitted prometheus.Counter
	WebhookDeliveries    *prometheus.CounterVec // labels: outcome
}

// NewMetrics creates and registers all worker metrics with the default
// Prometheus registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		TickOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "floodline",
			Name:      "tick_outcomes_total",
			Help:      "Recurring job ticks by data source and terminal outcome.",
		}, []string{"data_source", "outcome"}),
		TickDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "floodline",
			Name:      "tick_duration_seconds",
			Help:      "Duration of one tick including retries.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"data_source"}),
		FeedFetchErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "floodline",
			Name:      "feed_fetch_errors_total",
			Help:      "Transient feed fetch failures, counted per attempt.",
		}, []string{"data_source"}),
		TriggersFired: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "floodline",
			Name:      "triggers_fired_total",
			Help:      "Triggers that transitioned to TRIGGERED, by data source.",
		}, []string{"data_source"}),
		NotificationsEmitted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "floodline",
			Name:      "notifications_emitted_total",
			Help:      "Threshold notification events enqueued.",
		}),
		WebhookDeliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "floodline",
			Name:      "webhook_deliveries_total",
			Help:      "Outbound webhook deliveries by outcome.",
		}, []string{"outcome"}),
	}

	prometheus.MustRegister(
		m.TickOutcomes,
		m.TickDuration,
		m.FeedFetchErrors,
		m.TriggersFired,
		m.NotificationsEmitted,
		m.WebhookDeliveries,
	)

	return m
}

// NewMetricsForTesting creates Metrics with a fresh registry to avoid
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return &Metrics{
		TickOutcomes:         prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: "floodline", Name: "tick_outcomes_total"}, []string{"data_source", "outcome"}),
		TickDuration:         prometheus.NewHistogramVec(prometheus.HistogramOpts{Namespace: "floodline", Name: "tick_duration_seconds"}, []string{"data_source"}),
		FeedFetchErrors:      prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: "floodline", Name: "feed_fetch_errors_total"}, []string{"data_source"}),
		TriggersFired:        prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: "floodline", Name: "triggers_fired_total"}, []string{"data_source"}),
		NotificationsEmitted: prometheus.NewCounter(prometheus.CounterOpts{Namespace: "floodline", Name: "notifications_emitted_total"}),
		WebhookDeliveries:    prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: "floodline", Name: "webhook_deliveries_total"}, []string{"outcome"}),
	}
}
