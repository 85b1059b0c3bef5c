// Package metrics holds the engine's Prometheus instrumentation.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics groups every counter/gauge the engine exports. One instance is
// created at startup and shared by all components.
type Metrics struct {
	EventsIngested *prometheus.CounterVec
	EventsRejected prometheus.Counter
	EventsDropped  prometheus.Counter

	AlertsCreated  *prometheus.CounterVec
	AlertsUpdated  prometheus.Counter
	AlertsResolved *prometheus.CounterVec

	NotificationsSent   *prometheus.CounterVec
	NotificationsFailed *prometheus.CounterVec
	DispatchQueueDepth  prometheus.Gauge
	DispatchDropped     prometheus.Counter

	EvaluationDuration prometheus.Histogram
}

// New registers the engine metrics on the given registerer.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		EventsIngested: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "credwatch_events_ingested_total",
			Help: "Accepted security events by type and severity",
		}, []string{"type", "severity"}),
		EventsRejected: factory.NewCounter(prometheus.CounterOpts{
			Name: "credwatch_events_rejected_total",
			Help: "Events rejected at intake validation",
		}),
		EventsDropped: factory.NewCounter(prometheus.CounterOpts{
			Name: "credwatch_events_dropped_total",
			Help: "Events dropped by the ingestion rate cap",
		}),
		AlertsCreated: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "credwatch_alerts_created_total",
			Help: "Alerts created by rule and severity",
		}, []string{"rule", "severity"}),
		AlertsUpdated: factory.NewCounter(prometheus.CounterOpts{
			Name: "credwatch_alerts_updated_total",
			Help: "Updates applied to existing open alerts",
		}),
		AlertsResolved: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "credwatch_alerts_resolved_total",
			Help: "Alerts resolved, by resolver (manual or auto)",
		}, []string{"resolver"}),
		NotificationsSent: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "credwatch_notifications_sent_total",
			Help: "Notifications delivered by channel type",
		}, []string{"channel_type"}),
		NotificationsFailed: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "credwatch_notifications_failed_total",
			Help: "Notifications that failed after all retries, by channel type",
		}, []string{"channel_type"}),
		DispatchQueueDepth: factory.NewGauge(prometheus.GaugeOpts{
			Name: "credwatch_dispatch_queue_depth",
			Help: "Alerts waiting in the notification queue",
		}),
		DispatchDropped: factory.NewCounter(prometheus.CounterOpts{
			Name: "credwatch_dispatch_dropped_total",
			Help: "Dispatch jobs dropped because the queue was full",
		}),
		EvaluationDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "credwatch_evaluation_duration_seconds",
			Help:    "Time spent evaluating one event against the rule set",
			Buckets: prometheus.DefBuckets,
		}),
	}
}

// NewRegistry builds a registry preloaded with process and Go collectors.
func NewRegistry() *prometheus.Registry {
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	return registry
}
