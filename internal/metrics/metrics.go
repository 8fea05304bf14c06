package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	SnapshotsReceived = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "neswara_snapshots_received_total",
			Help: "Snapshots received by the dashboard pipeline per collection",
		},
		[]string{"collection"},
	)

	SubscriptionErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "neswara_subscription_errors_total",
			Help: "Failed subscriptions or snapshot errors per collection",
		},
		[]string{"collection"},
	)

	RecomputeDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "neswara_dashboard_recompute_seconds",
			Help:    "Time spent recomputing dashboard state after an action",
			Buckets: prometheus.DefBuckets,
		},
	)

	TimestampsSkipped = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "neswara_trend_timestamps_skipped",
			Help: "Documents currently left out of trend buckets because their timestamp could not be parsed",
		},
		[]string{"metric"},
	)

	EmergencyActivations = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "neswara_ticker_emergency_activations_total",
			Help: "Emergency ticker activations that deactivated sibling items",
		},
	)

	ActivityLogFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "neswara_activity_log_failures_total",
			Help: "Audit records that could not be written",
		},
	)

	EventsPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "neswara_events_published_total",
			Help: "Content change events published to the message bus",
		},
		[]string{"collection", "result"},
	)

	WebSocketClients = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "neswara_websocket_clients",
			Help: "Connected dashboard WebSocket clients",
		},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "neswara_http_request_duration_seconds",
			Help:    "HTTP request latency by route and status",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route", "status"},
	)
)

func ObserveRecompute(start time.Time) {
	RecomputeDuration.Observe(time.Since(start).Seconds())
}

func RecordPublish(collection string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	EventsPublished.WithLabelValues(collection, result).Inc()
}
