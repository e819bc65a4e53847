package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auditwatch_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "auditwatch_http_request_duration_seconds",
			Help:    "HTTP request latency in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "endpoint", "status"},
	)

	HTTPResponseSize = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "auditwatch_http_response_size_bytes",
			Help:    "HTTP response size in bytes",
			Buckets: prometheus.ExponentialBuckets(100, 10, 8),
		},
		[]string{"method", "endpoint"},
	)

	// Monitoring loop metrics
	MonitorCyclesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "auditwatch_monitor_cycles_total",
			Help: "Total number of completed monitoring cycles",
		},
	)

	MonitorCycleDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "auditwatch_monitor_cycle_duration_seconds",
			Help:    "Time taken by one monitoring cycle across all targets",
			Buckets: []float64{.001, .005, .01, .05, .1, .5, 1, 5, 10, 30},
		},
	)

	MonitorRunning = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "auditwatch_monitor_running",
			Help: "1 while the monitoring loop is running",
		},
	)

	SampleErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auditwatch_sample_errors_total",
			Help: "Total number of failed metric samples",
		},
		[]string{"target_id"},
	)

	// Rule engine metrics
	RuleEvaluationsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "auditwatch_rule_evaluations_total",
			Help: "Total number of rule evaluations",
		},
	)

	FiringsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auditwatch_firings_total",
			Help: "Total number of rule firings",
		},
		[]string{"severity", "target_id"},
	)

	CooldownSuppressedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "auditwatch_cooldown_suppressed_total",
			Help: "Total number of matches suppressed by a rule cooldown",
		},
	)

	// Delivery metrics
	ChannelDeliveriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auditwatch_channel_deliveries_total",
			Help: "Total number of channel delivery attempts",
		},
		[]string{"kind", "status"}, // status: delivered, failed, skipped
	)

	ChannelDeliveryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "auditwatch_channel_delivery_duration_seconds",
			Help:    "Time taken to deliver a notification through one channel",
			Buckets: []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"kind"},
	)

	ActiveAlerts = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "auditwatch_active_alerts",
			Help: "Current number of open notifications in the ledger",
		},
	)

	// Kafka producer metrics
	KafkaPublishTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auditwatch_kafka_publish_total",
			Help: "Total number of notifications published to Kafka",
		},
		[]string{"status"}, // status: success, failed
	)

	KafkaPublishDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "auditwatch_kafka_publish_duration_seconds",
			Help:    "Time taken to publish to Kafka",
			Buckets: []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		},
	)

	KafkaPublishRetries = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "auditwatch_kafka_publish_retries_total",
			Help: "Total number of Kafka publish retries",
		},
	)

	// Archive / state persistence failures
	PersistenceErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auditwatch_persistence_errors_total",
			Help: "Total number of failed archive or cooldown-state writes",
		},
		[]string{"backend"},
	)

	// Panic recovery
	PanicsRecovered = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auditwatch_panics_recovered_total",
			Help: "Total number of panics recovered",
		},
		[]string{"component"},
	)
)
