package telemetry

// Histogram bucket definitions
var (
	// PublishBuckets for relay publishes to external brokers
	PublishBuckets = []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5}

	// HealthCheckBuckets for upstream health probes
	HealthCheckBuckets = []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 2.5}
)

// Bridge Metrics
var (
	// BridgeEventsTotal counts events delivered to the subscriber by kind (status, error)
	BridgeEventsTotal CounterVec = noopCounterVec{}

	// BridgeDropsTotal counts dropped changes by reason
	// (no_subscriber, sink_full, sink_closed, sink_error, unknown_level)
	BridgeDropsTotal CounterVec = noopCounterVec{}

	// BridgeSubscriberAttached is 1 while a subscriber is registered
	BridgeSubscriberAttached Gauge = NoopStat{}

	// BridgeReplacementsTotal counts subscribers displaced by a newer Subscribe
	BridgeReplacementsTotal Counter = NoopStat{}

	// BridgeSinkQueueDepth is the number of events buffered in the subscriber sink
	BridgeSinkQueueDepth Gauge = NoopStat{}
)

// Upstream Watch Metrics
var (
	// WatchLevel is 1 for the current activity level token, 0 for the others
	WatchLevel GaugeVec = noopGaugeVec{}

	// WatchErrorsTotal counts producer errors reported by the watcher
	WatchErrorsTotal Counter = NoopStat{}

	// HealthCheckSeconds measures upstream health probe latency
	HealthCheckSeconds Histogram = NoopStat{}
)

// Publisher Metrics
var (
	// PublishedTotal counts records published by sink
	PublishedTotal CounterVec = noopCounterVec{}

	// PublishFailuresTotal counts publish attempts that failed by sink
	PublishFailuresTotal CounterVec = noopCounterVec{}

	// PublishFilteredTotal counts records skipped by the token filter
	PublishFilteredTotal Counter = NoopStat{}

	// PublishSeconds measures successful publish latency
	PublishSeconds Histogram = NoopStat{}
)

// InitMetrics initializes all Prometheus metrics.
// Called by InitializeTelemetry once the registry exists.
func InitMetrics() {
	BridgeEventsTotal = NewCounterVec(
		"bridge_events_total",
		"Events delivered to the subscriber by kind",
		[]string{"kind"},
	)
	BridgeDropsTotal = NewCounterVec(
		"bridge_drops_total",
		"Status changes dropped by the bridge by reason",
		[]string{"reason"},
	)
	BridgeSubscriberAttached = NewGauge(
		"bridge_subscriber_attached",
		"Whether a subscriber is attached (1=yes, 0=no)",
	)
	BridgeReplacementsTotal = NewCounter(
		"bridge_replacements_total",
		"Subscribers replaced by a newer subscription",
	)
	BridgeSinkQueueDepth = NewGauge(
		"bridge_sink_queue_depth",
		"Events buffered in the subscriber sink",
	)

	WatchLevel = NewGaugeVec(
		"watch_level",
		"Current upstream activity level",
		[]string{"level"},
	)
	WatchErrorsTotal = NewCounter(
		"watch_errors_total",
		"Producer errors reported by the upstream watcher",
	)
	HealthCheckSeconds = NewHistogramWithBuckets(
		"health_check_seconds",
		"Upstream health check latency in seconds",
		HealthCheckBuckets,
	)

	PublishedTotal = NewCounterVec(
		"published_total",
		"Records published by sink",
		[]string{"sink"},
	)
	PublishFailuresTotal = NewCounterVec(
		"publish_failures_total",
		"Failed publish attempts by sink",
		[]string{"sink"},
	)
	PublishFilteredTotal = NewCounter(
		"publish_filtered_total",
		"Records skipped by the token filter",
	)
	PublishSeconds = NewHistogramWithBuckets(
		"publish_seconds",
		"Publish latency in seconds",
		PublishBuckets,
	)
}
