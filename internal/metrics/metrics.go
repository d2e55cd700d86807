package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds every Prometheus metric the gatherer exports.
type Metrics struct {
	// EventsTotal counts dispatch events received from the gateway.
	// Labels: shard (index), type (dispatch name)
	EventsTotal *prometheus.CounterVec

	// EventBytesTotal counts dispatch payload bytes after decompression.
	// Labels: shard
	EventBytesTotal *prometheus.CounterVec

	// ShardStatus is the shard lifecycle state as a number:
	// 0=disconnected 1=connecting 2=waiting_for_hello 3=identifying
	// 4=resuming 5=connected 6=shutdown.
	// Labels: shard
	ShardStatus *prometheus.GaugeVec

	// ShardLatency is the most recent heartbeat round trip in seconds.
	// Labels: shard
	ShardLatency *prometheus.GaugeVec

	// DisconnectsTotal counts connection teardowns.
	// Labels: shard
	DisconnectsTotal *prometheus.CounterVec

	// IdentifiesTotal counts fresh identify handshakes.
	// Labels: shard
	IdentifiesTotal *prometheus.CounterVec

	// ResumesTotal counts resume attempts.
	// Labels: shard
	ResumesTotal *prometheus.CounterVec

	// FanoutPublished mirrors the fanout registry's cumulative publish count.
	FanoutPublished prometheus.Gauge

	// FanoutDropped mirrors the fanout registry's cumulative drop count,
	// events lost to full listener buffers.
	FanoutDropped prometheus.Gauge
}

// NewMetrics creates and registers all metrics with the default registry.
// Call once at startup.
func NewMetrics() *Metrics {
	return NewMetricsWith(prometheus.DefaultRegisterer)
}

// NewMetricsWith registers against a specific registerer so tests can use
// an isolated registry.
func NewMetricsWith(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		EventsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "discord_events_total",
				Help: "Total dispatch events received, by shard and dispatch type",
			},
			[]string{"shard", "type"},
		),

		EventBytesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "discord_event_bytes_total",
				Help: "Total dispatch payload bytes received, after decompression",
			},
			[]string{"shard"},
		),

		ShardStatus: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "discord_shard_status",
				Help: "Shard lifecycle state (0=disconnected 1=connecting 2=waiting_for_hello 3=identifying 4=resuming 5=connected 6=shutdown)",
			},
			[]string{"shard"},
		),

		ShardLatency: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "discord_shard_latency_seconds",
				Help: "Most recent heartbeat round-trip time in seconds",
			},
			[]string{"shard"},
		),

		DisconnectsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "discord_disconnects_total",
				Help: "Total gateway connection teardowns",
			},
			[]string{"shard"},
		),

		IdentifiesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "discord_identifies_total",
				Help: "Total fresh identify handshakes",
			},
			[]string{"shard"},
		),

		ResumesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "discord_resumes_total",
				Help: "Total session resume attempts",
			},
			[]string{"shard"},
		),

		FanoutPublished: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "discord_fanout_published_events",
				Help: "Cumulative events published to the fanout registry",
			},
		),

		FanoutDropped: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "discord_fanout_dropped_events",
				Help: "Cumulative events dropped by full listener buffers",
			},
		),
	}
}

// EventReceived records one dispatch event.
func (m *Metrics) EventReceived(shard, eventType string, bytes int) {
	m.EventsTotal.WithLabelValues(shard, eventType).Inc()
	m.EventBytesTotal.WithLabelValues(shard).Add(float64(bytes))
}

// ShardObserved records the polled state of one shard.
func (m *Metrics) ShardObserved(shard string, status float64, latencySeconds float64) {
	m.ShardStatus.WithLabelValues(shard).Set(status)
	if latencySeconds > 0 {
		m.ShardLatency.WithLabelValues(shard).Set(latencySeconds)
	}
}

// Disconnected records one connection teardown.
func (m *Metrics) Disconnected(shard string) {
	m.DisconnectsTotal.WithLabelValues(shard).Inc()
}

// IdentifyStarted records one fresh identify handshake.
func (m *Metrics) IdentifyStarted(shard string) {
	m.IdentifiesTotal.WithLabelValues(shard).Inc()
}

// ResumeStarted records one resume attempt.
func (m *Metrics) ResumeStarted(shard string) {
	m.ResumesTotal.WithLabelValues(shard).Inc()
}

// FanoutObserved records the fanout registry's cumulative counters.
func (m *Metrics) FanoutObserved(published, dropped uint64) {
	m.FanoutPublished.Set(float64(published))
	m.FanoutDropped.Set(float64(dropped))
}
