package metric

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Skip reasons recorded when a send-due tick does not submit a chunk.
const (
	SkipBusy     = "busy"
	SkipEmpty    = "empty"
	SkipEncoding = "encoding"
	SkipOpen     = "open_failed"
)

// Metrics contains the agent-level metrics
type Metrics struct {
	SamplesTotal    prometheus.Counter
	SensorErrors    prometheus.Counter
	DispatchSkips   *prometheus.CounterVec
	ChunksAcked     prometheus.Counter
	ChunksFailed    prometheus.Counter
	Evicted         prometheus.Counter
	EvictMismatch   prometheus.Counter
	PublishFailures *prometheus.CounterVec
	PubsubConnected prometheus.Gauge
	ClockSynced     prometheus.Gauge
	LastSampleValue prometheus.Gauge
	StatusReports   prometheus.Counter
}

// NewMetrics creates the agent metrics. They are registered by NewMetricsRegistry.
func NewMetrics() *Metrics {
	return &Metrics{
		SamplesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "samples_total",
			Help:      "Total number of measurements taken from the sensor",
		}),
		SensorErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "sensor_errors_total",
			Help:      "Total number of failed sensor reads",
		}),
		DispatchSkips: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "dispatch_skips_total",
			Help:      "Send-due ticks that did not submit a chunk, by reason",
		}, []string{"reason"}),
		ChunksAcked: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "chunks_acked_total",
			Help:      "Chunks acknowledged by the collector",
		}),
		ChunksFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "chunks_failed_total",
			Help:      "Chunks that completed with a failure and stay buffered",
		}),
		Evicted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "chunks_evicted_total",
			Help:      "Measurements removed from the buffer after acknowledgment",
		}),
		EvictMismatch: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "evict_mismatch_total",
			Help:      "Acknowledged chunks whose eviction stopped early",
		}),
		PublishFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "publish_failures_total",
			Help:      "Pub/sub publishes dropped, by topic kind",
		}, []string{"kind"}),
		PubsubConnected: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Subsystem: "pubsub",
			Name:      "connected",
			Help:      "Pub/sub connection status (0=disconnected, 1=connected)",
		}),
		ClockSynced: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "clock_synced",
			Help:      "Whether the wall clock was synchronized at startup",
		}),
		LastSampleValue: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "last_sample_milliamps",
			Help:      "Most recent current reading in mA",
		}),
		StatusReports: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "status_reports_total",
			Help:      "Status reports emitted",
		}),
	}
}

func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.SamplesTotal,
		m.SensorErrors,
		m.DispatchSkips,
		m.ChunksAcked,
		m.ChunksFailed,
		m.Evicted,
		m.EvictMismatch,
		m.PublishFailures,
		m.PubsubConnected,
		m.ClockSynced,
		m.LastSampleValue,
		m.StatusReports,
	}
}

// RecordSample counts a successful sensor read.
func (m *Metrics) RecordSample(value float64) {
	m.SamplesTotal.Inc()
	m.LastSampleValue.Set(value)
}

// RecordSensorError counts a failed sensor read.
func (m *Metrics) RecordSensorError() {
	m.SensorErrors.Inc()
}

// RecordSkip counts a send-due tick that submitted nothing.
func (m *Metrics) RecordSkip(reason string) {
	m.DispatchSkips.WithLabelValues(reason).Inc()
}

// RecordAck records an acknowledged chunk and how many entries it removed.
func (m *Metrics) RecordAck(sent, removed int) {
	m.ChunksAcked.Inc()
	m.Evicted.Add(float64(removed))
	if removed < sent {
		m.EvictMismatch.Inc()
	}
}

// RecordFailure counts a chunk that completed without acknowledgment.
func (m *Metrics) RecordFailure() {
	m.ChunksFailed.Inc()
}

// RecordPublishFailure counts a dropped pub/sub publish.
func (m *Metrics) RecordPublishFailure(kind string) {
	m.PublishFailures.WithLabelValues(kind).Inc()
}

// RecordPubsubConnected tracks the pub/sub link state.
func (m *Metrics) RecordPubsubConnected(connected bool) {
	m.PubsubConnected.Set(boolToFloat(connected))
}

// RecordClockSynced tracks the startup wall-clock check.
func (m *Metrics) RecordClockSynced(synced bool) {
	m.ClockSynced.Set(boolToFloat(synced))
}

// RecordStatusReport counts an emitted status report.
func (m *Metrics) RecordStatusReport() {
	m.StatusReports.Inc()
}

func boolToFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
