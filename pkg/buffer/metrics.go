package buffer

import (
	"github.com/c360/currentlogger/metric"
	"github.com/prometheus/client_golang/prometheus"
)

type ringMetrics struct {
	capacity int

	appends    prometheus.Counter
	peeks      prometheus.Counter
	evicted    prometheus.Counter
	overflows  prometheus.Counter
	mismatches prometheus.Counter

	size        prometheus.Gauge
	utilization prometheus.Gauge
}

func newRingMetrics(registry *metric.MetricsRegistry, prefix string, capacity int) (*ringMetrics, error) {
	labels := prometheus.Labels{"component": prefix}
	counter := func(name, help string) prometheus.Counter {
		return prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   metric.Namespace,
			Subsystem:   "buffer",
			Name:        name,
			ConstLabels: labels,
			Help:        help,
		})
	}
	gauge := func(name, help string) prometheus.Gauge {
		return prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   metric.Namespace,
			Subsystem:   "buffer",
			Name:        name,
			ConstLabels: labels,
			Help:        help,
		})
	}

	m := &ringMetrics{
		capacity:    capacity,
		appends:     counter("appends_total", "Total number of entries appended"),
		peeks:       counter("peeks_total", "Total number of chunk peeks"),
		evicted:     counter("evicted_total", "Entries removed after acknowledgment"),
		overflows:   counter("overflow_drops_total", "Entries lost because the buffer was full"),
		mismatches:  counter("evict_mismatches_total", "Evictions that stopped before the end of the chunk"),
		size:        gauge("size", "Current number of buffered entries"),
		utilization: gauge("utilization", "Buffer utilization (0.0 to 1.0)"),
	}

	counters := []struct {
		name string
		c    prometheus.Counter
	}{
		{"buffer_appends", m.appends},
		{"buffer_peeks", m.peeks},
		{"buffer_evicted", m.evicted},
		{"buffer_overflow_drops", m.overflows},
		{"buffer_evict_mismatches", m.mismatches},
	}
	for _, c := range counters {
		if err := registry.RegisterCounter(prefix, c.name, c.c); err != nil {
			return nil, err
		}
	}
	if err := registry.RegisterGauge(prefix, "buffer_size", m.size); err != nil {
		return nil, err
	}
	if err := registry.RegisterGauge(prefix, "buffer_utilization", m.utilization); err != nil {
		return nil, err
	}

	return m, nil
}

func (m *ringMetrics) setSize(size int) {
	m.size.Set(float64(size))
	m.utilization.Set(float64(size) / float64(m.capacity))
}

func (m *ringMetrics) recordAppend(size int, overflow bool) {
	m.appends.Inc()
	if overflow {
		m.overflows.Inc()
	}
	m.setSize(size)
}

func (m *ringMetrics) recordPeek() {
	m.peeks.Inc()
}

func (m *ringMetrics) recordEvict(removed, size int, mismatch bool) {
	m.evicted.Add(float64(removed))
	if mismatch {
		m.mismatches.Inc()
	}
	m.setSize(size)
}
