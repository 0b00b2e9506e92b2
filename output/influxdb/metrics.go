package influxdb

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/c360/currentlogger/metric"
)

type writerMetrics struct {
	writes   *prometheus.CounterVec
	duration prometheus.Histogram
}

func newWriterMetrics(registry *metric.MetricsRegistry) (*writerMetrics, error) {
	m := &writerMetrics{
		writes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metric.Namespace,
			Subsystem: "influxdb",
			Name:      "writes_total",
			Help:      "InfluxDB write requests by outcome (success, rejected, error)",
		}, []string{"outcome"}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: metric.Namespace,
			Subsystem: "influxdb",
			Name:      "write_duration_seconds",
			Help:      "InfluxDB write request duration",
			Buckets:   prometheus.DefBuckets,
		}),
	}
	if err := registry.RegisterCounterVec("influxdb", "writes", m.writes); err != nil {
		return nil, err
	}
	if err := registry.RegisterHistogram("influxdb", "write_duration", m.duration); err != nil {
		return nil, err
	}
	return m, nil
}
