package httppost

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/c360/currentlogger/metric"
)

type senderMetrics struct {
	requests *prometheus.CounterVec
	duration prometheus.Histogram
	inFlight prometheus.Gauge
}

func newSenderMetrics(registry *metric.MetricsRegistry) (*senderMetrics, error) {
	m := &senderMetrics{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metric.Namespace,
			Subsystem: "sender",
			Name:      "requests_total",
			Help:      "Collector requests by outcome (success, failure, open_failed)",
		}, []string{"outcome"}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: metric.Namespace,
			Subsystem: "sender",
			Name:      "request_duration_seconds",
			Help:      "Collector request duration",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}),
		inFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metric.Namespace,
			Subsystem: "sender",
			Name:      "in_flight",
			Help:      "1 while a request is outstanding",
		}),
	}

	if err := registry.RegisterCounterVec("sender", "requests", m.requests); err != nil {
		return nil, err
	}
	if err := registry.RegisterHistogram("sender", "request_duration", m.duration); err != nil {
		return nil, err
	}
	if err := registry.RegisterGauge("sender", "in_flight", m.inFlight); err != nil {
		return nil, err
	}
	return m, nil
}
