package gateway

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/c360/currentlogger/metric"
)

type collectorMetrics struct {
	requests        *prometheus.CounterVec
	measurements    prometheus.Counter
	forwardFailures *prometheus.CounterVec
	viewers         prometheus.Gauge
	rateLimited     prometheus.Counter
}

func newCollectorMetrics(registry *metric.MetricsRegistry) (*collectorMetrics, error) {
	if registry == nil {
		return nil, nil
	}
	m := &collectorMetrics{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metric.Namespace,
			Subsystem: "collector",
			Name:      "requests_total",
			Help:      "Ingest requests by HTTP status code",
		}, []string{"code"}),
		measurements: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metric.Namespace,
			Subsystem: "collector",
			Name:      "measurements_total",
			Help:      "Measurements accepted and forwarded",
		}),
		forwardFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metric.Namespace,
			Subsystem: "collector",
			Name:      "forward_failures_total",
			Help:      "Failed batch forwards by forwarder",
		}, []string{"forwarder"}),
		viewers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metric.Namespace,
			Subsystem: "collector",
			Name:      "live_viewers",
			Help:      "Connected websocket viewers",
		}),
		rateLimited: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metric.Namespace,
			Subsystem: "collector",
			Name:      "rate_limited_total",
			Help:      "Ingest requests refused by the rate limiter",
		}),
	}

	if err := registry.RegisterCounterVec("collector", "requests", m.requests); err != nil {
		return nil, err
	}
	if err := registry.RegisterCounter("collector", "measurements", m.measurements); err != nil {
		return nil, err
	}
	if err := registry.RegisterCounterVec("collector", "forward_failures", m.forwardFailures); err != nil {
		return nil, err
	}
	if err := registry.RegisterGauge("collector", "live_viewers", m.viewers); err != nil {
		return nil, err
	}
	if err := registry.RegisterCounter("collector", "rate_limited", m.rateLimited); err != nil {
		return nil, err
	}
	return m, nil
}
