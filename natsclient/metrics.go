package natsclient

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/c360/currentlogger/metric"
)

type clientMetrics struct {
	connected  prometheus.Gauge
	published  prometheus.Counter
	dropped    prometheus.Counter
	reconnects prometheus.Counter
}

// newClientMetrics returns nil when registry is nil.
func newClientMetrics(registry *metric.MetricsRegistry) (*clientMetrics, error) {
	if registry == nil {
		return nil, nil
	}

	m := &clientMetrics{
		connected: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metric.Namespace,
			Subsystem: "nats",
			Name:      "connected",
			Help:      "1 while the NATS link is up",
		}),
		published: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metric.Namespace,
			Subsystem: "nats",
			Name:      "published_total",
			Help:      "Messages handed to the NATS server",
		}),
		dropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metric.Namespace,
			Subsystem: "nats",
			Name:      "dropped_total",
			Help:      "Messages dropped because the link was down or the publish failed",
		}),
		reconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metric.Namespace,
			Subsystem: "nats",
			Name:      "reconnects_total",
			Help:      "Automatic reconnections",
		}),
	}

	if err := registry.RegisterGauge("nats", "connected", m.connected); err != nil {
		return nil, err
	}
	if err := registry.RegisterCounter("nats", "published", m.published); err != nil {
		return nil, err
	}
	if err := registry.RegisterCounter("nats", "dropped", m.dropped); err != nil {
		return nil, err
	}
	if err := registry.RegisterCounter("nats", "reconnects", m.reconnects); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *clientMetrics) setConnected(up bool) {
	if up {
		m.connected.Set(1)
		return
	}
	m.connected.Set(0)
}
