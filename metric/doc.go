// Package metric provides Prometheus metrics for the agent and collector.
//
// A MetricsRegistry wraps a private prometheus.Registry. It always carries the agent core
// metrics (samples, sensor errors, dispatch skips, acknowledged and failed chunks, evictions)
// plus the Go runtime and process collectors. Components such as the ring buffer and the
// HTTP sender register their own metrics through the MetricsRegistrar interface; the
// registry rejects a second registration under the same owner and name.
//
// Usage:
//
//	registry := metric.NewMetricsRegistry()
//	server := metric.NewServer(9090, "/metrics", registry)
//	go func() { _ = server.Start(ctx) }()
//
//	registry.CoreMetrics().RecordSample(12.5)
//
// The server answers /metrics in Prometheus text or OpenMetrics format and /health.
package metric
