// Package currentlogger samples an electrical current sensor on a fixed cadence, keeps the
// readings in a bounded ring buffer and ships them to a collector.
//
// # Architecture
//
// The agent is one cooperative loop (engine.Scheduler) plus a handful of collaborators:
//
//	sensor ──Read──▶ Scheduler ──Append──▶ buffer.Ring ◀──PeekChunk/Evict── Scheduler
//	                     │                                                      │
//	                     ├──PublishMeasurement──▶ pubsub.Sink ──▶ NATS          │
//	                     ├──Report──▶ health.Reporter ──▶ <prefix>/status       │
//	                     └──Send──▶ httppost.Sender ──POST──▶ collector ──ack───┘
//
// Samples are appended every sample interval. Every send interval the oldest chunk is
// encoded and posted; a chunk leaves the buffer only after the collector answers 2xx,
// and only the entries that are still the ones that were sent. While the buffer is full,
// new samples overwrite the oldest.
//
// # Delivery
//
// Exactly one HTTP request is in flight at a time. A send tick that finds the sender
// busy, or the buffer empty, is skipped. Failed chunks stay buffered and go out again on
// a later tick. Pub/sub publishing is at-most-once: while the broker is unreachable
// messages are dropped, never queued.
//
// # Packages
//
//   - engine: the sample/send/status loop
//   - pkg/buffer: the generic ring buffer with sequence acknowledgment
//   - message: the measurement type and batch codec
//   - input/sensor: hwmon, shunt, static and simulated current sources
//   - output/httppost: the single-flight collector client
//   - output/pubsub and natsclient: the NATS sink
//   - health: component health and the periodic status report
//   - config: layered JSON/YAML/env configuration
//   - metric: Prometheus registry and /metrics, /health server
//   - gateway and output/influxdb: the collector side (cmd/collector)
//
// Binaries live in cmd/currentlogger (the agent) and cmd/collector.
package currentlogger
