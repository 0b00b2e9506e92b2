// Package buffer provides the bounded ring that holds measurements until the collector
// acknowledges them.
//
// # Semantics
//
// A Ring has a fixed capacity chosen at construction and never resizes. Append never fails:
// when the ring is full the oldest entry is overwritten and counted as an overflow drop.
// PeekChunk copies the oldest entries out without removing them, so a chunk in flight never
// aliases ring storage. Evict removes entries from the front only while they match the
// acknowledged chunk, and stops at the first mismatch. Acknowledged entries that were
// overwritten while the chunk was in flight are passed over, so a slow send never blocks
// eviction of the entries that are still there.
//
// NewTelemetry builds the measurement ring used by the agent. It stamps every appended
// measurement with a sequence number and matches evictions on that sequence, falling back
// to timestamp and value comparison for chunks built elsewhere.
//
//	ring, err := buffer.NewTelemetry(3600,
//		buffer.WithMetrics[message.Measurement](registry, "telemetry"),
//		buffer.WithDropCallback[message.Measurement](func(m message.Measurement) { logger.Warn("dropped", "m", m) }),
//	)
//	ring.Append(message.New(12.5, timestamp.Now()))
//	chunk := ring.PeekChunk(256)
//	// ... on acknowledgment:
//	removed := ring.Evict(chunk)
//
// # Observability
//
// Statistics are always collected (appends, peeks, evictions, overflow drops, eviction
// mismatches, max size). WithMetrics additionally exports them to Prometheus under the
// currentlogger_buffer_* names with a component label.
//
// The lock is held only while indexing and copying. Drop callbacks and metric updates run
// after it is released.
package buffer
