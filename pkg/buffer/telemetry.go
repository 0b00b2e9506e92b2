package buffer

import (
	"github.com/c360/currentlogger/message"
)

// Telemetry is the ring used by the agent to hold unsent measurements.
type Telemetry = Ring[message.Measurement]

func stampMeasurement(m message.Measurement, seq uint64) message.Measurement {
	m.Seq = seq
	return m
}

func measurementSeq(m message.Measurement) uint64 {
	return m.Seq
}

// NewTelemetry creates a measurement ring. Every appended measurement gets a sequence
// number; chunks without one are matched with message.Same.
func NewTelemetry(capacity int, options ...Option[message.Measurement]) (*Telemetry, error) {
	base := []Option[message.Measurement]{
		WithSequence[message.Measurement](stampMeasurement, measurementSeq),
		WithMatch[message.Measurement](message.Same),
	}
	return New(capacity, append(base, options...)...)
}
