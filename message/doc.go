// Package message defines the Measurement sample and its wire encodings.
//
// A Measurement is a current reading in milliamps stamped with epoch milliseconds.
// It is a small value type and is always copied, never shared.
//
// Two JSON shapes leave the agent:
//
//	batch:  {"measurements":[{"timestamp":1700000000000,"value":12.5}, ...]}
//	single: {"timestamp":1700000000000,"value":12.5}
//
// The batch shape is posted to the collector; the single shape is published per sample on
// the pub/sub sink. The Seq field is an append-order identity assigned by the ring buffer
// and never appears on the wire.
package message
