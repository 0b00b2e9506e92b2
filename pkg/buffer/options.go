package buffer

import (
	"github.com/c360/currentlogger/metric"
)

// Option configures a Ring using the functional options pattern.
type Option[T any] func(*ringOptions[T])

// MatchFunc reports whether a stored entry is the expected one during eviction.
type MatchFunc[T any] func(stored, expected T) bool

// StampFunc returns item carrying the append sequence number seq.
type StampFunc[T any] func(item T, seq uint64) T

// SeqFunc reads the sequence number back from an item. Zero means none.
type SeqFunc[T any] func(item T) uint64

// DropCallback is called for every entry overwritten by an append into a full ring.
type DropCallback[T any] func(item T)

// Stats are always collected. Metrics and callbacks are optional.
type ringOptions[T any] struct {
	match        MatchFunc[T]
	stamp        StampFunc[T]
	seqOf        SeqFunc[T]
	dropCallback DropCallback[T]

	metricsReg    *metric.MetricsRegistry
	metricsPrefix string
}

// WithMatch sets the eviction matcher. Without one nothing ever matches.
func WithMatch[T any](match MatchFunc[T]) Option[T] {
	return func(opts *ringOptions[T]) {
		opts.match = match
	}
}

// WithSequence enables sequence acknowledgment. stamp records the append sequence number
// on each entry and seqOf reads it back from an acknowledged chunk. Evict then compares
// sequence numbers and uses the matcher only for entries without one.
func WithSequence[T any](stamp StampFunc[T], seqOf SeqFunc[T]) Option[T] {
	return func(opts *ringOptions[T]) {
		opts.stamp = stamp
		opts.seqOf = seqOf
	}
}

// WithMetrics enables Prometheus metrics export for ring statistics.
// A nil registry or empty prefix disables it.
func WithMetrics[T any](registry *metric.MetricsRegistry, prefix string) Option[T] {
	return func(opts *ringOptions[T]) {
		if registry != nil && prefix != "" {
			opts.metricsReg = registry
			opts.metricsPrefix = prefix
		}
	}
}

// WithDropCallback sets a callback for overwritten entries.
// It runs on the appending goroutine after the lock is released.
func WithDropCallback[T any](callback DropCallback[T]) Option[T] {
	return func(opts *ringOptions[T]) {
		opts.dropCallback = callback
	}
}

func applyOptions[T any](options ...Option[T]) *ringOptions[T] {
	opts := &ringOptions[T]{}
	for _, opt := range options {
		if opt != nil {
			opt(opts)
		}
	}
	return opts
}
