package buffer

import (
	"fmt"
	"sync"

	"github.com/c360/currentlogger/errors"
)

type slot[T any] struct {
	seq  uint64
	item T
}

// Ring is a fixed-capacity FIFO that overwrites its oldest entry when full.
// Readers copy entries out with PeekChunk; entries leave only through Evict or overwrite.
// All methods are safe for concurrent use.
type Ring[T any] struct {
	mu      sync.Mutex
	storage []slot[T]
	head    int
	count   int
	nextSeq uint64

	stats   *Statistics
	metrics *ringMetrics
	opts    *ringOptions[T]
}

// New creates a ring holding up to capacity entries.
func New[T any](capacity int, options ...Option[T]) (*Ring[T], error) {
	if capacity < 1 {
		return nil, errors.WrapInvalid(
			fmt.Errorf("%w: capacity %d", errors.ErrInvalidConfig, capacity),
			"Ring", "New", "validate capacity")
	}

	opts := applyOptions(options...)
	r := &Ring[T]{
		storage: make([]slot[T], capacity),
		stats:   NewStatistics(),
		opts:    opts,
	}

	if opts.metricsReg != nil {
		m, err := newRingMetrics(opts.metricsReg, opts.metricsPrefix, capacity)
		if err != nil {
			return nil, errors.Wrap(err, "Ring", "New", "register metrics")
		}
		r.metrics = m
	}

	return r, nil
}

// Append stores item at the tail. When the ring is full the oldest entry is dropped.
func (r *Ring[T]) Append(item T) {
	r.mu.Lock()

	r.nextSeq++
	s := slot[T]{seq: r.nextSeq, item: item}
	if r.opts.stamp != nil {
		s.item = r.opts.stamp(item, s.seq)
	}

	capacity := len(r.storage)
	var dropped T
	overflow := r.count == capacity
	if overflow {
		dropped = r.storage[r.head].item
		r.storage[r.head] = s
		r.head = (r.head + 1) % capacity
	} else {
		r.storage[(r.head+r.count)%capacity] = s
		r.count++
	}
	size := r.count
	r.mu.Unlock()

	r.stats.Append(int64(size))
	if overflow {
		r.stats.Overflow()
	}
	if r.metrics != nil {
		r.metrics.recordAppend(size, overflow)
	}
	if overflow && r.opts.dropCallback != nil {
		r.opts.dropCallback(dropped)
	}
}

// PeekChunk copies the oldest min(Size, max) entries in FIFO order without removing them.
func (r *Ring[T]) PeekChunk(max int) []T {
	r.stats.Peek()
	if r.metrics != nil {
		r.metrics.recordPeek()
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	n := r.count
	if max < n {
		n = max
	}
	if n <= 0 {
		return nil
	}

	out := make([]T, n)
	capacity := len(r.storage)
	for i := 0; i < n; i++ {
		out[i] = r.storage[(r.head+i)%capacity].item
	}
	return out
}

// Evict removes entries from the front while they match expected positionally and returns
// how many entries were removed. It stops at the first mismatch.
//
// With sequencing enabled, expected entries older than the current front were already
// overwritten; they are passed over instead of counting as a mismatch.
func (r *Ring[T]) Evict(expected []T) int {
	if len(expected) == 0 {
		return 0
	}

	r.mu.Lock()
	removed, displaced := 0, 0
	capacity := len(r.storage)
	var zero slot[T]
	for i := 0; i < len(expected) && r.count > 0; i++ {
		front := r.storage[r.head]
		match, gone := r.compare(front, expected[i])
		if gone {
			displaced++
			continue
		}
		if !match {
			break
		}
		r.storage[r.head] = zero
		r.head = (r.head + 1) % capacity
		r.count--
		removed++
	}
	size := r.count
	r.mu.Unlock()

	r.stats.Evict(int64(removed), int64(size))
	mismatch := removed+displaced < len(expected)
	if mismatch {
		r.stats.Mismatch()
	}
	if r.metrics != nil {
		r.metrics.recordEvict(removed, size, mismatch)
	}
	return removed
}

// compare reports whether front is the expected entry, or whether expected predates front
// and can no longer be in the ring.
func (r *Ring[T]) compare(front slot[T], expected T) (match, gone bool) {
	if r.opts.seqOf != nil {
		if seq := r.opts.seqOf(expected); seq != 0 {
			return seq == front.seq, seq < front.seq
		}
	}
	if r.opts.match == nil {
		return false, false
	}
	return r.opts.match(front.item, expected), false
}

// Size returns the number of live entries.
func (r *Ring[T]) Size() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.count
}

// Capacity returns the fixed capacity.
func (r *Ring[T]) Capacity() int {
	return len(r.storage)
}

// Stats returns the always-on statistics.
func (r *Ring[T]) Stats() *Statistics {
	return r.stats
}
