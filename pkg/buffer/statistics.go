package buffer

import (
	"sync"
	"sync/atomic"
	"time"
)

// Statistics tracks ring activity. Overflow drops and delivered evictions are counted
// separately so data loss can be told apart from successful delivery.
type Statistics struct {
	appends    int64
	peeks      int64
	evicted    int64
	overflows  int64
	mismatches int64

	mu          sync.RWMutex
	startTime   time.Time
	currentSize int64
	maxSize     int64
}

// NewStatistics creates a new statistics tracker.
func NewStatistics() *Statistics {
	return &Statistics{
		startTime: time.Now(),
	}
}

// Append records an append and the resulting size.
func (s *Statistics) Append(size int64) {
	atomic.AddInt64(&s.appends, 1)
	s.updateSize(size)
}

// Peek records a chunk peek.
func (s *Statistics) Peek() {
	atomic.AddInt64(&s.peeks, 1)
}

// Overflow records one entry lost to overwrite.
func (s *Statistics) Overflow() {
	atomic.AddInt64(&s.overflows, 1)
}

// Evict records delivered entries removed by an acknowledgment.
func (s *Statistics) Evict(removed, size int64) {
	atomic.AddInt64(&s.evicted, removed)
	s.updateSize(size)
}

// Mismatch records an eviction that stopped before the end of its chunk.
func (s *Statistics) Mismatch() {
	atomic.AddInt64(&s.mismatches, 1)
}

func (s *Statistics) updateSize(size int64) {
	s.mu.Lock()
	s.currentSize = size
	if size > s.maxSize {
		s.maxSize = size
	}
	s.mu.Unlock()
}

// Appends returns the total number of appended entries.
func (s *Statistics) Appends() int64 { return atomic.LoadInt64(&s.appends) }

// Peeks returns the total number of chunk peeks.
func (s *Statistics) Peeks() int64 { return atomic.LoadInt64(&s.peeks) }

// Evicted returns the number of entries removed after acknowledgment.
func (s *Statistics) Evicted() int64 { return atomic.LoadInt64(&s.evicted) }

// Overflows returns the number of entries lost to overwrite.
func (s *Statistics) Overflows() int64 { return atomic.LoadInt64(&s.overflows) }

// Mismatches returns the number of evictions that stopped early.
func (s *Statistics) Mismatches() int64 { return atomic.LoadInt64(&s.mismatches) }

// CurrentSize returns the size after the last recorded operation.
func (s *Statistics) CurrentSize() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.currentSize
}

// MaxSize returns the largest size observed.
func (s *Statistics) MaxSize() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.maxSize
}

// DropRate returns the fraction of appends that pushed out an older entry (0.0 to 1.0).
func (s *Statistics) DropRate() float64 {
	appends := s.Appends()
	if appends == 0 {
		return 0.0
	}
	return float64(s.Overflows()) / float64(appends)
}

// Uptime returns how long the ring has existed.
func (s *Statistics) Uptime() time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return time.Since(s.startTime)
}

// StatsSummary is a point-in-time copy of the statistics.
type StatsSummary struct {
	Appends     int64         `json:"appends"`
	Peeks       int64         `json:"peeks"`
	Evicted     int64         `json:"evicted"`
	Overflows   int64         `json:"overflow_drops"`
	Mismatches  int64         `json:"evict_mismatches"`
	CurrentSize int64         `json:"current_size"`
	MaxSize     int64         `json:"max_size"`
	DropRate    float64       `json:"drop_rate"`
	Uptime      time.Duration `json:"uptime"`
}

// Summary returns a snapshot of all statistics.
func (s *Statistics) Summary() StatsSummary {
	return StatsSummary{
		Appends:     s.Appends(),
		Peeks:       s.Peeks(),
		Evicted:     s.Evicted(),
		Overflows:   s.Overflows(),
		Mismatches:  s.Mismatches(),
		CurrentSize: s.CurrentSize(),
		MaxSize:     s.MaxSize(),
		DropRate:    s.DropRate(),
		Uptime:      s.Uptime(),
	}
}
