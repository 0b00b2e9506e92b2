package health

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"runtime"
	"strings"
	"time"

	"github.com/c360/currentlogger/engine"
	"github.com/c360/currentlogger/errors"
	"github.com/c360/currentlogger/output/httppost"
	"github.com/c360/currentlogger/pkg/buffer"
	"github.com/c360/currentlogger/pkg/timestamp"
)

// BufferSource exposes ring buffer occupancy.
type BufferSource interface {
	Size() int
	Capacity() int
	Stats() *buffer.Statistics
}

// SenderSource exposes the HTTP sender state.
type SenderSource interface {
	State() httppost.State
	Stats() httppost.Stats
}

// DispatchSource exposes the dispatch loop counters.
type DispatchSource interface {
	Stats() engine.Stats
}

// StatusPublisher receives the JSON status report.
type StatusPublisher interface {
	PublishStatus(ctx context.Context, data []byte) error
}

// MemoryReport is a subset of runtime.MemStats.
type MemoryReport struct {
	HeapInUse  uint64 `json:"heap_in_use"`
	HeapSys    uint64 `json:"heap_sys"`
	NumGC      uint32 `json:"num_gc"`
	Goroutines int    `json:"goroutines"`
}

// BufferReport describes the ring buffer.
type BufferReport struct {
	Size      int   `json:"size"`
	Capacity  int   `json:"capacity"`
	Overflows int64 `json:"overflow_drops"`
	Evicted   int64 `json:"evicted"`
}

// SenderReport describes the HTTP sender.
type SenderReport struct {
	State string `json:"state"`
	httppost.Stats
}

// Report is one status snapshot.
type Report struct {
	Device    string        `json:"device"`
	Timestamp int64         `json:"timestamp"`
	UptimeSec int64         `json:"uptime_s"`
	Health    State         `json:"health,omitempty"`
	Memory    MemoryReport  `json:"memory"`
	Buffer    *BufferReport `json:"buffer,omitempty"`
	Sender    *SenderReport `json:"sender,omitempty"`
	Dispatch  *engine.Stats `json:"dispatch,omitempty"`
}

// String renders the report one field per line.
func (r Report) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Device: %s\n", r.Device)
	fmt.Fprintf(&b, "Heap In Use: %d Bytes\n", r.Memory.HeapInUse)
	fmt.Fprintf(&b, "Heap Sys: %d Bytes\n", r.Memory.HeapSys)
	fmt.Fprintf(&b, "GC Cycles: %d\n", r.Memory.NumGC)
	fmt.Fprintf(&b, "Goroutines: %d\n", r.Memory.Goroutines)
	fmt.Fprintf(&b, "Uptime: %d s\n", r.UptimeSec)
	if r.Health != "" {
		fmt.Fprintf(&b, "Health: %s\n", r.Health)
	}
	if r.Buffer != nil {
		fmt.Fprintf(&b, "Buffer: %d/%d (overflow drops %d)\n", r.Buffer.Size, r.Buffer.Capacity, r.Buffer.Overflows)
	}
	if r.Sender != nil {
		fmt.Fprintf(&b, "Sender: %s (ok %d, failed %d)\n", r.Sender.State, r.Sender.Successes, r.Sender.Failures)
	}
	if r.Dispatch != nil {
		fmt.Fprintf(&b, "Chunks: sent %d, acked %d, failed %d\n",
			r.Dispatch.ChunksSent, r.Dispatch.ChunksAcked, r.Dispatch.ChunksFailed)
	}
	return b.String()
}

// Reporter builds and emits status reports.
type Reporter struct {
	device    string
	clock     timestamp.Clock
	start     time.Time
	logger    *slog.Logger
	buffer    BufferSource
	sender    SenderSource
	dispatch  DispatchSource
	monitor   *Monitor
	publisher StatusPublisher
}

// ReporterOption configures a Reporter.
type ReporterOption func(*Reporter)

// WithBuffer includes ring buffer occupancy.
func WithBuffer(b BufferSource) ReporterOption {
	return func(r *Reporter) { r.buffer = b }
}

// WithSender includes the HTTP sender state.
func WithSender(s SenderSource) ReporterOption {
	return func(r *Reporter) { r.sender = s }
}

// WithDispatch includes dispatch loop counters.
func WithDispatch(d DispatchSource) ReporterOption {
	return func(r *Reporter) { r.dispatch = d }
}

// WithMonitor includes the aggregate health level.
func WithMonitor(m *Monitor) ReporterOption {
	return func(r *Reporter) { r.monitor = m }
}

// WithPublisher publishes every report.
func WithPublisher(p StatusPublisher) ReporterOption {
	return func(r *Reporter) { r.publisher = p }
}

// WithReporterLogger sets the logger.
func WithReporterLogger(l *slog.Logger) ReporterOption {
	return func(r *Reporter) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithReporterClock sets the time source.
func WithReporterClock(c timestamp.Clock) ReporterOption {
	return func(r *Reporter) {
		if c != nil {
			r.clock = c
		}
	}
}

// NewReporter creates a reporter for device. Uptime counts from this call.
func NewReporter(device string, opts ...ReporterOption) *Reporter {
	r := &Reporter{
		device: device,
		clock:  timestamp.System,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.start = r.clock.Now()
	r.logger = r.logger.With("component", "status")
	return r
}

// Build takes a snapshot.
func (r *Reporter) Build() Report {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)

	now := r.clock.Now()
	rep := Report{
		Device:    r.device,
		Timestamp: now.UnixMilli(),
		UptimeSec: int64(now.Sub(r.start) / time.Second),
		Memory: MemoryReport{
			HeapInUse:  ms.HeapInuse,
			HeapSys:    ms.HeapSys,
			NumGC:      ms.NumGC,
			Goroutines: runtime.NumGoroutine(),
		},
	}
	if r.monitor != nil {
		rep.Health = r.monitor.Aggregate().State
	}
	if r.buffer != nil {
		stats := r.buffer.Stats()
		rep.Buffer = &BufferReport{
			Size:      r.buffer.Size(),
			Capacity:  r.buffer.Capacity(),
			Overflows: stats.Overflows(),
			Evicted:   stats.Evicted(),
		}
	}
	if r.sender != nil {
		rep.Sender = &SenderReport{State: r.sender.State().String(), Stats: r.sender.Stats()}
	}
	if r.dispatch != nil {
		d := r.dispatch.Stats()
		rep.Dispatch = &d
	}
	return rep
}

// Report logs a snapshot and publishes it when a publisher is configured.
func (r *Reporter) Report(ctx context.Context) error {
	rep := r.Build()
	r.logger.Info("Status report", "report", rep.String())

	if r.publisher == nil {
		return nil
	}
	data, err := json.Marshal(rep)
	if err != nil {
		return errors.WrapInvalid(err, "Reporter", "Report", "marshal status")
	}
	if err := r.publisher.PublishStatus(ctx, data); err != nil {
		return errors.Wrap(err, "Reporter", "Report", "publish status")
	}
	return nil
}
