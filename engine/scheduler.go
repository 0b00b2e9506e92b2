package engine

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/c360/currentlogger/errors"
	"github.com/c360/currentlogger/message"
	"github.com/c360/currentlogger/metric"
	"github.com/c360/currentlogger/output/httppost"
)

// Sensor returns one current reading in milliamps.
type Sensor interface {
	Read(ctx context.Context) (float64, error)
}

// Buffer holds measurements until they are acknowledged.
type Buffer interface {
	Append(m message.Measurement)
	PeekChunk(max int) []message.Measurement
	Evict(expected []message.Measurement) int
	Size() int
}

// Sender delivers one encoded chunk at a time.
type Sender interface {
	IsSending() bool
	Send(payload []byte) (string, error)
}

// Publisher receives every sample as a bare JSON object.
type Publisher interface {
	PublishMeasurement(ctx context.Context, data []byte) error
}

// StatusReporter emits the periodic status report.
type StatusReporter interface {
	Report(ctx context.Context) error
}

type completion struct {
	result  httppost.Result
	success bool
}

type pendingChunk struct {
	id     string
	chunk  []message.Measurement
	sentAt time.Time
}

// Stats are the scheduler counters.
type Stats struct {
	Samples      int64 `json:"samples"`
	SensorErrors int64 `json:"sensor_errors"`
	ChunksSent   int64 `json:"chunks_sent"`
	ChunksAcked  int64 `json:"chunks_acked"`
	ChunksFailed int64 `json:"chunks_failed"`
	SkippedBusy  int64 `json:"skipped_busy"`
	SkippedEmpty int64 `json:"skipped_empty"`
	Evicted      int64 `json:"evicted"`
	Mismatches   int64 `json:"evict_mismatches"`
}

// Scheduler is the cooperative sample/send/status loop.
// Tick and completion handling run on one goroutine; only the buffer is shared.
type Scheduler struct {
	cfg       Config
	sensor    Sensor
	buffer    Buffer
	sender    Sender
	publisher Publisher
	status    StatusReporter
	logger    *slog.Logger
	metrics   *metric.Metrics

	events chan completion

	started    bool
	lastSample time.Time
	lastSend   time.Time
	lastStatus time.Time
	pending    *pendingChunk
	inFlight   atomic.Bool

	samples      atomic.Int64
	sensorErrors atomic.Int64
	chunksSent   atomic.Int64
	chunksAcked  atomic.Int64
	chunksFailed atomic.Int64
	skippedBusy  atomic.Int64
	skippedEmpty atomic.Int64
	evicted      atomic.Int64
	mismatches   atomic.Int64
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Scheduler) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithMetrics records loop activity in the agent core metrics.
func WithMetrics(m *metric.Metrics) Option {
	return func(s *Scheduler) { s.metrics = m }
}

// WithPublisher publishes every sample on the pub/sub sink.
func WithPublisher(p Publisher) Option {
	return func(s *Scheduler) { s.publisher = p }
}

// WithStatusReporter sets the status collaborator.
func WithStatusReporter(r StatusReporter) Option {
	return func(s *Scheduler) { s.status = r }
}

// New creates a scheduler. sender may be nil when the HTTP sink is disabled.
func New(cfg Config, sensor Sensor, buffer Buffer, sender Sender, opts ...Option) (*Scheduler, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if sensor == nil || buffer == nil {
		return nil, errors.WrapFatal(errors.ErrMissingConfig, "Scheduler", "New", "sensor and buffer are required")
	}
	if cfg.MaxCatchUp < 1 {
		cfg.MaxCatchUp = 1
	}

	s := &Scheduler{
		cfg:    cfg,
		sensor: sensor,
		buffer: buffer,
		sender: sender,
		logger: slog.Default(),
		events: make(chan completion, 4),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("component", "scheduler")
	return s, nil
}

// OnSuccess is the sender success callback. It only hands the result to the loop.
func (s *Scheduler) OnSuccess(r httppost.Result) {
	s.events <- completion{result: r, success: true}
}

// OnFailure is the sender failure callback. It only hands the result to the loop.
func (s *Scheduler) OnFailure(r httppost.Result) {
	s.events <- completion{result: r, success: false}
}

// Run drives Tick from a ticker and handles completions as they arrive.
// It returns nil when ctx is done.
func (s *Scheduler) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.cfg.TickInterval)
	defer ticker.Stop()

	s.logger.Info("Dispatch loop started",
		"sample_interval", s.cfg.SampleInterval,
		"send_interval", s.cfg.SendInterval,
		"chunk_size", s.cfg.ChunkSize)

	s.Tick(ctx, time.Now())
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Dispatch loop stopped", "buffered", s.buffer.Size())
			return nil
		case ev := <-s.events:
			s.handle(ev)
		case now := <-ticker.C:
			s.Tick(ctx, now)
		}
	}
}

// Tick runs one loop iteration at time now: drain completions, then sample, send and
// report when due.
func (s *Scheduler) Tick(ctx context.Context, now time.Time) {
	if !s.started {
		s.started = true
		s.lastSample = now.Add(-s.cfg.SampleInterval)
		s.lastSend = now
		s.lastStatus = now
	}

	s.drain()

	if lag := now.Sub(s.lastSample); lag >= s.cfg.SampleInterval {
		if lag > time.Duration(s.cfg.MaxCatchUp)*s.cfg.SampleInterval {
			s.logger.Warn("Sampling fell behind, resynchronizing",
				"lag", lag, "max_catch_up", s.cfg.MaxCatchUp)
			s.lastSample = now.Add(-s.cfg.SampleInterval)
		}
		s.sample(ctx, now)
		s.lastSample = s.lastSample.Add(s.cfg.SampleInterval)
	}

	if s.sender != nil && now.Sub(s.lastSend) >= s.cfg.SendInterval {
		s.lastSend = now
		s.send(now)
	}

	if now.Sub(s.lastStatus) >= s.cfg.StatusInterval {
		s.lastStatus = now
		s.report(ctx)
	}
}

func (s *Scheduler) drain() {
	for {
		select {
		case ev := <-s.events:
			s.handle(ev)
		default:
			return
		}
	}
}

func (s *Scheduler) sample(ctx context.Context, now time.Time) {
	value, err := s.sensor.Read(ctx)
	if err == nil {
		m := message.New(value, now.UnixMilli())
		if err = m.Validate(); err == nil {
			s.buffer.Append(m)
			s.samples.Add(1)
			if s.metrics != nil {
				s.metrics.RecordSample(value)
			}
			s.logger.Debug("Sample taken", "value_ma", value, "buffered", s.buffer.Size())
			s.publish(ctx, m)
			return
		}
	}

	s.sensorErrors.Add(1)
	if s.metrics != nil {
		s.metrics.RecordSensorError()
	}
	s.logger.Warn("Sensor read failed", "error", err)
}

func (s *Scheduler) publish(ctx context.Context, m message.Measurement) {
	if s.publisher == nil {
		return
	}
	data, err := message.EncodeSingle(m)
	if err == nil {
		err = s.publisher.PublishMeasurement(ctx, data)
	}
	if err != nil {
		s.logger.Debug("Measurement publish dropped", "error", err)
	}
}

func (s *Scheduler) skip(reason string, counter *atomic.Int64) {
	if counter != nil {
		counter.Add(1)
	}
	if s.metrics != nil {
		s.metrics.RecordSkip(reason)
	}
}

func (s *Scheduler) send(now time.Time) {
	if s.pending != nil || s.sender.IsSending() {
		s.logger.Debug("Send skipped: busy")
		s.skip(metric.SkipBusy, &s.skippedBusy)
		return
	}

	chunk := s.buffer.PeekChunk(s.cfg.ChunkSize)
	if len(chunk) == 0 {
		s.logger.Debug("Send skipped: empty")
		s.skip(metric.SkipEmpty, &s.skippedEmpty)
		return
	}

	payload, chunk, err := s.encode(chunk)
	if err != nil {
		s.logger.Error("Chunk encoding failed", "error", err)
		s.skip(metric.SkipEncoding, nil)
		return
	}

	id, err := s.sender.Send(payload)
	if err != nil {
		s.skip(metric.SkipOpen, nil)
		return
	}

	s.pending = &pendingChunk{id: id, chunk: chunk, sentAt: now}
	s.inFlight.Store(true)
	s.chunksSent.Add(1)
	s.logger.Info("Chunk sent",
		"request_id", id, "count", len(chunk), "bytes", len(payload), "buffered", s.buffer.Size())
}

// encode halves the chunk until it fits the serialization buffer.
func (s *Scheduler) encode(chunk []message.Measurement) ([]byte, []message.Measurement, error) {
	for {
		payload, err := message.EncodeBatch(chunk, s.cfg.SerializationBuffer)
		if err == nil {
			return payload, chunk, nil
		}
		if !errors.Is(err, errors.ErrPayloadTooLarge) || len(chunk) == 1 {
			return nil, nil, err
		}
		s.logger.Debug("Chunk too large for serialization buffer, halving", "count", len(chunk))
		chunk = chunk[:len(chunk)/2]
	}
}

func (s *Scheduler) handle(ev completion) {
	p := s.pending
	if p == nil || p.id != ev.result.RequestID {
		s.logger.Warn("Completion for unknown request ignored", "request_id", ev.result.RequestID)
		return
	}
	s.pending = nil
	s.inFlight.Store(false)

	if !ev.success {
		s.chunksFailed.Add(1)
		if s.metrics != nil {
			s.metrics.RecordFailure()
		}
		s.logger.Warn("Chunk delivery failed, will resend",
			"request_id", p.id, "status", ev.result.StatusCode, "count", len(p.chunk), "error", ev.result.Err)
		return
	}

	removed := s.buffer.Evict(p.chunk)
	s.chunksAcked.Add(1)
	s.evicted.Add(int64(removed))
	if s.metrics != nil {
		s.metrics.RecordAck(len(p.chunk), removed)
	}
	if removed < len(p.chunk) {
		s.mismatches.Add(1)
		s.logger.Warn("Evicted fewer measurements than acknowledged",
			"request_id", p.id, "sent", len(p.chunk), "removed", removed)
		return
	}
	s.logger.Info("Chunk acknowledged",
		"request_id", p.id, "status", ev.result.StatusCode, "removed", removed, "buffered", s.buffer.Size())
}

func (s *Scheduler) report(ctx context.Context) {
	if s.status == nil {
		return
	}
	if err := s.status.Report(ctx); err != nil {
		s.logger.Warn("Status report failed", "error", err)
		return
	}
	if s.metrics != nil {
		s.metrics.RecordStatusReport()
	}
}

// Awaiting reports whether a sent chunk has not completed yet.
func (s *Scheduler) Awaiting() bool {
	return s.inFlight.Load()
}

// Stats returns the scheduler counters.
func (s *Scheduler) Stats() Stats {
	return Stats{
		Samples:      s.samples.Load(),
		SensorErrors: s.sensorErrors.Load(),
		ChunksSent:   s.chunksSent.Load(),
		ChunksAcked:  s.chunksAcked.Load(),
		ChunksFailed: s.chunksFailed.Load(),
		SkippedBusy:  s.skippedBusy.Load(),
		SkippedEmpty: s.skippedEmpty.Load(),
		Evicted:      s.evicted.Load(),
		Mismatches:   s.mismatches.Load(),
	}
}
