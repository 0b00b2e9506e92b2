package httppost

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/klauspost/compress/gzip"

	"github.com/c360/currentlogger/errors"
	"github.com/c360/currentlogger/metric"
)

// StatusNoResponse is reported to the failure callback when no HTTP status was received.
const StatusNoResponse = -1

// maxResponseBody bounds how much of a response body is handed to callbacks.
const maxResponseBody = 64 << 10

// State is the sender's single-flight state.
type State int32

const (
	// Idle accepts a new Send.
	Idle State = iota
	// Sending has one request in flight.
	Sending
)

// String returns the state name
func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Sending:
		return "sending"
	default:
		return "unknown"
	}
}

// Result describes one completed request.
type Result struct {
	RequestID  string
	StatusCode int
	Body       string
	Err        error
	Duration   time.Duration
}

// Success reports whether the collector acknowledged the request.
func (r Result) Success() bool {
	return r.Err == nil && r.StatusCode >= 200 && r.StatusCode < 300
}

// Callback receives the outcome of a request. It runs on the sender's request goroutine.
type Callback func(Result)

// Stats holds sender counters.
type Stats struct {
	Attempts     int64 `json:"attempts"`
	Successes    int64 `json:"successes"`
	Failures     int64 `json:"failures"`
	OpenFailures int64 `json:"open_failures"`
}

// Sender posts one payload at a time to the collector.
// Send returns immediately; exactly one callback fires per opened request, after the state
// is back to Idle.
type Sender struct {
	cfg    Config
	client *http.Client
	logger *slog.Logger

	state     atomic.Int32
	onSuccess Callback
	onFailure Callback
	cbMu      sync.RWMutex

	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	closeMu sync.Mutex
	closed  bool

	attempts     atomic.Int64
	successes    atomic.Int64
	failures     atomic.Int64
	openFailures atomic.Int64

	metrics *senderMetrics
}

// Option configures a Sender.
type Option func(*Sender) error

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Sender) error {
		if logger != nil {
			s.logger = logger
		}
		return nil
	}
}

// WithHTTPClient replaces the HTTP client. Request deadlines still come from Config.Timeout.
func WithHTTPClient(client *http.Client) Option {
	return func(s *Sender) error {
		if client != nil {
			s.client = client
		}
		return nil
	}
}

// WithMetrics registers request metrics with registry.
func WithMetrics(registry *metric.MetricsRegistry) Option {
	return func(s *Sender) error {
		if registry == nil {
			return nil
		}
		m, err := newSenderMetrics(registry)
		if err != nil {
			return err
		}
		s.metrics = m
		return nil
	}
}

// WithCallbacks sets the completion callbacks.
func WithCallbacks(onSuccess, onFailure Callback) Option {
	return func(s *Sender) error {
		s.onSuccess = onSuccess
		s.onFailure = onFailure
		return nil
	}
}

// New creates a sender. cfg is validated first.
func New(cfg Config, opts ...Option) (*Sender, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	rt, err := cfg.transport()
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Sender{
		cfg:    cfg,
		client: &http.Client{Transport: rt},
		logger: slog.Default(),
		ctx:    ctx,
		cancel: cancel,
	}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			cancel()
			return nil, errors.Wrap(err, "Sender", "New", "apply option")
		}
	}
	s.logger = s.logger.With("component", "sender")
	return s, nil
}

// SetCallbacks replaces the completion callbacks.
func (s *Sender) SetCallbacks(onSuccess, onFailure Callback) {
	s.cbMu.Lock()
	s.onSuccess = onSuccess
	s.onFailure = onFailure
	s.cbMu.Unlock()
}

// IsSending reports whether a request is in flight.
func (s *Sender) IsSending() bool {
	return State(s.state.Load()) == Sending
}

// State returns the current state.
func (s *Sender) State() State {
	return State(s.state.Load())
}

// Send starts posting payload and returns the request id.
// When the request cannot be opened it returns an error, stays Idle and no callback fires.
func (s *Sender) Send(payload []byte) (string, error) {
	if s.isClosed() {
		return "", s.openFailed(errors.ErrShuttingDown, "sender closed")
	}
	if s.cfg.URL == "" {
		return "", s.openFailed(errors.ErrNoEndpoint, "no endpoint configured")
	}
	if !s.state.CompareAndSwap(int32(Idle), int32(Sending)) {
		return "", s.openFailed(errors.ErrSenderBusy, "transport busy")
	}

	id := uuid.NewString()
	req, cancel, err := s.newRequest(id, payload)
	if err != nil {
		s.state.Store(int32(Idle))
		return "", s.openFailed(err, "build request")
	}
	if !s.track() {
		cancel()
		s.state.Store(int32(Idle))
		return "", s.openFailed(errors.ErrShuttingDown, "sender closed")
	}

	s.attempts.Add(1)
	if s.metrics != nil {
		s.metrics.inFlight.Set(1)
	}
	s.logger.Debug("Sending chunk", "request_id", id, "bytes", len(payload), "url", s.cfg.URL)

	go s.do(req, cancel, id)
	return id, nil
}

func (s *Sender) isClosed() bool {
	s.closeMu.Lock()
	defer s.closeMu.Unlock()
	return s.closed
}

// track registers an in-flight request unless Close has begun.
func (s *Sender) track() bool {
	s.closeMu.Lock()
	defer s.closeMu.Unlock()
	if s.closed {
		return false
	}
	s.wg.Add(1)
	return true
}

func (s *Sender) openFailed(err error, reason string) error {
	s.openFailures.Add(1)
	if s.metrics != nil {
		s.metrics.requests.WithLabelValues("open_failed").Inc()
	}
	s.logger.Warn("Send not opened", "reason", reason, "error", err)
	return errors.WrapTransient(err, "Sender", "Send", reason)
}

func (s *Sender) newRequest(id string, payload []byte) (*http.Request, context.CancelFunc, error) {
	body := payload
	if s.cfg.Gzip {
		var buf bytes.Buffer
		zw := gzip.NewWriter(&buf)
		if _, err := zw.Write(payload); err != nil {
			return nil, nil, err
		}
		if err := zw.Close(); err != nil {
			return nil, nil, err
		}
		body = buf.Bytes()
	}

	ctx, cancel := context.WithTimeout(s.ctx, s.cfg.Timeout)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.URL, bytes.NewReader(body))
	if err != nil {
		cancel()
		return nil, nil, err
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Request-ID", id)
	if s.cfg.UserAgent != "" {
		req.Header.Set("User-Agent", s.cfg.UserAgent)
	}
	if s.cfg.Gzip {
		req.Header.Set("Content-Encoding", "gzip")
	}
	if s.cfg.APIToken != "" {
		req.Header.Set("X-API-Token", s.cfg.APIToken)
	}
	if s.cfg.basicAuth() {
		req.SetBasicAuth(s.cfg.Username, s.cfg.Password)
	}
	for k, v := range s.cfg.Headers {
		req.Header.Set(k, v)
	}
	return req, cancel, nil
}

func (s *Sender) do(req *http.Request, cancel context.CancelFunc, id string) {
	defer s.wg.Done()
	defer cancel()

	start := time.Now()
	result := Result{RequestID: id, StatusCode: StatusNoResponse}

	resp, err := s.client.Do(req)
	if err != nil {
		result.Err = errors.WrapTransient(err, "Sender", "do", "post chunk")
	} else {
		data, readErr := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
		_, _ = io.Copy(io.Discard, resp.Body)
		resp.Body.Close()

		result.StatusCode = resp.StatusCode
		result.Body = string(data)
		if readErr != nil {
			result.Err = errors.WrapTransient(readErr, "Sender", "do", "read response")
		} else if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			result.Err = errors.WrapTransient(errors.ErrRemoteRejected, "Sender", "do", resp.Status)
		}
	}
	result.Duration = time.Since(start)

	s.complete(result)
}

func (s *Sender) complete(result Result) {
	outcome := "success"
	if result.Success() {
		s.successes.Add(1)
		s.logger.Debug("Chunk acknowledged",
			"request_id", result.RequestID, "status", result.StatusCode, "duration", result.Duration)
	} else {
		outcome = "failure"
		s.failures.Add(1)
		s.logger.Warn("Chunk not acknowledged",
			"request_id", result.RequestID, "status", result.StatusCode,
			"duration", result.Duration, "error", result.Err)
	}
	if s.metrics != nil {
		s.metrics.requests.WithLabelValues(outcome).Inc()
		s.metrics.duration.Observe(result.Duration.Seconds())
		s.metrics.inFlight.Set(0)
	}

	s.cbMu.RLock()
	cb := s.onFailure
	if result.Success() {
		cb = s.onSuccess
	}
	s.cbMu.RUnlock()

	s.state.Store(int32(Idle))
	if cb != nil {
		cb(result)
	}
}

// Stats returns the sender counters.
func (s *Sender) Stats() Stats {
	return Stats{
		Attempts:     s.attempts.Load(),
		Successes:    s.successes.Load(),
		Failures:     s.failures.Load(),
		OpenFailures: s.openFailures.Load(),
	}
}

// Close cancels any in-flight request and waits for its callback to finish.
func (s *Sender) Close() error {
	s.closeMu.Lock()
	if s.closed {
		s.closeMu.Unlock()
		return nil
	}
	s.closed = true
	s.closeMu.Unlock()

	s.cancel()
	s.wg.Wait()
	return nil
}
