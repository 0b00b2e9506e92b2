package gateway

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/klauspost/compress/gzip"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/c360/currentlogger/errors"
	"github.com/c360/currentlogger/health"
	"github.com/c360/currentlogger/message"
	"github.com/c360/currentlogger/metric"
	"github.com/c360/currentlogger/pkg/tlsutil"
)

// TokenHeader carries the shared API token.
const TokenHeader = "X-API-Token"

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithForwarder adds a forwarder. Every accepted batch goes to all forwarders.
func WithForwarder(f Forwarder) Option {
	return func(s *Server) {
		if f != nil {
			s.forwarders = append(s.forwarders, f)
		}
	}
}

// WithMetrics registers collector metrics.
func WithMetrics(registry *metric.MetricsRegistry) Option {
	return func(s *Server) {
		s.registry = registry
	}
}

// WithMonitor reports forwarder and viewer health into monitor.
func WithMonitor(monitor *health.Monitor) Option {
	return func(s *Server) {
		if monitor != nil {
			s.monitor = monitor
		}
	}
}

// Server is the collector HTTP API.
type Server struct {
	cfg        Config
	router     chi.Router
	validator  *BatchValidator
	forwarders []Forwarder
	hub        *Hub
	monitor    *health.Monitor
	logger     *slog.Logger
	registry   *metric.MetricsRegistry
	metrics    *collectorMetrics

	// Rate limiting for ingest; nil admits everything
	limiter *rate.Limiter

	mu         sync.Mutex
	lastErrors map[string]error
	server     *http.Server
}

// NewServer builds the router. At least one forwarder is required.
func NewServer(cfg Config, opts ...Option) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	validator, err := NewBatchValidator()
	if err != nil {
		return nil, err
	}

	s := &Server{
		cfg:        cfg,
		validator:  validator,
		logger:     slog.Default(),
		lastErrors: make(map[string]error),
	}
	for _, opt := range opts {
		opt(s)
	}
	if len(s.forwarders) == 0 {
		return nil, errors.WrapInvalid(errors.ErrMissingConfig, "Server", "NewServer", "no forwarder configured")
	}
	s.logger = s.logger.With("component", "collector")

	m, err := newCollectorMetrics(s.registry)
	if err != nil {
		return nil, errors.WrapFatal(err, "Server", "NewServer", "register metrics")
	}
	s.metrics = m

	if cfg.RateLimit > 0 {
		s.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.RateBurst)
	}

	s.hub = NewHub(s.logger)
	if s.metrics != nil {
		s.hub.OnChange(func(n int) { s.metrics.viewers.Set(float64(n)) })
	}

	if s.monitor == nil {
		s.monitor = health.NewMonitor("collector")
	}
	for _, f := range s.forwarders {
		name := f.Name()
		s.monitor.Register(name, func() health.Status { return s.forwarderStatus(name) })
	}
	s.monitor.Register("live", func() health.Status {
		return health.Healthy("live", fmt.Sprintf("%d viewers", s.hub.Clients()))
	})

	s.router = s.routes()
	return s, nil
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Method(http.MethodGet, "/health", s.monitor.Handler())
	r.Group(func(r chi.Router) {
		r.Use(s.limitRate)
		r.Use(s.requireToken(false))
		r.Post("/api/v1/data", s.handleData)
	})
	r.Group(func(r chi.Router) {
		r.Use(s.requireToken(true))
		r.Get("/api/v1/live", s.hub.ServeHTTP)
	})
	return r
}

// Handler returns the router.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Hub returns the live feed hub.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Start serves until ctx is done or Stop is called. It blocks.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.server != nil {
		s.mu.Unlock()
		return errors.WrapInvalid(errors.ErrAlreadyStarted, "Server", "Start", "start collector")
	}
	tlsConfig, err := tlsutil.LoadServerTLSConfig(s.cfg.TLS)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", s.cfg.Port),
		Handler:           s.router,
		TLSConfig:         tlsConfig,
		ReadHeaderTimeout: 5 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}
	s.server = srv
	s.mu.Unlock()

	go func() {
		<-ctx.Done()
		_ = s.Stop()
	}()

	s.logger.Info("Collector listening",
		"port", s.cfg.Port,
		"influxdb", s.cfg.InfluxDB.URL,
		"bucket", s.cfg.InfluxDB.Bucket,
		"org", s.cfg.InfluxDB.Org,
		"stream", s.cfg.Stream,
		"tls", tlsConfig != nil)

	if tlsConfig != nil {
		err = srv.ListenAndServeTLS("", "")
	} else {
		err = srv.ListenAndServe()
	}
	if err != nil && err != http.ErrServerClosed {
		return errors.WrapFatal(err, "Server", "Start", fmt.Sprintf("listen on port %d", s.cfg.Port))
	}
	return nil
}

// Stop disconnects viewers and shuts the listener down.
func (s *Server) Stop() error {
	s.hub.Close()

	s.mu.Lock()
	srv := s.server
	s.server = nil
	s.mu.Unlock()
	if srv == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		return errors.WrapTransient(err, "Server", "Stop", "shutdown HTTP server")
	}
	return nil
}

func (s *Server) requireToken(allowQuery bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := r.Header.Get(TokenHeader)
			if token == "" && allowQuery {
				token = r.URL.Query().Get("token")
			}
			if token == "" {
				s.respondError(w, http.StatusUnauthorized, "API token missing")
				return
			}
			if subtle.ConstantTimeCompare([]byte(token), []byte(s.cfg.APIToken)) != 1 {
				s.logger.Warn("Rejected API token", "remote", r.RemoteAddr, "path", r.URL.Path)
				s.respondError(w, http.StatusForbidden, "Invalid API token")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// limitRate answers 429 once the ingest budget is spent. Agents keep the batch and
// retry on their next send interval.
func (s *Server) limitRate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.limiter != nil && !s.limiter.Allow() {
			if s.metrics != nil {
				s.metrics.rateLimited.Inc()
			}
			w.Header().Set("Retry-After", "1")
			s.respondError(w, http.StatusTooManyRequests, "Rate limit exceeded")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// requestID reuses the agent's X-Request-ID so both sides log the same id.
func requestID(r *http.Request) string {
	if id := r.Header.Get("X-Request-ID"); id != "" {
		return id
	}
	return uuid.NewString()
}

func (s *Server) handleData(w http.ResponseWriter, r *http.Request) {
	reqID := requestID(r)
	w.Header().Set("X-Request-ID", reqID)
	logger := s.logger.With("request_id", reqID)

	body, status, err := s.readBody(r)
	if err != nil {
		logger.Warn("Unreadable request body", "error", err, "status", status)
		s.respondError(w, status, err.Error())
		return
	}

	batch, err := s.validator.Validate(body)
	if err != nil {
		logger.Warn("Invalid payload", "error", err, "bytes", len(body))
		s.respondError(w, http.StatusBadRequest, "Invalid payload")
		return
	}
	logger.Info("Batch received", "measurements", len(batch.Measurements), "bytes", len(body))

	if err := s.forward(r.Context(), batch, logger); err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	if s.metrics != nil {
		s.metrics.measurements.Add(float64(len(batch.Measurements)))
	}
	if len(batch.Measurements) > 0 {
		if data, err := message.EncodeBatch(batch.Measurements, 0); err == nil {
			s.hub.Broadcast(data)
		}
	}
	s.respond(w, http.StatusOK, map[string]int{"accepted": len(batch.Measurements)})
}

func (s *Server) readBody(r *http.Request) ([]byte, int, error) {
	defer r.Body.Close()

	var reader io.Reader = r.Body
	if strings.EqualFold(r.Header.Get("Content-Encoding"), "gzip") {
		zr, err := gzip.NewReader(r.Body)
		if err != nil {
			return nil, http.StatusBadRequest, fmt.Errorf("invalid gzip body")
		}
		defer zr.Close()
		reader = zr
	}

	body, err := io.ReadAll(io.LimitReader(reader, s.cfg.MaxRequestSize+1))
	if err != nil {
		return nil, http.StatusBadRequest, fmt.Errorf("failed to read request body")
	}
	if int64(len(body)) > s.cfg.MaxRequestSize {
		return nil, http.StatusRequestEntityTooLarge,
			fmt.Errorf("request body exceeds maximum size of %d bytes", s.cfg.MaxRequestSize)
	}
	return body, 0, nil
}

// forwardError names the forwarder without exposing backend details to the agent.
type forwardError struct {
	forwarder string
	err       error
}

func (e *forwardError) Error() string {
	switch {
	case errors.IsInvalid(e.err):
		return e.forwarder + ": rejected by backend"
	case errors.IsTransient(e.err):
		return e.forwarder + ": backend temporarily unavailable"
	default:
		return e.forwarder + ": internal server error"
	}
}

func (e *forwardError) Unwrap() error { return e.err }

// forward runs every forwarder and returns the first failure.
func (s *Server) forward(ctx context.Context, batch message.Batch, logger *slog.Logger) error {
	var g errgroup.Group
	for _, f := range s.forwarders {
		g.Go(func() error {
			start := time.Now()
			err := f.Forward(ctx, batch)
			s.recordForward(f.Name(), err)
			if err != nil {
				logger.Error("Forward failed", "forwarder", f.Name(), "error", err)
				return &forwardError{forwarder: f.Name(), err: err}
			}
			logger.Debug("Batch forwarded", "forwarder", f.Name(), "duration", time.Since(start))
			return nil
		})
	}
	return g.Wait()
}

func (s *Server) recordForward(name string, err error) {
	s.mu.Lock()
	s.lastErrors[name] = err
	s.mu.Unlock()
	if err != nil && s.metrics != nil {
		s.metrics.forwardFailures.WithLabelValues(name).Inc()
	}
}

func (s *Server) forwarderStatus(name string) health.Status {
	s.mu.Lock()
	err, seen := s.lastErrors[name]
	s.mu.Unlock()

	switch {
	case !seen:
		return health.Healthy(name, "no batches yet")
	case err != nil:
		return health.Degraded(name, "last forward failed: "+health.Sanitize(err.Error()))
	default:
		return health.Healthy(name, "last forward ok")
	}
}

func (s *Server) respond(w http.ResponseWriter, code int, body any) {
	if s.metrics != nil {
		s.metrics.requests.WithLabelValues(strconv.Itoa(code)).Inc()
	}
	writeJSON(w, code, body)
}

func (s *Server) respondError(w http.ResponseWriter, code int, msg string) {
	s.respond(w, code, map[string]string{"error": msg})
}

func writeJSON(w http.ResponseWriter, code int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(body)
}
