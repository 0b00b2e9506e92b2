package influxdb

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/c360/currentlogger/errors"
	"github.com/c360/currentlogger/message"
	"github.com/c360/currentlogger/metric"
)

// Measurement is the line protocol measurement name.
const Measurement = "current"

// maxErrorBody bounds how much of an error response is kept.
const maxErrorBody = 4 << 10

// Config addresses one bucket.
type Config struct {
	URL     string        `json:"url"`
	Org     string        `json:"org"`
	Bucket  string        `json:"bucket"`
	Token   string        `json:"token"`
	Timeout time.Duration `json:"timeout"`
}

// DefaultConfig matches a local InfluxDB started with default setup values.
func DefaultConfig() Config {
	return Config{
		URL:     "http://localhost:8086",
		Org:     "myorg",
		Bucket:  "mybucket",
		Timeout: 10 * time.Second,
	}
}

// Validate checks that the bucket is fully addressed.
func (c Config) Validate() error {
	u, err := url.Parse(c.URL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return errors.WrapInvalid(
			fmt.Errorf("%w: influxdb url %q", errors.ErrInvalidConfig, c.URL),
			"InfluxConfig", "Validate", "url")
	}
	if c.Org == "" || c.Bucket == "" {
		return errors.WrapInvalid(
			fmt.Errorf("%w: org and bucket are required", errors.ErrMissingConfig),
			"InfluxConfig", "Validate", "bucket")
	}
	if c.Timeout <= 0 {
		return errors.WrapInvalid(
			fmt.Errorf("%w: timeout must be positive", errors.ErrInvalidConfig),
			"InfluxConfig", "Validate", "timeout")
	}
	return nil
}

// WriteURL is the write endpoint for the configured bucket.
func (c Config) WriteURL() string {
	q := url.Values{}
	q.Set("org", c.Org)
	q.Set("bucket", c.Bucket)
	q.Set("precision", "ms")
	return strings.TrimRight(c.URL, "/") + "/api/v2/write?" + q.Encode()
}

// LineProtocol renders ms as newline separated points.
func LineProtocol(ms []message.Measurement) []byte {
	var buf bytes.Buffer
	for i, m := range ms {
		if i > 0 {
			buf.WriteByte('\n')
		}
		buf.WriteString(Measurement)
		buf.WriteString(" value=")
		buf.WriteString(strconv.FormatFloat(m.Value, 'f', -1, 64))
		buf.WriteByte(' ')
		buf.WriteString(strconv.FormatInt(m.Timestamp, 10))
	}
	return buf.Bytes()
}

// Option configures a Writer.
type Option func(*Writer)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(w *Writer) {
		if logger != nil {
			w.logger = logger
		}
	}
}

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(w *Writer) {
		if client != nil {
			w.client = client
		}
	}
}

// WithMetrics registers write metrics.
func WithMetrics(registry *metric.MetricsRegistry) Option {
	return func(w *Writer) {
		w.registry = registry
	}
}

// Writer posts line protocol to InfluxDB.
type Writer struct {
	cfg      Config
	client   *http.Client
	logger   *slog.Logger
	registry *metric.MetricsRegistry
	metrics  *writerMetrics
}

// New creates a Writer.
func New(cfg Config, opts ...Option) (*Writer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	w := &Writer{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.registry != nil {
		m, err := newWriterMetrics(w.registry)
		if err != nil {
			return nil, errors.WrapFatal(err, "Writer", "New", "register metrics")
		}
		w.metrics = m
	}
	w.logger = w.logger.With("component", "influxdb", "bucket", cfg.Bucket)
	return w, nil
}

// Name identifies the writer as a forwarder.
func (w *Writer) Name() string { return "influxdb" }

// Forward writes the batch. An empty batch is a no-op.
func (w *Writer) Forward(ctx context.Context, batch message.Batch) error {
	if len(batch.Measurements) == 0 {
		return nil
	}
	return w.Write(ctx, LineProtocol(batch.Measurements))
}

// Write posts line protocol data. 4xx responses are invalid errors, everything else transient.
func (w *Writer) Write(ctx context.Context, lines []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.cfg.WriteURL(), bytes.NewReader(lines))
	if err != nil {
		return errors.WrapInvalid(err, "Writer", "Write", "build request")
	}
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if w.cfg.Token != "" {
		req.Header.Set("Authorization", "Token "+w.cfg.Token)
	}

	start := time.Now()
	resp, err := w.client.Do(req)
	if err != nil {
		w.observe("error", start)
		return errors.WrapTransient(err, "Writer", "Write", "post to influxdb")
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		_, _ = io.Copy(io.Discard, resp.Body)
		w.observe("success", start)
		w.logger.Debug("Points written", "bytes", len(lines), "status", resp.StatusCode)
		return nil
	}

	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	w.observe("rejected", start)
	rejected := fmt.Errorf("%w: influxdb returned %d: %s",
		errors.ErrRemoteRejected, resp.StatusCode, strings.TrimSpace(string(body)))
	if resp.StatusCode >= 400 && resp.StatusCode < 500 {
		return errors.WrapInvalid(rejected, "Writer", "Write", "write points")
	}
	return errors.WrapTransient(rejected, "Writer", "Write", "write points")
}

func (w *Writer) observe(outcome string, start time.Time) {
	if w.metrics == nil {
		return
	}
	w.metrics.writes.WithLabelValues(outcome).Inc()
	w.metrics.duration.Observe(time.Since(start).Seconds())
}
