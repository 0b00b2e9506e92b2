// Package pubsub is the publish/subscribe sink: status reports and single measurements
// published under a device topic prefix, at most once.
package pubsub

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/c360/currentlogger/errors"
	"github.com/c360/currentlogger/metric"
)

// Topic suffixes under the device prefix.
const (
	TopicStatus      = "status"
	TopicMeasurement = "measurement"
)

// Publisher is the transport, satisfied by *natsclient.Client.
type Publisher interface {
	Publish(ctx context.Context, subject string, data []byte) error
	IsConnected() bool
}

// Sink publishes agent data under <prefix>/status and <prefix>/measurement.
type Sink struct {
	pub              Publisher
	statusTopic      string
	measurementTopic string
	measurements     bool
	logger           *slog.Logger
	metrics          *metric.Metrics
}

// Option configures a Sink.
type Option func(*Sink)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Sink) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithMetrics counts dropped publishes.
func WithMetrics(m *metric.Metrics) Option {
	return func(s *Sink) { s.metrics = m }
}

// WithMeasurements enables per-sample publishing. Off by default.
func WithMeasurements(enabled bool) Option {
	return func(s *Sink) { s.measurements = enabled }
}

// New creates a sink for the given topic prefix.
func New(pub Publisher, prefix string, opts ...Option) (*Sink, error) {
	prefix = strings.Trim(prefix, "/")
	if pub == nil || prefix == "" {
		return nil, errors.WrapInvalid(
			fmt.Errorf("%w: publisher and topic prefix are required", errors.ErrMissingConfig),
			"Sink", "New", "validate")
	}
	s := &Sink{
		pub:              pub,
		statusTopic:      prefix + "/" + TopicStatus,
		measurementTopic: prefix + "/" + TopicMeasurement,
		logger:           slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("component", "pubsub")
	return s, nil
}

// StatusTopic returns the status topic.
func (s *Sink) StatusTopic() string { return s.statusTopic }

// MeasurementTopic returns the measurement topic.
func (s *Sink) MeasurementTopic() string { return s.measurementTopic }

// Connected reports the transport link state.
func (s *Sink) Connected() bool { return s.pub.IsConnected() }

// PublishStatus publishes a status report.
func (s *Sink) PublishStatus(ctx context.Context, data []byte) error {
	return s.publish(ctx, s.statusTopic, "status", data)
}

// PublishMeasurement publishes one sample. It is a no-op unless measurements are enabled.
func (s *Sink) PublishMeasurement(ctx context.Context, data []byte) error {
	if !s.measurements {
		return nil
	}
	return s.publish(ctx, s.measurementTopic, "measurement", data)
}

func (s *Sink) publish(ctx context.Context, topic, kind string, data []byte) error {
	if err := s.pub.Publish(ctx, topic, data); err != nil {
		if s.metrics != nil {
			s.metrics.RecordPublishFailure(kind)
		}
		s.logger.Debug("Publish dropped", "topic", topic, "error", err)
		return err
	}
	return nil
}
