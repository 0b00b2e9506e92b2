package gateway

import (
	"context"

	"github.com/c360/currentlogger/errors"
	"github.com/c360/currentlogger/message"
)

// Forwarder delivers an accepted batch to one backend.
type Forwarder interface {
	Name() string
	Forward(ctx context.Context, batch message.Batch) error
}

// StreamPublisher publishes to a JetStream subject and waits for the ack.
type StreamPublisher interface {
	PublishToStream(ctx context.Context, subject string, data []byte) error
}

// StreamForwarder republishes batches to a JetStream subject.
type StreamForwarder struct {
	pub     StreamPublisher
	subject string
}

// NewStreamForwarder creates a forwarder publishing to subject.
func NewStreamForwarder(pub StreamPublisher, subject string) *StreamForwarder {
	if subject == "" {
		subject = DefaultSubject
	}
	return &StreamForwarder{pub: pub, subject: subject}
}

// Name identifies the forwarder.
func (f *StreamForwarder) Name() string { return "jetstream" }

// Forward encodes the batch and publishes it.
func (f *StreamForwarder) Forward(ctx context.Context, batch message.Batch) error {
	data, err := message.EncodeBatch(batch.Measurements, 0)
	if err != nil {
		return err
	}
	if err := f.pub.PublishToStream(ctx, f.subject, data); err != nil {
		return errors.Wrap(err, "StreamForwarder", "Forward", "publish batch")
	}
	return nil
}
