package testutil

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/c360/currentlogger/errors"
)

// Message is one publish seen by a MockBroker.
type Message struct {
	Subject string
	Data    []byte
	Stream  bool
}

// MockBroker is an in-memory broker matching the natsclient.Client publish methods.
// It is safe for concurrent use. A disconnected broker rejects publishes with
// errors.ErrNotConnected, the same as the real client.
type MockBroker struct {
	mu        sync.RWMutex
	connected bool
	messages  []Message
	failWith  error
}

// NewMockBroker returns a connected broker.
func NewMockBroker() *MockBroker {
	return &MockBroker{connected: true}
}

// SetConnected flips the link state.
func (b *MockBroker) SetConnected(connected bool) {
	b.mu.Lock()
	b.connected = connected
	b.mu.Unlock()
}

// FailWith makes every publish return err until called with nil.
func (b *MockBroker) FailWith(err error) {
	b.mu.Lock()
	b.failWith = err
	b.mu.Unlock()
}

// IsConnected reports the link state.
func (b *MockBroker) IsConnected() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.connected
}

// Publish records a core NATS publish.
func (b *MockBroker) Publish(ctx context.Context, subject string, data []byte) error {
	return b.record(ctx, Message{Subject: subject, Data: data})
}

// PublishToStream records a JetStream publish.
func (b *MockBroker) PublishToStream(ctx context.Context, subject string, data []byte) error {
	return b.record(ctx, Message{Subject: subject, Data: data, Stream: true})
}

func (b *MockBroker) record(ctx context.Context, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.connected {
		return errors.ErrNotConnected
	}
	if b.failWith != nil {
		return b.failWith
	}
	msg.Data = append([]byte(nil), msg.Data...)
	b.messages = append(b.messages, msg)
	return nil
}

// Messages returns everything published, in order.
func (b *MockBroker) Messages() []Message {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return append([]Message(nil), b.messages...)
}

// On returns the payloads published on subject.
func (b *MockBroker) On(subject string) [][]byte {
	b.mu.RLock()
	defer b.mu.RUnlock()
	var out [][]byte
	for _, m := range b.messages {
		if m.Subject == subject {
			out = append(out, m.Data)
		}
	}
	return out
}

// WaitForMessageCount fails the test unless subject sees count messages within timeout.
func WaitForMessageCount(t *testing.T, b *MockBroker, subject string, count int, timeout time.Duration) {
	t.Helper()

	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()

	for {
		if len(b.On(subject)) >= count {
			return
		}
		select {
		case <-deadline.C:
			t.Fatalf("timeout waiting for %d messages on %s (got %d)", count, subject, len(b.On(subject)))
			return
		case <-ticker.C:
		}
	}
}
