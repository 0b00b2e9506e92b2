package engine

import (
	"fmt"
	"time"

	"github.com/c360/currentlogger/errors"
)

// Config drives the dispatch timers.
type Config struct {
	SampleInterval time.Duration
	SendInterval   time.Duration
	StatusInterval time.Duration
	TickInterval   time.Duration

	// ChunkSize caps how many measurements go into one request.
	ChunkSize int
	// SerializationBuffer caps the encoded request size in bytes. Zero disables the check.
	SerializationBuffer int
	// MaxCatchUp is how many sample intervals the loop may lag before it resynchronizes
	// instead of catching up.
	MaxCatchUp int
}

// DefaultConfig mirrors the stock logger: 1 s samples, 5 s sends, 256 per chunk.
func DefaultConfig() Config {
	return Config{
		SampleInterval:      time.Second,
		SendInterval:        5 * time.Second,
		StatusInterval:      time.Minute,
		TickInterval:        100 * time.Millisecond,
		ChunkSize:           256,
		SerializationBuffer: 16 << 10,
		MaxCatchUp:          10,
	}
}

// Validate checks the timer configuration.
func (c Config) Validate() error {
	check := func(name string, d time.Duration) error {
		if d <= 0 {
			return errors.WrapInvalid(
				fmt.Errorf("%w: %s must be positive, got %v", errors.ErrInvalidConfig, name, d),
				"Config", "Validate", name)
		}
		return nil
	}
	for _, f := range []struct {
		name string
		d    time.Duration
	}{
		{"sample_interval", c.SampleInterval},
		{"send_interval", c.SendInterval},
		{"status_interval", c.StatusInterval},
		{"tick_interval", c.TickInterval},
	} {
		if err := check(f.name, f.d); err != nil {
			return err
		}
	}
	if c.ChunkSize < 1 {
		return errors.WrapInvalid(
			fmt.Errorf("%w: chunk_size %d", errors.ErrInvalidConfig, c.ChunkSize),
			"Config", "Validate", "chunk_size")
	}
	if c.SerializationBuffer < 0 {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate", "serialization_buffer")
	}
	return nil
}
