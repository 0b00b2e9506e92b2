package timestamp

import (
	"context"
	"log/slog"
	"time"

	"github.com/c360/currentlogger/errors"
	"github.com/c360/currentlogger/pkg/retry"
)

// MinSyncedYear is the earliest year a synchronized wall clock can report.
// Boards without an RTC boot at the epoch until NTP catches up.
const MinSyncedYear = 2020

// SyncConfig bounds the wait for a synchronized wall clock.
type SyncConfig struct {
	Attempts int
	Interval time.Duration
}

// DefaultSyncConfig waits up to ten seconds in one second steps.
func DefaultSyncConfig() SyncConfig {
	return SyncConfig{Attempts: 10, Interval: time.Second}
}

// IsSynced reports whether t looks like a real wall-clock reading.
func IsSynced(t time.Time) bool {
	return t.UTC().Year() >= MinSyncedYear
}

// WaitForSync blocks until clock reports a synchronized time or the attempts run out.
// It returns ErrClockNotSynced on exhaustion; callers treat that as a warning.
func WaitForSync(ctx context.Context, clock Clock, cfg SyncConfig, logger *slog.Logger) error {
	if clock == nil {
		clock = System
	}
	if logger == nil {
		logger = slog.Default()
	}

	rc := retry.Fixed(cfg.Attempts, cfg.Interval)
	rc.OnRetry = func(attempt int, _ error, wait time.Duration) {
		logger.Info("Waiting for wall clock sync",
			"attempt", attempt,
			"max_attempts", cfg.Attempts,
			"now", clock.Now().UTC().Format(time.RFC3339),
			"next_check", wait)
	}

	err := retry.Do(ctx, rc, func() error {
		if IsSynced(clock.Now()) {
			return nil
		}
		return errors.ErrClockNotSynced
	})
	if err != nil {
		return errors.WrapTransient(err, "Clock", "WaitForSync", "wait for wall clock")
	}

	logger.Info("Wall clock synchronized", "now", clock.Now().UTC().Format(time.RFC3339))
	return nil
}
