package resilience

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// RetryConfig holds tuning knobs for [Retry]. Zero-value fields are
// replaced with defaults by [NewRetry].
type RetryConfig struct {
	// Name labels the policy in log messages.
	Name string

	// Attempts is the total number of tries, including the first.
	// Default: 3.
	Attempts int

	// BaseDelay is the backoff before the second attempt; it doubles per
	// subsequent attempt. Default: 500ms.
	BaseDelay time.Duration

	// MaxDelay caps the backoff. Default: 10s.
	MaxDelay time.Duration
}

// Retry re-runs a failing call with exponential backoff up to a fixed
// attempt cap. Any error counts as retryable, including context
// cancellation of the underlying call — but cancellation of ctx itself ends
// the backoff wait immediately.
type Retry struct {
	name      string
	attempts  int
	baseDelay time.Duration
	maxDelay  time.Duration
}

// NewRetry creates a [Retry] with the supplied configuration.
func NewRetry(cfg RetryConfig) *Retry {
	if cfg.Attempts <= 0 {
		cfg.Attempts = 3
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = 500 * time.Millisecond
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = 10 * time.Second
	}
	return &Retry{
		name:      cfg.Name,
		attempts:  cfg.Attempts,
		baseDelay: cfg.BaseDelay,
		maxDelay:  cfg.MaxDelay,
	}
}

// Do runs fn until it succeeds or the attempt cap is reached, sleeping the
// backoff between attempts. Returns nil on the first success, the last
// error once attempts are exhausted, or ctx's error if cancelled while
// backing off.
func (r *Retry) Do(ctx context.Context, fn func() error) error {
	delay := r.baseDelay
	var lastErr error

	for attempt := 1; attempt <= r.attempts; attempt++ {
		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		if attempt == r.attempts {
			break
		}

		slog.Warn("retrying after failure",
			"name", r.name,
			"attempt", attempt,
			"max_attempts", r.attempts,
			"delay", delay,
			"error", lastErr)

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return fmt.Errorf("retry %s: %w", r.name, ctx.Err())
		}
		delay = min(delay*2, r.maxDelay)
	}

	return fmt.Errorf("retry %s: %d attempts exhausted: %w", r.name, r.attempts, lastErr)
}
