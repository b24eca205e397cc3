// Package resilience provides the resource and failure-discipline
// primitives composed around speech backend calls: a three-state circuit
// breaker, a bulkhead with a bounded waiting queue, and a retry policy with
// exponential backoff.
//
// All types are explicit, constructor-built values — nothing in this
// package is a process-wide singleton. The owner of the transcription
// client constructs and injects them, so resource limits are configurable
// per deployment and tests never share breaker state.
package resilience

import (
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrCircuitOpen is returned by [Breaker.Do] while the breaker is open and
// the cool-down has not yet elapsed.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// BreakerConfig holds tuning knobs for a [Breaker]. Zero-value fields are
// replaced with defaults by [NewBreaker].
type BreakerConfig struct {
	// Name labels the breaker in log messages.
	Name string

	// TripAfter is the number of consecutive failures that opens the
	// breaker. Default: 5.
	TripAfter int

	// CoolDown is how long the breaker stays open before permitting a
	// half-open probe. Default: 30s.
	CoolDown time.Duration
}

// Breaker is a three-state (closed → open → half-open) circuit breaker.
// After TripAfter consecutive failures it fails fast with [ErrCircuitOpen]
// for the cool-down window, then lets a single probe call through; the
// probe's outcome decides between closing and re-opening.
//
// Safe for concurrent use.
type Breaker struct {
	name      string
	tripAfter int
	coolDown  time.Duration

	mu       sync.Mutex
	failures int
	openedAt time.Time
	open     bool
	probing  bool
}

// NewBreaker creates a [Breaker] with the supplied configuration.
func NewBreaker(cfg BreakerConfig) *Breaker {
	if cfg.TripAfter <= 0 {
		cfg.TripAfter = 5
	}
	if cfg.CoolDown <= 0 {
		cfg.CoolDown = 30 * time.Second
	}
	return &Breaker{
		name:      cfg.Name,
		tripAfter: cfg.TripAfter,
		coolDown:  cfg.CoolDown,
	}
}

// Do runs fn if the breaker allows it and feeds the outcome back into the
// breaker state. While open it returns [ErrCircuitOpen] without calling fn;
// once the cool-down elapses a single concurrent probe is admitted.
func (b *Breaker) Do(fn func() error) error {
	b.mu.Lock()
	if b.open {
		if time.Since(b.openedAt) < b.coolDown || b.probing {
			b.mu.Unlock()
			return ErrCircuitOpen
		}
		// Half-open: admit this call as the probe.
		b.probing = true
		slog.Info("circuit breaker half-open, probing", "name", b.name)
	}
	probe := b.probing
	b.mu.Unlock()

	err := fn()

	b.mu.Lock()
	defer b.mu.Unlock()

	if err != nil {
		b.failures++
		if probe {
			// Failed probe: restart the cool-down.
			b.openedAt = time.Now()
			b.probing = false
			slog.Warn("circuit breaker re-opened after failed probe", "name", b.name)
		} else if !b.open && b.failures >= b.tripAfter {
			b.open = true
			b.openedAt = time.Now()
			slog.Warn("circuit breaker opened",
				"name", b.name,
				"consecutive_failures", b.failures)
		}
		return err
	}

	if b.open {
		slog.Info("circuit breaker closed after successful probe", "name", b.name)
	}
	b.open = false
	b.probing = false
	b.failures = 0
	return nil
}

// Open reports whether the breaker is currently rejecting calls.
func (b *Breaker) Open() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.open && time.Since(b.openedAt) < b.coolDown
}

// Reset forces the breaker back to closed, clearing all failure state.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.open = false
	b.probing = false
	b.failures = 0
}
