package resilience

import (
	"context"
	"errors"
	"sync"

	"golang.org/x/sync/semaphore"
)

// ErrBulkheadFull is returned by [Bulkhead.Do] when every execution slot is
// busy and the waiting queue is already at capacity. The caller decides
// whether to drop or defer the rejected work.
var ErrBulkheadFull = errors.New("bulkhead queue is full")

// BulkheadConfig holds tuning knobs for a [Bulkhead]. Zero-value fields are
// replaced with defaults by [NewBulkhead].
type BulkheadConfig struct {
	// Name labels the bulkhead in log messages.
	Name string

	// MaxConcurrent is the number of calls allowed in flight at once.
	// Default: 4.
	MaxConcurrent int

	// MaxQueued is the number of calls allowed to wait for a slot beyond
	// MaxConcurrent. Calls past this depth are rejected immediately.
	// Default: 16.
	MaxQueued int
}

// Bulkhead caps concurrent executions and bounds the queue of callers
// waiting for a slot, providing back-pressure instead of unbounded queueing.
// Safe for concurrent use.
type Bulkhead struct {
	name     string
	slots    *semaphore.Weighted
	maxQueue int

	mu      sync.Mutex
	waiting int
}

// NewBulkhead creates a [Bulkhead] with the supplied configuration.
func NewBulkhead(cfg BulkheadConfig) *Bulkhead {
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 4
	}
	if cfg.MaxQueued <= 0 {
		cfg.MaxQueued = 16
	}
	return &Bulkhead{
		name:     cfg.Name,
		slots:    semaphore.NewWeighted(int64(cfg.MaxConcurrent)),
		maxQueue: cfg.MaxQueued,
	}
}

// Do runs fn once a concurrency slot is free. A call that cannot run
// immediately waits in the queue; when the queue is full it fails fast with
// [ErrBulkheadFull]. Cancelling ctx while waiting returns ctx's error.
func (bh *Bulkhead) Do(ctx context.Context, fn func() error) error {
	if !bh.slots.TryAcquire(1) {
		bh.mu.Lock()
		if bh.waiting >= bh.maxQueue {
			bh.mu.Unlock()
			return ErrBulkheadFull
		}
		bh.waiting++
		bh.mu.Unlock()

		err := bh.slots.Acquire(ctx, 1)

		bh.mu.Lock()
		bh.waiting--
		bh.mu.Unlock()

		if err != nil {
			return err
		}
	}
	defer bh.slots.Release(1)

	return fn()
}

// Waiting returns the current queue depth. Intended for metrics.
func (bh *Bulkhead) Waiting() int {
	bh.mu.Lock()
	defer bh.mu.Unlock()
	return bh.waiting
}
