package resilience

import (
	"context"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/Lucascis/discord-bot-sub000/internal/config"
)

// Bulkhead caps the number of backing-store calls in flight. Up to maxQueue
// callers wait at most acquireTimeout for a slot; the rest are rejected.
type Bulkhead struct {
	limit          int
	maxQueue       int
	acquireTimeout time.Duration
	sem            *semaphore.Weighted

	held     atomic.Int32
	running  atomic.Int32
	waiting  atomic.Int32
	rejected atomic.Int64
	executed atomic.Int64
}

func NewBulkhead(cfg config.BulkheadConfig) *Bulkhead {
	limit := cfg.MaxConcurrent
	if limit <= 0 {
		limit = 100
	}
	timeout := cfg.AcquireTimeout
	if timeout <= 0 {
		timeout = 100 * time.Millisecond
	}

	return &Bulkhead{
		limit:          limit,
		maxQueue:       max(cfg.MaxQueue, 0),
		acquireTimeout: timeout,
		sem:            semaphore.NewWeighted(int64(limit)),
	}
}

// Execute runs fn once a slot is available.
func (b *Bulkhead) Execute(ctx context.Context, fn func(context.Context) (any, error)) (any, error) {
	if err := b.acquire(ctx); err != nil {
		b.rejected.Add(1)
		return nil, err
	}
	b.held.Add(1)
	defer func() {
		b.held.Add(-1)
		b.sem.Release(1)
	}()

	b.running.Add(1)
	result, err := fn(ctx)
	b.running.Add(-1)
	b.executed.Add(1)

	return result, err
}

func (b *Bulkhead) acquire(ctx context.Context) error {
	if b.sem.TryAcquire(1) {
		return nil
	}

	if int(b.waiting.Add(1)) > b.maxQueue {
		b.waiting.Add(-1)
		return ErrBulkheadFull
	}
	defer b.waiting.Add(-1)

	waitCtx, cancel := context.WithTimeout(ctx, b.acquireTimeout)
	defer cancel()

	if err := b.sem.Acquire(waitCtx, 1); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return ErrBulkheadTimeout
	}
	return nil
}

func (b *Bulkhead) Stats() BulkheadStats {
	return BulkheadStats{
		MaxConcurrent: b.limit,
		MaxQueue:      b.maxQueue,
		Active:        int(b.running.Load()),
		Queued:        int(b.waiting.Load()),
		Available:     b.limit - int(b.held.Load()),
		TotalExecuted: b.executed.Load(),
		TotalRejected: b.rejected.Load(),
	}
}

// BulkheadStats contains bulkhead statistics.
type BulkheadStats struct {
	MaxConcurrent int   `json:"maxConcurrent"`
	MaxQueue      int   `json:"maxQueue"`
	Active        int   `json:"active"`
	Queued        int   `json:"queued"`
	Available     int   `json:"available"`
	TotalExecuted int64 `json:"totalExecuted"`
	TotalRejected int64 `json:"totalRejected"`
}

// DisabledBulkhead runs every call immediately.
type DisabledBulkhead struct{}

func (DisabledBulkhead) Execute(ctx context.Context, fn func(context.Context) (any, error)) (any, error) {
	return fn(ctx)
}

func (DisabledBulkhead) Stats() BulkheadStats { return BulkheadStats{} }
