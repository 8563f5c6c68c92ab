package metrics

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/Lucascis/discord-bot-sub000/internal/types"
)

// BackgroundPublisher pushes a PublisherHealthMetrics batch every interval
// and once more when stopped.
type BackgroundPublisher struct {
	publisher types.Publisher
	logger    *slog.Logger
	clock     clockwork.Clock
	getHealth func() *types.PublisherHealthMetrics
	cancel    context.CancelFunc
	ctx       context.Context
	wg        sync.WaitGroup
	interval  time.Duration
	published atomic.Int64
}

// BackgroundOption configures a BackgroundPublisher.
type BackgroundOption func(*BackgroundPublisher)

// WithPublishClock replaces the ticker clock, for tests.
func WithPublishClock(clock clockwork.Clock) BackgroundOption {
	return func(b *BackgroundPublisher) {
		b.clock = clock
	}
}

// healthFn is called on each tick; a nil result skips that tick.
func NewBackgroundPublisher(
	publisher types.Publisher,
	interval time.Duration,
	healthFn func() *types.PublisherHealthMetrics,
	logger *slog.Logger,
	opts ...BackgroundOption,
) *BackgroundPublisher {
	if logger == nil {
		logger = slog.Default()
	}

	b := &BackgroundPublisher{
		publisher: publisher,
		interval:  interval,
		logger:    logger.With("component", "metrics-background"),
		clock:     clockwork.NewRealClock(),
		getHealth: healthFn,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Start runs the loop until ctx is done or Stop is called.
func (b *BackgroundPublisher) Start(ctx context.Context) {
	b.ctx, b.cancel = context.WithCancel(ctx)
	b.wg.Add(1)
	go b.run()
	b.logger.Info("Background metrics publisher started", "interval", b.interval)
}

// Stop cancels the background context and waits for the final publish.
func (b *BackgroundPublisher) Stop() {
	if b.cancel != nil {
		b.cancel()
	}
	b.wg.Wait()
	b.logger.Info("Background metrics publisher stopped")
}

func (b *BackgroundPublisher) run() {
	defer b.wg.Done()

	ticker := b.clock.NewTicker(b.interval)
	defer ticker.Stop()

	for {
		select {
		case <-b.ctx.Done():
			b.publish()
			return
		case <-ticker.Chan():
			b.publish()
		}
	}
}

func (b *BackgroundPublisher) publish() {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("Recovered from panic in metrics publisher", "panic", r)
		}
	}()

	if b.getHealth == nil {
		return
	}

	timer := StartTimer(b.publisher, "metrics.publish")
	m := b.getHealth()
	if m == nil {
		return
	}
	b.publisher.PublishHealthMetrics(m)
	timer.Stop()
	b.published.Add(1)
}

func (b *BackgroundPublisher) PublishNow() {
	b.publish()
}

// Published counts batches handed to the publisher.
func (b *BackgroundPublisher) Published() int64 {
	return b.published.Load()
}
