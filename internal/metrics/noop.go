package metrics

import (
	"time"

	"github.com/Lucascis/discord-bot-sub000/internal/types"
)

// NoOpTracker discards everything. The store client and caches start with
// one until a recorder is injected.
type NoOpTracker struct{}

func NewNoOpTracker() *NoOpTracker { return &NoOpTracker{} }

func (*NoOpTracker) RecordHit(string, string, time.Duration) {}
func (*NoOpTracker) RecordMiss(string, string, time.Duration) {}
func (*NoOpTracker) RecordSet(string, string, int, time.Duration) {}
func (*NoOpTracker) RecordDelete(string, string, time.Duration) {}
func (*NoOpTracker) RecordError(string, string, error) {}
func (*NoOpTracker) RecordFallback(string) {}
func (*NoOpTracker) RecordMessageDropped(string) {}
func (*NoOpTracker) RecordCircuitBreakerStateChange(_, _, _ string) {}

func (*NoOpTracker) Snapshot() types.MetricsSnapshot { return types.MetricsSnapshot{} }

// NoOpPublisher is returned by datadog.NewPublisher when DataDog is disabled
// and can be embedded by test publishers that care about a few calls.
type NoOpPublisher struct{}

func NewNoOpPublisher() *NoOpPublisher { return &NoOpPublisher{} }

func (*NoOpPublisher) Gauge(string, float64, ...string) {}
func (*NoOpPublisher) Incr(string, ...string) {}
func (*NoOpPublisher) Count(string, int64, ...string) {}
func (*NoOpPublisher) Histogram(string, float64, ...string) {}
func (*NoOpPublisher) Timing(string, time.Duration, ...string) {}
func (*NoOpPublisher) Event(_, _, _ string, _ ...string) {}
func (*NoOpPublisher) PublishHealthMetrics(*types.PublisherHealthMetrics) {}
func (*NoOpPublisher) Close() error { return nil }

var (
	_ types.MetricsRecorder = (*NoOpTracker)(nil)
	_ types.Publisher       = (*NoOpPublisher)(nil)
)
