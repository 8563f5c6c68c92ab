// Package metrics collects cache, store and breaker events and publishes them
// to DataDog, Prometheus or the log.
package metrics

import (
	"maps"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Lucascis/discord-bot-sub000/internal/types"
)

const (
	defaultLatencyBufferSize = 10000
)

// TrackerOption configures a Tracker.
type TrackerOption func(*Tracker)

// WithEventPublisher forwards fallbacks, dropped messages and breaker
// transitions to p as counters and events as they happen.
func WithEventPublisher(p types.Publisher) TrackerOption {
	return func(t *Tracker) {
		t.events = p
	}
}

// WithLatencyBufferSize sets how many recent latencies feed the percentiles.
func WithLatencyBufferSize(n int) TrackerOption {
	return func(t *Tracker) {
		if n > 0 {
			t.latencyBuffer = make([]time.Duration, n)
		}
	}
}

// Tracker is the in-process MetricsRecorder. Lookups are counted once per
// logical get: an L1 hit, or the L2 answer that follows an L1 miss.
type Tracker struct {
	l1Hits   atomic.Int64
	l1Misses atomic.Int64
	l2Hits   atomic.Int64
	l2Misses atomic.Int64

	getCount    atomic.Int64
	setCount    atomic.Int64
	deleteCount atomic.Int64

	errorCount atomic.Int64

	fallbackCount      atomic.Int64
	droppedMessages    atomic.Int64
	breakerTransitions atomic.Int64

	totalBytesWritten atomic.Int64

	latencyMu     sync.RWMutex
	latencyBuffer []time.Duration
	latencyIndex  int
	latencyCount  int

	labelsMu      sync.Mutex
	fallbackByOp  map[string]int64
	droppedByWhy  map[string]int64
	breakerStates map[string]string

	events types.Publisher
}

func NewTracker(opts ...TrackerOption) *Tracker {
	t := &Tracker{
		latencyBuffer: make([]time.Duration, defaultLatencyBufferSize),
		fallbackByOp:  make(map[string]int64),
		droppedByWhy:  make(map[string]int64),
		breakerStates: make(map[string]string),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

func (t *Tracker) RecordHit(layer string, key string, latency time.Duration) {
	switch layer {
	case types.LayerL1:
		t.l1Hits.Add(1)
		t.getCount.Add(1)
	case types.LayerL2:
		t.l2Hits.Add(1)
		t.getCount.Add(1)
	}
	t.recordLatency(latency)
}

func (t *Tracker) RecordMiss(layer string, key string, latency time.Duration) {
	switch layer {
	case types.LayerL1:
		t.l1Misses.Add(1)
	case types.LayerL2:
		t.l2Misses.Add(1)
		t.getCount.Add(1)
	}
	t.recordLatency(latency)
}

func (t *Tracker) RecordSet(layer string, key string, size int, latency time.Duration) {
	t.setCount.Add(1)
	t.totalBytesWritten.Add(int64(size))
	t.recordLatency(latency)
}

// RecordDelete records a delete operation.
func (t *Tracker) RecordDelete(layer string, key string, latency time.Duration) {
	t.deleteCount.Add(1)
	t.recordLatency(latency)
}

// RecordError records an error.
func (t *Tracker) RecordError(layer string, operation string, err error) {
	t.errorCount.Add(1)
}

// RecordFallback records a store operation answered by the degraded path.
func (t *Tracker) RecordFallback(operation string) {
	t.fallbackCount.Add(1)
	t.labelsMu.Lock()
	t.fallbackByOp[operation]++
	t.labelsMu.Unlock()

	if t.events != nil {
		t.events.Incr("store.fallback", OperationTag(operation))
	}
}

// RecordMessageDropped records a buffered publish lost to overflow or age.
func (t *Tracker) RecordMessageDropped(reason string) {
	t.droppedMessages.Add(1)
	t.labelsMu.Lock()
	t.droppedByWhy[reason]++
	t.labelsMu.Unlock()

	if t.events != nil {
		t.events.Incr("buffer.dropped", ReasonTag(reason))
	}
}

// RecordCircuitBreakerStateChange records circuit breaker state transitions.
func (t *Tracker) RecordCircuitBreakerStateChange(name, from, to string) {
	t.breakerTransitions.Add(1)
	t.labelsMu.Lock()
	t.breakerStates[name] = to
	t.labelsMu.Unlock()

	if t.events == nil {
		return
	}
	t.events.Incr("breaker.transition", BreakerTag(name), CircuitStateTag(to))

	alert := "info"
	switch to {
	case "open":
		alert = "error"
	case "half-open":
		alert = "warning"
	}
	t.events.Event(
		"circuit breaker "+name+" "+to,
		"circuit breaker "+name+" moved from "+from+" to "+to,
		alert,
		BreakerTag(name), CircuitStateTag(to),
	)
}

// recordLatency adds a latency measurement using a circular buffer.
func (t *Tracker) recordLatency(latency time.Duration) {
	t.latencyMu.Lock()
	t.latencyBuffer[t.latencyIndex] = latency
	t.latencyIndex = (t.latencyIndex + 1) % len(t.latencyBuffer)
	if t.latencyCount < len(t.latencyBuffer) {
		t.latencyCount++
	}
	t.latencyMu.Unlock()
}

// Snapshot returns current metrics snapshot.
func (t *Tracker) Snapshot() types.MetricsSnapshot {
	t.latencyMu.RLock()
	count := t.latencyCount
	latencyCopy := make([]time.Duration, count)
	if count > 0 {
		if count < len(t.latencyBuffer) {
			copy(latencyCopy, t.latencyBuffer[:count])
		} else {
			// full: oldest sample sits at latencyIndex
			firstPart := len(t.latencyBuffer) - t.latencyIndex
			copy(latencyCopy[:firstPart], t.latencyBuffer[t.latencyIndex:])
			copy(latencyCopy[firstPart:], t.latencyBuffer[:t.latencyIndex])
		}
	}
	t.latencyMu.RUnlock()

	snapshot := types.MetricsSnapshot{
		Timestamp:          time.Now(),
		L1Hits:             t.l1Hits.Load(),
		L1Misses:           t.l1Misses.Load(),
		L2Hits:             t.l2Hits.Load(),
		L2Misses:           t.l2Misses.Load(),
		GetCount:           t.getCount.Load(),
		SetCount:           t.setCount.Load(),
		DeleteCount:        t.deleteCount.Load(),
		ErrorCount:         t.errorCount.Load(),
		FallbackCount:      t.fallbackCount.Load(),
		DroppedMessages:    t.droppedMessages.Load(),
		BreakerTransitions: t.breakerTransitions.Load(),
	}

	if len(latencyCopy) > 0 {
		slices.Sort(latencyCopy)
		snapshot.AvgLatencyMs = toMillis(avgDuration(latencyCopy))
		snapshot.P50LatencyMs = toMillis(percentile(latencyCopy, 50))
		snapshot.P95LatencyMs = toMillis(percentile(latencyCopy, 95))
		snapshot.P99LatencyMs = toMillis(percentile(latencyCopy, 99))
	}

	return snapshot
}

// BytesWritten is the total encoded size passed to RecordSet.
func (t *Tracker) BytesWritten() int64 {
	return t.totalBytesWritten.Load()
}

// FallbacksByOperation returns a copy of the fallback counts per store operation.
func (t *Tracker) FallbacksByOperation() map[string]int64 {
	t.labelsMu.Lock()
	defer t.labelsMu.Unlock()
	return maps.Clone(t.fallbackByOp)
}

// DroppedByReason returns a copy of the dropped message counts per reason.
func (t *Tracker) DroppedByReason() map[string]int64 {
	t.labelsMu.Lock()
	defer t.labelsMu.Unlock()
	return maps.Clone(t.droppedByWhy)
}

// BreakerStates returns the last state seen for each named breaker.
func (t *Tracker) BreakerStates() map[string]string {
	t.labelsMu.Lock()
	defer t.labelsMu.Unlock()
	return maps.Clone(t.breakerStates)
}

// Reset clears all metrics. Last known breaker states are kept.
func (t *Tracker) Reset() {
	t.l1Hits.Store(0)
	t.l1Misses.Store(0)
	t.l2Hits.Store(0)
	t.l2Misses.Store(0)
	t.getCount.Store(0)
	t.setCount.Store(0)
	t.deleteCount.Store(0)
	t.errorCount.Store(0)
	t.fallbackCount.Store(0)
	t.droppedMessages.Store(0)
	t.breakerTransitions.Store(0)
	t.totalBytesWritten.Store(0)

	t.labelsMu.Lock()
	clear(t.fallbackByOp)
	clear(t.droppedByWhy)
	t.labelsMu.Unlock()

	t.latencyMu.Lock()
	t.latencyIndex = 0
	t.latencyCount = 0
	t.latencyMu.Unlock()
}

func avgDuration(durations []time.Duration) time.Duration {
	if len(durations) == 0 {
		return 0
	}
	var total time.Duration
	for _, d := range durations {
		total += d
	}
	return total / time.Duration(len(durations))
}

// percentile expects sorted input.
func percentile(sorted []time.Duration, p int) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	idx := (len(sorted) - 1) * p / 100
	return sorted[idx]
}

func toMillis(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}

var _ types.MetricsRecorder = (*Tracker)(nil)
