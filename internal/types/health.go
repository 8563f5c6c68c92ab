package types

import "time"

// HealthStatus represents the overall health state.
type HealthStatus int

const (
	// HealthStatusHealthy indicates the backing store is reachable and the breaker closed.
	HealthStatusHealthy HealthStatus = iota + 1
	// HealthStatusDegraded indicates reads are served from fallback and publishes buffered.
	HealthStatusDegraded
	// HealthStatusUnhealthy indicates the component has been closed.
	HealthStatusUnhealthy
)

func (s HealthStatus) String() string {
	switch s {
	case HealthStatusHealthy:
		return "healthy"
	case HealthStatusDegraded:
		return "degraded"
	case HealthStatusUnhealthy:
		return "unhealthy"
	default:
		return "unknown"
	}
}

// MarshalText encodes the status by name.
func (s HealthStatus) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// StoreHealth describes the resilient store client.
//
//nolint:govet // Metrics struct - logical grouping prioritized for readability
type StoreHealth struct {
	LastErrorTime     time.Time
	LastError         string
	BreakerState      string
	Status            HealthStatus
	Connected         bool
	FallbackEntries   int
	FallbackCapacity  int
	BufferedMessages  int
	BufferCapacity    int
	DroppedMessages   int64
	ReplayedMessages  int64
	ReconnectAttempts int64
}

// CacheHealth describes one two-level cache instance.
type CacheHealth struct {
	Name         string
	L1Entries    int
	L1MaxEntries int
	L1HitRate    float64
	L2HitRate    float64
	HitRate      float64
}

// HealthMetrics aggregates the store client and every cache built on it.
type HealthMetrics struct {
	Timestamp time.Time
	Store     StoreHealth
	Caches    []CacheHealth
	Status    HealthStatus
}

// PublisherHealthMetrics is the flattened view pushed to metrics sinks.
type PublisherHealthMetrics struct {
	L1Entries        int64
	L1EstimatedBytes int64
	HitRatio         float64
	AverageLatencyMs float64
	BufferedMessages int64
	DroppedMessages  int64
	FallbackEntries  int64
	BreakerOpen      bool
	IsConnected      bool
}

// MetricsSnapshot contains a point-in-time view of recorded metrics.
//
//nolint:govet // Metrics struct with many counters - grouping by category improves readability
type MetricsSnapshot struct {
	Timestamp time.Time

	L1Hits   int64
	L1Misses int64
	L2Hits   int64
	L2Misses int64

	GetCount    int64
	SetCount    int64
	DeleteCount int64
	ErrorCount  int64

	FallbackCount      int64
	DroppedMessages    int64
	BreakerTransitions int64

	AvgLatencyMs float64
	P50LatencyMs float64
	P95LatencyMs float64
	P99LatencyMs float64
}

func (s *MetricsSnapshot) L1HitRatio() float64 {
	return ratio(s.L1Hits, s.L1Hits+s.L1Misses)
}

func (s *MetricsSnapshot) L2HitRatio() float64 {
	return ratio(s.L2Hits, s.L2Hits+s.L2Misses)
}

// TotalHitRatio counts a lookup as a hit when any layer answered it.
// An L1 miss followed by an L2 lookup is one lookup, not two.
func (s *MetricsSnapshot) TotalHitRatio() float64 {
	return ratio(s.L1Hits+s.L2Hits, s.L1Hits+s.L2Hits+s.L2Misses)
}

func ratio(part, total int64) float64 {
	if total == 0 {
		return 0
	}
	return float64(part) / float64(total)
}
