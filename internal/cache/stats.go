package cache

import (
	"sync/atomic"
	"time"
)

// LayerStats counts one cache layer's activity.
type LayerStats struct {
	Hits       int64         `json:"hits"`
	Misses     int64         `json:"misses"`
	Sets       int64         `json:"sets"`
	Deletes    int64         `json:"deletes"`
	AvgLatency time.Duration `json:"avgLatency"`
}

// HitRate is hits over lookups, 0 when the layer was never read.
func (s LayerStats) HitRate() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total)
}

// Stats is a snapshot of a TwoLevelCache's counters.
//
//nolint:govet // Metrics struct - logical grouping prioritized for readability
type Stats struct {
	Name string     `json:"name"`
	L1   LayerStats `json:"l1"`
	L2   LayerStats `json:"l2"`

	// Gets counts Get calls; HitRate is the share answered by either layer.
	Gets    int64   `json:"gets"`
	HitRate float64 `json:"hitRate"`

	DecodeErrors   int64 `json:"decodeErrors"`
	LoaderErrors   int64 `json:"loaderErrors"`
	WarmupFailures int64 `json:"warmupFailures"`
}

// SizeInfo describes L1 occupancy.
type SizeInfo struct {
	Entries        int     `json:"entries"`
	MaxEntries     int     `json:"maxEntries"`
	EstimatedBytes int64   `json:"estimatedBytes"`
	Utilization    float64 `json:"utilization"`
}

type layerCounters struct {
	hits    atomic.Int64
	misses  atomic.Int64
	sets    atomic.Int64
	deletes atomic.Int64

	latencyNanos atomic.Int64
	samples      atomic.Int64
}

func (c *layerCounters) hit(latency time.Duration) {
	c.hits.Add(1)
	c.observe(latency)
}

func (c *layerCounters) miss(latency time.Duration) {
	c.misses.Add(1)
	c.observe(latency)
}

func (c *layerCounters) set(latency time.Duration) {
	c.sets.Add(1)
	c.observe(latency)
}

func (c *layerCounters) del(latency time.Duration) {
	c.deletes.Add(1)
	c.observe(latency)
}

func (c *layerCounters) observe(latency time.Duration) {
	c.latencyNanos.Add(int64(latency))
	c.samples.Add(1)
}

func (c *layerCounters) snapshot() LayerStats {
	s := LayerStats{
		Hits:    c.hits.Load(),
		Misses:  c.misses.Load(),
		Sets:    c.sets.Load(),
		Deletes: c.deletes.Load(),
	}
	if n := c.samples.Load(); n > 0 {
		s.AvgLatency = time.Duration(c.latencyNanos.Load() / n)
	}
	return s
}

func (c *layerCounters) reset() {
	c.hits.Store(0)
	c.misses.Store(0)
	c.sets.Store(0)
	c.deletes.Store(0)
	c.latencyNanos.Store(0)
	c.samples.Store(0)
}
