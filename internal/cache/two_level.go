package cache

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/Lucascis/discord-bot-sub000/internal/config"
	"github.com/Lucascis/discord-bot-sub000/internal/metrics"
	"github.com/Lucascis/discord-bot-sub000/internal/ttlcache"
	"github.com/Lucascis/discord-bot-sub000/internal/types"
)

// deleteGrace is the TTL given to an L2 copy on Delete; the backing store is
// not assumed to have a delete command.
const deleteGrace = time.Second

const defaultConcurrency = 8

// Store is the L2 surface a TwoLevelCache needs. *store.Client satisfies it.
type Store interface {
	Get(ctx context.Context, key string) (string, bool)
	Set(ctx context.Context, key, value string, ttl time.Duration)
	Expire(ctx context.Context, key string, ttl time.Duration) bool
}

// Option configures a TwoLevelCache.
type Option func(*options)

type options struct {
	name       string
	logger     *slog.Logger
	clock      clockwork.Clock
	serializer types.Serializer
	recorder   types.MetricsRecorder
	validator  *types.KeyValidator
}

// WithName overrides the cache name used in logs, stats and health. It
// defaults to the key prefix without its trailing colon.
func WithName(name string) Option {
	return func(o *options) { o.name = name }
}

func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

func WithClock(clock clockwork.Clock) Option {
	return func(o *options) {
		if clock != nil {
			o.clock = clock
		}
	}
}

func WithSerializer(s types.Serializer) Option {
	return func(o *options) {
		if s != nil {
			o.serializer = s
		}
	}
}

func WithMetricsRecorder(r types.MetricsRecorder) Option {
	return func(o *options) {
		if r != nil {
			o.recorder = r
		}
	}
}

// WithKeyValidator validates logical keys on every call. nil disables validation.
func WithKeyValidator(v *types.KeyValidator) Option {
	return func(o *options) { o.validator = v }
}

// SetOption adjusts a single Set.
type SetOption func(*setOptions)

type setOptions struct {
	ttl    time.Duration
	skipL1 bool
	skipL2 bool
}

// WithTTL sets the entry TTL. L1 uses it as is; L2 uses it or the cache's
// L2 floor, whichever is longer.
func WithTTL(ttl time.Duration) SetOption {
	return func(o *setOptions) { o.ttl = ttl }
}

// SkipL1 writes only to the backing store.
func SkipL1() SetOption {
	return func(o *setOptions) { o.skipL1 = true }
}

// SkipL2 writes only to the in-process layer.
func SkipL2() SetOption {
	return func(o *setOptions) { o.skipL2 = true }
}

type l1Entry[T any] struct {
	value T
	size  int
	meta  Metadata
}

// TwoLevelCache layers an in-process LRU (L1) over a shared store (L2).
// Reads are cache-aside with promotion into L1; writes go through to both
// layers unless skipped. L2 keys are the configured prefix plus the logical key.
type TwoLevelCache[T any] struct {
	name              string
	prefix            string
	l1                *ttlcache.Cache[l1Entry[T]]
	l2                Store
	l1TTL             time.Duration
	l2TTL             time.Duration
	compressThreshold int
	concurrency       int

	serializer types.Serializer
	recorder   types.MetricsRecorder
	validator  *types.KeyValidator
	logger     *slog.Logger
	clock      clockwork.Clock

	sf singleflight.Group

	l1Stats        layerCounters
	l2Stats        layerCounters
	gets           atomic.Int64
	decodeErrors   atomic.Int64
	loaderErrors   atomic.Int64
	warmupFailures atomic.Int64

	closed atomic.Bool
}

// New creates a two-level cache over l2 using the cfg profile.
func New[T any](l2 Store, cfg config.CacheConfig, opts ...Option) (*TwoLevelCache[T], error) {
	if l2 == nil {
		return nil, fmt.Errorf("%w: store is required", types.ErrInvalidConfig)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrInvalidConfig, err)
	}

	o := options{
		name:       strings.TrimSuffix(cfg.KeyPrefix, ":"),
		logger:     slog.Default(),
		clock:      clockwork.NewRealClock(),
		serializer: JSON,
		recorder:   metrics.NewNoOpTracker(),
	}
	for _, opt := range opts {
		opt(&o)
	}

	cleanup := cfg.CleanupInterval
	if cleanup == 0 {
		cleanup = -1
	}

	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = defaultConcurrency
	}

	return &TwoLevelCache[T]{
		name:   o.name,
		prefix: cfg.KeyPrefix,
		l1: ttlcache.New[l1Entry[T]](cfg.MaxSize, ttlcache.Options{
			DefaultTTL:      cfg.DefaultTTL,
			CleanupInterval: cleanup,
			Clock:           o.clock,
		}),
		l2:                l2,
		l1TTL:             cfg.DefaultTTL,
		l2TTL:             cfg.L2TTL,
		compressThreshold: cfg.CompressThreshold,
		concurrency:       concurrency,
		serializer:        o.serializer,
		recorder:          o.recorder,
		validator:         o.validator,
		logger:            o.logger.With("component", "two-level-cache", "cache", o.name),
		clock:             o.clock,
	}, nil
}

func (c *TwoLevelCache[T]) Name() string {
	return c.name
}

// Get returns the value for key from L1, or from L2 with promotion into L1.
// Errors are returned only for invalid keys or a closed cache; an L2 outage
// or an undecodable L2 value is a miss.
func (c *TwoLevelCache[T]) Get(ctx context.Context, key string) (T, bool, error) {
	var zero T
	if err := c.check("Get", key); err != nil {
		return zero, false, err
	}

	c.gets.Add(1)
	if v, ok := c.getL1(key); ok {
		return v, true, nil
	}
	v, ok := c.getL2(ctx, key)
	return v, ok, nil
}

func (c *TwoLevelCache[T]) getL1(key string) (T, bool) {
	start := time.Now()
	e, ok := c.l1.Get(key)
	latency := time.Since(start)

	if !ok {
		c.l1Stats.miss(latency)
		c.recorder.RecordMiss(types.LayerL1, key, latency)
		var zero T
		return zero, false
	}
	c.l1Stats.hit(latency)
	c.recorder.RecordHit(types.LayerL1, key, latency)
	return e.value, true
}

// getL2 reads key from the store and promotes a hit into L1 with the L1 TTL.
func (c *TwoLevelCache[T]) getL2(ctx context.Context, key string) (T, bool) {
	var zero T

	start := time.Now()
	raw, found := c.l2.Get(ctx, c.prefix+key)
	if !found {
		latency := time.Since(start)
		c.l2Stats.miss(latency)
		c.recorder.RecordMiss(types.LayerL2, key, latency)
		return zero, false
	}

	entry, err := decodeEntry[T]([]byte(raw), c.serializer)
	latency := time.Since(start)
	if err != nil {
		c.decodeErrors.Add(1)
		c.l2Stats.miss(latency)
		c.recorder.RecordError(types.LayerL2, "decode", err)
		c.logger.Debug("Discarding undecodable L2 entry", "key", key, "error", err)
		return zero, false
	}

	c.l2Stats.hit(latency)
	c.recorder.RecordHit(types.LayerL2, key, latency)

	// The L2 copy keeps its write-time metadata; the read is counted in L1.
	meta := entry.Metadata
	meta.AccessCount++
	meta.LastAccess = c.clock.Now()
	c.l1.Set(key, l1Entry[T]{value: entry.Value, size: len(raw), meta: meta}, c.l1TTL)
	return entry.Value, true
}

// Inspect returns key's L1 entry with its metadata. It does not count as a
// read. AccessCount covers the L2 read that promoted the entry plus every L1
// hit since.
func (c *TwoLevelCache[T]) Inspect(key string) (Entry[T], bool) {
	e, ok := c.l1.Peek(key)
	if !ok {
		return Entry[T]{}, false
	}
	meta := e.Value.meta
	meta.AccessCount += e.AccessCount
	if e.LastAccess.After(meta.LastAccess) {
		meta.LastAccess = e.LastAccess
	}
	return Entry[T]{Value: e.Value.value, Metadata: meta}, true
}

// Set writes value through to both layers. Errors are returned only for
// invalid keys, a closed cache or a value the serializer rejects.
func (c *TwoLevelCache[T]) Set(ctx context.Context, key string, value T, opts ...SetOption) error {
	if err := c.check("Set", key); err != nil {
		return err
	}

	var o setOptions
	for _, opt := range opts {
		opt(&o)
	}

	now := c.clock.Now()
	data, meta, err := encodeEntry(value, Metadata{CreatedAt: now, LastAccess: now}, c.serializer, c.compressThreshold)
	if err != nil {
		c.recorder.RecordError(types.LayerL2, "encode", err)
		return types.NewCacheError("Set", key, types.LayerL2, err)
	}

	if !o.skipL1 {
		ttl := o.ttl
		if ttl <= 0 {
			ttl = c.l1TTL
		}
		start := time.Now()
		c.l1.Set(key, l1Entry[T]{value: value, size: len(data), meta: meta}, ttl)
		latency := time.Since(start)
		c.l1Stats.set(latency)
		c.recorder.RecordSet(types.LayerL1, key, len(data), latency)
	}

	if !o.skipL2 {
		start := time.Now()
		c.l2.Set(ctx, c.prefix+key, string(data), c.l2TTLFor(o.ttl))
		latency := time.Since(start)
		c.l2Stats.set(latency)
		c.recorder.RecordSet(types.LayerL2, key, len(data), latency)
	}
	return nil
}

// l2TTLFor is max(ttl, L2 floor); with neither set it falls back to the L1 TTL.
func (c *TwoLevelCache[T]) l2TTLFor(ttl time.Duration) time.Duration {
	if ttl <= 0 {
		ttl = c.l1TTL
	}
	return max(ttl, c.l2TTL)
}

// Delete removes key from L1 and expires the L2 copy within a second.
func (c *TwoLevelCache[T]) Delete(ctx context.Context, key string) error {
	if err := c.check("Delete", key); err != nil {
		return err
	}

	start := time.Now()
	c.l1.Delete(key)
	latency := time.Since(start)
	c.l1Stats.del(latency)
	c.recorder.RecordDelete(types.LayerL1, key, latency)

	start = time.Now()
	c.l2.Expire(ctx, c.prefix+key, deleteGrace)
	latency = time.Since(start)
	c.l2Stats.del(latency)
	c.recorder.RecordDelete(types.LayerL2, key, latency)
	return nil
}

// Has reports whether either layer holds key. It does not promote or count.
func (c *TwoLevelCache[T]) Has(ctx context.Context, key string) bool {
	if c.check("Has", key) != nil {
		return false
	}
	if _, ok := c.l1.Peek(key); ok {
		return true
	}
	_, found := c.l2.Get(ctx, c.prefix+key)
	return found
}

// GetOrSet returns the cached value or calls loader, caches its result and
// returns it. Concurrent callers for one key share a single loader call.
// A loader error is returned unchanged and nothing is cached.
//
// The shared call runs on a context detached from any one caller's
// cancellation. A caller whose ctx ends stops waiting and gets ctx.Err();
// the load carries on for the others.
func (c *TwoLevelCache[T]) GetOrSet(ctx context.Context, key string, loader func(context.Context) (T, error), opts ...SetOption) (T, error) {
	var zero T

	v, ok, err := c.Get(ctx, key)
	if err != nil {
		return zero, err
	}
	if ok {
		return v, nil
	}

	shared := context.WithoutCancel(ctx)
	ch := c.sf.DoChan(key, func() (any, error) {
		if e, ok := c.l1.Peek(key); ok {
			return e.Value.value, nil
		}

		value, err := loader(shared)
		if err != nil {
			c.loaderErrors.Add(1)
			return nil, err
		}
		if setErr := c.Set(shared, key, value, opts...); setErr != nil {
			c.logger.Debug("Failed to cache loader result", "key", key, "error", setErr)
		}
		return value, nil
	})

	select {
	case <-ctx.Done():
		return zero, ctx.Err()
	case r := <-ch:
		if r.Err != nil {
			return zero, r.Err
		}
		value, _ := r.Val.(T)
		return value, nil
	}
}

// MGet looks up keys in L1, then fetches the misses from L2 in parallel.
// The result holds only the keys that were found.
func (c *TwoLevelCache[T]) MGet(ctx context.Context, keys []string) (map[string]T, error) {
	if c.closed.Load() {
		return nil, types.ErrClosed
	}
	for _, key := range keys {
		if err := c.validate("MGet", key); err != nil {
			return nil, err
		}
	}

	results := make(map[string]T, len(keys))
	var missing []string
	for _, key := range keys {
		c.gets.Add(1)
		if v, ok := c.getL1(key); ok {
			results[key] = v
		} else {
			missing = append(missing, key)
		}
	}
	if len(missing) == 0 {
		return results, nil
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.concurrency)
	for _, key := range missing {
		g.Go(func() error {
			if v, ok := c.getL2(gctx, key); ok {
				mu.Lock()
				results[key] = v
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()

	return results, nil
}

// WarmupResult reports a Warmup run.
type WarmupResult struct {
	Requested int `json:"requested"`
	Loaded    int `json:"loaded"`
	Failed    int `json:"failed"`
}

// Warmup loads and caches keys in parallel. A failing key is logged and
// counted; it never stops the others.
func (c *TwoLevelCache[T]) Warmup(ctx context.Context, keys []string, loader func(ctx context.Context, key string) (T, error), opts ...SetOption) WarmupResult {
	result := WarmupResult{Requested: len(keys)}
	if c.closed.Load() {
		result.Failed = len(keys)
		return result
	}

	var loaded, failed atomic.Int64
	var g errgroup.Group
	g.SetLimit(c.concurrency)
	for _, key := range keys {
		g.Go(func() error {
			if err := c.warmOne(ctx, key, loader, opts); err != nil {
				failed.Add(1)
				c.warmupFailures.Add(1)
				c.logger.Warn("Warmup failed for key", "key", key, "error", err)
				return nil
			}
			loaded.Add(1)
			return nil
		})
	}
	_ = g.Wait()

	result.Loaded = int(loaded.Load())
	result.Failed = int(failed.Load())
	c.logger.Info("Warmup complete", "requested", result.Requested, "loaded", result.Loaded, "failed", result.Failed)
	return result
}

func (c *TwoLevelCache[T]) warmOne(ctx context.Context, key string, loader func(context.Context, string) (T, error), opts []SetOption) error {
	if err := c.validate("Warmup", key); err != nil {
		return err
	}
	value, err := loader(ctx, key)
	if err != nil {
		return err
	}
	return c.Set(ctx, key, value, opts...)
}

// Stats returns a snapshot of the cache counters.
func (c *TwoLevelCache[T]) Stats() Stats {
	s := Stats{
		Name:           c.name,
		L1:             c.l1Stats.snapshot(),
		L2:             c.l2Stats.snapshot(),
		Gets:           c.gets.Load(),
		DecodeErrors:   c.decodeErrors.Load(),
		LoaderErrors:   c.loaderErrors.Load(),
		WarmupFailures: c.warmupFailures.Load(),
	}
	if s.Gets > 0 {
		s.HitRate = float64(s.L1.Hits+s.L2.Hits) / float64(s.Gets)
	}
	return s
}

// SizeInfo reports L1 occupancy. EstimatedBytes sums the encoded size of each entry.
func (c *TwoLevelCache[T]) SizeInfo() SizeInfo {
	info := SizeInfo{MaxEntries: c.l1.MaxSize()}
	c.l1.Range(func(_ string, e ttlcache.Entry[l1Entry[T]]) bool {
		info.Entries++
		info.EstimatedBytes += int64(e.Value.size)
		return true
	})
	if info.MaxEntries > 0 {
		info.Utilization = float64(info.Entries) / float64(info.MaxEntries)
	}
	return info
}

// Health summarizes the cache for health endpoints.
func (c *TwoLevelCache[T]) Health() types.CacheHealth {
	s := c.Stats()
	return types.CacheHealth{
		Name:         c.name,
		L1Entries:    c.l1.Len(),
		L1MaxEntries: c.l1.MaxSize(),
		L1HitRate:    s.L1.HitRate(),
		L2HitRate:    s.L2.HitRate(),
		HitRate:      s.HitRate,
	}
}

// Clear empties L1. L2 entries expire on their own.
func (c *TwoLevelCache[T]) Clear() {
	c.l1.Clear()
}

func (c *TwoLevelCache[T]) ResetStats() {
	c.l1Stats.reset()
	c.l2Stats.reset()
	c.gets.Store(0)
	c.decodeErrors.Store(0)
	c.loaderErrors.Store(0)
	c.warmupFailures.Store(0)
}

// Close stops the L1 sweeper. The shared store is not closed.
func (c *TwoLevelCache[T]) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	c.l1.Close()
	return nil
}

func (c *TwoLevelCache[T]) check(op, key string) error {
	if c.closed.Load() {
		return types.ErrClosed
	}
	return c.validate(op, key)
}

func (c *TwoLevelCache[T]) validate(op, key string) error {
	if c.validator == nil {
		return nil
	}
	if err := c.validator.Validate(key); err != nil {
		return types.NewCacheError(op, key, types.LayerL1, err)
	}
	return nil
}
