package store

import (
	"strconv"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/Lucascis/discord-bot-sub000/internal/config"
	"github.com/Lucascis/discord-bot-sub000/internal/ttlcache"
)

// FallbackCache holds the last known values of backing-store keys so reads
// and counters keep working while the store is unreachable. It has its own
// capacity, separate from any L1 cache built on the client.
type FallbackCache struct {
	entries    *ttlcache.Cache[string]
	defaultTTL time.Duration
}

func NewFallbackCache(cfg config.FallbackConfig, clock clockwork.Clock) *FallbackCache {
	interval := cfg.CleanupInterval
	if interval == 0 {
		interval = -1
	}
	return &FallbackCache{
		entries: ttlcache.New[string](cfg.MaxSize, ttlcache.Options{
			DefaultTTL:      cfg.DefaultTTL,
			CleanupInterval: interval,
			Clock:           clock,
		}),
		defaultTTL: cfg.DefaultTTL,
	}
}

func (f *FallbackCache) Get(key string) (string, bool) {
	return f.entries.Get(key)
}

// Set stores value; a non-positive ttl uses the fallback default TTL.
func (f *FallbackCache) Set(key, value string, ttl time.Duration) {
	f.entries.Set(key, value, ttl)
}

// Incr emulates INCR. A missing key starts from zero with the default TTL;
// a non-integer value is replaced.
func (f *FallbackCache) Incr(key string) int64 {
	var n int64
	updated := f.entries.Update(key, func(v string) string {
		cur, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			cur = 0
		}
		n = cur + 1
		return strconv.FormatInt(n, 10)
	})
	if !updated {
		n = 1
		f.entries.Set(key, "1", f.defaultTTL)
	}
	return n
}

// Expire emulates EXPIRE and reports whether the key existed.
func (f *FallbackCache) Expire(key string, ttl time.Duration) bool {
	if ttl <= 0 {
		return f.entries.Delete(key)
	}
	return f.entries.Expire(key, ttl)
}

func (f *FallbackCache) Delete(key string) bool {
	return f.entries.Delete(key)
}

func (f *FallbackCache) Len() int {
	return f.entries.Len()
}

func (f *FallbackCache) Capacity() int {
	return f.entries.MaxSize()
}

// Purge drops expired entries and returns how many were removed.
func (f *FallbackCache) Purge() int {
	return f.entries.Purge()
}

func (f *FallbackCache) Close() {
	f.entries.Close()
}
