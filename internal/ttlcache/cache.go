// Package ttlcache implements a bounded, per-entry-expiring in-process cache.
//
// Entries are evicted least-recently-accessed first once the cache is full,
// and an owned background sweeper drops expired entries even if they are
// never read again.
package ttlcache

import (
	"container/list"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"
)

const defaultCleanupInterval = time.Minute

// Options configures a Cache.
type Options struct {
	// DefaultTTL applies when Set is called with a non-positive ttl.
	// Zero means such entries never expire.
	DefaultTTL time.Duration
	// CleanupInterval is the sweeper period. Negative disables the sweeper.
	CleanupInterval time.Duration
	Clock           clockwork.Clock
}

// Entry is a snapshot of a cached value and its bookkeeping.
type Entry[V any] struct {
	Value       V
	ExpiresAt   time.Time
	LastAccess  time.Time
	AccessCount int64
}

// Expired reports whether the entry has passed its expiry at now.
func (e Entry[V]) Expired(now time.Time) bool {
	return !e.ExpiresAt.IsZero() && !now.Before(e.ExpiresAt)
}

type item[V any] struct {
	key   string
	entry Entry[V]
}

// Stats counts removals since construction.
type Stats struct {
	Evictions   int64
	Expirations int64
}

// Cache is safe for concurrent use.
type Cache[V any] struct {
	mu      sync.Mutex
	maxSize int
	ttl     time.Duration
	clock   clockwork.Clock
	ll      *list.List // front = most recently accessed
	items   map[string]*list.Element

	evictions   atomic.Int64
	expirations atomic.Int64

	closeOnce sync.Once
	stop      chan struct{}
	done      chan struct{}
}

// New returns a cache holding at most maxSize entries and starts its sweeper.
// It panics if maxSize is not positive.
func New[V any](maxSize int, opts Options) *Cache[V] {
	if maxSize <= 0 {
		panic("ttlcache: invalid max size")
	}
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.CleanupInterval == 0 {
		opts.CleanupInterval = defaultCleanupInterval
	}

	c := &Cache[V]{
		maxSize: maxSize,
		ttl:     opts.DefaultTTL,
		clock:   opts.Clock,
		ll:      list.New(),
		items:   make(map[string]*list.Element),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}

	if opts.CleanupInterval > 0 {
		go c.sweep(opts.CleanupInterval)
	} else {
		close(c.done)
	}
	return c
}

// Get returns the value for key if present and not expired. A hit refreshes
// the entry's access time and count; an expired entry is removed.
func (c *Cache[V]) Get(key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.items[key]
	if !ok {
		var zero V
		return zero, false
	}

	it := e.Value.(*item[V])
	now := c.clock.Now()
	if it.entry.Expired(now) {
		c.removeElement(e)
		c.expirations.Add(1)
		var zero V
		return zero, false
	}

	it.entry.LastAccess = now
	it.entry.AccessCount++
	c.ll.MoveToFront(e)
	return it.entry.Value, true
}

// Peek is Get without touching access metadata or LRU order.
func (c *Cache[V]) Peek(key string) (Entry[V], bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.items[key]
	if !ok {
		return Entry[V]{}, false
	}
	it := e.Value.(*item[V])
	if it.entry.Expired(c.clock.Now()) {
		return Entry[V]{}, false
	}
	return it.entry, true
}

// Set inserts or overwrites key. A non-positive ttl uses the default TTL.
// Inserting a new key into a full cache evicts the least recently accessed entry.
func (c *Cache[V]) Set(key string, value V, ttl time.Duration) {
	if ttl <= 0 {
		ttl = c.ttl
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.clock.Now()
	var expiresAt time.Time
	if ttl > 0 {
		expiresAt = now.Add(ttl)
	}

	if e, ok := c.items[key]; ok {
		it := e.Value.(*item[V])
		it.entry.Value = value
		it.entry.ExpiresAt = expiresAt
		it.entry.LastAccess = now
		c.ll.MoveToFront(e)
		return
	}

	if c.ll.Len() >= c.maxSize {
		if oldest := c.ll.Back(); oldest != nil {
			c.removeElement(oldest)
			c.evictions.Add(1)
		}
	}

	c.items[key] = c.ll.PushFront(&item[V]{
		key: key,
		entry: Entry[V]{
			Value:      value,
			ExpiresAt:  expiresAt,
			LastAccess: now,
		},
	})
}

// Delete removes key and reports whether it was present.
func (c *Cache[V]) Delete(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.items[key]
	if !ok {
		return false
	}
	c.removeElement(e)
	return true
}

// Update applies fn to the live value of key under the cache lock, keeping
// its expiry. It reports false if key is absent or expired.
func (c *Cache[V]) Update(key string, fn func(V) V) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.items[key]
	if !ok {
		return false
	}
	it := e.Value.(*item[V])
	now := c.clock.Now()
	if it.entry.Expired(now) {
		c.removeElement(e)
		c.expirations.Add(1)
		return false
	}
	it.entry.Value = fn(it.entry.Value)
	it.entry.LastAccess = now
	c.ll.MoveToFront(e)
	return true
}

// Expire resets key's expiry to ttl from now. It reports false if key is
// absent or already expired.
func (c *Cache[V]) Expire(key string, ttl time.Duration) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.items[key]
	if !ok {
		return false
	}
	it := e.Value.(*item[V])
	now := c.clock.Now()
	if it.entry.Expired(now) {
		c.removeElement(e)
		c.expirations.Add(1)
		return false
	}
	it.entry.ExpiresAt = now.Add(ttl)
	return true
}

// Clear removes every entry. Eviction and expiration counters are kept.
func (c *Cache[V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ll.Init()
	c.items = make(map[string]*list.Element)
}

// Len returns the number of stored entries, including expired entries not yet swept.
func (c *Cache[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ll.Len()
}

// MaxSize returns the configured capacity.
func (c *Cache[V]) MaxSize() int {
	return c.maxSize
}

// Range calls fn for each live entry, most recently accessed first, until fn
// returns false. fn runs on a snapshot and may call back into the cache.
func (c *Cache[V]) Range(fn func(key string, e Entry[V]) bool) {
	c.mu.Lock()
	now := c.clock.Now()
	snapshot := make([]item[V], 0, c.ll.Len())
	for e := c.ll.Front(); e != nil; e = e.Next() {
		it := e.Value.(*item[V])
		if !it.entry.Expired(now) {
			snapshot = append(snapshot, *it)
		}
	}
	c.mu.Unlock()

	for _, it := range snapshot {
		if !fn(it.key, it.entry) {
			return
		}
	}
}

// Purge removes every expired entry and returns how many were removed.
func (c *Cache[V]) Purge() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.clock.Now()
	removed := 0
	for e := c.ll.Back(); e != nil; {
		prev := e.Prev()
		if e.Value.(*item[V]).entry.Expired(now) {
			c.removeElement(e)
			removed++
		}
		e = prev
	}
	c.expirations.Add(int64(removed))
	return removed
}

func (c *Cache[V]) Stats() Stats {
	return Stats{
		Evictions:   c.evictions.Load(),
		Expirations: c.expirations.Load(),
	}
}

// Close stops the sweeper and waits for it to exit. The cache stays usable.
func (c *Cache[V]) Close() {
	c.closeOnce.Do(func() {
		close(c.stop)
	})
	<-c.done
}

func (c *Cache[V]) removeElement(e *list.Element) {
	c.ll.Remove(e)
	delete(c.items, e.Value.(*item[V]).key)
}

func (c *Cache[V]) sweep(interval time.Duration) {
	defer close(c.done)

	ticker := c.clock.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stop:
			return
		case <-ticker.Chan():
			c.Purge()
		}
	}
}
