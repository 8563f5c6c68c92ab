package resilience

import (
	"sort"
	"sync"

	"github.com/jonboulle/clockwork"

	"github.com/Lucascis/discord-bot-sub000/internal/config"
)

// Registry owns named circuit breakers. Construct one per process (or per
// test) and pass it down; there is no package-level instance.
type Registry struct {
	mu       sync.RWMutex
	breakers map[string]*CircuitBreaker
	clock    clockwork.Clock
	onChange StateChangeFunc
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithRegistryClock sets the clock handed to every breaker the registry creates.
func WithRegistryClock(clock clockwork.Clock) RegistryOption {
	return func(r *Registry) {
		r.clock = clock
	}
}

// WithRegistryStateChange installs a state change callback on every breaker
// the registry creates.
func WithRegistryStateChange(fn StateChangeFunc) RegistryOption {
	return func(r *Registry) {
		r.onChange = fn
	}
}

// NewRegistry returns an empty registry.
func NewRegistry(opts ...RegistryOption) *Registry {
	r := &Registry{
		breakers: make(map[string]*CircuitBreaker),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// GetOrCreate returns the breaker registered under name, creating it from cfg
// on first use. cfg is ignored once the name exists.
func (r *Registry) GetOrCreate(name string, cfg config.CircuitBreakerConfig) *CircuitBreaker {
	r.mu.RLock()
	cb, exists := r.breakers[name]
	r.mu.RUnlock()

	if exists {
		return cb
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	// Double-check: another goroutine may have created it
	if cb, exists = r.breakers[name]; exists {
		return cb
	}

	cfg.Name = name
	var opts []Option
	if r.clock != nil {
		opts = append(opts, WithClock(r.clock))
	}
	if r.onChange != nil {
		opts = append(opts, WithStateChange(r.onChange))
	}

	cb = NewCircuitBreaker(cfg, opts...)
	r.breakers[name] = cb
	return cb
}

// Get returns the breaker registered under name without creating one.
func (r *Registry) Get(name string) (*CircuitBreaker, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	cb, ok := r.breakers[name]
	return cb, ok
}

// Names returns the registered breaker names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.breakers))
	for name := range r.breakers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.breakers)
}

// ResetAll resets every registered breaker. Breakers stay registered.
// Callbacks run after the registry lock is released.
func (r *Registry) ResetAll() {
	r.mu.RLock()
	breakers := make([]*CircuitBreaker, 0, len(r.breakers))
	for _, cb := range r.breakers {
		breakers = append(breakers, cb)
	}
	r.mu.RUnlock()

	for _, cb := range breakers {
		cb.Reset()
	}
}

// AllMetrics returns a snapshot of every breaker keyed by name.
func (r *Registry) AllMetrics() map[string]BreakerMetrics {
	r.mu.RLock()
	defer r.mu.RUnlock()

	stats := make(map[string]BreakerMetrics, len(r.breakers))
	for name, cb := range r.breakers {
		stats[name] = cb.Metrics()
	}
	return stats
}
