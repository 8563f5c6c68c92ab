package staleguard

import (
	"github.com/Lucascis/discord-bot-sub000/internal/cache"
)

// CacheOption adjusts one cache created through this package.
type CacheOption = cache.Option

// WithCacheName overrides the name used in logs, stats and health.
func WithCacheName(name string) CacheOption {
	return cache.WithName(name)
}

func (s *Staleguard) cacheOptions(extra []CacheOption) []cache.Option {
	opts := []cache.Option{
		cache.WithLogger(s.baseLogger),
		cache.WithClock(s.clock),
		cache.WithMetricsRecorder(s.recorder),
	}
	if s.serializer != nil {
		opts = append(opts, cache.WithSerializer(s.serializer))
	}
	if s.validator != nil {
		opts = append(opts, cache.WithKeyValidator(s.validator))
	}
	return append(opts, extra...)
}

// NewCache creates a two-level cache with a custom profile over the store
// client of s. The cache is closed by s.Close.
func NewCache[T any](s *Staleguard, profile CacheConfig, opts ...CacheOption) (*Cache[T], error) {
	c, err := cache.New[T](s.client, profile, s.cacheOptions(opts)...)
	if err != nil {
		return nil, err
	}
	if err := s.register(c); err != nil {
		return nil, err
	}
	return c, nil
}

// NewSearchCache creates the search results cache from the caches.search profile.
func NewSearchCache[T any](s *Staleguard, opts ...CacheOption) (*SearchCache[T], error) {
	c, err := cache.NewSearchCache[T](s.client, s.cfg.Caches.Search, s.cacheOptions(opts)...)
	if err != nil {
		return nil, err
	}
	if err := s.register(c); err != nil {
		return nil, err
	}
	return c, nil
}

// NewUserPreferenceCache creates the per member preferences cache.
func NewUserPreferenceCache[T any](s *Staleguard, opts ...CacheOption) (*UserPreferenceCache[T], error) {
	c, err := cache.NewUserPreferenceCache[T](s.client, s.cfg.Caches.UserPreferences, s.cacheOptions(opts)...)
	if err != nil {
		return nil, err
	}
	if err := s.register(c); err != nil {
		return nil, err
	}
	return c, nil
}

// NewQueueStateCache creates the per guild queue cache.
func NewQueueStateCache[T any](s *Staleguard, opts ...CacheOption) (*QueueStateCache[T], error) {
	c, err := cache.NewQueueStateCache[T](s.client, s.cfg.Caches.QueueState, s.cacheOptions(opts)...)
	if err != nil {
		return nil, err
	}
	if err := s.register(c); err != nil {
		return nil, err
	}
	return c, nil
}

// NewSettingsCache creates the per guild settings cache.
func NewSettingsCache[T any](s *Staleguard, opts ...CacheOption) (*SettingsCache[T], error) {
	c, err := cache.NewSettingsCache[T](s.client, s.cfg.Caches.Settings, s.cacheOptions(opts)...)
	if err != nil {
		return nil, err
	}
	if err := s.register(c); err != nil {
		return nil, err
	}
	return c, nil
}
