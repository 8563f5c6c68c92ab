package cache

import (
	"context"

	"github.com/Lucascis/discord-bot-sub000/internal/config"
)

// GuildKey is the logical key guild:<id> shared by queue state and settings.
func GuildKey(guildID string) string {
	return "guild:" + guildID
}

// QueueStateCache holds volatile per-guild playback queues. Its profile is
// small with a short TTL.
type QueueStateCache[T any] struct {
	*TwoLevelCache[T]
}

func NewQueueStateCache[T any](l2 Store, cfg config.CacheConfig, opts ...Option) (*QueueStateCache[T], error) {
	c, err := New[T](l2, cfg, opts...)
	if err != nil {
		return nil, err
	}
	return &QueueStateCache[T]{TwoLevelCache: c}, nil
}

func (c *QueueStateCache[T]) GetQueue(ctx context.Context, guildID string) (T, bool, error) {
	return c.Get(ctx, GuildKey(guildID))
}

func (c *QueueStateCache[T]) SetQueue(ctx context.Context, guildID string, state T, opts ...SetOption) error {
	return c.Set(ctx, GuildKey(guildID), state, opts...)
}

func (c *QueueStateCache[T]) DeleteQueue(ctx context.Context, guildID string) error {
	return c.Delete(ctx, GuildKey(guildID))
}

// SettingsCache holds rarely changing per-guild settings. Its profile is
// large with a long TTL.
type SettingsCache[T any] struct {
	*TwoLevelCache[T]
}

func NewSettingsCache[T any](l2 Store, cfg config.CacheConfig, opts ...Option) (*SettingsCache[T], error) {
	c, err := New[T](l2, cfg, opts...)
	if err != nil {
		return nil, err
	}
	return &SettingsCache[T]{TwoLevelCache: c}, nil
}

func (c *SettingsCache[T]) GetSettings(ctx context.Context, guildID string) (T, bool, error) {
	return c.Get(ctx, GuildKey(guildID))
}

func (c *SettingsCache[T]) SetSettings(ctx context.Context, guildID string, settings T, opts ...SetOption) error {
	return c.Set(ctx, GuildKey(guildID), settings, opts...)
}

func (c *SettingsCache[T]) DeleteSettings(ctx context.Context, guildID string) error {
	return c.Delete(ctx, GuildKey(guildID))
}

// LoadSettings returns cached settings or loads and caches them.
func (c *SettingsCache[T]) LoadSettings(ctx context.Context, guildID string, load func(context.Context) (T, error)) (T, error) {
	return c.GetOrSet(ctx, GuildKey(guildID), load)
}
