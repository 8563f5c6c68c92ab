package cache

import (
	"context"

	"github.com/Lucascis/discord-bot-sub000/internal/config"
)

// UserPreferenceCache holds per-user, per-guild preferences.
type UserPreferenceCache[T any] struct {
	*TwoLevelCache[T]
}

func NewUserPreferenceCache[T any](l2 Store, cfg config.CacheConfig, opts ...Option) (*UserPreferenceCache[T], error) {
	c, err := New[T](l2, cfg, opts...)
	if err != nil {
		return nil, err
	}
	return &UserPreferenceCache[T]{TwoLevelCache: c}, nil
}

// UserKey is the logical key guildID:userID.
func UserKey(guildID, userID string) string {
	return guildID + ":" + userID
}

func (c *UserPreferenceCache[T]) GetPreferences(ctx context.Context, guildID, userID string) (T, bool, error) {
	return c.Get(ctx, UserKey(guildID, userID))
}

func (c *UserPreferenceCache[T]) SetPreferences(ctx context.Context, guildID, userID string, prefs T, opts ...SetOption) error {
	return c.Set(ctx, UserKey(guildID, userID), prefs, opts...)
}

func (c *UserPreferenceCache[T]) DeletePreferences(ctx context.Context, guildID, userID string) error {
	return c.Delete(ctx, UserKey(guildID, userID))
}
