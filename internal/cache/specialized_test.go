package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Lucascis/discord-bot-sub000/internal/config"
	"github.com/Lucascis/discord-bot-sub000/internal/store"
)

func TestNormalizeQuery(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Daft Punk", "daft punk"},
		{"  daft   PUNK!!  ", "daft punk"},
		{"AC/DC - Back in Black", "acdc back in black"},
		{"Beyoncé ~ Halo", "beyoncé halo"},
		{"lo-fi\tbeats\n", "lofi beats"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := NormalizeQuery(tt.in); got != tt.want {
			t.Errorf("NormalizeQuery(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestKeyHelpers(t *testing.T) {
	assert.Equal(t, "daft punk", SearchKey("", "Daft Punk!"))
	assert.Equal(t, "youtube:daft punk", SearchKey("YouTube", "daft  punk"))
	assert.Equal(t, "123:456", UserKey("123", "456"))
	assert.Equal(t, "guild:789", GuildKey("789"))
}

func TestSpecializedCachesUseProfilePrefixes(t *testing.T) {
	l2 := newFakeStore()
	caches := config.DefaultConfig().Caches
	ctx := context.Background()

	search, err := NewSearchCache[[]track](l2, caches.Search)
	require.NoError(t, err)
	defer search.Close()
	prefs, err := NewUserPreferenceCache[map[string]int](l2, caches.UserPreferences)
	require.NoError(t, err)
	defer prefs.Close()
	queue, err := NewQueueStateCache[[]string](l2, caches.QueueState)
	require.NoError(t, err)
	defer queue.Close()
	settings, err := NewSettingsCache[map[string]string](l2, caches.Settings)
	require.NoError(t, err)
	defer settings.Close()

	require.NoError(t, search.SetResults(ctx, "", "Daft Punk", []track{{Title: "Aerodynamic"}}))
	require.NoError(t, prefs.SetPreferences(ctx, "g1", "u1", map[string]int{"volume": 70}))
	require.NoError(t, queue.SetQueue(ctx, "g1", []string{"a", "b"}))
	require.NoError(t, settings.SetSettings(ctx, "g1", map[string]string{"dj": "role-1"}))

	assert.True(t, l2.has("search:daft punk"))
	assert.True(t, l2.has("user:g1:u1"))
	assert.True(t, l2.has("queue:guild:g1"))
	assert.True(t, l2.has("settings:guild:g1"))

	assert.Equal(t, time.Hour, l2.ttl("search:daft punk"))
	assert.Equal(t, 24*time.Hour, l2.ttl("user:g1:u1"))
	assert.Equal(t, 5*time.Minute, l2.ttl("queue:guild:g1"))

	results, ok, err := search.GetResults(ctx, "", "  daft punk ")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "Aerodynamic", results[0].Title)

	p, ok, _ := prefs.GetPreferences(ctx, "g1", "u1")
	assert.True(t, ok)
	assert.Equal(t, 70, p["volume"])

	require.NoError(t, queue.DeleteQueue(ctx, "g1"))
	_, ok, _ = queue.GetQueue(ctx, "g1")
	assert.True(t, ok, "fake store keeps the value; only L1 is cleared and L2 is expired")
	assert.Equal(t, time.Second, l2.expires["queue:guild:g1"])

	loaded, err := settings.LoadSettings(ctx, "g2", func(context.Context) (map[string]string, error) {
		return map[string]string{"prefix": "!"}, nil
	})
	require.NoError(t, err)
	assert.Equal(t, "!", loaded["prefix"])

	calls := 0
	hits, err := search.Search(ctx, "", "DAFT punk", func(context.Context) ([]track, error) {
		calls++
		return nil, errors.New("should not be called")
	})
	require.NoError(t, err)
	assert.Zero(t, calls)
	assert.Len(t, hits, 1)
}

// TestCacheServesStaleDuringOutage runs a cache over the resilient client and
// an in-process transport that goes down.
func TestCacheServesStaleDuringOutage(t *testing.T) {
	clock := clockwork.NewFakeClockAt(testEpoch)
	transport, err := store.NewMemoryTransport(config.DefaultMemoryStoreConfig(), nil, clock)
	require.NoError(t, err)

	cfg := config.ForTesting()
	cfg.Fallback.CleanupInterval = 0
	cfg.Buffer.CleanupInterval = 0
	client, err := store.NewClient(transport, cfg, store.WithClock(clock))
	require.NoError(t, err)
	defer client.Close()

	ctx := context.Background()
	profile := cfg.Caches.Settings
	profile.CleanupInterval = 0

	writer, err := NewSettingsCache[map[string]string](client, profile, WithClock(clock))
	require.NoError(t, err)
	defer writer.Close()
	require.NoError(t, writer.SetSettings(ctx, "g1", map[string]string{"prefix": "?"}))

	transport.SetUnavailable(errors.New("connection reset"))

	reader, err := NewSettingsCache[map[string]string](client, profile, WithClock(clock))
	require.NoError(t, err)
	defer reader.Close()

	got, ok, err := reader.GetSettings(ctx, "g1")
	require.NoError(t, err)
	assert.True(t, ok, "fallback copy should be served while the store is down")
	assert.Equal(t, "?", got["prefix"])

	_, ok, _ = reader.GetSettings(ctx, "unknown")
	assert.False(t, ok)
	assert.Positive(t, client.Metrics().FallbackServed)
}
