package staleguard

import (
	"github.com/Lucascis/discord-bot-sub000/internal/cache"
	"github.com/Lucascis/discord-bot-sub000/internal/config"
	"github.com/Lucascis/discord-bot-sub000/internal/store"
	"github.com/Lucascis/discord-bot-sub000/internal/types"
)

type (
	// Configuration is the full configuration tree.
	Configuration = config.Config
	// CacheConfig is the L1/L2 profile of one two-level cache.
	CacheConfig = config.CacheConfig

	// StoreClient is the resilient client over the backing store.
	StoreClient = store.Client
	// Transport is the raw backing-store connection.
	Transport = store.Transport
	// Subscription delivers pub/sub messages until closed.
	Subscription = store.Subscription
	// Message is one pub/sub delivery.
	Message = store.Message

	// Cache is a generic two-level cache.
	Cache[T any] = cache.TwoLevelCache[T]
	// SearchCache caches results by normalized query.
	SearchCache[T any] = cache.SearchCache[T]
	// UserPreferenceCache caches per guild member preferences.
	UserPreferenceCache[T any] = cache.UserPreferenceCache[T]
	// QueueStateCache caches per guild playback queues.
	QueueStateCache[T any] = cache.QueueStateCache[T]
	// SettingsCache caches per guild settings.
	SettingsCache[T any] = cache.SettingsCache[T]
	// CacheStats is the counter view of one cache.
	CacheStats = cache.Stats
	// SizeInfo is the L1 occupancy of one cache.
	SizeInfo = cache.SizeInfo
	// WarmupResult reports a Warmup run.
	WarmupResult = cache.WarmupResult
	// SetOption adjusts a single cache write.
	SetOption = cache.SetOption

	Serializer      = types.Serializer
	MetricsRecorder = types.MetricsRecorder
	Publisher       = types.Publisher
	Logger          = types.Logger
)

// Per-write options.
var (
	WithTTL = cache.WithTTL
	SkipL1  = cache.SkipL1
	SkipL2  = cache.SkipL2
)

// NormalizeQuery is the normalization SearchCache applies to queries.
func NormalizeQuery(q string) string {
	return cache.NormalizeQuery(q)
}
