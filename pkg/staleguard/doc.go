// Package staleguard is a resilience layer for a bot talking to a shared
// key-value and pub/sub store.
//
// A single store client wraps the connection in a circuit breaker. While the
// store is unreachable reads are answered from a local fallback cache, writes
// are applied locally and publishes are buffered for replay. Two-level caches
// (L1 in-process, L2 in the store) are layered on top.
//
// # Quick Start
//
//	sg, err := staleguard.NewMemoryOnly()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer sg.Close()
//
//	settings, err := staleguard.NewSettingsCache[GuildSettings](sg)
//	_ = settings.SetSettings(ctx, guildID, GuildSettings{Prefix: "!"})
//	s, ok, err := settings.GetSettings(ctx, guildID)
//
// # Redis
//
//	cfg := staleguard.Config()
//	cfg.Redis.Enabled = true
//	cfg.Redis.Address = "localhost:6379"
//	sg, err := staleguard.NewFromConfig(cfg)
//
// or load a file with STALEGUARD_* environment overrides:
//
//	sg, err := staleguard.NewFromFile("staleguard.yaml")
//
// # Store operations
//
// Store returns the resilient client. Get, Set, Incr, Expire, Publish and
// Ping never return errors; they degrade instead. Subscribe does return one.
//
//	n := sg.Store().Publish(ctx, "player-events", payload) // 0 while buffered
//	sub, err := sg.Store().Subscribe(ctx, "player-events")
//
// # Caches
//
// NewSearchCache, NewUserPreferenceCache, NewQueueStateCache and
// NewSettingsCache use the matching profile under caches.* in the config.
// NewCache takes a custom profile. Every cache is closed by Staleguard.Close.
//
//	results, err := search.Search(ctx, "youtube", query, func(ctx context.Context) ([]Track, error) {
//	    return lavalink.Search(ctx, query)
//	})
//
// # Health and metrics
//
// Health aggregates the store client and every cache. With metrics enabled a
// background publisher pushes PublisherHealthMetrics to DataDog (or the log)
// and breaker transitions are sent as events. MetricsHandler serves
// Prometheus metrics on /metrics and a JSON report on /healthz.
//
//	http.Handle("/", sg.MetricsHandler())
package staleguard
