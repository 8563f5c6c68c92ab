package config

import "time"

// DefaultMemoryStoreConfig sizes the in-process transport used when Redis is disabled.
func DefaultMemoryStoreConfig() MemoryStoreConfig {
	return MemoryStoreConfig{
		MaxSizeMB:    64,
		Shards:       256,
		LifeWindow:   24 * time.Hour,
		CleanWindow:  time.Minute,
		MaxEntrySize: 64 * 1024,
	}
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Redis: RedisConfig{
			Enabled:             false,
			Address:             "localhost:6379",
			DB:                  0,
			PoolSize:            50,
			MinIdleConns:        5,
			MaxRetries:          3,
			DialTimeout:         5 * time.Second,
			ReadTimeout:         3 * time.Second,
			WriteTimeout:        3 * time.Second,
			PoolTimeout:         4 * time.Second,
			HealthCheckInterval: 30 * time.Second,
		},
		CircuitBreaker: CircuitBreakerConfig{
			Name:             "redis",
			FailureThreshold: 0.5,
			Timeout:          30 * time.Second,
			MonitoringWindow: 60 * time.Second,
			VolumeThreshold:  10,
		},
		Fallback: FallbackConfig{
			MaxSize:         1000,
			DefaultTTL:      5 * time.Minute,
			CleanupInterval: time.Minute,
		},
		Buffer: BufferConfig{
			MaxSize:         100,
			MessageTTL:      5 * time.Minute,
			CleanupInterval: time.Minute,
		},
		Bulkhead: BulkheadConfig{
			Enabled:        false,
			MaxConcurrent:  100,
			MaxQueue:       50,
			AcquireTimeout: 100 * time.Millisecond,
		},
		Caches: CachesConfig{
			Search: CacheConfig{
				KeyPrefix:         "search:",
				MaxSize:           500,
				DefaultTTL:        5 * time.Minute,
				CleanupInterval:   time.Minute,
				L2TTL:             time.Hour,
				Concurrency:       16,
				CompressThreshold: 4096,
			},
			UserPreferences: CacheConfig{
				KeyPrefix:         "user:",
				MaxSize:           1000,
				DefaultTTL:        30 * time.Minute,
				CleanupInterval:   5 * time.Minute,
				L2TTL:             24 * time.Hour,
				Concurrency:       16,
				CompressThreshold: 4096,
			},
			QueueState: CacheConfig{
				KeyPrefix:         "queue:",
				MaxSize:           100,
				DefaultTTL:        30 * time.Second,
				CleanupInterval:   15 * time.Second,
				L2TTL:             5 * time.Minute,
				Concurrency:       8,
				CompressThreshold: 8192,
			},
			Settings: CacheConfig{
				KeyPrefix:         "settings:",
				MaxSize:           200,
				DefaultTTL:        time.Hour,
				CleanupInterval:   10 * time.Minute,
				L2TTL:             24 * time.Hour,
				Concurrency:       8,
				CompressThreshold: 4096,
			},
		},
		Metrics: MetricsConfig{
			Enabled:         true,
			PublishInterval: 10 * time.Second,
			DataDog: DataDogConfig{
				Enabled:   false,
				AgentHost: "127.0.0.1",
				Port:      8125,
				Prefix:    "staleguard",
				Tags:      []string{},
			},
			Prometheus: PrometheusConfig{
				Enabled:   false,
				Namespace: "staleguard",
				Address:   ":9464",
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		KeyValidation: KeyValidationConfig{
			Enabled:         true,
			MaxKeyLength:    512,
			AllowWhitespace: true,
		},
	}
}

// ForTesting returns a minimal configuration suitable for unit tests:
// memory transport, small caches and no background publishing.
func ForTesting() *Config {
	cfg := DefaultConfig()

	cfg.Redis.Enabled = false
	cfg.Redis.HealthCheckInterval = 0

	cfg.CircuitBreaker.Timeout = time.Second
	cfg.CircuitBreaker.MonitoringWindow = 10 * time.Second
	cfg.CircuitBreaker.VolumeThreshold = 4

	cfg.Fallback.MaxSize = 100
	cfg.Fallback.CleanupInterval = time.Second

	cfg.Buffer.CleanupInterval = time.Second

	for _, c := range []*CacheConfig{&cfg.Caches.Search, &cfg.Caches.UserPreferences, &cfg.Caches.QueueState, &cfg.Caches.Settings} {
		c.MaxSize = 50
		c.CleanupInterval = time.Second
		c.Concurrency = 4
	}

	cfg.Metrics.Enabled = false
	cfg.Metrics.PublishInterval = time.Second
	cfg.Logging.Level = "debug"

	return cfg
}

// ForTestingWithRedis returns a test config with Redis enabled.
func ForTestingWithRedis(addr string) *Config {
	cfg := ForTesting()
	cfg.Redis.Enabled = true
	cfg.Redis.Address = addr
	cfg.Redis.DialTimeout = time.Second
	cfg.Redis.ReadTimeout = time.Second
	cfg.Redis.WriteTimeout = time.Second
	cfg.Redis.PoolSize = 5
	cfg.Redis.MinIdleConns = 1
	return cfg
}
