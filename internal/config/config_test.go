package config

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/Lucascis/discord-bot-sub000/internal/types"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	t.Run("redis defaults", func(t *testing.T) {
		if cfg.Redis.Enabled {
			t.Error("Redis.Enabled = true, want false")
		}
		if cfg.Redis.Address != "localhost:6379" {
			t.Errorf("Redis.Address = %s, want localhost:6379", cfg.Redis.Address)
		}
		if cfg.Redis.HealthCheckInterval != 30*time.Second {
			t.Errorf("Redis.HealthCheckInterval = %v, want 30s", cfg.Redis.HealthCheckInterval)
		}
	})

	t.Run("circuit breaker defaults", func(t *testing.T) {
		cb := cfg.CircuitBreaker
		if cb.FailureThreshold != 0.5 {
			t.Errorf("FailureThreshold = %v, want 0.5", cb.FailureThreshold)
		}
		if cb.Timeout != 30*time.Second {
			t.Errorf("Timeout = %v, want 30s", cb.Timeout)
		}
		if cb.MonitoringWindow != time.Minute {
			t.Errorf("MonitoringWindow = %v, want 1m", cb.MonitoringWindow)
		}
		if cb.VolumeThreshold != 10 {
			t.Errorf("VolumeThreshold = %d, want 10", cb.VolumeThreshold)
		}
	})

	t.Run("buffer defaults", func(t *testing.T) {
		if cfg.Buffer.MaxSize != 100 {
			t.Errorf("Buffer.MaxSize = %d, want 100", cfg.Buffer.MaxSize)
		}
		if cfg.Buffer.MessageTTL != 5*time.Minute {
			t.Errorf("Buffer.MessageTTL = %v, want 5m", cfg.Buffer.MessageTTL)
		}
		if cfg.Buffer.CleanupInterval != time.Minute {
			t.Errorf("Buffer.CleanupInterval = %v, want 1m", cfg.Buffer.CleanupInterval)
		}
	})

	t.Run("cache profiles", func(t *testing.T) {
		tests := []struct {
			name   string
			cfg    CacheConfig
			prefix string
			size   int
			ttl    time.Duration
			l2     time.Duration
		}{
			{"search", cfg.Caches.Search, "search:", 500, 5 * time.Minute, time.Hour},
			{"user", cfg.Caches.UserPreferences, "user:", 1000, 30 * time.Minute, 24 * time.Hour},
			{"queue", cfg.Caches.QueueState, "queue:", 100, 30 * time.Second, 5 * time.Minute},
			{"settings", cfg.Caches.Settings, "settings:", 200, time.Hour, 24 * time.Hour},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				if tt.cfg.KeyPrefix != tt.prefix {
					t.Errorf("KeyPrefix = %s, want %s", tt.cfg.KeyPrefix, tt.prefix)
				}
				if tt.cfg.MaxSize != tt.size {
					t.Errorf("MaxSize = %d, want %d", tt.cfg.MaxSize, tt.size)
				}
				if tt.cfg.DefaultTTL != tt.ttl {
					t.Errorf("DefaultTTL = %v, want %v", tt.cfg.DefaultTTL, tt.ttl)
				}
				if tt.cfg.L2TTL != tt.l2 {
					t.Errorf("L2TTL = %v, want %v", tt.cfg.L2TTL, tt.l2)
				}
			})
		}
	})

	t.Run("defaults are valid", func(t *testing.T) {
		if err := cfg.Validate(); err != nil {
			t.Errorf("Validate() error = %v", err)
		}
	})
}

func TestForTesting(t *testing.T) {
	cfg := ForTesting()

	if cfg.Redis.Enabled {
		t.Error("Redis.Enabled = true, want false")
	}
	if cfg.Metrics.Enabled {
		t.Error("Metrics.Enabled = true, want false")
	}
	if cfg.Caches.Search.MaxSize != 50 {
		t.Errorf("Caches.Search.MaxSize = %d, want 50", cfg.Caches.Search.MaxSize)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() error = %v", err)
	}
}

func TestForTestingWithRedis(t *testing.T) {
	cfg := ForTestingWithRedis("localhost:6380")

	if !cfg.Redis.Enabled {
		t.Error("Redis.Enabled = false, want true")
	}
	if cfg.Redis.Address != "localhost:6380" {
		t.Errorf("Redis.Address = %s, want localhost:6380", cfg.Redis.Address)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() error = %v", err)
	}
}

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return path
}

func TestLoad(t *testing.T) {
	t.Run("empty path returns defaults", func(t *testing.T) {
		cfg, err := Load("")
		if err != nil {
			t.Fatalf("Load() error = %v", err)
		}
		if cfg.Buffer.MaxSize != 100 {
			t.Errorf("Buffer.MaxSize = %d, want 100", cfg.Buffer.MaxSize)
		}
	})

	t.Run("non-existent file returns defaults", func(t *testing.T) {
		cfg, err := Load("/non/existent/path/config.json")
		if err != nil {
			t.Fatalf("Load() error = %v", err)
		}
		if cfg.Fallback.MaxSize != 1000 {
			t.Errorf("Fallback.MaxSize = %d, want 1000", cfg.Fallback.MaxSize)
		}
	})

	t.Run("loads valid JSON file", func(t *testing.T) {
		path := writeConfig(t, "config.json", `{
			"redis": {
				"enabled": true,
				"address": "redis.prod:6379",
				"password": "hunter2",
				"poolSize": 200
			},
			"circuitBreaker": {
				"failureThreshold": 0.25,
				"timeout": "10s"
			},
			"caches": {
				"search": {"maxSize": 800}
			}
		}`)

		cfg, err := Load(path)
		if err != nil {
			t.Fatalf("Load() error = %v", err)
		}

		if cfg.Redis.Address != "redis.prod:6379" {
			t.Errorf("Redis.Address = %s, want redis.prod:6379", cfg.Redis.Address)
		}
		if cfg.Redis.Password.Value() != "hunter2" {
			t.Errorf("Redis.Password = %q, want hunter2", cfg.Redis.Password.Value())
		}
		if cfg.Redis.PoolSize != 200 {
			t.Errorf("Redis.PoolSize = %d, want 200", cfg.Redis.PoolSize)
		}
		if cfg.CircuitBreaker.FailureThreshold != 0.25 {
			t.Errorf("FailureThreshold = %v, want 0.25", cfg.CircuitBreaker.FailureThreshold)
		}
		if cfg.CircuitBreaker.Timeout != 10*time.Second {
			t.Errorf("Timeout = %v, want 10s", cfg.CircuitBreaker.Timeout)
		}
		if cfg.Caches.Search.MaxSize != 800 {
			t.Errorf("Caches.Search.MaxSize = %d, want 800", cfg.Caches.Search.MaxSize)
		}
		// Untouched keys keep their defaults.
		if cfg.Caches.Search.KeyPrefix != "search:" {
			t.Errorf("Caches.Search.KeyPrefix = %s, want search:", cfg.Caches.Search.KeyPrefix)
		}
		if cfg.CircuitBreaker.VolumeThreshold != 10 {
			t.Errorf("VolumeThreshold = %d, want 10", cfg.CircuitBreaker.VolumeThreshold)
		}
	})

	t.Run("loads YAML file", func(t *testing.T) {
		path := writeConfig(t, "config.yaml", `
buffer:
  maxSize: 25
  messageTTL: 1m
logging:
  level: warn
  format: json
`)
		cfg, err := Load(path)
		if err != nil {
			t.Fatalf("Load() error = %v", err)
		}
		if cfg.Buffer.MaxSize != 25 {
			t.Errorf("Buffer.MaxSize = %d, want 25", cfg.Buffer.MaxSize)
		}
		if cfg.Buffer.MessageTTL != time.Minute {
			t.Errorf("Buffer.MessageTTL = %v, want 1m", cfg.Buffer.MessageTTL)
		}
		if cfg.Logging.Format != "json" {
			t.Errorf("Logging.Format = %s, want json", cfg.Logging.Format)
		}
	})

	t.Run("invalid JSON returns error", func(t *testing.T) {
		path := writeConfig(t, "config.json", `{invalid`)
		if _, err := Load(path); err == nil {
			t.Error("Load() error = nil, want error")
		}
	})

	t.Run("invalid values fail validation", func(t *testing.T) {
		path := writeConfig(t, "config.json", `{"circuitBreaker": {"failureThreshold": 1.5}}`)
		_, err := Load(path)
		if !errors.Is(err, types.ErrInvalidConfig) {
			t.Errorf("Load() error = %v, want ErrInvalidConfig", err)
		}
	})
}

func TestLoadWithEnv(t *testing.T) {
	t.Run("applies environment overrides", func(t *testing.T) {
		t.Setenv("STALEGUARD_REDIS_ADDRESS", "redis.env:6380")
		t.Setenv("STALEGUARD_REDIS_ENABLED", "true")
		t.Setenv("STALEGUARD_REDIS_PASSWORD", "s3cret")
		t.Setenv("STALEGUARD_CIRCUIT_BREAKER_FAILURE_THRESHOLD", "0.75")
		t.Setenv("STALEGUARD_CIRCUIT_BREAKER_TIMEOUT", "45s")
		t.Setenv("STALEGUARD_BULKHEAD_MAX_CONCURRENT", "200")

		cfg, err := LoadWithEnv("")
		if err != nil {
			t.Fatalf("LoadWithEnv() error = %v", err)
		}

		if cfg.Redis.Address != "redis.env:6380" {
			t.Errorf("Redis.Address = %s, want redis.env:6380", cfg.Redis.Address)
		}
		if !cfg.Redis.Enabled {
			t.Error("Redis.Enabled = false, want true")
		}
		if cfg.Redis.Password.Value() != "s3cret" {
			t.Errorf("Redis.Password = %q, want s3cret", cfg.Redis.Password.Value())
		}
		if cfg.CircuitBreaker.FailureThreshold != 0.75 {
			t.Errorf("FailureThreshold = %v, want 0.75", cfg.CircuitBreaker.FailureThreshold)
		}
		if cfg.CircuitBreaker.Timeout != 45*time.Second {
			t.Errorf("Timeout = %v, want 45s", cfg.CircuitBreaker.Timeout)
		}
		if cfg.Bulkhead.MaxConcurrent != 200 {
			t.Errorf("Bulkhead.MaxConcurrent = %d, want 200", cfg.Bulkhead.MaxConcurrent)
		}
	})

	t.Run("env overrides file values", func(t *testing.T) {
		path := writeConfig(t, "config.json", `{"redis": {"enabled": true, "address": "redis.json:6379"}}`)
		t.Setenv("STALEGUARD_REDIS_ADDRESS", "redis.override:6380")

		cfg, err := LoadWithEnv(path)
		if err != nil {
			t.Fatalf("LoadWithEnv() error = %v", err)
		}
		if cfg.Redis.Address != "redis.override:6380" {
			t.Errorf("Redis.Address = %s, want redis.override:6380", cfg.Redis.Address)
		}
	})

	t.Run("datadog agent variables", func(t *testing.T) {
		t.Setenv("DD_AGENT_HOST", "dd-agent")
		t.Setenv("DD_DOGSTATSD_PORT", "8126")
		t.Setenv("DD_ENV", "staging")

		cfg, err := LoadWithEnv("")
		if err != nil {
			t.Fatalf("LoadWithEnv() error = %v", err)
		}
		dd := cfg.Metrics.DataDog
		if !dd.Enabled || dd.AgentHost != "dd-agent" {
			t.Errorf("DataDog = %+v, want enabled on dd-agent", dd)
		}
		if dd.Port != 8126 {
			t.Errorf("DataDog.Port = %d, want 8126", dd.Port)
		}
		if len(dd.Tags) != 1 || dd.Tags[0] != "env:staging" {
			t.Errorf("DataDog.Tags = %v, want [env:staging]", dd.Tags)
		}
	})

	t.Run("invalid override fails validation", func(t *testing.T) {
		t.Setenv("STALEGUARD_BUFFER_MAX_SIZE", "0")
		if _, err := LoadWithEnv(""); err == nil {
			t.Error("LoadWithEnv() error = nil, want error")
		}
	})
}

func TestEnvName(t *testing.T) {
	tests := []struct {
		key  string
		want string
	}{
		{"redis.address", "STALEGUARD_REDIS_ADDRESS"},
		{"redis.enableTLS", "STALEGUARD_REDIS_ENABLE_TLS"},
		{"circuitBreaker.failureThreshold", "STALEGUARD_CIRCUIT_BREAKER_FAILURE_THRESHOLD"},
		{"metrics.datadog.prefix", "STALEGUARD_METRICS_DATADOG_PREFIX"},
		{"fallback.defaultTTL", "STALEGUARD_FALLBACK_DEFAULT_TTL"},
	}
	for _, tt := range tests {
		if got := envName(tt.key); got != tt.want {
			t.Errorf("envName(%q) = %s, want %s", tt.key, got, tt.want)
		}
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr string
	}{
		{"valid default", func(c *Config) {}, ""},
		{"redis enabled without address", func(c *Config) {
			c.Redis.Enabled = true
			c.Redis.Address = ""
		}, "address"},
		{"redis disabled ignores address", func(c *Config) {
			c.Redis.Address = ""
		}, ""},
		{"zero failure threshold", func(c *Config) { c.CircuitBreaker.FailureThreshold = 0 }, "failureThreshold"},
		{"failure threshold above one", func(c *Config) { c.CircuitBreaker.FailureThreshold = 1.1 }, "failureThreshold"},
		{"zero volume threshold", func(c *Config) { c.CircuitBreaker.VolumeThreshold = 0 }, "volumeThreshold"},
		{"zero monitoring window", func(c *Config) { c.CircuitBreaker.MonitoringWindow = 0 }, "monitoringWindow"},
		{"zero fallback size", func(c *Config) { c.Fallback.MaxSize = 0 }, "maxSize"},
		{"zero cache size", func(c *Config) { c.Caches.QueueState.MaxSize = 0 }, "queueState"},
		{"empty key prefix", func(c *Config) { c.Caches.Settings.KeyPrefix = "" }, "keyPrefix"},
		{"duplicate key prefix", func(c *Config) { c.Caches.Settings.KeyPrefix = "queue:" }, "queueState and settings share key prefix"},
		{"bulkhead enabled without capacity", func(c *Config) {
			c.Bulkhead.Enabled = true
			c.Bulkhead.MaxConcurrent = 0
		}, "maxConcurrent"},
		{"unknown log level", func(c *Config) { c.Logging.Level = "verbose" }, "level"},
		{"upper-case log level", func(c *Config) { c.Logging.Level = "DEBUG" }, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.modify(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() error = %v, want nil", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("Validate() error = nil, want error containing %q", tt.wantErr)
			}
			if !errors.Is(err, types.ErrInvalidConfig) {
				t.Errorf("Validate() error = %v, want ErrInvalidConfig", err)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestSecretStringInConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Redis.Password = NewSecretString("hunter2")

	data, err := json.Marshal(cfg.Redis)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	if strings.Contains(string(data), "hunter2") {
		t.Errorf("marshaled config leaks password: %s", data)
	}
	if cfg.Redis.Password.Value() != "hunter2" {
		t.Errorf("Password.Value() = %s, want hunter2", cfg.Redis.Password.Value())
	}
}
