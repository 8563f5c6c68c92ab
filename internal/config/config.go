// Package config provides configuration management for staleguard.
package config

import (
	"time"

	"github.com/Lucascis/discord-bot-sub000/internal/types"
)

// SecretString is a string type that redacts its value when marshaled to JSON.
type SecretString = types.SecretString

func NewSecretString(value string) SecretString {
	return types.NewSecretString(value)
}

// Config contains all configuration for a staleguard stack.
//
//nolint:govet // Configuration struct - logical grouping prioritized over alignment
type Config struct {
	Redis          RedisConfig          `json:"redis"`
	CircuitBreaker CircuitBreakerConfig `json:"circuitBreaker"`
	Fallback       FallbackConfig       `json:"fallback"`
	Buffer         BufferConfig         `json:"buffer"`
	Bulkhead       BulkheadConfig       `json:"bulkhead"`
	Caches         CachesConfig         `json:"caches"`
	Metrics        MetricsConfig        `json:"metrics"`
	Logging        LoggingConfig        `json:"logging"`
	KeyValidation  KeyValidationConfig  `json:"keyValidation"`
}

// RedisConfig describes the backing store connection. When Enabled is false
// the stack runs against the in-process memory transport.
//
//nolint:govet // Configuration struct - logical grouping prioritized over alignment
type RedisConfig struct {
	DialTimeout         time.Duration `json:"dialTimeout"`
	ReadTimeout         time.Duration `json:"readTimeout"`
	WriteTimeout        time.Duration `json:"writeTimeout"`
	PoolTimeout         time.Duration `json:"poolTimeout"`
	HealthCheckInterval time.Duration `json:"healthCheckInterval"`
	Password            SecretString  `json:"password"`
	Address             string        `json:"address"`
	Username            string        `json:"username"`
	DB                  int           `json:"db"`
	PoolSize            int           `json:"poolSize"`
	MinIdleConns        int           `json:"minIdleConns"`
	MaxRetries          int           `json:"maxRetries"`
	Enabled             bool          `json:"enabled"`
	EnableTLS           bool          `json:"enableTLS"`
	TLSSkipVerify       bool          `json:"tlsSkipVerify"`
}

// MemoryStoreConfig sizes the bigcache instance behind the memory transport.
type MemoryStoreConfig struct {
	MaxSizeMB    int           `json:"maxSizeMB"`
	Shards       int           `json:"shards"`
	LifeWindow   time.Duration `json:"lifeWindow"`
	CleanWindow  time.Duration `json:"cleanWindow"`
	MaxEntrySize int           `json:"maxEntrySize"`
}

// CircuitBreakerConfig configures the sliding-window breaker guarding the store.
// FailureThreshold is a fraction in (0, 1].
type CircuitBreakerConfig struct {
	Name             string        `json:"name"`
	FailureThreshold float64       `json:"failureThreshold"`
	Timeout          time.Duration `json:"timeout"`
	MonitoringWindow time.Duration `json:"monitoringWindow"`
	VolumeThreshold  int           `json:"volumeThreshold"`
}

// FallbackConfig sizes the local cache consulted while the store is unreachable.
type FallbackConfig struct {
	MaxSize         int           `json:"maxSize"`
	DefaultTTL      time.Duration `json:"defaultTTL"`
	CleanupInterval time.Duration `json:"cleanupInterval"`
}

// BufferConfig sizes the outbound publish buffer.
type BufferConfig struct {
	MaxSize         int           `json:"maxSize"`
	MessageTTL      time.Duration `json:"messageTTL"`
	CleanupInterval time.Duration `json:"cleanupInterval"`
}

// BulkheadConfig caps concurrent backing-store calls.
type BulkheadConfig struct {
	Enabled        bool          `json:"enabled"`
	MaxConcurrent  int           `json:"maxConcurrent"`
	MaxQueue       int           `json:"maxQueue"`
	AcquireTimeout time.Duration `json:"acquireTimeout"`
}

// CacheConfig is the L1/L2 profile of one two-level cache.
type CacheConfig struct {
	KeyPrefix         string        `json:"keyPrefix"`
	MaxSize           int           `json:"maxSize"`
	DefaultTTL        time.Duration `json:"defaultTTL"`
	CleanupInterval   time.Duration `json:"cleanupInterval"`
	L2TTL             time.Duration `json:"l2TTL"`
	Concurrency       int           `json:"concurrency"`
	CompressThreshold int           `json:"compressThreshold"`
}

// CachesConfig holds the profile of each specialized cache.
type CachesConfig struct {
	Search          CacheConfig `json:"search"`
	UserPreferences CacheConfig `json:"userPreferences"`
	QueueState      CacheConfig `json:"queueState"`
	Settings        CacheConfig `json:"settings"`
}

// MetricsConfig contains configuration for metrics publishing.
//
//nolint:govet // Small config struct - minimal alignment benefit
type MetricsConfig struct {
	PublishInterval time.Duration    `json:"publishInterval"`
	DataDog         DataDogConfig    `json:"datadog"`
	Prometheus      PrometheusConfig `json:"prometheus"`
	Enabled         bool             `json:"enabled"`
}

// DataDogConfig contains configuration for DataDog metrics publishing.
//
//nolint:govet // Small config struct - minimal alignment benefit
type DataDogConfig struct {
	Tags      []string `json:"tags"`
	AgentHost string   `json:"agentHost"`
	Prefix    string   `json:"prefix"`
	Port      int      `json:"port"`
	Enabled   bool     `json:"enabled"`
}

type PrometheusConfig struct {
	Enabled   bool   `json:"enabled"`
	Namespace string `json:"namespace"`
	Address   string `json:"address"`
}

type LoggingConfig struct {
	Level  string `json:"level"`
	Format string `json:"format"`
}

// KeyValidationConfig contains configuration for cache key validation.
type KeyValidationConfig struct {
	ReservedPatterns  []string `json:"reservedPatterns"`
	MaxKeyLength      int      `json:"maxKeyLength"`
	Enabled           bool     `json:"enabled"`
	AllowEmpty        bool     `json:"allowEmpty"`
	AllowControlChars bool     `json:"allowControlChars"`
	AllowWhitespace   bool     `json:"allowWhitespace"`
}

// ToTypesConfig converts this config to a types.KeyValidationConfig.
func (c KeyValidationConfig) ToTypesConfig() types.KeyValidationConfig {
	return types.KeyValidationConfig{
		MaxKeyLength:      c.MaxKeyLength,
		AllowEmpty:        c.AllowEmpty,
		AllowControlChars: c.AllowControlChars,
		AllowWhitespace:   c.AllowWhitespace,
		ReservedPatterns:  c.ReservedPatterns,
	}
}
