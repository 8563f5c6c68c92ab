package config

import (
	"fmt"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"

	"github.com/Lucascis/discord-bot-sub000/internal/types"
)

var (
	logLevels  = []any{"debug", "info", "warn", "error"}
	logFormats = []any{"text", "json"}
)

// Validate checks if the configuration is valid. Errors wrap types.ErrInvalidConfig.
func (c *Config) Validate() error {
	err := validation.ValidateStruct(c,
		validation.Field(&c.Redis),
		validation.Field(&c.CircuitBreaker),
		validation.Field(&c.Fallback),
		validation.Field(&c.Buffer),
		validation.Field(&c.Bulkhead),
		validation.Field(&c.Caches),
		validation.Field(&c.Metrics),
		validation.Field(&c.Logging),
		validation.Field(&c.KeyValidation),
	)
	if err != nil {
		return fmt.Errorf("%w: %v", types.ErrInvalidConfig, err)
	}
	return nil
}

func (c RedisConfig) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.Address, validation.When(c.Enabled, validation.Required, is.DialString)),
		validation.Field(&c.PoolSize, validation.When(c.Enabled, validation.Required, validation.Min(1))),
		validation.Field(&c.DB, validation.Min(0)),
		validation.Field(&c.HealthCheckInterval, validation.Min(0)),
	)
}

func (c CircuitBreakerConfig) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.Name, validation.Required),
		validation.Field(&c.FailureThreshold, validation.Required, validation.Min(0.0).Exclusive(), validation.Max(1.0)),
		validation.Field(&c.Timeout, validation.Required, validation.Min(0)),
		validation.Field(&c.MonitoringWindow, validation.Required, validation.Min(0)),
		validation.Field(&c.VolumeThreshold, validation.Required, validation.Min(1)),
	)
}

func (c FallbackConfig) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.MaxSize, validation.Required, validation.Min(1)),
		validation.Field(&c.DefaultTTL, validation.Required),
		validation.Field(&c.CleanupInterval, validation.Min(0)),
	)
}

func (c BufferConfig) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.MaxSize, validation.Required, validation.Min(1)),
		validation.Field(&c.MessageTTL, validation.Required),
		validation.Field(&c.CleanupInterval, validation.Min(0)),
	)
}

func (c BulkheadConfig) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.MaxConcurrent, validation.When(c.Enabled, validation.Required, validation.Min(1))),
		validation.Field(&c.MaxQueue, validation.Min(0)),
	)
}

func (c CachesConfig) Validate() error {
	err := validation.ValidateStruct(&c,
		validation.Field(&c.Search),
		validation.Field(&c.UserPreferences),
		validation.Field(&c.QueueState),
		validation.Field(&c.Settings),
	)
	if err != nil {
		return err
	}

	// Caches share one store, so prefixes must not collide.
	seen := make(map[string]string, 4)
	for name, profile := range map[string]CacheConfig{
		"search":          c.Search,
		"userPreferences": c.UserPreferences,
		"queueState":      c.QueueState,
		"settings":        c.Settings,
	} {
		if other, dup := seen[profile.KeyPrefix]; dup {
			first, second := min(name, other), max(name, other)
			return fmt.Errorf("%s and %s share key prefix %q", first, second, profile.KeyPrefix)
		}
		seen[profile.KeyPrefix] = name
	}
	return nil
}

func (c CacheConfig) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.KeyPrefix, validation.Required),
		validation.Field(&c.MaxSize, validation.Required, validation.Min(1)),
		validation.Field(&c.DefaultTTL, validation.Required),
		validation.Field(&c.CleanupInterval, validation.Min(0)),
		validation.Field(&c.L2TTL, validation.Min(0)),
		validation.Field(&c.Concurrency, validation.Min(0)),
		validation.Field(&c.CompressThreshold, validation.Min(0)),
	)
}

func (c MetricsConfig) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.PublishInterval, validation.When(c.Enabled, validation.Required)),
		validation.Field(&c.DataDog),
		validation.Field(&c.Prometheus),
	)
}

func (c DataDogConfig) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.AgentHost, validation.When(c.Enabled, validation.Required)),
		validation.Field(&c.Port, validation.When(c.Enabled, validation.Required, validation.Min(1), validation.Max(65535))),
	)
}

func (c PrometheusConfig) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.Namespace, validation.When(c.Enabled, validation.Required)),
		validation.Field(&c.Address, validation.When(c.Enabled, validation.Required)),
	)
}

func (c LoggingConfig) Validate() error {
	c.Level = strings.ToLower(c.Level)
	c.Format = strings.ToLower(c.Format)
	return validation.ValidateStruct(&c,
		validation.Field(&c.Level, validation.In(logLevels...)),
		validation.Field(&c.Format, validation.In(logFormats...)),
	)
}

func (c KeyValidationConfig) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.MaxKeyLength, validation.Min(0)),
	)
}
