package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"unicode"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "STALEGUARD"

// envKeys lists the config keys that can be overridden from the environment.
// Each key maps to a STALEGUARD_ variable, see envName.
var envKeys = []string{
	"redis.enabled",
	"redis.address",
	"redis.username",
	"redis.password",
	"redis.db",
	"redis.poolSize",
	"redis.enableTLS",
	"redis.tlsSkipVerify",
	"redis.healthCheckInterval",

	"circuitBreaker.name",
	"circuitBreaker.failureThreshold",
	"circuitBreaker.timeout",
	"circuitBreaker.monitoringWindow",
	"circuitBreaker.volumeThreshold",

	"fallback.maxSize",
	"fallback.defaultTTL",

	"buffer.maxSize",
	"buffer.messageTTL",

	"bulkhead.enabled",
	"bulkhead.maxConcurrent",
	"bulkhead.maxQueue",

	"metrics.enabled",
	"metrics.publishInterval",
	"metrics.datadog.enabled",
	"metrics.datadog.prefix",
	"metrics.prometheus.enabled",
	"metrics.prometheus.namespace",
	"metrics.prometheus.address",

	"logging.level",
	"logging.format",
}

// Load loads configuration from a JSON or YAML file on top of DefaultConfig.
// If the file doesn't exist, returns default configuration.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path == "" {
		return cfg, nil
	}

	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := v.Unmarshal(cfg, decoderOptions); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadWithEnv loads configuration from a file and applies environment overrides.
func LoadWithEnv(path string) (*Config, error) {
	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) error {
	v := viper.New()
	for _, key := range envKeys {
		if err := v.BindEnv(key, envName(key)); err != nil {
			return fmt.Errorf("bind %s: %w", key, err)
		}
	}

	if err := v.Unmarshal(cfg, decoderOptions); err != nil {
		return fmt.Errorf("failed to apply environment overrides: %w", err)
	}

	// DataDog's own agent variables take precedence over STALEGUARD_ ones.
	if host := os.Getenv("DD_AGENT_HOST"); host != "" {
		cfg.Metrics.DataDog.AgentHost = host
		cfg.Metrics.DataDog.Enabled = true
	}
	if port := os.Getenv("DD_DOGSTATSD_PORT"); port != "" {
		if p, err := strconv.Atoi(strings.TrimSpace(port)); err == nil {
			cfg.Metrics.DataDog.Port = p
		}
	}
	if svc := os.Getenv("DD_SERVICE"); svc != "" {
		cfg.Metrics.DataDog.Prefix = svc
	}
	if env := os.Getenv("DD_ENV"); env != "" {
		cfg.Metrics.DataDog.Tags = append(cfg.Metrics.DataDog.Tags, "env:"+env)
	}
	if ver := os.Getenv("DD_VERSION"); ver != "" {
		cfg.Metrics.DataDog.Tags = append(cfg.Metrics.DataDog.Tags, "version:"+ver)
	}
	return nil
}

// envName turns "circuitBreaker.failureThreshold" into
// STALEGUARD_CIRCUIT_BREAKER_FAILURE_THRESHOLD.
func envName(key string) string {
	var b strings.Builder
	b.WriteString(EnvPrefix + "_")
	prev := '.'
	for _, r := range key {
		switch {
		case r == '.':
			b.WriteByte('_')
		case unicode.IsUpper(r) && prev != '.' && !unicode.IsUpper(prev):
			b.WriteByte('_')
			b.WriteRune(r)
		default:
			b.WriteRune(unicode.ToUpper(r))
		}
		prev = r
	}
	return b.String()
}

// decoderOptions matches config keys against the json tags and decodes
// durations, comma lists and SecretString from plain strings.
func decoderOptions(dc *mapstructure.DecoderConfig) {
	dc.TagName = "json"
	dc.WeaklyTypedInput = true
	dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
		mapstructure.TextUnmarshallerHookFunc(),
	)
}
