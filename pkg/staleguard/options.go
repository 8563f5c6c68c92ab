package staleguard

import (
	"log/slog"

	"github.com/jonboulle/clockwork"

	"github.com/Lucascis/discord-bot-sub000/internal/config"
	"github.com/Lucascis/discord-bot-sub000/internal/logging"
	"github.com/Lucascis/discord-bot-sub000/internal/resilience"
	"github.com/Lucascis/discord-bot-sub000/internal/types"
)

type options struct {
	logger     *slog.Logger
	recorder   types.MetricsRecorder
	publisher  types.Publisher
	serializer types.Serializer
	clock      clockwork.Clock
	transport  Transport
	registry   *resilience.Registry
	configure  []func(*config.Config)
}

// Option configures New and its variants.
type Option func(*options)

// WithLogger sets the slog logger every component derives from.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithTypesLogger bridges any Debug/Info/Warn/Error logger into slog.
func WithTypesLogger(logger Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logging.FromLogger(logger)
		}
	}
}

// WithMetrics replaces the built-in tracker. Snapshots, Prometheus and the
// background publisher only see data recorded by the built-in tracker.
func WithMetrics(recorder MetricsRecorder) Option {
	return func(o *options) {
		o.recorder = recorder
	}
}

// WithPublisher sets the sink for background health metrics and breaker events.
// Without it DataDog is used when configured, the log otherwise.
func WithPublisher(p Publisher) Option {
	return func(o *options) {
		o.publisher = p
	}
}

// WithSerializer sets the value serializer used by caches created from this instance.
func WithSerializer(s Serializer) Option {
	return func(o *options) {
		o.serializer = s
	}
}

// WithClock injects the clock used for TTLs, breaker timing and sweepers.
func WithClock(clock clockwork.Clock) Option {
	return func(o *options) {
		o.clock = clock
	}
}

// WithTransport uses t instead of building Redis or memory transport from config.
// t is closed by Close.
func WithTransport(t Transport) Option {
	return func(o *options) {
		o.transport = t
	}
}

// WithBreakerRegistry shares circuit breakers with other instances.
func WithBreakerRegistry(r *resilience.Registry) Option {
	return func(o *options) {
		o.registry = r
	}
}

// WithRedisAddress enables Redis at addr.
func WithRedisAddress(addr string) Option {
	return func(o *options) {
		o.configure = append(o.configure, func(c *config.Config) {
			c.Redis.Enabled = true
			c.Redis.Address = addr
		})
	}
}

func WithRedisPassword(password string) Option {
	return func(o *options) {
		o.configure = append(o.configure, func(c *config.Config) {
			c.Redis.Password = types.NewSecretString(password)
		})
	}
}

func WithRedisDB(db int) Option {
	return func(o *options) {
		o.configure = append(o.configure, func(c *config.Config) {
			c.Redis.DB = db
		})
	}
}

// WithoutRedis forces the in-process memory transport.
func WithoutRedis() Option {
	return func(o *options) {
		o.configure = append(o.configure, func(c *config.Config) {
			c.Redis.Enabled = false
		})
	}
}

// WithoutMetricsPublishing disables the background publisher and Prometheus endpoint.
func WithoutMetricsPublishing() Option {
	return func(o *options) {
		o.configure = append(o.configure, func(c *config.Config) {
			c.Metrics.Enabled = false
			c.Metrics.Prometheus.Enabled = false
		})
	}
}
