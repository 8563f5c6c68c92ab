package staleguard

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/Lucascis/discord-bot-sub000/internal/cache"
	"github.com/Lucascis/discord-bot-sub000/internal/config"
	"github.com/Lucascis/discord-bot-sub000/internal/metrics"
	"github.com/Lucascis/discord-bot-sub000/internal/metrics/datadog"
	"github.com/Lucascis/discord-bot-sub000/internal/store"
	"github.com/Lucascis/discord-bot-sub000/internal/types"
)

// managedCache is what Staleguard needs from every cache it hands out.
type managedCache interface {
	Name() string
	Health() types.CacheHealth
	SizeInfo() cache.SizeInfo
	Close() error
}

// Staleguard owns one resilient store client, the caches built on it and the
// metrics pipeline around them.
type Staleguard struct {
	cfg        *config.Config
	logger     *slog.Logger
	baseLogger *slog.Logger
	clock      clockwork.Clock

	client     *store.Client
	serializer types.Serializer
	validator  *types.KeyValidator

	recorder     types.MetricsRecorder
	tracker      *metrics.Tracker
	publisher    types.Publisher
	ownPublisher bool
	background   *metrics.BackgroundPublisher
	registry     *prometheus.Registry

	cachesMu sync.Mutex
	caches   []managedCache

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	closed atomic.Bool
}

// New creates an instance from the default configuration.
func New(opts ...Option) (*Staleguard, error) {
	return NewFromConfig(config.DefaultConfig(), opts...)
}

// NewMemoryOnly creates an instance backed by the in-process memory transport.
func NewMemoryOnly(opts ...Option) (*Staleguard, error) {
	return NewFromConfig(config.DefaultConfig(), append(opts[:len(opts):len(opts)], WithoutRedis())...)
}

// NewFromFile loads a JSON, YAML or TOML config file with environment
// overrides applied.
func NewFromFile(path string, opts ...Option) (*Staleguard, error) {
	cfg, err := config.LoadWithEnv(path)
	if err != nil {
		return nil, err
	}
	return NewFromConfig(cfg, opts...)
}

// NewFromConfig creates an instance from cfg. cfg itself is not modified.
//
//nolint:gocyclo // Wiring of optional components
func NewFromConfig(cfg *Configuration, opts ...Option) (*Staleguard, error) {
	if cfg == nil {
		return nil, fmt.Errorf("%w: config is required", types.ErrInvalidConfig)
	}

	o := options{}
	for _, opt := range opts {
		opt(&o)
	}

	c := *cfg
	for _, fn := range o.configure {
		fn(&c)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}

	if o.logger == nil {
		o.logger = slog.Default()
	}
	if o.clock == nil {
		o.clock = clockwork.NewRealClock()
	}
	logger := o.logger.With("component", "staleguard")

	ctx, cancel := context.WithCancel(context.Background())
	s := &Staleguard{
		cfg:        &c,
		logger:     logger,
		baseLogger: o.logger,
		clock:      o.clock,
		serializer: o.serializer,
		ctx:        ctx,
		cancel:     cancel,
	}

	if c.KeyValidation.Enabled {
		s.validator = types.NewKeyValidator(c.KeyValidation.ToTypesConfig())
	}

	switch {
	case o.publisher != nil:
		s.publisher = o.publisher
	case c.Metrics.Enabled && c.Metrics.DataDog.Enabled:
		p, err := datadog.NewPublisher(&c.Metrics.DataDog, o.logger)
		if err != nil {
			cancel()
			return nil, err
		}
		s.publisher, s.ownPublisher = p, true
	case c.Metrics.Enabled:
		s.publisher, s.ownPublisher = metrics.NewLoggingPublisher(o.logger), true
	}

	if o.recorder != nil {
		s.recorder = o.recorder
	} else {
		var trackerOpts []metrics.TrackerOption
		if s.publisher != nil {
			trackerOpts = append(trackerOpts, metrics.WithEventPublisher(s.publisher))
		}
		s.tracker = metrics.NewTracker(trackerOpts...)
		s.recorder = s.tracker
	}

	transport := o.transport
	if transport == nil {
		var err error
		transport, err = newTransport(&c, o)
		if err != nil {
			_ = s.closePublisher()
			cancel()
			return nil, err
		}
	}

	clientOpts := []store.Option{
		store.WithLogger(o.logger),
		store.WithClock(o.clock),
		store.WithMetricsRecorder(s.recorder),
	}
	if o.registry != nil {
		clientOpts = append(clientOpts, store.WithRegistry(o.registry))
	}
	client, err := store.NewClient(transport, &c, clientOpts...)
	if err != nil {
		_ = transport.Close()
		_ = s.closePublisher()
		cancel()
		return nil, err
	}
	s.client = client

	s.registry = metrics.NewRegistry(c.Metrics.Prometheus.Namespace, metrics.Sources{
		Tracker: s.tracker,
		Store:   client.Health,
		Caches:  s.cacheHealth,
	})

	if c.Metrics.Enabled && s.publisher != nil && c.Metrics.PublishInterval > 0 {
		s.background = metrics.NewBackgroundPublisher(s.publisher, c.Metrics.PublishInterval, s.PublisherHealth, o.logger,
			metrics.WithPublishClock(o.clock))
		s.background.Start(ctx)
	}

	if c.Metrics.Prometheus.Enabled {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			if err := metrics.Serve(ctx, c.Metrics.Prometheus.Address, s.MetricsHandler(), o.logger); err != nil {
				logger.Error("Prometheus endpoint stopped", "address", c.Metrics.Prometheus.Address, "error", err)
			}
		}()
	}

	logger.Info("Staleguard initialized",
		"redis", c.Redis.Enabled,
		"metrics", c.Metrics.Enabled,
		"prometheus", c.Metrics.Prometheus.Enabled,
	)
	return s, nil
}

func newTransport(cfg *config.Config, o options) (store.Transport, error) {
	if cfg.Redis.Enabled {
		return store.NewRedisTransport(cfg.Redis, o.logger), nil
	}
	return store.NewMemoryTransport(config.DefaultMemoryStoreConfig(), o.logger, o.clock)
}

// Config returns a default configuration that can be modified before calling NewFromConfig.
func Config() *Configuration {
	return config.DefaultConfig()
}

// TestConfig returns a configuration suitable for unit tests.
func TestConfig() *Configuration {
	return config.ForTesting()
}

// Store returns the resilient client. Its reads never fail: during an
// outage they are answered from the fallback cache and publishes are buffered.
func (s *Staleguard) Store() *StoreClient {
	return s.client
}

// Metrics returns the tracker snapshot. It is empty when WithMetrics
// replaced the tracker.
func (s *Staleguard) Metrics() MetricsSnapshot {
	if s.tracker == nil {
		return MetricsSnapshot{}
	}
	return s.tracker.Snapshot()
}

// MetricsHandler serves Prometheus metrics on /metrics and health on /healthz.
func (s *Staleguard) MetricsHandler() http.Handler {
	return metrics.Handler(s.registry, func() types.HealthMetrics {
		return s.Health(s.ctx)
	})
}

// Health pings the store through the breaker and reports the client and
// every registered cache. The overall status is the store status.
func (s *Staleguard) Health(ctx context.Context) HealthMetrics {
	if !s.closed.Load() && ctx.Err() == nil {
		s.client.Ping(ctx)
	}
	storeHealth := s.client.Health()
	return HealthMetrics{
		Timestamp: s.clock.Now(),
		Store:     storeHealth,
		Caches:    s.cacheHealth(),
		Status:    storeHealth.Status,
	}
}

// IsHealthy reports whether the store is reachable with a closed breaker.
func (s *Staleguard) IsHealthy(ctx context.Context) bool {
	return s.Health(ctx).Status == HealthStatusHealthy
}

// PublisherHealth flattens the current state for metrics sinks.
func (s *Staleguard) PublisherHealth() *PublisherHealthMetrics {
	h := s.client.Health()
	m := &PublisherHealthMetrics{
		BufferedMessages: int64(h.BufferedMessages),
		DroppedMessages:  h.DroppedMessages,
		FallbackEntries:  int64(h.FallbackEntries),
		BreakerOpen:      h.BreakerState == "open",
		IsConnected:      h.Connected,
	}
	for _, c := range s.snapshotCaches() {
		info := c.SizeInfo()
		m.L1Entries += int64(info.Entries)
		m.L1EstimatedBytes += info.EstimatedBytes
	}
	if s.tracker != nil {
		snap := s.tracker.Snapshot()
		m.HitRatio = snap.TotalHitRatio()
		m.AverageLatencyMs = snap.AvgLatencyMs
	}
	return m
}

func (s *Staleguard) cacheHealth() []types.CacheHealth {
	caches := s.snapshotCaches()
	out := make([]types.CacheHealth, 0, len(caches))
	for _, c := range caches {
		out = append(out, c.Health())
	}
	return out
}

func (s *Staleguard) snapshotCaches() []managedCache {
	s.cachesMu.Lock()
	defer s.cachesMu.Unlock()
	return append([]managedCache(nil), s.caches...)
}

func (s *Staleguard) register(c managedCache) error {
	s.cachesMu.Lock()
	defer s.cachesMu.Unlock()
	if s.closed.Load() {
		_ = c.Close()
		return types.ErrClosed
	}
	s.caches = append(s.caches, c)
	return nil
}

// Close publishes a final metrics batch, stops every cache and the store
// client, and releases the metrics publisher it created.
func (s *Staleguard) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}

	if s.background != nil {
		s.background.Stop()
	}
	s.cancel()
	s.wg.Wait()

	var errs []error
	for _, c := range s.snapshotCaches() {
		if err := c.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close cache %s: %w", c.Name(), err))
		}
	}
	if err := s.client.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close store: %w", err))
	}
	if err := s.closePublisher(); err != nil {
		errs = append(errs, fmt.Errorf("close publisher: %w", err))
	}

	s.logger.Info("Staleguard closed")
	return errors.Join(errs...)
}

func (s *Staleguard) closePublisher() error {
	if !s.ownPublisher || s.publisher == nil {
		return nil
	}
	return s.publisher.Close()
}
