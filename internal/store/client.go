package store

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/Lucascis/discord-bot-sub000/internal/config"
	"github.com/Lucascis/discord-bot-sub000/internal/metrics"
	"github.com/Lucascis/discord-bot-sub000/internal/resilience"
	"github.com/Lucascis/discord-bot-sub000/internal/types"
)

const (
	healthCheckTimeout = 5 * time.Second
	syntheticPong      = "PONG"
)

// Option configures a Client.
type Option func(*options)

type options struct {
	logger   *slog.Logger
	clock    clockwork.Clock
	registry *resilience.Registry
	recorder types.MetricsRecorder
}

func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithClock sets the clock for the fallback cache, the message buffer, the
// health loop and, when no registry is given, the circuit breaker.
func WithClock(clock clockwork.Clock) Option {
	return func(o *options) {
		if clock != nil {
			o.clock = clock
		}
	}
}

// WithRegistry takes the client's breaker from registry instead of a private one.
// The client installs its own state change callback on that breaker.
func WithRegistry(registry *resilience.Registry) Option {
	return func(o *options) {
		o.registry = registry
	}
}

func WithMetricsRecorder(recorder types.MetricsRecorder) Option {
	return func(o *options) {
		if recorder != nil {
			o.recorder = recorder
		}
	}
}

// Client exposes the transport's command surface behind a circuit breaker.
// Reads, counters and pings degrade to the fallback cache, publishes degrade
// to the message buffer, and only Subscribe reports backing-store failures.
type Client struct {
	transport Transport
	policy    *resilience.Policy
	breaker   *resilience.CircuitBreaker
	fallback  *FallbackCache
	buffer    *MessageBuffer
	logger    *slog.Logger
	recorder  types.MetricsRecorder
	clock     clockwork.Clock

	fallbackTTL time.Duration

	// flushMu admits a single replay at a time; concurrent publishers skip.
	flushMu sync.Mutex

	connected         atomic.Bool
	fallbackServed    atomic.Int64
	reconnectAttempts atomic.Int64

	errMu         sync.RWMutex
	lastError     error
	lastErrorTime time.Time

	closed atomic.Bool
	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewClient wraps transport. cfg is validated; a nil cfg uses config.DefaultConfig.
func NewClient(transport Transport, cfg *config.Config, opts ...Option) (*Client, error) {
	if transport == nil {
		return nil, errors.Join(types.ErrInvalidConfig, errors.New("transport is required"))
	}
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	o := options{
		logger:   slog.Default(),
		clock:    clockwork.NewRealClock(),
		recorder: metrics.NewNoOpTracker(),
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.registry == nil {
		o.registry = resilience.NewRegistry(resilience.WithRegistryClock(o.clock))
	}

	c := &Client{
		transport:   transport,
		logger:      o.logger.With("component", "store-client"),
		recorder:    o.recorder,
		clock:       o.clock,
		fallbackTTL: cfg.Fallback.DefaultTTL,
		stopCh:      make(chan struct{}),
	}

	c.breaker = o.registry.GetOrCreate(cfg.CircuitBreaker.Name, cfg.CircuitBreaker)
	c.breaker.SetOnStateChange(c.onBreakerStateChange)
	c.policy = resilience.NewPolicy(c.breaker, cfg.Bulkhead)
	c.fallback = NewFallbackCache(cfg.Fallback, o.clock)
	c.buffer = NewMessageBuffer(cfg.Buffer, o.clock, c.onMessageDropped)
	c.connected.Store(true)

	if notifier, ok := transport.(EventNotifier); ok {
		notifier.OnEvent(c.onTransportEvent)
	}

	if interval := cfg.Redis.HealthCheckInterval; interval > 0 {
		c.wg.Add(1)
		go c.healthLoop(interval)
	}

	return c, nil
}

type lookup struct {
	value string
	found bool
}

// Get returns the stored value, or the fallback copy when the store cannot
// be reached. found is false for a miss in either source.
func (c *Client) Get(ctx context.Context, key string) (value string, found bool) {
	res, _ := c.exec(ctx, "get", key, func(ctx context.Context) (any, error) {
		v, ok, err := c.transport.Get(ctx, key)
		if err != nil {
			return nil, err
		}
		if ok {
			c.fallback.Set(key, v, c.fallbackTTL)
		} else {
			c.fallback.Delete(key)
		}
		return lookup{value: v, found: ok}, nil
	}, func(error) (any, error) {
		v, ok := c.fallback.Get(key)
		return lookup{value: v, found: ok}, nil
	})

	r, _ := res.(lookup)
	return r.value, r.found
}

// Set writes value with ttl (zero means no expiry at the store). When the
// store cannot be reached the value only lands in the fallback cache and is
// not written back later.
func (c *Client) Set(ctx context.Context, key, value string, ttl time.Duration) {
	_, _ = c.exec(ctx, "set", key, func(ctx context.Context) (any, error) {
		if err := c.transport.Set(ctx, key, value, ttl); err != nil {
			return nil, err
		}
		c.fallback.Set(key, value, ttl)
		return nil, nil
	}, func(error) (any, error) {
		c.fallback.Set(key, value, ttl)
		return nil, nil
	})
}

// Incr increments key, counting locally in the fallback cache during an outage.
func (c *Client) Incr(ctx context.Context, key string) int64 {
	res, _ := c.exec(ctx, "incr", key, func(ctx context.Context) (any, error) {
		n, err := c.transport.Incr(ctx, key)
		if err != nil {
			return nil, err
		}
		c.fallback.Set(key, strconv.FormatInt(n, 10), c.fallbackTTL)
		return n, nil
	}, func(error) (any, error) {
		return c.fallback.Incr(key), nil
	})

	n, _ := res.(int64)
	return n
}

// Expire sets key's TTL and reports whether the key existed. The fallback
// copy is expired too, so a deleted key is not served stale later.
func (c *Client) Expire(ctx context.Context, key string, ttl time.Duration) bool {
	res, _ := c.exec(ctx, "expire", key, func(ctx context.Context) (any, error) {
		ok, err := c.transport.Expire(ctx, key, ttl)
		if err != nil {
			return nil, err
		}
		c.fallback.Expire(key, ttl)
		return ok, nil
	}, func(error) (any, error) {
		return c.fallback.Expire(key, ttl), nil
	})

	ok, _ := res.(bool)
	return ok
}

// Publish sends message and returns the subscriber count. If the store
// cannot be reached the message is buffered and 0 is returned. A delivery to
// at least one subscriber triggers a replay of the buffer.
func (c *Client) Publish(ctx context.Context, channel, message string) int64 {
	res, err := c.exec(ctx, "publish", channel, func(ctx context.Context) (any, error) {
		return c.transport.Publish(ctx, channel, message)
	}, nil)
	if err != nil {
		c.buffer.Push(channel, message)
		c.recorder.RecordFallback("publish")
		c.logger.Debug("Publish buffered", "channel", channel, "buffered", c.buffer.Len(), "error", err)
		return 0
	}

	n, _ := res.(int64)
	if n > 0 && c.buffer.Len() > 0 {
		c.flush(ctx)
	}
	return n
}

// FlushBuffer replays buffered messages now and returns how many were delivered.
func (c *Client) FlushBuffer(ctx context.Context) int {
	return c.flush(ctx)
}

// flush replays oldest-first and stops at the first message that fails or
// reaches no subscriber; that message stays at the head.
func (c *Client) flush(ctx context.Context) int {
	if !c.flushMu.TryLock() {
		return 0
	}
	defer c.flushMu.Unlock()

	replayed := 0
	for {
		msg, ok := c.buffer.Peek()
		if !ok {
			break
		}

		res, err := c.exec(ctx, "replay", msg.Channel, func(ctx context.Context) (any, error) {
			return c.transport.Publish(ctx, msg.Channel, msg.Payload)
		}, nil)
		if err != nil {
			c.logger.Debug("Replay stopped", "channel", msg.Channel, "error", err)
			break
		}
		if n, _ := res.(int64); n == 0 {
			break
		}
		if c.buffer.Ack(msg.ID) {
			replayed++
		}
	}

	if replayed > 0 {
		c.logger.Info("Replayed buffered messages", "count", replayed, "remaining", c.buffer.Len())
	}
	return replayed
}

// Subscribe has no fallback: an open breaker or failed call is returned.
func (c *Client) Subscribe(ctx context.Context, channels ...string) (Subscription, error) {
	res, err := c.exec(ctx, "subscribe", strings.Join(channels, ","), func(ctx context.Context) (any, error) {
		return c.transport.Subscribe(ctx, channels...)
	}, nil)
	if err != nil {
		return nil, types.NewCacheError("Subscribe", strings.Join(channels, ","), types.LayerL2, err)
	}
	return res.(Subscription), nil
}

// Ping returns the store's reply, or a synthetic PONG when it cannot be
// reached. It reports on the client, not the store.
func (c *Client) Ping(ctx context.Context) string {
	res, _ := c.exec(ctx, "ping", "", func(ctx context.Context) (any, error) {
		return c.transport.Ping(ctx)
	}, func(error) (any, error) {
		return syntheticPong, nil
	})

	s, _ := res.(string)
	return s
}

// exec runs fn through the policy. fallback, when set, replaces any error.
func (c *Client) exec(
	ctx context.Context,
	op, key string,
	fn func(context.Context) (any, error),
	fallback func(error) (any, error),
) (any, error) {
	var fb func(error) (any, error)
	if fallback != nil {
		fb = func(err error) (any, error) {
			if !resilience.CallerGone(ctx, err) {
				c.noteFailure(op, key, err)
			}
			c.fallbackServed.Add(1)
			c.recorder.RecordFallback(op)
			return fallback(err)
		}
	}

	res, err := c.policy.Execute(ctx, func(ctx context.Context) (any, error) {
		res, err := fn(ctx)
		if err == nil {
			c.noteSuccess()
		}
		return res, err
	}, fb)

	if err != nil && fallback == nil && !resilience.CallerGone(ctx, err) {
		c.noteFailure(op, key, err)
	}
	return res, err
}

func (c *Client) noteSuccess() {
	if c.connected.CompareAndSwap(false, true) {
		c.logger.Info("Backing store reachable again")
	}
}

func (c *Client) noteFailure(op, key string, err error) {
	c.recorder.RecordError(types.LayerL2, op, err)
	if stage := resilience.Rejection(err); stage != "" {
		c.logger.Debug("Backing store call rejected", "op", op, "key", key, "stage", stage)
		return
	}

	c.errMu.Lock()
	c.lastError = err
	c.lastErrorTime = c.clock.Now()
	c.errMu.Unlock()

	if c.connected.CompareAndSwap(true, false) {
		c.logger.Warn("Backing store unreachable, degrading to fallback", "op", op, "error", err)
	} else {
		c.logger.Debug("Backing store call failed", "op", op, "key", key, "error", err)
	}
}

func (c *Client) onBreakerStateChange(name string, from, to resilience.State) {
	c.recorder.RecordCircuitBreakerStateChange(name, from.String(), to.String())

	attrs := []any{"breaker", name, "from", from.String(), "to", to.String()}
	if to == resilience.StateOpen {
		c.logger.Warn("Circuit breaker opened", attrs...)
		return
	}
	c.logger.Info("Circuit breaker state changed", attrs...)
}

func (c *Client) onMessageDropped(reason string, msg BufferedMessage) {
	c.recorder.RecordMessageDropped(reason)
	c.logger.Warn("Dropped buffered message",
		"reason", reason,
		"channel", msg.Channel,
		"age", c.clock.Since(msg.EnqueuedAt),
	)
}

func (c *Client) onTransportEvent(event Event, err error) {
	switch event {
	case EventConnect:
		c.connected.Store(true)
	case EventReconnecting:
		c.reconnectAttempts.Add(1)
	case EventError:
		c.errMu.Lock()
		c.lastError = err
		c.lastErrorTime = c.clock.Now()
		c.errMu.Unlock()
	}
}

func (c *Client) healthLoop(interval time.Duration) {
	defer c.wg.Done()

	ticker := c.clock.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stopCh:
			return
		case <-ticker.Chan():
			c.checkHealth()
		}
	}
}

// checkHealth pings through the breaker so an idle open breaker can reach
// half-open and recover without application traffic.
func (c *Client) checkHealth() {
	ctx, cancel := context.WithTimeout(context.Background(), healthCheckTimeout)
	defer cancel()

	_, _ = c.exec(ctx, "health", "", func(ctx context.Context) (any, error) {
		return c.transport.Ping(ctx)
	}, nil)
}

// Breaker returns the circuit breaker guarding the transport.
func (c *Client) Breaker() *resilience.CircuitBreaker {
	return c.breaker
}

// ClientMetrics is a point-in-time view of the client.
//
//nolint:govet // Metrics struct - logical grouping prioritized for readability
type ClientMetrics struct {
	Breaker           resilience.BreakerMetrics `json:"breaker"`
	Bulkhead          resilience.BulkheadStats  `json:"bulkhead"`
	Buffer            BufferStats               `json:"buffer"`
	FallbackEntries   int                       `json:"fallbackEntries"`
	FallbackCapacity  int                       `json:"fallbackCapacity"`
	FallbackServed    int64                     `json:"fallbackServed"`
	ReconnectAttempts int64                     `json:"reconnectAttempts"`
	Connected         bool                      `json:"connected"`
}

func (c *Client) Metrics() ClientMetrics {
	return ClientMetrics{
		Breaker:           c.breaker.Metrics(),
		Bulkhead:          c.policy.BulkheadStats(),
		Buffer:            c.buffer.Stats(),
		FallbackEntries:   c.fallback.Len(),
		FallbackCapacity:  c.fallback.Capacity(),
		FallbackServed:    c.fallbackServed.Load(),
		ReconnectAttempts: c.reconnectAttempts.Load(),
		Connected:         c.connected.Load(),
	}
}

// Health summarizes the client for health endpoints.
func (c *Client) Health() types.StoreHealth {
	m := c.Metrics()

	c.errMu.RLock()
	lastErr, lastErrTime := c.lastError, c.lastErrorTime
	c.errMu.RUnlock()

	h := types.StoreHealth{
		LastErrorTime:     lastErrTime,
		BreakerState:      m.Breaker.State.String(),
		Connected:         m.Connected,
		FallbackEntries:   m.FallbackEntries,
		FallbackCapacity:  m.FallbackCapacity,
		BufferedMessages:  m.Buffer.Len,
		BufferCapacity:    m.Buffer.Capacity,
		DroppedMessages:   m.Buffer.Dropped + m.Buffer.Expired,
		ReplayedMessages:  m.Buffer.Replayed,
		ReconnectAttempts: m.ReconnectAttempts,
	}
	if lastErr != nil {
		h.LastError = lastErr.Error()
	}

	switch {
	case c.closed.Load():
		h.Status = types.HealthStatusUnhealthy
	case m.Connected && m.Breaker.State == resilience.StateClosed:
		h.Status = types.HealthStatusHealthy
	default:
		h.Status = types.HealthStatusDegraded
	}
	return h
}

// Close stops the health loop and both sweepers, then closes the transport.
func (c *Client) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}

	close(c.stopCh)
	c.wg.Wait()

	c.fallback.Close()
	c.buffer.Close()

	return c.transport.Close()
}
