package store

import (
	"context"
	"crypto/tls"
	"errors"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Lucascis/discord-bot-sub000/internal/config"
)

// RedisTransport implements Transport with go-redis.
type RedisTransport struct {
	client *redis.Client
	config config.RedisConfig
	logger *slog.Logger

	mu      sync.RWMutex
	onEvent EventFunc

	connected         atomic.Bool
	everConnected     atomic.Bool
	reconnectAttempts atomic.Int64
}

// NewRedisTransport creates a Redis-backed transport. A failed initial ping
// is logged, not returned: the store client degrades until Redis comes back.
func NewRedisTransport(cfg config.RedisConfig, logger *slog.Logger) *RedisTransport {
	if logger == nil {
		logger = slog.Default()
	}

	opts := &redis.Options{
		Addr:         cfg.Address,
		Username:     cfg.Username,
		Password:     cfg.Password.Value(),
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
		MaxRetries:   cfg.MaxRetries,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		PoolTimeout:  cfg.PoolTimeout,
	}

	if cfg.EnableTLS {
		opts.TLSConfig = &tls.Config{
			InsecureSkipVerify: cfg.TLSSkipVerify, //nolint:gosec // opt-in via config
		}
		if cfg.TLSSkipVerify {
			logger.Warn("TLS certificate verification is disabled - this is insecure for production use")
		}
	}

	t := &RedisTransport{
		client: redis.NewClient(opts),
		config: cfg,
		logger: logger.With("component", "redis-transport"),
	}
	t.client.AddHook(lifecycleHook{t: t})

	dialTimeout := cfg.DialTimeout
	if dialTimeout <= 0 {
		dialTimeout = 5 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), dialTimeout)
	defer cancel()

	if err := t.client.Ping(ctx).Err(); err != nil {
		t.logger.Warn("Redis initial connection failed", "address", cfg.Address, "error", err)
	}

	return t
}

// OnEvent registers the lifecycle callback, replacing any previous one.
func (t *RedisTransport) OnEvent(fn EventFunc) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onEvent = fn
}

func (t *RedisTransport) emit(event Event, err error) {
	t.mu.RLock()
	fn := t.onEvent
	t.mu.RUnlock()

	switch event {
	case EventConnect:
		t.logger.Info("Redis connected", "address", t.config.Address)
	case EventReconnecting:
		t.logger.Info("Redis reconnecting", "address", t.config.Address, "attempt", t.reconnectAttempts.Load())
	case EventError:
		t.logger.Warn("Redis error", "error", err)
	}

	if fn != nil {
		fn(event, err)
	}
}

func (t *RedisTransport) IsConnected() bool {
	return t.connected.Load()
}

// ReconnectAttempts counts dials made after the connection was lost.
func (t *RedisTransport) ReconnectAttempts() int64 {
	return t.reconnectAttempts.Load()
}

func (t *RedisTransport) Get(ctx context.Context, key string) (string, bool, error) {
	value, err := t.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return value, true, nil
}

func (t *RedisTransport) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	return t.client.Set(ctx, key, value, ttl).Err()
}

func (t *RedisTransport) Incr(ctx context.Context, key string) (int64, error) {
	return t.client.Incr(ctx, key).Result()
}

func (t *RedisTransport) Expire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	return t.client.Expire(ctx, key, ttl).Result()
}

func (t *RedisTransport) Publish(ctx context.Context, channel, message string) (int64, error) {
	return t.client.Publish(ctx, channel, message).Result()
}

// Subscribe waits for the subscription confirmation so that an unreachable
// server is reported here rather than on the message channel.
func (t *RedisTransport) Subscribe(ctx context.Context, channels ...string) (Subscription, error) {
	ps := t.client.Subscribe(ctx, channels...)
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, err
	}

	sub := &redisSubscription{
		ps:   ps,
		ch:   make(chan Message, 64),
		done: make(chan struct{}),
	}
	go sub.forward()
	return sub, nil
}

func (t *RedisTransport) Ping(ctx context.Context) (string, error) {
	return t.client.Ping(ctx).Result()
}

func (t *RedisTransport) Close() error {
	t.connected.Store(false)
	return t.client.Close()
}

type redisSubscription struct {
	ps        *redis.PubSub
	ch        chan Message
	done      chan struct{}
	closeOnce sync.Once
}

// forward copies messages until the pubsub channel is closed by Close.
func (s *redisSubscription) forward() {
	defer close(s.ch)
	for msg := range s.ps.Channel() {
		select {
		case s.ch <- Message{Channel: msg.Channel, Payload: msg.Payload}:
		case <-s.done:
			return
		}
	}
}

func (s *redisSubscription) Messages() <-chan Message {
	return s.ch
}

func (s *redisSubscription) Close() error {
	s.closeOnce.Do(func() { close(s.done) })
	return s.ps.Close()
}

// lifecycleHook turns go-redis dial and command outcomes into connect,
// error and reconnecting events.
type lifecycleHook struct {
	t *RedisTransport
}

func (h lifecycleHook) DialHook(next redis.DialHook) redis.DialHook {
	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		t := h.t
		if t.everConnected.Load() && !t.connected.Load() {
			t.reconnectAttempts.Add(1)
			t.emit(EventReconnecting, nil)
		}

		conn, err := next(ctx, network, addr)
		if err != nil {
			t.markError(err)
			return nil, err
		}

		if t.connected.CompareAndSwap(false, true) {
			t.everConnected.Store(true)
			t.emit(EventConnect, nil)
		}
		return conn, nil
	}
}

func (h lifecycleHook) ProcessHook(next redis.ProcessHook) redis.ProcessHook {
	return func(ctx context.Context, cmd redis.Cmder) error {
		err := next(ctx, cmd)
		if isConnectionError(err) {
			h.t.markError(err)
		}
		return err
	}
}

func (h lifecycleHook) ProcessPipelineHook(next redis.ProcessPipelineHook) redis.ProcessPipelineHook {
	return func(ctx context.Context, cmds []redis.Cmder) error {
		err := next(ctx, cmds)
		if isConnectionError(err) {
			h.t.markError(err)
		}
		return err
	}
}

func (t *RedisTransport) markError(err error) {
	t.connected.Store(false)
	t.emit(EventError, err)
}

// isConnectionError filters out replies such as redis.Nil and server-side
// command errors, which say nothing about connectivity.
func isConnectionError(err error) bool {
	if err == nil || errors.Is(err, redis.Nil) || errors.Is(err, context.Canceled) {
		return false
	}
	var redisErr redis.Error
	return !errors.As(err, &redisErr)
}
