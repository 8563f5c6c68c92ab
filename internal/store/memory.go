package store

import (
	"context"
	"encoding/binary"
	"errors"
	"log/slog"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/allegro/bigcache/v3"
	"github.com/jonboulle/clockwork"

	"github.com/Lucascis/discord-bot-sub000/internal/config"
	"github.com/Lucascis/discord-bot-sub000/internal/types"
)

// MemoryTransport is an in-process Transport backed by bigcache. It serves
// memory-only deployments, examples and tests. Per-key expiry is packed in
// front of each stored value; bigcache's own life window only bounds how
// long an entry without TTL survives.
type MemoryTransport struct {
	cache  *bigcache.BigCache
	clock  clockwork.Clock
	logger *slog.Logger

	// writeMu serializes read-modify-write commands (INCR, EXPIRE).
	writeMu sync.Mutex

	subMu sync.RWMutex
	subs  map[string]map[*memorySubscription]struct{}

	down   atomic.Pointer[error]
	closed atomic.Bool
}

// NewMemoryTransport creates an in-process transport.
func NewMemoryTransport(cfg config.MemoryStoreConfig, logger *slog.Logger, clock clockwork.Clock) (*MemoryTransport, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	logger = logger.With("component", "memory-transport")

	bc, err := bigcache.New(context.Background(), bigcache.Config{
		Shards:             cfg.Shards,
		LifeWindow:         cfg.LifeWindow,
		CleanWindow:        cfg.CleanWindow,
		MaxEntriesInWindow: 1024,
		MaxEntrySize:       cfg.MaxEntrySize,
		HardMaxCacheSize:   cfg.MaxSizeMB,
		Verbose:            false,
		Logger:             &bigcacheLogger{logger: logger},
	})
	if err != nil {
		return nil, err
	}

	return &MemoryTransport{
		cache:  bc,
		clock:  clock,
		logger: logger,
		subs:   make(map[string]map[*memorySubscription]struct{}),
	}, nil
}

// SetUnavailable makes every command fail with err, simulating an outage.
// A nil err restores service.
func (t *MemoryTransport) SetUnavailable(err error) {
	if err == nil {
		t.down.Store(nil)
		return
	}
	t.down.Store(&err)
}

func (t *MemoryTransport) check() error {
	if t.closed.Load() {
		return types.ErrClosed
	}
	if p := t.down.Load(); p != nil {
		return *p
	}
	return nil
}

// pack prefixes value with its expiry in unix nanoseconds; 0 means none.
func pack(value string, expiresAt time.Time) []byte {
	buf := make([]byte, 8+len(value))
	if !expiresAt.IsZero() {
		binary.BigEndian.PutUint64(buf, uint64(expiresAt.UnixNano()))
	}
	copy(buf[8:], value)
	return buf
}

func unpack(data []byte) (string, time.Time, bool) {
	if len(data) < 8 {
		return "", time.Time{}, false
	}
	var expiresAt time.Time
	if n := binary.BigEndian.Uint64(data); n != 0 {
		expiresAt = time.Unix(0, int64(n))
	}
	return string(data[8:]), expiresAt, true
}

// load returns the live value of key, deleting it if expired.
func (t *MemoryTransport) load(key string) (string, time.Time, bool, error) {
	data, err := t.cache.Get(key)
	if errors.Is(err, bigcache.ErrEntryNotFound) {
		return "", time.Time{}, false, nil
	}
	if err != nil {
		return "", time.Time{}, false, err
	}
	value, expiresAt, ok := unpack(data)
	if !ok {
		return "", time.Time{}, false, nil
	}
	if !expiresAt.IsZero() && !t.clock.Now().Before(expiresAt) {
		_ = t.cache.Delete(key)
		return "", time.Time{}, false, nil
	}
	return value, expiresAt, true, nil
}

func (t *MemoryTransport) Get(_ context.Context, key string) (string, bool, error) {
	if err := t.check(); err != nil {
		return "", false, err
	}
	value, _, found, err := t.load(key)
	return value, found, err
}

func (t *MemoryTransport) Set(_ context.Context, key, value string, ttl time.Duration) error {
	if err := t.check(); err != nil {
		return err
	}
	var expiresAt time.Time
	if ttl > 0 {
		expiresAt = t.clock.Now().Add(ttl)
	}
	return t.cache.Set(key, pack(value, expiresAt))
}

func (t *MemoryTransport) Incr(_ context.Context, key string) (int64, error) {
	if err := t.check(); err != nil {
		return 0, err
	}

	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	value, expiresAt, found, err := t.load(key)
	if err != nil {
		return 0, err
	}
	var n int64
	if found {
		n, err = strconv.ParseInt(value, 10, 64)
		if err != nil {
			return 0, errors.New("value is not an integer or out of range")
		}
	}
	n++
	if err := t.cache.Set(key, pack(strconv.FormatInt(n, 10), expiresAt)); err != nil {
		return 0, err
	}
	return n, nil
}

func (t *MemoryTransport) Expire(_ context.Context, key string, ttl time.Duration) (bool, error) {
	if err := t.check(); err != nil {
		return false, err
	}

	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	value, _, found, err := t.load(key)
	if err != nil || !found {
		return false, err
	}
	if ttl <= 0 {
		return true, t.cache.Delete(key)
	}
	return true, t.cache.Set(key, pack(value, t.clock.Now().Add(ttl)))
}

func (t *MemoryTransport) Publish(_ context.Context, channel, message string) (int64, error) {
	if err := t.check(); err != nil {
		return 0, err
	}

	t.subMu.RLock()
	defer t.subMu.RUnlock()

	var delivered int64
	for sub := range t.subs[channel] {
		if sub.deliver(Message{Channel: channel, Payload: message}) {
			delivered++
		}
	}
	return delivered, nil
}

func (t *MemoryTransport) Subscribe(_ context.Context, channels ...string) (Subscription, error) {
	if err := t.check(); err != nil {
		return nil, err
	}

	sub := &memorySubscription{
		transport: t,
		channels:  channels,
		ch:        make(chan Message, 64),
		done:      make(chan struct{}),
	}

	t.subMu.Lock()
	for _, name := range channels {
		if t.subs[name] == nil {
			t.subs[name] = make(map[*memorySubscription]struct{})
		}
		t.subs[name][sub] = struct{}{}
	}
	t.subMu.Unlock()

	return sub, nil
}

func (t *MemoryTransport) Ping(context.Context) (string, error) {
	if err := t.check(); err != nil {
		return "", err
	}
	return "PONG", nil
}

// Len returns the number of stored keys, including expired keys not yet read.
func (t *MemoryTransport) Len() int {
	return t.cache.Len()
}

func (t *MemoryTransport) Close() error {
	if !t.closed.CompareAndSwap(false, true) {
		return nil
	}

	t.subMu.Lock()
	for _, set := range t.subs {
		for sub := range set {
			sub.closeOnce.Do(func() {
				close(sub.done)
				close(sub.ch)
			})
		}
	}
	t.subs = make(map[string]map[*memorySubscription]struct{})
	t.subMu.Unlock()

	return t.cache.Close()
}

func (t *MemoryTransport) unsubscribe(sub *memorySubscription) {
	t.subMu.Lock()
	defer t.subMu.Unlock()
	for _, name := range sub.channels {
		delete(t.subs[name], sub)
		if len(t.subs[name]) == 0 {
			delete(t.subs, name)
		}
	}
}

type memorySubscription struct {
	transport *MemoryTransport
	channels  []string
	ch        chan Message
	done      chan struct{}
	closeOnce sync.Once
}

// deliver drops the message if the subscriber is not keeping up.
func (s *memorySubscription) deliver(msg Message) bool {
	select {
	case <-s.done:
		return false
	default:
	}
	select {
	case s.ch <- msg:
		return true
	default:
		return false
	}
}

func (s *memorySubscription) Messages() <-chan Message {
	return s.ch
}

func (s *memorySubscription) Close() error {
	s.closeOnce.Do(func() {
		close(s.done)
		// No publisher can hold the subscriber once it is unregistered.
		s.transport.unsubscribe(s)
		close(s.ch)
	})
	return nil
}

// bigcacheLogger adapts slog.Logger to bigcache's Logger interface.
type bigcacheLogger struct {
	logger *slog.Logger
}

func (l *bigcacheLogger) Printf(format string, v ...any) {
	l.logger.Debug("bigcache", "message", format, "args", v)
}
