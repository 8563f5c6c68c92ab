package store

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/Lucascis/discord-bot-sub000/internal/config"
	"github.com/Lucascis/discord-bot-sub000/internal/types"
)

// BufferedMessage is a publish that could not be delivered.
type BufferedMessage struct {
	ID         uuid.UUID
	Channel    string
	Payload    string
	EnqueuedAt time.Time
}

// BufferStats counts buffer activity since construction.
type BufferStats struct {
	Len      int   `json:"len"`
	Capacity int   `json:"capacity"`
	Enqueued int64 `json:"enqueued"`
	Dropped  int64 `json:"dropped"`
	Expired  int64 `json:"expired"`
	Replayed int64 `json:"replayed"`
}

// MessageBuffer is a bounded FIFO of undelivered publishes. When full, the
// oldest message is dropped to make room. Messages older than the TTL are
// removed by a background sweep wherever they sit in the queue.
type MessageBuffer struct {
	mu       sync.Mutex
	messages []BufferedMessage
	maxSize  int
	ttl      time.Duration
	clock    clockwork.Clock

	enqueued int64
	dropped  int64
	expired  int64
	replayed int64

	onDrop func(reason string, msg BufferedMessage)

	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

// NewMessageBuffer creates a buffer and starts its sweeper. onDrop, if set,
// is called outside the buffer lock for each overflow or expiry.
func NewMessageBuffer(cfg config.BufferConfig, clock clockwork.Clock, onDrop func(reason string, msg BufferedMessage)) *MessageBuffer {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	b := &MessageBuffer{
		maxSize: max(cfg.MaxSize, 1),
		ttl:     cfg.MessageTTL,
		clock:   clock,
		onDrop:  onDrop,
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}

	if cfg.CleanupInterval > 0 && cfg.MessageTTL > 0 {
		go b.sweep(cfg.CleanupInterval)
	} else {
		close(b.done)
	}
	return b
}

// Push appends a message, dropping the oldest one if the buffer is full.
func (b *MessageBuffer) Push(channel, payload string) BufferedMessage {
	msg := BufferedMessage{
		ID:         uuid.New(),
		Channel:    channel,
		Payload:    payload,
		EnqueuedAt: b.clock.Now(),
	}

	var evicted *BufferedMessage
	b.mu.Lock()
	if len(b.messages) >= b.maxSize {
		oldest := b.messages[0]
		evicted = &oldest
		b.messages[0] = BufferedMessage{}
		b.messages = b.messages[1:]
		b.dropped++
	}
	b.messages = append(b.messages, msg)
	b.enqueued++
	b.mu.Unlock()

	if evicted != nil && b.onDrop != nil {
		b.onDrop(types.DropReasonOverflow, *evicted)
	}
	return msg
}

// Peek returns the oldest message without removing it.
func (b *MessageBuffer) Peek() (BufferedMessage, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.messages) == 0 {
		return BufferedMessage{}, false
	}
	return b.messages[0], true
}

// Ack removes the head if it is still the message with id and counts it as
// replayed. It reports false if the head changed, for example because the
// message overflowed or expired while it was being replayed.
func (b *MessageBuffer) Ack(id uuid.UUID) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.messages) == 0 || b.messages[0].ID != id {
		return false
	}
	b.messages[0] = BufferedMessage{}
	b.messages = b.messages[1:]
	b.replayed++
	return true
}

func (b *MessageBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.messages)
}

func (b *MessageBuffer) Capacity() int {
	return b.maxSize
}

// Snapshot returns a copy of the buffered messages, oldest first.
func (b *MessageBuffer) Snapshot() []BufferedMessage {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]BufferedMessage, len(b.messages))
	copy(out, b.messages)
	return out
}

// Purge removes messages older than the TTL and returns how many were removed.
func (b *MessageBuffer) Purge() int {
	if b.ttl <= 0 {
		return 0
	}

	b.mu.Lock()
	cutoff := b.clock.Now().Add(-b.ttl)
	kept := b.messages[:0]
	var expired []BufferedMessage
	for _, msg := range b.messages {
		if msg.EnqueuedAt.After(cutoff) {
			kept = append(kept, msg)
		} else {
			expired = append(expired, msg)
		}
	}
	clear(b.messages[len(kept):])
	b.messages = kept
	b.expired += int64(len(expired))
	b.mu.Unlock()

	if b.onDrop != nil {
		for _, msg := range expired {
			b.onDrop(types.DropReasonExpired, msg)
		}
	}
	return len(expired)
}

func (b *MessageBuffer) Stats() BufferStats {
	b.mu.Lock()
	defer b.mu.Unlock()
	return BufferStats{
		Len:      len(b.messages),
		Capacity: b.maxSize,
		Enqueued: b.enqueued,
		Dropped:  b.dropped,
		Expired:  b.expired,
		Replayed: b.replayed,
	}
}

// Close stops the sweeper. Buffered messages are kept.
func (b *MessageBuffer) Close() {
	b.stopOnce.Do(func() { close(b.stop) })
	<-b.done
}

func (b *MessageBuffer) sweep(interval time.Duration) {
	defer close(b.done)

	ticker := b.clock.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-b.stop:
			return
		case <-ticker.Chan():
			b.Purge()
		}
	}
}
