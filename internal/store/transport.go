// Package store wraps a backing key-value/pub-sub transport with a circuit
// breaker, a local fallback cache and an outbound message buffer.
package store

import (
	"context"
	"time"
)

// Transport is the raw backing-store client. Socket-level retries and
// per-call deadlines are the transport's concern.
type Transport interface {
	// Get returns found=false with a nil error for a missing key.
	Get(ctx context.Context, key string) (value string, found bool, err error)
	// Set stores value. A zero ttl means no expiry.
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Incr(ctx context.Context, key string) (int64, error)
	// Expire reports whether key existed.
	Expire(ctx context.Context, key string, ttl time.Duration) (bool, error)
	// Publish returns the number of subscribers that received the message.
	Publish(ctx context.Context, channel, message string) (int64, error)
	Subscribe(ctx context.Context, channels ...string) (Subscription, error)
	Ping(ctx context.Context) (string, error)
	Close() error
}

// Message is a payload received on a subscribed channel.
type Message struct {
	Channel string
	Payload string
}

// Subscription delivers messages until Close is called, after which the
// Messages channel is closed.
type Subscription interface {
	Messages() <-chan Message
	Close() error
}

// Event is a transport connection lifecycle event.
type Event int

const (
	EventConnect Event = iota + 1
	EventError
	EventReconnecting
)

func (e Event) String() string {
	switch e {
	case EventConnect:
		return "connect"
	case EventError:
		return "error"
	case EventReconnecting:
		return "reconnecting"
	default:
		return "unknown"
	}
}

// EventFunc receives lifecycle events. err is set for EventError only.
type EventFunc func(event Event, err error)

// EventNotifier is implemented by transports that report connection lifecycle.
type EventNotifier interface {
	OnEvent(fn EventFunc)
}
