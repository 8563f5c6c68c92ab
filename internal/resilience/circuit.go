// Package resilience provides fault tolerance patterns for backing-store calls.
package resilience

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/Lucascis/discord-bot-sub000/internal/config"
)

type State int32

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// StateChangeFunc is called after a breaker changes state.
type StateChangeFunc func(name string, from, to State)

// CircuitBreaker is a sliding-window circuit breaker.
//
// The failure rate is the lifetime failure count divided by the number of
// requests seen within the monitoring window. Failures are only cleared when a
// half-open trial call succeeds or on Reset, so a breaker with a long failure history
// reopens faster than its window alone would suggest.
type CircuitBreaker struct {
	name string

	failureThreshold float64
	timeout          time.Duration
	window           time.Duration
	volumeThreshold  int

	clock clockwork.Clock
	state atomic.Int32

	mu              sync.Mutex
	failures        int64
	successes       int64
	requests        int64
	lastFailureTime time.Time
	stateChangeTime time.Time
	timestamps      []time.Time

	onStateChange StateChangeFunc
}

// stateTransition allows callbacks to be invoked outside the mutex to prevent deadlocks.
type stateTransition struct {
	name     string
	from     State
	to       State
	callback StateChangeFunc
}

// Option configures a CircuitBreaker.
type Option func(*CircuitBreaker)

// WithClock sets the clock used for the window and the open timeout.
func WithClock(clock clockwork.Clock) Option {
	return func(cb *CircuitBreaker) {
		if clock != nil {
			cb.clock = clock
		}
	}
}

// WithStateChange sets the state change callback at construction.
func WithStateChange(fn StateChangeFunc) Option {
	return func(cb *CircuitBreaker) {
		cb.onStateChange = fn
	}
}

// NewCircuitBreaker creates a new circuit breaker with the given configuration.
// Zero values fall back to the defaults of config.DefaultConfig.
func NewCircuitBreaker(cfg config.CircuitBreakerConfig, opts ...Option) *CircuitBreaker {
	cb := &CircuitBreaker{
		name:             cfg.Name,
		failureThreshold: cfg.FailureThreshold,
		timeout:          cfg.Timeout,
		window:           cfg.MonitoringWindow,
		volumeThreshold:  cfg.VolumeThreshold,
		clock:            clockwork.NewRealClock(),
	}

	if cb.name == "" {
		cb.name = "default"
	}
	if cb.failureThreshold <= 0 {
		cb.failureThreshold = 0.5
	}
	if cb.timeout <= 0 {
		cb.timeout = 30 * time.Second
	}
	if cb.window <= 0 {
		cb.window = 60 * time.Second
	}
	if cb.volumeThreshold <= 0 {
		cb.volumeThreshold = 10
	}

	for _, opt := range opts {
		opt(cb)
	}

	cb.stateChangeTime = cb.clock.Now()
	cb.state.Store(int32(StateClosed))

	return cb
}

// Name returns the breaker's registry name.
func (cb *CircuitBreaker) Name() string {
	return cb.name
}

// Execute runs fn through the circuit breaker. When the breaker is open and
// the timeout has not elapsed, fn is not called and ErrCircuitOpen is returned.
func (cb *CircuitBreaker) Execute(fn func() (any, error)) (any, error) {
	return Do(cb, fn, nil)
}

// ExecuteWithFallback runs fn and hands any failure, including a rejection by
// an open breaker, to fallback. A nil fallback behaves like Execute.
func (cb *CircuitBreaker) ExecuteWithFallback(fn func() (any, error), fallback func(error) (any, error)) (any, error) {
	return Do(cb, fn, fallback)
}

// Do is the typed form of ExecuteWithFallback.
func Do[T any](cb *CircuitBreaker, fn func() (T, error), fallback func(error) (T, error)) (T, error) {
	if !cb.admit() {
		if fallback != nil {
			return fallback(ErrCircuitOpen)
		}
		var zero T
		return zero, ErrCircuitOpen
	}

	result, err := fn()
	if err != nil {
		var neutral neutralError
		if errors.As(err, &neutral) {
			err = neutral.err
		} else {
			cb.onFailure()
		}
		if fallback != nil {
			return fallback(err)
		}
		return result, err
	}

	cb.onSuccess()
	return result, nil
}

// admit decides whether a call may run and, if so, records it in the window.
// Rejected calls are not counted as requests.
func (cb *CircuitBreaker) admit() bool {
	var transition *stateTransition

	cb.mu.Lock()
	now := cb.clock.Now()

	if State(cb.state.Load()) == StateOpen {
		if now.Sub(cb.lastFailureTime) < cb.timeout {
			cb.mu.Unlock()
			return false
		}
		transition = cb.transitionTo(StateHalfOpen, now)
	}

	cb.requests++
	cb.timestamps = append(cb.timestamps, now)
	cb.pruneLocked(now)
	cb.mu.Unlock()

	transition.invoke()
	return true
}

// pruneLocked drops window entries older than the monitoring window.
func (cb *CircuitBreaker) pruneLocked(now time.Time) {
	cutoff := now.Add(-cb.window)
	i := 0
	for i < len(cb.timestamps) && cb.timestamps[i].Before(cutoff) {
		i++
	}
	if i > 0 {
		cb.timestamps = append(cb.timestamps[:0], cb.timestamps[i:]...)
	}
}

func (cb *CircuitBreaker) onSuccess() {
	var transition *stateTransition

	cb.mu.Lock()
	cb.successes++
	if State(cb.state.Load()) == StateHalfOpen {
		cb.failures = 0
		transition = cb.transitionTo(StateClosed, cb.clock.Now())
	}
	cb.mu.Unlock()

	transition.invoke()
}

func (cb *CircuitBreaker) onFailure() {
	var transition *stateTransition

	cb.mu.Lock()
	now := cb.clock.Now()
	cb.failures++
	cb.lastFailureTime = now

	if State(cb.state.Load()) != StateOpen && cb.shouldTripLocked() {
		transition = cb.transitionTo(StateOpen, now)
	}
	cb.mu.Unlock()

	transition.invoke()
}

func (cb *CircuitBreaker) shouldTripLocked() bool {
	size := len(cb.timestamps)
	if size == 0 || size < cb.volumeThreshold {
		return false
	}
	return float64(cb.failures)/float64(size) >= cb.failureThreshold
}

// transitionTo changes the circuit breaker state.
// Must be called while holding the mutex. The returned transition, if any,
// must be invoked after the mutex is released.
func (cb *CircuitBreaker) transitionTo(newState State, now time.Time) *stateTransition {
	oldState := State(cb.state.Load())
	if oldState == newState {
		return nil
	}

	cb.state.Store(int32(newState))
	cb.stateChangeTime = now

	if cb.onStateChange != nil {
		return &stateTransition{
			name:     cb.name,
			from:     oldState,
			to:       newState,
			callback: cb.onStateChange,
		}
	}
	return nil
}

func (t *stateTransition) invoke() {
	if t != nil && t.callback != nil {
		t.callback(t.name, t.from, t.to)
	}
}

// State returns the current circuit breaker state. An open breaker whose
// timeout has elapsed still reports open until the next call.
func (cb *CircuitBreaker) State() State {
	return State(cb.state.Load())
}

// IsOpen returns true if the circuit is open.
func (cb *CircuitBreaker) IsOpen() bool {
	return cb.State() == StateOpen
}

// IsClosed returns true if the circuit is closed.
func (cb *CircuitBreaker) IsClosed() bool {
	return cb.State() == StateClosed
}

// IsHalfOpen returns true if the circuit is half-open.
func (cb *CircuitBreaker) IsHalfOpen() bool {
	return cb.State() == StateHalfOpen
}

// SetOnStateChange sets a callback for state changes.
// The callback runs synchronously after the transition and may read breaker
// state. Keep it fast: logging and metrics only.
func (cb *CircuitBreaker) SetOnStateChange(fn StateChangeFunc) {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.onStateChange = fn
}

// Reset returns the breaker to closed with all counters and the window cleared.
// Leaving open or half-open fires the state change callback.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	now := cb.clock.Now()
	cb.failures = 0
	cb.successes = 0
	cb.requests = 0
	cb.lastFailureTime = time.Time{}
	cb.timestamps = nil
	transition := cb.transitionTo(StateClosed, now)
	cb.stateChangeTime = now
	cb.mu.Unlock()

	transition.invoke()
}

// Metrics returns a snapshot of the breaker's counters.
func (cb *CircuitBreaker) Metrics() BreakerMetrics {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	return BreakerMetrics{
		Name:            cb.name,
		State:           cb.State(),
		Failures:        cb.failures,
		Successes:       cb.successes,
		Requests:        cb.requests,
		WindowSize:      len(cb.timestamps),
		LastFailureTime: cb.lastFailureTime,
		StateChangeTime: cb.stateChangeTime,
	}
}

// BreakerMetrics contains circuit breaker statistics.
//
//nolint:govet // Snapshot struct - readability over alignment
type BreakerMetrics struct {
	Name            string    `json:"name"`
	State           State     `json:"state"`
	Failures        int64     `json:"failures"`
	Successes       int64     `json:"successes"`
	Requests        int64     `json:"requests"`
	WindowSize      int       `json:"windowSize"`
	LastFailureTime time.Time `json:"lastFailureTime"`
	StateChangeTime time.Time `json:"stateChangeTime"`
}

// FailureRate is failures over the current window size, as used for tripping.
func (m BreakerMetrics) FailureRate() float64 {
	if m.WindowSize == 0 {
		return 0
	}
	return float64(m.Failures) / float64(m.WindowSize)
}
