package resilience

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/Lucascis/discord-bot-sub000/internal/config"
)

var errBoom = errors.New("boom")

func testBreakerConfig() config.CircuitBreakerConfig {
	return config.CircuitBreakerConfig{
		Name:             "test",
		FailureThreshold: 0.5,
		Timeout:          30 * time.Second,
		MonitoringWindow: 60 * time.Second,
		VolumeThreshold:  10,
	}
}

func succeed() (any, error) { return "ok", nil }
func fail() (any, error)    { return nil, errBoom }

func TestCircuitBreakerStateString(t *testing.T) {
	//nolint:govet // Test table - alignment not critical
	tests := []struct {
		state    State
		expected string
	}{
		{StateClosed, "closed"},
		{StateOpen, "open"},
		{StateHalfOpen, "half-open"},
		{State(99), "unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			if got := tt.state.String(); got != tt.expected {
				t.Errorf("State.String() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestNewCircuitBreaker(t *testing.T) {
	t.Run("creates with config values", func(t *testing.T) {
		cb := NewCircuitBreaker(config.CircuitBreakerConfig{
			Name:             "redis",
			FailureThreshold: 0.25,
			Timeout:          time.Minute,
			MonitoringWindow: 2 * time.Minute,
			VolumeThreshold:  7,
		})

		if cb.Name() != "redis" {
			t.Errorf("Name() = %v, want redis", cb.Name())
		}
		if cb.failureThreshold != 0.25 {
			t.Errorf("failureThreshold = %v, want 0.25", cb.failureThreshold)
		}
		if cb.timeout != time.Minute {
			t.Errorf("timeout = %v, want 1m", cb.timeout)
		}
		if cb.window != 2*time.Minute {
			t.Errorf("window = %v, want 2m", cb.window)
		}
		if cb.volumeThreshold != 7 {
			t.Errorf("volumeThreshold = %v, want 7", cb.volumeThreshold)
		}
		if cb.State() != StateClosed {
			t.Errorf("initial state = %v, want closed", cb.State())
		}
	})

	t.Run("applies defaults for zero values", func(t *testing.T) {
		cb := NewCircuitBreaker(config.CircuitBreakerConfig{})

		if cb.failureThreshold != 0.5 {
			t.Errorf("failureThreshold = %v, want 0.5", cb.failureThreshold)
		}
		if cb.timeout != 30*time.Second {
			t.Errorf("timeout = %v, want 30s", cb.timeout)
		}
		if cb.window != time.Minute {
			t.Errorf("window = %v, want 1m", cb.window)
		}
		if cb.volumeThreshold != 10 {
			t.Errorf("volumeThreshold = %v, want 10", cb.volumeThreshold)
		}
	})
}

func TestCircuitBreakerStaysClosedBelowThreshold(t *testing.T) {
	cfg := testBreakerConfig()
	cfg.VolumeThreshold = 1
	cb := NewCircuitBreaker(cfg, WithClock(clockwork.NewFakeClock()))

	// One failure in every three calls keeps the rate at or below 1/3.
	for i := 0; i < 30; i++ {
		if i%3 == 2 {
			_, _ = cb.Execute(fail)
		} else {
			_, _ = cb.Execute(succeed)
		}
		if cb.State() != StateClosed {
			t.Fatalf("after %d calls state = %v, want closed", i+1, cb.State())
		}
	}
}

func TestCircuitBreakerOpensAtVolumeAndRate(t *testing.T) {
	cb := NewCircuitBreaker(testBreakerConfig(), WithClock(clockwork.NewFakeClock()))

	for i := 0; i < 5; i++ {
		if _, err := cb.Execute(succeed); err != nil {
			t.Fatalf("Execute() error = %v", err)
		}
	}
	for i := 0; i < 4; i++ {
		_, _ = cb.Execute(fail)
		if cb.State() != StateClosed {
			t.Fatalf("state = %v after %d failures, want closed", cb.State(), i+1)
		}
	}

	_, err := cb.Execute(fail)
	if !errors.Is(err, errBoom) {
		t.Errorf("Execute() error = %v, want errBoom", err)
	}
	if cb.State() != StateOpen {
		t.Fatalf("state = %v, want open", cb.State())
	}

	var called bool
	_, err = cb.Execute(func() (any, error) {
		called = true
		return nil, nil
	})
	if called {
		t.Error("operation invoked while open")
	}
	if !IsCircuitOpen(err) {
		t.Errorf("Execute() error = %v, want ErrCircuitOpen", err)
	}

	m := cb.Metrics()
	if m.Requests != 10 {
		t.Errorf("Requests = %d, want 10 (rejected calls are not counted)", m.Requests)
	}
	if m.Failures != 5 || m.Successes != 5 {
		t.Errorf("Failures/Successes = %d/%d, want 5/5", m.Failures, m.Successes)
	}
}

func TestCircuitBreakerNeedsVolume(t *testing.T) {
	cb := NewCircuitBreaker(testBreakerConfig(), WithClock(clockwork.NewFakeClock()))

	for i := 0; i < 9; i++ {
		_, _ = cb.Execute(fail)
	}
	if cb.State() != StateClosed {
		t.Fatalf("state = %v with 9 requests, want closed", cb.State())
	}

	_, _ = cb.Execute(fail)
	if cb.State() != StateOpen {
		t.Errorf("state = %v with 10 requests, want open", cb.State())
	}
}

func TestCircuitBreakerHalfOpen(t *testing.T) {
	open := func(t *testing.T) (*CircuitBreaker, *clockwork.FakeClock) {
		t.Helper()
		clock := clockwork.NewFakeClock()
		cb := NewCircuitBreaker(testBreakerConfig(), WithClock(clock))
		for i := 0; i < 10; i++ {
			_, _ = cb.Execute(fail)
		}
		if cb.State() != StateOpen {
			t.Fatalf("state = %v, want open", cb.State())
		}
		return cb, clock
	}

	t.Run("rejects before timeout", func(t *testing.T) {
		cb, clock := open(t)
		clock.Advance(29 * time.Second)

		if _, err := cb.Execute(succeed); !IsCircuitOpen(err) {
			t.Errorf("Execute() error = %v, want ErrCircuitOpen", err)
		}
		if cb.State() != StateOpen {
			t.Errorf("state = %v, want open", cb.State())
		}
	})

	t.Run("success after timeout closes", func(t *testing.T) {
		cb, clock := open(t)
		clock.Advance(30 * time.Second)

		var called bool
		result, err := cb.Execute(func() (any, error) {
			called = true
			return "fresh", nil
		})
		if err != nil {
			t.Fatalf("Execute() error = %v", err)
		}
		if !called || result != "fresh" {
			t.Errorf("Execute() = %v, called = %v; want fresh, true", result, called)
		}
		if cb.State() != StateClosed {
			t.Errorf("state = %v, want closed", cb.State())
		}
		if f := cb.Metrics().Failures; f != 0 {
			t.Errorf("Failures = %d, want 0", f)
		}
	})

	t.Run("failure after timeout reopens", func(t *testing.T) {
		cb, clock := open(t)
		clock.Advance(30 * time.Second)

		_, _ = cb.Execute(fail)
		if cb.State() != StateOpen {
			t.Errorf("state = %v, want open", cb.State())
		}
		// The open timeout restarts from the latest failure.
		clock.Advance(29 * time.Second)
		if _, err := cb.Execute(succeed); !IsCircuitOpen(err) {
			t.Errorf("Execute() error = %v, want ErrCircuitOpen", err)
		}
	})
}

func TestCircuitBreakerFailureCountOutlivesWindow(t *testing.T) {
	clock := clockwork.NewFakeClock()
	cfg := testBreakerConfig()
	cfg.VolumeThreshold = 4
	cb := NewCircuitBreaker(cfg, WithClock(clock))

	for i := 0; i < 3; i++ {
		_, _ = cb.Execute(fail)
	}
	clock.Advance(61 * time.Second)
	for i := 0; i < 4; i++ {
		_, _ = cb.Execute(succeed)
	}
	if cb.State() != StateClosed {
		t.Fatalf("state = %v, want closed", cb.State())
	}

	// One failure in a window of five, but four lifetime failures.
	_, _ = cb.Execute(fail)

	m := cb.Metrics()
	if m.WindowSize != 5 {
		t.Errorf("WindowSize = %d, want 5", m.WindowSize)
	}
	if m.Failures != 4 {
		t.Errorf("Failures = %d, want 4", m.Failures)
	}
	if cb.State() != StateOpen {
		t.Errorf("state = %v, want open", cb.State())
	}
}

func TestCircuitBreakerWindowPruning(t *testing.T) {
	clock := clockwork.NewFakeClock()
	cb := NewCircuitBreaker(testBreakerConfig(), WithClock(clock))

	for i := 0; i < 8; i++ {
		_, _ = cb.Execute(succeed)
	}
	clock.Advance(60 * time.Second)
	_, _ = cb.Execute(succeed)
	if got := cb.Metrics().WindowSize; got != 9 {
		t.Errorf("WindowSize at window edge = %d, want 9", got)
	}

	clock.Advance(time.Second)
	_, _ = cb.Execute(succeed)
	if got := cb.Metrics().WindowSize; got != 2 {
		t.Errorf("WindowSize after expiry = %d, want 2", got)
	}
	if got := cb.Metrics().Requests; got != 10 {
		t.Errorf("Requests = %d, want 10", got)
	}
}

func TestCircuitBreakerFallback(t *testing.T) {
	t.Run("receives operation error", func(t *testing.T) {
		cb := NewCircuitBreaker(testBreakerConfig(), WithClock(clockwork.NewFakeClock()))

		var got error
		result, err := cb.ExecuteWithFallback(fail, func(err error) (any, error) {
			got = err
			return "stale", nil
		})
		if err != nil {
			t.Fatalf("ExecuteWithFallback() error = %v", err)
		}
		if result != "stale" {
			t.Errorf("result = %v, want stale", result)
		}
		if !errors.Is(got, errBoom) {
			t.Errorf("fallback error = %v, want errBoom", got)
		}
	})

	t.Run("receives ErrCircuitOpen when open", func(t *testing.T) {
		cb := NewCircuitBreaker(testBreakerConfig(), WithClock(clockwork.NewFakeClock()))
		for i := 0; i < 10; i++ {
			_, _ = cb.Execute(fail)
		}

		var got error
		result, _ := cb.ExecuteWithFallback(succeed, func(err error) (any, error) {
			got = err
			return "stale", nil
		})
		if result != "stale" {
			t.Errorf("result = %v, want stale", result)
		}
		if !IsCircuitOpen(got) {
			t.Errorf("fallback error = %v, want ErrCircuitOpen", got)
		}
	})

	t.Run("not called on success", func(t *testing.T) {
		cb := NewCircuitBreaker(testBreakerConfig())
		result, err := cb.ExecuteWithFallback(succeed, func(error) (any, error) {
			t.Error("fallback called on success")
			return nil, nil
		})
		if err != nil || result != "ok" {
			t.Errorf("ExecuteWithFallback() = %v, %v; want ok, nil", result, err)
		}
	})
}

func TestDo(t *testing.T) {
	cb := NewCircuitBreaker(testBreakerConfig(), WithClock(clockwork.NewFakeClock()))

	n, err := Do(cb, func() (int, error) { return 42, nil }, nil)
	if err != nil || n != 42 {
		t.Errorf("Do() = %d, %v; want 42, nil", n, err)
	}

	n, err = Do(cb, func() (int, error) { return 0, errBoom }, func(error) (int, error) { return -1, nil })
	if err != nil || n != -1 {
		t.Errorf("Do() with fallback = %d, %v; want -1, nil", n, err)
	}
}

func TestCircuitBreakerNeutralErrors(t *testing.T) {
	cb := NewCircuitBreaker(testBreakerConfig(), WithClock(clockwork.NewFakeClock()))

	for i := 0; i < 20; i++ {
		_, err := cb.Execute(func() (any, error) { return nil, Neutral(context.Canceled) })
		if err != context.Canceled {
			t.Fatalf("Execute() error = %v, want the unwrapped context.Canceled", err)
		}
	}
	if !cb.IsClosed() {
		t.Errorf("state = %v, want closed", cb.State())
	}
	if got := cb.Metrics().Failures; got != 0 {
		t.Errorf("Failures = %d, want 0", got)
	}

	var seen error
	_, _ = cb.ExecuteWithFallback(func() (any, error) {
		return nil, Neutral(context.DeadlineExceeded)
	}, func(err error) (any, error) {
		seen = err
		return nil, nil
	})
	if seen != context.DeadlineExceeded {
		t.Errorf("fallback error = %v, want context.DeadlineExceeded", seen)
	}

	if Neutral(nil) != nil {
		t.Error("Neutral(nil) != nil")
	}
}

func TestCircuitBreakerStateChangeCallback(t *testing.T) {
	clock := clockwork.NewFakeClock()
	cb := NewCircuitBreaker(testBreakerConfig(), WithClock(clock))

	type change struct {
		name     string
		from, to State
	}
	var changes []change
	cb.SetOnStateChange(func(name string, from, to State) {
		// Reading state from the callback must not deadlock.
		_ = cb.Metrics()
		changes = append(changes, change{name, from, to})
	})

	for i := 0; i < 10; i++ {
		_, _ = cb.Execute(fail)
	}
	clock.Advance(30 * time.Second)
	_, _ = cb.Execute(succeed)

	want := []change{
		{"test", StateClosed, StateOpen},
		{"test", StateOpen, StateHalfOpen},
		{"test", StateHalfOpen, StateClosed},
	}
	if len(changes) != len(want) {
		t.Fatalf("got %d transitions %v, want %d", len(changes), changes, len(want))
	}
	for i := range want {
		if changes[i] != want[i] {
			t.Errorf("transition %d = %v, want %v", i, changes[i], want[i])
		}
	}
}

func TestCircuitBreakerReset(t *testing.T) {
	clock := clockwork.NewFakeClock()
	cb := NewCircuitBreaker(testBreakerConfig(), WithClock(clock))
	var changes []string
	cb.SetOnStateChange(func(_ string, from, to State) {
		changes = append(changes, from.String()+"->"+to.String())
	})
	for i := 0; i < 10; i++ {
		_, _ = cb.Execute(fail)
	}

	cb.Reset()

	if cb.State() != StateClosed {
		t.Errorf("state = %v, want closed", cb.State())
	}
	want := []string{"closed->open", "open->closed"}
	if len(changes) != len(want) || changes[0] != want[0] || changes[1] != want[1] {
		t.Errorf("transitions = %v, want %v", changes, want)
	}

	cb.Reset()
	if len(changes) != len(want) {
		t.Errorf("resetting a closed breaker fired %v", changes[len(want):])
	}
	m := cb.Metrics()
	if m.Failures != 0 || m.Successes != 0 || m.Requests != 0 || m.WindowSize != 0 {
		t.Errorf("Metrics() = %+v, want zeroed counters", m)
	}
	if !m.LastFailureTime.IsZero() {
		t.Errorf("LastFailureTime = %v, want zero", m.LastFailureTime)
	}
	if _, err := cb.Execute(succeed); err != nil {
		t.Errorf("Execute() after reset error = %v", err)
	}
}

func TestBreakerMetricsFailureRate(t *testing.T) {
	if got := (BreakerMetrics{}).FailureRate(); got != 0 {
		t.Errorf("FailureRate() on empty = %v, want 0", got)
	}
	if got := (BreakerMetrics{Failures: 3, WindowSize: 2}).FailureRate(); got != 1.5 {
		t.Errorf("FailureRate() = %v, want 1.5", got)
	}
}

func TestCircuitBreakerConcurrency(t *testing.T) {
	cfg := testBreakerConfig()
	cfg.FailureThreshold = 1
	cb := NewCircuitBreaker(cfg)

	var wg sync.WaitGroup
	var calls atomic.Int64
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				_, _ = cb.Execute(func() (any, error) {
					calls.Add(1)
					if (i+j)%4 == 0 {
						return nil, errBoom
					}
					return nil, nil
				})
				_ = cb.Metrics()
			}
		}(i)
	}
	wg.Wait()

	if got := cb.Metrics().Requests; got != calls.Load() {
		t.Errorf("Requests = %d, want %d", got, calls.Load())
	}
}
