package resilience

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryGetOrCreate(t *testing.T) {
	r := NewRegistry()

	first := r.GetOrCreate("redis", testBreakerConfig())
	require.NotNil(t, first)
	assert.Equal(t, "redis", first.Name())

	cfg := testBreakerConfig()
	cfg.VolumeThreshold = 99
	second := r.GetOrCreate("redis", cfg)
	assert.Same(t, first, second, "same name must return the same breaker")
	assert.Equal(t, 10, second.volumeThreshold, "config is ignored after the first call")

	other := r.GetOrCreate("search", cfg)
	assert.NotSame(t, first, other)
	assert.Equal(t, 99, other.volumeThreshold)

	assert.Equal(t, 2, r.Len())
	assert.Equal(t, []string{"redis", "search"}, r.Names())

	got, ok := r.Get("search")
	assert.True(t, ok)
	assert.Same(t, other, got)

	_, ok = r.Get("missing")
	assert.False(t, ok)
}

func TestRegistriesAreIndependent(t *testing.T) {
	a := NewRegistry()
	b := NewRegistry()

	assert.NotSame(t, a.GetOrCreate("redis", testBreakerConfig()), b.GetOrCreate("redis", testBreakerConfig()))
}

func TestRegistryResetAllAndMetrics(t *testing.T) {
	clock := clockwork.NewFakeClock()
	var transitions []string
	r := NewRegistry(
		WithRegistryClock(clock),
		WithRegistryStateChange(func(name string, from, to State) {
			transitions = append(transitions, fmt.Sprintf("%s:%s->%s", name, from, to))
		}),
	)

	cb := r.GetOrCreate("redis", testBreakerConfig())
	r.GetOrCreate("idle", testBreakerConfig())
	for i := 0; i < 10; i++ {
		_, _ = cb.Execute(fail)
	}
	require.True(t, cb.IsOpen())
	assert.Equal(t, []string{"redis:closed->open"}, transitions)

	metrics := r.AllMetrics()
	require.Len(t, metrics, 2)
	assert.Equal(t, StateOpen, metrics["redis"].State)
	assert.Equal(t, int64(10), metrics["redis"].Failures)
	assert.Equal(t, clock.Now(), metrics["redis"].LastFailureTime)
	assert.Equal(t, StateClosed, metrics["idle"].State)

	clock.Advance(time.Second)
	r.ResetAll()

	assert.True(t, cb.IsClosed())
	assert.Equal(t, []string{"redis:closed->open", "redis:open->closed"}, transitions,
		"only the breaker that left closed reports a transition")
	assert.Equal(t, int64(0), r.AllMetrics()["redis"].Failures)
	assert.Equal(t, 2, r.Len(), "reset keeps breakers registered")
}

func TestRegistryConcurrentGetOrCreate(t *testing.T) {
	r := NewRegistry()

	var wg sync.WaitGroup
	got := make([]*CircuitBreaker, 64)
	for i := range got {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			got[i] = r.GetOrCreate("shared", testBreakerConfig())
		}(i)
	}
	wg.Wait()

	for i := range got {
		assert.Same(t, got[0], got[i])
	}
	assert.Equal(t, 1, r.Len())
}
