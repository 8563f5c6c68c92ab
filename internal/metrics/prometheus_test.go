package metrics

import (
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Lucascis/discord-bot-sub000/internal/types"
)

func testSources(tracker *Tracker, status types.HealthStatus) Sources {
	return Sources{
		Tracker: tracker,
		Store: func() types.StoreHealth {
			return types.StoreHealth{
				Status:           status,
				Connected:        status == types.HealthStatusHealthy,
				BufferedMessages: 4,
				FallbackEntries:  7,
			}
		},
		Caches: func() []types.CacheHealth {
			return []types.CacheHealth{
				{Name: "search", L1Entries: 10, HitRate: 0.75},
				{Name: "settings", L1Entries: 2, HitRate: 1},
			}
		},
	}
}

func TestCollector(t *testing.T) {
	tracker := NewTracker()
	tracker.RecordHit(types.LayerL1, "a", time.Millisecond)
	tracker.RecordMiss(types.LayerL1, "b", time.Millisecond)
	tracker.RecordMiss(types.LayerL2, "b", time.Millisecond)
	tracker.RecordFallback("get")
	tracker.RecordFallback("publish")
	tracker.RecordMessageDropped(types.DropReasonOverflow)
	tracker.RecordCircuitBreakerStateChange("store", "closed", "open")

	c := NewCollector("staleguard", testSources(tracker, types.HealthStatusDegraded))

	t.Run("series counts", func(t *testing.T) {
		assert.Equal(t, 4, testutil.CollectAndCount(c, "staleguard_lookups_total"))
		assert.Equal(t, 2, testutil.CollectAndCount(c, "staleguard_fallback_total"))
		assert.Equal(t, 2, testutil.CollectAndCount(c, "staleguard_cache_l1_entries"))
		assert.Equal(t, 4, testutil.CollectAndCount(c, "staleguard_latency_ms"))
	})

	t.Run("values", func(t *testing.T) {
		expected := `
# HELP staleguard_breaker_state Last circuit breaker state (0 closed, 1 half-open, 2 open).
# TYPE staleguard_breaker_state gauge
staleguard_breaker_state{breaker="store"} 2
# HELP staleguard_dropped_messages_total Buffered publishes lost.
# TYPE staleguard_dropped_messages_total counter
staleguard_dropped_messages_total{reason="overflow"} 1
# HELP staleguard_store_buffered_messages Publishes waiting for replay.
# TYPE staleguard_store_buffered_messages gauge
staleguard_store_buffered_messages 4
# HELP staleguard_store_health_status 1 healthy, 2 degraded, 3 unhealthy.
# TYPE staleguard_store_health_status gauge
staleguard_store_health_status 2
`
		err := testutil.CollectAndCompare(c, strings.NewReader(expected),
			"staleguard_breaker_state",
			"staleguard_dropped_messages_total",
			"staleguard_store_buffered_messages",
			"staleguard_store_health_status",
		)
		assert.NoError(t, err)
	})

	t.Run("empty sources", func(t *testing.T) {
		assert.Zero(t, testutil.CollectAndCount(NewCollector("staleguard", Sources{})))
	})
}

func TestHandler(t *testing.T) {
	tracker := NewTracker()
	tracker.RecordHit(types.LayerL1, "a", time.Millisecond)

	health := func(status types.HealthStatus) func() types.HealthMetrics {
		return func() types.HealthMetrics {
			return types.HealthMetrics{Status: status, Timestamp: time.Now()}
		}
	}

	t.Run("metrics", func(t *testing.T) {
		reg := NewRegistry("staleguard", testSources(tracker, types.HealthStatusHealthy))
		srv := httptest.NewServer(Handler(reg, nil))
		defer srv.Close()

		resp, err := http.Get(srv.URL + "/metrics")
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusOK, resp.StatusCode)

		body, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		assert.Contains(t, string(body), `staleguard_lookups_total{layer="l1",result="hit"} 1`)
		assert.Contains(t, string(body), "go_goroutines")

		missing, err := http.Get(srv.URL + "/healthz")
		require.NoError(t, err)
		missing.Body.Close()
		assert.Equal(t, http.StatusNotFound, missing.StatusCode)
	})

	tests := []struct {
		name   string
		status types.HealthStatus
		code   int
	}{
		{"healthy", types.HealthStatusHealthy, http.StatusOK},
		{"degraded", types.HealthStatusDegraded, http.StatusOK},
		{"unhealthy", types.HealthStatusUnhealthy, http.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		t.Run("healthz "+tt.name, func(t *testing.T) {
			reg := NewRegistry("staleguard", Sources{Tracker: tracker})
			srv := httptest.NewServer(Handler(reg, health(tt.status)))
			defer srv.Close()

			resp, err := http.Get(srv.URL + "/healthz")
			require.NoError(t, err)
			defer resp.Body.Close()
			assert.Equal(t, tt.code, resp.StatusCode)

			var body map[string]any
			require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
			assert.Equal(t, tt.status.String(), body["status"])
		})
	}
}

func TestServe(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- Serve(ctx, addr, Handler(NewRegistry("staleguard", Sources{}), nil), nil)
	}()

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + addr + "/metrics")
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}
}
