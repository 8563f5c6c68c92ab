package metrics

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Lucascis/discord-bot-sub000/internal/types"
)

// Sources feeds the Prometheus collector. Nil fields are skipped.
type Sources struct {
	Tracker *Tracker
	Store   func() types.StoreHealth
	Caches  func() []types.CacheHealth
}

// Collector exposes a Tracker and the health views as const metrics,
// read fresh on every scrape.
type Collector struct {
	src Sources

	lookups       *prometheus.Desc
	operations    *prometheus.Desc
	errors        *prometheus.Desc
	fallbacks     *prometheus.Desc
	dropped       *prometheus.Desc
	transitions   *prometheus.Desc
	breakerState  *prometheus.Desc
	latency       *prometheus.Desc
	connected     *prometheus.Desc
	status        *prometheus.Desc
	buffered      *prometheus.Desc
	fallbackItems *prometheus.Desc
	reconnects    *prometheus.Desc
	cacheEntries  *prometheus.Desc
	cacheHitRatio *prometheus.Desc
}

func NewCollector(namespace string, src Sources) *Collector {
	desc := func(name, help string, labels ...string) *prometheus.Desc {
		return prometheus.NewDesc(prometheus.BuildFQName(namespace, "", name), help, labels, nil)
	}
	return &Collector{
		src:           src,
		lookups:       desc("lookups_total", "Cache lookups by layer and result.", "layer", "result"),
		operations:    desc("operations_total", "Cache writes and deletes.", "operation"),
		errors:        desc("errors_total", "Errors recorded by caches and the store client."),
		fallbacks:     desc("fallback_total", "Store operations answered by the degraded path.", "operation"),
		dropped:       desc("dropped_messages_total", "Buffered publishes lost.", "reason"),
		transitions:   desc("breaker_transitions_total", "Circuit breaker state changes."),
		breakerState:  desc("breaker_state", "Last circuit breaker state (0 closed, 1 half-open, 2 open).", "breaker"),
		latency:       desc("latency_ms", "Recent operation latency in milliseconds.", "quantile"),
		connected:     desc("store_connected", "1 when the backing store is reachable."),
		status:        desc("store_health_status", "1 healthy, 2 degraded, 3 unhealthy."),
		buffered:      desc("store_buffered_messages", "Publishes waiting for replay."),
		fallbackItems: desc("store_fallback_entries", "Entries in the local fallback cache."),
		reconnects:    desc("store_reconnect_attempts_total", "Reconnects reported by the transport."),
		cacheEntries:  desc("cache_l1_entries", "Entries held in L1.", "cache"),
		cacheHitRatio: desc("cache_hit_ratio", "Combined hit ratio of a cache.", "cache"),
	}
}

func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	for _, d := range []*prometheus.Desc{
		c.lookups, c.operations, c.errors, c.fallbacks, c.dropped,
		c.transitions, c.breakerState, c.latency, c.connected, c.status,
		c.buffered, c.fallbackItems, c.reconnects, c.cacheEntries, c.cacheHitRatio,
	} {
		ch <- d
	}
}

func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	if t := c.src.Tracker; t != nil {
		c.collectTracker(ch, t)
	}

	if c.src.Store != nil {
		h := c.src.Store()
		ch <- prometheus.MustNewConstMetric(c.connected, prometheus.GaugeValue, boolValue(h.Connected))
		ch <- prometheus.MustNewConstMetric(c.status, prometheus.GaugeValue, float64(h.Status))
		ch <- prometheus.MustNewConstMetric(c.buffered, prometheus.GaugeValue, float64(h.BufferedMessages))
		ch <- prometheus.MustNewConstMetric(c.fallbackItems, prometheus.GaugeValue, float64(h.FallbackEntries))
		ch <- prometheus.MustNewConstMetric(c.reconnects, prometheus.CounterValue, float64(h.ReconnectAttempts))
	}

	if c.src.Caches != nil {
		for _, h := range c.src.Caches() {
			ch <- prometheus.MustNewConstMetric(c.cacheEntries, prometheus.GaugeValue, float64(h.L1Entries), h.Name)
			ch <- prometheus.MustNewConstMetric(c.cacheHitRatio, prometheus.GaugeValue, h.HitRate, h.Name)
		}
	}
}

func (c *Collector) collectTracker(ch chan<- prometheus.Metric, t *Tracker) {
	s := t.Snapshot()

	counter := func(d *prometheus.Desc, v int64, labels ...string) {
		ch <- prometheus.MustNewConstMetric(d, prometheus.CounterValue, float64(v), labels...)
	}
	counter(c.lookups, s.L1Hits, types.LayerL1, "hit")
	counter(c.lookups, s.L1Misses, types.LayerL1, "miss")
	counter(c.lookups, s.L2Hits, types.LayerL2, "hit")
	counter(c.lookups, s.L2Misses, types.LayerL2, "miss")
	counter(c.operations, s.SetCount, "set")
	counter(c.operations, s.DeleteCount, "delete")
	counter(c.errors, s.ErrorCount)
	counter(c.transitions, s.BreakerTransitions)

	for op, n := range t.FallbacksByOperation() {
		counter(c.fallbacks, n, op)
	}
	for reason, n := range t.DroppedByReason() {
		counter(c.dropped, n, reason)
	}
	for name, state := range t.BreakerStates() {
		ch <- prometheus.MustNewConstMetric(c.breakerState, prometheus.GaugeValue, breakerStateValue(state), name)
	}

	gauge := func(v float64, q string) {
		ch <- prometheus.MustNewConstMetric(c.latency, prometheus.GaugeValue, v, q)
	}
	gauge(s.AvgLatencyMs, "avg")
	gauge(s.P50LatencyMs, "0.5")
	gauge(s.P95LatencyMs, "0.95")
	gauge(s.P99LatencyMs, "0.99")
}

func breakerStateValue(state string) float64 {
	switch state {
	case "half-open":
		return 1
	case "open":
		return 2
	default:
		return 0
	}
}

func boolValue(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

// NewRegistry returns a registry holding the collector plus the Go runtime
// and process collectors.
func NewRegistry(namespace string, src Sources) *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(NewCollector(namespace, src))
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	reg.MustRegister(collectors.NewGoCollector())
	return reg
}

// Handler serves reg on /metrics and, when health is non-nil, a JSON health
// report on /healthz that answers 503 once the status is unhealthy.
func Handler(reg *prometheus.Registry, health func() types.HealthMetrics) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	if health != nil {
		r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
			h := health()
			w.Header().Set("Content-Type", "application/json")
			if h.Status == types.HealthStatusUnhealthy {
				w.WriteHeader(http.StatusServiceUnavailable)
			}
			_ = json.NewEncoder(w).Encode(map[string]any{
				"status":    h.Status.String(),
				"timestamp": h.Timestamp,
				"store":     h.Store,
				"caches":    h.Caches,
			})
		})
	}
	return r
}

// Serve runs an HTTP server for h on addr until ctx is done.
func Serve(ctx context.Context, addr string, h http.Handler, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Serving Prometheus metrics", "address", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		<-errCh
		return nil
	}
}
