package metrics

import (
	"context"
	"log/slog"
	"slices"
	"time"

	"github.com/Lucascis/discord-bot-sub000/internal/types"
)

// LoggingPublisher writes metrics to a slog logger. Gauges, counters and
// timings go out at debug, events and health batches at info.
type LoggingPublisher struct {
	logger   *slog.Logger
	baseTags []string
}

func NewLoggingPublisher(logger *slog.Logger, baseTags ...string) *LoggingPublisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &LoggingPublisher{
		logger:   logger.With("component", "metrics"),
		baseTags: baseTags,
	}
}

func (p *LoggingPublisher) Gauge(name string, value float64, tags ...string) {
	p.logger.Debug("gauge", "name", name, "value", value, "tags", p.mergeTags(tags))
}

func (p *LoggingPublisher) Incr(name string, tags ...string) {
	p.logger.Debug("incr", "name", name, "tags", p.mergeTags(tags))
}

func (p *LoggingPublisher) Count(name string, value int64, tags ...string) {
	p.logger.Debug("count", "name", name, "value", value, "tags", p.mergeTags(tags))
}

func (p *LoggingPublisher) Histogram(name string, value float64, tags ...string) {
	p.logger.Debug("histogram", "name", name, "value", value, "tags", p.mergeTags(tags))
}

func (p *LoggingPublisher) Timing(name string, duration time.Duration, tags ...string) {
	p.logger.Debug("timing",
		"name", name,
		"duration_ms", toMillis(duration),
		"tags", p.mergeTags(tags),
	)
}

// Event logs an event. Error alerts are logged at warn.
func (p *LoggingPublisher) Event(title, text, alertType string, tags ...string) {
	level := slog.LevelInfo
	if alertType == "error" {
		level = slog.LevelWarn
	}
	p.logger.Log(context.Background(), level, "event",
		"title", title,
		"text", text,
		"alert_type", alertType,
		"tags", p.mergeTags(tags),
	)
}

// PublishHealthMetrics logs a batch of health metrics.
func (p *LoggingPublisher) PublishHealthMetrics(m *types.PublisherHealthMetrics) {
	if m == nil {
		return
	}

	p.logger.Info("health_metrics",
		"l1_entries", m.L1Entries,
		"l1_estimated_bytes", m.L1EstimatedBytes,
		"hit_ratio", m.HitRatio,
		"avg_latency_ms", m.AverageLatencyMs,
		"buffered_messages", m.BufferedMessages,
		"dropped_messages", m.DroppedMessages,
		"fallback_entries", m.FallbackEntries,
		"breaker_open", m.BreakerOpen,
		"is_connected", m.IsConnected,
	)
}

func (p *LoggingPublisher) Close() error {
	return nil
}

func (p *LoggingPublisher) mergeTags(tags []string) []string {
	if len(tags) == 0 {
		return p.baseTags
	}
	if len(p.baseTags) == 0 {
		return tags
	}
	return slices.Concat(p.baseTags, tags)
}

var _ types.Publisher = (*LoggingPublisher)(nil)
