package staleguard

import (
	"github.com/Lucascis/discord-bot-sub000/internal/types"
)

type (
	// HealthStatus represents the overall health state.
	HealthStatus = types.HealthStatus
	// HealthMetrics aggregates the store client and every cache.
	HealthMetrics = types.HealthMetrics
	// StoreHealth describes the store client.
	StoreHealth = types.StoreHealth
	// CacheHealth describes one cache.
	CacheHealth = types.CacheHealth
	// MetricsSnapshot contains a point-in-time view of recorded metrics.
	MetricsSnapshot = types.MetricsSnapshot
	// PublisherHealthMetrics is the flattened view pushed to metrics sinks.
	PublisherHealthMetrics = types.PublisherHealthMetrics
)

const (
	HealthStatusHealthy   = types.HealthStatusHealthy
	HealthStatusDegraded  = types.HealthStatusDegraded
	HealthStatusUnhealthy = types.HealthStatusUnhealthy
)
