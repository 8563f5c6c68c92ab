package staleguard

import (
	"github.com/Lucascis/discord-bot-sub000/internal/types"
)

// CacheError represents a failed operation on one layer.
type CacheError = types.CacheError

var (
	// ErrCacheMiss indicates that a requested key was not found.
	ErrCacheMiss = types.ErrCacheMiss
	// ErrStoreUnavailable indicates the backing store could not be reached.
	ErrStoreUnavailable = types.ErrStoreUnavailable
	// ErrCircuitOpen indicates that the circuit breaker is open.
	ErrCircuitOpen = types.ErrCircuitOpen
	// ErrClosed indicates the component has been closed.
	ErrClosed = types.ErrClosed
	// ErrBulkheadFull indicates that the bulkhead is at capacity.
	ErrBulkheadFull = types.ErrBulkheadFull
	// ErrBulkheadTimeout indicates that the bulkhead acquisition timed out.
	ErrBulkheadTimeout = types.ErrBulkheadTimeout
	// ErrSerializationFailed indicates that a value could not be encoded or decoded.
	ErrSerializationFailed = types.ErrSerializationFailed
	// ErrInvalidKey indicates that a cache key is invalid.
	ErrInvalidKey = types.ErrInvalidKey
	// ErrInvalidConfig indicates the configuration failed validation.
	ErrInvalidConfig = types.ErrInvalidConfig
)

func IsCacheMiss(err error) bool {
	return types.IsCacheMiss(err)
}

func IsCircuitOpen(err error) bool {
	return types.IsCircuitOpen(err)
}

func IsInvalidKey(err error) bool {
	return types.IsInvalidKey(err)
}

// IsTransient reports whether err is a recoverable store failure rather than
// a programmer error or a closed component.
func IsTransient(err error) bool {
	return types.IsTransient(err)
}
