package types

import (
	"errors"
	"fmt"
)

var (
	ErrCacheMiss           = errors.New("staleguard: key not found")
	ErrStoreUnavailable    = errors.New("staleguard: backing store unavailable")
	ErrCircuitOpen         = errors.New("staleguard: circuit breaker open")
	ErrClosed              = errors.New("staleguard: closed")
	ErrBulkheadFull        = errors.New("staleguard: bulkhead at capacity")
	ErrBulkheadTimeout     = errors.New("staleguard: bulkhead timeout")
	ErrSerializationFailed = errors.New("staleguard: serialization failed")
	ErrInvalidKey          = errors.New("staleguard: invalid key")
	ErrInvalidConfig       = errors.New("staleguard: invalid configuration")
)

// CacheError annotates a failure with the operation, key and layer it happened on.
type CacheError struct {
	Op    string
	Key   string
	Layer string
	Err   error
}

func (e *CacheError) Error() string {
	if e.Key != "" {
		return fmt.Sprintf("%s on %s [%s]: %v", e.Op, e.Layer, e.Key, e.Err)
	}
	return fmt.Sprintf("%s on %s: %v", e.Op, e.Layer, e.Err)
}

func (e *CacheError) Unwrap() error {
	return e.Err
}

func NewCacheError(op, key, layer string, err error) *CacheError {
	return &CacheError{
		Op:    op,
		Key:   key,
		Layer: layer,
		Err:   err,
	}
}

func IsCacheMiss(err error) bool {
	return errors.Is(err, ErrCacheMiss)
}

func IsCircuitOpen(err error) bool {
	return errors.Is(err, ErrCircuitOpen)
}

func IsInvalidKey(err error) bool {
	return errors.Is(err, ErrInvalidKey)
}

func IsSerializationFailed(err error) bool {
	return errors.Is(err, ErrSerializationFailed)
}

// IsTransient reports whether err belongs to the recoverable class: anything
// that is not a programmer error (bad key, bad config, bad payload) or a
// closed component.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	switch {
	case errors.Is(err, ErrInvalidKey),
		errors.Is(err, ErrInvalidConfig),
		errors.Is(err, ErrSerializationFailed),
		errors.Is(err, ErrClosed):
		return false
	}

	return true
}
