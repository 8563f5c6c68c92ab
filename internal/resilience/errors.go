package resilience

import (
	"context"
	"errors"

	"github.com/Lucascis/discord-bot-sub000/internal/types"
)

// Errors returned by the policy without calling the wrapped function.
var (
	ErrCircuitOpen     = types.ErrCircuitOpen
	ErrBulkheadFull    = types.ErrBulkheadFull
	ErrBulkheadTimeout = types.ErrBulkheadTimeout
)

// Rejection names the stage that refused a call: "breaker", "bulkhead", or
// "" when err came from the call itself.
func Rejection(err error) string {
	switch {
	case errors.Is(err, ErrCircuitOpen):
		return "breaker"
	case errors.Is(err, ErrBulkheadFull), errors.Is(err, ErrBulkheadTimeout):
		return "bulkhead"
	}
	return ""
}

func IsCircuitOpen(err error) bool { return Rejection(err) == "breaker" }
func IsBulkheadError(err error) bool { return Rejection(err) == "bulkhead" }
func IsRejection(err error) bool { return Rejection(err) != "" }

type neutralError struct{ err error }

func (e neutralError) Error() string { return e.err.Error() }
func (e neutralError) Unwrap() error { return e.err }

// Neutral marks err as saying nothing about the dependency. The breaker
// records neither a failure nor a success for it and returns err unwrapped.
func Neutral(err error) error {
	if err == nil {
		return nil
	}
	return neutralError{err: err}
}

// CallerGone reports whether err is ctx's own cancellation or deadline, that
// is, the caller gave up rather than the dependency failing.
func CallerGone(ctx context.Context, err error) bool {
	return err != nil && ctx.Err() != nil && errors.Is(err, ctx.Err())
}
