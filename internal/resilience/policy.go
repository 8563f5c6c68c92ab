package resilience

import (
	"context"

	"github.com/Lucascis/discord-bot-sub000/internal/config"
)

// BulkheadExecutor defines the interface for bulkhead operations.
type BulkheadExecutor interface {
	Execute(ctx context.Context, fn func(context.Context) (any, error)) (any, error)
	Stats() BulkheadStats
}

// Policy guards backing-store calls with an optional bulkhead in front of a
// circuit breaker.
type Policy struct {
	breaker  *CircuitBreaker
	bulkhead BulkheadExecutor
}

// NewPolicy wraps breaker with the bulkhead described by cfg.
func NewPolicy(breaker *CircuitBreaker, cfg config.BulkheadConfig) *Policy {
	p := &Policy{breaker: breaker, bulkhead: DisabledBulkhead{}}
	if cfg.Enabled {
		p.bulkhead = NewBulkhead(cfg)
	}
	return p
}

// Execute runs fn as Bulkhead -> Circuit Breaker -> Operation.
//
// A bulkhead rejection never reaches the breaker: it says nothing about the
// backing store. Neither does a call abandoned by its own context. Both are
// still handed to fallback like any other failure.
func (p *Policy) Execute(ctx context.Context, fn func(context.Context) (any, error), fallback func(error) (any, error)) (any, error) {
	result, err := p.bulkhead.Execute(ctx, func(ctx context.Context) (any, error) {
		return p.breaker.Execute(func() (any, error) {
			res, err := fn(ctx)
			if CallerGone(ctx, err) {
				return res, Neutral(err)
			}
			return res, err
		})
	})
	if err != nil && fallback != nil {
		return fallback(err)
	}
	return result, err
}

// Breaker returns the circuit breaker component.
func (p *Policy) Breaker() *CircuitBreaker {
	return p.breaker
}

// BulkheadStats returns bulkhead statistics; zero when the bulkhead is disabled.
func (p *Policy) BulkheadStats() BulkheadStats {
	return p.bulkhead.Stats()
}
