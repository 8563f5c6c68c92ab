package metrics

import "fmt"

// Tag creates a formatted DataDog tag string in "key:value" format.
func Tag(key, value string) string {
	return fmt.Sprintf("%s:%s", key, value)
}

// LayerTag creates a cache layer tag (l1/l2/fallback).
func LayerTag(layer string) string {
	return Tag("layer", layer)
}

// OperationTag creates an operation tag.
func OperationTag(op string) string {
	return Tag("operation", op)
}

// CacheTag names the cache profile a metric belongs to.
func CacheTag(name string) string {
	return Tag("cache", name)
}

// BreakerTag names the circuit breaker.
func BreakerTag(name string) string {
	return Tag("breaker", name)
}

// CircuitStateTag creates a circuit breaker state tag.
func CircuitStateTag(state string) string {
	return Tag("circuit_state", state)
}

// ReasonTag explains why a buffered message was dropped.
func ReasonTag(reason string) string {
	return Tag("reason", reason)
}
