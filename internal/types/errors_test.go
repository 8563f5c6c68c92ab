package types

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCacheError(t *testing.T) {
	err := NewCacheError("Get", "guild:1", LayerL2, ErrCircuitOpen)

	assert.Equal(t, "Get on l2 [guild:1]: staleguard: circuit breaker open", err.Error())
	assert.True(t, IsCircuitOpen(err))
	assert.ErrorIs(t, err, ErrCircuitOpen)

	noKey := NewCacheError("Publish", "", LayerBuffer, errors.New("boom"))
	assert.Equal(t, "Publish on buffer: boom", noKey.Error())
}

func TestIsTransient(t *testing.T) {
	//nolint:govet // Test table - alignment not critical
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"circuit open", ErrCircuitOpen, true},
		{"network", errors.New("dial tcp: connection refused"), true},
		{"deadline", context.DeadlineExceeded, true},
		{"invalid key", fmt.Errorf("wrap: %w", ErrInvalidKey), false},
		{"invalid config", ErrInvalidConfig, false},
		{"serialization", NewCacheError("Set", "k", LayerL2, ErrSerializationFailed), false},
		{"closed", ErrClosed, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsTransient(tt.err))
		})
	}
}

func TestSecretString(t *testing.T) {
	s := NewSecretString("hunter2")

	assert.Equal(t, "hunter2", s.Value())
	assert.Equal(t, "[REDACTED]", s.String())
	assert.Equal(t, "[REDACTED]", fmt.Sprintf("%v", s))
	assert.Equal(t, "[REDACTED]", s.LogValue().String())

	data, err := s.MarshalJSON()
	assert.NoError(t, err)
	assert.JSONEq(t, `"[REDACTED]"`, string(data))

	var decoded SecretString
	assert.NoError(t, decoded.UnmarshalJSON([]byte(`"p@ss"`)))
	assert.Equal(t, "p@ss", decoded.Value())

	assert.NoError(t, decoded.UnmarshalText([]byte("plain")))
	assert.Equal(t, "plain", decoded.Value())

	assert.True(t, NewSecretString("").IsEmpty())
	assert.Equal(t, "", NewSecretString("").String())
}

func TestMetricsSnapshotRatios(t *testing.T) {
	s := MetricsSnapshot{L1Hits: 6, L1Misses: 4, L2Hits: 3, L2Misses: 1}

	assert.InDelta(t, 0.6, s.L1HitRatio(), 1e-9)
	assert.InDelta(t, 0.75, s.L2HitRatio(), 1e-9)
	assert.InDelta(t, 0.9, s.TotalHitRatio(), 1e-9)

	var empty MetricsSnapshot
	assert.Zero(t, empty.TotalHitRatio())
}
