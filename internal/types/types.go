// Package types holds the definitions shared by every staleguard package.
// It exists so that pkg/staleguard can re-export them without import cycles.
package types

// Layer names used in metrics and errors.
const (
	LayerL1       = "l1"
	LayerL2       = "l2"
	LayerFallback = "fallback"
	LayerBuffer   = "buffer"
)

// Reasons passed to MetricsRecorder.RecordMessageDropped.
const (
	DropReasonOverflow = "overflow"
	DropReasonExpired  = "expired"
)
