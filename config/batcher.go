package config

import "time"

// BatcherConfig bounds the CheckpointBatcher's open batch size and lifetime.
type BatcherConfig struct {
	// MaxItems caps the number of OperationUpdates per backend call. 0 means
	// use the default.
	MaxItems int `json:"max_items"`

	// MaxBytes caps the estimated encoded size per backend call. Default is
	// ~750 KB, comfortably under typical backend per-request limits.
	MaxBytes int `json:"max_bytes"`

	// FlushDelay is the deadline-shrinking flush window: each Submit pulls
	// the flush deadline in to min(current, now+FlushDelay). Callers with
	// bursty sibling operations may want to widen this for more effective
	// batching.
	FlushDelay time.Duration `json:"flush_delay"`
}

const (
	DefaultBatcherMaxItems = 1000
	DefaultBatcherMaxBytes = 750 * 1024
)

// DefaultBatcherConfig returns a 30ms flush window, chosen wide enough to
// coalesce a burst of sibling operations (e.g. a ChildContext fan-out's
// START updates) into one backend call.
func DefaultBatcherConfig() BatcherConfig {
	return BatcherConfig{
		MaxItems:   DefaultBatcherMaxItems,
		MaxBytes:   DefaultBatcherMaxBytes,
		FlushDelay: 30 * time.Millisecond,
	}
}

func (c *BatcherConfig) Merge(source *BatcherConfig) {
	if source.MaxItems > 0 {
		c.MaxItems = source.MaxItems
	}
	if source.MaxBytes > 0 {
		c.MaxBytes = source.MaxBytes
	}
	if source.FlushDelay > 0 {
		c.FlushDelay = source.FlushDelay
	}
}
