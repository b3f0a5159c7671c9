// Package config holds plain, JSON-tag-annotated configuration structs for
// every runtime tunable, following the tau-core pattern already established
// in this codebase: config structs are used only during Executor/component
// construction, then resolved into concrete domain objects (a Codec, a
// CheckpointClient, a RetryPolicy) via the string-keyed registries in their
// owning packages.
package config

// ExecutorConfig is the top-level configuration consumed by durable.Executor.
//
// Example JSON:
//
//	{
//	  "codec": "json",
//	  "client": "memory",
//	  "suppress_replay_logs": true,
//	  "max_response_bytes": 6291406
//	}
type ExecutorConfig struct {
	// Codec names the registered codec.Codec to use (default "json").
	Codec string `json:"codec"`

	// Client names the registered checkpoint.Client to use (default "memory").
	Client string `json:"client"`

	// Observer specifies which observability.Observer implementation to use.
	Observer string `json:"observer"`

	// SuppressReplayLogsNil controls whether Observer emissions are gated
	// on Context.IsReplaying. Use SuppressReplayLogs() to access; defaults
	// to true when nil.
	SuppressReplayLogsNil *bool `json:"suppress_replay_logs"`

	// MaxResponseBytes is the compute-worker response envelope budget.
	// Handler results at or above this size are checkpointed as the
	// EXECUTION operation's SUCCEED payload instead of being returned
	// inline; Step payloads are not checked against it. 0 means use the
	// default.
	MaxResponseBytes int `json:"max_response_bytes"`

	Retry   RetryConfig   `json:"retry"`
	Batcher BatcherConfig `json:"batcher"`
	Poll    PollConfig    `json:"poll"`
}

// DefaultMaxResponseBytes is 6 MB minus a 50-byte envelope overhead
// allowance.
const DefaultMaxResponseBytes = 6*1024*1024 - 50

func (c *ExecutorConfig) SuppressReplayLogs() bool {
	if c.SuppressReplayLogsNil == nil {
		return true
	}
	return *c.SuppressReplayLogsNil
}

// DefaultExecutorConfig returns sensible defaults for a durable.Executor.
func DefaultExecutorConfig() ExecutorConfig {
	return ExecutorConfig{
		Codec:            "json",
		Client:           "memory",
		Observer:         "slog",
		MaxResponseBytes: DefaultMaxResponseBytes,
		Retry:            DefaultRetryConfig(),
		Batcher:          DefaultBatcherConfig(),
		Poll:             DefaultPollConfig(),
	}
}

// Merge overlays non-zero fields of source onto c.
func (c *ExecutorConfig) Merge(source *ExecutorConfig) {
	if source.Codec != "" {
		c.Codec = source.Codec
	}
	if source.Client != "" {
		c.Client = source.Client
	}
	if source.Observer != "" {
		c.Observer = source.Observer
	}
	if source.SuppressReplayLogsNil != nil {
		c.SuppressReplayLogsNil = source.SuppressReplayLogsNil
	}
	if source.MaxResponseBytes > 0 {
		c.MaxResponseBytes = source.MaxResponseBytes
	}
	c.Retry.Merge(&source.Retry)
	c.Batcher.Merge(&source.Batcher)
	c.Poll.Merge(&source.Poll)
}
