package config

import "time"

// RetryJitter selects the delay-jitter mode for exponential backoff.
type RetryJitter string

const (
	JitterNone RetryJitter = "NONE"
	JitterFull RetryJitter = "FULL"
	JitterHalf RetryJitter = "HALF"
)

// RetryConfig configures the default retry.Policy applied to Steps with no
// explicit policy (ExecutorConfig.Retry / "retryDefault").
type RetryConfig struct {
	// MaxAttempts is the maximum number of retry attempts (not counting the
	// initial attempt). 0 means use the DefaultRetryConfig value when merged
	// by durable.NewExecutor; passed directly to retry.FromConfig, 0 means
	// no retries.
	MaxAttempts int `json:"max_attempts"`

	// InitialDelay is the delay before the first retry. Must be >= 1s.
	InitialDelay time.Duration `json:"initial_delay"`

	// MaxDelay caps the computed backoff delay.
	MaxDelay time.Duration `json:"max_delay"`

	// Multiplier scales the delay each attempt; must be > 0.
	Multiplier float64 `json:"multiplier"`

	// Jitter selects NONE, FULL, or HALF jitter. Empty means NONE.
	Jitter RetryJitter `json:"jitter"`
}

// DefaultRetryConfig mirrors exponentialBackoff(5, 1s, 10s, 2.0, NONE).
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:  5,
		InitialDelay: time.Second,
		MaxDelay:     10 * time.Second,
		Multiplier:   2.0,
		Jitter:       JitterNone,
	}
}

func (c *RetryConfig) Merge(source *RetryConfig) {
	if source.MaxAttempts > 0 {
		c.MaxAttempts = source.MaxAttempts
	}
	if source.InitialDelay > 0 {
		c.InitialDelay = source.InitialDelay
	}
	if source.MaxDelay > 0 {
		c.MaxDelay = source.MaxDelay
	}
	if source.Multiplier > 0 {
		c.Multiplier = source.Multiplier
	}
	if source.Jitter != "" {
		c.Jitter = source.Jitter
	}
}
