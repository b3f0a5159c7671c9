package retry

import (
	"math/rand/v2"
	"time"

	"github.com/tailored-agentic-units/durable-kernel/config"
)

// noRetryPolicy always stops.
type noRetryPolicy struct{}

// NoRetry returns a Policy that never retries.
func NoRetry() Policy {
	return noRetryPolicy{}
}

func (noRetryPolicy) Decide(err error, attempt int) Decision {
	return Stop
}

// fixedDelayPolicy retries up to maxAttempts times with a constant delay.
type fixedDelayPolicy struct {
	maxAttempts int
	delay       time.Duration
}

// FixedDelay retries up to maxAttempts times, each after delay (>= 1s).
func FixedDelay(maxAttempts int, delay time.Duration) Policy {
	if delay < time.Second {
		delay = time.Second
	}
	return fixedDelayPolicy{maxAttempts: maxAttempts, delay: delay}
}

func (p fixedDelayPolicy) Decide(err error, attempt int) Decision {
	if attempt >= p.maxAttempts {
		return Stop
	}
	return Decision{Retry: true, Delay: p.delay}
}

// exponentialBackoffPolicy implements
// raw = min(max, initial * multiplier^attempt) with jitter applied on top.
type exponentialBackoffPolicy struct {
	maxAttempts int
	initial     time.Duration
	max         time.Duration
	multiplier  float64
	jitter      config.RetryJitter
}

// ExponentialBackoff retries up to maxAttempts times with exponentially
// increasing delay, clamped to max and jittered per mode. initial and max
// must each be >= 1s; multiplier must be > 0.
func ExponentialBackoff(maxAttempts int, initial, max time.Duration, multiplier float64, jitter config.RetryJitter) Policy {
	if initial < time.Second {
		initial = time.Second
	}
	if max < time.Second {
		max = time.Second
	}
	if multiplier <= 0 {
		multiplier = 1
	}
	return exponentialBackoffPolicy{
		maxAttempts: maxAttempts,
		initial:     initial,
		max:         max,
		multiplier:  multiplier,
		jitter:      jitter,
	}
}

// FromConfig builds the Policy described by cfg, used as the executor's
// default retry policy for Steps with no explicit one.
func FromConfig(cfg config.RetryConfig) Policy {
	return ExponentialBackoff(cfg.MaxAttempts, cfg.InitialDelay, cfg.MaxDelay, cfg.Multiplier, cfg.Jitter)
}

func (p exponentialBackoffPolicy) Decide(err error, attempt int) Decision {
	if attempt >= p.maxAttempts {
		return Stop
	}

	raw := rawDelay(p.initial, p.max, p.multiplier, attempt)
	return Decision{Retry: true, Delay: applyJitter(raw, p.jitter)}
}

func rawDelay(initial, max time.Duration, multiplier float64, attempt int) time.Duration {
	scaled := float64(initial)
	for i := 0; i < attempt; i++ {
		scaled *= multiplier
		if scaled >= float64(max) {
			return max
		}
	}
	d := time.Duration(scaled)
	if d > max {
		return max
	}
	return d
}

func applyJitter(raw time.Duration, mode config.RetryJitter) time.Duration {
	const floor = time.Second

	switch mode {
	case config.JitterFull:
		if raw <= 0 {
			return floor
		}
		d := time.Duration(rand.Int64N(int64(raw)))
		if d < floor {
			return floor
		}
		return d
	case config.JitterHalf:
		half := raw / 2
		if half <= 0 {
			return floor
		}
		span := raw - half
		d := half
		if span > 0 {
			d += time.Duration(rand.Int64N(int64(span)))
		}
		if d < floor {
			return floor
		}
		return d
	default: // config.JitterNone and unrecognized values
		return raw
	}
}
