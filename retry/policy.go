// Package retry implements the retry Policy contract: a function of
// (error, attempt) that decides whether a failed Step should be retried,
// and after what delay.
package retry

import "time"

// Decision is the outcome of a Policy.Decide call.
type Decision struct {
	// Retry is true if the operation should be retried after Delay.
	Retry bool
	// Delay before the retry becomes READY. Meaningful only if Retry is true.
	Delay time.Duration
}

// Stop is the zero-value "do not retry" decision.
var Stop = Decision{}

// Policy decides retry behavior for a failed Step attempt. Implementations
// decide from (err, attempt) alone, independent of wall-clock time or prior
// calls. Without jitter the same pair always yields the same Decision; the
// built-in FULL and HALF jitter modes draw a random delay within fixed
// bounds on each call.
type Policy interface {
	Decide(err error, attempt int) Decision
}
