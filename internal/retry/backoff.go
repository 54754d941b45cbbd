// Package retry implements the Retry/DLQ policy (§4.4): exponential
// backoff for transient job failures, with a cap on attempts before a
// job is dead-lettered instead of retried.
package retry

import "time"

// Policy configures the backoff curve and attempt ceiling.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// DefaultPolicy matches spec.md §4.4's stated defaults.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts: 3,
		BaseDelay:   2 * time.Second,
		MaxDelay:    20 * time.Second,
	}
}

// Delay returns how long to wait before the given attempt number
// (1-indexed: the first retry is attempt 2). It doubles the base delay
// per attempt and caps at MaxDelay, with no jitter — the worker
// supervisor's claim loop already staggers reclaim timing across
// consumers.
func (p Policy) Delay(attempt int) time.Duration {
	if attempt <= 1 {
		return p.BaseDelay
	}
	d := p.BaseDelay
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= p.MaxDelay {
			return p.MaxDelay
		}
	}
	return d
}

// Exhausted reports whether attempt has used up the retry budget and
// the job should be dead-lettered instead of retried again.
func (p Policy) Exhausted(attempt int) bool {
	return attempt >= p.MaxAttempts
}
