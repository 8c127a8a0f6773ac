package crawler

import (
	"math"
	"time"
)

// ExponentialRetryPolicy bounds the detail fetcher's local retry loop. Only
// transient errors are retried; rate limits surface immediately.
type ExponentialRetryPolicy struct {
	maxAttempts int
	baseDelay   time.Duration
	maxDelay    time.Duration
}

// NewExponentialRetryPolicy builds a policy allowing maxAttempts total attempts
// with baseDelay*2^(n-1) between attempt n and n+1.
func NewExponentialRetryPolicy(maxAttempts int, baseDelay time.Duration) *ExponentialRetryPolicy {
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	if baseDelay < 0 {
		baseDelay = 0
	}
	return &ExponentialRetryPolicy{
		maxAttempts: maxAttempts,
		baseDelay:   baseDelay,
		maxDelay:    time.Minute,
	}
}

// MaxAttempts returns the total attempt budget.
func (p *ExponentialRetryPolicy) MaxAttempts() int {
	return p.maxAttempts
}

// ShouldRetry reports whether another attempt follows the given result.
// attempt is the number of attempts already made.
func (p *ExponentialRetryPolicy) ShouldRetry(outcome Outcome, attempt int) bool {
	return outcome == OutcomeTransient && attempt < p.maxAttempts
}

// Backoff returns the wait after the given number of attempts.
func (p *ExponentialRetryPolicy) Backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	delay := float64(p.baseDelay) * math.Pow(2, float64(attempt-1))
	if delay > float64(p.maxDelay) {
		return p.maxDelay
	}
	return time.Duration(delay)
}
