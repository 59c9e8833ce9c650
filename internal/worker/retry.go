package worker

import (
	"context"
	"errors"
	"time"
)

// RetryPolicy decides whether a failed attempt is followed by another.
type RetryPolicy interface {
	ShouldRetry(err error, attempt int) bool
	Backoff(attempt int) time.Duration
}

// FixedRetryPolicy retries every failure except cancellation, up to
// MaxAttempts attempts in total, waiting Delay between attempts. A link that
// never became ready is retried like any other failure since the cause is
// remote latency.
type FixedRetryPolicy struct {
	MaxAttempts int
	Delay       time.Duration
}

// NewFixedRetryPolicy builds a policy, clamping maxAttempts to at least one.
func NewFixedRetryPolicy(maxAttempts int, delay time.Duration) FixedRetryPolicy {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	if delay < 0 {
		delay = 0
	}
	return FixedRetryPolicy{MaxAttempts: maxAttempts, Delay: delay}
}

// ShouldRetry reports whether attempt (1-based) may be followed by another.
func (p FixedRetryPolicy) ShouldRetry(err error, attempt int) bool {
	if err == nil || attempt >= p.MaxAttempts {
		return false
	}
	return !errors.Is(err, context.Canceled)
}

// Backoff returns the fixed delay.
func (p FixedRetryPolicy) Backoff(int) time.Duration {
	return p.Delay
}
