package llm

import "time"

// RetryConfig holds the retry policy for gateway calls.
type RetryConfig struct {
	// MaxAttempts is the total number of attempts per call.
	MaxAttempts int

	// BackoffBase is the initial backoff duration, doubled on each retry.
	BackoffBase time.Duration

	// TransientMultiplier stretches the backoff for errors known to be
	// transient (rate limits, 5xx, timeouts) to give the provider room
	// to recover.
	TransientMultiplier float64

	// MaxBackoff caps a single sleep.
	MaxBackoff time.Duration
}

// DefaultRetryConfig returns the retry defaults used by the gateway.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:         3,
		BackoffBase:         2 * time.Second,
		TransientMultiplier: 2.0,
		MaxBackoff:          30 * time.Second,
	}
}

// Backoff computes the sleep after failed attempt k (zero-based):
// base * 2^k, multiplied by TransientMultiplier when the failure was
// transient, capped at MaxBackoff.
func (c RetryConfig) Backoff(attempt int, transient bool) time.Duration {
	backoff := c.BackoffBase << uint(attempt)
	if transient && c.TransientMultiplier > 0 {
		backoff = time.Duration(float64(backoff) * c.TransientMultiplier)
	}
	if c.MaxBackoff > 0 && backoff > c.MaxBackoff {
		backoff = c.MaxBackoff
	}
	return backoff
}
