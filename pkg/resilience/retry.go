// SPDX-License-Identifier: Apache-2.0

// Package resilience wraps unreliable calls — model backends, MCP
// servers — in retry, fallback, and circuit breaker policies.
package resilience

import (
	"context"
	"math"
	"math/rand"
	"time"

	"github.com/tessellate/praxis/pkg/errors"
)

// RetryConfig is an immutable retry policy. The With* builders return
// modified copies so a shared default can be specialized per call site.
type RetryConfig struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64

	// Jitter spreads the backoff by ±Jitter fraction of the delay.
	Jitter float64

	// Retryable decides whether a failed attempt is worth repeating.
	// When nil, praxis errors are retried per their Recoverable flag
	// and plain errors are always retried.
	Retryable func(error) bool
}

// DefaultRetryConfig is the policy model calls start from: three
// attempts, 100ms initial delay doubling up to 10s, 10% jitter.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:  3,
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     10 * time.Second,
		Multiplier:   2.0,
		Jitter:       0.1,
	}
}

// WithMaxAttempts returns a copy with the attempt budget set.
func (rc RetryConfig) WithMaxAttempts(n int) RetryConfig {
	rc.MaxAttempts = n
	return rc
}

// WithInitialDelay returns a copy with the first backoff delay set.
func (rc RetryConfig) WithInitialDelay(d time.Duration) RetryConfig {
	rc.InitialDelay = d
	return rc
}

// WithMaxDelay returns a copy with the backoff cap set.
func (rc RetryConfig) WithMaxDelay(d time.Duration) RetryConfig {
	rc.MaxDelay = d
	return rc
}

// WithRetryable returns a copy with a custom retry predicate.
func (rc RetryConfig) WithRetryable(fn func(error) bool) RetryConfig {
	rc.Retryable = fn
	return rc
}

// Do runs fn until it succeeds, the attempt budget runs out, or an
// attempt fails with a non-retryable error. The last error is returned
// on exhaustion; context cancellation during backoff aborts with
// CodeContextLost.
func (rc RetryConfig) Do(ctx context.Context, fn func() error) error {
	attempts := rc.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	retryable := rc.Retryable
	if retryable == nil {
		retryable = defaultRetryable
	}

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return errors.New(errors.CodeContextLost, "context canceled during retry", ctx.Err()).
					WithContext("attempt", attempt).
					WithContext("max_attempts", attempts)
			case <-time.After(rc.backoff(attempt)):
			}
		}

		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		if !retryable(lastErr) {
			return lastErr
		}
	}
	return lastErr
}

// backoff computes the delay before the given attempt (1-based).
func (rc RetryConfig) backoff(attempt int) time.Duration {
	multiplier := rc.Multiplier
	if multiplier == 0 {
		multiplier = 2.0
	}

	delay := time.Duration(float64(rc.InitialDelay) * math.Pow(multiplier, float64(attempt)))
	if rc.MaxDelay > 0 && delay > rc.MaxDelay {
		delay = rc.MaxDelay
	}
	if rc.Jitter > 0 {
		spread := float64(delay) * rc.Jitter * (2*rand.Float64() - 1)
		delay += time.Duration(spread)
		if delay < 0 {
			delay = 0
		}
	}
	return delay
}

// defaultRetryable honors the Recoverable flag on praxis errors and
// retries everything else. Transport errors from model backends arrive
// as plain errors, so treating unknown errors as transient is the
// useful default.
func defaultRetryable(err error) bool {
	if err == nil {
		return false
	}
	if pe := errors.AsPraxisError(err); pe != nil {
		return pe.Recoverable
	}
	return true
}
