// SPDX-License-Identifier: Apache-2.0

package resilience

import (
	"context"
	"sync"
	"time"

	"github.com/tessellate/praxis/pkg/errors"
)

// CircuitBreakerState is the breaker's position.
type CircuitBreakerState string

const (
	StateClosed   CircuitBreakerState = "closed"
	StateOpen     CircuitBreakerState = "open"
	StateHalfOpen CircuitBreakerState = "half-open"
)

// CircuitBreakerConfig sets the thresholds for a breaker. Zero fields
// take defaults: 5 failures to open, 2 successes to close, 30s before
// probing a half-open call.
type CircuitBreakerConfig struct {
	Name             string
	FailureThreshold int
	SuccessThreshold int
	Timeout          time.Duration
}

// CircuitBreaker fails fast once a backend has proven unhealthy, so a
// dead MCP server costs one rejected call instead of a full retry
// sequence per tool invocation.
type CircuitBreaker struct {
	config CircuitBreakerConfig

	mu        sync.Mutex
	state     CircuitBreakerState
	failures  int
	successes int
	openedAt  time.Time
}

// NewCircuitBreaker builds a closed breaker with defaults applied.
func NewCircuitBreaker(config CircuitBreakerConfig) *CircuitBreaker {
	if config.FailureThreshold < 1 {
		config.FailureThreshold = 5
	}
	if config.SuccessThreshold < 1 {
		config.SuccessThreshold = 2
	}
	if config.Timeout == 0 {
		config.Timeout = 30 * time.Second
	}
	if config.Name == "" {
		config.Name = "circuit_breaker"
	}
	return &CircuitBreaker{config: config, state: StateClosed}
}

// Call runs fn unless the breaker is open. An open breaker rejects
// with a recoverable CodeInternal error; after the timeout one probe
// call is let through half-open.
func (cb *CircuitBreaker) Call(_ context.Context, fn func() error) error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state == StateOpen {
		if time.Since(cb.openedAt) <= cb.config.Timeout {
			return errors.New(errors.CodeInternal, "circuit breaker open", nil).
				WithContext("breaker", cb.config.Name).
				WithRecoverable(true)
		}
		cb.state = StateHalfOpen
		cb.failures = 0
		cb.successes = 0
	}

	err := fn()
	if err != nil {
		cb.onFailure()
	} else {
		cb.onSuccess()
	}
	return err
}

// onFailure and onSuccess run under cb.mu.

func (cb *CircuitBreaker) onFailure() {
	cb.failures++
	if cb.state == StateHalfOpen || cb.failures >= cb.config.FailureThreshold {
		cb.state = StateOpen
		cb.openedAt = time.Now()
		cb.failures = 0
		cb.successes = 0
	}
}

func (cb *CircuitBreaker) onSuccess() {
	switch cb.state {
	case StateHalfOpen:
		cb.successes++
		if cb.successes >= cb.config.SuccessThreshold {
			cb.state = StateClosed
			cb.failures = 0
			cb.successes = 0
		}
	case StateClosed:
		cb.failures = 0
	}
}

// State reports the breaker's current position.
func (cb *CircuitBreaker) State() CircuitBreakerState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Reset forces the breaker closed, clearing all counters.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.state = StateClosed
	cb.failures = 0
	cb.successes = 0
}
