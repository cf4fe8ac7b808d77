// SPDX-License-Identifier: Apache-2.0

package resilience

import "context"

// FallbackStrategy supplies a substitute result when the primary call
// fails. The coordinator uses this to degrade routing decisions to a
// safe default instead of failing the whole team run.
type FallbackStrategy interface {
	Execute(ctx context.Context, primaryErr error) (interface{}, error)
}

// FallbackFunc adapts a function to FallbackStrategy.
type FallbackFunc func(ctx context.Context, primaryErr error) (interface{}, error)

// Execute implements FallbackStrategy.
func (f FallbackFunc) Execute(ctx context.Context, primaryErr error) (interface{}, error) {
	return f(ctx, primaryErr)
}

// StaticFallback swallows the failure and returns a fixed value.
type StaticFallback struct {
	Value interface{}
}

// Execute implements FallbackStrategy.
func (s *StaticFallback) Execute(context.Context, error) (interface{}, error) {
	return s.Value, nil
}

// WithFallback runs fn and, on failure, hands the error to the
// fallback strategy.
func WithFallback(ctx context.Context, fn func() (interface{}, error), fallback FallbackStrategy) (interface{}, error) {
	value, err := fn()
	if err == nil {
		return value, nil
	}
	return fallback.Execute(ctx, err)
}
