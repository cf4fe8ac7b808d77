// SPDX-License-Identifier: Apache-2.0
package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/tessellate/praxis/pkg/errors"
)

// ErrorMetrics counts terminal failures and recoveries by error code.
// A nil receiver is a no-op, so callers can hold one unconditionally
// and skip the error path when meter setup failed.
type ErrorMetrics struct {
	failures   metric.Int64Counter
	recoveries metric.Int64Counter
}

// NewErrorMetrics registers the error counters on the global meter.
func NewErrorMetrics(_ context.Context) (*ErrorMetrics, error) {
	meter := otel.Meter("praxis/errors")

	failures, err := meter.Int64Counter(
		"praxis.errors.total",
		metric.WithDescription("Terminal errors by code and component"),
	)
	if err != nil {
		return nil, err
	}
	recoveries, err := meter.Int64Counter(
		"praxis.errors.recovered",
		metric.WithDescription("Errors absorbed by retry or fallback, by code"),
	)
	if err != nil {
		return nil, err
	}
	return &ErrorMetrics{failures: failures, recoveries: recoveries}, nil
}

// RecordErrorMetric counts one failure. Praxis errors contribute their
// code and recoverable flag; anything else counts as UNKNOWN.
func (em *ErrorMetrics) RecordErrorMetric(ctx context.Context, err error, component string) {
	if em == nil || err == nil {
		return
	}

	code, recoverable := "UNKNOWN", "unknown"
	if pe := errors.AsPraxisError(err); pe != nil {
		code = string(pe.Code)
		recoverable = pe.RecoverableString()
	}
	em.failures.Add(ctx, 1, metric.WithAttributes(
		attribute.String("error.code", code),
		attribute.String("component", component),
		attribute.String("recoverable", recoverable),
	))
}

// RecordRecovery counts an error that was absorbed before it could
// fail the run.
func (em *ErrorMetrics) RecordRecovery(ctx context.Context, code errors.ErrorCode) {
	if em == nil {
		return
	}
	em.recoveries.Add(ctx, 1, metric.WithAttributes(
		attribute.String("error.code", string(code)),
	))
}
