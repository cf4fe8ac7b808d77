package interceptor

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const metricsStartKey = "metrics.start"

var (
	metricsOnce       sync.Once
	toolCallCounter   metric.Int64Counter
	toolErrorCounter  metric.Int64Counter
	toolCallLatencyMs metric.Float64Histogram
)

func initToolMetrics() {
	metricsOnce.Do(func() {
		meter := otel.Meter("praxis/interceptor")
		toolCallCounter, _ = meter.Int64Counter(
			"praxis.tool.calls",
			metric.WithDescription("Tool invocations by tool name"),
		)
		toolErrorCounter, _ = meter.Int64Counter(
			"praxis.tool.errors",
			metric.WithDescription("Failed tool invocations by tool name"),
		)
		toolCallLatencyMs, _ = meter.Float64Histogram(
			"praxis.tool.latency",
			metric.WithDescription("Tool invocation latency in milliseconds"),
			metric.WithUnit("ms"),
		)
	})
}

// Metrics records OTEL counters and latency for every tool invocation.
type Metrics struct {
	Base
	ChainOrder int
}

// Name implements Interceptor.
func (m *Metrics) Name() string { return "metrics" }

// Order implements Interceptor.
func (m *Metrics) Order() int { return m.ChainOrder }

// PreInvoke implements Interceptor.
func (m *Metrics) PreInvoke(ctx context.Context, inv *Invocation) (bool, error) {
	initToolMetrics()
	inv.Values[metricsStartKey] = time.Now()
	toolCallCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("tool.name", inv.ToolName),
		attribute.String("agent", inv.AgentName),
	))
	return true, nil
}

// AfterCompletion implements Interceptor.
func (m *Metrics) AfterCompletion(ctx context.Context, inv *Invocation, err error) {
	if start, ok := inv.Values[metricsStartKey].(time.Time); ok && toolCallLatencyMs != nil {
		toolCallLatencyMs.Record(ctx, time.Since(start).Seconds()*1000, metric.WithAttributes(
			attribute.String("tool.name", inv.ToolName),
		))
	}
	if err != nil && toolErrorCounter != nil {
		toolErrorCounter.Add(ctx, 1, metric.WithAttributes(
			attribute.String("tool.name", inv.ToolName),
		))
	}
}
