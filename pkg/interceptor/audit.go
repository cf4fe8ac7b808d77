package interceptor

import (
	"context"
	"log/slog"
	"time"
)

const auditStartKey = "audit.start"

// Audit emits structured logs around every tool invocation.
type Audit struct {
	Base
	Logger     *slog.Logger
	ChainOrder int
}

// Name implements Interceptor.
func (a *Audit) Name() string { return "audit" }

// Order implements Interceptor.
func (a *Audit) Order() int { return a.ChainOrder }

func (a *Audit) logger() *slog.Logger {
	if a.Logger != nil {
		return a.Logger
	}
	return slog.Default()
}

// PreInvoke implements Interceptor.
func (a *Audit) PreInvoke(ctx context.Context, inv *Invocation) (bool, error) {
	inv.Values[auditStartKey] = time.Now()
	a.logger().Info("tool.invoke.start",
		slog.String("session_id", inv.SessionID),
		slog.String("agent", inv.AgentName),
		slog.String("tool_name", inv.ToolName),
	)
	return true, nil
}

// AfterCompletion implements Interceptor.
func (a *Audit) AfterCompletion(ctx context.Context, inv *Invocation, err error) {
	attrs := []any{
		slog.String("session_id", inv.SessionID),
		slog.String("agent", inv.AgentName),
		slog.String("tool_name", inv.ToolName),
	}
	if start, ok := inv.Values[auditStartKey].(time.Time); ok {
		attrs = append(attrs, slog.Duration("duration", time.Since(start)))
	}
	if err != nil {
		attrs = append(attrs, slog.String("error", err.Error()))
		a.logger().Warn("tool.invoke.error", attrs...)
		return
	}
	a.logger().Info("tool.invoke.complete", attrs...)
}
