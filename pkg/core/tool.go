// Package core defines the shared contracts between the loop engine,
// the tool boundary, and the team coordinator.
package core

import (
	"context"
	"time"
)

// Tool is a concrete capability invoked by the loop. The engine never
// inspects tool internals, only name, arguments, result, and error.
type Tool interface {
	Name() string
	Call(ctx context.Context, args map[string]any) (any, error)
}

// DirectReturner marks tools whose output ends the run verbatim,
// bypassing a final reasoning step.
type DirectReturner interface {
	ReturnDirect() bool
}

// ToolFunc adapts a function to the Tool interface.
type ToolFunc struct {
	ToolName string
	Fn       func(ctx context.Context, args map[string]any) (any, error)
	Direct   bool
}

// Name returns the tool name.
func (t ToolFunc) Name() string { return t.ToolName }

// Call invokes the wrapped function.
func (t ToolFunc) Call(ctx context.Context, args map[string]any) (any, error) {
	return t.Fn(ctx, args)
}

// ReturnDirect reports whether the tool result should be returned verbatim.
func (t ToolFunc) ReturnDirect() bool { return t.Direct }

// WithTimeout wraps a tool so each call runs under its own deadline.
// Long-running tools are expected to honor context cancellation.
func WithTimeout(tool Tool, timeout time.Duration) Tool {
	if timeout <= 0 {
		return tool
	}
	return &timeoutTool{inner: tool, timeout: timeout}
}

type timeoutTool struct {
	inner   Tool
	timeout time.Duration
}

func (t *timeoutTool) Name() string { return t.inner.Name() }

func (t *timeoutTool) Call(ctx context.Context, args map[string]any) (any, error) {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()
	return t.inner.Call(ctx, args)
}

func (t *timeoutTool) ReturnDirect() bool {
	if dr, ok := t.inner.(DirectReturner); ok {
		return dr.ReturnDirect()
	}
	return false
}

// IsDirect reports whether a tool requests verbatim return of its result.
func IsDirect(tool Tool) bool {
	if dr, ok := tool.(DirectReturner); ok {
		return dr.ReturnDirect()
	}
	return false
}
