// Package interceptor applies ordered cross-cutting handlers around one
// unit of work (a tool call), with guaranteed cleanup for every handler
// that opened, whichever path (success, abort, error) the work took.
package interceptor

import (
	"context"

	"github.com/tessellate/praxis/pkg/hitl"
)

// Invocation carries the unit of work through the chain. Interceptors may
// rewrite Args before execution and attach a pending approval task to
// signal suspension.
type Invocation struct {
	SessionID string
	AgentName string
	ToolName  string
	Args      map[string]any

	// PendingTask is attached by an interceptor that wants the run
	// suspended for human approval instead of executing the tool.
	PendingTask *hitl.Task

	// Values is per-invocation scratch space for interceptor state
	// (timers, span handles) shared between hook phases.
	Values map[string]any
}

// Interceptor receives lifecycle callbacks around a tool invocation.
// PreInvoke returning false aborts the invocation; an interceptor only
// ever receives later callbacks for invocations it opened by returning
// true.
type Interceptor interface {
	Name() string
	Order() int
	PreInvoke(ctx context.Context, inv *Invocation) (bool, error)
	PostInvoke(ctx context.Context, inv *Invocation, result any) (any, error)
	OnError(ctx context.Context, inv *Invocation, err error) any
	AfterCompletion(ctx context.Context, inv *Invocation, err error)
}

// Base provides no-op hook implementations. Embed it to implement a
// subset of the lifecycle.
type Base struct{}

// Order returns the default chain position.
func (Base) Order() int { return 0 }

// PreInvoke continues the chain.
func (Base) PreInvoke(context.Context, *Invocation) (bool, error) { return true, nil }

// PostInvoke passes the result through unchanged.
func (Base) PostInvoke(_ context.Context, _ *Invocation, result any) (any, error) {
	return result, nil
}

// OnError declines to replace the error.
func (Base) OnError(context.Context, *Invocation, error) any { return nil }

// AfterCompletion does nothing.
func (Base) AfterCompletion(context.Context, *Invocation, error) {}
