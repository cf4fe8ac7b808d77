package interceptor

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
)

// Chain holds interceptors sorted ascending by Order (stable for ties).
// A Chain is immutable and safe for concurrent use; per-invocation state
// lives in the Execution returned by Begin.
type Chain struct {
	interceptors []Interceptor
}

// NewChain builds a chain from an unordered set of interceptors.
func NewChain(interceptors ...Interceptor) *Chain {
	sorted := append([]Interceptor(nil), interceptors...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Order() < sorted[j].Order()
	})
	return &Chain{interceptors: sorted}
}

// Len returns the number of interceptors in the chain.
func (c *Chain) Len() int { return len(c.interceptors) }

// Begin starts the lifecycle for one unit of work.
func (c *Chain) Begin(inv *Invocation) *Execution {
	if inv.Values == nil {
		inv.Values = make(map[string]any)
	}
	return &Execution{chain: c, inv: inv, opened: -1}
}

// Execution tracks which interceptors opened for one invocation so that
// cleanup reaches exactly those, in reverse order, exactly once.
type Execution struct {
	chain   *Chain
	inv     *Invocation
	opened  int // index of the last interceptor whose pre-hook returned true
	cleaned bool
}

// PreInvoke runs pre-hooks in order. It returns false when an interceptor
// aborted the invocation; cleanup of the already-opened interceptors has
// then run and interceptors past the aborting one were never touched.
// A pre-hook error likewise triggers cleanup before propagating.
func (e *Execution) PreInvoke(ctx context.Context) (bool, error) {
	for i, ic := range e.chain.interceptors {
		proceed, err := safePreInvoke(ctx, ic, e.inv)
		if err != nil {
			e.AfterCompletion(ctx, err)
			return false, fmt.Errorf("interceptor %q pre-invoke: %w", ic.Name(), err)
		}
		if !proceed {
			e.AfterCompletion(ctx, nil)
			return false, nil
		}
		e.opened = i
	}
	return true, nil
}

// PostInvoke runs post-hooks in reverse order, threading the result
// through. A failing hook is logged and skipped; the chain continues
// with the result as of before that hook.
func (e *Execution) PostInvoke(ctx context.Context, result any) any {
	for i := e.opened; i >= 0; i-- {
		ic := e.chain.interceptors[i]
		transformed, err := safePostInvoke(ctx, ic, e.inv, result)
		if err != nil {
			slog.Default().Warn("interceptor.post_invoke.error",
				slog.String("interceptor", ic.Name()),
				slog.String("tool_name", e.inv.ToolName),
				slog.String("error", err.Error()),
			)
			continue
		}
		result = transformed
	}
	return result
}

// OnError runs error-hooks in reverse order until one returns a non-nil
// replacement result, which suppresses the error. A failing hook is
// logged and skipped.
func (e *Execution) OnError(ctx context.Context, callErr error) any {
	for i := e.opened; i >= 0; i-- {
		ic := e.chain.interceptors[i]
		replacement, err := safeOnError(ctx, ic, e.inv, callErr)
		if err != nil {
			slog.Default().Warn("interceptor.on_error.error",
				slog.String("interceptor", ic.Name()),
				slog.String("tool_name", e.inv.ToolName),
				slog.String("error", err.Error()),
			)
			continue
		}
		if replacement != nil {
			return replacement
		}
	}
	return nil
}

// AfterCompletion closes every opened interceptor in reverse order. It is
// idempotent, and a failing cleanup never stops cleanup of the rest.
func (e *Execution) AfterCompletion(ctx context.Context, callErr error) {
	if e.cleaned {
		return
	}
	e.cleaned = true
	for i := e.opened; i >= 0; i-- {
		ic := e.chain.interceptors[i]
		if err := safeAfterCompletion(ctx, ic, e.inv, callErr); err != nil {
			slog.Default().Warn("interceptor.after_completion.error",
				slog.String("interceptor", ic.Name()),
				slog.String("tool_name", e.inv.ToolName),
				slog.String("error", err.Error()),
			)
		}
	}
}

func safePreInvoke(ctx context.Context, ic Interceptor, inv *Invocation) (proceed bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return ic.PreInvoke(ctx, inv)
}

func safePostInvoke(ctx context.Context, ic Interceptor, inv *Invocation, result any) (out any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return ic.PostInvoke(ctx, inv, result)
}

func safeOnError(ctx context.Context, ic Interceptor, inv *Invocation, callErr error) (out any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return ic.OnError(ctx, inv, callErr), nil
}

func safeAfterCompletion(ctx context.Context, ic Interceptor, inv *Invocation, callErr error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	ic.AfterCompletion(ctx, inv, callErr)
	return nil
}
