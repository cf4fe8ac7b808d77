// Copyright 2026 © The Praxis Authors
// SPDX-License-Identifier: Apache-2.0

// Package guardrails screens the content flowing through tool calls.
//
// Input checkers inspect serialized tool arguments before a tool runs
// and can block the call outright. Output filters rewrite tool results
// before they re-enter the model's working memory, typically to redact
// secrets or personal data the tool surfaced.
//
// Guardrails complement governance policies: policies gate which tools
// an agent may call, guardrails inspect what actually passes through
// the calls it is allowed to make.
package guardrails

import "context"

// CheckResult is the verdict of a single input checker.
type CheckResult struct {
	Blocked     bool
	Reason      string
	GuardrailID string
}

// FilterResult carries a possibly rewritten output. Modified is false
// when the filter passed the content through untouched.
type FilterResult struct {
	Content    string
	Modified   bool
	Redactions []Redaction
}

// Redaction records one masked span so callers can audit what was
// removed without seeing the original value.
type Redaction struct {
	Kind        string
	Replacement string
}

// InputChecker inspects tool arguments before execution.
type InputChecker interface {
	ID() string
	CheckInput(ctx context.Context, input string) CheckResult
}

// OutputFilter rewrites tool results before they reach the model.
type OutputFilter interface {
	ID() string
	FilterOutput(ctx context.Context, output string) FilterResult
}

// Guardrails runs an ordered set of checkers and filters. The set is
// fixed at construction; instances are safe for concurrent use.
type Guardrails struct {
	checkers []InputChecker
	filters  []OutputFilter
}

// Option configures a Guardrails instance.
type Option func(*Guardrails)

// WithInputChecker appends an input checker. Checkers run in the order
// they were added.
func WithInputChecker(c InputChecker) Option {
	return func(g *Guardrails) { g.checkers = append(g.checkers, c) }
}

// WithOutputFilter appends an output filter.
func WithOutputFilter(f OutputFilter) Option {
	return func(g *Guardrails) { g.filters = append(g.filters, f) }
}

// New builds a guardrails set from the given options.
func New(opts ...Option) *Guardrails {
	g := &Guardrails{}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// CheckInput runs every checker and returns the first blocking result.
// A cancelled context blocks the call: once the caller has given up,
// letting an unchecked tool call through would be worse than failing.
func (g *Guardrails) CheckInput(ctx context.Context, input string) CheckResult {
	for _, c := range g.checkers {
		select {
		case <-ctx.Done():
			return CheckResult{Blocked: true, Reason: ctx.Err().Error(), GuardrailID: c.ID()}
		default:
		}
		result := c.CheckInput(ctx, input)
		if result.Blocked {
			if result.GuardrailID == "" {
				result.GuardrailID = c.ID()
			}
			return result
		}
	}
	return CheckResult{}
}

// FilterOutput threads the output through every filter in order, each
// one seeing the previous filter's rewrite. Redactions accumulate
// across filters.
func (g *Guardrails) FilterOutput(ctx context.Context, output string) FilterResult {
	final := FilterResult{Content: output}
	for _, f := range g.filters {
		select {
		case <-ctx.Done():
			return final
		default:
		}
		result := f.FilterOutput(ctx, final.Content)
		final.Content = result.Content
		if result.Modified {
			final.Modified = true
			final.Redactions = append(final.Redactions, result.Redactions...)
		}
	}
	return final
}
