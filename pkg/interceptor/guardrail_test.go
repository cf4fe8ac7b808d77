// Copyright 2026 © The Praxis Authors
// SPDX-License-Identifier: Apache-2.0

package interceptor

import (
	"context"
	"strings"
	"testing"

	"github.com/tessellate/praxis/pkg/guardrails"
)

type blockAll struct{ id string }

func (b blockAll) ID() string { return b.id }

func (b blockAll) CheckInput(_ context.Context, input string) guardrails.CheckResult {
	if strings.Contains(input, "forbidden") {
		return guardrails.CheckResult{Blocked: true, Reason: "forbidden content"}
	}
	return guardrails.CheckResult{}
}

type redactSecrets struct{}

func (redactSecrets) ID() string { return "redact" }

func (redactSecrets) FilterOutput(_ context.Context, output string) guardrails.FilterResult {
	if !strings.Contains(output, "secret") {
		return guardrails.FilterResult{Content: output}
	}
	return guardrails.FilterResult{
		Content:  strings.ReplaceAll(output, "secret", "[REDACTED]"),
		Modified: true,
	}
}

func TestGuardrailBlocksFlaggedInput(t *testing.T) {
	guard := guardrails.New(guardrails.WithInputChecker(blockAll{id: "topic"}))
	g := NewGuardrail(guard)

	inv := &Invocation{
		ToolName: "search",
		Args:     map[string]any{"query": "forbidden topic"},
		Values:   map[string]any{},
	}
	proceed, err := g.PreInvoke(context.Background(), inv)
	if proceed || err == nil {
		t.Fatalf("want blocked with error, got proceed=%v err=%v", proceed, err)
	}
	if !strings.Contains(err.Error(), "forbidden content") {
		t.Fatalf("error: %v", err)
	}
}

func TestGuardrailAllowsCleanInput(t *testing.T) {
	guard := guardrails.New(guardrails.WithInputChecker(blockAll{id: "topic"}))
	g := NewGuardrail(guard)

	inv := &Invocation{
		ToolName: "search",
		Args:     map[string]any{"query": "weather in Lisbon"},
		Values:   map[string]any{},
	}
	proceed, err := g.PreInvoke(context.Background(), inv)
	if !proceed || err != nil {
		t.Fatalf("want proceed, got proceed=%v err=%v", proceed, err)
	}
}

func TestGuardrailFiltersStringResults(t *testing.T) {
	guard := guardrails.New(guardrails.WithOutputFilter(redactSecrets{}))
	g := NewGuardrail(guard)

	inv := &Invocation{ToolName: "fetch", Values: map[string]any{}}
	out, err := g.PostInvoke(context.Background(), inv, "the secret ingredient")
	if err != nil {
		t.Fatalf("post invoke: %v", err)
	}
	if out != "the [REDACTED] ingredient" {
		t.Fatalf("filtered output: %q", out)
	}

	// Non-string results pass through untouched.
	raw := map[string]any{"secret": true}
	out, err = g.PostInvoke(context.Background(), inv, raw)
	if err != nil {
		t.Fatalf("post invoke: %v", err)
	}
	if _, ok := out.(map[string]any); !ok {
		t.Fatalf("non-string result rewritten: %v", out)
	}
}

func TestGuardrailInChainWithApproval(t *testing.T) {
	guard := guardrails.New(guardrails.WithInputChecker(blockAll{id: "topic"}))
	chain := NewChain(NewApproval("transfer_funds"), NewGuardrail(guard))

	inv := &Invocation{
		SessionID: "s1",
		ToolName:  "search",
		Args:      map[string]any{"query": "forbidden topic"},
		Values:    map[string]any{},
	}
	exec := chain.Begin(inv)
	proceed, err := exec.PreInvoke(context.Background())
	if proceed || err == nil {
		t.Fatalf("want guardrail abort, got proceed=%v err=%v", proceed, err)
	}
	// Cleanup for opened interceptors must still be safe to call.
	exec.AfterCompletion(context.Background(), err)
}
