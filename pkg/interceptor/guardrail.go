// Copyright 2026 © The Praxis Authors
// SPDX-License-Identifier: Apache-2.0

package interceptor

import (
	"context"
	"encoding/json"
	"fmt"

	praxiserrors "github.com/tessellate/praxis/pkg/errors"
	"github.com/tessellate/praxis/pkg/guardrails"
)

// Guardrail runs content guardrails around tool invocations: input
// checkers inspect the serialized arguments before execution, output
// filters rewrite string results before they reach the model again.
type Guardrail struct {
	Base
	guard *guardrails.Guardrails
	order int
}

// NewGuardrail wraps a guardrails instance as a chain interceptor.
func NewGuardrail(guard *guardrails.Guardrails) *Guardrail {
	return &Guardrail{guard: guard, order: 50}
}

// Name identifies the interceptor in the chain.
func (g *Guardrail) Name() string { return "guardrail" }

// Order places guardrails after approval gating.
func (g *Guardrail) Order() int { return g.order }

// PreInvoke blocks the tool call when an input checker flags the
// arguments.
func (g *Guardrail) PreInvoke(ctx context.Context, inv *Invocation) (bool, error) {
	payload, err := json.Marshal(inv.Args)
	if err != nil {
		payload = []byte(fmt.Sprintf("%v", inv.Args))
	}
	result := g.guard.CheckInput(ctx, string(payload))
	if result.Blocked {
		return false, praxiserrors.New(praxiserrors.CodeToolFailure,
			fmt.Sprintf("guardrail %s blocked tool input: %s", result.GuardrailID, result.Reason), nil).
			WithContext("tool", inv.ToolName).
			WithContext("guardrail", result.GuardrailID)
	}
	return true, nil
}

// PostInvoke filters string results through the output filters.
func (g *Guardrail) PostInvoke(ctx context.Context, inv *Invocation, result any) (any, error) {
	text, ok := result.(string)
	if !ok {
		return result, nil
	}
	filtered := g.guard.FilterOutput(ctx, text)
	if !filtered.Modified {
		return result, nil
	}
	return filtered.Content, nil
}
