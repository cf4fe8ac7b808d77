// Copyright 2026 © The Praxis Authors
// SPDX-License-Identifier: Apache-2.0

// Package telemetry provides OpenTelemetry integration with rich attributes
// for agent observability.
package telemetry

import "go.opentelemetry.io/otel/attribute"

// Attribute keys for praxis spans. Agent and tool keys are praxis
// conventions; the model-call keys follow the gen_ai semantic
// conventions so standard dashboards pick them up.
const (
	AttrAgentID        = "praxis.agent.id"
	AttrAgentRole      = "praxis.agent.role"
	AttrAgentModel     = "praxis.agent.model"
	AttrAgentRunID     = "praxis.agent.run_id"
	AttrAgentIteration = "praxis.agent.iteration"
	AttrAgentMaxIter   = "praxis.agent.max_iterations"

	AttrToolName       = "praxis.tool.name"
	AttrToolCallID     = "praxis.tool.call_id"
	AttrToolSource     = "praxis.tool.source" // "local" or "mcp"
	AttrToolDurationMs = "praxis.tool.duration_ms"
	AttrToolSuccess    = "praxis.tool.success"

	AttrLLMModel        = "gen_ai.request.model"
	AttrLLMProvider     = "gen_ai.system"
	AttrLLMMessages     = "gen_ai.request.messages"
	AttrLLMToolCalls    = "gen_ai.tool_calls"
	AttrLLMTokensInput  = "gen_ai.usage.input_tokens"
	AttrLLMTokensOutput = "gen_ai.usage.output_tokens"
	AttrLLMTokensTotal  = "gen_ai.usage.total_tokens"
	AttrLLMDurationMs   = "gen_ai.duration_ms"
)

// AgentAttributes describes one agent run. Optional fields are elided
// when empty so spans stay compact.
func AgentAttributes(agentID, role, model, runID string, iteration, maxIter int) []attribute.KeyValue {
	attrs := []attribute.KeyValue{
		attribute.String(AttrAgentID, agentID),
		attribute.String(AttrAgentRunID, runID),
	}
	if role != "" {
		attrs = append(attrs, attribute.String(AttrAgentRole, role))
	}
	if model != "" {
		attrs = append(attrs, attribute.String(AttrAgentModel, model))
	}
	if iteration > 0 {
		attrs = append(attrs, attribute.Int(AttrAgentIteration, iteration))
	}
	if maxIter > 0 {
		attrs = append(attrs, attribute.Int(AttrAgentMaxIter, maxIter))
	}
	return attrs
}

// ToolCallAttributes describes one completed tool invocation.
func ToolCallAttributes(name, callID, source string, durationMs float64, success bool) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(AttrToolName, name),
		attribute.String(AttrToolCallID, callID),
		attribute.String(AttrToolSource, source),
		attribute.Float64(AttrToolDurationMs, durationMs),
		attribute.Bool(AttrToolSuccess, success),
	}
}

// LLMAttributes describes a model call at request time.
func LLMAttributes(model, provider string, msgCount, toolCallCount int) []attribute.KeyValue {
	attrs := []attribute.KeyValue{
		attribute.String(AttrLLMModel, model),
		attribute.Int(AttrLLMMessages, msgCount),
	}
	if provider != "" {
		attrs = append(attrs, attribute.String(AttrLLMProvider, provider))
	}
	if toolCallCount > 0 {
		attrs = append(attrs, attribute.Int(AttrLLMToolCalls, toolCallCount))
	}
	return attrs
}

// LLMUsageAttributes describes a model call at response time. Zero
// token counts are elided; local backends do not always report usage.
func LLMUsageAttributes(inputTokens, outputTokens, toolCallCount int) []attribute.KeyValue {
	attrs := []attribute.KeyValue{}
	if inputTokens > 0 {
		attrs = append(attrs, attribute.Int(AttrLLMTokensInput, inputTokens))
	}
	if outputTokens > 0 {
		attrs = append(attrs, attribute.Int(AttrLLMTokensOutput, outputTokens))
	}
	if inputTokens > 0 || outputTokens > 0 {
		attrs = append(attrs, attribute.Int(AttrLLMTokensTotal, inputTokens+outputTokens))
	}
	if toolCallCount > 0 {
		attrs = append(attrs, attribute.Int(AttrLLMToolCalls, toolCallCount))
	}
	return attrs
}
