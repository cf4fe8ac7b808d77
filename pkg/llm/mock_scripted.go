package llm

import (
	"context"
	"errors"
	"sync"
)

// ScriptedMockProvider is a mock provider that returns a pre-defined sequence of responses.
// Useful for testing multi-turn interactions (e.g. ReAct loop).
type ScriptedMockProvider struct {
	mu        sync.Mutex
	Responses []string
	Err       error
	// CallCount tracks how many times Chat has been called
	CallCount int
}

// NewScriptedMockProvider creates a new ScriptedMockProvider.
// The model argument is currently ignored by the mock but included for compatibility.
func NewScriptedMockProvider(model string, responses ...string) *ScriptedMockProvider {
	return &ScriptedMockProvider{
		Responses: responses,
	}
}

// Chat pops the next scripted response or returns the configured error.
func (s *ScriptedMockProvider) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.CallCount++

	if s.Err != nil {
		return nil, s.Err
	}

	if len(s.Responses) == 0 {
		return nil, errors.New("scripted mock: no more responses available")
	}

	// Pop the first response
	content := s.Responses[0]
	s.Responses = s.Responses[1:]

	return &ChatResponse{
		Content: content,
		Usage: Usage{
			PromptTokens:     10,
			CompletionTokens: 10,
			TotalTokens:      20,
		},
	}, nil
}

// AddResponse appends a response to the queue.
func (s *ScriptedMockProvider) AddResponse(response string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Responses = append(s.Responses, response)
}

// PeekNext returns the next response to be returned, or empty string.
func (s *ScriptedMockProvider) PeekNext() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.Responses) == 0 {
		return ""
	}
	return s.Responses[0]
}

// scriptedStep is one queued Chat outcome.
type scriptedStep struct {
	resp *ChatResponse
	err  error
}

// ScriptedResponseProvider replays full ChatResponse values, including
// tool-call requests, and can inject transport errors at chosen points.
// It records every request it receives for later assertions.
type ScriptedResponseProvider struct {
	mu        sync.Mutex
	steps     []scriptedStep
	CallCount int
	Requests  []ChatRequest
}

// NewScriptedResponseProvider creates an empty provider; queue outcomes
// with AddFinish, AddToolCall, AddResponse and AddError.
func NewScriptedResponseProvider() *ScriptedResponseProvider {
	return &ScriptedResponseProvider{}
}

// AddResponse queues a full response.
func (s *ScriptedResponseProvider) AddResponse(resp *ChatResponse) *ScriptedResponseProvider {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.steps = append(s.steps, scriptedStep{resp: resp})
	return s
}

// AddFinish queues a plain-content finish response.
func (s *ScriptedResponseProvider) AddFinish(content string) *ScriptedResponseProvider {
	return s.AddResponse(&ChatResponse{Content: content})
}

// AddToolCall queues a response requesting one tool call with the given
// JSON argument payload.
func (s *ScriptedResponseProvider) AddToolCall(name, argsJSON string) *ScriptedResponseProvider {
	return s.AddResponse(&ChatResponse{
		ToolCalls: []ToolCall{{
			Type:     ToolTypeFunction,
			Function: FunctionCall{Name: name, Arguments: argsJSON},
		}},
	})
}

// AddError queues a transport failure.
func (s *ScriptedResponseProvider) AddError(err error) *ScriptedResponseProvider {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.steps = append(s.steps, scriptedStep{err: err})
	return s
}

// Chat pops the next scripted outcome.
func (s *ScriptedResponseProvider) Chat(_ context.Context, req ChatRequest) (*ChatResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.CallCount++
	s.Requests = append(s.Requests, req)

	if len(s.steps) == 0 {
		return nil, errors.New("scripted mock: no more responses available")
	}
	step := s.steps[0]
	s.steps = s.steps[1:]
	if step.err != nil {
		return nil, step.err
	}
	return step.resp, nil
}
