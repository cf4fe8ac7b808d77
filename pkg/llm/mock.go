package llm

import "context"

// MockProvider is the simplest test double: a fixed reply, a fixed
// error, or a custom handler. Scripted sequences live in
// ScriptedMockProvider and ScriptedResponseProvider.
type MockProvider struct {
	Response string
	Err      error

	// ChatFunc, when set, handles the call entirely.
	ChatFunc func(ctx context.Context, req ChatRequest) (*ChatResponse, error)
}

// Chat returns the canned response. Token counts are nominal so usage
// accounting paths still see non-zero numbers.
func (m *MockProvider) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	if m.ChatFunc != nil {
		return m.ChatFunc(ctx, req)
	}
	if m.Err != nil {
		return nil, m.Err
	}
	return &ChatResponse{
		Content: m.Response,
		Usage:   Usage{PromptTokens: 10, CompletionTokens: 10, TotalTokens: 20},
	}, nil
}

var _ Provider = (*MockProvider)(nil)
