package llm

import (
	"context"
	"testing"
)

func TestMockProvider(t *testing.T) {
	mock := &MockProvider{Response: "Hello world"}
	resp, err := mock.Chat(context.Background(), ChatRequest{
		Messages: []Message{{Role: RoleUser, Content: "Hi"}},
	})
	if err != nil {
		t.Fatalf("Chat failed: %v", err)
	}
	if resp.Content != "Hello world" {
		t.Errorf("Expected 'Hello world', got '%s'", resp.Content)
	}
}

func TestFunctionCallArgsMap(t *testing.T) {
	fc := FunctionCall{Name: "transfer", Arguments: `{"amount": 5000}`}
	args, err := fc.ArgsMap()
	if err != nil {
		t.Fatalf("args map: %v", err)
	}
	if args["amount"].(float64) != 5000 {
		t.Fatalf("unexpected amount: %v", args["amount"])
	}

	empty := FunctionCall{Name: "noargs"}
	args, err = empty.ArgsMap()
	if err != nil {
		t.Fatalf("empty args: %v", err)
	}
	if len(args) != 0 {
		t.Fatalf("expected empty map, got %v", args)
	}

	bad := FunctionCall{Name: "broken", Arguments: "{"}
	if _, err := bad.ArgsMap(); err == nil {
		t.Fatal("expected decode error")
	}
}

func TestIsFinish(t *testing.T) {
	finish := &ChatResponse{Content: "done"}
	if !finish.IsFinish() {
		t.Fatal("expected finish signal")
	}
	acting := &ChatResponse{ToolCalls: []ToolCall{{Function: FunctionCall{Name: "search"}}}}
	if acting.IsFinish() {
		t.Fatal("expected tool-call response")
	}
}
