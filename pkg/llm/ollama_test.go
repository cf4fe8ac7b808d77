package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/tessellate/praxis/pkg/errors"
)

func TestOllamaChatMapsResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/chat" {
			t.Errorf("path: %s", r.URL.Path)
		}
		var req ollamaRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if req.Stream {
			t.Error("want non-streaming request")
		}
		json.NewEncoder(w).Encode(ollamaResponse{
			Message:         Message{Role: RoleAssistant, Content: "the capital is Madrid"},
			Done:            true,
			PromptEvalCount: 12,
			EvalCount:       7,
		})
	}))
	defer srv.Close()

	p := NewOllama(srv.URL)
	resp, err := p.Chat(context.Background(), ChatRequest{
		Model:    "llama3",
		Messages: []Message{{Role: RoleUser, Content: "capital of spain?"}},
	})
	if err != nil {
		t.Fatalf("chat: %v", err)
	}
	if resp.Content != "the capital is Madrid" {
		t.Fatalf("content: %q", resp.Content)
	}
	if !resp.IsFinish() {
		t.Fatal("want finish response")
	}
	if resp.Usage.TotalTokens != 19 {
		t.Fatalf("usage: %+v", resp.Usage)
	}
}

func TestOllamaChatServerErrorIsRecoverable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "model loading", http.StatusInternalServerError)
	}))
	defer srv.Close()

	_, err := NewOllama(srv.URL).Chat(context.Background(), ChatRequest{Model: "llama3"})
	pe := errors.AsPraxisError(err)
	if pe == nil || pe.Code != errors.CodeLLMError {
		t.Fatalf("want llm error, got %v", err)
	}
	if !pe.Recoverable {
		t.Fatal("5xx must be recoverable")
	}
}

func TestOllamaChatClientErrorIsFatal(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "unknown model", http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := NewOllama(srv.URL).Chat(context.Background(), ChatRequest{Model: "nope"})
	pe := errors.AsPraxisError(err)
	if pe == nil || pe.Recoverable {
		t.Fatalf("4xx must not be retried, got %v", err)
	}
}
