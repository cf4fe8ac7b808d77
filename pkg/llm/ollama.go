package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/tessellate/praxis/pkg/errors"
)

// OllamaProvider speaks the Ollama chat API. Ollama's message format
// matches ours closely enough that requests marshal directly; only the
// token accounting needs mapping.
type OllamaProvider struct {
	baseURL string
	client  *http.Client
}

// NewOllama returns a provider for the given base URL, defaulting to
// the local daemon. The long timeout covers cold model loads.
func NewOllama(baseURL string) *OllamaProvider {
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	return &OllamaProvider{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 120 * time.Second},
	}
}

type ollamaRequest struct {
	Model    string         `json:"model"`
	Messages []Message      `json:"messages"`
	Stream   bool           `json:"stream"`
	Tools    []Tool         `json:"tools,omitempty"`
	Options  map[string]any `json:"options,omitempty"`
}

type ollamaResponse struct {
	Message         Message `json:"message"`
	Done            bool    `json:"done"`
	PromptEvalCount int     `json:"prompt_eval_count"`
	EvalCount       int     `json:"eval_count"`
}

// Chat issues one non-streaming chat call. Transport failures and
// server-side errors come back recoverable so the retry policy can
// take another attempt; client-side rejections do not.
func (p *OllamaProvider) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	oreq := ollamaRequest{
		Model:    req.Model,
		Messages: req.Messages,
		Tools:    req.Tools,
	}
	if req.Temperature != 0 {
		oreq.Options = map[string]any{"temperature": req.Temperature}
	}

	body, err := json.Marshal(oreq)
	if err != nil {
		return nil, errors.New(errors.CodeLLMError, "encoding ollama request", err).
			WithRecoverable(false)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return nil, errors.New(errors.CodeLLMError, "building ollama request", err).
			WithRecoverable(false)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, errors.New(errors.CodeLLMError, "calling ollama", err).
			WithRecoverable(true)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, errors.New(errors.CodeLLMError,
			fmt.Sprintf("ollama returned status %d: %s", resp.StatusCode, detail), nil).
			WithContext("status", resp.StatusCode).
			WithRecoverable(resp.StatusCode >= 500)
	}

	var oresp ollamaResponse
	if err := json.NewDecoder(resp.Body).Decode(&oresp); err != nil {
		return nil, errors.New(errors.CodeLLMError, "decoding ollama response", err).
			WithRecoverable(true)
	}

	return &ChatResponse{
		Content:   oresp.Message.Content,
		ToolCalls: oresp.Message.ToolCalls,
		Usage: Usage{
			PromptTokens:     oresp.PromptEvalCount,
			CompletionTokens: oresp.EvalCount,
			TotalTokens:      oresp.PromptEvalCount + oresp.EvalCount,
		},
	}, nil
}

var _ Provider = (*OllamaProvider)(nil)
