package mcp

import (
	"context"
	"os"
	"testing"

	mcpgo "github.com/mark3labs/mcp-go/mcp"
)

const stdioHelperEnv = "PRAXIS_MCP_STDIO_HELPER"

// TestHelperStdioToolServer is not a test. The stdio client test
// re-executes the test binary with stdioHelperEnv set, and this
// function then serves a small MCP server on stdin/stdout.
func TestHelperStdioToolServer(t *testing.T) {
	if os.Getenv(stdioHelperEnv) != "1" {
		return
	}

	srv := NewServer("praxis-stdio-helper", "0.0.1")
	srv.RegisterTool("echo", "repeats the text argument", func(_ context.Context, args map[string]interface{}) (*mcpgo.CallToolResult, error) {
		text, _ := args["text"].(string)
		return &mcpgo.CallToolResult{
			Content: []mcpgo.Content{mcpgo.TextContent{Type: "text", Text: text}},
		}, nil
	})

	if err := srv.ServeStdio(); err != nil {
		os.Exit(1)
	}
	os.Exit(0)
}

func TestStdioClientRoundTrip(t *testing.T) {
	t.Setenv(stdioHelperEnv, "1")

	exe, err := os.Executable()
	if err != nil {
		t.Fatalf("os.Executable: %v", err)
	}

	client, err := NewClientWithStdioProtocol(exe, []string{"-test.run", "TestHelperStdioToolServer"}, mcpgo.LATEST_PROTOCOL_VERSION)
	if err != nil {
		t.Fatalf("dial stdio helper: %v", err)
	}
	defer client.Close()

	tools, err := client.ListTools(context.Background())
	if err != nil {
		t.Fatalf("ListTools: %v", err)
	}
	if len(tools) != 1 || tools[0].Name != "echo" {
		t.Fatalf("expected a single echo tool, got %+v", tools)
	}

	result, err := client.CallTool(context.Background(), "echo", map[string]interface{}{"text": "hello praxis"})
	if err != nil {
		t.Fatalf("CallTool: %v", err)
	}
	if result == nil || result.IsError {
		t.Fatalf("expected successful result, got %+v", result)
	}
	if len(result.Content) != 1 {
		t.Fatalf("expected one content block, got %d", len(result.Content))
	}
	text, ok := result.Content[0].(mcpgo.TextContent)
	if !ok {
		t.Fatalf("expected text content, got %T", result.Content[0])
	}
	if text.Text != "hello praxis" {
		t.Fatalf("echo returned %q", text.Text)
	}
}
