package mcp

import (
	"context"
	"sort"
	"testing"

	mcpgo "github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"
)

func TestStreamableHTTPClientDiscoversAndCalls(t *testing.T) {
	srv := NewServer("praxis-http-helper", "0.0.1")
	srv.RegisterTool("ping", "replies with pong", func(context.Context, map[string]interface{}) (*mcpgo.CallToolResult, error) {
		return &mcpgo.CallToolResult{
			Content: []mcpgo.Content{mcpgo.TextContent{Type: "text", Text: "pong"}},
		}, nil
	})
	srv.RegisterTool("whoami", "names the server", func(context.Context, map[string]interface{}) (*mcpgo.CallToolResult, error) {
		return &mcpgo.CallToolResult{
			Content: []mcpgo.Content{mcpgo.TextContent{Type: "text", Text: "praxis-http-helper"}},
		}, nil
	})

	httpServer := mcpserver.NewTestStreamableHTTPServer(srv.inner)
	defer httpServer.Close()

	client, err := NewClientWithStreamableHTTPProtocol(httpServer.URL, mcpgo.LATEST_PROTOCOL_VERSION)
	if err != nil {
		t.Fatalf("dial http server: %v", err)
	}
	defer client.Close()

	tools, err := client.ListTools(context.Background())
	if err != nil {
		t.Fatalf("ListTools: %v", err)
	}
	names := make([]string, 0, len(tools))
	for _, tool := range tools {
		names = append(names, tool.Name)
	}
	sort.Strings(names)
	if len(names) != 2 || names[0] != "ping" || names[1] != "whoami" {
		t.Fatalf("expected ping and whoami, got %v", names)
	}

	result, err := client.CallTool(context.Background(), "ping", nil)
	if err != nil {
		t.Fatalf("CallTool: %v", err)
	}
	if result == nil || result.IsError {
		t.Fatalf("expected successful result, got %+v", result)
	}
	text, ok := result.Content[0].(mcpgo.TextContent)
	if !ok || text.Text != "pong" {
		t.Fatalf("expected pong, got %+v", result.Content[0])
	}
}
