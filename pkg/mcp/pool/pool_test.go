// Copyright 2026 © The Praxis Authors
// SPDX-License-Identifier: Apache-2.0

package pool

import (
	"context"
	"errors"
	"testing"

	mcpgo "github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"
)

func newTestServer(t *testing.T) string {
	t.Helper()
	server := mcpserver.NewMCPServer("pool-test", "1.0.0")
	server.AddTool(mcpgo.NewTool("ping"), func(ctx context.Context, _ mcpgo.CallToolRequest) (*mcpgo.CallToolResult, error) {
		return &mcpgo.CallToolResult{
			Content: []mcpgo.Content{mcpgo.TextContent{Type: "text", Text: "ok"}},
		}, nil
	})
	httpServer := mcpserver.NewTestStreamableHTTPServer(server)
	t.Cleanup(httpServer.Close)
	return httpServer.URL
}

func TestRegisterRejectsIncompleteConfig(t *testing.T) {
	p := New()
	defer p.Close()

	if err := p.RegisterHTTP("", "http://localhost/mcp"); !errors.Is(err, ErrInvalidServerConfig) {
		t.Fatalf("empty name: %v", err)
	}
	if err := p.RegisterHTTP("search", ""); !errors.Is(err, ErrInvalidServerConfig) {
		t.Fatalf("empty url: %v", err)
	}
	if err := p.RegisterStdio("fs", "", nil); !errors.Is(err, ErrInvalidServerConfig) {
		t.Fatalf("empty command: %v", err)
	}
}

func TestGetUnregisteredServer(t *testing.T) {
	p := New()
	defer p.Close()

	_, err := p.Get(context.Background(), "nowhere")
	if !errors.Is(err, ErrServerNotFound) {
		t.Fatalf("want ErrServerNotFound, got %v", err)
	}
}

func TestGetSharesOneConnection(t *testing.T) {
	url := newTestServer(t)

	p := New()
	defer p.Close()
	if err := p.RegisterHTTP("search", url); err != nil {
		t.Fatalf("register: %v", err)
	}

	first, err := p.Get(context.Background(), "search")
	if err != nil {
		t.Fatalf("first get: %v", err)
	}
	second, err := p.Get(context.Background(), "search")
	if err != nil {
		t.Fatalf("second get: %v", err)
	}
	if first != second {
		t.Fatal("want the same shared client on both gets")
	}

	tools, err := first.ListTools(context.Background())
	if err != nil {
		t.Fatalf("list tools: %v", err)
	}
	if len(tools) != 1 || tools[0].Name != "ping" {
		t.Fatalf("tools: %+v", tools)
	}
}

func TestServersListsRegistrations(t *testing.T) {
	p := New()
	defer p.Close()

	if err := p.RegisterHTTP("search", "http://localhost:8080/mcp"); err != nil {
		t.Fatalf("register: %v", err)
	}
	servers := p.Servers()
	if len(servers) != 1 || servers[0] != "search" {
		t.Fatalf("servers: %v", servers)
	}
}

func TestClosedPoolRejectsEverything(t *testing.T) {
	p := New()
	if err := p.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	if err := p.RegisterHTTP("search", "http://localhost:8080/mcp"); !errors.Is(err, ErrPoolClosed) {
		t.Fatalf("register after close: %v", err)
	}
	if _, err := p.Get(context.Background(), "search"); !errors.Is(err, ErrPoolClosed) {
		t.Fatalf("get after close: %v", err)
	}
	if err := p.Close(); !errors.Is(err, ErrPoolClosed) {
		t.Fatalf("double close: %v", err)
	}
}
