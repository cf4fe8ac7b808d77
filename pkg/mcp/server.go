package mcp

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// ToolFunc handles one tool invocation with its decoded JSON arguments.
type ToolFunc func(ctx context.Context, args map[string]interface{}) (*mcp.CallToolResult, error)

// Server exposes praxis tools to MCP clients. It is the counterpart of
// Client: a process can serve its local tools over stdio so another
// agent runtime can discover and call them.
type Server struct {
	inner *server.MCPServer
}

// NewServer creates a server that identifies itself with the given
// name and version during the MCP handshake.
func NewServer(name, version string) *Server {
	return &Server{inner: server.NewMCPServer(name, version)}
}

// RegisterTool publishes a named tool. Requests without a JSON object
// payload reach the handler with an empty argument map.
func (s *Server) RegisterTool(name, description string, fn ToolFunc) {
	tool := mcp.NewTool(name, mcp.WithDescription(description))
	s.inner.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args, ok := req.Params.Arguments.(map[string]interface{})
		if !ok {
			args = map[string]interface{}{}
		}
		return fn(ctx, args)
	})
}

// ServeStdio blocks serving the MCP protocol on stdin and stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.inner)
}
