// Copyright 2026 © The Praxis Authors
// SPDX-License-Identifier: Apache-2.0

// Package pool shares MCP client connections across agents.
//
// A team of agents typically talks to the same few MCP servers. The
// pool keeps one client per registered server and hands the same
// connection to every member that asks, so a five-agent team costs one
// session per server instead of five. Connections dial lazily on the
// first Get and live until the pool closes.
package pool

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/tessellate/praxis/pkg/mcp"
)

var (
	// ErrPoolClosed is returned for any operation after Close.
	ErrPoolClosed = errors.New("mcp pool is closed")

	// ErrServerNotFound is returned by Get for an unregistered name.
	ErrServerNotFound = errors.New("mcp server not found in pool")

	// ErrInvalidServerConfig is returned for registrations missing a
	// name, command, or URL.
	ErrInvalidServerConfig = errors.New("invalid server configuration")
)

// serverConfig records how to dial one registered server.
type serverConfig struct {
	command string
	args    []string
	url     string
	opts    []mcp.ClientOption
}

func (sc *serverConfig) dial() (*mcp.Client, error) {
	if sc.url != "" {
		return mcp.NewClientWithStreamableHTTP(sc.url, sc.opts...)
	}
	return mcp.NewClientWithStdio(sc.command, sc.args, sc.opts...)
}

// Pool holds one shared MCP client per registered server.
type Pool struct {
	mu      sync.Mutex
	servers map[string]*serverConfig
	clients map[string]*mcp.Client
	closed  bool
}

// New creates an empty pool.
func New() *Pool {
	return &Pool{
		servers: make(map[string]*serverConfig),
		clients: make(map[string]*mcp.Client),
	}
}

// RegisterStdio registers a server reached by spawning a subprocess.
// The client options apply to the connection when it is first dialed.
func (p *Pool) RegisterStdio(name, command string, args []string, opts ...mcp.ClientOption) error {
	if name == "" || command == "" {
		return ErrInvalidServerConfig
	}
	return p.register(name, &serverConfig{command: command, args: args, opts: opts})
}

// RegisterHTTP registers a server reached over streamable HTTP.
func (p *Pool) RegisterHTTP(name, url string, opts ...mcp.ClientOption) error {
	if name == "" || url == "" {
		return ErrInvalidServerConfig
	}
	return p.register(name, &serverConfig{url: url, opts: opts})
}

func (p *Pool) register(name string, sc *serverConfig) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrPoolClosed
	}
	p.servers[name] = sc
	return nil
}

// Get returns the shared client for the named server, dialing it on
// first use. Re-registering a name does not replace a live connection.
func (p *Pool) Get(ctx context.Context, name string) (*mcp.Client, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil, ErrPoolClosed
	}
	if client, ok := p.clients[name]; ok {
		return client, nil
	}
	sc, ok := p.servers[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrServerNotFound, name)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	client, err := sc.dial()
	if err != nil {
		return nil, fmt.Errorf("dialing mcp server %s: %w", name, err)
	}
	p.clients[name] = client
	return client, nil
}

// Servers lists the registered server names.
func (p *Pool) Servers() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	names := make([]string, 0, len(p.servers))
	for name := range p.servers {
		names = append(names, name)
	}
	return names
}

// Close shuts every live connection and rejects further use.
func (p *Pool) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrPoolClosed
	}
	p.closed = true

	var errs []error
	for name, client := range p.clients {
		if err := client.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing %s: %w", name, err))
		}
	}
	p.clients = nil
	p.servers = nil
	return errors.Join(errs...)
}
