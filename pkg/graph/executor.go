package graph

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	oteltrace "go.opentelemetry.io/otel/trace"
)

// Handler executes a node and can update state.
type Handler func(ctx context.Context, node Node, state *State) (any, error)

// State holds outputs produced during graph execution. LastNodeID tracks
// the walker's position so a suspended walk can resume exactly where it
// stopped instead of restarting from the first node.
type State struct {
	Last       any
	Outputs    map[string]any
	LastNodeID string
}

// NewState creates an initialized execution state.
func NewState() *State {
	return &State{Outputs: make(map[string]any)}
}

// suspendError stops the walk without failing it; state.LastNodeID stays
// on the suspending node.
type suspendError struct{ nodeID string }

func (e *suspendError) Error() string { return fmt.Sprintf("walk suspended at node %q", e.nodeID) }

// Suspend signals the executor to stop after the current node.
func Suspend(nodeID string) error { return &suspendError{nodeID: nodeID} }

// IsSuspended reports whether the error is a suspension signal.
func IsSuspended(err error) bool {
	_, ok := err.(*suspendError)
	return ok
}

// Executor runs a graph using node handlers.
type Executor struct {
	Handlers map[string]Handler
	Audit    AuditStore
	tracer   oteltrace.Tracer
}

// NewExecutor creates an executor with provided handlers.
func NewExecutor(handlers map[string]Handler) *Executor {
	return &Executor{
		Handlers: handlers,
		tracer:   otel.Tracer("praxis/graph"),
	}
}

// Execute runs the graph from its start node and returns the final state.
func (e *Executor) Execute(ctx context.Context, g *Graph, state *State) (*State, error) {
	if g == nil {
		return nil, fmt.Errorf("graph is nil")
	}
	if err := g.Validate(); err != nil {
		return nil, err
	}
	startID, err := g.StartNode()
	if err != nil {
		return nil, err
	}
	return e.ExecuteFrom(ctx, g, state, startID)
}

// Resume continues a walk after the node recorded in state.LastNodeID.
// A state that never ran falls back to the start node.
func (e *Executor) Resume(ctx context.Context, g *Graph, state *State) (*State, error) {
	if g == nil {
		return nil, fmt.Errorf("graph is nil")
	}
	if state == nil || state.LastNodeID == "" {
		return e.Execute(ctx, g, state)
	}
	if err := g.Validate(); err != nil {
		return nil, err
	}
	next, err := g.NextAfter(state.LastNodeID)
	if err != nil {
		return nil, err
	}
	if next == "" {
		return state, nil
	}
	return e.ExecuteFrom(ctx, g, state, next)
}

// ExecuteFrom runs the graph starting at the given node id.
func (e *Executor) ExecuteFrom(ctx context.Context, g *Graph, state *State, startID string) (*State, error) {
	if g == nil {
		return nil, fmt.Errorf("graph is nil")
	}
	if state == nil {
		state = NewState()
	}

	visited := make(map[string]bool)
	currentID := startID
	for currentID != "" {
		if visited[currentID] {
			return nil, fmt.Errorf("cycle detected at node %q", currentID)
		}
		visited[currentID] = true

		node, ok := g.Nodes[currentID]
		if !ok {
			return nil, fmt.Errorf("node %q not found", currentID)
		}
		handler := e.Handlers[node.Type]
		if handler == nil {
			return nil, fmt.Errorf("no handler for node type %q", node.Type)
		}

		nodeCtx, span := e.tracer.Start(ctx, "Graph.Node",
			oteltrace.WithAttributes(
				attribute.String("node.id", node.ID),
				attribute.String("node.type", node.Type),
			),
		)
		startedAt := time.Now().UTC()
		output, err := handler(nodeCtx, node, state)
		span.End()

		state.LastNodeID = node.ID
		if err != nil {
			if IsSuspended(err) {
				e.record(ctx, g, node, output, "suspended", "", startedAt)
				return state, nil
			}
			e.record(ctx, g, node, nil, "failed", err.Error(), startedAt)
			return nil, fmt.Errorf("node %q failed: %w", node.ID, err)
		}
		state.Outputs[node.ID] = output
		state.Last = output
		e.record(ctx, g, node, output, "completed", "", startedAt)

		next, err := g.NextAfter(currentID)
		if err != nil {
			return nil, err
		}
		currentID = next
	}

	return state, nil
}

func (e *Executor) record(ctx context.Context, g *Graph, node Node, output any, status, errText string, startedAt time.Time) {
	if e.Audit == nil {
		return
	}
	// Audit failures never fail the walk.
	_ = e.Audit.Record(ctx, AuditEvent{
		GraphID:    g.ID,
		NodeID:     node.ID,
		NodeType:   node.Type,
		Status:     status,
		Output:     output,
		Error:      errText,
		StartedAt:  startedAt,
		FinishedAt: time.Now().UTC(),
	})
}
