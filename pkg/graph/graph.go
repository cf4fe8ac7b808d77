// Package graph provides the deterministic scheduler used for fixed
// team protocols: a validated node/edge structure walked one node at a
// time, with the walker's position externalized so a suspended walk can
// resume in another process.
package graph

import "fmt"

// Graph defines a deterministic execution graph.
type Graph struct {
	ID    string          `json:"id" yaml:"id"`
	Start string          `json:"start" yaml:"start"`
	Nodes map[string]Node `json:"nodes" yaml:"nodes"`
	Edges []Edge          `json:"edges" yaml:"edges"`
}

// Node represents a step in the graph. For team scheduling the Type is
// "agent" and Agent names the member to run; other types are dispatched
// to whatever handler the executor registers.
type Node struct {
	ID       string            `json:"id" yaml:"id"`
	Type     string            `json:"type" yaml:"type"`
	Agent    string            `json:"agent,omitempty" yaml:"agent,omitempty"`
	Input    any               `json:"input,omitempty" yaml:"input,omitempty"`
	Metadata map[string]string `json:"metadata,omitempty" yaml:"metadata,omitempty"`
}

// Edge defines a transition between nodes.
type Edge struct {
	From string `json:"from" yaml:"from"`
	To   string `json:"to" yaml:"to"`
}

// Validate ensures the graph is well-formed for execution.
func (g *Graph) Validate() error {
	if g == nil {
		return fmt.Errorf("graph is nil")
	}
	if len(g.Nodes) == 0 {
		return fmt.Errorf("graph has no nodes")
	}

	for id, node := range g.Nodes {
		if node.ID == "" {
			node.ID = id
			g.Nodes[id] = node
		}
		if node.ID == "" {
			return fmt.Errorf("node id is required")
		}
		if node.Type == "" {
			return fmt.Errorf("node %q missing type", node.ID)
		}
	}

	for _, edge := range g.Edges {
		if edge.From == "" || edge.To == "" {
			return fmt.Errorf("edge must include from/to")
		}
		if _, ok := g.Nodes[edge.From]; !ok {
			return fmt.Errorf("edge from %q not found", edge.From)
		}
		if _, ok := g.Nodes[edge.To]; !ok {
			return fmt.Errorf("edge to %q not found", edge.To)
		}
	}
	return nil
}

// StartNode resolves the entry node: the declared start, or the single
// node with no incoming edges.
func (g *Graph) StartNode() (string, error) {
	if g.Start != "" {
		if _, ok := g.Nodes[g.Start]; !ok {
			return "", fmt.Errorf("start node %q not found", g.Start)
		}
		return g.Start, nil
	}

	incoming := make(map[string]int)
	for id := range g.Nodes {
		incoming[id] = 0
	}
	for _, edge := range g.Edges {
		incoming[edge.To]++
	}

	var candidates []string
	for id, count := range incoming {
		if count == 0 {
			candidates = append(candidates, id)
		}
	}
	switch len(candidates) {
	case 1:
		return candidates[0], nil
	case 0:
		return "", fmt.Errorf("no start node found")
	default:
		return "", fmt.Errorf("multiple start nodes found")
	}
}

// NextAfter returns the successor of the given node, or "" at the end of
// the walk. Nodes with multiple outgoing edges are rejected; the walker
// is strictly linear.
func (g *Graph) NextAfter(nodeID string) (string, error) {
	if _, ok := g.Nodes[nodeID]; !ok {
		return "", fmt.Errorf("node %q not found", nodeID)
	}
	var next []string
	for _, edge := range g.Edges {
		if edge.From == nodeID {
			next = append(next, edge.To)
		}
	}
	if len(next) > 1 {
		return "", fmt.Errorf("node %q has multiple outgoing edges", nodeID)
	}
	if len(next) == 0 {
		return "", nil
	}
	return next[0], nil
}

// Sequential builds a linear graph of agent nodes in the given order.
// Node ids are the agent names.
func Sequential(id string, agents ...string) (*Graph, error) {
	if len(agents) == 0 {
		return nil, fmt.Errorf("at least one agent is required")
	}
	g := &Graph{
		ID:    id,
		Start: agents[0],
		Nodes: make(map[string]Node, len(agents)),
	}
	for i, name := range agents {
		if _, dup := g.Nodes[name]; dup {
			return nil, fmt.Errorf("duplicate agent %q", name)
		}
		g.Nodes[name] = Node{ID: name, Type: "agent", Agent: name}
		if i > 0 {
			g.Edges = append(g.Edges, Edge{From: agents[i-1], To: name})
		}
	}
	return g, g.Validate()
}
