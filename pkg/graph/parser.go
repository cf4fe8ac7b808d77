package graph

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// ParseJSON loads a graph from JSON and validates it.
func ParseJSON(data []byte) (*Graph, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("empty JSON payload")
	}
	var g Graph
	if err := json.Unmarshal(data, &g); err != nil {
		return nil, fmt.Errorf("parse json graph: %w", err)
	}
	if err := g.Validate(); err != nil {
		return nil, err
	}
	return &g, nil
}

// ParseYAML loads a graph from YAML and validates it.
func ParseYAML(data []byte) (*Graph, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("empty YAML payload")
	}
	var g Graph
	if err := yaml.Unmarshal(data, &g); err != nil {
		return nil, fmt.Errorf("parse yaml graph: %w", err)
	}
	if err := g.Validate(); err != nil {
		return nil, err
	}
	return &g, nil
}

// MarshalJSON serializes a graph to JSON. Use pretty for indented output.
func MarshalJSON(g *Graph, pretty bool) ([]byte, error) {
	if g == nil {
		return nil, fmt.Errorf("graph is nil")
	}
	if err := g.Validate(); err != nil {
		return nil, err
	}
	if pretty {
		return json.MarshalIndent(g, "", "  ")
	}
	return json.Marshal(g)
}

// MarshalYAML serializes a graph to YAML.
func MarshalYAML(g *Graph) ([]byte, error) {
	if g == nil {
		return nil, fmt.Errorf("graph is nil")
	}
	if err := g.Validate(); err != nil {
		return nil, err
	}
	return yaml.Marshal(g)
}

// LoadGraph loads a graph from a YAML or JSON file.
func LoadGraph(path string) (*Graph, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("graph path is required")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".json":
		return ParseJSON(data)
	case ".yaml", ".yml":
		return ParseYAML(data)
	default:
		return parseGraphAuto(data)
	}
}

func parseGraphAuto(data []byte) (*Graph, error) {
	trimmed := strings.TrimSpace(string(data))
	if strings.HasPrefix(trimmed, "{") {
		if g, err := ParseJSON(data); err == nil {
			return g, nil
		}
	}
	if g, err := ParseYAML(data); err == nil {
		return g, nil
	}
	if g, err := ParseJSON(data); err == nil {
		return g, nil
	}
	return nil, fmt.Errorf("unsupported graph format")
}
