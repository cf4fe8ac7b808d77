package governance

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// agentsFileName is the per-project instructions file. The nearest one
// above the working directory wins, mirroring how editors resolve it.
const agentsFileName = "AGENTS.md"

// AgentInstructions is a loaded AGENTS.md. Raw feeds the agent's
// system prompt verbatim; the file's markdown structure is the
// model's to interpret.
type AgentInstructions struct {
	Path     string
	Raw      string
	LoadedAt time.Time
}

// LoadAGENTS walks from startDir toward the filesystem root and loads
// the first AGENTS.md found. A missing file is not an error: the
// caller gets (nil, nil) and runs without project instructions.
func LoadAGENTS(startDir string) (*AgentInstructions, error) {
	if strings.TrimSpace(startDir) == "" {
		return nil, errors.New("startDir is required")
	}
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return nil, err
	}
	for {
		if doc, err := readAgentsFile(filepath.Join(dir, agentsFileName)); doc != nil || err != nil {
			return doc, err
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return nil, nil
		}
		dir = parent
	}
}

func readAgentsFile(path string) (*AgentInstructions, error) {
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return nil, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return &AgentInstructions{
		Path:     path,
		Raw:      string(raw),
		LoadedAt: time.Now().UTC(),
	}, nil
}
