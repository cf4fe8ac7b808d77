// Package hitl implements the human-in-the-loop protocol: pending approval
// tasks raised by a suspended run and the decisions that resolve them.
package hitl

import (
	"time"
)

// SentinelAskFeedback is the reserved tool name for system-initiated tasks
// such as step-limit expansion requests.
const SentinelAskFeedback = "__ask_for_feedback__"

// Task is the unit a human approves or rejects. A run has at most one
// outstanding task at a time.
type Task struct {
	ToolName  string         `json:"tool_name"`
	Args      map[string]any `json:"args,omitempty"`
	Comment   string         `json:"comment,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// IsSentinel reports whether the task was raised by the system itself
// rather than by a sensitive-tool classification.
func (t *Task) IsSentinel() bool {
	return t != nil && t.ToolName == SentinelAskFeedback
}

// Outcome is the human's verdict on a pending task.
type Outcome string

const (
	OutcomeApprove Outcome = "APPROVE"
	OutcomeReject  Outcome = "REJECT"
	OutcomeSkip    Outcome = "SKIP"
)

// Decision resolves a pending task. It is written once by the human-facing
// API and consumed exactly once by the resuming run.
type Decision struct {
	Outcome      Outcome        `json:"outcome"`
	ModifiedArgs map[string]any `json:"modified_args,omitempty"`
	Comment      string         `json:"comment,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
}

// NewTask builds a pending task with a creation timestamp.
func NewTask(toolName string, args map[string]any, comment string) *Task {
	return &Task{
		ToolName:  toolName,
		Args:      args,
		Comment:   comment,
		CreatedAt: time.Now().UTC(),
	}
}
