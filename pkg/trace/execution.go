// Package trace holds the mutable execution records of agent runs: the
// per-agent ExecutionTrace and the cross-agent TeamTrace. Both serialize
// to flat JSON so a suspended run can be resumed by another process.
package trace

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/tessellate/praxis/pkg/hitl"
	"github.com/tessellate/praxis/pkg/llm"
)

// StepKind distinguishes the phases of a reason/act/observe cycle.
type StepKind string

const (
	StepReason  StepKind = "reason"
	StepAct     StepKind = "act"
	StepObserve StepKind = "observe"
)

// Step is one recorded phase of a run. Steps are append-only.
type Step struct {
	Kind      StepKind  `json:"kind"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// Status describes the lifecycle state of a run.
type Status string

const (
	StatusRunning Status = "RUNNING"
	StatusPending Status = "PENDING"
	StatusDone    Status = "DONE"
	StatusFailed  Status = "FAILED"
)

// ExecutionTrace is the mutable record of one agent run. It is owned by a
// single loop execution and never shared across goroutines.
type ExecutionTrace struct {
	Steps           []Step        `json:"steps"`
	Iteration       int           `json:"iteration"`
	MaxSteps        int           `json:"max_steps"`
	Status          Status        `json:"status"`
	PendingTask     *hitl.Task    `json:"pending_task,omitempty"`
	InterruptReason string        `json:"interrupt_reason,omitempty"`
	Plans           []string      `json:"plans,omitempty"`
	WorkingMemory   []llm.Message `json:"working_memory,omitempty"`
	FinalAnswer     string        `json:"final_answer,omitempty"`
	// LimitExtended records that the step budget was already raised once
	// via an approved step-limit request; a second raise is never granted.
	LimitExtended bool `json:"limit_extended,omitempty"`
}

// NewExecutionTrace creates a running trace with the given step ceiling.
func NewExecutionTrace(maxSteps int) *ExecutionTrace {
	return &ExecutionTrace{
		Status:   StatusRunning,
		MaxSteps: maxSteps,
	}
}

// Append records a step with the current timestamp.
func (t *ExecutionTrace) Append(kind StepKind, content string) {
	t.Steps = append(t.Steps, Step{
		Kind:      kind,
		Content:   content,
		Timestamp: time.Now().UTC(),
	})
}

// Suspend marks the trace PENDING with the given task and reason.
// The pending-task/status invariant holds by construction.
func (t *ExecutionTrace) Suspend(task *hitl.Task, reason string) {
	t.Status = StatusPending
	t.PendingTask = task
	t.InterruptReason = reason
}

// ClearPending removes the pending task and returns the trace to RUNNING.
func (t *ExecutionTrace) ClearPending() {
	t.Status = StatusRunning
	t.PendingTask = nil
	t.InterruptReason = ""
}

// Complete marks the run DONE with the final answer.
func (t *ExecutionTrace) Complete(answer string) {
	t.Status = StatusDone
	t.PendingTask = nil
	t.InterruptReason = ""
	t.FinalAnswer = answer
}

// Fail marks the run FAILED with the given reason.
func (t *ExecutionTrace) Fail(reason string) {
	t.Status = StatusFailed
	t.PendingTask = nil
	t.InterruptReason = reason
}

// ResetForPrompt prepares the trace for a new top-level prompt: the
// iteration counter restarts and, when the new task is judged simple,
// any carried plan is dropped entirely (smart degradation).
func (t *ExecutionTrace) ResetForPrompt(keepPlans bool) {
	t.Iteration = 0
	t.Status = StatusRunning
	t.PendingTask = nil
	t.InterruptReason = ""
	t.FinalAnswer = ""
	if !keepPlans {
		t.Plans = nil
	}
}

// ReplacePlans atomically swaps the plan list. Revisions replace, never
// append to, the previous plan.
func (t *ExecutionTrace) ReplacePlans(plans []string) {
	t.Plans = append([]string(nil), plans...)
}

// Validate checks the trace invariants.
func (t *ExecutionTrace) Validate() error {
	if (t.PendingTask != nil) != (t.Status == StatusPending) {
		return fmt.Errorf("pending task/status mismatch: task=%v status=%s", t.PendingTask != nil, t.Status)
	}
	if t.MaxSteps > 0 && t.Iteration > t.MaxSteps {
		return fmt.Errorf("iteration %d exceeds max steps %d", t.Iteration, t.MaxSteps)
	}
	return nil
}

// MarshalText implements a flat textual representation for persistence.
func (t *ExecutionTrace) MarshalText() ([]byte, error) {
	return json.Marshal(t)
}

// UnmarshalText restores a trace from its textual representation.
func (t *ExecutionTrace) UnmarshalText(data []byte) error {
	return json.Unmarshal(data, t)
}
