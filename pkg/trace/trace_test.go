package trace

import (
	"encoding/json"
	"sync"
	"testing"

	"github.com/tessellate/praxis/pkg/hitl"
	"github.com/tessellate/praxis/pkg/llm"
)

func TestPendingInvariant(t *testing.T) {
	tr := NewExecutionTrace(10)
	if err := tr.Validate(); err != nil {
		t.Fatalf("fresh trace invalid: %v", err)
	}

	tr.Suspend(hitl.NewTask("transfer_funds", nil, "sensitive"), "approval required")
	if tr.Status != StatusPending || tr.PendingTask == nil {
		t.Fatalf("suspend did not set pending: %s %v", tr.Status, tr.PendingTask)
	}
	if err := tr.Validate(); err != nil {
		t.Fatalf("pending trace invalid: %v", err)
	}

	tr.ClearPending()
	if tr.Status != StatusRunning || tr.PendingTask != nil {
		t.Fatal("clear pending did not restore running state")
	}
	if err := tr.Validate(); err != nil {
		t.Fatalf("cleared trace invalid: %v", err)
	}

	// A pending task without PENDING status violates the invariant.
	tr.PendingTask = hitl.NewTask("x", nil, "")
	if err := tr.Validate(); err == nil {
		t.Fatal("expected invariant violation")
	}
}

func TestIterationBudgetInvariant(t *testing.T) {
	tr := NewExecutionTrace(3)
	tr.Iteration = 4
	if err := tr.Validate(); err == nil {
		t.Fatal("expected iteration over budget to be invalid")
	}
}

func TestResetForPromptClearsPlans(t *testing.T) {
	tr := NewExecutionTrace(10)
	tr.ReplacePlans([]string{"book flight", "book hotel"})
	tr.Iteration = 5
	tr.FinalAnswer = "old answer"

	tr.ResetForPrompt(false)
	if tr.Iteration != 0 || len(tr.Plans) != 0 || tr.FinalAnswer != "" {
		t.Fatalf("reset incomplete: %+v", tr)
	}

	tr.ReplacePlans([]string{"step one"})
	tr.ResetForPrompt(true)
	if len(tr.Plans) != 1 {
		t.Fatal("expected plans kept for complex prompt")
	}
}

func TestReplacePlansIsAtomic(t *testing.T) {
	tr := NewExecutionTrace(10)
	tr.ReplacePlans([]string{"a", "b", "c"})
	tr.ReplacePlans([]string{"x"})
	if len(tr.Plans) != 1 || tr.Plans[0] != "x" {
		t.Fatalf("revision must replace the plan list, got %v", tr.Plans)
	}
}

func TestExecutionTraceRoundTrip(t *testing.T) {
	tr := NewExecutionTrace(10)
	tr.Append(StepReason, "I should transfer the funds")
	tr.Append(StepAct, "transfer_funds({\"amount\":5000})")
	tr.Iteration = 1
	tr.WorkingMemory = []llm.Message{{Role: llm.RoleUser, Content: "pay the invoice"}}
	tr.Suspend(hitl.NewTask("transfer_funds", map[string]any{"amount": float64(5000)}, "large transfer"), "approval required")

	data, err := tr.MarshalText()
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var restored ExecutionTrace
	if err := restored.UnmarshalText(data); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if restored.Status != StatusPending {
		t.Fatalf("status lost: %s", restored.Status)
	}
	if restored.PendingTask == nil || restored.PendingTask.ToolName != "transfer_funds" {
		t.Fatalf("pending task lost: %+v", restored.PendingTask)
	}
	if restored.PendingTask.Args["amount"].(float64) != 5000 {
		t.Fatalf("task args lost: %v", restored.PendingTask.Args)
	}
	if len(restored.Steps) != 2 || restored.Steps[0].Kind != StepReason {
		t.Fatalf("steps lost: %+v", restored.Steps)
	}
	if len(restored.WorkingMemory) != 1 {
		t.Fatalf("working memory lost: %+v", restored.WorkingMemory)
	}
	if err := restored.Validate(); err != nil {
		t.Fatalf("restored trace invalid: %v", err)
	}
}

func TestTeamTraceConcurrentAppend(t *testing.T) {
	tr := NewTeamTrace()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				tr.Append(TeamStep{AgentName: "worker", Content: "output", IsAgent: true})
			}
		}()
	}
	wg.Wait()
	if tr.Len() != 400 {
		t.Fatalf("lost appends: got %d", tr.Len())
	}
}

func TestTeamTraceAgentStepsFilter(t *testing.T) {
	tr := NewTeamTrace()
	tr.Append(TeamStep{AgentName: "router", Content: "next: writer", IsAgent: false})
	tr.Append(TeamStep{AgentName: "writer", Content: "draft done", IsAgent: true})

	agentSteps := tr.AgentSteps()
	if len(agentSteps) != 1 || agentSteps[0].AgentName != "writer" {
		t.Fatalf("unexpected agent steps: %+v", agentSteps)
	}
}

func TestTeamTraceRoundTrip(t *testing.T) {
	tr := NewTeamTrace()
	tr.Append(TeamStep{AgentName: "researcher", Content: "found sources", IsAgent: true, DurationMs: 120})
	tr.SetFinalAnswer("report complete")
	tr.SetLastNodeID("member-researcher")

	data, err := json.Marshal(tr)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	restored := NewTeamTrace()
	if err := json.Unmarshal(data, restored); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if restored.FinalAnswer() != "report complete" {
		t.Fatalf("final answer lost: %s", restored.FinalAnswer())
	}
	if restored.LastNodeID() != "member-researcher" {
		t.Fatalf("last node lost: %s", restored.LastNodeID())
	}
	if restored.Len() != 1 || restored.Steps()[0].DurationMs != 120 {
		t.Fatalf("steps lost: %+v", restored.Steps())
	}
}
