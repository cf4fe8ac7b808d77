package trace

import (
	"encoding/json"
	"sync"
	"time"
)

// TeamStep is one immutable entry in a team run's log. IsAgent
// distinguishes member output from orchestration overhead; loop detection
// considers agent steps only.
type TeamStep struct {
	AgentName  string    `json:"agent_name"`
	Content    string    `json:"content"`
	DurationMs int64     `json:"duration_ms"`
	IsAgent    bool      `json:"is_agent"`
	Timestamp  time.Time `json:"timestamp"`
}

// TeamTrace is the append-only log of a team invocation. Appends are
// serialized so parallel member fan-out cannot lose updates.
type TeamTrace struct {
	mu          sync.Mutex
	steps       []TeamStep
	finalAnswer string
	lastNodeID  string
}

// NewTeamTrace creates an empty team trace.
func NewTeamTrace() *TeamTrace {
	return &TeamTrace{}
}

// Append records a step.
func (t *TeamTrace) Append(step TeamStep) {
	if step.Timestamp.IsZero() {
		step.Timestamp = time.Now().UTC()
	}
	t.mu.Lock()
	t.steps = append(t.steps, step)
	t.mu.Unlock()
}

// Steps returns a snapshot of the recorded steps.
func (t *TeamTrace) Steps() []TeamStep {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]TeamStep(nil), t.steps...)
}

// AgentSteps returns a snapshot of member-produced steps only.
func (t *TeamTrace) AgentSteps() []TeamStep {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]TeamStep, 0, len(t.steps))
	for _, step := range t.steps {
		if step.IsAgent {
			out = append(out, step)
		}
	}
	return out
}

// Len returns the number of recorded steps.
func (t *TeamTrace) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.steps)
}

// SetFinalAnswer records the team result. Set once at completion.
func (t *TeamTrace) SetFinalAnswer(answer string) {
	t.mu.Lock()
	t.finalAnswer = answer
	t.mu.Unlock()
}

// FinalAnswer returns the recorded team result.
func (t *TeamTrace) FinalAnswer() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.finalAnswer
}

// SetLastNodeID records the backing-scheduler position reached, used to
// resume a team run from that exact node.
func (t *TeamTrace) SetLastNodeID(id string) {
	t.mu.Lock()
	t.lastNodeID = id
	t.mu.Unlock()
}

// LastNodeID returns the recorded scheduler position.
func (t *TeamTrace) LastNodeID() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.lastNodeID
}

type teamTraceJSON struct {
	Steps       []TeamStep `json:"steps"`
	FinalAnswer string     `json:"final_answer,omitempty"`
	LastNodeID  string     `json:"last_node_id,omitempty"`
}

// MarshalJSON serializes the trace.
func (t *TeamTrace) MarshalJSON() ([]byte, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return json.Marshal(teamTraceJSON{
		Steps:       t.steps,
		FinalAnswer: t.finalAnswer,
		LastNodeID:  t.lastNodeID,
	})
}

// UnmarshalJSON restores the trace.
func (t *TeamTrace) UnmarshalJSON(data []byte) error {
	var raw teamTraceJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	t.mu.Lock()
	t.steps = raw.Steps
	t.finalAnswer = raw.FinalAnswer
	t.lastNodeID = raw.LastNodeID
	t.mu.Unlock()
	return nil
}
