package hitl

import (
	"context"
	"sync"
	"time"
)

// Store persists at most one outstanding task per session and the decision
// that resolves it. Decisions are addressed by (sessionID, toolName):
// a decision write is last-write-wins, and the resuming loop consumes it
// with an atomic read-and-clear. Misuse (taking an absent decision,
// double-submitting) is a no-op rather than an error, keeping the resume
// path idempotent under retries.
type Store interface {
	PutTask(ctx context.Context, sessionID string, task *Task) error
	PendingTask(ctx context.Context, sessionID string) (*Task, error)
	ClearTask(ctx context.Context, sessionID string) error
	PutDecision(ctx context.Context, sessionID, toolName string, decision Decision) error
	TakeDecision(ctx context.Context, sessionID, toolName string) (*Decision, bool, error)
}

type decisionKey struct {
	sessionID string
	toolName  string
}

// MemoryStore keeps tasks and decisions in memory.
type MemoryStore struct {
	mu        sync.Mutex
	tasks     map[string]*Task
	decisions map[decisionKey]Decision
}

// NewMemoryStore creates an in-memory decision store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		tasks:     make(map[string]*Task),
		decisions: make(map[decisionKey]Decision),
	}
}

// PutTask records the outstanding task for a session, replacing any prior one.
func (s *MemoryStore) PutTask(_ context.Context, sessionID string, task *Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if task == nil {
		delete(s.tasks, sessionID)
		return nil
	}
	copied := *task
	s.tasks[sessionID] = &copied
	return nil
}

// PendingTask returns the outstanding task for a session, or nil.
func (s *MemoryStore) PendingTask(_ context.Context, sessionID string) (*Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	task, ok := s.tasks[sessionID]
	if !ok {
		return nil, nil
	}
	copied := *task
	return &copied, nil
}

// ClearTask removes the outstanding task for a session.
func (s *MemoryStore) ClearTask(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.tasks, sessionID)
	return nil
}

// PutDecision records a decision, overwriting any prior one for the key.
func (s *MemoryStore) PutDecision(_ context.Context, sessionID, toolName string, decision Decision) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if decision.CreatedAt.IsZero() {
		decision.CreatedAt = time.Now().UTC()
	}
	s.decisions[decisionKey{sessionID, toolName}] = decision
	return nil
}

// TakeDecision reads and clears the decision for the key in one step.
func (s *MemoryStore) TakeDecision(_ context.Context, sessionID, toolName string) (*Decision, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := decisionKey{sessionID, toolName}
	decision, ok := s.decisions[key]
	if !ok {
		return nil, false, nil
	}
	delete(s.decisions, key)
	return &decision, true, nil
}
