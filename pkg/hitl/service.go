package hitl

import (
	"context"
	"log/slog"
	"time"
)

// Service exposes the human-facing approval operations as thin accessors
// over a Store.
type Service struct {
	store Store
}

// NewService creates an approval service over the given store.
func NewService(store Store) *Service {
	return &Service{store: store}
}

// GetPendingTask returns the outstanding task for a session, or nil.
func (s *Service) GetPendingTask(ctx context.Context, sessionID string) (*Task, error) {
	return s.store.PendingTask(ctx, sessionID)
}

// Submit records a decision for the session's pending task. Submitting when
// no task is pending, or submitting twice, is last-write-wins rather than
// an error.
func (s *Service) Submit(ctx context.Context, sessionID, toolName string, decision Decision) error {
	if err := s.store.PutDecision(ctx, sessionID, toolName, decision); err != nil {
		return err
	}
	slog.Default().Info("hitl.decision.submit",
		slog.String("session_id", sessionID),
		slog.String("tool_name", toolName),
		slog.String("outcome", string(decision.Outcome)),
	)
	return nil
}

// Approve submits an APPROVE decision, optionally overriding the original
// tool arguments.
func (s *Service) Approve(ctx context.Context, sessionID, toolName string, modifiedArgs map[string]any, comment string) error {
	return s.Submit(ctx, sessionID, toolName, Decision{
		Outcome:      OutcomeApprove,
		ModifiedArgs: modifiedArgs,
		Comment:      comment,
		CreatedAt:    time.Now().UTC(),
	})
}

// Reject submits a REJECT decision with the given comment.
func (s *Service) Reject(ctx context.Context, sessionID, toolName, comment string) error {
	return s.Submit(ctx, sessionID, toolName, Decision{
		Outcome:   OutcomeReject,
		Comment:   comment,
		CreatedAt: time.Now().UTC(),
	})
}

// Skip submits a SKIP decision with the given comment.
func (s *Service) Skip(ctx context.Context, sessionID, toolName, comment string) error {
	return s.Submit(ctx, sessionID, toolName, Decision{
		Outcome:   OutcomeSkip,
		Comment:   comment,
		CreatedAt: time.Now().UTC(),
	})
}
