package hitl

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore persists tasks and decisions in SQLite so a paused run can be
// resumed by a different process instance.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a SQLite-backed store and ensures schema.
func NewSQLiteStore(db *sql.DB) (*SQLiteStore, error) {
	if db == nil {
		return nil, errors.New("db is nil")
	}
	if err := ensureHITLSchema(db); err != nil {
		return nil, err
	}
	return &SQLiteStore{db: db}, nil
}

func ensureHITLSchema(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS hitl_pending_tasks (
			session_id TEXT PRIMARY KEY,
			tool_name  TEXT NOT NULL,
			args_json  TEXT NOT NULL,
			comment    TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMP NOT NULL
		);
		CREATE TABLE IF NOT EXISTS hitl_decisions (
			session_id    TEXT NOT NULL,
			tool_name     TEXT NOT NULL,
			outcome       TEXT NOT NULL,
			modified_json TEXT NOT NULL DEFAULT 'null',
			comment       TEXT NOT NULL DEFAULT '',
			created_at    TIMESTAMP NOT NULL,
			PRIMARY KEY (session_id, tool_name)
		);
	`)
	return err
}

// PutTask records the outstanding task for a session, replacing any prior one.
func (s *SQLiteStore) PutTask(ctx context.Context, sessionID string, task *Task) error {
	if task == nil {
		return s.ClearTask(ctx, sessionID)
	}
	args, err := json.Marshal(task.Args)
	if err != nil {
		return err
	}
	createdAt := task.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO hitl_pending_tasks (session_id, tool_name, args_json, comment, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(session_id) DO UPDATE SET
			tool_name = excluded.tool_name,
			args_json = excluded.args_json,
			comment = excluded.comment,
			created_at = excluded.created_at
	`, sessionID, task.ToolName, string(args), task.Comment, createdAt.UTC())
	return err
}

// PendingTask returns the outstanding task for a session, or nil.
func (s *SQLiteStore) PendingTask(ctx context.Context, sessionID string) (*Task, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT tool_name, args_json, comment, created_at
		FROM hitl_pending_tasks WHERE session_id = ?
	`, sessionID)

	var task Task
	var argsJSON string
	if err := row.Scan(&task.ToolName, &argsJSON, &task.Comment, &task.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	if err := json.Unmarshal([]byte(argsJSON), &task.Args); err != nil {
		return nil, err
	}
	return &task, nil
}

// ClearTask removes the outstanding task for a session.
func (s *SQLiteStore) ClearTask(ctx context.Context, sessionID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM hitl_pending_tasks WHERE session_id = ?`, sessionID)
	return err
}

// PutDecision records a decision, overwriting any prior one for the key.
func (s *SQLiteStore) PutDecision(ctx context.Context, sessionID, toolName string, decision Decision) error {
	modified, err := json.Marshal(decision.ModifiedArgs)
	if err != nil {
		return err
	}
	createdAt := decision.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO hitl_decisions (session_id, tool_name, outcome, modified_json, comment, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(session_id, tool_name) DO UPDATE SET
			outcome = excluded.outcome,
			modified_json = excluded.modified_json,
			comment = excluded.comment,
			created_at = excluded.created_at
	`, sessionID, toolName, string(decision.Outcome), string(modified), decision.Comment, createdAt.UTC())
	return err
}

// TakeDecision reads and clears the decision for the key in one transaction.
func (s *SQLiteStore) TakeDecision(ctx context.Context, sessionID, toolName string) (*Decision, bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, false, err
	}
	defer tx.Rollback()

	row := tx.QueryRowContext(ctx, `
		SELECT outcome, modified_json, comment, created_at
		FROM hitl_decisions WHERE session_id = ? AND tool_name = ?
	`, sessionID, toolName)

	var decision Decision
	var outcome, modifiedJSON string
	if err := row.Scan(&outcome, &modifiedJSON, &decision.Comment, &decision.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, err
	}
	decision.Outcome = Outcome(outcome)
	if err := json.Unmarshal([]byte(modifiedJSON), &decision.ModifiedArgs); err != nil {
		return nil, false, err
	}

	if _, err := tx.ExecContext(ctx, `
		DELETE FROM hitl_decisions WHERE session_id = ? AND tool_name = ?
	`, sessionID, toolName); err != nil {
		return nil, false, err
	}
	if err := tx.Commit(); err != nil {
		return nil, false, err
	}
	return &decision, true, nil
}
