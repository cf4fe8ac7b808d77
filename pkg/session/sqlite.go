// Copyright 2026 © The Praxis Authors
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"context"
	"database/sql"
	"errors"
	"time"

	_ "modernc.org/sqlite"

	praxiserrors "github.com/tessellate/praxis/pkg/errors"
)

// SQLiteStore persists sessions in a SQLite database so paused runs
// survive process restarts.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a SQLite-backed store and ensures schema.
func NewSQLiteStore(db *sql.DB) (*SQLiteStore, error) {
	if db == nil {
		return nil, errors.New("db is nil")
	}
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS sessions (
			id         TEXT PRIMARY KEY,
			data_json  TEXT NOT NULL,
			updated_at TIMESTAMP NOT NULL
		)`)
	if err != nil {
		return nil, praxiserrors.New(praxiserrors.CodeSessionError, "failed to create sessions table", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Load implements Store.
func (s *SQLiteStore) Load(ctx context.Context, id string) (*Session, error) {
	var data string
	err := s.db.QueryRowContext(ctx, `SELECT data_json FROM sessions WHERE id = ?`, id).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, praxiserrors.New(praxiserrors.CodeNotFound, "session not found", nil).
			WithContext("session_id", id)
	}
	if err != nil {
		return nil, praxiserrors.New(praxiserrors.CodeSessionError, "failed to load session", err).
			WithContext("session_id", id)
	}
	var sess Session
	if err := sess.UnmarshalText([]byte(data)); err != nil {
		return nil, err
	}
	return &sess, nil
}

// Save implements Store.
func (s *SQLiteStore) Save(ctx context.Context, sess *Session) error {
	data, err := sess.MarshalText()
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO sessions (id, data_json, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET data_json = excluded.data_json, updated_at = excluded.updated_at`,
		sess.ID, string(data), time.Now().UTC())
	if err != nil {
		return praxiserrors.New(praxiserrors.CodeSessionError, "failed to save session", err).
			WithContext("session_id", sess.ID)
	}
	return nil
}

// Delete implements Store.
func (s *SQLiteStore) Delete(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, id)
	if err != nil {
		return praxiserrors.New(praxiserrors.CodeSessionError, "failed to delete session", err).
			WithContext("session_id", id)
	}
	return nil
}

// List implements Store.
func (s *SQLiteStore) List(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id FROM sessions ORDER BY id`)
	if err != nil {
		return nil, praxiserrors.New(praxiserrors.CodeSessionError, "failed to list sessions", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, praxiserrors.New(praxiserrors.CodeSessionError, "failed to scan session id", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
