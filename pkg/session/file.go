// Copyright 2026 © The Praxis Authors
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	praxiserrors "github.com/tessellate/praxis/pkg/errors"
)

// FileStore persists each session as a JSON file under a base directory.
// Suitable for simple durability without external dependencies.
type FileStore struct {
	mu      sync.RWMutex
	baseDir string
}

// NewFileStore creates a file-backed store, creating the directory if
// needed.
func NewFileStore(baseDir string) (*FileStore, error) {
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create session directory: %w", err)
	}
	return &FileStore{baseDir: baseDir}, nil
}

func (f *FileStore) sessionFile(id string) string {
	// Sanitize to prevent path traversal
	safe := filepath.Base(id)
	return filepath.Join(f.baseDir, safe+".json")
}

// Load implements Store.
func (f *FileStore) Load(_ context.Context, id string) (*Session, error) {
	f.mu.RLock()
	data, err := os.ReadFile(f.sessionFile(id))
	f.mu.RUnlock()
	if err != nil {
		if os.IsNotExist(err) {
			return nil, praxiserrors.New(praxiserrors.CodeNotFound, "session not found", nil).
				WithContext("session_id", id)
		}
		return nil, praxiserrors.New(praxiserrors.CodeSessionError, "failed to read session file", err).
			WithContext("session_id", id)
	}
	var s Session
	if err := s.UnmarshalText(data); err != nil {
		return nil, err
	}
	return &s, nil
}

// Save implements Store. The file is written atomically via a temp file
// rename so a crash mid-write never leaves a truncated session.
func (f *FileStore) Save(_ context.Context, s *Session) error {
	data, err := s.MarshalText()
	if err != nil {
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	path := f.sessionFile(s.ID)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return praxiserrors.New(praxiserrors.CodeSessionError, "failed to write session file", err).
			WithContext("session_id", s.ID)
	}
	if err := os.Rename(tmp, path); err != nil {
		return praxiserrors.New(praxiserrors.CodeSessionError, "failed to replace session file", err).
			WithContext("session_id", s.ID)
	}
	return nil
}

// Delete implements Store.
func (f *FileStore) Delete(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	err := os.Remove(f.sessionFile(id))
	if err != nil && !os.IsNotExist(err) {
		return praxiserrors.New(praxiserrors.CodeSessionError, "failed to delete session file", err).
			WithContext("session_id", id)
	}
	return nil
}

// List implements Store.
func (f *FileStore) List(_ context.Context) ([]string, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	entries, err := os.ReadDir(f.baseDir)
	if err != nil {
		return nil, praxiserrors.New(praxiserrors.CodeSessionError, "failed to list session directory", err)
	}
	var ids []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".json") {
			continue
		}
		ids = append(ids, strings.TrimSuffix(name, ".json"))
	}
	sort.Strings(ids)
	return ids, nil
}
