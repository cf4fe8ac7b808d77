// Copyright 2026 © The Praxis Authors
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"context"
	"sort"
	"sync"

	praxiserrors "github.com/tessellate/praxis/pkg/errors"
)

// Store persists sessions with whole-object replace semantics: Save
// overwrites the stored session entirely, there is no partial patching.
type Store interface {
	// Load returns the session for the id, or a CodeNotFound error.
	Load(ctx context.Context, id string) (*Session, error)
	// Save replaces the stored session with the given one.
	Save(ctx context.Context, s *Session) error
	// Delete removes a session. Deleting an absent session is a no-op.
	Delete(ctx context.Context, id string) error
	// List returns all stored session ids, sorted.
	List(ctx context.Context) ([]string, error)
}

// MemoryStore keeps sessions in process memory. Mainly for tests and
// single-process embedding.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string][]byte
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[string][]byte)}
}

// Load implements Store.
func (m *MemoryStore) Load(_ context.Context, id string) (*Session, error) {
	m.mu.RLock()
	data, ok := m.sessions[id]
	m.mu.RUnlock()
	if !ok {
		return nil, praxiserrors.New(praxiserrors.CodeNotFound, "session not found", nil).
			WithContext("session_id", id)
	}
	var s Session
	if err := s.UnmarshalText(data); err != nil {
		return nil, err
	}
	return &s, nil
}

// Save implements Store. The session is stored in serialized form so the
// caller's object cannot mutate stored state afterwards.
func (m *MemoryStore) Save(_ context.Context, s *Session) error {
	data, err := s.MarshalText()
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.sessions[s.ID] = data
	m.mu.Unlock()
	return nil
}

// Delete implements Store.
func (m *MemoryStore) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	delete(m.sessions, id)
	m.mu.Unlock()
	return nil
}

// List implements Store.
func (m *MemoryStore) List(_ context.Context) ([]string, error) {
	m.mu.RLock()
	ids := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	m.mu.RUnlock()
	sort.Strings(ids)
	return ids, nil
}
