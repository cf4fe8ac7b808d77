// Copyright 2026 © The Praxis Authors
// SPDX-License-Identifier: Apache-2.0

// Package session holds the durable unit of persistence for agent runs:
// conversation history, named variables, and the traces of suspended or
// completed executions. A Session outlives any single run and must
// serialize to flat JSON so a paused run can resume in another process.
package session

import (
	"encoding/json"
	"regexp"
	"time"

	"github.com/google/uuid"

	praxiserrors "github.com/tessellate/praxis/pkg/errors"
	"github.com/tessellate/praxis/pkg/llm"
	"github.com/tessellate/praxis/pkg/trace"
)

// Session is the caller-owned state shared across runs. Messages are the
// durable conversation history, appended per turn. Variables carry named
// outputs between agents. Traces hold per-agent execution state keyed by
// agent name; TeamTrace holds the cross-agent log when a team runs.
type Session struct {
	ID        string                           `json:"id"`
	Messages  []llm.Message                    `json:"messages"`
	Variables map[string]string                `json:"variables,omitempty"`
	Traces    map[string]*trace.ExecutionTrace `json:"traces,omitempty"`
	TeamTrace *trace.TeamTrace                 `json:"team_trace,omitempty"`
	CreatedAt time.Time                        `json:"created_at"`
	UpdatedAt time.Time                        `json:"updated_at"`
}

// New creates a session. An empty id gets a generated UUID.
func New(id string) *Session {
	if id == "" {
		id = uuid.New().String()
	}
	now := time.Now().UTC()
	return &Session{
		ID:        id,
		Variables: make(map[string]string),
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// AppendMessage adds one turn to the conversation history.
func (s *Session) AppendMessage(msg llm.Message) {
	s.Messages = append(s.Messages, msg)
	s.UpdatedAt = time.Now().UTC()
}

// SetVariable writes a named output, typically an agent's outputKey.
func (s *Session) SetVariable(key, value string) {
	if s.Variables == nil {
		s.Variables = make(map[string]string)
	}
	s.Variables[key] = value
	s.UpdatedAt = time.Now().UTC()
}

// Variable reads a named value.
func (s *Session) Variable(key string) (string, bool) {
	v, ok := s.Variables[key]
	return v, ok
}

// Trace returns the execution trace stored for the named agent, or nil.
func (s *Session) Trace(agentName string) *trace.ExecutionTrace {
	return s.Traces[agentName]
}

// PutTrace stores an agent's execution trace, replacing any previous one.
func (s *Session) PutTrace(agentName string, t *trace.ExecutionTrace) {
	if s.Traces == nil {
		s.Traces = make(map[string]*trace.ExecutionTrace)
	}
	s.Traces[agentName] = t
	s.UpdatedAt = time.Now().UTC()
}

var placeholderRe = regexp.MustCompile(`\{\{\s*([A-Za-z0-9_.-]+)\s*\}\}`)

// Interpolate substitutes {{key}} placeholders with session variables.
// Unknown keys are left intact so missing inputs stay visible downstream.
func (s *Session) Interpolate(template string) string {
	return placeholderRe.ReplaceAllStringFunc(template, func(match string) string {
		key := placeholderRe.FindStringSubmatch(match)[1]
		if v, ok := s.Variables[key]; ok {
			return v
		}
		return match
	})
}

// MarshalText serializes the full session to JSON.
func (s *Session) MarshalText() ([]byte, error) {
	data, err := json.Marshal(s)
	if err != nil {
		return nil, praxiserrors.New(praxiserrors.CodeSessionError, "failed to serialize session", err).
			WithContext("session_id", s.ID)
	}
	return data, nil
}

// UnmarshalText restores a session from its JSON form.
func (s *Session) UnmarshalText(data []byte) error {
	if err := json.Unmarshal(data, s); err != nil {
		return praxiserrors.New(praxiserrors.CodeSessionError, "failed to deserialize session", err)
	}
	return nil
}

// Clone returns a deep copy through the serialized form, preserving the
// whole-object replace contract of the stores.
func (s *Session) Clone() (*Session, error) {
	data, err := s.MarshalText()
	if err != nil {
		return nil, err
	}
	var out Session
	if err := out.UnmarshalText(data); err != nil {
		return nil, err
	}
	return &out, nil
}
