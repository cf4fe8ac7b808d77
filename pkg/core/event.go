package core

import (
	"context"
	"time"
)

// EventType identifies a semantic event emitted by the loop or the coordinator.
type EventType string

const (
	EventLoopThinking    EventType = "loop.thinking"
	EventLoopActing      EventType = "loop.acting"
	EventLoopObserving   EventType = "loop.observing"
	EventLoopInterrupted EventType = "loop.interrupted"
	EventLoopResumed     EventType = "loop.resumed"
	EventLoopCompleted   EventType = "loop.completed"
	EventLoopFailed      EventType = "loop.failed"
	EventTeamStep        EventType = "team.step"
	EventTeamStopped     EventType = "team.stopped"
)

// Event captures a semantic streaming/logging event. The loop thread blocks
// on model and tool calls; callers wanting non-blocking UX consume these
// events over an async channel while the call proceeds.
type Event struct {
	Type      EventType
	Agent     string
	RunID     string
	Timestamp time.Time
	Payload   map[string]any
}

// EventEmitter receives semantic events.
type EventEmitter interface {
	Emit(ctx context.Context, event Event)
}

// NoopEventEmitter is a default no-op implementation.
type NoopEventEmitter struct{}

// Emit implements EventEmitter.
func (NoopEventEmitter) Emit(_ context.Context, _ Event) {}

// NewEvent builds a default event with timestamp.
func NewEvent(eventType EventType, agent, runID string, payload map[string]any) Event {
	return Event{
		Type:      eventType,
		Agent:     agent,
		RunID:     runID,
		Timestamp: time.Now().UTC(),
		Payload:   payload,
	}
}

// ChannelEmitter forwards events to a buffered channel without blocking
// the loop: events are dropped when the consumer lags.
type ChannelEmitter struct {
	ch chan Event
}

// NewChannelEmitter creates an emitter with the given buffer size.
func NewChannelEmitter(buffer int) *ChannelEmitter {
	if buffer <= 0 {
		buffer = 64
	}
	return &ChannelEmitter{ch: make(chan Event, buffer)}
}

// Emit implements EventEmitter.
func (e *ChannelEmitter) Emit(_ context.Context, event Event) {
	select {
	case e.ch <- event:
	default:
	}
}

// Events returns the receive side of the channel.
func (e *ChannelEmitter) Events() <-chan Event { return e.ch }

// Close closes the channel. Call only after the producing run returned.
func (e *ChannelEmitter) Close() { close(e.ch) }
