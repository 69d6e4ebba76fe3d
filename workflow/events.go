package workflow

import (
	"sync"
	"time"
)

// EventKind identifies a progress event.
type EventKind string

const (
	EventRunStart         EventKind = "run_start"
	EventRunEnd           EventKind = "run_end"
	EventStateChange      EventKind = "state_change"
	EventLLMTurnStart     EventKind = "llm_turn_start"
	EventLLMTurnEnd       EventKind = "llm_turn_end"
	EventToolCallStart    EventKind = "tool_call_start"
	EventToolCallEnd      EventKind = "tool_call_end"
	EventToolCallSkipped  EventKind = "tool_call_skipped"
	EventContextTruncated EventKind = "context_truncated"
	EventIterationLimit   EventKind = "iteration_limit"
	EventLoopDetected     EventKind = "loop_detected"
	EventError            EventKind = "error"
)

// RunEvent is a progress notification for one run.
type RunEvent struct {
	Kind      EventKind              `json:"kind"`
	Timestamp time.Time              `json:"timestamp"`
	RunID     string                 `json:"run_id"`
	Workflow  string                 `json:"workflow"`
	Data      map[string]interface{} `json:"data,omitempty"`
}

// EventEmitter delivers run events over a buffered channel. A nil
// emitter drops everything.
type EventEmitter struct {
	ch     chan RunEvent
	closed bool
	mu     sync.Mutex
}

// NewEventEmitter creates an emitter; bufferSize <= 0 means 256.
func NewEventEmitter(bufferSize int) *EventEmitter {
	if bufferSize <= 0 {
		bufferSize = 256
	}
	return &EventEmitter{ch: make(chan RunEvent, bufferSize)}
}

// Emit never blocks: when the buffer is full or the emitter is closed the
// event is dropped.
func (e *EventEmitter) Emit(ev RunEvent) {
	if e == nil {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}
	select {
	case e.ch <- ev:
	default:
	}
}

// Events returns the read side of the channel.
func (e *EventEmitter) Events() <-chan RunEvent {
	return e.ch
}

// Close closes the channel. Safe to call more than once.
func (e *EventEmitter) Close() {
	if e == nil {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.closed {
		e.closed = true
		close(e.ch)
	}
}
