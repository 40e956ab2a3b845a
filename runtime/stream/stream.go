// Package stream implements the Event Stream (C9): a uniform progress-event
// schema and an append-only, single-producer-per-request delivery contract
// consumed by transport layers, narrowed to the one event schema this
// engine emits.
package stream

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Type is the closed set of event types the engine emits.
type Type string

const (
	TypeProgress   Type = "progress"
	TypeStatus     Type = "status"
	TypeToolStart  Type = "tool_start"
	TypeToolResult Type = "tool_result"
	TypePartial    Type = "partial"
	TypeHeartbeat  Type = "heartbeat"
	TypeResult     Type = "result"
	TypeError      Type = "error"
)

// Terminal reports whether t is one of the two terminal event types. Exactly
// one terminal event is emitted per request.
func (t Type) Terminal() bool {
	return t == TypeResult || t == TypeError
}

// Event is one message in the stream. Timestamp is Unix epoch seconds with
// sub-second precision; within a request, successive events' Timestamp
// values are non-decreasing.
type Event struct {
	Type      Type   `json:"type"`
	Step      string `json:"step"`
	Message   string `json:"message"`
	Data      any    `json:"data,omitempty"`
	Timestamp float64 `json:"timestamp"`
	RequestID string `json:"request_id"`
}

// Sink delivers events to a transport (HTTP chunked, SSE, WebSocket, Pulse).
// Implementations must be safe for concurrent Send, though the engine itself
// only ever calls Send sequentially per request.
type Sink interface {
	// Send delivers event. Returns an error if the transport rejects or
	// fails to deliver it.
	Send(ctx context.Context, event Event) error
	// Close releases sink resources. Idempotent.
	Close(ctx context.Context) error
}

// Recorder is a Sink that accumulates events in memory, in order. It is the
// default sink used by tests and by callers that just want to collect a
// request's full event history (e.g. the demo CLI).
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

// NewRecorder constructs an empty Recorder.
func NewRecorder() *Recorder { return &Recorder{} }

// Send appends event to the recorded history.
func (r *Recorder) Send(_ context.Context, event Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return nil
}

// Close is a no-op; Recorder owns no external resources.
func (r *Recorder) Close(context.Context) error { return nil }

// Events returns a snapshot of the events recorded so far.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

// ChanSink is a Sink that forwards events onto a buffered channel, for
// callers that want to stream events to a transport as they are produced
// (e.g. an HTTP handler relaying newline-delimited JSON).
type ChanSink struct {
	ch     chan Event
	once   sync.Once
	closed chan struct{}
}

// NewChanSink constructs a ChanSink with the given channel buffer size.
func NewChanSink(buffer int) *ChanSink {
	return &ChanSink{ch: make(chan Event, buffer), closed: make(chan struct{})}
}

// C returns the channel events are delivered on. Closed when Close is called.
func (s *ChanSink) C() <-chan Event { return s.ch }

// Send delivers event onto the channel, blocking until there is room or ctx
// is done.
func (s *ChanSink) Send(ctx context.Context, event Event) error {
	select {
	case <-s.closed:
		return fmt.Errorf("stream: send on closed sink")
	default:
	}
	select {
	case s.ch <- event:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close closes the underlying channel. Idempotent.
func (s *ChanSink) Close(context.Context) error {
	s.once.Do(func() {
		close(s.closed)
		close(s.ch)
	})
	return nil
}

// Emitter stamps Event.RequestID and a monotonic Timestamp before delegating
// to an underlying Sink, and enforces the single-terminal-event rule: once a
// terminal event (result/error) has been sent, further sends are rejected.
// This is the construct components actually hold; it wraps the raw Sink the
// caller configured.
type Emitter struct {
	sink      Sink
	requestID string

	mu       sync.Mutex
	lastTS   float64
	terminal bool
}

// NewEmitter constructs an Emitter over sink for the given request id. If
// requestID is empty, a new one is generated.
func NewEmitter(sink Sink, requestID string) *Emitter {
	if requestID == "" {
		requestID = uuid.NewString()
	}
	return &Emitter{sink: sink, requestID: requestID}
}

// RequestID returns the request id events are stamped with.
func (e *Emitter) RequestID() string { return e.requestID }

// Emit sends an event of the given type/step/message/data through the
// underlying sink. It is a no-op (returns nil) once a terminal event has
// already been sent, preserving the "exactly one terminal event" invariant.
func (e *Emitter) Emit(ctx context.Context, typ Type, step, message string, data any) error {
	// The lock is held across Send so concurrent emitters (the heartbeat
	// goroutine and the node loop) reach the sink one at a time, in
	// timestamp order, and nothing follows the terminal event.
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.terminal {
		return nil
	}
	ts := float64(time.Now().UnixNano()) / 1e9
	if ts < e.lastTS {
		ts = e.lastTS
	}
	e.lastTS = ts
	if typ.Terminal() {
		e.terminal = true
	}

	return e.sink.Send(ctx, Event{
		Type:      typ,
		Step:      step,
		Message:   message,
		Data:      data,
		Timestamp: ts,
		RequestID: e.requestID,
	})
}

// Terminated reports whether a terminal event has already been sent.
func (e *Emitter) Terminated() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.terminal
}

// Close closes the underlying sink.
func (e *Emitter) Close(ctx context.Context) error {
	return e.sink.Close(ctx)
}
