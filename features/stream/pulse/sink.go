// Package pulse exposes a stream.Sink implementation that publishes engine
// events to goa.design/pulse streams. It mirrors the layering used by
// existing Pulse deployments: callers build a Redis client, pass it to the
// Pulse client, and hand the resulting sink to the engine's event emitter so
// progress events fan out across processes instead of staying in-memory.
package pulse

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/pipelinerun/engine/features/stream/pulse/clients/pulse"
	"github.com/pipelinerun/engine/runtime/stream"
)

type (
	// Options configures the Pulse sink.
	Options struct {
		// Client is the Pulse client used to publish events. Required.
		Client pulse.Client
		// StreamID derives the target Pulse stream name from an event.
		// Defaults to "request/<RequestID>".
		StreamID func(stream.Event) (string, error)
		// MarshalEnvelope allows overriding envelope serialization (tests).
		MarshalEnvelope func(Envelope) ([]byte, error)
		// OnPublished, when set, is invoked after an event has been written to
		// the underlying Pulse stream. If it returns an error, Send fails.
		OnPublished func(context.Context, PublishedEvent) error
	}

	// Sink publishes engine stream.Event values into Pulse streams. Safe for
	// concurrent Send, though the engine only calls Send sequentially per
	// request.
	Sink struct {
		client pulse.Client
		opts   sinkOptions
	}

	sinkOptions struct {
		streamID        func(stream.Event) (string, error)
		marshalEnvelope func(Envelope) ([]byte, error)
		onPublished     func(context.Context, PublishedEvent) error
	}

	// Envelope wraps an engine event for transmission over a Pulse stream.
	Envelope struct {
		Type      string  `json:"type"`
		Step      string  `json:"step"`
		Message   string  `json:"message"`
		Timestamp float64 `json:"timestamp"`
		RequestID string  `json:"request_id"`
		Data      any     `json:"data,omitempty"`
	}

	// PublishedEvent describes an event that has been successfully written to
	// a Pulse stream.
	PublishedEvent struct {
		Event    stream.Event
		StreamID string
		EntryID  string
	}
)

// NewSink constructs a Pulse-backed stream.Sink. Options.Client is required;
// StreamID and MarshalEnvelope default to the built-in implementations.
func NewSink(opts Options) (*Sink, error) {
	if opts.Client == nil {
		return nil, errors.New("pulse client is required")
	}
	cfg := sinkOptions{
		streamID:        defaultStreamID,
		marshalEnvelope: defaultMarshal,
		onPublished:     opts.OnPublished,
	}
	if opts.StreamID != nil {
		cfg.streamID = opts.StreamID
	}
	if opts.MarshalEnvelope != nil {
		cfg.marshalEnvelope = opts.MarshalEnvelope
	}
	return &Sink{client: opts.Client, opts: cfg}, nil
}

// Send publishes event to the derived Pulse stream.
func (s *Sink) Send(ctx context.Context, event stream.Event) error {
	streamID, err := s.opts.streamID(event)
	if err != nil {
		return err
	}
	handle, err := s.client.Stream(streamID)
	if err != nil {
		return err
	}
	env := Envelope{
		Type:      string(event.Type),
		Step:      event.Step,
		Message:   event.Message,
		Timestamp: event.Timestamp,
		RequestID: event.RequestID,
		Data:      event.Data,
	}
	payload, err := s.opts.marshalEnvelope(env)
	if err != nil {
		return err
	}
	entryID, err := handle.Add(ctx, env.Type, payload)
	if err != nil {
		return err
	}
	if cb := s.opts.onPublished; cb != nil {
		return cb(ctx, PublishedEvent{Event: event, StreamID: streamID, EntryID: entryID})
	}
	return nil
}

// Close releases resources owned by the sink by delegating to the Pulse
// client (which may or may not own the underlying Redis connection).
func (s *Sink) Close(ctx context.Context) error {
	return s.client.Close(ctx)
}

// defaultStreamID derives the Pulse stream name from the event's RequestID.
func defaultStreamID(event stream.Event) (string, error) {
	if event.RequestID == "" {
		return "", errors.New("stream event missing request id")
	}
	return fmt.Sprintf("request/%s", event.RequestID), nil
}

func defaultMarshal(env Envelope) ([]byte, error) {
	return json.Marshal(env)
}
