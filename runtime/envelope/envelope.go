// Package envelope defines the Output Envelope, the standardized result
// shape every registered tool must return, and the helpers that keep it
// JSON-serializable regardless of what an individual tool produces.
package envelope

import (
	"encoding/json"
	"fmt"
	"reflect"
	"time"
)

// Status classifies the outcome of a single tool invocation.
type Status string

const (
	StatusSuccess        Status = "success"
	StatusPartialSuccess Status = "partial_success"
	StatusError          Status = "error"
)

type (
	// Envelope is the invariant result shape every tool returns. Every field
	// must be JSON-serializable; Normalize substitutes an opaque marker for
	// any value that is not.
	Envelope struct {
		Status   Status   `json:"status"`
		Data     Data     `json:"data"`
		Metadata Metadata `json:"metadata"`
		Paths    []string `json:"paths,omitempty"`
		Message  string   `json:"message,omitempty"`
		Error    string   `json:"error,omitempty"`
	}

	// Data groups the three payload fields a tool can populate.
	Data struct {
		Primary   any            `json:"primary,omitempty"`
		Secondary map[string]any `json:"secondary,omitempty"`
		Counts    map[string]any `json:"counts,omitempty"`
	}

	// Metadata carries provenance for the envelope.
	Metadata struct {
		ToolName        string         `json:"tool_name"`
		Version         string         `json:"version,omitempty"`
		Parameters      map[string]any `json:"parameters,omitempty"`
		ProcessingTime  float64        `json:"processing_time"`
	}
)

// Builder accumulates an Envelope and stamps processing time on Build. Tools
// and the registry's invoke wrapper use it instead of constructing an
// Envelope literal so the start-time bookkeeping is never forgotten.
type Builder struct {
	start    time.Time
	toolName string
	version  string
	params   map[string]any
	env      Envelope
}

// NewBuilder starts a Builder for toolName, recording the current time as the
// invocation start so Build can compute processing_time.
func NewBuilder(toolName string, params map[string]any) *Builder {
	return &Builder{
		start:    time.Now(),
		toolName: toolName,
		params:   params,
		env:      Envelope{Status: StatusSuccess},
	}
}

// WithVersion sets the tool version recorded in metadata.
func (b *Builder) WithVersion(v string) *Builder {
	b.version = v
	return b
}

// Primary sets data.primary.
func (b *Builder) Primary(v any) *Builder {
	b.env.Data.Primary = v
	return b
}

// Secondary sets a key in data.secondary.
func (b *Builder) Secondary(key string, v any) *Builder {
	if b.env.Data.Secondary == nil {
		b.env.Data.Secondary = map[string]any{}
	}
	b.env.Data.Secondary[key] = v
	return b
}

// Count sets a key in data.counts.
func (b *Builder) Count(key string, v any) *Builder {
	if b.env.Data.Counts == nil {
		b.env.Data.Counts = map[string]any{}
	}
	b.env.Data.Counts[key] = v
	return b
}

// Path appends a produced filesystem path.
func (b *Builder) Path(p string) *Builder {
	b.env.Paths = append(b.env.Paths, p)
	return b
}

// Message sets the human-readable one-liner.
func (b *Builder) Message(msg string) *Builder {
	b.env.Message = msg
	return b
}

// Partial marks the envelope partial_success.
func (b *Builder) Partial() *Builder {
	b.env.Status = StatusPartialSuccess
	return b
}

// Fail marks the envelope as an error with the given message/detail.
func (b *Builder) Fail(message, detail string) *Builder {
	b.env.Status = StatusError
	b.env.Message = message
	b.env.Error = detail
	return b
}

// Build stamps processing_time and normalizes the envelope for
// JSON-serializability, returning the finished value.
func (b *Builder) Build() Envelope {
	b.env.Metadata = Metadata{
		ToolName:       b.toolName,
		Version:        b.version,
		Parameters:     b.params,
		ProcessingTime: time.Since(b.start).Seconds(),
	}
	return Normalize(b.env)
}

// FromError builds an error Envelope from a Go error, using err.Error() as
// both message and detail when the caller has no richer summary.
func FromError(toolName string, params map[string]any, err error) Envelope {
	return NewBuilder(toolName, params).Fail(err.Error(), err.Error()).Build()
}

// Normalize walks env and replaces every value that json.Marshal cannot
// round-trip with an opaque marker string "<opaque:TypeName@id>", so the
// envelope invariant (every field JSON-serializable) always holds even when
// a tool hands back an in-memory object (an image buffer, a file handle).
func Normalize(env Envelope) Envelope {
	env.Data.Primary = normalizeValue(env.Data.Primary)
	env.Data.Secondary = normalizeMap(env.Data.Secondary)
	env.Data.Counts = normalizeMap(env.Data.Counts)
	env.Metadata.Parameters = normalizeMap(env.Metadata.Parameters)
	return env
}

func normalizeMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = normalizeValue(v)
	}
	return out
}

func normalizeValue(v any) any {
	if v == nil {
		return nil
	}
	switch t := v.(type) {
	case map[string]any:
		return normalizeMap(t)
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = normalizeValue(e)
		}
		return out
	}
	if _, err := json.Marshal(v); err != nil {
		return opaqueMarker(v)
	}
	return v
}

// opaqueMarker formats v as "<opaque:TypeName@id>". id is the pointer value
// for reference kinds (chan, func, map, pointer, slice; stable for the
// object's lifetime); every other kind, structs included, gets a zero id.
func opaqueMarker(v any) string {
	rv := reflect.ValueOf(v)
	typeName := rv.Type().String()
	var id uint64
	switch rv.Kind() {
	case reflect.Chan, reflect.Func, reflect.Map, reflect.Ptr, reflect.UnsafePointer, reflect.Slice:
		id = uint64(rv.Pointer())
	}
	return fmt.Sprintf("<opaque:%s@%x>", typeName, id)
}

// Project returns the envelope's "primary projection": when v is a map and
// outputKey is non-empty and present, v[outputKey]; otherwise v itself. This
// is deliberately the whole-map fallback (see DESIGN.md Open Question 1), not
// a guessed well-known key.
func Project(v any, outputKey string) any {
	if outputKey == "" {
		return v
	}
	m, ok := v.(map[string]any)
	if !ok {
		return v
	}
	if val, ok := m[outputKey]; ok {
		return val
	}
	return v
}

// AsMap returns env encoded as a generic map, e.g. for placeholder key-path
// walks that need to treat the envelope uniformly with other map values.
func (e Envelope) AsMap() map[string]any {
	b, err := json.Marshal(e)
	if err != nil {
		return map[string]any{}
	}
	var m map[string]any
	_ = json.Unmarshal(b, &m)
	return m
}
