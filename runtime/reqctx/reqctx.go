// Package reqctx implements the Session/Request Context (C12): an opaque
// value carrying a request id, cancellation, the event sink, and per-request
// overrides, threaded through the engine with no global state.
package reqctx

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/pipelinerun/engine/runtime/stream"
)

// DefaultHeartbeatInterval is the default interval at which the executor
// emits a heartbeat event while a node is in progress.
const DefaultHeartbeatInterval = 5 * time.Second

// Overrides holds per-request tunables that default to process-wide
// settings unless the caller overrides them.
type Overrides struct {
	NodeTimeout       time.Duration
	PipelineTimeout   time.Duration
	HeartbeatInterval time.Duration
}

// Context is the per-request context passed through C3-C9. It wraps a
// standard context.Context for cancellation/deadlines and adds the fields
// the engine needs that context.Context's key-value bag would otherwise
// hide behind untyped lookups.
type Context struct {
	context.Context
	RequestID string
	Emitter   *stream.Emitter
	Overrides Overrides
}

// New constructs a Context. If requestID is empty, a new uuid is generated.
// The emitter is wrapped with the same request id so every event it sends
// is correctly stamped.
func New(parent context.Context, requestID string, sink stream.Sink, overrides Overrides) *Context {
	if requestID == "" {
		requestID = uuid.NewString()
	}
	if overrides.HeartbeatInterval == 0 {
		overrides.HeartbeatInterval = DefaultHeartbeatInterval
	}
	return &Context{
		Context:   parent,
		RequestID: requestID,
		Emitter:   stream.NewEmitter(sink, requestID),
		Overrides: overrides,
	}
}

// Cancelled reports whether the request's cancellation signal has fired.
func (c *Context) Cancelled() bool {
	select {
	case <-c.Done():
		return true
	default:
		return false
	}
}

// WithTimeout derives a child context bounded by d, returning the new
// context and its cancel func; callers must call cancel to release
// resources once the bounded operation completes.
func (c *Context) WithTimeout(d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return c.Context, func() {}
	}
	return context.WithTimeout(c.Context, d)
}
