// Package registry implements the Tool Registry (C1): a static, read-only
// (after startup) enumeration of available tools, each exposing its
// declared input schema, output shape, category, and invoker.
package registry

import (
	"context"
	"fmt"
	"sync"

	"github.com/pipelinerun/engine/runtime/envelope"
	"github.com/pipelinerun/engine/runtime/toolident"
)

// Invoker executes a tool given its resolved, adapted parameters. It must
// never panic in normal operation; if it does, invoke recovers and wraps the
// panic into an error Envelope.
type Invoker func(ctx context.Context, params map[string]any) envelope.Envelope

// OutputShape declares which envelope keys a tool is known to populate, used
// by the dependency analyzer (C4) and the parameter adapter (C6) to reason
// about producer/consumer compatibility without invoking the tool.
type OutputShape struct {
	// Primary describes the semantic type of data.primary, if populated.
	Primary toolident.SemanticType
	// SecondaryKeys lists keys the tool is known to populate under
	// data.secondary.
	SecondaryKeys []string
	// PopulatesPaths reports whether the tool ever populates paths.
	PopulatesPaths bool
}

// SchemaHint optionally names the output schema's well-known key path for
// schema-driven resolution fallback: when set, the Placeholder Resolver
// consults it before the legacy field map.
type SchemaHint struct {
	// Keys maps a logical key name (as might appear in a placeholder key
	// path) to the dotted path within the envelope where that value lives,
	// e.g. {"text": "data.primary"}.
	Keys map[string]string
}

// ToolDescriptor records everything the registry knows about one tool short
// of its actual implementation body.
type ToolDescriptor struct {
	// Name is the key used in Node Spec's tool_type field.
	Name toolident.Ident
	// Category classifies the tool for ordering/compatibility purposes.
	Category toolident.Category
	// InputSchema maps parameter name to its declared semantic type.
	InputSchema map[string]toolident.SemanticType
	// Output describes what the tool is known to populate.
	Output OutputShape
	// Schema optionally narrows resolution via SchemaHint.
	Schema *SchemaHint
	// Invoke is the concrete tool implementation.
	Invoke Invoker
}

// Registry holds the statically registered tools. Registration happens at
// process start (via Register); after that the registry is read-only, and
// List/Get take only a shared read lock.
type Registry struct {
	mu    sync.RWMutex
	tools map[toolident.Ident]ToolDescriptor
}

// New constructs an empty Registry.
func New() *Registry {
	return &Registry{tools: make(map[toolident.Ident]ToolDescriptor)}
}

// Register adds or replaces a tool descriptor. Intended to be called during
// process start-up, before any pipeline executes; callers that register
// after requests are in flight are responsible for their own synchronization
// discipline (Register itself is safe to call concurrently).
func (r *Registry) Register(desc ToolDescriptor) error {
	if desc.Name == "" {
		return fmt.Errorf("registry: tool name must not be empty")
	}
	if !desc.Category.Valid() {
		return fmt.Errorf("registry: tool %q has invalid category %q", desc.Name, desc.Category)
	}
	if desc.Invoke == nil {
		return fmt.Errorf("registry: tool %q has no invoker", desc.Name)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[desc.Name] = desc
	return nil
}

// List returns all registered descriptors, in no particular order.
func (r *Registry) List() []ToolDescriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]ToolDescriptor, 0, len(r.tools))
	for _, d := range r.tools {
		out = append(out, d)
	}
	return out
}

// Get returns the descriptor for name, or false if unregistered.
func (r *Registry) Get(name toolident.Ident) (ToolDescriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.tools[name]
	return d, ok
}

// Invoke looks up name and calls its Invoker, validating params against the
// declared schema first. If the tool is unregistered, panics, or fails
// validation, the result is always a well-formed error Envelope rather than
// a Go error.
func (r *Registry) Invoke(ctx context.Context, name toolident.Ident, params map[string]any) (env envelope.Envelope) {
	desc, ok := r.Get(name)
	if !ok {
		return envelope.NewBuilder(string(name), params).
			Fail(fmt.Sprintf("unknown tool %q", name), fmt.Sprintf("tool %q is not registered", name)).
			Build()
	}
	if err := ValidateParams(desc, params); err != nil {
		return envelope.NewBuilder(string(name), params).
			Fail("invalid parameters", err.Error()).
			Build()
	}
	defer func() {
		if r := recover(); r != nil {
			env = envelope.NewBuilder(string(name), params).
				Fail("tool panicked", fmt.Sprintf("%v", r)).
				Build()
		}
	}()
	return desc.Invoke(ctx, params)
}
