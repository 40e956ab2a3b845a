// Package engine implements the Pipeline Executor (C8): it drives a planned
// node order end to end, wiring together the registry, resolver, adapters,
// event stream, dependency-issue classifier, and request context built by
// every other runtime package. This is the one package that imports all of
// them; none of them import it back.
package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/pipelinerun/engine/runtime/depanalysis"
	"github.com/pipelinerun/engine/runtime/depissue"
	"github.com/pipelinerun/engine/runtime/engineerr"
	"github.com/pipelinerun/engine/runtime/envelope"
	"github.com/pipelinerun/engine/runtime/outputadapt"
	"github.com/pipelinerun/engine/runtime/paramadapt"
	"github.com/pipelinerun/engine/runtime/pipeline"
	"github.com/pipelinerun/engine/runtime/placeholder"
	"github.com/pipelinerun/engine/runtime/planorder"
	"github.com/pipelinerun/engine/runtime/registry"
	"github.com/pipelinerun/engine/runtime/reqctx"
	"github.com/pipelinerun/engine/runtime/stream"
	"github.com/pipelinerun/engine/runtime/telemetry"
	"github.com/pipelinerun/engine/runtime/toolident"
)

// FailurePolicy decides whether a node's error envelope halts the pipeline.
type FailurePolicy string

const (
	// PolicyHaltOnError stops the pipeline at the first node whose envelope
	// status is error.
	PolicyHaltOnError FailurePolicy = "halt_on_error"
	// PolicyContinueOnPartial keeps running subsequent nodes when a node
	// returns partial_success or error, aggregating every result.
	PolicyContinueOnPartial FailurePolicy = "continue_on_partial"
)

// Result is the terminal outcome of one pipeline run.
type Result struct {
	RequestID string
	Outputs   map[string]*pipeline.NodeOutputRecord
	Plan      pipeline.Plan
	Err       *engineerr.Error
}

// Engine executes Pipeline Specifications. Construct with New.
type Engine struct {
	registry   *registry.Registry
	resolver   *placeholder.Resolver
	analyzer   *depanalysis.Analyzer
	paramAdapt *paramadapt.Adapter
	outAdapt   *outputadapt.Adapter
	policy     FailurePolicy
	logger     telemetry.Logger
	metrics    telemetry.Metrics
	tracer     telemetry.Tracer

	mu           sync.RWMutex
	nodeToolType map[string]string // populated per-run, read by lookupSchemaHint

	categorySemantics map[toolident.Category]depanalysis.CategorySemantics
	legacyFieldMap    map[string]string
}

// Option configures an Engine.
type Option func(*Engine)

// WithFailurePolicy overrides the default halt-on-error policy.
func WithFailurePolicy(p FailurePolicy) Option {
	return func(e *Engine) { e.policy = p }
}

// WithLogger sets the logger used for execution diagnostics.
func WithLogger(l telemetry.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithMetrics sets the metrics sink used for per-node timers and counters.
func WithMetrics(m telemetry.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// WithTracer sets the tracer used to span each node invocation.
func WithTracer(t telemetry.Tracer) Option {
	return func(e *Engine) { e.tracer = t }
}

// WithCategorySemantics overrides the dependency analyzer's compiled-in
// category input/output table, typically loaded from config/categories.yaml
// via runtime/config.
func WithCategorySemantics(m map[toolident.Category]depanalysis.CategorySemantics) Option {
	return func(e *Engine) { e.categorySemantics = m }
}

// WithLegacyFieldMap overrides the placeholder resolver's legacy key-path
// fallback table, typically loaded from config/legacy_fields.yaml.
func WithLegacyFieldMap(m map[string]string) Option {
	return func(e *Engine) { e.legacyFieldMap = m }
}


// New constructs an Engine wired to reg for tool invocation. outAdapt is
// handed to the placeholder resolver (via WithAdapter), which asks it to
// produce a key when every other lookup for a placeholder key path misses.
func New(reg *registry.Registry, outAdapt *outputadapt.Adapter, opts ...Option) *Engine {
	e := &Engine{
		registry:   reg,
		outAdapt:   outAdapt,
		paramAdapt: paramadapt.New(),
		policy:     PolicyHaltOnError,
		logger:     telemetry.NewNoopLogger(),
		metrics:    telemetry.NewNoopMetrics(),
		tracer:     telemetry.NewNoopTracer(),
	}
	for _, o := range opts {
		o(e)
	}
	resolverOpts := []placeholder.Option{
		placeholder.WithAdapter(outAdapt),
		placeholder.WithLogger(e.logger),
		placeholder.WithSchemaLookup(e.lookupSchemaHint),
	}
	if e.legacyFieldMap != nil {
		resolverOpts = append(resolverOpts, placeholder.WithLegacyFieldMap(e.legacyFieldMap))
	}
	e.resolver = placeholder.New(resolverOpts...)

	var analyzerOpts []depanalysis.Option
	if e.categorySemantics != nil {
		analyzerOpts = append(analyzerOpts, depanalysis.WithCategorySemantics(e.categorySemantics))
	}
	e.analyzer = depanalysis.New(e.lookupCategory, analyzerOpts...)
	return e
}

// lookupSchemaHint resolves a producer node id to its tool's declared
// SchemaHint, if any. The resolver calls this with the node id from a
// placeholder token, so it depends on the node's output having already been
// recorded — which is guaranteed by the time a downstream node resolves a
// reference to it.
func (e *Engine) lookupSchemaHint(nodeID string) (map[string]string, bool) {
	desc, ok := e.schemaHintFor(nodeID)
	if !ok || desc.Schema == nil {
		return nil, false
	}
	return desc.Schema.Keys, true
}

func (e *Engine) schemaHintFor(nodeID string) (registry.ToolDescriptor, bool) {
	e.mu.RLock()
	toolType, ok := e.nodeToolType[nodeID]
	e.mu.RUnlock()
	if !ok {
		return registry.ToolDescriptor{}, false
	}
	return e.registry.Get(toolident.Ident(toolType))
}

func (e *Engine) lookupCategory(toolType string) (toolident.Category, bool) {
	desc, ok := e.registry.Get(toolident.Ident(toolType))
	if !ok {
		return "", false
	}
	return desc.Category, true
}

// Run plans and executes spec under rc, emitting progress events to rc's
// Emitter and returning the final outcome. Run never returns a Go error
// directly for a node-level failure; that is represented in Result.Err and,
// for the halting node, as the terminal "error" stream event. A non-nil
// returned error indicates spec itself could not be planned at all.
func (e *Engine) Run(rc *reqctx.Context, spec pipeline.Spec) (Result, error) {
	if len(spec.Components) == 0 {
		err := engineerr.New(engineerr.KindBadSpec, "pipeline has no components")
		_ = rc.Emitter.Emit(rc, stream.TypeError, "", err.Error(), nil)
		return Result{RequestID: rc.RequestID, Err: err}, err
	}

	byID := make(map[string]pipeline.NodeSpec, len(spec.Components))
	nodeToolType := make(map[string]string, len(spec.Components))
	for _, n := range spec.Components {
		byID[n.ID] = n
		nodeToolType[n.ID] = n.ToolType
	}
	e.mu.Lock()
	e.nodeToolType = nodeToolType
	e.mu.Unlock()

	pipelineCtx, cancelPipeline := rc.WithTimeout(rc.Overrides.PipelineTimeout)
	defer cancelPipeline()
	pipelineRC := *rc
	pipelineRC.Context = pipelineCtx
	rc = &pipelineRC

	runCtx, runSpan := e.tracer.Start(rc, "engine.run")
	defer runSpan.End()
	nodeRC := *rc
	nodeRC.Context = runCtx
	rc = &nodeRC

	edges := e.analyzer.Infer(spec)
	plan := planorder.Build(spec, edges, e.lookupCategory)
	if plan.CycleFound {
		e.logger.Warn(rc, "cycle detected, falling back to heuristic order", "pipeline", spec.PipelineID)
	}
	for _, v := range plan.Violations {
		e.logger.Warn(rc, "execution order violation", "pipeline", spec.PipelineID, "detail", v)
	}

	_ = rc.Emitter.Emit(rc, stream.TypeStatus, "", "plan ready", map[string]any{
		"order":       plan.Order,
		"cycle_found": plan.CycleFound,
	})

	outputs := make(map[string]*pipeline.NodeOutputRecord, len(spec.Components))
	result := Result{RequestID: rc.RequestID, Outputs: outputs, Plan: plan}

	for _, nodeID := range plan.Order {
		if rc.Cancelled() {
			kind, msg := engineerr.KindCancelled, "request cancelled"
			if rc.Err() == context.DeadlineExceeded {
				kind, msg = engineerr.KindTimeout, "pipeline timeout exceeded"
			}
			err := engineerr.New(kind, msg).WithNode(nodeID)
			result.Err = err
			_ = rc.Emitter.Emit(rc, stream.TypeError, nodeID, err.Error(), nil)
			return result, nil
		}

		node, ok := byID[nodeID]
		if !ok {
			continue // planner produced an id absent from the spec; skip defensively
		}

		env, nodeErr := e.runNode(rc, node, outputs)
		outputs[node.ID] = &pipeline.NodeOutputRecord{
			NodeID:      node.ID,
			OutputType:  node.Output.Type,
			OutputKey:   node.Output.Key,
			Value:       env.AsMap(),
			Description: env.Message,
			Envelope:    env,
		}

		if nodeErr != nil {
			result.Err = nodeErr
			if e.policy == PolicyHaltOnError {
				_ = rc.Emitter.Emit(rc, stream.TypeError, node.ID, nodeErr.Error(), map[string]any{
					"envelope": env,
				})
				return result, nil
			}
		}
	}

	_ = rc.Emitter.Emit(rc, stream.TypeResult, "", "pipeline complete", summarize(outputs))
	return result, nil
}

// startHeartbeat emits a stream.TypeHeartbeat event every
// rc.Overrides.HeartbeatInterval while a node invocation is in flight, so a
// transport watching the event stream can tell a long-running node apart
// from a stalled one. It stops as soon as nodeCtx is done or the returned
// func is called, whichever comes first; HeartbeatInterval <= 0 disables it.
func (e *Engine) startHeartbeat(rc *reqctx.Context, nodeCtx context.Context, nodeID string) func() {
	interval := rc.Overrides.HeartbeatInterval
	if interval <= 0 {
		return func() {}
	}
	done := make(chan struct{})
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				_ = rc.Emitter.Emit(rc, stream.TypeHeartbeat, nodeID, "node in progress", nil)
			case <-nodeCtx.Done():
				return
			case <-done:
				return
			}
		}
	}()
	return func() { close(done) }
}

// runNode resolves placeholders, adapts parameters, invokes the tool, and
// classifies a failing envelope's error text into a dependency issue when
// applicable. It always returns a well-formed Envelope; nodeErr is non-nil
// only when the envelope's status is error. A node that fails because its
// timeout expired is classified KindTimeout rather than KindToolError.
func (e *Engine) runNode(rc *reqctx.Context, node pipeline.NodeSpec, outputs map[string]*pipeline.NodeOutputRecord) (envelope.Envelope, *engineerr.Error) {
	_ = rc.Emitter.Emit(rc, stream.TypeToolStart, node.ID, fmt.Sprintf("starting %s", node.ToolType), nil)

	ctx, span := e.tracer.Start(rc, "engine.runNode")
	defer span.End()

	start := time.Now()
	defer func() {
		e.metrics.RecordTimer("engine.node.duration", time.Since(start), "tool_type", node.ToolType)
	}()

	resolved, misses := e.resolver.Resolve(node.Params, outputs)
	for _, m := range misses {
		e.logger.Warn(ctx, "placeholder unresolved", "node", node.ID, "ref", m.NodeID, "key", m.Key, "reason", m.Reason)
	}

	desc, ok := e.registry.Get(toolident.Ident(node.ToolType))
	if !ok {
		err := engineerr.Newf(engineerr.KindBadSpec, "unknown tool type %q", node.ToolType).WithNode(node.ID)
		env := envelope.FromError(node.ToolType, resolved, err)
		_ = rc.Emitter.Emit(rc, stream.TypeToolResult, node.ID, env.Message, env)
		return env, err
	}

	adapted, applied := e.paramAdapt.Adapt(resolved, desc.InputSchema)
	for _, a := range applied {
		e.logger.Debug(ctx, "parameter adapted", "node", node.ID, "param", a.Param, "from", a.From, "to", a.To)
	}

	nodeCtx, cancel := rc.WithTimeout(rc.Overrides.NodeTimeout)
	defer cancel()

	stopHeartbeat := e.startHeartbeat(rc, nodeCtx, node.ID)
	env := e.registry.Invoke(nodeCtx, toolident.Ident(node.ToolType), adapted)
	stopHeartbeat()
	_ = rc.Emitter.Emit(rc, stream.TypeToolResult, node.ID, env.Message, env)

	if env.Status != envelope.StatusError {
		e.metrics.IncCounter("engine.node.success", 1, "tool_type", node.ToolType)
		return env, nil
	}

	e.metrics.IncCounter("engine.node.failure", 1, "tool_type", node.ToolType)

	if nodeCtx.Err() == context.DeadlineExceeded {
		return env, engineerr.New(engineerr.KindTimeout, "node exceeded its timeout: "+env.Message).WithNode(node.ID)
	}

	nodeErr := engineerr.New(engineerr.KindToolError, env.Message).WithNode(node.ID)

	if issues := depissue.Classify(env.Error); len(issues) > 0 {
		issue := issues[0]
		e.logger.Error(ctx, "dependency issue classified", "node", node.ID, "kind", issue.Kind, "package", issue.Package)
		_ = rc.Emitter.Emit(rc, stream.TypeStatus, node.ID, "dependency issue detected", issue)
		nodeErr = engineerr.Newf(engineerr.KindDependencyIssue, "%s: %s", issue.Kind, env.Error).
			WithNode(node.ID).
			WithRemediation(joinSolutions(issue.SuggestedSolutions))
	}

	return env, nodeErr
}

func joinSolutions(solutions []string) string {
	if len(solutions) == 0 {
		return ""
	}
	return solutions[0]
}

// summarize builds a compact map of node id -> status for the terminal
// result event's data payload.
func summarize(outputs map[string]*pipeline.NodeOutputRecord) map[string]any {
	out := make(map[string]any, len(outputs))
	for id, rec := range outputs {
		out[id] = rec.Envelope.Status
	}
	return out
}
