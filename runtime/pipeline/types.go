// Package pipeline holds the data model shared by the dependency-resolution
// subsystem (C3, C4, C5), the adapters (C6, C7), and the executor (C8): the
// Pipeline Specification, Node Spec, Node Output Record, and Dependency Edge
// types.
package pipeline

import (
	"github.com/pipelinerun/engine/runtime/envelope"
	"github.com/pipelinerun/engine/runtime/toolident"
)

// OutputHint is the planner's advisory declaration of the output type/key it
// expects a node to produce. It is a hint only; the engine never trusts it
// over the tool's actual declared output shape.
type OutputHint struct {
	Type string `json:"type,omitempty"`
	Key  string `json:"key,omitempty"`
}

// NodeSpec is one tool invocation in a Pipeline Specification.
type NodeSpec struct {
	ID       string         `json:"id"`
	ToolType string         `json:"tool_type"`
	Params   map[string]any `json:"params"`
	Output   OutputHint     `json:"output,omitempty"`
}

// Spec is the declarative plan emitted by the NL parser (treated as an
// external oracle; see runtime/nlparser). Immutable after the parser
// returns.
type Spec struct {
	PipelineID string     `json:"pipeline_id"`
	Components []NodeSpec `json:"components"`
}

// NodeOutputRecord is created by the executor when a node finishes; it lives
// until the pipeline terminates and is owned solely by the executor.
type NodeOutputRecord struct {
	NodeID      string
	OutputType  string
	OutputKey   string
	Value       any // the full envelope (as a map) or its primary projection
	Description string
	Envelope    envelope.Envelope
}

// EdgeKind classifies how a Dependency Edge was inferred.
type EdgeKind string

const (
	EdgeKindPlaceholder       EdgeKind = "placeholder"
	EdgeKindDataFlowSemantic  EdgeKind = "data_flow_semantic"
)

// Edge is an inferred dependency between two nodes: source must execute
// before target.
type Edge struct {
	Source     string
	Target     string
	Confidence float64
	Kind       EdgeKind
	Evidence   []string
}

// Plan is the ordered list of node ids produced by the Execution Order
// Builder (C5), plus any ordering violations found during validation.
type Plan struct {
	Order      []string
	Violations []string
	CycleFound bool
}

// ToolLookup resolves a tool_type to its category, used by the dependency
// analyzer and order builder without depending on the full registry package
// (keeps this package free of a registry import cycle).
type ToolLookup func(toolType string) (category toolident.Category, ok bool)
