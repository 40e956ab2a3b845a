// Package nlparser defines the external Natural-Language Parser oracle
// contract: a component that turns a free-text request into a Pipeline
// Specification. The engine itself never imports a model SDK directly —
// only this package does — so swapping or stubbing the oracle never touches
// C1-C12.
package nlparser

import (
	"context"

	"github.com/pipelinerun/engine/runtime/pipeline"
)

// Parser turns a natural-language request into a Pipeline Specification.
// The engine treats it as an external oracle and makes no correctness
// guarantees about its output.
type Parser interface {
	Parse(ctx context.Context, request string) (pipeline.Spec, error)
}

// ParserFunc adapts a plain function to the Parser interface.
type ParserFunc func(ctx context.Context, request string) (pipeline.Spec, error)

// Parse calls f.
func (f ParserFunc) Parse(ctx context.Context, request string) (pipeline.Spec, error) {
	return f(ctx, request)
}
