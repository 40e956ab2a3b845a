// Package builtintools provides a minimal set of concrete tools exercising
// the envelope/adapter pipeline end to end: a data source, a processor, a
// file operator, a storage uploader, and an image pair for the
// images-to-paths adaptation scenario. Grounded on original_source/tools'
// field names (query/max_results, file_path/text, image_path/angle), not
// their Python bodies.
package builtintools

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/pipelinerun/engine/runtime/envelope"
	"github.com/pipelinerun/engine/runtime/registry"
	"github.com/pipelinerun/engine/runtime/toolident"
)

// Searcher answers a query with a slice of result strings. Swappable for
// tests; RegisterSearch wires a fixed in-memory Searcher when none is supplied.
type Searcher interface {
	Search(ctx context.Context, query string, maxResults int) ([]string, error)
}

// SearcherFunc adapts a plain function to Searcher.
type SearcherFunc func(ctx context.Context, query string, maxResults int) ([]string, error)

// Search calls f.
func (f SearcherFunc) Search(ctx context.Context, query string, maxResults int) ([]string, error) {
	return f(ctx, query, maxResults)
}

// staticSearcher returns canned results built from the query, useful as a
// registry default and in tests that don't need a real search backend.
type staticSearcher struct{}

func (staticSearcher) Search(_ context.Context, query string, maxResults int) ([]string, error) {
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("search: query must not be empty")
	}
	if maxResults < 1 || maxResults > 20 {
		maxResults = 3
	}
	out := make([]string, 0, maxResults)
	for i := 1; i <= maxResults; i++ {
		out = append(out, fmt.Sprintf("%s — result %d", query, i))
	}
	return out, nil
}

// RegisterSearch registers the "search" data_source tool against reg. If s
// is nil, a static in-memory searcher is used.
func RegisterSearch(reg *registry.Registry, s Searcher) error {
	if s == nil {
		s = staticSearcher{}
	}
	return reg.Register(registry.ToolDescriptor{
		Name:     "search",
		Category: toolident.CategoryDataSource,
		InputSchema: map[string]toolident.SemanticType{
			"query":       toolident.SemanticString,
			"max_results": toolident.SemanticNumber,
		},
		Output: registry.OutputShape{Primary: toolident.SemanticList},
		Invoke: func(ctx context.Context, params map[string]any) envelope.Envelope {
			start := time.Now()
			query, _ := params["query"].(string)
			maxResults := 3
			if v, ok := params["max_results"].(float64); ok {
				maxResults = int(v)
			}
			results, err := s.Search(ctx, query, maxResults)
			if err != nil {
				return envelope.FromError("search", params, err)
			}
			anyResults := make([]any, len(results))
			for i, r := range results {
				anyResults[i] = r
			}
			return envelope.NewBuilder("search", params).
				WithVersion("1.0.0").
				Primary(anyResults).
				Count("results", len(anyResults)).
				Message(fmt.Sprintf("found %d results in %s", len(anyResults), time.Since(start))).
				Build()
		},
	})
}
