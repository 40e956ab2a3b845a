package depanalysis

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/pipelinerun/engine/runtime/pipeline"
	"github.com/pipelinerun/engine/runtime/toolident"
)

func lookup(cats map[string]toolident.Category) pipeline.ToolLookup {
	return func(toolType string) (toolident.Category, bool) {
		c, ok := cats[toolType]
		return c, ok
	}
}

func TestInfer_ExactPlaceholderReference(t *testing.T) {
	a := New(lookup(nil))
	spec := pipeline.Spec{Components: []pipeline.NodeSpec{
		{ID: "search", ToolType: "search"},
		{ID: "report", ToolType: "report_generator", Params: map[string]any{
			"findings": "$search.output.data.primary",
		}},
	}}
	edges := a.Infer(spec)
	require.Len(t, edges, 1)
	require.Equal(t, "search", edges[0].Source)
	require.Equal(t, "report", edges[0].Target)
	require.Equal(t, pipeline.EdgeKindPlaceholder, edges[0].Kind)
	require.InDelta(t, 0.9, edges[0].Confidence, 0.001)
}

func TestInfer_FuzzyPlaceholderReferenceRecovery(t *testing.T) {
	a := New(lookup(nil))
	// referenced id "search_node" isn't a literal node id, but should fuzzy
	// match the actual "search" node (suffix-stripped substring match).
	spec := pipeline.Spec{Components: []pipeline.NodeSpec{
		{ID: "search", ToolType: "search"},
		{ID: "report", ToolType: "report_generator", Params: map[string]any{
			"findings": "$search_node.output",
		}},
	}}
	edges := a.Infer(spec)
	require.Len(t, edges, 1)
	require.Equal(t, "search", edges[0].Source)
	require.Equal(t, "report", edges[0].Target)
}

func TestInfer_SelfReferenceIgnored(t *testing.T) {
	a := New(lookup(nil))
	spec := pipeline.Spec{Components: []pipeline.NodeSpec{
		{ID: "search", ToolType: "search", Params: map[string]any{"x": "$search.output"}},
	}}
	require.Empty(t, a.Infer(spec))
}

func TestInfer_CategorySemanticEdgeWhenNoPlaceholder(t *testing.T) {
	cats := map[string]toolident.Category{
		"search":       toolident.CategoryDataSource,
		"file_writer":  toolident.CategoryFileOperator,
	}
	a := New(lookup(cats))
	spec := pipeline.Spec{Components: []pipeline.NodeSpec{
		{ID: "n1", ToolType: "search"},
		{ID: "n2", ToolType: "file_writer"},
	}}
	edges := a.Infer(spec)
	require.NotEmpty(t, edges)
	found := false
	for _, e := range edges {
		if e.Source == "n1" && e.Target == "n2" && e.Kind == pipeline.EdgeKindDataFlowSemantic {
			found = true
		}
	}
	require.True(t, found)
}

func TestInfer_UnknownToolTypeSkippedByPassBButNotPassA(t *testing.T) {
	a := New(lookup(nil))
	spec := pipeline.Spec{Components: []pipeline.NodeSpec{
		{ID: "n1", ToolType: "custom_unregistered"},
		{ID: "n2", ToolType: "custom_unregistered", Params: map[string]any{"x": "$n1.output"}},
	}}
	edges := a.Infer(spec)
	require.Len(t, edges, 1)
	require.Equal(t, pipeline.EdgeKindPlaceholder, edges[0].Kind)
}

func TestInfer_DedupesAndKeepsHighestConfidence(t *testing.T) {
	cats := map[string]toolident.Category{
		"search": toolident.CategoryDataSource, "report_generator": toolident.CategoryDataProcessor,
	}
	a := New(lookup(cats))
	spec := pipeline.Spec{Components: []pipeline.NodeSpec{
		{ID: "search", ToolType: "search"},
		{ID: "report", ToolType: "report_generator", Params: map[string]any{
			"findings": "$search.output.data.primary",
		}},
	}}
	edges := a.Infer(spec)
	// Pass A (0.9 confidence) and Pass B (category match) both produce
	// search->report; the merged edge keeps the single highest confidence.
	require.Len(t, edges, 1)
	require.Equal(t, "search", edges[0].Source)
	require.Equal(t, "report", edges[0].Target)
}

func TestInfer_SemanticToolTypeReferenceRecovery(t *testing.T) {
	a := New(lookup(nil))
	// "$file_reader.output" names a role, not an actual node id ("reader_1"),
	// and doesn't fuzzy-match the id closely enough (score < 0.7). It should
	// still resolve via keyword overlap against the candidate's tool_type.
	spec := pipeline.Spec{Components: []pipeline.NodeSpec{
		{ID: "reader_1", ToolType: "file_reader"},
		{ID: "report", ToolType: "report_generator", Params: map[string]any{
			"content": "$file_reader.output",
		}},
	}}
	edges := a.Infer(spec)
	require.Len(t, edges, 1)
	require.Equal(t, "reader_1", edges[0].Source)
	require.Equal(t, "report", edges[0].Target)
	require.Equal(t, pipeline.EdgeKindPlaceholder, edges[0].Kind)
}
