package builtintools

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/pipelinerun/engine/runtime/envelope"
	"github.com/pipelinerun/engine/runtime/registry"
	"github.com/pipelinerun/engine/runtime/toolident"
)

func TestRegisterSearch_DefaultsToStaticSearcherWhenNil(t *testing.T) {
	reg := registry.New()
	require.NoError(t, RegisterSearch(reg, nil))

	env := reg.Invoke(context.Background(), "search", map[string]any{"query": "go concurrency", "max_results": 2.0})
	require.Equal(t, envelope.StatusSuccess, env.Status)
	results, ok := env.Data.Primary.([]any)
	require.True(t, ok)
	require.Len(t, results, 2)
	require.Equal(t, 2, env.Data.Counts["results"])
}

func TestRegisterSearch_EmptyQueryFails(t *testing.T) {
	reg := registry.New()
	require.NoError(t, RegisterSearch(reg, nil))
	env := reg.Invoke(context.Background(), "search", map[string]any{"query": ""})
	require.Equal(t, envelope.StatusError, env.Status)
}

func TestRegisterSearch_UsesCustomSearcher(t *testing.T) {
	reg := registry.New()
	custom := SearcherFunc(func(ctx context.Context, query string, maxResults int) ([]string, error) {
		return []string{"custom-1"}, nil
	})
	require.NoError(t, RegisterSearch(reg, custom))

	env := reg.Invoke(context.Background(), "search", map[string]any{"query": "x"})
	results := env.Data.Primary.([]any)
	require.Equal(t, []any{"custom-1"}, results)
}

func TestRegisterSearch_InputSchemaDeclaresQueryAndMaxResults(t *testing.T) {
	reg := registry.New()
	require.NoError(t, RegisterSearch(reg, nil))
	desc, ok := reg.Get("search")
	require.True(t, ok)
	require.Equal(t, toolident.SemanticString, desc.InputSchema["query"])
	require.Equal(t, toolident.SemanticNumber, desc.InputSchema["max_results"])
	require.Equal(t, toolident.CategoryDataSource, desc.Category)
}
