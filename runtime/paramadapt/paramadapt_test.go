package paramadapt

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/pipelinerun/engine/runtime/toolident"
)

func TestInferCategory(t *testing.T) {
	cases := []struct {
		name string
		val  any
		want toolident.SemanticType
	}{
		{"file_path", "report.md", toolident.SemanticFilePath},
		{"url", "https://example.com/x", toolident.SemanticURL},
		{"label", "a short string", toolident.SemanticString},
		{"content", "# Heading\n\nbody", toolident.SemanticFileContent},
		{"count", 3.0, toolident.SemanticNumber},
		{"enabled", true, toolident.SemanticBoolean},
		{"items", []any{"a", "b"}, toolident.SemanticList},
		{"payload", map[string]any{"file_path": "x.txt"}, toolident.SemanticFilePath},
		{"payload", map[string]any{"content": "hi"}, toolident.SemanticFileContent},
	}
	for _, c := range cases {
		require.Equal(t, c.want, InferCategory(c.name, c.val), "name=%s val=%v", c.name, c.val)
	}
}

// Content->path semantic adaptation via markdown heading: file content
// carrying a leading "# Title" heading materializes to a filename derived
// from that heading's slug.
func TestAdapt_ContentToPathUsesMarkdownHeadingSlug(t *testing.T) {
	dir := t.TempDir()
	a := New(WithTempDir(dir))
	content := "# Findings Report\n\nbody text that happens to be long enough to not matter here."
	params := map[string]any{"file_path": content}
	expected := map[string]toolident.SemanticType{"file_path": toolident.SemanticFilePath}

	out, applied := a.Adapt(params, expected)
	require.Len(t, applied, 1)
	require.Equal(t, toolident.SemanticFileContent, applied[0].From)
	require.Equal(t, toolident.SemanticFilePath, applied[0].To)

	path, ok := out["file_path"].(string)
	require.True(t, ok)
	require.Equal(t, filepath.Join(dir, "findings-report.md"), path)

	written, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, content, string(written))
}

func TestAdapt_PathToContentReadsFileWhenPresent(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "x.txt")
	require.NoError(t, os.WriteFile(path, []byte("hello"), 0o644))

	a := New()
	out, applied := a.Adapt(map[string]any{"text": path}, map[string]toolident.SemanticType{"text": toolident.SemanticFileContent})
	require.Len(t, applied, 1)
	require.Equal(t, "hello", out["text"])
}

func TestAdapt_PathToContentFallsBackToPathWhenFileMissing(t *testing.T) {
	a := New()
	out, applied := a.Adapt(map[string]any{"text": "/nonexistent/file.txt"}, map[string]toolident.SemanticType{"text": toolident.SemanticFileContent})
	require.Empty(t, applied)
	require.Equal(t, "/nonexistent/file.txt", out["text"])
}

func TestAdapt_DictToPathExtractsNestedFilePath(t *testing.T) {
	a := New()
	params := map[string]any{
		"file_path": map[string]any{"meta": map[string]any{"path": "nested.png"}},
	}
	expected := map[string]toolident.SemanticType{"file_path": toolident.SemanticFilePath}
	out, applied := a.Adapt(params, expected)
	require.Len(t, applied, 1)
	require.Equal(t, "nested.png", out["file_path"])
}

func TestAdapt_UnexpectedParamsPassThrough(t *testing.T) {
	a := New()
	out, applied := a.Adapt(map[string]any{"extra": "value"}, map[string]toolident.SemanticType{})
	require.Empty(t, applied)
	require.Equal(t, "value", out["extra"])
}

func TestAdapt_MatchingCategoryPassesThroughUnchanged(t *testing.T) {
	a := New()
	out, applied := a.Adapt(map[string]any{"file_path": "a.txt"}, map[string]toolident.SemanticType{"file_path": toolident.SemanticFilePath})
	require.Empty(t, applied)
	require.Equal(t, "a.txt", out["file_path"])
}

// Failed adaptations leave the value untouched.
func TestAdapt_FailedCoercionLeavesValueUntouched(t *testing.T) {
	a := New(WithTempDir("/definitely/not/writable/dir"))
	out, applied := a.Adapt(map[string]any{"file_path": "# Heading\n\nlong enough content body here"}, map[string]toolident.SemanticType{"file_path": toolident.SemanticFilePath})
	require.Empty(t, applied)
	require.Equal(t, "# Heading\n\nlong enough content body here", out["file_path"])
}
