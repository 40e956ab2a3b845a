package outputadapt

import (
	"image"
	"image/color"
	"regexp"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAnalyzeCompatibility_AllKeysPresentFullConfidence(t *testing.T) {
	value := map[string]any{"primary": "x", "secondary": "y"}
	report := AnalyzeCompatibility(value, []string{"primary", "secondary"})
	require.Empty(t, report.MissingKeys)
	require.Equal(t, 1.0, report.Confidence)
}

func TestAnalyzeCompatibility_SuggestsRuleForSimilarKey(t *testing.T) {
	value := map[string]any{"results": []any{"a"}}
	report := AnalyzeCompatibility(value, []string{"result"})
	require.Len(t, report.SuggestedRules, 1)
	require.Equal(t, "results", report.SuggestedRules[0].SourceKey)
}

func TestAnalyzeCompatibility_StructuralFallbackToDataPrimary(t *testing.T) {
	value := map[string]any{"data": map[string]any{"primary": "x"}}
	report := AnalyzeCompatibility(value, []string{"zzz"})
	require.Len(t, report.SuggestedRules, 1)
	require.Equal(t, "data", report.SuggestedRules[0].SourceKey)
	require.Equal(t, TransformIdentity, report.SuggestedRules[0].Transformer)
}

func TestAnalyzeCompatibility_NoRequestedKeysIsFullConfidence(t *testing.T) {
	report := AnalyzeCompatibility(map[string]any{"a": 1}, nil)
	require.Equal(t, 1.0, report.Confidence)
}

func TestPickTransformer_DictToListForListTargetName(t *testing.T) {
	value := map[string]any{"items": map[string]any{"a": 1, "b": 2}}
	tr := pickTransformer(value, "items", "items_list")
	require.Equal(t, TransformDictToList, tr)
}

func TestPickTransformer_UnwrapSingleForSingularTarget(t *testing.T) {
	value := map[string]any{"results": []any{"only"}}
	tr := pickTransformer(value, "results", "result")
	require.Equal(t, TransformUnwrapSingle, tr)
}

// PIL-image-list -> path adaptation: a list
// containing image.Image values selects the images_to_paths transformer.
func TestPickTransformer_ImagesToPathsWhenListContainsImageLike(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 2, 2))
	value := map[string]any{"rotated_images": []any{img}}
	tr := pickTransformer(value, "rotated_images", "paths")
	require.Equal(t, TransformImagesToPaths, tr)
}

func TestApply_MaterializesImageListToPaths(t *testing.T) {
	dir := t.TempDir()
	a := New(WithTempDir(dir))
	img1 := solidRGBA(2, 2, color.RGBA{R: 1, A: 255})
	img2 := solidRGBA(2, 2, color.RGBA{R: 2, A: 255})
	value := map[string]any{"rotated_images": []any{img1, img2}}

	report := CompatibilityReport{SuggestedRules: []MappingRule{
		{TargetKey: "paths", SourceKey: "rotated_images", Transformer: TransformImagesToPaths},
	}}
	out := a.Apply("image_rotator", "uploader", value, report)
	paths, ok := out["paths"].([]any)
	require.True(t, ok)
	require.Len(t, paths, 2)
	for _, p := range paths {
		s, ok := p.(string)
		require.True(t, ok)
		require.NotEmpty(t, s)
	}
}

func TestApply_SingleImageMaterializesToScalarPath(t *testing.T) {
	dir := t.TempDir()
	a := New(WithTempDir(dir))
	img := solidRGBA(2, 2, color.RGBA{R: 1, A: 255})
	value := map[string]any{"rotated_images": []any{img}}

	report := CompatibilityReport{SuggestedRules: []MappingRule{
		{TargetKey: "path", SourceKey: "rotated_images", Transformer: TransformImagesToPaths},
	}}
	out := a.Apply("image_rotator", "uploader", value, report)
	path, ok := out["path"].(string)
	require.True(t, ok)
	require.NotEmpty(t, path)
}

// Adapter idempotence: applying the same compiled adapter to the
// same input twice must return an equivalent result and exercise the cache.
func TestApply_CacheConsistencyAcrossRepeatedCalls(t *testing.T) {
	a := New()
	value := map[string]any{"results": []any{"a", "b"}}
	report := CompatibilityReport{SuggestedRules: []MappingRule{
		{TargetKey: "result", SourceKey: "results", Transformer: TransformIdentity},
	}}

	first := a.Apply("search", "report_generator", value, report)
	second := a.Apply("search", "report_generator", value, report)
	require.Equal(t, first, second)
	require.Equal(t, int64(1), a.GetStats().CacheHits)
}

func TestApply_DisabledAdapterReturnsNil(t *testing.T) {
	a := New()
	report := CompatibilityReport{SuggestedRules: []MappingRule{
		{TargetKey: "result", SourceKey: "results", Transformer: TransformIdentity},
	}}
	_ = a.Apply("search", "report_generator", map[string]any{"results": []any{"a"}}, report)
	require.True(t, a.Disable("search|report_generator"))
	out := a.Apply("search", "report_generator", map[string]any{"results": []any{"a"}}, report)
	require.Nil(t, out)
}

func TestApply_FailedRuleOmitsKeyWithoutAbortingOthers(t *testing.T) {
	a := New()
	value := map[string]any{"count": "not-a-number", "name": "ok"}
	report := CompatibilityReport{SuggestedRules: []MappingRule{
		{TargetKey: "count", SourceKey: "count", Transformer: TransformStringToNum},
		{TargetKey: "name", SourceKey: "name", Transformer: TransformIdentity},
	}}
	out := a.Apply("a", "b", value, report)
	_, hasCount := out["count"]
	require.False(t, hasCount)
	require.Equal(t, "ok", out["name"])
}

func TestProduceKey_DelegatesToSuggestRule(t *testing.T) {
	a := New()
	value := map[string]any{"data": map[string]any{"primary": "go"}}
	val, ok := a.ProduceKey(value, "primary")
	require.True(t, ok)
	require.Equal(t, "go", val)
}

func TestOverridePatterns_FirstMatchWins(t *testing.T) {
	a := New(WithPatternRules([]PatternRule{
		{Pattern: regexp.MustCompile(`(?i)paths?$`), Transformer: TransformImagesToPaths},
		{Pattern: regexp.MustCompile(`(?i)count$`), Transformer: TransformStringToNum},
	}))
	rules := []MappingRule{
		{TargetKey: "output_path", Transformer: TransformIdentity},
		{TargetKey: "item_count", Transformer: TransformIdentity},
		{TargetKey: "unrelated", Transformer: TransformIdentity},
	}
	out := a.overridePatterns(rules)
	require.Equal(t, TransformImagesToPaths, out[0].Transformer)
	require.Equal(t, TransformStringToNum, out[1].Transformer)
	require.Equal(t, TransformIdentity, out[2].Transformer)
}

func TestEnableDisableDelete(t *testing.T) {
	a := New()
	report := CompatibilityReport{SuggestedRules: []MappingRule{{TargetKey: "x", Transformer: TransformIdentity}}}
	a.Apply("s", "t", map[string]any{"x": 1}, report)

	require.True(t, a.Disable("s|t"))
	require.False(t, a.Disable("missing|pair"))
	require.True(t, a.Enable("s|t"))
	require.True(t, a.Delete("s|t"))
	require.False(t, a.Delete("s|t"))
}

func solidRGBA(w, h int, c color.RGBA) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	return img
}
