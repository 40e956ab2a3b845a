// Package outputadapt implements the Tool-Output Adapter (C7): it repairs
// shape mismatches between a producer's envelope and a consumer's expected
// key set via key aliasing, list packing/unpacking, and materializing
// in-memory objects (images) to paths. Adapters are compiled once per
// (source, target) key pair and cached; statistics and an
// enable/disable/delete lifecycle are exposed for operators.
package outputadapt

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/pipelinerun/engine/runtime/imageref"
	"github.com/pipelinerun/engine/runtime/telemetry"
)

// PatternRule overrides pickTransformer's shape heuristic for target keys
// matching Pattern, in declaration order (first match wins). Loaded from
// config/transformers.yaml via runtime/config.
type PatternRule struct {
	Pattern     *regexp.Regexp
	Transformer TransformerName
}

// TransformerName identifies a function in the fixed Transformer Catalogue
// — a typed dispatch table replacing the original's
// runtime code-generation via `exec`.
type TransformerName string

const (
	TransformIdentity      TransformerName = "identity"
	TransformListToArray   TransformerName = "list_to_array"
	TransformArrayToList   TransformerName = "array_to_list"
	TransformStringToNum   TransformerName = "string_to_number"
	TransformNumToString   TransformerName = "number_to_string"
	TransformDictToList    TransformerName = "dict_to_list"
	TransformListToDict    TransformerName = "list_to_dict"
	TransformFlattenList   TransformerName = "flatten_list"
	TransformWrapSingle    TransformerName = "wrap_single"
	TransformUnwrapSingle  TransformerName = "unwrap_single"
	TransformImagesToPaths TransformerName = "images_to_paths"
)

// transformerFunc is the signature every catalogue entry implements.
type transformerFunc func(v any) (any, error)

// MappingRule maps one requested target key to a source location plus the
// transformer to apply.
type MappingRule struct {
	TargetKey   string
	SourceKey   string // "" means the whole source value, not a sub-key
	Transformer TransformerName
	Score       float64 // key-similarity score that selected this rule
}

// CompatibilityReport is the result of analyzing a producer value against a
// consumer's requested keys.
type CompatibilityReport struct {
	MissingKeys     []string
	TypeMismatches  []string
	Confidence      float64
	SuggestedRules  []MappingRule
}

// Stats is the adapter's running statistics record.
type Stats struct {
	Successes       int64
	Failures        int64
	CacheHits       int64
	CacheMisses     int64
	DurationByRule  map[string]time.Duration
}

// CacheHitRatio returns CacheHits / (CacheHits + CacheMisses), or 0 if no
// lookups have happened yet.
func (s Stats) CacheHitRatio() float64 {
	total := s.CacheHits + s.CacheMisses
	if total == 0 {
		return 0
	}
	return float64(s.CacheHits) / float64(total)
}

// compiledAdapter is a synthesized adapter: a name, an ordered set of mapping
// rules, and an enabled flag.
type compiledAdapter struct {
	name     string
	rules    []MappingRule
	enabled  bool
}

// Adapter is the Tool-Output Adapter. Safe for concurrent use.
type Adapter struct {
	tempDir      string
	logger       telemetry.Logger
	patternRules []PatternRule

	mu          sync.RWMutex
	byToolPair  map[string]*compiledAdapter // "sourceTool|targetTool" -> adapter
	byName      map[string]*compiledAdapter
	resultCache *lru.Cache[string, any] // "(adapterName, inputHash)" -> result

	statsMu sync.Mutex
	stats   Stats
}

// Option configures an Adapter.
type Option func(*Adapter)

// WithTempDir overrides where images are materialized. Defaults to os.TempDir().
func WithTempDir(dir string) Option {
	return func(a *Adapter) { a.tempDir = dir }
}

// WithLogger sets the logger used for adaptation failures.
func WithLogger(l telemetry.Logger) Option {
	return func(a *Adapter) { a.logger = l }
}

// WithPatternRules sets config-driven target-key pattern overrides consulted
// before the built-in shape heuristic when selecting a transformer.
func WithPatternRules(rules []PatternRule) Option {
	return func(a *Adapter) { a.patternRules = rules }
}

// WithCacheSize bounds the compiled-adapter result cache (LRU-evicted).
func WithCacheSize(n int) Option {
	return func(a *Adapter) {
		c, err := lru.New[string, any](n)
		if err == nil {
			a.resultCache = c
		}
	}
}

// New constructs an Adapter with a default 256-entry result cache.
func New(opts ...Option) *Adapter {
	cache, _ := lru.New[string, any](256)
	a := &Adapter{
		tempDir:     os.TempDir(),
		logger:      telemetry.NewNoopLogger(),
		byToolPair:  map[string]*compiledAdapter{},
		byName:      map[string]*compiledAdapter{},
		resultCache: cache,
		stats:       Stats{DurationByRule: map[string]time.Duration{}},
	}
	for _, o := range opts {
		o(a)
	}
	return a
}

// AnalyzeCompatibility builds a structure description of value and scores it
// against requestedKeys.
func AnalyzeCompatibility(value any, requestedKeys []string) CompatibilityReport {
	keys := mapKeys(value)
	present := make(map[string]bool, len(keys))
	for _, k := range keys {
		present[k] = true
	}

	report := CompatibilityReport{}
	var matched int
	for _, rk := range requestedKeys {
		if present[rk] {
			matched++
			continue
		}
		report.MissingKeys = append(report.MissingKeys, rk)
		rule, ok := suggestRule(value, keys, rk)
		if ok {
			report.SuggestedRules = append(report.SuggestedRules, rule)
			matched++
		}
	}
	if len(requestedKeys) == 0 {
		report.Confidence = 1
	} else {
		report.Confidence = float64(matched) / float64(len(requestedKeys))
	}
	return report
}

// suggestRule picks the best mapping rule for a missing target key by key
// similarity (exact > substring > Jaccard, threshold >= 0.3).
func suggestRule(value any, sourceKeys []string, targetKey string) (MappingRule, bool) {
	best := MappingRule{}
	bestScore := 0.0
	for _, sk := range sourceKeys {
		score := keySimilarity(sk, targetKey)
		if score > bestScore {
			bestScore = score
			best = MappingRule{TargetKey: targetKey, SourceKey: sk, Score: score}
		}
	}
	if bestScore < 0.3 {
		// structural fallback: data/primary/results/items map to the first
		// requested key when nothing else matches.
		for _, fallback := range []string{"data", "primary", "results", "items"} {
			for _, sk := range sourceKeys {
				if strings.EqualFold(sk, fallback) {
					return MappingRule{TargetKey: targetKey, SourceKey: sk, Score: 0.3, Transformer: TransformIdentity}, true
				}
			}
		}
		return MappingRule{}, false
	}
	best.Transformer = pickTransformer(value, best.SourceKey, targetKey)
	return best, true
}

// overridePatterns replaces each rule's Transformer with the first
// config-driven pattern match against its TargetKey, leaving the
// shape-heuristic choice in place for rules no pattern matches.
func (a *Adapter) overridePatterns(rules []MappingRule) []MappingRule {
	if len(a.patternRules) == 0 {
		return rules
	}
	out := make([]MappingRule, len(rules))
	copy(out, rules)
	for i, r := range out {
		for _, pr := range a.patternRules {
			if pr.Pattern.MatchString(r.TargetKey) {
				out[i].Transformer = pr.Transformer
				break
			}
		}
	}
	return out
}

func keySimilarity(a, b string) float64 {
	if strings.EqualFold(a, b) {
		return 1.0
	}
	al, bl := strings.ToLower(a), strings.ToLower(b)
	if strings.Contains(al, bl) || strings.Contains(bl, al) {
		return 0.6
	}
	return jaccardChars(al, bl)
}

func jaccardChars(a, b string) float64 {
	setA := map[rune]bool{}
	for _, r := range a {
		setA[r] = true
	}
	setB := map[rune]bool{}
	for _, r := range b {
		setB[r] = true
	}
	if len(setA) == 0 || len(setB) == 0 {
		return 0
	}
	inter := 0
	for r := range setA {
		if setB[r] {
			inter++
		}
	}
	union := len(setA) + len(setB) - inter
	if union == 0 {
		return 0
	}
	return float64(inter) / float64(union)
}

// pickTransformer selects a catalogue transformer appropriate for the source
// value's shape relative to what the target key name suggests.
func pickTransformer(value any, sourceKey, targetKey string) TransformerName {
	v := fieldValue(value, sourceKey)
	switch t := v.(type) {
	case []any:
		if containsImageLike(t) {
			return TransformImagesToPaths
		}
		if isSingularName(targetKey) && len(t) == 1 {
			return TransformUnwrapSingle
		}
		return TransformIdentity
	case map[string]any:
		if isListName(targetKey) {
			return TransformDictToList
		}
		return TransformIdentity
	case string:
		if isListName(targetKey) {
			return TransformWrapSingle
		}
		if _, err := strconv.ParseFloat(t, 64); err == nil && strings.Contains(strings.ToLower(targetKey), "num") {
			return TransformStringToNum
		}
		return TransformIdentity
	case float64, int, int64:
		if strings.Contains(strings.ToLower(targetKey), "string") || strings.Contains(strings.ToLower(targetKey), "text") {
			return TransformNumToString
		}
		return TransformIdentity
	default:
		return TransformIdentity
	}
}

func isSingularName(s string) bool { return !strings.HasSuffix(strings.ToLower(s), "s") }
func isListName(s string) bool {
	l := strings.ToLower(s)
	return strings.HasSuffix(l, "s") || strings.Contains(l, "list") || strings.Contains(l, "array")
}

func containsImageLike(list []any) bool {
	for _, e := range list {
		if _, ok := imageref.IsImageLike(e); ok {
			return true
		}
	}
	return false
}

// GetOrCompile returns the cached adapter for (sourceTool, targetTool),
// compiling and caching a new one from rules if none exists yet.
func (a *Adapter) GetOrCompile(sourceTool, targetTool string, rules []MappingRule) *compiledAdapter {
	key := sourceTool + "|" + targetTool
	a.mu.Lock()
	defer a.mu.Unlock()
	if c, ok := a.byToolPair[key]; ok {
		return c
	}
	c := &compiledAdapter{name: key, rules: rules, enabled: true}
	a.byToolPair[key] = c
	a.byName[key] = c
	return c
}

// ProduceKey implements placeholder.Adapter: given a producer's envelope-as-
// value, attempt to derive a value for key by analyzing compatibility and
// applying the best-scoring rule.
func (a *Adapter) ProduceKey(value any, key string) (any, bool) {
	report := AnalyzeCompatibility(value, []string{key})
	if len(report.SuggestedRules) == 0 {
		a.recordFailure()
		return nil, false
	}
	rule := a.overridePatterns(report.SuggestedRules)[0]
	result, err := a.applyRule(value, rule)
	if err != nil {
		a.recordFailure()
		return nil, false
	}
	a.recordSuccess(rule.Transformer, 0)
	return result, true
}

// Apply runs a full compiled adapter (source->target tool pair) against
// value, returning a map populated for every rule that succeeded. Rules that
// fail leave their target key absent rather than aborting the whole
// adaptation — scoped per-rule since a multi-key adapter should not regress
// keys that DID resolve.
func (a *Adapter) Apply(sourceTool, targetTool string, value any, report CompatibilityReport) map[string]any {
	adapter := a.GetOrCompile(sourceTool, targetTool, a.overridePatterns(report.SuggestedRules))
	a.mu.RLock()
	enabled := adapter.enabled
	a.mu.RUnlock()
	if !enabled {
		return nil
	}

	cacheKey := cacheKeyFor(adapter.name, value)
	if cached, ok := a.resultCache.Get(cacheKey); ok {
		a.recordCacheHit()
		if m, ok := cached.(map[string]any); ok {
			return m
		}
	}
	a.recordCacheMiss()

	out := map[string]any{}
	for _, rule := range adapter.rules {
		start := time.Now()
		result, err := a.applyRule(value, rule)
		if err != nil {
			a.logger.Warn(context.Background(), "adapter rule failed", "rule", rule.TargetKey, "transformer", rule.Transformer, "error", err.Error())
			a.recordFailure()
			continue
		}
		out[rule.TargetKey] = result
		a.recordSuccess(rule.Transformer, time.Since(start))
	}
	a.resultCache.Add(cacheKey, out)
	return out
}

func (a *Adapter) applyRule(value any, rule MappingRule) (any, error) {
	v := value
	if rule.SourceKey != "" {
		v = fieldValue(value, rule.SourceKey)
	}
	fn, ok := catalogue[rule.Transformer]
	if !ok {
		fn = catalogue[TransformIdentity]
	}
	result, err := fn(v)
	if err != nil {
		return nil, err
	}
	if rule.Transformer == TransformImagesToPaths {
		return a.materializeImages(result)
	}
	return result, nil
}

func (a *Adapter) materializeImages(v any) (any, error) {
	list, ok := v.([]any)
	if !ok {
		return v, nil
	}
	paths := make([]string, 0, len(list))
	for i, e := range list {
		img, ok := imageref.IsImageLike(e)
		if !ok {
			continue
		}
		path, err := imageref.SaveTemp(img, a.tempDir, fmt.Sprintf("image-%d", i))
		if err != nil {
			return nil, err
		}
		paths = append(paths, path)
	}
	if len(paths) == 1 {
		return paths[0], nil
	}
	out := make([]any, len(paths))
	for i, p := range paths {
		out[i] = p
	}
	return out, nil
}

// Enable re-enables a previously disabled compiled adapter by name.
func (a *Adapter) Enable(name string) bool { return a.setEnabled(name, true) }

// Disable marks a compiled adapter disabled; Apply returns nil for it until
// re-enabled.
func (a *Adapter) Disable(name string) bool { return a.setEnabled(name, false) }

func (a *Adapter) setEnabled(name string, enabled bool) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	c, ok := a.byName[name]
	if !ok {
		return false
	}
	c.enabled = enabled
	return true
}

// Delete removes a compiled adapter entirely; the next request for the same
// (source, target) pair recompiles it from scratch.
func (a *Adapter) Delete(name string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, ok := a.byName[name]; !ok {
		return false
	}
	delete(a.byName, name)
	delete(a.byToolPair, name)
	return true
}

// GetStats returns a snapshot of the adapter's running statistics.
func (a *Adapter) GetStats() Stats {
	a.statsMu.Lock()
	defer a.statsMu.Unlock()
	out := a.stats
	out.DurationByRule = make(map[string]time.Duration, len(a.stats.DurationByRule))
	for k, v := range a.stats.DurationByRule {
		out.DurationByRule[k] = v
	}
	return out
}

func (a *Adapter) recordSuccess(name TransformerName, d time.Duration) {
	a.statsMu.Lock()
	defer a.statsMu.Unlock()
	a.stats.Successes++
	a.stats.DurationByRule[string(name)] += d
}

func (a *Adapter) recordFailure() {
	a.statsMu.Lock()
	defer a.statsMu.Unlock()
	a.stats.Failures++
}

func (a *Adapter) recordTiming(name string, d time.Duration) {
	a.statsMu.Lock()
	defer a.statsMu.Unlock()
	a.stats.DurationByRule[name] += d
}

func (a *Adapter) recordCacheHit() {
	a.statsMu.Lock()
	defer a.statsMu.Unlock()
	a.stats.CacheHits++
}

func (a *Adapter) recordCacheMiss() {
	a.statsMu.Lock()
	defer a.statsMu.Unlock()
	a.stats.CacheMisses++
}

// cacheKeyFor derives a stable cache key from an adapter name and a hash of
// the input value's JSON encoding.
func cacheKeyFor(adapterName string, value any) string {
	b, err := json.Marshal(value)
	if err != nil {
		return adapterName
	}
	sum := sha256.Sum256(b)
	return adapterName + "|" + hex.EncodeToString(sum[:8])
}

// mapKeys returns the top-level keys of value if it is a map, plus
// "data.<key>" for every key of a nested "data" map, sorted; nil if value is
// not a map.
func mapKeys(value any) []string {
	m, ok := value.(map[string]any)
	if !ok {
		return nil
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	if data, ok := m["data"].(map[string]any); ok {
		for k := range data {
			keys = append(keys, "data."+k)
		}
	}
	sort.Strings(keys)
	return keys
}

// fieldValue resolves key (possibly dotted, e.g. "data.primary") against
// value.
func fieldValue(value any, key string) any {
	cur := value
	for _, seg := range strings.Split(key, ".") {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil
		}
		cur = m[seg]
	}
	return cur
}
