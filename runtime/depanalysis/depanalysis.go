// Package depanalysis implements the Semantic Dependency Analyzer (C4): it
// infers Dependency Edges among a pipeline's nodes from explicit placeholder
// references (Pass A) and from tool-category input/output semantics when
// references are approximate or absent (Pass B).
package depanalysis

import (
	"regexp"
	"sort"
	"strings"

	"github.com/pipelinerun/engine/runtime/pipeline"
	"github.com/pipelinerun/engine/runtime/toolident"
)

var tokenPattern = regexp.MustCompile(`\$([A-Za-z_][A-Za-z0-9_]*)\.output(?:\.([A-Za-z_][A-Za-z0-9_.]*))?`)

var stopwords = map[string]bool{
	"node": true, "tool": true, "processor": true, "handler": true,
	"generator": true, "the": true, "a": true, "an": true,
}

var fuzzySuffixes = []string{"_node", "_tool", "_processor", "_handler", "_generator"}

// CategorySemantics declares the semantic input/output types a tool category
// is known to exchange, used by Pass B to score data-flow compatibility.
// Shipped as config.
type CategorySemantics struct {
	Inputs  []toolident.SemanticType
	Outputs []toolident.SemanticType
}

// Analyzer infers edges for a Pipeline Specification.
type Analyzer struct {
	categories map[toolident.Category]CategorySemantics
	lookup     pipeline.ToolLookup
}

// Option configures an Analyzer.
type Option func(*Analyzer)

// WithCategorySemantics sets the category -> input/output semantics table.
func WithCategorySemantics(m map[toolident.Category]CategorySemantics) Option {
	return func(a *Analyzer) { a.categories = m }
}

// New constructs an Analyzer. lookup resolves a node's tool_type to its
// registered category; nodes whose tool_type is unknown to lookup are still
// analyzed by Pass A (placeholder edges don't need a category) but are
// skipped by Pass B.
func New(lookup pipeline.ToolLookup, opts ...Option) *Analyzer {
	a := &Analyzer{categories: defaultCategorySemantics(), lookup: lookup}
	for _, o := range opts {
		o(a)
	}
	return a
}

func defaultCategorySemantics() map[toolident.Category]CategorySemantics {
	return map[toolident.Category]CategorySemantics{
		toolident.CategoryDataSource: {
			Outputs: []toolident.SemanticType{toolident.SemanticFileContent, toolident.SemanticAny},
		},
		toolident.CategoryDataProcessor: {
			Inputs:  []toolident.SemanticType{toolident.SemanticFileContent, toolident.SemanticAny},
			Outputs: []toolident.SemanticType{toolident.SemanticFileContent},
		},
		toolident.CategoryFileOperator: {
			Inputs:  []toolident.SemanticType{toolident.SemanticFileContent, toolident.SemanticFilePath},
			Outputs: []toolident.SemanticType{toolident.SemanticFilePath},
		},
		toolident.CategoryStorage: {
			Inputs:  []toolident.SemanticType{toolident.SemanticFilePath},
			Outputs: []toolident.SemanticType{toolident.SemanticURL},
		},
	}
}

// Infer runs Pass A and Pass B over spec and returns the merged, deduped
// edge set.
func (a *Analyzer) Infer(spec pipeline.Spec) []pipeline.Edge {
	nodeIDs := make([]string, 0, len(spec.Components))
	byID := make(map[string]pipeline.NodeSpec, len(spec.Components))
	for _, n := range spec.Components {
		nodeIDs = append(nodeIDs, n.ID)
		byID[n.ID] = n
	}

	edges := map[[2]string]pipeline.Edge{}
	merge := func(e pipeline.Edge) {
		key := [2]string{e.Source, e.Target}
		if existing, ok := edges[key]; ok {
			if e.Confidence > existing.Confidence {
				existing.Confidence = e.Confidence
			}
			existing.Evidence = dedupeStrings(append(existing.Evidence, e.Evidence...))
			edges[key] = existing
			return
		}
		edges[key] = e
	}

	for _, e := range a.passA(spec.Components, nodeIDs) {
		merge(e)
	}
	for _, e := range a.passB(spec.Components) {
		merge(e)
	}

	out := make([]pipeline.Edge, 0, len(edges))
	for _, e := range edges {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Source != out[j].Source {
			return out[i].Source < out[j].Source
		}
		return out[i].Target < out[j].Target
	})
	return out
}

// passA extracts placeholder-reference edges (confidence 0.9). When a
// reference isn't an exact node id it falls back to fuzzy id matching
// (score > 0.7), then to matching the reference's keywords against
// candidate nodes' tool_type keywords (score > 0.5) for references that
// name a role ("$file_reader.output") rather than an actual node id.
func (a *Analyzer) passA(nodes []pipeline.NodeSpec, nodeIDs []string) []pipeline.Edge {
	var out []pipeline.Edge
	for _, n := range nodes {
		refs := extractReferences(n.Params)
		for _, ref := range refs {
			target := n.ID
			if ref == target {
				continue // self-reference, not a real dependency
			}
			if contains(nodeIDs, ref) {
				out = append(out, pipeline.Edge{
					Source: ref, Target: target, Confidence: 0.9,
					Kind: pipeline.EdgeKindPlaceholder,
					Evidence: []string{"exact placeholder reference to $" + ref + ".output"},
				})
				continue
			}
			if match, score := fuzzyMatch(ref, nodeIDs, target); match != "" && score > 0.7 {
				out = append(out, pipeline.Edge{
					Source: match, Target: target, Confidence: 0.9,
					Kind: pipeline.EdgeKindPlaceholder,
					Evidence: []string{"fuzzy placeholder reference $" + ref + " matched node " + match},
				})
				continue
			}
			if match, score := semanticIDMatch(ref, nodes, target); match != "" && score > 0.5 {
				out = append(out, pipeline.Edge{
					Source: match, Target: target, Confidence: 0.9,
					Kind: pipeline.EdgeKindPlaceholder,
					Evidence: []string{"placeholder reference $" + ref + " matched node " + match + " by tool_type keyword overlap"},
				})
			}
		}
	}
	return out
}

// passB scores data-flow semantic compatibility between every ordered pair
// of nodes via their tool categories' declared input/output semantics.
func (a *Analyzer) passB(nodes []pipeline.NodeSpec) []pipeline.Edge {
	var out []pipeline.Edge
	type catNode struct {
		id  string
		cat toolident.Category
	}
	var withCat []catNode
	for _, n := range nodes {
		if cat, ok := a.lookup(n.ToolType); ok {
			withCat = append(withCat, catNode{id: n.ID, cat: cat})
		}
	}
	for _, src := range withCat {
		for _, tgt := range withCat {
			if src.id == tgt.id {
				continue
			}
			score := a.semanticScore(src.cat, tgt.cat)
			if score >= 0.6 {
				out = append(out, pipeline.Edge{
					Source: src.id, Target: tgt.id, Confidence: score,
					Kind: pipeline.EdgeKindDataFlowSemantic,
					Evidence: []string{"category " + string(src.cat) + " outputs compatible with " + string(tgt.cat) + " inputs"},
				})
			}
		}
	}
	return out
}

// semanticScore scores category srcCat's outputs against tgtCat's inputs:
// direct type match = 0.9, file_content->file_path (writer/uploader) or
// file_path->file_content = 0.7-0.8, either side any = 0.3, else 0.
func (a *Analyzer) semanticScore(srcCat, tgtCat toolident.Category) float64 {
	src, ok1 := a.categories[srcCat]
	tgt, ok2 := a.categories[tgtCat]
	if !ok1 || !ok2 {
		return 0
	}
	best := 0.0
	for _, out := range src.Outputs {
		for _, in := range tgt.Inputs {
			score := compatibility(out, in, tgtCat)
			if score > best {
				best = score
			}
		}
	}
	return best
}

func compatibility(out, in toolident.SemanticType, tgtCat toolident.Category) float64 {
	if out == in {
		return 0.9
	}
	switch {
	case out == toolident.SemanticFileContent && in == toolident.SemanticFilePath &&
		(tgtCat == toolident.CategoryFileOperator || tgtCat == toolident.CategoryStorage):
		return 0.8
	case out == toolident.SemanticFilePath && in == toolident.SemanticFileContent:
		return 0.7
	case out == toolident.SemanticAny || in == toolident.SemanticAny:
		return 0.3
	default:
		return 0
	}
}

// extractReferences collects every referenced node id from a params tree.
func extractReferences(params map[string]any) []string {
	var out []string
	var walk func(any)
	walk = func(v any) {
		switch t := v.(type) {
		case string:
			for _, m := range tokenPattern.FindAllStringSubmatch(t, -1) {
				out = append(out, m[1])
			}
		case map[string]any:
			for _, e := range t {
				walk(e)
			}
		case []any:
			for _, e := range t {
				walk(e)
			}
		}
	}
	for _, v := range params {
		walk(v)
	}
	return out
}

// fuzzyMatch finds the best-matching known node id for ref, excluding self,
// via suffix stripping, substring containment, and Jaccard keyword
// similarity. Returns the best-scoring id and its score whatever the
// caller's acceptance threshold; ("", 0) only when no candidate scores
// above 0.
func fuzzyMatch(ref string, nodeIDs []string, exclude string) (string, float64) {
	stripped := stripSuffixes(ref)
	best, bestScore := "", 0.0
	for _, id := range nodeIDs {
		if id == exclude {
			continue
		}
		score := similarity(stripped, id)
		if score > bestScore {
			best, bestScore = id, score
		}
	}
	return best, bestScore
}

// semanticIDMatch finds the node whose tool_type keywords overlap most with
// ref's keywords, for references that don't resemble any node id closely
// enough for fuzzyMatch to accept. Scores via the same Jaccard keyword
// overlap as similarity, just against tool_type instead of id.
func semanticIDMatch(ref string, nodes []pipeline.NodeSpec, exclude string) (string, float64) {
	refKeywords := keywords(stripSuffixes(ref))
	best, bestScore := "", 0.0
	for _, n := range nodes {
		if n.ID == exclude {
			continue
		}
		score := jaccard(refKeywords, keywords(n.ToolType))
		if score > bestScore {
			best, bestScore = n.ID, score
		}
	}
	return best, bestScore
}

func stripSuffixes(s string) string {
	for _, suf := range fuzzySuffixes {
		if strings.HasSuffix(s, suf) {
			return strings.TrimSuffix(s, suf)
		}
	}
	return s
}

func similarity(a, b string) float64 {
	aStripped, bStripped := stripSuffixes(a), stripSuffixes(b)
	if aStripped == bStripped {
		return 1.0
	}
	if strings.Contains(bStripped, aStripped) || strings.Contains(aStripped, bStripped) {
		return 0.85
	}
	return jaccard(keywords(aStripped), keywords(bStripped))
}

func keywords(s string) map[string]bool {
	parts := regexp.MustCompile(`[_\-\s]+`).Split(s, -1)
	out := map[string]bool{}
	for _, p := range parts {
		p = strings.ToLower(p)
		if p == "" || stopwords[p] {
			continue
		}
		out[p] = true
	}
	return out
}

func jaccard(a, b map[string]bool) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	inter := 0
	for k := range a {
		if b[k] {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	if union == 0 {
		return 0
	}
	return float64(inter) / float64(union)
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func dedupeStrings(in []string) []string {
	seen := map[string]bool{}
	var out []string
	for _, s := range in {
		if seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}
