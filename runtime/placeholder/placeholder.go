// Package placeholder implements the Placeholder Resolver (C3): it parses
// `$node.output[.key.path]` references inside a node's params and
// substitutes them with values read from prior nodes' envelopes, falling
// back through a legacy field map and, as a last resort, delegating to the
// Tool-Output Adapter (C7) to synthesize the requested key.
package placeholder

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/pipelinerun/engine/runtime/pipeline"
	"github.com/pipelinerun/engine/runtime/telemetry"
)

// tokenPattern matches placeholder references of the form:
// \$([A-Za-z_][A-Za-z0-9_]*)\.output(?:\.([A-Za-z_][A-Za-z0-9_\.]*))?
var tokenPattern = regexp.MustCompile(`\$([A-Za-z_][A-Za-z0-9_]*)\.output(?:\.([A-Za-z_][A-Za-z0-9_.]*))?`)

// Adapter is the subset of the Tool-Output Adapter (C7) the resolver
// delegates to when a key-path walk and the legacy field map both miss.
// Implemented by runtime/outputadapt.Adapter.
type Adapter interface {
	// ProduceKey attempts to derive a value for key from value (the producer
	// node's envelope-as-map). ok is false if no mapping could be found.
	ProduceKey(value any, key string) (result any, ok bool)
}

// Miss records one placeholder that could not be substituted. Misses never
// fail resolution; the raw token is preserved in the output and the miss is
// reported to the caller for logging/diagnostics.
type Miss struct {
	NodeID string // referenced node id (as written in the token)
	Key    string // dotted key path, if any
	Token  string // the full matched token text
	Reason string
}

// SchemaLookup resolves a node id to the logical-key->dotted-path map
// declared by that node's tool (registry.SchemaHint.Keys), when the tool
// declares one. Consulted before the legacy field map.
type SchemaLookup func(nodeID string) (map[string]string, bool)

// Resolver substitutes placeholder tokens using prior nodes' outputs.
type Resolver struct {
	legacyFieldMap map[string]string // legacy key -> dotted path into the envelope map
	schemaLookup   SchemaLookup
	adapter        Adapter
	logger         telemetry.Logger
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithLegacyFieldMap sets the fallback key map consulted when a dotted
// key-path walk misses both the raw value and value.data. Ships as config;
// callers load it from YAML and pass the decoded map here.
func WithLegacyFieldMap(m map[string]string) Option {
	return func(r *Resolver) { r.legacyFieldMap = m }
}

// WithSchemaLookup sets the schema-driven resolution fallback consulted
// before the legacy field map.
func WithSchemaLookup(l SchemaLookup) Option {
	return func(r *Resolver) { r.schemaLookup = l }
}

// WithAdapter sets the Tool-Output Adapter delegated to when all other
// lookups miss.
func WithAdapter(a Adapter) Option {
	return func(r *Resolver) { r.adapter = a }
}

// WithLogger sets the logger used to report resolution misses.
func WithLogger(l telemetry.Logger) Option {
	return func(r *Resolver) { r.logger = l }
}

// New constructs a Resolver. Defaults to the built-in legacy field map, no
// adapter, and a no-op logger.
func New(opts ...Option) *Resolver {
	r := &Resolver{legacyFieldMap: defaultLegacyFieldMap(), logger: telemetry.NewNoopLogger()}
	for _, o := range opts {
		o(r)
	}
	return r
}

// defaultLegacyFieldMap holds the built-in fallback aliases (results,
// rotated_images, content, etc. all project onto data.primary) as
// compiled-in defaults; config/legacy_fields.yaml overrides these at load
// time via WithLegacyFieldMap.
func defaultLegacyFieldMap() map[string]string {
	return map[string]string{
		"results":        "data.primary",
		"result":         "data.primary",
		"rotated_images": "data.primary",
		"images":         "data.primary",
		"content":        "data.primary",
		"text":           "data.primary",
		"paths":          "paths",
		"path":           "paths.0",
		"message":        "message",
		"status":         "status",
	}
}

// Resolve returns a structurally identical copy of params (same keys, same
// list lengths) with every placeholder token substituted where possible.
// Misses are collected and returned alongside the resolved tree; the raw
// token text is preserved in place of a miss.
func (r *Resolver) Resolve(params map[string]any, outputs map[string]*pipeline.NodeOutputRecord) (map[string]any, []Miss) {
	var misses []Miss
	out := make(map[string]any, len(params))
	for k, v := range params {
		out[k] = r.resolveValue(v, outputs, &misses)
	}
	return out, misses
}

func (r *Resolver) resolveValue(v any, outputs map[string]*pipeline.NodeOutputRecord, misses *[]Miss) any {
	switch t := v.(type) {
	case string:
		return r.resolveString(t, outputs, misses)
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, e := range t {
			out[k] = r.resolveValue(e, outputs, misses)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = r.resolveValue(e, outputs, misses)
		}
		return out
	default:
		return v
	}
}

// resolveString substitutes every token in s. If s is exactly one token, the
// substituted value's native type is preserved; otherwise each token is
// stringified and interpolated.
func (r *Resolver) resolveString(s string, outputs map[string]*pipeline.NodeOutputRecord, misses *[]Miss) any {
	matches := tokenPattern.FindAllStringSubmatchIndex(s, -1)
	if len(matches) == 0 {
		return s
	}
	if len(matches) == 1 && matches[0][0] == 0 && matches[0][1] == len(s) {
		nodeID, keyPath := submatchStrings(s, matches[0])
		val, ok := r.lookup(nodeID, keyPath, outputs, misses, s)
		if !ok {
			return s
		}
		return val
	}

	var b strings.Builder
	last := 0
	for _, m := range matches {
		b.WriteString(s[last:m[0]])
		token := s[m[0]:m[1]]
		nodeID, keyPath := submatchStrings(s, m)
		val, ok := r.lookup(nodeID, keyPath, outputs, misses, token)
		if !ok {
			b.WriteString(token)
		} else {
			b.WriteString(stringify(val))
		}
		last = m[1]
	}
	b.WriteString(s[last:])
	return b.String()
}

func submatchStrings(s string, m []int) (nodeID, keyPath string) {
	nodeID = s[m[2]:m[3]]
	if m[4] >= 0 {
		keyPath = s[m[4]:m[5]]
	}
	return
}

// lookup performs the full fallback chain for one token: node_outputs
// membership, primary projection, dotted key-path walk, value.data retry,
// schema hint lookup, legacy field map, adapter delegation.
func (r *Resolver) lookup(nodeID, keyPath string, outputs map[string]*pipeline.NodeOutputRecord, misses *[]Miss, token string) (any, bool) {
	rec, ok := outputs[nodeID]
	if !ok {
		r.miss(misses, nodeID, keyPath, token, "referenced node has no recorded output")
		return nil, false
	}
	if keyPath == "" {
		return projectPrimary(rec), true
	}

	value := rec.Value
	if val, ok := walkPath(value, keyPath); ok {
		return val, true
	}
	if m, ok := value.(map[string]any); ok {
		if data, ok := m["data"].(map[string]any); ok {
			if val, ok := walkPath(data, keyPath); ok {
				return val, true
			}
		}
	}
	if r.schemaLookup != nil {
		if keys, ok := r.schemaLookup(nodeID); ok {
			if dotted, ok := keys[keyPath]; ok {
				if val, ok := walkPath(value, dotted); ok {
					return val, true
				}
			}
		}
	}
	if dotted, ok := r.legacyFieldMap[keyPath]; ok {
		if val, ok := walkPath(value, dotted); ok {
			return val, true
		}
	}
	if r.adapter != nil {
		if val, ok := r.adapter.ProduceKey(value, keyPath); ok {
			return val, true
		}
	}
	r.miss(misses, nodeID, keyPath, token, fmt.Sprintf("key path %q not found under node %q", keyPath, nodeID))
	return nil, false
}

func (r *Resolver) miss(misses *[]Miss, nodeID, keyPath, token, reason string) {
	*misses = append(*misses, Miss{NodeID: nodeID, Key: keyPath, Token: token, Reason: reason})
	r.logger.Warn(context.Background(), "placeholder resolution miss", "node", nodeID, "key", keyPath, "reason", reason)
}

// projectPrimary returns the envelope's "primary projection" for a token
// with no key path: value itself if it isn't a map, the whole map if it has
// no output_key guidance. See DESIGN.md Open Question decision 1.
func projectPrimary(rec *pipeline.NodeOutputRecord) any {
	if rec.OutputKey == "" {
		return rec.Value
	}
	m, ok := rec.Value.(map[string]any)
	if !ok {
		return rec.Value
	}
	if v, ok := m[rec.OutputKey]; ok {
		return v
	}
	return rec.Value
}

// walkPath walks a dotted key path (e.g. "data.primary") through nested
// maps. Returns ok=false on any missing segment or non-map intermediate.
func walkPath(v any, path string) (any, bool) {
	cur := v
	for _, seg := range strings.Split(path, ".") {
		m, ok := cur.(map[string]any)
		if !ok {
			// allow numeric indices into slices, e.g. "paths.0"
			if list, ok := cur.([]any); ok {
				idx, err := parseIndex(seg)
				if err != nil || idx < 0 || idx >= len(list) {
					return nil, false
				}
				cur = list[idx]
				continue
			}
			return nil, false
		}
		val, ok := m[seg]
		if !ok {
			return nil, false
		}
		cur = val
	}
	return cur, true
}

func parseIndex(s string) (int, error) {
	var n int
	if _, err := fmt.Sscanf(s, "%d", &n); err != nil {
		return 0, err
	}
	return n, nil
}

func stringify(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case fmt.Stringer:
		return t.String()
	default:
		return fmt.Sprintf("%v", t)
	}
}
