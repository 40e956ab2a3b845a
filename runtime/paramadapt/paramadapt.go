// Package paramadapt implements the Smart Parameter Adapter (C6). It runs
// after placeholder substitution and coerces resolved parameter values
// across semantic categories (content<->file-path, dict-wrapping-path->path)
// when the inferred category of a value doesn't match what the consuming
// tool category expects.
package paramadapt

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/pipelinerun/engine/runtime/telemetry"
	"github.com/pipelinerun/engine/runtime/toolident"
)

var (
	fileNamePattern = regexp.MustCompile(`(?i)(file|path)`)
	contentPattern  = regexp.MustCompile(`(?i)(content|text|data)`)
	urlNamePattern  = regexp.MustCompile(`(?i)(url|link)`)
	urlValuePattern = regexp.MustCompile(`^https?://`)
	headingPattern  = regexp.MustCompile(`(?m)^#{1,6}\s+(.+)$`)
	knownExtensions = []string{".md", ".txt", ".json", ".csv", ".png", ".jpg", ".jpeg", ".yaml", ".yml", ".html", ".pdf"}
)

// Adapted records one adaptation the adapter performed, for logging.
type Adapted struct {
	Param string
	From  toolident.SemanticType
	To    toolident.SemanticType
}

// Adapter coerces resolved parameter values to the semantic category a
// consuming tool declares for that parameter.
type Adapter struct {
	tempDir string
	logger  telemetry.Logger
}

// Option configures an Adapter.
type Option func(*Adapter)

// WithTempDir overrides the directory used for materializing file_content
// values to deterministic temporary paths. Defaults to os.TempDir().
func WithTempDir(dir string) Option {
	return func(a *Adapter) { a.tempDir = dir }
}

// WithLogger sets the logger used to report adaptations.
func WithLogger(l telemetry.Logger) Option {
	return func(a *Adapter) { a.logger = l }
}

// New constructs an Adapter.
func New(opts ...Option) *Adapter {
	a := &Adapter{tempDir: os.TempDir(), logger: telemetry.NewNoopLogger()}
	for _, o := range opts {
		o(a)
	}
	return a
}

// Adapt walks params, inferring each value's semantic category and coercing
// it when it doesn't match expected[name] (the consuming tool's declared
// input schema). Values with no entry in expected, or whose inferred
// category already matches, pass through unchanged, except that a map carrying
// a file path is reduced to that path for a file_path parameter. Failed
// adaptations leave the value untouched.
func (a *Adapter) Adapt(params map[string]any, expected map[string]toolident.SemanticType) (map[string]any, []Adapted) {
	out := make(map[string]any, len(params))
	var applied []Adapted
	for name, v := range params {
		want, ok := expected[name]
		if !ok {
			out[name] = v
			continue
		}
		got := InferCategory(name, v)
		if _, isMap := v.(map[string]any); isMap && got == toolident.SemanticFilePath && want == toolident.SemanticFilePath {
			// A map carrying a path infers as file_path but still has to be
			// reduced to the path string.
			got = toolident.SemanticMap
		}
		if got == want || want == toolident.SemanticAny {
			out[name] = v
			continue
		}
		adapted, changed, err := a.coerce(name, v, got, want)
		if err != nil {
			a.logger.Warn(context.Background(), "parameter adaptation failed", "param", name, "from", got, "to", want, "error", err.Error())
			out[name] = v
			continue
		}
		out[name] = adapted
		if changed {
			applied = append(applied, Adapted{Param: name, From: got, To: want})
		}
	}
	return out, applied
}

// InferCategory infers the semantic category of a single parameter value
// from its name and shape.
func InferCategory(name string, v any) toolident.SemanticType {
	switch t := v.(type) {
	case string:
		switch {
		case urlValuePattern.MatchString(t):
			return toolident.SemanticURL
		case looksLikeFilePath(t):
			return toolident.SemanticFilePath
		case len(t) > 200 || headingPattern.MatchString(t):
			return toolident.SemanticFileContent
		}
		if urlNamePattern.MatchString(name) {
			return toolident.SemanticURL
		}
		if fileNamePattern.MatchString(name) {
			return toolident.SemanticFilePath
		}
		if contentPattern.MatchString(name) {
			return toolident.SemanticFileContent
		}
		return toolident.SemanticString
	case map[string]any:
		if _, ok := extractFilePathFromDict(t); ok {
			return toolident.SemanticFilePath
		}
		if _, ok := t["content"]; ok {
			return toolident.SemanticFileContent
		}
		if _, ok := t["text"]; ok {
			return toolident.SemanticFileContent
		}
		return toolident.SemanticMap
	case []any:
		return toolident.SemanticList
	case float64, int, int64:
		return toolident.SemanticNumber
	case bool:
		return toolident.SemanticBoolean
	default:
		return toolident.SemanticAny
	}
}

func looksLikeFilePath(s string) bool {
	if strings.ContainsAny(s, "/\\") && !strings.Contains(s, " ") {
		return true
	}
	ext := strings.ToLower(filepath.Ext(s))
	for _, known := range knownExtensions {
		if ext == known {
			return true
		}
	}
	return false
}

// coerce applies the adaptation table. changed reports whether a real
// coercion happened (vs. passthrough because no rule fit).
func (a *Adapter) coerce(name string, v any, from, to toolident.SemanticType) (any, bool, error) {
	switch {
	case from == toolident.SemanticFileContent && to == toolident.SemanticFilePath:
		return a.contentToPath(name, v)
	case from == toolident.SemanticFilePath && to == toolident.SemanticFileContent:
		return pathToContent(v)
	case (from == toolident.SemanticMap) && to == toolident.SemanticFilePath:
		return dictToPath(v)
	default:
		return v, false, nil
	}
}

// contentToPath writes content to a deterministic temporary path (derived
// from a leading Markdown heading if present, else from the param name) and
// returns that path.
func (a *Adapter) contentToPath(name string, v any) (any, bool, error) {
	content, ok := v.(string)
	if !ok {
		return v, false, fmt.Errorf("paramadapt: expected string content for %q, got %T", name, v)
	}
	filename := filenameFromContent(content, name)
	path := filepath.Join(a.tempDir, filename)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return v, false, fmt.Errorf("paramadapt: write temp file for %q: %w", name, err)
	}
	return path, true, nil
}

func filenameFromContent(content, paramName string) string {
	if m := headingPattern.FindStringSubmatch(content); len(m) == 2 {
		slug := slugify(m[1])
		if slug != "" {
			return slug + ".md"
		}
	}
	sum := sha256.Sum256([]byte(content))
	return fmt.Sprintf("%s-%s.md", slugify(paramName), hex.EncodeToString(sum[:])[:8])
}

func slugify(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	var b strings.Builder
	lastDash := false
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z' || r >= '0' && r <= '9':
			b.WriteRune(r)
			lastDash = false
		default:
			if !lastDash && b.Len() > 0 {
				b.WriteByte('-')
				lastDash = true
			}
		}
	}
	return strings.Trim(b.String(), "-")
}

// pathToContent reads the file if it exists; otherwise returns the path
// verbatim.
func pathToContent(v any) (any, bool, error) {
	path, ok := v.(string)
	if !ok {
		return v, false, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return path, false, nil
	}
	return string(b), true, nil
}

// dictToPath extracts a file path from a dict with a file_path/path/file key
// (or a nested dict containing one); recurses into nested maps.
func dictToPath(v any) (any, bool, error) {
	m, ok := v.(map[string]any)
	if !ok {
		return v, false, nil
	}
	if path, ok := extractFilePathFromDict(m); ok {
		return path, true, nil
	}
	return v, false, nil
}

func extractFilePathFromDict(m map[string]any) (string, bool) {
	for _, key := range []string{"file_path", "path", "file"} {
		if v, ok := m[key]; ok {
			if s, ok := v.(string); ok {
				return s, true
			}
			if nested, ok := v.(map[string]any); ok {
				if s, ok := extractFilePathFromDict(nested); ok {
					return s, true
				}
			}
		}
	}
	for _, v := range m {
		if nested, ok := v.(map[string]any); ok {
			if s, ok := extractFilePathFromDict(nested); ok {
				return s, true
			}
		}
	}
	return "", false
}
