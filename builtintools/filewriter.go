package builtintools

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pipelinerun/engine/runtime/envelope"
	"github.com/pipelinerun/engine/runtime/registry"
	"github.com/pipelinerun/engine/runtime/toolident"
)

// RegisterFileWriter registers the "file_writer" file_operator tool: writes
// file_path/text to disk, accepting either string or map content (dicts are
// JSON-encoded, except that a non-.json path whose dict carries a string
// report_content gets that string verbatim; other values use %v and nil
// writes an empty file), grounded on
// original_source/tools/file_writer.py's file_path/text parameter pair.
func RegisterFileWriter(reg *registry.Registry) error {
	return reg.Register(registry.ToolDescriptor{
		Name:     "file_writer",
		Category: toolident.CategoryFileOperator,
		InputSchema: map[string]toolident.SemanticType{
			"file_path": toolident.SemanticFilePath,
			"text":      toolident.SemanticAny,
		},
		Output: registry.OutputShape{PopulatesPaths: true},
		Invoke: func(_ context.Context, params map[string]any) envelope.Envelope {
			path, _ := params["file_path"].(string)
			path = strings.TrimSpace(path)
			if path == "" {
				return envelope.NewBuilder("file_writer", params).
					Fail("file_path must not be empty", "file_path must not be empty").Build()
			}

			content, err := renderContent(params["text"], path)
			if err != nil {
				return envelope.FromError("file_writer", params, err)
			}

			if dir := filepath.Dir(path); dir != "." {
				if err := os.MkdirAll(dir, 0o755); err != nil {
					return envelope.FromError("file_writer", params, err)
				}
			}
			if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
				return envelope.FromError("file_writer", params, err)
			}

			return envelope.NewBuilder("file_writer", params).
				WithVersion("1.0.0").
				Primary(path).
				Path(path).
				Message(fmt.Sprintf("wrote %d bytes to %s", len(content), path)).
				Build()
		},
	})
}

func renderContent(v any, path string) (string, error) {
	switch t := v.(type) {
	case string:
		return t, nil
	case map[string]any:
		if strings.EqualFold(filepath.Ext(path), ".json") {
			b, err := json.MarshalIndent(t, "", "  ")
			if err != nil {
				return "", err
			}
			return string(b), nil
		}
		if rc, ok := t["report_content"].(string); ok {
			return rc, nil
		}
		b, err := json.MarshalIndent(t, "", "  ")
		if err != nil {
			return "", err
		}
		return string(b), nil
	case nil:
		return "", nil
	default:
		return fmt.Sprintf("%v", t), nil
	}
}
