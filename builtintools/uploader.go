package builtintools

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/pipelinerun/engine/runtime/envelope"
	"github.com/pipelinerun/engine/runtime/registry"
	"github.com/pipelinerun/engine/runtime/toolident"
)

// RegisterUploader registers the "uploader" storage tool: copies one or more
// file_path values into a local object-store directory and returns their
// file:// URLs, grounded on original_source/tools/minio_uploader.py's
// flatten-paths-then-upload shape (simplified to a local directory so this
// module carries no object-storage SDK dependency of its own).
func RegisterUploader(reg *registry.Registry, storeDir string) error {
	if storeDir == "" {
		storeDir = filepath.Join(os.TempDir(), "pipelinerun-objects")
	}
	return reg.Register(registry.ToolDescriptor{
		Name:     "uploader",
		Category: toolident.CategoryStorage,
		InputSchema: map[string]toolident.SemanticType{
			"file_path": toolident.SemanticFilePath,
		},
		Output: registry.OutputShape{Primary: toolident.SemanticURL},
		Invoke: func(_ context.Context, params map[string]any) envelope.Envelope {
			paths := flattenPaths(params["file_path"])
			if len(paths) == 0 {
				return envelope.NewBuilder("uploader", params).
					Fail("no file_path provided", "file_path must be a path or list of paths").Build()
			}
			if err := os.MkdirAll(storeDir, 0o755); err != nil {
				return envelope.FromError("uploader", params, err)
			}

			urls := make([]any, 0, len(paths))
			for _, p := range paths {
				url, err := upload(p, storeDir)
				if err != nil {
					return envelope.FromError("uploader", params, err)
				}
				urls = append(urls, url)
			}

			b := envelope.NewBuilder("uploader", params).WithVersion("1.0.0")
			if len(urls) == 1 {
				b.Primary(urls[0])
			} else {
				b.Primary(urls)
			}
			return b.Count("uploaded", len(urls)).
				Message(fmt.Sprintf("uploaded %d file(s)", len(urls))).
				Build()
		},
	})
}

func flattenPaths(v any) []string {
	switch t := v.(type) {
	case string:
		if t == "" {
			return nil
		}
		return []string{t}
	case []any:
		var out []string
		for _, e := range t {
			out = append(out, flattenPaths(e)...)
		}
		return out
	default:
		return nil
	}
}

func upload(path, storeDir string) (string, error) {
	src, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("uploader: open %s: %w", path, err)
	}
	defer src.Close()

	dest := filepath.Join(storeDir, filepath.Base(path))
	dst, err := os.Create(dest)
	if err != nil {
		return "", fmt.Errorf("uploader: create %s: %w", dest, err)
	}
	defer dst.Close()

	if _, err := io.Copy(dst, src); err != nil {
		return "", fmt.Errorf("uploader: copy to %s: %w", dest, err)
	}
	return "file://" + dest, nil
}
