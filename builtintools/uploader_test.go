package builtintools

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/pipelinerun/engine/runtime/envelope"
	"github.com/pipelinerun/engine/runtime/registry"
)

func TestRegisterUploader_UploadsSingleFileToLocalStore(t *testing.T) {
	srcDir := t.TempDir()
	storeDir := t.TempDir()
	srcPath := filepath.Join(srcDir, "report.txt")
	require.NoError(t, os.WriteFile(srcPath, []byte("content"), 0o644))

	reg := registry.New()
	require.NoError(t, RegisterUploader(reg, storeDir))

	env := reg.Invoke(context.Background(), "uploader", map[string]any{"file_path": srcPath})
	require.Equal(t, envelope.StatusSuccess, env.Status)

	url, ok := env.Data.Primary.(string)
	require.True(t, ok)
	require.True(t, strings.HasPrefix(url, "file://"))

	dest := filepath.Join(storeDir, "report.txt")
	b, err := os.ReadFile(dest)
	require.NoError(t, err)
	require.Equal(t, "content", string(b))
}

func TestRegisterUploader_UploadsListOfFiles(t *testing.T) {
	srcDir := t.TempDir()
	storeDir := t.TempDir()
	p1 := filepath.Join(srcDir, "a.txt")
	p2 := filepath.Join(srcDir, "b.txt")
	require.NoError(t, os.WriteFile(p1, []byte("a"), 0o644))
	require.NoError(t, os.WriteFile(p2, []byte("b"), 0o644))

	reg := registry.New()
	require.NoError(t, RegisterUploader(reg, storeDir))

	env := reg.Invoke(context.Background(), "uploader", map[string]any{
		"file_path": []any{p1, p2},
	})
	require.Equal(t, envelope.StatusSuccess, env.Status)
	urls, ok := env.Data.Primary.([]any)
	require.True(t, ok)
	require.Len(t, urls, 2)
	require.Equal(t, 2, env.Data.Counts["uploaded"])
}

func TestRegisterUploader_NoPathFails(t *testing.T) {
	reg := registry.New()
	require.NoError(t, RegisterUploader(reg, t.TempDir()))
	env := reg.Invoke(context.Background(), "uploader", map[string]any{"file_path": ""})
	require.Equal(t, envelope.StatusError, env.Status)
}

func TestRegisterUploader_MissingSourceFileFails(t *testing.T) {
	reg := registry.New()
	require.NoError(t, RegisterUploader(reg, t.TempDir()))
	env := reg.Invoke(context.Background(), "uploader", map[string]any{"file_path": "/no/such/file.txt"})
	require.Equal(t, envelope.StatusError, env.Status)
}

func TestRegisterUploader_DefaultsStoreDirWhenEmpty(t *testing.T) {
	reg := registry.New()
	require.NoError(t, RegisterUploader(reg, ""))
	desc, ok := reg.Get("uploader")
	require.True(t, ok)
	require.Equal(t, "uploader", string(desc.Name))
}
