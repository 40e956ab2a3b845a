package imageref

import (
	"image"
	"image/png"
	"os"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestIsImageLike_AcceptsStdlibRGBA(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 2, 2))
	like, ok := IsImageLike(img)
	require.True(t, ok)
	require.Equal(t, img.Bounds(), like.Bounds())
}

func TestIsImageLike_RejectsNonImageValue(t *testing.T) {
	_, ok := IsImageLike("not an image")
	require.False(t, ok)
}

func TestIsImageLike_RejectsNilInterface(t *testing.T) {
	_, ok := IsImageLike(nil)
	require.False(t, ok)
}

func TestSaveTemp_WritesDecodablePNG(t *testing.T) {
	dir := t.TempDir()
	img := image.NewRGBA(image.Rect(0, 0, 3, 3))

	path, err := SaveTemp(img, dir, "frame")
	require.NoError(t, err)
	require.FileExists(t, path)

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	decoded, err := png.Decode(f)
	require.NoError(t, err)
	require.Equal(t, img.Bounds(), decoded.Bounds())
}

func TestSaveTemp_DefaultsBaseNameWhenEmpty(t *testing.T) {
	dir := t.TempDir()
	img := image.NewRGBA(image.Rect(0, 0, 1, 1))

	path, err := SaveTemp(img, dir, "")
	require.NoError(t, err)
	require.Contains(t, path, "image-")
}

func TestSaveTemp_DistinctImagesProduceDistinctPaths(t *testing.T) {
	dir := t.TempDir()
	a := image.NewRGBA(image.Rect(0, 0, 1, 1))
	b := image.NewRGBA(image.Rect(0, 0, 1, 1))

	pathA, err := SaveTemp(a, dir, "img")
	require.NoError(t, err)
	pathB, err := SaveTemp(b, dir, "img")
	require.NoError(t, err)

	require.NotEqual(t, pathA, pathB)
}

func TestSaveTemp_FailsForUnwritableDir(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 1, 1))
	_, err := SaveTemp(img, "/no/such/directory", "img")
	require.Error(t, err)
}
