package builtintools

import (
	"context"
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/pipelinerun/engine/runtime/envelope"
	"github.com/pipelinerun/engine/runtime/imageref"
	"github.com/pipelinerun/engine/runtime/registry"
)

func TestRegisterImageLoader_ProducesRequestedCount(t *testing.T) {
	reg := registry.New()
	require.NoError(t, RegisterImageLoader(reg))

	env := reg.Invoke(context.Background(), "image_loader", map[string]any{"count": 3.0})
	require.Equal(t, envelope.StatusSuccess, env.Status)
	require.Equal(t, 3, env.Data.Counts["images"])
}

func TestRegisterImageLoader_DefaultsToOneImageWhenCountMissing(t *testing.T) {
	reg := registry.New()
	require.NoError(t, RegisterImageLoader(reg))
	env := reg.Invoke(context.Background(), "image_loader", map[string]any{})
	require.Equal(t, envelope.StatusSuccess, env.Status)
	require.Equal(t, 1, env.Data.Counts["images"])
}

func solidImg(w, h int, shade uint8) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	c := color.RGBA{R: shade, G: shade, B: shade, A: 255}
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	return img
}

func TestRegisterImageRotator_RotatesSingleImage(t *testing.T) {
	reg := registry.New()
	require.NoError(t, RegisterImageRotator(reg))

	src := solidImg(4, 2, 10) // 4 wide, 2 tall
	env := reg.Invoke(context.Background(), "image_rotator", map[string]any{
		"image_path": src, "angle": 90.0,
	})
	require.Equal(t, envelope.StatusSuccess, env.Status)

	rotated, ok := env.Data.Primary.([]any)
	require.True(t, ok)
	require.Len(t, rotated, 1)

	img, ok := imageref.IsImageLike(rotated[0])
	require.True(t, ok)
	b := img.Bounds()
	// a 90-degree rotation swaps width and height.
	require.Equal(t, 2, b.Dx())
	require.Equal(t, 4, b.Dy())
}

func TestRegisterImageRotator_AcceptsListOfImages(t *testing.T) {
	reg := registry.New()
	require.NoError(t, RegisterImageRotator(reg))

	images := []any{solidImg(2, 2, 1), solidImg(2, 2, 2)}
	env := reg.Invoke(context.Background(), "image_rotator", map[string]any{
		"image_path": images, "angle": 180.0,
	})
	require.Equal(t, envelope.StatusSuccess, env.Status)
	rotated := env.Data.Primary.([]any)
	require.Len(t, rotated, 2)
}

func TestRegisterImageRotator_NoImagesFails(t *testing.T) {
	reg := registry.New()
	require.NoError(t, RegisterImageRotator(reg))
	env := reg.Invoke(context.Background(), "image_rotator", map[string]any{"image_path": "not-an-image"})
	require.Equal(t, envelope.StatusError, env.Status)
}

func TestRegisterImageRotator_360DegreesReturnsOriginalOrientation(t *testing.T) {
	reg := registry.New()
	require.NoError(t, RegisterImageRotator(reg))
	src := solidImg(4, 2, 5)
	env := reg.Invoke(context.Background(), "image_rotator", map[string]any{
		"image_path": src, "angle": 360.0,
	})
	rotated := env.Data.Primary.([]any)
	img, _ := imageref.IsImageLike(rotated[0])
	b := img.Bounds()
	require.Equal(t, 4, b.Dx())
	require.Equal(t, 2, b.Dy())
}
