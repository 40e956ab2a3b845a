package builtintools

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"math"

	"github.com/pipelinerun/engine/runtime/envelope"
	"github.com/pipelinerun/engine/runtime/imageref"
	"github.com/pipelinerun/engine/runtime/registry"
	"github.com/pipelinerun/engine/runtime/toolident"
)

// RegisterImageLoader registers the "image_loader" data_source tool: loads
// one or more deterministic in-memory images (standing in for a real decoder)
// and returns them as data.primary, a slice of image.Image values left
// unserialized until a consumer forces materialization via the tool-output
// adapter's images_to_paths transformer.
func RegisterImageLoader(reg *registry.Registry) error {
	return reg.Register(registry.ToolDescriptor{
		Name:     "image_loader",
		Category: toolident.CategoryDataSource,
		InputSchema: map[string]toolident.SemanticType{
			"count": toolident.SemanticNumber,
		},
		Output: registry.OutputShape{Primary: toolident.SemanticImageRef},
		Invoke: func(_ context.Context, params map[string]any) envelope.Envelope {
			count := 1
			if v, ok := params["count"].(float64); ok && v > 0 {
				count = int(v)
			}
			images := make([]any, count)
			for i := range images {
				images[i] = solidImage(64, 64, uint8(32*i%256))
			}
			return envelope.NewBuilder("image_loader", params).
				WithVersion("1.0.0").
				Primary(images).
				Count("images", count).
				Message(fmt.Sprintf("loaded %d image(s)", count)).
				Build()
		},
	})
}

// RegisterImageRotator registers the "image_rotator" data_processor tool:
// rotates every image_path entry (accepting image.Image values, not just
// paths — mirroring original_source/tools/image_rotator.py's acceptance of
// either a path or a PIL Image) by angle degrees and returns the rotated
// images, again left as in-memory values for a downstream adapter to
// materialize.
func RegisterImageRotator(reg *registry.Registry) error {
	return reg.Register(registry.ToolDescriptor{
		Name:     "image_rotator",
		Category: toolident.CategoryDataProcessor,
		InputSchema: map[string]toolident.SemanticType{
			"image_path": toolident.SemanticImageRef,
			"angle":      toolident.SemanticNumber,
		},
		Output: registry.OutputShape{Primary: toolident.SemanticImageRef},
		Invoke: func(_ context.Context, params map[string]any) envelope.Envelope {
			angle := 90.0
			if v, ok := params["angle"].(float64); ok {
				angle = v
			}
			images := normalizeImages(params["image_path"])
			if len(images) == 0 {
				return envelope.NewBuilder("image_rotator", params).
					Fail("no images provided", "image_path must resolve to one or more images").Build()
			}
			rotated := make([]any, len(images))
			for i, img := range images {
				rotated[i] = rotate90Multiple(img, angle)
			}
			return envelope.NewBuilder("image_rotator", params).
				WithVersion("1.0.0").
				Primary(rotated).
				Count("rotated", len(rotated)).
				Message(fmt.Sprintf("rotated %d image(s) by %.0f degrees", len(rotated), angle)).
				Build()
		},
	})
}

func normalizeImages(v any) []imageref.ImageLike {
	switch t := v.(type) {
	case imageref.ImageLike:
		return []imageref.ImageLike{t}
	case []any:
		var out []imageref.ImageLike
		for _, e := range t {
			if img, ok := imageref.IsImageLike(e); ok {
				out = append(out, img)
			}
		}
		return out
	default:
		if img, ok := imageref.IsImageLike(v); ok {
			return []imageref.ImageLike{img}
		}
		return nil
	}
}

func solidImage(w, h int, shade uint8) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	c := color.RGBA{R: shade, G: shade, B: shade, A: 255}
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	return img
}

// rotate90Multiple approximates a 90-degree-multiple rotation (the common
// case for the original tool's default angle); other angles are rounded to
// the nearest multiple of 90 rather than implementing general affine
// resampling.
func rotate90Multiple(img imageref.ImageLike, angle float64) image.Image {
	steps := int(math.Round(angle/90)) % 4
	if steps < 0 {
		steps += 4
	}
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	out := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			out.Set(x, y, img.At(b.Min.X+x, b.Min.Y+y))
		}
	}
	for i := 0; i < steps; i++ {
		out = rotate90(out)
	}
	return out
}

func rotate90(img *image.RGBA) *image.RGBA {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	out := image.NewRGBA(image.Rect(0, 0, h, w))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			out.Set(h-1-y, x, img.At(b.Min.X+x, b.Min.Y+y))
		}
	}
	return out
}
