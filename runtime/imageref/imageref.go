// Package imageref recognizes and materializes in-memory image-like values
// produced by tools (e.g. an image_loader/image_rotator pair), the idiomatic
// Go counterpart of the original implementation's attribute-heuristic
// duck-typing over PIL image objects: instead of probing for `.size`/`.save`
// attributes, Go structural typing checks a value against the stdlib
// image.Image method set.
package imageref

import (
	"fmt"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
)

// ImageLike is the minimal shape the Tool-Output Adapter recognizes as an
// in-memory image worth materializing to a file. It matches stdlib
// image.Image's method set exactly, so any value satisfying image.Image
// (including *image.RGBA, *image.NRGBA, etc.) is ImageLike with no wrapping
// required.
type ImageLike interface {
	Bounds() image.Rectangle
	At(x, y int) color.Color
	ColorModel() color.Model
}

// IsImageLike reports whether v satisfies ImageLike.
func IsImageLike(v any) (ImageLike, bool) {
	img, ok := v.(ImageLike)
	return img, ok
}

// SaveTemp PNG-encodes img to a new file under dir named from baseName plus
// the value's pointer identity (so repeated calls for distinct images in the
// same batch don't collide), and returns the resulting path.
func SaveTemp(img ImageLike, dir, baseName string) (string, error) {
	if baseName == "" {
		baseName = "image"
	}
	path := filepath.Join(dir, fmt.Sprintf("%s-%p.png", baseName, img))
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("imageref: create %s: %w", path, err)
	}
	defer f.Close()
	if err := png.Encode(f, img); err != nil {
		return "", fmt.Errorf("imageref: encode %s: %w", path, err)
	}
	return path, nil
}
