// Package raster holds the pure image transforms of the pipeline: the
// print upscaler and the cover branding overlay. Nothing in here touches
// the network or any shared state.
package raster

import (
	"bytes"
	"fmt"
	"image"

	"github.com/disintegration/imaging"
)

// Upscale resizes a square raster to target x target pixels using the
// Lanczos kernel and returns it PNG-encoded.
//
// The function never downscales: if either source dimension already
// exceeds target, the source dimension wins and the output keeps it. In
// practice model output (1024px) is always far below print resolution.
func Upscale(data []byte, target int) ([]byte, error) {
	if target <= 0 {
		return nil, fmt.Errorf("invalid upscale target %d", target)
	}

	img, err := imaging.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode raster: %w", err)
	}

	b := img.Bounds()
	if b.Dx() != b.Dy() {
		return nil, fmt.Errorf("source raster is %dx%d, expected square", b.Dx(), b.Dy())
	}

	size := target
	if b.Dx() > size {
		size = b.Dx()
	}

	out := imaging.Resize(img, size, size, imaging.Lanczos)
	return encodePNG(out)
}

// Decode decodes raster bytes into an image.
func Decode(data []byte) (image.Image, error) {
	img, err := imaging.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode raster: %w", err)
	}
	return img, nil
}

func encodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.PNG); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return buf.Bytes(), nil
}
