package thumbnail

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"

	"github.com/disintegration/imaging"
)

// MIMEJPEG is the MIME type of every generated thumbnail.
const MIMEJPEG = "image/jpeg"

// jpegQuality is the fixed output compression quality.
const jpegQuality = 85

// background is the color transparent pixels are blended onto before JPEG
// encoding.
var background = color.NRGBA{R: 0xDA, G: 0xE1, B: 0xE4, A: 0xFF}

// resizeToFit scales img uniformly so its longer edge equals target,
// preserving aspect ratio. Sources already within target are passed
// through as a copy at original size; thumbnails are never upscaled.
func resizeToFit(img image.Image, target int) *image.NRGBA {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()

	longer := w
	if h > longer {
		longer = h
	}
	if longer <= target {
		return imaging.Clone(img)
	}

	// Lanczos over cheaper filters: thumbnails are generated once and
	// served many times.
	return imaging.Fit(img, target, target, imaging.Lanczos)
}

// encodeJPEG flattens img onto the background color and encodes it as JPEG
// at the fixed quality. Output bytes need not be stable across runs, but
// always decode to the input dimensions.
func encodeJPEG(img image.Image) ([]byte, error) {
	flat := flatten(img)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, flat, &jpeg.Options{Quality: jpegQuality}); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEncodeFailed, err)
	}
	return buf.Bytes(), nil
}

// flatten composites img over the background color, discarding alpha.
// Opaque sources come through unchanged apart from the color model.
func flatten(img image.Image) *image.NRGBA {
	b := img.Bounds()
	canvas := imaging.New(b.Dx(), b.Dy(), background)
	return imaging.Overlay(canvas, img, image.Pt(0, 0), 1.0)
}
