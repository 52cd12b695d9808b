package thumbnail

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"testing"
)

func makeJPEGBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x % 256), G: uint8(y % 256), B: 0x40, A: 0xFF})
		}
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 90}); err != nil {
		t.Fatalf("encoding test jpeg: %v", err)
	}
	return buf.Bytes()
}

func writeJPEGFile(t *testing.T, dir, name string, w, h int) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, makeJPEGBytes(t, w, h), 0644); err != nil {
		t.Fatalf("writing %s: %v", name, err)
	}
	return path
}

// spliceOrientation inserts an EXIF APP1 segment carrying the given
// orientation value right after the SOI marker of a JPEG stream.
func spliceOrientation(t *testing.T, jpg []byte, orientation byte) []byte {
	t.Helper()
	if len(jpg) < 2 || jpg[0] != 0xFF || jpg[1] != 0xD8 {
		t.Fatal("input is not a JPEG stream")
	}

	payload := []byte{
		'E', 'x', 'i', 'f', 0x00, 0x00,
		// TIFF header, little endian, IFD0 at offset 8.
		'I', 'I', 0x2A, 0x00, 0x08, 0x00, 0x00, 0x00,
		// IFD0: one entry.
		0x01, 0x00,
		// Tag 0x0112 (Orientation), type SHORT, count 1, value.
		0x12, 0x01, 0x03, 0x00, 0x01, 0x00, 0x00, 0x00, orientation, 0x00, 0x00, 0x00,
		// No next IFD.
		0x00, 0x00, 0x00, 0x00,
	}

	segLen := len(payload) + 2
	out := make([]byte, 0, len(jpg)+segLen+2)
	out = append(out, jpg[:2]...)
	out = append(out, 0xFF, 0xE1, byte(segLen>>8), byte(segLen&0xFF))
	out = append(out, payload...)
	out = append(out, jpg[2:]...)
	return out
}

func TestDecodeAndOrientRejectsNonImage(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "notes.jpg")
	if err := os.WriteFile(path, []byte("definitely not pixels"), 0644); err != nil {
		t.Fatal(err)
	}

	_, err := decodeAndOrient(path, DefaultMaxPixels, 128)
	if !errors.Is(err, ErrUnsupportedFormat) {
		t.Errorf("decodeAndOrient() error = %v, want ErrUnsupportedFormat", err)
	}
}

func TestDecodeAndOrientMissingFile(t *testing.T) {
	_, err := decodeAndOrient(filepath.Join(t.TempDir(), "gone.jpg"), DefaultMaxPixels, 128)
	if !errors.Is(err, ErrDecodeFailed) {
		t.Errorf("decodeAndOrient() error = %v, want ErrDecodeFailed", err)
	}
}

func TestDecodeAndOrientPixelBudget(t *testing.T) {
	dir := t.TempDir()
	path := writeJPEGFile(t, dir, "big.jpg", 40, 40)

	// 40x40 = 1600 pixels, over a 100 pixel budget.
	_, err := decodeAndOrient(path, 100, 128)
	if !errors.Is(err, ErrImageTooLarge) {
		t.Errorf("decodeAndOrient() error = %v, want ErrImageTooLarge", err)
	}

	// The same file decodes fine with the default budget.
	if _, err := decodeAndOrient(path, DefaultMaxPixels, 128); err != nil {
		t.Errorf("decodeAndOrient() with default budget: %v", err)
	}
}

func TestDecodeAndOrientTruncatedJPEG(t *testing.T) {
	dir := t.TempDir()
	jpg := makeJPEGBytes(t, 40, 40)
	path := filepath.Join(dir, "cut.jpg")
	// Keep the signature but cut the stream before the image data ends.
	if err := os.WriteFile(path, jpg[:20], 0644); err != nil {
		t.Fatal(err)
	}

	_, err := decodeAndOrient(path, DefaultMaxPixels, 128)
	if !errors.Is(err, ErrDecodeFailed) {
		t.Errorf("decodeAndOrient() error = %v, want ErrDecodeFailed", err)
	}
}

func TestDecodeAndOrientAppliesOrientation(t *testing.T) {
	dir := t.TempDir()
	oriented := spliceOrientation(t, makeJPEGBytes(t, 80, 40), 6)
	path := filepath.Join(dir, "rotated.jpg")
	if err := os.WriteFile(path, oriented, 0644); err != nil {
		t.Fatal(err)
	}

	img, err := decodeAndOrient(path, DefaultMaxPixels, 128)
	if err != nil {
		t.Fatalf("decodeAndOrient() error: %v", err)
	}

	// Orientation 6 is a 90 degree rotation, so the 80x40 source must come
	// out 40x80.
	b := img.Bounds()
	if b.Dx() != 40 || b.Dy() != 80 {
		t.Errorf("oriented dimensions = %dx%d, want 40x80", b.Dx(), b.Dy())
	}
}

func TestDecodeAndOrientNormalOrientationUntouched(t *testing.T) {
	dir := t.TempDir()
	oriented := spliceOrientation(t, makeJPEGBytes(t, 80, 40), 1)
	path := filepath.Join(dir, "normal.jpg")
	if err := os.WriteFile(path, oriented, 0644); err != nil {
		t.Fatal(err)
	}

	img, err := decodeAndOrient(path, DefaultMaxPixels, 128)
	if err != nil {
		t.Fatalf("decodeAndOrient() error: %v", err)
	}
	b := img.Bounds()
	if b.Dx() != 80 || b.Dy() != 40 {
		t.Errorf("dimensions = %dx%d, want 80x40", b.Dx(), b.Dy())
	}
}

func TestResizeToFitDownscales(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 400, 200))
	out := resizeToFit(img, 128)

	b := out.Bounds()
	if b.Dx() != 128 {
		t.Errorf("longer edge = %d, want 128", b.Dx())
	}
	if b.Dy() < 62 || b.Dy() > 66 {
		t.Errorf("shorter edge = %d, want about 64", b.Dy())
	}
}

func TestResizeToFitNeverUpscales(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 20, 10))
	out := resizeToFit(img, 256)

	b := out.Bounds()
	if b.Dx() != 20 || b.Dy() != 10 {
		t.Errorf("dimensions = %dx%d, want 20x10 unchanged", b.Dx(), b.Dy())
	}
}

func TestResizeToFitExactTarget(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 128, 128))
	out := resizeToFit(img, 128)

	b := out.Bounds()
	if b.Dx() != 128 || b.Dy() != 128 {
		t.Errorf("dimensions = %dx%d, want 128x128", b.Dx(), b.Dy())
	}
}

func TestResizeToFitPortrait(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 100, 500))
	out := resizeToFit(img, 64)

	b := out.Bounds()
	if b.Dy() != 64 {
		t.Errorf("longer edge = %d, want 64", b.Dy())
	}
	if b.Dx() < 11 || b.Dx() > 14 {
		t.Errorf("shorter edge = %d, want about 13", b.Dx())
	}
}

func TestEncodeJPEGFlattensTransparency(t *testing.T) {
	dir := t.TempDir()

	// A fully transparent PNG must come out as the background color, not
	// black.
	img := image.NewNRGBA(image.Rect(0, 0, 8, 8))
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(dir, "clear.png")
	if err := os.WriteFile(path, buf.Bytes(), 0644); err != nil {
		t.Fatal(err)
	}

	decoded, err := decodeAndOrient(path, DefaultMaxPixels, 128)
	if err != nil {
		t.Fatalf("decodeAndOrient() error: %v", err)
	}
	data, err := encodeJPEG(resizeToFit(decoded, 128))
	if err != nil {
		t.Fatalf("encodeJPEG() error: %v", err)
	}

	out, err := jpeg.Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("decoding output: %v", err)
	}
	r, g, b, _ := out.At(4, 4).RGBA()
	if !near8(r, 0xDA) || !near8(g, 0xE1) || !near8(b, 0xE4) {
		t.Errorf("flattened pixel = (%d, %d, %d), want about (0xDA, 0xE1, 0xE4)",
			r>>8, g>>8, b>>8)
	}
}

// near8 reports whether a 16-bit color channel is within JPEG compression
// tolerance of the given 8-bit value.
func near8(ch uint32, want uint8) bool {
	got := int(ch >> 8)
	diff := got - int(want)
	if diff < 0 {
		diff = -diff
	}
	return diff <= 6
}

func TestEncodeJPEGOutputDecodes(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 64, 48))
	data, err := encodeJPEG(img)
	if err != nil {
		t.Fatalf("encodeJPEG() error: %v", err)
	}

	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("output does not decode: %v", err)
	}
	if format != "jpeg" {
		t.Errorf("output format = %q, want jpeg", format)
	}
	if cfg.Width != 64 || cfg.Height != 48 {
		t.Errorf("output dimensions = %dx%d, want 64x48", cfg.Width, cfg.Height)
	}
}
