package thumbnail

import (
	"fmt"
	"image"
	"io"
	"os"

	"github.com/disintegration/imaging"

	"filedl/internal/logging"

	_ "golang.org/x/image/webp" // WebP decoder registration
)

// DefaultMaxPixels is the default decoded pixel budget. A 20MP frame uses
// roughly 80MB as RGBA, which keeps one adversarial upload from taking the
// process down.
const DefaultMaxPixels = 20_000_000

// decodeAndOrient turns the file at path into a display-oriented pixel
// buffer. The format is identified from content signatures, the decoded
// pixel count is checked against maxPixels before the full buffer is
// allocated, and any EXIF orientation is applied during decode so
// downstream stages never see orientation metadata. Malformed EXIF data is
// ignored.
//
// targetHint is the eventual thumbnail edge length; the libvips fast path
// uses it for decode-time shrinking when available.
func decodeAndOrient(path string, maxPixels, targetHint int) (image.Image, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecodeFailed, err)
	}
	defer func() {
		if err := file.Close(); err != nil {
			logging.Warn("failed to close image file %s: %v", path, err)
		}
	}()

	header := make([]byte, sniffLen)
	n, err := io.ReadFull(file, header)
	if err != nil && err != io.ErrUnexpectedEOF {
		return nil, fmt.Errorf("%w: %v", ErrDecodeFailed, err)
	}

	format, ok := DetectFormat(header[:n])
	if !ok {
		return nil, fmt.Errorf("%w: unrecognized signature", ErrUnsupportedFormat)
	}

	if _, err := file.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecodeFailed, err)
	}

	cfg, _, err := image.DecodeConfig(file)
	if err != nil {
		return nil, fmt.Errorf("%w: %s config: %v", ErrDecodeFailed, format, err)
	}
	if maxPixels > 0 && cfg.Width*cfg.Height > maxPixels {
		return nil, fmt.Errorf("%w: %dx%d", ErrImageTooLarge, cfg.Width, cfg.Height)
	}

	// Fast path: decode-time shrinking via libvips, only for sources that
	// will actually be downscaled (vips thumbnailing may enlarge).
	longer := cfg.Width
	if cfg.Height > longer {
		longer = cfg.Height
	}
	if IsVipsAvailable() && targetHint > 0 && longer > targetHint {
		if img, err := loadImageWithVips(path, targetHint); err == nil {
			return img, nil
		} else {
			logging.Debug("vips decode failed for %s, falling back: %v", path, err)
		}
	}

	if _, err := file.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecodeFailed, err)
	}

	img, err := imaging.Decode(file, imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrDecodeFailed, format, err)
	}
	return img, nil
}
