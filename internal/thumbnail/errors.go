package thumbnail

import "errors"

var (
	// ErrUnsupportedFormat indicates the source bytes did not match any
	// supported image signature.
	ErrUnsupportedFormat = errors.New("unsupported image format")

	// ErrDecodeFailed indicates the source matched a known signature but
	// could not be decoded.
	ErrDecodeFailed = errors.New("image decode failed")

	// ErrImageTooLarge indicates the decoded pixel count would exceed the
	// configured budget. Detected before the full pixel buffer is
	// allocated.
	ErrImageTooLarge = errors.New("image exceeds pixel budget")

	// ErrEncodeFailed indicates the thumbnail could not be re-encoded.
	ErrEncodeFailed = errors.New("thumbnail encode failed")

	// ErrInvalidSize indicates a requested size outside the supported set.
	ErrInvalidSize = errors.New("unsupported thumbnail size")
)
