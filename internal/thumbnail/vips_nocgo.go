//go:build !cgo

package thumbnail

import (
	"errors"
	"image"
)

// errVipsRequiresCgo is returned when the binary was built without cgo;
// the pipeline falls back to the pure-Go decode path.
var errVipsRequiresCgo = errors.New("libvips support requires a cgo-enabled build")

// InitVips reports that libvips is unavailable in non-cgo builds.
func InitVips() error {
	return errVipsRequiresCgo
}

// ShutdownVips is a no-op in non-cgo builds.
func ShutdownVips() {}

// IsVipsAvailable always reports false in non-cgo builds.
func IsVipsAvailable() bool {
	return false
}

func loadImageWithVips(path string, target int) (image.Image, error) {
	return nil, errVipsRequiresCgo
}
