package thumbnail

import (
	"fmt"
	"strconv"
	"strings"

	"filedl/internal/fingerprint"
)

// Size is a requested thumbnail size: the maximum edge length in pixels.
type Size int

// The fixed set of supported sizes.
const (
	Size64  Size = 64
	Size128 Size = 128
	Size256 Size = 256
)

// Sizes returns the supported sizes in ascending order.
func Sizes() []Size {
	return []Size{Size64, Size128, Size256}
}

// Valid reports whether s is one of the supported sizes.
func (s Size) Valid() bool {
	switch s {
	case Size64, Size128, Size256:
		return true
	}
	return false
}

// ParseSize parses a size query value. The empty string defaults to 128.
func ParseSize(raw string) (Size, error) {
	if raw == "" {
		return Size128, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidSize, raw)
	}
	s := Size(n)
	if !s.Valid() {
		return 0, fmt.Errorf("%w: %d", ErrInvalidSize, n)
	}
	return s, nil
}

// Key identifies one cacheable thumbnail: a source fingerprint plus a
// requested size. Keys are comparable and used for both deduplication and
// eviction.
type Key struct {
	Fingerprint fingerprint.Fingerprint
	Size        Size
}

// String renders the key in its canonical "<fingerprint>-<size>" form,
// which is also the base of the backing file name.
func (k Key) String() string {
	return fmt.Sprintf("%s-%d", k.Fingerprint, int(k.Size))
}

const entryExt = ".jpg"

// filename returns the backing store file name for the key.
func (k Key) filename() string {
	return k.String() + entryExt
}

// parseEntryFilename recovers a Key from a backing store file name.
// Used to rebuild the cache index at startup.
func parseEntryFilename(name string) (Key, bool) {
	base, ok := strings.CutSuffix(name, entryExt)
	if !ok {
		return Key{}, false
	}
	i := strings.LastIndexByte(base, '-')
	if i <= 0 || i == len(base)-1 {
		return Key{}, false
	}
	n, err := strconv.Atoi(base[i+1:])
	if err != nil {
		return Key{}, false
	}
	s := Size(n)
	if !s.Valid() {
		return Key{}, false
	}
	return Key{Fingerprint: fingerprint.Fingerprint(base[:i]), Size: s}, true
}
