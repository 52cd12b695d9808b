package fingerprint

import (
	"encoding/binary"
	"errors"
	"fmt"
	"os"

	"github.com/cespare/xxhash/v2"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/opencontainers/go-digest"

	"filedl/internal/logging"
)

// ErrSourceUnreadable indicates the source file's metadata or content
// could not be read.
var ErrSourceUnreadable = errors.New("source unreadable")

// Fingerprint is an opaque, comparable identity token for a source file.
// Identical source content/metadata yields an identical token within a
// process lifetime; changed content yields a different token with high
// probability.
type Fingerprint string

// String returns the token as a plain string.
func (f Fingerprint) String() string { return string(f) }

// Mode selects how fingerprints are derived.
type Mode int

const (
	// ModeFast derives the token from path, size and modification time.
	// No content I/O; a same-size same-timestamp edit is theoretically
	// missed.
	ModeFast Mode = iota
	// ModeStrong hashes the full file content. Exact, at the cost of
	// reading every byte once per (path, size, mtime) combination.
	ModeStrong
)

// memoKey identifies one observed state of a file. A content edit changes
// size or mtime and therefore misses the memo.
type memoKey struct {
	path    string
	size    int64
	modTime int64
}

const memoSize = 4096

// Fingerprinter computes fingerprints. Strong-mode digests are memoized so
// unchanged files are only hashed once per process.
type Fingerprinter struct {
	mode Mode
	memo *lru.Cache[memoKey, Fingerprint]
}

// New creates a Fingerprinter for the given mode.
func New(mode Mode) *Fingerprinter {
	memo, err := lru.New[memoKey, Fingerprint](memoSize)
	if err != nil {
		// Only reachable with a non-positive size constant.
		panic(err)
	}
	return &Fingerprinter{mode: mode, memo: memo}
}

// Mode returns the configured fingerprinting mode.
func (f *Fingerprinter) Mode() Mode { return f.mode }

// Get returns the fingerprint for the file at path.
func (f *Fingerprinter) Get(path string) (Fingerprint, error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", fmt.Errorf("%w: stat %s: %v", ErrSourceUnreadable, path, err)
	}

	if f.mode == ModeFast {
		return fastFingerprint(path, info), nil
	}

	key := memoKey{path: path, size: info.Size(), modTime: info.ModTime().UnixNano()}
	if fp, ok := f.memo.Get(key); ok {
		return fp, nil
	}

	fp, err := strongFingerprint(path)
	if err != nil {
		return "", err
	}
	f.memo.Add(key, fp)
	return fp, nil
}

// Invalidate drops any memoized digests for path. Called by the filesystem
// watcher when a file changes or disappears.
func (f *Fingerprinter) Invalidate(path string) {
	for _, key := range f.memo.Keys() {
		if key.path == path {
			f.memo.Remove(key)
		}
	}
}

func fastFingerprint(path string, info os.FileInfo) Fingerprint {
	h := xxhash.New()
	_, _ = h.WriteString(path)

	var buf [16]byte
	binary.BigEndian.PutUint64(buf[:8], uint64(info.Size()))
	binary.BigEndian.PutUint64(buf[8:], uint64(info.ModTime().UnixNano()))
	_, _ = h.Write(buf[:])

	return Fingerprint(fmt.Sprintf("%016x", h.Sum64()))
}

func strongFingerprint(path string) (Fingerprint, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("%w: open %s: %v", ErrSourceUnreadable, path, err)
	}
	defer func() {
		if err := file.Close(); err != nil {
			logging.Warn("failed to close %s after hashing: %v", path, err)
		}
	}()

	d, err := digest.Canonical.FromReader(file)
	if err != nil {
		return "", fmt.Errorf("%w: read %s: %v", ErrSourceUnreadable, path, err)
	}
	return Fingerprint(d.Encoded()), nil
}
