package store

import (
	"context"
	"path/filepath"
	"strings"
)

// Layout maps registry objects onto the filesystem. Owned objects live in
// a per-object directory under DataDir; linked objects resolve relative to
// LinkedDir.
type Layout struct {
	DataDir   string
	LinkedDir string
}

// ObjectRoot returns the directory holding an object's files.
func (l Layout) ObjectRoot(obj Object) string {
	if obj.Ownership == OwnershipLinked {
		return filepath.Join(l.LinkedDir, obj.LinkedPath)
	}
	return filepath.Join(l.DataDir, obj.ID)
}

// ResolvePath is the serving-path entry point: it resolves an object by
// ID (applying expiry and unlisted-key checks), then maps subpath into the
// object's directory. Subpaths that would escape the object come back
// ErrNotFound, indistinguishable from paths that don't exist.
func (s *Store) ResolvePath(ctx context.Context, layout Layout, objectID, subpath, key string) (string, Object, error) {
	obj, err := s.Resolve(ctx, objectID, key)
	if err != nil {
		return "", Object{}, err
	}

	root := layout.ObjectRoot(obj)

	cleaned := filepath.Clean("/" + filepath.FromSlash(subpath))
	full := filepath.Join(root, cleaned)

	// Join of cleaned-rooted subpath cannot escape, but keep the
	// containment check as a backstop.
	if full != root && !strings.HasPrefix(full, root+string(filepath.Separator)) {
		return "", Object{}, ErrNotFound
	}
	return full, obj, nil
}
