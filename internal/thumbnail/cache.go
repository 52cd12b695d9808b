package thumbnail

import (
	"container/list"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"filedl/internal/logging"
	"filedl/internal/metrics"
)

// hotEntries is the capacity of the in-memory tier holding recently served
// thumbnail bytes. The disk tier is the single source of truth for the
// byte budget; the hot tier only skips a file read for popular entries.
const hotEntries = 128

// hitRateSmoothing is the exponential decay factor for the served hit
// rate reported by Stats.
const hitRateSmoothing = 0.995

// cacheEntry is the index record for one stored thumbnail.
type cacheEntry struct {
	key        Key
	size       int64
	lastAccess time.Time
}

// CacheStats is a point-in-time snapshot of the cache.
type CacheStats struct {
	Count     int     `json:"count"`
	UsedBytes int64   `json:"usedSize"`
	MaxBytes  int64   `json:"maxSize"`
	HitRate   float64 `json:"hitRate"`
}

// DiskCache is a disk-backed LRU cache of encoded thumbnails keyed by
// (fingerprint, size). Entries are individual files under root named
// "<fingerprint>-<size>.jpg"; the in-memory index carries the LRU ordering
// and byte accounting and is rebuilt from a directory scan at startup.
//
// The index mutex is held only for metadata updates and eviction
// bookkeeping, never across backing-store reads or writes, so independent
// keys make progress in parallel.
type DiskCache struct {
	root     string
	maxBytes int64

	mu         sync.Mutex
	entries    map[Key]*list.Element // values are *cacheEntry
	order      *list.List            // front = most recently used
	totalBytes int64
	hitRate    float64

	hot *lru.Cache[Key, []byte]
}

// NewDiskCache opens (or creates) a cache rooted at root with the given
// byte budget. The root must be writable; anything already present is
// indexed, with recency seeded from file modification times, so the cache
// survives restarts. If the budget shrank since the last run, the excess
// is evicted immediately.
func NewDiskCache(root string, maxBytes int64) (*DiskCache, error) {
	if maxBytes <= 0 {
		return nil, fmt.Errorf("cache byte budget must be positive, got %d", maxBytes)
	}
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("failed to create cache root %s: %w", root, err)
	}
	if err := probeWritable(root); err != nil {
		return nil, fmt.Errorf("cache root %s is not writable: %w", root, err)
	}

	hot, err := lru.New[Key, []byte](hotEntries)
	if err != nil {
		return nil, err
	}

	c := &DiskCache{
		root:     root,
		maxBytes: maxBytes,
		entries:  make(map[Key]*list.Element),
		order:    list.New(),
		hitRate:  0.5,
		hot:      hot,
	}

	if err := c.rebuild(); err != nil {
		return nil, err
	}

	c.mu.Lock()
	evicted := c.evictLocked()
	c.updateGaugesLocked()
	c.mu.Unlock()
	c.removeFiles(evicted)

	return c, nil
}

func probeWritable(root string) error {
	f, err := os.CreateTemp(root, ".probe-*")
	if err != nil {
		return err
	}
	name := f.Name()
	if err := f.Close(); err != nil {
		return err
	}
	return os.Remove(name)
}

// rebuild scans the backing store and reconstructs the index. Files that
// do not look like cache entries are left alone.
func (c *DiskCache) rebuild() error {
	dirEntries, err := os.ReadDir(c.root)
	if err != nil {
		return fmt.Errorf("failed to scan cache root: %w", err)
	}

	var found []cacheEntry
	for _, de := range dirEntries {
		if de.IsDir() {
			continue
		}
		key, ok := parseEntryFilename(de.Name())
		if !ok {
			continue
		}
		info, err := de.Info()
		if err != nil {
			continue
		}
		found = append(found, cacheEntry{key: key, size: info.Size(), lastAccess: info.ModTime()})
	}

	// Oldest first so the list ends up ordered most-recent at the front.
	sort.Slice(found, func(i, j int) bool {
		return found[i].lastAccess.Before(found[j].lastAccess)
	})

	c.mu.Lock()
	defer c.mu.Unlock()
	for i := range found {
		e := found[i]
		c.entries[e.key] = c.order.PushFront(&e)
		c.totalBytes += e.size
	}

	logging.Info("Thumbnail cache: indexed %d entries, %d bytes (budget %d)",
		len(found), c.totalBytes, c.maxBytes)
	return nil
}

// Get returns the cached bytes for key, bumping the entry to most recently
// used. Missing or unreadable backing bytes are treated as a miss and the
// stale index entry is purged; storage trouble is never surfaced as a
// generation failure.
func (c *DiskCache) Get(key Key) ([]byte, bool) {
	c.mu.Lock()
	c.hitRate *= hitRateSmoothing
	elem, ok := c.entries[key]
	if !ok {
		c.mu.Unlock()
		return nil, false
	}
	entry := elem.Value.(*cacheEntry)
	entry.lastAccess = time.Now()
	c.order.MoveToFront(elem)
	c.hitRate += 1 - hitRateSmoothing
	c.mu.Unlock()

	if data, ok := c.hot.Get(key); ok {
		c.touchFile(key)
		return data, true
	}

	path := filepath.Join(c.root, key.filename())
	data, err := os.ReadFile(path)
	if err != nil {
		logging.Warn("Thumbnail cache: backing file for %s unreadable, purging: %v", key, err)
		c.purge(key)
		return nil, false
	}

	c.hot.Add(key, data)
	c.touchFile(key)
	return data, true
}

// Put stores data under key and evicts least-recently-used entries until
// the total is back within budget. Entries larger than the whole budget
// are served but not cached, since no amount of eviction could make them
// fit.
func (c *DiskCache) Put(key Key, data []byte) error {
	size := int64(len(data))
	if size > c.maxBytes {
		logging.Warn("Thumbnail cache: entry %s (%d bytes) exceeds budget, not caching", key, size)
		return nil
	}

	// Write outside the index lock; the entry becomes visible only after
	// the bytes are durably in place.
	if err := c.writeFile(key, data); err != nil {
		return err
	}

	c.mu.Lock()
	if elem, ok := c.entries[key]; ok {
		// Concurrent regeneration of the same key: keep the newer bytes,
		// fix the accounting.
		old := elem.Value.(*cacheEntry)
		c.totalBytes -= old.size
		old.size = size
		old.lastAccess = time.Now()
		c.order.MoveToFront(elem)
	} else {
		c.entries[key] = c.order.PushFront(&cacheEntry{key: key, size: size, lastAccess: time.Now()})
	}
	c.totalBytes += size
	evicted := c.evictLocked()
	c.updateGaugesLocked()
	c.mu.Unlock()

	c.hot.Add(key, data)
	c.removeFiles(evicted)
	return nil
}

// evictLocked removes index entries from the LRU tail until the total is
// within budget, returning the evicted keys. Callers must hold mu and
// delete the backing files after releasing it.
func (c *DiskCache) evictLocked() []Key {
	var evicted []Key
	for c.totalBytes > c.maxBytes {
		back := c.order.Back()
		if back == nil {
			break
		}
		entry := back.Value.(*cacheEntry)
		c.order.Remove(back)
		delete(c.entries, entry.key)
		c.totalBytes -= entry.size
		evicted = append(evicted, entry.key)
	}
	return evicted
}

// purge drops a single key from the index and backing store (self-healing
// after a failed read).
func (c *DiskCache) purge(key Key) {
	c.mu.Lock()
	if elem, ok := c.entries[key]; ok {
		entry := elem.Value.(*cacheEntry)
		c.order.Remove(elem)
		delete(c.entries, key)
		c.totalBytes -= entry.size
	}
	c.updateGaugesLocked()
	c.mu.Unlock()

	c.hot.Remove(key)
	if err := os.Remove(filepath.Join(c.root, key.filename())); err != nil && !os.IsNotExist(err) {
		logging.Warn("Thumbnail cache: failed to remove %s: %v", key, err)
	}
}

func (c *DiskCache) removeFiles(keys []Key) {
	for _, key := range keys {
		c.hot.Remove(key)
		if err := os.Remove(filepath.Join(c.root, key.filename())); err != nil && !os.IsNotExist(err) {
			logging.Warn("Thumbnail cache: failed to remove evicted %s: %v", key, err)
		}
		metrics.ThumbnailCacheEvictions.Inc()
	}
}

// writeFile writes data atomically: temp file in the same directory, then
// rename. A crash mid-write leaves no partial entry behind.
func (c *DiskCache) writeFile(key Key, data []byte) error {
	tmp, err := os.CreateTemp(c.root, "put-*")
	if err != nil {
		return fmt.Errorf("cache write %s: %w", key, err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("cache write %s: %w", key, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("cache write %s: %w", key, err)
	}
	if err := os.Rename(tmpPath, filepath.Join(c.root, key.filename())); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("cache write %s: %w", key, err)
	}
	return nil
}

// touchFile bumps the backing file's mtime so LRU ordering survives a
// restart. Best effort.
func (c *DiskCache) touchFile(key Key) {
	now := time.Now()
	_ = os.Chtimes(filepath.Join(c.root, key.filename()), now, now)
}

func (c *DiskCache) updateGaugesLocked() {
	metrics.ThumbnailCacheSize.Set(float64(c.totalBytes))
	metrics.ThumbnailCacheCount.Set(float64(len(c.entries)))
}

// Stats returns a snapshot of the cache state.
func (c *DiskCache) Stats() CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return CacheStats{
		Count:     len(c.entries),
		UsedBytes: c.totalBytes,
		MaxBytes:  c.maxBytes,
		HitRate:   c.hitRate,
	}
}

// Len returns the number of indexed entries.
func (c *DiskCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
