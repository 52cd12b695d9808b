package thumbnail

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"filedl/internal/fingerprint"
	"filedl/internal/logging"
	"filedl/internal/metrics"
	"filedl/internal/workers"
)

// Options configures a Thumbnailer. Zero values get sensible defaults.
type Options struct {
	// CacheRoot is the directory backing the thumbnail cache. Required.
	CacheRoot string

	// MaxCacheBytes is the cache byte budget. Required.
	MaxCacheBytes int64

	// MaxPixels caps the decoded pixel count; DefaultMaxPixels when zero.
	MaxPixels int

	// Workers bounds concurrent generations; one per CPU when zero.
	Workers int

	// FingerprintMode selects the source fingerprinting strategy.
	FingerprintMode fingerprint.Mode
}

// Thumbnailer generates and caches thumbnails. It is safe for concurrent
// use; concurrent requests for the same (source, size) are coalesced into
// a single generation whose result every waiter shares.
type Thumbnailer struct {
	fp        *fingerprint.Fingerprinter
	cache     *DiskCache
	pool      *workers.Pool
	group     singleflight.Group
	maxPixels int

	generations atomic.Int64
}

// New builds a Thumbnailer backed by a disk cache at opts.CacheRoot. An
// unusable cache root is a hard error; a server that silently regenerates
// every thumbnail on every request is worse than one that refuses to
// start.
func New(opts Options) (*Thumbnailer, error) {
	cache, err := NewDiskCache(opts.CacheRoot, opts.MaxCacheBytes)
	if err != nil {
		return nil, err
	}

	maxPixels := opts.MaxPixels
	if maxPixels == 0 {
		maxPixels = DefaultMaxPixels
	}
	poolSize := opts.Workers
	if poolSize <= 0 {
		poolSize = workers.ForCPU(0)
	}

	logging.Info("Thumbnailer ready: %d workers, %d max pixels, cache budget %d bytes",
		poolSize, maxPixels, opts.MaxCacheBytes)

	return &Thumbnailer{
		fp:        fingerprint.New(opts.FingerprintMode),
		cache:     cache,
		pool:      workers.NewPool(poolSize),
		maxPixels: maxPixels,
	}, nil
}

// Fingerprint returns the current fingerprint of the source at path.
func (t *Thumbnailer) Fingerprint(path string) (fingerprint.Fingerprint, error) {
	return t.fp.Get(path)
}

// Invalidate drops any memoized fingerprint for path. Call after a watcher
// reports the file changed.
func (t *Thumbnailer) Invalidate(path string) {
	t.fp.Invalidate(path)
}

// generationResult carries a finished thumbnail through singleflight.
type generationResult struct {
	data        []byte
	fingerprint fingerprint.Fingerprint
}

// GetOrGenerate returns the thumbnail for the source at path at the given
// size, generating and caching it on a miss. The returned string is the
// source fingerprint the bytes correspond to.
//
// ctx bounds this caller's wait only. Once a generation is underway it
// runs to completion even if every waiter gives up, so the finished
// thumbnail lands in the cache for the retry that is usually right behind
// a timed-out request.
func (t *Thumbnailer) GetOrGenerate(ctx context.Context, path string, size Size) ([]byte, string, error) {
	if !size.Valid() {
		return nil, "", fmt.Errorf("%w: %d", ErrInvalidSize, int(size))
	}

	fp, err := t.fp.Get(path)
	if err != nil {
		return nil, "", err
	}
	key := Key{Fingerprint: fp, Size: size}

	if data, ok := t.cache.Get(key); ok {
		metrics.ThumbnailCacheHits.Inc()
		return data, string(fp), nil
	}
	metrics.ThumbnailCacheMisses.Inc()

	ch := t.group.DoChan(key.String(), func() (interface{}, error) {
		// A concurrent flight may have filled the cache between our miss
		// and this flight starting.
		if data, ok := t.cache.Get(key); ok {
			return generationResult{data: data, fingerprint: fp}, nil
		}
		data, err := t.generate(path, size)
		if err != nil {
			return nil, err
		}
		if err := t.cache.Put(key, data); err != nil {
			// Serve the result anyway; the next request regenerates.
			logging.Warn("failed to cache thumbnail %s: %v", key, err)
		}
		return generationResult{data: data, fingerprint: fp}, nil
	})

	select {
	case res := <-ch:
		if res.Shared {
			metrics.ThumbnailDedupWaits.Inc()
		}
		if res.Err != nil {
			return nil, "", res.Err
		}
		gr := res.Val.(generationResult)
		return gr.data, string(gr.fingerprint), nil
	case <-ctx.Done():
		return nil, "", ctx.Err()
	}
}

// generate runs the full pipeline for one thumbnail on a pool worker.
func (t *Thumbnailer) generate(path string, size Size) ([]byte, error) {
	var data []byte
	start := time.Now()

	// Background context: generation is detached from caller lifetimes.
	err := t.pool.Do(context.Background(), func() error {
		t.generations.Add(1)

		img, err := decodeAndOrient(path, t.maxPixels, int(size))
		if err != nil {
			return err
		}
		resized := resizeToFit(img, int(size))
		data, err = encodeJPEG(resized)
		return err
	})

	elapsed := time.Since(start)
	if err != nil {
		metrics.ThumbnailGenerationsTotal.WithLabelValues("error").Inc()
		logging.Debug("thumbnail generation failed for %s@%d after %v: %v", path, size, elapsed, err)
		return nil, err
	}
	metrics.ThumbnailGenerationsTotal.WithLabelValues("success").Inc()
	metrics.ThumbnailGenerationDuration.Observe(elapsed.Seconds())
	logging.Debug("generated thumbnail %s@%d in %v (%d bytes)", path, size, elapsed, len(data))
	return data, nil
}

// Generations reports how many generations have actually run. Intended
// for tests and diagnostics.
func (t *Thumbnailer) Generations() int64 {
	return t.generations.Load()
}

// CacheStats returns a snapshot of the underlying cache.
func (t *Thumbnailer) CacheStats() CacheStats {
	return t.cache.Stats()
}
