package browse

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"

	"filedl/internal/logging"
	"filedl/internal/metrics"
)

// Watch monitors the root for filesystem changes until ctx is done. New
// directories are added to the watch set as they appear; writes, removes
// and renames of files are reported through onChange so stale fingerprint
// memos can be dropped.
func (s *Scanner) Watch(ctx context.Context, onChange func(path string)) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		logging.Error("Failed to create file watcher: %v", err)
		metrics.ScannerWatcherErrors.Inc()
		return
	}
	defer func() {
		if err := watcher.Close(); err != nil {
			logging.Error("failed to close file watcher: %v", err)
		}
	}()

	watchCount := s.addDirectoriesToWatcher(watcher)
	logging.Debug("Watcher started, watching %d directories", watchCount)
	metrics.ScannerWatchedDirectories.Set(float64(watchCount))

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			s.handleWatcherEvent(watcher, event, onChange)

		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			logging.Error("Watcher error: %v", err)
			metrics.ScannerWatcherErrors.Inc()
		}
	}
}

func (s *Scanner) addDirectoriesToWatcher(watcher *fsnotify.Watcher) int {
	watchCount := 0
	err := filepath.Walk(s.root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() && !strings.HasPrefix(info.Name(), ".") {
			if addErr := watcher.Add(path); addErr != nil {
				logging.Warn("failed to add path to watcher %s: %v", path, addErr)
				metrics.ScannerWatcherErrors.Inc()
			} else {
				watchCount++
			}
		}
		return nil
	})
	if err != nil {
		logging.Error("failed to walk root for watcher: %v", err)
		metrics.ScannerWatcherErrors.Inc()
	}
	return watchCount
}

func (s *Scanner) handleWatcherEvent(watcher *fsnotify.Watcher, event fsnotify.Event, onChange func(path string)) {
	// Skip hidden files.
	if strings.Contains(event.Name, string(filepath.Separator)+".") {
		return
	}

	metrics.ScannerWatcherEventsTotal.WithLabelValues(eventType(event.Op)).Inc()

	if event.Op&fsnotify.Create != 0 {
		s.handleCreateEvent(watcher, event)
	}

	// A changed or vanished file must not be served under its old
	// fingerprint.
	if onChange != nil && event.Op&(fsnotify.Write|fsnotify.Remove|fsnotify.Rename) != 0 {
		onChange(event.Name)
	}
}

func eventType(op fsnotify.Op) string {
	switch {
	case op&fsnotify.Create != 0:
		return "create"
	case op&fsnotify.Write != 0:
		return "write"
	case op&fsnotify.Remove != 0:
		return "remove"
	case op&fsnotify.Rename != 0:
		return "rename"
	case op&fsnotify.Chmod != 0:
		return "chmod"
	default:
		return "unknown"
	}
}

func (s *Scanner) handleCreateEvent(watcher *fsnotify.Watcher, event fsnotify.Event) {
	info, err := os.Stat(event.Name)
	if err != nil {
		return
	}
	if info.IsDir() {
		if addErr := watcher.Add(event.Name); addErr != nil {
			logging.Warn("failed to add new directory to watcher %s: %v", event.Name, addErr)
			metrics.ScannerWatcherErrors.Inc()
		} else {
			logging.Debug("Added new directory to watcher: %s", event.Name)
			metrics.ScannerWatchedDirectories.Inc()
		}
	}
}
