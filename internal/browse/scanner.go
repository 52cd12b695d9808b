package browse

import (
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"filedl/internal/fingerprint"
	"filedl/internal/logging"
	"filedl/internal/metrics"
)

// Fingerprinter resolves a source file to its current fingerprint.
// Implemented by the thumbnail subsystem.
type Fingerprinter interface {
	Fingerprint(path string) (fingerprint.Fingerprint, error)
}

// Scanner lists directories under a single root. Listings are built fresh
// from the filesystem on every call; nothing about directory contents is
// cached, so a listing is never stale.
type Scanner struct {
	root    string
	urlBase string
	fp      Fingerprinter

	mu  sync.Mutex
	col *collate.Collator
}

// NewScanner creates a Scanner over root. urlBase prefixes the thumbnail
// URLs of image items (for example "/api/thumb/<objectID>"). fp may be
// nil, in which case items carry no fingerprints or thumbnail URLs.
func NewScanner(root, urlBase string, fp Fingerprinter) *Scanner {
	return &Scanner{
		root:    root,
		urlBase: strings.TrimSuffix(urlBase, "/"),
		fp:      fp,
		// Numeric so "img2" sorts before "img10", case-insensitive to
		// match how browsers list files.
		col: collate.New(language.Und, collate.Numeric, collate.IgnoreCase),
	}
}

// Root returns the directory the scanner lists.
func (s *Scanner) Root() string {
	return s.root
}

// GetDirectory returns the listing for one directory below the root.
func (s *Scanner) GetDirectory(relativePath string, field SortField, order SortOrder) (*Listing, error) {
	start := time.Now()
	var err error
	defer func() {
		status := "success"
		if err != nil {
			status = "error"
		}
		metrics.ScannerOperationsTotal.WithLabelValues("get_directory", status).Inc()
		metrics.ScannerOperationDuration.WithLabelValues("get_directory").Observe(time.Since(start).Seconds())
	}()

	relativePath = normalizePath(relativePath)

	fullPath, err := s.validatePath(relativePath)
	if err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(fullPath)
	if err != nil {
		return nil, err
	}

	items := s.processEntries(entries, relativePath, fullPath)
	s.sortItems(items, field, order)
	listing := buildListing(relativePath, items)

	metrics.ScannerItemsReturned.WithLabelValues("get_directory").Observe(float64(len(items)))
	return listing, nil
}

// ResolveFile validates a relative file path and returns its absolute
// location under the root. Directories and paths escaping the root are
// rejected.
func (s *Scanner) ResolveFile(relativePath string) (string, error) {
	relativePath = normalizePath(relativePath)

	fullPath := filepath.Join(s.root, relativePath)
	absPath, err := filepath.Abs(fullPath)
	if err != nil {
		return "", err
	}
	absRoot, err := filepath.Abs(s.root)
	if err != nil {
		return "", err
	}
	if absPath != absRoot && !strings.HasPrefix(absPath, absRoot+string(filepath.Separator)) {
		return "", os.ErrPermission
	}

	info, err := os.Stat(absPath)
	if err != nil {
		return "", err
	}
	if info.IsDir() {
		return "", os.ErrInvalid
	}
	return absPath, nil
}

func normalizePath(relativePath string) string {
	relativePath = filepath.Clean(relativePath)
	if relativePath == "." {
		relativePath = ""
	}
	return relativePath
}

// validatePath ensures the path names a directory inside the root.
func (s *Scanner) validatePath(relativePath string) (string, error) {
	fullPath := filepath.Join(s.root, relativePath)

	absPath, err := filepath.Abs(fullPath)
	if err != nil {
		return "", err
	}
	absRoot, err := filepath.Abs(s.root)
	if err != nil {
		return "", err
	}
	if absPath != absRoot && !strings.HasPrefix(absPath, absRoot+string(filepath.Separator)) {
		return "", os.ErrPermission
	}

	info, err := os.Stat(absPath)
	if err != nil {
		return "", err
	}
	if !info.IsDir() {
		return "", os.ErrInvalid
	}
	return absPath, nil
}

func (s *Scanner) processEntries(entries []os.DirEntry, relativePath, fullPath string) []Item {
	var items []Item

	for _, entry := range entries {
		if strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		item, ok := s.entryToItem(entry, relativePath, fullPath)
		if !ok {
			continue
		}
		items = append(items, item)
	}

	return items
}

func (s *Scanner) entryToItem(entry os.DirEntry, relativePath, fullPath string) (Item, bool) {
	info, err := entry.Info()
	if err != nil {
		return Item{}, false
	}

	entryPath := entry.Name()
	if relativePath != "" {
		entryPath = filepath.Join(relativePath, entry.Name())
	}

	if entry.IsDir() {
		return Item{
			Name:      entry.Name(),
			Path:      entryPath,
			Type:      FileTypeFolder,
			ModTime:   info.ModTime(),
			ItemCount: countDirItems(filepath.Join(fullPath, entry.Name())),
		}, true
	}

	ext := strings.ToLower(filepath.Ext(entry.Name()))
	item := Item{
		Name:     entry.Name(),
		Path:     entryPath,
		Type:     FileTypeFile,
		Size:     info.Size(),
		ModTime:  info.ModTime(),
		MimeType: mimeTypeFor(ext),
	}

	if imageExtensions[ext] {
		item.Type = FileTypeImage
		if s.fp != nil {
			fp, err := s.fp.Fingerprint(filepath.Join(fullPath, entry.Name()))
			if err != nil {
				logging.Debug("fingerprint for %s failed: %v", entryPath, err)
			} else {
				item.Fingerprint = string(fp)
				item.ThumbnailURL = s.thumbnailURL(entryPath, string(fp))
			}
		}
	}

	return item, true
}

// thumbnailURL builds the versioned thumbnail URL for a file. The
// fingerprint rides along as a cache buster: a changed source gets a new
// URL, so clients may cache the old one forever.
func (s *Scanner) thumbnailURL(entryPath, fp string) string {
	u := url.URL{Path: s.urlBase + "/" + filepath.ToSlash(entryPath)}
	q := url.Values{}
	q.Set("v", fp)
	u.RawQuery = q.Encode()
	return u.String()
}

func countDirItems(path string) int {
	entries, err := os.ReadDir(path)
	if err != nil {
		return 0
	}
	count := 0
	for _, entry := range entries {
		if !strings.HasPrefix(entry.Name(), ".") {
			count++
		}
	}
	return count
}

func buildListing(relativePath string, items []Item) *Listing {
	var parent string
	if relativePath != "" {
		parent = filepath.Dir(relativePath)
		if parent == "." {
			parent = ""
		}
	}

	dirName := filepath.Base(relativePath)
	if relativePath == "" {
		dirName = "Files"
	}

	return &Listing{
		Path:       relativePath,
		Name:       dirName,
		Parent:     parent,
		Breadcrumb: buildBreadcrumb(relativePath),
		Items:      items,
	}
}

func buildBreadcrumb(relativePath string) []PathPart {
	breadcrumb := []PathPart{{Name: "Files", Path: ""}}
	if relativePath == "" {
		return breadcrumb
	}

	currentPath := ""
	for _, part := range strings.Split(relativePath, string(filepath.Separator)) {
		if part == "" {
			continue
		}
		if currentPath == "" {
			currentPath = part
		} else {
			currentPath = filepath.Join(currentPath, part)
		}
		breadcrumb = append(breadcrumb, PathPart{Name: part, Path: currentPath})
	}
	return breadcrumb
}

func (s *Scanner) sortItems(items []Item, field SortField, order SortOrder) {
	// The collator is stateful during comparison.
	s.mu.Lock()
	defer s.mu.Unlock()

	sort.SliceStable(items, func(i, j int) bool {
		// Folders always come first.
		if items[i].Type == FileTypeFolder && items[j].Type != FileTypeFolder {
			return true
		}
		if items[i].Type != FileTypeFolder && items[j].Type == FileTypeFolder {
			return false
		}

		var less bool
		switch field {
		case SortByDate:
			less = items[i].ModTime.Before(items[j].ModTime)
		case SortBySize:
			less = items[i].Size < items[j].Size
		case SortByType:
			if items[i].Type == items[j].Type {
				less = s.col.CompareString(items[i].Name, items[j].Name) < 0
			} else {
				less = items[i].Type < items[j].Type
			}
		default:
			less = s.col.CompareString(items[i].Name, items[j].Name) < 0
		}

		if order == SortDesc {
			return !less
		}
		return less
	})
}
