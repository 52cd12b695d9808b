package browse

import (
	"strings"
	"time"
)

// FileType categorizes a listed entry.
type FileType string

const (
	FileTypeFolder FileType = "folder"
	FileTypeImage  FileType = "image"
	FileTypeFile   FileType = "file"
)

// Item is one entry in a directory listing.
type Item struct {
	Name    string    `json:"name"`
	Path    string    `json:"path"`
	Type    FileType  `json:"type"`
	Size    int64     `json:"size"`
	ModTime time.Time `json:"modTime"`

	// MimeType is set for files only.
	MimeType string `json:"mimeType,omitempty"`

	// ItemCount is set for folders only.
	ItemCount int `json:"itemCount,omitempty"`

	// Fingerprint and ThumbnailURL are set for images only. The URL
	// carries the fingerprint as a cache buster, so a changed source
	// yields a different URL.
	Fingerprint  string `json:"fingerprint,omitempty"`
	ThumbnailURL string `json:"thumbnailUrl,omitempty"`
}

// PathPart is one breadcrumb segment.
type PathPart struct {
	Name string `json:"name"`
	Path string `json:"path"`
}

// Listing is the full response for one directory.
type Listing struct {
	Path       string     `json:"path"`
	Name       string     `json:"name"`
	Parent     string     `json:"parent"`
	Breadcrumb []PathPart `json:"breadcrumb"`
	Items      []Item     `json:"items"`
}

// SortField selects what listings are ordered by.
type SortField string

const (
	SortByName SortField = "name"
	SortByDate SortField = "date"
	SortBySize SortField = "size"
	SortByType SortField = "type"
)

// ParseSortField maps a query value to a SortField, defaulting to name.
func ParseSortField(raw string) SortField {
	switch SortField(strings.ToLower(raw)) {
	case SortByDate:
		return SortByDate
	case SortBySize:
		return SortBySize
	case SortByType:
		return SortByType
	default:
		return SortByName
	}
}

// SortOrder is the listing direction.
type SortOrder string

const (
	SortAsc  SortOrder = "asc"
	SortDesc SortOrder = "desc"
)

// ParseSortOrder maps a query value to a SortOrder, defaulting to ascending.
func ParseSortOrder(raw string) SortOrder {
	if strings.EqualFold(raw, string(SortDesc)) {
		return SortDesc
	}
	return SortAsc
}

// imageExtensions is the set of extensions the thumbnail pipeline can
// decode. Detection at serve time is signature-based; the extension only
// decides whether a listing entry gets a thumbnail URL.
var imageExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".gif":  true,
	".webp": true,
	".bmp":  true,
	".tif":  true,
	".tiff": true,
}

var mimeTypes = map[string]string{
	".jpg": "image/jpeg", ".jpeg": "image/jpeg", ".png": "image/png",
	".gif": "image/gif", ".bmp": "image/bmp", ".webp": "image/webp",
	".tif": "image/tiff", ".tiff": "image/tiff",
	".pdf": "application/pdf", ".txt": "text/plain", ".zip": "application/zip",
	".mp4": "video/mp4", ".mp3": "audio/mpeg",
}

func mimeTypeFor(ext string) string {
	if mime, ok := mimeTypes[ext]; ok {
		return mime
	}
	return "application/octet-stream"
}
