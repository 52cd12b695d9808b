package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"

	"filedl/internal/fingerprint"
	"filedl/internal/logging"
	"filedl/internal/thumbnail"
)

// placeholderSVG is served when a thumbnail cannot be generated: a neutral
// broken-image glyph on the standard background color.
const placeholderSVG = `<svg xmlns="http://www.w3.org/2000/svg" viewBox="0 0 128 128">` +
	`<rect width="128" height="128" fill="#dae1e4"/>` +
	`<path d="M40 44h48a4 4 0 0 1 4 4v32a4 4 0 0 1-4 4H40a4 4 0 0 1-4-4V48a4 4 0 0 1 4-4z" fill="none" stroke="#8a959c" stroke-width="4"/>` +
	`<circle cx="52" cy="58" r="5" fill="#8a959c"/>` +
	`<path d="M40 78l14-14 10 10 12-12 16 16" fill="none" stroke="#8a959c" stroke-width="4"/>` +
	`</svg>`

// Thumbnail serves the thumbnail for {object}/{subpath}. The response
// carries the source fingerprint as a strong ETag; requests arriving with
// a ?v= cache buster are marked immutable, anything else must revalidate.
// A source that cannot be thumbnailed gets a placeholder image rather than
// an error, so one bad file never breaks a gallery page.
func (h *Handlers) Thumbnail(w http.ResponseWriter, r *http.Request) {
	objectID, subpath := splitObjectPath(mux.Vars(r)["path"])

	size, err := thumbnail.ParseSize(r.URL.Query().Get("size"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "size must be one of 64, 128, 256")
		return
	}

	full, _, err := h.store.ResolvePath(r.Context(), h.layout, objectID, subpath, r.URL.Query().Get("key"))
	if err != nil {
		h.writeStoreError(w, err)
		return
	}

	data, fp, err := h.thumbs.GetOrGenerate(r.Context(), full, size)
	if err != nil {
		switch {
		case errors.Is(err, fingerprint.ErrSourceUnreadable):
			h.writeError(w, http.StatusNotFound, "not found")
		case errors.Is(err, r.Context().Err()):
			// Client went away; nothing sensible left to write.
		default:
			logging.Debug("thumbnail for %s failed, serving placeholder: %v", full, err)
			servePlaceholder(w)
		}
		return
	}

	etag := `"` + fp + `"`
	w.Header().Set("ETag", etag)
	if hasCacheBuster(r) {
		// The URL changes whenever the source does, so this response can
		// be cached forever.
		w.Header().Set("Cache-Control", "max-age=31536000, immutable")
	} else {
		w.Header().Set("Cache-Control", "no-cache")
	}

	if ifNoneMatchHas(r.Header.Get("If-None-Match"), etag) {
		w.WriteHeader(http.StatusNotModified)
		return
	}

	w.Header().Set("Content-Type", thumbnail.MIMEJPEG)
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	if _, err := w.Write(data); err != nil {
		logging.Debug("failed to write thumbnail response: %v", err)
	}
}

func hasCacheBuster(r *http.Request) bool {
	return r.URL.Query().Get("v") != ""
}

// ifNoneMatchHas reports whether the If-None-Match header matches the
// given strong ETag, including the * wildcard.
func ifNoneMatchHas(header, etag string) bool {
	if header == "" {
		return false
	}
	if header == "*" {
		return true
	}
	for _, candidate := range strings.Split(header, ",") {
		candidate = strings.TrimSpace(candidate)
		candidate = strings.TrimPrefix(candidate, "W/")
		if candidate == etag {
			return true
		}
	}
	return false
}

func servePlaceholder(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "image/svg+xml")
	// Not cacheable: the source may be fixed or replaced at any moment.
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(placeholderSVG))
}
