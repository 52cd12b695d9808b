package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"runtime"
	"strings"

	"github.com/gorilla/mux"

	"filedl/internal/logging"
	"filedl/internal/store"
	"filedl/internal/thumbnail"
)

// Handlers carries the dependencies of every HTTP endpoint.
type Handlers struct {
	store   *store.Store
	layout  store.Layout
	thumbs  *thumbnail.Thumbnailer
	version string
}

// New creates the handler set.
func New(st *store.Store, layout store.Layout, thumbs *thumbnail.Thumbnailer, version string) *Handlers {
	return &Handlers{
		store:   st,
		layout:  layout,
		thumbs:  thumbs,
		version: version,
	}
}

// RegisterRoutes attaches every endpoint to the router.
func (h *Handlers) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/api/objects", h.ListObjects).Methods(http.MethodGet)
	r.HandleFunc("/api/browse/{path:.*}", h.Browse).Methods(http.MethodGet)
	r.HandleFunc("/api/file/{path:.*}", h.Download).Methods(http.MethodGet)
	r.HandleFunc("/api/thumb/{path:.*}", h.Thumbnail).Methods(http.MethodGet)
	r.HandleFunc("/api/archive/{path:.*}", h.Archive).Methods(http.MethodGet)

	r.HandleFunc("/admin/thumbnail-cache-stats", h.CacheStats).Methods(http.MethodGet)

	r.HandleFunc("/health", h.Health).Methods(http.MethodGet)
	r.HandleFunc("/healthz", h.Health).Methods(http.MethodGet)
	r.HandleFunc("/version", h.Version).Methods(http.MethodGet)
}

// splitObjectPath splits a route path into the leading object ID and the
// remaining subpath.
func splitObjectPath(raw string) (objectID, subpath string) {
	raw = strings.Trim(raw, "/")
	if i := strings.IndexByte(raw, '/'); i >= 0 {
		return raw[:i], raw[i+1:]
	}
	return raw, ""
}

func (h *Handlers) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.Error("failed to encode JSON response: %v", err)
	}
}

func (h *Handlers) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}

// writeStoreError maps registry errors onto status codes. Anything
// unexpected is a 500 with the details kept in the server log.
func (h *Handlers) writeStoreError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		h.writeError(w, http.StatusNotFound, "not found")
	case errors.Is(err, store.ErrForbidden):
		h.writeError(w, http.StatusForbidden, "access key required")
	default:
		logging.Error("registry error: %v", err)
		h.writeError(w, http.StatusInternalServerError, "internal error")
	}
}

// writePathError maps filesystem errors from path resolution.
func (h *Handlers) writePathError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, os.ErrNotExist), errors.Is(err, os.ErrPermission):
		h.writeError(w, http.StatusNotFound, "not found")
	case errors.Is(err, os.ErrInvalid):
		h.writeError(w, http.StatusBadRequest, "invalid path")
	default:
		logging.Error("path resolution error: %v", err)
		h.writeError(w, http.StatusInternalServerError, "internal error")
	}
}

// Health reports liveness.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Version reports build information.
func (h *Handlers) Version(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]string{
		"version":   h.version,
		"goVersion": runtime.Version(),
	})
}

// CacheStats exposes the thumbnail cache counters for the admin UI.
func (h *Handlers) CacheStats(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.thumbs.CacheStats())
}
