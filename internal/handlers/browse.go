package handlers

import (
	"net/http"
	"os"

	"github.com/gorilla/mux"

	"filedl/internal/browse"
)

// ListObjects returns the listed, unexpired objects.
func (h *Handlers) ListObjects(w http.ResponseWriter, r *http.Request) {
	objects, err := h.store.List(r.Context(), false)
	if err != nil {
		h.writeStoreError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"objects": objects})
}

// Browse returns the directory listing at {object}/{subpath}.
func (h *Handlers) Browse(w http.ResponseWriter, r *http.Request) {
	objectID, subpath := splitObjectPath(mux.Vars(r)["path"])
	key := r.URL.Query().Get("key")

	obj, err := h.store.Resolve(r.Context(), objectID, key)
	if err != nil {
		h.writeStoreError(w, err)
		return
	}

	root := h.layout.ObjectRoot(obj)
	if _, err := os.Stat(root); err != nil {
		h.writePathError(w, err)
		return
	}

	scanner := browse.NewScanner(root, "/api/thumb/"+obj.ID, h.thumbs)
	listing, err := scanner.GetDirectory(subpath,
		browse.ParseSortField(r.URL.Query().Get("sort")),
		browse.ParseSortOrder(r.URL.Query().Get("order")))
	if err != nil {
		h.writePathError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]any{
		"object":  obj,
		"listing": listing,
	})
}
