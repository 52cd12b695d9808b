package handlers

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/gorilla/mux"
	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/zip"

	"filedl/internal/logging"
)

// Download serves one file from an object. ?mode=download forces an
// attachment disposition; inline is the default so browsers render what
// they can.
func (h *Handlers) Download(w http.ResponseWriter, r *http.Request) {
	objectID, subpath := splitObjectPath(mux.Vars(r)["path"])

	full, _, err := h.store.ResolvePath(r.Context(), h.layout, objectID, subpath, r.URL.Query().Get("key"))
	if err != nil {
		h.writeStoreError(w, err)
		return
	}

	info, err := os.Stat(full)
	if err != nil {
		h.writePathError(w, err)
		return
	}
	if info.IsDir() {
		h.writeError(w, http.StatusBadRequest, "path is a directory, use browse or archive")
		return
	}

	if r.URL.Query().Get("mode") == "download" {
		w.Header().Set("Content-Disposition",
			fmt.Sprintf("attachment; filename=%q", filepath.Base(full)))
	}

	// ServeFile handles range requests, content types and modtime caching.
	http.ServeFile(w, r, full)
}

// Archive streams a zip of a directory subtree. The archive is assembled
// on the fly; no temporary file, so downloads start immediately.
func (h *Handlers) Archive(w http.ResponseWriter, r *http.Request) {
	objectID, subpath := splitObjectPath(mux.Vars(r)["path"])

	full, obj, err := h.store.ResolvePath(r.Context(), h.layout, objectID, subpath, r.URL.Query().Get("key"))
	if err != nil {
		h.writeStoreError(w, err)
		return
	}

	info, err := os.Stat(full)
	if err != nil {
		h.writePathError(w, err)
		return
	}
	if !info.IsDir() {
		h.writeError(w, http.StatusBadRequest, "path is a file, use the file endpoint")
		return
	}

	archiveName := obj.Name
	if subpath != "" {
		archiveName = filepath.Base(full)
	}

	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition",
		fmt.Sprintf("attachment; filename=%q", archiveName+".zip"))

	zw := zip.NewWriter(w)
	zw.RegisterCompressor(zip.Deflate, func(out io.Writer) (io.WriteCloser, error) {
		// Fast compression: archive downloads are bandwidth-bound anyway.
		return flate.NewWriter(out, flate.BestSpeed)
	})

	err = filepath.Walk(full, func(path string, fi os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if strings.HasPrefix(fi.Name(), ".") {
			if fi.IsDir() && path != full {
				return filepath.SkipDir
			}
			if !fi.IsDir() {
				return nil
			}
		}
		if fi.IsDir() {
			return nil
		}

		rel, err := filepath.Rel(full, path)
		if err != nil {
			return err
		}

		hdr, err := zip.FileInfoHeader(fi)
		if err != nil {
			return err
		}
		hdr.Name = filepath.ToSlash(rel)
		hdr.Method = zip.Deflate

		dst, err := zw.CreateHeader(hdr)
		if err != nil {
			return err
		}

		src, err := os.Open(path)
		if err != nil {
			return err
		}
		_, err = io.Copy(dst, src)
		if closeErr := src.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
		return err
	})
	if err != nil {
		// Headers are long gone; the truncated stream is all we can signal
		// with.
		logging.Error("archive of %s/%s aborted: %v", objectID, subpath, err)
		return
	}

	if err := zw.Close(); err != nil {
		logging.Error("failed to finalize archive of %s/%s: %v", objectID, subpath, err)
	}
}
