package api

import (
	"bytes"
	"net/http"
	"strconv"
)

// File handles GET /api/files/*: the raw image bytes.
func (h *Handler) File(w http.ResponseWriter, r *http.Request) {
	path := imagePath(r)
	abs, err := h.svc.FilePath(path)
	if err != nil {
		writeServiceError(w, "serve file", path, err)
		return
	}
	http.ServeFile(w, r, abs)
}

// Thumbnail handles GET /api/thumbnails/*?w=&h=: a JPEG preview fitted into
// w×h (default 320, capped at 2048).
func (h *Handler) Thumbnail(w http.ResponseWriter, r *http.Request) {
	path := imagePath(r)
	width, _ := strconv.Atoi(r.URL.Query().Get("w"))
	height, _ := strconv.Atoi(r.URL.Query().Get("h"))

	// Render into memory so a decode failure can still produce a JSON error.
	var buf bytes.Buffer
	if err := h.svc.Thumbnail(r.Context(), path, width, height, &buf); err != nil {
		writeServiceError(w, "thumbnail", path, err)
		return
	}
	w.Header().Set("Content-Type", "image/jpeg")
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.Header().Set("Cache-Control", "private, max-age=300")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}
