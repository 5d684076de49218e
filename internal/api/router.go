package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/starford/photoattr/internal/attrservice"
)

// NewRouter creates a chi router with all API routes mounted.
// authEnabled controls whether Bearer token auth is enforced.
// sseHandler, if non-nil, is mounted at GET /events inside the auth group.
func NewRouter(svc *attrservice.Service, authEnabled bool, token string, sseHandler http.Handler) chi.Router {
	h := NewHandler(svc)

	r := chi.NewRouter()
	r.Use(AuthMiddleware(authEnabled, token))

	// Images and their attributes.
	r.Get("/images", h.ListImages)
	r.Get("/images/*", h.GetAttributes)
	r.Put("/images/*", h.UpdateAttributes)
	r.Delete("/images/*", h.ClearAttributes)

	// Vocabulary and completion.
	r.Get("/keys", h.Keys)
	r.Get("/values/{key}", h.Values)

	r.Get("/search", h.Search)
	r.Get("/stats", h.Stats)

	// EXIF suggestions.
	r.Get("/suggest/*", h.Suggest)
	r.Post("/suggest/*", h.ApplySuggestions)

	// Image bytes.
	r.Get("/files/*", h.File)
	r.Get("/thumbnails/*", h.Thumbnail)

	if sseHandler != nil {
		r.Get("/events", sseHandler.ServeHTTP)
	}

	return r
}
