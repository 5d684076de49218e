package api

import (
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/starford/photoattr/internal/attrs"
	"github.com/starford/photoattr/internal/attrservice"
	"github.com/starford/photoattr/internal/index"
)

// Handler holds API route handlers.
type Handler struct {
	svc *attrservice.Service
}

// NewHandler creates a new Handler.
func NewHandler(svc *attrservice.Service) *Handler {
	return &Handler{svc: svc}
}

// imagePath extracts the image path from the URL wildcard.
// Supports encoded slashes from OpenAPI clients (e.g. 1985%2Fimg1.jpg).
func imagePath(r *http.Request) string {
	raw := strings.TrimPrefix(chi.URLParam(r, "*"), "/")
	if raw == "" {
		return ""
	}
	decoded, err := url.PathUnescape(raw)
	if err != nil {
		return raw
	}
	return decoded
}

// ListImages handles GET /api/images.
//
//	@Summary		List images with optional pagination and attribute filter
//	@Tags			images
//	@Produce		json
//	@Param			limit		query		int		false	"Page size"
//	@Param			offset		query		int		false	"Page offset"
//	@Param			key			query		string	false	"Attribute to filter on"
//	@Param			value		query		string	false	"Required value of key; empty selects images where key is unset"
//	@Param			unannotated	query		bool	false	"Only images with no attribute set"
//	@Param			sort		query		string	false	"Sort field"	Enums(path, updated_at)
//	@Success		200			{object}	ImageListResponse
//	@Failure		422			{object}	errResponse
//	@Security		BearerAuth
//	@Router			/images [get]
func (h *Handler) ListImages(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	offset, _ := strconv.Atoi(q.Get("offset"))
	unannotated, _ := strconv.ParseBool(q.Get("unannotated"))

	items, total, err := h.svc.ListImages(r.Context(), index.ListQuery{
		Limit:       limit,
		Offset:      max(offset, 0),
		Key:         q.Get("key"),
		Value:       q.Get("value"),
		Unannotated: unannotated,
		Sort:        q.Get("sort"),
	})
	if err != nil {
		writeServiceError(w, "list images", "", err)
		return
	}
	writeJSON(w, http.StatusOK, ImageListResponse{Images: items, Total: total})
}

// GetAttributes handles GET /api/images/*.
//
//	@Summary		Get the attributes of one image
//	@Tags			images
//	@Produce		json
//	@Param			path	path		string	true	"Image path"
//	@Success		200		{object}	AttributesDetail
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/images/{path} [get]
func (h *Handler) GetAttributes(w http.ResponseWriter, r *http.Request) {
	path := imagePath(r)
	if path == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("path is required"))
		return
	}
	d, err := h.svc.GetAttributes(r.Context(), path)
	if err != nil {
		writeServiceError(w, "get attributes", path, err)
		return
	}
	if d.Checksum != "" {
		w.Header().Set("ETag", strconv.Quote(d.Checksum))
	}
	writeJSON(w, http.StatusOK, d)
}

// UpdateAttributes handles PUT /api/images/*.
//
//	@Summary		Merge attribute values into the sidecar of an image
//	@Tags			images
//	@Accept			json
//	@Produce		json
//	@Param			path		path	string					true	"Image path"
//	@Param			If-Match	header	string					false	"Sidecar checksum for optimistic concurrency"
//	@Param			body		body	UpdateAttributesRequest	true	"Attributes to set"
//	@Success		200			{object}	AttributesDetail
//	@Failure		400			{object}	errResponse
//	@Failure		404			{object}	errResponse
//	@Failure		409			{object}	errResponse
//	@Failure		422			{object}	errResponse
//	@Security		BearerAuth
//	@Router			/images/{path} [put]
func (h *Handler) UpdateAttributes(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	path := imagePath(r)
	if path == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("path is required"))
		return
	}

	var req UpdateAttributesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	if len(req.Attributes) == 0 {
		writeJSON(w, http.StatusBadRequest, errorBody("attributes are required"))
		return
	}

	// Strip surrounding quotes if present (standard ETag format).
	ifMatch := strings.Trim(r.Header.Get("If-Match"), `"`)

	d, err := h.svc.UpdateAttributes(r.Context(), path, attrs.Record(req.Attributes), ifMatch)
	if err != nil {
		writeServiceError(w, "update attributes", path, err)
		return
	}
	w.Header().Set("ETag", strconv.Quote(d.Checksum))
	writeJSON(w, http.StatusOK, d)
}

// ClearAttributes handles DELETE /api/images/*.
//
//	@Summary		Delete the sidecar of an image
//	@Tags			images
//	@Produce		json
//	@Param			path		path	string	true	"Image path"
//	@Param			If-Match	header	string	false	"Sidecar checksum for optimistic concurrency"
//	@Success		200			{object}	AttributesDetail
//	@Failure		400			{object}	errResponse
//	@Failure		404			{object}	errResponse
//	@Failure		409			{object}	errResponse
//	@Security		BearerAuth
//	@Router			/images/{path} [delete]
func (h *Handler) ClearAttributes(w http.ResponseWriter, r *http.Request) {
	path := imagePath(r)
	if path == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("path is required"))
		return
	}
	ifMatch := strings.Trim(r.Header.Get("If-Match"), `"`)

	d, err := h.svc.ClearAttributes(r.Context(), path, ifMatch)
	if err != nil {
		writeServiceError(w, "clear attributes", path, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

// Keys handles GET /api/keys.
//
//	@Summary		List the attribute keys in display order
//	@Tags			attributes
//	@Produce		json
//	@Success		200	{object}	KeysResponse
//	@Security		BearerAuth
//	@Router			/keys [get]
func (h *Handler) Keys(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, keysResponse())
}

// Values handles GET /api/values/{key}.
//
//	@Summary		List the distinct stored values of one attribute
//	@Tags			attributes
//	@Produce		json
//	@Param			key	path		string	true	"Attribute key"
//	@Success		200	{object}	ValuesResponse
//	@Failure		422	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/values/{key} [get]
func (h *Handler) Values(w http.ResponseWriter, r *http.Request) {
	key, err := url.PathUnescape(chi.URLParam(r, "key"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid key"))
		return
	}
	vals, err := h.svc.Values(r.Context(), key)
	if err != nil {
		writeServiceError(w, "values", "", err)
		return
	}
	out := ValuesResponse{Key: key, Values: make([]ValueCount, len(vals))}
	for i, v := range vals {
		out.Values[i] = ValueCount{Value: v.Value, Count: v.Count}
	}
	writeJSON(w, http.StatusOK, out)
}

// Search handles GET /api/search.
//
//	@Summary		Full-text search across attribute values
//	@Tags			search
//	@Produce		json
//	@Param			q		query		string	true	"Search query"
//	@Param			limit	query		int		false	"Max results"
//	@Success		200		{object}	SearchResponse
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/search [get]
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	if q == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("query parameter 'q' is required"))
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	results, err := h.svc.Search(r.Context(), q, limit)
	if err != nil {
		writeServiceError(w, "search", "", err)
		return
	}
	out := SearchResponse{Results: make([]SearchResult, len(results))}
	for i, res := range results {
		out.Results[i] = SearchResult{Path: res.Path, Snippet: res.Snippet}
	}
	writeJSON(w, http.StatusOK, out)
}

// Suggest handles GET /api/suggest/*.
//
//	@Summary		Suggest attribute values from EXIF data
//	@Tags			images
//	@Produce		json
//	@Param			path	path		string	true	"Image path"
//	@Success		200		{object}	Suggestion
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/suggest/{path} [get]
func (h *Handler) Suggest(w http.ResponseWriter, r *http.Request) {
	path := imagePath(r)
	sug, err := h.svc.Suggest(r.Context(), path)
	if err != nil {
		writeServiceError(w, "suggest", path, err)
		return
	}
	writeJSON(w, http.StatusOK, sug)
}

// ApplySuggestions handles POST /api/suggest/*.
//
//	@Summary		Write EXIF suggestions into attributes that are still empty
//	@Tags			images
//	@Produce		json
//	@Param			path	path		string	true	"Image path"
//	@Success		200		{object}	AttributesDetail
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/suggest/{path} [post]
func (h *Handler) ApplySuggestions(w http.ResponseWriter, r *http.Request) {
	path := imagePath(r)
	d, err := h.svc.ApplySuggestions(r.Context(), path)
	if err != nil {
		writeServiceError(w, "apply suggestions", path, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

// Stats handles GET /api/stats.
//
//	@Summary		Catalog annotation progress
//	@Tags			images
//	@Produce		json
//	@Success		200	{object}	StatsResponse
//	@Security		BearerAuth
//	@Router			/stats [get]
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	st, err := h.svc.Stats(r.Context())
	if err != nil {
		writeServiceError(w, "stats", "", err)
		return
	}
	writeJSON(w, http.StatusOK, StatsResponse{
		Images:      st.Images,
		WithSidecar: st.WithSidecar,
		Annotated:   st.Annotated,
	})
}
