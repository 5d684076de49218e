package api

import (
	"github.com/starford/photoattr/internal/attrs"
	"github.com/starford/photoattr/internal/attrservice"
)

// UpdateAttributesRequest is the request body for a partial attribute update.
type UpdateAttributesRequest struct {
	Attributes map[string]string `json:"attributes" example:"year:1985" validate:"required"`
}

// AttributesDetail is the full attribute response type (aliased from the domain layer).
type AttributesDetail = attrservice.Detail

// ImageListItem is a lightweight item in a list response (aliased from the domain layer).
type ImageListItem = attrservice.ListItem

// Suggestion is the EXIF suggestion response (aliased from the domain layer).
type Suggestion = attrservice.Suggestion

// ImageListResponse wraps paginated image listings.
type ImageListResponse struct {
	Images []ImageListItem `json:"images" validate:"required"`
	Total  int             `json:"total" example:"42" validate:"required"`
}

// KeysResponse lists the attribute vocabulary in display order.
type KeysResponse struct {
	Keys []string `json:"keys" validate:"required"`
}

// ValueCount is one distinct stored value.
type ValueCount struct {
	Value string `json:"value" example:"northeast" validate:"required"`
	Count int    `json:"count" example:"12" validate:"required"`
}

// ValuesResponse wraps the distinct values of one attribute.
type ValuesResponse struct {
	Key    string       `json:"key" example:"region" validate:"required"`
	Values []ValueCount `json:"values" validate:"required"`
}

// SearchResult is a single search hit in the API response.
type SearchResult struct {
	Path    string `json:"path" example:"1985/img1.jpg" validate:"required"`
	Snippet string `json:"snippet" example:"...matched text..." validate:"required"`
}

// SearchResponse wraps search results.
type SearchResponse struct {
	Results []SearchResult `json:"results" validate:"required"`
}

// StatsResponse summarises the catalog.
type StatsResponse struct {
	Images      int `json:"images" example:"120"`
	WithSidecar int `json:"with_sidecar" example:"80"`
	Annotated   int `json:"annotated" example:"64"`
}

func keysResponse() KeysResponse {
	return KeysResponse{Keys: append([]string(nil), attrs.Keys...)}
}
