// Package models defines the domain types shared across photoattr packages.
package models

import "time"

// ImageFile is a lightweight representation of an image returned by list
// operations. Path is relative to the catalog root.
type ImageFile struct {
	Path      string    `json:"path"`
	Size      int64     `json:"size"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Event kinds reported by the watcher and broadcast to clients.
const (
	EventCreated = "created"
	EventUpdated = "updated"
	EventDeleted = "deleted"
)
