// Package storage defines the catalog file-system abstraction.
package storage

import (
	"io/fs"

	"github.com/starford/photoattr/internal/models"
)

// Provider is the interface for catalog file operations. All paths are
// relative to the catalog root.
type Provider interface {
	// Images returns every image file under dir in natural order.
	Images(dir string) ([]models.ImageFile, error)
	// Read returns the raw bytes of the file at path.
	Read(path string) ([]byte, error)
	// Write atomically writes content to path.
	Write(path string, content []byte) error
	// Delete removes the file at path.
	Delete(path string) error
	// Stat returns file info for path.
	Stat(path string) (fs.FileInfo, error)
	// Abs resolves path to an absolute path inside the root.
	Abs(path string) (string, error)
	// Rel converts an absolute path inside the root to a relative one.
	Rel(abs string) (string, error)
	// IsImage reports whether path is a catalog image.
	IsImage(path string) bool
	// Root returns the absolute catalog root.
	Root() string
}
