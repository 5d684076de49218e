// Package attrservice coordinates the catalog, sidecar files, and the index
// behind the HTTP, MCP, and command-line front-ends.
package attrservice

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/starford/photoattr/internal/apperr"
	"github.com/starford/photoattr/internal/attrs"
	"github.com/starford/photoattr/internal/checksum"
	"github.com/starford/photoattr/internal/exifmeta"
	"github.com/starford/photoattr/internal/index"
	"github.com/starford/photoattr/internal/models"
	"github.com/starford/photoattr/internal/sidecar"
	"github.com/starford/photoattr/internal/thumb"
)

// Detail is the full attribute view of one image.
type Detail struct {
	Image      string       `json:"image"`
	Sidecar    string       `json:"sidecar"`
	Exists     bool         `json:"exists"`
	Checksum   string       `json:"checksum"`
	Attributes attrs.Record `json:"attributes"`
	Rows       []attrs.Row  `json:"rows"`
	Extras     []string     `json:"extras"`
}

// ListItem is a lightweight item in a list response.
type ListItem struct {
	Path       string       `json:"path"`
	Checksum   string       `json:"checksum"`
	Annotated  bool         `json:"annotated"`
	Attributes attrs.Record `json:"attributes"`
	UpdatedAt  time.Time    `json:"updated_at"`
}

// Suggestion holds EXIF-derived values for an image.
type Suggestion struct {
	Image string `json:"image"`
	// Suggested is everything EXIF provided.
	Suggested attrs.Record `json:"suggested"`
	// Applicable is the subset whose attribute is still empty.
	Applicable attrs.Record `json:"applicable"`
}

// Service coordinates sidecar and index operations. Writes are serialised.
type Service struct {
	store  *sidecar.Store
	db     index.ImageIndex
	logger *slog.Logger
	mu     sync.Mutex
}

// NewService creates a new attribute service.
func NewService(store *sidecar.Store, db index.ImageIndex, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: store, db: db, logger: logger}
}

// Root returns the absolute catalog root.
func (s *Service) Root() string { return s.store.Provider().Root() }

// Images scans the catalog below dir.
func (s *Service) Images(_ context.Context, dir string) ([]models.ImageFile, error) {
	return s.store.Provider().Images(dir)
}

// GetAttributes reads the sidecar of image. A missing or unusable sidecar
// yields an empty record with every key present.
func (s *Service) GetAttributes(_ context.Context, image string) (*Detail, error) {
	if err := s.checkImage(image); err != nil {
		return nil, err
	}
	return s.detail(image)
}

// UpdateAttributes merges update into the sidecar of image. When ifMatch is
// non-empty it must equal the current sidecar checksum.
func (s *Service) UpdateAttributes(_ context.Context, image string, update attrs.Record, ifMatch string) (*Detail, error) {
	if err := validateUpdate(update); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkImage(image); err != nil {
		return nil, err
	}
	raw, exists, err := s.store.Raw(image)
	if err != nil {
		return nil, err
	}
	if ifMatch != "" && ifMatch != checksum.OfSidecar(raw, exists) {
		return nil, apperr.ErrConflict
	}
	if _, err := s.store.Save(image, update); err != nil {
		if errors.Is(err, sidecar.ErrMalformed) {
			return nil, fmt.Errorf("%w: %w", apperr.ErrInvalid, err)
		}
		return nil, err
	}
	if err := s.IndexImage(image); err != nil {
		return nil, err
	}
	s.logger.Info("attributes updated",
		slog.String("image", image),
		slog.Int("keys", len(update)))
	return s.detail(image)
}

// ClearAttributes deletes the sidecar of image, returning it to the
// unannotated state. When ifMatch is non-empty it must equal the current
// sidecar checksum. Clearing an image without a sidecar is a no-op.
func (s *Service) ClearAttributes(_ context.Context, image string, ifMatch string) (*Detail, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkImage(image); err != nil {
		return nil, err
	}
	raw, exists, err := s.store.Raw(image)
	if err != nil {
		return nil, err
	}
	if ifMatch != "" && ifMatch != checksum.OfSidecar(raw, exists) {
		return nil, apperr.ErrConflict
	}
	removed, err := s.store.Remove(image)
	if err != nil {
		return nil, err
	}
	if err := s.IndexImage(image); err != nil {
		return nil, err
	}
	if removed {
		s.logger.Info("attributes cleared", slog.String("image", image))
	}
	return s.detail(image)
}

// EnsureSidecar creates a blank sidecar for image if none exists.
func (s *Service) EnsureSidecar(_ context.Context, image string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkImage(image); err != nil {
		return false, err
	}
	created, err := s.store.Ensure(image)
	if err != nil || !created {
		return created, err
	}
	return true, s.IndexImage(image)
}

// ImportImage stores data as a new catalog image at path and indexes it.
// Existing files are never overwritten.
func (s *Service) ImportImage(_ context.Context, path string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	fsys := s.store.Provider()
	if !fsys.IsImage(path) {
		return fmt.Errorf("%w: %s", apperr.ErrNotImage, path)
	}
	if _, err := fsys.Stat(path); err == nil {
		return fmt.Errorf("%w: %s", apperr.ErrAlreadyExists, path)
	} else if !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	if err := fsys.Write(path, data); err != nil {
		return err
	}
	s.logger.Info("image imported", slog.String("image", path), slog.Int("bytes", len(data)))
	return s.IndexImage(path)
}

// ListImages returns a page of indexed images.
func (s *Service) ListImages(_ context.Context, q index.ListQuery) ([]ListItem, int, error) {
	if q.Key != "" && !attrs.IsKnown(q.Key) {
		return nil, 0, fmt.Errorf("%w: unknown attribute %q", apperr.ErrInvalid, q.Key)
	}
	if q.Sort != "" && q.Sort != index.SortPath && q.Sort != index.SortUpdated {
		return nil, 0, fmt.Errorf("%w: unknown sort %q", apperr.ErrInvalid, q.Sort)
	}
	rows, total, err := s.db.ListImages(q)
	if err != nil {
		return nil, 0, err
	}
	items := make([]ListItem, len(rows))
	for i, r := range rows {
		items[i] = ListItem{
			Path:       r.Path,
			Checksum:   r.Checksum,
			Annotated:  r.Annotated(),
			Attributes: r.Attributes,
			UpdatedAt:  r.UpdatedAt,
		}
	}
	return items, total, nil
}

// Search delegates full-text search to the index.
func (s *Service) Search(_ context.Context, query string, limit int) ([]index.SearchResult, error) {
	return s.db.Search(query, limit)
}

// Values lists the distinct stored values of key.
func (s *Service) Values(_ context.Context, key string) ([]index.ValueCount, error) {
	if !attrs.IsKnown(key) || key == attrs.ImageKey {
		return nil, fmt.Errorf("%w: unknown attribute %q", apperr.ErrInvalid, key)
	}
	return s.db.Values(key)
}

// Stats summarises the index.
func (s *Service) Stats(_ context.Context) (index.Stats, error) {
	return s.db.Stats()
}

// Suggest reads EXIF from image and proposes attribute values.
func (s *Service) Suggest(ctx context.Context, image string) (*Suggestion, error) {
	abs, err := s.FilePath(image)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(abs)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	suggested, err := exifmeta.Suggest(f)
	if err != nil {
		return nil, err
	}
	current, err := s.GetAttributes(ctx, image)
	if err != nil {
		return nil, err
	}
	return &Suggestion{
		Image:      image,
		Suggested:  suggested,
		Applicable: exifmeta.OnlyEmpty(suggested, current.Attributes),
	}, nil
}

// ApplySuggestions writes the applicable EXIF suggestions for image.
func (s *Service) ApplySuggestions(ctx context.Context, image string) (*Detail, error) {
	sug, err := s.Suggest(ctx, image)
	if err != nil {
		return nil, err
	}
	if len(sug.Applicable) == 0 {
		return s.GetAttributes(ctx, image)
	}
	return s.UpdateAttributes(ctx, image, sug.Applicable, "")
}

// Thumbnail renders a JPEG preview of image into w.
func (s *Service) Thumbnail(_ context.Context, image string, width, height int, w io.Writer) error {
	abs, err := s.FilePath(image)
	if err != nil {
		return err
	}
	return thumb.Render(w, abs, width, height)
}

// FilePath resolves image to its absolute path after checking it exists.
func (s *Service) FilePath(image string) (string, error) {
	if err := s.checkImage(image); err != nil {
		return "", err
	}
	return s.store.Provider().Abs(image)
}

// IndexImage re-reads the sidecar of image into the index.
// Exported so that the watcher callback and CLI can reuse it.
func (s *Service) IndexImage(image string) error {
	return index.IndexImage(s.db, s.store, image, s.logger)
}

// Sync reconciles the index with the catalog.
func (s *Service) Sync(_ context.Context) error {
	return index.Sync(s.db, s.store, s.logger)
}

func (s *Service) checkImage(image string) error {
	fsys := s.store.Provider()
	if !fsys.IsImage(image) {
		return fmt.Errorf("%w: %s", apperr.ErrNotImage, image)
	}
	info, err := fsys.Stat(image)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return apperr.ErrNotFound
		}
		return err
	}
	if info.IsDir() {
		return fmt.Errorf("%w: %s is a directory", apperr.ErrNotImage, image)
	}
	return nil
}

func (s *Service) detail(image string) (*Detail, error) {
	raw, exists, err := s.store.Raw(image)
	if err != nil {
		return nil, err
	}
	rec := sidecar.Decode(raw, sidecar.Stem(image), s.logger)
	extras := rec.Extras()
	if extras == nil {
		extras = []string{}
	}
	filled := rec.Filled()
	return &Detail{
		Image:      image,
		Sidecar:    sidecar.PathFor(image),
		Exists:     exists,
		Checksum:   checksum.OfSidecar(raw, exists),
		Attributes: filled,
		Rows:       filled.Rows(),
		Extras:     extras,
	}, nil
}

func validateUpdate(update attrs.Record) error {
	if len(update) == 0 {
		return fmt.Errorf("%w: empty update", apperr.ErrInvalid)
	}
	for k := range update {
		if k == attrs.ImageKey {
			return fmt.Errorf("%w: %q is derived from the file name", apperr.ErrInvalid, k)
		}
		if !attrs.IsKnown(k) {
			return fmt.Errorf("%w: unknown attribute %q", apperr.ErrInvalid, k)
		}
	}
	return nil
}
