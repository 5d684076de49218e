package sidecar

import (
	"errors"
	"io/fs"
	"log/slog"

	"github.com/starford/photoattr/internal/attrs"
	"github.com/starford/photoattr/internal/storage"
)

// Store reads and writes sidecars through a storage.Provider. Image paths are
// relative to the provider root.
type Store struct {
	fs     storage.Provider
	logger *slog.Logger
}

// NewStore creates a Store. A nil logger falls back to slog.Default().
func NewStore(fs storage.Provider, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{fs: fs, logger: logger}
}

// Provider returns the underlying storage provider.
func (s *Store) Provider() storage.Provider { return s.fs }

// Raw returns the sidecar bytes for image and whether the file exists.
func (s *Store) Raw(image string) ([]byte, bool, error) {
	data, err := s.fs.Read(PathFor(image))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return data, true, nil
}

// Load returns the stored attributes of image. A missing, unreadable, or
// mismatched sidecar yields an empty record.
func (s *Store) Load(image string) attrs.Record {
	data, ok, err := s.Raw(image)
	if err != nil {
		s.logger.Warn("sidecar: read failed",
			slog.String("image", image),
			slog.String("error", err.Error()))
		return attrs.Record{}
	}
	if !ok {
		return attrs.Record{}
	}
	return Decode(data, Stem(image), s.logger)
}

// Save merges update into the sidecar of image and returns the resulting
// record with every known key present.
func (s *Store) Save(image string, update attrs.Record) (attrs.Record, error) {
	existing, ok, err := s.Raw(image)
	if err != nil {
		return nil, err
	}
	if ok && existing == nil {
		existing = []byte{}
	}
	out, err := Merge(existing, Stem(image), update)
	if err != nil {
		return nil, err
	}
	if err := s.fs.Write(PathFor(image), out); err != nil {
		return nil, err
	}
	s.logger.Debug("sidecar: saved",
		slog.String("image", image),
		slog.Int("keys", len(update)),
		slog.Bool("created", !ok))
	return Decode(out, Stem(image), s.logger).Filled(), nil
}

// Ensure creates a blank sidecar for image if none exists. It reports
// whether a file was created.
func (s *Store) Ensure(image string) (bool, error) {
	_, ok, err := s.Raw(image)
	if err != nil || ok {
		return false, err
	}
	if _, err := s.Save(image, nil); err != nil {
		return false, err
	}
	return true, nil
}

// Remove deletes the sidecar of image. It reports whether a file existed.
func (s *Store) Remove(image string) (bool, error) {
	err := s.fs.Delete(PathFor(image))
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	s.logger.Debug("sidecar: removed", slog.String("image", image))
	return true, nil
}
