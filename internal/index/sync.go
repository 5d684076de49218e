package index

import (
	"log/slog"
	"time"

	"github.com/starford/photoattr/internal/checksum"
	"github.com/starford/photoattr/internal/sidecar"
)

// Sync walks the catalog and brings the index up to date:
//   - new images and images whose sidecar changed are re-read and upserted
//   - images removed from disk are deleted from the index
func Sync(db ImageIndex, sidecars *sidecar.Store, logger *slog.Logger) error {
	images, err := sidecars.Provider().Images("")
	if err != nil {
		return err
	}

	checksums, err := db.AllChecksums()
	if err != nil {
		return err
	}

	disk := make(map[string]struct{}, len(images))
	for _, img := range images {
		disk[img.Path] = struct{}{}

		data, ok, err := sidecars.Raw(img.Path)
		if err != nil {
			logger.Warn("sync: read failed", slog.String("path", img.Path), slog.String("error", err.Error()))
			continue
		}
		if cs, indexed := checksums[img.Path]; indexed && cs == checksum.OfSidecar(data, ok) {
			continue
		}
		if err := indexRaw(db, img.Path, data, ok, logger); err != nil {
			logger.Warn("sync: index failed", slog.String("path", img.Path), slog.String("error", err.Error()))
		} else {
			logger.Debug("sync: indexed", slog.String("path", img.Path))
		}
	}

	// Remove stale entries.
	for p := range checksums {
		if _, ok := disk[p]; !ok {
			if err := db.DeleteImage(p); err != nil {
				logger.Warn("sync: delete failed", slog.String("path", p), slog.String("error", err.Error()))
			} else {
				logger.Debug("sync: removed stale", slog.String("path", p))
			}
		}
	}

	return nil
}

// IndexImage reads the sidecar of image and upserts it into the DB. An
// indexed row whose checksum still matches the sidecar is left alone.
func IndexImage(db ImageIndex, sidecars *sidecar.Store, image string, logger *slog.Logger) error {
	data, ok, err := sidecars.Raw(image)
	if err != nil {
		return err
	}
	if row, err := db.GetImage(image); err == nil && row.Checksum == checksum.OfSidecar(data, ok) {
		return nil
	}
	return indexRaw(db, image, data, ok, logger)
}

func indexRaw(db ImageIndex, image string, data []byte, exists bool, logger *slog.Logger) error {
	row := ImageRow{
		Path:       image,
		Sidecar:    sidecar.PathFor(image),
		Checksum:   checksum.OfSidecar(data, exists),
		Attributes: sidecar.Decode(data, sidecar.Stem(image), logger),
		UpdatedAt:  time.Now().UTC(),
	}
	return db.UpsertImage(row)
}
