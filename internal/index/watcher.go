package index

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/starford/photoattr/internal/checksum"
	"github.com/starford/photoattr/internal/models"
	"github.com/starford/photoattr/internal/sidecar"
	"github.com/starford/photoattr/internal/storage"
)

// EventCallback is called after a watcher-driven index change. kind is a
// models.Event* constant and path the relative image path.
type EventCallback func(kind string, path string)

// Watch starts an fsnotify watcher on the catalog root and processes change
// events until ctx is cancelled. Image files are indexed or dropped as they
// appear and disappear; a changed sidecar re-indexes the images it belongs
// to. cb (if non-nil) is called after each successful index mutation.
//
// New directories created at runtime are added to the watch list. Rename
// events trigger a debounced reconciliation pass.
func Watch(ctx context.Context, db ImageIndex, sidecars *sidecar.Store, logger *slog.Logger, cb EventCallback) error {
	store := sidecars.Provider()
	root := store.Root()

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	if err := addDirsRecursive(w, root); err != nil {
		return err
	}

	logger.Info("watcher: started", slog.String("root", root))

	notify := func(kind, path string) {
		if cb != nil {
			cb(kind, path)
		}
	}

	var reconcileTimer *time.Timer
	var reconcileCh <-chan time.Time

	scheduleReconcile := func() {
		if reconcileTimer == nil {
			reconcileTimer = time.NewTimer(200 * time.Millisecond)
			reconcileCh = reconcileTimer.C
		} else {
			reconcileTimer.Reset(200 * time.Millisecond)
		}
	}

	for {
		select {
		case <-ctx.Done():
			if reconcileTimer != nil {
				reconcileTimer.Stop()
			}
			logger.Info("watcher: stopped")
			return nil

		case <-reconcileCh:
			reconcile(db, sidecars, logger, notify)

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}

			absPath := ev.Name

			if ev.Op&fsnotify.Create != 0 {
				if info, statErr := os.Stat(absPath); statErr == nil && info.IsDir() {
					if addErr := addDirsRecursive(w, absPath); addErr != nil {
						logger.Warn("watcher: add new dir failed",
							slog.String("path", absPath),
							slog.String("error", addErr.Error()))
					} else {
						logger.Debug("watcher: watching new dir", slog.String("path", absPath))
					}
					indexNewDir(db, sidecars, absPath, logger, notify)
					continue
				}
			}

			rel, relErr := store.Rel(absPath)
			if relErr != nil {
				continue
			}

			switch {
			case sidecar.IsSidecar(rel):
				if ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
					continue
				}
				for _, img := range siblings(store, absPath) {
					if idxErr := IndexImage(db, sidecars, img, logger); idxErr != nil {
						logger.Warn("watcher: index failed", slog.String("path", img), slog.String("error", idxErr.Error()))
						continue
					}
					logger.Debug("watcher: sidecar changed", slog.String("path", img))
					notify(models.EventUpdated, img)
				}

			case !store.IsImage(rel):
				continue

			case ev.Op&fsnotify.Create != 0:
				if idxErr := IndexImage(db, sidecars, rel, logger); idxErr != nil {
					logger.Warn("watcher: index failed", slog.String("path", rel), slog.String("error", idxErr.Error()))
					continue
				}
				logger.Debug("watcher: indexed", slog.String("path", rel))
				notify(models.EventCreated, rel)

			case ev.Op&fsnotify.Remove != 0:
				if delErr := db.DeleteImage(rel); delErr != nil {
					logger.Warn("watcher: delete failed", slog.String("path", rel), slog.String("error", delErr.Error()))
					continue
				}
				logger.Debug("watcher: deleted", slog.String("path", rel))
				notify(models.EventDeleted, rel)

			case ev.Op&fsnotify.Rename != 0:
				// fsnotify reports Rename on the old path only; the new
				// path arrives as a Create if it stays under the root.
				if delErr := db.DeleteImage(rel); delErr != nil {
					logger.Warn("watcher: rename delete failed", slog.String("path", rel), slog.String("error", delErr.Error()))
				} else {
					logger.Debug("watcher: rename old deleted", slog.String("path", rel))
					notify(models.EventDeleted, rel)
				}
				scheduleReconcile()
			}

		case watchErr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Error("watcher: error", slog.String("error", watchErr.Error()))
		}
	}
}

// siblings returns the relative paths of the images in the sidecar's
// directory that share its stem.
func siblings(store storage.Provider, sidecarAbs string) []string {
	dir := filepath.Dir(sidecarAbs)
	stem := sidecar.Stem(sidecarAbs)
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() || sidecar.Stem(e.Name()) != stem {
			continue
		}
		rel, err := store.Rel(filepath.Join(dir, e.Name()))
		if err != nil || !store.IsImage(rel) {
			continue
		}
		out = append(out, rel)
	}
	return out
}

// reconcile removes index entries whose image is gone and indexes images
// that are new or whose sidecar changed.
func reconcile(db ImageIndex, sidecars *sidecar.Store, logger *slog.Logger, notify EventCallback) {
	checksums, err := db.AllChecksums()
	if err != nil {
		logger.Warn("reconcile: all checksums failed", slog.String("error", err.Error()))
		return
	}

	images, err := sidecars.Provider().Images("")
	if err != nil {
		logger.Warn("reconcile: list failed", slog.String("error", err.Error()))
		return
	}

	disk := make(map[string]struct{}, len(images))
	for _, img := range images {
		disk[img.Path] = struct{}{}
	}

	for p := range checksums {
		if _, ok := disk[p]; !ok {
			if delErr := db.DeleteImage(p); delErr == nil {
				logger.Debug("reconcile: removed stale", slog.String("path", p))
				notify(models.EventDeleted, p)
			}
		}
	}

	for _, img := range images {
		data, exists, readErr := sidecars.Raw(img.Path)
		if readErr != nil {
			continue
		}
		cs, indexed := checksums[img.Path]
		if indexed && cs == checksum.OfSidecar(data, exists) {
			continue
		}
		if idxErr := indexRaw(db, img.Path, data, exists, logger); idxErr == nil {
			kind := models.EventUpdated
			if !indexed {
				kind = models.EventCreated
			}
			logger.Debug("reconcile: indexed", slog.String("path", img.Path))
			notify(kind, img.Path)
		}
	}
}

// indexNewDir indexes any images found in a newly created directory.
func indexNewDir(db ImageIndex, sidecars *sidecar.Store, dirPath string, logger *slog.Logger, notify EventCallback) {
	store := sidecars.Provider()
	_ = filepath.WalkDir(dirPath, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		rel, relErr := store.Rel(path)
		if relErr != nil || !store.IsImage(rel) {
			return nil
		}
		if idxErr := IndexImage(db, sidecars, rel, logger); idxErr == nil {
			logger.Debug("watcher: indexed from new dir", slog.String("path", rel))
			notify(models.EventCreated, rel)
		}
		return nil
	})
}

// addDirsRecursive adds root and all its subdirectories to the watcher.
func addDirsRecursive(w *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return w.Add(path)
		}
		return nil
	})
}
