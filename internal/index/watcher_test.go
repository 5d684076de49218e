package index

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/starford/photoattr/internal/apperr"
	"github.com/starford/photoattr/internal/sidecar"
)

// watcherTestEnv sets up a catalog dir, sidecar store, and DB for watcher tests.
func watcherTestEnv(t *testing.T) (string, *sidecar.Store, *DB) {
	t.Helper()
	dir, store := testCatalog(t)
	return dir, store, testDB(t)
}

// eventually polls fn every tick until it returns true or timeout elapses.
func eventually(t *testing.T, timeout, tick time.Duration, fn func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if fn() {
			return
		}
		time.Sleep(tick)
	}
	t.Error(msg)
}

func indexed(db *DB, path string) bool {
	_, err := db.GetImage(path)
	return err == nil
}

func TestWatcher_NewImageIndexed(t *testing.T) {
	dir, store, db := watcherTestEnv(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var mu sync.Mutex
	var events []string

	go Watch(ctx, db, store, quietLogger(), func(kind, path string) {
		mu.Lock()
		events = append(events, kind+":"+path)
		mu.Unlock()
	})

	time.Sleep(100 * time.Millisecond)

	_ = os.WriteFile(filepath.Join(dir, "new.jpg"), []byte("x"), 0o644)
	_ = os.WriteFile(filepath.Join(dir, "ignored.txt"), []byte("x"), 0o644)

	eventually(t, 5*time.Second, 50*time.Millisecond, func() bool {
		return indexed(db, "new.jpg")
	}, "new image not indexed by watcher")

	eventually(t, 2*time.Second, 50*time.Millisecond, func() bool {
		mu.Lock()
		defer mu.Unlock()
		for _, e := range events {
			if e == "created:new.jpg" {
				return true
			}
		}
		return false
	}, "expected created:new.jpg callback")

	if indexed(db, "ignored.txt") {
		t.Error("non-image file indexed")
	}
}

func TestWatcher_SidecarChangeReindexes(t *testing.T) {
	dir, store, db := watcherTestEnv(t)
	writeFile(t, dir, "img1.jpg", "x")
	if err := Sync(db, store, quietLogger()); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go Watch(ctx, db, store, quietLogger(), nil)
	time.Sleep(100 * time.Millisecond)

	_ = os.WriteFile(filepath.Join(dir, "img1.json"), []byte(`{"image":"img1","year":"1985"}`), 0o644)

	eventually(t, 5*time.Second, 50*time.Millisecond, func() bool {
		got, err := db.GetImage("img1.jpg")
		return err == nil && got.Attributes["year"] == "1985"
	}, "sidecar change not re-indexed")
}

func TestWatcher_NewDirWatched(t *testing.T) {
	dir, store, db := watcherTestEnv(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go Watch(ctx, db, store, quietLogger(), nil)

	time.Sleep(100 * time.Millisecond)

	subDir := filepath.Join(dir, "subdir")
	_ = os.MkdirAll(subDir, 0o755)
	time.Sleep(200 * time.Millisecond)

	_ = os.WriteFile(filepath.Join(subDir, "deep.png"), []byte("x"), 0o644)

	eventually(t, 5*time.Second, 50*time.Millisecond, func() bool {
		return indexed(db, "subdir/deep.png")
	}, "image in new subdir not indexed by watcher")
}

func TestWatcher_DeleteRemovesFromIndex(t *testing.T) {
	dir, store, db := watcherTestEnv(t)

	writeFile(t, dir, "del.jpg", "x")
	_ = Sync(db, store, quietLogger())

	if !indexed(db, "del.jpg") {
		t.Fatal("precondition: image should be indexed")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go Watch(ctx, db, store, quietLogger(), nil)
	time.Sleep(100 * time.Millisecond)

	_ = os.Remove(filepath.Join(dir, "del.jpg"))

	eventually(t, 5*time.Second, 50*time.Millisecond, func() bool {
		_, err := db.GetImage("del.jpg")
		return errors.Is(err, apperr.ErrNotFound)
	}, "deleted image still in index")
}

func TestWatcher_RenameReconciles(t *testing.T) {
	dir, store, db := watcherTestEnv(t)

	writeFile(t, dir, "old.jpg", "x")
	_ = Sync(db, store, quietLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go Watch(ctx, db, store, quietLogger(), nil)
	time.Sleep(100 * time.Millisecond)

	_ = os.Rename(filepath.Join(dir, "old.jpg"), filepath.Join(dir, "renamed.jpg"))

	eventually(t, 5*time.Second, 50*time.Millisecond, func() bool {
		return !indexed(db, "old.jpg") && indexed(db, "renamed.jpg")
	}, "rename reconciliation failed: old path should be removed and new path indexed")
}
