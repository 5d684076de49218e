// Package testutil provides shared test helpers for setting up catalogs and databases.
package testutil

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/starford/photoattr/internal/attrservice"
	"github.com/starford/photoattr/internal/catalog"
	"github.com/starford/photoattr/internal/index"
	"github.com/starford/photoattr/internal/sidecar"
	"github.com/starford/photoattr/internal/storage"
)

// QuietLogger discards everything.
func QuietLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

// TestDB creates a temporary SQLite database that is automatically cleaned up.
func TestDB(t *testing.T) *index.DB {
	t.Helper()
	db, err := index.Open(filepath.Join(t.TempDir(), "photoattr-test.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// TestCatalog creates a temporary catalog directory with a sidecar store.
func TestCatalog(t *testing.T) (string, *sidecar.Store) {
	t.Helper()
	dir := t.TempDir()
	fs, err := storage.NewFS(dir, catalog.Filter{})
	if err != nil {
		t.Fatal(err)
	}
	return dir, sidecar.NewStore(fs, QuietLogger())
}

// TestService wires a service over a fresh catalog and database.
func TestService(t *testing.T) (string, *attrservice.Service) {
	t.Helper()
	dir, store := TestCatalog(t)
	return dir, attrservice.NewService(store, TestDB(t), QuietLogger())
}

// WriteFile creates root/rel with content, making parent directories.
func WriteFile(t *testing.T, root, rel, content string) {
	t.Helper()
	path := filepath.Join(root, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}
