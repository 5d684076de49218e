//go:build sqlite_fts5

package index

import "testing"

func TestFTS5_TableExists(t *testing.T) {
	db := testDB(t)
	var count int
	if err := db.conn.QueryRow(`SELECT count(*) FROM images_fts`).Scan(&count); err != nil {
		t.Fatalf("images_fts table missing: %v", err)
	}
}

func TestFTS5_SearchWithSnippet(t *testing.T) {
	db := testDB(t)
	if err := db.UpsertImage(row("fts.jpg", "f1", "comments", "Freight train leaving the yard at dawn")); err != nil {
		t.Fatalf("UpsertImage: %v", err)
	}

	results, err := db.Search("freight", 10)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(results))
	}
	if results[0].Path != "fts.jpg" {
		t.Errorf("path = %q", results[0].Path)
	}
	if results[0].Snippet == "" {
		t.Error("expected non-empty snippet")
	}
}

func TestFTS5_DeleteRemovesFromFTS(t *testing.T) {
	db := testDB(t)
	_ = db.UpsertImage(row("gone.jpg", "g", "tag", "vanishing"))
	_ = db.DeleteImage("gone.jpg")

	results, _ := db.Search("vanishing", 10)
	for _, r := range results {
		if r.Path == "gone.jpg" {
			t.Error("deleted image still in FTS index")
		}
	}
}

func TestFTS5_UpsertReplacesContent(t *testing.T) {
	db := testDB(t)
	_ = db.UpsertImage(row("evo.jpg", "1", "comments", "original text"))
	_ = db.UpsertImage(row("evo.jpg", "2", "comments", "replacement text"))

	results, _ := db.Search("original", 10)
	if len(results) != 0 {
		t.Error("old FTS content should be gone")
	}
	results, _ = db.Search("replacement", 10)
	if len(results) != 1 || results[0].Path != "evo.jpg" {
		t.Errorf("FTS not updated: %+v", results)
	}
}
