package index

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/starford/photoattr/internal/apperr"
	"github.com/starford/photoattr/internal/attrs"
	"github.com/starford/photoattr/internal/catalog"
)

// ImageRow represents a row in the images table.
type ImageRow struct {
	Path       string
	Sidecar    string
	Checksum   string // sidecar checksum, empty when there is no sidecar
	Attributes attrs.Record
	UpdatedAt  time.Time
}

// Annotated reports whether any attribute other than the image key is set.
func (r ImageRow) Annotated() bool {
	for k, v := range r.Attributes {
		if k != attrs.ImageKey && attrs.IsKnown(k) && v != "" {
			return true
		}
	}
	return false
}

// SearchResult represents one search hit.
type SearchResult struct {
	Path    string
	Snippet string
}

// ValueCount is one distinct stored value of an attribute.
type ValueCount struct {
	Value string
	Count int
}

// Stats summarises the index.
type Stats struct {
	Images      int
	WithSidecar int
	Annotated   int
}

// Sort orders for ListImages.
const (
	SortPath    = "path"
	SortUpdated = "updated_at"
)

// ListQuery selects a page of images.
type ListQuery struct {
	Limit  int
	Offset int
	// Key and Value filter on a stored attribute. An empty Value selects
	// images where Key is unset.
	Key   string
	Value string
	// Unannotated keeps only images with no attribute set.
	Unannotated bool
	Sort        string
}

// UpsertImage inserts or replaces an image, its FTS entry, and its attribute
// values within a transaction.
func (db *DB) UpsertImage(r ImageRow) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("index: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // best-effort on failure path

	if r.Attributes == nil {
		r.Attributes = attrs.Record{}
	}
	attrsJSON, err := json.Marshal(r.Attributes)
	if err != nil {
		return fmt.Errorf("index: encode attributes: %w", err)
	}
	text := body(r.Attributes)

	_, err = tx.Exec(`
		INSERT INTO images (path, sidecar, checksum, attributes, body, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(path) DO UPDATE SET
			sidecar    = excluded.sidecar,
			checksum   = excluded.checksum,
			attributes = excluded.attributes,
			body       = excluded.body,
			updated_at = excluded.updated_at
	`, r.Path, r.Sidecar, r.Checksum, string(attrsJSON), text, r.UpdatedAt)
	if err != nil {
		return fmt.Errorf("index: upsert image: %w", err)
	}

	if err := ftsUpsert(tx, r.Path, text); err != nil {
		return err
	}

	_, _ = tx.Exec(`DELETE FROM attribute_values WHERE path = ?`, r.Path)
	stmt, err := tx.Prepare(`INSERT OR IGNORE INTO attribute_values (path, key, value) VALUES (?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("index: prepare value insert: %w", err)
	}
	defer stmt.Close()
	for k, v := range r.Attributes {
		if k == attrs.ImageKey || !attrs.IsKnown(k) || v == "" {
			continue
		}
		if _, err := stmt.Exec(r.Path, k, v); err != nil {
			return fmt.Errorf("index: insert value: %w", err)
		}
	}

	return tx.Commit()
}

// DeleteImage removes an image, its FTS entry, and its attribute values.
func (db *DB) DeleteImage(path string) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("index: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	ftsDelete(tx, path)
	_, _ = tx.Exec(`DELETE FROM attribute_values WHERE path = ?`, path)
	_, _ = tx.Exec(`DELETE FROM images WHERE path = ?`, path)

	return tx.Commit()
}

// GetImage returns one indexed image or apperr.ErrNotFound.
func (db *DB) GetImage(path string) (*ImageRow, error) {
	row := db.conn.QueryRow(`
		SELECT path, sidecar, checksum, attributes, updated_at
		FROM images WHERE path = ?
	`, path)
	r, err := scanImage(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("index: get image: %w", err)
	}
	return &r, nil
}

// ListImages returns a page of images plus the total number matching the
// query. Path order is natural and case-insensitive, like the catalog scan.
func (db *DB) ListImages(q ListQuery) ([]ImageRow, int, error) {
	query := `SELECT path, sidecar, checksum, attributes, updated_at FROM images`
	var args []any
	switch {
	case q.Key != "" && q.Value != "":
		query += ` WHERE path IN (SELECT path FROM attribute_values WHERE key = ? AND value = ? COLLATE NOCASE)`
		args = append(args, q.Key, q.Value)
	case q.Key != "":
		query += ` WHERE path NOT IN (SELECT path FROM attribute_values WHERE key = ?)`
		args = append(args, q.Key)
	case q.Unannotated:
		query += ` WHERE path NOT IN (SELECT path FROM attribute_values)`
	}

	rows, err := db.conn.Query(query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("index: list images: %w", err)
	}
	defer rows.Close()

	var all []ImageRow
	for rows.Next() {
		r, err := scanImage(rows)
		if err != nil {
			return nil, 0, err
		}
		all = append(all, r)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	if q.Sort == SortUpdated {
		sort.SliceStable(all, func(i, j int) bool {
			if all[i].UpdatedAt.Equal(all[j].UpdatedAt) {
				return catalog.NaturalLess(all[i].Path, all[j].Path)
			}
			return all[i].UpdatedAt.After(all[j].UpdatedAt)
		})
	} else {
		sort.SliceStable(all, func(i, j int) bool {
			return catalog.NaturalLess(all[i].Path, all[j].Path)
		})
	}

	total := len(all)
	if q.Offset >= total {
		return []ImageRow{}, total, nil
	}
	end := total
	if q.Limit > 0 && q.Offset+q.Limit < total {
		end = q.Offset + q.Limit
	}
	return all[q.Offset:end], total, nil
}

// Values returns the distinct non-empty values stored under key, most used
// first.
func (db *DB) Values(key string) ([]ValueCount, error) {
	rows, err := db.conn.Query(`
		SELECT value, count(*) AS n
		FROM attribute_values
		WHERE key = ?
		GROUP BY value
		ORDER BY n DESC, value
	`, key)
	if err != nil {
		return nil, fmt.Errorf("index: values: %w", err)
	}
	defer rows.Close()

	out := []ValueCount{}
	for rows.Next() {
		var v ValueCount
		if err := rows.Scan(&v.Value, &v.Count); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// Stats counts indexed images, those with a sidecar, and those with at least
// one attribute set.
func (db *DB) Stats() (Stats, error) {
	var s Stats
	err := db.conn.QueryRow(`
		SELECT count(*),
		       coalesce(sum(CASE WHEN checksum != '' THEN 1 ELSE 0 END), 0),
		       (SELECT count(DISTINCT path) FROM attribute_values)
		FROM images
	`).Scan(&s.Images, &s.WithSidecar, &s.Annotated)
	if err != nil {
		return Stats{}, fmt.Errorf("index: stats: %w", err)
	}
	return s, nil
}

// AllChecksums returns the stored sidecar checksum of every indexed image.
// Images without a sidecar map to "".
func (db *DB) AllChecksums() (map[string]string, error) {
	rows, err := db.conn.Query(`SELECT path, checksum FROM images`)
	if err != nil {
		return nil, fmt.Errorf("index: all checksums: %w", err)
	}
	defer rows.Close()
	out := make(map[string]string)
	for rows.Next() {
		var p, cs string
		if err := rows.Scan(&p, &cs); err != nil {
			return nil, err
		}
		out[p] = cs
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanImage(s scanner) (ImageRow, error) {
	var (
		r   ImageRow
		raw string
	)
	if err := s.Scan(&r.Path, &r.Sidecar, &r.Checksum, &raw, &r.UpdatedAt); err != nil {
		return ImageRow{}, err
	}
	r.Attributes = attrs.Record{}
	if strings.TrimSpace(raw) != "" {
		if err := json.Unmarshal([]byte(raw), &r.Attributes); err != nil {
			return ImageRow{}, fmt.Errorf("index: decode attributes of %s: %w", r.Path, err)
		}
	}
	return r, nil
}
