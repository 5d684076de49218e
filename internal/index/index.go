package index

import "github.com/starford/photoattr/internal/attrs"

// ImageIndex defines the interface for attribute indexing operations.
// Consumers should depend on this interface rather than the concrete *DB type
// to facilitate testing with mocks.
type ImageIndex interface {
	UpsertImage(row ImageRow) error
	DeleteImage(path string) error
	GetImage(path string) (*ImageRow, error)
	ListImages(q ListQuery) ([]ImageRow, int, error)
	Search(query string, limit int) ([]SearchResult, error)
	Values(key string) ([]ValueCount, error)
	Stats() (Stats, error)
	AllChecksums() (map[string]string, error)
	Ping() error
	Close() error
}

// Verify *DB satisfies ImageIndex at compile time.
var _ ImageIndex = (*DB)(nil)

// body flattens the rendered attribute values into searchable text.
func body(r attrs.Record) string {
	var out []byte
	for _, row := range r.Rows() {
		if row.Key == attrs.ImageKey || row.Value == "" {
			continue
		}
		if len(out) > 0 {
			out = append(out, '\n')
		}
		out = append(out, row.Value...)
	}
	return string(out)
}
