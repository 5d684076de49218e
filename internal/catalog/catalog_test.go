package catalog

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func touch(t *testing.T, root string, names ...string) {
	t.Helper()
	for _, n := range names {
		p := filepath.Join(root, filepath.FromSlash(n))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte("x"), 0o644))
	}
}

func base(paths []string) []string {
	out := make([]string, len(paths))
	for i, p := range paths {
		out[i] = filepath.Base(p)
	}
	return out
}

func TestScanNaturalOrder(t *testing.T) {
	root := t.TempDir()
	touch(t, root, "img2.jpg", "img10.jpg", "img1.jpg")

	got, err := Scan(root, Filter{})
	require.NoError(t, err)
	assert.Equal(t, []string{"img1.jpg", "img2.jpg", "img10.jpg"}, base(got))
	for _, p := range got {
		assert.True(t, filepath.IsAbs(p), "path %q should be absolute", p)
	}
}

func TestScanFiltersAndRecurses(t *testing.T) {
	root := t.TempDir()
	touch(t, root,
		"a.JPG",
		"notes.txt",
		"a.json",
		"sub/b.png",
		"sub/deeper/c.tiff",
	)

	got, err := Scan(root, Filter{})
	require.NoError(t, err)
	assert.Equal(t, []string{"a.JPG", "b.png", "c.tiff"}, base(got))
}

func TestScanCustomExtensions(t *testing.T) {
	root := t.TempDir()
	touch(t, root, "a.jpg", "b.png", "c.heic")

	got, err := Scan(root, Filter{Extensions: []string{"heic", ".PNG"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"b.png", "c.heic"}, base(got))
}

func TestScanExclude(t *testing.T) {
	root := t.TempDir()
	touch(t, root, "keep.jpg", ".thumbs/skip.jpg", "sub/skip-me.jpg", "sub/keep2.jpg")

	got, err := Scan(root, Filter{Exclude: []string{".thumbs", "**/skip-*"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"keep.jpg", "keep2.jpg"}, base(got))
}

func TestScanMissingRoot(t *testing.T) {
	_, err := Scan(filepath.Join(t.TempDir(), "nope"), Filter{})
	assert.Error(t, err)
}

func TestNaturalLessCaseInsensitive(t *testing.T) {
	paths := []string{"B10.jpg", "a2.jpg", "b9.jpg", "A10.jpg"}
	Sort(paths)
	assert.Equal(t, []string{"a2.jpg", "A10.jpg", "b9.jpg", "B10.jpg"}, paths)
}

func TestFilterValidate(t *testing.T) {
	assert.NoError(t, Filter{Exclude: []string{"**/*.tmp"}}.Validate())
	assert.Error(t, Filter{Exclude: []string{"[unclosed"}}.Validate())
}

func TestFilterMatches(t *testing.T) {
	f := Filter{}
	assert.True(t, f.Matches("x/Y.JPEG"))
	assert.False(t, f.Matches("x/y.json"))
}
