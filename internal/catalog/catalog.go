// Package catalog discovers image files under a folder and orders them the
// way a person reads them: numeric runs compare as numbers.
package catalog

import (
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/maruel/natural"
)

// DefaultExtensions are the raster formats recognised as images.
var DefaultExtensions = []string{
	".bmp", ".gif", ".ico", ".jpeg", ".jpg", ".pbm", ".pgm", ".png", ".ppm",
	".svg", ".tga", ".tif", ".tiff", ".wbmp", ".webp", ".xbm", ".xpm",
}

// Filter selects which files count as images.
type Filter struct {
	// Extensions with leading dot; matched case-insensitively. Empty means
	// DefaultExtensions.
	Extensions []string
	// Exclude holds doublestar patterns matched against slash-separated
	// paths relative to the scan root.
	Exclude []string
}

// Validate checks the exclude patterns.
func (f Filter) Validate() error {
	for _, p := range f.Exclude {
		if !doublestar.ValidatePattern(p) {
			return fmt.Errorf("catalog: invalid exclude pattern %q", p)
		}
	}
	return nil
}

func (f Filter) extensions() map[string]struct{} {
	exts := f.Extensions
	if len(exts) == 0 {
		exts = DefaultExtensions
	}
	m := make(map[string]struct{}, len(exts))
	for _, e := range exts {
		e = strings.ToLower(strings.TrimSpace(e))
		if e == "" {
			continue
		}
		if !strings.HasPrefix(e, ".") {
			e = "." + e
		}
		m[e] = struct{}{}
	}
	return m
}

// Matches reports whether name has a supported image extension.
func (f Filter) Matches(name string) bool {
	_, ok := f.extensions()[strings.ToLower(filepath.Ext(name))]
	return ok
}

// Includes reports whether the slash-separated path rel, relative to the
// scan root, is an image Scan would return.
func (f Filter) Includes(rel string) bool {
	return f.Matches(rel) && !f.excluded(rel)
}

func (f Filter) excluded(rel string) bool {
	for _, p := range f.Exclude {
		if ok, _ := doublestar.Match(p, rel); ok {
			return true
		}
	}
	return false
}

// Scan walks root recursively and returns the absolute paths of all image
// files in natural, case-insensitive order.
func Scan(root string, f Filter) ([]string, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("catalog: resolve root: %w", err)
	}
	exts := f.extensions()

	var out []string
	err = filepath.WalkDir(abs, func(p string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		rel, _ := filepath.Rel(abs, p)
		rel = filepath.ToSlash(rel)
		if d.IsDir() {
			if rel != "." && len(f.Exclude) > 0 && f.excluded(rel) {
				return filepath.SkipDir
			}
			return nil
		}
		if _, ok := exts[strings.ToLower(filepath.Ext(d.Name()))]; !ok {
			return nil
		}
		if len(f.Exclude) > 0 && f.excluded(rel) {
			return nil
		}
		out = append(out, p)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("catalog: scan %s: %w", root, err)
	}
	Sort(out)
	return out, nil
}

// NaturalLess orders strings case-insensitively with embedded numbers
// compared by value, so "img2" sorts before "img10".
func NaturalLess(a, b string) bool {
	la, lb := strings.ToLower(a), strings.ToLower(b)
	if la == lb {
		return a < b
	}
	return natural.Less(la, lb)
}

// Sort orders paths in place using NaturalLess.
func Sort(paths []string) {
	sort.SliceStable(paths, func(i, j int) bool {
		return NaturalLess(paths[i], paths[j])
	})
}
