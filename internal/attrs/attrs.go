// Package attrs defines the attribute vocabulary attached to each photograph
// and the record type that carries its values.
package attrs

import (
	"fmt"
	"sort"
	"strings"
)

// ImageKey is the attribute that ties a sidecar to its image. Its value is
// the image basename without extension.
const ImageKey = "image"

// Keys is the fixed attribute vocabulary in display order.
var Keys = []string{
	ImageKey,
	"year",
	"month",
	"day",
	"train(s)",
	"locomotive(s)",
	"year range",
	"month range",
	"day range",
	"region",
	"area",
	"geo coordinates",
	"geo range",
	"railway line",
	"perspective angle",
	"perspective angle rough",
	"people",
	"tag",
	"general comments",
	"comments",
}

var keyOrder = func() map[string]int {
	m := make(map[string]int, len(Keys))
	for i, k := range Keys {
		m[k] = i
	}
	return m
}()

// IsKnown reports whether key belongs to the attribute vocabulary.
func IsKnown(key string) bool {
	_, ok := keyOrder[key]
	return ok
}

// Position returns the display index of key, or -1 for unknown keys.
func Position(key string) int {
	if i, ok := keyOrder[key]; ok {
		return i
	}
	return -1
}

// Record maps attribute keys to string values. It may hold a subset of Keys
// and may carry unknown keys read from disk.
type Record map[string]string

// Row is one rendered attribute.
type Row struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// Blank returns the full key set with empty values and ImageKey set to stem.
func Blank(stem string) Record {
	r := make(Record, len(Keys))
	for _, k := range Keys {
		r[k] = ""
	}
	r[ImageKey] = stem
	return r
}

// Clone returns a shallow copy. A nil record clones to an empty one.
func (r Record) Clone() Record {
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// Filled returns a copy in which every known key is present.
func (r Record) Filled() Record {
	out := r.Clone()
	for _, k := range Keys {
		if _, ok := out[k]; !ok {
			out[k] = ""
		}
	}
	return out
}

// Merge returns r overlaid with update, key by key.
func (r Record) Merge(update Record) Record {
	out := r.Clone()
	for k, v := range update {
		out[k] = v
	}
	return out
}

// Rows returns the known keys in display order. Unknown keys are not rendered.
func (r Record) Rows() []Row {
	rows := make([]Row, 0, len(Keys))
	for _, k := range Keys {
		rows = append(rows, Row{Key: k, Value: r[k]})
	}
	return rows
}

// Extras returns the unknown keys in r, sorted.
func (r Record) Extras() []string {
	var out []string
	for k := range r {
		if !IsKnown(k) {
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out
}

// ParseAssignments turns "key=value" arguments into a record. Keys must be
// known; the value may be empty and may itself contain '='.
func ParseAssignments(args []string) (Record, error) {
	out := make(Record, len(args))
	for _, a := range args {
		k, v, ok := strings.Cut(a, "=")
		if !ok {
			return nil, fmt.Errorf("attrs: expected key=value, got %q", a)
		}
		k = strings.TrimSpace(k)
		if !IsKnown(k) {
			return nil, fmt.Errorf("attrs: unknown attribute %q", k)
		}
		out[k] = v
	}
	return out, nil
}
