// Package sidecar locates, reads, and merge-writes the JSON file stored next
// to each image.
//
// A sidecar lives at <image dir>/<image stem>.json and holds one flat JSON
// object. Its "image" field must equal the image stem for the file to be
// accepted; anything else reads as an empty record.
package sidecar

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sort"
	"strings"

	"github.com/starford/photoattr/internal/attrs"
)

// Ext is the sidecar file suffix.
const Ext = ".json"

// ErrMalformed is returned by Merge when the existing file is not a JSON
// object and therefore cannot be merged into.
var ErrMalformed = errors.New("sidecar: existing file is not a JSON object")

// Stem returns the basename of path without its final extension.
func Stem(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// PathFor derives the sidecar path for an image.
func PathFor(image string) string {
	return filepath.Join(filepath.Dir(image), Stem(image)+Ext)
}

// IsSidecar reports whether path looks like a sidecar file.
func IsSidecar(path string) bool {
	return strings.EqualFold(filepath.Ext(path), Ext)
}

// Decode parses sidecar content for the image with the given stem. It never
// fails: empty or unparsable content and a mismatched "image" field all
// yield an empty record, as does an "image" field that is not a JSON string.
// Parse failures are logged at warn level.
func Decode(data []byte, stem string, logger *slog.Logger) attrs.Record {
	if logger == nil {
		logger = slog.Default()
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return attrs.Record{}
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		logger.Warn("sidecar: decode failed",
			slog.String("image", stem),
			slog.String("error", err.Error()))
		return attrs.Record{}
	}

	if raw := bytes.TrimSpace(fields[attrs.ImageKey]); len(raw) == 0 || raw[0] != '"' || text(raw) != stem {
		logger.Debug("sidecar: image field mismatch",
			slog.String("want", stem),
			slog.String("got", string(raw)))
		return attrs.Record{}
	}

	rec := make(attrs.Record, len(fields))
	for k, v := range fields {
		rec[k] = text(v)
	}
	return rec
}

// Merge produces the new sidecar content for the image with the given stem.
//
// When existing is nil there is no file yet: the full key set is created
// with empty values and update is applied on top. Otherwise update is
// overlaid key by key on the stored object and every other stored value,
// known or not, is kept. The "image" field is always set to stem.
func Merge(existing []byte, stem string, update attrs.Record) ([]byte, error) {
	var fields map[string]json.RawMessage
	switch {
	case existing == nil:
		fields = make(map[string]json.RawMessage, len(attrs.Keys))
		for k, v := range attrs.Blank(stem) {
			fields[k] = quote(v)
		}
	case len(bytes.TrimSpace(existing)) == 0:
		fields = make(map[string]json.RawMessage)
	default:
		if err := json.Unmarshal(existing, &fields); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		if fields == nil {
			fields = make(map[string]json.RawMessage)
		}
	}

	for k, v := range update {
		fields[k] = quote(v)
	}
	fields[attrs.ImageKey] = quote(stem)

	return encode(fields)
}

// encode writes fields with known keys in display order followed by the
// remaining keys sorted, indented by two spaces.
func encode(fields map[string]json.RawMessage) ([]byte, error) {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		pi, pj := attrs.Position(keys[i]), attrs.Position(keys[j])
		switch {
		case pi >= 0 && pj >= 0:
			return pi < pj
		case pi >= 0:
			return true
		case pj >= 0:
			return false
		default:
			return keys[i] < keys[j]
		}
	})

	var flat bytes.Buffer
	flat.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			flat.WriteByte(',')
		}
		flat.Write(quote(k))
		flat.WriteByte(':')
		if err := json.Compact(&flat, fields[k]); err != nil {
			return nil, fmt.Errorf("sidecar: encode %q: %w", k, err)
		}
	}
	flat.WriteByte('}')

	var out bytes.Buffer
	if err := json.Indent(&out, flat.Bytes(), "", "  "); err != nil {
		return nil, fmt.Errorf("sidecar: indent: %w", err)
	}
	out.WriteByte('\n')
	return out.Bytes(), nil
}

// quote encodes s as a JSON string without HTML escaping.
func quote(s string) json.RawMessage {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(s)
	return bytes.TrimRight(buf.Bytes(), "\n")
}

// text renders a stored JSON value as an attribute string.
func text(raw json.RawMessage) string {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return ""
	}
	if trimmed[0] == '"' {
		var s string
		if err := json.Unmarshal(trimmed, &s); err == nil {
			return s
		}
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, trimmed); err != nil {
		return string(trimmed)
	}
	return buf.String()
}
