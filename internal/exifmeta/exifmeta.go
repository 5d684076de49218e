// Package exifmeta derives attribute suggestions from the EXIF block of a
// photograph: capture date and GPS position.
package exifmeta

import (
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/rwcarlsen/goexif/exif"

	"github.com/starford/photoattr/internal/attrs"
)

// Facts is what could be read from an image's EXIF data.
type Facts struct {
	Taken     time.Time
	HasTaken  bool
	Latitude  float64
	Longitude float64
	HasGeo    bool
}

// Read decodes EXIF from r. Images without EXIF return zero Facts and no
// error.
func Read(r io.Reader) (Facts, error) {
	x, err := exif.Decode(r)
	if err != nil && (x == nil || exif.IsCriticalError(err)) {
		return Facts{}, nil
	}

	var f Facts
	if t, err := x.DateTime(); err == nil && !t.IsZero() {
		f.Taken, f.HasTaken = t, true
	}
	if lat, long, err := x.LatLong(); err == nil {
		f.Latitude, f.Longitude, f.HasGeo = lat, long, true
	}
	return f, nil
}

// Record converts facts into attribute values. Only attributes backed by a
// fact are present.
func (f Facts) Record() attrs.Record {
	rec := attrs.Record{}
	if f.HasTaken {
		rec["year"] = strconv.Itoa(f.Taken.Year())
		rec["month"] = strconv.Itoa(int(f.Taken.Month()))
		rec["day"] = strconv.Itoa(f.Taken.Day())
	}
	if f.HasGeo {
		rec["geo coordinates"] = fmt.Sprintf("%.6f, %.6f", f.Latitude, f.Longitude)
	}
	return rec
}

// Suggest reads EXIF from r and returns the derived attributes.
func Suggest(r io.Reader) (attrs.Record, error) {
	f, err := Read(r)
	if err != nil {
		return nil, err
	}
	return f.Record(), nil
}

// OnlyEmpty drops suggestions for attributes that already hold a value in
// current, so applying them never overwrites a human edit.
func OnlyEmpty(suggested, current attrs.Record) attrs.Record {
	out := attrs.Record{}
	for k, v := range suggested {
		if current[k] == "" {
			out[k] = v
		}
	}
	return out
}
