// Package session models one annotation pass over a folder of images as an
// explicit value: which image is current, what it holds on disk, and which
// edits are still pending.
//
// Every operation takes a State and returns the next one. A failed
// operation returns the input State unchanged alongside the error.
package session

import (
	"errors"
	"fmt"

	"github.com/starford/photoattr/internal/attrs"
)

var (
	// ErrUnsavedChanges is returned when navigating away from an image with
	// pending edits while auto-save is off.
	ErrUnsavedChanges = errors.New("session: unsaved changes")
	// ErrEmpty is returned when opening a session with no images.
	ErrEmpty = errors.New("session: no images")
	// ErrOutOfRange is returned for jumps past either end of the list.
	ErrOutOfRange = errors.New("session: index out of range")
)

// Sidecars is the persistence a session needs.
type Sidecars interface {
	Load(image string) attrs.Record
	Save(image string, update attrs.Record) (attrs.Record, error)
}

// State is the session snapshot.
type State struct {
	Images   []string
	Cursor   int
	Loaded   attrs.Record // filled record as stored on disk
	Pending  attrs.Record // edited keys not yet saved
	AutoSave bool
}

// Dirty reports whether there are unsaved edits.
func (s State) Dirty() bool { return len(s.Pending) > 0 }

// Current returns the current image and its record with pending edits
// applied.
func (s State) Current() (string, attrs.Record) {
	if len(s.Images) == 0 {
		return "", attrs.Record{}
	}
	return s.Images[s.Cursor], s.Loaded.Merge(s.Pending)
}

// Position returns the 1-based cursor and total, for display.
func (s State) Position() (int, int) {
	return s.Cursor + 1, len(s.Images)
}

// Open starts a session on the first image.
func Open(store Sidecars, images []string, autoSave bool) (State, error) {
	if len(images) == 0 {
		return State{}, ErrEmpty
	}
	st := State{
		Images:   append([]string(nil), images...),
		AutoSave: autoSave,
	}
	return load(store, st, 0), nil
}

// Edit records a pending change to key.
func Edit(st State, key, value string) (State, error) {
	if len(st.Images) == 0 {
		return st, ErrEmpty
	}
	if key == attrs.ImageKey {
		return st, fmt.Errorf("session: %q is derived from the file name", key)
	}
	if !attrs.IsKnown(key) {
		return st, fmt.Errorf("session: unknown attribute %q", key)
	}
	next := st
	next.Pending = st.Pending.Clone()
	if st.Loaded[key] == value {
		delete(next.Pending, key)
	} else {
		next.Pending[key] = value
	}
	return next, nil
}

// Discard drops pending edits.
func Discard(st State) State {
	st.Pending = attrs.Record{}
	return st
}

// Save writes pending edits of the current image.
func Save(store Sidecars, st State) (State, error) {
	if !st.Dirty() {
		return st, nil
	}
	image, _ := st.Current()
	rec, err := store.Save(image, st.Pending)
	if err != nil {
		return st, fmt.Errorf("session: save %s: %w", image, err)
	}
	st.Loaded = rec
	st.Pending = attrs.Record{}
	return st, nil
}

// Next moves to the following image. At the last image it is a no-op.
func Next(store Sidecars, st State) (State, error) {
	if st.Cursor+1 >= len(st.Images) {
		return st, nil
	}
	return Jump(store, st, st.Cursor+1)
}

// Prev moves to the preceding image. At the first image it is a no-op.
func Prev(store Sidecars, st State) (State, error) {
	if st.Cursor == 0 {
		return st, nil
	}
	return Jump(store, st, st.Cursor-1)
}

// Jump moves to the image at index i. Pending edits are saved first when
// auto-save is on; otherwise ErrUnsavedChanges is returned.
func Jump(store Sidecars, st State, i int) (State, error) {
	if i < 0 || i >= len(st.Images) {
		return st, ErrOutOfRange
	}
	if st.Dirty() {
		if !st.AutoSave {
			return st, ErrUnsavedChanges
		}
		saved, err := Save(store, st)
		if err != nil {
			return st, err
		}
		st = saved
	}
	return load(store, st, i), nil
}

// Reload re-reads the current image from disk, keeping pending edits.
func Reload(store Sidecars, st State) State {
	pending := st.Pending
	st = load(store, st, st.Cursor)
	st.Pending = pending
	return st
}

func load(store Sidecars, st State, i int) State {
	st.Cursor = i
	st.Loaded = store.Load(st.Images[i]).Filled()
	st.Pending = attrs.Record{}
	return st
}
