package session

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starford/photoattr/internal/attrs"
)

// memSidecars keeps sidecars in memory.
type memSidecars struct {
	data  map[string]attrs.Record
	saves int
	fail  error
}

func newMem() *memSidecars {
	return &memSidecars{data: map[string]attrs.Record{}}
}

func (m *memSidecars) Load(image string) attrs.Record {
	return m.data[image].Clone()
}

func (m *memSidecars) Save(image string, update attrs.Record) (attrs.Record, error) {
	if m.fail != nil {
		return nil, m.fail
	}
	m.saves++
	m.data[image] = m.data[image].Merge(update)
	return m.data[image].Filled(), nil
}

func TestOpenEmpty(t *testing.T) {
	_, err := Open(newMem(), nil, false)
	assert.ErrorIs(t, err, ErrEmpty)
}

func TestOpenLoadsFirst(t *testing.T) {
	m := newMem()
	m.data["a.jpg"] = attrs.Record{"image": "a", "year": "1980"}

	st, err := Open(m, []string{"a.jpg", "b.jpg"}, false)
	require.NoError(t, err)

	img, rec := st.Current()
	assert.Equal(t, "a.jpg", img)
	assert.Equal(t, "1980", rec["year"])
	assert.Equal(t, "", rec["region"], "missing keys default to empty")
	assert.False(t, st.Dirty())
}

func TestEditIsPure(t *testing.T) {
	st, err := Open(newMem(), []string{"a.jpg"}, false)
	require.NoError(t, err)

	edited, err := Edit(st, "year", "1990")
	require.NoError(t, err)
	assert.True(t, edited.Dirty())
	assert.False(t, st.Dirty(), "input state must not change")

	_, rec := edited.Current()
	assert.Equal(t, "1990", rec["year"])
}

func TestEditBackToStoredValueClearsDirty(t *testing.T) {
	st, _ := Open(newMem(), []string{"a.jpg"}, false)
	st, _ = Edit(st, "year", "1990")
	st, err := Edit(st, "year", "")
	require.NoError(t, err)
	assert.False(t, st.Dirty())
}

func TestEditRejects(t *testing.T) {
	st, _ := Open(newMem(), []string{"a.jpg"}, false)
	_, err := Edit(st, "image", "x")
	assert.Error(t, err)
	_, err = Edit(st, "camera", "Leica")
	assert.Error(t, err)
}

func TestNavigateBlockedWhenDirty(t *testing.T) {
	m := newMem()
	st, _ := Open(m, []string{"a.jpg", "b.jpg"}, false)
	st, _ = Edit(st, "year", "1990")

	next, err := Next(m, st)
	assert.ErrorIs(t, err, ErrUnsavedChanges)
	assert.Equal(t, 0, next.Cursor)
	assert.Equal(t, 0, m.saves)

	next, err = Next(m, Discard(st))
	require.NoError(t, err)
	assert.Equal(t, 1, next.Cursor)
}

func TestNavigateAutoSaves(t *testing.T) {
	m := newMem()
	st, _ := Open(m, []string{"a.jpg", "b.jpg"}, true)
	st, _ = Edit(st, "people", "Li")

	st, err := Next(m, st)
	require.NoError(t, err)
	assert.Equal(t, 1, st.Cursor)
	assert.Equal(t, 1, m.saves)
	assert.Equal(t, "Li", m.data["a.jpg"]["people"])

	st, err = Prev(m, st)
	require.NoError(t, err)
	_, rec := st.Current()
	assert.Equal(t, "Li", rec["people"])
}

func TestAutoSaveFailureKeepsState(t *testing.T) {
	m := newMem()
	st, _ := Open(m, []string{"a.jpg", "b.jpg"}, true)
	st, _ = Edit(st, "people", "Li")
	m.fail = errors.New("disk full")

	next, err := Next(m, st)
	assert.Error(t, err)
	assert.Equal(t, 0, next.Cursor)
	assert.True(t, next.Dirty())
}

func TestSave(t *testing.T) {
	m := newMem()
	st, _ := Open(m, []string{"a.jpg"}, false)
	st, _ = Edit(st, "region", "northeast")

	st, err := Save(m, st)
	require.NoError(t, err)
	assert.False(t, st.Dirty())
	assert.Equal(t, "northeast", st.Loaded["region"])

	// Nothing pending: no write.
	_, err = Save(m, st)
	require.NoError(t, err)
	assert.Equal(t, 1, m.saves)
}

func TestBoundsAndJump(t *testing.T) {
	m := newMem()
	st, _ := Open(m, []string{"a.jpg", "b.jpg", "c.jpg"}, false)

	st, err := Prev(m, st)
	require.NoError(t, err)
	assert.Equal(t, 0, st.Cursor)

	st, err = Jump(m, st, 2)
	require.NoError(t, err)
	pos, total := st.Position()
	assert.Equal(t, 3, pos)
	assert.Equal(t, 3, total)

	st, err = Next(m, st)
	require.NoError(t, err)
	assert.Equal(t, 2, st.Cursor)

	_, err = Jump(m, st, 3)
	assert.ErrorIs(t, err, ErrOutOfRange)
}

func TestReloadKeepsPending(t *testing.T) {
	m := newMem()
	st, _ := Open(m, []string{"a.jpg"}, false)
	st, _ = Edit(st, "tag", "steam")
	m.data["a.jpg"] = attrs.Record{"image": "a", "year": "1975"}

	st = Reload(m, st)
	_, rec := st.Current()
	assert.Equal(t, "1975", rec["year"])
	assert.Equal(t, "steam", rec["tag"])
}
