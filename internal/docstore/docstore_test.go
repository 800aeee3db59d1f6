package docstore

import (
	"path/filepath"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type doc struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

func newTestStore(t *testing.T) (*Store, afero.Fs) {
	t.Helper()
	fs := afero.NewMemMapFs()
	return New(fs, "/cache"), fs
}

func TestWriteRead(t *testing.T) {
	s, fs := newTestStore(t)
	path := []string{"acme", "widgets", "issue", "42"}

	require.NoError(t, s.Write(path, doc{Name: "a", Count: 1}))

	exists, err := afero.Exists(fs, filepath.Join("/cache", "acme", "widgets", "issue", "42.json"))
	require.NoError(t, err)
	assert.True(t, exists)

	var got doc
	ok, err := s.Read(path, &got)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, doc{Name: "a", Count: 1}, got)
}

func TestRead_Missing(t *testing.T) {
	s, _ := newTestStore(t)
	var got doc
	ok, err := s.Read([]string{"nope", "1"}, &got)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestWrite_OverwriteLeavesNoTempFiles(t *testing.T) {
	s, fs := newTestStore(t)
	path := []string{"acme", "widgets", "pull_request", "7"}
	require.NoError(t, s.Write(path, doc{Count: 1}))
	require.NoError(t, s.Write(path, doc{Count: 2}))

	var got doc
	_, err := s.Read(path, &got)
	require.NoError(t, err)
	assert.Equal(t, 2, got.Count)

	infos, err := afero.ReadDir(fs, "/cache/acme/widgets/pull_request")
	require.NoError(t, err)
	assert.Len(t, infos, 1)
}

func TestRemoveTree(t *testing.T) {
	s, _ := newTestStore(t)
	require.NoError(t, s.Write([]string{"acme", "widgets", "issue", "1"}, doc{}))
	require.NoError(t, s.Write([]string{"acme", "widgets", "issue", "2"}, doc{}))
	require.NoError(t, s.Write([]string{"acme", "gears", "issue", "1"}, doc{}))

	require.NoError(t, s.RemoveTree([]string{"acme", "widgets"}))

	var got doc
	ok, _ := s.Read([]string{"acme", "widgets", "issue", "1"}, &got)
	assert.False(t, ok)
	ok, _ = s.Read([]string{"acme", "gears", "issue", "1"}, &got)
	assert.True(t, ok)

	require.NoError(t, s.RemoveTree(nil))
	ok, _ = s.Read([]string{"acme", "gears", "issue", "1"}, &got)
	assert.False(t, ok)
}

func TestDelete(t *testing.T) {
	s, _ := newTestStore(t)
	path := []string{"a", "b"}
	require.NoError(t, s.Write(path, doc{}))
	require.NoError(t, s.Delete(path))
	require.NoError(t, s.Delete(path))
}

func TestChildren(t *testing.T) {
	s, _ := newTestStore(t)
	require.NoError(t, s.Write([]string{"zed", "x", "1"}, doc{}))
	require.NoError(t, s.Write([]string{"amy", "x", "1"}, doc{}))

	names, err := s.Children(nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"amy", "zed"}, names)

	names, err = s.Children([]string{"missing"})
	require.NoError(t, err)
	assert.Empty(t, names)
}

func TestInvalidSegments(t *testing.T) {
	s, _ := newTestStore(t)
	for _, path := range [][]string{nil, {""}, {".."}, {"a/b"}, {"ok", "..", "x"}} {
		err := s.Write(path, doc{})
		assert.ErrorIs(t, err, ErrInvalidPath, "%v", path)
	}
	_, err := s.Sub("..")
	assert.ErrorIs(t, err, ErrInvalidPath)
}

func TestSub(t *testing.T) {
	s, _ := newTestStore(t)
	details, err := s.Sub("details")
	require.NoError(t, err)
	require.NoError(t, details.Write([]string{"k"}, doc{Name: "d"}))

	var got doc
	ok, err := s.Read([]string{"details", "k"}, &got)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "d", got.Name)
}
