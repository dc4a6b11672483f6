package cache

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStorePutGet(t *testing.T) {
	s, err := NewStore(filepath.Join(t.TempDir(), "pages"))
	require.NoError(t, err)

	key, err := s.Put("<p>hello</p>")
	require.NoError(t, err)
	assert.Len(t, key, 16)
	assert.Equal(t, PageKey("<p>hello</p>"), key)

	again, err := s.Put("<p>hello</p>")
	require.NoError(t, err)
	assert.Equal(t, key, again)

	page, ok, err := s.Get(key)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "<p>hello</p>", page)

	entries, err := os.ReadDir(s.Dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temporary files should remain")
}

func TestStoreMissingAndInvalid(t *testing.T) {
	s, err := NewStore(t.TempDir())
	require.NoError(t, err)

	_, ok, err := s.Get(PageKey("never stored"))
	require.NoError(t, err)
	assert.False(t, ok)

	_, _, err = s.Get("../../etc/passwd")
	assert.Error(t, err)
	assert.Error(t, s.Delete("nothex!!nothex!!"))
}

func TestStoreDetectsTampering(t *testing.T) {
	s, err := NewStore(t.TempDir())
	require.NoError(t, err)

	key, err := s.Put("original")
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(s.Dir, key+".page"), []byte("changed"), 0o644))

	_, ok, err := s.Get(key)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestStoreDelete(t *testing.T) {
	s, err := NewStore(t.TempDir())
	require.NoError(t, err)

	key, err := s.Put("gone soon")
	require.NoError(t, err)
	require.NoError(t, s.Delete(key))
	require.NoError(t, s.Delete(key))

	_, ok, err := s.Get(key)
	require.NoError(t, err)
	assert.False(t, ok)
}
