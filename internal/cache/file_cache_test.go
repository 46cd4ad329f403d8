package cache

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type scene struct {
	ID    string  `json:"id"`
	Cloud float64 `json:"cloud"`
}

func TestFileCacheRoundTrip(t *testing.T) {
	fc := NewFileCacheAt[[]scene](t.TempDir())
	key := fc.GenerateKey("T001", 2021, 40.0)

	_, ok := fc.Get(key)
	assert.False(t, ok)

	want := []scene{{ID: "S2A_1", Cloud: 12.5}, {ID: "S2B_2", Cloud: 3}}
	require.NoError(t, fc.Set(key, want))

	got, ok := fc.Get(key)
	require.True(t, ok)
	assert.Equal(t, want, got)
}

func TestKeyIsStable(t *testing.T) {
	assert.Equal(t, Key("a", 1), Key("a", 1))
	assert.NotEqual(t, Key("a", 1), Key("a", 2))
	assert.NotEqual(t, Key("a_", 1), Key("a", "_1"))
	assert.Len(t, Key(), 40)
	assert.Equal(t, Key("a", 1), NewFileCacheAt[int](t.TempDir()).GenerateKey("a", 1))
}

func TestFileCacheRejectsTamperedEntry(t *testing.T) {
	dir := t.TempDir()
	fc := NewFileCacheAt[int](dir)
	require.NoError(t, fc.Set("k", 7))

	tampered := `{"key": "k", "data": 8, "written_at": "2024-01-01T00:00:00Z", "checksum": "x"}`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "k.json"), []byte(tampered), 0644))

	_, ok := fc.Get("k")
	assert.False(t, ok)
}

func TestFileCacheRejectsEntryOfAnotherKey(t *testing.T) {
	dir := t.TempDir()
	fc := NewFileCacheAt[int](dir)
	require.NoError(t, fc.Set("a", 7))
	require.NoError(t, os.Rename(filepath.Join(dir, "a.json"), filepath.Join(dir, "b.json")))

	_, ok := fc.Get("b")
	assert.False(t, ok)
}

func TestFileCacheMaxAge(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	fc := NewFileCacheAt[int](t.TempDir()).WithMaxAge(24 * time.Hour)
	fc.now = func() time.Time { return now }
	require.NoError(t, fc.Set("k", 7))

	now = now.Add(23 * time.Hour)
	v, ok := fc.Get("k")
	require.True(t, ok)
	assert.Equal(t, 7, v)

	now = now.Add(2 * time.Hour)
	_, ok = fc.Get("k")
	assert.False(t, ok)

	fc.WithMaxAge(0)
	_, ok = fc.Get("k")
	assert.True(t, ok)
}

func TestNewFileCacheUsesRootPath(t *testing.T) {
	root := t.TempDir()
	t.Setenv("ROOT_PATH", root)

	fc := NewFileCache[int]("scenes")
	require.NoError(t, fc.Set("k", 1))

	_, err := os.Stat(filepath.Join(root, "data", "cache", "scenes", "k.json"))
	assert.NoError(t, err)
}
