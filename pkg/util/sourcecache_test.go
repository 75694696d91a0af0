package util

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeSource(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestSourceCache_Read(t *testing.T) {
	dir := t.TempDir()
	path := writeSource(t, dir, "a.js", "exports.a = 1;\n")

	cache := NewSourceCache(nil)
	defer cache.Close()

	data, err := cache.Read(path)
	require.NoError(t, err)
	assert.Equal(t, "exports.a = 1;\n", string(data))
	assert.Equal(t, 1, cache.Size())

	again, err := cache.Read(path)
	require.NoError(t, err)
	assert.Equal(t, string(data), string(again))

	stats := cache.Stats()
	assert.Equal(t, int64(1), stats.Misses)
	assert.Equal(t, int64(1), stats.Hits)
	assert.Equal(t, 1, stats.FilesCached)
	assert.Greater(t, stats.MappedMB, 0.0)
}

func TestSourceCache_Snippet(t *testing.T) {
	dir := t.TempDir()
	// Multi-byte characters must survive byte slicing.
	path := writeSource(t, dir, "u.js", `exports["héllo"] = "世界";`)

	cache := NewSourceCache(nil)
	defer cache.Close()

	got, err := cache.Snippet(path, 9, 15)
	require.NoError(t, err)
	assert.Equal(t, "héllo", got)

	_, err = cache.Snippet(path, 5, 2)
	assert.Error(t, err)

	_, err = cache.Snippet(path, 0, 1000)
	assert.Error(t, err)
}

func TestSourceCache_EmptyFile(t *testing.T) {
	dir := t.TempDir()
	path := writeSource(t, dir, "empty.js", "")

	cache := NewSourceCache(nil)
	defer cache.Close()

	data, err := cache.Read(path)
	require.NoError(t, err)
	assert.Empty(t, data)
	assert.Equal(t, 1, cache.Size())
}

func TestSourceCache_Missing(t *testing.T) {
	cache := NewSourceCache(nil)
	defer cache.Close()

	_, err := cache.Read(filepath.Join(t.TempDir(), "nope.js"))
	require.Error(t, err)
	assert.ErrorIs(t, err, os.ErrNotExist)

	_, err = cache.Read(t.TempDir())
	assert.Error(t, err)
}

func TestSourceCache_Invalidate(t *testing.T) {
	dir := t.TempDir()
	path := writeSource(t, dir, "a.js", "exports.a = 1;")

	cache := NewSourceCache(nil)
	defer cache.Close()

	before, err := cache.Read(path)
	require.NoError(t, err)
	assert.Equal(t, "exports.a = 1;", string(before))

	// Replace the file rather than rewriting it in place; the old mapping
	// keeps the old inode.
	tmp := writeSource(t, dir, "a.js.tmp", "exports.b = 2; exports.c = 3;")
	require.NoError(t, os.Rename(tmp, path))

	cache.Invalidate(path)
	assert.Equal(t, 0, cache.Size())

	after, err := cache.Read(path)
	require.NoError(t, err)
	assert.Equal(t, "exports.b = 2; exports.c = 3;", string(after))

	// Retired regions stay readable until Close.
	assert.Equal(t, "exports.a = 1;", string(before))
	assert.Equal(t, int64(1), cache.Stats().Invalidations)

	cache.Invalidate(filepath.Join(dir, "unknown.js"))
	assert.Equal(t, int64(1), cache.Stats().Invalidations)
}

func TestSourceCache_MaxFiles(t *testing.T) {
	dir := t.TempDir()
	a := writeSource(t, dir, "a.js", "a")
	b := writeSource(t, dir, "b.js", "b")

	cache := NewSourceCache(&SourceCacheConfig{MaxFiles: 1})
	defer cache.Close()

	_, err := cache.Read(a)
	require.NoError(t, err)

	data, err := cache.Read(b)
	require.NoError(t, err)
	assert.Equal(t, "b", string(data))
	assert.Equal(t, 1, cache.Size())
	assert.Equal(t, int64(1), cache.Stats().Uncached)
}

func TestSourceCache_MaxMemory(t *testing.T) {
	dir := t.TempDir()
	big := writeSource(t, dir, "big.js", strings.Repeat("x", 2*1024*1024))

	cache := NewSourceCache(&SourceCacheConfig{MaxMemoryMB: 1})
	defer cache.Close()

	data, err := cache.Read(big)
	require.NoError(t, err)
	assert.Len(t, data, 2*1024*1024)
	assert.Equal(t, 0, cache.Size())
}

func TestSourceCache_RetiredCountsTowardMemory(t *testing.T) {
	dir := t.TempDir()
	content := strings.Repeat("x", 600*1024)
	path := writeSource(t, dir, "a.js", content)

	cache := NewSourceCache(&SourceCacheConfig{MaxMemoryMB: 1})
	defer cache.Close()

	_, err := cache.Read(path)
	require.NoError(t, err)
	assert.Equal(t, 1, cache.Size())

	cache.Invalidate(path)
	stats := cache.Stats()
	assert.Zero(t, stats.MappedMB)
	assert.InDelta(t, 600.0/1024, stats.RetiredMB, 0.001)

	// The retired region still occupies address space, so the reread
	// does not fit and is served from disk.
	data, err := cache.Read(path)
	require.NoError(t, err)
	assert.Equal(t, content, string(data))
	assert.Equal(t, 0, cache.Size())
	assert.Equal(t, int64(1), cache.Stats().Uncached)

	require.NoError(t, cache.Close())
	assert.Zero(t, cache.Stats().RetiredMB)
}

func TestSourceCache_Concurrent(t *testing.T) {
	dir := t.TempDir()
	var paths []string
	for _, name := range []string{"a.js", "b.js", "c.js", "d.js"} {
		paths = append(paths, writeSource(t, dir, name, "module.exports = "+name+";"))
	}

	cache := NewSourceCache(nil)
	defer cache.Close()

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			path := paths[i%len(paths)]
			data, err := cache.Read(path)
			assert.NoError(t, err)
			assert.Contains(t, string(data), filepath.Base(path))
			if i%8 == 0 {
				cache.Invalidate(path)
			}
		}(i)
	}
	wg.Wait()

	assert.LessOrEqual(t, cache.Size(), len(paths))
}

func TestSourceCache_Close(t *testing.T) {
	dir := t.TempDir()
	path := writeSource(t, dir, "a.js", "x")

	cache := NewSourceCache(nil)
	_, err := cache.Read(path)
	require.NoError(t, err)
	cache.Invalidate(path)
	_, err = cache.Read(path)
	require.NoError(t, err)

	require.NoError(t, cache.Close())
	assert.Equal(t, 0, cache.Size())
}
