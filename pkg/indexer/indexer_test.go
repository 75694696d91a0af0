package indexer

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gnana997/cjsexports/pkg/util"
)

func testRecord(path string, names []string, deps ...string) *ExportRecord {
	return &ExportRecord{
		Path:         path,
		Names:        names,
		Own:          names,
		Dependencies: deps,
		IndexedAt:    time.Now(),
		Duration:     time.Millisecond,
	}
}

func newTestIndex(t *testing.T, maxRecords int) *ExportIndex {
	t.Helper()
	idx := NewExportIndex(ExportIndexConfig{MaxRecords: maxRecords}, util.NewDiscardLogger())
	t.Cleanup(idx.Close)
	return idx
}

func TestNewExportIndex(t *testing.T) {
	idx := NewExportIndex(ExportIndexConfig{}, nil)
	require.NotNil(t, idx)
	defer idx.Close()

	assert.Equal(t, DefaultExportIndexConfig().MaxRecords, idx.config.MaxRecords)
	assert.NotNil(t, idx.records)
	assert.NotNil(t, idx.dependents)
	assert.NotNil(t, idx.dirty)
}

func TestExportIndex_AddGet(t *testing.T) {
	idx := newTestIndex(t, 10)

	idx.Add(testRecord("/a.js", []string{"x", "y"}))

	record, found := idx.Get("/a.js")
	require.True(t, found)
	assert.Equal(t, []string{"x", "y"}, record.Names)
	assert.False(t, idx.IsDirty("/a.js"))

	_, found = idx.Get("/missing.js")
	assert.False(t, found)
}

func TestExportIndex_InvalidateDependents(t *testing.T) {
	idx := newTestIndex(t, 10)

	idx.Add(testRecord("/index.js", []string{"a", "b"}, "/lib/b.js"))
	idx.Add(testRecord("/other.js", []string{"c"}, "/lib/b.js", "/lib/c.js"))
	idx.Add(testRecord("/lib/b.js", []string{"b"}))

	affected := idx.InvalidateFile("/lib/b.js")
	assert.ElementsMatch(t, []string{"/index.js", "/other.js", "/lib/b.js"}, affected)
	assert.True(t, idx.IsDirty("/index.js"))
	assert.True(t, idx.IsDirty("/other.js"))

	// Dirty records are still readable.
	_, found := idx.Get("/index.js")
	assert.True(t, found)

	affected = idx.InvalidateFile("/lib/c.js")
	assert.Equal(t, []string{"/other.js"}, affected)

	// Re-adding clears the dirty flag.
	idx.Add(testRecord("/index.js", []string{"a", "b"}, "/lib/b.js"))
	assert.False(t, idx.IsDirty("/index.js"))
	assert.True(t, idx.IsDirty("/other.js"))
}

func TestExportIndex_ReplaceUnlinksOldDependencies(t *testing.T) {
	idx := newTestIndex(t, 10)

	idx.Add(testRecord("/index.js", []string{"a"}, "/old.js"))
	idx.Add(testRecord("/index.js", []string{"a"}, "/new.js"))

	assert.Empty(t, idx.InvalidateFile("/old.js"))
	assert.Equal(t, []string{"/index.js"}, idx.InvalidateFile("/new.js"))
}

func TestExportIndex_RemoveFile(t *testing.T) {
	idx := newTestIndex(t, 10)

	idx.Add(testRecord("/index.js", []string{"a"}, "/lib.js"))
	idx.Add(testRecord("/lib.js", []string{"a"}))

	affected := idx.RemoveFile("/lib.js")
	assert.Equal(t, []string{"/index.js"}, affected)
	assert.True(t, idx.IsDirty("/index.js"))

	_, found := idx.Get("/lib.js")
	assert.False(t, found)
	assert.False(t, idx.IsDirty("/lib.js"))
}

func TestExportIndex_LRUEviction(t *testing.T) {
	idx := newTestIndex(t, 2)

	idx.Add(testRecord("/a.js", []string{"a"}, "/dep.js"))
	idx.Add(testRecord("/b.js", []string{"b"}))
	idx.InvalidateFile("/a.js")
	idx.Add(testRecord("/c.js", []string{"c"}))

	_, found := idx.Get("/a.js")
	assert.False(t, found)
	assert.False(t, idx.IsDirty("/a.js"))
	assert.Empty(t, idx.InvalidateFile("/dep.js"))

	stats := idx.GetStats()
	assert.Equal(t, 2, stats.CachedRecords)
	assert.Equal(t, int64(1), stats.Evictions)
}

func TestExportIndex_All(t *testing.T) {
	idx := newTestIndex(t, 10)
	for i := 0; i < 3; i++ {
		idx.Add(testRecord(fmt.Sprintf("/f%d.js", i), []string{"x"}))
	}

	var paths []string
	for _, record := range idx.All() {
		paths = append(paths, record.Path)
	}
	assert.ElementsMatch(t, []string{"/f0.js", "/f1.js", "/f2.js"}, paths)
}

func TestExportIndex_GetStats(t *testing.T) {
	idx := newTestIndex(t, 10)

	idx.Add(testRecord("/a.js", []string{"a"}, "/b.js"))
	idx.Get("/a.js")
	idx.Get("/a.js")
	idx.Get("/nope.js")
	idx.InvalidateFile("/b.js")

	stats := idx.GetStats()
	assert.Equal(t, 1, stats.IndexedFiles)
	assert.Equal(t, 1, stats.CachedRecords)
	assert.Equal(t, 2, stats.TrackedDependencies)
	assert.Equal(t, 1, stats.DirtyFiles)
	assert.Equal(t, int64(2), stats.CacheHits)
	assert.Equal(t, int64(1), stats.CacheMisses)
	assert.InDelta(t, 2.0/3.0, stats.CacheHitRate, 0.001)
	assert.InDelta(t, 1.0, stats.AverageComputeTimeMs, 0.001)
}

func TestExportIndex_ConcurrentAccess(t *testing.T) {
	idx := newTestIndex(t, 50)

	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				path := fmt.Sprintf("/w%d/f%d.js", w, i%20)
				idx.Add(testRecord(path, []string{"x"}, "/shared.js"))
				idx.Get(path)
				if i%10 == 0 {
					idx.InvalidateFile("/shared.js")
				}
				idx.GetStats()
			}
		}(w)
	}
	wg.Wait()

	assert.LessOrEqual(t, idx.GetStats().CachedRecords, 50)
}

func BenchmarkExportIndex_Get(b *testing.B) {
	idx := NewExportIndex(ExportIndexConfig{MaxRecords: 1000}, util.NewDiscardLogger())
	defer idx.Close()
	for i := 0; i < 1000; i++ {
		idx.Add(testRecord(fmt.Sprintf("/f%d.js", i), []string{"x"}))
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		idx.Get(fmt.Sprintf("/f%d.js", i%1000))
	}
}
