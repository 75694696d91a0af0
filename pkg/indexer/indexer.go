package indexer

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"
)

// ExportIndex caches computed export records with lazy invalidation.
//
// **Architecture:**
//   - LRU cache: module path → ExportRecord
//   - Reverse index: file → modules whose record depends on it, so a
//     change to a re-exported file dirties every module re-exporting it
//   - Dirty set for lazy recomputation
//
// **Thread Safety:**
//   - sync.RWMutex guards the cache, reverse index and dirty set
//   - Atomic counters for statistics
//
// **Usage:**
//
//	index := NewExportIndex(DefaultExportIndexConfig(), logger)
//	index.Add(record)
//	record, found := index.Get("/abs/path/index.js")
type ExportIndex struct {
	// LRU cache: path → record. Only modified while mu is held, so the
	// eviction callback may touch dependents without locking.
	records *lru.Cache[string, *ExportRecord]

	// Reverse index: file → set of record paths depending on it
	dependents map[string]map[string]struct{}

	// Lazy invalidation tracking
	dirty map[string]bool

	mu sync.RWMutex

	indexedFiles     atomic.Int64
	cacheHits        atomic.Int64
	cacheMisses      atomic.Int64
	evictions        atomic.Int64
	totalComputeTime atomic.Int64 // Microseconds

	config ExportIndexConfig
	logger *slog.Logger
}

// NewExportIndex creates a new export index.
func NewExportIndex(config ExportIndexConfig, logger *slog.Logger) *ExportIndex {
	if config.MaxRecords <= 0 {
		config.MaxRecords = DefaultExportIndexConfig().MaxRecords
	}
	if logger == nil {
		logger = slog.Default()
	}

	idx := &ExportIndex{
		dependents: make(map[string]map[string]struct{}),
		dirty:      make(map[string]bool),
		config:     config,
		logger:     logger,
	}

	cache, err := lru.NewWithEvict(config.MaxRecords, func(path string, record *ExportRecord) {
		idx.unlinkLocked(record)
		delete(idx.dirty, path)
		if config.Debug {
			logger.Debug("LRU dropping record", "path", path)
		}
	})
	if err != nil {
		// Only reachable with a non-positive size, which is excluded above.
		panic(fmt.Sprintf("failed to create LRU cache: %v", err))
	}
	idx.records = cache

	logger.Debug("ExportIndex initialized", "max_records", config.MaxRecords)
	return idx
}

// Add stores record, replacing any previous record for the same path and
// clearing its dirty flag.
func (idx *ExportIndex) Add(record *ExportRecord) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	if old, ok := idx.records.Peek(record.Path); ok {
		idx.unlinkLocked(old)
	}
	if idx.records.Add(record.Path, record) {
		idx.evictions.Add(1)
	}
	for _, file := range append([]string{record.Path}, record.Dependencies...) {
		set, ok := idx.dependents[file]
		if !ok {
			set = make(map[string]struct{})
			idx.dependents[file] = set
		}
		set[record.Path] = struct{}{}
	}
	delete(idx.dirty, record.Path)

	idx.indexedFiles.Add(1)
	idx.totalComputeTime.Add(record.Duration.Microseconds())

	if idx.config.Debug {
		idx.logger.Debug("Indexed module", "path", record.Path, "names", len(record.Names), "dependencies", len(record.Dependencies))
	}
}

// unlinkLocked removes record from the reverse index. Must be called with
// the write lock held.
func (idx *ExportIndex) unlinkLocked(record *ExportRecord) {
	for _, file := range append([]string{record.Path}, record.Dependencies...) {
		if set, ok := idx.dependents[file]; ok {
			delete(set, record.Path)
			if len(set) == 0 {
				delete(idx.dependents, file)
			}
		}
	}
}

// Get returns the cached record for path. Dirty records are returned as
// well; check IsDirty to decide whether to recompute.
func (idx *ExportIndex) Get(path string) (*ExportRecord, bool) {
	// Get updates recency, so it needs the write lock.
	idx.mu.Lock()
	defer idx.mu.Unlock()

	record, found := idx.records.Get(path)
	if found {
		idx.cacheHits.Add(1)
	} else {
		idx.cacheMisses.Add(1)
	}
	return record, found
}

// All returns a snapshot of every cached record.
func (idx *ExportIndex) All() []*ExportRecord {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	keys := idx.records.Keys()
	out := make([]*ExportRecord, 0, len(keys))
	for _, key := range keys {
		if record, ok := idx.records.Peek(key); ok {
			out = append(out, record)
		}
	}
	return out
}

// InvalidateFile marks every record that depends on file as dirty,
// including file's own record, and returns their paths.
func (idx *ExportIndex) InvalidateFile(file string) []string {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	var affected []string
	for path := range idx.dependents[file] {
		idx.dirty[path] = true
		affected = append(affected, path)
	}

	if idx.config.Debug {
		idx.logger.Debug("Invalidated file", "path", file, "affected", len(affected))
	}
	return affected
}

// IsDirty reports whether the record for path is marked for recomputation.
func (idx *ExportIndex) IsDirty(path string) bool {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return idx.dirty[path]
}

// RemoveFile drops the record for path and returns the records that
// depended on it, which are now dirty.
func (idx *ExportIndex) RemoveFile(path string) []string {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	var affected []string
	for dependent := range idx.dependents[path] {
		if dependent != path {
			idx.dirty[dependent] = true
			affected = append(affected, dependent)
		}
	}
	idx.records.Remove(path)
	delete(idx.dirty, path)
	return affected
}

// GetStats returns current index statistics.
func (idx *ExportIndex) GetStats() ExportIndexStats {
	idx.mu.RLock()
	cached := idx.records.Len()
	tracked := len(idx.dependents)
	dirty := len(idx.dirty)
	idx.mu.RUnlock()

	hits := idx.cacheHits.Load()
	misses := idx.cacheMisses.Load()
	hitRate := 0.0
	if hits+misses > 0 {
		hitRate = float64(hits) / float64(hits+misses)
	}

	indexed := idx.indexedFiles.Load()
	avg := 0.0
	if indexed > 0 {
		avg = float64(idx.totalComputeTime.Load()) / float64(indexed) / 1000.0
	}

	return ExportIndexStats{
		IndexedFiles:         int(indexed),
		CachedRecords:        cached,
		TrackedDependencies:  tracked,
		DirtyFiles:           dirty,
		CacheHits:            hits,
		CacheMisses:          misses,
		CacheHitRate:         hitRate,
		Evictions:            idx.evictions.Load(),
		AverageComputeTimeMs: avg,
	}
}

// Close releases all records. The index cannot be used afterwards.
func (idx *ExportIndex) Close() {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	idx.records.Purge()
	idx.dependents = nil
	idx.dirty = nil

	idx.logger.Debug("ExportIndex closed")
}
