package indexer

import (
	"path/filepath"
	"strings"
	"time"
)

// ExportRecord is the computed export surface of one module.
//
// This is the unit of caching in the ExportIndex. A record stays valid
// until the module or any module it re-exports changes.
type ExportRecord struct {
	// Path is the canonical absolute path of the module.
	Path string `json:"path"`

	// Names is the closed export name set, own names first.
	Names []string `json:"names"`

	// Own are the names the module assigns itself.
	Own []string `json:"own"`

	// Reexports are the re-exported specifiers as written.
	Reexports []string `json:"reexports,omitempty"`

	// Dependencies are the files reached through re-exports, excluding
	// Path itself. A change to any of them invalidates the record.
	Dependencies []string `json:"dependencies,omitempty"`

	ESModule bool `json:"es_module"`

	// IndexedAt is when the record was computed.
	IndexedAt time.Time `json:"indexed_at"`

	// Duration is how long the computation took.
	Duration time.Duration `json:"duration_ns"`
}

// ExportIndexConfig configures the export index.
type ExportIndexConfig struct {
	// MaxRecords is the maximum number of records kept in the LRU cache.
	// Default: 5000
	MaxRecords int

	// Debug enables verbose logging
	Debug bool
}

// DefaultExportIndexConfig returns the default configuration.
func DefaultExportIndexConfig() ExportIndexConfig {
	return ExportIndexConfig{
		MaxRecords: 5000,
	}
}

// ExportIndexStats provides statistics about the index state.
type ExportIndexStats struct {
	// IndexedFiles is the number of records ever added (including evicted)
	IndexedFiles int `json:"indexed_files"`

	// CachedRecords is the number of records currently cached
	CachedRecords int `json:"cached_records"`

	// TrackedDependencies is the number of files some record depends on
	TrackedDependencies int `json:"tracked_dependencies"`

	// DirtyFiles is the number of records marked for recomputation
	DirtyFiles int `json:"dirty_files"`

	CacheHits    int64   `json:"cache_hits"`
	CacheMisses  int64   `json:"cache_misses"`
	CacheHitRate float64 `json:"cache_hit_rate"`
	Evictions    int64   `json:"evictions"`

	// AverageComputeTimeMs is the average time to compute a record
	AverageComputeTimeMs float64 `json:"average_compute_time_ms"`
}

// ScanOptions configures workspace scanning behavior.
type ScanOptions struct {
	// Include patterns (doublestar syntax, relative to the root)
	Include []string

	// Exclude patterns. Directories matching a pattern are not entered.
	Exclude []string

	// Workers is the number of concurrent analyses (0 = auto)
	Workers int
}

// DefaultScanOptions returns recommended scan options.
func DefaultScanOptions() ScanOptions {
	return ScanOptions{
		Include: []string{
			"**/*.js",
			"**/*.cjs",
			"**/*.ts",
			"**/*.cts",
		},
		Exclude: []string{
			"**/node_modules",
			"**/node_modules/**",
			".git/**",
			"coverage/**",
			"**/*.d.ts",
			"**/*.min.js",
		},
	}
}

// ScanStats contains statistics about a workspace scan.
type ScanStats struct {
	FilesDiscovered int `json:"files_discovered"`
	FilesIndexed    int `json:"files_indexed"`
	FilesFailed     int `json:"files_failed"`

	// NamesFound is the total size of all computed name sets
	NamesFound int `json:"names_found"`

	// ModulesWithReexports counts files that re-export another module
	ModulesWithReexports int `json:"modules_with_reexports"`

	TotalTimeMs     int64 `json:"total_time_ms"`
	DiscoveryTimeMs int64 `json:"discovery_time_ms"`
	IndexingTimeMs  int64 `json:"indexing_time_ms"`

	FilesPerSecond float64 `json:"files_per_second"`
	WorkerCount    int     `json:"worker_count"`

	// SuccessRate is the share of discovered files indexed (0.0 - 1.0)
	SuccessRate float64 `json:"success_rate"`

	// Errors contains per-file errors (if any)
	Errors []FileError `json:"errors,omitempty"`

	// Cancelled indicates the scan's context ended before completion
	Cancelled bool `json:"cancelled"`

	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time"`
}

// FileError represents an error that occurred while processing a file.
type FileError struct {
	FilePath string `json:"file"`
	Error    error  `json:"-"`
	Message  string `json:"error"`
}

func newFileError(path string, err error) FileError {
	return FileError{FilePath: path, Error: err, Message: err.Error()}
}

// ProgressCallback is called after each file during a workspace scan.
type ProgressCallback func(done, total int, currentFile string)

// WatchOptions configures file watching behavior.
type WatchOptions struct {
	// DebounceMs is the debounce delay in milliseconds. Rapid changes to
	// the same file are grouped into one recomputation.
	// Default: 200ms
	DebounceMs int

	// IgnorePatterns are doublestar patterns, relative to the watched root
	IgnorePatterns []string
}

// DefaultWatchOptions returns recommended watch options.
func DefaultWatchOptions() WatchOptions {
	return WatchOptions{
		DebounceMs: 200,
		IgnorePatterns: []string{
			"**/*.swp",
			"**/*.tmp",
			"**/*~",
			".git/**",
			"**/node_modules/**",
		},
	}
}

// WatchEvent describes the outcome of one debounced file change.
type WatchEvent struct {
	// FilePath is the absolute path to the changed file
	FilePath string

	// Op is the fsnotify operation (CREATE, WRITE, REMOVE, RENAME)
	Op string

	// Affected are the records recomputed because of the change: the file
	// itself and every cached module re-exporting it.
	Affected []*ExportRecord

	// Errors holds failed recomputations
	Errors []FileError

	Timestamp time.Time
}

// IsModuleFile reports whether path has an extension the scanner and
// watcher treat as a module.
func IsModuleFile(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".js", ".cjs", ".jsx", ".ts", ".cts", ".tsx", ".json":
		return true
	}
	return false
}
