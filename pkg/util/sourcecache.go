// SourceCache serves module source bytes from memory-mapped files.
//
// Analysis reads every module in a dependency graph once per query, and the
// same modules are revisited by later queries and by the workspace scanner.
// Mapping each file once keeps repeat reads free and leaves paging to the OS.
//
// Mapped regions stay valid until Close. Invalidate forgets a path so the
// next read sees the file's new contents; the old region is retired and
// unmapped on Close, because callers may still hold slices of it. Retired
// regions count against MaxMemoryMB, so a long session that keeps editing
// files eventually serves reads from disk instead of mapping more.
package util

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"

	"github.com/edsrzf/mmap-go"
)

// SourceCache provides read access to module sources.
//
// Thread-safe: all methods may be called concurrently.
type SourceCache interface {
	// Read returns the contents of path. The returned slice must not be
	// modified and stays valid until Close.
	Read(path string) ([]byte, error)

	// Snippet returns the bytes in [start, end) of path.
	Snippet(path string, start, end uint32) (string, error)

	// Invalidate drops any cached contents for path.
	Invalidate(path string)

	// Size returns the number of cached files.
	Size() int

	Stats() SourceCacheStats

	// Close unmaps every region, including retired ones.
	Close() error
}

// SourceCacheConfig controls SourceCache behavior.
type SourceCacheConfig struct {
	// MaxFiles caps the number of cached files. Reads past the cap are
	// served from disk without caching. 0 means unlimited.
	MaxFiles int

	// MaxMemoryMB caps the mapped address space in MB, retired regions
	// included. 0 means unlimited.
	MaxMemoryMB int

	// Logger for warnings. If nil, uses slog.Default().
	Logger *slog.Logger
}

// DefaultSourceCacheConfig returns limits suited to a large workspace.
func DefaultSourceCacheConfig() *SourceCacheConfig {
	return &SourceCacheConfig{
		MaxFiles:    10000,
		MaxMemoryMB: 2048,
	}
}

// SourceCacheStats tracks cache activity.
type SourceCacheStats struct {
	FilesCached   int     `json:"files_cached"`
	Hits          int64   `json:"hits"`
	Misses        int64   `json:"misses"`
	Uncached      int64   `json:"uncached_reads"`
	MmapFailures  int64   `json:"mmap_failures"`
	Invalidations int64   `json:"invalidations"`
	MappedMB      float64 `json:"mapped_mb"`
	RetiredMB     float64 `json:"retired_mb"`
}

// sourceFile is one cached file. region is nil for empty files and for
// files read without mmap.
type sourceFile struct {
	data   []byte
	region mmap.MMap
	file   *os.File
}

func (sf *sourceFile) release() error {
	var errs []error
	if sf.region != nil {
		if err := sf.region.Unmap(); err != nil {
			errs = append(errs, err)
		}
	}
	if sf.file != nil {
		if err := sf.file.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

type sourceCache struct {
	config *SourceCacheConfig
	logger *slog.Logger

	mu      sync.RWMutex
	files   map[string]*sourceFile
	retired []*sourceFile
	mapped  int64
	// retiredBytes is the mapped size of retired regions.
	retiredBytes int64

	hits, misses, uncached, mmapFailures, invalidations atomic.Int64
}

// NewSourceCache creates a SourceCache. A nil config uses
// DefaultSourceCacheConfig().
func NewSourceCache(config *SourceCacheConfig) SourceCache {
	if config == nil {
		config = DefaultSourceCacheConfig()
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &sourceCache{
		config: config,
		logger: logger,
		files:  make(map[string]*sourceFile),
	}
}

func (sc *sourceCache) Read(path string) ([]byte, error) {
	sc.mu.RLock()
	if sf, ok := sc.files[path]; ok {
		sc.mu.RUnlock()
		sc.hits.Add(1)
		return sf.data, nil
	}
	sc.mu.RUnlock()

	sc.mu.Lock()
	defer sc.mu.Unlock()

	// Another goroutine may have loaded it while we waited.
	if sf, ok := sc.files[path]; ok {
		sc.hits.Add(1)
		return sf.data, nil
	}
	sc.misses.Add(1)

	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat %q: %w", path, err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%q is a directory", path)
	}

	if !sc.hasRoomLocked(info.Size()) {
		sc.uncached.Add(1)
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read %q: %w", path, err)
		}
		return data, nil
	}

	sf, err := sc.load(path)
	if err != nil {
		return nil, err
	}
	sc.files[path] = sf
	sc.mapped += int64(len(sf.data))
	return sf.data, nil
}

// hasRoomLocked reports whether a file of size bytes fits in the limits.
// Must be called while holding mu.
func (sc *sourceCache) hasRoomLocked(size int64) bool {
	if sc.config.MaxFiles > 0 && len(sc.files) >= sc.config.MaxFiles {
		return false
	}
	if sc.config.MaxMemoryMB > 0 && sc.mapped+sc.retiredBytes+size > int64(sc.config.MaxMemoryMB)*1024*1024 {
		return false
	}
	return true
}

// load maps path, falling back to a plain read when mmap fails.
func (sc *sourceCache) load(path string) (*sourceFile, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %q: %w", path, err)
	}
	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("failed to stat %q: %w", path, err)
	}

	// Zero bytes cannot be mapped.
	if info.Size() == 0 {
		file.Close()
		return &sourceFile{data: []byte{}}, nil
	}

	region, err := mmap.Map(file, mmap.RDONLY, 0)
	if err != nil {
		sc.mmapFailures.Add(1)
		sc.logger.Warn("mmap failed, reading file instead", "file", path, "size", info.Size(), "error", err)
		file.Close()

		data, readErr := os.ReadFile(path)
		if readErr != nil {
			return nil, fmt.Errorf("failed to read %q: %w", path, readErr)
		}
		return &sourceFile{data: data}, nil
	}

	return &sourceFile{data: region, region: region, file: file}, nil
}

func (sc *sourceCache) Snippet(path string, start, end uint32) (string, error) {
	data, err := sc.Read(path)
	if err != nil {
		return "", err
	}
	if end < start {
		return "", fmt.Errorf("invalid byte range [%d, %d)", start, end)
	}
	if end > uint32(len(data)) {
		return "", fmt.Errorf("invalid byte range [%d, %d) for %q of size %d", start, end, path, len(data))
	}
	return string(data[start:end]), nil
}

func (sc *sourceCache) Invalidate(path string) {
	sc.mu.Lock()
	defer sc.mu.Unlock()

	sf, ok := sc.files[path]
	if !ok {
		return
	}
	delete(sc.files, path)
	sc.mapped -= int64(len(sf.data))
	if sf.region != nil {
		sc.retired = append(sc.retired, sf)
		sc.retiredBytes += int64(len(sf.region))
	}
	sc.invalidations.Add(1)
}

func (sc *sourceCache) Size() int {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return len(sc.files)
}

func (sc *sourceCache) Stats() SourceCacheStats {
	sc.mu.RLock()
	cached := len(sc.files)
	mapped := sc.mapped
	retired := sc.retiredBytes
	sc.mu.RUnlock()

	return SourceCacheStats{
		FilesCached:   cached,
		Hits:          sc.hits.Load(),
		Misses:        sc.misses.Load(),
		Uncached:      sc.uncached.Load(),
		MmapFailures:  sc.mmapFailures.Load(),
		Invalidations: sc.invalidations.Load(),
		MappedMB:      float64(mapped) / (1024 * 1024),
		RetiredMB:     float64(retired) / (1024 * 1024),
	}
}

func (sc *sourceCache) Close() error {
	sc.mu.Lock()
	defer sc.mu.Unlock()

	var errs []error
	for path, sf := range sc.files {
		if err := sf.release(); err != nil {
			sc.logger.Warn("failed to release source", "path", path, "error", err)
			errs = append(errs, fmt.Errorf("release %q: %w", path, err))
		}
	}
	for _, sf := range sc.retired {
		if err := sf.release(); err != nil {
			errs = append(errs, err)
		}
	}
	sc.files = make(map[string]*sourceFile)
	sc.retired = nil
	sc.mapped = 0
	sc.retiredBytes = 0

	sc.logger.Debug("source cache closed",
		"hits", sc.hits.Load(),
		"misses", sc.misses.Load(),
		"mmap_failures", sc.mmapFailures.Load())

	return errors.Join(errs...)
}
