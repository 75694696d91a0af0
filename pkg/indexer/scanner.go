package indexer

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/bmatcuk/doublestar/v4"
)

// WorkspaceScanner computes export records for every module in a
// directory tree.
//
// **Pipeline:**
//  1. File discovery - walk the tree, apply include/exclude patterns
//  2. Parallel computation - one graph per module on a WorkerPool
//  3. Indexing - the Analyzer stores each record in its ExportIndex
//
// **Usage:**
//
//	scanner := NewWorkspaceScanner(analyzer, logger)
//	stats, err := scanner.ScanWorkspace(ctx, "/path/to/workspace",
//	    DefaultScanOptions(),
//	    func(done, total int, file string) {
//	        fmt.Printf("Progress: %d/%d - %s\n", done, total, file)
//	    },
//	)
type WorkspaceScanner struct {
	analyzer *Analyzer
	logger   *slog.Logger
}

// NewWorkspaceScanner creates a new workspace scanner.
func NewWorkspaceScanner(analyzer *Analyzer, logger *slog.Logger) *WorkspaceScanner {
	if logger == nil {
		logger = slog.Default()
	}
	return &WorkspaceScanner{analyzer: analyzer, logger: logger}
}

// ScanWorkspace discovers and analyzes every matching module under
// rootPath. Per-file failures are collected in the stats; the returned
// error is only for discovery failures. When ctx ends early, the stats
// cover the files finished so far and Cancelled is set.
func (ws *WorkspaceScanner) ScanWorkspace(
	ctx context.Context,
	rootPath string,
	options ScanOptions,
	progressCallback ProgressCallback,
) (*ScanStats, error) {
	startTime := time.Now()
	stats := &ScanStats{StartTime: startTime}

	ws.logger.Info("Starting workspace scan", "root", rootPath)

	discoveryStart := time.Now()
	files, err := ws.DiscoverFiles(rootPath, options)
	if err != nil {
		return nil, fmt.Errorf("file discovery failed: %w", err)
	}
	stats.FilesDiscovered = len(files)
	stats.DiscoveryTimeMs = time.Since(discoveryStart).Milliseconds()

	ws.logger.Debug("File discovery complete",
		"files_found", len(files),
		"duration_ms", stats.DiscoveryTimeMs)

	if len(files) > 0 {
		indexingStart := time.Now()
		ws.processFilesParallel(ctx, files, options.Workers, stats, progressCallback)
		stats.IndexingTimeMs = time.Since(indexingStart).Milliseconds()
	} else {
		ws.logger.Warn("No files found matching criteria", "root", rootPath)
	}

	stats.EndTime = time.Now()
	stats.TotalTimeMs = stats.EndTime.Sub(startTime).Milliseconds()
	if stats.IndexingTimeMs > 0 {
		stats.FilesPerSecond = float64(stats.FilesIndexed) / (float64(stats.IndexingTimeMs) / 1000.0)
	}
	if stats.FilesDiscovered > 0 {
		stats.SuccessRate = float64(stats.FilesIndexed) / float64(stats.FilesDiscovered)
	}

	ws.logger.Info("Workspace scan complete",
		"files_indexed", stats.FilesIndexed,
		"files_failed", stats.FilesFailed,
		"names_found", stats.NamesFound,
		"duration_ms", stats.TotalTimeMs,
		"cancelled", stats.Cancelled)

	return stats, nil
}

// DiscoverFiles walks rootPath and returns the absolute paths of files
// matching options, in walk order.
func (ws *WorkspaceScanner) DiscoverFiles(rootPath string, options ScanOptions) ([]string, error) {
	for _, pattern := range options.Exclude {
		if !doublestar.ValidatePattern(pattern) {
			return nil, fmt.Errorf("invalid exclude pattern: %s", pattern)
		}
	}
	for _, pattern := range options.Include {
		if !doublestar.ValidatePattern(pattern) {
			return nil, fmt.Errorf("invalid include pattern: %s", pattern)
		}
	}

	root, err := filepath.Abs(rootPath)
	if err != nil {
		return nil, err
	}

	var files []string
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == root {
				return err
			}
			ws.logger.Warn("Walk error", "path", path, "error", err)
			return nil
		}

		relPath, err := filepath.Rel(root, path)
		if err != nil {
			relPath = path
		}
		relPath = filepath.ToSlash(relPath)

		if relPath != "." && matchAny(options.Exclude, relPath) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			return nil
		}

		if len(options.Include) > 0 && !matchAny(options.Include, relPath) {
			return nil
		}
		files = append(files, path)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return files, nil
}

func matchAny(patterns []string, relPath string) bool {
	for _, pattern := range patterns {
		if m, _ := doublestar.Match(pattern, relPath); m {
			return true
		}
	}
	return false
}

// processFilesParallel runs every file through a WorkerPool and folds the
// results into stats.
func (ws *WorkspaceScanner) processFilesParallel(
	ctx context.Context,
	files []string,
	workers int,
	stats *ScanStats,
	progressCallback ProgressCallback,
) {
	totalFiles := len(files)

	pool := NewWorkerPool(workers, ws.analyzer, ws.logger)
	stats.WorkerCount = pool.numWorkers
	pool.Start()
	defer pool.Stop()
	// Unblocks workers and Submit when the scan is cancelled.
	stopCancel := context.AfterFunc(ctx, pool.cancel)
	defer stopCancel()

	// The collector must run before submission starts: once the job queue
	// fills, Submit blocks until results are drained.
	done := make(chan struct{})
	go func() {
		defer close(done)
		finished := 0
		for finished < totalFiles {
			select {
			case <-ctx.Done():
				return

			case result := <-pool.Results():
				stats.FilesIndexed++
				stats.NamesFound += len(result.Record.Names)
				if len(result.Record.Reexports) > 0 {
					stats.ModulesWithReexports++
				}
				finished++
				if progressCallback != nil {
					progressCallback(finished, totalFiles, result.FilePath)
				}

			case fileErr := <-pool.Errors():
				stats.Errors = append(stats.Errors, fileErr)
				stats.FilesFailed++
				ws.logger.Warn("File analysis failed", "file", fileErr.FilePath, "error", fileErr.Error)
				finished++
				if progressCallback != nil {
					progressCallback(finished, totalFiles, fileErr.FilePath)
				}
			}
		}
	}()

submit:
	for i, file := range files {
		select {
		case <-ctx.Done():
			break submit
		default:
		}
		if err := pool.Submit(FileJob{FilePath: file, JobID: i}); err != nil {
			break
		}
	}
	pool.FinishSubmitting()

	<-done
	if ctx.Err() != nil && stats.FilesIndexed+stats.FilesFailed < totalFiles {
		stats.Cancelled = true
	}
}
