package indexer

import (
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/fsnotify/fsnotify"

	"github.com/gnana997/cjsexports/pkg/graph"
)

// FileWatcher watches a workspace and keeps the export index current.
//
// **Features:**
//   - Debouncing - rapid changes to one file trigger one recomputation
//   - Dependents - a change to a re-exported file recomputes every cached
//     module that re-exports it
//
// **Usage:**
//
//	watcher, err := NewFileWatcher(analyzer, DefaultWatchOptions(), logger)
//	if err != nil {
//	    return err
//	}
//	watcher.OnChange(func(ev WatchEvent) { ... })
//	if err := watcher.Start("/path/to/workspace"); err != nil {
//	    return err
//	}
//	defer watcher.Stop()
type FileWatcher struct {
	watcher  *fsnotify.Watcher
	analyzer *Analyzer
	logger   *slog.Logger
	options  WatchOptions
	root     string

	onChange func(WatchEvent)

	debounceTimers map[string]*time.Timer
	debounceMu     sync.Mutex
	// pending counts scheduled and running debounce callbacks.
	pending sync.WaitGroup

	stopChan chan struct{}
	stopped  bool
	mu       sync.Mutex
}

// NewFileWatcher creates a new file watcher.
func NewFileWatcher(analyzer *Analyzer, options WatchOptions, logger *slog.Logger) (*FileWatcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}
	if options.DebounceMs <= 0 {
		options.DebounceMs = DefaultWatchOptions().DebounceMs
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &FileWatcher{
		watcher:        watcher,
		analyzer:       analyzer,
		logger:         logger,
		options:        options,
		debounceTimers: make(map[string]*time.Timer),
		stopChan:       make(chan struct{}),
	}, nil
}

// OnChange registers fn to receive every processed change. It must be
// called before Start.
func (fw *FileWatcher) OnChange(fn func(WatchEvent)) {
	fw.onChange = fn
}

// Start begins watching rootPath and its subdirectories.
func (fw *FileWatcher) Start(rootPath string) error {
	fw.mu.Lock()
	if fw.stopped {
		fw.mu.Unlock()
		return fmt.Errorf("watcher already stopped")
	}
	fw.mu.Unlock()

	root, err := graph.Identity(rootPath)
	if err != nil {
		return fmt.Errorf("failed to resolve %s: %w", rootPath, err)
	}
	fw.root = root

	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == root {
				return err
			}
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if path != root && fw.shouldIgnore(path) {
			return filepath.SkipDir
		}
		if err := fw.watcher.Add(path); err != nil {
			fw.logger.Warn("Failed to watch directory", "path", path, "error", err)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to watch %s: %w", rootPath, err)
	}

	fw.logger.Info("File watcher started", "root", root)

	go fw.eventLoop()
	return nil
}

// Stop stops the file watcher and waits for recomputations already in
// progress, so the analyzer may be closed once Stop returns. Safe to call
// more than once, but not from an OnChange callback.
func (fw *FileWatcher) Stop() error {
	fw.mu.Lock()
	if fw.stopped {
		fw.mu.Unlock()
		return nil
	}
	fw.stopped = true
	close(fw.stopChan)
	fw.mu.Unlock()

	fw.debounceMu.Lock()
	for _, timer := range fw.debounceTimers {
		if timer.Stop() {
			fw.pending.Done()
		}
	}
	fw.debounceTimers = make(map[string]*time.Timer)
	fw.debounceMu.Unlock()

	err := fw.watcher.Close()
	fw.pending.Wait()
	fw.logger.Info("File watcher stopped")
	return err
}

func (fw *FileWatcher) eventLoop() {
	for {
		select {
		case <-fw.stopChan:
			return

		case event, ok := <-fw.watcher.Events:
			if !ok {
				return
			}
			fw.handleEvent(event)

		case err, ok := <-fw.watcher.Errors:
			if !ok {
				return
			}
			fw.logger.Error("File watcher error", "error", err)
		}
	}
}

func (fw *FileWatcher) handleEvent(event fsnotify.Event) {
	path := event.Name
	if fw.shouldIgnore(path) {
		return
	}

	// New directories need their own watch.
	if event.Has(fsnotify.Create) {
		if info, err := os.Stat(path); err == nil && info.IsDir() {
			if err := fw.watcher.Add(path); err != nil {
				fw.logger.Warn("Failed to watch directory", "path", path, "error", err)
			}
			return
		}
	}

	if !IsModuleFile(path) {
		return
	}

	fw.logger.Debug("File event", "op", event.Op.String(), "file", path)

	switch {
	case event.Has(fsnotify.Write), event.Has(fsnotify.Create):
		fw.debounce(path, event.Op, fw.recompute)
	case event.Has(fsnotify.Remove), event.Has(fsnotify.Rename):
		fw.debounce(path, event.Op, fw.remove)
	}
}

// debounce runs fn after the debounce delay, replacing any pending call
// for the same file.
func (fw *FileWatcher) debounce(path string, op fsnotify.Op, fn func(string, fsnotify.Op)) {
	fw.debounceMu.Lock()
	defer fw.debounceMu.Unlock()

	select {
	case <-fw.stopChan:
		return
	default:
	}

	if timer, exists := fw.debounceTimers[path]; exists && timer.Stop() {
		fw.pending.Done()
	}

	// The callback takes debounceMu before reading timer, so the
	// assignment below is visible to it.
	var timer *time.Timer
	fw.pending.Add(1)
	timer = time.AfterFunc(
		time.Duration(fw.options.DebounceMs)*time.Millisecond,
		func() {
			defer fw.pending.Done()

			fw.debounceMu.Lock()
			if fw.debounceTimers[path] == timer {
				delete(fw.debounceTimers, path)
			}
			fw.debounceMu.Unlock()

			select {
			case <-fw.stopChan:
				return
			default:
			}
			fn(path, op)
		},
	)
	fw.debounceTimers[path] = timer
}

// recompute refreshes path's own record and those of its dependents.
func (fw *FileWatcher) recompute(path string, op fsnotify.Op) {
	id, err := graph.Identity(path)
	if err != nil {
		id = path
	}
	affected := fw.analyzer.Invalidate(id)

	targets := []string{id}
	for _, p := range affected {
		if p != id {
			targets = append(targets, p)
		}
	}
	fw.publish(path, id, op, targets)
}

// remove drops path and recomputes the modules that re-exported it. Those
// now fail to resolve, which is reported in the event.
func (fw *FileWatcher) remove(path string, op fsnotify.Op) {
	id, err := graph.Identity(path)
	if err != nil {
		id = path
	}
	affected := fw.analyzer.Remove(id)
	fw.publish(path, id, op, affected)
}

func (fw *FileWatcher) publish(path, id string, op fsnotify.Op, targets []string) {
	event := WatchEvent{FilePath: path, Op: op.String(), Timestamp: time.Now()}
	for _, target := range targets {
		// JSON targets have no record of their own unless re-exported.
		if target == id && filepath.Ext(target) == ".json" {
			continue
		}
		record, err := fw.analyzer.Compute(target)
		if err != nil {
			fw.logger.Warn("Failed to recompute exports", "file", target, "error", err)
			event.Errors = append(event.Errors, newFileError(target, err))
			continue
		}
		event.Affected = append(event.Affected, record)
	}

	fw.logger.Debug("Processed change",
		"file", path,
		"op", event.Op,
		"recomputed", len(event.Affected),
		"failed", len(event.Errors))

	if fw.onChange != nil {
		fw.onChange(event)
	}
}

// shouldIgnore matches path, relative to the watched root, against the
// ignore patterns.
func (fw *FileWatcher) shouldIgnore(path string) bool {
	rel, err := filepath.Rel(fw.root, path)
	if err != nil {
		rel = path
	}
	rel = filepath.ToSlash(rel)

	for _, pattern := range fw.options.IgnorePatterns {
		if m, _ := doublestar.Match(pattern, rel); m {
			return true
		}
	}

	switch filepath.Base(path) {
	case "node_modules", ".git":
		return true
	}
	return false
}

// GetStats returns file watcher statistics.
func (fw *FileWatcher) GetStats() FileWatcherStats {
	fw.debounceMu.Lock()
	pending := len(fw.debounceTimers)
	fw.debounceMu.Unlock()

	fw.mu.Lock()
	running := !fw.stopped
	fw.mu.Unlock()

	return FileWatcherStats{
		PendingChanges: pending,
		IsRunning:      running,
	}
}

// FileWatcherStats contains file watcher statistics.
type FileWatcherStats struct {
	PendingChanges int
	IsRunning      bool
}
