package indexer

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gnana997/cjsexports/pkg/extractor"
	"github.com/gnana997/cjsexports/pkg/graph"
	"github.com/gnana997/cjsexports/pkg/parser"
	"github.com/gnana997/cjsexports/pkg/parser/queries"
	"github.com/gnana997/cjsexports/pkg/resolver"
	"github.com/gnana997/cjsexports/pkg/util"
)

func newTestAnalyzer(t *testing.T) *Analyzer {
	t.Helper()
	logger := util.NewDiscardLogger()

	pm := parser.NewParserManager(logger)
	t.Cleanup(func() { _ = pm.Close() })
	qm := queries.NewQueryManager(pm, logger)
	t.Cleanup(func() { _ = qm.Close() })
	cache := util.NewSourceCache(nil)
	t.Cleanup(func() { _ = cache.Close() })

	ex := extractor.NewExtractor(pm, qm, cache, extractor.Config{}, logger)
	res := resolver.New(resolver.Config{Logger: logger})
	idx := NewExportIndex(DefaultExportIndexConfig(), logger)
	t.Cleanup(idx.Close)

	return NewAnalyzer(ex, res, cache, idx, logger)
}

func writeTree(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for name, content := range files {
		path := filepath.Join(root, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
}

func identity(t *testing.T, path string) string {
	t.Helper()
	id, err := graph.Identity(path)
	require.NoError(t, err)
	return id
}

var sampleTree = map[string]string{
	"index.js":                      "module.exports = require('./lib');\nmodule.exports.a = 1;\n",
	"lib.js":                        "exports.b = 2;\nexports.c = 3;\n",
	"plain.cjs":                     "module.exports.d = 4;\n",
	"broken.js":                     "exports.e = (;\n",
	"notes.md":                      "# not a module\n",
	"node_modules/dep/index.js":     "exports.f = 5;\n",
	"node_modules/dep/package.json": `{"name":"dep"}`,
}

func TestAnalyzer_ExportsAndCache(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"index.js": "module.exports = require('./lib');\nmodule.exports.a = 1;\n",
		"lib.js":   "exports.b = 2;\n",
	})
	a := newTestAnalyzer(t)
	index := identity(t, filepath.Join(root, "index.js"))
	lib := identity(t, filepath.Join(root, "lib.js"))

	record, err := a.Exports(filepath.Join(root, "index.js"))
	require.NoError(t, err)
	assert.Equal(t, index, record.Path)
	assert.ElementsMatch(t, []string{"a", "b"}, record.Names)
	assert.Equal(t, []string{"a"}, record.Own)
	assert.Equal(t, []string{"./lib"}, record.Reexports)
	assert.Equal(t, []string{lib}, record.Dependencies)

	again, err := a.Exports(index)
	require.NoError(t, err)
	assert.Same(t, record, again)

	// A change to the re-exported file dirties the record.
	writeTree(t, root, map[string]string{"lib.js": "exports.b = 2;\nexports.z = 3;\n"})
	affected := a.Invalidate(lib)
	assert.Contains(t, affected, index)
	assert.True(t, a.Index().IsDirty(index))

	fresh, err := a.Exports(index)
	require.NoError(t, err)
	assert.NotSame(t, record, fresh)
	assert.ElementsMatch(t, []string{"a", "b", "z"}, fresh.Names)
	assert.False(t, a.Index().IsDirty(index))
}

func TestAnalyzer_Errors(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"dangling.js": "module.exports = require('./nowhere');\n",
	})
	a := newTestAnalyzer(t)

	_, err := a.Exports(filepath.Join(root, "dangling.js"))
	assert.ErrorIs(t, err, resolver.ErrNotFound)

	_, err = a.Exports(filepath.Join(root, "absent.js"))
	assert.Error(t, err)

	assert.Zero(t, a.Index().GetStats().CachedRecords)
}

func TestAnalyzer_Remove(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"index.js": "module.exports = require('./lib');\n",
		"lib.js":   "exports.b = 2;\n",
	})
	a := newTestAnalyzer(t)
	index := identity(t, filepath.Join(root, "index.js"))
	lib := identity(t, filepath.Join(root, "lib.js"))

	_, err := a.Exports(index)
	require.NoError(t, err)
	_, err = a.Exports(lib)
	require.NoError(t, err)

	require.NoError(t, os.Remove(lib))
	affected := a.Remove(lib)
	assert.Equal(t, []string{index}, affected)

	_, found := a.Index().Get(lib)
	assert.False(t, found)

	_, err = a.Exports(index)
	assert.ErrorIs(t, err, resolver.ErrNotFound)
}

func TestWorkerPool_Basic(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"one.js": "exports.one = 1;\n",
		"two.js": "exports.two = 2;\n",
	})
	a := newTestAnalyzer(t)

	pool := NewWorkerPool(2, a, util.NewDiscardLogger())
	pool.Start()
	defer pool.Stop()

	files := []string{
		filepath.Join(root, "one.js"),
		filepath.Join(root, "two.js"),
		filepath.Join(root, "missing.js"),
	}
	for i, file := range files {
		require.NoError(t, pool.Submit(FileJob{FilePath: file, JobID: i}))
	}
	pool.FinishSubmitting()

	names := map[string][]string{}
	errorCount := 0
	for i := 0; i < len(files); i++ {
		select {
		case result := <-pool.Results():
			names[filepath.Base(result.FilePath)] = result.Record.Names
		case fileErr := <-pool.Errors():
			assert.Equal(t, files[2], fileErr.FilePath)
			assert.NotEmpty(t, fileErr.Message)
			errorCount++
		case <-time.After(10 * time.Second):
			t.Fatal("timed out waiting for worker pool")
		}
	}

	assert.Equal(t, 1, errorCount)
	assert.Equal(t, map[string][]string{"one.js": {"one"}, "two.js": {"two"}}, names)

	stats := pool.GetStats()
	assert.Equal(t, 2, stats.NumWorkers)
	assert.Equal(t, int64(3), stats.JobsSubmitted)
	assert.Equal(t, int64(2), stats.JobsProcessed)
	assert.Equal(t, int64(1), stats.JobsFailed)

	pool.Stop()
	assert.ErrorIs(t, pool.Submit(FileJob{FilePath: files[0]}), ErrPoolStopped)
}

func TestWorkspaceScanner_DiscoverFiles(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, sampleTree)
	writeTree(t, root, map[string]string{
		"types/index.d.ts": "export {};\n",
		"dist/app.min.js":  "exports.x=1;\n",
	})
	scanner := NewWorkspaceScanner(newTestAnalyzer(t), util.NewDiscardLogger())

	files, err := scanner.DiscoverFiles(root, DefaultScanOptions())
	require.NoError(t, err)

	var rel []string
	for _, f := range files {
		r, err := filepath.Rel(root, f)
		require.NoError(t, err)
		rel = append(rel, filepath.ToSlash(r))
	}
	assert.ElementsMatch(t, []string{"broken.js", "index.js", "lib.js", "plain.cjs"}, rel)

	_, err = scanner.DiscoverFiles(root, ScanOptions{Include: []string{"[invalid"}})
	assert.Error(t, err)

	_, err = scanner.DiscoverFiles(filepath.Join(root, "nope"), DefaultScanOptions())
	assert.Error(t, err)
}

func TestWorkspaceScanner_ScanWorkspace(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, sampleTree)
	a := newTestAnalyzer(t)
	scanner := NewWorkspaceScanner(a, util.NewDiscardLogger())

	var mu sync.Mutex
	var progress []int
	stats, err := scanner.ScanWorkspace(context.Background(), root, ScanOptions{
		Include: DefaultScanOptions().Include,
		Exclude: DefaultScanOptions().Exclude,
		Workers: 2,
	}, func(done, total int, file string) {
		mu.Lock()
		defer mu.Unlock()
		assert.Equal(t, 4, total)
		progress = append(progress, done)
	})
	require.NoError(t, err)

	assert.Equal(t, 4, stats.FilesDiscovered)
	assert.Equal(t, 3, stats.FilesIndexed)
	assert.Equal(t, 1, stats.FilesFailed)
	assert.Equal(t, 1, stats.ModulesWithReexports)
	assert.Equal(t, 2, stats.WorkerCount)
	assert.InDelta(t, 0.75, stats.SuccessRate, 0.001)
	assert.False(t, stats.Cancelled)
	require.Len(t, stats.Errors, 1)
	assert.Equal(t, "broken.js", filepath.Base(stats.Errors[0].FilePath))
	assert.Equal(t, []int{1, 2, 3, 4}, progress)

	record, found := a.Index().Get(identity(t, filepath.Join(root, "index.js")))
	require.True(t, found)
	assert.ElementsMatch(t, []string{"a", "b", "c"}, record.Names)
}

func TestWorkspaceScanner_Cancelled(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, sampleTree)
	scanner := NewWorkspaceScanner(newTestAnalyzer(t), util.NewDiscardLogger())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	stats, err := scanner.ScanWorkspace(ctx, root, DefaultScanOptions(), nil)
	require.NoError(t, err)
	assert.Equal(t, 4, stats.FilesDiscovered)
	assert.Less(t, stats.FilesIndexed+stats.FilesFailed, 4)
	assert.True(t, stats.Cancelled)
}

func TestWorkspaceScanner_Empty(t *testing.T) {
	scanner := NewWorkspaceScanner(newTestAnalyzer(t), util.NewDiscardLogger())

	stats, err := scanner.ScanWorkspace(context.Background(), t.TempDir(), DefaultScanOptions(), nil)
	require.NoError(t, err)
	assert.Zero(t, stats.FilesDiscovered)
	assert.Zero(t, stats.SuccessRate)
}

func TestFileWatcher_RecomputesDependents(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"index.js": "module.exports = require('./lib');\n",
		"lib.js":   "exports.b = 2;\n",
	})
	a := newTestAnalyzer(t)
	index := identity(t, filepath.Join(root, "index.js"))

	_, err := a.Exports(index)
	require.NoError(t, err)

	watcher, err := NewFileWatcher(a, WatchOptions{DebounceMs: 20}, util.NewDiscardLogger())
	require.NoError(t, err)
	events := make(chan WatchEvent, 16)
	watcher.OnChange(func(ev WatchEvent) { events <- ev })

	require.NoError(t, watcher.Start(root))
	defer watcher.Stop()
	assert.True(t, watcher.GetStats().IsRunning)

	writeTree(t, root, map[string]string{"lib.js": "exports.b = 2;\nexports.c = 3;\n"})

	deadline := time.After(10 * time.Second)
	for {
		select {
		case ev := <-events:
			for _, record := range ev.Affected {
				if record.Path == index && len(record.Names) == 2 {
					assert.ElementsMatch(t, []string{"b", "c"}, record.Names)
					assert.False(t, a.Index().IsDirty(index))
					return
				}
			}
		case <-deadline:
			t.Fatal("timed out waiting for watch event")
		}
	}
}

func TestFileWatcher_IgnoresAndStops(t *testing.T) {
	root := t.TempDir()
	watcher, err := NewFileWatcher(newTestAnalyzer(t), DefaultWatchOptions(), nil)
	require.NoError(t, err)

	require.NoError(t, watcher.Start(root))
	assert.True(t, watcher.shouldIgnore(filepath.Join(watcher.root, "node_modules")))
	assert.True(t, watcher.shouldIgnore(filepath.Join(watcher.root, "src", "a.js.swp")))
	assert.False(t, watcher.shouldIgnore(filepath.Join(watcher.root, "src", "a.js")))

	require.NoError(t, watcher.Stop())
	require.NoError(t, watcher.Stop())
	assert.False(t, watcher.GetStats().IsRunning)
	assert.Error(t, watcher.Start(root))
}

func TestFileWatcher_DebounceKeepsNewerTimer(t *testing.T) {
	watcher, err := NewFileWatcher(newTestAnalyzer(t), WatchOptions{DebounceMs: 5}, util.NewDiscardLogger())
	require.NoError(t, err)
	defer watcher.Stop()

	fired := make(chan string, 4)
	record := func(path string, _ fsnotify.Op) { fired <- path }

	// Hold the lock so the first timer fires and then waits on it.
	watcher.debounce("a.js", fsnotify.Write, record)
	watcher.debounceMu.Lock()
	time.Sleep(50 * time.Millisecond)
	watcher.pending.Add(1)
	newer := time.AfterFunc(time.Hour, func() {})
	watcher.debounceTimers["a.js"] = newer
	watcher.debounceMu.Unlock()

	select {
	case path := <-fired:
		assert.Equal(t, "a.js", path)
	case <-time.After(5 * time.Second):
		t.Fatal("debounced call never ran")
	}

	watcher.debounceMu.Lock()
	assert.Same(t, newer, watcher.debounceTimers["a.js"])
	watcher.debounceMu.Unlock()
	assert.Equal(t, 1, watcher.GetStats().PendingChanges)

	require.NoError(t, watcher.Stop())
	assert.Equal(t, 0, watcher.GetStats().PendingChanges)
}

func TestFileWatcher_StopWaitsForRunningCallback(t *testing.T) {
	watcher, err := NewFileWatcher(newTestAnalyzer(t), WatchOptions{DebounceMs: 5}, util.NewDiscardLogger())
	require.NoError(t, err)

	started := make(chan struct{})
	release := make(chan struct{})
	watcher.debounce("a.js", fsnotify.Write, func(string, fsnotify.Op) {
		close(started)
		<-release
	})

	select {
	case <-started:
	case <-time.After(5 * time.Second):
		t.Fatal("debounced call never ran")
	}

	stopped := make(chan struct{})
	go func() {
		_ = watcher.Stop()
		close(stopped)
	}()

	select {
	case <-stopped:
		t.Fatal("Stop returned while a callback was running")
	case <-time.After(50 * time.Millisecond):
	}

	close(release)
	select {
	case <-stopped:
	case <-time.After(5 * time.Second):
		t.Fatal("Stop never returned")
	}

	watcher.debounce("c.js", fsnotify.Write, func(string, fsnotify.Op) {
		t.Error("debounce scheduled after Stop")
	})
	assert.Equal(t, 0, watcher.GetStats().PendingChanges)
}
