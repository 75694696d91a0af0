package indexer

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/gnana997/cjsexports/pkg/extractor"
	"github.com/gnana997/cjsexports/pkg/graph"
	"github.com/gnana997/cjsexports/pkg/util"
)

// Analyzer computes export records and keeps them in an ExportIndex.
//
// Each computation runs on its own graph.Graph, so concurrent calls share
// no analysis state; only the source cache and the index are shared.
//
// **Usage:**
//
//	analyzer := NewAnalyzer(ex, res, cache, index, logger)
//	record, err := analyzer.Exports("/abs/path/index.js")
type Analyzer struct {
	extractor *extractor.Extractor
	resolver  graph.ModuleResolver
	cache     util.SourceCache
	index     *ExportIndex
	logger    *slog.Logger
}

// NewAnalyzer creates an analyzer. cache must be the SourceCache the
// extractor reads through, so invalidation reaches it.
func NewAnalyzer(ex *extractor.Extractor, res graph.ModuleResolver, cache util.SourceCache, index *ExportIndex, logger *slog.Logger) *Analyzer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Analyzer{
		extractor: ex,
		resolver:  res,
		cache:     cache,
		index:     index,
		logger:    logger,
	}
}

// Exports returns the record for path, from the index when a clean record
// is cached.
func (a *Analyzer) Exports(path string) (*ExportRecord, error) {
	id, err := graph.Identity(path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve %s: %w", path, err)
	}
	if record, ok := a.index.Get(id); ok && !a.index.IsDirty(id) {
		return record, nil
	}
	return a.Compute(id)
}

// Compute recomputes the record for path and stores it.
func (a *Analyzer) Compute(path string) (*ExportRecord, error) {
	start := time.Now()

	g := graph.New(a.extractor, a.resolver, a.logger)
	names, err := g.Exports(path)
	if err != nil {
		return nil, err
	}

	root, err := graph.Identity(path)
	if err != nil {
		return nil, err
	}
	entry, ok := g.Entry(root)
	if !ok {
		return nil, fmt.Errorf("%w: no entry for %s after resolution", graph.ErrInternal, root)
	}

	reachable := g.Reachable(root)
	record := &ExportRecord{
		Path:         root,
		Names:        names,
		Own:          entry.Result.Names,
		Reexports:    entry.Result.Specifiers(),
		Dependencies: reachable[1:],
		ESModule:     entry.Result.ESModule,
		IndexedAt:    start,
		Duration:     time.Since(start),
	}
	a.index.Add(record)

	a.logger.Debug("computed exports",
		"file", root,
		"names", len(names),
		"files", len(reachable),
		"duration", record.Duration)
	return record, nil
}

// Invalidate forgets the cached source of path and dirties every record
// depending on it. It returns the dirtied record paths.
func (a *Analyzer) Invalidate(path string) []string {
	a.cache.Invalidate(path)
	return a.index.InvalidateFile(path)
}

// Remove drops path from the cache and the index. It returns the records
// that re-exported it, which are now dirty.
func (a *Analyzer) Remove(path string) []string {
	a.cache.Invalidate(path)
	return a.index.RemoveFile(path)
}

// Extractor returns the per-file extractor.
func (a *Analyzer) Extractor() *extractor.Extractor { return a.extractor }

// Index returns the record index.
func (a *Analyzer) Index() *ExportIndex { return a.index }

// CacheStats returns the source cache statistics.
func (a *Analyzer) CacheStats() util.SourceCacheStats { return a.cache.Stats() }
