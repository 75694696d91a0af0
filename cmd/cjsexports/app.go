package main

import (
	"errors"
	"log/slog"

	"github.com/gnana997/cjsexports/pkg/extractor"
	"github.com/gnana997/cjsexports/pkg/indexer"
	"github.com/gnana997/cjsexports/pkg/parser"
	"github.com/gnana997/cjsexports/pkg/parser/queries"
	"github.com/gnana997/cjsexports/pkg/resolver"
	"github.com/gnana997/cjsexports/pkg/util"
)

// app wires the analysis stack for one command invocation.
type app struct {
	parsers  *parser.ParserManager
	queries  *queries.QueryManager
	cache    util.SourceCache
	analyzer *indexer.Analyzer
	logger   *slog.Logger
}

func newApp(cfg *ProjectConfig, logger *slog.Logger) *app {
	pm := parser.NewParserManager(logger)
	qm := queries.NewQueryManager(pm, logger)
	cache := util.NewSourceCache(cfg.sourceCacheConfig(logger))

	ex := extractor.NewExtractor(pm, qm, cache,
		extractor.Config{TolerateSyntaxErrors: cfg.TolerateSyntaxErrors}, logger)
	res := resolver.New(cfg.resolverConfig(logger))
	idx := indexer.NewExportIndex(indexer.ExportIndexConfig{
		MaxRecords: cfg.Cache.MaxRecords,
		Debug:      util.ParseLevel(util.LogLevel(cfg.LogLevel)) == slog.LevelDebug,
	}, logger)

	return &app{
		parsers:  pm,
		queries:  qm,
		cache:    cache,
		analyzer: indexer.NewAnalyzer(ex, res, cache, idx, logger),
		logger:   logger,
	}
}

func (a *app) Close() error {
	a.analyzer.Index().Close()
	return errors.Join(a.queries.Close(), a.parsers.Close(), a.cache.Close())
}
