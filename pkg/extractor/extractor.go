package extractor

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	orderedmap "github.com/wk8/go-ordered-map/v2"

	"github.com/gnana997/cjsexports/pkg/cjs"
	"github.com/gnana997/cjsexports/pkg/jsast"
	"github.com/gnana997/cjsexports/pkg/parser"
	"github.com/gnana997/cjsexports/pkg/parser/queries"
	"github.com/gnana997/cjsexports/pkg/util"
)

// Config controls extraction.
type Config struct {
	// TolerateSyntaxErrors analyzes whatever the parser recovered instead
	// of failing the file.
	TolerateSyntaxErrors bool
}

// Extractor computes per-file results. It is safe for concurrent use; the
// parser and query managers pool their own resources.
//
// Usage:
//
//	ex := extractor.NewExtractor(pm, qm, cache, extractor.Config{}, logger)
//	result, err := ex.ExtractFile("/abs/path/index.js")
//	// result.Names, result.Reexports
type Extractor struct {
	parserManager *parser.ParserManager
	queryManager  *queries.QueryManager
	cache         util.SourceCache
	config        Config
	logger        *slog.Logger
}

// NewExtractor creates an extractor. A nil cache reads through a private
// unbounded SourceCache.
func NewExtractor(pm *parser.ParserManager, qm *queries.QueryManager, cache util.SourceCache, config Config, logger *slog.Logger) *Extractor {
	if logger == nil {
		logger = slog.Default()
	}
	if cache == nil {
		cache = util.NewSourceCache(&util.SourceCacheConfig{Logger: logger})
	}
	return &Extractor{
		parserManager: pm,
		queryManager:  qm,
		cache:         cache,
		config:        config,
		logger:        logger,
	}
}

// ExtractFile reads path through the source cache and extracts it.
func (e *Extractor) ExtractFile(path string) (*FileResult, error) {
	lang := parser.DetectLanguage(path)
	if lang == parser.LanguageNative {
		e.logger.Debug("native addon has no static exports", "file", path)
		return &FileResult{Path: path, Language: lang, Names: []string{}}, nil
	}

	source, err := e.cache.Read(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return e.ExtractSource(path, source)
}

// ExtractSource extracts a module whose contents are already in memory.
// path only selects the language and labels errors.
func (e *Extractor) ExtractSource(path string, source []byte) (*FileResult, error) {
	lang := parser.DetectLanguage(path)
	switch lang {
	case parser.LanguageNative:
		return &FileResult{Path: path, Language: lang, Names: []string{}}, nil
	case parser.LanguageJSON:
		return e.extractJSON(path, source)
	}

	prog, err := e.parserManager.ParseProgram(source, path)
	var serr *parser.SyntaxError
	if err != nil {
		if !errors.As(err, &serr) || !e.config.TolerateSyntaxErrors {
			return nil, fmt.Errorf("failed to parse %s: %w", path, err)
		}
		e.logger.Warn("analyzing file with syntax errors", "file", path, "at", serr.Loc.String())
	}

	analysis, err := cjs.Analyze(prog)
	if err != nil {
		return nil, fmt.Errorf("failed to analyze %s: %w", path, err)
	}

	result := &FileResult{
		Path:        path,
		Language:    lang,
		Names:       analysis.Names(),
		Exports:     analysis.Exports,
		Reexports:   analysis.Reexports,
		ESModule:    analysis.ESModule,
		SyntaxError: serr,
	}

	e.logger.Debug("extracted file",
		"file", path,
		"language", lang.String(),
		"names", len(result.Names),
		"reexports", len(result.Reexports))
	return result, nil
}

// extractJSON exports the top-level keys of a JSON object that are valid
// identifiers. Any other document exports nothing.
func (e *Extractor) extractJSON(path string, source []byte) (*FileResult, error) {
	result := &FileResult{
		Path:     path,
		Language: parser.LanguageJSON,
		Names:    []string{},
		Exports:  map[string][]cjs.Value{},
	}

	trimmed := strings.TrimSpace(string(source))
	if !strings.HasPrefix(trimmed, "{") {
		if !json.Valid(source) {
			return nil, fmt.Errorf("failed to decode %s: invalid JSON", path)
		}
		return result, nil
	}

	doc := orderedmap.New[string, json.RawMessage]()
	if err := json.Unmarshal(source, doc); err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", path, err)
	}

	var order []string
	for pair := doc.Oldest(); pair != nil; pair = pair.Next() {
		if !jsast.IsIdentifier(pair.Key) {
			continue
		}
		order = append(order, pair.Key)
		result.Exports[pair.Key] = []cjs.Value{jsonValue(pair.Value)}
	}

	result.ESModule = cjs.IsESModule(result.Exports)
	result.Names = cjs.InteropNames(order, result.ESModule)
	return result, nil
}

// jsonValue keeps scalar members as literal values.
func jsonValue(raw json.RawMessage) cjs.Value {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return cjs.Value{Computed: true}
	}
	switch v.(type) {
	case string, float64, bool, nil:
		return cjs.Value{Value: v}
	}
	return cjs.Value{Computed: true}
}
