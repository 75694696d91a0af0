// Package queries compiles, caches and runs tree-sitter queries over
// module sources.
package queries

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"

	ts "github.com/tree-sitter/go-tree-sitter"

	"github.com/gnana997/cjsexports/pkg/parser"
	"github.com/gnana997/cjsexports/pkg/parser/queries/commonjs"
)

// QueryType selects a query set.
type QueryType int

const (
	// QueryTypeRequires finds static require() calls.
	QueryTypeRequires QueryType = iota
	// QueryTypeExportSites finds syntactic export assignments, before any
	// scope analysis.
	QueryTypeExportSites
)

func (qt QueryType) String() string {
	switch qt {
	case QueryTypeRequires:
		return "requires"
	case QueryTypeExportSites:
		return "export_sites"
	default:
		return "unknown"
	}
}

// Query patterns are compiled against a specific grammar, and TSX is a
// separate grammar from TypeScript.
type queryKey struct {
	lang  parser.Language
	isTSX bool
	qtype QueryType
}

// QueryManager compiles queries on first use and caches them per grammar.
// It is safe for concurrent use.
//
//	qm := NewQueryManager(parserManager, logger)
//	defer qm.Close()
//
//	query, err := qm.GetQuery(parser.LanguageJavaScript, false, QueryTypeRequires)
//	matches, err := qm.ExecuteQuery(tree, query, source)
type QueryManager struct {
	parserManager *parser.ParserManager
	cache         map[queryKey]*ts.Query
	mutex         sync.RWMutex
	logger        *slog.Logger
}

// NewQueryManager creates a query manager. Logger can be nil.
func NewQueryManager(pm *parser.ParserManager, logger *slog.Logger) *QueryManager {
	if logger == nil {
		logger = slog.Default()
	}
	return &QueryManager{
		parserManager: pm,
		cache:         make(map[queryKey]*ts.Query),
		logger:        logger,
	}
}

// GetQuery returns the compiled query of type qtype for a grammar.
func (qm *QueryManager) GetQuery(lang parser.Language, isTSX bool, qtype QueryType) (*ts.Query, error) {
	key := queryKey{lang: lang, isTSX: isTSX && lang == parser.LanguageTypeScript, qtype: qtype}

	qm.mutex.RLock()
	query, ok := qm.cache[key]
	qm.mutex.RUnlock()
	if ok {
		return query, nil
	}

	qm.mutex.Lock()
	defer qm.mutex.Unlock()
	if query, ok = qm.cache[key]; ok {
		return query, nil
	}

	source, err := queryString(qtype)
	if err != nil {
		return nil, err
	}
	grammar, err := qm.parserManager.GetLanguagePointer(key.lang, key.isTSX)
	if err != nil {
		return nil, fmt.Errorf("failed to get language pointer for %s: %w", lang, err)
	}

	query, qerr := ts.NewQuery(ts.NewLanguage(grammar), source)
	if qerr != nil {
		return nil, fmt.Errorf("failed to compile %s query for %s: %s", qtype, lang, qerr.Message)
	}
	qm.cache[key] = query

	qm.logger.Debug("compiled query",
		"language", lang.String(),
		"isTSX", key.isTSX,
		"type", qtype.String())

	return query, nil
}

func queryString(qtype QueryType) (string, error) {
	switch qtype {
	case QueryTypeRequires:
		return commonjs.RequireQueries, nil
	case QueryTypeExportSites:
		return commonjs.ExportSiteQueries, nil
	default:
		return "", fmt.Errorf("unknown query type: %d", qtype)
	}
}

// ExecuteQuery runs query over tree and returns every match with its
// captures. Captures whose name starts with an underscore only exist for
// predicates and are left out.
func (qm *QueryManager) ExecuteQuery(tree *ts.Tree, query *ts.Query, source []byte) ([]QueryMatch, error) {
	if tree == nil {
		return nil, fmt.Errorf("tree is nil")
	}
	if query == nil {
		return nil, fmt.Errorf("query is nil")
	}

	cursor := ts.NewQueryCursor()
	defer cursor.Close()

	iter := cursor.Matches(query, tree.RootNode(), source)
	names := query.CaptureNames()

	var matches []QueryMatch
	for match := iter.Next(); match != nil; match = iter.Next() {
		var captures []QueryCapture
		for _, capture := range match.Captures {
			var name string
			if int(capture.Index) < len(names) {
				name = names[capture.Index]
			}
			if strings.HasPrefix(name, "_") {
				continue
			}
			category, field := parseCaptureName(name)
			node := capture.Node
			captures = append(captures, QueryCapture{
				Name:     name,
				Category: category,
				Field:    field,
				Text:     node.Utf8Text(source),
				Location: nodeLocation(&node),
			})
		}
		matches = append(matches, QueryMatch{
			PatternIndex: uint32(match.PatternIndex),
			Captures:     captures,
		})
	}
	return matches, nil
}

// Close releases all compiled queries.
func (qm *QueryManager) Close() error {
	qm.mutex.Lock()
	defer qm.mutex.Unlock()

	qm.logger.Debug("closing QueryManager", "queries_compiled", len(qm.cache))
	for key, query := range qm.cache {
		query.Close()
		delete(qm.cache, key)
	}
	return nil
}

// QueryMatch is one pattern match.
type QueryMatch struct {
	PatternIndex uint32
	Captures     []QueryCapture
}

// Capture returns the first capture named name.
func (m QueryMatch) Capture(name string) (QueryCapture, bool) {
	for _, c := range m.Captures {
		if c.Name == name {
			return c, true
		}
	}
	return QueryCapture{}, false
}

// QueryCapture is one captured node. Nodes are not retained so matches
// stay valid after the tree is closed.
type QueryCapture struct {
	// Name is the full capture name, e.g. "require.source".
	Name string
	// Category and Field are the halves of Name split at the first dot.
	Category string
	Field    string
	Text     string
	Location Location
}

// Location is a 1-based source range.
type Location struct {
	StartLine   uint32
	StartColumn uint32
	EndLine     uint32
	EndColumn   uint32
	StartByte   uint32
	EndByte     uint32
}

func parseCaptureName(name string) (category, field string) {
	if before, after, ok := strings.Cut(name, "."); ok {
		return before, after
	}
	return name, ""
}

func nodeLocation(node *ts.Node) Location {
	start := node.StartPosition()
	end := node.EndPosition()
	return Location{
		StartLine:   uint32(start.Row + 1),
		StartColumn: uint32(start.Column + 1),
		EndLine:     uint32(end.Row + 1),
		EndColumn:   uint32(end.Column + 1),
		StartByte:   uint32(node.StartByte()),
		EndByte:     uint32(node.EndByte()),
	}
}
