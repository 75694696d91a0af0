package parser

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"unsafe"

	ts "github.com/tree-sitter/go-tree-sitter"
	ts_javascript "github.com/tree-sitter/tree-sitter-javascript/bindings/go"
	ts_typescript "github.com/tree-sitter/tree-sitter-typescript/bindings/go"

	"github.com/gnana997/cjsexports/pkg/jsast"
)

// ErrSyntax is wrapped by errors for sources whose parse tree contains
// error or missing nodes.
var ErrSyntax = errors.New("syntax error")

// SyntaxError reports the first error node of a parse tree.
type SyntaxError struct {
	Loc  jsast.Loc
	Near string
}

func (e *SyntaxError) Error() string {
	if e.Near == "" {
		return fmt.Sprintf("syntax error at %s", e.Loc)
	}
	return fmt.Sprintf("syntax error at %s near %q", e.Loc, e.Near)
}

func (e *SyntaxError) Unwrap() error { return ErrSyntax }

type poolKey struct {
	lang  Language
	isTSX bool
}

// ParserManager owns one parser pool per grammar and converts tree-sitter
// trees into jsast programs.
//
// Pools are created on first use. The manager is safe for concurrent use
// and must be closed via Close.
//
// Example:
//
//	manager := NewParserManager(logger)
//	defer manager.Close()
//
//	prog, err := manager.ParseProgram(src, "lib/index.js")
type ParserManager struct {
	pools    map[poolKey]*grammarPool
	mutex    sync.RWMutex
	poolSize int

	logger *slog.Logger

	parses      atomic.Int64
	syntaxFails atomic.Int64
}

// NewParserManager creates a manager with CPU-sized pools.
func NewParserManager(logger *slog.Logger) *ParserManager {
	return NewParserManagerWithPoolSize(logger, 0)
}

// NewParserManagerWithPoolSize creates a manager whose pools hold at most
// poolSize parsers each. A poolSize of 0 uses util.GetOptimalPoolSize.
func NewParserManagerWithPoolSize(logger *slog.Logger, poolSize int) *ParserManager {
	if logger == nil {
		logger = slog.Default()
	}
	return &ParserManager{
		pools:    make(map[poolKey]*grammarPool),
		poolSize: poolSize,
		logger:   logger,
	}
}

// Parse returns the raw tree-sitter tree for source. The caller must Close
// the tree. Trees with syntax errors are returned without error.
func (pm *ParserManager) Parse(source []byte, lang Language, isTSX bool) (*ts.Tree, error) {
	if !lang.HasGrammar() {
		return nil, fmt.Errorf("no grammar for %s sources", lang)
	}
	pm.parses.Add(1)

	pool, err := pm.getOrCreatePool(lang, isTSX)
	if err != nil {
		return nil, fmt.Errorf("failed to get pool for %s: %w", lang, err)
	}

	parser, err := pool.acquire()
	if err != nil {
		return nil, fmt.Errorf("failed to acquire parser: %w", err)
	}
	tree := parser.Parse(source, nil)
	pool.release(parser)

	if tree == nil {
		return nil, fmt.Errorf("parser returned nil tree")
	}
	return tree, nil
}

// ParseProgram parses source with the grammar picked from filePath and
// converts it to a jsast program.
//
// When the tree contains syntax errors, the converted program is still
// returned together with a *SyntaxError, so callers can choose to analyze
// the recoverable parts.
func (pm *ParserManager) ParseProgram(source []byte, filePath string) (*jsast.Program, error) {
	lang := DetectLanguage(filePath)
	tree, err := pm.Parse(source, lang, IsTSXFile(filePath))
	if err != nil {
		return nil, err
	}
	defer tree.Close()

	root := tree.RootNode()
	prog := Convert(root, source)

	if root.HasError() {
		pm.syntaxFails.Add(1)
		serr := firstError(root, source)
		pm.logger.Debug("parse tree contains errors",
			"file", filePath,
			"language", lang.String(),
			"at", serr.Loc.String())
		return prog, serr
	}
	return prog, nil
}

// firstError finds the first error or missing node in document order.
func firstError(root *ts.Node, source []byte) *SyntaxError {
	stack := []*ts.Node{root}
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if n.IsError() || n.IsMissing() {
			near := n.Utf8Text(source)
			if len(near) > 40 {
				near = near[:40]
			}
			return &SyntaxError{Loc: loc(n), Near: near}
		}
		if !n.HasError() {
			continue
		}
		for i := int(n.ChildCount()) - 1; i >= 0; i-- {
			if c := n.Child(uint(i)); c != nil {
				stack = append(stack, c)
			}
		}
	}
	return &SyntaxError{Loc: loc(root)}
}

// Close releases every pooled parser.
func (pm *ParserManager) Close() error {
	pm.mutex.Lock()
	defer pm.mutex.Unlock()

	closed := 0
	for _, pool := range pm.pools {
		closed += pool.close()
	}
	pm.pools = make(map[poolKey]*grammarPool)

	pm.logger.Debug("closed parser manager",
		"parsers_closed", closed,
		"parses_called", pm.parses.Load())
	return nil
}

func (pm *ParserManager) getOrCreatePool(lang Language, isTSX bool) (*grammarPool, error) {
	key := poolKey{lang: lang, isTSX: isTSX && lang == LanguageTypeScript}

	pm.mutex.RLock()
	pool, ok := pm.pools[key]
	pm.mutex.RUnlock()
	if ok {
		return pool, nil
	}

	pm.mutex.Lock()
	defer pm.mutex.Unlock()
	if pool, ok = pm.pools[key]; ok {
		return pool, nil
	}

	grammar, err := pm.GetLanguagePointer(key.lang, key.isTSX)
	if err != nil {
		return nil, err
	}
	pool = newGrammarPool(key, grammar, pm.poolSize, pm.logger)
	pm.pools[key] = pool

	pm.logger.Debug("created parser pool",
		"language", lang.String(),
		"isTSX", key.isTSX,
		"maxSize", pool.maxSize)
	return pool, nil
}

// GetLanguagePointer returns the tree-sitter grammar for lang. It is also
// used by the query manager to compile queries.
func (pm *ParserManager) GetLanguagePointer(lang Language, isTSX bool) (unsafe.Pointer, error) {
	switch lang {
	case LanguageTypeScript:
		if isTSX {
			return ts_typescript.LanguageTSX(), nil
		}
		return ts_typescript.LanguageTypescript(), nil
	case LanguageJavaScript:
		return ts_javascript.Language(), nil
	default:
		return nil, fmt.Errorf("unsupported language: %s", lang)
	}
}

// ParserStats contains parser usage statistics.
type ParserStats struct {
	ParsersCreated int
	ParsesCalled   int
	SyntaxErrors   int
}

// GetStats returns parser usage statistics.
func (pm *ParserManager) GetStats() ParserStats {
	pm.mutex.RLock()
	defer pm.mutex.RUnlock()

	created := 0
	for _, pool := range pm.pools {
		created += pool.createdCount()
	}
	return ParserStats{
		ParsersCreated: created,
		ParsesCalled:   int(pm.parses.Load()),
		SyntaxErrors:   int(pm.syntaxFails.Load()),
	}
}
