package parser

import (
	"fmt"
	"log/slog"
	"sync"
	"unsafe"

	ts "github.com/tree-sitter/go-tree-sitter"

	"github.com/gnana997/cjsexports/pkg/util"
)

// grammarPool hands out tree-sitter parsers bound to one grammar.
// Parsers are created lazily up to maxSize (0 picks a CPU based size); once that many exist, acquire
// blocks until one is released.
type grammarPool struct {
	parsers chan *ts.Parser
	grammar unsafe.Pointer
	key     poolKey
	maxSize int

	mutex   sync.Mutex
	created int

	logger *slog.Logger
}

func newGrammarPool(key poolKey, grammar unsafe.Pointer, maxSize int, logger *slog.Logger) *grammarPool {
	size := util.GetOptimalPoolSizeWithOverride(maxSize)
	return &grammarPool{
		parsers: make(chan *ts.Parser, size),
		grammar: grammar,
		key:     key,
		maxSize: size,
		logger:  logger,
	}
}

func (p *grammarPool) acquire() (*ts.Parser, error) {
	select {
	case parser := <-p.parsers:
		return parser, nil
	default:
	}

	p.mutex.Lock()
	if p.created >= p.maxSize {
		p.mutex.Unlock()
		return <-p.parsers, nil
	}
	defer p.mutex.Unlock()

	parser := ts.NewParser()
	if parser == nil {
		return nil, fmt.Errorf("failed to create parser")
	}
	if err := parser.SetLanguage(ts.NewLanguage(p.grammar)); err != nil {
		parser.Close()
		return nil, fmt.Errorf("failed to set language: %w", err)
	}
	p.created++

	p.logger.Debug("created parser",
		"language", p.key.lang.String(),
		"isTSX", p.key.isTSX,
		"pool_size", p.created)

	return parser, nil
}

func (p *grammarPool) release(parser *ts.Parser) {
	if parser == nil {
		return
	}
	select {
	case p.parsers <- parser:
	default:
		parser.Close()
		p.logger.Warn("parser pool full, closing excess parser",
			"language", p.key.lang.String())
	}
}

// close drains the pool. Parsers still checked out are not closed.
func (p *grammarPool) close() int {
	close(p.parsers)
	count := 0
	for parser := range p.parsers {
		parser.Close()
		count++
	}
	return count
}

func (p *grammarPool) createdCount() int {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	return p.created
}
