// Package graph follows module.exports = require(...) re-exports across
// files and computes each module's complete set of export names.
//
// A Graph owns its entries. Files are analyzed at most once per Graph, so
// results reflect the file contents at first visit; use a new Graph (or
// Forget) to pick up changes. A Graph is not safe for concurrent use.
package graph

import (
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"slices"

	"github.com/gnana997/cjsexports/pkg/extractor"
	"github.com/gnana997/cjsexports/pkg/resolver"
)

// ErrInternal marks a graph lookup that found no entry where one must
// exist. It indicates a defect, not a problem with the analyzed code.
var ErrInternal = errors.New("internal graph error")

// FileAnalyzer produces the single-file result for a module.
type FileAnalyzer interface {
	ExtractFile(path string) (*extractor.FileResult, error)
}

// ModuleResolver maps a re-export specifier to a file.
type ModuleResolver interface {
	Resolve(specifier, fromDir string) (resolver.Resolution, error)
}

// Entry is one analyzed file.
type Entry struct {
	Path   string
	Result *extractor.FileResult
	// Edges are the resolved re-export targets, in source order and
	// without duplicates. Core modules are left out.
	Edges []string

	closed []string
	done   bool
}

// Names returns the closed export names, or nil while the entry is still
// waiting for its re-exports to be resolved.
func (e *Entry) Names() []string {
	if !e.done {
		return nil
	}
	return e.closed
}

// Graph is the cross-file resolver.
type Graph struct {
	analyzer FileAnalyzer
	resolver ModuleResolver
	logger   *slog.Logger
	entries  map[string]*Entry
}

// New creates an empty graph.
func New(analyzer FileAnalyzer, resolver ModuleResolver, logger *slog.Logger) *Graph {
	if logger == nil {
		logger = slog.Default()
	}
	return &Graph{
		analyzer: analyzer,
		resolver: resolver,
		logger:   logger,
		entries:  make(map[string]*Entry),
	}
}

// Identity returns the canonical identity of a file path: absolute and
// free of symlinks where the file exists.
func Identity(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	if real, err := filepath.EvalSymlinks(abs); err == nil {
		return real, nil
	}
	return abs, nil
}

// Exports computes the export names of file, following re-exports. The
// names are the file's own names first, then those pulled in through
// re-exports in breadth-first order.
//
// It fails when any visited file cannot be read or analyzed, or when a
// re-export specifier that is not a core module cannot be resolved.
func (g *Graph) Exports(file string) ([]string, error) {
	root, err := Identity(file)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve %s: %w", file, err)
	}

	deferred, err := g.visit(root)
	if err == nil {
		for _, entry := range deferred {
			if err = g.close(entry); err != nil {
				break
			}
		}
	}
	if err != nil {
		// Unclosed entries would be mistaken for finished ones later.
		for _, entry := range deferred {
			if !entry.done {
				delete(g.entries, entry.Path)
			}
		}
		return nil, err
	}

	entry, ok := g.entries[root]
	if !ok || !entry.done {
		return nil, fmt.Errorf("%w: no closed entry for %s", ErrInternal, root)
	}
	return slices.Clone(entry.closed), nil
}

// visit analyzes every file reachable from root that is not yet in the
// graph. It returns the new entries that have re-export edges.
func (g *Graph) visit(root string) ([]*Entry, error) {
	var deferred []*Entry
	stack := []string{root}

	for len(stack) > 0 {
		path := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if _, ok := g.entries[path]; ok {
			continue
		}

		result, err := g.analyzer.ExtractFile(path)
		if err != nil {
			return deferred, err
		}

		entry := &Entry{Path: path, Result: result}
		dir := filepath.Dir(path)
		seen := make(map[string]bool)
		for _, re := range result.Reexports {
			res, err := g.resolver.Resolve(re.Specifier, dir)
			if err != nil {
				return deferred, fmt.Errorf("failed to resolve re-export at %s:%s: %w", path, re.Loc, err)
			}
			if res.Core {
				g.logger.Debug("skipping core re-export", "file", path, "specifier", re.Specifier)
				continue
			}
			if seen[res.Path] {
				continue
			}
			seen[res.Path] = true
			entry.Edges = append(entry.Edges, res.Path)
			stack = append(stack, res.Path)
		}

		g.entries[path] = entry
		if len(entry.Edges) == 0 {
			entry.closed = result.Names
			entry.done = true
		} else {
			deferred = append(deferred, entry)
		}

		g.logger.Debug("visited module",
			"file", path,
			"names", len(result.Names),
			"edges", len(entry.Edges))
	}
	return deferred, nil
}

// close computes the closed name set of entry with a breadth-first walk
// over re-export edges. Each root keeps its own visited set, so cycles
// terminate and contribute every member's names exactly once.
func (g *Graph) close(entry *Entry) error {
	names := newNameSet(entry.Result.Names)
	seen := map[string]bool{entry.Path: true}
	queue := append([]string(nil), entry.Edges...)

	for len(queue) > 0 {
		path := queue[0]
		queue = queue[1:]
		if seen[path] {
			continue
		}
		seen[path] = true

		dep, ok := g.entries[path]
		if !ok {
			return fmt.Errorf("%w: %s re-exports %s, which was never visited", ErrInternal, entry.Path, path)
		}
		if dep.done {
			names.add(dep.closed...)
			continue
		}
		names.add(dep.Result.Names...)
		for _, next := range dep.Edges {
			if !seen[next] {
				queue = append(queue, next)
			}
		}
	}

	entry.closed = names.list
	entry.done = true
	return nil
}

// Entry returns the entry for an already visited file.
func (g *Graph) Entry(file string) (*Entry, bool) {
	path, err := Identity(file)
	if err != nil {
		return nil, false
	}
	entry, ok := g.entries[path]
	return entry, ok
}

// Reachable returns the files reachable from file through re-export
// edges, file included, in breadth-first order. file must have been
// passed to Exports first.
func (g *Graph) Reachable(file string) []string {
	root, err := Identity(file)
	if err != nil {
		return nil
	}
	if _, ok := g.entries[root]; !ok {
		return nil
	}

	var out []string
	seen := map[string]bool{root: true}
	queue := []string{root}
	for len(queue) > 0 {
		path := queue[0]
		queue = queue[1:]
		out = append(out, path)
		entry, ok := g.entries[path]
		if !ok {
			continue
		}
		for _, next := range entry.Edges {
			if !seen[next] {
				seen[next] = true
				queue = append(queue, next)
			}
		}
	}
	return out
}

// Len returns the number of analyzed files.
func (g *Graph) Len() int { return len(g.entries) }

// Forget drops every entry, so the next Exports call re-reads all files.
func (g *Graph) Forget() {
	g.entries = make(map[string]*Entry)
}

// nameSet is an insertion-ordered set of names.
type nameSet struct {
	seen map[string]bool
	list []string
}

func newNameSet(initial []string) *nameSet {
	s := &nameSet{seen: make(map[string]bool, len(initial))}
	s.add(initial...)
	return s
}

func (s *nameSet) add(names ...string) {
	for _, name := range names {
		if !s.seen[name] {
			s.seen[name] = true
			s.list = append(s.list, name)
		}
	}
}
