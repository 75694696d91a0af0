package extractor

import (
	"fmt"

	"github.com/gnana997/cjsexports/pkg/jsast"
	"github.com/gnana997/cjsexports/pkg/parser"
	"github.com/gnana997/cjsexports/pkg/parser/queries"
)

// ListRequires returns every static require() call in path, in source
// order. Calls with a non-literal argument are not listed.
func (e *Extractor) ListRequires(path string) ([]RequireSite, error) {
	matches, err := e.runQuery(path, queries.QueryTypeRequires)
	if err != nil {
		return nil, err
	}

	sites := make([]RequireSite, 0, len(matches))
	for _, m := range matches {
		source, ok := m.Capture("require.source")
		if !ok {
			continue
		}
		specifier, ok := jsast.UnquoteString(source.Text)
		if !ok {
			continue
		}
		call, _ := m.Capture("require.call")
		sites = append(sites, RequireSite{
			Specifier: specifier,
			Loc:       captureLoc(call),
		})
	}
	return sites, nil
}

// Candidates returns the places in path that syntactically write to the
// export object, whether or not the analyzer accepts them. Comparing them
// with the names in a FileResult shows which sites were rejected because
// of shadowing or dynamic keys.
func (e *Extractor) Candidates(path string) ([]ExportSite, error) {
	matches, err := e.runQuery(path, queries.QueryTypeExportSites)
	if err != nil {
		return nil, err
	}

	sites := make([]ExportSite, 0, len(matches))
	for _, m := range matches {
		if whole, ok := m.Capture("export.whole"); ok {
			sites = append(sites, ExportSite{Loc: captureLoc(whole), Whole: true})
			continue
		}
		site, ok := m.Capture("export.site")
		if !ok {
			continue
		}
		name, ok := m.Capture("export.name")
		if !ok {
			continue
		}
		text := name.Text
		if unquoted, ok := jsast.UnquoteString(text); ok {
			text = unquoted
		}
		sites = append(sites, ExportSite{Name: text, Loc: captureLoc(site)})
	}
	return sites, nil
}

// runQuery parses path and runs one query over it. JSON and native
// modules have no call sites.
func (e *Extractor) runQuery(path string, qtype queries.QueryType) ([]queries.QueryMatch, error) {
	lang := parser.DetectLanguage(path)
	if !lang.HasGrammar() {
		return nil, nil
	}
	isTSX := parser.IsTSXFile(path)

	source, err := e.cache.Read(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	tree, err := e.parserManager.Parse(source, lang, isTSX)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	defer tree.Close()

	query, err := e.queryManager.GetQuery(lang, isTSX, qtype)
	if err != nil {
		return nil, fmt.Errorf("failed to get %s query for %s: %w", qtype, lang, err)
	}
	matches, err := e.queryManager.ExecuteQuery(tree, query, source)
	if err != nil {
		return nil, fmt.Errorf("failed to execute %s query: %w", qtype, err)
	}
	return matches, nil
}

func captureLoc(c queries.QueryCapture) jsast.Loc {
	return jsast.Loc{Line: int(c.Location.StartLine), Column: int(c.Location.StartColumn)}
}
