package main

import (
	"fmt"
	"io"
	"path/filepath"
	"slices"
	"strings"

	"github.com/gnana997/cjsexports/pkg/cjs"
	"github.com/gnana997/cjsexports/pkg/extractor"
	"github.com/gnana997/cjsexports/pkg/indexer"
)

// printExports prints names one per line, under a path header when
// withHeaders is set.
func printExports(w io.Writer, records []*indexer.ExportRecord, withHeaders bool) {
	for i, record := range records {
		if !withHeaders {
			for _, name := range record.Names {
				fmt.Fprintln(w, name)
			}
			continue
		}
		if i > 0 {
			fmt.Fprintln(w)
		}
		fmt.Fprintf(w, "%s  (%d)\n", record.Path, len(record.Names))
		for _, name := range record.Names {
			fmt.Fprintf(w, "  %s\n", name)
		}
	}
}

func sortRecords(records []*indexer.ExportRecord) []*indexer.ExportRecord {
	slices.SortFunc(records, func(a, b *indexer.ExportRecord) int {
		return strings.Compare(a.Path, b.Path)
	})
	return records
}

// inspection is the inspect command's report.
type inspection struct {
	*extractor.FileResult
	Requires []extractor.RequireSite `json:"requires"`
	// Ignored are syntactic export writes that did not produce a name,
	// because the export object was shadowed there.
	Ignored []extractor.ExportSite `json:"ignored_sites,omitempty"`
}

func newInspection(result *extractor.FileResult, requires []extractor.RequireSite, sites []extractor.ExportSite) *inspection {
	report := &inspection{FileResult: result, Requires: requires}
	if report.Requires == nil {
		report.Requires = []extractor.RequireSite{}
	}
	for _, site := range sites {
		if site.Whole {
			continue
		}
		if _, ok := result.Exports[site.Name]; !ok {
			report.Ignored = append(report.Ignored, site)
		}
	}
	return report
}

// printInspection prints a human-readable report with aligned columns.
func printInspection(w io.Writer, r *inspection) {
	header := fmt.Sprintf("%s  [%s]", r.Path, r.Language)
	if r.ESModule {
		header += "  [__esModule]"
	}
	fmt.Fprintln(w, header)
	if r.SyntaxError != nil {
		fmt.Fprintf(w, "  Syntax error: %v\n", r.SyntaxError)
	}

	fmt.Fprintln(w)
	printExportTable(w, r.Names, r.Exports)

	fmt.Fprintln(w)
	if len(r.Reexports) == 0 {
		fmt.Fprintln(w, "Re-exports  (none)")
	} else {
		fmt.Fprintln(w, "Re-exports")
		for _, re := range r.Reexports {
			fmt.Fprintf(w, "  %-*s  %s\n", specWidth(r.Reexports), re.Specifier, re.Loc)
		}
	}

	fmt.Fprintln(w)
	if len(r.Requires) == 0 {
		fmt.Fprintln(w, "Requires  (none)")
	} else {
		fmt.Fprintln(w, "Requires")
		width := 0
		for _, site := range r.Requires {
			width = max(width, len(site.Specifier))
		}
		for _, site := range r.Requires {
			fmt.Fprintf(w, "  %-*s  %s\n", width, site.Specifier, site.Loc)
		}
	}

	if len(r.Ignored) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "Ignored sites  (export object shadowed)")
		for _, site := range r.Ignored {
			fmt.Fprintf(w, "  %s  %s\n", site.Name, site.Loc)
		}
	}
}

func specWidth(res []cjs.Reexport) int {
	width := 0
	for _, re := range res {
		width = max(width, len(re.Specifier))
	}
	return width
}

// printExportTable renders one row per recorded value, names in order.
func printExportTable(w io.Writer, names []string, exports map[string][]cjs.Value) {
	if len(names) == 0 {
		fmt.Fprintln(w, "Exports  (none)")
		return
	}
	fmt.Fprintln(w, "Exports")

	nameW, valueW := len("NAME"), len("VALUE")
	for _, name := range names {
		nameW = max(nameW, len(name))
		for _, v := range exports[name] {
			valueW = max(valueW, len(v.String()))
		}
	}

	fmt.Fprintf(w, "  %-*s  %-*s  %s\n", nameW, "NAME", valueW, "VALUE", "AT")
	fmt.Fprintf(w, "  %s\n", strings.Repeat("─", nameW+valueW+10))
	for _, name := range names {
		values := exports[name]
		if len(values) == 0 {
			fmt.Fprintf(w, "  %-*s  %-*s  %s\n", nameW, name, valueW, "—", "")
			continue
		}
		for i, v := range values {
			label := name
			if i > 0 {
				label = ""
			}
			fmt.Fprintf(w, "  %-*s  %-*s  %s\n", nameW, label, valueW, v.String(), v.Loc)
		}
	}
}

func printScanStats(w io.Writer, stats *indexer.ScanStats) {
	fmt.Fprintf(w, "Scanned %d files in %dms (%d workers, %.0f files/s)\n",
		stats.FilesDiscovered, stats.TotalTimeMs, stats.WorkerCount, stats.FilesPerSecond)
	fmt.Fprintf(w, "  indexed  %d\n", stats.FilesIndexed)
	fmt.Fprintf(w, "  failed   %d\n", stats.FilesFailed)
	fmt.Fprintf(w, "  names    %d\n", stats.NamesFound)
	fmt.Fprintf(w, "  re-exporting modules  %d\n", stats.ModulesWithReexports)
	if stats.Cancelled {
		fmt.Fprintln(w, "  (cancelled)")
	}
	for _, fe := range stats.Errors {
		fmt.Fprintf(w, "  ! %s: %s\n", fe.FilePath, fe.Message)
	}
}

func printWatchEvent(w io.Writer, ev indexer.WatchEvent) {
	fmt.Fprintf(w, "[%s] %s %s\n", ev.Timestamp.Format("15:04:05"), ev.Op, filepath.Base(ev.FilePath))
	for _, record := range ev.Affected {
		fmt.Fprintf(w, "  %s: %s\n", record.Path, strings.Join(record.Names, " "))
	}
	for _, fe := range ev.Errors {
		fmt.Fprintf(w, "  ! %s: %s\n", fe.FilePath, fe.Message)
	}
}
