package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"path/filepath"

	"github.com/gnana997/cjsexports/pkg/fixture"
	"github.com/gnana997/cjsexports/pkg/indexer"
	mcpserver "github.com/gnana997/cjsexports/pkg/mcp"
	"github.com/gnana997/cjsexports/pkg/mcplog"
)

// parseFlags parses args into set, reporting errors on stderr. It returns
// false when the command should stop with exit code 2.
func parseFlags(set *flag.FlagSet, args []string, stderr io.Writer) bool {
	set.SetOutput(stderr)
	return set.Parse(args) == nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func runExports(args []string, stdout, stderr io.Writer) int {
	set := flag.NewFlagSet("exports", flag.ContinueOnError)
	common := addCommonFlags(set)
	asJSON := set.Bool("json", false, "print full records as JSON")
	if !parseFlags(set, args, stderr) {
		return 2
	}
	if set.NArg() == 0 {
		fmt.Fprintln(stderr, "usage: cjsexports exports [flags] <file>...")
		return 2
	}

	cfg, logger, err := common.load(stderr)
	if err != nil {
		fmt.Fprintf(stderr, "error: %v\n", err)
		return 1
	}
	a := newApp(cfg, logger)
	defer a.Close()

	code := 0
	var records []*indexer.ExportRecord
	for _, file := range set.Args() {
		record, err := a.analyzer.Exports(file)
		if err != nil {
			fmt.Fprintf(stderr, "error: %s: %v\n", file, err)
			code = 1
			continue
		}
		records = append(records, record)
	}

	if *asJSON {
		if err := writeJSON(stdout, records); err != nil {
			fmt.Fprintf(stderr, "error: %v\n", err)
			return 1
		}
		return code
	}
	printExports(stdout, records, set.NArg() > 1)
	return code
}

func runInspect(args []string, stdout, stderr io.Writer) int {
	set := flag.NewFlagSet("inspect", flag.ContinueOnError)
	common := addCommonFlags(set)
	asJSON := set.Bool("json", false, "print the analysis as JSON")
	if !parseFlags(set, args, stderr) {
		return 2
	}
	if set.NArg() != 1 {
		fmt.Fprintln(stderr, "usage: cjsexports inspect [flags] <file>")
		return 2
	}

	cfg, logger, err := common.load(stderr)
	if err != nil {
		fmt.Fprintf(stderr, "error: %v\n", err)
		return 1
	}
	a := newApp(cfg, logger)
	defer a.Close()

	path, err := filepath.Abs(set.Arg(0))
	if err != nil {
		fmt.Fprintf(stderr, "error: %v\n", err)
		return 1
	}
	ex := a.analyzer.Extractor()
	result, err := ex.ExtractFile(path)
	if err != nil {
		fmt.Fprintf(stderr, "error: %v\n", err)
		return 1
	}
	requires, err := ex.ListRequires(path)
	if err != nil {
		logger.Warn("Failed to list requires", "file", path, "error", err)
	}
	sites, err := ex.Candidates(path)
	if err != nil {
		logger.Warn("Failed to list export sites", "file", path, "error", err)
	}

	report := newInspection(result, requires, sites)
	if *asJSON {
		if err := writeJSON(stdout, report); err != nil {
			fmt.Fprintf(stderr, "error: %v\n", err)
			return 1
		}
		return 0
	}
	printInspection(stdout, report)
	return 0
}

func runCheck(args []string, stdout, stderr io.Writer) int {
	set := flag.NewFlagSet("check", flag.ContinueOnError)
	common := addCommonFlags(set)
	pattern := set.String("pattern", fixture.DefaultPattern, "fixture file pattern, relative to dir")
	verbose := set.Bool("v", false, "list passing fixtures too")
	if !parseFlags(set, args, stderr) {
		return 2
	}
	dir := "."
	if set.NArg() > 0 {
		dir = set.Arg(0)
	}

	cfg, logger, err := common.load(stderr)
	if err != nil {
		fmt.Fprintf(stderr, "error: %v\n", err)
		return 1
	}

	paths, err := fixture.Discover(dir, *pattern)
	if err != nil {
		fmt.Fprintf(stderr, "error: %v\n", err)
		return 1
	}
	if len(paths) == 0 {
		fmt.Fprintf(stderr, "no fixtures matching %s in %s\n", *pattern, dir)
		return 1
	}

	a := newApp(cfg, logger)
	defer a.Close()

	failed := 0
	for _, path := range paths {
		if err := checkFixture(a, path); err != nil {
			failed++
			fmt.Fprintf(stdout, "FAIL %s\n", path)
			var mismatch *fixture.Mismatch
			if errors.As(err, &mismatch) {
				fmt.Fprintf(stdout, "     expected: %v\n     actual:   %v\n", mismatch.Expected, mismatch.Actual)
			} else {
				fmt.Fprintf(stdout, "     %v\n", err)
			}
			continue
		}
		if *verbose {
			fmt.Fprintf(stdout, "ok   %s\n", path)
		}
	}

	fmt.Fprintf(stdout, "%d fixtures, %d passed, %d failed\n", len(paths), len(paths)-failed, failed)
	if failed > 0 {
		return 1
	}
	return 0
}

func checkFixture(a *app, path string) error {
	f, err := fixture.Load(path)
	if err != nil {
		return err
	}
	record, err := a.analyzer.Compute(path)
	if err != nil {
		return err
	}
	return f.Check(record.Names)
}

// scanFlags are shared by scan and watch.
type scanFlags struct {
	include stringList
	exclude stringList
	workers int
}

func addScanFlags(set *flag.FlagSet) *scanFlags {
	s := &scanFlags{}
	set.Var(&s.include, "include", "include pattern (repeatable, replaces the defaults)")
	set.Var(&s.exclude, "exclude", "exclude pattern (repeatable, replaces the defaults)")
	set.IntVar(&s.workers, "workers", 0, "concurrent analyses (0 = auto)")
	return s
}

func (s *scanFlags) options(cfg *ProjectConfig) indexer.ScanOptions {
	opts := cfg.scanOptions()
	if len(s.include) > 0 {
		opts.Include = s.include
	}
	if len(s.exclude) > 0 {
		opts.Exclude = s.exclude
	}
	if s.workers > 0 {
		opts.Workers = s.workers
	}
	return opts
}

func runScan(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	set := flag.NewFlagSet("scan", flag.ContinueOnError)
	common := addCommonFlags(set)
	scan := addScanFlags(set)
	asJSON := set.Bool("json", false, "print stats and records as JSON")
	names := set.Bool("names", false, "print every module's export names")
	if !parseFlags(set, args, stderr) {
		return 2
	}
	root := "."
	if set.NArg() > 0 {
		root = set.Arg(0)
	}

	cfg, logger, err := common.load(stderr)
	if err != nil {
		fmt.Fprintf(stderr, "error: %v\n", err)
		return 1
	}
	a := newApp(cfg, logger)
	defer a.Close()

	scanner := indexer.NewWorkspaceScanner(a.analyzer, logger)
	stats, err := scanner.ScanWorkspace(ctx, root, scan.options(cfg), nil)
	if err != nil {
		fmt.Fprintf(stderr, "error: %v\n", err)
		return 1
	}

	records := a.analyzer.Index().All()
	if *asJSON {
		out := struct {
			Stats   *indexer.ScanStats      `json:"stats"`
			Records []*indexer.ExportRecord `json:"records"`
		}{stats, sortRecords(records)}
		if err := writeJSON(stdout, out); err != nil {
			fmt.Fprintf(stderr, "error: %v\n", err)
			return 1
		}
	} else {
		if *names {
			printExports(stdout, sortRecords(records), true)
		}
		printScanStats(stdout, stats)
	}

	if stats.Cancelled {
		return 130
	}
	return 0
}

func runWatch(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	set := flag.NewFlagSet("watch", flag.ContinueOnError)
	common := addCommonFlags(set)
	scan := addScanFlags(set)
	debounce := set.Int("debounce", 0, "debounce delay in milliseconds")
	set.Usage = func() {
		out := set.Output()
		fmt.Fprintln(out, "Usage: cjsexports watch [flags] [dir]")
		fmt.Fprintln(out)
		fmt.Fprintln(out, "Old contents of edited files stay mapped until the watch ends and count")
		fmt.Fprintln(out, "against cache.max_memory_mb; past that limit sources are read from disk.")
		fmt.Fprintln(out)
		set.PrintDefaults()
	}
	if !parseFlags(set, args, stderr) {
		return 2
	}
	root := "."
	if set.NArg() > 0 {
		root = set.Arg(0)
	}

	cfg, logger, err := common.load(stderr)
	if err != nil {
		fmt.Fprintf(stderr, "error: %v\n", err)
		return 1
	}
	a := newApp(cfg, logger)
	defer a.Close()

	stats, err := indexer.NewWorkspaceScanner(a.analyzer, logger).ScanWorkspace(ctx, root, scan.options(cfg), nil)
	if err != nil {
		fmt.Fprintf(stderr, "error: %v\n", err)
		return 1
	}
	printScanStats(stdout, stats)
	if stats.Cancelled {
		return 130
	}

	opts := cfg.watchOptions()
	if *debounce > 0 {
		opts.DebounceMs = *debounce
	}
	watcher, err := indexer.NewFileWatcher(a.analyzer, opts, logger)
	if err != nil {
		fmt.Fprintf(stderr, "error: %v\n", err)
		return 1
	}
	events := make(chan indexer.WatchEvent, 16)
	watcher.OnChange(func(ev indexer.WatchEvent) {
		select {
		case events <- ev:
		case <-ctx.Done():
		}
	})
	if err := watcher.Start(root); err != nil {
		fmt.Fprintf(stderr, "error: %v\n", err)
		return 1
	}
	defer watcher.Stop()

	fmt.Fprintf(stdout, "watching %s (ctrl-c to stop)\n", root)
	for {
		select {
		case <-ctx.Done():
			return 0
		case ev := <-events:
			printWatchEvent(stdout, ev)
		}
	}
}

func runServe(args []string, stderr io.Writer) int {
	set := flag.NewFlagSet("serve", flag.ContinueOnError)
	common := addCommonFlags(set)
	mcpLog := set.String("mcp-log", "", "append a JSONL entry per tool call to this file")
	if !parseFlags(set, args, stderr) {
		return 2
	}

	cfg, logger, err := common.load(stderr)
	if err != nil {
		fmt.Fprintf(stderr, "error: %v\n", err)
		return 1
	}
	if *mcpLog != "" {
		cfg.MCP.LogFile = *mcpLog
	}

	callLog, err := mcplog.NewLogger(cfg.MCP.LogFile)
	if err != nil {
		fmt.Fprintf(stderr, "error: %v\n", err)
		return 1
	}
	if callLog != nil {
		defer callLog.Close()
	}

	a := newApp(cfg, logger)
	defer a.Close()

	srv := mcpserver.NewServer(a.analyzer, callLog, logger)
	if err := srv.ServeStdio(); err != nil {
		fmt.Fprintf(stderr, "server error: %v\n", err)
		return 1
	}
	return 0
}
