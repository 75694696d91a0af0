package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
)

const version = "0.1.0-dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// run executes one command and returns the process exit code.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	if len(args) < 1 {
		printUsage(stderr)
		return 2
	}

	command, rest := args[0], args[1:]
	switch command {
	case "exports":
		return runExports(rest, stdout, stderr)
	case "inspect":
		return runInspect(rest, stdout, stderr)
	case "check":
		return runCheck(rest, stdout, stderr)
	case "scan":
		return runScan(ctx, rest, stdout, stderr)
	case "watch":
		return runWatch(ctx, rest, stdout, stderr)
	case "serve":
		return runServe(rest, stderr)
	case "setup":
		return runSetup(rest, stdout, stderr)
	case "version":
		fmt.Fprintf(stdout, "cjsexports %s\n", version)
		return 0
	case "help", "-h", "--help":
		printUsage(stdout)
		return 0
	default:
		fmt.Fprintf(stderr, "unknown command: %s\n\n", command)
		printUsage(stderr)
		return 2
	}
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "Usage: cjsexports <command> [flags] [args]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Commands:")
	fmt.Fprintln(w, "  exports    Print the export names of one or more modules")
	fmt.Fprintln(w, "  inspect    Show a module's export sites, values and requires")
	fmt.Fprintln(w, "  check      Verify // @expected fixtures under a directory")
	fmt.Fprintln(w, "  scan       Compute exports for every module in a directory")
	fmt.Fprintln(w, "  watch      Scan, then recompute exports as files change")
	fmt.Fprintln(w, "  serve      Start the MCP server on stdio")
	fmt.Fprintln(w, "  setup      Register the MCP server in the workspace's client configs")
	fmt.Fprintln(w, "  version    Print version")
	fmt.Fprintln(w, "  help       Show this help message")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Run 'cjsexports <command> -h' for command flags.")
}
