package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	orderedmap "github.com/wk8/go-ordered-map/v2"

	mcpserver "github.com/gnana997/cjsexports/pkg/mcp"
)

// serverName is the key the MCP server is registered under.
const serverName = "cjsexports"

// clientConfig is a project-level MCP client configuration file.
type clientConfig struct {
	name    string // -target value
	clients string
	path    string // relative to the workspace root
	key     string // object holding the server entries
	marker  string // directory that selects this file by default; "" always does
	stdio   bool   // entries carry "type": "stdio"
}

var clientConfigs = []clientConfig{
	{name: "mcp", clients: "Claude Code and other .mcp.json clients", path: ".mcp.json", key: "mcpServers"},
	{name: "vscode", clients: "VS Code", path: filepath.Join(".vscode", "mcp.json"), key: "servers", marker: ".vscode", stdio: true},
	{name: "cursor", clients: "Cursor", path: filepath.Join(".cursor", "mcp.json"), key: "mcpServers", marker: ".cursor"},
}

// selectConfigs returns the named configs, or when names is empty every
// config whose marker directory exists under root.
func selectConfigs(root string, names []string) ([]clientConfig, error) {
	if len(names) == 0 {
		var out []clientConfig
		for _, c := range clientConfigs {
			if c.marker == "" {
				out = append(out, c)
				continue
			}
			if info, err := os.Stat(filepath.Join(root, c.marker)); err == nil && info.IsDir() {
				out = append(out, c)
			}
		}
		return out, nil
	}

	var out []clientConfig
	for _, name := range names {
		found := false
		for _, c := range clientConfigs {
			if c.name == name {
				out = append(out, c)
				found = true
				break
			}
		}
		if !found {
			return nil, fmt.Errorf("unknown target %q (want mcp, vscode or cursor)", name)
		}
	}
	return out, nil
}

// serverEntry is the JSON object that launches `cjsexports serve`.
type serverEntry struct {
	Type    string   `json:"type,omitempty"`
	Command string   `json:"command"`
	Args    []string `json:"args"`
}

func newServerEntry(c clientConfig, command, mcpLog string) serverEntry {
	entry := serverEntry{Command: command, Args: []string{"serve"}}
	if mcpLog != "" {
		entry.Args = append(entry.Args, "--mcp-log", mcpLog)
	}
	if c.stdio {
		entry.Type = "stdio"
	}
	return entry
}

type mergeResult int

const (
	entryAdded mergeResult = iota
	entryReplaced
	entryKept
)

// mergeServerEntry sets the cjsexports entry under key in the JSON document
// existing, which may be empty. Other keys keep their order. An existing
// entry is only overwritten when force is set; otherwise the document is
// returned unchanged with entryKept.
func mergeServerEntry(existing []byte, key string, entry serverEntry, force bool) ([]byte, mergeResult, error) {
	doc := orderedmap.New[string, json.RawMessage]()
	if len(bytes.TrimSpace(existing)) > 0 {
		if err := json.Unmarshal(existing, doc); err != nil {
			return nil, 0, fmt.Errorf("invalid JSON: %w", err)
		}
	}

	servers := orderedmap.New[string, json.RawMessage]()
	if raw, ok := doc.Get(key); ok {
		if err := json.Unmarshal(raw, servers); err != nil {
			return nil, 0, fmt.Errorf("%q is not an object: %w", key, err)
		}
	}

	result := entryAdded
	if _, ok := servers.Get(serverName); ok {
		if !force {
			return existing, entryKept, nil
		}
		result = entryReplaced
	}

	raw, err := json.Marshal(entry)
	if err != nil {
		return nil, 0, err
	}
	servers.Set(serverName, raw)
	if raw, err = json.Marshal(servers); err != nil {
		return nil, 0, err
	}
	doc.Set(key, raw)

	compact, err := json.Marshal(doc)
	if err != nil {
		return nil, 0, err
	}
	var out bytes.Buffer
	if err := json.Indent(&out, compact, "", "  "); err != nil {
		return nil, 0, err
	}
	out.WriteByte('\n')
	return out.Bytes(), result, nil
}

type setupOptions struct {
	command string
	mcpLog  string
	force   bool
	dryRun  bool
}

// writeClientConfig merges the server entry into root/c.path.
func writeClientConfig(root string, c clientConfig, opts setupOptions, w io.Writer) error {
	path := filepath.Join(root, c.path)
	existing, err := os.ReadFile(path)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}

	merged, result, err := mergeServerEntry(existing, c.key, newServerEntry(c, opts.command, opts.mcpLog), opts.force)
	if err != nil {
		return fmt.Errorf("%s: %w", c.path, err)
	}

	switch {
	case result == entryKept:
		fmt.Fprintf(w, "  = %-18s already registers %s (-force to replace)\n", c.path, serverName)
		return nil
	case opts.dryRun:
		fmt.Fprintf(w, "  %s  (%s)\n%s", c.path, c.clients, merged)
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create directory: %w", err)
	}
	if err := os.WriteFile(path, merged, 0o644); err != nil {
		return err
	}
	mark := "+"
	if result == entryReplaced {
		mark = "~"
	}
	fmt.Fprintf(w, "  %s %-18s %s\n", mark, c.path, c.clients)
	return nil
}

func runSetup(args []string, stdout, stderr io.Writer) int {
	set := flag.NewFlagSet("setup", flag.ContinueOnError)
	var targets stringList
	set.Var(&targets, "target", "config to write: mcp, vscode or cursor (repeatable; default: detected)")
	command := set.String("command", serverName, "command clients run to start the server")
	mcpLog := set.String("mcp-log", "", "register the server with --mcp-log <file>")
	force := set.Bool("force", false, "replace an existing cjsexports entry")
	dryRun := set.Bool("dry-run", false, "print the merged configs instead of writing them")
	set.Usage = func() {
		out := set.Output()
		fmt.Fprintln(out, "Usage: cjsexports setup [flags] [dir]")
		fmt.Fprintln(out)
		fmt.Fprintln(out, "Registers `cjsexports serve` in the workspace's MCP client configs.")
		fmt.Fprintln(out, ".mcp.json is always written; .vscode/mcp.json and .cursor/mcp.json")
		fmt.Fprintln(out, "only when their directory exists, unless -target names them.")
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

	opts := setupOptions{command: *command, force: *force, dryRun: *dryRun}
	if *mcpLog != "" {
		// Clients may start the server from another directory.
		abs, err := filepath.Abs(*mcpLog)
		if err != nil {
			fmt.Fprintf(stderr, "error: %v\n", err)
			return 1
		}
		opts.mcpLog = abs
	}

	configs, err := selectConfigs(root, targets)
	if err != nil {
		fmt.Fprintf(stderr, "error: %v\n", err)
		return 2
	}

	fmt.Fprintf(stdout, "Registering %s in %s\n", serverName, root)
	failed := false
	for _, c := range configs {
		if err := writeClientConfig(root, c, opts, stdout); err != nil {
			fmt.Fprintf(stderr, "error: %v\n", err)
			failed = true
		}
	}
	if failed {
		return 1
	}
	if !opts.dryRun {
		fmt.Fprintf(stdout, "Restart your MCP client to pick up the %s tools (%s).\n", serverName, strings.Join(mcpserver.ToolNames(), ", "))
	}
	return 0
}
