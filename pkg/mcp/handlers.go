package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/gnana997/cjsexports/pkg/extractor"
	"github.com/gnana997/cjsexports/pkg/indexer"
	"github.com/gnana997/cjsexports/pkg/util"
)

// exportsResponse is the get_exports payload.
type exportsResponse struct {
	Path         string   `json:"path"`
	Names        []string `json:"names"`
	Own          []string `json:"own"`
	Reexports    []string `json:"reexports,omitempty"`
	Dependencies []string `json:"dependencies,omitempty"`
	ESModule     bool     `json:"es_module"`
}

type scanResponse struct {
	Stats   *indexer.ScanStats  `json:"stats"`
	Modules map[string][]string `json:"modules,omitempty"`
}

type statsResponse struct {
	Index indexer.ExportIndexStats `json:"index"`
	Cache util.SourceCacheStats    `json:"cache"`
}

func (s *Server) handleGetExports(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	var record *indexer.ExportRecord
	if req.GetBool("refresh", false) {
		record, err = s.analyzer.Compute(path)
	} else {
		record, err = s.analyzer.Exports(path)
	}
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to compute exports for %s: %v", path, err)), nil
	}

	return jsonResult(exportsResponse{
		Path:         record.Path,
		Names:        record.Names,
		Own:          record.Own,
		Reexports:    record.Reexports,
		Dependencies: record.Dependencies,
		ESModule:     record.ESModule,
	})
}

func (s *Server) handleInspectExports(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	result, err := s.analyzer.Extractor().ExtractFile(absPath(path))
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to analyze %s: %v", path, err)), nil
	}
	return jsonResult(result)
}

func (s *Server) handleListRequires(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	sites, err := s.analyzer.Extractor().ListRequires(absPath(path))
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to list requires in %s: %v", path, err)), nil
	}
	if sites == nil {
		sites = []extractor.RequireSite{}
	}
	return jsonResult(sites)
}

func (s *Server) handleScanExports(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	root, err := req.RequireString("root")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	options := indexer.DefaultScanOptions()
	if include := req.GetStringSlice("include", nil); len(include) > 0 {
		options.Include = include
	}
	if exclude := req.GetStringSlice("exclude", nil); len(exclude) > 0 {
		options.Exclude = exclude
	}
	options.Workers = req.GetInt("workers", 0)

	// Progress is reported from a single goroutine, once per file.
	var files []string
	stats, err := s.scanner.ScanWorkspace(ctx, root, options, func(_, _ int, file string) {
		files = append(files, file)
	})
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("scan failed: %v", err)), nil
	}

	resp := scanResponse{Stats: stats}
	if req.GetBool("include_names", false) {
		resp.Modules = make(map[string][]string, len(files))
		for _, file := range files {
			if record, err := s.analyzer.Exports(file); err == nil {
				resp.Modules[record.Path] = record.Names
			}
		}
	}
	return jsonResult(resp)
}

func (s *Server) handleGetIndexStats(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return jsonResult(statsResponse{
		Index: s.analyzer.Index().GetStats(),
		Cache: s.analyzer.CacheStats(),
	})
}

// jsonResult marshals v as the text content of a tool result.
func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal result: %w", err)
	}
	return mcp.NewToolResultText(string(data)), nil
}

func absPath(path string) string {
	if abs, err := filepath.Abs(path); err == nil {
		return abs
	}
	return path
}
