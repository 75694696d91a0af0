package mcp

import (
	"log/slog"

	"github.com/mark3labs/mcp-go/server"

	"github.com/gnana997/cjsexports/pkg/indexer"
	"github.com/gnana997/cjsexports/pkg/mcplog"
)

const serverVersion = "0.1.0-dev"

// Server implements the MCP server for cjsexports, exposing export
// computation and inspection tools.
type Server struct {
	mcpServer *server.MCPServer
	analyzer  *indexer.Analyzer
	scanner   *indexer.WorkspaceScanner
	callLog   *mcplog.Logger // nil disables tool-call logging
	logger    *slog.Logger
}

// NewServer creates a new MCP server backed by analyzer. callLog may be nil.
func NewServer(analyzer *indexer.Analyzer, callLog *mcplog.Logger, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		analyzer: analyzer,
		scanner:  indexer.NewWorkspaceScanner(analyzer, logger),
		callLog:  callLog,
		logger:   logger,
	}

	opts := []server.ServerOption{
		server.WithToolCapabilities(false),
		server.WithRecovery(),
	}
	if callLog != nil {
		opts = append(opts, server.WithToolHandlerMiddleware(s.loggingMiddleware()))
	}

	s.mcpServer = server.NewMCPServer("cjsexports", serverVersion, opts...)

	s.mcpServer.AddTools(
		server.ServerTool{Tool: getExportsTool(), Handler: s.handleGetExports},
		server.ServerTool{Tool: inspectExportsTool(), Handler: s.handleInspectExports},
		server.ServerTool{Tool: listRequiresTool(), Handler: s.handleListRequires},
		server.ServerTool{Tool: scanExportsTool(), Handler: s.handleScanExports},
		server.ServerTool{Tool: getIndexStatsTool(), Handler: s.handleGetIndexStats},
	)

	return s
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	s.logger.Info("MCP server listening on stdio", "version", serverVersion)
	return server.ServeStdio(s.mcpServer)
}
