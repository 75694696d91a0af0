package mcp

import "github.com/mark3labs/mcp-go/mcp"

// ToolNames lists the tools the server registers, in registration order.
func ToolNames() []string {
	tools := []mcp.Tool{getExportsTool(), inspectExportsTool(), listRequiresTool(), scanExportsTool(), getIndexStatsTool()}
	names := make([]string, len(tools))
	for i, tool := range tools {
		names[i] = tool.Name
	}
	return names
}

func getExportsTool() mcp.Tool {
	return mcp.NewTool("get_exports",
		mcp.WithDescription("Returns the statically detectable CommonJS export names of a module, following module.exports = require(...) re-exports across files. Own names come first."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Path to the module file")),
		mcp.WithBoolean("refresh", mcp.Description("Recompute even when a cached result exists")),
		mcp.WithReadOnlyHintAnnotation(true),
	)
}

func inspectExportsTool() mcp.Tool {
	return mcp.NewTool("inspect_exports",
		mcp.WithDescription("Returns the single-file analysis of a module: every export name with its assignment locations and literal values, re-export specifiers, and the __esModule interop flag."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Path to the module file")),
		mcp.WithReadOnlyHintAnnotation(true),
	)
}

func listRequiresTool() mcp.Tool {
	return mcp.NewTool("list_requires",
		mcp.WithDescription("Lists every static require('<string>') call in a module with its location."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Path to the module file")),
		mcp.WithReadOnlyHintAnnotation(true),
	)
}

func scanExportsTool() mcp.Tool {
	return mcp.NewTool("scan_exports",
		mcp.WithDescription("Computes exports for every module under a directory and caches them. Returns scan statistics and, optionally, the per-module names."),
		mcp.WithString("root", mcp.Required(), mcp.Description("Directory to scan")),
		mcp.WithArray("include", mcp.WithStringItems(), mcp.Description("Doublestar include patterns relative to root")),
		mcp.WithArray("exclude", mcp.WithStringItems(), mcp.Description("Doublestar exclude patterns relative to root")),
		mcp.WithNumber("workers", mcp.Description("Concurrent analyses (0 = auto)")),
		mcp.WithBoolean("include_names", mcp.Description("Include each module's export names in the response")),
	)
}

func getIndexStatsTool() mcp.Tool {
	return mcp.NewTool("get_index_stats",
		mcp.WithDescription("Returns export index and source cache statistics."),
		mcp.WithReadOnlyHintAnnotation(true),
	)
}
