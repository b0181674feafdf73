package mcp

import (
	"context"
	"database/sql"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/dkowalski/arbor/internal/config"
)

// Tool definitions

var planRunToolDef = mcp.NewTool("plan_run",
	mcp.WithDescription("Run a full taxonomy planning pass over an ingested source and persist the resulting virtual folder placements."),
	mcp.WithString("source_id",
		mcp.Required(),
		mcp.Description("Identifier of the ingested source to plan."),
	),
)

var treeGetToolDef = mcp.NewTool("tree_get",
	mcp.WithDescription("Return the virtual folder tree for a source."),
	mcp.WithString("source_id",
		mcp.Required(),
		mcp.Description("Identifier of the source whose tree to return."),
	),
	mcp.WithBoolean("top_level_only",
		mcp.Description("Return only the root folders with aggregate counts; useful for large collections."),
	),
)

var nodeChildrenToolDef = mcp.NewTool("node_children",
	mcp.WithDescription("Return the direct children of one node in a source's virtual tree."),
	mcp.WithString("source_id",
		mcp.Required(),
		mcp.Description("Identifier of the source."),
	),
	mcp.WithString("path",
		mcp.Required(),
		mcp.Description("Virtual path of the node, e.g. /Work/Invoices."),
	),
)

var treeStatsToolDef = mcp.NewTool("tree_stats",
	mcp.WithDescription("Return aggregate statistics for a source's virtual tree: file and folder counts, depth, and mean placement confidence."),
	mcp.WithString("source_id",
		mcp.Required(),
		mcp.Description("Identifier of the source."),
	),
)

var reoptimizeToolDef = mcp.NewTool("reoptimize",
	mcp.WithDescription("Re-run only the optimization step over a source's persisted placements, without regenerating the plan."),
	mcp.WithString("source_id",
		mcp.Required(),
		mcp.Description("Identifier of the source to re-optimize."),
	),
)

// toolEntry pairs a tool definition with a handler factory.
type toolEntry struct {
	def     mcp.Tool
	handler func(*Handlers) server.ToolHandlerFunc
}

// toolRegistry maps tool names to their definitions and handler factories.
var toolRegistry = map[string]toolEntry{
	"plan_run": {
		def:     planRunToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandlePlanRun },
	},
	"tree_get": {
		def:     treeGetToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleTreeGet },
	},
	"node_children": {
		def:     nodeChildrenToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleNodeChildren },
	},
	"tree_stats": {
		def:     treeStatsToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleTreeStats },
	},
	"reoptimize": {
		def:     reoptimizeToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleReoptimize },
	},
}

// AllToolNames returns a list of all valid tool names.
func AllToolNames() []string {
	names := make([]string, 0, len(toolRegistry))
	for name := range toolRegistry {
		names = append(names, name)
	}
	return names
}

// ValidateDisabledTools returns a list of unknown tool names from the given list.
func ValidateDisabledTools(names []string) []string {
	unknown := make([]string, 0)
	for _, name := range names {
		if _, ok := toolRegistry[name]; !ok {
			unknown = append(unknown, name)
		}
	}
	return unknown
}

// NewServer creates a new MCP server with Arbor tools registered.
// Tools listed in cfg.DisabledTools are excluded from registration.
func NewServer(db *sql.DB, cfg *config.Config, version string) *server.MCPServer {
	s := server.NewMCPServer(
		"arbor",
		version,
		server.WithToolCapabilities(true),
	)

	h := NewHandlers(db, cfg)

	disabled := make(map[string]bool)
	for _, name := range cfg.DisabledTools {
		disabled[name] = true
	}

	// Register tools (skip disabled)
	for name, entry := range toolRegistry {
		if disabled[name] {
			continue
		}
		s.AddTool(entry.def, entry.handler(h))
	}

	return s
}

// Run starts the MCP server using stdio transport.
func Run(db *sql.DB, cfg *config.Config, version string) error {
	s := NewServer(db, cfg, version)
	return server.ServeStdio(s)
}

// ToolHandlerFunc is the signature for tool handlers.
type ToolHandlerFunc func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error)
