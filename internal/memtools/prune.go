package memtools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/mnemos-dev/mnemos/internal/engine"
)

// PruneTool handles the memory_prune MCP tool.
type PruneTool struct {
	engine *engine.Engine
}

// NewPruneTool creates a PruneTool over the given engine.
func NewPruneTool(e *engine.Engine) *PruneTool {
	return &PruneTool{engine: e}
}

// Definition returns the MCP tool definition for memory_prune.
func (t *PruneTool) Definition() mcp.Tool {
	return mcp.NewTool("memory_prune",
		mcp.WithDescription(
			"Remove low-value memories under a chosen strategy. Protected memories "+
				"(high importance, frequently or recently accessed) always survive. "+
				"Use dry_run first to preview.",
		),
		mcp.WithString("strategy",
			mcp.Description("safe (expired only, default), intelligent, aggressive, smart, percentage"),
		),
		mcp.WithNumber("percent",
			mcp.Description("For the percentage strategy: fraction of oldest memories to prune, in (0,1]"),
		),
		mcp.WithBoolean("dry_run",
			mcp.Description("Report what would be pruned without removing anything"),
		),
		mcp.WithBoolean("archive",
			mcp.Description("Move pruned memories to the archive instead of deleting (default true)"),
		),
		mcp.WithBoolean("backup",
			mcp.Description("Snapshot the database before removal (default true)"),
		),
	)
}

// Handle processes the memory_prune tool call.
func (t *PruneTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	report, err := t.engine.Prune(ctx, engine.PruneOptions{
		Strategy: req.GetString("strategy", "safe"),
		Percent:  floatArg(req, "percent", 0),
		DryRun:   boolArg(req, "dry_run", false),
		Archive:  boolArg(req, "archive", true),
		Backup:   boolArg(req, "backup", true),
	})
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("prune failed: %v", err)), nil
	}

	b, _ := json.Marshal(report)
	return mcp.NewToolResultText(string(b)), nil
}
