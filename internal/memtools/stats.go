package memtools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/mnemos-dev/mnemos/internal/engine"
)

// StatsTool handles the memory_stats MCP tool.
type StatsTool struct {
	engine *engine.Engine
}

// NewStatsTool creates a StatsTool over the given engine.
func NewStatsTool(e *engine.Engine) *StatsTool {
	return &StatsTool{engine: e}
}

// Definition returns the MCP tool definition for memory_stats.
func (t *StatsTool) Definition() mcp.Tool {
	return mcp.NewTool("memory_stats",
		mcp.WithDescription(
			"Report memory-store statistics: counts by type, entities, sessions, archive size, "+
				"queue depth, and recall latency.",
		),
	)
}

// Handle processes the memory_stats tool call.
func (t *StatsTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	stats, err := t.engine.Stats(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("stats failed: %v", err)), nil
	}

	b, _ := json.MarshalIndent(stats, "", "  ")
	return mcp.NewToolResultText(string(b)), nil
}
