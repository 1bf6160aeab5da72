package memtools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/mnemos-dev/mnemos/internal/engine"
	"github.com/mnemos-dev/mnemos/internal/model"
	"github.com/mnemos-dev/mnemos/internal/recall"
)

// RecallTool handles the memory_recall MCP tool.
type RecallTool struct {
	engine *engine.Engine
}

// NewRecallTool creates a RecallTool over the given engine.
func NewRecallTool(e *engine.Engine) *RecallTool {
	return &RecallTool{engine: e}
}

// Definition returns the MCP tool definition for memory_recall.
func (t *RecallTool) Definition() mcp.Tool {
	return mcp.NewTool("memory_recall",
		mcp.WithDescription(
			"Retrieve relevant memories. Keyword, entity and recency strategies run concurrently "+
				"and merge into one ranking; results arrive within a fixed latency budget.",
		),
		mcp.WithString("query",
			mcp.Description("Free-text query matched against memory content"),
		),
		mcp.WithArray("entities",
			mcp.Description("Entity names to match through the mention graph"),
		),
		mcp.WithString("type",
			mcp.Description("Restrict to one memory type"),
		),
		mcp.WithString("session_id",
			mcp.Description("Restrict to one session"),
		),
		mcp.WithNumber("limit",
			mcp.Description("Maximum memories to return (default 10)"),
		),
	)
}

// Handle processes the memory_recall tool call.
func (t *RecallTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	q := recall.Query{
		Text:      req.GetString("query", ""),
		Entities:  stringsArg(req, "entities"),
		SessionID: req.GetString("session_id", ""),
		Limit:     intArg(req, "limit", 10),
	}
	if typeHint := req.GetString("type", ""); typeHint != "" {
		mt, ok := model.ParseMemoryType(typeHint)
		if !ok {
			return mcp.NewToolResultError(fmt.Sprintf("unknown memory type %q", typeHint)), nil
		}
		q.Types = []model.MemoryType{mt}
	}

	res, err := t.engine.Recall(ctx, q)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("recall failed: %v", err)), nil
	}

	b, _ := json.Marshal(res)
	return mcp.NewToolResultText(string(b)), nil
}
