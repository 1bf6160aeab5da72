package memtools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/mnemos-dev/mnemos/internal/dedup"
	"github.com/mnemos-dev/mnemos/internal/engine"
	"github.com/mnemos-dev/mnemos/internal/model"
)

// IngestTool handles the memory_ingest MCP tool.
type IngestTool struct {
	engine *engine.Engine
}

// NewIngestTool creates an IngestTool over the given engine.
func NewIngestTool(e *engine.Engine) *IngestTool {
	return &IngestTool{engine: e}
}

// Definition returns the MCP tool definition for memory_ingest.
func (t *IngestTool) Definition() mcp.Tool {
	return mcp.NewTool("memory_ingest",
		mcp.WithDescription(
			"Store an observation in persistent memory. Duplicates are detected automatically: "+
				"identical or near-identical content converges onto the existing memory instead of creating a new one.",
		),
		mcp.WithString("content",
			mcp.Required(),
			mcp.Description("The fact or observation to remember"),
		),
		mcp.WithString("type",
			mcp.Description("Memory type: episodic, semantic, procedural, working, sensory, preference (default: episodic)"),
		),
		mcp.WithString("source",
			mcp.Description("Where the content came from (e.g. conversation, tool, user_directive)"),
		),
		mcp.WithNumber("importance",
			mcp.Description("Importance in [0,1]; affects recall ranking and prune survival"),
		),
		mcp.WithNumber("confidence",
			mcp.Description("Confidence in [0,1] (default 0.5)"),
		),
		mcp.WithString("session_id",
			mcp.Description("Session to associate the memory with"),
		),
		mcp.WithString("user_id",
			mcp.Description("User the memory belongs to"),
		),
		mcp.WithBoolean("async",
			mcp.Description("Queue the write instead of waiting for it (default false)"),
		),
	)
}

// Handle processes the memory_ingest tool call.
func (t *IngestTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	content := req.GetString("content", "")
	if content == "" {
		return mcp.NewToolResultError("'content' is required"), nil
	}

	c := dedup.Candidate{
		Content:    content,
		TypeHint:   req.GetString("type", ""),
		SourceType: req.GetString("source", "conversation"),
		Importance: floatArg(req, "importance", 0.5),
		Confidence: floatArg(req, "confidence", 0.5),
		SessionID:  req.GetString("session_id", ""),
		UserID:     req.GetString("user_id", ""),
	}

	if boolArg(req, "async", false) {
		if err := t.engine.IngestAsync(c); err != nil {
			if errors.Is(err, model.ErrQueueFull) {
				return mcp.NewToolResultError("ingestion queue is full, retry later"), nil
			}
			return mcp.NewToolResultError(fmt.Sprintf("queue ingest: %v", err)), nil
		}
		return mcp.NewToolResultText(`{"queued": true}`), nil
	}

	res, err := t.engine.Ingest(ctx, c)
	if err != nil {
		if errors.Is(err, model.ErrStoreBusy) {
			return mcp.NewToolResultError("store is busy, retry with async=true"), nil
		}
		var verr *model.ValidationError
		if errors.As(err, &verr) {
			return mcp.NewToolResultError(verr.Error()), nil
		}
		return mcp.NewToolResultError(fmt.Sprintf("ingest failed: %v", err)), nil
	}

	b, _ := json.Marshal(res)
	return mcp.NewToolResultText(string(b)), nil
}
