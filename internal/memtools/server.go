package memtools

import (
	"github.com/mark3labs/mcp-go/server"

	"github.com/mnemos-dev/mnemos/internal/engine"
)

// Version is the server version reported during the MCP handshake.
const Version = "0.3.0"

const serverInstructions = `mnemos is a persistent memory store for AI assistants.

Use memory_ingest to save observations worth remembering across sessions:
user preferences, decisions, facts about people and systems. Duplicate and
near-duplicate content converges automatically, so ingest freely.

Use memory_recall before answering questions that may depend on earlier
context. Recall is fast and bounded; an empty result just means nothing
relevant is stored.

Use memory_prune periodically (dry_run first) to keep the store lean, and
memory_stats to inspect its health.`

// NewServer builds the MCP server with all memory tools registered.
func NewServer(e *engine.Engine) *server.MCPServer {
	s := server.NewMCPServer(
		"mnemos",
		Version,
		server.WithToolCapabilities(true),
		server.WithRecovery(),
		server.WithInstructions(serverInstructions),
	)

	ingest := NewIngestTool(e)
	s.AddTool(ingest.Definition(), ingest.Handle)

	recallTool := NewRecallTool(e)
	s.AddTool(recallTool.Definition(), recallTool.Handle)

	pruneTool := NewPruneTool(e)
	s.AddTool(pruneTool.Definition(), pruneTool.Handle)

	statsTool := NewStatsTool(e)
	s.AddTool(statsTool.Definition(), statsTool.Handle)

	return s
}

// ServeStdio runs the server over stdin/stdout until the client closes
// the stream.
func ServeStdio(e *engine.Engine) error {
	return server.ServeStdio(NewServer(e))
}
