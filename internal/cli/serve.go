package cli

import (
	"github.com/spf13/cobra"

	"github.com/mnemos-dev/mnemos/internal/memtools"
)

func init() {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the MCP server over stdio",
		Long:  "Expose the memory store as MCP tools (memory_ingest, memory_recall,\nmemory_prune, memory_stats) over stdin/stdout.",
		Run:   runServe,
	}

	RootCmd.AddCommand(cmd)
}

func runServe(cmd *cobra.Command, args []string) {
	e, log, err := openEngine()
	if err != nil {
		exitErr("open engine", err)
	}
	defer e.Close()
	defer log.Sync()

	if err := memtools.ServeStdio(e); err != nil {
		exitErr("serve", err)
	}
}
