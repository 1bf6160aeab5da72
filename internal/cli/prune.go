package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mnemos-dev/mnemos/internal/engine"
)

func init() {
	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Remove low-value memories",
		Long: "Remove memories under a chosen strategy. Protected memories always\n" +
			"survive. A snapshot is taken before removal unless --no-backup is set;\n" +
			"use --dry-run to preview.",
		Run: runPrune,
	}

	cmd.Flags().StringP("strategy", "s", "safe", "Strategy: safe, intelligent, aggressive, smart, percentage")
	cmd.Flags().Float64P("percent", "p", 0, "Fraction of oldest memories to prune (percentage strategy)")
	cmd.Flags().Bool("dry-run", false, "Report without removing")
	cmd.Flags().Bool("archive", true, "Archive pruned memories instead of deleting")
	cmd.Flags().Bool("no-backup", false, "Skip the pre-removal snapshot")

	RootCmd.AddCommand(cmd)
}

func runPrune(cmd *cobra.Command, args []string) {
	strategy, _ := cmd.Flags().GetString("strategy")
	percent, _ := cmd.Flags().GetFloat64("percent")
	dryRun, _ := cmd.Flags().GetBool("dry-run")
	archive, _ := cmd.Flags().GetBool("archive")
	noBackup, _ := cmd.Flags().GetBool("no-backup")

	e, log, err := openEngine()
	if err != nil {
		exitErr("open engine", err)
	}
	defer e.Close()
	defer log.Sync()

	report, err := e.Prune(cmd.Context(), engine.PruneOptions{
		Strategy: strategy,
		Percent:  percent,
		DryRun:   dryRun,
		Archive:  archive,
		Backup:   !noBackup,
	})
	if err != nil {
		exitErr("prune", err)
	}

	b, _ := json.MarshalIndent(report, "", "  ")
	fmt.Println(string(b))
}
