// Package cli implements the mnemos CLI commands.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/mnemos-dev/mnemos/internal/config"
	"github.com/mnemos-dev/mnemos/internal/engine"
	"github.com/mnemos-dev/mnemos/internal/logger"
)

var (
	configPath string
	dbPath     string
	debugFlag  bool
)

// RootCmd is the top-level command.
var RootCmd = &cobra.Command{
	Use:   "mnemos",
	Short: "Persistent memory for AI assistants",
	Long: "mnemos is an embedded memory store for AI assistants: content-addressed\n" +
		"deduplication, classification-driven retention, multi-strategy recall,\n" +
		"and multi-factor pruning. SQLite-backed, single binary.",
}

func init() {
	RootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file (default: ~/.mnemos/mnemos.yaml)")
	RootCmd.PersistentFlags().StringVarP(&dbPath, "db", "d", "", "Database path (overrides config and $MNEMOS_STORAGE_PATH)")
	RootCmd.PersistentFlags().BoolVar(&debugFlag, "debug", false, "Enable debug logging")
}

// loadConfig resolves configuration with flag overrides applied.
func loadConfig() (config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return config.Config{}, err
	}
	if dbPath != "" {
		cfg.Storage.Path = dbPath
	}
	if debugFlag {
		cfg.Debug = true
	}
	return cfg, nil
}

// openEngine builds a fully-wired engine from the resolved config.
// Callers own the returned engine and must Close it.
func openEngine() (*engine.Engine, *zap.Logger, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}
	log := logger.New(cfg.Debug)
	e, err := engine.New(cfg, log)
	if err != nil {
		return nil, nil, err
	}
	return e, log, nil
}

func exitErr(msg string, err error) {
	fmt.Fprintf(os.Stderr, "error: %s: %v\n", msg, err)
	os.Exit(1)
}
