package main

import (
	"os"

	"github.com/mnemos-dev/mnemos/internal/cli"
)

func main() {
	if err := cli.RootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
