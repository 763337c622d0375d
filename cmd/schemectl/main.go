// Command schemectl manages the scheme dataset outside the server: importing
// records into SQLite, running explorations offline and exporting records.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"schememap/internal/cli"
	"schememap/internal/config"
	applog "schememap/internal/log"
)

type app struct {
	cfg    *config.Config
	logger *applog.Logger
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:          "schemectl",
		Short:        "Manage the scheme eligibility dataset",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cli.LoadEnvFile()
			a.cfg = config.Load()
			a.logger = cli.SetupLogger(a.cfg.LogLevel)
			if err := a.cfg.Validate(); err != nil {
				return fmt.Errorf("config: %w", err)
			}
			return nil
		},
	}
	root.AddCommand(newImportCmd(a), newExploreCmd(a), newExportCmd(a))
	return root
}
