package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"schememap/internal/cli"
	"schememap/internal/services"
	"schememap/internal/sources/file"
)

func newImportCmd(a *app) *cobra.Command {
	var from, sheet string
	cmd := &cobra.Command{
		Use:   "import --from schemes.csv|schemes.xlsx",
		Short: "Replace the SQLite schemes table and notify running servers",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			repo := cli.InitSQLite(a.logger, a.cfg.SQLiteDBPath)
			defer repo.Close()

			svc := services.NewImportService(repo, nil)
			client, err := cli.NewAMQPClient(a.logger, a.cfg)
			if err != nil {
				a.logger.WarnContext(ctx, "AMQP unavailable, servers will not be notified", "error", err)
			} else if client != nil {
				defer client.Close()
				svc = services.NewImportService(repo, client)
			}

			info, err := svc.Import(ctx, file.New(from, sheet))
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "imported %d schemes from %s (import %s)\n", info.RowCount, info.Source, info.ID)
			return nil
		},
	}
	cmd.Flags().StringVar(&from, "from", "", "CSV or Excel file with the scheme table")
	cmd.Flags().StringVar(&sheet, "sheet", "", "worksheet name for Excel input (default: first sheet)")
	_ = cmd.MarkFlagRequired("from")
	return cmd
}
