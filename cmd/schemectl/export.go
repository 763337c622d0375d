package main

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"schememap/internal/backend"
	"schememap/internal/core"
	"schememap/internal/services"
	"schememap/internal/sources"
	"schememap/internal/sources/file"
	gsheet "schememap/internal/sources/google"
)

// workbookWriter adapts file.WriteWorkbook to sources.SchemeWriter.
type workbookWriter struct{ path, sheet string }

func (w workbookWriter) ReplaceSchemes(_ context.Context, records []core.SchemeRecord) (int, error) {
	if err := file.WriteWorkbook(w.path, w.sheet, records); err != nil {
		return 0, err
	}
	return len(records), nil
}

func newExportCmd(a *app) *cobra.Command {
	var to, sheet string
	cmd := &cobra.Command{
		Use:   "export --to out.xlsx|sheets",
		Short: "Copy the configured backend's records into a workbook or Google Sheet",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			bcfg, err := backend.FromAppConfig(a.cfg)
			if err != nil {
				return err
			}
			src, err := backend.NewFactory(a.logger.Logger).CreateBackend(ctx, bcfg)
			if err != nil {
				return err
			}
			if src.Cleanup != nil {
				defer src.Cleanup()
			}

			var dst sources.SchemeWriter
			switch {
			case to == "sheets":
				if bcfg.Type == backend.SheetsBackend {
					return fmt.Errorf("backend is already the Google Sheet")
				}
				client, err := gsheet.NewFromEnv(ctx)
				if err != nil {
					return err
				}
				dst = client
			case strings.EqualFold(filepath.Ext(to), ".xlsx"):
				dst = workbookWriter{path: to, sheet: sheet}
			default:
				return fmt.Errorf("unsupported export target %q: want an .xlsx path or \"sheets\"", to)
			}

			n, err := services.NewImportService(nil, nil).Export(ctx, src.Source, dst)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "exported %d schemes from %s to %s\n", n, src.Source.Name(), to)
			return nil
		},
	}
	cmd.Flags().StringVar(&to, "to", "", `target workbook path (.xlsx) or "sheets"`)
	cmd.Flags().StringVar(&sheet, "sheet", "Schemes", "worksheet name for workbook output")
	_ = cmd.MarkFlagRequired("to")
	return cmd
}
