package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"schememap/internal/cli"
	"schememap/internal/core"
	"schememap/internal/render"
	"schememap/internal/services"
)

func newExploreCmd(a *app) *cobra.Command {
	var (
		c      core.Criteria
		income string
		pngOut string
	)
	cmd := &cobra.Command{
		Use:   "explore --category C --gender G --income N",
		Short: "Run the eligibility pipeline and print the per-state totals",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			amount, err := core.ParseAmount(income)
			if err != nil {
				return fmt.Errorf("income: %w", err)
			}
			c.Income = amount

			loader, cleanup, err := cli.NewLoader(ctx, a.logger, a.cfg, nil)
			if err != nil {
				return err
			}
			defer cleanup()
			if _, err := loader.Reload(ctx, "schemectl"); err != nil {
				return err
			}

			res, err := services.NewExplorer(loader.Holder(), int64(a.cfg.IncomeMax), nil, a.logger).Explore(ctx, c)
			if err != nil {
				return err
			}
			if res.Empty {
				fmt.Fprintln(cmd.OutOrStdout(), "No schemes found for the selected inputs.")
				return nil
			}
			if err := printSummaries(cmd.OutOrStdout(), res); err != nil {
				return err
			}
			if pngOut != "" {
				return writePNG(pngOut, res)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&c.Category, "category", "", "beneficiary category")
	cmd.Flags().StringVar(&c.Gender, "gender", core.GenderMale, "Male, Female or Other")
	cmd.Flags().StringVar(&income, "income", "100000", "annual income in rupees")
	cmd.Flags().StringVar(&pngOut, "png", "", "also write the choropleth to this PNG file")
	_ = cmd.MarkFlagRequired("category")
	return cmd
}

func printSummaries(w io.Writer, res services.Result) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(tw, "State\tSchemes\tTotal Benefit\t")
	for _, s := range res.Summaries {
		fmt.Fprintf(tw, "%s\t%d\t%s\t\n", s.State, len(s.Schemes), core.FormatRupeesSymbol(s.TotalBenefit))
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	_, err := fmt.Fprintf(w, "\n%d schemes in %d states, dataset %s\n", len(res.Rows), len(res.Summaries), res.DatasetVersion)
	return err
}

func writePNG(path string, res services.Result) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if err := render.PNG(f, res.Regions, render.DefaultPNGOptions()); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
