package commands

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/jask/subsentry/internal/demo"
)

func newDemoCommand(e *env) *cobra.Command {
	var months int
	var seed uint64
	cmd := &cobra.Command{
		Use:   "demo",
		Short: "Import a synthetic statement and recompute",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if err := e.open(ctx); err != nil {
				return err
			}
			rows := demo.Rows(demo.Options{Months: months, End: time.Now().UTC(), Seed: seed})
			res, err := e.ingest().ImportRows(ctx, fmt.Sprintf("demo-%d.csv", seed), rows)
			if err != nil {
				return err
			}
			printf(cmd.OutOrStdout(), "demo: statement %s, imported %d, skipped %d\n", res.StatementLabel, res.Imported, res.Skipped)
			rec, err := e.recomputer().Run(ctx)
			if err != nil {
				return fmt.Errorf("recompute: %w", err)
			}
			printRecompute(cmd, rec)
			return nil
		},
	}
	cmd.Flags().IntVar(&months, "months", 6, "months of history to generate")
	cmd.Flags().Uint64Var(&seed, "seed", 1, "random seed")
	return cmd
}
