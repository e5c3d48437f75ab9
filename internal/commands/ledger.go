package commands

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/jask/subsentry/internal/config"
	"github.com/jask/subsentry/internal/service"
)

func newInitCommand(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Create the ledger database and a default config file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := e.open(cmd.Context()); err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			cfgPath := e.cfgPath
			if cfgPath == "" {
				cfgPath = config.Path()
			}
			if _, err := os.Stat(cfgPath); errors.Is(err, os.ErrNotExist) {
				if err := config.SaveAs(e.cfg, cfgPath); err != nil {
					return err
				}
				printf(out, "Wrote config %s\n", cfgPath)
			}
			printf(out, "Ledger ready at %s\n", e.cfg.Database.Path)
			return nil
		},
	}
}

func newImportCommand(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "import-csv <path>...",
		Short: "Import statement CSV files and recompute",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if err := e.open(ctx); err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			ing := e.ingest()
			for _, path := range args {
				res, err := ing.ImportFile(ctx, path)
				if err != nil {
					return fmt.Errorf("import %s: %w", path, err)
				}
				printf(out, "%s: statement %s, imported %d, skipped %d\n", path, res.StatementLabel, res.Imported, res.Skipped)
				for _, lineErr := range res.Errors {
					printf(cmd.ErrOrStderr(), "  %v\n", lineErr)
				}
			}
			res, err := e.recomputer().Run(ctx)
			if err != nil {
				return fmt.Errorf("recompute: %w", err)
			}
			printRecompute(cmd, res)
			return nil
		},
	}
}

func newRecomputeCommand(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "recompute",
		Short: "Rebuild merchants, recurring series and alerts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := e.open(cmd.Context()); err != nil {
				return err
			}
			res, err := e.recomputer().Run(cmd.Context())
			if err != nil {
				return err
			}
			printRecompute(cmd, res)
			return nil
		},
	}
}

func printRecompute(cmd *cobra.Command, res service.RecomputeResult) {
	printf(cmd.OutOrStdout(), "Recompute: merchants updated %d, created %d; %d series, %d events\n",
		res.Resolution.Updated, res.Resolution.Created, res.Series, res.Events)
}

type statementJSON struct {
	ID          string `json:"id"`
	Filename    string `json:"filename"`
	Label       string `json:"label"`
	Rows        int    `json:"rows"`
	ImportedAt  string `json:"imported_at"`
	PeriodStart string `json:"period_start,omitempty"`
	PeriodEnd   string `json:"period_end,omitempty"`
}

func newStatementsCommand(e *env) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "statements",
		Short: "List imported statements",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := e.open(cmd.Context()); err != nil {
				return err
			}
			files, err := e.statements().List(cmd.Context())
			if err != nil {
				return err
			}
			dateFmt := e.cfg.UI.DateFormat
			rows := make([]statementJSON, len(files))
			for i, f := range files {
				rows[i] = statementJSON{
					ID:         f.ID,
					Filename:   f.OriginalFilename,
					Rows:       f.RowsCount,
					ImportedAt: f.ImportedAt.Format(dateFmt),
				}
				if f.StatementLabel != nil {
					rows[i].Label = *f.StatementLabel
				}
				if f.PeriodStart != nil {
					rows[i].PeriodStart = f.PeriodStart.Format(dateFmt)
				}
				if f.PeriodEnd != nil {
					rows[i].PeriodEnd = f.PeriodEnd.Format(dateFmt)
				}
			}
			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(rows)
			}
			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			printf(tw, "ID\tLABEL\tFILE\tROWS\tPERIOD\n")
			for _, r := range rows {
				printf(tw, "%s\t%s\t%s\t%d\t%s..%s\n", r.ID, r.Label, r.Filename, r.Rows, r.PeriodStart, r.PeriodEnd)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	return cmd
}

func newDeleteStatementCommand(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "delete-statement <id>",
		Short: "Delete a statement's transactions and recompute",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := e.open(cmd.Context()); err != nil {
				return err
			}
			res, err := e.statements().Delete(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			printf(cmd.OutOrStdout(), "Deleted statement %s (%d transactions)\n", args[0], res.TransactionsDeleted)
			printRecompute(cmd, res.Recompute)
			return nil
		},
	}
}

func newPurgeCommand(e *env) *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "purge",
		Short: "Delete all ledger data, keeping the schema",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				return errors.New("purge deletes everything; pass --yes to confirm")
			}
			if err := e.open(cmd.Context()); err != nil {
				return err
			}
			svc := &service.MaintenanceService{DB: e.db}
			if err := svc.Purge(cmd.Context()); err != nil {
				return err
			}
			printf(cmd.OutOrStdout(), "Ledger purged\n")
			return nil
		},
	}
	cmd.Flags().BoolVar(&yes, "yes", false, "confirm the purge")
	return cmd
}
