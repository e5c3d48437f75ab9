package commands

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/jask/subsentry/internal/llm"
)

func newSubscriptionsCommand(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "subscriptions",
		Short: "List detected recurring charges",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := e.open(cmd.Context()); err != nil {
				return err
			}
			subs, err := e.insights().Subscriptions(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(subs) == 0 {
				printf(out, "No recurring charges detected\n")
				return nil
			}
			loc := e.cfg.UI.Location()
			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			printf(tw, "MERCHANT\tEVERY\tAMOUNT\tNEXT\tCONFIDENCE\n")
			for _, s := range subs {
				printf(tw, "%s\t%dd\t%s\t%s\t%.2f\n", s.Merchant, s.PeriodDays, e.money(s.AmountMedian),
					s.NextExpectedAt.In(loc).Format(e.cfg.UI.DateFormat), s.Confidence)
			}
			return tw.Flush()
		},
	}
}

func newAlertsCommand(e *env) *cobra.Command {
	var all bool
	var limit int
	cmd := &cobra.Command{
		Use:   "alerts",
		Short: "List alerts, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := e.open(cmd.Context()); err != nil {
				return err
			}
			alerts, err := e.insights().Alerts(cmd.Context(), all, limit)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(alerts) == 0 {
				printf(out, "No alerts\n")
				return nil
			}
			loc := e.cfg.UI.Location()
			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			printf(tw, "ID\tCREATED\tSEVERITY\tTITLE\n")
			for _, a := range alerts {
				title := a.Title
				if a.Dismissed {
					title += " [dismissed]"
				}
				printf(tw, "%s\t%s\t%s\t%s\n", a.ID, a.CreatedAt.In(loc).Format(e.cfg.UI.DateFormat), a.Severity, title)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "include dismissed alerts")
	cmd.Flags().IntVar(&limit, "limit", 200, "maximum alerts to show (0 for all)")
	cmd.AddCommand(newExplainCommand(e))
	return cmd
}

func newExplainCommand(e *env) *cobra.Command {
	var mode string
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "explain <event-id>",
		Short: "Explain an alert in plain language using the local model",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := e.open(cmd.Context()); err != nil {
				return err
			}
			svc, err := e.explain()
			if err != nil {
				return err
			}
			out, err := svc.Explain(cmd.Context(), args[0], llm.ParseMode(mode))
			if err != nil {
				return err
			}
			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(out)
			}
			printf(cmd.OutOrStdout(), "%s\n", out.Text)
			return nil
		},
	}
	cmd.Flags().StringVar(&mode, "mode", string(llm.ModeStrict), "strict or analyst")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the explanation as JSON")
	return cmd
}

func newDismissCommand(e *env) *cobra.Command {
	var undo bool
	cmd := &cobra.Command{
		Use:   "dismiss <event-id>",
		Short: "Dismiss an alert",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := e.open(cmd.Context()); err != nil {
				return err
			}
			if err := e.insights().Dismiss(cmd.Context(), args[0], !undo); err != nil {
				return fmt.Errorf("dismiss %s: %w", args[0], err)
			}
			verb := "Dismissed"
			if undo {
				verb = "Restored"
			}
			printf(cmd.OutOrStdout(), "%s %s\n", verb, args[0])
			return nil
		},
	}
	cmd.Flags().BoolVar(&undo, "undo", false, "clear the dismissal instead")
	return cmd
}

func newExportCommand(e *env) *cobra.Command {
	var format, dir string
	cmd := &cobra.Command{
		Use:   "export-insights",
		Short: "Write monthly spend, subscriptions and alerts to a file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := e.open(cmd.Context()); err != nil {
				return err
			}
			if dir == "" {
				dir = e.cfg.Export.Dir
			}
			path, err := e.insights().Export(cmd.Context(), dir, format, time.Now())
			if err != nil {
				return err
			}
			printf(cmd.OutOrStdout(), "Wrote %s\n", path)
			return nil
		},
	}
	cmd.Flags().StringVar(&format, "fmt", "json", "output format: csv or json")
	cmd.Flags().StringVar(&dir, "dir", "", "output directory (default export.dir)")
	return cmd
}

func (e *env) money(v float64) string {
	sym := e.cfg.UI.CurrencySymbol
	if v < 0 {
		return fmt.Sprintf("-%s%.2f", sym, -v)
	}
	return fmt.Sprintf("%s%.2f", sym, v)
}
