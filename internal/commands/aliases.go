package commands

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/jask/subsentry/internal/service"
)

func newAliasesCommand(e *env) *cobra.Command {
	aliasesCmd := &cobra.Command{
		Use:   "aliases",
		Short: "Manage merchant aliases",
	}
	aliasesCmd.AddCommand(newAliasAddCommand(e), newAliasListCommand(e), newAliasImportCommand(e))
	return aliasesCmd
}

func (e *env) aliases() *service.AliasService {
	return &service.AliasService{DB: e.db}
}

func newAliasAddCommand(e *env) *cobra.Command {
	var patternType string
	var confidence float64
	cmd := &cobra.Command{
		Use:   "add <merchant> <pattern>",
		Short: "Map descriptions matching pattern to merchant",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := e.open(cmd.Context()); err != nil {
				return err
			}
			rule := service.AliasRule{Merchant: args[0], Pattern: args[1], Type: patternType}
			if cmd.Flags().Changed("confidence") {
				rule.Confidence = &confidence
			}
			a, err := e.aliases().Add(cmd.Context(), rule)
			if err != nil {
				return err
			}
			printf(cmd.OutOrStdout(), "Alias %s (%s) -> %s\n", a.Pattern, a.PatternType, args[0])
			return nil
		},
	}
	cmd.Flags().StringVar(&patternType, "type", "contains", "pattern type: contains or exact")
	cmd.Flags().Float64Var(&confidence, "confidence", 1.0, "alias confidence")
	return cmd
}

func newAliasListCommand(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List aliases in match order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := e.open(cmd.Context()); err != nil {
				return err
			}
			list, err := e.aliases().List(cmd.Context())
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			printf(tw, "PATTERN\tTYPE\tMERCHANT\tCONFIDENCE\n")
			for _, a := range list {
				printf(tw, "%s\t%s\t%s\t%.2f\n", a.Pattern, a.PatternType, a.Merchant, a.Confidence)
			}
			return tw.Flush()
		},
	}
}

func newAliasImportCommand(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "import <rules.yaml>",
		Short: "Import aliases from a YAML rules file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := e.open(cmd.Context()); err != nil {
				return err
			}
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()
			n, err := e.aliases().ImportYAML(cmd.Context(), f)
			if err != nil {
				return fmt.Errorf("%s: %w", args[0], err)
			}
			printf(cmd.OutOrStdout(), "Imported %d aliases\n", n)
			return nil
		},
	}
}
