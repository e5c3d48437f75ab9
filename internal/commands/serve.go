package commands

import (
	"context"
	"errors"
	"os/signal"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/jask/subsentry/internal/api"
	"github.com/jask/subsentry/internal/tui"
)

func newServeCommand(e *env) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the JSON read API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			if err := e.open(ctx); err != nil {
				return err
			}
			if addr == "" {
				addr = e.cfg.API.Addr
			}
			explain, err := e.explain()
			if err != nil {
				return err
			}
			srv := api.NewServer(addr, api.Services{
				Insights:   e.insights(),
				Recompute:  e.recomputer(),
				Statements: e.statements(),
				Explain:    explain,
			}, e.logger)

			errCh := make(chan error, 1)
			go func() { errCh <- srv.Start() }()

			select {
			case err := <-errCh:
				return err
			case <-ctx.Done():
			}
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return <-errCh
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default api.addr)")
	return cmd
}

func newUICommand(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "ui",
		Short: "Browse alerts and subscriptions in the terminal",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if err := e.open(ctx); err != nil {
				return err
			}
			app := tui.New(ctx, e.cfg.UI, tui.Services{Insights: e.insights(), Recompute: e.recomputer()})
			_, err := tea.NewProgram(app, tea.WithAltScreen(), tea.WithContext(ctx)).Run()
			return err
		},
	}
}
