// Package commands implements the subsentry command line.
package commands

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/jask/subsentry/internal/config"
	"github.com/jask/subsentry/internal/database"
	"github.com/jask/subsentry/internal/detect"
	"github.com/jask/subsentry/internal/llm"
	"github.com/jask/subsentry/internal/logging"
	"github.com/jask/subsentry/internal/secrets"
	"github.com/jask/subsentry/internal/service"
)

// Version is stamped at build time.
var Version = "dev"

// PassphraseEnv names the environment variable holding the ledger passphrase.
const PassphraseEnv = "SUBSENTRY_PASSPHRASE"

// NewRootCommand creates the root CLI command with all subcommands registered.
func NewRootCommand() *cobra.Command {
	e := &env{}
	rootCmd := &cobra.Command{
		Use:     "subsentry",
		Short:   "Detect subscriptions and unusual charges in bank statements",
		Version: Version,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		SilenceUsage: true,
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			return e.close()
		},
	}
	rootCmd.PersistentFlags().StringVar(&e.cfgPath, "config", "", "config file (default $SUBSENTRY_CONFIG or ~/.config/subsentry/config.toml)")

	rootCmd.AddCommand(
		newInitCommand(e),
		newImportCommand(e),
		newRecomputeCommand(e),
		newStatementsCommand(e),
		newDeleteStatementCommand(e),
		newSubscriptionsCommand(e),
		newAlertsCommand(e),
		newDismissCommand(e),
		newAliasesCommand(e),
		newExportCommand(e),
		newSetPassphraseCommand(e),
		newEncryptExistingCommand(e),
		newPurgeCommand(e),
		newDemoCommand(e),
		newServeCommand(e),
		newUICommand(e),
	)

	return rootCmd
}

// env is the state shared by subcommands: configuration, logger, the open
// ledger and the codec unlocked from SUBSENTRY_PASSPHRASE.
type env struct {
	cfgPath string
	cfg     config.Config
	logger  *slog.Logger
	db      *sql.DB
	codec   secrets.Codec
}

func (e *env) loadConfig() error {
	path := e.cfgPath
	if path == "" {
		path = os.Getenv("SUBSENTRY_CONFIG")
	}
	cfg, err := config.LoadFile(path)
	if err != nil {
		return err
	}
	e.cfg = cfg
	e.logger = logging.NewLogger(logging.Config{Level: cfg.Log.Level, Format: cfg.Log.Format}, os.Stderr)
	slog.SetDefault(e.logger)
	return nil
}

// open loads config, migrates and opens the ledger, then unlocks it when a
// passphrase is supplied. A locked ledger still opens; engine calls report
// service.ErrLocked.
func (e *env) open(ctx context.Context) error {
	if e.db != nil {
		return nil
	}
	if err := e.loadConfig(); err != nil {
		return err
	}
	path := e.cfg.Database.Path
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("mkdir db dir: %w", err)
	}
	if err := database.RunMigrations(path); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	db, err := database.Open(path)
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	if err := database.SeedDefaults(ctx, db); err != nil {
		db.Close()
		return fmt.Errorf("seed defaults: %w", err)
	}
	e.db = db

	e.codec = secrets.Plain{}
	if pass := os.Getenv(PassphraseEnv); pass != "" {
		codec, err := e.encryption().Unlock(ctx, pass)
		if err != nil {
			_ = e.close()
			return fmt.Errorf("unlock: %w", err)
		}
		e.codec = codec
	}
	return nil
}

func (e *env) close() error {
	if e.db == nil {
		return nil
	}
	err := e.db.Close()
	e.db = nil
	return err
}

func (e *env) recomputer() *service.Recomputer {
	return &service.Recomputer{DB: e.db, Codec: e.codec, Options: engineOptions(e.cfg), Logger: e.logger}
}

func (e *env) ingest() *service.IngestService {
	return &service.IngestService{DB: e.db, Codec: e.codec, Location: e.cfg.UI.Location(), Logger: e.logger}
}

func (e *env) insights() *service.InsightsService {
	return &service.InsightsService{DB: e.db, Codec: e.codec, Location: e.cfg.UI.Location(), Logger: e.logger}
}

// explain builds the alert explanation service. Without llm.enabled it has no
// model and every call reports llm.ErrDisabled.
func (e *env) explain() (*service.ExplainService, error) {
	svc := &service.ExplainService{Insights: e.insights(), Logger: e.logger}
	if !e.cfg.LLM.Enabled {
		return svc, nil
	}
	p, err := llm.NewOllamaProvider(llm.OllamaConfig{
		Host:         e.cfg.LLM.Host,
		Model:        e.cfg.LLM.Model,
		AllowNetwork: e.cfg.LLM.AllowNetwork,
		Timeout:      e.cfg.LLM.Timeout(),
	})
	if err != nil {
		return nil, err
	}
	svc.Explainer = p
	return svc, nil
}

func (e *env) statements() *service.StatementService {
	return &service.StatementService{DB: e.db, Recompute: e.recomputer()}
}

func (e *env) encryption() *service.Encryption {
	return &service.Encryption{DB: e.db, Logger: e.logger}
}

// engineOptions maps the engine.* config keys onto the engine's options.
func engineOptions(cfg config.Config) service.EngineOptions {
	ec := cfg.Engine
	return service.EngineOptions{
		FuzzyThreshold: ec.FuzzyThreshold,
		MinPoints:      ec.MinPoints,
		Anomalies: detect.AnomalyOptions{
			AmountZ:         ec.AmountZ,
			SpikeZ:          ec.SpikeZ,
			SpikeWindowDays: ec.SpikeWindowDays,
			BurstAmountMax:  ec.BurstAmountMax,
			BurstWindow:     ec.BurstWindow(),
			BurstCountMin:   ec.BurstCountMin,
			Location:        cfg.UI.Location(),
		},
		NewSubscriptionWindow: ec.NewSubscriptionWindow(),
		PreserveDismissals:    ec.PreserveDismissals,
	}
}

func printf(w io.Writer, format string, args ...any) {
	_, _ = fmt.Fprintf(w, format, args...)
}
