package service

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jask/subsentry/internal/database"
)

// MaintenanceService houses destructive actions surfaced through the CLI.
type MaintenanceService struct {
	DB *sql.DB
}

// Purge wipes all user data including encryption settings. It keeps the
// schema intact and reseeds default settings so the app can continue running.
func (s *MaintenanceService) Purge(ctx context.Context) error {
	if s.DB == nil {
		return fmt.Errorf("maintenance: db not configured")
	}
	if err := database.WithTx(ctx, s.DB, func(tx *sql.Tx) error {
		tables := []string{
			"events",
			"recurring_series",
			"transactions",
			"merchant_aliases",
			"merchants",
			"source_files",
			"settings",
		}
		for _, t := range tables {
			if _, err := tx.ExecContext(ctx, "DELETE FROM "+t); err != nil {
				return fmt.Errorf("purge table %s: %w", t, err)
			}
		}
		return nil
	}); err != nil {
		return err
	}
	_, _ = s.DB.ExecContext(ctx, "VACUUM")
	return database.SeedDefaults(ctx, s.DB)
}
