package database

import (
	"context"
	"database/sql"

	"github.com/jask/subsentry/internal/database/repository"
)

// SeedDefaults ensures baseline settings exist for new databases.
// It is idempotent and safe to run on every startup.
func SeedDefaults(ctx context.Context, db *sql.DB) error {
	settings := repository.NewSettingsRepo(db)
	defaults := map[string]string{
		repository.SettingSchemaVersion:     "v1",
		repository.SettingEncryptionEnabled: "0",
	}
	for key, value := range defaults {
		if _, err := settings.Get(ctx, key); err == nil {
			continue
		} else if err != repository.ErrNotFound {
			return err
		}
		if err := settings.Set(ctx, key, value); err != nil {
			return err
		}
	}
	return nil
}
