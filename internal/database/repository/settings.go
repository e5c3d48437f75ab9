package repository

import (
	"context"
	"database/sql"
	"errors"
)

// Well-known settings keys.
const (
	SettingSchemaVersion     = "schema_version"
	SettingEncryptionEnabled = "encryption_enabled"
	SettingEncryptionSalt    = "encryption_salt_b64"
	SettingEncryptionCheck   = "encryption_check"
)

// SettingsRepo stores key/value settings.
type SettingsRepo struct{ db DBTX }

func NewSettingsRepo(db DBTX) *SettingsRepo { return &SettingsRepo{db: db} }

func (r *SettingsRepo) Get(ctx context.Context, key string) (string, error) {
	var v string
	err := r.db.QueryRowContext(ctx, `SELECT value FROM settings WHERE key = ?`, key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	return v, err
}

func (r *SettingsRepo) Set(ctx context.Context, key, value string) error {
	_, err := r.db.ExecContext(ctx, `
	INSERT INTO settings(key, value) VALUES (?, ?)
	ON CONFLICT(key) DO UPDATE SET value=excluded.value;
	`, key, value)
	return err
}
