package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jask/subsentry/internal/database"
	"github.com/jask/subsentry/internal/database/repository"
	"github.com/jask/subsentry/internal/secrets"
)

// ErrWrongPassphrase is returned by Unlock when the passphrase does not open
// the ledger.
var ErrWrongPassphrase = errors.New("wrong passphrase")

const encryptionCheckValue = "subsentry"

// Encryption manages the at-rest encryption of descriptions and evidence.
type Encryption struct {
	DB     *sql.DB
	Logger *slog.Logger
}

// Enabled reports whether the ledger is flagged encrypted.
func (e *Encryption) Enabled(ctx context.Context) (bool, error) {
	return encryptionEnabled(ctx, e.DB)
}

// EnablePassphrase turns encryption on and returns a codec for the new key.
// Existing plaintext rows stay readable until EncryptExisting runs.
func (e *Encryption) EnablePassphrase(ctx context.Context, passphrase string) (secrets.Codec, error) {
	enabled, err := e.Enabled(ctx)
	if err != nil {
		return nil, err
	}
	if enabled {
		return nil, errors.New("encryption already enabled")
	}
	salt, err := secrets.NewSalt()
	if err != nil {
		return nil, err
	}
	key, err := secrets.DeriveKey(passphrase, salt)
	if err != nil {
		return nil, err
	}
	codec, err := secrets.NewCipher(key)
	if err != nil {
		return nil, err
	}
	check, err := codec.Encrypt(encryptionCheckValue)
	if err != nil {
		return nil, err
	}
	err = database.WithTx(ctx, e.DB, func(tx *sql.Tx) error {
		settings := repository.NewSettingsRepo(tx)
		for k, v := range map[string]string{
			repository.SettingEncryptionSalt:    salt,
			repository.SettingEncryptionCheck:   check,
			repository.SettingEncryptionEnabled: "1",
		} {
			if err := settings.Set(ctx, k, v); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("store encryption settings: %w", err)
	}
	loggerOrDefault(e.Logger).Info("encryption enabled")
	return codec, nil
}

// Unlock derives the key for passphrase. An unencrypted ledger yields the
// plain codec whatever the passphrase.
func (e *Encryption) Unlock(ctx context.Context, passphrase string) (secrets.Codec, error) {
	enabled, err := e.Enabled(ctx)
	if err != nil {
		return nil, err
	}
	if !enabled {
		return secrets.Plain{}, nil
	}
	settings := repository.NewSettingsRepo(e.DB)
	salt, err := settings.Get(ctx, repository.SettingEncryptionSalt)
	if err != nil {
		return nil, fmt.Errorf("load salt: %w", err)
	}
	key, err := secrets.DeriveKey(passphrase, salt)
	if err != nil {
		return nil, err
	}
	codec, err := secrets.NewCipher(key)
	if err != nil {
		return nil, err
	}
	check, err := settings.Get(ctx, repository.SettingEncryptionCheck)
	if err == nil {
		if got, err := codec.Decrypt(check); err != nil || got != encryptionCheckValue {
			return nil, ErrWrongPassphrase
		}
	} else if !errors.Is(err, repository.ErrNotFound) {
		return nil, err
	}
	return codec, nil
}

// EncryptExisting encrypts every plaintext description and evidence payload
// in place and reports how many rows changed.
func (e *Encryption) EncryptExisting(ctx context.Context, codec secrets.Codec) (txns, events int, err error) {
	if codec == nil || !codec.HasKey() {
		return 0, 0, ErrLocked
	}
	err = database.WithTx(ctx, e.DB, func(tx *sql.Tx) error {
		txnRepo := repository.NewTransactionRepo(tx)
		all, err := txnRepo.List(ctx, -1)
		if err != nil {
			return err
		}
		for _, t := range all {
			if t.DescriptionRaw == "" || secrets.IsEncrypted(t.DescriptionRaw) {
				continue
			}
			enc, err := codec.Encrypt(t.DescriptionRaw)
			if err != nil {
				return err
			}
			if err := txnRepo.UpdateDescription(ctx, t.ID, enc); err != nil {
				return err
			}
			txns++
		}

		eventRepo := repository.NewEventRepo(tx)
		evs, err := eventRepo.List(ctx, true, 0)
		if err != nil {
			return err
		}
		for _, ev := range evs {
			if ev.EvidenceJSON == "" || secrets.IsEncrypted(ev.EvidenceJSON) {
				continue
			}
			enc, err := codec.Encrypt(ev.EvidenceJSON)
			if err != nil {
				return err
			}
			if err := eventRepo.UpdateEvidence(ctx, ev.ID, enc); err != nil {
				return err
			}
			events++
		}
		return nil
	})
	if err != nil {
		return 0, 0, fmt.Errorf("encrypt existing: %w", err)
	}
	loggerOrDefault(e.Logger).Info("encrypted existing rows", "transactions", txns, "events", events)
	return txns, events, nil
}
