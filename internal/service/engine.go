package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/jask/subsentry/internal/database/repository"
	"github.com/jask/subsentry/internal/detect"
	"github.com/jask/subsentry/internal/secrets"
)

// ErrLocked is returned when the ledger is encrypted and the caller supplied
// no key.
var ErrLocked = errors.New("ledger is encrypted: unlock with the passphrase first")

// UnknownMerchant labels transactions with no resolved merchant.
const UnknownMerchant = "UNKNOWN"

const (
	// transactionScanLimit bounds full-ledger passes.
	transactionScanLimit = 200000
	// merchantScanLimit bounds the per-merchant history fed to series detection.
	merchantScanLimit = 10000
)

// EngineOptions carries the detection thresholds for one recompute.
type EngineOptions struct {
	FuzzyThreshold        float64
	MinPoints             int
	Anomalies             detect.AnomalyOptions
	NewSubscriptionWindow time.Duration
	// PreserveDismissals re-applies dismissals to regenerated events with the
	// same identity key. Off, every recompute starts with nothing dismissed.
	PreserveDismissals bool
}

// DefaultEngineOptions returns the stock thresholds.
func DefaultEngineOptions() EngineOptions {
	return EngineOptions{
		FuzzyThreshold:        92,
		MinPoints:             detect.DefaultMinPoints,
		Anomalies:             detect.DefaultAnomalyOptions(),
		NewSubscriptionWindow: 90 * 24 * time.Hour,
	}
}

func (o EngineOptions) withDefaults() EngineOptions {
	d := DefaultEngineOptions()
	if o.FuzzyThreshold <= 0 {
		o.FuzzyThreshold = d.FuzzyThreshold
	}
	if o.MinPoints <= 0 {
		o.MinPoints = d.MinPoints
	}
	if o.NewSubscriptionWindow <= 0 {
		o.NewSubscriptionWindow = d.NewSubscriptionWindow
	}
	return o
}

// ensureUnlocked fails with ErrLocked when the ledger is flagged encrypted
// and codec cannot decrypt.
func ensureUnlocked(ctx context.Context, db repository.DBTX, codec secrets.Codec) error {
	enabled, err := encryptionEnabled(ctx, db)
	if err != nil {
		return err
	}
	if enabled && (codec == nil || !codec.HasKey()) {
		return ErrLocked
	}
	return nil
}

func encryptionEnabled(ctx context.Context, db repository.DBTX) (bool, error) {
	v, err := repository.NewSettingsRepo(db).Get(ctx, repository.SettingEncryptionEnabled)
	if errors.Is(err, repository.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return v == "1", nil
}

func codecOrPlain(c secrets.Codec) secrets.Codec {
	if c == nil {
		return secrets.Plain{}
	}
	return c
}

func loggerOrDefault(l *slog.Logger) *slog.Logger {
	if l == nil {
		return slog.Default()
	}
	return l
}

func nowFunc(f func() time.Time) func() time.Time {
	if f == nil {
		return func() time.Time { return time.Now().UTC() }
	}
	return f
}
