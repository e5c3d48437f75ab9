package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// ErrNotFound is returned by single-row lookups that match nothing.
var ErrNotFound = errors.New("not found")

// DBTX is satisfied by both *sql.DB and *sql.Tx so repos can run inside a recompute transaction.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Alias pattern types.
const (
	PatternContains = "contains"
	PatternExact    = "exact"
)

// SeriesStatusActive is the only status the detector produces today.
const SeriesStatusActive = "active"

// SourceFile is one imported statement.
type SourceFile struct {
	ID               string
	ImportedAt       time.Time
	OriginalFilename string
	RowsCount        int
	SchemaVersion    string
	PeriodStart      *time.Time
	PeriodEnd        *time.Time
	StatementLabel   *string
}

// Merchant is a canonical merchant identity.
type Merchant struct {
	ID            string
	CanonicalName string
	CreatedAt     time.Time
}

// MerchantAlias maps a description pattern to a merchant.
type MerchantAlias struct {
	ID          string
	MerchantID  string
	Pattern     string
	PatternType string
	Confidence  float64
	CreatedAt   time.Time
}

// Transaction represents a ledger row. DescriptionRaw holds the stored (possibly encrypted) value.
type Transaction struct {
	ID             string
	PostedAt       time.Time
	AmountCents    int64
	Currency       string
	DescriptionRaw string
	AccountID      string
	SourceFileID   string
	MerchantID     *string
	Fingerprint    string
}

// Amount returns the signed amount in currency units.
func (t Transaction) Amount() float64 {
	return float64(t.AmountCents) / 100
}

// RecurringSeries is the detected billing pattern of one merchant.
type RecurringSeries struct {
	ID             string
	MerchantID     string
	PeriodDays     int
	AmountMedian   float64
	AmountMAD      float64
	GapMedian      float64
	GapMAD         float64
	Confidence     float64
	LastTxnID      string
	NextExpectedAt time.Time
	Status         string
}

// Event is a persisted alert. EvidenceJSON holds the stored (possibly encrypted) payload.
type Event struct {
	ID           string
	CreatedAt    time.Time
	Type         string
	Severity     string
	Title        string
	MerchantID   *string
	SeriesID     *string
	TxnID        *string
	EvidenceJSON string
	IdentityKey  string
	Dismissed    bool
}

// scanner handles both Row and Rows.
type scanner interface {
	Scan(dest ...any) error
}

func nullableString(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}

func nullableTime(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	t := nt.Time
	return &t
}
