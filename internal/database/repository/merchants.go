package repository

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/jask/subsentry/internal/detect"
)

// MerchantRepo handles merchants and their aliases.
type MerchantRepo struct{ db DBTX }

func NewMerchantRepo(db DBTX) *MerchantRepo { return &MerchantRepo{db: db} }

// CanonicalName applies the case/format normalization merchant names are stored with.
func CanonicalName(name string) string {
	return detect.Upper(strings.TrimSpace(name))
}

// List returns all merchants ordered by canonical name.
func (r *MerchantRepo) List(ctx context.Context) ([]Merchant, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id, canonical_name, created_at FROM merchants ORDER BY canonical_name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Merchant
	for rows.Next() {
		var m Merchant
		if err := rows.Scan(&m.ID, &m.CanonicalName, &m.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (r *MerchantRepo) Get(ctx context.Context, id string) (*Merchant, error) {
	var m Merchant
	err := r.db.QueryRowContext(ctx, `SELECT id, canonical_name, created_at FROM merchants WHERE id = ?`, id).
		Scan(&m.ID, &m.CanonicalName, &m.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &m, nil
}

func (r *MerchantRepo) ByName(ctx context.Context, name string) (*Merchant, error) {
	var m Merchant
	err := r.db.QueryRowContext(ctx, `SELECT id, canonical_name, created_at FROM merchants WHERE canonical_name = ?`, CanonicalName(name)).
		Scan(&m.ID, &m.CanonicalName, &m.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &m, nil
}

// MerchantID derives a stable id from a canonical name so a purge and re-import
// yields the same ids.
func MerchantID(canonical string) string {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(canonical)).String()
}

// GetOrCreate returns the merchant with the given canonical name, creating it if needed.
// created reports whether a new row was inserted.
func (r *MerchantRepo) GetOrCreate(ctx context.Context, name string, now time.Time) (m Merchant, created bool, err error) {
	existing, err := r.ByName(ctx, name)
	if err == nil {
		return *existing, false, nil
	}
	if err != ErrNotFound {
		return Merchant{}, false, err
	}
	canonical := CanonicalName(name)
	m = Merchant{ID: MerchantID(canonical), CanonicalName: canonical, CreatedAt: now}
	if _, err := r.db.ExecContext(ctx, `INSERT INTO merchants(id, canonical_name, created_at) VALUES (?, ?, ?)`,
		m.ID, m.CanonicalName, m.CreatedAt); err != nil {
		return Merchant{}, false, err
	}
	return m, true, nil
}

// UpsertAlias adds an alias or refreshes the confidence of an identical one.
func (r *MerchantRepo) UpsertAlias(ctx context.Context, a MerchantAlias) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.PatternType == "" {
		a.PatternType = PatternContains
	}
	_, err := r.db.ExecContext(ctx, `
	INSERT INTO merchant_aliases(id, merchant_id, pattern, pattern_type, confidence, created_at)
	VALUES (?, ?, ?, ?, ?, ?)
	ON CONFLICT(merchant_id, pattern, pattern_type) DO UPDATE SET confidence=excluded.confidence;
	`, a.ID, a.MerchantID, strings.TrimSpace(a.Pattern), a.PatternType, a.Confidence, a.CreatedAt)
	return err
}

// ListAliases returns aliases in insertion order; the resolver treats that order as priority.
func (r *MerchantRepo) ListAliases(ctx context.Context) ([]MerchantAlias, error) {
	rows, err := r.db.QueryContext(ctx, `
	SELECT id, merchant_id, pattern, pattern_type, confidence, created_at
	FROM merchant_aliases ORDER BY rowid`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []MerchantAlias
	for rows.Next() {
		var a MerchantAlias
		if err := rows.Scan(&a.ID, &a.MerchantID, &a.Pattern, &a.PatternType, &a.Confidence, &a.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}
