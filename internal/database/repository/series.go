package repository

import (
	"context"
	"database/sql"
)

const seriesColumns = `id, merchant_id, period_days, amount_median, amount_mad, gap_median, gap_mad, confidence, last_txn_id, next_expected_at, status`

// SeriesRepo handles recurring series.
type SeriesRepo struct{ db DBTX }

func NewSeriesRepo(db DBTX) *SeriesRepo { return &SeriesRepo{db: db} }

// Upsert replaces any series of the same merchant with s.
func (r *SeriesRepo) Upsert(ctx context.Context, s RecurringSeries) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM recurring_series WHERE merchant_id = ?`, s.MerchantID); err != nil {
		return err
	}
	if s.Status == "" {
		s.Status = SeriesStatusActive
	}
	_, err := r.db.ExecContext(ctx, `
	INSERT INTO recurring_series(`+seriesColumns+`)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, s.ID, s.MerchantID, s.PeriodDays, s.AmountMedian, s.AmountMAD, s.GapMedian, s.GapMAD,
		s.Confidence, s.LastTxnID, s.NextExpectedAt, s.Status)
	return err
}

// List returns all series, most confident first.
func (r *SeriesRepo) List(ctx context.Context) ([]RecurringSeries, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+seriesColumns+` FROM recurring_series ORDER BY confidence DESC, merchant_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []RecurringSeries
	for rows.Next() {
		s, err := scanSeries(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (r *SeriesRepo) Get(ctx context.Context, id string) (*RecurringSeries, error) {
	s, err := scanSeries(r.db.QueryRowContext(ctx, `SELECT `+seriesColumns+` FROM recurring_series WHERE id = ?`, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &s, nil
}

func (r *SeriesRepo) DeleteAll(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM recurring_series`)
	return err
}

// DeleteForSourceFile removes series whose last charge belongs to the statement.
func (r *SeriesRepo) DeleteForSourceFile(ctx context.Context, sourceFileID string) error {
	_, err := r.db.ExecContext(ctx, `
	DELETE FROM recurring_series
	WHERE last_txn_id IN (SELECT id FROM transactions WHERE source_file_id = ?)
	`, sourceFileID)
	return err
}

func scanSeries(row scanner) (RecurringSeries, error) {
	var s RecurringSeries
	err := row.Scan(&s.ID, &s.MerchantID, &s.PeriodDays, &s.AmountMedian, &s.AmountMAD, &s.GapMedian, &s.GapMAD,
		&s.Confidence, &s.LastTxnID, &s.NextExpectedAt, &s.Status)
	return s, err
}
