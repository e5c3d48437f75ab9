package repository

import (
	"context"
	"database/sql"
)

const eventColumns = `id, created_at, type, severity, title, merchant_id, series_id, txn_id, evidence_json, identity_key, is_dismissed`

// EventRepo handles alert events.
type EventRepo struct{ db DBTX }

func NewEventRepo(db DBTX) *EventRepo { return &EventRepo{db: db} }

func (r *EventRepo) Add(ctx context.Context, e Event) error {
	_, err := r.db.ExecContext(ctx, `
	INSERT INTO events(`+eventColumns+`)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, e.ID, e.CreatedAt, e.Type, e.Severity, e.Title, e.MerchantID, e.SeriesID, e.TxnID,
		e.EvidenceJSON, e.IdentityKey, e.Dismissed)
	return err
}

// List returns events newest first, in insertion order within one recompute.
// limit <= 0 means no limit.
func (r *EventRepo) List(ctx context.Context, includeDismissed bool, limit int) ([]Event, error) {
	q := `SELECT ` + eventColumns + ` FROM events`
	if !includeDismissed {
		q += ` WHERE is_dismissed = 0`
	}
	q += ` ORDER BY created_at DESC, rowid ASC`
	if limit <= 0 {
		limit = -1
	}
	q += ` LIMIT ?`
	rows, err := r.db.QueryContext(ctx, q, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Event
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (r *EventRepo) Get(ctx context.Context, id string) (*Event, error) {
	e, err := scanEvent(r.db.QueryRowContext(ctx, `SELECT `+eventColumns+` FROM events WHERE id = ?`, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &e, nil
}

func (r *EventRepo) SetDismissed(ctx context.Context, id string, dismissed bool) error {
	res, err := r.db.ExecContext(ctx, `UPDATE events SET is_dismissed = ? WHERE id = ?`, dismissed, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *EventRepo) UpdateEvidence(ctx context.Context, id, evidence string) error {
	_, err := r.db.ExecContext(ctx, `UPDATE events SET evidence_json = ? WHERE id = ?`, evidence, id)
	return err
}

// DismissedKeys returns the identity keys of all dismissed events.
func (r *EventRepo) DismissedKeys(ctx context.Context) (map[string]struct{}, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT DISTINCT identity_key FROM events WHERE is_dismissed = 1 AND identity_key != ''`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := map[string]struct{}{}
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, err
		}
		out[k] = struct{}{}
	}
	return out, rows.Err()
}

func (r *EventRepo) DeleteAll(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM events`)
	return err
}

// DeleteForSourceFile removes events that point at a transaction of the
// statement or at a series whose last charge belongs to it.
func (r *EventRepo) DeleteForSourceFile(ctx context.Context, sourceFileID string) error {
	_, err := r.db.ExecContext(ctx, `
	DELETE FROM events
	WHERE txn_id IN (SELECT id FROM transactions WHERE source_file_id = ?)
	   OR series_id IN (
	       SELECT s.id FROM recurring_series s
	       JOIN transactions t ON t.id = s.last_txn_id
	       WHERE t.source_file_id = ?)
	`, sourceFileID, sourceFileID)
	return err
}

func (r *EventRepo) Count(ctx context.Context) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM events`).Scan(&n)
	return n, err
}

func scanEvent(row scanner) (Event, error) {
	var e Event
	var merchant, series, txn sql.NullString
	if err := row.Scan(&e.ID, &e.CreatedAt, &e.Type, &e.Severity, &e.Title, &merchant, &series, &txn,
		&e.EvidenceJSON, &e.IdentityKey, &e.Dismissed); err != nil {
		return Event{}, err
	}
	e.MerchantID = nullableString(merchant)
	e.SeriesID = nullableString(series)
	e.TxnID = nullableString(txn)
	return e, nil
}
