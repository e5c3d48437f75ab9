package repository

import (
	"context"
	"database/sql"
	"errors"
	"sort"
	"time"

	"github.com/mattn/go-sqlite3"
)

// ErrDuplicate is returned by Insert when the fingerprint already exists.
var ErrDuplicate = errors.New("duplicate transaction")

const transactionColumns = `id, posted_at, amount, currency, description_raw, account_id, source_file_id, merchant_id, fingerprint`

// TransactionRepo handles transactions.
type TransactionRepo struct {
	db DBTX
}

func NewTransactionRepo(db DBTX) *TransactionRepo { return &TransactionRepo{db: db} }

// Insert stores t. A fingerprint collision yields ErrDuplicate.
func (r *TransactionRepo) Insert(ctx context.Context, t Transaction) error {
	_, err := r.db.ExecContext(ctx, `
	INSERT INTO transactions(`+transactionColumns+`)
	VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?);
	`,
		t.ID, t.PostedAt, t.AmountCents, t.Currency, t.DescriptionRaw, t.AccountID, t.SourceFileID, t.MerchantID, t.Fingerprint)
	var sqlErr sqlite3.Error
	if errors.As(err, &sqlErr) && sqlErr.ExtendedCode == sqlite3.ErrConstraintUnique {
		return ErrDuplicate
	}
	return err
}

func (r *TransactionRepo) UpdateMerchant(ctx context.Context, id string, merchantID *string) error {
	_, err := r.db.ExecContext(ctx, `UPDATE transactions SET merchant_id = ? WHERE id = ?`, merchantID, id)
	return err
}

func (r *TransactionRepo) UpdateDescription(ctx context.Context, id, description string) error {
	_, err := r.db.ExecContext(ctx, `UPDATE transactions SET description_raw = ? WHERE id = ?`, description, id)
	return err
}

// List returns up to limit transactions, newest first.
func (r *TransactionRepo) List(ctx context.Context, limit int) ([]Transaction, error) {
	return r.query(ctx, `SELECT `+transactionColumns+` FROM transactions ORDER BY posted_at DESC, id ASC LIMIT ?`, limit)
}

// ListForMerchant returns up to limit of the merchant's most recent transactions in chronological order.
func (r *TransactionRepo) ListForMerchant(ctx context.Context, merchantID string, limit int) ([]Transaction, error) {
	out, err := r.query(ctx, `SELECT `+transactionColumns+` FROM transactions WHERE merchant_id = ? ORDER BY posted_at DESC, id DESC LIMIT ?`, merchantID, limit)
	if err != nil {
		return nil, err
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

func (r *TransactionRepo) Get(ctx context.Context, id string) (*Transaction, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+transactionColumns+` FROM transactions WHERE id = ?`, id)
	t, err := scanTransaction(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &t, nil
}

func (r *TransactionRepo) DeleteBySourceFile(ctx context.Context, sourceFileID string) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM transactions WHERE source_file_id = ?`, sourceFileID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (r *TransactionRepo) Count(ctx context.Context) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM transactions`).Scan(&n)
	return n, err
}

// MonthTotal is the signed sum of one calendar month.
type MonthTotal struct {
	Month      string
	TotalCents int64
}

// MonthlySpend sums amounts per YYYY-MM of posted_at as seen in loc, oldest
// month first. A nil loc means UTC.
func (r *TransactionRepo) MonthlySpend(ctx context.Context, loc *time.Location) ([]MonthTotal, error) {
	if loc == nil {
		loc = time.UTC
	}
	rows, err := r.db.QueryContext(ctx, `SELECT posted_at, amount FROM transactions`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	totals := make(map[string]int64)
	for rows.Next() {
		var (
			at    time.Time
			cents int64
		)
		if err := rows.Scan(&at, &cents); err != nil {
			return nil, err
		}
		totals[at.In(loc).Format("2006-01")] += cents
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	out := make([]MonthTotal, 0, len(totals))
	for month, cents := range totals {
		out = append(out, MonthTotal{Month: month, TotalCents: cents})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Month < out[j].Month })
	return out, nil
}

func (r *TransactionRepo) query(ctx context.Context, q string, args ...any) ([]Transaction, error) {
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func scanTransaction(row scanner) (Transaction, error) {
	var t Transaction
	var merchant sql.NullString
	if err := row.Scan(&t.ID, &t.PostedAt, &t.AmountCents, &t.Currency, &t.DescriptionRaw,
		&t.AccountID, &t.SourceFileID, &merchant, &t.Fingerprint); err != nil {
		return Transaction{}, err
	}
	t.MerchantID = nullableString(merchant)
	return t, nil
}
