package repository

import (
	"context"
	"database/sql"
)

// SourceFileRepo handles imported statements.
type SourceFileRepo struct{ db DBTX }

func NewSourceFileRepo(db DBTX) *SourceFileRepo { return &SourceFileRepo{db: db} }

func (r *SourceFileRepo) Insert(ctx context.Context, sf SourceFile) error {
	_, err := r.db.ExecContext(ctx, `
	INSERT INTO source_files(id, imported_at, original_filename, rows_count, schema_version, period_start, period_end, statement_label)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, sf.ID, sf.ImportedAt, sf.OriginalFilename, sf.RowsCount, sf.SchemaVersion, sf.PeriodStart, sf.PeriodEnd, sf.StatementLabel)
	return err
}

func (r *SourceFileRepo) List(ctx context.Context) ([]SourceFile, error) {
	rows, err := r.db.QueryContext(ctx, `
	SELECT id, imported_at, original_filename, rows_count, schema_version, period_start, period_end, statement_label
	FROM source_files ORDER BY imported_at DESC, rowid DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []SourceFile
	for rows.Next() {
		sf, err := scanSourceFile(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sf)
	}
	return out, rows.Err()
}

func (r *SourceFileRepo) Get(ctx context.Context, id string) (*SourceFile, error) {
	row := r.db.QueryRowContext(ctx, `
	SELECT id, imported_at, original_filename, rows_count, schema_version, period_start, period_end, statement_label
	FROM source_files WHERE id = ?`, id)
	sf, err := scanSourceFile(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &sf, nil
}

func (r *SourceFileRepo) Delete(ctx context.Context, id string) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM source_files WHERE id = ?`, id)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func scanSourceFile(row scanner) (SourceFile, error) {
	var sf SourceFile
	var start, end sql.NullTime
	var label sql.NullString
	if err := row.Scan(&sf.ID, &sf.ImportedAt, &sf.OriginalFilename, &sf.RowsCount, &sf.SchemaVersion, &start, &end, &label); err != nil {
		return SourceFile{}, err
	}
	sf.PeriodStart = nullableTime(start)
	sf.PeriodEnd = nullableTime(end)
	sf.StatementLabel = nullableString(label)
	return sf, nil
}
