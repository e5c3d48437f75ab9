package service

import (
	"bufio"
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/jask/subsentry/internal/database"
	"github.com/jask/subsentry/internal/database/repository"
	"github.com/jask/subsentry/internal/secrets"
)

// Header candidates, matched in order as case-insensitive substrings.
var (
	dateColumns        = []string{"date", "posted", "transaction date", "time"}
	descriptionColumns = []string{"description", "merchant", "details", "narrative"}
	amountColumns      = []string{"amount", "debit", "credit", "value"}
	currencyColumns    = []string{"currency", "curr"}
)

var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	time.DateOnly,
	"2006/01/02",
	"01/02/2006 15:04:05",
	"01/02/2006",
	"1/2/2006",
	"01/02/06",
	"02 Jan 2006",
	"2 Jan 2006",
	"Jan 2, 2006",
	"January 2, 2006",
}

// Row is one statement line in the unified shape.
type Row struct {
	PostedAt       time.Time
	Amount         decimal.Decimal
	Currency       string
	DescriptionRaw string
	AccountID      string
}

// Schema maps unified fields to CSV column indexes. Currency is -1 when absent.
type Schema struct {
	Date        int
	Description int
	Amount      int
	Currency    int
}

// DetectSchema sniffs the column layout from a header row.
func DetectSchema(header []string) (Schema, error) {
	lower := make([]string, len(header))
	for i, h := range header {
		lower[i] = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))
	}
	guess := func(cands []string) int {
		for _, c := range cands {
			for i, h := range lower {
				if strings.Contains(h, c) {
					return i
				}
			}
		}
		return -1
	}
	s := Schema{
		Date:        guess(dateColumns),
		Description: guess(descriptionColumns),
		Amount:      guess(amountColumns),
		Currency:    guess(currencyColumns),
	}
	if s.Date < 0 || s.Description < 0 || s.Amount < 0 {
		return Schema{}, fmt.Errorf("could not auto-detect schema from columns: %v", header)
	}
	return s, nil
}

// ParseAmount reads a statement amount: thousands separators and a leading
// currency symbol are ignored, parentheses mean negative.
func ParseAmount(s string) (decimal.Decimal, error) {
	s = strings.ReplaceAll(strings.TrimSpace(s), ",", "")
	if s == "" {
		return decimal.Zero, nil
	}
	neg := false
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		neg = true
		s = s[1 : len(s)-1]
	}
	s = strings.TrimLeft(s, "$€£")
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("parse amount %q: %w", s, err)
	}
	if neg {
		d = d.Neg()
	}
	return d, nil
}

// ParseDate tries the known layouts in order, interpreting zone-less values in loc.
func ParseDate(s string, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.UTC
	}
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date %q", s)
}

// ParseCSV reads a headed statement CSV. Bad lines are collected in lineErrs
// and skipped; err is set only when the file itself is unusable.
func ParseCSV(r io.Reader, loc *time.Location) (rows []Row, lineErrs []error, err error) {
	csvr := csv.NewReader(bufio.NewReader(r))
	csvr.TrimLeadingSpace = true
	csvr.FieldsPerRecord = -1

	header, err := csvr.Read()
	if err == io.EOF {
		return nil, nil, errors.New("empty csv")
	}
	if err != nil {
		return nil, nil, fmt.Errorf("read header: %w", err)
	}
	schema, err := DetectSchema(header)
	if err != nil {
		return nil, nil, err
	}
	need := max(schema.Date, schema.Description, schema.Amount) + 1

	line := 1
	for {
		line++
		rec, err := csvr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			lineErrs = append(lineErrs, fmt.Errorf("line %d: %w", line, err))
			continue
		}
		if len(rec) < need {
			lineErrs = append(lineErrs, fmt.Errorf("line %d: expected at least %d columns", line, need))
			continue
		}
		posted, err := ParseDate(rec[schema.Date], loc)
		if err != nil {
			lineErrs = append(lineErrs, fmt.Errorf("line %d date: %w", line, err))
			continue
		}
		amount, err := ParseAmount(rec[schema.Amount])
		if err != nil {
			lineErrs = append(lineErrs, fmt.Errorf("line %d amount: %w", line, err))
			continue
		}
		row := Row{PostedAt: posted, Amount: amount, DescriptionRaw: rec[schema.Description]}
		if schema.Currency >= 0 && schema.Currency < len(rec) {
			row.Currency = strings.TrimSpace(rec[schema.Currency])
		}
		rows = append(rows, row)
	}
	return rows, lineErrs, nil
}

// Fingerprint identifies a statement line across imports.
func Fingerprint(postedAt time.Time, amount decimal.Decimal, description string) string {
	desc := strings.ToUpper(strings.TrimSpace(description))
	if len(desc) > 200 {
		desc = desc[:200]
	}
	h := sha256.New()
	h.Write([]byte(postedAt.UTC().Format(time.RFC3339)))
	h.Write([]byte("|" + amount.StringFixed(2) + "|"))
	h.Write([]byte(desc))
	return fmt.Sprintf("%x", h.Sum(nil))
}

// IngestService imports statements into the ledger.
type IngestService struct {
	DB       *sql.DB
	Codec    secrets.Codec
	Location *time.Location
	Now      func() time.Time
	Logger   *slog.Logger
}

// IngestResult reports one imported statement.
type IngestResult struct {
	SourceFileID   string
	StatementLabel string
	Imported       int
	Skipped        int
	Errors         []error
}

// ImportFile imports the CSV at path.
func (s *IngestService) ImportFile(ctx context.Context, path string) (IngestResult, error) {
	f, err := os.Open(path)
	if err != nil {
		return IngestResult{}, err
	}
	defer f.Close()
	return s.Import(ctx, filepath.Base(path), f)
}

// Import parses r and stores its rows under a new statement record. Rows whose
// fingerprint is already in the ledger are counted as skipped.
func (s *IngestService) Import(ctx context.Context, filename string, r io.Reader) (IngestResult, error) {
	rows, lineErrs, err := ParseCSV(r, s.Location)
	if err != nil {
		return IngestResult{}, fmt.Errorf("%s: %w", filename, err)
	}
	res, err := s.ImportRows(ctx, filename, rows)
	res.Errors = append(lineErrs, res.Errors...)
	return res, err
}

// ImportRows stores already-parsed rows as one statement.
func (s *IngestService) ImportRows(ctx context.Context, filename string, rows []Row) (IngestResult, error) {
	log := loggerOrDefault(s.Logger)
	codec := codecOrPlain(s.Codec)
	now := nowFunc(s.Now)

	sf := repository.SourceFile{
		ID:               uuid.NewString(),
		ImportedAt:       now(),
		OriginalFilename: filename,
		RowsCount:        len(rows),
		SchemaVersion:    "v1",
	}
	if len(rows) > 0 {
		start, end := rows[0].PostedAt, rows[0].PostedAt
		for _, row := range rows[1:] {
			if row.PostedAt.Before(start) {
				start = row.PostedAt
			}
			if row.PostedAt.After(end) {
				end = row.PostedAt
			}
		}
		label := end.Format("2006-01")
		sf.PeriodStart, sf.PeriodEnd, sf.StatementLabel = &start, &end, &label
	}

	res := IngestResult{SourceFileID: sf.ID}
	if sf.StatementLabel != nil {
		res.StatementLabel = *sf.StatementLabel
	}
	err := database.WithTx(ctx, s.DB, func(tx *sql.Tx) error {
		if err := ensureUnlocked(ctx, tx, codec); err != nil {
			return err
		}
		if err := repository.NewSourceFileRepo(tx).Insert(ctx, sf); err != nil {
			return fmt.Errorf("store statement: %w", err)
		}
		txns := repository.NewTransactionRepo(tx)
		for i, row := range rows {
			desc, err := codec.Encrypt(row.DescriptionRaw)
			if err != nil {
				return fmt.Errorf("encrypt description: %w", err)
			}
			t := repository.Transaction{
				ID:             uuid.NewString(),
				PostedAt:       row.PostedAt.UTC(),
				AmountCents:    row.Amount.Shift(2).Round(0).IntPart(),
				Currency:       row.Currency,
				DescriptionRaw: desc,
				AccountID:      row.AccountID,
				SourceFileID:   sf.ID,
				Fingerprint:    Fingerprint(row.PostedAt, row.Amount, row.DescriptionRaw),
			}
			if err := txns.Insert(ctx, t); err != nil {
				if errors.Is(err, repository.ErrDuplicate) {
					res.Skipped++
					continue
				}
				res.Errors = append(res.Errors, fmt.Errorf("row %d insert: %w", i+1, err))
				continue
			}
			res.Imported++
		}
		return nil
	})
	if err != nil {
		return IngestResult{}, err
	}
	log.Info("import complete", "file", filename, "inserted", res.Imported, "skipped", res.Skipped)
	return res, nil
}
