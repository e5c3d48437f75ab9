package service

import (
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/jask/subsentry/internal/database/repository"
)

func TestDetectSchema(t *testing.T) {
	t.Parallel()

	s, err := DetectSchema([]string{"\ufeffTransaction Date", "Narrative", "Debit Amount", "Curr"})
	require.NoError(t, err)
	require.Equal(t, Schema{Date: 0, Description: 1, Amount: 2, Currency: 3}, s)

	s, err = DetectSchema([]string{"Amount", "Merchant", "Posted"})
	require.NoError(t, err)
	require.Equal(t, Schema{Date: 2, Description: 1, Amount: 0, Currency: -1}, s)

	_, err = DetectSchema([]string{"foo", "bar"})
	require.Error(t, err)
}

func TestParseAmount(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"12.50":     "12.5",
		"-1,234.56": "-1234.56",
		"(42.10)":   "-42.1",
		"$7":        "7",
		"":          "0",
	}
	for in, want := range cases {
		got, err := ParseAmount(in)
		require.NoError(t, err, in)
		require.True(t, decimal.RequireFromString(want).Equal(got), "%s -> %s", in, got)
	}
	_, err := ParseAmount("twelve")
	require.Error(t, err)
}

func TestParseDate(t *testing.T) {
	t.Parallel()

	loc, err := time.LoadLocation("Australia/Melbourne")
	require.NoError(t, err)

	got, err := ParseDate("2026-02-03", loc)
	require.NoError(t, err)
	require.Equal(t, time.Date(2026, 2, 2, 13, 0, 0, 0, time.UTC), got)

	got, err = ParseDate("03/15/2025", nil)
	require.NoError(t, err)
	require.Equal(t, time.Date(2025, 3, 15, 0, 0, 0, 0, time.UTC), got)

	_, err = ParseDate("someday", nil)
	require.Error(t, err)
}

func TestParseCSVCollectsLineErrors(t *testing.T) {
	t.Parallel()

	data := strings.Join([]string{
		"Date,Description,Amount,Currency",
		"2025-01-02,COFFEE,-3.20,USD",
		"not-a-date,COFFEE,-3.20,USD",
		"2025-01-03,TEA,abc,USD",
		"2025-01-04,\"SHOP, INC\",(10.00),USD",
	}, "\n")
	rows, lineErrs, err := ParseCSV(strings.NewReader(data), nil)
	require.NoError(t, err)
	require.Len(t, lineErrs, 2)
	require.Len(t, rows, 2)
	require.Equal(t, "SHOP, INC", rows[1].DescriptionRaw)
	require.Equal(t, "USD", rows[1].Currency)
	require.True(t, decimal.NewFromInt(-10).Equal(rows[1].Amount))

	_, _, err = ParseCSV(strings.NewReader(""), nil)
	require.Error(t, err)
}

func TestFingerprint(t *testing.T) {
	t.Parallel()

	at := time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC)
	a := Fingerprint(at, decimal.RequireFromString("-3.2"), "  coffee ")
	b := Fingerprint(at, decimal.RequireFromString("-3.20"), "COFFEE")
	require.Equal(t, a, b)
	require.NotEqual(t, a, Fingerprint(at.Add(time.Second), decimal.RequireFromString("-3.20"), "COFFEE"))
	require.Len(t, a, 64)
}

func TestImportReimportSkipsDuplicates(t *testing.T) {
	t.Parallel()
	db := newTestDB(t)
	ctx := testContext(t)
	svc := newTestIngest(db)

	data := csvLines(
		[3]string{"2025-01-02", "COFFEE HOUSE", "-3.20"},
		[3]string{"2025-01-20", "BOOK SHOP", "-18.00"},
	)
	first := importCSV(t, svc, "jan.csv", data)
	require.Equal(t, 2, first.Imported)
	require.Equal(t, 0, first.Skipped)
	require.Equal(t, "2025-01", first.StatementLabel)

	second := importCSV(t, svc, "jan-again.csv", data)
	require.Equal(t, 0, second.Imported)
	require.Equal(t, 2, second.Skipped)

	n, err := repository.NewTransactionRepo(db).Count(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, n)

	stmts, err := repository.NewSourceFileRepo(db).List(ctx)
	require.NoError(t, err)
	require.Len(t, stmts, 2)

	tx, err := repository.NewTransactionRepo(db).List(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, int64(-1800), tx[0].AmountCents)
}

func TestImportLockedLedger(t *testing.T) {
	t.Parallel()
	db := newTestDB(t)
	ctx := testContext(t)
	require.NoError(t, repository.NewSettingsRepo(db).Set(ctx, repository.SettingEncryptionEnabled, "1"))

	_, err := newTestIngest(db).Import(ctx, "x.csv", strings.NewReader(csvLines([3]string{"2025-01-02", "A", "1"})))
	require.ErrorIs(t, err, ErrLocked)
}
