package service

import (
	"encoding/csv"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func seededInsights(t *testing.T) *InsightsService {
	t.Helper()
	db := newTestDB(t)
	importCSV(t, newTestIngest(db), "stream.csv", priceChangeLedger())
	_, err := newTestRecomputer(db).Run(testContext(t))
	require.NoError(t, err)
	return &InsightsService{DB: db}
}

func TestExportJSON(t *testing.T) {
	t.Parallel()
	svc := seededInsights(t)
	dir := filepath.Join(t.TempDir(), "exports")

	path, err := svc.Export(testContext(t), dir, "json", testNow)
	require.NoError(t, err)
	require.Equal(t, filepath.Join(dir, "subsentry_insights_20250701_120000.json"), path)

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	var payload InsightsPayload
	require.NoError(t, json.Unmarshal(raw, &payload))
	require.Len(t, payload.MonthlySpend, 6)
	require.Equal(t, "2025-01", payload.MonthlySpend[0].Month)
	require.InDelta(t, -14.99, payload.MonthlySpend[5].Total, 1e-9)
	require.Len(t, payload.Subscriptions, 1)
	require.Equal(t, "STREAMCO PREMIUM", payload.Subscriptions[0].Merchant)
	require.Len(t, payload.Alerts, 2)
}

func TestExportCSV(t *testing.T) {
	t.Parallel()
	svc := seededInsights(t)

	path, err := svc.Export(testContext(t), t.TempDir(), "", testNow)
	require.NoError(t, err)
	require.Equal(t, ".csv", filepath.Ext(path))

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	records, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	require.Equal(t, []string{"SECTION", "FIELD", "VALUE"}, records[0])

	sections := map[string]int{}
	for _, r := range records[1:] {
		sections[r[0]]++
	}
	require.Equal(t, map[string]int{"monthly_spend": 6, "subscription": 1, "alert": 2}, sections)
}

func TestExportRejectsUnknownFormat(t *testing.T) {
	t.Parallel()
	_, err := seededInsights(t).Export(testContext(t), t.TempDir(), "xml", testNow)
	require.Error(t, err)
}

func TestMonthlySpendUsesLedgerTimezone(t *testing.T) {
	t.Parallel()
	loc, err := time.LoadLocation("Australia/Melbourne")
	require.NoError(t, err)

	db := newTestDB(t)
	ingest := newTestIngest(db)
	ingest.Location = loc
	importCSV(t, ingest, "march.csv", csvLines(
		[3]string{"2025-03-01", "BAKERY", "-10.00"},
		[3]string{"2025-03-31", "BAKERY", "-5.00"},
	))

	monthly, err := (&InsightsService{DB: db, Location: loc}).MonthlySpend(testContext(t))
	require.NoError(t, err)
	require.Len(t, monthly, 1)
	require.Equal(t, "2025-03", monthly[0].Month)
	require.InDelta(t, -15.0, monthly[0].Total, 1e-9)
}
