package service

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/jask/subsentry/internal/database"
	"github.com/jask/subsentry/internal/logging"
)

var testNow = time.Date(2025, time.July, 1, 12, 0, 0, 0, time.UTC)

func fixedClock() time.Time { return testNow }

func newTestDB(t *testing.T) *sql.DB {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	require.NoError(t, database.RunMigrations(dbPath))
	db, err := database.Open(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, database.SeedDefaults(context.Background(), db))
	return db
}

func testContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func newTestRecomputer(db *sql.DB) *Recomputer {
	return &Recomputer{DB: db, Now: fixedClock, Logger: logging.Discard()}
}

func newTestIngest(db *sql.DB) *IngestService {
	return &IngestService{DB: db, Now: fixedClock, Logger: logging.Discard()}
}

// csvLines renders rows of date, description, amount under a standard header.
func csvLines(rows ...[3]string) string {
	var b strings.Builder
	b.WriteString("Date,Description,Amount\n")
	for _, r := range rows {
		fmt.Fprintf(&b, "%s,%s,%s\n", r[0], r[1], r[2])
	}
	return b.String()
}

// monthlyRows produces n monthly charges ending one month before testNow.
func monthlyRows(desc string, n int, amount string) [][3]string {
	out := make([][3]string, n)
	start := testNow.AddDate(0, -n, 0)
	for i := range out {
		out[i] = [3]string{start.AddDate(0, i, 0).Format(time.DateOnly), desc, amount}
	}
	return out
}

func importCSV(t *testing.T, svc *IngestService, name, data string) IngestResult {
	t.Helper()
	res, err := svc.Import(testContext(t), name, strings.NewReader(data))
	require.NoError(t, err)
	require.Empty(t, res.Errors)
	return res
}
