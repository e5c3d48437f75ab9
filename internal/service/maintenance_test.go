package service

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/jask/subsentry/internal/database/repository"
)

func TestPurge(t *testing.T) {
	t.Parallel()
	db := newTestDB(t)
	ctx := testContext(t)
	importCSV(t, newTestIngest(db), "stream.csv", priceChangeLedger())
	_, err := newTestRecomputer(db).Run(ctx)
	require.NoError(t, err)
	require.NoError(t, repository.NewSettingsRepo(db).Set(ctx, repository.SettingEncryptionEnabled, "1"))

	require.NoError(t, (&MaintenanceService{DB: db}).Purge(ctx))

	for _, table := range []string{"events", "recurring_series", "transactions", "merchants", "source_files"} {
		var n int
		require.NoError(t, db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+table).Scan(&n))
		require.Zero(t, n, table)
	}
	v, err := repository.NewSettingsRepo(db).Get(ctx, repository.SettingEncryptionEnabled)
	require.NoError(t, err)
	require.Equal(t, "0", v)
}
