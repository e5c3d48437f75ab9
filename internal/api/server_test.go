package api_test

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jask/subsentry/internal/api"
	"github.com/jask/subsentry/internal/database"
	"github.com/jask/subsentry/internal/database/repository"
	"github.com/jask/subsentry/internal/llm"
	"github.com/jask/subsentry/internal/logging"
	"github.com/jask/subsentry/internal/service"
)

var testNow = time.Date(2025, time.July, 1, 12, 0, 0, 0, time.UTC)

func clock() time.Time { return testNow }

const ledgerCSV = `Date,Description,Amount
2025-01-05,NETFLIX.COM,-15.99
2025-02-05,NETFLIX.COM,-15.99
2025-03-05,NETFLIX.COM,-15.99
2025-04-05,NETFLIX.COM,-15.99
2025-05-05,NETFLIX.COM,-19.99
`

type fixture struct {
	db     *sql.DB
	server *api.Server
}

func newFixture(t *testing.T, seed bool) fixture {
	t.Helper()
	ctx := context.Background()
	dbPath := filepath.Join(t.TempDir(), "api.db")
	require.NoError(t, database.RunMigrations(dbPath))
	db, err := database.Open(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, database.SeedDefaults(ctx, db))

	logger := logging.Discard()
	model := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"message":{"role":"assistant","content":"NETFLIX charged 4.00 more than usual."}}`))
	}))
	t.Cleanup(model.Close)
	explainer, err := llm.NewOllamaProvider(llm.OllamaConfig{Host: model.URL, Model: "stub"})
	require.NoError(t, err)

	rec := &service.Recomputer{DB: db, Now: clock, Logger: logger}
	if seed {
		ing := &service.IngestService{DB: db, Now: clock, Logger: logger}
		_, err := ing.Import(ctx, "ledger.csv", strings.NewReader(ledgerCSV))
		require.NoError(t, err)
		_, err = rec.Run(ctx)
		require.NoError(t, err)
	}
	insights := &service.InsightsService{DB: db, Logger: logger}
	srv := api.NewServer(":0", api.Services{
		Insights:   insights,
		Recompute:  rec,
		Statements: &service.StatementService{DB: db, Recompute: rec},
		Explain:    &service.ExplainService{Insights: insights, Explainer: explainer, Logger: logger},
	}, logger)
	return fixture{db: db, server: srv}
}

func (f fixture) do(t *testing.T, method, path string, body []byte) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != nil {
		req = httptest.NewRequest(method, path, bytes.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	rec := httptest.NewRecorder()
	f.server.Router().ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v))
	return v
}

func TestHealth(t *testing.T) {
	f := newFixture(t, false)
	rec := f.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	body := decode[map[string]string](t, rec)
	assert.Equal(t, "ok", body["status"])
	_, err := time.Parse(time.RFC3339, body["timestamp"])
	assert.NoError(t, err)
}

func TestListSubscriptions(t *testing.T) {
	t.Run("empty ledger returns empty array", func(t *testing.T) {
		f := newFixture(t, false)
		rec := f.do(t, http.MethodGet, "/api/subscriptions", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, "[]", rec.Body.String())
	})

	t.Run("detected series", func(t *testing.T) {
		f := newFixture(t, true)
		rec := f.do(t, http.MethodGet, "/api/subscriptions", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		subs := decode[[]service.Subscription](t, rec)
		require.Len(t, subs, 1)
		assert.Equal(t, "NETFLIX", subs[0].Merchant)
		assert.Equal(t, 30, subs[0].PeriodDays)
	})
}

func TestAlerts(t *testing.T) {
	f := newFixture(t, true)

	rec := f.do(t, http.MethodGet, "/api/alerts", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	alerts := decode[[]map[string]any](t, rec)
	require.NotEmpty(t, alerts)

	var priceID string
	for _, a := range alerts {
		if a["type"] == "price_change" {
			priceID = a["id"].(string)
		}
	}
	require.NotEmpty(t, priceID, "expected a price_change alert")

	t.Run("get by id", func(t *testing.T) {
		rec := f.do(t, http.MethodGet, "/api/alerts/"+priceID, nil)
		require.Equal(t, http.StatusOK, rec.Code)
		a := decode[map[string]any](t, rec)
		ev := a["evidence"].(map[string]any)
		assert.InDelta(t, -19.99, ev["last_amount"], 0.001)
	})

	t.Run("unknown id is 404", func(t *testing.T) {
		rec := f.do(t, http.MethodGet, "/api/alerts/nope", nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
		assert.Equal(t, api.ErrCodeNotFound, decode[api.APIError](t, rec).Code)
	})

	t.Run("dismiss hides alert", func(t *testing.T) {
		rec := f.do(t, http.MethodPost, "/api/alerts/"+priceID+"/dismiss", []byte(`{"dismissed":true}`))
		require.Equal(t, http.StatusOK, rec.Code)

		rec = f.do(t, http.MethodGet, "/api/alerts", nil)
		for _, a := range decode[[]map[string]any](t, rec) {
			assert.NotEqual(t, priceID, a["id"])
		}

		rec = f.do(t, http.MethodGet, "/api/alerts?include_dismissed=true", nil)
		var found bool
		for _, a := range decode[[]map[string]any](t, rec) {
			if a["id"] == priceID {
				found = true
				assert.Equal(t, true, a["dismissed"])
			}
		}
		assert.True(t, found)
	})

	t.Run("undismiss", func(t *testing.T) {
		rec := f.do(t, http.MethodPost, "/api/alerts/"+priceID+"/dismiss", []byte(`{"dismissed":false}`))
		require.Equal(t, http.StatusOK, rec.Code)
		rec = f.do(t, http.MethodGet, "/api/alerts/"+priceID, nil)
		assert.Equal(t, false, decode[map[string]any](t, rec)["dismissed"])
	})

	t.Run("bad body", func(t *testing.T) {
		rec := f.do(t, http.MethodPost, "/api/alerts/"+priceID+"/dismiss", []byte(`{`))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("dismiss unknown is 404", func(t *testing.T) {
		rec := f.do(t, http.MethodPost, "/api/alerts/nope/dismiss", []byte(`{"dismissed":true}`))
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("limit", func(t *testing.T) {
		rec := f.do(t, http.MethodGet, "/api/alerts?limit=1", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Len(t, decode[[]map[string]any](t, rec), 1)
	})
}

func TestExplainAlert(t *testing.T) {
	f := newFixture(t, true)
	alerts := decode[[]map[string]any](t, f.do(t, http.MethodGet, "/api/alerts", nil))
	var priceID string
	for _, a := range alerts {
		if a["type"] == "price_change" {
			priceID = a["id"].(string)
		}
	}
	require.NotEmpty(t, priceID)

	rec := f.do(t, http.MethodGet, "/api/alerts/"+priceID+"/explain?mode=analyst", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	got := decode[service.Explanation](t, rec)
	assert.Equal(t, priceID, got.AlertID)
	assert.Equal(t, llm.ModeAnalyst, got.Mode)
	assert.Equal(t, "stub", got.Model)
	assert.Equal(t, "NETFLIX charged 4.00 more than usual.", got.Text)

	rec = f.do(t, http.MethodGet, "/api/alerts/nope/explain", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	require.NoError(t, repository.NewSettingsRepo(f.db).Set(context.Background(), repository.SettingEncryptionEnabled, "1"))
	require.NoError(t, repository.NewEventRepo(f.db).UpdateEvidence(context.Background(), priceID, "enc:sealed"))
	rec = f.do(t, http.MethodGet, "/api/alerts/"+priceID+"/explain", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, api.ErrCodeLocked, decode[api.APIError](t, rec).Code)
}

func TestExplainAlertDisabled(t *testing.T) {
	f := newFixture(t, true)
	srv := api.NewServer(":0", api.Services{
		Insights: &service.InsightsService{DB: f.db},
		Explain:  &service.ExplainService{Insights: &service.InsightsService{DB: f.db}},
	}, logging.Discard())

	alerts := decode[[]map[string]any](t, f.do(t, http.MethodGet, "/api/alerts", nil))
	require.NotEmpty(t, alerts)
	path := "/api/alerts/" + alerts[0]["id"].(string) + "/explain"
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, api.ErrCodeLLMDisabled, decode[api.APIError](t, rec).Code)

	rec = httptest.NewRecorder()
	bare := api.NewServer(":0", api.Services{Insights: &service.InsightsService{DB: f.db}}, logging.Discard())
	bare.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	assert.Equal(t, http.StatusNotFound, rec.Code, "no explain route without the service")
}

func TestRecomputeEndpoint(t *testing.T) {
	f := newFixture(t, true)
	rec := f.do(t, http.MethodPost, "/api/recompute", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode[map[string]int](t, rec)
	assert.Equal(t, 1, body["series"])
	assert.Positive(t, body["events"])
	assert.Zero(t, body["merchants_created"])
}

func TestRecomputeLocked(t *testing.T) {
	f := newFixture(t, false)
	require.NoError(t, repository.NewSettingsRepo(f.db).Set(context.Background(), repository.SettingEncryptionEnabled, "1"))

	rec := f.do(t, http.MethodPost, "/api/recompute", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, api.ErrCodeLocked, decode[api.APIError](t, rec).Code)
}

func TestListStatements(t *testing.T) {
	f := newFixture(t, true)
	rec := f.do(t, http.MethodGet, "/api/statements", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	stmts := decode[[]map[string]any](t, rec)
	require.Len(t, stmts, 1)
	assert.Equal(t, "ledger.csv", stmts[0]["filename"])
	assert.Equal(t, float64(5), stmts[0]["rows"])
	assert.Equal(t, "2025-05", stmts[0]["label"])
}
