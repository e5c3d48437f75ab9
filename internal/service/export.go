package service

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// exportAlertLimit bounds the alerts section of an insights export.
const exportAlertLimit = 500

// InsightsPayload is the exported snapshot.
type InsightsPayload struct {
	MonthlySpend  []MonthSpend         `json:"monthly_spend"`
	Subscriptions []ExportSubscription `json:"subscriptions"`
	Alerts        []ExportAlert        `json:"alerts"`
}

type ExportSubscription struct {
	Merchant       string  `json:"merchant"`
	PeriodDays     int     `json:"period_days"`
	AmountMedian   float64 `json:"amount_median"`
	Confidence     float64 `json:"confidence"`
	LastTxnID      string  `json:"last_txn_id"`
	NextExpectedAt string  `json:"next_expected_at"`
}

type ExportAlert struct {
	CreatedAt string `json:"created_at"`
	Type      string `json:"type"`
	Severity  string `json:"severity"`
	Title     string `json:"title"`
}

// BuildPayload collects monthly spend, subscriptions and open alerts.
func (s *InsightsService) BuildPayload(ctx context.Context) (InsightsPayload, error) {
	monthly, err := s.MonthlySpend(ctx)
	if err != nil {
		return InsightsPayload{}, err
	}
	subs, err := s.Subscriptions(ctx)
	if err != nil {
		return InsightsPayload{}, err
	}
	alerts, err := s.Alerts(ctx, false, exportAlertLimit)
	if err != nil {
		return InsightsPayload{}, err
	}

	p := InsightsPayload{
		MonthlySpend:  monthly,
		Subscriptions: make([]ExportSubscription, 0, len(subs)),
		Alerts:        make([]ExportAlert, 0, len(alerts)),
	}
	if p.MonthlySpend == nil {
		p.MonthlySpend = []MonthSpend{}
	}
	for _, sub := range subs {
		p.Subscriptions = append(p.Subscriptions, ExportSubscription{
			Merchant:       sub.Merchant,
			PeriodDays:     sub.PeriodDays,
			AmountMedian:   sub.AmountMedian,
			Confidence:     sub.Confidence,
			LastTxnID:      sub.LastTxnID,
			NextExpectedAt: sub.NextExpectedAt.UTC().Format(time.RFC3339),
		})
	}
	for _, a := range alerts {
		p.Alerts = append(p.Alerts, ExportAlert{
			CreatedAt: a.CreatedAt.UTC().Format(time.RFC3339),
			Type:      string(a.Type),
			Severity:  string(a.Severity),
			Title:     a.Title,
		})
	}
	return p, nil
}

// Export writes the insights payload to dir as csv or json and returns the
// file path. The file name carries the UTC export time.
func (s *InsightsService) Export(ctx context.Context, dir, format string, now time.Time) (string, error) {
	format = strings.ToLower(strings.TrimSpace(format))
	if format == "" {
		format = "csv"
	}
	if format != "csv" && format != "json" {
		return "", fmt.Errorf("unsupported export format %q", format)
	}
	payload, err := s.BuildPayload(ctx)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("mkdir export dir: %w", err)
	}
	path := filepath.Join(dir, fmt.Sprintf("subsentry_insights_%s.%s", now.UTC().Format("20060102_150405"), format))

	f, err := os.Create(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	if format == "json" {
		enc := json.NewEncoder(f)
		enc.SetIndent("", "  ")
		if err := enc.Encode(payload); err != nil {
			return "", fmt.Errorf("write json: %w", err)
		}
		return path, f.Close()
	}

	w := csv.NewWriter(f)
	records := [][]string{{"SECTION", "FIELD", "VALUE"}}
	for _, m := range payload.MonthlySpend {
		records = append(records, []string{"monthly_spend", m.Month, fmt.Sprintf("%.2f", m.Total)})
	}
	for _, sub := range payload.Subscriptions {
		records = append(records, []string{"subscription", sub.Merchant,
			fmt.Sprintf("%dd | %.2f | next %s | conf %.2f", sub.PeriodDays, sub.AmountMedian, sub.NextExpectedAt, sub.Confidence)})
	}
	for _, a := range payload.Alerts {
		records = append(records, []string{"alert", a.CreatedAt, fmt.Sprintf("%s | %s | %s", a.Severity, a.Type, a.Title)})
	}
	if err := w.WriteAll(records); err != nil {
		return "", fmt.Errorf("write csv: %w", err)
	}
	return path, f.Close()
}
