package service

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/jask/subsentry/internal/alert"
	"github.com/jask/subsentry/internal/database/repository"
	"github.com/jask/subsentry/internal/secrets"
)

// Subscription is a recurring series joined with its merchant name.
type Subscription struct {
	SeriesID       string    `json:"series_id"`
	MerchantID     string    `json:"merchant_id"`
	Merchant       string    `json:"merchant"`
	PeriodDays     int       `json:"period_days"`
	AmountMedian   float64   `json:"amount_median"`
	AmountMAD      float64   `json:"amount_mad"`
	Confidence     float64   `json:"confidence"`
	LastTxnID      string    `json:"last_txn_id"`
	NextExpectedAt time.Time `json:"next_expected_at"`
	Status         string    `json:"status"`
}

// Alert is a stored event with its evidence decrypted and decoded.
type Alert struct {
	ID         string         `json:"id"`
	CreatedAt  time.Time      `json:"created_at"`
	Type       alert.Type     `json:"type"`
	Severity   alert.Severity `json:"severity"`
	Title      string         `json:"title"`
	MerchantID *string        `json:"merchant_id,omitempty"`
	SeriesID   *string        `json:"series_id,omitempty"`
	TxnID      *string        `json:"txn_id,omitempty"`
	Dismissed  bool           `json:"dismissed"`
	Evidence   alert.Evidence `json:"evidence"`
}

// MonthSpend is the signed total of one calendar month.
type MonthSpend struct {
	Month string  `json:"month"`
	Total float64 `json:"total"`
}

// InsightsService is the read side over series and events.
type InsightsService struct {
	DB    *sql.DB
	Codec secrets.Codec
	// Location buckets monthly totals. Nil means UTC.
	Location *time.Location
	Logger   *slog.Logger
}

// Subscriptions lists detected series, most confident first.
func (s *InsightsService) Subscriptions(ctx context.Context) ([]Subscription, error) {
	series, err := repository.NewSeriesRepo(s.DB).List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list series: %w", err)
	}
	merchants, err := repository.NewMerchantRepo(s.DB).List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list merchants: %w", err)
	}
	names := make(map[string]string, len(merchants))
	for _, m := range merchants {
		names[m.ID] = m.CanonicalName
	}
	out := make([]Subscription, 0, len(series))
	for _, rs := range series {
		name, ok := names[rs.MerchantID]
		if !ok {
			name = UnknownMerchant
		}
		out = append(out, Subscription{
			SeriesID:       rs.ID,
			MerchantID:     rs.MerchantID,
			Merchant:       name,
			PeriodDays:     rs.PeriodDays,
			AmountMedian:   rs.AmountMedian,
			AmountMAD:      rs.AmountMAD,
			Confidence:     rs.Confidence,
			LastTxnID:      rs.LastTxnID,
			NextExpectedAt: rs.NextExpectedAt,
			Status:         rs.Status,
		})
	}
	return out, nil
}

// Alerts lists events newest first. limit <= 0 means all.
func (s *InsightsService) Alerts(ctx context.Context, includeDismissed bool, limit int) ([]Alert, error) {
	rows, err := repository.NewEventRepo(s.DB).List(ctx, includeDismissed, limit)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	out := make([]Alert, len(rows))
	for i, e := range rows {
		out[i] = s.toAlert(e)
	}
	return out, nil
}

// Alert returns one event. Unknown ids yield repository.ErrNotFound.
func (s *InsightsService) Alert(ctx context.Context, id string) (Alert, error) {
	e, err := repository.NewEventRepo(s.DB).Get(ctx, id)
	if err != nil {
		return Alert{}, err
	}
	return s.toAlert(*e), nil
}

// Dismiss sets or clears the dismissal flag of an event.
func (s *InsightsService) Dismiss(ctx context.Context, id string, dismissed bool) error {
	return repository.NewEventRepo(s.DB).SetDismissed(ctx, id, dismissed)
}

// MonthlySpend totals the ledger per calendar month in s.Location, oldest
// first.
func (s *InsightsService) MonthlySpend(ctx context.Context) ([]MonthSpend, error) {
	totals, err := repository.NewTransactionRepo(s.DB).MonthlySpend(ctx, s.Location)
	if err != nil {
		return nil, fmt.Errorf("monthly spend: %w", err)
	}
	out := make([]MonthSpend, len(totals))
	for i, m := range totals {
		out[i] = MonthSpend{Month: m.Month, Total: float64(m.TotalCents) / 100}
	}
	return out, nil
}

func (s *InsightsService) toAlert(e repository.Event) Alert {
	t := alert.Type(e.Type)
	var ev alert.Evidence
	plain, err := codecOrPlain(s.Codec).Decrypt(e.EvidenceJSON)
	if err != nil {
		loggerOrDefault(s.Logger).Debug("evidence unreadable", "event_id", e.ID, "err", err)
		ev = alert.Unreadable{Error: alert.UnreadableMessage, Type: t}
	} else {
		ev = alert.DecodeOrPlaceholder(t, plain)
	}
	return Alert{
		ID:         e.ID,
		CreatedAt:  e.CreatedAt,
		Type:       t,
		Severity:   alert.Severity(e.Severity),
		Title:      e.Title,
		MerchantID: e.MerchantID,
		SeriesID:   e.SeriesID,
		TxnID:      e.TxnID,
		Dismissed:  e.Dismissed,
		Evidence:   ev,
	}
}
