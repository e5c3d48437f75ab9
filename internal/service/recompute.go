package service

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jask/subsentry/internal/alert"
	"github.com/jask/subsentry/internal/database"
	"github.com/jask/subsentry/internal/database/repository"
	"github.com/jask/subsentry/internal/detect"
	"github.com/jask/subsentry/internal/secrets"
)

// State is the recompute phase.
type State string

const (
	StateIdle            State = "idle"
	StateResolving       State = "resolving"
	StateSeriesDetection State = "series_detection"
	StateEventGeneration State = "event_generation"
)

// Recomputer re-derives merchants, recurring series and events from the
// ledger. A run is one transaction: on any error nothing it wrote survives.
type Recomputer struct {
	DB      *sql.DB
	Codec   secrets.Codec
	Options EngineOptions
	Now     func() time.Time
	Logger  *slog.Logger
	// OnState, when set, observes every phase transition.
	OnState func(State)

	mu    sync.Mutex
	state State
}

// RecomputeResult summarizes one run.
type RecomputeResult struct {
	Resolution ResolveResult
	Series     int
	Events     int
	Dismissed  int
}

// State reports the current phase.
func (r *Recomputer) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state == "" {
		return StateIdle
	}
	return r.state
}

func (r *Recomputer) setState(s State) {
	r.mu.Lock()
	r.state = s
	r.mu.Unlock()
	if r.OnState != nil {
		r.OnState(s)
	}
}

// Run recomputes inside its own transaction.
func (r *Recomputer) Run(ctx context.Context) (RecomputeResult, error) {
	var res RecomputeResult
	err := database.WithTx(ctx, r.DB, func(tx *sql.Tx) error {
		var err error
		res, err = r.RunTx(ctx, tx)
		return err
	})
	if err != nil {
		return RecomputeResult{}, err
	}
	return res, nil
}

// RunTx recomputes using tx, leaving commit or rollback to the caller.
func (r *Recomputer) RunTx(ctx context.Context, tx repository.DBTX) (RecomputeResult, error) {
	defer r.setState(StateIdle)

	opts := r.Options.withDefaults()
	log := loggerOrDefault(r.Logger)
	now := nowFunc(r.Now)
	if err := ensureUnlocked(ctx, tx, r.Codec); err != nil {
		return RecomputeResult{}, err
	}
	codec := codecOrPlain(r.Codec)

	merchantRepo := repository.NewMerchantRepo(tx)
	txnRepo := repository.NewTransactionRepo(tx)
	seriesRepo := repository.NewSeriesRepo(tx)
	eventRepo := repository.NewEventRepo(tx)

	var res RecomputeResult

	r.setState(StateResolving)
	resolver := &Resolver{
		Transactions: txnRepo,
		Merchants:    merchantRepo,
		Codec:        codec,
		Threshold:    opts.FuzzyThreshold,
		Now:          now,
		Logger:       log,
	}
	resolved, err := resolver.ResolveAll(ctx)
	if err != nil {
		return res, fmt.Errorf("resolve merchants: %w", err)
	}
	res.Resolution = resolved

	var dismissed map[string]struct{}
	if opts.PreserveDismissals {
		if dismissed, err = eventRepo.DismissedKeys(ctx); err != nil {
			return res, fmt.Errorf("snapshot dismissals: %w", err)
		}
	}
	if err := eventRepo.DeleteAll(ctx); err != nil {
		return res, fmt.Errorf("clear events: %w", err)
	}
	if err := seriesRepo.DeleteAll(ctx); err != nil {
		return res, fmt.Errorf("clear series: %w", err)
	}

	r.setState(StateSeriesDetection)
	merchants, err := merchantRepo.List(ctx)
	if err != nil {
		return res, fmt.Errorf("list merchants: %w", err)
	}
	var inputs []alert.SeriesInput
	for _, m := range merchants {
		txns, err := txnRepo.ListForMerchant(ctx, m.ID, merchantScanLimit)
		if err != nil {
			return res, fmt.Errorf("merchant history: %w", err)
		}
		if len(txns) < opts.MinPoints {
			continue
		}
		dates := make([]time.Time, len(txns))
		amounts := make([]float64, len(txns))
		charges := make([]alert.Charge, len(txns))
		for i, t := range txns {
			dates[i] = t.PostedAt
			amounts[i] = t.Amount()
			charges[i] = alert.Charge{TxnID: t.ID, PostedAt: t.PostedAt, Amount: t.Amount()}
		}
		found, ok := detect.DetectRecurring(dates, amounts, opts.MinPoints)
		if !ok {
			continue
		}
		series := repository.RecurringSeries{
			ID:             uuid.NewString(),
			MerchantID:     m.ID,
			PeriodDays:     found.PeriodDays,
			AmountMedian:   found.AmountMedian,
			AmountMAD:      found.AmountMAD,
			GapMedian:      found.GapMedian,
			GapMAD:         found.GapMAD,
			Confidence:     found.Confidence,
			LastTxnID:      txns[len(txns)-1].ID,
			NextExpectedAt: found.NextExpectedAt,
			Status:         repository.SeriesStatusActive,
		}
		if err := seriesRepo.Upsert(ctx, series); err != nil {
			return res, fmt.Errorf("store series: %w", err)
		}
		inputs = append(inputs, alert.SeriesInput{
			MerchantID:   m.ID,
			MerchantName: m.CanonicalName,
			SeriesID:     series.ID,
			PeriodDays:   found.PeriodDays,
			Confidence:   found.Confidence,
			Charges:      charges,
		})
	}
	res.Series = len(inputs)

	r.setState(StateEventGeneration)
	gen := alert.Generator{Now: now, NewSubscriptionWindow: opts.NewSubscriptionWindow}
	var events []alert.Event
	for _, in := range inputs {
		events = append(events, gen.ForSeries(in)...)
	}

	records, err := ledgerRecords(ctx, txnRepo, merchants)
	if err != nil {
		return res, err
	}
	events = append(events, alert.ForAnomalies(
		detect.MerchantAnomalies(records, opts.Anomalies),
		detect.DailySpikes(records, opts.Anomalies),
		detect.SmallChargeBursts(records, opts.Anomalies),
	)...)

	createdAt := now()
	for _, ev := range events {
		row, err := eventRow(ev, codec, createdAt)
		if err != nil {
			return res, err
		}
		if _, ok := dismissed[row.IdentityKey]; ok {
			row.Dismissed = true
			res.Dismissed++
		}
		if err := eventRepo.Add(ctx, row); err != nil {
			return res, fmt.Errorf("store event: %w", err)
		}
	}
	res.Events = len(events)

	log.Info("recompute done", "series", res.Series, "events", res.Events, "kept_dismissed", res.Dismissed)
	return res, nil
}

// ledgerRecords flattens the ledger for the batch anomaly detectors.
func ledgerRecords(ctx context.Context, txns *repository.TransactionRepo, merchants []repository.Merchant) ([]detect.Record, error) {
	names := make(map[string]string, len(merchants))
	for _, m := range merchants {
		names[m.ID] = m.CanonicalName
	}
	all, err := txns.List(ctx, transactionScanLimit)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	out := make([]detect.Record, len(all))
	for i, t := range all {
		name := UnknownMerchant
		if t.MerchantID != nil {
			if n, ok := names[*t.MerchantID]; ok {
				name = n
			}
		}
		out[i] = detect.Record{TxnID: t.ID, PostedAt: t.PostedAt, Amount: t.Amount(), Merchant: name}
	}
	return out, nil
}

func eventRow(ev alert.Event, codec secrets.Codec, createdAt time.Time) (repository.Event, error) {
	evidence, err := alert.EncodeEvidence(ev.Evidence)
	if err != nil {
		return repository.Event{}, err
	}
	stored, err := codec.Encrypt(evidence)
	if err != nil {
		return repository.Event{}, fmt.Errorf("encrypt evidence: %w", err)
	}
	return repository.Event{
		ID:           uuid.NewString(),
		CreatedAt:    createdAt,
		Type:         string(ev.Type),
		Severity:     string(ev.Severity),
		Title:        ev.Title,
		MerchantID:   optional(ev.MerchantID),
		SeriesID:     optional(ev.SeriesID),
		TxnID:        optional(ev.TxnID),
		EvidenceJSON: stored,
		IdentityKey:  ev.IdentityKey(),
	}, nil
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
