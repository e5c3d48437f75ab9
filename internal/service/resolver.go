package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jask/subsentry/internal/database/repository"
	"github.com/jask/subsentry/internal/detect"
	"github.com/jask/subsentry/internal/secrets"
)

// Resolution is the outcome of matching one description. Exactly one of
// MerchantID and Create is set unless the description was empty.
type Resolution struct {
	MerchantID string
	// Create is the canonical name of a merchant that must be created.
	Create string
}

// Resolve picks a merchant for a normalized description: alias match, then
// exact canonical hint, then fuzzy match at or above threshold, else a new
// merchant named after the hint. An empty description resolves to nothing.
func Resolve(cleaned string, aliases []repository.MerchantAlias, merchants []repository.Merchant, threshold float64) Resolution {
	for _, a := range aliases {
		pat := detect.Upper(a.Pattern)
		if pat == "" {
			continue
		}
		switch a.PatternType {
		case repository.PatternContains:
			if strings.Contains(cleaned, pat) {
				return Resolution{MerchantID: a.MerchantID}
			}
		case repository.PatternExact:
			if cleaned == pat {
				return Resolution{MerchantID: a.MerchantID}
			}
		}
	}

	hint := detect.CanonicalHint(cleaned)
	for _, m := range merchants {
		if m.CanonicalName == hint {
			return Resolution{MerchantID: m.ID}
		}
	}
	if len(merchants) > 0 {
		names := make([]string, len(merchants))
		for i, m := range merchants {
			names[i] = m.CanonicalName
		}
		if idx, score, ok := detect.BestMatch(hint, names); ok && score >= threshold {
			return Resolution{MerchantID: merchants[idx].ID}
		}
	}
	if cleaned == "" {
		return Resolution{}
	}
	return Resolution{Create: hint}
}

// Resolver assigns merchants to every transaction in the ledger.
type Resolver struct {
	Transactions *repository.TransactionRepo
	Merchants    *repository.MerchantRepo
	Codec        secrets.Codec
	Threshold    float64
	Now          func() time.Time
	Logger       *slog.Logger
}

// ResolveResult counts the writes of one pass.
type ResolveResult struct {
	Updated int
	Created int
}

// NewResolver builds a resolver whose repos share db, which may be a transaction.
func NewResolver(db repository.DBTX, codec secrets.Codec, threshold float64) *Resolver {
	return &Resolver{
		Transactions: repository.NewTransactionRepo(db),
		Merchants:    repository.NewMerchantRepo(db),
		Codec:        codec,
		Threshold:    threshold,
	}
}

// ResolveAll re-resolves the whole ledger against the aliases and merchants
// present at the start of the pass. Only changed assignments are written, so
// a second pass over unchanged inputs writes nothing.
func (r *Resolver) ResolveAll(ctx context.Context) (ResolveResult, error) {
	log := loggerOrDefault(r.Logger)
	codec := codecOrPlain(r.Codec)
	now := nowFunc(r.Now)
	threshold := r.Threshold
	if threshold <= 0 {
		threshold = DefaultEngineOptions().FuzzyThreshold
	}

	aliases, err := r.Merchants.ListAliases(ctx)
	if err != nil {
		return ResolveResult{}, fmt.Errorf("list aliases: %w", err)
	}
	merchants, err := r.Merchants.List(ctx)
	if err != nil {
		return ResolveResult{}, fmt.Errorf("list merchants: %w", err)
	}
	txns, err := r.Transactions.List(ctx, transactionScanLimit)
	if err != nil {
		return ResolveResult{}, fmt.Errorf("list transactions: %w", err)
	}

	var res ResolveResult
	for _, t := range txns {
		raw, err := codec.Decrypt(t.DescriptionRaw)
		if err != nil {
			log.Warn("description unreadable", "txn_id", t.ID, "err", err)
			raw = ""
		}
		choice := Resolve(detect.Normalize(raw), aliases, merchants, threshold)

		var chosen *string
		switch {
		case choice.MerchantID != "":
			id := choice.MerchantID
			chosen = &id
		case choice.Create != "":
			m, created, err := r.Merchants.GetOrCreate(ctx, choice.Create, now())
			if err != nil {
				return res, fmt.Errorf("create merchant: %w", err)
			}
			if created {
				res.Created++
			}
			chosen = &m.ID
		}

		if sameMerchant(t.MerchantID, chosen) {
			continue
		}
		if err := r.Transactions.UpdateMerchant(ctx, t.ID, chosen); err != nil {
			return res, fmt.Errorf("assign merchant: %w", err)
		}
		res.Updated++
	}
	log.Info("merchant resolution", "updated", res.Updated, "created", res.Created)
	return res, nil
}

func sameMerchant(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
