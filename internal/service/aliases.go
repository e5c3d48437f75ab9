package service

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/jask/subsentry/internal/database"
	"github.com/jask/subsentry/internal/database/repository"
)

// AliasRule is one entry of an alias rules file.
type AliasRule struct {
	Merchant   string   `yaml:"merchant"`
	Pattern    string   `yaml:"pattern"`
	Type       string   `yaml:"type"`
	Confidence *float64 `yaml:"confidence"`
}

// AliasFile is the YAML document accepted by ImportYAML.
type AliasFile struct {
	Aliases []AliasRule `yaml:"aliases"`
}

// AliasView is an alias with its merchant name.
type AliasView struct {
	repository.MerchantAlias
	Merchant string
}

// AliasService manages merchant aliases.
type AliasService struct {
	DB  *sql.DB
	Now func() time.Time
}

// Add maps pattern to merchantName, creating the merchant if it is new.
func (s *AliasService) Add(ctx context.Context, rule AliasRule) (repository.MerchantAlias, error) {
	var out repository.MerchantAlias
	err := database.WithTx(ctx, s.DB, func(tx *sql.Tx) error {
		var err error
		out, err = s.add(ctx, repository.NewMerchantRepo(tx), rule)
		return err
	})
	return out, err
}

// List returns aliases in resolver priority order.
func (s *AliasService) List(ctx context.Context) ([]AliasView, error) {
	repo := repository.NewMerchantRepo(s.DB)
	aliases, err := repo.ListAliases(ctx)
	if err != nil {
		return nil, err
	}
	merchants, err := repo.List(ctx)
	if err != nil {
		return nil, err
	}
	names := make(map[string]string, len(merchants))
	for _, m := range merchants {
		names[m.ID] = m.CanonicalName
	}
	out := make([]AliasView, len(aliases))
	for i, a := range aliases {
		out[i] = AliasView{MerchantAlias: a, Merchant: names[a.MerchantID]}
	}
	return out, nil
}

// ImportYAML adds every rule of an alias file in one transaction and returns
// how many were stored.
func (s *AliasService) ImportYAML(ctx context.Context, r io.Reader) (int, error) {
	var doc AliasFile
	if err := yaml.NewDecoder(r).Decode(&doc); err != nil && err != io.EOF {
		return 0, fmt.Errorf("parse alias file: %w", err)
	}
	err := database.WithTx(ctx, s.DB, func(tx *sql.Tx) error {
		repo := repository.NewMerchantRepo(tx)
		for i, rule := range doc.Aliases {
			if _, err := s.add(ctx, repo, rule); err != nil {
				return fmt.Errorf("alias %d: %w", i+1, err)
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return len(doc.Aliases), nil
}

func (s *AliasService) add(ctx context.Context, repo *repository.MerchantRepo, rule AliasRule) (repository.MerchantAlias, error) {
	merchant := repository.CanonicalName(rule.Merchant)
	pattern := strings.TrimSpace(rule.Pattern)
	if merchant == "" {
		return repository.MerchantAlias{}, fmt.Errorf("merchant is required")
	}
	if pattern == "" {
		return repository.MerchantAlias{}, fmt.Errorf("pattern is required")
	}
	kind := strings.ToLower(strings.TrimSpace(rule.Type))
	if kind == "" {
		kind = repository.PatternContains
	}
	if kind != repository.PatternContains && kind != repository.PatternExact {
		return repository.MerchantAlias{}, fmt.Errorf("pattern type %q: want contains or exact", rule.Type)
	}
	confidence := 1.0
	if rule.Confidence != nil {
		confidence = *rule.Confidence
	}

	now := nowFunc(s.Now)()
	m, _, err := repo.GetOrCreate(ctx, merchant, now)
	if err != nil {
		return repository.MerchantAlias{}, fmt.Errorf("merchant %s: %w", merchant, err)
	}
	a := repository.MerchantAlias{
		MerchantID:  m.ID,
		Pattern:     pattern,
		PatternType: kind,
		Confidence:  confidence,
		CreatedAt:   now,
	}
	if err := repo.UpsertAlias(ctx, a); err != nil {
		return repository.MerchantAlias{}, fmt.Errorf("store alias: %w", err)
	}
	return a, nil
}
