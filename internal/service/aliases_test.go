package service

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/jask/subsentry/internal/database/repository"
)

func TestAliasImportYAML(t *testing.T) {
	t.Parallel()
	db := newTestDB(t)
	ctx := testContext(t)
	svc := &AliasService{DB: db, Now: fixedClock}

	doc := `
aliases:
  - merchant: Netflix
    pattern: nflx
  - merchant: Amazon Prime
    pattern: AMZN PRIME
    type: exact
    confidence: 0.8
`
	n, err := svc.ImportYAML(ctx, strings.NewReader(doc))
	require.NoError(t, err)
	require.Equal(t, 2, n)

	views, err := svc.List(ctx)
	require.NoError(t, err)
	require.Len(t, views, 2)
	require.Equal(t, "NETFLIX", views[0].Merchant)
	require.Equal(t, repository.PatternContains, views[0].PatternType)
	require.Equal(t, "AMAZON PRIME", views[1].Merchant)
	require.Equal(t, repository.PatternExact, views[1].PatternType)
	require.Equal(t, 0.8, views[1].Confidence)

	// re-importing refreshes rather than duplicates
	_, err = svc.ImportYAML(ctx, strings.NewReader(doc))
	require.NoError(t, err)
	views, err = svc.List(ctx)
	require.NoError(t, err)
	require.Len(t, views, 2)
}

func TestAliasImportRejectsBadRuleAtomically(t *testing.T) {
	t.Parallel()
	db := newTestDB(t)
	ctx := testContext(t)
	svc := &AliasService{DB: db, Now: fixedClock}

	doc := `
aliases:
  - merchant: Good
    pattern: good
  - merchant: Bad
    pattern: bad
    type: regex
`
	_, err := svc.ImportYAML(ctx, strings.NewReader(doc))
	require.ErrorContains(t, err, "alias 2")

	views, err := svc.List(ctx)
	require.NoError(t, err)
	require.Empty(t, views)
}

func TestAliasAddValidates(t *testing.T) {
	t.Parallel()
	db := newTestDB(t)
	svc := &AliasService{DB: db}
	_, err := svc.Add(testContext(t), AliasRule{Merchant: "X"})
	require.Error(t, err)
	_, err = svc.Add(testContext(t), AliasRule{Pattern: "x"})
	require.Error(t, err)
}
