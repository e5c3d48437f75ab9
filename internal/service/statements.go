package service

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jask/subsentry/internal/database"
	"github.com/jask/subsentry/internal/database/repository"
)

// StatementService lists and removes imported statements.
type StatementService struct {
	DB        *sql.DB
	Recompute *Recomputer
}

// DeleteStatementResult reports a statement removal.
type DeleteStatementResult struct {
	TransactionsDeleted int64
	Recompute           RecomputeResult
}

func (s *StatementService) List(ctx context.Context) ([]repository.SourceFile, error) {
	return repository.NewSourceFileRepo(s.DB).List(ctx)
}

// Delete removes a statement and its transactions, then recomputes, all in
// one transaction. Unknown ids yield repository.ErrNotFound.
func (s *StatementService) Delete(ctx context.Context, id string) (DeleteStatementResult, error) {
	var res DeleteStatementResult
	err := database.WithTx(ctx, s.DB, func(tx *sql.Tx) error {
		if _, err := repository.NewSourceFileRepo(tx).Get(ctx, id); err != nil {
			return err
		}
		// derived rows reference transactions; the recompute below rebuilds them
		if err := repository.NewEventRepo(tx).DeleteForSourceFile(ctx, id); err != nil {
			return fmt.Errorf("clear events: %w", err)
		}
		if err := repository.NewSeriesRepo(tx).DeleteForSourceFile(ctx, id); err != nil {
			return fmt.Errorf("clear series: %w", err)
		}
		n, err := repository.NewTransactionRepo(tx).DeleteBySourceFile(ctx, id)
		if err != nil {
			return fmt.Errorf("delete transactions: %w", err)
		}
		res.TransactionsDeleted = n
		if _, err := repository.NewSourceFileRepo(tx).Delete(ctx, id); err != nil {
			return fmt.Errorf("delete statement: %w", err)
		}
		if s.Recompute == nil {
			return nil
		}
		rr, err := s.Recompute.RunTx(ctx, tx)
		if err != nil {
			return err
		}
		res.Recompute = rr
		return nil
	})
	if err != nil {
		return DeleteStatementResult{}, err
	}
	return res, nil
}
