package repository

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// querier is the subset of pgx operations the repositories use. Both
// *pgxpool.Pool and pgx.Tx satisfy it, so a repository works unchanged
// inside or outside a transaction.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// TxRunner executes a function with case and message repositories bound to
// one database transaction. Everything fn writes commits together or not
// at all.
type TxRunner interface {
	InTx(ctx context.Context, fn func(cases CaseRepository, messages MessageRepository) error) error
}

type txRunner struct {
	pool *pgxpool.Pool
}

// NewTxRunner builds a transaction runner on the pool.
func NewTxRunner(pool *pgxpool.Pool) TxRunner {
	return &txRunner{pool: pool}
}

func (r *txRunner) InTx(ctx context.Context, fn func(cases CaseRepository, messages MessageRepository) error) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	// Rollback after a successful commit is a no-op.
	defer tx.Rollback(ctx) //nolint:errcheck

	if err := fn(&caseRepository{db: tx}, &messageRepository{db: tx}); err != nil {
		return err
	}
	return tx.Commit(ctx)
}
