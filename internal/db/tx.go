package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// ErrTxConflict marks a transaction that repeatedly lost a serialization or
// deadlock race. It is transient: callers should retry the whole operation.
// It must never be reported as a business-rule rejection.
var ErrTxConflict = errors.New("transaction conflict, retry")

// Querier is the subset of pgx shared by pools and transactions. Repositories
// are built over it so the same code runs inside or outside a transaction and
// can be exercised with pgxmock.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Pool is what services need from *pgxpool.Pool.
type Pool interface {
	Querier
	BeginTx(ctx context.Context, txOptions pgx.TxOptions) (pgx.Tx, error)
	Ping(ctx context.Context) error
}

const maxTxAttempts = 3

// Serializable runs fn inside a serializable transaction, retrying a bounded
// number of times on serialization failures and deadlocks before giving up
// with ErrTxConflict.
func Serializable(ctx context.Context, pool Pool, fn func(tx pgx.Tx) error) error {
	var lastErr error

	for attempt := 0; attempt < maxTxAttempts; attempt++ {
		err := runTx(ctx, pool, pgx.TxOptions{IsoLevel: pgx.Serializable}, fn)
		if err == nil {
			return nil
		}
		if !isTransient(err) {
			return err
		}
		lastErr = err
	}

	return fmt.Errorf("%w: %v", ErrTxConflict, lastErr)
}

func runTx(ctx context.Context, pool Pool, opts pgx.TxOptions, fn func(tx pgx.Tx) error) error {
	tx, err := pool.BeginTx(ctx, opts)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}

	if err := fn(tx); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}

	return nil
}

// isTransient reports whether err is a serialization failure (40001) or a
// deadlock (40P01), the two SQLSTATEs worth retrying.
func isTransient(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Code == "40001" || pgErr.Code == "40P01"
}
