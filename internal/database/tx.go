package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	log "github.com/sirupsen/logrus"
)

// ErrStoreUnavailable marks any failure of the record store other than a missing row.
var ErrStoreUnavailable = errors.New("record store unavailable")

type txKey struct{}

// Queryer is implemented by both *pgxpool.Pool and pgx.Tx.
type Queryer interface {
	Exec(ctx context.Context, query string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, query string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, query string, args ...any) pgx.Row
}

// Transactor runs fn in a single unit of work. Repositories called with the ctx passed to fn
// take part in the same transaction.
type Transactor interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

type PoolTransactor struct {
	pool *pgxpool.Pool
}

func NewTransactor(pool *pgxpool.Pool) *PoolTransactor {
	return &PoolTransactor{pool: pool}
}

// WithTransaction begins a transaction, unless ctx already carries one, in which case fn joins it.
func (t *PoolTransactor) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(txKey{}).(pgx.Tx); ok {
		return fn(ctx)
	}

	tx, err := t.pool.Begin(ctx)
	if err != nil {
		return StoreError("begin transaction", err)
	}
	defer func() {
		// The Rollback will be a no-op if the transaction was already committed
		if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
			log.Errorf("rollback error: %v", rbErr)
		}
	}()

	if err := fn(context.WithValue(ctx, txKey{}, tx)); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return StoreError("commit transaction", err)
	}
	return nil
}

// Executor returns the transaction carried by ctx, or the pool when there is none.
func Executor(ctx context.Context, pool *pgxpool.Pool) Queryer {
	if tx, ok := ctx.Value(txKey{}).(pgx.Tx); ok {
		return tx
	}
	return pool
}

// StoreError wraps a driver error so callers can match it with ErrStoreUnavailable.
func StoreError(operation string, err error) error {
	return fmt.Errorf("%w: %s: %v", ErrStoreUnavailable, operation, err)
}

// NoopTransactor calls fn directly. It is meant for in-memory stubs.
type NoopTransactor struct{}

func (NoopTransactor) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}
