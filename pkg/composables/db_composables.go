package composables

import (
	"context"
	stderrors "errors"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/iota-uz/extid/pkg/constants"
)

var (
	ErrNoTx   = errors.New("no transaction found in context")
	ErrNoPool = errors.New("no database pool found in context")
)

// Tx is the query surface shared by *pgxpool.Pool and pgx.Tx.
type Tx interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func WithTx(ctx context.Context, tx pgx.Tx) context.Context {
	return context.WithValue(ctx, constants.TxKey, tx)
}

// UseTx returns the transaction bound to ctx, or the pool when there is none.
func UseTx(ctx context.Context) (Tx, error) {
	if tx, ok := ctx.Value(constants.TxKey).(pgx.Tx); ok && tx != nil {
		return tx, nil
	}
	return UsePool(ctx)
}

func WithPool(ctx context.Context, pool *pgxpool.Pool) context.Context {
	return context.WithValue(ctx, constants.PoolKey, pool)
}

func UsePool(ctx context.Context) (*pgxpool.Pool, error) {
	pool, ok := ctx.Value(constants.PoolKey).(*pgxpool.Pool)
	if !ok || pool == nil {
		return nil, ErrNoPool
	}
	return pool, nil
}

// InTx runs fn inside a transaction. An outer transaction already bound to ctx
// is reused; otherwise a new one is started on the pool and committed when fn
// returns nil.
func InTx(ctx context.Context, fn func(context.Context) error) error {
	if existing, ok := ctx.Value(constants.TxKey).(pgx.Tx); ok && existing != nil {
		return fn(ctx)
	}

	pool, err := UsePool(ctx)
	if err != nil {
		return err
	}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return err
	}

	if err := fn(WithTx(ctx, tx)); err != nil {
		if rErr := tx.Rollback(ctx); rErr != nil {
			return stderrors.Join(err, rErr)
		}
		return err
	}
	return tx.Commit(ctx)
}

func InTxResult[T any](ctx context.Context, fn func(context.Context) (T, error)) (T, error) {
	var out T
	err := InTx(ctx, func(txCtx context.Context) error {
		var innerErr error
		out, innerErr = fn(txCtx)
		return innerErr
	})
	return out, err
}
