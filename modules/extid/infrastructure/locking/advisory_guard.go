package locking

import (
	"context"
	"hash/fnv"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/iota-uz/extid/modules/extid/services"
)

// AdvisoryGuard maps each scope to a session-level Postgres advisory lock.
// The connection that took the lock is held until release.
type AdvisoryGuard struct {
	pool *pgxpool.Pool
	opts Options
}

func NewAdvisoryGuard(pool *pgxpool.Pool, opts Options) *AdvisoryGuard {
	opts.setDefaults()
	return &AdvisoryGuard{pool: pool, opts: opts}
}

func (g *AdvisoryGuard) Acquire(ctx context.Context, scope services.Scope) (func(), error) {
	conn, err := g.pool.Acquire(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "acquire connection")
	}
	key := advisoryLockKey("extid:" + scope.String())

	for {
		var ok bool
		if err := conn.QueryRow(ctx, `SELECT pg_try_advisory_lock($1::bigint)`, key).Scan(&ok); err != nil {
			conn.Release()
			return nil, err
		}
		if ok {
			break
		}
		select {
		case <-ctx.Done():
			conn.Release()
			return nil, ctx.Err()
		case <-time.After(g.opts.RetryInterval):
		}
	}

	return func() {
		var ok bool
		if err := conn.QueryRow(context.Background(), `SELECT pg_advisory_unlock($1::bigint)`, key).Scan(&ok); err != nil || !ok {
			g.opts.Logger.WithError(err).WithField("scope", scope.String()).Warn("extid: failed to release advisory lock")
			// The session still holds the lock; drop the connection instead of
			// returning it to the pool.
			_ = conn.Conn().Close(context.Background())
		}
		conn.Release()
	}, nil
}

func advisoryLockKey(s string) int64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(s))
	return int64(h.Sum64())
}
