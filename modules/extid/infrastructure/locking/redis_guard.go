package locking

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/iota-uz/extid/modules/extid/services"
)

// releaseScript deletes the key only if it still carries our token, so an
// expired lock re-taken by another holder is left alone.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisGuard takes a SET NX key per scope. The key expires after ttl so a
// crashed holder cannot block a scope forever; ttl must exceed the longest
// allocation.
type RedisGuard struct {
	client redis.UniversalClient
	ttl    time.Duration
	opts   Options
}

func NewRedisGuard(client redis.UniversalClient, ttl time.Duration, opts Options) *RedisGuard {
	opts.setDefaults()
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &RedisGuard{client: client, ttl: ttl, opts: opts}
}

func redisKey(scope services.Scope) string {
	return "extid:lock:" + scope.String()
}

func (g *RedisGuard) Acquire(ctx context.Context, scope services.Scope) (func(), error) {
	key := redisKey(scope)
	token := uuid.NewString()
	for {
		ok, err := g.client.SetNX(ctx, key, token, g.ttl).Result()
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			return nil, errors.Wrapf(err, "set %s", key)
		}
		if ok {
			break
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(g.opts.RetryInterval):
		}
	}
	return func() {
		if err := releaseScript.Run(context.Background(), g.client, []string{key}, token).Err(); err != nil {
			g.opts.Logger.WithError(err).WithField("scope", scope.String()).Warn("extid: failed to release redis lock")
		}
	}, nil
}
