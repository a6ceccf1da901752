package extid

import (
	"context"
	"database/sql"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/iota-uz/extid/migrations"
	"github.com/iota-uz/extid/modules/extid/domain/hierarchy"
	"github.com/iota-uz/extid/modules/extid/infrastructure/locking"
	"github.com/iota-uz/extid/modules/extid/infrastructure/persistence"
	"github.com/iota-uz/extid/modules/extid/services"
	"github.com/iota-uz/extid/pkg/configuration"
)

// Backends is the storage and locking selected by configuration.
type Backends struct {
	Repository hierarchy.Repository
	Guard      services.Guard
	// Pool is set for Postgres storage.
	Pool *pgxpool.Pool

	driver  string
	sqlite  *sql.DB
	closers []func()
}

// OpenBackends connects the store named by STORAGE_DRIVER and the guard named
// by GUARD_BACKEND. Close releases both.
func OpenBackends(ctx context.Context, conf *configuration.Configuration) (*Backends, error) {
	b := &Backends{driver: conf.Storage.Driver}
	if err := b.openStore(ctx, conf); err != nil {
		b.Close()
		return nil, err
	}
	if err := b.openGuard(ctx, conf); err != nil {
		b.Close()
		return nil, err
	}
	return b, nil
}

func (b *Backends) openStore(ctx context.Context, conf *configuration.Configuration) error {
	switch conf.Storage.Driver {
	case configuration.StorageMemory:
		if conf.Storage.FixturePath == "" {
			b.Repository = persistence.NewMemoryRepository()
			return nil
		}
		repo, err := persistence.LoadFixtureFile(conf.Storage.FixturePath)
		if err != nil {
			return err
		}
		b.Repository = repo
	case configuration.StorageSQLite:
		db, err := persistence.OpenSQLite(conf.Storage.SQLitePath)
		if err != nil {
			return err
		}
		b.sqlite = db
		b.closers = append(b.closers, func() { _ = db.Close() })
		b.Repository = persistence.NewSQLiteRepository(db)
	case configuration.StoragePostgres:
		cfg, err := pgxpool.ParseConfig(conf.Database.Opts)
		if err != nil {
			return errors.Wrap(err, "parse database config")
		}
		if conf.Database.MaxConns > 0 {
			cfg.MaxConns = conf.Database.MaxConns
		}
		pool, err := pgxpool.NewWithConfig(ctx, cfg)
		if err != nil {
			return errors.Wrap(err, "connect postgres")
		}
		b.Pool = pool
		b.closers = append(b.closers, pool.Close)
		b.Repository = persistence.NewPGRepository(pool)
	default:
		return errors.Errorf("unsupported storage driver %q", conf.Storage.Driver)
	}
	return nil
}

func (b *Backends) openGuard(ctx context.Context, conf *configuration.Configuration) error {
	opts := locking.Options{
		RetryInterval: conf.Guard.RetryInterval,
		Logger:        logrus.NewEntry(conf.Logger()).WithField("component", "guard"),
	}
	switch conf.Guard.Backend {
	case configuration.GuardLocal:
		b.Guard = services.NewLocalGuard()
	case configuration.GuardFile:
		g, err := locking.NewFileGuard(conf.Guard.LockDir, opts)
		if err != nil {
			return err
		}
		b.Guard = g
	case configuration.GuardPostgres:
		if b.Pool == nil {
			return errors.New("postgres guard requires postgres storage")
		}
		b.Guard = locking.NewAdvisoryGuard(b.Pool, opts)
	case configuration.GuardRedis:
		redisOpts, err := redis.ParseURL(conf.Guard.RedisURL)
		if err != nil {
			return errors.Wrap(err, "parse REDIS_URL")
		}
		client := redis.NewClient(redisOpts)
		b.closers = append(b.closers, func() { _ = client.Close() })
		if err := client.Ping(ctx).Err(); err != nil {
			return errors.Wrap(err, "ping redis")
		}
		b.Guard = locking.NewRedisGuard(client, conf.Guard.RedisLockTTL, opts)
	default:
		return errors.Errorf("unsupported guard backend %q", conf.Guard.Backend)
	}
	return nil
}

// Migrate applies the embedded schema to the SQL store.
func (b *Backends) Migrate(ctx context.Context) ([]migrations.Applied, error) {
	switch {
	case b.sqlite != nil:
		return migrations.Up(ctx, b.sqlite, migrations.SQLite)
	case b.Pool != nil:
		db := stdlib.OpenDBFromPool(b.Pool)
		defer db.Close()
		return migrations.Up(ctx, db, migrations.Postgres)
	default:
		return nil, errors.Errorf("storage driver %q has no schema to migrate", b.driver)
	}
}

func (b *Backends) Close() {
	for i := len(b.closers) - 1; i >= 0; i-- {
		b.closers[i]()
	}
	b.closers = nil
}
