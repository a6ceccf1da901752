// Package migrations embeds the schema of the hierarchy tables and applies it
// with goose.
package migrations

import (
	"context"
	"database/sql"
	"embed"
	"io/fs"

	"github.com/go-faster/errors"
	"github.com/pressly/goose/v3"
)

//go:embed extid/postgres/*.sql extid/sqlite/*.sql
var files embed.FS

type Dialect string

const (
	Postgres Dialect = "postgres"
	SQLite   Dialect = "sqlite"
)

// Applied describes one migration run by Up.
type Applied struct {
	Version int64  `json:"version"`
	Path    string `json:"path"`
}

func provider(db *sql.DB, dialect Dialect) (*goose.Provider, error) {
	var gd goose.Dialect
	switch dialect {
	case Postgres:
		gd = goose.DialectPostgres
	case SQLite:
		gd = goose.DialectSQLite3
	default:
		return nil, errors.Errorf("unsupported migration dialect %q", dialect)
	}
	sub, err := fs.Sub(files, "extid/"+string(dialect))
	if err != nil {
		return nil, err
	}
	return goose.NewProvider(gd, db, sub)
}

// Up applies all pending migrations and returns the ones it ran.
func Up(ctx context.Context, db *sql.DB, dialect Dialect) ([]Applied, error) {
	p, err := provider(db, dialect)
	if err != nil {
		return nil, err
	}
	results, err := p.Up(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "apply migrations")
	}
	out := make([]Applied, 0, len(results))
	for _, r := range results {
		out = append(out, Applied{Version: r.Source.Version, Path: r.Source.Path})
	}
	return out, nil
}

// Version returns the highest applied migration version.
func Version(ctx context.Context, db *sql.DB, dialect Dialect) (int64, error) {
	p, err := provider(db, dialect)
	if err != nil {
		return 0, err
	}
	return p.GetDBVersion(ctx)
}
