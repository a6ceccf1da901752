package persistence

import (
	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/iota-uz/extid/modules/extid/domain/hierarchy"
)

// mapPgError converts driver errors into hierarchy errors for ref.
func mapPgError(ref hierarchy.Ref, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return hierarchy.NotFound(ref.Kind, ref.ID)
	}
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}
	switch pgErr.Code {
	case "23505": // unique_violation
		return errors.Wrapf(hierarchy.ErrDuplicateExternalID, "%s (%s)", ref, pgErr.ConstraintName)
	default:
		return errors.Wrapf(err, "%s: database error (%s)", ref, pgErr.Code)
	}
}
