package persistence

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"github.com/go-faster/errors"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/iota-uz/extid/modules/extid/domain/hierarchy"
)

// OpenSQLite opens (creating if needed) a database file for the SQLite
// repository.
func OpenSQLite(path string) (*sql.DB, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, errors.Wrap(err, "create dirs")
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.Wrap(err, "open sqlite")
	}
	for _, pragma := range []string{
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
		"PRAGMA journal_mode = WAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, errors.Wrapf(err, "apply %q", pragma)
		}
	}
	return db, nil
}

// SQLiteRepository stores the hierarchy in the same table layout as the
// Postgres repository, for single-node deployments.
type SQLiteRepository struct {
	db *sql.DB
}

func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

func (r *SQLiteRepository) GetOffice(ctx context.Context, id int64) (hierarchy.Office, error) {
	o, err := scanSQLiteOffice(r.db.QueryRowContext(ctx, `
SELECT id, parent_id, COALESCE(external_id, '')
FROM m_office
WHERE id = ?`, id))
	if err != nil {
		return hierarchy.Office{}, mapSQLiteError(hierarchy.Ref{Kind: hierarchy.KindOffice, ID: id}, err)
	}
	return o, nil
}

func (r *SQLiteRepository) GetOfficeChildren(ctx context.Context, parentID int64) ([]hierarchy.Office, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT id, parent_id, COALESCE(external_id, '')
FROM m_office
WHERE parent_id = ?
ORDER BY id`, parentID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	out := make([]hierarchy.Office, 0)
	for rows.Next() {
		o, err := scanSQLiteOffice(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

func (r *SQLiteRepository) SaveOffice(ctx context.Context, office hierarchy.Office) error {
	return r.assign(ctx, hierarchy.Ref{Kind: hierarchy.KindOffice, ID: office.ID}, "m_office", office.ExternalID)
}

func (r *SQLiteRepository) GetGroup(ctx context.Context, id int64) (hierarchy.Group, error) {
	g, err := scanSQLiteGroup(r.db.QueryRowContext(ctx, `
SELECT id, office_id, parent_id, level_id, COALESCE(external_id, '')
FROM m_group
WHERE id = ?`, id))
	if err != nil {
		return hierarchy.Group{}, mapSQLiteError(hierarchy.Ref{Kind: hierarchy.KindGroup, ID: id}, err)
	}
	return g, nil
}

func (r *SQLiteRepository) GetGroupsByParent(ctx context.Context, parentID int64) ([]hierarchy.Group, error) {
	return r.queryGroups(ctx, `
SELECT id, office_id, parent_id, level_id, COALESCE(external_id, '')
FROM m_group
WHERE parent_id = ?
ORDER BY id`, parentID)
}

func (r *SQLiteRepository) GetCentersByOffice(ctx context.Context, officeID int64) ([]hierarchy.Group, error) {
	return r.queryGroups(ctx, `
SELECT id, office_id, parent_id, level_id, COALESCE(external_id, '')
FROM m_group
WHERE office_id = ? AND level_id = ?
ORDER BY id`, officeID, levelCenter)
}

func (r *SQLiteRepository) queryGroups(ctx context.Context, query string, args ...any) ([]hierarchy.Group, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	out := make([]hierarchy.Group, 0)
	for rows.Next() {
		g, err := scanSQLiteGroup(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

func (r *SQLiteRepository) SaveGroup(ctx context.Context, group hierarchy.Group) error {
	return r.assign(ctx, hierarchy.Ref{Kind: group.Kind(), ID: group.ID}, "m_group", group.ExternalID)
}

func (r *SQLiteRepository) GetClient(ctx context.Context, id int64) (hierarchy.Client, error) {
	c, err := scanSQLiteClient(r.db.QueryRowContext(ctx, `
SELECT c.id,
       COALESCE(c.external_id, ''),
       COALESCE((SELECT group_concat(gc.group_id) FROM m_group_client gc WHERE gc.client_id = c.id), '')
FROM m_client c
WHERE c.id = ?`, id))
	if err != nil {
		return hierarchy.Client{}, mapSQLiteError(hierarchy.Ref{Kind: hierarchy.KindClient, ID: id}, err)
	}
	return c, nil
}

func (r *SQLiteRepository) GetClientsByGroup(ctx context.Context, groupID int64) ([]hierarchy.Client, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT c.id,
       COALESCE(c.external_id, ''),
       COALESCE((SELECT group_concat(x.group_id) FROM m_group_client x WHERE x.client_id = c.id), '')
FROM m_client c
JOIN m_group_client gc ON gc.client_id = c.id
WHERE gc.group_id = ?
ORDER BY c.id`, groupID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	out := make([]hierarchy.Client, 0)
	for rows.Next() {
		c, err := scanSQLiteClient(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (r *SQLiteRepository) SaveClient(ctx context.Context, client hierarchy.Client) error {
	return r.assign(ctx, hierarchy.Ref{Kind: hierarchy.KindClient, ID: client.ID}, "m_client", client.ExternalID)
}

func (r *SQLiteRepository) ListUnallocated(ctx context.Context, kind hierarchy.Kind) ([]int64, error) {
	var (
		query string
		args  []any
	)
	switch kind {
	case hierarchy.KindOffice:
		query = `SELECT id FROM m_office WHERE COALESCE(external_id, '') = '' AND parent_id IS NOT NULL ORDER BY id`
	case hierarchy.KindCenter:
		query = `SELECT id FROM m_group WHERE COALESCE(external_id, '') = '' AND level_id = ? ORDER BY id`
		args = []any{levelCenter}
	case hierarchy.KindGroup:
		query = `SELECT id FROM m_group WHERE COALESCE(external_id, '') = '' AND level_id = ? ORDER BY id`
		args = []any{levelGroup}
	case hierarchy.KindClient:
		query = `SELECT id FROM m_client WHERE COALESCE(external_id, '') = '' ORDER BY id`
	default:
		return nil, unsupportedKind(kind)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (r *SQLiteRepository) assign(ctx context.Context, ref hierarchy.Ref, table, externalID string) error {
	if externalID == "" {
		return errors.Errorf("%s: refusing to clear external id", ref)
	}
	res, err := r.db.ExecContext(ctx, `
UPDATE `+table+`
SET external_id = ?
WHERE id = ? AND (external_id IS NULL OR external_id = '' OR external_id = ?)`, externalID, ref.ID, externalID)
	if err != nil {
		return mapSQLiteError(ref, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}

	var current string
	if err := r.db.QueryRowContext(ctx, `SELECT COALESCE(external_id, '') FROM `+table+` WHERE id = ?`, ref.ID).Scan(&current); err != nil {
		return mapSQLiteError(ref, err)
	}
	return hierarchy.AlreadyAssigned(ref.Kind, ref.ID, current)
}

func mapSQLiteError(ref hierarchy.Ref, err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return hierarchy.NotFound(ref.Kind, ref.ID)
	}
	var sqliteErr *sqlite.Error
	if errors.As(err, &sqliteErr) && sqliteErr.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE {
		return errors.Wrapf(hierarchy.ErrDuplicateExternalID, "%s", ref)
	}
	if strings.Contains(err.Error(), "UNIQUE constraint failed") {
		return errors.Wrapf(hierarchy.ErrDuplicateExternalID, "%s", ref)
	}
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSQLiteOffice(row rowScanner) (hierarchy.Office, error) {
	var (
		o        hierarchy.Office
		parentID sql.NullInt64
	)
	if err := row.Scan(&o.ID, &parentID, &o.ExternalID); err != nil {
		return hierarchy.Office{}, err
	}
	if parentID.Valid {
		o.ParentID = &parentID.Int64
	}
	return o, nil
}

func scanSQLiteGroup(row rowScanner) (hierarchy.Group, error) {
	var (
		g        hierarchy.Group
		officeID sql.NullInt64
		parentID sql.NullInt64
		level    int
	)
	if err := row.Scan(&g.ID, &officeID, &parentID, &level, &g.ExternalID); err != nil {
		return hierarchy.Group{}, err
	}
	g.OfficeID = officeID.Int64
	if parentID.Valid {
		g.ParentID = &parentID.Int64
	}
	g.IsCenter = level == levelCenter
	return g, nil
}

func scanSQLiteClient(row rowScanner) (hierarchy.Client, error) {
	var (
		c      hierarchy.Client
		groups string
	)
	if err := row.Scan(&c.ID, &c.ExternalID, &groups); err != nil {
		return hierarchy.Client{}, err
	}
	ids, err := parseIDList(groups)
	if err != nil {
		return hierarchy.Client{}, err
	}
	c.GroupIDs = ids
	return c, nil
}

// parseIDList parses the comma separated output of group_concat.
func parseIDList(s string) ([]int64, error) {
	if s == "" {
		return nil, nil
	}
	parts := strings.Split(s, ",")
	ids := make([]int64, 0, len(parts))
	for _, p := range parts {
		id, err := strconv.ParseInt(strings.TrimSpace(p), 10, 64)
		if err != nil {
			return nil, errors.Wrapf(err, "parse group id %q", p)
		}
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids, nil
}
