package persistence

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/iota-uz/extid/modules/extid/domain/hierarchy"
	"github.com/iota-uz/extid/pkg/composables"
)

const (
	levelCenter = 1
	levelGroup  = 2
)

// PGRepository reads and writes the Mifos tables (m_office, m_group,
// m_client, m_group_client). Queries run on the transaction bound to the
// context, then the context pool, then the pool given to the constructor.
type PGRepository struct {
	pool *pgxpool.Pool
}

func NewPGRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

func (r *PGRepository) tx(ctx context.Context) (composables.Tx, error) {
	tx, err := composables.UseTx(ctx)
	if err == nil {
		return tx, nil
	}
	if errors.Is(err, composables.ErrNoPool) && r.pool != nil {
		return r.pool, nil
	}
	return nil, err
}

func (r *PGRepository) GetOffice(ctx context.Context, id int64) (hierarchy.Office, error) {
	tx, err := r.tx(ctx)
	if err != nil {
		return hierarchy.Office{}, err
	}
	o, err := scanOffice(tx.QueryRow(ctx, `
SELECT id, parent_id, COALESCE(external_id, '')
FROM m_office
WHERE id = $1
`, id))
	if err != nil {
		return hierarchy.Office{}, mapPgError(hierarchy.Ref{Kind: hierarchy.KindOffice, ID: id}, err)
	}
	return o, nil
}

func (r *PGRepository) GetOfficeChildren(ctx context.Context, parentID int64) ([]hierarchy.Office, error) {
	tx, err := r.tx(ctx)
	if err != nil {
		return nil, err
	}
	rows, err := tx.Query(ctx, `
SELECT id, parent_id, COALESCE(external_id, '')
FROM m_office
WHERE parent_id = $1
ORDER BY id
`, parentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]hierarchy.Office, 0)
	for rows.Next() {
		o, err := scanOffice(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

func (r *PGRepository) SaveOffice(ctx context.Context, office hierarchy.Office) error {
	return r.assign(ctx, hierarchy.Ref{Kind: hierarchy.KindOffice, ID: office.ID}, "m_office", office.ExternalID)
}

func (r *PGRepository) GetGroup(ctx context.Context, id int64) (hierarchy.Group, error) {
	tx, err := r.tx(ctx)
	if err != nil {
		return hierarchy.Group{}, err
	}
	g, err := scanGroup(tx.QueryRow(ctx, `
SELECT id, office_id, parent_id, level_id, COALESCE(external_id, '')
FROM m_group
WHERE id = $1
`, id))
	if err != nil {
		return hierarchy.Group{}, mapPgError(hierarchy.Ref{Kind: hierarchy.KindGroup, ID: id}, err)
	}
	return g, nil
}

func (r *PGRepository) GetGroupsByParent(ctx context.Context, parentID int64) ([]hierarchy.Group, error) {
	return r.queryGroups(ctx, `
SELECT id, office_id, parent_id, level_id, COALESCE(external_id, '')
FROM m_group
WHERE parent_id = $1
ORDER BY id
`, parentID)
}

func (r *PGRepository) GetCentersByOffice(ctx context.Context, officeID int64) ([]hierarchy.Group, error) {
	return r.queryGroups(ctx, `
SELECT id, office_id, parent_id, level_id, COALESCE(external_id, '')
FROM m_group
WHERE office_id = $1 AND level_id = $2
ORDER BY id
`, officeID, levelCenter)
}

func (r *PGRepository) queryGroups(ctx context.Context, sql string, args ...any) ([]hierarchy.Group, error) {
	tx, err := r.tx(ctx)
	if err != nil {
		return nil, err
	}
	rows, err := tx.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]hierarchy.Group, 0)
	for rows.Next() {
		g, err := scanGroup(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

func (r *PGRepository) SaveGroup(ctx context.Context, group hierarchy.Group) error {
	return r.assign(ctx, hierarchy.Ref{Kind: group.Kind(), ID: group.ID}, "m_group", group.ExternalID)
}

func (r *PGRepository) GetClient(ctx context.Context, id int64) (hierarchy.Client, error) {
	tx, err := r.tx(ctx)
	if err != nil {
		return hierarchy.Client{}, err
	}
	var c hierarchy.Client
	if err := tx.QueryRow(ctx, `
SELECT c.id,
       COALESCE(c.external_id, ''),
       ARRAY(SELECT gc.group_id FROM m_group_client gc WHERE gc.client_id = c.id ORDER BY gc.group_id)
FROM m_client c
WHERE c.id = $1
`, id).Scan(&c.ID, &c.ExternalID, &c.GroupIDs); err != nil {
		return hierarchy.Client{}, mapPgError(hierarchy.Ref{Kind: hierarchy.KindClient, ID: id}, err)
	}
	return c, nil
}

func (r *PGRepository) GetClientsByGroup(ctx context.Context, groupID int64) ([]hierarchy.Client, error) {
	tx, err := r.tx(ctx)
	if err != nil {
		return nil, err
	}
	rows, err := tx.Query(ctx, `
SELECT c.id,
       COALESCE(c.external_id, ''),
       ARRAY(SELECT x.group_id FROM m_group_client x WHERE x.client_id = c.id ORDER BY x.group_id)
FROM m_client c
JOIN m_group_client gc ON gc.client_id = c.id
WHERE gc.group_id = $1
ORDER BY c.id
`, groupID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]hierarchy.Client, 0)
	for rows.Next() {
		var c hierarchy.Client
		if err := rows.Scan(&c.ID, &c.ExternalID, &c.GroupIDs); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (r *PGRepository) SaveClient(ctx context.Context, client hierarchy.Client) error {
	return r.assign(ctx, hierarchy.Ref{Kind: hierarchy.KindClient, ID: client.ID}, "m_client", client.ExternalID)
}

func (r *PGRepository) ListUnallocated(ctx context.Context, kind hierarchy.Kind) ([]int64, error) {
	var (
		sql  string
		args []any
	)
	switch kind {
	case hierarchy.KindOffice:
		sql = `SELECT id FROM m_office WHERE COALESCE(external_id, '') = '' AND parent_id IS NOT NULL ORDER BY id`
	case hierarchy.KindCenter:
		sql = `SELECT id FROM m_group WHERE COALESCE(external_id, '') = '' AND level_id = $1 ORDER BY id`
		args = []any{levelCenter}
	case hierarchy.KindGroup:
		sql = `SELECT id FROM m_group WHERE COALESCE(external_id, '') = '' AND level_id = $1 ORDER BY id`
		args = []any{levelGroup}
	case hierarchy.KindClient:
		sql = `SELECT id FROM m_client WHERE COALESCE(external_id, '') = '' ORDER BY id`
	default:
		return nil, unsupportedKind(kind)
	}

	tx, err := r.tx(ctx)
	if err != nil {
		return nil, err
	}
	rows, err := tx.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[int64])
}

// assign writes externalID only when the row has none yet (or already has
// the same value), so concurrent writers cannot overwrite each other.
func (r *PGRepository) assign(ctx context.Context, ref hierarchy.Ref, table, externalID string) error {
	if externalID == "" {
		return errors.Errorf("%s: refusing to clear external id", ref)
	}
	tx, err := r.tx(ctx)
	if err != nil {
		return err
	}
	tag, err := tx.Exec(ctx, `
UPDATE `+table+`
SET external_id = $2
WHERE id = $1 AND (external_id IS NULL OR external_id = '' OR external_id = $2)
`, ref.ID, externalID)
	if err != nil {
		return mapPgError(ref, err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}

	var current string
	if err := tx.QueryRow(ctx, `SELECT COALESCE(external_id, '') FROM `+table+` WHERE id = $1`, ref.ID).Scan(&current); err != nil {
		return mapPgError(ref, err)
	}
	return hierarchy.AlreadyAssigned(ref.Kind, ref.ID, current)
}

func scanOffice(row pgx.Row) (hierarchy.Office, error) {
	var o hierarchy.Office
	if err := row.Scan(&o.ID, &o.ParentID, &o.ExternalID); err != nil {
		return hierarchy.Office{}, err
	}
	return o, nil
}

func scanGroup(row pgx.Row) (hierarchy.Group, error) {
	var (
		g        hierarchy.Group
		officeID *int64
		level    int
	)
	if err := row.Scan(&g.ID, &officeID, &g.ParentID, &level, &g.ExternalID); err != nil {
		return hierarchy.Group{}, err
	}
	if officeID != nil {
		g.OfficeID = *officeID
	}
	g.IsCenter = level == levelCenter
	return g, nil
}
