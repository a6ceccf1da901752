package persistence_test

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"

	"github.com/iota-uz/extid/migrations"
	"github.com/iota-uz/extid/modules/extid/domain/hierarchy"
	"github.com/iota-uz/extid/modules/extid/infrastructure/persistence"
	"github.com/iota-uz/extid/modules/extid/services"
)

const sqliteSeed = `
INSERT INTO m_office (id, parent_id, external_id) VALUES (1, NULL, NULL);
INSERT INTO m_office (id, parent_id, external_id) VALUES (2, 1, '05');
INSERT INTO m_office (id, parent_id, external_id) VALUES (3, 2, NULL);
INSERT INTO m_group (id, office_id, parent_id, level_id, external_id) VALUES (10, 2, NULL, 1, NULL);
INSERT INTO m_group (id, office_id, parent_id, level_id, external_id) VALUES (11, 2, 10, 2, NULL);
INSERT INTO m_group (id, office_id, parent_id, level_id, external_id) VALUES (12, 2, 10, 2, '050102');
INSERT INTO m_client (id, external_id) VALUES (100, NULL);
INSERT INTO m_client (id, external_id) VALUES (101, NULL);
INSERT INTO m_client (id, external_id) VALUES (102, '');
INSERT INTO m_group_client (group_id, client_id) VALUES (11, 100);
INSERT INTO m_group_client (group_id, client_id) VALUES (12, 101);
INSERT INTO m_group_client (group_id, client_id) VALUES (11, 101);
`

func newSQLiteRepo(t *testing.T) (*persistence.SQLiteRepository, *sql.DB) {
	t.Helper()
	db, err := persistence.OpenSQLite(filepath.Join(t.TempDir(), "extid.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	applied, err := migrations.Up(context.Background(), db, migrations.SQLite)
	require.NoError(t, err)
	require.NotEmpty(t, applied)

	_, err = db.Exec(sqliteSeed)
	require.NoError(t, err)
	return persistence.NewSQLiteRepository(db), db
}

func TestSQLiteRepository_Reads(t *testing.T) {
	repo, _ := newSQLiteRepo(t)
	ctx := context.Background()

	root, err := repo.GetOffice(ctx, 1)
	require.NoError(t, err)
	require.Nil(t, root.ParentID)
	require.Empty(t, root.ExternalID)

	children, err := repo.GetOfficeChildren(ctx, 2)
	require.NoError(t, err)
	require.Len(t, children, 1)
	require.EqualValues(t, 2, *children[0].ParentID)

	center, err := repo.GetGroup(ctx, 10)
	require.NoError(t, err)
	require.True(t, center.IsCenter)
	require.Nil(t, center.ParentID)
	require.Equal(t, hierarchy.KindCenter, center.Kind())

	centers, err := repo.GetCentersByOffice(ctx, 2)
	require.NoError(t, err)
	require.Len(t, centers, 1)

	groups, err := repo.GetGroupsByParent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, groups, 2)
	require.Equal(t, "050102", groups[1].ExternalID)

	client, err := repo.GetClient(ctx, 101)
	require.NoError(t, err)
	require.Equal(t, []int64{11, 12}, client.GroupIDs)

	clients, err := repo.GetClientsByGroup(ctx, 11)
	require.NoError(t, err)
	require.Len(t, clients, 2)
	require.EqualValues(t, 100, clients[0].ID)

	lonely, err := repo.GetClient(ctx, 102)
	require.NoError(t, err)
	require.Empty(t, lonely.GroupIDs)

	_, err = repo.GetClient(ctx, 999)
	require.ErrorIs(t, err, hierarchy.ErrNotFound)
}

func TestSQLiteRepository_WriteOnce(t *testing.T) {
	repo, _ := newSQLiteRepo(t)
	ctx := context.Background()

	require.NoError(t, repo.SaveClient(ctx, hierarchy.Client{ID: 100, ExternalID: "0501010001"}))
	require.NoError(t, repo.SaveClient(ctx, hierarchy.Client{ID: 100, ExternalID: "0501010001"}))
	require.ErrorIs(t, repo.SaveClient(ctx, hierarchy.Client{ID: 100, ExternalID: "0501010002"}), hierarchy.ErrAlreadyAssigned)
	require.ErrorIs(t, repo.SaveClient(ctx, hierarchy.Client{ID: 101, ExternalID: "0501010001"}), hierarchy.ErrDuplicateExternalID)
	require.ErrorIs(t, repo.SaveClient(ctx, hierarchy.Client{ID: 999, ExternalID: "1"}), hierarchy.ErrNotFound)

	// An empty string counts as unallocated.
	require.NoError(t, repo.SaveClient(ctx, hierarchy.Client{ID: 102, ExternalID: "0501010003"}))
}

func TestSQLiteRepository_ListUnallocated(t *testing.T) {
	repo, _ := newSQLiteRepo(t)
	ctx := context.Background()

	offices, err := repo.ListUnallocated(ctx, hierarchy.KindOffice)
	require.NoError(t, err)
	require.Equal(t, []int64{3}, offices)

	clients, err := repo.ListUnallocated(ctx, hierarchy.KindClient)
	require.NoError(t, err)
	require.Equal(t, []int64{100, 101, 102}, clients)

	groups, err := repo.ListUnallocated(ctx, hierarchy.KindGroup)
	require.NoError(t, err)
	require.Equal(t, []int64{11}, groups)
}

func TestSQLiteRepository_AllocatesTree(t *testing.T) {
	repo, _ := newSQLiteRepo(t)
	alloc := services.NewAllocator(repo, services.Options{})
	ctx := context.Background()

	// Group 12 already holds 050102 under center 10, so group 11 follows it.
	res, err := alloc.AllocateExternalID(ctx, hierarchy.KindClient, 100)
	require.NoError(t, err)
	require.Equal(t, "0501030001", res.ExternalID)

	group, err := repo.GetGroup(ctx, 11)
	require.NoError(t, err)
	require.Equal(t, "050103", group.ExternalID)

	office, err := alloc.AllocateExternalID(ctx, hierarchy.KindOffice, 3)
	require.NoError(t, err)
	require.Equal(t, "05001", office.ExternalID)

	again, err := alloc.AllocateExternalID(ctx, hierarchy.KindClient, 100)
	require.NoError(t, err)
	require.Equal(t, services.OutcomeExisting, again.Outcome)
}

func TestSQLiteRepository_ErrorPaths(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	repo := persistence.NewSQLiteRepository(db)
	ctx := context.Background()

	mock.ExpectQuery(`SELECT id, parent_id, COALESCE\(external_id, ''\)\s+FROM m_office`).
		WithArgs(int64(7)).
		WillReturnError(sql.ErrNoRows)
	_, err = repo.GetOffice(ctx, 7)
	require.ErrorIs(t, err, hierarchy.ErrNotFound)

	mock.ExpectExec(`UPDATE m_client`).
		WithArgs("0501010001", int64(100), "0501010001").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`SELECT COALESCE\(external_id, ''\) FROM m_client`).
		WithArgs(int64(100)).
		WillReturnRows(sqlmock.NewRows([]string{"external_id"}).AddRow("0501010004"))
	err = repo.SaveClient(ctx, hierarchy.Client{ID: 100, ExternalID: "0501010001"})
	require.ErrorIs(t, err, hierarchy.ErrAlreadyAssigned)
	require.Contains(t, err.Error(), "0501010004")

	mock.ExpectExec(`UPDATE m_office`).
		WithArgs("05", int64(3), "05").
		WillReturnError(errors.New("constraint failed: UNIQUE constraint failed: m_office.external_id (2067)"))
	err = repo.SaveOffice(ctx, hierarchy.Office{ID: 3, ExternalID: "05"})
	require.ErrorIs(t, err, hierarchy.ErrDuplicateExternalID)

	boom := errors.New("disk I/O error")
	mock.ExpectQuery(`FROM m_group`).
		WithArgs(int64(10)).
		WillReturnError(boom)
	_, err = repo.GetGroupsByParent(ctx, 10)
	require.ErrorIs(t, err, boom)

	mock.ExpectQuery(`FROM m_client c`).
		WithArgs(int64(5)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "external_id", "groups"}).AddRow(int64(5), "", "4,x"))
	_, err = repo.GetClient(ctx, 5)
	require.Error(t, err)

	require.NoError(t, mock.ExpectationsWereMet())
}
