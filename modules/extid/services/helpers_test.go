package services_test

import (
	"context"
	"sync/atomic"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"

	"github.com/iota-uz/extid/modules/extid/domain/hierarchy"
	"github.com/iota-uz/extid/modules/extid/infrastructure/persistence"
	"github.com/iota-uz/extid/modules/extid/services"
)

func ptr(v int64) *int64 { return &v }

// countingRepo counts successful identifier writes.
type countingRepo struct {
	*persistence.MemoryRepository
	saves atomic.Int64
}

func (r *countingRepo) SaveOffice(ctx context.Context, o hierarchy.Office) error {
	if err := r.MemoryRepository.SaveOffice(ctx, o); err != nil {
		return err
	}
	r.saves.Add(1)
	return nil
}

func (r *countingRepo) SaveGroup(ctx context.Context, g hierarchy.Group) error {
	if err := r.MemoryRepository.SaveGroup(ctx, g); err != nil {
		return err
	}
	r.saves.Add(1)
	return nil
}

func (r *countingRepo) SaveClient(ctx context.Context, c hierarchy.Client) error {
	if err := r.MemoryRepository.SaveClient(ctx, c); err != nil {
		return err
	}
	r.saves.Add(1)
	return nil
}

// newTree seeds the tree used by most tests:
//
//	office 1 (root)
//	└── office 2 "05"
//	    ├── office 3
//	    └── center 10
//	        └── group 11
//	            └── client 100
func newTree(t *testing.T) *countingRepo {
	t.Helper()
	repo := &countingRepo{MemoryRepository: persistence.NewMemoryRepository()}
	repo.PutOffice(hierarchy.Office{ID: 1})
	repo.PutOffice(hierarchy.Office{ID: 2, ParentID: ptr(1), ExternalID: "05"})
	repo.PutOffice(hierarchy.Office{ID: 3, ParentID: ptr(2)})
	repo.PutGroup(hierarchy.Group{ID: 10, OfficeID: 2, IsCenter: true})
	repo.PutGroup(hierarchy.Group{ID: 11, OfficeID: 2, ParentID: ptr(10)})
	repo.PutClient(hierarchy.Client{ID: 100, GroupIDs: []int64{11}})
	return repo
}

func newAllocator(t *testing.T, repo hierarchy.Repository, opts services.Options) (*services.Allocator, *test.Hook) {
	t.Helper()
	logger, hook := test.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)
	opts.Logger = logrus.NewEntry(logger)
	return services.NewAllocator(repo, opts), hook
}

func externalIDOf(t *testing.T, repo hierarchy.Repository, kind hierarchy.Kind, id int64) string {
	t.Helper()
	ctx := context.Background()
	switch kind {
	case hierarchy.KindOffice:
		o, err := repo.GetOffice(ctx, id)
		require.NoError(t, err)
		return o.ExternalID
	case hierarchy.KindCenter, hierarchy.KindGroup:
		g, err := repo.GetGroup(ctx, id)
		require.NoError(t, err)
		return g.ExternalID
	default:
		c, err := repo.GetClient(ctx, id)
		require.NoError(t, err)
		return c.ExternalID
	}
}

func hasMessage(hook *test.Hook, msg string) bool {
	for _, e := range hook.AllEntries() {
		if e.Message == msg {
			return true
		}
	}
	return false
}
