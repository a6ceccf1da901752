package services_test

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"

	"github.com/iota-uz/extid/modules/extid/domain/hierarchy"
	"github.com/iota-uz/extid/modules/extid/infrastructure/persistence"
	"github.com/iota-uz/extid/modules/extid/services"
	"github.com/iota-uz/extid/pkg/composables"
)

func TestAllocateExternalID_RecursiveAscension(t *testing.T) {
	repo := newTree(t)
	alloc, _ := newAllocator(t, repo, services.Options{})

	res, err := alloc.AllocateExternalID(context.Background(), hierarchy.KindClient, 100)
	require.NoError(t, err)
	require.Equal(t, services.OutcomeAllocated, res.Outcome)
	require.Equal(t, "0501010001", res.ExternalID)

	require.Equal(t, "05", externalIDOf(t, repo, hierarchy.KindOffice, 2))
	require.Equal(t, "0501", externalIDOf(t, repo, hierarchy.KindCenter, 10))
	require.Equal(t, "050101", externalIDOf(t, repo, hierarchy.KindGroup, 11))
	require.Equal(t, "0501010001", externalIDOf(t, repo, hierarchy.KindClient, 100))
	require.EqualValues(t, 3, repo.saves.Load())
}

func TestAllocateExternalID_Idempotent(t *testing.T) {
	repo := newTree(t)
	alloc, _ := newAllocator(t, repo, services.Options{})
	ctx := context.Background()

	first, err := alloc.AllocateExternalID(ctx, hierarchy.KindClient, 100)
	require.NoError(t, err)
	saves := repo.saves.Load()

	second, err := alloc.AllocateExternalID(ctx, hierarchy.KindClient, 100)
	require.NoError(t, err)
	require.Equal(t, services.OutcomeExisting, second.Outcome)
	require.Equal(t, first.ExternalID, second.ExternalID)
	require.Equal(t, saves, repo.saves.Load())

	center, err := alloc.AllocateExternalID(ctx, hierarchy.KindCenter, 10)
	require.NoError(t, err)
	require.Equal(t, services.OutcomeExisting, center.Outcome)
	require.Equal(t, "0501", center.ExternalID)
	require.Equal(t, saves, repo.saves.Load())
}

func TestAllocateExternalID_MonotonicSuffix(t *testing.T) {
	repo := newTree(t)
	repo.PutOffice(hierarchy.Office{ID: 4, ParentID: ptr(1), ExternalID: "01"})
	repo.PutOffice(hierarchy.Office{ID: 5, ParentID: ptr(1), ExternalID: "02"})
	repo.PutOffice(hierarchy.Office{ID: 6, ParentID: ptr(1)})
	alloc, _ := newAllocator(t, repo, services.Options{})

	// Siblings hold 01, 02 and 05: gaps are never reused.
	res, err := alloc.AllocateExternalID(context.Background(), hierarchy.KindOffice, 6)
	require.NoError(t, err)
	require.Equal(t, "06", res.ExternalID)
}

func TestAllocateExternalID_Baseline(t *testing.T) {
	repo := &countingRepo{MemoryRepository: persistence.NewMemoryRepository()}
	repo.PutOffice(hierarchy.Office{ID: 1})
	repo.PutOffice(hierarchy.Office{ID: 2, ParentID: ptr(1)})
	repo.PutGroup(hierarchy.Group{ID: 10, OfficeID: 2, IsCenter: true, ExternalID: "0103"})
	repo.PutClient(hierarchy.Client{ID: 100, GroupIDs: []int64{10}})
	alloc, _ := newAllocator(t, repo, services.Options{})
	ctx := context.Background()

	office, err := alloc.AllocateExternalID(ctx, hierarchy.KindOffice, 2)
	require.NoError(t, err)
	require.Equal(t, "01", office.ExternalID)

	client, err := alloc.AllocateExternalID(ctx, hierarchy.KindClient, 100)
	require.NoError(t, err)
	require.Equal(t, "01030001", client.ExternalID)
}

func TestAllocateExternalID_Widths(t *testing.T) {
	repo := newTree(t)
	repo.PutGroup(hierarchy.Group{ID: 12, OfficeID: 3, IsCenter: true})
	repo.PutGroup(hierarchy.Group{ID: 13, OfficeID: 3, ParentID: ptr(12)})
	repo.PutClient(hierarchy.Client{ID: 101, GroupIDs: []int64{13}})
	alloc, _ := newAllocator(t, repo, services.Options{})

	res, err := alloc.AllocateExternalID(context.Background(), hierarchy.KindClient, 101)
	require.NoError(t, err)

	// office 2 digits, taluk 3, center 2, group 2, client 4.
	require.Equal(t, "05001", externalIDOf(t, repo, hierarchy.KindOffice, 3))
	require.Equal(t, "0500101", externalIDOf(t, repo, hierarchy.KindCenter, 12))
	require.Equal(t, "050010101", externalIDOf(t, repo, hierarchy.KindGroup, 13))
	require.Equal(t, "0500101010001", res.ExternalID)
}

func TestAllocateExternalID_TalukChain(t *testing.T) {
	repo := newTree(t)
	repo.PutOffice(hierarchy.Office{ID: 4, ParentID: ptr(3)})
	alloc, _ := newAllocator(t, repo, services.Options{})

	res, err := alloc.AllocateExternalID(context.Background(), hierarchy.KindOffice, 4)
	require.NoError(t, err)
	require.Equal(t, "05001001", res.ExternalID)
	require.Equal(t, "05001", externalIDOf(t, repo, hierarchy.KindOffice, 3))
}

func TestAllocateExternalID_CenterUnderRootOffice(t *testing.T) {
	repo := newTree(t)
	repo.PutGroup(hierarchy.Group{ID: 20, OfficeID: 1, IsCenter: true})
	repo.PutGroup(hierarchy.Group{ID: 21, OfficeID: 1, IsCenter: true})
	alloc, _ := newAllocator(t, repo, services.Options{})
	ctx := context.Background()

	first, err := alloc.AllocateExternalID(ctx, hierarchy.KindCenter, 20)
	require.NoError(t, err)
	require.Equal(t, "01", first.ExternalID)

	second, err := alloc.AllocateExternalID(ctx, hierarchy.KindCenter, 21)
	require.NoError(t, err)
	require.Equal(t, "02", second.ExternalID)

	root := externalIDOf(t, repo, hierarchy.KindOffice, 1)
	require.Empty(t, root)
}

func TestAllocateExternalID_CustomRootOffice(t *testing.T) {
	repo := &countingRepo{MemoryRepository: persistence.NewMemoryRepository()}
	repo.PutOffice(hierarchy.Office{ID: 7})
	repo.PutOffice(hierarchy.Office{ID: 8, ParentID: ptr(7)})
	alloc, _ := newAllocator(t, repo, services.Options{RootOfficeID: 7})
	ctx := context.Background()

	root, err := alloc.AllocateExternalID(ctx, hierarchy.KindOffice, 7)
	require.NoError(t, err)
	require.True(t, root.Skipped())

	res, err := alloc.AllocateExternalID(ctx, hierarchy.KindOffice, 8)
	require.NoError(t, err)
	require.Equal(t, "01", res.ExternalID)
}

func TestAllocateExternalID_Skips(t *testing.T) {
	repo := newTree(t)
	repo.PutOffice(hierarchy.Office{ID: 9})
	repo.PutGroup(hierarchy.Group{ID: 30, OfficeID: 2})
	repo.PutGroup(hierarchy.Group{ID: 31})
	repo.PutGroup(hierarchy.Group{ID: 32, IsCenter: true})
	repo.PutGroup(hierarchy.Group{ID: 33, OfficeID: 2, ParentID: ptr(30)})
	repo.PutClient(hierarchy.Client{ID: 200, GroupIDs: []int64{11, 30}})
	repo.PutClient(hierarchy.Client{ID: 201})
	repo.PutClient(hierarchy.Client{ID: 202, GroupIDs: []int64{33}})
	alloc, hook := newAllocator(t, repo, services.Options{})

	tests := []struct {
		name   string
		kind   hierarchy.Kind
		id     int64
		reason error
	}{
		{name: "root office", kind: hierarchy.KindOffice, id: 1, reason: services.ErrMissingParent},
		{name: "parentless office", kind: hierarchy.KindOffice, id: 9, reason: services.ErrMissingParent},
		{name: "group as center", kind: hierarchy.KindCenter, id: 30, reason: services.ErrNotCenter},
		{name: "center without office", kind: hierarchy.KindCenter, id: 32, reason: services.ErrMissingParent},
		{name: "center as group", kind: hierarchy.KindGroup, id: 10, reason: services.ErrNotGroup},
		{name: "parentless group", kind: hierarchy.KindGroup, id: 31, reason: services.ErrMissingParent},
		{name: "unallocated non-center parent", kind: hierarchy.KindGroup, id: 33, reason: services.ErrParentNotCenter},
		{name: "client in two groups", kind: hierarchy.KindClient, id: 200, reason: services.ErrAmbiguousMembership},
		{name: "client in no group", kind: hierarchy.KindClient, id: 201, reason: services.ErrAmbiguousMembership},
		{name: "client under unresolved group", kind: hierarchy.KindClient, id: 202, reason: services.ErrParentUnresolved},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := alloc.AllocateExternalID(context.Background(), tt.kind, tt.id)
			require.NoError(t, err)
			require.Equal(t, services.OutcomeSkipped, res.Outcome)
			require.ErrorIs(t, res.Reason, tt.reason)
			require.Empty(t, res.ExternalID)
		})
	}
	require.Zero(t, repo.saves.Load())
	require.True(t, hasMessage(hook, "extid.skipped"))
}

func TestAllocateExternalID_UnresolvedParentKeepsReason(t *testing.T) {
	repo := newTree(t)
	repo.PutGroup(hierarchy.Group{ID: 30, OfficeID: 2})
	repo.PutGroup(hierarchy.Group{ID: 33, OfficeID: 2, ParentID: ptr(30)})
	repo.PutClient(hierarchy.Client{ID: 202, GroupIDs: []int64{33}})
	alloc, _ := newAllocator(t, repo, services.Options{})

	res, err := alloc.AllocateExternalID(context.Background(), hierarchy.KindClient, 202)
	require.NoError(t, err)
	require.ErrorIs(t, res.Reason, services.ErrParentUnresolved)
	require.ErrorIs(t, res.Reason, services.ErrParentNotCenter)
}

func TestAllocateExternalID_NotFound(t *testing.T) {
	repo := newTree(t)
	repo.PutClient(hierarchy.Client{ID: 300, GroupIDs: []int64{999}})
	alloc, _ := newAllocator(t, repo, services.Options{})
	ctx := context.Background()

	_, err := alloc.AllocateExternalID(ctx, hierarchy.KindClient, 12345)
	require.ErrorIs(t, err, hierarchy.ErrNotFound)

	_, err = alloc.AllocateExternalID(ctx, hierarchy.KindClient, 300)
	require.ErrorIs(t, err, hierarchy.ErrNotFound)
}

func TestAllocateExternalID_UnsupportedKind(t *testing.T) {
	alloc, _ := newAllocator(t, newTree(t), services.Options{})
	_, err := alloc.AllocateExternalID(context.Background(), hierarchy.Kind("loan"), 1)
	require.ErrorIs(t, err, services.ErrUnsupportedKind)
}

func TestAllocateExternalID_Overflow(t *testing.T) {
	tests := []struct {
		name string
		seed func(repo *countingRepo)
		kind hierarchy.Kind
		id   int64
	}{
		{
			name: "depth-1 office after 99",
			seed: func(repo *countingRepo) {
				repo.PutOffice(hierarchy.Office{ID: 50, ParentID: ptr(1), ExternalID: "99"})
				repo.PutOffice(hierarchy.Office{ID: 51, ParentID: ptr(1)})
			},
			kind: hierarchy.KindOffice,
			id:   51,
		},
		{
			name: "taluk office after 999",
			seed: func(repo *countingRepo) {
				repo.PutOffice(hierarchy.Office{ID: 60, ParentID: ptr(2), ExternalID: "05999"})
			},
			kind: hierarchy.KindOffice,
			id:   3,
		},
		{
			name: "group after 99",
			seed: func(repo *countingRepo) {
				repo.PutGroup(hierarchy.Group{ID: 10, OfficeID: 2, IsCenter: true, ExternalID: "0501"})
				repo.PutGroup(hierarchy.Group{ID: 40, OfficeID: 2, ParentID: ptr(10), ExternalID: "050199"})
			},
			kind: hierarchy.KindGroup,
			id:   11,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := newTree(t)
			tt.seed(repo)
			alloc, hook := newAllocator(t, repo, services.Options{})

			res, err := alloc.AllocateExternalID(context.Background(), tt.kind, tt.id)
			require.ErrorIs(t, err, services.ErrOverflow)
			require.Empty(t, res.ExternalID)
			require.Empty(t, externalIDOf(t, repo, tt.kind, tt.id))
			require.Zero(t, repo.saves.Load())
			require.True(t, hasMessage(hook, "extid.failed"))
		})
	}
}

func TestAllocateExternalID_CycleDetected(t *testing.T) {
	repo := &countingRepo{MemoryRepository: persistence.NewMemoryRepository()}
	repo.PutOffice(hierarchy.Office{ID: 1})
	repo.PutOffice(hierarchy.Office{ID: 2, ParentID: ptr(3)})
	repo.PutOffice(hierarchy.Office{ID: 3, ParentID: ptr(2)})
	alloc, _ := newAllocator(t, repo, services.Options{})

	_, err := alloc.AllocateExternalID(context.Background(), hierarchy.KindOffice, 2)
	require.ErrorIs(t, err, services.ErrHierarchyCycle)
}

func TestAllocateExternalID_ConcurrentSiblings(t *testing.T) {
	const n = 40
	repo := newTree(t)
	for i := 1; i <= n; i++ {
		repo.PutClient(hierarchy.Client{ID: int64(1000 + i), GroupIDs: []int64{11}})
	}
	alloc, _ := newAllocator(t, repo, services.Options{LockTimeout: 10 * time.Second})

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		got  []string
		errs []error
	)
	for i := 1; i <= n; i++ {
		wg.Add(1)
		go func(id int64) {
			defer wg.Done()
			res, err := alloc.AllocateExternalID(context.Background(), hierarchy.KindClient, id)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs = append(errs, err)
				return
			}
			got = append(got, res.ExternalID)
		}(int64(1000 + i))
	}
	wg.Wait()

	require.Empty(t, errs)
	sort.Strings(got)
	want := make([]string, 0, n)
	for i := 1; i <= n; i++ {
		want = append(want, fmt.Sprintf("050101%04d", i))
	}
	require.Equal(t, want, got)
}

func TestAllocateExternalID_LockTimeout(t *testing.T) {
	repo := newTree(t)
	repo.PutGroup(hierarchy.Group{ID: 11, OfficeID: 2, ParentID: ptr(10), ExternalID: "050101"})
	guard := services.NewLocalGuard()
	alloc, _ := newAllocator(t, repo, services.Options{Guard: guard, LockTimeout: 30 * time.Millisecond})

	release, err := guard.Acquire(context.Background(), services.Scope{Kind: hierarchy.KindClient, ParentID: 11})
	require.NoError(t, err)
	defer release()

	_, err = alloc.AllocateExternalID(context.Background(), hierarchy.KindClient, 100)
	require.ErrorIs(t, err, services.ErrLockTimeout)
	require.Empty(t, externalIDOf(t, repo, hierarchy.KindClient, 100))
}

func TestAllocateExternalID_CallerCancellation(t *testing.T) {
	repo := newTree(t)
	repo.PutGroup(hierarchy.Group{ID: 11, OfficeID: 2, ParentID: ptr(10), ExternalID: "050101"})
	guard := services.NewLocalGuard()
	alloc, _ := newAllocator(t, repo, services.Options{Guard: guard, LockTimeout: time.Minute})

	release, err := guard.Acquire(context.Background(), services.Scope{Kind: hierarchy.KindClient, ParentID: 11})
	require.NoError(t, err)
	defer release()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = alloc.AllocateExternalID(ctx, hierarchy.KindClient, 100)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.NotErrorIs(t, err, services.ErrLockTimeout)
}

// racingRepo assigns an identifier behind the allocator's back right before
// its write, as a second writer without a shared guard would.
type racingRepo struct {
	*countingRepo
	winner string
}

func (r *racingRepo) SaveClient(ctx context.Context, c hierarchy.Client) error {
	cur, err := r.GetClient(ctx, c.ID)
	if err != nil {
		return err
	}
	cur.ExternalID = r.winner
	if err := r.countingRepo.SaveClient(ctx, cur); err != nil {
		return err
	}
	return r.countingRepo.SaveClient(ctx, c)
}

func TestAllocateExternalID_ConflictingWriteReturnsExisting(t *testing.T) {
	repo := &racingRepo{countingRepo: newTree(t), winner: "0501010009"}
	alloc, _ := newAllocator(t, repo, services.Options{})

	res, err := alloc.AllocateExternalID(context.Background(), hierarchy.KindClient, 100)
	require.NoError(t, err)
	require.Equal(t, services.OutcomeExisting, res.Outcome)
	require.Equal(t, "0501010009", res.ExternalID)
}

func TestAllocateExternalID_SiblingMismatchLogged(t *testing.T) {
	repo := newTree(t)
	repo.PutOffice(hierarchy.Office{ID: 4, ParentID: ptr(1), ExternalID: "001"})
	repo.PutOffice(hierarchy.Office{ID: 5, ParentID: ptr(1)})
	repo.PutOffice(hierarchy.Office{ID: 6, ParentID: ptr(1), ExternalID: "HQ"})
	alloc, hook := newAllocator(t, repo, services.Options{})

	res, err := alloc.AllocateExternalID(context.Background(), hierarchy.KindOffice, 5)
	require.NoError(t, err)
	require.Equal(t, "06", res.ExternalID)

	var found *logrus.Entry
	for _, e := range hook.AllEntries() {
		if e.Message == "extid.sibling_width_mismatch" {
			found = e
		}
	}
	require.NotNil(t, found)
	require.Equal(t, logrus.WarnLevel, found.Level)
	require.Equal(t, []string{"001", "HQ"}, found.Data["ignored"])
}

func TestAllocateExternalID_NonNumericParentSkipsChildren(t *testing.T) {
	repo := newTree(t)
	repo.PutOffice(hierarchy.Office{ID: 20, ParentID: ptr(1), ExternalID: "HQ"})
	repo.PutOffice(hierarchy.Office{ID: 21, ParentID: ptr(20)})
	repo.PutOffice(hierarchy.Office{ID: 22, ParentID: ptr(20)})
	repo.PutGroup(hierarchy.Group{ID: 30, OfficeID: 2, IsCenter: true, ExternalID: "05A"})
	repo.PutGroup(hierarchy.Group{ID: 31, OfficeID: 2, ParentID: ptr(30)})
	alloc, hook := newAllocator(t, repo, services.Options{})
	ctx := context.Background()

	tests := []struct {
		kind hierarchy.Kind
		id   int64
	}{
		{kind: hierarchy.KindOffice, id: 21},
		{kind: hierarchy.KindOffice, id: 22},
		{kind: hierarchy.KindGroup, id: 31},
	}
	for _, tt := range tests {
		res, err := alloc.AllocateExternalID(ctx, tt.kind, tt.id)
		require.NoError(t, err)
		require.True(t, res.Skipped())
		require.ErrorIs(t, res.Reason, services.ErrNonNumericParent)
		require.Empty(t, externalIDOf(t, repo, tt.kind, tt.id))
	}
	require.Zero(t, repo.saves.Load())
	require.True(t, hasMessage(hook, "extid.skipped"))
	require.False(t, hasMessage(hook, "extid.failed"))
}

func TestAllocateExternalID_UsesContextLogger(t *testing.T) {
	repo := newTree(t)
	alloc, fallback := newAllocator(t, repo, services.Options{})

	logger, hook := test.NewNullLogger()
	ctx := composables.WithLogger(context.Background(), logrus.NewEntry(logger))
	ctx = composables.WithRequestID(ctx, "req-1")

	_, err := alloc.AllocateExternalID(ctx, hierarchy.KindOffice, 3)
	require.NoError(t, err)

	entry := hook.LastEntry()
	require.NotNil(t, entry)
	require.Equal(t, "extid.allocated", entry.Message)
	require.Equal(t, "req-1", entry.Data["request_id"])
	require.Equal(t, "05001", entry.Data["external_id"])
	require.Empty(t, fallback.AllEntries())
}

func TestTrigger(t *testing.T) {
	repo := newTree(t)
	alloc, _ := newAllocator(t, repo, services.Options{})
	ctx := context.Background()

	require.NoError(t, alloc.Trigger(ctx, "CLIENT", 100))
	require.Equal(t, "0501010001", externalIDOf(t, repo, hierarchy.KindClient, 100))

	saves := repo.saves.Load()
	require.NoError(t, alloc.Trigger(ctx, "loan", 100))
	require.NoError(t, alloc.Trigger(ctx, "", 100))
	require.Equal(t, saves, repo.saves.Load())

	require.ErrorIs(t, alloc.Trigger(ctx, "office", 12345), hierarchy.ErrNotFound)
}
