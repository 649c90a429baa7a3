package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"punchclock.service/internal/core/model"
)

func setupStore(t *testing.T, opts Options) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "punches.db"), opts)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func punchAt(employeeID string, typ model.PunchType, ts time.Time) *model.Punch {
	return &model.Punch{EmployeeID: employeeID, Type: typ, Timestamp: ts}
}

func TestAppendAndListUnsynced(t *testing.T) {
	s := setupStore(t, Options{RetainSynced: true})
	ctx := context.Background()
	base := time.Date(2024, 3, 4, 8, 0, 0, 0, time.UTC)

	late := punchAt("emp-1", model.PunchClockOut, base.Add(8*time.Hour))
	early := punchAt("emp-1", model.PunchClockIn, base)
	require.NoError(t, s.Append(ctx, late))
	require.NoError(t, s.Append(ctx, early))

	assert.NotEmpty(t, late.ID)
	assert.NotEqual(t, late.ID, early.ID)
	assert.False(t, early.CreatedAt.IsZero())

	pending, err := s.ListUnsynced(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, early.ID, pending[0].ID)
	assert.Equal(t, late.ID, pending[1].ID)
	assert.Equal(t, model.PunchClockIn, pending[0].Type)
	assert.True(t, pending[0].Timestamp.Equal(base))
	assert.False(t, pending[0].Synced)
}

func TestListUnsyncedKeepsCaptureOrderOnEqualTimestamps(t *testing.T) {
	s := setupStore(t, Options{})
	ctx := context.Background()
	ts := time.Date(2024, 3, 4, 8, 0, 0, 0, time.UTC)

	var ids []string
	for i := 0; i < 5; i++ {
		p := punchAt("emp-1", model.PunchClockIn, ts)
		require.NoError(t, s.Append(ctx, p))
		ids = append(ids, p.ID)
	}

	pending, err := s.ListUnsynced(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 5)
	for i, p := range pending {
		assert.Equal(t, ids[i], p.ID)
	}
}

func TestAppendRejectsDuplicateID(t *testing.T) {
	s := setupStore(t, Options{})
	ctx := context.Background()

	p := punchAt("emp-1", model.PunchClockIn, time.Now())
	p.ID = "fixed-id"
	require.NoError(t, s.Append(ctx, p))

	again := punchAt("emp-1", model.PunchClockIn, time.Now())
	again.ID = "fixed-id"
	err := s.Append(ctx, again)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDuplicate)

	pending, err := s.ListUnsynced(ctx)
	require.NoError(t, err)
	assert.Len(t, pending, 1)
}

func TestAppendSurfacesQuota(t *testing.T) {
	s := setupStore(t, Options{MaxPending: 2})
	ctx := context.Background()

	require.NoError(t, s.Append(ctx, punchAt("emp-1", model.PunchClockIn, time.Now())))
	require.NoError(t, s.Append(ctx, punchAt("emp-2", model.PunchClockIn, time.Now())))

	err := s.Append(ctx, punchAt("emp-3", model.PunchClockIn, time.Now()))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrQuotaExceeded))
}

func TestMarkSynced(t *testing.T) {
	ctx := context.Background()

	t.Run("retained punches leave the pending list", func(t *testing.T) {
		s := setupStore(t, Options{RetainSynced: true})
		p := punchAt("emp-1", model.PunchClockIn, time.Now())
		require.NoError(t, s.Append(ctx, p))

		require.NoError(t, s.MarkSynced(ctx, p.ID))
		require.NoError(t, s.MarkSynced(ctx, p.ID), "second mark is a no-op")

		pending, err := s.ListUnsynced(ctx)
		require.NoError(t, err)
		assert.Empty(t, pending)

		stored, err := s.Get(ctx, p.ID)
		require.NoError(t, err)
		assert.True(t, stored.Synced)
		assert.NotNil(t, stored.SyncedAt)
	})

	t.Run("deleted when not retained", func(t *testing.T) {
		s := setupStore(t, Options{RetainSynced: false})
		p := punchAt("emp-1", model.PunchClockIn, time.Now())
		require.NoError(t, s.Append(ctx, p))

		require.NoError(t, s.MarkSynced(ctx, p.ID))

		_, err := s.Get(ctx, p.ID)
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("unknown id", func(t *testing.T) {
		s := setupStore(t, Options{})
		assert.ErrorIs(t, s.MarkSynced(ctx, "missing"), ErrNotFound)
	})
}

func TestRecordFailure(t *testing.T) {
	s := setupStore(t, Options{})
	ctx := context.Background()

	p := punchAt("emp-1", model.PunchClockIn, time.Now())
	require.NoError(t, s.Append(ctx, p))

	require.NoError(t, s.RecordFailure(ctx, p.ID, errors.New("503 from server")))
	require.NoError(t, s.RecordFailure(ctx, p.ID, errors.New("timeout")))

	stored, err := s.Get(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, stored.Attempts)
	assert.Equal(t, "timeout", stored.LastError)
	assert.False(t, stored.Synced)

	assert.ErrorIs(t, s.RecordFailure(ctx, "missing", nil), ErrNotFound)
}

func TestPendingCountAndListForEmployeeDay(t *testing.T) {
	s := setupStore(t, Options{RetainSynced: true})
	ctx := context.Background()
	day := time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC)

	in := punchAt("emp-1", model.PunchClockIn, day.Add(8*time.Hour))
	require.NoError(t, s.Append(ctx, in))
	require.NoError(t, s.Append(ctx, punchAt("emp-1", model.PunchClockIn, day.Add(32*time.Hour))))
	require.NoError(t, s.Append(ctx, punchAt("emp-2", model.PunchClockIn, day.Add(9*time.Hour))))
	require.NoError(t, s.MarkSynced(ctx, in.ID))

	n, err := s.PendingCount(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)

	punches, err := s.ListForEmployeeDay(ctx, "emp-1", day, day.Add(24*time.Hour))
	require.NoError(t, err)
	require.Len(t, punches, 1)
	assert.Equal(t, in.ID, punches[0].ID)
	assert.True(t, punches[0].Synced)

	all, err := s.ListAll(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestPurgeSynced(t *testing.T) {
	s := setupStore(t, Options{RetainSynced: true})
	ctx := context.Background()

	clock := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return clock }

	old := punchAt("emp-1", model.PunchClockIn, clock)
	require.NoError(t, s.Append(ctx, old))
	require.NoError(t, s.MarkSynced(ctx, old.ID))

	clock = clock.AddDate(0, 2, 0)
	recent := punchAt("emp-1", model.PunchClockOut, clock)
	require.NoError(t, s.Append(ctx, recent))
	require.NoError(t, s.MarkSynced(ctx, recent.ID))

	unsynced := punchAt("emp-2", model.PunchClockIn, time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, s.Append(ctx, unsynced))

	removed, err := s.PurgeSynced(ctx, clock.AddDate(0, 0, -30))
	require.NoError(t, err)
	assert.EqualValues(t, 1, removed)

	_, err = s.Get(ctx, old.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = s.Get(ctx, recent.ID)
	assert.NoError(t, err)
	_, err = s.Get(ctx, unsynced.ID)
	assert.NoError(t, err)
}

func TestSyncLease(t *testing.T) {
	s := setupStore(t, Options{})
	ctx := context.Background()

	clock := time.Date(2024, 3, 4, 8, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return clock }

	ok, err := s.AcquireLease(ctx, "agent-a", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.AcquireLease(ctx, "agent-b", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok, "lease is held by agent-a")

	ok, err = s.AcquireLease(ctx, "agent-a", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok, "holder can renew")

	clock = clock.Add(2 * time.Minute)
	ok, err = s.AcquireLease(ctx, "agent-b", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok, "expired lease can be taken over")

	require.NoError(t, s.ReleaseLease(ctx, "agent-b"))
	ok, err = s.AcquireLease(ctx, "agent-a", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestStoreSharedByTwoHandles(t *testing.T) {
	path := filepath.Join(t.TempDir(), "shared.db")
	a, err := Open(path, Options{})
	require.NoError(t, err)
	defer a.Close()
	b, err := Open(path, Options{})
	require.NoError(t, err)
	defer b.Close()

	ctx := context.Background()
	ok, err := a.AcquireLease(ctx, "a", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = b.AcquireLease(ctx, "b", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)
}
