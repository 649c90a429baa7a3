package syncer

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"punchclock.service/internal/agent/connectivity"
	"punchclock.service/internal/agent/store"
	"punchclock.service/internal/core/model"
)

// fakeSubmitter records submissions and fails for ids listed in failOn.
type fakeSubmitter struct {
	mu     sync.Mutex
	calls  []model.Punch
	failOn map[string]error
	block  chan struct{}
}

func (f *fakeSubmitter) SubmitPunch(ctx context.Context, p model.Punch) error {
	if f.block != nil {
		<-f.block
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, p)
	if err, ok := f.failOn[p.ID]; ok {
		return err
	}
	return nil
}

func (f *fakeSubmitter) submittedIDs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	ids := make([]string, 0, len(f.calls))
	for _, c := range f.calls {
		ids = append(ids, c.ID)
	}
	return ids
}

func setup(t *testing.T, online bool) (*store.Store, *fakeSubmitter, *connectivity.Monitor, *Runner) {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "punches.db"), store.Options{RetainSynced: true})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	sub := &fakeSubmitter{failOn: map[string]error{}}
	mon := connectivity.NewMonitor(online)
	return s, sub, mon, NewRunner(s, sub, mon)
}

func capture(t *testing.T, s *store.Store, typ model.PunchType, ts time.Time) model.Punch {
	t.Helper()
	p := model.Punch{EmployeeID: "emp-1", Type: typ, Timestamp: ts}
	require.NoError(t, s.Append(context.Background(), &p))
	return p
}

var t0 = time.Date(2024, 3, 4, 8, 0, 0, 0, time.UTC)

func TestRunPassSubmitsInTimestampOrder(t *testing.T) {
	s, sub, _, r := setup(t, true)
	ctx := context.Background()

	out := capture(t, s, model.PunchClockOut, t0.Add(9*time.Hour))
	in := capture(t, s, model.PunchClockIn, t0)
	brk := capture(t, s, model.PunchBreakStart, t0.Add(4*time.Hour))

	res, err := r.RunPass(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, res.Submitted)
	assert.Zero(t, res.Remaining)
	assert.Equal(t, []string{in.ID, brk.ID, out.ID}, sub.submittedIDs())

	pending, err := s.ListUnsynced(ctx)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestRunPassHaltsOnFirstFailure(t *testing.T) {
	s, sub, _, r := setup(t, true)
	ctx := context.Background()

	first := capture(t, s, model.PunchClockIn, t0)
	second := capture(t, s, model.PunchBreakStart, t0.Add(time.Hour))
	third := capture(t, s, model.PunchBreakEnd, t0.Add(2*time.Hour))
	sub.failOn[second.ID] = errors.New("503 service unavailable")

	res, err := r.RunPass(ctx)
	require.Error(t, err)
	assert.Equal(t, 1, res.Submitted)
	assert.Equal(t, second.ID, res.FailedID)
	assert.Equal(t, 2, res.Remaining)
	assert.Equal(t, []string{first.ID, second.ID}, sub.submittedIDs(), "third must not be attempted")

	stored, err := s.Get(ctx, second.ID)
	require.NoError(t, err)
	assert.False(t, stored.Synced)
	assert.Equal(t, 1, stored.Attempts)
	assert.Contains(t, stored.LastError, "503")

	pending, err := s.ListUnsynced(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, second.ID, pending[0].ID)
	assert.Equal(t, third.ID, pending[1].ID)

	// Next pass resumes from the failed punch and never resends the first one.
	delete(sub.failOn, second.ID)
	res, err = r.RunPass(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Submitted)
	assert.Equal(t, []string{first.ID, second.ID, second.ID, third.ID}, sub.submittedIDs())
}

func TestRunPassOffline(t *testing.T) {
	s, sub, _, r := setup(t, false)
	capture(t, s, model.PunchClockIn, t0)

	_, err := r.RunPass(context.Background())
	assert.ErrorIs(t, err, ErrOffline)
	assert.Empty(t, sub.submittedIDs())
}

func TestRunPassIsSingleFlight(t *testing.T) {
	s, sub, _, r := setup(t, true)
	capture(t, s, model.PunchClockIn, t0)
	sub.block = make(chan struct{})

	done := make(chan error, 1)
	go func() {
		_, err := r.RunPass(context.Background())
		done <- err
	}()

	require.Eventually(t, func() bool { return r.running.Load() }, time.Second, 5*time.Millisecond)
	_, err := r.RunPass(context.Background())
	assert.ErrorIs(t, err, ErrPassInProgress)

	close(sub.block)
	require.NoError(t, <-done)
	assert.Len(t, sub.submittedIDs(), 1)
}

func TestRunPassRespectsForeignLease(t *testing.T) {
	s, sub, _, r := setup(t, true)
	capture(t, s, model.PunchClockIn, t0)

	ok, err := s.AcquireLease(context.Background(), "other-agent", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	_, err = r.RunPass(context.Background())
	assert.ErrorIs(t, err, ErrLeaseHeld)
	assert.Empty(t, sub.submittedIDs())
}

func TestRunPassReleasesLease(t *testing.T) {
	s, _, _, r := setup(t, true)
	capture(t, s, model.PunchClockIn, t0)

	_, err := r.RunPass(context.Background())
	require.NoError(t, err)

	ok, err := s.AcquireLease(context.Background(), "other-agent", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestReconnectTriggersOnePass(t *testing.T) {
	s, sub, mon, r := setup(t, false)

	passes := make(chan PassResult, 10)
	r.OnPass = func(res PassResult, err error) {
		assert.NoError(t, err)
		passes <- res
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go r.Start(ctx)

	in := capture(t, s, model.PunchClockIn, t0)
	out := capture(t, s, model.PunchClockOut, t0.Add(8*time.Hour))

	mon.Set(true)

	select {
	case res := <-passes:
		assert.Equal(t, 2, res.Submitted)
	case <-time.After(2 * time.Second):
		t.Fatal("no pass after reconnect")
	}
	assert.Equal(t, []string{in.ID, out.ID}, sub.submittedIDs())

	for _, id := range []string{in.ID, out.ID} {
		p, err := s.Get(context.Background(), id)
		require.NoError(t, err)
		assert.True(t, p.Synced)
	}

	select {
	case <-passes:
		t.Fatal("reconnect produced a second pass")
	case <-time.After(100 * time.Millisecond):
	}

	// Going offline does not flush; the next reconnect does.
	mon.Set(false)
	select {
	case <-passes:
		t.Fatal("pass ran while going offline")
	case <-time.After(100 * time.Millisecond):
	}

	mon.Set(true)
	select {
	case res := <-passes:
		assert.Zero(t, res.Submitted, "synced punches are not resent")
	case <-time.After(2 * time.Second):
		t.Fatal("no pass after second reconnect")
	}
	assert.Len(t, sub.submittedIDs(), 2)
}

func TestTriggerCoalesces(t *testing.T) {
	_, _, _, r := setup(t, true)

	r.Trigger()
	r.Trigger()
	r.Trigger()
	assert.Len(t, r.trigger, 1)
}

func TestStatus(t *testing.T) {
	s, sub, _, r := setup(t, true)
	p := capture(t, s, model.PunchClockIn, t0)
	capture(t, s, model.PunchClockOut, t0.Add(time.Hour))
	sub.failOn[p.ID] = errors.New("boom")

	_, err := r.RunPass(context.Background())
	require.Error(t, err)

	st, err := r.Status(context.Background())
	require.NoError(t, err)
	assert.True(t, st.Online)
	assert.False(t, st.Syncing)
	assert.EqualValues(t, 2, st.Pending)
	require.NotNil(t, st.LastPass)
	assert.Equal(t, p.ID, st.LastPass.FailedID)
	assert.Contains(t, st.LastError, "boom")
}
