package syncer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"punchclock.service/internal/agent/connectivity"
	"punchclock.service/internal/core/model"
)

var (
	ErrOffline        = errors.New("agent is offline")
	ErrPassInProgress = errors.New("sync pass already running")
	ErrLeaseHeld      = errors.New("sync lease held by another agent")
)

// Store is the part of the local punch store the runner needs.
type Store interface {
	ListUnsynced(ctx context.Context) ([]model.Punch, error)
	MarkSynced(ctx context.Context, id string) error
	RecordFailure(ctx context.Context, id string, cause error) error
	PendingCount(ctx context.Context) (int64, error)
	AcquireLease(ctx context.Context, owner string, ttl time.Duration) (bool, error)
	ReleaseLease(ctx context.Context, owner string) error
}

// Submitter delivers one punch to the server.
type Submitter interface {
	SubmitPunch(ctx context.Context, p model.Punch) error
}

// PassResult describes one sync pass.
type PassResult struct {
	StartedAt  time.Time `json:"startedAt"`
	FinishedAt time.Time `json:"finishedAt"`
	Submitted  int       `json:"submitted"`
	FailedID   string    `json:"failedId,omitempty"`
	Remaining  int       `json:"remaining"`
}

// Status is a snapshot for the kiosk screen.
type Status struct {
	Online     bool        `json:"online"`
	Syncing    bool        `json:"syncing"`
	Pending    int64       `json:"pending"`
	LastPass   *PassResult `json:"lastPass,omitempty"`
	LastError  string      `json:"lastError,omitempty"`
	LeaseOwner string      `json:"leaseOwner"`
}

// Runner flushes queued punches to the server, oldest first, one at a time.
type Runner struct {
	store     Store
	submitter Submitter
	monitor   *connectivity.Monitor
	owner     string

	// LeaseTTL bounds how long a crashed agent can block others sharing the store.
	LeaseTTL time.Duration
	// OnPass, when set, is called after every pass attempt that was not
	// rejected as already in progress.
	OnPass func(PassResult, error)

	running atomic.Bool
	trigger chan struct{}
	states  <-chan bool
	unsub   func()

	mu       sync.Mutex
	lastPass *PassResult
	lastErr  error
}

// NewRunner wires a runner to its store, server and connectivity monitor.
// It subscribes to the monitor right away so no reconnect is missed before Start.
func NewRunner(store Store, submitter Submitter, monitor *connectivity.Monitor) *Runner {
	states, unsub := monitor.Subscribe()
	return &Runner{
		store:     store,
		submitter: submitter,
		monitor:   monitor,
		owner:     uuid.NewString(),
		LeaseTTL:  2 * time.Minute,
		trigger:   make(chan struct{}, 1),
		states:    states,
		unsub:     unsub,
	}
}

// Start runs passes on reconnect and on Trigger until ctx is canceled.
// Passes run on this goroutine only, so they never overlap.
func (r *Runner) Start(ctx context.Context) {
	defer r.unsub()
	log.Info().Str("owner", r.owner).Msg("Sync runner started")

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("Sync runner shutting down...")
			return
		case online, ok := <-r.states:
			if !ok {
				return
			}
			if online {
				r.runLogged(ctx, "reconnect")
			}
		case <-r.trigger:
			r.runLogged(ctx, "trigger")
		}
	}
}

// Trigger asks the runner loop for a pass. Requests made while one is
// already queued are merged.
func (r *Runner) Trigger() {
	select {
	case r.trigger <- struct{}{}:
	default:
	}
}

func (r *Runner) runLogged(ctx context.Context, reason string) {
	res, err := r.RunPass(ctx)
	switch {
	case errors.Is(err, ErrOffline), errors.Is(err, ErrPassInProgress):
		log.Debug().Str("reason", reason).Err(err).Msg("Sync pass skipped")
	case err != nil:
		log.Warn().Err(err).Str("reason", reason).
			Int("submitted", res.Submitted).
			Str("failed_id", res.FailedID).
			Int("remaining", res.Remaining).
			Msg("Sync pass halted, will retry later")
	case res.Submitted > 0:
		log.Info().Str("reason", reason).Int("submitted", res.Submitted).Msg("Sync pass completed")
	}
}

// RunPass flushes the queue once. It stops at the first failed submission,
// leaving that punch and everything after it queued for a later pass.
func (r *Runner) RunPass(ctx context.Context) (PassResult, error) {
	if !r.running.CompareAndSwap(false, true) {
		return PassResult{}, ErrPassInProgress
	}
	defer r.running.Store(false)

	res, err := r.pass(ctx)
	res.FinishedAt = time.Now().UTC()

	r.mu.Lock()
	r.lastPass = &res
	r.lastErr = err
	r.mu.Unlock()

	if r.OnPass != nil {
		r.OnPass(res, err)
	}
	return res, err
}

func (r *Runner) pass(ctx context.Context) (PassResult, error) {
	res := PassResult{StartedAt: time.Now().UTC()}

	if !r.monitor.Online() {
		return res, ErrOffline
	}

	ok, err := r.store.AcquireLease(ctx, r.owner, r.LeaseTTL)
	if err != nil {
		return res, fmt.Errorf("acquire sync lease: %w", err)
	}
	if !ok {
		return res, ErrLeaseHeld
	}
	leasedAt := time.Now()
	defer func() {
		if err := r.store.ReleaseLease(context.WithoutCancel(ctx), r.owner); err != nil {
			log.Warn().Err(err).Msg("Failed to release sync lease")
		}
	}()

	punches, err := r.store.ListUnsynced(ctx)
	if err != nil {
		return res, fmt.Errorf("list unsynced punches: %w", err)
	}

	for i, p := range punches {
		res.Remaining = len(punches) - i

		if err := ctx.Err(); err != nil {
			return res, err
		}

		if time.Since(leasedAt) > r.LeaseTTL/2 {
			ok, err := r.store.AcquireLease(ctx, r.owner, r.LeaseTTL)
			if err != nil {
				return res, fmt.Errorf("renew sync lease: %w", err)
			}
			if !ok {
				return res, ErrLeaseHeld
			}
			leasedAt = time.Now()
		}

		// Bookkeeping survives shutdown so an interrupted pass still leaves
		// the queue accurate.
		bookCtx := context.WithoutCancel(ctx)
		if err := r.submitter.SubmitPunch(ctx, p); err != nil {
			res.FailedID = p.ID
			if ferr := r.store.RecordFailure(bookCtx, p.ID, err); ferr != nil {
				log.Warn().Err(ferr).Str("punch_id", p.ID).Msg("Failed to record sync failure")
			}
			return res, fmt.Errorf("submit punch %s: %w", p.ID, err)
		}

		// A punch delivered but not marked is resent next pass; the server
		// deduplicates on its id.
		if err := r.store.MarkSynced(bookCtx, p.ID); err != nil {
			return res, fmt.Errorf("mark punch %s synced: %w", p.ID, err)
		}
		res.Submitted++
	}

	res.Remaining = 0
	return res, nil
}

// Status reports the runner state together with the queue depth.
func (r *Runner) Status(ctx context.Context) (Status, error) {
	pending, err := r.store.PendingCount(ctx)
	if err != nil {
		return Status{}, err
	}

	st := Status{
		Online:     r.monitor.Online(),
		Syncing:    r.running.Load(),
		Pending:    pending,
		LeaseOwner: r.owner,
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.lastPass != nil {
		last := *r.lastPass
		st.LastPass = &last
	}
	if r.lastErr != nil {
		st.LastError = r.lastErr.Error()
	}
	return st, nil
}
