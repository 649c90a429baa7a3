package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
)

// Triggerer asks for a sync pass without waiting for it.
type Triggerer interface {
	Trigger()
}

// Purger drops synced punches acknowledged before a cutoff.
type Purger interface {
	PurgeSynced(ctx context.Context, before time.Time) (int64, error)
}

// Every formats d as a cron descriptor.
func Every(d time.Duration) string {
	return fmt.Sprintf("@every %s", d)
}

// SyncJob returns a task body that nudges the sync runner. It catches punches
// left behind by a halted pass while the connection stayed up.
func SyncJob(t Triggerer) func() {
	return t.Trigger
}

// PurgeJob returns a task body that deletes synced punches older than retention.
func PurgeJob(ctx context.Context, p Purger, retention time.Duration, now func() time.Time) func() {
	if now == nil {
		now = time.Now
	}
	return func() {
		cutoff := now().Add(-retention)
		n, err := p.PurgeSynced(ctx, cutoff)
		if err != nil {
			log.Error().Err(err).Msg("Failed to purge synced punches")
			return
		}
		if n > 0 {
			log.Info().Int64("deleted", n).Time("cutoff", cutoff).Msg("Purged synced punches")
		}
	}
}
