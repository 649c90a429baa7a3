package scheduler

import (
	"fmt"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"
)

// ScheduledTask runs a function on a cron schedule until canceled.
type ScheduledTask struct {
	name   string
	cronID cron.EntryID
	cron   *cron.Cron
	cancel chan struct{}
}

// NewScheduledTask starts taskFunc on cronSpec (standard five field syntax or
// descriptors such as "@every 30s" and "@daily"). Runs that would overlap a
// still running invocation are skipped.
func NewScheduledTask(name, cronSpec string, taskFunc func()) (*ScheduledTask, error) {
	c := cron.New(cron.WithChain(
		cron.Recover(cron.DefaultLogger),
		cron.SkipIfStillRunning(cron.DefaultLogger),
	))
	cancel := make(chan struct{})
	task := &ScheduledTask{
		name:   name,
		cron:   c,
		cancel: cancel,
	}

	id, err := c.AddFunc(cronSpec, func() {
		select {
		case <-cancel:
			return
		default:
			taskFunc()
		}
	})
	if err != nil {
		return nil, fmt.Errorf("invalid schedule %q for %s: %w", cronSpec, name, err)
	}

	task.cronID = id
	c.Start()
	log.Info().Str("task", name).Str("schedule", cronSpec).Msg("Scheduled task registered")
	return task, nil
}

// Cancel stops future runs and waits for a running one to return.
func (s *ScheduledTask) Cancel() {
	s.cron.Remove(s.cronID)
	close(s.cancel)
	<-s.cron.Stop().Done()
}
