package cron

import (
	"context"
	"log/slog"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/kestrel-agent/kestrel/internal/interfaces"
	"github.com/kestrel-agent/kestrel/internal/runlog"
	"github.com/kestrel-agent/kestrel/internal/store"
)

// Dispatcher runs a due job's message through the agent and returns the
// reply text.
type Dispatcher func(ctx context.Context, job interfaces.Job) (string, error)

// Scheduler polls the job list and fires due, enabled jobs. It is the only
// runtime mutator of a job's LastRun field.
type Scheduler struct {
	store    *store.Store
	runs     *runlog.Log // optional
	dispatch Dispatcher
	interval time.Duration
	log      *slog.Logger
}

// NewScheduler builds a scheduler. runs may be nil to skip execution
// records.
func NewScheduler(st *store.Store, runs *runlog.Log, dispatch Dispatcher, interval time.Duration, log *slog.Logger) *Scheduler {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	if log == nil {
		log = slog.Default()
	}
	return &Scheduler{
		store:    st,
		runs:     runs,
		dispatch: dispatch,
		interval: interval,
		log:      log,
	}
}

// Run polls until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) error {
	s.log.Info("cron scheduler started", "interval", s.interval)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case now := <-ticker.C:
			s.Tick(ctx, now)
		}
	}
}

// Tick fires every enabled job whose next fire time has passed and stamps
// LastRun. One bad job never blocks the others.
func (s *Scheduler) Tick(ctx context.Context, now time.Time) {
	jobs, err := s.store.LoadJobs()
	if err != nil {
		s.log.Warn("load jobs failed", "error", err)
		return
	}

	changed := false
	for i := range jobs {
		job := &jobs[i]
		if !job.Enabled {
			continue
		}
		due, err := s.due(*job, now)
		if err != nil {
			s.log.Warn("job has an invalid schedule", "job", job.Name, "error", err)
			continue
		}
		if !due {
			continue
		}
		fired := now
		job.LastRun = &fired
		changed = true
		s.fire(ctx, *job)
	}
	if changed {
		if err := s.store.SaveJobs(jobs); err != nil {
			s.log.Warn("save jobs failed", "error", err)
		}
	}
}

func (s *Scheduler) due(job interfaces.Job, now time.Time) (bool, error) {
	sched, err := Parse(job.Schedule)
	if err != nil {
		return false, err
	}
	loc := time.Local
	if job.Timezone != "" {
		l, err := time.LoadLocation(job.Timezone)
		if err != nil {
			return false, err
		}
		loc = l
	}
	// A job that never ran is checked against the previous poll window so a
	// freshly created job doesn't replay its entire past.
	last := now.Add(-s.interval)
	if job.LastRun != nil {
		last = *job.LastRun
	}
	next := sched.Next(last.In(loc))
	return !next.IsZero() && !next.After(now.In(loc)), nil
}

func (s *Scheduler) fire(ctx context.Context, job interfaces.Job) {
	started := time.Now()
	output, err := s.dispatch(ctx, job)
	finished := time.Now()

	if s.runs != nil {
		rec := runlog.Run{
			ID:         uuid.NewString(),
			JobID:      job.ID,
			Name:       job.Name,
			StartedAt:  started,
			FinishedAt: finished,
			Status:     "ok",
			Output:     truncate(output, 500),
		}
		if err != nil {
			rec.Status = "error"
			rec.Error = err.Error()
		}
		if rerr := s.runs.Record(rec); rerr != nil {
			s.log.Warn("record run failed", "job", job.Name, "error", rerr)
		}
	}

	if err != nil {
		s.log.Warn("scheduled job failed", "job", job.Name, "error", err)
		return
	}
	s.log.Info("scheduled job completed", "job", job.Name, "duration", finished.Sub(started))
}

// truncate caps s at max bytes without cutting through a UTF-8 sequence.
func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}
