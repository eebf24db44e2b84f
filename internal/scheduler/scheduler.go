// Package scheduler runs a job once a day at a configurable time.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// Job is the scheduled work.
type Job func(ctx context.Context) error

// Config configures a [Scheduler].
type Config struct {
	// Name is used in log records.
	Name string
	Job  Job
	// Location is the time zone of scheduled times. Defaults to time.Local.
	Location *time.Location
	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// Scheduler holds at most one armed daily entry. Rescheduling replaces it, so
// the job never fires twice for one time of day.
type Scheduler struct {
	name string
	job  Job
	loc  *time.Location
	slog *slog.Logger
	cron *cron.Cron

	mu      sync.Mutex
	ctx     context.Context
	entry   cron.EntryID
	sched   cron.Schedule
	at      string
	started bool
}

// New returns a stopped Scheduler with no entry.
func New(c Config) *Scheduler {
	s := &Scheduler{
		name: c.Name,
		job:  c.Job,
		loc:  c.Location,
		slog: c.Logger,
		ctx:  context.Background(),
	}
	if s.loc == nil {
		s.loc = time.Local
	}
	if s.slog == nil {
		s.slog = slog.Default()
	}
	s.slog = s.slog.With("job", s.name)

	l := cronLogger{s.slog}
	s.cron = cron.New(
		cron.WithLocation(s.loc),
		cron.WithLogger(l),
		cron.WithChain(cron.Recover(l), cron.SkipIfStillRunning(l)),
	)
	return s
}

// Start starts firing the armed entry. Jobs run with the values of ctx, but
// canceling ctx doesn't cancel a running job; use Stop to wait for it.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return
	}
	s.ctx = context.WithoutCancel(ctx)
	s.started = true
	s.cron.Start()
}

// Stop stops future firings. It doesn't interrupt a running job; the
// returned context is done when it finishes.
func (s *Scheduler) Stop() context.Context {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.started = false
	return s.cron.Stop()
}

// Schedule arms the job to run daily at the given "HH:MM" time, replacing the
// previous entry. An invalid time leaves the previous entry armed.
func (s *Scheduler) Schedule(at string) error {
	hour, minute, err := ParseTime(at)
	if err != nil {
		return err
	}
	sched, err := cron.ParseStandard(fmt.Sprintf("%d %d * * *", minute, hour))
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.entry != 0 {
		s.cron.Remove(s.entry)
	}
	s.entry = s.cron.Schedule(sched, cron.FuncJob(s.run))
	s.sched = sched
	s.at = at
	s.slog.Info("job scheduled", "at", at, "next", s.next())
	return nil
}

// Unschedule removes the entry, if any.
func (s *Scheduler) Unschedule() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.entry != 0 {
		s.cron.Remove(s.entry)
	}
	s.entry, s.sched, s.at = 0, nil, ""
}

// Entries returns the number of armed entries, which is zero or one.
func (s *Scheduler) Entries() int {
	return len(s.cron.Entries())
}

// At returns the scheduled time of day, or an empty string.
func (s *Scheduler) At() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.at
}

// Next returns the next time the job fires, or the zero time if nothing is
// scheduled.
func (s *Scheduler) Next() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.next()
}

func (s *Scheduler) next() time.Time {
	if s.sched == nil {
		return time.Time{}
	}
	if e := s.cron.Entry(s.entry); e.Valid() && !e.Next.IsZero() {
		return e.Next
	}
	return s.sched.Next(time.Now().In(s.loc))
}

// TriggerNow runs the job immediately, outside of the schedule.
func (s *Scheduler) TriggerNow(ctx context.Context) error {
	s.slog.Info("job triggered manually")
	return s.job(ctx)
}

func (s *Scheduler) run() {
	s.mu.Lock()
	ctx := s.ctx
	s.mu.Unlock()

	s.slog.Info("running scheduled job")
	if err := s.job(ctx); err != nil {
		s.slog.Error("scheduled job failed", "error", err)
	}
}

// ParseTime parses a time of day in the "HH:MM" form.
func ParseTime(at string) (hour, minute int, err error) {
	t, err := time.Parse("15:04", strings.TrimSpace(at))
	if err != nil {
		return 0, 0, fmt.Errorf("invalid time of day %q, want HH:MM", at)
	}
	return t.Hour(), t.Minute(), nil
}

// cronLogger adapts slog to cron.Logger. Routine cron messages go to the
// debug level.
type cronLogger struct{ l *slog.Logger }

func (c cronLogger) Info(msg string, keysAndValues ...any) {
	c.l.Debug("cron: "+msg, keysAndValues...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...any) {
	c.l.Error("cron: "+msg, append(keysAndValues, "error", err)...)
}
