// Package scheduler drives the cron tick loop that admits PENDING Backup
// rows at their scheduled firing times and hands them to the pipeline's
// worker pool.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/nexusdb/guardian/pkg/catalog"
	"github.com/nexusdb/guardian/pkg/log"
	"github.com/nexusdb/guardian/pkg/metrics"
	"github.com/nexusdb/guardian/pkg/pipeline"
	"github.com/nexusdb/guardian/pkg/types"
)

// TickInterval is how often the scheduler evaluates due schedules.
const TickInterval = 60 * time.Second

// cronParser accepts both the standard 5-field form and an optional
// leading seconds field, per spec.md 4.4.
var cronParser = cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// Scheduler admits PENDING backups at their cron firing times.
type Scheduler struct {
	Catalog catalog.Catalog
	Pool    *pipeline.Pool

	// Runner is invoked for each admitted backup; production wiring sets
	// it to the bound Pipeline's RunBackup, tests substitute a fake.
	Runner func(ctx context.Context, backupID string) error

	logger zerolog.Logger
	mu     sync.RWMutex
	stopCh chan struct{}
}

// NewScheduler builds a Scheduler over cat, submitting due backups to pool.
// runner is invoked for each admitted backup (typically Pipeline.RunBackup).
func NewScheduler(cat catalog.Catalog, pool *pipeline.Pool, runner func(ctx context.Context, backupID string) error) *Scheduler {
	return &Scheduler{
		Catalog: cat,
		Pool:    pool,
		Runner:  runner,
		logger:  log.WithComponent("scheduler"),
		stopCh:  make(chan struct{}),
	}
}

// Start begins the tick loop in a goroutine.
func (s *Scheduler) Start() {
	go s.run()
}

// Stop halts the tick loop.
func (s *Scheduler) Stop() {
	close(s.stopCh)
}

func (s *Scheduler) run() {
	ticker := time.NewTicker(TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.tick()
		case <-s.stopCh:
			return
		}
	}
}

// tick snapshots all enabled schedules and admits every one whose next_run
// has arrived. Each schedule commits independently: one schedule's failure
// never aborts the tick for the rest.
func (s *Scheduler) tick() {
	s.mu.Lock()
	defer s.mu.Unlock()

	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.SchedulerTickDuration)

	schedules, err := s.Catalog.ListEnabledSchedules()
	if err != nil {
		s.logger.Error().Err(err).Msg("list enabled schedules")
		return
	}

	now := time.Now()
	for _, sched := range schedules {
		if sched.NextRun.After(now) {
			continue
		}
		if err := s.fire(sched, now); err != nil {
			s.logger.Error().Err(err).Str("schedule", sched.ID).Msg("schedule firing failed")
		}
	}
}

// fire admits one due schedule: inserts a PENDING Backup, advances
// last_run/next_run, and submits the job to the worker pool.
func (s *Scheduler) fire(sched *types.Schedule, now time.Time) error {
	nextRun, err := nextFiring(sched.Cron, sched.Timezone, now)
	if err != nil {
		return fmt.Errorf("compute next firing for schedule %s: %w", sched.ID, err)
	}

	server, err := s.Catalog.GetServer(sched.ServerID)
	if err != nil {
		return fmt.Errorf("load server %s: %w", sched.ServerID, err)
	}

	backup := &types.Backup{
		ID:       uuid.New().String(),
		ServerID: sched.ServerID,
		Database: sched.Database,
		// Family always comes from the server's configured engine, never
		// from the schedule: a Schedule has no database-family field, and
		// a stale schedule pointed at a reassigned server must still dump
		// with the server's current dialect.
		Family:          server.Family,
		Kind:            sched.Kind,
		Status:          types.BackupPending,
		Compressed:      true,
		CompressionAlgo: types.CompressionGzip,
		Encrypted:       true,
		CreatedAt:       now,
	}
	if err := s.Catalog.InsertBackup(backup); err != nil {
		return fmt.Errorf("insert backup for schedule %s: %w", sched.ID, err)
	}

	sched.LastRun = now
	sched.NextRun = nextRun
	if err := s.Catalog.UpdateSchedule(sched); err != nil {
		return fmt.Errorf("advance schedule %s: %w", sched.ID, err)
	}

	metrics.ScheduledBackupsTotal.Inc()

	backupID := backup.ID
	if !s.Pool.Submit(func(ctx context.Context) {
		s.runBackup(ctx, backupID)
	}) {
		s.logger.Warn().Str("backup", backupID).Msg("worker pool full, backup left pending and not submitted; later ticks do not resubmit it")
	}
	return nil
}

func (s *Scheduler) runBackup(ctx context.Context, backupID string) {
	if s.Runner == nil {
		return
	}
	if err := s.Runner(ctx, backupID); err != nil {
		s.logger.Error().Err(err).Str("backup", backupID).Msg("scheduled backup failed")
	}
}

// nextFiring parses expr in tz and returns the next firing strictly after
// from, rejecting characters outside the cron grammar spec.md 4.4 allows
// (0-9, *, ,, -, / and spaces; an optional leading seconds field uses the
// same alphabet).
func nextFiring(expr, tz string, from time.Time) (time.Time, error) {
	if err := validateCronChars(expr); err != nil {
		return time.Time{}, err
	}
	loc := time.UTC
	if tz != "" {
		var err error
		loc, err = time.LoadLocation(tz)
		if err != nil {
			return time.Time{}, fmt.Errorf("load timezone %q: %w", tz, err)
		}
	}
	schedule, err := cronParser.Parse(expr)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse cron expression %q: %w", expr, err)
	}
	return schedule.Next(from.In(loc)), nil
}

// validateCronChars rejects any byte outside spec.md 4.4's cron alphabet.
func validateCronChars(expr string) error {
	for _, r := range expr {
		switch {
		case r >= '0' && r <= '9':
		case r == '*' || r == ',' || r == '-' || r == '/' || r == ' ':
		default:
			return fmt.Errorf("cron expression %q contains disallowed character %q", expr, r)
		}
	}
	return nil
}
