// Package reaper implements the retention sweep: the component that
// decides which completed backups stay and which get soft-deleted, per
// schedule's RetentionPolicy.
package reaper

import (
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/nexusdb/guardian/pkg/catalog"
	"github.com/nexusdb/guardian/pkg/log"
	"github.com/nexusdb/guardian/pkg/metrics"
	"github.com/nexusdb/guardian/pkg/types"
)

// TickInterval is how often the reaper re-evaluates retention.
const TickInterval = 3600 * time.Second

// Reaper soft-deletes completed backups that fall outside the union of
// their schedule's retention rules. It never touches blob storage: the
// blob itself is an external collaborator's responsibility, driven off
// the soft-delete flag this package sets.
type Reaper struct {
	Catalog catalog.Catalog

	logger zerolog.Logger
	mu     sync.RWMutex
	stopCh chan struct{}
}

// NewReaper builds a Reaper over cat.
func NewReaper(cat catalog.Catalog) *Reaper {
	return &Reaper{
		Catalog: cat,
		logger:  log.WithComponent("reaper"),
		stopCh:  make(chan struct{}),
	}
}

// Start begins the retention loop in a goroutine.
func (r *Reaper) Start() {
	go r.run()
}

// Stop halts the retention loop.
func (r *Reaper) Stop() {
	close(r.stopCh)
}

func (r *Reaper) run() {
	ticker := time.NewTicker(TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			r.Sweep()
		case <-r.stopCh:
			return
		}
	}
}

// Sweep runs one retention cycle over every schedule carrying a
// RetentionPolicy. One schedule's failure is logged and skipped; it never
// aborts the rest of the sweep.
func (r *Reaper) Sweep() {
	r.mu.Lock()
	defer r.mu.Unlock()

	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.ReaperCycleDuration)

	schedules, err := r.Catalog.ListSchedules()
	if err != nil {
		r.logger.Error().Err(err).Msg("list schedules")
		return
	}

	for _, sched := range schedules {
		if sched.RetentionPolicyID == "" {
			continue
		}
		if err := r.sweepSchedule(sched); err != nil {
			r.logger.Error().Err(err).Str("schedule", sched.ID).Msg("retention sweep failed")
		}
	}
}

func (r *Reaper) sweepSchedule(sched *types.Schedule) error {
	policy, err := r.Catalog.GetRetentionPolicy(sched.RetentionPolicyID)
	if err != nil {
		return fmt.Errorf("load retention policy %s: %w", sched.RetentionPolicyID, err)
	}

	backups, err := r.Catalog.ListCompletedBackups(sched.ServerID, sched.Database)
	if err != nil {
		return fmt.Errorf("list completed backups for %s/%s: %w", sched.ServerID, sched.Database, err)
	}

	// Newest first, per spec.md 4.5's ordering contract.
	sortByCreatedAtDesc(backups)

	keep := keepSet(backups, policy, time.Now())

	now := time.Now()
	for _, b := range backups {
		if keep[b.ID] {
			continue
		}
		if err := r.Catalog.UpdateBackupStatus(b.ID, types.BackupCompleted, types.BackupDeleted, func(mut *types.Backup) {
			mut.DeletedAt = now
		}); err != nil {
			r.logger.Warn().Err(err).Str("backup", b.ID).Msg("soft-delete failed")
			continue
		}
		metrics.ReaperDeletionsTotal.Inc()
	}
	return nil
}

func sortByCreatedAtDesc(backups []*types.Backup) {
	for i := 1; i < len(backups); i++ {
		for j := i; j > 0 && backups[j].CreatedAt.After(backups[j-1].CreatedAt); j-- {
			backups[j], backups[j-1] = backups[j-1], backups[j]
		}
	}
}

// keepSet computes the union of every active rule on policy over backups
// (already sorted newest-first), returning the set of Backup IDs to keep.
func keepSet(backups []*types.Backup, policy *types.RetentionPolicy, now time.Time) map[string]bool {
	keep := map[string]bool{}

	if policy.KeepLastN > 0 {
		for i, b := range backups {
			if i >= policy.KeepLastN {
				break
			}
			keep[b.ID] = true
		}
	}

	if policy.KeepDays > 0 {
		cutoff := now.Add(-time.Duration(policy.KeepDays) * 24 * time.Hour)
		for _, b := range backups {
			if !b.CreatedAt.Before(cutoff) {
				keep[b.ID] = true
			}
		}
	}

	if policy.KeepDaily > 0 {
		keepBucketed(backups, policy.KeepDaily, keep, func(t time.Time) string {
			return t.UTC().Format("2006-01-02")
		})
	}

	if policy.KeepWeekly > 0 {
		keepBucketed(backups, policy.KeepWeekly, keep, func(t time.Time) string {
			year, week := t.UTC().ISOWeek()
			return fmt.Sprintf("%04d-W%02d", year, week)
		})
	}

	if policy.KeepMonthly > 0 {
		keepBucketed(backups, policy.KeepMonthly, keep, func(t time.Time) string {
			return t.UTC().Format("2006-01")
		})
	}

	return keep
}

// keepBucketed keeps the newest backup in each of the first limit distinct
// buckets encountered while walking backups newest-first.
func keepBucketed(backups []*types.Backup, limit int, keep map[string]bool, bucketOf func(time.Time) string) {
	seen := map[string]bool{}
	for _, b := range backups {
		bucket := bucketOf(b.CreatedAt)
		if seen[bucket] {
			continue
		}
		if len(seen) >= limit {
			break
		}
		seen[bucket] = true
		keep[b.ID] = true
	}
}
