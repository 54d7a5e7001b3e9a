package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nexusdb/guardian/pkg/catalog"
	"github.com/nexusdb/guardian/pkg/pipeline"
	"github.com/nexusdb/guardian/pkg/types"
)

type fakeCatalog struct {
	servers          map[string]*types.Server
	schedules        map[string]*types.Schedule
	insertedBackups  []*types.Backup
	getServerErr     map[string]error
}

func newFakeCatalog() *fakeCatalog {
	return &fakeCatalog{
		servers:      map[string]*types.Server{},
		schedules:    map[string]*types.Schedule{},
		getServerErr: map[string]error{},
	}
}

func (f *fakeCatalog) CreateServer(s *types.Server) error { f.servers[s.ID] = s; return nil }
func (f *fakeCatalog) GetServer(id string) (*types.Server, error) {
	if err, ok := f.getServerErr[id]; ok {
		return nil, err
	}
	s, ok := f.servers[id]
	if !ok {
		return nil, &catalog.ErrNotFound{Entity: "server", ID: id}
	}
	return s, nil
}
func (f *fakeCatalog) ListServers() ([]*types.Server, error)       { return nil, nil }
func (f *fakeCatalog) ListActiveServers() ([]*types.Server, error) { return nil, nil }
func (f *fakeCatalog) UpdateServer(s *types.Server) error          { f.servers[s.ID] = s; return nil }

func (f *fakeCatalog) CreateSchedule(s *types.Schedule) error { f.schedules[s.ID] = s; return nil }
func (f *fakeCatalog) GetSchedule(id string) (*types.Schedule, error) {
	s, ok := f.schedules[id]
	if !ok {
		return nil, &catalog.ErrNotFound{Entity: "schedule", ID: id}
	}
	return s, nil
}
func (f *fakeCatalog) ListSchedules() ([]*types.Schedule, error) { return nil, nil }
func (f *fakeCatalog) ListEnabledSchedules() ([]*types.Schedule, error) {
	var out []*types.Schedule
	for _, s := range f.schedules {
		if s.Enabled {
			out = append(out, s)
		}
	}
	return out, nil
}
func (f *fakeCatalog) UpdateSchedule(s *types.Schedule) error { f.schedules[s.ID] = s; return nil }

func (f *fakeCatalog) CreateRetentionPolicy(p *types.RetentionPolicy) error         { return nil }
func (f *fakeCatalog) GetRetentionPolicy(id string) (*types.RetentionPolicy, error) { return nil, nil }
func (f *fakeCatalog) ListRetentionPolicies() ([]*types.RetentionPolicy, error)     { return nil, nil }

func (f *fakeCatalog) InsertBackup(b *types.Backup) error {
	f.insertedBackups = append(f.insertedBackups, b)
	return nil
}
func (f *fakeCatalog) GetBackup(id string) (*types.Backup, error) { return nil, nil }
func (f *fakeCatalog) ListCompletedBackups(serverID, database string) ([]*types.Backup, error) {
	return nil, nil
}
func (f *fakeCatalog) ListBackupsByStatus(status types.BackupStatus) ([]*types.Backup, error) {
	return nil, nil
}
func (f *fakeCatalog) UpdateBackupStatus(id string, from, to types.BackupStatus, mutate func(*types.Backup)) error {
	return nil
}
func (f *fakeCatalog) RequestCancel(id string) error              { return nil }
func (f *fakeCatalog) GetOrCreateEncryptionSalt() ([]byte, error) { return make([]byte, 16), nil }
func (f *fakeCatalog) Close() error                               { return nil }

var _ catalog.Catalog = (*fakeCatalog)(nil)

func testScheduler(t *testing.T, cat *fakeCatalog, runner func(ctx context.Context, backupID string) error) *Scheduler {
	t.Helper()
	pool := pipeline.NewPool(context.Background(), 2, 4)
	t.Cleanup(pool.Stop)
	return NewScheduler(cat, pool, runner)
}

func TestTickAdmitsDueScheduleAndAdvancesNextRun(t *testing.T) {
	cat := newFakeCatalog()
	cat.servers["srv1"] = &types.Server{ID: "srv1", Family: types.FamilyPostgreSQL}
	past := time.Now().Add(-time.Minute)
	cat.schedules["sched1"] = &types.Schedule{
		ID:       "sched1",
		ServerID: "srv1",
		Database: "appdb",
		Kind:     types.BackupFull,
		Cron:     "*/5 * * * *",
		Enabled:  true,
		NextRun:  past,
	}

	s := testScheduler(t, cat, func(ctx context.Context, backupID string) error { return nil })
	s.tick()

	require.Len(t, cat.insertedBackups, 1)
	assert.Equal(t, "srv1", cat.insertedBackups[0].ServerID)
	assert.Equal(t, types.FamilyPostgreSQL, cat.insertedBackups[0].Family)
	assert.Equal(t, types.BackupPending, cat.insertedBackups[0].Status)

	updated := cat.schedules["sched1"]
	assert.True(t, updated.NextRun.After(time.Now()))
}

func TestTickSkipsScheduleNotYetDue(t *testing.T) {
	cat := newFakeCatalog()
	cat.servers["srv1"] = &types.Server{ID: "srv1", Family: types.FamilyPostgreSQL}
	cat.schedules["sched1"] = &types.Schedule{
		ID:       "sched1",
		ServerID: "srv1",
		Cron:     "*/5 * * * *",
		Enabled:  true,
		NextRun:  time.Now().Add(time.Hour),
	}

	s := testScheduler(t, cat, func(ctx context.Context, backupID string) error { return nil })
	s.tick()

	assert.Empty(t, cat.insertedBackups)
}

func TestTickContinuesAfterOneScheduleFails(t *testing.T) {
	cat := newFakeCatalog()
	past := time.Now().Add(-time.Minute)

	cat.getServerErr["missing"] = assert.AnError
	cat.schedules["broken"] = &types.Schedule{
		ID:       "broken",
		ServerID: "missing",
		Cron:     "*/5 * * * *",
		Enabled:  true,
		NextRun:  past,
	}

	cat.servers["srv1"] = &types.Server{ID: "srv1", Family: types.FamilyMySQL}
	cat.schedules["healthy"] = &types.Schedule{
		ID:       "healthy",
		ServerID: "srv1",
		Cron:     "*/5 * * * *",
		Enabled:  true,
		NextRun:  past,
	}

	s := testScheduler(t, cat, func(ctx context.Context, backupID string) error { return nil })
	s.tick()

	require.Len(t, cat.insertedBackups, 1)
	assert.Equal(t, "srv1", cat.insertedBackups[0].ServerID)
}

func TestNextFiringRejectsDisallowedCharacters(t *testing.T) {
	_, err := nextFiring("* * * * MON-FRI", "", time.Now())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disallowed character")
}

func TestNextFiringRespectsTimezone(t *testing.T) {
	from := time.Date(2026, time.March, 5, 12, 0, 0, 0, time.UTC)
	utcNext, err := nextFiring("30 14 * * *", "UTC", from)
	require.NoError(t, err)

	tokyoNext, err := nextFiring("30 14 * * *", "Asia/Tokyo", from)
	require.NoError(t, err)

	assert.NotEqual(t, utcNext.UTC(), tokyoNext.UTC())
}

func TestNextFiringAdvancesStrictlyPastNow(t *testing.T) {
	now := time.Date(2026, time.March, 5, 12, 5, 0, 0, time.UTC)
	next, err := nextFiring("*/5 * * * *", "UTC", now)
	require.NoError(t, err)
	assert.True(t, next.After(now))
	assert.Equal(t, time.Date(2026, time.March, 5, 12, 10, 0, 0, time.UTC), next.UTC())
}
