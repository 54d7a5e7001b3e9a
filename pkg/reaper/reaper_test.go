package reaper

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nexusdb/guardian/pkg/catalog"
	"github.com/nexusdb/guardian/pkg/types"
)

type fakeCatalog struct {
	schedules map[string]*types.Schedule
	policies  map[string]*types.RetentionPolicy
	backups   map[string]*types.Backup
}

func newFakeCatalog() *fakeCatalog {
	return &fakeCatalog{
		schedules: map[string]*types.Schedule{},
		policies:  map[string]*types.RetentionPolicy{},
		backups:   map[string]*types.Backup{},
	}
}

func (f *fakeCatalog) CreateServer(s *types.Server) error              { return nil }
func (f *fakeCatalog) GetServer(id string) (*types.Server, error)      { return nil, nil }
func (f *fakeCatalog) ListServers() ([]*types.Server, error)           { return nil, nil }
func (f *fakeCatalog) ListActiveServers() ([]*types.Server, error)     { return nil, nil }
func (f *fakeCatalog) UpdateServer(s *types.Server) error              { return nil }

func (f *fakeCatalog) CreateSchedule(s *types.Schedule) error { f.schedules[s.ID] = s; return nil }
func (f *fakeCatalog) GetSchedule(id string) (*types.Schedule, error) {
	return f.schedules[id], nil
}
func (f *fakeCatalog) ListSchedules() ([]*types.Schedule, error) {
	var out []*types.Schedule
	for _, s := range f.schedules {
		out = append(out, s)
	}
	return out, nil
}
func (f *fakeCatalog) ListEnabledSchedules() ([]*types.Schedule, error) { return nil, nil }
func (f *fakeCatalog) UpdateSchedule(s *types.Schedule) error           { return nil }

func (f *fakeCatalog) CreateRetentionPolicy(p *types.RetentionPolicy) error {
	f.policies[p.ID] = p
	return nil
}
func (f *fakeCatalog) GetRetentionPolicy(id string) (*types.RetentionPolicy, error) {
	p, ok := f.policies[id]
	if !ok {
		return nil, &catalog.ErrNotFound{Entity: "retention_policy", ID: id}
	}
	return p, nil
}
func (f *fakeCatalog) ListRetentionPolicies() ([]*types.RetentionPolicy, error) { return nil, nil }

func (f *fakeCatalog) InsertBackup(b *types.Backup) error { f.backups[b.ID] = b; return nil }
func (f *fakeCatalog) GetBackup(id string) (*types.Backup, error) { return f.backups[id], nil }
func (f *fakeCatalog) ListCompletedBackups(serverID, database string) ([]*types.Backup, error) {
	var out []*types.Backup
	for _, b := range f.backups {
		if b.ServerID == serverID && b.Database == database && b.Status == types.BackupCompleted {
			out = append(out, b)
		}
	}
	return out, nil
}
func (f *fakeCatalog) ListBackupsByStatus(status types.BackupStatus) ([]*types.Backup, error) {
	return nil, nil
}
func (f *fakeCatalog) UpdateBackupStatus(id string, from, to types.BackupStatus, mutate func(*types.Backup)) error {
	b, ok := f.backups[id]
	if !ok {
		return &catalog.ErrNotFound{Entity: "backup", ID: id}
	}
	if b.Status != from {
		return &catalog.ErrCASMismatch{ID: id, Expected: from, Actual: b.Status}
	}
	if mutate != nil {
		mutate(b)
	}
	b.Status = to
	return nil
}
func (f *fakeCatalog) RequestCancel(id string) error              { return nil }
func (f *fakeCatalog) GetOrCreateEncryptionSalt() ([]byte, error) { return make([]byte, 16), nil }
func (f *fakeCatalog) Close() error                               { return nil }

var _ catalog.Catalog = (*fakeCatalog)(nil)

func backupAt(id string, age time.Duration) *types.Backup {
	return &types.Backup{
		ID:        id,
		ServerID:  "srv1",
		Database:  "appdb",
		Status:    types.BackupCompleted,
		CreatedAt: time.Now().Add(-age),
	}
}

func TestSweepKeepsOnlyLastNBackups(t *testing.T) {
	cat := newFakeCatalog()
	cat.policies["p1"] = &types.RetentionPolicy{ID: "p1", KeepLastN: 2}
	cat.schedules["s1"] = &types.Schedule{ID: "s1", ServerID: "srv1", Database: "appdb", RetentionPolicyID: "p1"}
	for i, age := range []time.Duration{0, time.Hour, 2 * time.Hour, 3 * time.Hour} {
		id := "b" + string(rune('0'+i))
		cat.backups[id] = backupAt(id, age)
	}

	r := NewReaper(cat)
	r.Sweep()

	kept := 0
	for _, b := range cat.backups {
		if b.Status == types.BackupCompleted {
			kept++
		}
	}
	assert.Equal(t, 2, kept)
}

func TestSweepKeepsWithinKeepDaysWindow(t *testing.T) {
	cat := newFakeCatalog()
	cat.policies["p1"] = &types.RetentionPolicy{ID: "p1", KeepDays: 1}
	cat.schedules["s1"] = &types.Schedule{ID: "s1", ServerID: "srv1", Database: "appdb", RetentionPolicyID: "p1"}
	cat.backups["recent"] = backupAt("recent", 2*time.Hour)
	cat.backups["old"] = backupAt("old", 48*time.Hour)

	r := NewReaper(cat)
	r.Sweep()

	assert.Equal(t, types.BackupCompleted, cat.backups["recent"].Status)
	assert.Equal(t, types.BackupDeleted, cat.backups["old"].Status)
	assert.False(t, cat.backups["old"].DeletedAt.IsZero())
}

func TestSweepUnionOfRulesKeepsEitherMatch(t *testing.T) {
	cat := newFakeCatalog()
	cat.policies["p1"] = &types.RetentionPolicy{ID: "p1", KeepLastN: 1, KeepDays: 10}
	cat.schedules["s1"] = &types.Schedule{ID: "s1", ServerID: "srv1", Database: "appdb", RetentionPolicyID: "p1"}
	cat.backups["newest"] = backupAt("newest", time.Minute)
	cat.backups["within_days"] = backupAt("within_days", 5*24*time.Hour)
	cat.backups["outside_both"] = backupAt("outside_both", 30*24*time.Hour)

	r := NewReaper(cat)
	r.Sweep()

	assert.Equal(t, types.BackupCompleted, cat.backups["newest"].Status)
	assert.Equal(t, types.BackupCompleted, cat.backups["within_days"].Status)
	assert.Equal(t, types.BackupDeleted, cat.backups["outside_both"].Status)
}

func TestSweepSkipsSchedulesWithoutRetentionPolicy(t *testing.T) {
	cat := newFakeCatalog()
	cat.schedules["s1"] = &types.Schedule{ID: "s1", ServerID: "srv1", Database: "appdb"}
	cat.backups["b1"] = backupAt("b1", 365*24*time.Hour)

	r := NewReaper(cat)
	r.Sweep()

	assert.Equal(t, types.BackupCompleted, cat.backups["b1"].Status)
}

func TestKeepSetDailyBucketingKeepsNewestPerDay(t *testing.T) {
	now := time.Date(2026, time.March, 5, 12, 0, 0, 0, time.UTC)
	backups := []*types.Backup{
		{ID: "today-late", CreatedAt: now},
		{ID: "today-early", CreatedAt: now.Add(-2 * time.Hour)},
		{ID: "yesterday", CreatedAt: now.Add(-26 * time.Hour)},
	}
	sortByCreatedAtDesc(backups)

	keep := keepSet(backups, &types.RetentionPolicy{KeepDaily: 2}, now)

	assert.True(t, keep["today-late"])
	assert.False(t, keep["today-early"])
	assert.True(t, keep["yesterday"])
}

func TestSortByCreatedAtDescOrdersNewestFirst(t *testing.T) {
	now := time.Now()
	backups := []*types.Backup{
		{ID: "old", CreatedAt: now.Add(-time.Hour)},
		{ID: "new", CreatedAt: now},
		{ID: "mid", CreatedAt: now.Add(-30 * time.Minute)},
	}

	sortByCreatedAtDesc(backups)

	require.Len(t, backups, 3)
	assert.Equal(t, "new", backups[0].ID)
	assert.Equal(t, "mid", backups[1].ID)
	assert.Equal(t, "old", backups[2].ID)
}
