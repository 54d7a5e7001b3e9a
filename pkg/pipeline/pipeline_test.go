package pipeline

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nexusdb/guardian/pkg/catalog"
	"github.com/nexusdb/guardian/pkg/events"
	"github.com/nexusdb/guardian/pkg/metrics"
	"github.com/nexusdb/guardian/pkg/types"
)

// fakeCatalog implements catalog.Catalog with in-memory maps, enough to
// drive the pipeline's admission/commit/fail transitions without bbolt.
type fakeCatalog struct {
	servers  map[string]*types.Server
	backups  map[string]*types.Backup
	casErr   error // when set, UpdateBackupStatus always returns this
	updates  []string
}

func newFakeCatalog() *fakeCatalog {
	return &fakeCatalog{
		servers: map[string]*types.Server{},
		backups: map[string]*types.Backup{},
	}
}

func (f *fakeCatalog) CreateServer(s *types.Server) error { f.servers[s.ID] = s; return nil }
func (f *fakeCatalog) GetServer(id string) (*types.Server, error) {
	s, ok := f.servers[id]
	if !ok {
		return nil, &catalog.ErrNotFound{Entity: "server", ID: id}
	}
	return s, nil
}
func (f *fakeCatalog) ListServers() ([]*types.Server, error)       { return nil, nil }
func (f *fakeCatalog) ListActiveServers() ([]*types.Server, error) { return nil, nil }
func (f *fakeCatalog) UpdateServer(s *types.Server) error          { f.servers[s.ID] = s; return nil }

func (f *fakeCatalog) CreateSchedule(s *types.Schedule) error              { return nil }
func (f *fakeCatalog) GetSchedule(id string) (*types.Schedule, error)      { return nil, nil }
func (f *fakeCatalog) ListSchedules() ([]*types.Schedule, error)           { return nil, nil }
func (f *fakeCatalog) ListEnabledSchedules() ([]*types.Schedule, error)    { return nil, nil }
func (f *fakeCatalog) UpdateSchedule(s *types.Schedule) error              { return nil }

func (f *fakeCatalog) CreateRetentionPolicy(p *types.RetentionPolicy) error         { return nil }
func (f *fakeCatalog) GetRetentionPolicy(id string) (*types.RetentionPolicy, error) { return nil, nil }
func (f *fakeCatalog) ListRetentionPolicies() ([]*types.RetentionPolicy, error)     { return nil, nil }

func (f *fakeCatalog) InsertBackup(b *types.Backup) error { f.backups[b.ID] = b; return nil }
func (f *fakeCatalog) GetBackup(id string) (*types.Backup, error) {
	b, ok := f.backups[id]
	if !ok {
		return nil, &catalog.ErrNotFound{Entity: "backup", ID: id}
	}
	cp := *b
	return &cp, nil
}
func (f *fakeCatalog) ListCompletedBackups(serverID, database string) ([]*types.Backup, error) {
	return nil, nil
}
func (f *fakeCatalog) ListBackupsByStatus(status types.BackupStatus) ([]*types.Backup, error) {
	return nil, nil
}

func (f *fakeCatalog) UpdateBackupStatus(id string, from, to types.BackupStatus, mutate func(*types.Backup)) error {
	if f.casErr != nil {
		return f.casErr
	}
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
	f.updates = append(f.updates, id+":"+string(to))
	return nil
}

func (f *fakeCatalog) RequestCancel(id string) error { return nil }

func (f *fakeCatalog) GetOrCreateEncryptionSalt() ([]byte, error) { return make([]byte, 16), nil }

func (f *fakeCatalog) Close() error { return nil }

var _ catalog.Catalog = (*fakeCatalog)(nil)

// fakeNotifier records every envelope sent to it.
type fakeNotifier struct {
	sent []map[string]interface{}
}

func (f *fakeNotifier) Send(ctx context.Context, envelope map[string]interface{}) error {
	f.sent = append(f.sent, envelope)
	return nil
}

// fakeBlobStore serves Download from a fixed in-memory payload and records
// uploaded files' contents.
type fakeBlobStore struct {
	downloadPayload []byte
	downloadErr     error
	uploads         map[string][]byte
}

func newFakeBlobStore(payload []byte) *fakeBlobStore {
	return &fakeBlobStore{downloadPayload: payload, uploads: map[string][]byte{}}
}

func (f *fakeBlobStore) Upload(ctx context.Context, localPath, remoteKey string) error {
	data, err := os.ReadFile(localPath)
	if err != nil {
		return err
	}
	f.uploads[remoteKey] = data
	return nil
}

func (f *fakeBlobStore) Download(ctx context.Context, remoteKey, localPath string) error {
	if f.downloadErr != nil {
		return f.downloadErr
	}
	return os.WriteFile(localPath, f.downloadPayload, 0o600)
}

func (f *fakeBlobStore) Exists(ctx context.Context, remoteKey string) (bool, error) {
	_, ok := f.uploads[remoteKey]
	return ok, nil
}

func (f *fakeBlobStore) GetSize(ctx context.Context, remoteKey string) (int64, error) {
	return int64(len(f.uploads[remoteKey])), nil
}

func (f *fakeBlobStore) PresignedURL(ctx context.Context, remoteKey string, ttl time.Duration) (string, error) {
	return "https://example.invalid/" + remoteKey, nil
}

func newTestPipeline(t *testing.T, cat *fakeCatalog, store *fakeBlobStore, notifier *fakeNotifier) *Pipeline {
	t.Helper()
	return NewPipeline(cat, nil, store, events.NewBus(), notifier, t.TempDir())
}

func TestRunBackupLostRaceIsSilentNoOp(t *testing.T) {
	cat := newFakeCatalog()
	cat.casErr = &catalog.ErrCASMismatch{ID: "b1", Expected: types.BackupPending, Actual: types.BackupInProgress}
	notifier := &fakeNotifier{}
	p := newTestPipeline(t, cat, newFakeBlobStore(nil), notifier)

	err := p.RunBackup(context.Background(), "b1")

	require.NoError(t, err)
	assert.Empty(t, notifier.sent)
}

func TestFailRecordsErrorMessageAndNotifies(t *testing.T) {
	cat := newFakeCatalog()
	cat.backups["b1"] = &types.Backup{
		ID:     "b1",
		Family: types.FamilyPostgreSQL,
		Kind:   types.BackupFull,
		Status: types.BackupInProgress,
	}
	notifier := &fakeNotifier{}
	p := newTestPipeline(t, cat, newFakeBlobStore(nil), notifier)

	cause := assert.AnError
	returned := p.fail("b1", types.FamilyPostgreSQL, types.BackupFull, metrics.NewTimer(), cause)

	require.Equal(t, cause, returned)
	assert.Equal(t, types.BackupFailed, cat.backups["b1"].Status)
	assert.Equal(t, cause.Error(), cat.backups["b1"].ErrorMessage)
	assert.Equal(t, 1, cat.backups["b1"].RetryCount)
	require.Len(t, notifier.sent, 1)
	assert.Equal(t, types.BackupFailed, notifier.sent[0]["status"])
	assert.Equal(t, "❌", notifier.sent[0]["emoji"])
}

func TestRunRestoreRejectsBackupNotCompleted(t *testing.T) {
	cat := newFakeCatalog()
	cat.backups["b1"] = &types.Backup{ID: "b1", Status: types.BackupInProgress}
	p := newTestPipeline(t, cat, newFakeBlobStore(nil), &fakeNotifier{})

	err := p.RunRestore(context.Background(), "b1", "", "", nil)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "not completed")
}

func TestRunRestoreRejectsIncompleteParentChain(t *testing.T) {
	cat := newFakeCatalog()
	cat.backups["parent"] = &types.Backup{ID: "parent", Status: types.BackupInProgress}
	cat.backups["child"] = &types.Backup{ID: "child", Status: types.BackupCompleted, ParentID: "parent"}
	p := newTestPipeline(t, cat, newFakeBlobStore(nil), &fakeNotifier{})

	err := p.RunRestore(context.Background(), "child", "", "", nil)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "incremental chain")
}

func TestRunRestoreChecksumMismatchIsFatalBeforeEngineRestore(t *testing.T) {
	cat := newFakeCatalog()
	cat.servers["srv1"] = &types.Server{
		ID:        "srv1",
		Name:      "srv1",
		Transport: types.TransportShell,
		Family:    types.FamilyPostgreSQL,
		Host:      "127.0.0.1",
		Port:      22,
	}
	cat.backups["b1"] = &types.Backup{
		ID:         "b1",
		ServerID:   "srv1",
		Database:   "appdb",
		Family:     types.FamilyPostgreSQL,
		Status:     types.BackupCompleted,
		StorageKey: "backups/2026/01/01/backup_b1.dat",
		Checksum:   "sha256:deadbeef",
	}
	store := newFakeBlobStore([]byte("not the original bytes"))
	p := newTestPipeline(t, cat, store, &fakeNotifier{})

	err := p.RunRestore(context.Background(), "b1", "", "", nil)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "checksum mismatch")
}

func TestIsCancellingReflectsCatalogStatus(t *testing.T) {
	cat := newFakeCatalog()
	cat.backups["b1"] = &types.Backup{ID: "b1", Status: types.BackupCancelling}
	p := newTestPipeline(t, cat, newFakeBlobStore(nil), &fakeNotifier{})

	assert.True(t, p.isCancelling("b1"))

	cat.backups["b1"].Status = types.BackupInProgress
	assert.False(t, p.isCancelling("b1"))
}

func TestFinishCancellationTransitionsToCancelled(t *testing.T) {
	cat := newFakeCatalog()
	cat.backups["b1"] = &types.Backup{ID: "b1", Status: types.BackupCancelling}
	p := newTestPipeline(t, cat, newFakeBlobStore(nil), &fakeNotifier{})

	p.finishCancellation("b1")

	assert.Equal(t, types.BackupCancelled, cat.backups["b1"].Status)
}

func TestStreamFileAppliesTransformAndClosesFiles(t *testing.T) {
	dir := t.TempDir()
	src := dir + "/src"
	dst := dir + "/dst"
	require.NoError(t, os.WriteFile(src, []byte("hello"), 0o600))

	err := streamFile(src, dst, func(w, r *os.File) error {
		buf := make([]byte, 5)
		if _, err := r.Read(buf); err != nil {
			return err
		}
		_, err := w.Write(buf)
		return err
	})

	require.NoError(t, err)
	got, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(got))
}

func TestStreamFileRemovesPartialDestinationOnError(t *testing.T) {
	dir := t.TempDir()
	src := dir + "/src"
	dst := dir + "/dst"
	require.NoError(t, os.WriteFile(src, []byte("hello"), 0o600))

	err := streamFile(src, dst, func(w, r *os.File) error {
		return assert.AnError
	})

	require.Error(t, err)
	_, statErr := os.Stat(dst)
	assert.True(t, os.IsNotExist(statErr))
}

func TestChecksumFileMatchesContent(t *testing.T) {
	dir := t.TempDir()
	path := dir + "/file"
	require.NoError(t, os.WriteFile(path, []byte("payload"), 0o600))

	first, err := checksumFile(path)
	require.NoError(t, err)
	second, err := checksumFile(path)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.NotEmpty(t, first)
}
