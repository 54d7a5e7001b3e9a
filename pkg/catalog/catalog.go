// Package catalog is the durable, transactional store for Servers,
// Schedules, RetentionPolicies and Backups. The only contested write is the
// pending->in_progress transition, which is enforced as a compare-and-set so
// that two workers racing the same PENDING row never both proceed.
package catalog

import "github.com/nexusdb/guardian/pkg/types"

// ErrNotFound is returned by Get* lookups that miss.
type ErrNotFound struct {
	Entity string
	ID     string
}

func (e *ErrNotFound) Error() string {
	return e.Entity + " not found: " + e.ID
}

// ErrCASMismatch is returned by UpdateBackupStatus when the stored status no
// longer matches the expected "from" status; the caller lost the race and
// must abort without retry.
type ErrCASMismatch struct {
	ID       string
	Expected types.BackupStatus
	Actual   types.BackupStatus
}

func (e *ErrCASMismatch) Error() string {
	return "catalog: backup " + e.ID + " expected status " + string(e.Expected) + " but found " + string(e.Actual)
}

// Catalog is the transactional storage contract over the §3 data model.
type Catalog interface {
	// Servers
	CreateServer(s *types.Server) error
	GetServer(id string) (*types.Server, error)
	ListServers() ([]*types.Server, error)
	ListActiveServers() ([]*types.Server, error)
	UpdateServer(s *types.Server) error

	// Schedules
	CreateSchedule(s *types.Schedule) error
	GetSchedule(id string) (*types.Schedule, error)
	ListSchedules() ([]*types.Schedule, error)
	ListEnabledSchedules() ([]*types.Schedule, error)
	UpdateSchedule(s *types.Schedule) error

	// RetentionPolicies
	CreateRetentionPolicy(p *types.RetentionPolicy) error
	GetRetentionPolicy(id string) (*types.RetentionPolicy, error)
	ListRetentionPolicies() ([]*types.RetentionPolicy, error)

	// Backups
	InsertBackup(b *types.Backup) error
	GetBackup(id string) (*types.Backup, error)
	ListCompletedBackups(serverID, database string) ([]*types.Backup, error)
	ListBackupsByStatus(status types.BackupStatus) ([]*types.Backup, error)

	// UpdateBackupStatus loads the Backup, verifies its current status equals
	// from (returning ErrCASMismatch otherwise), applies mutate, and persists
	// the Backup with Status set to to. mutate may be nil.
	UpdateBackupStatus(id string, from, to types.BackupStatus, mutate func(*types.Backup)) error

	// RequestCancel moves a pending or in_progress Backup to cancelling; the
	// pipeline observes this between steps and finishes the cancellation.
	RequestCancel(id string) error

	// GetOrCreateEncryptionSalt returns the deployment's PBKDF2 salt,
	// generating and persisting a random one on first call.
	GetOrCreateEncryptionSalt() ([]byte, error)

	Close() error
}
