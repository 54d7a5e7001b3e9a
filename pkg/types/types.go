// Package types defines the durable entities shared across the catalog,
// pipeline, scheduler, reaper, executor and engine packages.
package types

import "time"

// TransportKind selects the remote-execution variant a Server is reached
// through.
type TransportKind string

const (
	TransportShell     TransportKind = "shell"
	TransportContainer TransportKind = "container"
	TransportPod       TransportKind = "pod"
)

// DatabaseFamily identifies the engine dialect to apply for a Server/Backup.
type DatabaseFamily string

const (
	FamilyPostgreSQL DatabaseFamily = "postgresql"
	FamilyMySQL      DatabaseFamily = "mysql"
	FamilyMongoDB    DatabaseFamily = "mongodb"
	FamilyRedis      DatabaseFamily = "redis"
)

// HealthState is the last observed reachability of a Server.
type HealthState string

const (
	HealthHealthy   HealthState = "healthy"
	HealthDegraded  HealthState = "degraded"
	HealthUnhealthy HealthState = "unhealthy"
	HealthUnknown   HealthState = "unknown"
)

// Server is a backup target: identity, transport, and envelope-encrypted
// credentials. Mutated by the health prober (health fields only) and
// soft-deleted via Active rather than destroyed while jobs reference it.
type Server struct {
	ID             string
	Name           string
	Transport      TransportKind
	Family         DatabaseFamily
	Host           string
	Port           int
	Namespace      string // pod transport only
	ContainerName  string // container/pod transport only
	EncryptedCreds []byte // envelope-encrypted username/password/key
	Environment    string
	Health         HealthState
	LastHeartbeat  time.Time
	Active         bool
	CreatedAt      time.Time
}

// BackupKind distinguishes a full dump from an incremental chain member.
type BackupKind string

const (
	BackupFull         BackupKind = "full"
	BackupIncremental  BackupKind = "incremental"
	BackupDifferential BackupKind = "differential"
)

// BackupStatus is the Backup state machine: pending -> in_progress ->
// {completed, failed}, with completed -> deleted as the only transition
// permitted once terminal. cancelling/cancelled are additive states reached
// only via Catalog.RequestCancel.
type BackupStatus string

const (
	BackupPending    BackupStatus = "pending"
	BackupInProgress BackupStatus = "in_progress"
	BackupCompleted  BackupStatus = "completed"
	BackupFailed     BackupStatus = "failed"
	BackupCancelling BackupStatus = "cancelling"
	BackupCancelled  BackupStatus = "cancelled"
	BackupDeleted    BackupStatus = "deleted"
)

// CompressionAlgo names the streaming codec applied before encryption.
type CompressionAlgo string

const (
	CompressionNone CompressionAlgo = "none"
	CompressionGzip CompressionAlgo = "gzip"
	CompressionLZ4  CompressionAlgo = "lz4"
	CompressionZstd CompressionAlgo = "zstd"
)

// MaskStrategy names a declarative field-masking transform applied to a
// restore target. Only the SQL-expressible subset is accepted by validation;
// see pkg/engine for the rejected strategy list.
type MaskStrategy string

const (
	MaskNull  MaskStrategy = "null"
	MaskHash  MaskStrategy = "hash"
	MaskEmail MaskStrategy = "email"
)

// MaskRule is a declarative field-masking instruction attached to a restore
// request. Table/Column apply to SQL-shaped engines only.
type MaskRule struct {
	Table    string
	Column   string
	Strategy MaskStrategy
}

// Backup is immutable once terminal, aside from the completed->deleted
// soft-delete transition. Invariants:
//
//   - status=completed implies StorageKey, Size and Checksum are non-empty.
//   - an incremental's ParentID must reference a completed Backup of the
//     same (ServerID, Database).
//   - once completed, only DeletedAt may change.
type Backup struct {
	ID              string
	ServerID        string
	Database        string
	Family          DatabaseFamily
	Kind            BackupKind
	Status          BackupStatus
	ParentID        string // incremental chain, weak reference
	StorageKey      string
	Size            int64
	Checksum        string // "sha256:<hex>"
	Encrypted       bool
	EncryptionAlgo  string
	Compressed      bool
	CompressionAlgo CompressionAlgo
	MaskRules       []MaskRule
	StartedAt       time.Time
	CompletedAt     time.Time
	ErrorMessage    string
	RetryCount      int
	DeletedAt       time.Time
	CreatedAt       time.Time
}

// RetentionPolicy is a nonempty subset of keep rules; a backup survives a
// reaper pass if any active rule would keep it (union semantics).
type RetentionPolicy struct {
	ID          string
	Name        string
	KeepLastN   int // 0 = inactive
	KeepDays    int
	KeepDaily   int
	KeepWeekly  int
	KeepMonthly int
}

// Schedule binds a cron expression to a (Server, Database) target. next_run
// is always the first firing strictly greater than last_run under Cron
// interpreted in Timezone.
type Schedule struct {
	ID                string
	Name              string
	Cron              string
	Timezone          string
	ServerID          string
	Database          string
	Kind              BackupKind
	RetentionPolicyID string // nullable
	Enabled           bool
	LastRun           time.Time
	NextRun           time.Time
	NotifyOnSuccess   bool
	NotifyOnFailure   bool
	CreatedAt         time.Time
}

// ExecutionResult is the uniform return value of every Executor.Execute call.
type ExecutionResult struct {
	Success  bool
	Stdout   string
	Stderr   string
	ExitCode int
	// RestartRequired is set by dialects (Redis) whose restore leaves the
	// target process stopped, pending restart by the host's supervisor.
	RestartRequired bool
}

// EventKind tags a ProgressEvent's payload shape for fan-out subscribers.
type EventKind string

const (
	EventBackupProgress  EventKind = "backup_progress"
	EventRestoreProgress EventKind = "restore_progress"
	EventServerHealth    EventKind = "server_health"
	EventLog             EventKind = "log"
	EventNotification    EventKind = "notification"
	EventTaskUpdate      EventKind = "task_update"
	EventCommandOutput   EventKind = "command_output"
)

// ProgressEvent is broadcast on pkg/events.Bus.
type ProgressEvent struct {
	Channel   string
	Kind      EventKind
	Payload   map[string]interface{}
	Timestamp time.Time
}
