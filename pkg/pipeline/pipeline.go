// Package pipeline implements the create-backup and restore pipelines:
// the fixed dump -> compress -> encrypt -> checksum -> upload stream (and
// its inverse), run one step at a time against distinct temp paths so a
// crash at any point leaves a recoverable file on disk, plus the bounded
// worker pool that drains the backup/restore queue.
package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/nexusdb/guardian/pkg/blob"
	"github.com/nexusdb/guardian/pkg/catalog"
	"github.com/nexusdb/guardian/pkg/crypto"
	"github.com/nexusdb/guardian/pkg/engine"
	"github.com/nexusdb/guardian/pkg/events"
	"github.com/nexusdb/guardian/pkg/executor"
	"github.com/nexusdb/guardian/pkg/log"
	"github.com/nexusdb/guardian/pkg/metrics"
	"github.com/nexusdb/guardian/pkg/notify"
	"github.com/nexusdb/guardian/pkg/types"
)

const encryptionAlgo = "aes-256-gcm"

// uploadRetries bounds the blob upload retry loop (step 7: "retryable up
// to a bounded attempt count").
const uploadRetries = 3

// Pipeline drives a single Backup row through the create-backup or restore
// stream. One Pipeline instance is shared by every worker; all per-run
// state lives in the temp paths a run allocates for itself.
type Pipeline struct {
	Catalog        catalog.Catalog
	Secrets        *crypto.SecretsManager
	Blob           blob.Store
	Bus            *events.Bus
	Notifier       notify.Sink
	TempDir        string
	ExecuteTimeout time.Duration
	TaskTimeLimit  time.Duration
}

// NewPipeline builds a Pipeline with spec.md 5's default timeouts
// (300s per remote call, 3600s total per job).
func NewPipeline(cat catalog.Catalog, secrets *crypto.SecretsManager, store blob.Store, bus *events.Bus, notifier notify.Sink, tempDir string) *Pipeline {
	return &Pipeline{
		Catalog:        cat,
		Secrets:        secrets,
		Blob:           store,
		Bus:            bus,
		Notifier:       notifier,
		TempDir:        tempDir,
		ExecuteTimeout: 300 * time.Second,
		TaskTimeLimit:  3600 * time.Second,
	}
}

func (p *Pipeline) tempPath(backupID, suffix string) string {
	return filepath.Join(p.TempDir, fmt.Sprintf("guardian-%s-%s", backupID, suffix))
}

func (p *Pipeline) emitProgress(channel string, kind types.EventKind, payload map[string]interface{}) {
	p.Bus.Broadcast(&types.ProgressEvent{
		Channel:   channel,
		Kind:      kind,
		Payload:   payload,
		Timestamp: time.Now(),
	}, channel)
}

// isCancelling reports whether id has moved to cancelling since the
// pipeline started; the caller completes the transition to cancelled with
// finishCancellation. The pipeline observes this between steps rather than
// mid-step, per spec.md 5's cancellation model.
func (p *Pipeline) isCancelling(id string) bool {
	b, err := p.Catalog.GetBackup(id)
	if err != nil {
		return false
	}
	return b.Status == types.BackupCancelling
}

func (p *Pipeline) finishCancellation(id string) {
	_ = p.Catalog.UpdateBackupStatus(id, types.BackupCancelling, types.BackupCancelled, nil)
}

// RunBackup executes the 9-step create-backup pipeline for an already
// PENDING Backup row.
func (p *Pipeline) RunBackup(ctx context.Context, backupID string) error {
	ctx, cancel := context.WithTimeout(ctx, p.TaskTimeLimit)
	defer cancel()

	timer := metrics.NewTimer()

	// Step 1: pending -> in_progress, CAS guarded.
	if err := p.Catalog.UpdateBackupStatus(backupID, types.BackupPending, types.BackupInProgress, func(b *types.Backup) {
		b.StartedAt = time.Now()
	}); err != nil {
		if casErr, ok := err.(*catalog.ErrCASMismatch); ok {
			if casErr.Actual == types.BackupCancelling {
				p.finishCancellation(backupID)
				return nil
			}
			log.WithComponent("pipeline").Debug().Str("backup", backupID).Msg("lost pending->in_progress race, another worker has it")
			return nil
		}
		return fmt.Errorf("admit backup %s: %w", backupID, err)
	}

	backup, err := p.Catalog.GetBackup(backupID)
	if err != nil {
		return fmt.Errorf("reload backup %s: %w", backupID, err)
	}

	server, err := p.Catalog.GetServer(backup.ServerID)
	if err != nil {
		return p.fail(backupID, backup.Family, backup.Kind, timer, fmt.Errorf("load server %s: %w", backup.ServerID, err))
	}

	exec, err := executor.NewExecutor(server, p.Secrets)
	if err != nil {
		return p.fail(backupID, backup.Family, backup.Kind, timer, fmt.Errorf("build executor: %w", err))
	}
	defer exec.Close()

	creds, err := executor.DecryptCredentials(server, p.Secrets)
	if err != nil {
		return p.fail(backupID, backup.Family, backup.Kind, timer, fmt.Errorf("decrypt credentials: %w", err))
	}

	eng, err := engine.NewEngine(backup.Family, exec, creds, server.Host, server.Port, backup.Database)
	if err != nil {
		return p.fail(backupID, backup.Family, backup.Kind, timer, fmt.Errorf("build engine: %w", err))
	}

	// Step 3: dump.
	dumpPath := p.tempPath(backupID, "dump")
	execCtx, execCancel := context.WithTimeout(ctx, p.ExecuteTimeout)
	result, err := eng.CreateBackup(execCtx, backup.Kind, dumpPath)
	execCancel()
	if err != nil || result == nil || !result.Success {
		var msg string
		if err != nil {
			msg = err.Error()
		}
		if result != nil {
			msg = result.Stderr
		}
		return p.fail(backupID, backup.Family, backup.Kind, timer, fmt.Errorf("create backup: %s", msg))
	}
	p.emitProgress("backups", types.EventBackupProgress, map[string]interface{}{"backup_id": backupID, "step": "dump"})

	currentPath := dumpPath
	defer os.Remove(currentPath)

	if p.isCancelling(backupID) {
		p.finishCancellation(backupID)
		return nil
	}

	// Step 4: compress.
	if backup.Compressed {
		compPath := p.tempPath(backupID, "compressed")
		if err := streamFile(currentPath, compPath, func(w *os.File, r *os.File) error {
			return crypto.Compress(backup.CompressionAlgo, w, r)
		}); err != nil {
			return p.fail(backupID, backup.Family, backup.Kind, timer, fmt.Errorf("compress: %w", err))
		}
		os.Remove(currentPath)
		currentPath = compPath
		p.emitProgress("backups", types.EventBackupProgress, map[string]interface{}{"backup_id": backupID, "step": "compress"})
	}

	if p.isCancelling(backupID) {
		p.finishCancellation(backupID)
		os.Remove(currentPath)
		return nil
	}

	// Step 5: encrypt.
	if backup.Encrypted {
		encPath := p.tempPath(backupID, "encrypted")
		if err := streamFile(currentPath, encPath, func(w, r *os.File) error {
			return p.Secrets.EncryptStream(w, r)
		}); err != nil {
			return p.fail(backupID, backup.Family, backup.Kind, timer, fmt.Errorf("encrypt: %w", err))
		}
		os.Remove(currentPath)
		currentPath = encPath
		p.emitProgress("backups", types.EventBackupProgress, map[string]interface{}{"backup_id": backupID, "step": "encrypt"})
	}

	if p.isCancelling(backupID) {
		p.finishCancellation(backupID)
		os.Remove(currentPath)
		return nil
	}

	// Step 6: checksum.
	checksum, err := checksumFile(currentPath)
	if err != nil {
		return p.fail(backupID, backup.Family, backup.Kind, timer, fmt.Errorf("checksum: %w", err))
	}

	// Step 7: upload, with bounded retry.
	storageKey := blob.StorageKey(backupID, backup.CreatedAt)
	uploadTimer := metrics.NewTimer()
	var uploadErr error
	for attempt := 0; attempt < uploadRetries; attempt++ {
		uploadErr = p.Blob.Upload(ctx, currentPath, storageKey)
		if uploadErr == nil {
			break
		}
		log.WithComponent("pipeline").Warn().Err(uploadErr).Int("attempt", attempt+1).Str("backup", backupID).Msg("blob upload attempt failed")
	}
	uploadTimer.ObserveDuration(metrics.BlobUploadDuration)
	if uploadErr != nil {
		return p.fail(backupID, backup.Family, backup.Kind, timer, fmt.Errorf("upload after %d attempts: %w", uploadRetries, uploadErr))
	}

	info, statErr := os.Stat(currentPath)
	var size int64
	if statErr == nil {
		size = info.Size()
	}

	// Step 8: commit.
	now := time.Now()
	if err := p.Catalog.UpdateBackupStatus(backupID, types.BackupInProgress, types.BackupCompleted, func(b *types.Backup) {
		b.CompletedAt = now
		b.Size = size
		b.StorageKey = storageKey
		b.Checksum = checksum
		if b.Encrypted {
			b.EncryptionAlgo = encryptionAlgo
		}
	}); err != nil {
		return fmt.Errorf("commit completed backup %s: %w", backupID, err)
	}

	metrics.BackupsTotal.WithLabelValues(string(backup.Family), string(types.BackupCompleted)).Inc()
	timer.ObserveDurationVec(metrics.BackupDuration, string(backup.Family), string(backup.Kind))

	// Step 9: notify, unlink.
	p.notifyBackupOutcome(backup, types.BackupCompleted, "")
	os.Remove(currentPath)

	return nil
}

func (p *Pipeline) fail(backupID string, family types.DatabaseFamily, kind types.BackupKind, timer *metrics.Timer, cause error) error {
	_ = p.Catalog.UpdateBackupStatus(backupID, types.BackupInProgress, types.BackupFailed, func(b *types.Backup) {
		b.CompletedAt = time.Now()
		b.ErrorMessage = cause.Error()
		b.RetryCount++
	})
	metrics.BackupsTotal.WithLabelValues(string(family), string(types.BackupFailed)).Inc()
	timer.ObserveDurationVec(metrics.BackupDuration, string(family), string(kind))

	if backup, err := p.Catalog.GetBackup(backupID); err == nil {
		p.notifyBackupOutcome(backup, types.BackupFailed, cause.Error())
	}
	log.WithComponent("pipeline").Error().Err(cause).Str("backup", backupID).Msg("backup failed")
	return cause
}

func (p *Pipeline) notifyBackupOutcome(backup *types.Backup, status types.BackupStatus, message string) {
	emoji := "✅"
	if status == types.BackupFailed {
		emoji = "❌"
	}
	envelope := map[string]interface{}{
		"emoji":     emoji,
		"status":    status,
		"backup_id": backup.ID,
		"message":   message,
	}
	if err := p.Notifier.Send(context.Background(), envelope); err != nil {
		log.WithComponent("pipeline").Warn().Err(err).Str("backup", backup.ID).Msg("notify backup outcome")
	}
	p.emitProgress("backups", types.EventNotification, envelope)
}

// RunRestore executes the inverse pipeline: download -> decrypt ->
// decompress -> checksum-verify -> engine RestoreBackup.
func (p *Pipeline) RunRestore(ctx context.Context, backupID, targetServerID, targetDatabase string, maskRules []types.MaskRule) error {
	ctx, cancel := context.WithTimeout(ctx, p.TaskTimeLimit)
	defer cancel()

	backup, err := p.Catalog.GetBackup(backupID)
	if err != nil {
		return fmt.Errorf("load backup %s: %w", backupID, err)
	}
	if backup.Status != types.BackupCompleted {
		return fmt.Errorf("backup %s is not completed (status=%s), refusing to restore", backupID, backup.Status)
	}
	if backup.ParentID != "" {
		parent, err := p.Catalog.GetBackup(backup.ParentID)
		if err != nil {
			return fmt.Errorf("load parent backup %s: %w", backup.ParentID, err)
		}
		if parent.Status != types.BackupCompleted {
			return fmt.Errorf("parent backup %s is not completed, cannot restore incremental chain", backup.ParentID)
		}
	}

	if targetServerID == "" {
		targetServerID = backup.ServerID
	}
	server, err := p.Catalog.GetServer(targetServerID)
	if err != nil {
		return fmt.Errorf("load target server %s: %w", targetServerID, err)
	}
	if targetDatabase == "" {
		targetDatabase = backup.Database
	}

	exec, err := executor.NewExecutor(server, p.Secrets)
	if err != nil {
		return fmt.Errorf("build executor: %w", err)
	}
	defer exec.Close()

	creds, err := executor.DecryptCredentials(server, p.Secrets)
	if err != nil {
		return fmt.Errorf("decrypt credentials: %w", err)
	}

	eng, err := engine.NewEngine(backup.Family, exec, creds, server.Host, server.Port, targetDatabase)
	if err != nil {
		return fmt.Errorf("build engine: %w", err)
	}

	timer := metrics.NewTimer()
	defer timer.ObserveDurationVec(metrics.RestoreDuration, string(backup.Family))

	// Download.
	downloadPath := p.tempPath(backupID, "restore-download")
	if err := p.Blob.Download(ctx, backup.StorageKey, downloadPath); err != nil {
		return fmt.Errorf("download %s: %w", backup.StorageKey, err)
	}
	currentPath := downloadPath
	defer os.Remove(currentPath)
	p.emitProgress("backups", types.EventRestoreProgress, map[string]interface{}{"backup_id": backupID, "step": "download"})

	// Decrypt.
	if backup.Encrypted {
		decPath := p.tempPath(backupID, "restore-decrypted")
		if err := streamFile(currentPath, decPath, func(w, r *os.File) error {
			return p.Secrets.DecryptStream(w, r)
		}); err != nil {
			return fmt.Errorf("decrypt: %w", err)
		}
		os.Remove(currentPath)
		currentPath = decPath
		p.emitProgress("backups", types.EventRestoreProgress, map[string]interface{}{"backup_id": backupID, "step": "decrypt"})
	}

	// Decompress.
	if backup.Compressed {
		decompPath := p.tempPath(backupID, "restore-decompressed")
		if err := streamFile(currentPath, decompPath, func(w, r *os.File) error {
			return crypto.Decompress(backup.CompressionAlgo, w, r)
		}); err != nil {
			return fmt.Errorf("decompress: %w", err)
		}
		os.Remove(currentPath)
		currentPath = decompPath
		p.emitProgress("backups", types.EventRestoreProgress, map[string]interface{}{"backup_id": backupID, "step": "decompress"})
	}

	// Checksum-verify against the stored checksum. Fatal on mismatch; no
	// partial restore is attempted.
	checksum, err := checksumFile(currentPath)
	if err != nil {
		return fmt.Errorf("checksum: %w", err)
	}
	if checksum != backup.Checksum {
		return fmt.Errorf("checksum mismatch: stored %s, computed %s", backup.Checksum, checksum)
	}

	// Engine restore.
	execCtx, execCancel := context.WithTimeout(ctx, p.ExecuteTimeout)
	result, err := eng.RestoreBackup(execCtx, currentPath, targetDatabase, maskRules)
	execCancel()
	if err != nil || result == nil || !result.Success {
		var msg string
		if err != nil {
			msg = err.Error()
		}
		if result != nil {
			msg = result.Stderr
		}
		p.notifyRestoreOutcome(server.Name, "failed", msg)
		return fmt.Errorf("restore backup: %s", msg)
	}

	message := "restore completed"
	if result != nil && result.RestartRequired {
		message = "restore completed, target process requires restart"
		log.WithComponent("pipeline").Warn().Str("backup", backupID).Str("server", server.Name).Msg("restore left the target process stopped; it must be restarted outside Guardian")
	}
	p.notifyRestoreOutcome(server.Name, "completed", message)
	return nil
}

func (p *Pipeline) notifyRestoreOutcome(serverName, status, message string) {
	envelope := map[string]interface{}{
		"server":  serverName,
		"status":  status,
		"message": message,
	}
	if err := p.Notifier.Send(context.Background(), envelope); err != nil {
		log.WithComponent("pipeline").Warn().Err(err).Str("server", serverName).Msg("notify restore outcome")
	}
	p.emitProgress("backups", types.EventNotification, envelope)
}

// streamFile opens src for reading and dst for writing, runs transform
// between them, and closes both before returning so the caller's
// unlink-predecessor-after-successor-exists ordering is safe.
func streamFile(srcPath, dstPath string, transform func(dst, src *os.File) error) error {
	src, err := os.Open(srcPath)
	if err != nil {
		return fmt.Errorf("open %s: %w", srcPath, err)
	}
	defer src.Close()

	dst, err := os.Create(dstPath)
	if err != nil {
		return fmt.Errorf("create %s: %w", dstPath, err)
	}

	if err := transform(dst, src); err != nil {
		dst.Close()
		os.Remove(dstPath)
		return err
	}
	return dst.Close()
}

func checksumFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()
	return crypto.ChecksumReader(f)
}
