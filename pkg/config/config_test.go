package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadAppliesDefaultsWhenNoFileGiven(t *testing.T) {
	t.Setenv("GUARDIAN_BLOB_ENDPOINT", "localhost:9000")
	t.Setenv("GUARDIAN_BLOB_BUCKET", "guardian-backups")

	cfg, err := Load("")

	require.NoError(t, err)
	assert.Equal(t, 60*time.Second, cfg.SchedulerTick)
	assert.Equal(t, 3600*time.Second, cfg.ReaperTick)
	assert.Equal(t, 60*time.Second, cfg.ProberTick)
	assert.Equal(t, 5, cfg.WorkerPoolSize)
	assert.Equal(t, "GUARDIAN_ENCRYPTION_PASSPHRASE", cfg.EncryptionPassphraseEnv)
	assert.True(t, cfg.BlobUseSSL)
}

func TestLoadEnvironmentOverridesDefault(t *testing.T) {
	t.Setenv("GUARDIAN_BLOB_ENDPOINT", "localhost:9000")
	t.Setenv("GUARDIAN_BLOB_BUCKET", "guardian-backups")
	t.Setenv("GUARDIAN_WORKER_POOL_SIZE", "12")

	cfg, err := Load("")

	require.NoError(t, err)
	assert.Equal(t, 12, cfg.WorkerPoolSize)
}

func TestLoadRejectsMissingBlobBucket(t *testing.T) {
	t.Setenv("GUARDIAN_BLOB_ENDPOINT", "localhost:9000")

	_, err := Load("")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "blob_bucket")
}
