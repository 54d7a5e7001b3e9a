package blob

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestStorageKeyFormat(t *testing.T) {
	at := time.Date(2026, time.March, 5, 0, 0, 0, 0, time.UTC)
	key := StorageKey("abc123", at)
	assert.Equal(t, "backups/2026/03/05/backup_abc123.dat", key)
}

func TestStorageKeyIsDeterministicForSameInputs(t *testing.T) {
	at := time.Date(2026, time.March, 5, 9, 30, 0, 0, time.UTC)
	first := StorageKey("abc123", at)
	second := StorageKey("abc123", at)
	assert.Equal(t, first, second)
}
