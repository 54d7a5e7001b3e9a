package catalog

import (
	"crypto/rand"
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"

	bolt "go.etcd.io/bbolt"

	"github.com/nexusdb/guardian/pkg/types"
)

var (
	bucketServers          = []byte("servers")
	bucketSchedules        = []byte("schedules")
	bucketRetentionPolicies = []byte("retention_policies")
	bucketBackups          = []byte("backups")
	bucketMeta             = []byte("meta")
)

const metaSaltKey = "encryption_salt"

// BoltCatalog implements Catalog over a single bbolt file, one bucket per
// entity, JSON-encoded values keyed by entity ID.
type BoltCatalog struct {
	db *bolt.DB
}

// NewBoltCatalog opens (or creates) guardian.db under dataDir and ensures
// every bucket exists.
func NewBoltCatalog(dataDir string) (*BoltCatalog, error) {
	dbPath := filepath.Join(dataDir, "guardian.db")

	db, err := bolt.Open(dbPath, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("open catalog database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, bucket := range [][]byte{bucketServers, bucketSchedules, bucketRetentionPolicies, bucketBackups, bucketMeta} {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return fmt.Errorf("create bucket %s: %w", bucket, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &BoltCatalog{db: db}, nil
}

func (c *BoltCatalog) Close() error {
	return c.db.Close()
}

// --- Servers ---

func (c *BoltCatalog) CreateServer(s *types.Server) error {
	return c.put(bucketServers, s.ID, s)
}

func (c *BoltCatalog) UpdateServer(s *types.Server) error {
	return c.put(bucketServers, s.ID, s)
}

func (c *BoltCatalog) GetServer(id string) (*types.Server, error) {
	var s types.Server
	if err := c.get(bucketServers, id, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

func (c *BoltCatalog) ListServers() ([]*types.Server, error) {
	var out []*types.Server
	err := c.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketServers).ForEach(func(k, v []byte) error {
			var s types.Server
			if err := json.Unmarshal(v, &s); err != nil {
				return err
			}
			out = append(out, &s)
			return nil
		})
	})
	return out, err
}

func (c *BoltCatalog) ListActiveServers() ([]*types.Server, error) {
	servers, err := c.ListServers()
	if err != nil {
		return nil, err
	}
	var out []*types.Server
	for _, s := range servers {
		if s.Active {
			out = append(out, s)
		}
	}
	return out, nil
}

// --- Schedules ---

func (c *BoltCatalog) CreateSchedule(s *types.Schedule) error {
	return c.put(bucketSchedules, s.ID, s)
}

func (c *BoltCatalog) UpdateSchedule(s *types.Schedule) error {
	return c.put(bucketSchedules, s.ID, s)
}

func (c *BoltCatalog) GetSchedule(id string) (*types.Schedule, error) {
	var s types.Schedule
	if err := c.get(bucketSchedules, id, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

func (c *BoltCatalog) ListSchedules() ([]*types.Schedule, error) {
	var out []*types.Schedule
	err := c.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketSchedules).ForEach(func(k, v []byte) error {
			var s types.Schedule
			if err := json.Unmarshal(v, &s); err != nil {
				return err
			}
			out = append(out, &s)
			return nil
		})
	})
	return out, err
}

func (c *BoltCatalog) ListEnabledSchedules() ([]*types.Schedule, error) {
	schedules, err := c.ListSchedules()
	if err != nil {
		return nil, err
	}
	var out []*types.Schedule
	for _, s := range schedules {
		if s.Enabled {
			out = append(out, s)
		}
	}
	return out, nil
}

// --- RetentionPolicies ---

func (c *BoltCatalog) CreateRetentionPolicy(p *types.RetentionPolicy) error {
	return c.put(bucketRetentionPolicies, p.ID, p)
}

func (c *BoltCatalog) GetRetentionPolicy(id string) (*types.RetentionPolicy, error) {
	var p types.RetentionPolicy
	if err := c.get(bucketRetentionPolicies, id, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func (c *BoltCatalog) ListRetentionPolicies() ([]*types.RetentionPolicy, error) {
	var out []*types.RetentionPolicy
	err := c.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketRetentionPolicies).ForEach(func(k, v []byte) error {
			var p types.RetentionPolicy
			if err := json.Unmarshal(v, &p); err != nil {
				return err
			}
			out = append(out, &p)
			return nil
		})
	})
	return out, err
}

// --- Backups ---

func (c *BoltCatalog) InsertBackup(b *types.Backup) error {
	return c.put(bucketBackups, b.ID, b)
}

func (c *BoltCatalog) GetBackup(id string) (*types.Backup, error) {
	var b types.Backup
	if err := c.get(bucketBackups, id, &b); err != nil {
		return nil, err
	}
	return &b, nil
}

func (c *BoltCatalog) ListCompletedBackups(serverID, database string) ([]*types.Backup, error) {
	var out []*types.Backup
	err := c.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketBackups).ForEach(func(k, v []byte) error {
			var b types.Backup
			if err := json.Unmarshal(v, &b); err != nil {
				return err
			}
			if b.Status == types.BackupCompleted && b.ServerID == serverID && b.Database == database {
				out = append(out, &b)
			}
			return nil
		})
	})
	return out, err
}

func (c *BoltCatalog) ListBackupsByStatus(status types.BackupStatus) ([]*types.Backup, error) {
	var out []*types.Backup
	err := c.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketBackups).ForEach(func(k, v []byte) error {
			var b types.Backup
			if err := json.Unmarshal(v, &b); err != nil {
				return err
			}
			if b.Status == status {
				out = append(out, &b)
			}
			return nil
		})
	})
	return out, err
}

// UpdateBackupStatus is the sole contested write in the system: the
// pending->in_progress transition races across worker-pool goroutines, so
// the check-then-set happens inside one bbolt write transaction.
func (c *BoltCatalog) UpdateBackupStatus(id string, from, to types.BackupStatus, mutate func(*types.Backup)) error {
	return c.db.Update(func(tx *bolt.Tx) error {
		bkt := tx.Bucket(bucketBackups)
		data := bkt.Get([]byte(id))
		if data == nil {
			return &ErrNotFound{Entity: "backup", ID: id}
		}
		var b types.Backup
		if err := json.Unmarshal(data, &b); err != nil {
			return fmt.Errorf("decode backup %s: %w", id, err)
		}
		if b.Status != from {
			return &ErrCASMismatch{ID: id, Expected: from, Actual: b.Status}
		}
		if mutate != nil {
			mutate(&b)
		}
		b.Status = to
		encoded, err := json.Marshal(&b)
		if err != nil {
			return fmt.Errorf("encode backup %s: %w", id, err)
		}
		return bkt.Put([]byte(id), encoded)
	})
}

func (c *BoltCatalog) RequestCancel(id string) error {
	return c.db.Update(func(tx *bolt.Tx) error {
		bkt := tx.Bucket(bucketBackups)
		data := bkt.Get([]byte(id))
		if data == nil {
			return &ErrNotFound{Entity: "backup", ID: id}
		}
		var b types.Backup
		if err := json.Unmarshal(data, &b); err != nil {
			return fmt.Errorf("decode backup %s: %w", id, err)
		}
		if b.Status != types.BackupPending && b.Status != types.BackupInProgress {
			return fmt.Errorf("backup %s is in terminal or cancelling state %s, cannot cancel", id, b.Status)
		}
		b.Status = types.BackupCancelling
		encoded, err := json.Marshal(&b)
		if err != nil {
			return err
		}
		return bkt.Put([]byte(id), encoded)
	})
}

// --- Meta ---

func (c *BoltCatalog) GetOrCreateEncryptionSalt() ([]byte, error) {
	var salt []byte
	err := c.db.Update(func(tx *bolt.Tx) error {
		bkt := tx.Bucket(bucketMeta)
		existing := bkt.Get([]byte(metaSaltKey))
		if existing != nil {
			salt = make([]byte, len(existing))
			copy(salt, existing)
			return nil
		}
		generated := make([]byte, 16)
		if _, err := io.ReadFull(rand.Reader, generated); err != nil {
			return fmt.Errorf("generate encryption salt: %w", err)
		}
		if err := bkt.Put([]byte(metaSaltKey), generated); err != nil {
			return err
		}
		salt = generated
		return nil
	})
	return salt, err
}

// --- helpers ---

func (c *BoltCatalog) put(bucket []byte, id string, v interface{}) error {
	return c.db.Update(func(tx *bolt.Tx) error {
		data, err := json.Marshal(v)
		if err != nil {
			return err
		}
		return tx.Bucket(bucket).Put([]byte(id), data)
	})
}

func (c *BoltCatalog) get(bucket []byte, id string, v interface{}) error {
	return c.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucket).Get([]byte(id))
		if data == nil {
			return &ErrNotFound{Entity: string(bucket), ID: id}
		}
		return json.Unmarshal(data, v)
	})
}

var _ Catalog = (*BoltCatalog)(nil)
