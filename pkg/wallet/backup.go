package wallet

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"
)

var bucketWallets = []byte("wallets")

// Backup is the durable store for encrypted wallet secrets. It exists so the
// in-memory registry can survive a process restart long enough for manual
// recovery; availability beats durability for this time-boxed resource.
type Backup interface {
	Put(address string, ciphertext []byte, createdAt time.Time) error
	Delete(address string) error
	PurgeOlderThan(maxAge time.Duration) (int, error)
	Close() error
}

type backupRecord struct {
	Ciphertext []byte    `json:"ciphertext"`
	CreatedAt  time.Time `json:"createdAt"`
}

// BoltBackup persists encrypted wallet secrets in a BoltDB file.
type BoltBackup struct {
	db *bolt.DB
}

// NewBoltBackup opens (and migrates) the BoltDB-backed backup store.
func NewBoltBackup(path string) (*BoltBackup, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("wallet: failed to create backup directory: %w", err)
		}
	}
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("wallet: failed to open backup store: %w", err)
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketWallets)
		return err
	}); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("wallet: failed to create bucket: %w", err)
	}
	return &BoltBackup{db: db}, nil
}

// Put stores the encrypted secret keyed by the wallet's public address.
func (b *BoltBackup) Put(address string, ciphertext []byte, createdAt time.Time) error {
	raw, err := json.Marshal(backupRecord{Ciphertext: ciphertext, CreatedAt: createdAt})
	if err != nil {
		return fmt.Errorf("wallet: failed to marshal backup record: %w", err)
	}
	return b.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketWallets).Put([]byte(address), raw)
	})
}

// Delete removes the backup entry. Deleting a missing entry is not an error.
func (b *BoltBackup) Delete(address string) error {
	return b.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketWallets).Delete([]byte(address))
	})
}

// PurgeOlderThan removes backup entries older than maxAge and returns how
// many were removed. Run at startup to clear wallets from dead processes.
func (b *BoltBackup) PurgeOlderThan(maxAge time.Duration) (int, error) {
	cutoff := time.Now().Add(-maxAge)
	purged := 0
	err := b.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(bucketWallets)
		c := bucket.Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			var rec backupRecord
			if err := json.Unmarshal(v, &rec); err != nil || rec.CreatedAt.Before(cutoff) {
				if err := c.Delete(); err != nil {
					return err
				}
				purged++
			}
		}
		return nil
	})
	if err != nil {
		return purged, fmt.Errorf("wallet: failed to purge backups: %w", err)
	}
	return purged, nil
}

// Close releases the underlying Bolt database handle.
func (b *BoltBackup) Close() error {
	if b == nil || b.db == nil {
		return nil
	}
	return b.db.Close()
}
