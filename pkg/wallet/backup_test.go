package wallet

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestBackup(t *testing.T) *BoltBackup {
	t.Helper()
	b, err := NewBoltBackup(filepath.Join(t.TempDir(), "wallets.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = b.Close() })
	return b
}

func TestBoltBackupPutDelete(t *testing.T) {
	b := openTestBackup(t)

	require.NoError(t, b.Put("addr1", []byte("ciphertext"), time.Now()))
	require.NoError(t, b.Delete("addr1"))

	// Deleting a missing entry is fine.
	assert.NoError(t, b.Delete("addr1"))
}

func TestBoltBackupPurgeOlderThan(t *testing.T) {
	b := openTestBackup(t)

	require.NoError(t, b.Put("stale", []byte("old"), time.Now().Add(-48*time.Hour)))
	require.NoError(t, b.Put("fresh", []byte("new"), time.Now()))

	purged, err := b.PurgeOlderThan(24 * time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1, purged)

	// A second purge has nothing left to remove.
	purged, err = b.PurgeOlderThan(24 * time.Hour)
	require.NoError(t, err)
	assert.Zero(t, purged)
}

func TestBoltBackupCreatesDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dir", "wallets.db")
	b, err := NewBoltBackup(path)
	require.NoError(t, err)
	assert.NoError(t, b.Close())
}
