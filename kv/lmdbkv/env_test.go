package lmdbkv

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/cespare/cp"
	"github.com/stretchr/testify/require"

	"github.com/katana-sh/katana/kv"
	"github.com/katana-sh/katana/kv/kverrors"
	"github.com/katana-sh/katana/kv/tables"
)

func TestOpenFreshDirCreatesTablesAndWritesVersion(t *testing.T) {
	dir := t.TempDir()

	env, err := Open(dir, kv.RW)
	require.NoError(t, err)
	defer env.Close()

	stored, found, err := StoredVersion(dir)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, uint32(SchemaVersion), stored)
}

func TestStoredVersionOnUnopenedDirIsNotFound(t *testing.T) {
	dir := t.TempDir()

	_, found, err := StoredVersion(dir)
	require.NoError(t, err)
	require.False(t, found)
}

func TestReopenReadOnlySeesTablesWrittenByReadWrite(t *testing.T) {
	dir := t.TempDir()

	rw, err := Open(dir, kv.RW)
	require.NoError(t, err)
	require.NoError(t, rw.Update(context.Background(), func(tx kv.RwTx) error {
		return tx.Put(tables.Headers, []byte("k"), []byte("v"))
	}))
	rw.Close()

	ro, err := Open(dir, kv.RO)
	require.NoError(t, err)
	defer ro.Close()

	require.NoError(t, ro.View(context.Background(), func(tx kv.RoTx) error {
		v, found, err := tx.Get(tables.Headers, []byte("k"))
		require.NoError(t, err)
		require.True(t, found)
		require.Equal(t, []byte("v"), v)
		return nil
	}))
}

// TestOpenRejectsACopyOfAnOlderSchemaVersion clones a fully-initialized
// environment directory with cp.CopyAll (mirroring the go-ethereum
// keystore tests' use of the same package to clone fixture directories),
// then rewrites its version file to simulate a directory stamped by an
// older binary, and checks the clone is rejected rather than silently
// reused.
func TestOpenRejectsACopyOfAnOlderSchemaVersion(t *testing.T) {
	origin := t.TempDir()
	env, err := Open(origin, kv.RW)
	require.NoError(t, err)
	env.Close()

	clone := filepath.Join(t.TempDir(), "clone")
	require.NoError(t, cp.CopyAll(clone, origin))
	require.NoError(t, os.WriteFile(filepath.Join(clone, versionFileName), []byte("0"), 0o644))

	_, err = Open(clone, kv.RW)
	require.ErrorIs(t, err, kverrors.ErrVersionMismatch)
}
