package writer

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/katana-sh/katana/core/felt"
	"github.com/katana-sh/katana/core/types"
	"github.com/katana-sh/katana/kv"
	"github.com/katana-sh/katana/kv/blocklist"
	"github.com/katana-sh/katana/kv/lmdbkv"
	"github.com/katana-sh/katana/kv/tables"
)

func openTestEnv(t *testing.T) kv.Env {
	t.Helper()
	env, err := lmdbkv.Open(t.TempDir(), kv.RW)
	require.NoError(t, err)
	t.Cleanup(func() { env.Close() })
	return env
}

// TestInsertStateUpdatesOverwritesStorage guards against the dup-sort
// overwrite bug: writing the same (address, key) slot across two blocks
// must replace the value, never accumulate a duplicate row.
func TestInsertStateUpdatesOverwritesStorage(t *testing.T) {
	env := openTestEnv(t)
	w := NewWriter()

	address := felt.New(1)
	key := felt.New(2)

	su1 := types.NewStateUpdates()
	su1.SetStorage(address, key, felt.New(100))
	require.NoError(t, env.Update(context.Background(), func(tx kv.RwTx) error {
		_, err := w.InsertStateUpdates(tx, 1, su1)
		return err
	}))

	su2 := types.NewStateUpdates()
	su2.SetStorage(address, key, felt.New(200))
	require.NoError(t, env.Update(context.Background(), func(tx kv.RwTx) error {
		_, err := w.InsertStateUpdates(tx, 2, su2)
		return err
	}))

	require.NoError(t, env.View(context.Background(), func(tx kv.RoTx) error {
		v, err := latestStorageValue(tx, address, key)
		require.NoError(t, err)
		require.True(t, v.Equal(felt.New(200)))

		c, err := tx.CursorDup(tables.ContractStorage)
		require.NoError(t, err)
		defer c.Close()
		_, _, err = c.Seek(addressKey(address))
		require.NoError(t, err)
		n, err := c.CountDuplicates()
		require.NoError(t, err)
		require.EqualValues(t, 1, n) // exactly one row survives, not two
		return nil
	}))
}

// TestInsertStateUpdatesRecordsChangeHistoryOnlyOnChange verifies nonce
// and class-hash rewind records are appended only for blocks that
// actually change the value, matching the writer's curNonce.Equal /
// curClass.Equal guards.
func TestInsertStateUpdatesRecordsChangeHistoryOnlyOnChange(t *testing.T) {
	env := openTestEnv(t)
	w := NewWriter()

	address := felt.New(1)
	classHash := felt.New(9)

	su1 := types.NewStateUpdates()
	su1.DeployedContracts[types.NewFeltKey(address)] = classHash
	su1.NonceUpdates[types.NewFeltKey(address)] = felt.New(1)
	require.NoError(t, env.Update(context.Background(), func(tx kv.RwTx) error {
		_, err := w.InsertStateUpdates(tx, 1, su1)
		return err
	}))

	// Block 2: nonce increments, class hash unchanged.
	su2 := types.NewStateUpdates()
	su2.NonceUpdates[types.NewFeltKey(address)] = felt.New(2)
	require.NoError(t, env.Update(context.Background(), func(tx kv.RwTx) error {
		_, err := w.InsertStateUpdates(tx, 2, su2)
		return err
	}))

	require.NoError(t, env.View(context.Background(), func(tx kv.RoTx) error {
		nonce, classHashGot, err := w.latestContractInfo(tx, address)
		require.NoError(t, err)
		require.True(t, nonce.Equal(felt.New(2)))
		require.True(t, classHashGot.Equal(classHash))

		nc, err := tx.Cursor(tables.NonceChangeSet)
		require.NoError(t, err)
		defer nc.Close()
		nonceSet, err := blocklist.Get(nc, addressKey(address), 0, blocklist.MaxBlock)
		require.NoError(t, err)
		require.True(t, nonceSet.Contains(1))
		require.True(t, nonceSet.Contains(2))

		// The class hash only ever changed once, at the deploy in block 1
		// (zero -> classHash); block 2 left it untouched so no second entry
		// should appear in its change-set.
		cc, err := tx.Cursor(tables.ClassChangeSet)
		require.NoError(t, err)
		defer cc.Close()
		classSet, err := blocklist.Get(cc, addressKey(address), 0, blocklist.MaxBlock)
		require.NoError(t, err)
		require.True(t, classSet.Contains(1))
		require.False(t, classSet.Contains(2))
		return nil
	}))
}
