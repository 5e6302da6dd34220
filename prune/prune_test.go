package prune

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/katana-sh/katana/core/felt"
	"github.com/katana-sh/katana/core/types"
	"github.com/katana-sh/katana/kv"
	"github.com/katana-sh/katana/kv/lmdbkv"
	"github.com/katana-sh/katana/kv/tables"
	"github.com/katana-sh/katana/state/tries"
	"github.com/katana-sh/katana/state/writer"
)

func openTestEnv(t *testing.T) kv.Env {
	t.Helper()
	env, err := lmdbkv.Open(t.TempDir(), kv.RW)
	require.NoError(t, err)
	t.Cleanup(func() { env.Close() })
	return env
}

// writeThreeBlocks deploys one contract and declares one class at block
// 1, then writes a changing storage slot for that contract across blocks
// 1-3, so every one of the three tries picks up per-block history.
func writeThreeBlocks(t *testing.T, env kv.Env, address, classHash, key *felt.Felt) {
	t.Helper()
	w := writer.NewWriter()
	values := []int64{10, 20, 30}
	for i, v := range values {
		block := uint64(i + 1)
		su := types.NewStateUpdates()
		su.SetStorage(address, key, felt.New(v))
		su.NonceUpdates[types.NewFeltKey(address)] = felt.New(int64(i + 1))
		if i == 0 {
			su.DeployedContracts[types.NewFeltKey(address)] = classHash
			su.DeclaredClasses[types.NewFeltKey(classHash)] = felt.New(77)
		}
		require.NoError(t, env.Update(context.Background(), func(tx kv.RwTx) error {
			_, err := w.InsertStateUpdates(tx, block, su)
			return err
		}))
	}
}

// TestPrunerLatestCountMatchesMutateAndZeroesOldRoots drives spec.md §8
// property 1 (count equals deletions) and the §4.10 guarantee that
// historical trie roots before the tip read as zero after a Latest prune.
func TestPrunerLatestCountMatchesMutateAndZeroesOldRoots(t *testing.T) {
	env := openTestEnv(t)
	address := felt.New(1)
	classHash := felt.New(9)
	key := felt.New(2)
	writeThreeBlocks(t, env, address, classHash, key)

	var classesRoot3, contractsRoot3, storageRoot3 *felt.Felt
	require.NoError(t, env.View(context.Background(), func(tx kv.RoTx) error {
		var err error
		classesRoot3, err = tries.ClassesRootAt(tx, 3)
		require.NoError(t, err)
		contractsRoot3, err = tries.ContractsRootAt(tx, 3)
		require.NoError(t, err)
		storageRoot3, err = tries.StorageRootAt(tx, address, 3)
		require.NoError(t, err)
		return nil
	}))
	require.False(t, classesRoot3.IsZero())
	require.False(t, contractsRoot3.IsZero())
	require.False(t, storageRoot3.IsZero())

	req := Request{Mode: Latest, LatestBlock: 3}
	p := New(env)

	counted, err := p.Count(context.Background(), req)
	require.NoError(t, err)

	mutated, err := p.Mutate(context.Background(), req)
	require.NoError(t, err)

	require.Equal(t, counted, mutated)
	require.NotEmpty(t, mutated)

	require.NoError(t, env.View(context.Background(), func(tx kv.RoTx) error {
		for _, b := range []uint64{0, 1, 2} {
			cr, err := tries.ClassesRootAt(tx, b)
			require.NoError(t, err)
			require.True(t, cr.IsZero(), "classes root at block %d should be zero after prune", b)

			kr, err := tries.ContractsRootAt(tx, b)
			require.NoError(t, err)
			require.True(t, kr.IsZero(), "contracts root at block %d should be zero after prune", b)

			sr, err := tries.StorageRootAt(tx, address, b)
			require.NoError(t, err)
			require.True(t, sr.IsZero(), "storage root at block %d should be zero after prune", b)
		}

		cr3, err := tries.ClassesRootAt(tx, 3)
		require.NoError(t, err)
		require.True(t, cr3.Equal(classesRoot3))

		kr3, err := tries.ContractsRootAt(tx, 3)
		require.NoError(t, err)
		require.True(t, kr3.Equal(contractsRoot3))

		sr3, err := tries.StorageRootAt(tx, address, 3)
		require.NoError(t, err)
		require.True(t, sr3.Equal(storageRoot3))
		return nil
	}))
}

// TestPrunerLatestClearsAllHistoryAndChangeSetTablesEntirely drives S2:
// spec.md §4.10 defines Latest mode as clearing every row of all six
// History/ChangeSet tables, with no cutoff exception for the tip's own
// row — unlike KeepLastN, which has one.
func TestPrunerLatestClearsAllHistoryAndChangeSetTablesEntirely(t *testing.T) {
	env := openTestEnv(t)
	address := felt.New(1)
	classHash := felt.New(9)
	key := felt.New(2)
	writeThreeBlocks(t, env, address, classHash, key)

	p := New(env)
	req := Request{Mode: Latest, LatestBlock: 3}
	_, err := p.Mutate(context.Background(), req)
	require.NoError(t, err)

	sixTables := []tables.Name{
		tables.ClassesTrieHistory, tables.ClassesTrieChangeSet,
		tables.ContractsTrieHistory, tables.ContractsTrieChangeSet,
		tables.StoragesTrieHistory, tables.StoragesTrieChangeSet,
	}
	require.NoError(t, env.View(context.Background(), func(tx kv.RoTx) error {
		for _, table := range sixTables {
			n, err := tx.Entries(table)
			require.NoError(t, err)
			require.Zero(t, n, "%s must be fully empty after a Latest prune, including the tip's own row", table)
		}
		return nil
	}))
}

// TestPrunerKeepLastNRetainsRecentBlocks drives S3: keeping the last
// block of three leaves only the pruned prefix zeroed.
func TestPrunerKeepLastNRetainsRecentBlocks(t *testing.T) {
	env := openTestEnv(t)
	address := felt.New(1)
	classHash := felt.New(9)
	key := felt.New(2)
	writeThreeBlocks(t, env, address, classHash, key)

	p := New(env)
	req := Request{Mode: KeepLastN, KeepLast: 1, LatestBlock: 3}

	counted, err := p.Count(context.Background(), req)
	require.NoError(t, err)
	mutated, err := p.Mutate(context.Background(), req)
	require.NoError(t, err)
	require.Equal(t, counted, mutated)

	require.NoError(t, env.View(context.Background(), func(tx kv.RoTx) error {
		cr1, err := tries.ClassesRootAt(tx, 1)
		require.NoError(t, err)
		require.True(t, cr1.IsZero())

		cr2, err := tries.ClassesRootAt(tx, 2)
		require.NoError(t, err)
		require.True(t, cr2.IsZero(), "block 2 is at the cutoff and is pruned")

		cr3, err := tries.ClassesRootAt(tx, 3)
		require.NoError(t, err)
		require.False(t, cr3.IsZero(), "block 3 is within the retained window and must keep its root")
		return nil
	}))
}

// TestPrunerKeepLastNNoop drives S4: N at or past the tip removes nothing.
func TestPrunerKeepLastNNoop(t *testing.T) {
	env := openTestEnv(t)
	address := felt.New(1)
	classHash := felt.New(9)
	key := felt.New(2)
	writeThreeBlocks(t, env, address, classHash, key)

	p := New(env)
	req := Request{Mode: KeepLastN, KeepLast: 10, LatestBlock: 3}

	_, err := p.Count(context.Background(), req)
	require.ErrorIs(t, err, ErrNoop)
	_, err = p.Mutate(context.Background(), req)
	require.ErrorIs(t, err, ErrNoop)

	require.NoError(t, env.View(context.Background(), func(tx kv.RoTx) error {
		cr1, err := tries.ClassesRootAt(tx, 1)
		require.NoError(t, err)
		require.False(t, cr1.IsZero(), "no-op prune must not touch any root")
		return nil
	}))
}
