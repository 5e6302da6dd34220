package tries

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/katana-sh/katana/core/crypto"
	"github.com/katana-sh/katana/core/felt"
	"github.com/katana-sh/katana/kv"
	"github.com/katana-sh/katana/kv/lmdbkv"
)

func openTestEnv(t *testing.T) kv.Env {
	t.Helper()
	env, err := lmdbkv.Open(t.TempDir(), kv.RW)
	require.NoError(t, err)
	t.Cleanup(func() { env.Close() })
	return env
}

func TestClassesTrieInsertRoot(t *testing.T) {
	env := openTestEnv(t)
	classHash := felt.New(1)
	compiledClassHash := felt.New(2)

	require.NoError(t, env.Update(context.Background(), func(tx kv.RwTx) error {
		ct, err := OpenClassesTrie(tx)
		require.NoError(t, err)
		require.True(t, ct.Root().IsZero())
		require.NoError(t, ct.Insert(classHash, compiledClassHash))
		require.False(t, ct.Root().IsZero())
		_, err = ct.Commit(1)
		require.NoError(t, err)
		return nil
	}))
}

// TestContractLeafComputeLeafFormula drives spec.md §4.6's contract
// state leaf formula directly: h = Pedersen(Pedersen(Pedersen(class_hash,
// storage_root), nonce), 0).
func TestContractLeafComputeLeafFormula(t *testing.T) {
	leaf := ContractLeaf{
		ClassHash:   felt.New(11),
		StorageRoot: felt.New(22),
		Nonce:       felt.New(3),
	}
	want := crypto.Pedersen(crypto.Pedersen(crypto.Pedersen(leaf.ClassHash, leaf.StorageRoot), leaf.Nonce), &felt.Zero)
	require.True(t, leaf.ComputeLeaf().Equal(want))
}

// TestContractLeafComputeLeafDefaultsNilFields checks nz's zero-fill:
// an omitted field (a contract with no storage yet) hashes as if it
// were the zero felt, not a nil-pointer panic.
func TestContractLeafComputeLeafDefaultsNilFields(t *testing.T) {
	leaf := ContractLeaf{ClassHash: felt.New(1)}
	require.NotPanics(t, func() {
		leaf.ComputeLeaf()
	})
}

func TestContractsTrieInsertUsesComputedLeaf(t *testing.T) {
	env := openTestEnv(t)
	address := felt.New(100)
	leaf := ContractLeaf{ClassHash: felt.New(1), StorageRoot: felt.New(2), Nonce: felt.New(0)}

	require.NoError(t, env.Update(context.Background(), func(tx kv.RwTx) error {
		ct, err := OpenContractsTrie(tx)
		require.NoError(t, err)
		require.NoError(t, ct.Insert(address, leaf))
		root := ct.Root()
		require.False(t, root.IsZero())
		_, err = ct.Commit(1)
		require.NoError(t, err)
		return nil
	}))
}

func TestStoragesTrieIsScopedPerAddress(t *testing.T) {
	env := openTestEnv(t)
	addrA := felt.New(1)
	addrB := felt.New(2)

	require.NoError(t, env.Update(context.Background(), func(tx kv.RwTx) error {
		sa, err := OpenStoragesTrie(tx, addrA)
		require.NoError(t, err)
		require.NoError(t, sa.Insert(felt.New(1), felt.New(111)))
		_, err = sa.Commit(1)
		require.NoError(t, err)

		sb, err := OpenStoragesTrie(tx, addrB)
		require.NoError(t, err)
		require.True(t, sb.Root().IsZero(), "a different address's storage trie must start empty")
		return nil
	}))
}

// TestStateRootComposesContractsAndClassesRoots drives spec.md §8
// property 7's compound formula directly.
func TestStateRootComposesContractsAndClassesRoots(t *testing.T) {
	contractsRoot := felt.New(10)
	classesRoot := felt.New(20)
	want := crypto.Poseidon(starknetStateV0, contractsRoot, classesRoot)
	require.True(t, StateRoot(contractsRoot, classesRoot).Equal(want))
}

// TestOpenClassesTriePartialAnswersRootWithoutWalkingTree checks the
// forked-reader mechanism (state/reader/forked.go): a partial trie
// seeded with an externally supplied root and zero proof nodes answers
// Root() directly, but fails any lookup.
func TestOpenClassesTriePartialAnswersRootWithoutWalkingTree(t *testing.T) {
	env := openTestEnv(t)
	upstreamRoot := felt.New(999)
	require.NoError(t, env.View(context.Background(), func(tx kv.RoTx) error {
		ct, err := OpenClassesTriePartial(tx, upstreamRoot)
		require.NoError(t, err)
		require.True(t, ct.Root().Equal(upstreamRoot))

		_, err = ct.Multiproof([]*felt.Felt{felt.New(1)})
		require.Error(t, err)
		return nil
	}))
}

func TestOpenContractsTriePartialAnswersRootWithoutWalkingTree(t *testing.T) {
	env := openTestEnv(t)
	upstreamRoot := felt.New(888)
	require.NoError(t, env.View(context.Background(), func(tx kv.RoTx) error {
		ct, err := OpenContractsTriePartial(tx, upstreamRoot)
		require.NoError(t, err)
		require.True(t, ct.Root().Equal(upstreamRoot))
		return nil
	}))
}

func TestRootAtHelpersReadPerBlockPointer(t *testing.T) {
	env := openTestEnv(t)
	classHash := felt.New(5)
	var committed *felt.Felt
	require.NoError(t, env.Update(context.Background(), func(tx kv.RwTx) error {
		ct, err := OpenClassesTrie(tx)
		require.NoError(t, err)
		require.NoError(t, ct.Insert(classHash, felt.New(6)))
		r, err := ct.Commit(7)
		require.NoError(t, err)
		committed = r
		return nil
	}))
	require.NoError(t, env.View(context.Background(), func(tx kv.RoTx) error {
		r, err := ClassesRootAt(tx, 7)
		require.NoError(t, err)
		require.True(t, r.Equal(committed))
		return nil
	}))
}
