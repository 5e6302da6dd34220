package trie

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/katana-sh/katana/core/felt"
	"github.com/katana-sh/katana/kv"
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

var testTables = Tables{
	Nodes:     tables.ClassesTrie,
	History:   tables.ClassesTrieHistory,
	ChangeSet: tables.ClassesTrieChangeSet,
}

// pairHash is a cheap two-to-one function for trie structure tests:
// these exercise insert/get/commit/proof shape, not the real hash
// algebra (core/crypto has its own tests for that).
func pairHash(a, b *felt.Felt) *felt.Felt {
	return felt.Add(felt.Mul(a, felt.New(1_000_003)), b)
}

func TestInsertGetRoundTrip(t *testing.T) {
	env := openTestEnv(t)
	require.NoError(t, env.Update(context.Background(), func(tx kv.RwTx) error {
		tr, err := NewFull(tx, testTables, pairHash, "t")
		require.NoError(t, err)

		keys := []*felt.Felt{felt.New(1), felt.New(2), felt.New(1000), felt.New(1 << 20)}
		for i, k := range keys {
			require.NoError(t, tr.Insert(k, felt.New(int64(i+1))))
		}
		for i, k := range keys {
			v, found, err := tr.Get(k)
			require.NoError(t, err)
			require.True(t, found)
			require.True(t, v.Equal(felt.New(int64(i+1))))
		}

		missing, found, err := tr.Get(felt.New(999_999))
		require.NoError(t, err)
		require.False(t, found)
		require.True(t, missing.IsZero())
		return nil
	}))
}

func TestEmptyTrieRootIsZero(t *testing.T) {
	env := openTestEnv(t)
	require.NoError(t, env.View(context.Background(), func(tx kv.RoTx) error {
		tr, err := NewFull(tx, testTables, pairHash, "empty")
		require.NoError(t, err)
		require.True(t, tr.Root().IsZero())
		return nil
	}))
}

func TestCommitPersistsRootAcrossReopen(t *testing.T) {
	env := openTestEnv(t)
	var committedRoot *felt.Felt
	require.NoError(t, env.Update(context.Background(), func(tx kv.RwTx) error {
		tr, err := NewFull(tx, testTables, pairHash, "persist")
		require.NoError(t, err)
		require.NoError(t, tr.Insert(felt.New(5), felt.New(50)))
		root, err := tr.Commit(1)
		require.NoError(t, err)
		committedRoot = root
		return nil
	}))
	require.False(t, committedRoot.IsZero())

	require.NoError(t, env.View(context.Background(), func(tx kv.RoTx) error {
		tr, err := NewFull(tx, testTables, pairHash, "persist")
		require.NoError(t, err)
		require.True(t, tr.Root().Equal(committedRoot))
		v, found, err := tr.Get(felt.New(5))
		require.NoError(t, err)
		require.True(t, found)
		require.True(t, v.Equal(felt.New(50)))
		return nil
	}))
}

func TestDoubleCommitFails(t *testing.T) {
	env := openTestEnv(t)
	require.NoError(t, env.Update(context.Background(), func(tx kv.RwTx) error {
		tr, err := NewFull(tx, testTables, pairHash, "double")
		require.NoError(t, err)
		require.NoError(t, tr.Insert(felt.New(1), felt.New(1)))
		_, err = tr.Commit(1)
		require.NoError(t, err)
		_, err = tr.Commit(2)
		require.Error(t, err)
		return nil
	}))
}

func TestRootAtReturnsPerBlockSnapshot(t *testing.T) {
	env := openTestEnv(t)
	var rootBlock1 *felt.Felt
	require.NoError(t, env.Update(context.Background(), func(tx kv.RwTx) error {
		tr, err := NewFull(tx, testTables, pairHash, "hist")
		require.NoError(t, err)
		require.NoError(t, tr.Insert(felt.New(1), felt.New(11)))
		r1, err := tr.Commit(1)
		require.NoError(t, err)
		rootBlock1 = r1
		return nil
	}))
	require.NoError(t, env.Update(context.Background(), func(tx kv.RwTx) error {
		tr, err := NewFull(tx, testTables, pairHash, "hist")
		require.NoError(t, err)
		require.NoError(t, tr.Insert(felt.New(2), felt.New(22)))
		_, err = tr.Commit(2)
		require.NoError(t, err)
		return nil
	}))
	require.NoError(t, env.View(context.Background(), func(tx kv.RoTx) error {
		r1, err := RootAt(tx, testTables, "hist", 1)
		require.NoError(t, err)
		require.True(t, r1.Equal(rootBlock1))
		return nil
	}))
}

func TestMultiproofVerifyRoundTrip(t *testing.T) {
	env := openTestEnv(t)
	require.NoError(t, env.Update(context.Background(), func(tx kv.RwTx) error {
		tr, err := NewFull(tx, testTables, pairHash, "proof")
		require.NoError(t, err)
		keys := []*felt.Felt{felt.New(3), felt.New(30), felt.New(300)}
		vals := []*felt.Felt{felt.New(7), felt.New(70), felt.New(700)}
		for i := range keys {
			require.NoError(t, tr.Insert(keys[i], vals[i]))
		}
		root := tr.Root()

		proof, err := tr.Multiproof(keys)
		require.NoError(t, err)
		require.NotEmpty(t, proof.Nodes)

		got, err := Verify(pairHash, proof, root, keys)
		require.NoError(t, err)
		require.Len(t, got, len(keys))
		for i, v := range vals {
			require.True(t, got[i].Equal(v))
		}
		return nil
	}))
}

// TestVerifyAbsentLeafConventionOnGapInProof drives the documented
// protocol rule (proof.go's Verify doc comment): a lookup that can't be
// walked from the nodes supplied yields the zero felt, not an error.
func TestVerifyAbsentLeafConventionOnGapInProof(t *testing.T) {
	emptyProof := MultiProof{}
	got, err := Verify(pairHash, emptyProof, felt.New(123), []*felt.Felt{felt.New(1)})
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.True(t, got[0].IsZero())
}

func TestMultiproofRejectsOnPartialTrie(t *testing.T) {
	env := openTestEnv(t)
	require.NoError(t, env.View(context.Background(), func(tx kv.RoTx) error {
		tr, err := NewPartial(tx, testTables, pairHash, "partial-proof", MultiProof{}, felt.New(1))
		require.NoError(t, err)
		_, err = tr.Multiproof([]*felt.Felt{felt.New(1)})
		require.Error(t, err)
		return nil
	}))
}
