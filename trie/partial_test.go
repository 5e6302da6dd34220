package trie

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/katana-sh/katana/core/felt"
	"github.com/katana-sh/katana/kv"
	"github.com/katana-sh/katana/kv/kverrors"
)

// TestPartialTrieRootReturnsSeededValueWithoutProofNodes drives
// NewPartial's documented zero-proof-nodes case: Root() always answers
// from originalRoot directly, it never walks the tree.
func TestPartialTrieRootReturnsSeededValueWithoutProofNodes(t *testing.T) {
	env := openTestEnv(t)
	seeded := felt.New(424242)
	require.NoError(t, env.View(context.Background(), func(tx kv.RoTx) error {
		tr, err := NewPartial(tx, testTables, pairHash, "partial-root", MultiProof{}, seeded)
		require.NoError(t, err)
		require.True(t, tr.Root().Equal(seeded))
		return nil
	}))
}

// TestPartialTrieGetFailsWithoutProof shows a partial trie seeded with
// no proof nodes cannot answer a lookup that requires walking below the
// root: getNode falls through to kverrors.ErrTrieProofMissing.
func TestPartialTrieGetFailsWithoutProof(t *testing.T) {
	env := openTestEnv(t)
	nonZeroRoot := felt.New(7)
	require.NoError(t, env.View(context.Background(), func(tx kv.RoTx) error {
		tr, err := NewPartial(tx, testTables, pairHash, "partial-get", MultiProof{}, nonZeroRoot)
		require.NoError(t, err)
		_, _, err = tr.Get(felt.New(1))
		require.Error(t, err)
		require.True(t, errors.Is(err, kverrors.ErrTrieProofMissing))
		return nil
	}))
}

// TestPartialTrieInsertWithProofUsingFullTriesProof builds a full trie,
// takes a real Multiproof over one key, and checks a partial trie seeded
// with that proof can both read the proven key and insert a new one
// along the same path without hitting ErrTrieProofMissing.
func TestPartialTrieInsertWithProofUsingFullTriesProof(t *testing.T) {
	env := openTestEnv(t)
	key := felt.New(55)
	value := felt.New(555)
	var root *felt.Felt
	var proof MultiProof

	require.NoError(t, env.Update(context.Background(), func(tx kv.RwTx) error {
		full, err := NewFull(tx, testTables, pairHash, "partial-source")
		require.NoError(t, err)
		require.NoError(t, full.Insert(key, value))
		require.NoError(t, full.Insert(felt.New(9999), felt.New(99990)))
		root = full.Root()
		proof, err = full.Multiproof([]*felt.Felt{key})
		require.NoError(t, err)
		return nil
	}))

	require.NoError(t, env.View(context.Background(), func(tx kv.RoTx) error {
		p, err := NewPartial(tx, testTables, pairHash, "partial-source", proof, root)
		require.NoError(t, err)

		got, found, err := p.Get(key)
		require.NoError(t, err)
		require.True(t, found)
		require.True(t, got.Equal(value))

		// The proof covers key's own path, so overwriting key along that
		// same path needs nothing beyond what was supplied.
		updated := felt.New(556)
		require.NoError(t, p.InsertWithProof(key, updated))
		got, found, err = p.Get(key)
		require.NoError(t, err)
		require.True(t, found)
		require.True(t, got.Equal(updated))
		return nil
	}))
}

// TestInsertWithProofRejectsOnFullTrie checks the partial-only guard:
// calling InsertWithProof on a trie opened via NewFull is rejected.
func TestInsertWithProofRejectsOnFullTrie(t *testing.T) {
	env := openTestEnv(t)
	require.NoError(t, env.View(context.Background(), func(tx kv.RoTx) error {
		full, err := NewFull(tx, testTables, pairHash, "not-partial")
		require.NoError(t, err)
		err = full.InsertWithProof(felt.New(1), felt.New(1))
		require.ErrorIs(t, err, errInvalidOnPartial)
		return nil
	}))
}
