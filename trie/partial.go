package trie

import (
	"errors"
	"fmt"

	"github.com/katana-sh/katana/core/felt"
	"github.com/katana-sh/katana/kv"
)

var errInvalidOnPartial = errors.New("trie: operation not valid for this trie variant")

// NewPartial opens a partial trie (spec.md §4.5): one that materializes
// only the nodes along paths it has seen, seeded here from an
// externally supplied proof rooted at originalRoot. A proof of zero
// nodes is legal: such a trie can still answer Root() (which returns
// originalRoot as-is) but fails any lookup that needs to walk the tree
// with kverrors.ErrTrieProofMissing. state/tries.OpenClassesTriePartial/
// OpenContractsTriePartial use exactly this to let the forked state
// reader answer a root query with the value an upstream node actually
// commits to (state/reader/forked.go), without claiming to know the
// rest of that trie's structure. Proof-backed InsertWithProof below has
// no caller yet: the forked backend's write-through path
// (state/fork/backend.go) only caches raw latest-value rows, not trie
// leaves, so a forked session's locally-computed class/contracts root
// still never reflects writes-through — see DESIGN.md.
func NewPartial(tx kv.RoTx, t Tables, h HashFn, identifier string, proof MultiProof, originalRoot *felt.Felt) (*Trie, error) {
	idx, err := indexProof(h, proof.Nodes)
	if err != nil {
		return nil, fmt.Errorf("trie: partial: invalid proof: %w", err)
	}
	return &Trie{
		tx:           tx,
		tables:       t,
		hash:         h,
		identifier:   []byte(identifier),
		cache:        make(map[[felt.Bytes]byte]*node),
		preimages:    make(map[[felt.Bytes]byte]*felt.Felt),
		root:         originalRoot,
		partial:      true,
		proofIndex:   idx,
		originalRoot: originalRoot,
	}, nil
}

// InsertWithProof inserts into a partial trie, per spec.md §4.5's
// partial-variant signature: both the proof and the original root must
// already be known (supplied at construction via NewPartial). Lookups
// along the insert path that cannot be satisfied from the proof or the
// trie's own prior inserts fail with kverrors.ErrTrieProofMissing.
func (t *Trie) InsertWithProof(key, value *felt.Felt) error {
	if !t.partial {
		return errInvalidOnPartial
	}
	return t.Insert(key, value)
}
