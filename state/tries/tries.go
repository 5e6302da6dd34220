// Package tries implements SPEC_FULL.md §4.6: the three named tries
// (ClassesTrie, ContractsTrie, StoragesTrie) and the compound state root
// formula, each a thin domain-specific wrapper over the generic
// trie.Trie core. Grounded on original_source/crates/trie/src/
// {classes,contracts}.rs's leaf-hash formulas and identifier scheme.
package tries

import (
	"fmt"

	"github.com/katana-sh/katana/core/crypto"
	"github.com/katana-sh/katana/core/felt"
	"github.com/katana-sh/katana/kv"
	"github.com/katana-sh/katana/kv/tables"
	"github.com/katana-sh/katana/trie"
)

// contractClassLeafV0 is the Poseidon domain separator for classes-trie
// leaf values, per the real Starknet state commitment scheme
// (docs.starknet.io "classes_trie").
var contractClassLeafV0 = felt.FromShortString("CONTRACT_CLASS_LEAF_V0")

// starknetStateV0 is the domain separator for the compound state root.
var starknetStateV0 = felt.FromShortString("STARKNET_STATE_V0")

var classesTableSet = tables.ClassesTrieTables
var contractsTableSet = tables.ContractsTrieTables
var storagesTableSet = tables.StoragesTrieTables

func toTrieTables(t tables.TrieTableSet) trie.Tables {
	return trie.Tables{Nodes: t.Nodes, History: t.History, ChangeSet: t.ChangeSet}
}

// poseidonPair adapts crypto.Poseidon's variadic sponge to trie.HashFn's
// fixed two-argument shape; the classes trie only ever folds two
// children per node, never a longer tuple.
func poseidonPair(a, b *felt.Felt) *felt.Felt {
	return crypto.Poseidon(a, b)
}

// ClassesTrie maps class_hash -> Poseidon(CONTRACT_CLASS_LEAF_V0, compiled_class_hash).
// Legacy (Cairo 0) classes never insert here (spec.md §4.6).
type ClassesTrie struct {
	t *trie.Trie
}

func OpenClassesTrie(tx kv.RoTx) (*ClassesTrie, error) {
	t, err := trie.NewFull(tx, toTrieTables(classesTableSet), poseidonPair, "classes")
	if err != nil {
		return nil, fmt.Errorf("tries: open classes trie: %w", err)
	}
	return &ClassesTrie{t: t}, nil
}

func (c *ClassesTrie) Insert(classHash, compiledClassHash *felt.Felt) error {
	leaf := crypto.Poseidon(contractClassLeafV0, compiledClassHash)
	return c.t.Insert(classHash, leaf)
}

func (c *ClassesTrie) Root() *felt.Felt { return c.t.Root() }

func (c *ClassesTrie) Commit(block uint64) (*felt.Felt, error) { return c.t.Commit(block) }

func (c *ClassesTrie) Multiproof(keys []*felt.Felt) (trie.MultiProof, error) {
	return c.t.Multiproof(keys)
}

// OpenClassesTriePartial opens the classes trie rooted at an externally
// supplied root with no proof nodes attached — enough to answer Root()
// (which returns the seeded value directly) but nothing requiring a
// tree walk, which fails with kverrors.ErrTrieProofMissing. Used by the
// forked state reader (spec.md §4.9) to answer ClassesRoot() with the
// value the upstream node actually commits to, instead of a root
// recomputed from only the locally-synced subset of classes.
func OpenClassesTriePartial(tx kv.RoTx, root *felt.Felt) (*ClassesTrie, error) {
	t, err := trie.NewPartial(tx, toTrieTables(classesTableSet), poseidonPair, "classes", trie.MultiProof{}, root)
	if err != nil {
		return nil, fmt.Errorf("tries: open partial classes trie: %w", err)
	}
	return &ClassesTrie{t: t}, nil
}

// ContractLeaf is the not-yet-hashed material for one ContractsTrie
// entry; missing fields are filled from the latest StateProvider by the
// state-update writer before ComputeLeaf is called (SPEC_FULL.md §4.7
// step 2).
type ContractLeaf struct {
	ClassHash   *felt.Felt
	StorageRoot *felt.Felt
	Nonce       *felt.Felt
}

// ComputeLeaf implements spec.md §4.6's contract state leaf formula:
// h = Pedersen(Pedersen(Pedersen(class_hash, storage_root), nonce), 0).
func (l ContractLeaf) ComputeLeaf() *felt.Felt {
	h := crypto.Pedersen(nz(l.ClassHash), nz(l.StorageRoot))
	h = crypto.Pedersen(h, nz(l.Nonce))
	return crypto.Pedersen(h, &felt.Zero)
}

func nz(f *felt.Felt) *felt.Felt {
	if f == nil {
		return &felt.Zero
	}
	return f
}

// ContractsTrie maps address -> contract state leaf.
type ContractsTrie struct {
	t *trie.Trie
}

func OpenContractsTrie(tx kv.RoTx) (*ContractsTrie, error) {
	t, err := trie.NewFull(tx, toTrieTables(contractsTableSet), crypto.Pedersen, "contracts")
	if err != nil {
		return nil, fmt.Errorf("tries: open contracts trie: %w", err)
	}
	return &ContractsTrie{t: t}, nil
}

func (c *ContractsTrie) Insert(address *felt.Felt, leaf ContractLeaf) error {
	return c.t.Insert(address, leaf.ComputeLeaf())
}

func (c *ContractsTrie) Root() *felt.Felt { return c.t.Root() }

func (c *ContractsTrie) Commit(block uint64) (*felt.Felt, error) { return c.t.Commit(block) }

func (c *ContractsTrie) Multiproof(keys []*felt.Felt) (trie.MultiProof, error) {
	return c.t.Multiproof(keys)
}

// OpenContractsTriePartial is OpenClassesTriePartial's counterpart for
// the contracts trie.
func OpenContractsTriePartial(tx kv.RoTx, root *felt.Felt) (*ContractsTrie, error) {
	t, err := trie.NewPartial(tx, toTrieTables(contractsTableSet), crypto.Pedersen, "contracts", trie.MultiProof{}, root)
	if err != nil {
		return nil, fmt.Errorf("tries: open partial contracts trie: %w", err)
	}
	return &ContractsTrie{t: t}, nil
}

// StoragesTrie maps storage_key -> storage_value, scoped to one
// contract address via its identifier.
type StoragesTrie struct {
	t *trie.Trie
}

func OpenStoragesTrie(tx kv.RoTx, address *felt.Felt) (*StoragesTrie, error) {
	identifier := "storage:" + address.String()
	t, err := trie.NewFull(tx, toTrieTables(storagesTableSet), crypto.Pedersen, identifier)
	if err != nil {
		return nil, fmt.Errorf("tries: open storages trie for %s: %w", address.String(), err)
	}
	return &StoragesTrie{t: t}, nil
}

func (s *StoragesTrie) Insert(key, value *felt.Felt) error { return s.t.Insert(key, value) }

func (s *StoragesTrie) Root() *felt.Felt { return s.t.Root() }

func (s *StoragesTrie) Commit(block uint64) (*felt.Felt, error) { return s.t.Commit(block) }

func (s *StoragesTrie) Multiproof(keys []*felt.Felt) (trie.MultiProof, error) {
	return s.t.Multiproof(keys)
}

// StateRoot computes the compound state root of spec.md §4.6:
// Poseidon("STARKNET_STATE_V0", contracts_root, classes_root).
func StateRoot(contractsRoot, classesRoot *felt.Felt) *felt.Felt {
	return crypto.Poseidon(starknetStateV0, contractsRoot, classesRoot)
}

// ClassesRootAt and ContractsRootAt answer spec.md §4.8's historical
// trie-root queries by reading the per-block root pointer trie.Commit
// wrote, rather than replaying node history — see trie.RootAt's doc
// comment for the rationale.
func ClassesRootAt(tx kv.RoTx, block uint64) (*felt.Felt, error) {
	return trie.RootAt(tx, toTrieTables(classesTableSet), "classes", block)
}

func ContractsRootAt(tx kv.RoTx, block uint64) (*felt.Felt, error) {
	return trie.RootAt(tx, toTrieTables(contractsTableSet), "contracts", block)
}

func StorageRootAt(tx kv.RoTx, address *felt.Felt, block uint64) (*felt.Felt, error) {
	identifier := "storage:" + address.String()
	return trie.RootAt(tx, toTrieTables(storagesTableSet), identifier, block)
}
