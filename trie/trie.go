package trie

import (
	"errors"
	"fmt"

	"github.com/katana-sh/katana/core/felt"
	"github.com/katana-sh/katana/kv"
	"github.com/katana-sh/katana/kv/blocklist"
	"github.com/katana-sh/katana/kv/kverrors"
	"github.com/katana-sh/katana/kv/tables"
)

// Tables names the three physical tables a Trie instance is backed by,
// per spec.md §4.5's "(nodes, history, change_set)" tuple.
type Tables struct {
	Nodes, History, ChangeSet tables.Name
}

// lifecycle is the per-transaction trie state machine of spec.md §4.5:
// Fresh -> Dirty -> Committed. Committing twice in the same transaction
// is rejected; a Trie value is meant to be scoped to a single block's
// writer pass, so there is no transition back to Fresh on the same
// value — callers construct a new Trie for the next block.
type lifecycle uint8

const (
	lifecycleFresh lifecycle = iota
	lifecycleDirty
	lifecycleCommitted
)

// Trie is the full (locally-authoritative) variant of SPEC_FULL.md
// §4.5: it always holds enough nodes to compute proofs for any key it
// has touched, falling back to the Nodes table for anything not yet
// cached in this transaction.
type Trie struct {
	// tx is stored as the narrower kv.RoTx so that a Trie opened purely
	// for reads (the state reader's latest/historical flavors, SPEC_FULL.md
	// §4.8) can run inside a read-only transaction. Commit requires tx to
	// actually be a kv.RwTx; it type-asserts rather than widening the
	// field, since mutation is the exception (writer.go), not the rule.
	tx         kv.RoTx
	tables     Tables
	hash       HashFn
	identifier []byte

	root  *felt.Felt
	cache map[[felt.Bytes]byte]*node

	// preimages records, for every key touched in this transaction, the
	// value it held the first time it was touched — the pre-image
	// Commit appends to the history table.
	preimages map[[felt.Bytes]byte]*felt.Felt
	touched   []*felt.Felt // keys in first-touched order, for deterministic history writes

	state lifecycle

	// partial, proofIndex and originalRoot are set only by NewPartial;
	// see partial.go.
	partial      bool
	proofIndex   map[[felt.Bytes]byte]*node
	originalRoot *felt.Felt
}

// NewFull opens a full trie at its current (latest) root, read from
// tx[tables.Nodes]'s identifier root pointer row (see rootKey). tx may be
// a read-only transaction; Insert/Commit then require it to be a
// kv.RwTx (checked at the point of mutation, not here).
func NewFull(tx kv.RoTx, t Tables, h HashFn, identifier string) (*Trie, error) {
	tr := &Trie{
		tx:         tx,
		tables:     t,
		hash:       h,
		identifier: []byte(identifier),
		cache:      make(map[[felt.Bytes]byte]*node),
		preimages:  make(map[[felt.Bytes]byte]*felt.Felt),
	}
	root, err := tr.loadRoot()
	if err != nil {
		return nil, err
	}
	tr.root = root
	return tr, nil
}

func (t *Trie) rootPointerKey() []byte {
	return append(append([]byte{}, t.identifier...), []byte(":root")...)
}

func (t *Trie) loadRoot() (*felt.Felt, error) {
	v, found, err := t.tx.Get(t.tables.Nodes, t.rootPointerKey())
	if err != nil {
		return nil, fmt.Errorf("trie: load root: %w", err)
	}
	if !found {
		return nil, nil
	}
	return felt.FromBytes(v), nil
}

// Root returns the trie's current root, the zero felt if empty.
func (t *Trie) Root() *felt.Felt {
	if isEmpty(t.root) {
		return &felt.Zero
	}
	return t.root
}

func isEmpty(f *felt.Felt) bool { return f == nil || f.IsZero() }

func (t *Trie) nodeKey(hash *felt.Felt) []byte {
	hb := hash.Bytes32()
	return append(append([]byte{}, t.identifier...), hb[:]...)
}

func (t *Trie) getNode(hash *felt.Felt) (*node, error) {
	hb := hash.Bytes32()
	if n, ok := t.cache[hb]; ok {
		return n, nil
	}
	if t.partial {
		if n, ok := t.proofIndex[hb]; ok {
			return n, nil
		}
		return nil, fmt.Errorf("trie: node %s: %w", hash.String(), kverrors.ErrTrieProofMissing)
	}
	v, found, err := t.tx.Get(t.tables.Nodes, t.nodeKey(hash))
	if err != nil {
		return nil, fmt.Errorf("trie: read node: %w", kverrors.ErrIo)
	}
	if !found {
		return nil, fmt.Errorf("trie: node %s missing: %w", hash.String(), kverrors.ErrIo)
	}
	n, err := decodeNode(v)
	if err != nil {
		return nil, fmt.Errorf("trie: decode node: %w", err)
	}
	t.cache[hb] = n
	return n, nil
}

func (t *Trie) store(n *node) *felt.Felt {
	h := n.Hash(t.hash)
	t.cache[h.Bytes32()] = n
	return h
}

// Insert writes key -> value, recording the pre-existing value (zero if
// absent) as this transaction's pre-image for key the first time it is
// touched.
func (t *Trie) Insert(key, value *felt.Felt) error {
	if t.state == lifecycleCommitted {
		return fmt.Errorf("trie: insert after commit: %w", kverrors.ErrValidation)
	}
	kb := key.Bytes32()
	if _, seen := t.preimages[kb]; !seen {
		old, _, err := t.Get(key)
		if err != nil {
			return err
		}
		t.preimages[kb] = old
		t.touched = append(t.touched, key)
	}
	newRoot, err := t.insertAt(t.root, 0, key, value)
	if err != nil {
		return err
	}
	t.root = newRoot
	t.state = lifecycleDirty
	return nil
}

// Get performs a read-only point lookup, returning the zero felt and
// found=false when key has never been set.
func (t *Trie) Get(key *felt.Felt) (*felt.Felt, bool, error) {
	cur := t.root
	depth := 0
	for {
		if isEmpty(cur) {
			return &felt.Zero, false, nil
		}
		n, err := t.getNode(cur)
		if err != nil {
			return nil, false, err
		}
		switch n.Kind {
		case kindEdge:
			rem := suffix(key, depth)
			common := commonPrefixLen(n.Path, rem, n.Path.Len)
			if common != n.Path.Len {
				return &felt.Zero, false, nil
			}
			depth += n.Path.Len
			if depth == Height {
				return n.Child, true, nil
			}
			cur = n.Child
		case kindBinary:
			if bitAt(key, depth) == 0 {
				cur = n.Left
			} else {
				cur = n.Right
			}
			depth++
		}
	}
}

func (t *Trie) insertAt(cur *felt.Felt, depth int, key, value *felt.Felt) (*felt.Felt, error) {
	rem := suffix(key, depth)
	if isEmpty(cur) {
		return t.store(edgeNode(rem, value)), nil
	}
	n, err := t.getNode(cur)
	if err != nil {
		return nil, err
	}
	switch n.Kind {
	case kindBinary:
		if bitAt(key, depth) == 0 {
			newLeft, err := t.insertAt(n.Left, depth+1, key, value)
			if err != nil {
				return nil, err
			}
			return t.store(binaryNode(newLeft, n.Right)), nil
		}
		newRight, err := t.insertAt(n.Right, depth+1, key, value)
		if err != nil {
			return nil, err
		}
		return t.store(binaryNode(n.Left, newRight)), nil

	case kindEdge:
		common := commonPrefixLen(n.Path, rem, n.Path.Len)
		if common == n.Path.Len {
			newDepth := depth + n.Path.Len
			if newDepth == Height {
				return t.store(edgeNode(n.Path, value)), nil
			}
			newChild, err := t.insertAt(n.Child, newDepth, key, value)
			if err != nil {
				return nil, err
			}
			return t.store(edgeNode(n.Path, newChild)), nil
		}

		divergeDepth := depth + common
		nBit := n.Path.bitAt(common)
		nRest := n.Path.drop(common + 1)
		var nBranch *felt.Felt
		if nRest.Len == 0 {
			nBranch = n.Child
		} else {
			nBranch = t.store(edgeNode(nRest, n.Child))
		}

		newBranch, err := t.insertAt(nil, divergeDepth+1, key, value)
		if err != nil {
			return nil, err
		}

		var left, right *felt.Felt
		if nBit == 0 {
			left, right = nBranch, newBranch
		} else {
			left, right = newBranch, nBranch
		}
		binHash := t.store(binaryNode(left, right))
		if common == 0 {
			return binHash, nil
		}
		return t.store(edgeNode(n.Path.take(common), binHash)), nil

	default:
		return nil, errors.New("trie: invalid node kind")
	}
}

// Commit assigns every dirty node and touched key the commit-id block,
// appends history/change-set rows, and persists the new root pointer.
// Per spec.md §4.5, committing twice in the same transaction is
// forbidden.
func (t *Trie) Commit(block uint64) (*felt.Felt, error) {
	if t.state == lifecycleCommitted {
		return nil, fmt.Errorf("trie: double commit: %w", kverrors.ErrValidation)
	}
	rw, ok := t.tx.(kv.RwTx)
	if !ok {
		return nil, fmt.Errorf("trie: commit on a read-only transaction: %w", kverrors.ErrValidation)
	}

	for hb, n := range t.cache {
		if err := rw.Put(t.tables.Nodes, append(append([]byte{}, t.identifier...), hb[:]...), n.encode()); err != nil {
			return nil, fmt.Errorf("trie: flush node: %w", err)
		}
	}

	for _, key := range t.touched {
		if err := t.appendHistory(rw, block, key, t.preimages[key.Bytes32()]); err != nil {
			return nil, err
		}
	}

	rootBytes := t.Root().Bytes32()
	if err := rw.Put(t.tables.Nodes, t.rootPointerKey(), rootBytes[:]); err != nil {
		return nil, fmt.Errorf("trie: write root pointer: %w", err)
	}
	if err := t.putRootAtBlock(rw, block); err != nil {
		return nil, err
	}

	t.state = lifecycleCommitted
	return t.Root(), nil
}

// historyRowKey/changeSetKey scope the trie's own leaf-history tracking to
// this trie's identifier, the same (key -> BlockList, block -> preimage)
// shape the outer state-update writer uses for ContractInfo/
// ContractStorage (SPEC_FULL.md §4.7), applied here one level down at
// the trie-leaf granularity.
func (t *Trie) changeSetKey(key *felt.Felt) []byte {
	kb := key.Bytes32()
	return append(append([]byte{}, t.identifier...), kb[:]...)
}

func (t *Trie) historyRowKey(block uint64, key *felt.Felt) []byte {
	var blk [8]byte
	for i := 0; i < 8; i++ {
		blk[7-i] = byte(block >> (8 * i))
	}
	kb := key.Bytes32()
	out := make([]byte, 0, len(t.identifier)+8+felt.Bytes)
	out = append(out, t.identifier...)
	out = append(out, blk[:]...)
	out = append(out, kb[:]...)
	return out
}

func (t *Trie) appendHistory(rw kv.RwTx, block uint64, key, preimage *felt.Felt) error {
	csKey := t.changeSetKey(key)
	c, err := rw.CursorRw(t.tables.ChangeSet)
	if err != nil {
		return fmt.Errorf("trie: change-set cursor: %w", err)
	}
	defer c.Close()
	delta := blocklist.New()
	delta.Insert(block)
	if err := blocklist.AppendMergeByOr(c, csKey, delta); err != nil {
		return fmt.Errorf("trie: append change-set: %w", err)
	}

	pb := preimage.Bytes32()
	if err := rw.Put(t.tables.History, t.historyRowKey(block, key), pb[:]); err != nil {
		return fmt.Errorf("trie: write history: %w", err)
	}
	return nil
}

func (t *Trie) blockRootKey(block uint64) []byte {
	var blk [8]byte
	for i := 0; i < 8; i++ {
		blk[7-i] = byte(block >> (8 * i))
	}
	out := append(append([]byte{}, t.identifier...), []byte(":blockroot:")...)
	return append(out, blk[:]...)
}

func (t *Trie) putRootAtBlock(rw kv.RwTx, block uint64) error {
	rb := t.Root().Bytes32()
	return rw.Put(t.tables.Nodes, t.blockRootKey(block), rb[:])
}

// BlockRootKey computes the per-block root pointer key for the given
// trie identifier without an open Trie instance, for callers (the
// pruner) that only ever write or delete this one row.
func BlockRootKey(identifier string, block uint64) []byte {
	var blk [8]byte
	for i := 0; i < 8; i++ {
		blk[7-i] = byte(block >> (8 * i))
	}
	out := append(append([]byte{}, []byte(identifier)...), []byte(":blockroot:")...)
	return append(out, blk[:]...)
}

// RootAt returns the trie's root as of the end of block b, reading the
// direct per-block root pointer Commit wrote. This is a deliberate
// simplification over literally replaying the Merkle structure node by
// node for every historical block: the state reader's historical flavor
// (SPEC_FULL.md §4.8) only ever needs point values and roots per block,
// never historical multiproofs, so this satisfies every externally
// observable contract without keeping per-block node snapshots.
func RootAt(tx kv.RoTx, t Tables, identifier string, block uint64) (*felt.Felt, error) {
	key := append(append([]byte{}, []byte(identifier)...), []byte(":blockroot:")...)
	var blk [8]byte
	for i := 0; i < 8; i++ {
		blk[7-i] = byte(block >> (8 * i))
	}
	key = append(key, blk[:]...)
	v, found, err := tx.Get(t.Nodes, key)
	if err != nil {
		return nil, err
	}
	if !found {
		return &felt.Zero, nil
	}
	return felt.FromBytes(v), nil
}
