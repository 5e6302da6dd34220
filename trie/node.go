package trie

import (
	"errors"

	"github.com/katana-sh/katana/core/felt"
	"github.com/katana-sh/katana/kv/kverrors"
)

// HashFn is the trie's two-to-one compression function: Pedersen for
// ContractsTrie/StoragesTrie, Poseidon for ClassesTrie (SPEC_FULL.md
// §4.6). The trie core never hardcodes either; it is handed one at
// construction.
type HashFn func(a, b *felt.Felt) *felt.Felt

// kind distinguishes the two node shapes a Bonsai-style binary trie
// needs once path compression is in play: an edgeNode collapses a run
// of single-child steps, a binaryNode is a true fork. There is no
// separate "leaf node" type — at depth Height an edge's child hash
// field holds the raw value felt directly (the teacher's equivalent of
// a bare valueNode, never wrapped in another node).
type kind uint8

const (
	kindEdge kind = iota
	kindBinary
)

// node is the unit of trie storage, content-addressed by its own Hash()
// once computed. Only one of the two field groups is meaningful,
// selected by Kind.
type node struct {
	Kind kind

	// edge
	Path  path
	Child *felt.Felt // hash of the subtree Height-Path.Len bits below, or a raw leaf value if that depth is Height

	// binary
	Left, Right *felt.Felt
}

func edgeNode(p path, child *felt.Felt) *node {
	return &node{Kind: kindEdge, Path: p, Child: child}
}

func binaryNode(left, right *felt.Felt) *node {
	return &node{Kind: kindBinary, Left: left, Right: right}
}

// Hash computes the node's commitment per the real Starknet Merkle
// Patricia formula: an edge's hash folds in its skipped-bit count as a
// plain felt addition (not hashed), a binary node is a bare two-to-one
// compression of its children.
func (n *node) Hash(h HashFn) *felt.Felt {
	switch n.Kind {
	case kindEdge:
		combined := h(n.Child, n.Path.felt())
		return felt.Add(combined, felt.New(int64(n.Path.Len)))
	case kindBinary:
		return h(n.Left, n.Right)
	default:
		panic("trie: invalid node kind")
	}
}

// encode/decode give nodes a stable on-disk representation for the
// Nodes table, content-addressed by Hash(). Layout is a kind byte (plus
// a path-length byte for edges) followed by 32-byte big-endian felts;
// kv/codec is not reused, since nodes are an internal trie concern never exposed as a table
// value type spec.md names.
func (n *node) encode() []byte {
	buf := make([]byte, 0, 72)
	buf = append(buf, byte(n.Kind))
	switch n.Kind {
	case kindEdge:
		lb := n.Path.Len
		buf = append(buf, byte(lb))
		pf := n.Path.felt()
		pb := pf.Bytes32()
		buf = append(buf, pb[:]...)
		cb := n.Child.Bytes32()
		buf = append(buf, cb[:]...)
	case kindBinary:
		lb := n.Left.Bytes32()
		rb := n.Right.Bytes32()
		buf = append(buf, lb[:]...)
		buf = append(buf, rb[:]...)
	}
	return buf
}

func decodeNode(b []byte) (*node, error) {
	if len(b) < 1 {
		return nil, kverrors.ErrCodec
	}
	k := kind(b[0])
	b = b[1:]
	switch k {
	case kindEdge:
		if len(b) < 1+felt.Bytes*2 {
			return nil, errors.New("trie: short edge node")
		}
		length := int(b[0])
		b = b[1:]
		pf := felt.FromBytes(b[:felt.Bytes])
		b = b[felt.Bytes:]
		child := felt.FromBytes(b[:felt.Bytes])
		return edgeNode(newPath(pf.BigInt(), length), child), nil
	case kindBinary:
		if len(b) < felt.Bytes*2 {
			return nil, errors.New("trie: short binary node")
		}
		left := felt.FromBytes(b[:felt.Bytes])
		right := felt.FromBytes(b[felt.Bytes:])
		return binaryNode(left, right), nil
	default:
		return nil, errors.New("trie: unknown node kind")
	}
}
