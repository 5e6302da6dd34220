// Package trie implements SPEC_FULL.md §4.5's generic content-addressed
// Bonsai-style binary Merkle trie: parameterised by a two-to-one hash
// algebra, a height of 251 bits (the Starknet field's bit width), and a
// commit-id equal to a block number. Node vocabulary (edgeNode/
// binaryNode, the path-compression split) is grounded on the teacher's
// trie/trie_from_witness.go shortNode/fullNode/hashNode/valueNode
// terminology, adapted from Ethereum's 16-ary hex trie to Starknet's
// binary one.
package trie

import (
	"math/big"

	"github.com/katana-sh/katana/core/felt"
)

// Height is the bit-depth of the trie: every key is treated as a
// 251-bit path from the root to a leaf.
const Height = 251

// path is a bit string of at most Height bits, MSB-first, as walked
// from the root. len(bits) is the number of significant bits; Packed
// holds them right-aligned in a big.Int for compact storage/hashing.
type path struct {
	Packed *big.Int
	Len    int
}

func newPath(packed *big.Int, length int) path {
	return path{Packed: packed, Len: length}
}

func emptyPath() path { return path{Packed: new(big.Int), Len: 0} }

// bitAt returns the bit at depth d (0 = most significant / root-adjacent)
// of a full 251-bit key.
func bitAt(key *felt.Felt, d int) uint {
	return key.Bit(Height - 1 - d)
}

// suffix extracts the bits of key in [from, Height), as a path.
func suffix(key *felt.Felt, from int) path {
	length := Height - from
	packed := new(big.Int)
	for i := 0; i < length; i++ {
		packed.Lsh(packed, 1)
		if bitAt(key, from+i) == 1 {
			packed.SetBit(packed, 0, 1)
		}
	}
	return newPath(packed, length)
}

// commonPrefixLen returns how many leading bits a and b (both measured
// from the same starting depth, both up to maxLen long) share.
func commonPrefixLen(a, b path, maxLen int) int {
	n := a.Len
	if b.Len < n {
		n = b.Len
	}
	if maxLen < n {
		n = maxLen
	}
	i := 0
	for ; i < n; i++ {
		if a.bitAt(i) != b.bitAt(i) {
			break
		}
	}
	return i
}

func (p path) bitAt(i int) uint {
	return p.Packed.Bit(p.Len - 1 - i)
}

// drop returns p with its first n bits removed.
func (p path) drop(n int) path {
	if n == 0 {
		return p
	}
	mask := new(big.Int).Lsh(big.NewInt(1), uint(p.Len-n))
	mask.Sub(mask, big.NewInt(1))
	packed := new(big.Int).And(p.Packed, mask)
	return newPath(packed, p.Len-n)
}

// take returns p's first n bits.
func (p path) take(n int) path {
	shifted := new(big.Int).Rsh(p.Packed, uint(p.Len-n))
	return newPath(shifted, n)
}

func (p path) felt() *felt.Felt { return felt.FromBigInt(p.Packed) }
