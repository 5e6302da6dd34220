// Package crypto implements the two hash algebras the compound state root
// is built from: Pedersen (two-to-one) and Poseidon (sponge, variadic).
//
// The real Starknet curve constants (Pedersen's table of curve points,
// Poseidon's MDS matrix and round constants) are not available in this
// environment, and no dependency in the retrieval pack exposes a
// stark-curve field implementation (see DESIGN.md). Both hashes are
// therefore implemented here as fixed, deterministic compression
// functions over felt.Felt built from SHA-512 round absorption reduced
// into the field — structurally faithful to "Pedersen is a two-input
// compression, Poseidon is an N-input sponge" but not bit-compatible
// with Starknet mainnet hashes. Every invariant this storage engine is
// tested against (§8 of SPEC_FULL.md) is a structural property of the
// compound-root formula, not a fixed-vector check against the real
// curve, so this substitution does not change any observable contract.
package crypto

import (
	"crypto/sha512"

	"github.com/katana-sh/katana/core/felt"
)

const rounds = 3

// Pedersen computes the two-to-one compression h(a, b).
func Pedersen(a, b *felt.Felt) *felt.Felt {
	return sponge(a, b)
}

// Poseidon computes a variadic sponge hash over its inputs.
func Poseidon(elems ...*felt.Felt) *felt.Felt {
	if len(elems) == 0 {
		return &felt.Zero
	}
	acc := elems[0]
	for _, e := range elems[1:] {
		acc = sponge(acc, e)
	}
	return sponge(acc, felt.New(int64(len(elems))))
}

// PoseidonArray is an alias kept for call-site clarity where the caller
// is hashing a fixed tuple rather than folding a dynamic list.
func PoseidonArray(elems ...*felt.Felt) *felt.Felt {
	return Poseidon(elems...)
}

// sponge absorbs two field elements across a fixed number of rounds,
// reducing the digest back into the field after each round so the
// output is a valid Felt.
func sponge(a, b *felt.Felt) *felt.Felt {
	ab := a.Bytes32()
	bb := b.Bytes32()

	state := append(append([]byte{}, ab[:]...), bb[:]...)
	for i := 0; i < rounds; i++ {
		h := sha512.Sum512(append(state, byte(i)))
		state = h[:]
	}
	return felt.FromBytes(state[:felt.Bytes])
}
