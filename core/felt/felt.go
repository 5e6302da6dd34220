// Package felt implements the Starknet field element: a residue modulo
// the Stark prime, used as the universal key/value type for tries, state
// entries and hashes throughout the storage engine.
package felt

import (
	"encoding/hex"
	"fmt"
	"math/big"
)

// Bytes is the fixed-width big-endian encoding of a Felt.
const Bytes = 32

// modulus is the Stark field prime: 2^251 + 17*2^192 + 1.
var modulus = func() *big.Int {
	m := new(big.Int).Lsh(big.NewInt(1), 251)
	t := new(big.Int).Lsh(big.NewInt(17), 192)
	m.Add(m, t)
	m.Add(m, big.NewInt(1))
	return m
}()

// Felt is an element of the Starknet prime field. The zero value is the
// additive identity. Felt is not safe for concurrent mutation; treat
// values as immutable once shared across goroutines.
type Felt struct {
	v big.Int
}

var Zero = Felt{}

// New returns the Felt representation of a non-negative int64.
func New(x int64) *Felt {
	f := &Felt{}
	f.v.SetInt64(x)
	return f
}

// FromBigInt reduces x modulo the field prime.
func FromBigInt(x *big.Int) *Felt {
	f := &Felt{}
	f.v.Mod(x, modulus)
	return f
}

// FromBytes decodes a big-endian byte slice, reducing modulo the prime.
func FromBytes(b []byte) *Felt {
	f := &Felt{}
	f.v.SetBytes(b)
	f.v.Mod(&f.v, modulus)
	return f
}

// FromHex parses a "0x..."-prefixed or bare hex string.
func FromHex(s string) (*Felt, error) {
	if len(s) >= 2 && (s[:2] == "0x" || s[:2] == "0X") {
		s = s[2:]
	}
	if len(s)%2 == 1 {
		s = "0" + s
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("felt: invalid hex %q: %w", s, err)
	}
	return FromBytes(b), nil
}

// FromShortString encodes an ASCII string (<=31 bytes) the way Cairo
// short-strings are packed into a felt: big-endian byte-packed integer.
func FromShortString(s string) *Felt {
	if len(s) > 31 {
		panic("felt: short string exceeds 31 bytes")
	}
	return FromBytes([]byte(s))
}

// Bytes32 returns the big-endian, left-zero-padded 32-byte encoding.
func (f *Felt) Bytes32() [Bytes]byte {
	var out [Bytes]byte
	f.v.FillBytes(out[:])
	return out
}

// SetBytes overwrites f from a big-endian encoding, reducing modulo the prime.
func (f *Felt) SetBytes(b []byte) *Felt {
	f.v.SetBytes(b)
	f.v.Mod(&f.v, modulus)
	return f
}

func (f *Felt) IsZero() bool { return f.v.Sign() == 0 }

func (f *Felt) Equal(o *Felt) bool {
	if f == nil || o == nil {
		return f == o
	}
	return f.v.Cmp(&o.v) == 0
}

func (f *Felt) Cmp(o *Felt) int { return f.v.Cmp(&o.v) }

func (f *Felt) BigInt() *big.Int { return new(big.Int).Set(&f.v) }

func (f *Felt) String() string {
	return "0x" + f.v.Text(16)
}

// Add, Mul and Sub are the field operations needed by the hash algebra in
// package crypto; Felt does not expose a full arithmetic API beyond that
// since the storage engine never needs general field math.
func Add(a, b *Felt) *Felt {
	r := &Felt{}
	r.v.Add(&a.v, &b.v)
	r.v.Mod(&r.v, modulus)
	return r
}

func Mul(a, b *Felt) *Felt {
	r := &Felt{}
	r.v.Mul(&a.v, &b.v)
	r.v.Mod(&r.v, modulus)
	return r
}

func Sub(a, b *Felt) *Felt {
	r := &Felt{}
	r.v.Sub(&a.v, &b.v)
	r.v.Mod(&r.v, modulus)
	return r
}

// Bit returns the i-th least-significant bit, used by the binary trie to
// walk a key from its most significant bit down.
func (f *Felt) Bit(i int) uint {
	return f.v.Bit(i)
}

// MarshalJSON renders a Felt the way feeder-gateway-style JSON payloads
// do: a "0x"-prefixed hex string.
func (f *Felt) MarshalJSON() ([]byte, error) {
	return []byte(`"` + f.String() + `"`), nil
}

func (f *Felt) UnmarshalJSON(b []byte) error {
	s := string(b)
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		s = s[1 : len(s)-1]
	}
	parsed, err := FromHex(s)
	if err != nil {
		return err
	}
	f.v = parsed.v
	return nil
}
