// Package reader implements SPEC_FULL.md §4.8: the read side of the
// storage engine, three flavors (Latest, Historical, Forked) behind one
// Reader interface. Grounded on the teacher's core/state package
// boundary (a small interface many concrete state implementations
// satisfy) and, for the historical rewind rule, core/state/history.go's
// change-set + history-index idea — simplified here to the spec's
// direct "smallest commit-id c > b" rule rather than the teacher's
// chunked history-index format.
package reader

import (
	"fmt"

	"github.com/katana-sh/katana/core/felt"
	"github.com/katana-sh/katana/core/types"
	"github.com/katana-sh/katana/kv"
	"github.com/katana-sh/katana/kv/codec"
	"github.com/katana-sh/katana/kv/tables"
	"github.com/katana-sh/katana/state/tries"
	"github.com/katana-sh/katana/trie"
)

// Reader is the capability set of spec.md §4.8, shared by every flavor.
// Every "Option" return in the spec's notation becomes a (value, bool)
// pair here, following the trie package's own Get convention; absent
// always means the zero felt for value-typed lookups.
type Reader interface {
	Nonce(address *felt.Felt) (*felt.Felt, bool, error)
	ClassHashOfContract(address *felt.Felt) (*felt.Felt, bool, error)
	Storage(address, key *felt.Felt) (*felt.Felt, bool, error)
	Class(classHash *felt.Felt) (*types.ContractClass, bool, error)
	CompiledClassHashOfClassHash(classHash *felt.Felt) (*felt.Felt, bool, error)

	ClassesRoot() (*felt.Felt, error)
	ContractsRoot() (*felt.Felt, error)
	StorageRoot(address *felt.Felt) (*felt.Felt, error)

	ClassMultiproof(classHashes []*felt.Felt) (trie.MultiProof, error)
	ContractMultiproof(addresses []*felt.Felt) (trie.MultiProof, error)
	StorageMultiproof(address *felt.Felt, keys []*felt.Felt) (trie.MultiProof, error)
}

func addressKey(f *felt.Felt) []byte {
	b := f.Bytes32()
	return b[:]
}

func feltBytes(f *felt.Felt) []byte {
	b := f.Bytes32()
	return b[:]
}

// Latest is the latest flavor of spec.md §4.8: it consults ContractInfo
// and ContractStorage directly, and Classes/CompiledClassHashes for
// class data.
type Latest struct {
	tx kv.RoTx
}

func NewLatest(tx kv.RoTx) *Latest { return &Latest{tx: tx} }

var (
	_ Reader = (*Latest)(nil)
	_ Reader = (*Historical)(nil)
	_ Reader = (*Forked)(nil)
)

func (r *Latest) Nonce(address *felt.Felt) (*felt.Felt, bool, error) {
	nonce, _, found, err := readContractInfo(r.tx, address)
	return nonce, found, err
}

func (r *Latest) ClassHashOfContract(address *felt.Felt) (*felt.Felt, bool, error) {
	_, classHash, found, err := readContractInfo(r.tx, address)
	return classHash, found, err
}

func readContractInfo(tx kv.RoTx, address *felt.Felt) (nonce, classHash *felt.Felt, found bool, err error) {
	v, found, err := tx.Get(tables.ContractInfo, addressKey(address))
	if err != nil {
		return nil, nil, false, fmt.Errorf("reader: read contract info: %w", err)
	}
	if !found {
		return &felt.Zero, &felt.Zero, false, nil
	}
	if len(v) < felt.Bytes*2 {
		return nil, nil, false, fmt.Errorf("reader: corrupt contract info row for %s", address.String())
	}
	return felt.FromBytes(v[:felt.Bytes]), felt.FromBytes(v[felt.Bytes:]), true, nil
}

func (r *Latest) Storage(address, key *felt.Felt) (*felt.Felt, bool, error) {
	c, err := r.tx.CursorDup(tables.ContractStorage)
	if err != nil {
		return nil, false, fmt.Errorf("reader: open storage cursor: %w", err)
	}
	defer c.Close()
	keyBytes := feltBytes(key)
	v, err := c.SeekBothRange(addressKey(address), keyBytes)
	if err != nil {
		return nil, false, fmt.Errorf("reader: seek storage: %w", err)
	}
	if v == nil || len(v) < felt.Bytes || !bytesEqual(v[:felt.Bytes], keyBytes) {
		return &felt.Zero, false, nil
	}
	return felt.FromBytes(v[felt.Bytes:]), true, nil
}

func (r *Latest) Class(classHash *felt.Felt) (*types.ContractClass, bool, error) {
	v, found, err := r.tx.Get(tables.Classes, addressKey(classHash))
	if err != nil {
		return nil, false, fmt.Errorf("reader: read class: %w", err)
	}
	if !found {
		return nil, false, nil
	}
	c, err := codec.DecodeClass(v)
	if err != nil {
		return nil, false, fmt.Errorf("reader: decode class %s: %w", classHash.String(), err)
	}
	return c, true, nil
}

func (r *Latest) CompiledClassHashOfClassHash(classHash *felt.Felt) (*felt.Felt, bool, error) {
	v, found, err := r.tx.Get(tables.CompiledClassHashes, addressKey(classHash))
	if err != nil {
		return nil, false, fmt.Errorf("reader: read compiled class hash: %w", err)
	}
	if !found {
		return &felt.Zero, false, nil
	}
	return felt.FromBytes(v), true, nil
}

func (r *Latest) ClassesRoot() (*felt.Felt, error) {
	t, err := tries.OpenClassesTrie(r.tx)
	if err != nil {
		return nil, err
	}
	return t.Root(), nil
}

func (r *Latest) ContractsRoot() (*felt.Felt, error) {
	t, err := tries.OpenContractsTrie(r.tx)
	if err != nil {
		return nil, err
	}
	return t.Root(), nil
}

func (r *Latest) StorageRoot(address *felt.Felt) (*felt.Felt, error) {
	t, err := tries.OpenStoragesTrie(r.tx, address)
	if err != nil {
		return nil, err
	}
	return t.Root(), nil
}

func (r *Latest) ClassMultiproof(classHashes []*felt.Felt) (trie.MultiProof, error) {
	t, err := tries.OpenClassesTrie(r.tx)
	if err != nil {
		return trie.MultiProof{}, err
	}
	return t.Multiproof(classHashes)
}

func (r *Latest) ContractMultiproof(addresses []*felt.Felt) (trie.MultiProof, error) {
	t, err := tries.OpenContractsTrie(r.tx)
	if err != nil {
		return trie.MultiProof{}, err
	}
	return t.Multiproof(addresses)
}

func (r *Latest) StorageMultiproof(address *felt.Felt, keys []*felt.Felt) (trie.MultiProof, error) {
	t, err := tries.OpenStoragesTrie(r.tx, address)
	if err != nil {
		return trie.MultiProof{}, err
	}
	return t.Multiproof(keys)
}

func bytesEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
