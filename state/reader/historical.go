package reader

import (
	"fmt"

	"github.com/katana-sh/katana/core/felt"
	"github.com/katana-sh/katana/core/types"
	"github.com/katana-sh/katana/kv"
	"github.com/katana-sh/katana/kv/blocklist"
	"github.com/katana-sh/katana/kv/tables"
	"github.com/katana-sh/katana/state/tries"
	"github.com/katana-sh/katana/trie"
)

// Historical is the historical flavor of spec.md §4.8: point lookups
// rewind through a key's change-set to reconstruct its value as of
// block b; trie roots are read at commit-id b (trie.RootAt).
type Historical struct {
	tx    kv.RoTx
	block uint64
}

func NewHistorical(tx kv.RoTx, block uint64) *Historical { return &Historical{tx: tx, block: block} }

// rewind implements spec.md §4.8's rule verbatim: look up the
// change-set for key; if empty or its minimum exceeds b, the key was
// never set at or before b (not found). Otherwise find the smallest
// commit-id c > b; if none exists, the current value is still correct
// (no change after b). Otherwise the value recorded in History[c] is
// the pre-image as of c's commit — which by construction is the value
// as of block c-1 >= b.
func rewind(tx kv.RoTx, changeSet, history tables.Name, key []byte, b uint64) (preimage []byte, stillCurrent bool, found bool, err error) {
	cc, err := tx.Cursor(changeSet)
	if err != nil {
		return nil, false, false, fmt.Errorf("reader: change-set cursor: %w", err)
	}
	defer cc.Close()
	set, err := blocklist.Get(cc, key, 0, blocklist.MaxBlock)
	if err != nil {
		return nil, false, false, fmt.Errorf("reader: read change-set: %w", err)
	}
	if set.IsEmpty() {
		return nil, false, false, nil
	}
	min, ok := set.Min()
	if !ok || min > b {
		return nil, false, false, nil
	}
	c, ok := set.SmallestAbove(b)
	if !ok {
		return nil, true, true, nil
	}
	hc, err := tx.CursorDup(history)
	if err != nil {
		return nil, false, false, fmt.Errorf("reader: open history cursor: %w", err)
	}
	defer hc.Close()
	row, err := hc.SeekBothRange(key, beBlock(c))
	if err != nil {
		return nil, false, false, fmt.Errorf("reader: seek history row: %w", err)
	}
	if row == nil || len(row) < 8 || !bytesEqual(row[:8], beBlock(c)) {
		return nil, false, false, fmt.Errorf("reader: missing history row for commit %d", c)
	}
	return row[8:], false, true, nil
}

func beBlock(block uint64) []byte {
	var out [8]byte
	for i := 0; i < 8; i++ {
		out[7-i] = byte(block >> (8 * i))
	}
	return out[:]
}

func (r *Historical) Nonce(address *felt.Felt) (*felt.Felt, bool, error) {
	preimage, current, found, err := rewind(r.tx, tables.NonceChangeSet, tables.NonceChangeHistory, addressKey(address), r.block)
	if err != nil {
		return nil, false, err
	}
	if !found {
		return &felt.Zero, false, nil
	}
	if current {
		nonce, _, curFound, err := readContractInfo(r.tx, address)
		return nonce, curFound, err
	}
	return felt.FromBytes(preimage), true, nil
}

func (r *Historical) ClassHashOfContract(address *felt.Felt) (*felt.Felt, bool, error) {
	preimage, current, found, err := rewind(r.tx, tables.ClassChangeSet, tables.ClassChangeHistory, addressKey(address), r.block)
	if err != nil {
		return nil, false, err
	}
	if !found {
		return &felt.Zero, false, nil
	}
	if current {
		_, classHash, curFound, err := readContractInfo(r.tx, address)
		return classHash, curFound, err
	}
	return felt.FromBytes(preimage), true, nil
}

func (r *Historical) Storage(address, key *felt.Felt) (*felt.Felt, bool, error) {
	changeKey := append(append([]byte{}, addressKey(address)...), feltBytes(key)...)
	preimage, current, found, err := rewind(r.tx, tables.StorageChangeSet, tables.StorageChangeHistory, changeKey, r.block)
	if err != nil {
		return nil, false, err
	}
	if !found {
		return &felt.Zero, false, nil
	}
	if current {
		latest := &Latest{tx: r.tx}
		return latest.Storage(address, key)
	}
	return felt.FromBytes(preimage), true, nil
}

// Class and CompiledClassHashOfClassHash are content-addressed and
// immutable once declared (SPEC_FULL.md §3.3), so they carry no
// per-block history: the latest value is always the historical value.
func (r *Historical) Class(classHash *felt.Felt) (*types.ContractClass, bool, error) {
	return (&Latest{tx: r.tx}).Class(classHash)
}

func (r *Historical) CompiledClassHashOfClassHash(classHash *felt.Felt) (*felt.Felt, bool, error) {
	return (&Latest{tx: r.tx}).CompiledClassHashOfClassHash(classHash)
}

func (r *Historical) ClassesRoot() (*felt.Felt, error) {
	return tries.ClassesRootAt(r.tx, r.block)
}

func (r *Historical) ContractsRoot() (*felt.Felt, error) {
	return tries.ContractsRootAt(r.tx, r.block)
}

func (r *Historical) StorageRoot(address *felt.Felt) (*felt.Felt, error) {
	return tries.StorageRootAt(r.tx, address, r.block)
}

// Multiproofs are always generated against the trie's current
// structure (trie.Multiproof is full-trie-only, see trie/proof.go); the
// historical flavor does not support historical multiproofs, consistent
// with SPEC_FULL.md §4.5's note that only point values and roots are
// needed per historical block.
func (r *Historical) ClassMultiproof(classHashes []*felt.Felt) (trie.MultiProof, error) {
	return (&Latest{tx: r.tx}).ClassMultiproof(classHashes)
}

func (r *Historical) ContractMultiproof(addresses []*felt.Felt) (trie.MultiProof, error) {
	return (&Latest{tx: r.tx}).ContractMultiproof(addresses)
}

func (r *Historical) StorageMultiproof(address *felt.Felt, keys []*felt.Felt) (trie.MultiProof, error) {
	return (&Latest{tx: r.tx}).StorageMultiproof(address, keys)
}
