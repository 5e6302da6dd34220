// Package writer implements SPEC_FULL.md §4.7, the state-update writer
// ("block commit" pipeline): it drives the three named tries over one
// block's StateUpdates, writes the outer (non-trie) latest-value and
// change-set/history tables those tries are backed by, and returns the
// new compound state root. Grounded on the teacher's
// core/state/db_state_writer.go for the overall shape (accumulate
// per-address writes, append change-sets, then flush) and its
// ethdb/bitmapdb-backed change-set/history split, adapted from an
// account/storage model to Starknet's contract/class model.
package writer

import (
	"fmt"

	"github.com/VictoriaMetrics/fastcache"

	"github.com/katana-sh/katana/core/felt"
	"github.com/katana-sh/katana/core/types"
	"github.com/katana-sh/katana/kv"
	"github.com/katana-sh/katana/kv/blocklist"
	"github.com/katana-sh/katana/kv/tables"
	"github.com/katana-sh/katana/state/tries"
)

// Writer drives InsertStateUpdates across a sequence of blocks, the way
// the teacher's DbStateWriter is a long-lived value reused block after
// block. Its only state is an optional process-wide ContractInfo read
// cache (mirrors DbStateWriter.accountCache) — everything else is
// derived fresh from tx each call.
type Writer struct {
	contractInfoCache *fastcache.Cache
}

// NewWriter returns a Writer with no cache; use SetContractInfoCache to
// attach one shared across many blocks' writes.
func NewWriter() *Writer { return &Writer{} }

// SetContractInfoCache attaches a shared fastcache instance the writer
// consults before falling back to the ContractInfo table, the same role
// DbStateWriter.SetAccountCache plays for account reads.
func (w *Writer) SetContractInfoCache(c *fastcache.Cache) { w.contractInfoCache = c }

func addressKey(address *felt.Felt) []byte {
	b := address.Bytes32()
	return b[:]
}

func feltBytes(f *felt.Felt) []byte {
	b := f.Bytes32()
	return b[:]
}

func beBlock(block uint64) []byte {
	var out [8]byte
	for i := 0; i < 8; i++ {
		out[7-i] = byte(block >> (8 * i))
	}
	return out[:]
}

// AppendChangeHistory records, under key, that block changed key's value
// from preimage, at the ContractInfo/ContractStorage granularity named by
// spec.md §4.11 step 4: block is merged into key's blocklist.Set in
// changeSet, and a dup-sorted block||preimage row is put under key in
// history. (trie.go's appendHistory uses a different History layout:
// non-dup rows keyed identifier||block||leafKey.) It is the exported form
// of appendChangeHistory; nothing else in this module calls it.
func AppendChangeHistory(tx kv.RwTx, changeSet, history tables.Name, key []byte, block uint64, preimage []byte) error {
	return appendChangeHistory(tx, changeSet, history, key, block, preimage)
}

func appendChangeHistory(tx kv.RwTx, changeSet, history tables.Name, key []byte, block uint64, preimage []byte) error {
	c, err := tx.CursorRw(changeSet)
	if err != nil {
		return fmt.Errorf("writer: change-set cursor: %w", err)
	}
	defer c.Close()
	delta := blocklist.New()
	delta.Insert(block)
	if err := blocklist.AppendMergeByOr(c, key, delta); err != nil {
		return fmt.Errorf("writer: append change-set: %w", err)
	}

	hc, err := tx.CursorDupRw(history)
	if err != nil {
		return fmt.Errorf("writer: open history cursor: %w", err)
	}
	defer hc.Close()
	row := append(append([]byte{}, beBlock(block)...), preimage...)
	if err := hc.Put(key, row); err != nil {
		return fmt.Errorf("writer: write history: %w", err)
	}
	return nil
}

// latestContractInfo reads a contract's current (pre-update) nonce and
// class hash, consulting w's cache first and falling back to the
// ContractInfo table — the same row the state reader's latest flavor
// consults (SPEC_FULL.md §4.8).
func (w *Writer) latestContractInfo(tx kv.RoTx, address *felt.Felt) (nonce, classHash *felt.Felt, err error) {
	key := addressKey(address)
	if w.contractInfoCache != nil {
		if v, found := w.contractInfoCache.HasGet(nil, key); found {
			return decodeContractInfo(v, address)
		}
	}
	v, found, err := tx.Get(tables.ContractInfo, key)
	if err != nil {
		return nil, nil, fmt.Errorf("writer: read contract info: %w", err)
	}
	if !found {
		return &felt.Zero, &felt.Zero, nil
	}
	return decodeContractInfo(v, address)
}

// DecodeContractInfo and EncodeContractInfo are exported so state/fork
// can read and write ContractInfo rows with the same encoding a block
// commit uses, without duplicating the layout.
func DecodeContractInfo(v []byte, address *felt.Felt) (nonce, classHash *felt.Felt, err error) {
	return decodeContractInfo(v, address)
}

func EncodeContractInfo(nonce, classHash *felt.Felt) []byte { return encodeContractInfo(nonce, classHash) }

func decodeContractInfo(v []byte, address *felt.Felt) (nonce, classHash *felt.Felt, err error) {
	if len(v) < felt.Bytes*2 {
		return nil, nil, fmt.Errorf("writer: corrupt contract info row for %s", address.String())
	}
	return felt.FromBytes(v[:felt.Bytes]), felt.FromBytes(v[felt.Bytes:]), nil
}

func (w *Writer) cacheContractInfo(address *felt.Felt, encoded []byte) {
	if w.contractInfoCache != nil {
		w.contractInfoCache.Set(addressKey(address), encoded)
	}
}

func encodeContractInfo(nonce, classHash *felt.Felt) []byte {
	out := make([]byte, 0, felt.Bytes*2)
	out = append(out, feltBytes(nonce)...)
	return append(out, feltBytes(classHash)...)
}

// LatestStorageValue is the exported form of latestStorageValue. Within
// this module only state/fork's tests call it, to read back a value the
// backend wrote through.
func LatestStorageValue(tx kv.RoTx, address, key *felt.Felt) (*felt.Felt, error) {
	return latestStorageValue(tx, address, key)
}

// latestStorageValue reads a contract slot's current value from the
// dup-sorted ContractStorage table, whose dup-value is key||value under
// the address row (the erigon-style layout the teacher uses for
// per-account storage: one low-cardinality outer key, many dup rows).
func latestStorageValue(tx kv.RoTx, address, key *felt.Felt) (*felt.Felt, error) {
	c, err := tx.CursorDup(tables.ContractStorage)
	if err != nil {
		return nil, fmt.Errorf("writer: open storage cursor: %w", err)
	}
	defer c.Close()
	keyBytes := feltBytes(key)
	v, err := c.SeekBothRange(addressKey(address), keyBytes)
	if err != nil {
		return nil, fmt.Errorf("writer: seek storage value: %w", err)
	}
	if v == nil || len(v) < felt.Bytes || !bytesEqual(v[:felt.Bytes], keyBytes) {
		return &felt.Zero, nil
	}
	return felt.FromBytes(v[felt.Bytes:]), nil
}

// PutStorageValue is the exported form of putStorageValue, reused by
// state/fork's write-through path so a forked read caches a slot's value
// with the exact same overwrite semantics a block commit uses.
func PutStorageValue(tx kv.RwTx, address, key, value *felt.Felt) error {
	return putStorageValue(tx, address, key, value)
}

// putStorageValue overwrites one (address, key) slot in the dup-sorted
// ContractStorage table: delete the prior dup row if one exists (a plain
// Put on a dup-sort table only ever adds a duplicate, never replaces),
// then insert the new key||value row.
func putStorageValue(tx kv.RwTx, address, key, value *felt.Felt) error {
	c, err := tx.CursorDupRw(tables.ContractStorage)
	if err != nil {
		return fmt.Errorf("writer: open storage cursor: %w", err)
	}
	defer c.Close()

	addr := addressKey(address)
	keyBytes := feltBytes(key)
	existing, err := c.SeekBothRange(addr, keyBytes)
	if err != nil {
		return fmt.Errorf("writer: seek storage slot: %w", err)
	}
	if existing != nil && len(existing) >= felt.Bytes && bytesEqual(existing[:felt.Bytes], keyBytes) {
		if err := c.DeleteCurrent(); err != nil {
			return fmt.Errorf("writer: delete stale storage slot: %w", err)
		}
	}
	row := append(append([]byte{}, keyBytes...), feltBytes(value)...)
	if err := c.Put(addr, row); err != nil {
		return fmt.Errorf("writer: put storage slot: %w", err)
	}
	return nil
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

// InsertStateUpdates implements spec.md §4.7's procedure over one
// block's StateUpdates and returns the new compound state root.
func (w *Writer) InsertStateUpdates(tx kv.RwTx, block uint64, su *types.StateUpdates) (*felt.Felt, error) {
	// Step 1: per-address storage tries, plus the outer ContractStorage
	// latest-value table and its change-set/history.
	storageRoots := make(map[types.FeltKey]*felt.Felt, len(su.StorageUpdates))
	for addrKey, inner := range su.StorageUpdates {
		address := addrKey.Felt()
		st, err := tries.OpenStoragesTrie(tx, address)
		if err != nil {
			return nil, err
		}
		for _, keyKey := range su.StorageUpdateOrder[addrKey] {
			key := keyKey.Felt()
			value := inner[keyKey]
			preimage, err := latestStorageValue(tx, address, key)
			if err != nil {
				return nil, err
			}
			if err := st.Insert(key, value); err != nil {
				return nil, fmt.Errorf("writer: storage trie insert: %w", err)
			}
			if err := putStorageValue(tx, address, key, value); err != nil {
				return nil, err
			}
			changeKey := append(append([]byte{}, addressKey(address)...), feltBytes(key)...)
			if err := appendChangeHistory(tx, tables.StorageChangeSet, tables.StorageChangeHistory, changeKey, block, feltBytes(preimage)); err != nil {
				return nil, err
			}
		}
		root, err := st.Commit(block)
		if err != nil {
			return nil, fmt.Errorf("writer: commit storage trie for %s: %w", address.String(), err)
		}
		storageRoots[addrKey] = root
	}

	// Step 2: ContractsTrie, over the union of every address touched by
	// storage, nonce, deploy or replace updates. Tie-break: replaced_classes
	// wins over deployed_contracts for the same address.
	touched := make(map[types.FeltKey]struct{})
	for k := range su.StorageUpdates {
		touched[k] = struct{}{}
	}
	for k := range su.NonceUpdates {
		touched[k] = struct{}{}
	}
	for k := range su.DeployedContracts {
		touched[k] = struct{}{}
	}
	for k := range su.ReplacedClasses {
		touched[k] = struct{}{}
	}

	ct, err := tries.OpenContractsTrie(tx)
	if err != nil {
		return nil, err
	}
	for addrKey := range touched {
		address := addrKey.Felt()
		curNonce, curClass, err := w.latestContractInfo(tx, address)
		if err != nil {
			return nil, err
		}

		nonce := curNonce
		if n, ok := su.NonceUpdates[addrKey]; ok {
			nonce = n
		}

		classHash := curClass
		if c, ok := su.DeployedContracts[addrKey]; ok {
			classHash = c
		}
		if c, ok := su.ReplacedClasses[addrKey]; ok {
			classHash = c // replaced_classes wins over deployed_contracts
		}

		storageRoot, ok := storageRoots[addrKey]
		if !ok {
			// No storage write touched this address in this block: read its
			// current (unchanged) storage trie root without mutating it.
			st, err := tries.OpenStoragesTrie(tx, address)
			if err != nil {
				return nil, err
			}
			storageRoot = st.Root()
		}

		leaf := tries.ContractLeaf{ClassHash: classHash, StorageRoot: storageRoot, Nonce: nonce}
		if err := ct.Insert(address, leaf); err != nil {
			return nil, fmt.Errorf("writer: contracts trie insert: %w", err)
		}
		encoded := encodeContractInfo(nonce, classHash)
		if err := tx.Put(tables.ContractInfo, addressKey(address), encoded); err != nil {
			return nil, fmt.Errorf("writer: write contract info: %w", err)
		}
		w.cacheContractInfo(address, encoded)

		if !curNonce.Equal(nonce) {
			if err := appendChangeHistory(tx, tables.NonceChangeSet, tables.NonceChangeHistory, addressKey(address), block, feltBytes(curNonce)); err != nil {
				return nil, err
			}
		}
		if !curClass.Equal(classHash) {
			if err := appendChangeHistory(tx, tables.ClassChangeSet, tables.ClassChangeHistory, addressKey(address), block, feltBytes(curClass)); err != nil {
				return nil, err
			}
		}
	}
	contractsRoot, err := ct.Commit(block)
	if err != nil {
		return nil, fmt.Errorf("writer: commit contracts trie: %w", err)
	}

	// Step 3: ClassesTrie, Sierra declarations only (spec.md §4.6 excludes
	// deprecated_declared_classes from the trie).
	clt, err := tries.OpenClassesTrie(tx)
	if err != nil {
		return nil, err
	}
	for classKey, compiledHash := range su.DeclaredClasses {
		classHash := classKey.Felt()
		if err := clt.Insert(classHash, compiledHash); err != nil {
			return nil, fmt.Errorf("writer: classes trie insert: %w", err)
		}
		if err := tx.Put(tables.CompiledClassHashes, addressKey(classHash), feltBytes(compiledHash)); err != nil {
			return nil, fmt.Errorf("writer: write compiled class hash: %w", err)
		}
	}
	classesRoot, err := clt.Commit(block)
	if err != nil {
		return nil, fmt.Errorf("writer: commit classes trie: %w", err)
	}

	// Step 4: the compound root.
	return tries.StateRoot(contractsRoot, classesRoot), nil
}
