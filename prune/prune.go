// Package prune implements SPEC_FULL.md §4.10: the offline batch pruner
// that removes historical trie data while preserving either the latest
// trie state (Latest) or the last N blocks of history (KeepLastN).
// Grounded on the teacher's own count-then-rewrite batch idiom
// (cmd/state/generate/regenerate_index.go counts entries before
// rebuilding an index; eth/stagedsync/stage_log_index.go walks
// change-set rows under one transaction rather than many small ones).
package prune

import (
	"bytes"
	"context"
	"fmt"

	"github.com/katana-sh/katana/core/felt"
	"github.com/katana-sh/katana/kv"
	"github.com/katana-sh/katana/kv/blocklist"
	"github.com/katana-sh/katana/kv/tables"
	"github.com/katana-sh/katana/metrics"
)

// Mode selects how much trie history a Request removes.
type Mode int

const (
	Latest Mode = iota
	KeepLastN
)

func (m Mode) String() string {
	if m == KeepLastN {
		return "keep_last"
	}
	return "latest"
}

// Request names one pruning operation. LatestBlock is the chain tip at
// the time of the run; the pruner has no notion of "current block" on
// its own, so the caller (cmd/katana-db, once the chain package exists
// to answer it) always supplies it.
type Request struct {
	Mode        Mode
	KeepLast    uint64 // meaningful only when Mode == KeepLastN
	LatestBlock uint64
}

// ErrNoop marks a request that removes nothing — KeepLastN with N at or
// past the tip, or pruning an empty chain. The CLI reports this as a
// warning per spec.md §4.10, not a failure.
var ErrNoop = fmt.Errorf("prune: no-op, nothing to remove")

// cutoff returns the highest block number whose per-block root pointers
// are removed, and (for KeepLastN only) whose history/change-set rows
// are removed. For Latest, this is latest_block-1: enough to zero every
// historical root below the tip while leaving the tip's own root pointer
// untouched. Latest's History/ChangeSet tables are NOT bounded by this
// cutoff — spec.md §4.10 defines Latest as clearing those six tables
// unconditionally, tip row included, which Count/Mutate apply directly
// rather than through cutoff(); see DESIGN.md.
func (r Request) cutoff() (uint64, bool) {
	switch r.Mode {
	case Latest:
		if r.LatestBlock == 0 {
			return 0, false
		}
		return r.LatestBlock - 1, true
	case KeepLastN:
		if r.KeepLast >= r.LatestBlock {
			return 0, false
		}
		c := r.LatestBlock - r.KeepLast
		if c == 0 {
			return 0, false
		}
		return c, true
	default:
		return 0, false
	}
}

// PruningStats maps a table name to the number of rows removed from it —
// spec.md §8 property 1 compares a Count call's stats against a Mutate
// call's bitwise.
type PruningStats map[tables.Name]uint64

func (s PruningStats) add(t tables.Name, n uint64) {
	if n == 0 {
		return
	}
	s[t] += n
}

// identifierSet groups the trie-leaf identifier byte strings the pruner
// must sweep, split by which trie they belong to since each trie's
// History/ChangeSet tables only ever hold rows for its own identifiers.
type identifierSet struct {
	classes   [][]byte
	contracts [][]byte
	storages  [][]byte
}

// collectIdentifiers discovers every identifier a prune pass must visit.
// classes/contracts are fixed; storage trie identifiers are one per
// address, discovered via ContractInfo — every address a storage write
// ever touched also gets a ContractInfo row (state/writer's touched-set
// union in InsertStateUpdates step 2), so this enumeration is exhaustive.
func collectIdentifiers(tx kv.RoTx) (identifierSet, error) {
	ids := identifierSet{
		classes:   [][]byte{[]byte("classes")},
		contracts: [][]byte{[]byte("contracts")},
	}
	c, err := tx.Cursor(tables.ContractInfo)
	if err != nil {
		return ids, fmt.Errorf("prune: open contract info cursor: %w", err)
	}
	defer c.Close()
	k, _, err := c.First()
	for {
		if err != nil {
			return ids, fmt.Errorf("prune: scan contract info: %w", err)
		}
		if k == nil {
			break
		}
		address := felt.FromBytes(k)
		ids.storages = append(ids.storages, []byte("storage:"+address.String()))
		k, _, err = c.Next()
	}
	return ids, nil
}

func beDecode(b []byte) uint64 {
	var v uint64
	for i := 0; i < 8; i++ {
		v = v<<8 | uint64(b[i])
	}
	return v
}

// matchIdentifier reports whether key belongs to one of ids, given the
// fixed number of bytes that follow the identifier in that table's key
// layout. Exact-length matching (not just HasPrefix) is required: two
// address identifiers can be byte-prefixes of one another since
// felt.String renders without zero-padding (e.g. "storage:0x1" is a
// literal prefix of "storage:0x1a"), but they can never also share a
// total key length, so prefix+length together are unambiguous.
func matchIdentifier(key []byte, ids [][]byte, suffixLen int) (rest []byte, ok bool) {
	for _, id := range ids {
		if len(key) == len(id)+suffixLen && bytes.HasPrefix(key, id) {
			return key[len(id):], true
		}
	}
	return nil, false
}

const historySuffixLen = 8 + felt.Bytes // block || leaf key, per trie.go's historyRowKey

// changeSetSuffixLen is the leaf key plus the 8-byte shard suffix every
// change-set row carries on disk (kv/blocklist/shards.go's shardKey),
// since AppendMergeByOr/TruncateRange both key change-set rows as
// (identifier || leaf key || shard) rather than one row per identifier.
const changeSetSuffixLen = felt.Bytes + 8
const blockRootSuffix = ":blockroot:"

func countHistory(tx kv.RoTx, table tables.Name, ids [][]byte, cutoff uint64) (uint64, error) {
	c, err := tx.Cursor(table)
	if err != nil {
		return 0, fmt.Errorf("prune: open %s cursor: %w", table, err)
	}
	defer c.Close()
	var n uint64
	k, _, err := c.First()
	for {
		if err != nil {
			return 0, fmt.Errorf("prune: scan %s: %w", table, err)
		}
		if k == nil {
			break
		}
		if rest, ok := matchIdentifier(k, ids, historySuffixLen); ok && beDecode(rest[:8]) <= cutoff {
			n++
		}
		k, _, err = c.Next()
	}
	return n, nil
}

func mutateHistory(tx kv.RwTx, table tables.Name, ids [][]byte, cutoff uint64) (uint64, error) {
	c, err := tx.CursorRw(table)
	if err != nil {
		return 0, fmt.Errorf("prune: open %s cursor: %w", table, err)
	}
	defer c.Close()
	var n uint64
	k, _, err := c.First()
	for {
		if err != nil {
			return n, fmt.Errorf("prune: scan %s: %w", table, err)
		}
		if k == nil {
			break
		}
		if rest, ok := matchIdentifier(k, ids, historySuffixLen); ok && beDecode(rest[:8]) <= cutoff {
			if err := c.DeleteCurrent(); err != nil {
				return n, fmt.Errorf("prune: delete %s row: %w", table, err)
			}
			n++
		}
		k, _, err = c.Next()
	}
	return n, nil
}

// changeSetKeys walks table's physical (sharded) rows and returns the
// distinct logical keys (identifier||leaf key, with the 8-byte shard
// suffix stripped) belonging to ids — one entry per key regardless of
// how many shards that key's set is currently split across.
func changeSetKeys(tx kv.RoTx, table tables.Name, ids [][]byte) ([][]byte, error) {
	c, err := tx.Cursor(table)
	if err != nil {
		return nil, fmt.Errorf("prune: open %s cursor: %w", table, err)
	}
	defer c.Close()
	seen := map[string]bool{}
	var keys [][]byte
	k, _, err := c.First()
	for {
		if err != nil {
			return nil, fmt.Errorf("prune: scan %s: %w", table, err)
		}
		if k == nil {
			break
		}
		if _, ok := matchIdentifier(k, ids, changeSetSuffixLen); ok {
			logical := append([]byte(nil), k[:len(k)-8]...)
			if s := string(logical); !seen[s] {
				seen[s] = true
				keys = append(keys, logical)
			}
		}
		k, _, err = c.Next()
	}
	return keys, nil
}

// rankBelow returns the number of elements in [0, to) — the same count
// blocklist.TruncateRange(c, key, 0, to) would remove, without mutating.
func rankBelow(set *blocklist.Set, to uint64) uint64 {
	if to == 0 {
		return 0
	}
	return set.Rank(to - 1)
}

// countChangeSet reports how many change-set entries fall in [0, to).
// to is exclusive: callers pass cutoff+1 for a KeepLastN-style boundary,
// or blocklist.MaxBlock for Latest mode's unconditional full clear.
func countChangeSet(tx kv.RoTx, table tables.Name, ids [][]byte, to uint64) (uint64, error) {
	keys, err := changeSetKeys(tx, table, ids)
	if err != nil {
		return 0, err
	}
	c, err := tx.Cursor(table)
	if err != nil {
		return 0, fmt.Errorf("prune: open %s cursor: %w", table, err)
	}
	defer c.Close()
	var n uint64
	for _, key := range keys {
		set, err := blocklist.Get(c, key, 0, blocklist.MaxBlock)
		if err != nil {
			return n, fmt.Errorf("prune: read %s change-set: %w", table, err)
		}
		n += rankBelow(set, to)
	}
	return n, nil
}

// mutateChangeSet truncates every logical change-set key of table inside
// the caller's write transaction. Rows are not grouped into batches:
// nothing is committed until Mutate's Update returns. to is exclusive,
// same convention as countChangeSet.
func mutateChangeSet(tx kv.RwTx, table tables.Name, ids [][]byte, to uint64) (uint64, error) {
	keys, err := changeSetKeys(tx, table, ids)
	if err != nil {
		return 0, err
	}
	c, err := tx.CursorRw(table)
	if err != nil {
		return 0, fmt.Errorf("prune: open %s cursor: %w", table, err)
	}
	defer c.Close()
	var n uint64
	for _, key := range keys {
		removed, err := blocklist.TruncateRange(c, key, 0, to)
		if err != nil {
			return n, fmt.Errorf("prune: truncate %s change-set: %w", table, err)
		}
		n += removed
	}
	return n, nil
}

// countBlockRoots/mutateBlockRoots clear the per-block root pointer rows
// trie.Commit writes into the Nodes table alongside actual node data
// (trie.BlockRootKey). Pruning only the History/ChangeSet tables leaves
// these pointers behind, which would make RootAt keep answering
// historical queries with the pre-prune root — so the pruner must also
// clear them to uphold spec.md §4.10's "historical trie-root queries
// return the zero felt" guarantee. See DESIGN.md.
func countBlockRoots(tx kv.RoTx, nodesTable tables.Name, ids [][]byte, cutoff uint64) (uint64, error) {
	c, err := tx.Cursor(nodesTable)
	if err != nil {
		return 0, fmt.Errorf("prune: open %s cursor: %w", nodesTable, err)
	}
	defer c.Close()
	var n uint64
	k, _, err := c.First()
	for {
		if err != nil {
			return 0, fmt.Errorf("prune: scan %s: %w", nodesTable, err)
		}
		if k == nil {
			break
		}
		if block, ok := matchBlockRoot(k, ids); ok && block <= cutoff {
			n++
		}
		k, _, err = c.Next()
	}
	return n, nil
}

func mutateBlockRoots(tx kv.RwTx, nodesTable tables.Name, ids [][]byte, cutoff uint64) (uint64, error) {
	c, err := tx.CursorRw(nodesTable)
	if err != nil {
		return 0, fmt.Errorf("prune: open %s cursor: %w", nodesTable, err)
	}
	defer c.Close()
	var n uint64
	k, _, err := c.First()
	for {
		if err != nil {
			return n, fmt.Errorf("prune: scan %s: %w", nodesTable, err)
		}
		if k == nil {
			break
		}
		if block, ok := matchBlockRoot(k, ids); ok && block <= cutoff {
			if err := c.DeleteCurrent(); err != nil {
				return n, fmt.Errorf("prune: delete %s row: %w", nodesTable, err)
			}
			n++
		}
		k, _, err = c.Next()
	}
	return n, nil
}

func matchBlockRoot(key []byte, ids [][]byte) (block uint64, ok bool) {
	suffix := []byte(blockRootSuffix)
	for _, id := range ids {
		want := len(id) + len(suffix) + 8
		if len(key) != want || !bytes.HasPrefix(key, id) {
			continue
		}
		if !bytes.Equal(key[len(id):len(id)+len(suffix)], suffix) {
			continue
		}
		return beDecode(key[len(id)+len(suffix):]), true
	}
	return 0, false
}

// Pruner performs the two-phase operation of spec.md §4.10 against one
// environment.
type Pruner struct{ env kv.Env }

func New(env kv.Env) *Pruner { return &Pruner{env: env} }

type trieSet struct {
	nodes, history, changeSet tables.Name
	ids                       func(identifierSet) [][]byte
}

func trieSets() []trieSet {
	return []trieSet{
		{tables.ClassesTrie, tables.ClassesTrieHistory, tables.ClassesTrieChangeSet, func(i identifierSet) [][]byte { return i.classes }},
		{tables.ContractsTrie, tables.ContractsTrieHistory, tables.ContractsTrieChangeSet, func(i identifierSet) [][]byte { return i.contracts }},
		{tables.StoragesTrie, tables.StoragesTrieHistory, tables.StoragesTrieChangeSet, func(i identifierSet) [][]byte { return i.storages }},
	}
}

// Count runs the read-only phase: the PruningStats it returns must equal
// exactly what a following Mutate call removes, provided nothing else
// writes to env between the two calls — the documented precondition of
// an offline batch pruner.
func (p *Pruner) Count(ctx context.Context, req Request) (PruningStats, error) {
	cutoff, ok := req.cutoff()
	if !ok {
		return nil, ErrNoop
	}
	// Latest clears every History/ChangeSet row unconditionally (spec.md
	// §4.10) — the tip's own row does not survive, unlike KeepLastN's
	// literal cutoff. The LatestBlock-1 cutoff above still governs the
	// block-root pointer cleanup below, which it was defined for.
	historyCutoff, changeSetTo := cutoff, cutoff+1
	if req.Mode == Latest {
		historyCutoff, changeSetTo = blocklist.MaxBlock, blocklist.MaxBlock
	}
	stats := make(PruningStats)
	err := p.env.View(ctx, func(tx kv.RoTx) error {
		ids, err := collectIdentifiers(tx)
		if err != nil {
			return err
		}
		for _, s := range trieSets() {
			tids := s.ids(ids)
			hd, err := countHistory(tx, s.history, tids, historyCutoff)
			if err != nil {
				return err
			}
			stats.add(s.history, hd)

			cd, err := countChangeSet(tx, s.changeSet, tids, changeSetTo)
			if err != nil {
				return err
			}
			stats.add(s.changeSet, cd)

			rd, err := countBlockRoots(tx, s.nodes, tids, cutoff)
			if err != nil {
				return err
			}
			stats.add(s.nodes, rd)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return stats, nil
}

// Mutate runs the single-transaction mutate phase, returning the
// PruningStats actually removed.
func (p *Pruner) Mutate(ctx context.Context, req Request) (PruningStats, error) {
	cutoff, ok := req.cutoff()
	if !ok {
		return nil, ErrNoop
	}
	// See the matching comment in Count: Latest clears History/ChangeSet
	// unconditionally, independent of the LatestBlock-1 cutoff used below
	// for block-root pointers only.
	historyCutoff, changeSetTo := cutoff, cutoff+1
	if req.Mode == Latest {
		historyCutoff, changeSetTo = blocklist.MaxBlock, blocklist.MaxBlock
	}
	stats := make(PruningStats)
	err := p.env.Update(ctx, func(tx kv.RwTx) error {
		ids, err := collectIdentifiers(tx)
		if err != nil {
			return err
		}
		for _, s := range trieSets() {
			tids := s.ids(ids)
			hd, err := mutateHistory(tx, s.history, tids, historyCutoff)
			if err != nil {
				return err
			}
			stats.add(s.history, hd)

			cd, err := mutateChangeSet(tx, s.changeSet, tids, changeSetTo)
			if err != nil {
				return err
			}
			stats.add(s.changeSet, cd)

			rd, err := mutateBlockRoots(tx, s.nodes, tids, cutoff)
			if err != nil {
				return err
			}
			stats.add(s.nodes, rd)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	metrics.RecordPruneRun(req.Mode.String(), stats)
	return stats, nil
}
