// Package tables declares the storage engine's fixed table catalogue
// (SPEC_FULL.md §4.4), the way the teacher declares its bucket list in
// common/dbutils/bucket.go: a flat set of names plus a config map
// recording dup-sort flags, kept sorted so iteration order and metrics
// reporting is stable across runs.
package tables

import "sort"

// Name identifies one table. Values are stable across versions — they
// name the engine's sub-databases on disk and are surfaced verbatim by
// `db stats`.
type Name string

const (
	Headers           Name = "Headers"
	BlockHashes       Name = "BlockHashes"
	BlockNumbers      Name = "BlockNumbers"
	BlockBodyIndices  Name = "BlockBodyIndices"
	BlockStatusses    Name = "BlockStatusses"
	Transactions      Name = "Transactions"
	TxHashes          Name = "TxHashes"
	TxNumbers         Name = "TxNumbers"
	TxBlocks          Name = "TxBlocks"
	TxTraces          Name = "TxTraces"
	Receipts          Name = "Receipts"
	Classes           Name = "Classes"
	CompiledClassHashes Name = "CompiledClassHashes"
	ContractInfo      Name = "ContractInfo"
	ContractStorage   Name = "ContractStorage"

	NonceChangeSet       Name = "NonceChangeSet"
	NonceChangeHistory   Name = "NonceChangeHistory"
	ClassChangeSet       Name = "ClassChangeSet"
	ClassChangeHistory   Name = "ClassChangeHistory"
	StorageChangeSet     Name = "StorageChangeSet"
	StorageChangeHistory Name = "StorageChangeHistory"

	ClassesTrie    Name = "ClassesTrie"
	ContractsTrie  Name = "ContractsTrie"
	StoragesTrie   Name = "StoragesTrie"

	ClassesTrieHistory   Name = "ClassesTrieHistory"
	ContractsTrieHistory Name = "ContractsTrieHistory"
	StoragesTrieHistory  Name = "StoragesTrieHistory"

	ClassesTrieChangeSet   Name = "ClassesTrieChangeSet"
	ContractsTrieChangeSet Name = "ContractsTrieChangeSet"
	StoragesTrieChangeSet  Name = "StoragesTrieChangeSet"

	StageCheckpoints Name = "StageCheckpoints"

	// Migrations tracks which schema migrations have already run,
	// mirroring the teacher's dbutils.Migrations bucket exactly.
	Migrations Name = "Migrations"
)

// Config describes a table's physical layout.
type Config struct {
	// DupSort marks a table where multiple values may share a key,
	// iterated in (key, subkey) lexicographic order.
	DupSort bool
}

// All lists every table in the catalogue, sorted by name so that
// iteration order (used by Env.Stats and the CLI's `db stats`) is
// deterministic.
var All = sortedNames([]Name{
	Headers, BlockHashes, BlockNumbers, BlockBodyIndices, BlockStatusses,
	Transactions, TxHashes, TxNumbers, TxBlocks, TxTraces, Receipts,
	Classes, CompiledClassHashes, ContractInfo, ContractStorage,
	NonceChangeSet, NonceChangeHistory,
	ClassChangeSet, ClassChangeHistory,
	StorageChangeSet, StorageChangeHistory,
	ClassesTrie, ContractsTrie, StoragesTrie,
	ClassesTrieHistory, ContractsTrieHistory, StoragesTrieHistory,
	ClassesTrieChangeSet, ContractsTrieChangeSet, StoragesTrieChangeSet,
	StageCheckpoints, Migrations,
})

// Configs maps every table in All to its Config. Tables absent from this
// map default to the zero Config (not dup-sort) — mirroring the teacher's
// reinit() backfill of BucketsConfigs for tables without an explicit entry.
var Configs = map[Name]Config{
	ContractStorage:      {DupSort: true},
	NonceChangeHistory:   {DupSort: true},
	ClassChangeHistory:   {DupSort: true},
	StorageChangeHistory: {DupSort: true},
	ClassesTrieHistory:   {DupSort: true},
	ContractsTrieHistory: {DupSort: true},
	StoragesTrieHistory:  {DupSort: true},
}

// NumTables is the size of the catalogue.
var NumTables = len(All)

func sortedNames(names []Name) []Name {
	out := append([]Name(nil), names...)
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// TrieTableSet names the three tables owned by one named trie (classes,
// contracts, or per-address storages), used by trie.Trie and prune.Pruner
// to address the right table trio without a switch statement at every
// call site.
type TrieTableSet struct {
	Nodes      Name
	History    Name
	ChangeSet  Name
}

var (
	ClassesTrieTables = TrieTableSet{ClassesTrie, ClassesTrieHistory, ClassesTrieChangeSet}
	ContractsTrieTables = TrieTableSet{ContractsTrie, ContractsTrieHistory, ContractsTrieChangeSet}
	StoragesTrieTables = TrieTableSet{StoragesTrie, StoragesTrieHistory, StoragesTrieChangeSet}
)

// AllTrieTables lists the three trie table-sets the pruner iterates.
var AllTrieTables = []TrieTableSet{ClassesTrieTables, ContractsTrieTables, StoragesTrieTables}
