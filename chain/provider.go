package chain

import (
	"context"

	"github.com/katana-sh/katana/core/felt"
	"github.com/katana-sh/katana/core/types"
	"github.com/katana-sh/katana/kv"
	"github.com/katana-sh/katana/state/fork"
	"github.com/katana-sh/katana/state/reader"
)

// BlockProvider answers spec.md §4.4's block-identity tables.
type BlockProvider interface {
	Header(tx kv.RoTx, number uint64) (*types.Header, bool, error)
	BlockHash(tx kv.RoTx, number uint64) (*felt.Felt, bool, error)
	BlockNumber(tx kv.RoTx, hash *felt.Felt) (uint64, bool, error)
	BlockStatus(tx kv.RoTx, number uint64) (types.BlockStatus, bool, error)
	BodyIndices(tx kv.RoTx, number uint64) (types.BodyIndices, bool, error)
	LatestBlockNumber(tx kv.RoTx) (uint64, bool, error)
}

// TransactionProvider answers spec.md §4.4's transaction-number tables.
type TransactionProvider interface {
	TransactionByNumber(tx kv.RoTx, txNumber uint64) (types.Transaction, bool, error)
	TransactionByHash(tx kv.RoTx, hash *felt.Felt) (types.Transaction, bool, error)
	TransactionNumberByHash(tx kv.RoTx, hash *felt.Felt) (uint64, bool, error)
	TransactionBlock(tx kv.RoTx, txNumber uint64) (uint64, bool, error)
}

// ReceiptProvider answers receipt and trace lookups, both keyed by the
// same transaction number as TransactionProvider.
type ReceiptProvider interface {
	Receipt(tx kv.RoTx, txNumber uint64) (*types.Receipt, bool, error)
	Trace(tx kv.RoTx, txNumber uint64) (*types.TraceInfo, bool, error)
}

// StateFactoryProvider hands back one of the three StateProvider flavors
// of spec.md §4.8/§4.9, uniformly behind reader.Reader.
type StateFactoryProvider interface {
	StateAtLatest(tx kv.RoTx) reader.Reader
	StateAtBlock(tx kv.RoTx, block uint64) reader.Reader
	StateForked(ctx context.Context, tx kv.RoTx, handle *fork.Handle) reader.Reader
}

// StateUpdateProvider reconstructs the net state diff one block applied.
type StateUpdateProvider interface {
	StateUpdateAt(tx kv.RoTx, block uint64) (*BlockStateDiff, error)
}

// TrieWriter is the commit-side half of SPEC_FULL.md §4.7: *writer.Writer
// satisfies this directly, so InsertBlockWithStatesAndReceipts can accept
// any equivalent implementation without importing state/writer's
// concrete type into the interface surface.
type TrieWriter interface {
	InsertStateUpdates(tx kv.RwTx, block uint64, su *types.StateUpdates) (*felt.Felt, error)
}

// StageCheckpointProvider tracks each pipeline stage's last-processed
// block number, per the StageCheckpoints table (spec.md §4.4) and the
// teacher's own StageState/UnwindState bookkeeping in eth/stagedsync.
type StageCheckpointProvider interface {
	StageCheckpoint(tx kv.RoTx, stage string) (uint64, bool, error)
	SetStageCheckpoint(tx kv.RwTx, stage string, block uint64) error
}

// BlockchainProvider is the union spec.md §6.4 names: every read/write
// surface a node needs against the storage engine, implemented in full
// by *Store.
type BlockchainProvider interface {
	BlockProvider
	TransactionProvider
	ReceiptProvider
	StateFactoryProvider
	StateUpdateProvider
	TrieWriter
	StageCheckpointProvider
}
