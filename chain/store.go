package chain

import (
	"context"
	"fmt"

	"github.com/katana-sh/katana/core/felt"
	"github.com/katana-sh/katana/core/types"
	"github.com/katana-sh/katana/kv"
	"github.com/katana-sh/katana/kv/codec"
	"github.com/katana-sh/katana/kv/tables"
	"github.com/katana-sh/katana/state/fork"
	"github.com/katana-sh/katana/state/reader"
	"github.com/katana-sh/katana/state/writer"
)

// Store is the concrete BlockchainProvider: a thin dispatcher over kv.Env
// plus a state/writer.Writer, the way the teacher's DbStateWriter is a
// long-lived value threaded through every block's commit rather than
// rebuilt each call.
type Store struct {
	env    kv.Env
	writer *writer.Writer
}

func New(env kv.Env) *Store {
	return &Store{env: env, writer: writer.NewWriter()}
}

var _ BlockchainProvider = (*Store)(nil)

func (s *Store) StateAtLatest(tx kv.RoTx) reader.Reader { return reader.NewLatest(tx) }

func (s *Store) StateAtBlock(tx kv.RoTx, block uint64) reader.Reader {
	return reader.NewHistorical(tx, block)
}

func (s *Store) StateForked(ctx context.Context, tx kv.RoTx, handle *fork.Handle) reader.Reader {
	return reader.NewForked(ctx, tx, handle)
}

func (s *Store) StageCheckpoint(tx kv.RoTx, stage string) (uint64, bool, error) {
	v, found, err := tx.Get(tables.StageCheckpoints, []byte(stage))
	if err != nil || !found {
		return 0, found, err
	}
	n, err := decodeU64(v)
	return n, true, err
}

func (s *Store) SetStageCheckpoint(tx kv.RwTx, stage string, block uint64) error {
	if err := tx.Put(tables.StageCheckpoints, []byte(stage), beU64(block)); err != nil {
		return fmt.Errorf("chain: write stage checkpoint %q: %w", stage, err)
	}
	return nil
}

func (s *Store) InsertStateUpdates(tx kv.RwTx, block uint64, su *types.StateUpdates) (*felt.Felt, error) {
	return s.writer.InsertStateUpdates(tx, block, su)
}

// BlockInsert bundles spec.md §4.11's "block, state_updates_with_classes,
// receipts, traces" argument tuple into one value.
type BlockInsert struct {
	Header       types.Header
	Transactions []types.Transaction
	Receipts     []types.Receipt
	Traces       []types.TraceInfo
	Status       types.BlockStatus

	StateUpdates *types.StateUpdates
	// NewClasses carries the body of every class newly declared in this
	// block, Sierra and legacy alike — state/writer only ever sees the
	// class-hash/compiled-class-hash pair the classes trie needs, never
	// the class body itself, so that table write belongs here.
	NewClasses map[types.FeltKey]*types.ContractClass
}

// InsertBlockWithStatesAndReceipts implements spec.md §4.11's atomic
// pipeline in one RwTx: any step's error aborts the whole transaction,
// leaving no partial state observable (env.Update's contract).
func (s *Store) InsertBlockWithStatesAndReceipts(ctx context.Context, in BlockInsert) error {
	return s.env.Update(ctx, func(tx kv.RwTx) error {
		return s.insert(tx, in)
	})
}

func (s *Store) insert(tx kv.RwTx, in BlockInsert) error {
	block := in.Header.Number
	if len(in.Transactions) != len(in.Receipts) {
		return fmt.Errorf("chain: block %d: %d transactions but %d receipts", block, len(in.Transactions), len(in.Receipts))
	}

	// Step 1: allocate contiguous transaction numbers starting at
	// next_tx_number, derived from the previous block's body indices
	// (block 0 starts the ledger at tx number 0).
	nextTxNumber := uint64(0)
	if block > 0 {
		prev, found, err := s.BodyIndices(tx, block-1)
		if err != nil {
			return fmt.Errorf("chain: read previous body indices: %w", err)
		}
		if found {
			nextTxNumber = prev.TxOffset + prev.TxCount
		}
	}

	// Step 3: newly-declared class bodies. CompiledClassHashes for Sierra
	// classes is written by InsertStateUpdates below, keyed off the same
	// StateUpdates.DeclaredClasses map — not duplicated here.
	for classKey, class := range in.NewClasses {
		encoded, err := codec.EncodeClass(class)
		if err != nil {
			return fmt.Errorf("chain: encode class %s: %w", classKey.Felt().String(), err)
		}
		if err := tx.Put(tables.Classes, feltBytes(classKey.Felt()), encoded); err != nil {
			return fmt.Errorf("chain: write class %s: %w", classKey.Felt().String(), err)
		}
	}

	// Step 4/5: drive the state-update writer (SPEC_FULL.md §4.7) and
	// take the compound root it returns before the header is written, so
	// the header committed below always carries the post-block root.
	su := in.StateUpdates
	if su == nil {
		su = types.NewStateUpdates()
	}
	root, err := s.writer.InsertStateUpdates(tx, block, su)
	if err != nil {
		return fmt.Errorf("chain: insert state updates for block %d: %w", block, err)
	}
	header := in.Header
	header.StateRoot = root

	// Step 2: headers, hashes, indices, statuses, tx rows, tx hashes/
	// numbers, tx->block mapping, receipts, traces.
	encodedHeader, err := codec.EncodeHeader(&header)
	if err != nil {
		return fmt.Errorf("chain: encode header for block %d: %w", block, err)
	}
	if err := tx.Put(tables.Headers, beU64(block), encodedHeader); err != nil {
		return fmt.Errorf("chain: write header for block %d: %w", block, err)
	}
	if err := tx.Put(tables.BlockHashes, beU64(block), feltBytes(header.Hash)); err != nil {
		return fmt.Errorf("chain: write block hash for block %d: %w", block, err)
	}
	if err := tx.Put(tables.BlockNumbers, feltBytes(header.Hash), beU64(block)); err != nil {
		return fmt.Errorf("chain: write block number for block %d: %w", block, err)
	}
	bodyRow := append(append([]byte{}, beU64(nextTxNumber)...), beU64(uint64(len(in.Transactions)))...)
	if err := tx.Put(tables.BlockBodyIndices, beU64(block), bodyRow); err != nil {
		return fmt.Errorf("chain: write body indices for block %d: %w", block, err)
	}
	if err := tx.Put(tables.BlockStatusses, beU64(block), []byte{byte(in.Status)}); err != nil {
		return fmt.Errorf("chain: write block status for block %d: %w", block, err)
	}

	for i, txn := range in.Transactions {
		txNumber := nextTxNumber + uint64(i)
		encodedTx, err := codec.EncodeTx(txn)
		if err != nil {
			return fmt.Errorf("chain: encode tx %d: %w", txNumber, err)
		}
		if err := tx.Put(tables.Transactions, beU64(txNumber), encodedTx); err != nil {
			return fmt.Errorf("chain: write tx %d: %w", txNumber, err)
		}
		if err := tx.Put(tables.TxHashes, beU64(txNumber), feltBytes(txn.TxHash())); err != nil {
			return fmt.Errorf("chain: write tx hash %d: %w", txNumber, err)
		}
		if err := tx.Put(tables.TxNumbers, feltBytes(txn.TxHash()), beU64(txNumber)); err != nil {
			return fmt.Errorf("chain: write tx number for hash of tx %d: %w", txNumber, err)
		}
		if err := tx.Put(tables.TxBlocks, beU64(txNumber), beU64(block)); err != nil {
			return fmt.Errorf("chain: write tx block mapping %d: %w", txNumber, err)
		}
		encodedReceipt, err := codec.EncodeReceipt(&in.Receipts[i])
		if err != nil {
			return fmt.Errorf("chain: encode receipt %d: %w", txNumber, err)
		}
		if err := tx.Put(tables.Receipts, beU64(txNumber), encodedReceipt); err != nil {
			return fmt.Errorf("chain: write receipt %d: %w", txNumber, err)
		}
		if i < len(in.Traces) {
			encodedTrace, err := codec.EncodeTrace(&in.Traces[i])
			if err != nil {
				return fmt.Errorf("chain: encode trace %d: %w", txNumber, err)
			}
			if err := tx.Put(tables.TxTraces, beU64(txNumber), encodedTrace); err != nil {
				return fmt.Errorf("chain: write trace %d: %w", txNumber, err)
			}
		}
	}

	return nil
}
