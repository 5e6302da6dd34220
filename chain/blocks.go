package chain

import (
	"fmt"

	"github.com/katana-sh/katana/core/felt"
	"github.com/katana-sh/katana/core/types"
	"github.com/katana-sh/katana/kv"
	"github.com/katana-sh/katana/kv/codec"
	"github.com/katana-sh/katana/kv/tables"
)

func (s *Store) Header(tx kv.RoTx, number uint64) (*types.Header, bool, error) {
	v, found, err := tx.Get(tables.Headers, beU64(number))
	if err != nil || !found {
		return nil, found, err
	}
	h, err := codec.DecodeHeader(v)
	return h, true, err
}

func (s *Store) BlockHash(tx kv.RoTx, number uint64) (*felt.Felt, bool, error) {
	v, found, err := tx.Get(tables.BlockHashes, beU64(number))
	if err != nil || !found {
		return nil, found, err
	}
	return felt.FromBytes(v), true, nil
}

func (s *Store) BlockNumber(tx kv.RoTx, hash *felt.Felt) (uint64, bool, error) {
	v, found, err := tx.Get(tables.BlockNumbers, feltBytes(hash))
	if err != nil || !found {
		return 0, found, err
	}
	n, err := decodeU64(v)
	return n, true, err
}

func (s *Store) BlockStatus(tx kv.RoTx, number uint64) (types.BlockStatus, bool, error) {
	v, found, err := tx.Get(tables.BlockStatusses, beU64(number))
	if err != nil || !found {
		return 0, found, err
	}
	if len(v) != 1 {
		return 0, false, fmt.Errorf("chain: corrupt block status row for block %d", number)
	}
	return types.BlockStatus(v[0]), true, nil
}

func (s *Store) BodyIndices(tx kv.RoTx, number uint64) (types.BodyIndices, bool, error) {
	v, found, err := tx.Get(tables.BlockBodyIndices, beU64(number))
	if err != nil || !found {
		return types.BodyIndices{}, found, err
	}
	if len(v) != 16 {
		return types.BodyIndices{}, false, fmt.Errorf("chain: corrupt body indices row for block %d", number)
	}
	offset, err := decodeU64(v[:8])
	if err != nil {
		return types.BodyIndices{}, false, err
	}
	count, err := decodeU64(v[8:])
	if err != nil {
		return types.BodyIndices{}, false, err
	}
	return types.BodyIndices{TxOffset: offset, TxCount: count}, true, nil
}

// LatestBlockNumber walks the Headers table backwards from its last key,
// there being no separate counter row for it — Headers is append-only
// and keyed by contiguous block number, so its last key is the tip.
func (s *Store) LatestBlockNumber(tx kv.RoTx) (uint64, bool, error) {
	c, err := tx.Cursor(tables.Headers)
	if err != nil {
		return 0, false, fmt.Errorf("chain: open headers cursor: %w", err)
	}
	defer c.Close()
	k, _, err := c.Last()
	if err != nil {
		return 0, false, fmt.Errorf("chain: seek last header: %w", err)
	}
	if k == nil {
		return 0, false, nil
	}
	n, err := decodeU64(k)
	return n, true, err
}

func (s *Store) TransactionByNumber(tx kv.RoTx, txNumber uint64) (types.Transaction, bool, error) {
	v, found, err := tx.Get(tables.Transactions, beU64(txNumber))
	if err != nil || !found {
		return nil, found, err
	}
	t, err := codec.DecodeTx(v)
	return t, true, err
}

func (s *Store) TransactionByHash(tx kv.RoTx, hash *felt.Felt) (types.Transaction, bool, error) {
	n, found, err := s.TransactionNumberByHash(tx, hash)
	if err != nil || !found {
		return nil, found, err
	}
	return s.TransactionByNumber(tx, n)
}

func (s *Store) TransactionNumberByHash(tx kv.RoTx, hash *felt.Felt) (uint64, bool, error) {
	v, found, err := tx.Get(tables.TxNumbers, feltBytes(hash))
	if err != nil || !found {
		return 0, found, err
	}
	n, err := decodeU64(v)
	return n, true, err
}

func (s *Store) TransactionBlock(tx kv.RoTx, txNumber uint64) (uint64, bool, error) {
	v, found, err := tx.Get(tables.TxBlocks, beU64(txNumber))
	if err != nil || !found {
		return 0, found, err
	}
	n, err := decodeU64(v)
	return n, true, err
}

func (s *Store) Receipt(tx kv.RoTx, txNumber uint64) (*types.Receipt, bool, error) {
	v, found, err := tx.Get(tables.Receipts, beU64(txNumber))
	if err != nil || !found {
		return nil, found, err
	}
	r, err := codec.DecodeReceipt(v)
	return r, true, err
}

func (s *Store) Trace(tx kv.RoTx, txNumber uint64) (*types.TraceInfo, bool, error) {
	v, found, err := tx.Get(tables.TxTraces, beU64(txNumber))
	if err != nil || !found {
		return nil, found, err
	}
	t, err := codec.DecodeTrace(v)
	return t, true, err
}
