package chain

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/katana-sh/katana/core/felt"
	"github.com/katana-sh/katana/core/types"
	"github.com/katana-sh/katana/kv"
	"github.com/katana-sh/katana/kv/lmdbkv"
)

func openTestEnv(t *testing.T) kv.Env {
	t.Helper()
	env, err := lmdbkv.Open(t.TempDir(), kv.RW)
	require.NoError(t, err)
	t.Cleanup(func() { env.Close() })
	return env
}

func makeTx(hash int64, nonce int64) types.Transaction {
	return &types.InvokeV1{
		Common: types.Common{
			Kind:      types.KindInvokeV1,
			Hash:      felt.New(hash),
			ChainID:   felt.New(1),
			Nonce:     felt.New(nonce),
			Signature: []*felt.Felt{felt.New(11), felt.New(22)},
			Calldata:  []*felt.Felt{felt.New(33)},
		},
		SenderAddress: felt.New(100),
		MaxFee:        felt.New(1000),
	}
}

func makeReceipt(hash int64) types.Receipt {
	return types.Receipt{
		TxKind: types.KindInvokeV1,
		TxHash: felt.New(hash),
		Fee:    types.FeeInfo{Amount: felt.New(10), Unit: types.FeeUnitFri},
	}
}

// TestInsertBlockWithStatesAndReceiptsFirstBlock drives the happy path of
// spec.md §4.11: a genesis block deploying a contract and declaring its
// class, with every read-side provider checked afterwards.
func TestInsertBlockWithStatesAndReceiptsFirstBlock(t *testing.T) {
	env := openTestEnv(t)
	store := New(env)

	address := felt.New(1)
	classHash := felt.New(9)
	storageKey := felt.New(2)

	su := types.NewStateUpdates()
	su.DeployedContracts[types.NewFeltKey(address)] = classHash
	su.DeclaredClasses[types.NewFeltKey(classHash)] = felt.New(77)
	su.SetStorage(address, storageKey, felt.New(42))

	class := &types.ContractClass{Kind: types.ClassKindSierra, ContractClassVersion: "0.1.0"}

	header := types.Header{
		Number:     0,
		Hash:       felt.New(500),
		ParentHash: &felt.Zero,
		Timestamp:  1000,
	}
	txn := makeTx(200, 0)
	receipt := makeReceipt(200)

	err := store.InsertBlockWithStatesAndReceipts(context.Background(), BlockInsert{
		Header:       header,
		Transactions: []types.Transaction{txn},
		Receipts:     []types.Receipt{receipt},
		Traces:       []types.TraceInfo{{Raw: []byte("trace-0")}},
		Status:       types.AcceptedOnL2,
		StateUpdates: su,
		NewClasses:   map[types.FeltKey]*types.ContractClass{types.NewFeltKey(classHash): class},
	})
	require.NoError(t, err)

	require.NoError(t, env.View(context.Background(), func(tx kv.RoTx) error {
		h, found, err := store.Header(tx, 0)
		require.NoError(t, err)
		require.True(t, found)
		require.False(t, h.StateRoot.IsZero(), "writer must have populated a non-zero root")

		hash, found, err := store.BlockHash(tx, 0)
		require.NoError(t, err)
		require.True(t, found)
		require.True(t, hash.Equal(header.Hash))

		num, found, err := store.BlockNumber(tx, header.Hash)
		require.NoError(t, err)
		require.True(t, found)
		require.EqualValues(t, 0, num)

		status, found, err := store.BlockStatus(tx, 0)
		require.NoError(t, err)
		require.True(t, found)
		require.Equal(t, types.AcceptedOnL2, status)

		body, found, err := store.BodyIndices(tx, 0)
		require.NoError(t, err)
		require.True(t, found)
		require.EqualValues(t, 0, body.TxOffset)
		require.EqualValues(t, 1, body.TxCount)

		latest, found, err := store.LatestBlockNumber(tx)
		require.NoError(t, err)
		require.True(t, found)
		require.EqualValues(t, 0, latest)

		gotTx, found, err := store.TransactionByNumber(tx, 0)
		require.NoError(t, err)
		require.True(t, found)
		require.True(t, gotTx.TxHash().Equal(txn.TxHash()))

		gotTx2, found, err := store.TransactionByHash(tx, txn.TxHash())
		require.NoError(t, err)
		require.True(t, found)
		require.True(t, gotTx2.TxHash().Equal(txn.TxHash()))

		txNum, found, err := store.TransactionNumberByHash(tx, txn.TxHash())
		require.NoError(t, err)
		require.True(t, found)
		require.EqualValues(t, 0, txNum)

		blockOfTx, found, err := store.TransactionBlock(tx, 0)
		require.NoError(t, err)
		require.True(t, found)
		require.EqualValues(t, 0, blockOfTx)

		gotReceipt, found, err := store.Receipt(tx, 0)
		require.NoError(t, err)
		require.True(t, found)
		require.True(t, gotReceipt.TxHash.Equal(receipt.TxHash))

		gotTrace, found, err := store.Trace(tx, 0)
		require.NoError(t, err)
		require.True(t, found)
		require.Equal(t, []byte("trace-0"), gotTrace.Raw)

		latestState := store.StateAtLatest(tx)
		nonce, found, err := latestState.Nonce(address)
		require.NoError(t, err)
		require.True(t, found)
		require.True(t, nonce.IsZero())

		storedClassHash, found, err := latestState.ClassHashOfContract(address)
		require.NoError(t, err)
		require.True(t, found)
		require.True(t, storedClassHash.Equal(classHash))

		return nil
	}))

	require.NoError(t, env.Update(context.Background(), func(tx kv.RwTx) error {
		return store.SetStageCheckpoint(tx, "blocks", 0)
	}))
	require.NoError(t, env.View(context.Background(), func(tx kv.RoTx) error {
		cp, found, err := store.StageCheckpoint(tx, "blocks")
		require.NoError(t, err)
		require.True(t, found)
		require.EqualValues(t, 0, cp)
		return nil
	}))
}

// TestStateUpdateAtReconstructsBlockDiff drives StateUpdateProvider: a
// second block bumping the nonce and a storage slot must reconstruct
// back to exactly what that block wrote.
func TestStateUpdateAtReconstructsBlockDiff(t *testing.T) {
	env := openTestEnv(t)
	store := New(env)

	address := felt.New(1)
	classHash := felt.New(9)
	storageKey := felt.New(2)

	genesis := types.NewStateUpdates()
	genesis.DeployedContracts[types.NewFeltKey(address)] = classHash
	genesis.DeclaredClasses[types.NewFeltKey(classHash)] = felt.New(77)
	genesis.SetStorage(address, storageKey, felt.New(42))

	require.NoError(t, store.InsertBlockWithStatesAndReceipts(context.Background(), BlockInsert{
		Header:       types.Header{Number: 0, Hash: felt.New(500), ParentHash: &felt.Zero},
		Transactions: nil,
		Receipts:     nil,
		StateUpdates: genesis,
		NewClasses:   map[types.FeltKey]*types.ContractClass{types.NewFeltKey(classHash): {Kind: types.ClassKindSierra}},
	}))

	su1 := types.NewStateUpdates()
	su1.NonceUpdates[types.NewFeltKey(address)] = felt.New(1)
	su1.SetStorage(address, storageKey, felt.New(99))

	require.NoError(t, store.InsertBlockWithStatesAndReceipts(context.Background(), BlockInsert{
		Header:       types.Header{Number: 1, Hash: felt.New(501), ParentHash: felt.New(500)},
		Transactions: nil,
		Receipts:     nil,
		StateUpdates: su1,
	}))

	require.NoError(t, env.View(context.Background(), func(tx kv.RoTx) error {
		diff, err := store.StateUpdateAt(tx, 1)
		require.NoError(t, err)
		require.Len(t, diff.NonceUpdates, 1)
		require.True(t, diff.NonceUpdates[types.NewFeltKey(address)].Equal(felt.New(1)))
		require.Len(t, diff.StorageUpdates, 1)
		inner := diff.StorageUpdates[types.NewFeltKey(address)]
		require.True(t, inner[types.NewFeltKey(storageKey)].Equal(felt.New(99)))

		genesisDiff, err := store.StateUpdateAt(tx, 0)
		require.NoError(t, err)
		require.Len(t, genesisDiff.DeclaredClasses, 1)
		require.True(t, genesisDiff.DeclaredClasses[types.NewFeltKey(classHash)].Equal(felt.New(77)))
		return nil
	}))
}
