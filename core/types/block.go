// Package types carries the core entities of SPEC_FULL.md §3.1: blocks,
// transactions, receipts, traces, contract classes and state updates.
package types

import "github.com/katana-sh/katana/core/felt"

// DAMode selects how a block's data availability is published.
type DAMode uint8

const (
	DAModeL1 DAMode = iota
	DAModeL2
)

// GasPrices groups the three fee-market prices a header carries (ETH/STRK
// for L1 gas, plus L1 data gas), matching the fields spec.md §3.1 names.
type GasPrices struct {
	L1GasPriceETH  *felt.Felt
	L1GasPriceSTRK *felt.Felt
	L1DataGasPriceETH  *felt.Felt
	L1DataGasPriceSTRK *felt.Felt
	// L2GasPrices is populated on V7 headers; on V6-origin data it is
	// backfilled per the upgrade rule in SPEC_FULL.md §4.2.
	L2GasPriceETH  *felt.Felt
	L2GasPriceSTRK *felt.Felt
}

// Header is sealed, immutable metadata about a block. The VersionedHeader
// codec wrapper (kv/codec) is what actually rides on disk; Header is the
// in-memory value every reader deals with, always in its latest (V7) shape.
type Header struct {
	Number           uint64
	Hash             *felt.Felt
	ParentHash       *felt.Felt
	Timestamp        uint64
	SequencerAddress *felt.Felt
	GasPrices        GasPrices
	DAMode           DAMode
	ProtocolVersion  string
	TransactionCommitment *felt.Felt
	EventCommitment       *felt.Felt
	ReceiptCommitment     *felt.Felt
	StateDiffCommitment   *felt.Felt
	TransactionCount int
	EventCount       int
	StateRoot        *felt.Felt
}

// BlockStatus mirrors spec.md §4.4's BlockStatusses table values.
type BlockStatus uint8

const (
	AcceptedOnL2 BlockStatus = iota
	AcceptedOnL1
)

// Block pairs a sealed Header with its ordered transactions.
type Block struct {
	Header       Header
	Transactions []Transaction
	Receipts     []Receipt
}

// BodyIndices records the contiguous transaction-number range a block
// owns in the global Transactions table, per spec.md §3.2 invariant 2.
type BodyIndices struct {
	TxOffset uint64
	TxCount  uint64
}
