package types

import "github.com/katana-sh/katana/core/felt"

// ExecutionResources tallies the VM/gas resources a transaction consumed.
type ExecutionResources struct {
	L1Gas     uint64
	L2Gas     uint64
	L1DataGas uint64
	Steps     uint64
	MemoryHoles uint64
	Builtins  map[string]uint64
}

type FeeInfo struct {
	Amount *felt.Felt
	Unit   FeeUnit
}

type FeeUnit uint8

const (
	FeeUnitWei FeeUnit = iota
	FeeUnitFri
)

type Event struct {
	FromAddress *felt.Felt
	Keys        []*felt.Felt
	Data        []*felt.Felt
}

// L2ToL1Message is a message emitted by a contract destined for L1.
// MessageHash is the 32-byte SHA-256-family digest spec.md §6.2 requires.
type L2ToL1Message struct {
	FromAddress *felt.Felt
	ToAddress   *felt.Felt
	Payload     []*felt.Felt
	MessageHash [32]byte
}

// Receipt is keyed the same way as Transaction: one TxKind-tagged record
// per transaction number, plus the fields common to every kind.
type Receipt struct {
	TxKind             TxKind
	TxHash             *felt.Felt
	Fee                FeeInfo
	Events             []Event
	Messages           []L2ToL1Message
	Resources          ExecutionResources
	RevertReason       string // empty unless the transaction reverted
	Reverted           bool
	// MessageHash is populated only for L1Handler receipts.
	MessageHash [32]byte
}
