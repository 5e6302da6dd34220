package types

import "github.com/katana-sh/katana/core/felt"

// TxKind enumerates the eleven transaction variants the engine stores.
type TxKind uint8

const (
	KindInvokeV0 TxKind = iota
	KindInvokeV1
	KindInvokeV3
	KindDeclareV0
	KindDeclareV1
	KindDeclareV2
	KindDeclareV3
	KindDeployAccountV1
	KindDeployAccountV3
	KindL1Handler
	KindDeployLegacy
)

// ResourceBounds is the V3 fee-market field, a triple of (max_amount,
// max_price_per_unit) pairs for L1 gas, L2 gas and L1 data gas.
// max_price_per_unit is a Felt rather than a machine word: it's a
// Stark-field value like any other fee amount in this engine, not a
// 256-bit EVM word.
type ResourceBounds struct {
	L1Gas     ResourceBound
	L2Gas     ResourceBound
	L1DataGas ResourceBound
}

type ResourceBound struct {
	MaxAmount       uint64
	MaxPricePerUnit *felt.Felt
}

// Common carries the fields shared by every transaction variant.
type Common struct {
	Kind      TxKind
	Hash      *felt.Felt
	ChainID   *felt.Felt
	Nonce     *felt.Felt // nil for InvokeV0
	Signature []*felt.Felt
	Calldata  []*felt.Felt
}

// Transaction is the sum-type interface every variant below satisfies.
type Transaction interface {
	TxHash() *felt.Felt
	TxKind() TxKind
	TxNonce() *felt.Felt
}

func (c Common) TxHash() *felt.Felt { return c.Hash }
func (c Common) TxKind() TxKind     { return c.Kind }
func (c Common) TxNonce() *felt.Felt { return c.Nonce }

// InvokeV0 has no nonce and addresses a contract/selector pair directly.
type InvokeV0 struct {
	Common
	ContractAddress    *felt.Felt
	EntryPointSelector *felt.Felt
	MaxFee             *felt.Felt
}

type InvokeV1 struct {
	Common
	SenderAddress *felt.Felt
	MaxFee        *felt.Felt
}

type InvokeV3 struct {
	Common
	SenderAddress         *felt.Felt
	ResourceBounds        ResourceBounds
	Tip                   uint64
	PaymasterData         []*felt.Felt
	AccountDeploymentData []*felt.Felt
	NonceDataAvailabilityMode  DAMode
	FeeDataAvailabilityMode    DAMode
}

type DeclareV0 struct {
	Common
	SenderAddress *felt.Felt
	MaxFee        *felt.Felt
	ClassHash     *felt.Felt
}

type DeclareV1 struct {
	Common
	SenderAddress *felt.Felt
	MaxFee        *felt.Felt
	ClassHash     *felt.Felt
}

type DeclareV2 struct {
	Common
	SenderAddress     *felt.Felt
	MaxFee            *felt.Felt
	ClassHash         *felt.Felt
	CompiledClassHash *felt.Felt
}

type DeclareV3 struct {
	Common
	SenderAddress         *felt.Felt
	ClassHash             *felt.Felt
	CompiledClassHash     *felt.Felt
	ResourceBounds        ResourceBounds
	Tip                   uint64
	PaymasterData         []*felt.Felt
	AccountDeploymentData []*felt.Felt
	NonceDataAvailabilityMode  DAMode
	FeeDataAvailabilityMode    DAMode
}

type DeployAccountV1 struct {
	Common
	MaxFee              *felt.Felt
	ContractAddressSalt *felt.Felt
	ConstructorCalldata []*felt.Felt
	ClassHash           *felt.Felt
}

type DeployAccountV3 struct {
	Common
	ContractAddressSalt *felt.Felt
	ConstructorCalldata []*felt.Felt
	ClassHash           *felt.Felt
	ResourceBounds      ResourceBounds
	Tip                 uint64
	PaymasterData       []*felt.Felt
	NonceDataAvailabilityMode  DAMode
	FeeDataAvailabilityMode    DAMode
}

// L1Handler is triggered by an L1->L2 message; it carries no signature.
type L1Handler struct {
	Common
	ContractAddress    *felt.Felt
	EntryPointSelector *felt.Felt
	PaymasterData      []*felt.Felt
}

// DeployLegacy is the pre-account-abstraction Cairo 0 deploy transaction.
type DeployLegacy struct {
	Common
	ContractAddressSalt *felt.Felt
	ConstructorCalldata []*felt.Felt
	ClassHash           *felt.Felt
}
