package types

import "github.com/katana-sh/katana/core/felt"

// ClassKind distinguishes legacy Cairo 0 classes from Sierra Cairo 1.
type ClassKind uint8

const (
	ClassKindLegacy ClassKind = iota
	ClassKindSierra
)

// ContractClass is content-addressed by its class hash (the map key in
// the Classes table); the struct itself never carries its own hash.
type ContractClass struct {
	Kind ClassKind

	// Legacy (Cairo 0) fields.
	Program         []byte // compact binary/JSON-serialized Cairo 0 program
	EntryPointsByType map[string][]LegacyEntryPoint

	// Sierra (Cairo 1) fields.
	SierraProgram   []*felt.Felt
	ContractClassVersion string
	EntryPoints     SierraEntryPoints
	ABI             string
}

type LegacyEntryPoint struct {
	Selector *felt.Felt
	Offset   uint64
}

type SierraEntryPoints struct {
	Constructor []SierraEntryPoint
	External    []SierraEntryPoint
	L1Handler   []SierraEntryPoint
}

type SierraEntryPoint struct {
	Selector *felt.Felt
	FunctionIdx uint64
}
