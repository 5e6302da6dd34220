package codec

import (
	"encoding/json"

	"github.com/katana-sh/katana/core/felt"
	"github.com/katana-sh/katana/core/types"
)

// classWire mirrors types.ContractClass field-for-field; felt.Felt has
// its own MarshalJSON/UnmarshalJSON (hex string), so no manual
// conversion is needed here. A dedicated wire type exists only to pick
// the feeder-gateway-style field names other_examples/juno's client
// reads.
type classWire struct {
	Kind                 types.ClassKind                     `json:"kind"`
	Program              []byte                               `json:"program,omitempty"`
	EntryPointsByType    map[string][]types.LegacyEntryPoint `json:"entry_points_by_type,omitempty"`
	SierraProgram        []*felt.Felt                         `json:"sierra_program,omitempty"`
	ContractClassVersion string                               `json:"contract_class_version,omitempty"`
	EntryPoints          types.SierraEntryPoints              `json:"entry_points,omitempty"`
	ABI                  string                               `json:"abi,omitempty"`
}

// EncodeClass stores a ContractClass as human-readable JSON, preserving
// the feeder-gateway-like shape on disk; LMDB blobs values transparently
// via overflow pages so no size-based special casing is needed here.
func EncodeClass(c *types.ContractClass) ([]byte, error) {
	wire := classWire{
		Kind:                  c.Kind,
		Program:               c.Program,
		EntryPointsByType:     c.EntryPointsByType,
		SierraProgram:         c.SierraProgram,
		ContractClassVersion:  c.ContractClassVersion,
		EntryPoints:           c.EntryPoints,
		ABI:                   c.ABI,
	}
	b, err := json.Marshal(wire)
	if err != nil {
		return nil, newErr(StageDecode, err)
	}
	return b, nil
}

func DecodeClass(b []byte) (*types.ContractClass, error) {
	var wire classWire
	if err := json.Unmarshal(b, &wire); err != nil {
		return nil, newErr(StageDecode, err)
	}
	return &types.ContractClass{
		Kind:                 wire.Kind,
		Program:              wire.Program,
		EntryPointsByType:    wire.EntryPointsByType,
		SierraProgram:        wire.SierraProgram,
		ContractClassVersion: wire.ContractClassVersion,
		EntryPoints:          wire.EntryPoints,
		ABI:                  wire.ABI,
	}, nil
}
