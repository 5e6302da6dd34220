package types

import "github.com/katana-sh/katana/core/felt"

// ContractInfo is the generic per-address record for latest state:
// its nonce and the class it currently instantiates.
type ContractInfo struct {
	Nonce     *felt.Felt
	ClassHash *felt.Felt
}

// ContractStorageEntry is one dup-sort row of the ContractStorage table:
// (address, key) -> value.
type ContractStorageEntry struct {
	Address *felt.Felt
	Key     *felt.Felt
	Value   *felt.Felt
}

// StateUpdates is the ordered set of mutations a single block applies to
// global state, per spec.md §3.1. Maps use felt.Felt's 32-byte encoding
// as their comparable key via FeltKey so iteration order can be made
// deterministic by the caller when it matters (insertion order is
// preserved separately via the Order slices below, since Go maps do not
// preserve insertion order and §4.7's tie-break rules are order-sensitive).
type StateUpdates struct {
	NonceUpdates map[FeltKey]*felt.Felt
	// StorageUpdates is keyed by contract address; StorageUpdateOrder
	// records the insertion order of keys for each address so that
	// "later entry wins" (SPEC_FULL.md §4.7 tie-break) is well-defined.
	StorageUpdates      map[FeltKey]map[FeltKey]*felt.Felt
	StorageUpdateOrder  map[FeltKey][]FeltKey

	DeclaredClasses           map[FeltKey]*felt.Felt // class hash -> compiled class hash
	DeprecatedDeclaredClasses map[FeltKey]struct{}
	DeployedContracts         map[FeltKey]*felt.Felt // address -> class hash
	ReplacedClasses           map[FeltKey]*felt.Felt // address -> class hash
}

// NewStateUpdates returns an empty, ready-to-populate StateUpdates.
func NewStateUpdates() *StateUpdates {
	return &StateUpdates{
		NonceUpdates:              make(map[FeltKey]*felt.Felt),
		StorageUpdates:            make(map[FeltKey]map[FeltKey]*felt.Felt),
		StorageUpdateOrder:        make(map[FeltKey][]FeltKey),
		DeclaredClasses:           make(map[FeltKey]*felt.Felt),
		DeprecatedDeclaredClasses: make(map[FeltKey]struct{}),
		DeployedContracts:         make(map[FeltKey]*felt.Felt),
		ReplacedClasses:           make(map[FeltKey]*felt.Felt),
	}
}

// SetStorage records a storage write, appending to the per-address order
// slice the first time a key is touched so later overwrites keep the
// first-seen position (the later *value* wins per §4.7, but relative
// ordering of distinct keys is otherwise irrelevant to correctness).
func (s *StateUpdates) SetStorage(address, key, value *felt.Felt) {
	ak := NewFeltKey(address)
	kk := NewFeltKey(key)
	inner, ok := s.StorageUpdates[ak]
	if !ok {
		inner = make(map[FeltKey]*felt.Felt)
		s.StorageUpdates[ak] = inner
	}
	if _, seen := inner[kk]; !seen {
		s.StorageUpdateOrder[ak] = append(s.StorageUpdateOrder[ak], kk)
	}
	inner[kk] = value
}

// FeltKey is the comparable, map-key-safe encoding of a felt.Felt.
type FeltKey [felt.Bytes]byte

func NewFeltKey(f *felt.Felt) FeltKey { return FeltKey(f.Bytes32()) }

func (k FeltKey) Felt() *felt.Felt { return felt.FromBytes(k[:]) }
