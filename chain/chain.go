// Package chain implements SPEC_FULL.md §4.11, the block/transaction
// writer: atomic insertion of a sealed block together with its state
// updates, newly-declared classes, receipts and traces, plus the
// BlockchainProvider union of read-side interfaces SPEC_FULL.md §6.4
// names. Grounded on the teacher's staged-sync idiom of driving a whole
// multi-table pipeline under one RwTx (eth/stagedsync/stage_log_index.go)
// and on state/writer's own step-ordered commit, which this package calls
// rather than duplicates.
package chain

import (
	"fmt"

	"github.com/katana-sh/katana/core/felt"
)

func beU64(v uint64) []byte {
	var out [8]byte
	for i := 0; i < 8; i++ {
		out[7-i] = byte(v >> (8 * i))
	}
	return out[:]
}

func decodeU64(b []byte) (uint64, error) {
	if len(b) != 8 {
		return 0, fmt.Errorf("chain: corrupt block/tx number row (%d bytes)", len(b))
	}
	var v uint64
	for _, c := range b {
		v = v<<8 | uint64(c)
	}
	return v, nil
}

func feltBytes(f *felt.Felt) []byte {
	b := f.Bytes32()
	return b[:]
}
