// Package codec implements SPEC_FULL.md §4.2: version-tolerant encode/decode
// of every table value, compressed blobs for traces, and JSON for classes.
package codec

import (
	"fmt"

	"github.com/katana-sh/katana/kv/kverrors"
)

// Stage names the phase of a CodecError, mirroring spec.md §4.2's
// CodecError::{Compress, Decompress, Decode}.
type Stage string

const (
	StageCompress   Stage = "compress"
	StageDecompress Stage = "decompress"
	StageDecode     Stage = "decode"
)

// CodecError carries the failing stage and the underlying cause, and
// always unwraps to kverrors.ErrCodec so callers can errors.Is it.
type CodecError struct {
	Stage  Stage
	Source error
}

func (e *CodecError) Error() string {
	return fmt.Sprintf("codec: %s: %s", e.Stage, e.Source.Error())
}

func (e *CodecError) Unwrap() error { return kverrors.ErrCodec }

func newErr(stage Stage, source error) error {
	return &CodecError{Stage: stage, Source: source}
}
