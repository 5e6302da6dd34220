package codec

import (
	"github.com/valyala/gozstd"

	"github.com/katana-sh/katana/core/types"
)

// zstdLevel is pinned to 0 (gozstd's "fast, default" tier) per spec.md
// §4.2 ("compact binary then zstd level 0") — traces are large and
// written once, so the cost that matters is decompression on historical
// reads, not compression ratio.
const zstdLevel = 0

// EncodeTrace frames a TraceInfo as length-prefixed raw bytes, then
// zstd-compresses the whole frame.
func EncodeTrace(t *types.TraceInfo) ([]byte, error) {
	w := &writer{}
	w.bytesBlob(t.Raw)
	compressed := gozstd.CompressLevel(nil, w.bytes(), zstdLevel)
	return compressed, nil
}

// DecodeTrace reverses EncodeTrace: zstd-decompress, then unframe.
func DecodeTrace(b []byte) (*types.TraceInfo, error) {
	plain, err := gozstd.Decompress(nil, b)
	if err != nil {
		return nil, newErr(StageDecompress, err)
	}
	r := newReader(plain)
	raw, err := r.bytesBlob()
	if err != nil {
		return nil, err
	}
	return &types.TraceInfo{Raw: raw}, nil
}
