package types

// TraceInfo is the executor's compact-binary-encoded execution trace for
// one transaction. Storage treats it as opaque: the executor that
// produced it, not this repository, owns its internal layout (spec.md
// never specifies trace internals, only that it is "execution trace
// produced by the executor"). kv/codec is responsible only for the
// zstd framing spec.md §4.2 requires around this blob.
type TraceInfo struct {
	Raw []byte
}
