package codec

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/katana-sh/katana/core/felt"
)

// writer is a tiny append-only cursor over a bytes.Buffer; every table
// value's on-disk layout is built with these primitives per spec.md §4.2
// ("scalars/hashes via little-endian binary").
type writer struct {
	buf bytes.Buffer
}

func (w *writer) byte(b byte) { w.buf.WriteByte(b) }

func (w *writer) uint64(v uint64) {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	w.buf.Write(b[:])
}

func (w *writer) felt(f *felt.Felt) {
	if f == nil {
		f = &felt.Zero
	}
	b := f.Bytes32()
	w.buf.Write(b[:])
}

func (w *writer) feltPtr(f *felt.Felt) {
	if f == nil {
		w.byte(0)
		return
	}
	w.byte(1)
	w.felt(f)
}

func (w *writer) bytesBlob(b []byte) {
	w.uint64(uint64(len(b)))
	w.buf.Write(b)
}

func (w *writer) str(s string) { w.bytesBlob([]byte(s)) }

func (w *writer) feltSlice(fs []*felt.Felt) {
	w.uint64(uint64(len(fs)))
	for _, f := range fs {
		w.felt(f)
	}
}

func (w *writer) bytes() []byte { return w.buf.Bytes() }

// reader is the matching read cursor, returning StageDecode CodecErrors
// wrapped around the underlying io/encoding failure on any shortfall.
type reader struct {
	r *bytes.Reader
}

func newReader(b []byte) *reader { return &reader{r: bytes.NewReader(b)} }

func (r *reader) byte() (byte, error) {
	b, err := r.r.ReadByte()
	if err != nil {
		return 0, newErr(StageDecode, err)
	}
	return b, nil
}

func (r *reader) uint64() (uint64, error) {
	var b [8]byte
	if _, err := io.ReadFull(r.r, b[:]); err != nil {
		return 0, newErr(StageDecode, err)
	}
	return binary.LittleEndian.Uint64(b[:]), nil
}

func (r *reader) felt() (*felt.Felt, error) {
	var b [felt.Bytes]byte
	if _, err := io.ReadFull(r.r, b[:]); err != nil {
		return nil, newErr(StageDecode, err)
	}
	return felt.FromBytes(b[:]), nil
}

func (r *reader) feltPtr() (*felt.Felt, error) {
	tag, err := r.byte()
	if err != nil {
		return nil, err
	}
	if tag == 0 {
		return nil, nil
	}
	return r.felt()
}

func (r *reader) bytesBlob() ([]byte, error) {
	n, err := r.uint64()
	if err != nil {
		return nil, err
	}
	if n > uint64(r.r.Len()) {
		return nil, newErr(StageDecode, fmt.Errorf("blob length %d exceeds remaining %d", n, r.r.Len()))
	}
	out := make([]byte, n)
	if _, err := io.ReadFull(r.r, out); err != nil {
		return nil, newErr(StageDecode, err)
	}
	return out, nil
}

func (r *reader) str() (string, error) {
	b, err := r.bytesBlob()
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func (r *reader) feltSlice() ([]*felt.Felt, error) {
	n, err := r.uint64()
	if err != nil {
		return nil, err
	}
	out := make([]*felt.Felt, n)
	for i := range out {
		f, err := r.felt()
		if err != nil {
			return nil, err
		}
		out[i] = f
	}
	return out, nil
}

func (r *reader) remaining() int { return r.r.Len() }
