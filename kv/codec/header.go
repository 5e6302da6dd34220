package codec

import (
	"errors"

	"github.com/katana-sh/katana/core/felt"
	"github.com/katana-sh/katana/core/types"
)

const (
	tagHeaderV6 byte = 0x06
	tagHeaderV7 byte = 0x07
)

// minNonZeroGasPrice is the floor populated into V6 headers' missing
// l2_gas_prices field on upgrade, per spec.md §4.2 ("the executor
// requires non-zero"). DESIGN.md records this as a resolved Open
// Question: the constant is preserved verbatim on upgrade, never
// backfilled with a "real" historical value.
var minNonZeroGasPrice = felt.New(1)

// EncodeHeader always writes the latest (V7) tagged form.
func EncodeHeader(h *types.Header) ([]byte, error) {
	w := &writer{}
	w.byte(tagHeaderV7)
	writeHeaderV7Body(w, h)
	return w.bytes(), nil
}

// DecodeHeader implements spec.md §4.2's decode order: tagged, then V7
// plain, then V6 plain, upgrading in memory to the latest shape.
func DecodeHeader(b []byte) (*types.Header, error) {
	if h, err := decodeHeaderTagged(b); err == nil {
		return h, nil
	}
	if h, err := decodeHeaderV7Plain(b); err == nil {
		return h, nil
	}
	if h, err := decodeHeaderV6Plain(b); err == nil {
		return h, nil
	}
	return nil, newErr(StageDecompress, errors.New("header: no known encoding matched"))
}

func decodeHeaderTagged(b []byte) (*types.Header, error) {
	if len(b) == 0 {
		return nil, newErr(StageDecode, errors.New("empty header"))
	}
	r := newReader(b)
	tag, err := r.byte()
	if err != nil {
		return nil, err
	}
	switch tag {
	case tagHeaderV7:
		h, err := readHeaderV7Body(r)
		if err != nil {
			return nil, err
		}
		if r.remaining() != 0 {
			return nil, newErr(StageDecode, errors.New("trailing bytes after tagged V7 header"))
		}
		return h, nil
	case tagHeaderV6:
		h, err := readHeaderV6Body(r)
		if err != nil {
			return nil, err
		}
		if r.remaining() != 0 {
			return nil, newErr(StageDecode, errors.New("trailing bytes after tagged V6 header"))
		}
		return upgradeHeaderV6(h), nil
	default:
		return nil, newErr(StageDecode, errors.New("unrecognized header tag"))
	}
}

func decodeHeaderV7Plain(b []byte) (*types.Header, error) {
	r := newReader(b)
	h, err := readHeaderV7Body(r)
	if err != nil {
		return nil, err
	}
	if r.remaining() != 0 {
		return nil, newErr(StageDecode, errors.New("trailing bytes after plain V7 header"))
	}
	return h, nil
}

func decodeHeaderV6Plain(b []byte) (*types.Header, error) {
	r := newReader(b)
	h, err := readHeaderV6Body(r)
	if err != nil {
		return nil, err
	}
	if r.remaining() != 0 {
		return nil, newErr(StageDecode, errors.New("trailing bytes after plain V6 header"))
	}
	return upgradeHeaderV6(h), nil
}

func writeHeaderV7Body(w *writer, h *types.Header) {
	w.uint64(h.Number)
	w.felt(h.Hash)
	w.felt(h.ParentHash)
	w.uint64(h.Timestamp)
	w.felt(h.SequencerAddress)
	w.felt(h.GasPrices.L1GasPriceETH)
	w.felt(h.GasPrices.L1GasPriceSTRK)
	w.felt(h.GasPrices.L1DataGasPriceETH)
	w.felt(h.GasPrices.L1DataGasPriceSTRK)
	w.felt(h.GasPrices.L2GasPriceETH)
	w.felt(h.GasPrices.L2GasPriceSTRK)
	w.byte(byte(h.DAMode))
	w.str(h.ProtocolVersion)
	w.felt(h.TransactionCommitment)
	w.felt(h.EventCommitment)
	w.felt(h.ReceiptCommitment)
	w.felt(h.StateDiffCommitment)
	w.uint64(uint64(h.TransactionCount))
	w.uint64(uint64(h.EventCount))
	w.felt(h.StateRoot)
}

func readHeaderV7Body(r *reader) (*types.Header, error) {
	h := &types.Header{}
	var err error
	if h.Number, err = r.uint64(); err != nil {
		return nil, err
	}
	if h.Hash, err = r.felt(); err != nil {
		return nil, err
	}
	if h.ParentHash, err = r.felt(); err != nil {
		return nil, err
	}
	if h.Timestamp, err = r.uint64(); err != nil {
		return nil, err
	}
	if h.SequencerAddress, err = r.felt(); err != nil {
		return nil, err
	}
	if h.GasPrices.L1GasPriceETH, err = r.felt(); err != nil {
		return nil, err
	}
	if h.GasPrices.L1GasPriceSTRK, err = r.felt(); err != nil {
		return nil, err
	}
	if h.GasPrices.L1DataGasPriceETH, err = r.felt(); err != nil {
		return nil, err
	}
	if h.GasPrices.L1DataGasPriceSTRK, err = r.felt(); err != nil {
		return nil, err
	}
	if h.GasPrices.L2GasPriceETH, err = r.felt(); err != nil {
		return nil, err
	}
	if h.GasPrices.L2GasPriceSTRK, err = r.felt(); err != nil {
		return nil, err
	}
	tag, err := r.byte()
	if err != nil {
		return nil, err
	}
	h.DAMode = types.DAMode(tag)
	if h.ProtocolVersion, err = r.str(); err != nil {
		return nil, err
	}
	if h.TransactionCommitment, err = r.felt(); err != nil {
		return nil, err
	}
	if h.EventCommitment, err = r.felt(); err != nil {
		return nil, err
	}
	if h.ReceiptCommitment, err = r.felt(); err != nil {
		return nil, err
	}
	if h.StateDiffCommitment, err = r.felt(); err != nil {
		return nil, err
	}
	txCount, err := r.uint64()
	if err != nil {
		return nil, err
	}
	h.TransactionCount = int(txCount)
	evCount, err := r.uint64()
	if err != nil {
		return nil, err
	}
	h.EventCount = int(evCount)
	if h.StateRoot, err = r.felt(); err != nil {
		return nil, err
	}
	return h, nil
}

// readHeaderV6Body reads the pre-l2_gas_prices layout: identical to V7
// except the two trailing L2 gas-price felts are absent.
func readHeaderV6Body(r *reader) (*types.Header, error) {
	h := &types.Header{}
	var err error
	if h.Number, err = r.uint64(); err != nil {
		return nil, err
	}
	if h.Hash, err = r.felt(); err != nil {
		return nil, err
	}
	if h.ParentHash, err = r.felt(); err != nil {
		return nil, err
	}
	if h.Timestamp, err = r.uint64(); err != nil {
		return nil, err
	}
	if h.SequencerAddress, err = r.felt(); err != nil {
		return nil, err
	}
	if h.GasPrices.L1GasPriceETH, err = r.felt(); err != nil {
		return nil, err
	}
	if h.GasPrices.L1GasPriceSTRK, err = r.felt(); err != nil {
		return nil, err
	}
	if h.GasPrices.L1DataGasPriceETH, err = r.felt(); err != nil {
		return nil, err
	}
	if h.GasPrices.L1DataGasPriceSTRK, err = r.felt(); err != nil {
		return nil, err
	}
	tag, err := r.byte()
	if err != nil {
		return nil, err
	}
	h.DAMode = types.DAMode(tag)
	if h.ProtocolVersion, err = r.str(); err != nil {
		return nil, err
	}
	if h.TransactionCommitment, err = r.felt(); err != nil {
		return nil, err
	}
	if h.EventCommitment, err = r.felt(); err != nil {
		return nil, err
	}
	if h.ReceiptCommitment, err = r.felt(); err != nil {
		return nil, err
	}
	if h.StateDiffCommitment, err = r.felt(); err != nil {
		return nil, err
	}
	txCount, err := r.uint64()
	if err != nil {
		return nil, err
	}
	h.TransactionCount = int(txCount)
	evCount, err := r.uint64()
	if err != nil {
		return nil, err
	}
	h.EventCount = int(evCount)
	if h.StateRoot, err = r.felt(); err != nil {
		return nil, err
	}
	return h, nil
}

// upgradeHeaderV6 applies spec.md §4.2's V6->V7 upgrade rule: populate
// l2_gas_prices with the floor constant, identity-copy everything else.
func upgradeHeaderV6(h *types.Header) *types.Header {
	h.GasPrices.L2GasPriceETH = minNonZeroGasPrice
	h.GasPrices.L2GasPriceSTRK = minNonZeroGasPrice
	return h
}
