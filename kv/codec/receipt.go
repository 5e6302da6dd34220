package codec

import (
	"github.com/katana-sh/katana/core/types"
)

func EncodeReceipt(r *types.Receipt) ([]byte, error) {
	w := &writer{}
	w.byte(byte(r.TxKind))
	w.felt(r.TxHash)
	w.felt(r.Fee.Amount)
	w.byte(byte(r.Fee.Unit))

	w.uint64(uint64(len(r.Events)))
	for _, ev := range r.Events {
		w.felt(ev.FromAddress)
		w.feltSlice(ev.Keys)
		w.feltSlice(ev.Data)
	}

	w.uint64(uint64(len(r.Messages)))
	for _, m := range r.Messages {
		w.felt(m.FromAddress)
		w.felt(m.ToAddress)
		w.feltSlice(m.Payload)
		w.buf.Write(m.MessageHash[:])
	}

	res := r.Resources
	w.uint64(res.L1Gas)
	w.uint64(res.L2Gas)
	w.uint64(res.L1DataGas)
	w.uint64(res.Steps)
	w.uint64(res.MemoryHoles)
	w.uint64(uint64(len(res.Builtins)))
	for name, count := range res.Builtins {
		w.str(name)
		w.uint64(count)
	}

	if r.Reverted {
		w.byte(1)
	} else {
		w.byte(0)
	}
	w.str(r.RevertReason)
	w.buf.Write(r.MessageHash[:])

	return w.bytes(), nil
}

func DecodeReceipt(b []byte) (*types.Receipt, error) {
	r := newReader(b)
	rc := &types.Receipt{}

	kindByte, err := r.byte()
	if err != nil {
		return nil, err
	}
	rc.TxKind = types.TxKind(kindByte)
	if rc.TxHash, err = r.felt(); err != nil {
		return nil, err
	}
	if rc.Fee.Amount, err = r.felt(); err != nil {
		return nil, err
	}
	unitByte, err := r.byte()
	if err != nil {
		return nil, err
	}
	rc.Fee.Unit = types.FeeUnit(unitByte)

	numEvents, err := r.uint64()
	if err != nil {
		return nil, err
	}
	rc.Events = make([]types.Event, numEvents)
	for i := range rc.Events {
		ev := &rc.Events[i]
		if ev.FromAddress, err = r.felt(); err != nil {
			return nil, err
		}
		if ev.Keys, err = r.feltSlice(); err != nil {
			return nil, err
		}
		if ev.Data, err = r.feltSlice(); err != nil {
			return nil, err
		}
	}

	numMessages, err := r.uint64()
	if err != nil {
		return nil, err
	}
	rc.Messages = make([]types.L2ToL1Message, numMessages)
	for i := range rc.Messages {
		m := &rc.Messages[i]
		if m.FromAddress, err = r.felt(); err != nil {
			return nil, err
		}
		if m.ToAddress, err = r.felt(); err != nil {
			return nil, err
		}
		if m.Payload, err = r.feltSlice(); err != nil {
			return nil, err
		}
		if err := readFixed(r, m.MessageHash[:]); err != nil {
			return nil, err
		}
	}

	if rc.Resources.L1Gas, err = r.uint64(); err != nil {
		return nil, err
	}
	if rc.Resources.L2Gas, err = r.uint64(); err != nil {
		return nil, err
	}
	if rc.Resources.L1DataGas, err = r.uint64(); err != nil {
		return nil, err
	}
	if rc.Resources.Steps, err = r.uint64(); err != nil {
		return nil, err
	}
	if rc.Resources.MemoryHoles, err = r.uint64(); err != nil {
		return nil, err
	}
	numBuiltins, err := r.uint64()
	if err != nil {
		return nil, err
	}
	if numBuiltins > 0 {
		rc.Resources.Builtins = make(map[string]uint64, numBuiltins)
		for i := uint64(0); i < numBuiltins; i++ {
			name, err := r.str()
			if err != nil {
				return nil, err
			}
			count, err := r.uint64()
			if err != nil {
				return nil, err
			}
			rc.Resources.Builtins[name] = count
		}
	}

	revertedByte, err := r.byte()
	if err != nil {
		return nil, err
	}
	rc.Reverted = revertedByte != 0
	if rc.RevertReason, err = r.str(); err != nil {
		return nil, err
	}
	if err := readFixed(r, rc.MessageHash[:]); err != nil {
		return nil, err
	}

	return rc, nil
}

func readFixed(r *reader, dst []byte) error {
	for i := range dst {
		b, err := r.byte()
		if err != nil {
			return err
		}
		dst[i] = b
	}
	return nil
}
