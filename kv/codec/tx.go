package codec

import (
	"errors"
	"fmt"

	"github.com/katana-sh/katana/core/felt"
	"github.com/katana-sh/katana/core/types"
)

const (
	tagTxV6 byte = 0x06
	tagTxV7 byte = 0x07
)

// EncodeTx always writes the latest (V7) tagged form.
func EncodeTx(tx types.Transaction) ([]byte, error) {
	w := &writer{}
	w.byte(tagTxV7)
	w.byte(byte(tx.TxKind()))
	if err := writeTxBody(w, tx, true); err != nil {
		return nil, err
	}
	return w.bytes(), nil
}

// DecodeTx implements spec.md §4.2's decode order for transactions:
// tagged, then V7 plain, then V6 plain (lifting V3 resource bounds).
func DecodeTx(b []byte) (types.Transaction, error) {
	if tx, err := decodeTxTagged(b); err == nil {
		return tx, nil
	}
	if tx, err := decodeTxPlain(b, true); err == nil {
		return tx, nil
	}
	if tx, err := decodeTxPlain(b, false); err == nil {
		return tx, nil
	}
	return nil, newErr(StageDecompress, errors.New("transaction: no known encoding matched"))
}

func decodeTxTagged(b []byte) (types.Transaction, error) {
	r := newReader(b)
	tag, err := r.byte()
	if err != nil {
		return nil, err
	}
	var v7 bool
	switch tag {
	case tagTxV7:
		v7 = true
	case tagTxV6:
		v7 = false
	default:
		return nil, newErr(StageDecode, errors.New("unrecognized transaction tag"))
	}
	kindByte, err := r.byte()
	if err != nil {
		return nil, err
	}
	tx, err := readTxBody(r, types.TxKind(kindByte), v7)
	if err != nil {
		return nil, err
	}
	if r.remaining() != 0 {
		return nil, newErr(StageDecode, errors.New("trailing bytes after tagged transaction"))
	}
	return tx, nil
}

func decodeTxPlain(b []byte, v7 bool) (types.Transaction, error) {
	r := newReader(b)
	kindByte, err := r.byte()
	if err != nil {
		return nil, err
	}
	tx, err := readTxBody(r, types.TxKind(kindByte), v7)
	if err != nil {
		return nil, err
	}
	if r.remaining() != 0 {
		return nil, newErr(StageDecode, errors.New("trailing bytes after plain transaction"))
	}
	return tx, nil
}

func writeCommon(w *writer, c types.Common, hasNonce bool) {
	w.felt(c.Hash)
	w.felt(c.ChainID)
	if hasNonce {
		w.felt(c.Nonce)
	}
	w.feltSlice(c.Signature)
}

func readCommon(r *reader, kind types.TxKind, hasNonce bool) (types.Common, error) {
	c := types.Common{Kind: kind}
	var err error
	if c.Hash, err = r.felt(); err != nil {
		return c, err
	}
	if c.ChainID, err = r.felt(); err != nil {
		return c, err
	}
	if hasNonce {
		if c.Nonce, err = r.felt(); err != nil {
			return c, err
		}
	}
	if c.Signature, err = r.feltSlice(); err != nil {
		return c, err
	}
	return c, nil
}

// zeroBound is the lifted l1_data_gas bound V6->V7 upgrade populates,
// per spec.md §4.2 ("lifted to {l1_gas, l2_gas, l1_data_gas = zero}").
func zeroBound() types.ResourceBound {
	return types.ResourceBound{MaxAmount: 0, MaxPricePerUnit: &felt.Zero}
}

func writeResourceBound(w *writer, b types.ResourceBound) {
	w.uint64(b.MaxAmount)
	w.felt(b.MaxPricePerUnit)
}

func readResourceBound(r *reader) (types.ResourceBound, error) {
	var b types.ResourceBound
	var err error
	if b.MaxAmount, err = r.uint64(); err != nil {
		return b, err
	}
	if b.MaxPricePerUnit, err = r.felt(); err != nil {
		return b, err
	}
	return b, nil
}

func writeResourceBounds(w *writer, rb types.ResourceBounds, includeL1DataGas bool) {
	writeResourceBound(w, rb.L1Gas)
	writeResourceBound(w, rb.L2Gas)
	if includeL1DataGas {
		writeResourceBound(w, rb.L1DataGas)
	}
}

func readResourceBounds(r *reader, includeL1DataGas bool) (types.ResourceBounds, error) {
	var rb types.ResourceBounds
	var err error
	if rb.L1Gas, err = readResourceBound(r); err != nil {
		return rb, err
	}
	if rb.L2Gas, err = readResourceBound(r); err != nil {
		return rb, err
	}
	if includeL1DataGas {
		if rb.L1DataGas, err = readResourceBound(r); err != nil {
			return rb, err
		}
	} else {
		rb.L1DataGas = zeroBound()
	}
	return rb, nil
}

func writeV3Tail(w *writer, tip uint64, paymaster, accountDeployment []*felt.Felt, nonceDA, feeDA types.DAMode) {
	w.uint64(tip)
	w.feltSlice(paymaster)
	w.feltSlice(accountDeployment)
	w.byte(byte(nonceDA))
	w.byte(byte(feeDA))
}

func readV3Tail(r *reader) (tip uint64, paymaster, accountDeployment []*felt.Felt, nonceDA, feeDA types.DAMode, err error) {
	if tip, err = r.uint64(); err != nil {
		return
	}
	if paymaster, err = r.feltSlice(); err != nil {
		return
	}
	if accountDeployment, err = r.feltSlice(); err != nil {
		return
	}
	var b byte
	if b, err = r.byte(); err != nil {
		return
	}
	nonceDA = types.DAMode(b)
	if b, err = r.byte(); err != nil {
		return
	}
	feeDA = types.DAMode(b)
	return
}

func writeTxBody(w *writer, tx types.Transaction, v7 bool) error {
	switch t := tx.(type) {
	case *types.InvokeV0:
		writeCommon(w, t.Common, false)
		w.felt(t.ContractAddress)
		w.felt(t.EntryPointSelector)
		w.felt(t.MaxFee)
		w.feltSlice(t.Calldata)
	case *types.InvokeV1:
		writeCommon(w, t.Common, true)
		w.felt(t.SenderAddress)
		w.felt(t.MaxFee)
		w.feltSlice(t.Calldata)
	case *types.InvokeV3:
		writeCommon(w, t.Common, true)
		w.felt(t.SenderAddress)
		writeResourceBounds(w, t.ResourceBounds, v7)
		writeV3Tail(w, t.Tip, t.PaymasterData, t.AccountDeploymentData, t.NonceDataAvailabilityMode, t.FeeDataAvailabilityMode)
		w.feltSlice(t.Calldata)
	case *types.DeclareV0:
		writeCommon(w, t.Common, true)
		w.felt(t.SenderAddress)
		w.felt(t.MaxFee)
		w.felt(t.ClassHash)
	case *types.DeclareV1:
		writeCommon(w, t.Common, true)
		w.felt(t.SenderAddress)
		w.felt(t.MaxFee)
		w.felt(t.ClassHash)
	case *types.DeclareV2:
		writeCommon(w, t.Common, true)
		w.felt(t.SenderAddress)
		w.felt(t.MaxFee)
		w.felt(t.ClassHash)
		w.felt(t.CompiledClassHash)
	case *types.DeclareV3:
		writeCommon(w, t.Common, true)
		w.felt(t.SenderAddress)
		w.felt(t.ClassHash)
		w.felt(t.CompiledClassHash)
		writeResourceBounds(w, t.ResourceBounds, v7)
		writeV3Tail(w, t.Tip, t.PaymasterData, t.AccountDeploymentData, t.NonceDataAvailabilityMode, t.FeeDataAvailabilityMode)
	case *types.DeployAccountV1:
		writeCommon(w, t.Common, true)
		w.felt(t.MaxFee)
		w.felt(t.ContractAddressSalt)
		w.feltSlice(t.ConstructorCalldata)
		w.felt(t.ClassHash)
	case *types.DeployAccountV3:
		writeCommon(w, t.Common, true)
		w.felt(t.ContractAddressSalt)
		w.feltSlice(t.ConstructorCalldata)
		w.felt(t.ClassHash)
		writeResourceBounds(w, t.ResourceBounds, v7)
		writeV3Tail(w, t.Tip, t.PaymasterData, nil, t.NonceDataAvailabilityMode, t.FeeDataAvailabilityMode)
	case *types.L1Handler:
		writeCommon(w, t.Common, true)
		w.felt(t.ContractAddress)
		w.felt(t.EntryPointSelector)
		w.feltSlice(t.PaymasterData)
		w.feltSlice(t.Calldata)
	case *types.DeployLegacy:
		writeCommon(w, t.Common, false)
		w.felt(t.ContractAddressSalt)
		w.feltSlice(t.ConstructorCalldata)
		w.felt(t.ClassHash)
	default:
		return fmt.Errorf("codec: unknown transaction type %T", tx)
	}
	return nil
}

func readTxBody(r *reader, kind types.TxKind, v7 bool) (types.Transaction, error) {
	switch kind {
	case types.KindInvokeV0:
		c, err := readCommon(r, kind, false)
		if err != nil {
			return nil, err
		}
		t := &types.InvokeV0{Common: c}
		if t.ContractAddress, err = r.felt(); err != nil {
			return nil, err
		}
		if t.EntryPointSelector, err = r.felt(); err != nil {
			return nil, err
		}
		if t.MaxFee, err = r.felt(); err != nil {
			return nil, err
		}
		if t.Calldata, err = r.feltSlice(); err != nil {
			return nil, err
		}
		return t, nil
	case types.KindInvokeV1:
		c, err := readCommon(r, kind, true)
		if err != nil {
			return nil, err
		}
		t := &types.InvokeV1{Common: c}
		if t.SenderAddress, err = r.felt(); err != nil {
			return nil, err
		}
		if t.MaxFee, err = r.felt(); err != nil {
			return nil, err
		}
		if t.Calldata, err = r.feltSlice(); err != nil {
			return nil, err
		}
		return t, nil
	case types.KindInvokeV3:
		c, err := readCommon(r, kind, true)
		if err != nil {
			return nil, err
		}
		t := &types.InvokeV3{Common: c}
		if t.SenderAddress, err = r.felt(); err != nil {
			return nil, err
		}
		if t.ResourceBounds, err = readResourceBounds(r, v7); err != nil {
			return nil, err
		}
		tip, paymaster, accDep, nonceDA, feeDA, err := readV3Tail(r)
		if err != nil {
			return nil, err
		}
		t.Tip, t.PaymasterData, t.AccountDeploymentData = tip, paymaster, accDep
		t.NonceDataAvailabilityMode, t.FeeDataAvailabilityMode = nonceDA, feeDA
		if t.Calldata, err = r.feltSlice(); err != nil {
			return nil, err
		}
		return t, nil
	case types.KindDeclareV0:
		c, err := readCommon(r, kind, true)
		if err != nil {
			return nil, err
		}
		t := &types.DeclareV0{Common: c}
		if t.SenderAddress, err = r.felt(); err != nil {
			return nil, err
		}
		if t.MaxFee, err = r.felt(); err != nil {
			return nil, err
		}
		if t.ClassHash, err = r.felt(); err != nil {
			return nil, err
		}
		return t, nil
	case types.KindDeclareV1:
		c, err := readCommon(r, kind, true)
		if err != nil {
			return nil, err
		}
		t := &types.DeclareV1{Common: c}
		if t.SenderAddress, err = r.felt(); err != nil {
			return nil, err
		}
		if t.MaxFee, err = r.felt(); err != nil {
			return nil, err
		}
		if t.ClassHash, err = r.felt(); err != nil {
			return nil, err
		}
		return t, nil
	case types.KindDeclareV2:
		c, err := readCommon(r, kind, true)
		if err != nil {
			return nil, err
		}
		t := &types.DeclareV2{Common: c}
		if t.SenderAddress, err = r.felt(); err != nil {
			return nil, err
		}
		if t.MaxFee, err = r.felt(); err != nil {
			return nil, err
		}
		if t.ClassHash, err = r.felt(); err != nil {
			return nil, err
		}
		if t.CompiledClassHash, err = r.felt(); err != nil {
			return nil, err
		}
		return t, nil
	case types.KindDeclareV3:
		c, err := readCommon(r, kind, true)
		if err != nil {
			return nil, err
		}
		t := &types.DeclareV3{Common: c}
		if t.SenderAddress, err = r.felt(); err != nil {
			return nil, err
		}
		if t.ClassHash, err = r.felt(); err != nil {
			return nil, err
		}
		if t.CompiledClassHash, err = r.felt(); err != nil {
			return nil, err
		}
		if t.ResourceBounds, err = readResourceBounds(r, v7); err != nil {
			return nil, err
		}
		tip, paymaster, accDep, nonceDA, feeDA, err := readV3Tail(r)
		if err != nil {
			return nil, err
		}
		t.Tip, t.PaymasterData, t.AccountDeploymentData = tip, paymaster, accDep
		t.NonceDataAvailabilityMode, t.FeeDataAvailabilityMode = nonceDA, feeDA
		return t, nil
	case types.KindDeployAccountV1:
		c, err := readCommon(r, kind, true)
		if err != nil {
			return nil, err
		}
		t := &types.DeployAccountV1{Common: c}
		if t.MaxFee, err = r.felt(); err != nil {
			return nil, err
		}
		if t.ContractAddressSalt, err = r.felt(); err != nil {
			return nil, err
		}
		if t.ConstructorCalldata, err = r.feltSlice(); err != nil {
			return nil, err
		}
		if t.ClassHash, err = r.felt(); err != nil {
			return nil, err
		}
		return t, nil
	case types.KindDeployAccountV3:
		c, err := readCommon(r, kind, true)
		if err != nil {
			return nil, err
		}
		t := &types.DeployAccountV3{Common: c}
		if t.ContractAddressSalt, err = r.felt(); err != nil {
			return nil, err
		}
		if t.ConstructorCalldata, err = r.feltSlice(); err != nil {
			return nil, err
		}
		if t.ClassHash, err = r.felt(); err != nil {
			return nil, err
		}
		if t.ResourceBounds, err = readResourceBounds(r, v7); err != nil {
			return nil, err
		}
		tip, paymaster, _, nonceDA, feeDA, err := readV3Tail(r)
		if err != nil {
			return nil, err
		}
		t.Tip, t.PaymasterData = tip, paymaster
		t.NonceDataAvailabilityMode, t.FeeDataAvailabilityMode = nonceDA, feeDA
		return t, nil
	case types.KindL1Handler:
		c, err := readCommon(r, kind, true)
		if err != nil {
			return nil, err
		}
		t := &types.L1Handler{Common: c}
		if t.ContractAddress, err = r.felt(); err != nil {
			return nil, err
		}
		if t.EntryPointSelector, err = r.felt(); err != nil {
			return nil, err
		}
		if t.PaymasterData, err = r.feltSlice(); err != nil {
			return nil, err
		}
		if t.Calldata, err = r.feltSlice(); err != nil {
			return nil, err
		}
		return t, nil
	case types.KindDeployLegacy:
		c, err := readCommon(r, kind, false)
		if err != nil {
			return nil, err
		}
		t := &types.DeployLegacy{Common: c}
		if t.ContractAddressSalt, err = r.felt(); err != nil {
			return nil, err
		}
		if t.ConstructorCalldata, err = r.feltSlice(); err != nil {
			return nil, err
		}
		if t.ClassHash, err = r.felt(); err != nil {
			return nil, err
		}
		return t, nil
	default:
		return nil, newErr(StageDecode, fmt.Errorf("unknown transaction kind %d", kind))
	}
}
