// Copyright (c) 2026 The sanctuary developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wallet

import (
	"context"
	"fmt"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/btcutil/psbt"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/btcsuite/btcwallet/wallet/txsizes"

	"github.com/nekoguntai/sanctuary-sub007/unit"
)

// txOverheadVSize is the virtual size of the non-input, non-output parts
// of a transaction: version, segwit marker and flag, the two count
// varints and the locktime.
const txOverheadVSize = 11

// CpfpRequest describes a requested child-pays-for-parent bump: the
// wallet-owned parent output to spend and the fee rate the parent/child
// package should reach.
type CpfpRequest struct {
	// WalletID identifies the wallet owning the parent output.
	WalletID string

	// ParentTxid is the hex-encoded hash of the stuck transaction.
	ParentTxid string

	// ParentVout is the wallet-owned output index to spend.
	ParentVout uint32

	// TargetFeeRate is the effective fee rate the package should pay.
	TargetFeeRate unit.SatPerVByte

	// Recipient is the address the child pays the remaining value to,
	// typically a fresh wallet address.
	Recipient string
}

// CalculateCpfpFee computes the fee a child transaction must pay so the
// parent/child package reaches the target fee rate:
//
//	childFee = targetRate*(parentSize+childSize) - parentRate*parentSize
//
// The result is floored at the child's own fee at the target rate, so a
// parent that already pays above target never drives the child below a
// broadcastable rate.
func CalculateCpfpFee(parentSize unit.VByte, parentFeeRate unit.SatPerVByte,
	childSize unit.VByte, targetFeeRate unit.SatPerVByte) btcutil.Amount {

	packageFee := targetFeeRate.FeeForVSize(parentSize + childSize)
	childFee := packageFee - parentFeeRate.FeeForVSize(parentSize)

	if floor := targetFeeRate.FeeForVSize(childSize); childFee < floor {
		childFee = floor
	}

	return childFee
}

// CreateCpfp builds a child transaction spending one unspent wallet-owned
// output of a stuck parent, paying a fee high enough to lift the package
// to the target rate. It fails when the parent output is unknown or
// spent, when the output cannot cover the computed child fee, or when the
// remaining value would be dust.
func (f *FeeBumper) CreateCpfp(ctx context.Context,
	req *CpfpRequest) (*BumpResult, error) {

	utxo, err := f.store.Utxo(
		ctx, req.WalletID, req.ParentTxid, req.ParentVout,
	)
	if err != nil {
		return nil, err
	}
	if utxo == nil {
		return nil, fmt.Errorf("%w: %s:%d", ErrUtxoNotFound,
			req.ParentTxid, req.ParentVout)
	}
	if utxo.Spent {
		return nil, fmt.Errorf("%w: %s:%d", ErrUtxoSpent,
			req.ParentTxid, req.ParentVout)
	}

	_, parentTx, err := f.fetchTx(ctx, req.ParentTxid)
	if err != nil {
		return nil, err
	}

	parentFee, err := f.txFee(ctx, parentTx)
	if err != nil {
		return nil, err
	}
	parentSize := txVSize(parentTx)
	parentRate := unit.NewSatPerVByte(parentFee, parentSize)

	recipientScript, err := payToAddrScript(
		req.Recipient, f.cfg.ChainParams,
	)
	if err != nil {
		return nil, err
	}

	childSize := estimateChildVSize(utxo.PkScript, recipientScript)
	childFee := CalculateCpfpFee(
		parentSize, parentRate, childSize, req.TargetFeeRate,
	)

	if childFee >= utxo.Amount {
		return nil, fmt.Errorf("%w: parent output %v cannot cover "+
			"child fee %v", ErrInsufficientFunds, utxo.Amount,
			childFee)
	}

	outValue := utxo.Amount - childFee
	if outValue < f.cfg.DustThreshold {
		return nil, fmt.Errorf("%w: child output %v", ErrDustOutput,
			outValue)
	}

	parentHash, err := chainhash.NewHashFromStr(req.ParentTxid)
	if err != nil {
		return nil, fmt.Errorf("parsing parent txid: %w", err)
	}

	childTx := wire.NewMsgTx(wire.TxVersion)
	txIn := wire.NewTxIn(
		wire.NewOutPoint(parentHash, req.ParentVout), nil, nil,
	)
	txIn.Sequence = maxRbfSequence
	childTx.AddTxIn(txIn)
	childTx.AddTxOut(wire.NewTxOut(int64(outValue), recipientScript))

	packet, err := psbt.NewFromUnsignedTx(childTx)
	if err != nil {
		return nil, fmt.Errorf("creating psbt: %w", err)
	}

	// The parent output is known from the store, so the input does not
	// need a chain lookup during decoration.
	packet.Inputs[0].WitnessUtxo = &wire.TxOut{
		Value:    int64(utxo.Amount),
		PkScript: utxo.PkScript,
	}

	paths, err := f.decorateInputs(ctx, packet, req.WalletID)
	if err != nil {
		return nil, err
	}

	log.Infof("Built CPFP child for %s:%d: child fee %v, package fee "+
		"%v at target rate %v", req.ParentTxid, req.ParentVout,
		childFee, childFee+parentFee, req.TargetFeeRate)

	return &BumpResult{
		Packet:     packet,
		Fee:        childFee,
		PackageFee: childFee + parentFee,
		Change:     outValue,
		InputPaths: paths,
	}, nil
}

// estimateChildVSize estimates the virtual size of a transaction with one
// input spending the given output script and one output paying to the
// given script.
func estimateChildVSize(inputPkScript, outputPkScript []byte) unit.VByte {
	inputSize := txsizes.GetMinInputVirtualSize(inputPkScript)
	outputSize := 8 + wire.VarIntSerializeSize(uint64(len(outputPkScript))) +
		len(outputPkScript)

	return unit.VByte(txOverheadVSize + inputSize + outputSize)
}

// payToAddrScript decodes an address for the given network and compiles
// its output script.
func payToAddrScript(address string,
	params *chaincfg.Params) ([]byte, error) {

	addr, err := btcutil.DecodeAddress(address, params)
	if err != nil {
		return nil, fmt.Errorf("decoding address %s: %w", address, err)
	}

	pkScript, err := txscript.PayToAddrScript(addr)
	if err != nil {
		return nil, fmt.Errorf("building output script: %w", err)
	}

	return pkScript, nil
}
