// Copyright (c) 2026 The sanctuary developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wallet

import (
	"bytes"
	"context"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/blockchain"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/btcutil/psbt"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"

	"github.com/nekoguntai/sanctuary-sub007/descriptor"
	"github.com/nekoguntai/sanctuary-sub007/multisig"
	"github.com/nekoguntai/sanctuary-sub007/unit"
)

// maxRbfSequence is the highest input sequence value that still signals
// opt-in replaceability per BIP125.
const maxRbfSequence = wire.MaxTxInSequenceNum - 2

// FeeBumper validates fee-bump preconditions and assembles replacement
// (RBF), child-pays-for-parent and batch transactions as PSBTs ready for
// signing. It reads wallet records and chain data through its
// collaborators and never persists or broadcasts anything itself.
//
// The bumper performs no UTXO reservation. The caller must hold a
// pending-spend reservation on the selected outputs between construction
// and broadcast to prevent double-spend races across concurrent requests.
type FeeBumper struct {
	cfg   *Config
	chain ChainSource
	store Store
}

// NewFeeBumper creates a FeeBumper using the given collaborators.
func NewFeeBumper(cfg *Config, chain ChainSource, store Store) *FeeBumper {
	cfg.normalize()

	return &FeeBumper{
		cfg:   cfg,
		chain: chain,
		store: store,
	}
}

// Eligibility is the result of a replacement precondition check.
type Eligibility struct {
	// Eligible reports whether the transaction can be replaced.
	Eligible bool

	// Reason names the failed precondition when Eligible is false.
	Reason string

	// CurrentFeeRate is the fee rate the transaction currently pays.
	// Only set when eligible.
	CurrentFeeRate unit.SatPerVByte

	// MinNewFeeRate is the lowest fee rate a replacement must pay.
	MinNewFeeRate unit.SatPerVByte
}

// ReplaceRequest describes a requested RBF replacement.
type ReplaceRequest struct {
	// WalletID identifies the wallet owning the transaction.
	WalletID string

	// Txid is the hex-encoded hash of the transaction to replace.
	Txid string

	// NewFeeRate is the fee rate the replacement should pay. It must
	// strictly exceed the original transaction's rate.
	NewFeeRate unit.SatPerVByte
}

// BumpResult is a constructed fee-bump transaction together with the
// figures the caller persists as a draft: total fee, fee delta against
// the original where one exists, the change amount and the derivation
// path of each input (empty where the path could not be resolved).
type BumpResult struct {
	// Packet is the assembled PSBT, ready for signing.
	Packet *psbt.Packet

	// Fee is the total fee the new transaction pays.
	Fee btcutil.Amount

	// FeeDelta is the fee increase over the replaced transaction, or
	// zero where nothing is replaced.
	FeeDelta btcutil.Amount

	// PackageFee is the combined fee of the parent and child for a CPFP
	// bump, i.e. what the package pays to reach the target rate. Zero
	// for constructions without a parent.
	PackageFee btcutil.Amount

	// Change is the value of the change output, zero when change was
	// omitted.
	Change btcutil.Amount

	// InputPaths holds the wallet derivation path of each input.
	InputPaths []string
}

// IsRbfSignaled reports whether the hex-encoded transaction opts into
// replaceability, i.e. whether any input sequence is at or below
// 0xFFFFFFFD. Malformed hex reports false rather than failing, since an
// undecodable transaction cannot be replaced either way.
func IsRbfSignaled(rawTxHex string) bool {
	tx, err := decodeTxHex(rawTxHex)
	if err != nil {
		log.Debugf("Undecodable transaction hex: %v", err)

		return false
	}

	return rbfSignaled(tx)
}

// CanReplace checks the replacement preconditions for a transaction. A
// confirmed, non-signaling or unknown transaction is reported ineligible
// with the failed precondition as the reason; otherwise the current fee
// rate and the minimum acceptable replacement rate are returned.
func (f *FeeBumper) CanReplace(ctx context.Context,
	txid string) (*Eligibility, error) {

	info, tx, err := f.fetchTx(ctx, txid)
	switch {
	case errors.Is(err, ErrTxUnavailable):
		return &Eligibility{Reason: ErrTxUnavailable.Error()}, nil

	case err != nil:
		return nil, err
	}

	if info.Confirmations > 0 {
		return &Eligibility{Reason: ErrTxConfirmed.Error()}, nil
	}
	if !rbfSignaled(tx) {
		return &Eligibility{Reason: ErrNotSignalingRBF.Error()}, nil
	}

	currentFee, err := f.txFee(ctx, tx)
	if err != nil {
		return nil, err
	}
	currentRate := unit.NewSatPerVByte(currentFee, txVSize(tx))

	return &Eligibility{
		Eligible:       true,
		CurrentFeeRate: currentRate,
		MinNewFeeRate:  currentRate + f.cfg.MinFeeBump,
	}, nil
}

// CreateReplacement builds an RBF replacement for an unconfirmed
// transaction: identical inputs with their sequences preserved, identical
// outputs except the wallet-owned change output, which is reduced by the
// fee delta. The replacement fails when the transaction is confirmed, not
// signaling, unknown, when the new rate does not exceed the current one,
// when no wallet-owned change output exists, or when the reduced change
// would be dust.
func (f *FeeBumper) CreateReplacement(ctx context.Context,
	req *ReplaceRequest) (*BumpResult, error) {

	info, origTx, err := f.fetchTx(ctx, req.Txid)
	if err != nil {
		return nil, err
	}

	if info.Confirmations > 0 {
		return nil, ErrTxConfirmed
	}
	if !rbfSignaled(origTx) {
		return nil, ErrNotSignalingRBF
	}

	currentFee, err := f.txFee(ctx, origTx)
	if err != nil {
		return nil, err
	}

	vsize := txVSize(origTx)
	currentRate := unit.NewSatPerVByte(currentFee, vsize)
	if req.NewFeeRate <= currentRate {
		return nil, fmt.Errorf("%w: %v <= %v", ErrFeeRateTooLow,
			req.NewFeeRate, currentRate)
	}

	newFee := req.NewFeeRate.FeeForVSize(vsize)
	feeDelta := newFee - currentFee

	// The fee delta comes out of the wallet's own change output, so one
	// must exist and must survive the reduction.
	changeIdx, err := f.findChangeOutput(ctx, req.WalletID, origTx)
	if err != nil {
		return nil, err
	}

	oldChange := btcutil.Amount(origTx.TxOut[changeIdx].Value)
	newChange := oldChange - feeDelta
	if newChange < f.cfg.DustThreshold {
		return nil, fmt.Errorf("%w: change %v after fee bump",
			ErrDustOutput, newChange)
	}

	newTx := wire.NewMsgTx(origTx.Version)
	newTx.LockTime = origTx.LockTime
	for _, txIn := range origTx.TxIn {
		in := wire.NewTxIn(&txIn.PreviousOutPoint, nil, nil)
		in.Sequence = txIn.Sequence
		newTx.AddTxIn(in)
	}
	for i, txOut := range origTx.TxOut {
		value := txOut.Value
		if i == changeIdx {
			value = int64(newChange)
		}
		newTx.AddTxOut(wire.NewTxOut(value, txOut.PkScript))
	}

	packet, err := psbt.NewFromUnsignedTx(newTx)
	if err != nil {
		return nil, fmt.Errorf("creating psbt: %w", err)
	}

	paths, err := f.decorateInputs(ctx, packet, req.WalletID)
	if err != nil {
		return nil, err
	}

	log.Infof("Built replacement for %s: fee %v (+%v), change %v",
		req.Txid, newFee, feeDelta, newChange)

	return &BumpResult{
		Packet:     packet,
		Fee:        newFee,
		FeeDelta:   feeDelta,
		Change:     newChange,
		InputPaths: paths,
	}, nil
}

// findChangeOutput returns the index of the first output paying to an
// internal-branch wallet address, or ErrNoChangeOutput.
func (f *FeeBumper) findChangeOutput(ctx context.Context, walletID string,
	tx *wire.MsgTx) (int, error) {

	for i, txOut := range tx.TxOut {
		addr := pkScriptAddress(txOut.PkScript, f.cfg.ChainParams)
		if addr == "" {
			continue
		}

		rec, err := f.store.Address(ctx, walletID, addr)
		if err != nil {
			return 0, err
		}
		if rec != nil && rec.Change {
			return i, nil
		}
	}

	return 0, ErrNoChangeOutput
}

// decorateInputs attaches the previous output, derivation metadata and,
// for multisig wallets, the witness script to every input of the packet.
// Decoration is best-effort: a missing record degrades that input to an
// empty path rather than failing the whole PSBT, since a signer can still
// be handed the packet for manual review.
func (f *FeeBumper) decorateInputs(ctx context.Context, packet *psbt.Packet,
	walletID string) ([]string, error) {

	rec, err := f.store.Wallet(ctx, walletID)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, fmt.Errorf("wallet %s not found", walletID)
	}

	cosigners, quorum := walletCosigners(rec)

	paths := make([]string, len(packet.UnsignedTx.TxIn))
	for i, txIn := range packet.UnsignedTx.TxIn {
		op := txIn.PreviousOutPoint

		prevOut := packet.Inputs[i].WitnessUtxo
		if prevOut == nil {
			prevOut, err = f.chain.PrevOutput(
				ctx, op.Hash.String(), op.Index,
			)
			if err != nil || prevOut == nil {
				log.Warnf("No previous output for input %d "+
					"(%v): %v", i, op, err)

				continue
			}
		}

		paths[i] = f.decorateInput(
			ctx, &packet.Inputs[i], prevOut, walletID, cosigners,
			quorum,
		)
	}

	return paths, nil
}

// decorateInput fills in the metadata for one input from the given
// previous output. It returns the wallet derivation path of the spent
// address, or an empty string when the path could not be resolved.
func (f *FeeBumper) decorateInput(ctx context.Context, in *psbt.PInput,
	prevOut *wire.TxOut, walletID string,
	cosigners []multisig.Cosigner, quorum int) string {

	in.WitnessUtxo = &wire.TxOut{
		Value:    prevOut.Value,
		PkScript: prevOut.PkScript,
	}
	in.SighashType = txscript.SigHashAll

	addr := pkScriptAddress(prevOut.PkScript, f.cfg.ChainParams)
	if addr == "" {
		log.Warnf("Non-standard previous output script, no " +
			"derivation metadata attached")

		return ""
	}

	addrRec, err := f.store.Address(ctx, walletID, addr)
	if err != nil || addrRec == nil {
		log.Warnf("No address record for %s: %v", addr, err)

		return ""
	}

	path := addrRec.DerivationPath
	in.Bip32Derivation = multisig.BuildBip32Derivations(
		path, cosigners, f.cfg.ChainParams,
	)

	if quorum > 0 {
		witnessScript := multisig.BuildWitnessScript(
			path, cosigners, quorum, f.cfg.ChainParams,
		)
		if witnessScript != nil {
			in.WitnessScript = witnessScript.Script
		}
	}

	return path
}

// fetchTx loads a transaction from the chain source and decodes it. An
// unknown or undecodable transaction maps to ErrTxUnavailable; chain
// source errors propagate unchanged.
func (f *FeeBumper) fetchTx(ctx context.Context,
	txid string) (*TxInfo, *wire.MsgTx, error) {

	info, err := f.chain.Transaction(ctx, txid)
	if err != nil {
		return nil, nil, err
	}
	if info == nil {
		return nil, nil, ErrTxUnavailable
	}

	tx, err := decodeTxHex(info.Hex)
	if err != nil {
		log.Warnf("Undecodable transaction %s: %v", txid, err)

		return nil, nil, ErrTxUnavailable
	}

	return info, tx, nil
}

// txFee computes the fee a transaction pays by resolving every spent
// output at the chain source.
func (f *FeeBumper) txFee(ctx context.Context,
	tx *wire.MsgTx) (btcutil.Amount, error) {

	var inputTotal btcutil.Amount
	for _, txIn := range tx.TxIn {
		op := txIn.PreviousOutPoint
		prevOut, err := f.chain.PrevOutput(
			ctx, op.Hash.String(), op.Index,
		)
		if err != nil {
			return 0, err
		}
		if prevOut == nil {
			return 0, fmt.Errorf("%w: missing previous output %v",
				ErrTxUnavailable, op)
		}

		inputTotal += btcutil.Amount(prevOut.Value)
	}

	var outputTotal btcutil.Amount
	for _, txOut := range tx.TxOut {
		outputTotal += btcutil.Amount(txOut.Value)
	}

	return inputTotal - outputTotal, nil
}

// walletCosigners derives the cosigner list and multisig quorum from a
// wallet record. Multisig wallets take their cosigners from the parsed
// descriptor; single-sig wallets fall back to the enrolled device keys
// with the descriptor's account path. A quorum of zero means single-sig.
func walletCosigners(rec *WalletRecord) ([]multisig.Cosigner, int) {
	parsed, err := descriptor.Parse(rec.Descriptor)
	if err != nil {
		log.Warnf("Unparseable descriptor for wallet %s: %v", rec.ID,
			err)

		return nil, 0
	}

	if parsed.Type.IsMultisig() {
		cosigners := make([]multisig.Cosigner, 0, len(parsed.Keys))
		for _, key := range parsed.Keys {
			cosigners = append(cosigners, multisig.Cosigner{
				Fingerprint: key.Fingerprint,
				XPub:        key.XPub,
				AccountPath: key.AccountPath,
				Suffix:      key.Suffix,
			})
		}

		return cosigners, parsed.Quorum
	}

	cosigners := []multisig.Cosigner{{
		Fingerprint: parsed.Fingerprint,
		XPub:        parsed.Key,
		AccountPath: parsed.AccountPath,
		Suffix:      parsed.Suffix,
	}}

	// Extra enrolled devices that are not the descriptor key still get
	// derivation entries so their signers recognize the inputs.
	for _, dev := range rec.Devices {
		if dev.XPub == parsed.Key {
			continue
		}
		cosigners = append(cosigners, multisig.Cosigner{
			Fingerprint: dev.Fingerprint,
			XPub:        dev.XPub,
			AccountPath: parsed.AccountPath,
			Suffix:      parsed.Suffix,
		})
	}

	return cosigners, 0
}

// decodeTxHex decodes a hex-encoded wire transaction.
func decodeTxHex(rawTxHex string) (*wire.MsgTx, error) {
	rawTx, err := hex.DecodeString(rawTxHex)
	if err != nil {
		return nil, err
	}

	tx := wire.NewMsgTx(wire.TxVersion)
	if err := tx.Deserialize(bytes.NewReader(rawTx)); err != nil {
		return nil, err
	}

	return tx, nil
}

// rbfSignaled reports whether any input sequence opts into BIP125
// replacement.
func rbfSignaled(tx *wire.MsgTx) bool {
	for _, txIn := range tx.TxIn {
		if txIn.Sequence <= maxRbfSequence {
			return true
		}
	}

	return false
}

// txVSize returns the virtual size of a transaction.
func txVSize(tx *wire.MsgTx) unit.VByte {
	weight := blockchain.GetTransactionWeight(btcutil.NewTx(tx))

	return unit.WeightUnit(weight).ToVB()
}
