// Copyright (c) 2026 The sanctuary developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wallet

import (
	"encoding/hex"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/ecdsa"
	"github.com/btcsuite/btcd/btcutil/psbt"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/davecgh/go-spew/spew"

	"github.com/nekoguntai/sanctuary-sub007/multisig"
)

// Finalizer assembles the final witness for multisig PSBT inputs once
// enough partial signatures have been collected from external signers.
//
// Signature verification during finalization is advisory by default: the
// external signer is treated as the source of truth, and a signature that
// fails local verification is logged rather than rejected. Setting
// Config.StrictVerify turns those warnings into hard errors.
type Finalizer struct {
	cfg *Config
}

// NewFinalizer creates a Finalizer with the given configuration.
func NewFinalizer(cfg *Config) *Finalizer {
	cfg.normalize()

	return &Finalizer{cfg: cfg}
}

// FinalizeMultisigInput assembles and attaches the final witness for the
// P2WSH multisig input at inputIndex. The input must carry a witness
// script and at least one partial signature. Signatures are matched to
// the script's public keys in script order, and exactly m of them must
// match for finalization to succeed.
//
// The assembled stack is [empty, sig_1 .. sig_m, witnessScript], where
// the leading empty element compensates the historical CHECKMULTISIG
// off-by-one. Inputs are finalized independently, so partially finalized
// packets are valid intermediate states.
func (f *Finalizer) FinalizeMultisigInput(packet *psbt.Packet,
	inputIndex int) error {

	if inputIndex < 0 || inputIndex >= len(packet.Inputs) {
		return fmt.Errorf("input index %d out of range", inputIndex)
	}
	in := &packet.Inputs[inputIndex]

	if len(in.WitnessScript) == 0 {
		return ErrMissingWitnessScript
	}
	if len(in.PartialSigs) == 0 {
		return ErrNoPartialSigs
	}

	// The witness script arrives as untrusted raw bytes from the PSBT,
	// so parse it defensively before trusting its m and key list.
	info := multisig.ParseScript(in.WitnessScript)
	if !info.IsMultisig {
		return ErrNotMultisigScript
	}

	// Best-effort verification of each partial signature against the
	// P2WSH sighash. A missing previous output or a failing signature is
	// logged and finalization proceeds, unless strict verification is
	// requested.
	if err := f.verifySigs(packet, inputIndex, in); err != nil {
		return err
	}

	// Index the partial signatures by signing key so they can be
	// collected in script order below.
	sigsByKey := make(map[string][]byte, len(in.PartialSigs))
	for _, partialSig := range in.PartialSigs {
		key := hex.EncodeToString(partialSig.PubKey)
		sigsByKey[key] = partialSig.Signature
	}

	// CHECKMULTISIG requires signatures in the same relative order as
	// the public keys they sign for, so walk the script's key list and
	// pick up the matching signatures.
	matched := make([][]byte, 0, info.M)
	for _, pubKey := range info.PubKeys {
		sig, ok := sigsByKey[hex.EncodeToString(pubKey)]
		if !ok {
			continue
		}
		matched = append(matched, sig)
	}

	if len(matched) != info.M {
		return fmt.Errorf("%w: have %d, need %d", ErrSignatureCount,
			len(matched), info.M)
	}

	stack := make(wire.TxWitness, 0, info.M+2)
	stack = append(stack, []byte{})
	stack = append(stack, matched...)
	stack = append(stack, in.WitnessScript)

	finalWitness, err := SerializeWitnessStack(stack)
	if err != nil {
		return fmt.Errorf("serializing witness stack: %w", err)
	}

	log.Tracef("Final witness for input %d: %v", inputIndex,
		spew.Sdump(stack))

	in.FinalScriptWitness = finalWitness

	return nil
}

// verifySigs checks every partial signature of the input against the
// computed P2WSH sighash. Failures are warnings unless StrictVerify is
// set.
func (f *Finalizer) verifySigs(packet *psbt.Packet, inputIndex int,
	in *psbt.PInput) error {

	fetcher := PsbtPrevOutputFetcher(packet)
	prevOut := fetcher.FetchPrevOutput(
		packet.UnsignedTx.TxIn[inputIndex].PreviousOutPoint,
	)
	if prevOut == nil {
		log.Warnf("No previous output for input %d, skipping "+
			"signature verification", inputIndex)

		return nil
	}

	sigHashes := txscript.NewTxSigHashes(packet.UnsignedTx, fetcher)

	for _, partialSig := range in.PartialSigs {
		err := verifyPartialSig(
			partialSig, in.WitnessScript, sigHashes,
			packet.UnsignedTx, inputIndex, prevOut.Value,
		)
		if err == nil {
			continue
		}

		log.Warnf("Signature for key %x on input %d failed "+
			"verification: %v", partialSig.PubKey, inputIndex, err)

		if f.cfg.StrictVerify {
			return fmt.Errorf("%w: key %x: %v", ErrSigVerification,
				partialSig.PubKey, err)
		}
	}

	return nil
}

// verifyPartialSig verifies one DER signature, with its trailing sighash
// type byte, against the witness sighash of the given input.
func verifyPartialSig(partialSig *psbt.PartialSig, witnessScript []byte,
	sigHashes *txscript.TxSigHashes, tx *wire.MsgTx, inputIndex int,
	value int64) error {

	rawSig := partialSig.Signature
	if len(rawSig) < 2 {
		return fmt.Errorf("signature too short")
	}

	hashType := txscript.SigHashType(rawSig[len(rawSig)-1])
	sig, err := ecdsa.ParseDERSignature(rawSig[:len(rawSig)-1])
	if err != nil {
		return fmt.Errorf("parsing DER signature: %w", err)
	}

	pubKey, err := btcec.ParsePubKey(partialSig.PubKey)
	if err != nil {
		return fmt.Errorf("parsing pubkey: %w", err)
	}

	sigHash, err := txscript.CalcWitnessSigHash(
		witnessScript, sigHashes, hashType, tx, inputIndex, value,
	)
	if err != nil {
		return fmt.Errorf("computing sighash: %w", err)
	}

	if !sig.Verify(sigHash, pubKey) {
		return fmt.Errorf("signature does not verify")
	}

	return nil
}
