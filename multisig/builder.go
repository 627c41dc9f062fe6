// Copyright (c) 2026 The sanctuary developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package multisig derives cosigner keys and builds the BIP67-ordered
// witness scripts of an m-of-n wallet, together with the BIP32 derivation
// metadata that lets hardware wallets recognize their own keys inside a
// PSBT. It also contains the defensive parser that recovers m, n and the
// public keys from raw witness script bytes.
package multisig

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"sort"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/btcsuite/btcd/btcutil/psbt"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"

	"github.com/nekoguntai/sanctuary-sub007/slip132"
)

// Cosigner is one participant of a multisig wallet: a master fingerprint,
// an extended public key in any SLIP-132 encoding, and the derivation
// information taken from the wallet descriptor.
type Cosigner struct {
	// Fingerprint is the 8-hex-character master key fingerprint.
	Fingerprint string

	// XPub is the cosigner's account-level extended public key.
	XPub string

	// AccountPath is the hardened path from the master key to XPub, e.g.
	// "48h/1h/0h/2h". May be empty if the descriptor carried no origin.
	AccountPath string

	// Suffix is the per-address derivation template, e.g. "0/*" or
	// "<0;1>/*".
	Suffix string
}

// WitnessScript is a compiled m-of-n CHECKMULTISIG witness script together
// with the BIP67-sorted public keys it commits to. PubKeys always has
// exactly N entries; anything else would not be a valid multisig script.
type WitnessScript struct {
	// Script is the serialized witness script.
	Script []byte

	// M is the number of required signatures.
	M int

	// N is the total number of public keys.
	N int

	// PubKeys holds the compressed public keys in script (BIP67) order.
	PubKeys [][]byte
}

// Address returns the P2WSH address committing to the witness script.
func (w *WitnessScript) Address(net *chaincfg.Params) (string, error) {
	scriptHash := sha256.Sum256(w.Script)
	addr, err := btcutil.NewAddressWitnessScriptHash(scriptHash[:], net)
	if err != nil {
		return "", err
	}

	return addr.EncodeAddress(), nil
}

// NestedAddress returns the P2SH address wrapping the P2WSH witness program,
// for the sh(wsh(...)) descriptor form.
func (w *WitnessScript) NestedAddress(net *chaincfg.Params) (string, error) {
	scriptHash := sha256.Sum256(w.Script)
	witnessAddr, err := btcutil.NewAddressWitnessScriptHash(
		scriptHash[:], net,
	)
	if err != nil {
		return "", err
	}

	witnessProgram, err := txscript.PayToAddrScript(witnessAddr)
	if err != nil {
		return "", err
	}

	addr, err := btcutil.NewAddressScriptHash(witnessProgram, net)
	if err != nil {
		return "", err
	}

	return addr.EncodeAddress(), nil
}

// PkScript returns the P2WSH output script committing to the witness script.
func (w *WitnessScript) PkScript() ([]byte, error) {
	scriptHash := sha256.Sum256(w.Script)

	return txscript.NewScriptBuilder().
		AddOp(txscript.OP_0).
		AddData(scriptHash[:]).
		Script()
}

// BuildBip32Derivations derives every cosigner's public key at the
// change/index tail of fullPath and returns the BIP32 derivation entries to
// attach to a PSBT input or output.
//
// A cosigner whose key fails to normalize or derive is skipped with a
// warning rather than failing the whole list: a hardware wallet simply
// ignores fingerprints it does not recognize, so a partial list still lets
// every reachable device identify its key.
func BuildBip32Derivations(fullPath string, cosigners []Cosigner,
	net *chaincfg.Params) []*psbt.Bip32Derivation {

	change, index, err := pathTail(fullPath)
	if err != nil {
		log.Warnf("Unable to parse derivation path %q: %v", fullPath,
			err)
		return nil
	}

	derivations := make([]*psbt.Bip32Derivation, 0, len(cosigners))
	for _, cosigner := range cosigners {
		steps := resolveSuffix(cosigner.Suffix, change, index)

		pubKey, err := cosigner.deriveAt(steps, net)
		if err != nil {
			log.Warnf("Skipping cosigner %s: unable to derive "+
				"key: %v", cosigner.Fingerprint, err)
			continue
		}

		accountSteps, err := parseAccountSteps(cosigner.AccountPath)
		if err != nil {
			log.Warnf("Skipping cosigner %s: invalid account "+
				"path %q: %v", cosigner.Fingerprint,
				cosigner.AccountPath, err)
			continue
		}

		derivations = append(derivations, &psbt.Bip32Derivation{
			PubKey:               pubKey.SerializeCompressed(),
			MasterKeyFingerprint: cosigner.fingerprintLE(),
			Bip32Path:            append(accountSteps, steps...),
		})
	}

	return derivations
}

// BuildWitnessScript derives every cosigner's public key at the change/index
// tail of fullPath, sorts the keys by raw byte value (BIP67) and compiles
// the m-of-n CHECKMULTISIG witness script. The sort guarantees that every
// participant compiles a byte-identical script regardless of the order the
// cosigners were supplied in.
//
// Unlike BuildBip32Derivations, a single failing cosigner key fails the
// whole operation and nil is returned: a witness script built from an
// incomplete key set would commit to the wrong script hash.
func BuildWitnessScript(fullPath string, cosigners []Cosigner, quorum int,
	net *chaincfg.Params) *WitnessScript {

	if quorum < 1 || quorum > len(cosigners) {
		log.Warnf("Invalid quorum %d for %d cosigners", quorum,
			len(cosigners))
		return nil
	}

	change, index, err := pathTail(fullPath)
	if err != nil {
		log.Warnf("Unable to parse derivation path %q: %v", fullPath,
			err)
		return nil
	}

	pubKeys := make([][]byte, 0, len(cosigners))
	for _, cosigner := range cosigners {
		steps := resolveSuffix(cosigner.Suffix, change, index)

		pubKey, err := cosigner.deriveAt(steps, net)
		if err != nil {
			log.Warnf("Unable to derive key for cosigner %s, "+
				"aborting witness script: %v",
				cosigner.Fingerprint, err)
			return nil
		}

		pubKeys = append(pubKeys, pubKey.SerializeCompressed())
	}

	sort.Slice(pubKeys, func(i, j int) bool {
		return bytes.Compare(pubKeys[i], pubKeys[j]) < 0
	})

	builder := txscript.NewScriptBuilder()
	builder.AddInt64(int64(quorum))
	for _, pubKey := range pubKeys {
		builder.AddData(pubKey)
	}
	builder.AddInt64(int64(len(pubKeys)))
	builder.AddOp(txscript.OP_CHECKMULTISIG)

	script, err := builder.Script()
	if err != nil {
		log.Warnf("Unable to compile witness script: %v", err)
		return nil
	}

	return &WitnessScript{
		Script:  script,
		M:       quorum,
		N:       len(pubKeys),
		PubKeys: pubKeys,
	}
}

// deriveAt normalizes the cosigner's extended key for the target network and
// derives the public key at the given unhardened steps.
func (c Cosigner) deriveAt(steps []uint32,
	net *chaincfg.Params) (*btcec.PublicKey, error) {

	ext, err := hdkeychain.NewKeyFromString(c.normalizedKey(net))
	if err != nil {
		return nil, err
	}

	for _, step := range steps {
		ext, err = ext.Derive(step)
		if err != nil {
			return nil, err
		}
	}

	return ext.ECPubKey()
}

// normalizedKey re-encodes the cosigner key to the canonical prefix of the
// target network so hdkeychain can parse it regardless of the SLIP-132
// encoding the device exported.
func (c Cosigner) normalizedKey(net *chaincfg.Params) string {
	target := "xpub"
	if net.Net != wire.MainNet {
		target = "tpub"
	}

	key, err := slip132.ToFormat(c.XPub, target)
	if err != nil {
		return c.XPub
	}

	return key
}

// fingerprintLE returns the master fingerprint as the little-endian uint32
// the psbt package expects. An unparseable fingerprint maps to zero, which
// hardware wallets treat as unknown.
func (c Cosigner) fingerprintLE() uint32 {
	raw, err := hex.DecodeString(c.Fingerprint)
	if err != nil || len(raw) != 4 {
		return 0
	}

	return binary.LittleEndian.Uint32(raw)
}
