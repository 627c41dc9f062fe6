// Copyright (c) 2026 The sanctuary developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package deriver turns extended public keys and descriptors into addresses
// and compressed public keys. Derivation is pure BIP32 public derivation:
// the package never sees private key material, which is what makes it safe
// to run on the server side of a hardware-wallet setup.
package deriver

import (
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/txscript"

	"github.com/nekoguntai/sanctuary-sub007/descriptor"
	"github.com/nekoguntai/sanctuary-sub007/multisig"
	"github.com/nekoguntai/sanctuary-sub007/slip132"
)

var (
	// ErrUnknownNetwork is returned when a network name does not resolve
	// to chain parameters. An unrecognized network must never silently
	// fall back to mainnet: deriving mainnet addresses for what the user
	// believes is a test wallet is how funds get burned.
	ErrUnknownNetwork = errors.New("unknown network")

	// ErrUnknownScriptType is returned for an unsupported script type.
	ErrUnknownScriptType = errors.New("unknown script type")
)

// ScriptType selects the address encoding and the BIP44-family purpose
// number used in derivation paths.
type ScriptType string

const (
	// Legacy is pay-to-pubkey-hash, purpose 44.
	Legacy ScriptType = "legacy"

	// NestedSegwit is P2WPKH wrapped in P2SH, purpose 49.
	NestedSegwit ScriptType = "nested_segwit"

	// NativeSegwit is pay-to-witness-pubkey-hash, purpose 84.
	NativeSegwit ScriptType = "native_segwit"

	// Taproot is pay-to-taproot, purpose 86.
	Taproot ScriptType = "taproot"
)

// purpose returns the BIP43 purpose number for the script type.
func (s ScriptType) purpose() (uint32, error) {
	switch s {
	case Legacy:
		return 44, nil
	case NestedSegwit:
		return 49, nil
	case NativeSegwit:
		return 84, nil
	case Taproot:
		return 86, nil
	}

	return 0, fmt.Errorf("%w: %q", ErrUnknownScriptType, s)
}

// Params maps a network name to its chain parameters. Recognized names are
// mainnet, testnet, signet and regtest.
func Params(network string) (*chaincfg.Params, error) {
	switch network {
	case "mainnet":
		return &chaincfg.MainNetParams, nil
	case "testnet":
		return &chaincfg.TestNet3Params, nil
	case "signet":
		return &chaincfg.SigNetParams, nil
	case "regtest":
		return &chaincfg.RegressionNetParams, nil
	}

	return nil, fmt.Errorf("%w: %q", ErrUnknownNetwork, network)
}

// coinType returns the BIP44 coin type for a network: 0 for mainnet, 1 for
// every test network.
func coinType(network string) uint32 {
	if network == "mainnet" {
		return 0
	}

	return 1
}

// Options bundles the parameters of an address derivation.
type Options struct {
	// ScriptType selects the address encoding.
	ScriptType ScriptType

	// Network is the network name, resolved through Params.
	Network string

	// Change selects the internal branch (1) instead of the external
	// branch (0).
	Change bool
}

// Derived is the result of deriving one address.
type Derived struct {
	// Address is the encoded address.
	Address string

	// Path is the full derivation path from the master key, e.g.
	// "m/84'/1'/0'/0/5".
	Path string

	// PubKey is the 33-byte compressed public key at that path. It is nil
	// for multisig derivations, where no single key stands for the
	// address.
	PubKey []byte
}

// Address derives the address at the given index from an extended public
// key. The key may carry any SLIP-132 prefix; it is normalized before
// derivation. Identical arguments always produce identical results.
func Address(xpub string, index uint32, opts Options) (*Derived, error) {
	net, err := Params(opts.Network)
	if err != nil {
		return nil, err
	}

	purpose, err := opts.ScriptType.purpose()
	if err != nil {
		return nil, err
	}

	pubKey, err := derivePubKey(xpub, changeIndex(opts.Change), index)
	if err != nil {
		return nil, err
	}

	addr, err := encodeAddress(
		pubKey.SerializeCompressed(), opts.ScriptType, net,
	)
	if err != nil {
		return nil, err
	}

	return &Derived{
		Address: addr,
		Path: fmt.Sprintf("m/%d'/%d'/0'/%d/%d", purpose,
			coinType(opts.Network), changeIndex(opts.Change),
			index),
		PubKey: pubKey.SerializeCompressed(),
	}, nil
}

// Addresses derives count consecutive addresses starting at start. The
// result is ordered by index and, like Address, fully deterministic and
// stateless: calling it twice yields byte-identical results.
func Addresses(xpub string, start, count uint32,
	opts Options) ([]Derived, error) {

	result := make([]Derived, 0, count)
	for i := start; i < start+count; i++ {
		derived, err := Address(xpub, i, opts)
		if err != nil {
			return nil, err
		}

		result = append(result, *derived)
	}

	return result, nil
}

// AddressFromDescriptor parses a descriptor and derives the address at the
// given index. Multisig descriptors route through the multisig script
// builder; everything else goes through single-key derivation with the
// script type implied by the descriptor wrapper.
func AddressFromDescriptor(desc string, index uint32, network string,
	change bool) (*Derived, error) {

	parsed, err := descriptor.Parse(desc)
	if err != nil {
		return nil, err
	}

	if parsed.Type.IsMultisig() {
		return multisigAddress(parsed, index, network, change)
	}

	scriptType, err := scriptTypeFor(parsed.Type)
	if err != nil {
		return nil, err
	}

	return Address(parsed.Key, index, Options{
		ScriptType: scriptType,
		Network:    network,
		Change:     change,
	})
}

// AddressesFromDescriptor derives count consecutive addresses from a
// descriptor starting at start, ordered by index.
func AddressesFromDescriptor(desc string, start, count uint32,
	network string, change bool) ([]Derived, error) {

	result := make([]Derived, 0, count)
	for i := start; i < start+count; i++ {
		derived, err := AddressFromDescriptor(desc, i, network, change)
		if err != nil {
			return nil, err
		}

		result = append(result, *derived)
	}

	return result, nil
}

// multisigAddress derives the P2WSH (or P2SH-wrapped P2WSH) address of a
// sortedmulti descriptor at the given index.
func multisigAddress(parsed *descriptor.Parsed, index uint32,
	network string, change bool) (*Derived, error) {

	net, err := Params(network)
	if err != nil {
		return nil, err
	}

	cosigners := make([]multisig.Cosigner, len(parsed.Keys))
	for i, key := range parsed.Keys {
		cosigners[i] = multisig.Cosigner{
			Fingerprint: key.Fingerprint,
			XPub:        key.XPub,
			AccountPath: key.AccountPath,
			Suffix:      key.Suffix,
		}
	}

	fullPath := fmt.Sprintf("m/%d/%d", changeIndex(change), index)
	script := multisig.BuildWitnessScript(
		fullPath, cosigners, parsed.Quorum, net,
	)
	if script == nil {
		return nil, fmt.Errorf("unable to build witness script for "+
			"descriptor with %d keys", len(parsed.Keys))
	}

	addr, err := script.Address(net)
	if err != nil {
		return nil, err
	}

	if parsed.Type == descriptor.TypeShWshSortedMulti {
		addr, err = script.NestedAddress(net)
		if err != nil {
			return nil, err
		}
	}

	return &Derived{
		Address: addr,
		Path:    fullPath,
	}, nil
}

// scriptTypeFor maps a single-sig descriptor type to its script type.
func scriptTypeFor(t descriptor.Type) (ScriptType, error) {
	switch t {
	case descriptor.TypePkh:
		return Legacy, nil
	case descriptor.TypeShWpkh:
		return NestedSegwit, nil
	case descriptor.TypeWpkh:
		return NativeSegwit, nil
	case descriptor.TypeTr:
		return Taproot, nil
	}

	return "", fmt.Errorf("%w: descriptor type %q",
		ErrUnknownScriptType, t)
}

// derivePubKey normalizes the extended key and derives the public child at
// change/index. Both steps are unhardened, which is the whole point: public
// derivation needs no private key.
func derivePubKey(xpub string, change, index uint32) (*btcec.PublicKey,
	error) {

	ext, err := hdkeychain.NewKeyFromString(slip132.ToCanonical(xpub))
	if err != nil {
		return nil, fmt.Errorf("unable to parse extended key: %w", err)
	}

	branch, err := ext.Derive(change)
	if err != nil {
		return nil, fmt.Errorf("unable to derive branch %d: %w",
			change, err)
	}

	child, err := branch.Derive(index)
	if err != nil {
		return nil, fmt.Errorf("unable to derive index %d: %w",
			index, err)
	}

	return child.ECPubKey()
}

// encodeAddress encodes a compressed public key as an address of the given
// script type.
func encodeAddress(pubKey []byte, scriptType ScriptType,
	net *chaincfg.Params) (string, error) {

	switch scriptType {
	case Legacy:
		addr, err := btcutil.NewAddressPubKeyHash(
			btcutil.Hash160(pubKey), net,
		)
		if err != nil {
			return "", err
		}

		return addr.EncodeAddress(), nil

	case NestedSegwit:
		witAddr, err := btcutil.NewAddressWitnessPubKeyHash(
			btcutil.Hash160(pubKey), net,
		)
		if err != nil {
			return "", err
		}

		script, err := txscript.PayToAddrScript(witAddr)
		if err != nil {
			return "", err
		}

		addr, err := btcutil.NewAddressScriptHash(script, net)
		if err != nil {
			return "", err
		}

		return addr.EncodeAddress(), nil

	case NativeSegwit:
		addr, err := btcutil.NewAddressWitnessPubKeyHash(
			btcutil.Hash160(pubKey), net,
		)
		if err != nil {
			return "", err
		}

		return addr.EncodeAddress(), nil

	case Taproot:
		// The x-only key is the compressed key without its parity
		// byte.
		addr, err := btcutil.NewAddressTaproot(pubKey[1:33], net)
		if err != nil {
			return "", err
		}

		return addr.EncodeAddress(), nil
	}

	return "", fmt.Errorf("%w: %q", ErrUnknownScriptType, scriptType)
}

// changeIndex maps the change flag to its branch number.
func changeIndex(change bool) uint32 {
	if change {
		return 1
	}

	return 0
}
