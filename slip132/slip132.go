// Copyright (c) 2026 The sanctuary developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package slip132 converts between the extended public key encodings defined
// in SLIP-132 (xpub/ypub/zpub and friends) without ever touching the key
// material itself. Hardware wallets and coordinator software frequently
// export the same BIP32 node under different version bytes; the rest of this
// module only understands the canonical xpub/tpub encodings, so everything is
// funneled through ToCanonical before derivation.
package slip132

import (
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/btcutil/base58"
)

var (
	// ErrUnknownPrefix is returned by ToFormat when the requested target
	// prefix is not a recognized SLIP-132 prefix.
	ErrUnknownPrefix = errors.New("unknown slip132 prefix")
)

// payloadLen is the length of a serialized BIP32 extended key: 4 version
// bytes, 1 depth byte, 4 parent fingerprint bytes, 4 child number bytes, 32
// chain code bytes and 33 key bytes.
const payloadLen = 78

// versionBytes maps each SLIP-132 prefix to its 4-byte base58check version.
var versionBytes = map[string][4]byte{
	// Mainnet family.
	"xpub": {0x04, 0x88, 0xb2, 0x1e},
	"ypub": {0x04, 0x9d, 0x7c, 0xb2},
	"zpub": {0x04, 0xb2, 0x47, 0x46},
	"Ypub": {0x02, 0x95, 0xb4, 0x3f},
	"Zpub": {0x02, 0xaa, 0x7e, 0xd3},

	// Testnet family.
	"tpub": {0x04, 0x35, 0x87, 0xcf},
	"upub": {0x04, 0x4a, 0x52, 0x62},
	"vpub": {0x04, 0x5f, 0x1c, 0xf6},
	"Upub": {0x02, 0x42, 0x89, 0xef},
	"Vpub": {0x02, 0x57, 0x54, 0x83},
}

// testnetPrefixes is the set of prefixes belonging to the testnet family.
// Everything else in versionBytes is mainnet.
var testnetPrefixes = map[string]struct{}{
	"tpub": {}, "upub": {}, "vpub": {}, "Upub": {}, "Vpub": {},
}

// Prefix returns the four-character encoding prefix of an extended key
// string, or the empty string if the input is too short to carry one.
func Prefix(key string) string {
	if len(key) < 4 {
		return ""
	}

	return key[:4]
}

// IsExtendedKey reports whether the string carries a recognized SLIP-132
// prefix and decodes as a well-formed base58check extended key.
func IsExtendedKey(key string) bool {
	if _, ok := versionBytes[Prefix(key)]; !ok {
		return false
	}

	_, err := decode(key)

	return err == nil
}

// ToCanonical re-encodes an extended key carrying any recognized SLIP-132
// prefix into the canonical encoding for its network family: xpub for the
// mainnet prefixes, tpub for the testnet ones.
//
// A key that fails to decode, or whose prefix is not recognized, is returned
// unchanged. This leniency is deliberate: downstream consumers (hdkeychain,
// the descriptor parser) produce far clearer errors for a malformed key than
// this layer could, so we let them be the ones to reject it.
func ToCanonical(key string) string {
	prefix := Prefix(key)
	if _, ok := versionBytes[prefix]; !ok {
		return key
	}

	target := "xpub"
	if _, testnet := testnetPrefixes[prefix]; testnet {
		target = "tpub"
	}

	converted, err := convert(key, target)
	if err != nil {
		return key
	}

	return converted
}

// ToFormat re-encodes an extended key to carry the given target prefix. It is
// used for exports that require a fixed format, e.g. handing a zpub back to a
// device that only understands zpubs. The target prefix must be a recognized
// SLIP-132 prefix; a key that fails to decode is returned unchanged with a
// nil error, mirroring the leniency of ToCanonical.
func ToFormat(key, targetPrefix string) (string, error) {
	if _, ok := versionBytes[targetPrefix]; !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownPrefix, targetPrefix)
	}

	converted, err := convert(key, targetPrefix)
	if err != nil {
		return key, nil
	}

	return converted, nil
}

// decode base58check-decodes an extended key string into its raw 78-byte
// serialization, version bytes included.
func decode(key string) ([]byte, error) {
	// CheckDecode validates the checksum and splits off the first payload
	// byte as the "version". Extended keys use a 4-byte version, so we
	// stitch that first byte back on before working with the payload.
	rest, first, err := base58.CheckDecode(key)
	if err != nil {
		return nil, err
	}

	payload := append([]byte{first}, rest...)
	if len(payload) != payloadLen {
		return nil, fmt.Errorf("invalid extended key length %d",
			len(payload))
	}

	return payload, nil
}

// convert swaps the 4-byte version of a serialized extended key for the one
// belonging to targetPrefix and re-encodes. Depth, parent fingerprint, child
// number, chain code and key bytes all pass through untouched.
func convert(key, targetPrefix string) (string, error) {
	payload, err := decode(key)
	if err != nil {
		return "", err
	}

	version := versionBytes[targetPrefix]
	copy(payload[:4], version[:])

	return base58.CheckEncode(payload[1:], payload[0]), nil
}
