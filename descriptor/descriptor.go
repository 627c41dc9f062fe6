// Copyright (c) 2026 The sanctuary developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package descriptor parses the subset of Bitcoin output descriptors used by
// the wallet server: the single-sig wrappers pkh, wpkh, sh(wpkh) and tr, and
// the sortedmulti multisig forms wsh(sortedmulti(...)) and
// sh(wsh(sortedmulti(...))). A descriptor is the single source of truth for a
// wallet's scripts, so parsing is strict about structure but tolerant about
// key origin: keys without a bracketed origin fall back to a sentinel
// fingerprint and the default external-branch suffix.
package descriptor

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var (
	// ErrUnknownFormat is returned when the descriptor's outermost wrapper
	// is not one of the recognized script functions.
	ErrUnknownFormat = errors.New("unrecognized descriptor format")

	// ErrNoKey is returned when a recognized wrapper contains no
	// extractable key expression.
	ErrNoKey = errors.New("no key found in descriptor")

	// ErrBadQuorum is returned when the multisig quorum is malformed,
	// zero, or exceeds the number of keys.
	ErrBadQuorum = errors.New("invalid multisig quorum")

	// ErrNoMultisigKeys is returned when a multisig body yields zero
	// extractable keys.
	ErrNoMultisigKeys = errors.New("no keys found in multisig descriptor")
)

// Type identifies the script template a descriptor resolves to.
type Type string

const (
	// TypePkh is a legacy pay-to-pubkey-hash descriptor.
	TypePkh Type = "pkh"

	// TypeWpkh is a native segwit v0 pay-to-witness-pubkey-hash
	// descriptor.
	TypeWpkh Type = "wpkh"

	// TypeShWpkh is a nested segwit descriptor, P2WPKH wrapped in P2SH.
	TypeShWpkh Type = "sh-wpkh"

	// TypeTr is a taproot descriptor.
	TypeTr Type = "tr"

	// TypeWshSortedMulti is a native segwit sortedmulti descriptor.
	TypeWshSortedMulti Type = "wsh-sortedmulti"

	// TypeShWshSortedMulti is a sortedmulti descriptor wrapped in P2SH.
	TypeShWshSortedMulti Type = "sh-wsh-sortedmulti"
)

// IsMultisig reports whether the type is one of the sortedmulti forms.
func (t Type) IsMultisig() bool {
	return t == TypeWshSortedMulti || t == TypeShWshSortedMulti
}

const (
	// SentinelFingerprint stands in for the master fingerprint of a key
	// that carries no origin information. Hardware wallets ignore
	// fingerprints they do not recognize, so the sentinel is harmless in
	// derivation metadata.
	SentinelFingerprint = "00000000"

	// DefaultSuffix is the per-address derivation suffix assumed for keys
	// that do not spell one out: the external branch, ranged over the
	// address index.
	DefaultSuffix = "0/*"
)

// KeyInfo is one cosigner key extracted from a descriptor.
type KeyInfo struct {
	// Fingerprint is the 8-hex-character master key fingerprint from the
	// key origin, or SentinelFingerprint if the key had no origin.
	Fingerprint string

	// AccountPath is the derivation path from the key origin, e.g.
	// "84h/1h/0h". Empty when the key had no origin.
	AccountPath string

	// XPub is the extended public key exactly as it appeared in the
	// descriptor, SLIP-132 prefix and all.
	XPub string

	// Suffix is the per-address derivation template that follows the key,
	// e.g. "0/*" or "<0;1>/*".
	Suffix string
}

// Parsed is the structured form of a descriptor. Exactly one of the
// single-sig fields (Key et al.) or the multisig fields (Quorum, Keys) is
// populated, according to Type.IsMultisig.
type Parsed struct {
	// Type is the resolved script template.
	Type Type

	// Key is the single extended public key for single-sig descriptors.
	Key string

	// Fingerprint is the single-sig key's origin fingerprint.
	Fingerprint string

	// AccountPath is the single-sig key's origin path.
	AccountPath string

	// Suffix is the single-sig per-address derivation template.
	Suffix string

	// Quorum is the number of required signatures for multisig
	// descriptors.
	Quorum int

	// Keys holds every cosigner key of a multisig descriptor, in
	// descriptor order.
	Keys []KeyInfo
}

// Parse parses a descriptor string into its structured form. Multisig
// wrappers are detected first; anything that is neither a known multisig nor
// a known single-sig wrapper is an ErrUnknownFormat.
func Parse(desc string) (*Parsed, error) {
	desc = strings.TrimSpace(desc)

	// A trailing #checksum is accepted and ignored. Validating it would
	// reject descriptors hand-edited by users, and the structure check
	// below catches real corruption anyway.
	if i := strings.LastIndexByte(desc, '#'); i >= 0 {
		desc = desc[:i]
	}

	sc := newScanner(desc)
	wrapper := sc.ident()

	switch wrapper {
	case "sh":
		if !sc.accept('(') {
			return nil, fmt.Errorf("%w: %q", ErrUnknownFormat, desc)
		}

		inner := sc.ident()
		switch inner {
		case "wsh":
			return parseMultisigBody(sc, TypeShWshSortedMulti, true)

		case "wpkh":
			return parseSingleBody(sc, TypeShWpkh)
		}

		return nil, fmt.Errorf("%w: sh(%s...)", ErrUnknownFormat,
			inner)

	case "wsh":
		return parseMultisigBody(sc, TypeWshSortedMulti, false)

	case "sortedmulti", "multi":
		return parseMultisig(sc, TypeWshSortedMulti)

	case "pkh":
		return parseSingleBody(sc, TypePkh)

	case "wpkh":
		return parseSingleBody(sc, TypeWpkh)

	case "tr":
		return parseSingleBody(sc, TypeTr)
	}

	return nil, fmt.Errorf("%w: %q", ErrUnknownFormat, desc)
}

// parseMultisigBody consumes "(sortedmulti(...))" (with one extra closing
// paren when wrapped is true, for the sh(wsh(...)) form) and parses the
// multisig call inside.
func parseMultisigBody(sc *scanner, typ Type, wrapped bool) (*Parsed, error) {
	if !sc.accept('(') {
		return nil, ErrUnknownFormat
	}

	fn := sc.ident()
	if fn != "sortedmulti" && fn != "multi" {
		return nil, fmt.Errorf("%w: wsh(%s...)", ErrUnknownFormat, fn)
	}

	parsed, err := parseMultisig(sc, typ)
	if err != nil {
		return nil, err
	}

	if !sc.accept(')') {
		return nil, ErrUnknownFormat
	}
	if wrapped && !sc.accept(')') {
		return nil, ErrUnknownFormat
	}

	return parsed, nil
}

// parseMultisig parses the argument list of a (sorted)multi call, with the
// scanner positioned on its opening paren.
func parseMultisig(sc *scanner, typ Type) (*Parsed, error) {
	if !sc.accept('(') {
		return nil, ErrUnknownFormat
	}

	body, ok := sc.balanced()
	if !ok {
		return nil, ErrUnknownFormat
	}

	parts := splitTopLevel(body)
	if len(parts) < 2 {
		return nil, ErrNoMultisigKeys
	}

	quorumStr := strings.TrimSpace(parts[0])
	quorum, err := strconv.Atoi(quorumStr)
	if err != nil || quorum < 1 {
		return nil, fmt.Errorf("%w: %q", ErrBadQuorum, quorumStr)
	}

	var keys []KeyInfo
	for _, part := range parts[1:] {
		info, ok := parseKeyExpr(part)
		if !ok {
			continue
		}

		keys = append(keys, info)
	}

	if len(keys) == 0 {
		return nil, ErrNoMultisigKeys
	}

	if quorum > len(keys) {
		return nil, fmt.Errorf("%w: quorum %d exceeds %d keys",
			ErrBadQuorum, quorum, len(keys))
	}

	return &Parsed{
		Type:   typ,
		Quorum: quorum,
		Keys:   keys,
	}, nil
}

// parseSingleBody parses the parenthesized key expression of a single-sig
// wrapper, with the scanner positioned on its opening paren.
func parseSingleBody(sc *scanner, typ Type) (*Parsed, error) {
	if !sc.accept('(') {
		return nil, ErrUnknownFormat
	}

	body, ok := sc.balanced()
	if !ok {
		return nil, ErrUnknownFormat
	}

	info, ok := parseKeyExpr(body)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrNoKey, body)
	}

	return &Parsed{
		Type:        typ,
		Key:         info.XPub,
		Fingerprint: info.Fingerprint,
		AccountPath: info.AccountPath,
		Suffix:      info.Suffix,
	}, nil
}

// parseKeyExpr parses a single key expression of the form
// [fingerprint/path]key(/suffix)?, falling back to a bare key with the
// sentinel fingerprint and default suffix when no origin brackets are
// present.
func parseKeyExpr(expr string) (KeyInfo, bool) {
	sc := newScanner(strings.TrimSpace(expr))

	info := KeyInfo{
		Fingerprint: SentinelFingerprint,
		Suffix:      DefaultSuffix,
	}

	if sc.accept('[') {
		origin := sc.until("]")
		if !sc.accept(']') {
			return KeyInfo{}, false
		}

		fingerprint, path, ok := splitOrigin(origin)
		if !ok {
			return KeyInfo{}, false
		}

		info.Fingerprint = fingerprint
		info.AccountPath = path
	}

	// The key runs up to the first path separator. Descriptor keys are
	// base58 (or hex), so '/' cannot appear inside one.
	key := sc.until("/")
	if key == "" {
		return KeyInfo{}, false
	}
	info.XPub = key

	if sc.accept('/') {
		suffix := sc.until("")
		if suffix != "" {
			info.Suffix = suffix
		}
	}

	return info, true
}

// splitOrigin splits a key origin "fingerprint/path" and validates that the
// fingerprint is exactly 8 hex characters.
func splitOrigin(origin string) (fingerprint, path string, ok bool) {
	fingerprint, path, _ = strings.Cut(origin, "/")
	if len(fingerprint) != 8 {
		return "", "", false
	}
	for i := 0; i < len(fingerprint); i++ {
		if !isHexDigit(fingerprint[i]) {
			return "", "", false
		}
	}

	return fingerprint, path, true
}
