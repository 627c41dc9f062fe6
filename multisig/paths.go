// Copyright (c) 2026 The sanctuary developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package multisig

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/btcsuite/btcd/btcutil/hdkeychain"
)

var (
	// errEmptyPath is returned when a derivation path has no usable
	// segments.
	errEmptyPath = errors.New("empty derivation path")
)

// parseAccountSteps parses an account-level path such as "84h/1h/0h" or
// "48'/0'/0'/2'" into BIP32 child indices. Both the apostrophe and the "h"
// suffix mark hardened steps.
func parseAccountSteps(path string) ([]uint32, error) {
	path = strings.TrimPrefix(strings.TrimPrefix(path, "m"), "/")
	if path == "" {
		return nil, nil
	}

	segments := strings.Split(path, "/")
	steps := make([]uint32, 0, len(segments))
	for _, segment := range segments {
		trimmed := strings.TrimRight(segment, "'h")
		value, err := strconv.ParseUint(trimmed, 10, 32)
		if err != nil {
			return nil, fmt.Errorf("invalid path segment %q: %w",
				segment, err)
		}

		step := uint32(value)
		if trimmed != segment {
			step += hdkeychain.HardenedKeyStart
		}

		steps = append(steps, step)
	}

	return steps, nil
}

// pathTail extracts the change branch and address index from the tail of a
// full derivation path such as "m/84'/1'/0'/0/5". A single-segment path
// yields change 0. Everything below the account level is unhardened, so any
// hardened marker on the tail segments is ignored.
func pathTail(fullPath string) (change, index uint32, err error) {
	trimmed := strings.TrimPrefix(strings.TrimPrefix(fullPath, "m"), "/")
	if trimmed == "" {
		return 0, 0, errEmptyPath
	}

	segments := strings.Split(trimmed, "/")

	parse := func(segment string) (uint32, error) {
		value, err := strconv.ParseUint(
			strings.TrimRight(segment, "'h"), 10, 32,
		)
		if err != nil {
			return 0, fmt.Errorf("invalid path segment %q: %w",
				segment, err)
		}

		return uint32(value), nil
	}

	index, err = parse(segments[len(segments)-1])
	if err != nil {
		return 0, 0, err
	}

	if len(segments) >= 2 {
		change, err = parse(segments[len(segments)-2])
		if err != nil {
			return 0, 0, err
		}
	}

	return change, index, nil
}

// resolveSuffix maps a cosigner's per-address suffix template to the
// concrete unhardened derivation steps for the requested change branch and
// address index. The grammar covers:
//
//   - "0/*" and "1/*": an explicit change slot whose first segment is
//     replaced by the requested change branch.
//   - "<0;1>/*": a multipath template, substituted with the requested
//     change branch.
//   - "*" and "/*": no change slot, so the index is prefixed with the
//     requested change branch.
//   - any other non-numeric token in a non-range position: substituted with
//     the requested change branch.
func resolveSuffix(template string, change, index uint32) []uint32 {
	trimmed := strings.TrimPrefix(strings.TrimSpace(template), "/")
	if trimmed == "" || trimmed == "*" {
		return []uint32{change, index}
	}

	segments := strings.Split(trimmed, "/")
	steps := make([]uint32, 0, len(segments))
	for _, segment := range segments {
		if segment == "*" {
			steps = append(steps, index)
			continue
		}

		// Numeric change slots, <0;1> templates and any other token
		// all resolve to the requested change branch.
		steps = append(steps, change)
	}

	return steps
}
