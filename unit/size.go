// Copyright (c) 2026 The sanctuary developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package unit defines the size and fee rate units used when estimating
// and bumping transaction fees.
package unit

import (
	"fmt"

	"github.com/btcsuite/btcd/blockchain"
)

// WeightUnit expresses a transaction size in weight units (wu). One weight
// unit is 1/4_000_000 of the max block size. The tx weight is calculated
// using `Base tx size * 3 + Total tx size`.
type WeightUnit uint64

// ToVB converts the weight into virtual bytes, rounding up as consensus
// does when computing a transaction's virtual size.
func (w WeightUnit) ToVB() VByte {
	return VByte(
		(w + blockchain.WitnessScaleFactor - 1) /
			blockchain.WitnessScaleFactor,
	)
}

// String returns a human-readable string of the weight.
func (w WeightUnit) String() string {
	return fmt.Sprintf("%d wu", uint64(w))
}

// VByte expresses a transaction size in virtual bytes. One virtual byte is
// equivalent to four weight units.
type VByte uint64

// ToWU converts the virtual size into weight units.
func (v VByte) ToWU() WeightUnit {
	return WeightUnit(v * blockchain.WitnessScaleFactor)
}

// String returns a human-readable string of the virtual size.
func (v VByte) String() string {
	return fmt.Sprintf("%d vb", uint64(v))
}
