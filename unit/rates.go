// Copyright (c) 2026 The sanctuary developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package unit

import (
	"fmt"

	"github.com/btcsuite/btcd/btcutil"
)

// SatPerVByte represents a fee rate in sat/vbyte.
type SatPerVByte btcutil.Amount

// NewSatPerVByte creates a new fee rate in sat/vb from a total fee paid
// over a given virtual size. A zero size yields a zero rate.
func NewSatPerVByte(fee btcutil.Amount, vb VByte) SatPerVByte {
	if vb == 0 {
		return 0
	}

	return SatPerVByte(fee.MulF64(1 / float64(vb)))
}

// FeeForVSize calculates the fee resulting from this fee rate and the
// given size in virtual bytes.
func (s SatPerVByte) FeeForVSize(vb VByte) btcutil.Amount {
	return btcutil.Amount(s) * btcutil.Amount(vb)
}

// FeePerKVByte converts the current fee rate from sat/vb to sat/kvb.
func (s SatPerVByte) FeePerKVByte() SatPerKVByte {
	return SatPerKVByte(s * 1000)
}

// String returns a human-readable string of the fee rate.
func (s SatPerVByte) String() string {
	return fmt.Sprintf("%v sat/vb", int64(s))
}

// SatPerKVByte represents a fee rate in sat/kvb.
type SatPerKVByte btcutil.Amount

// NewSatPerKVByte creates a new fee rate in sat/kvb.
func NewSatPerKVByte(fee btcutil.Amount, kvb VByte) SatPerKVByte {
	if kvb == 0 {
		return 0
	}

	return SatPerKVByte(fee.MulF64(1000 / float64(kvb)))
}

// FeeForVSize calculates the fee resulting from this fee rate and the
// given vsize in vbytes.
func (s SatPerKVByte) FeeForVSize(vb VByte) btcutil.Amount {
	return btcutil.Amount(s) * btcutil.Amount(vb) / 1000
}

// String returns a human-readable string of the fee rate.
func (s SatPerKVByte) String() string {
	return fmt.Sprintf("%v sat/kvb", int64(s))
}
