// Copyright (c) 2026 The sanctuary developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wallet

import (
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcwallet/wallet/txrules"

	"github.com/nekoguntai/sanctuary-sub007/unit"
)

const (
	// DefaultDustThreshold is the output value below which an output is
	// considered uneconomical to spend. It matches the network's default
	// dust relay limit for a P2PKH output.
	DefaultDustThreshold = btcutil.Amount(546)

	// DefaultMinFeeBump is the minimum amount a replacement transaction
	// must raise the fee rate by, per BIP125 rule 4.
	DefaultMinFeeBump = unit.SatPerVByte(1)

	// DefaultRelayFeeRate is the relay fee rate used for standardness
	// checks on constructed outputs.
	DefaultRelayFeeRate = unit.SatPerKVByte(txrules.DefaultRelayFeePerKb)
)

// Config bundles the economic and policy parameters shared by the
// finalizer and the fee-bump engine. The dust threshold and minimum fee
// bump are injected rather than hardcoded since they change the
// preconditions of replacement and batch construction.
type Config struct {
	// ChainParams identifies the network the wallet operates on.
	ChainParams *chaincfg.Params

	// DustThreshold is the smallest output value this wallet will
	// create.
	DustThreshold btcutil.Amount

	// MinFeeBump is the smallest fee rate increase accepted for a
	// replacement transaction.
	MinFeeBump unit.SatPerVByte

	// RelayFeeRate is the relay fee rate constructed outputs are checked
	// against.
	RelayFeeRate unit.SatPerKVByte

	// StrictVerify escalates signature verification failures during
	// finalization from warnings to hard errors. The external signer is
	// normally treated as authoritative, so this defaults to off.
	StrictVerify bool
}

// DefaultConfig returns a Config with the default policy values for the
// given network.
func DefaultConfig(params *chaincfg.Params) *Config {
	return &Config{
		ChainParams:   params,
		DustThreshold: DefaultDustThreshold,
		MinFeeBump:    DefaultMinFeeBump,
		RelayFeeRate:  DefaultRelayFeeRate,
	}
}

// normalize fills in zero-valued policy fields with their defaults.
func (c *Config) normalize() {
	if c.ChainParams == nil {
		c.ChainParams = &chaincfg.MainNetParams
	}
	if c.DustThreshold == 0 {
		c.DustThreshold = DefaultDustThreshold
	}
	if c.MinFeeBump == 0 {
		c.MinFeeBump = DefaultMinFeeBump
	}
	if c.RelayFeeRate == 0 {
		c.RelayFeeRate = DefaultRelayFeeRate
	}
}
