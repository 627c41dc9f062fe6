// Copyright (c) 2026 The sanctuary developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wallet

import (
	"bytes"

	"github.com/btcsuite/btcd/btcutil/psbt"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
)

// SerializeWitnessStack encodes a witness stack in the transaction wire
// format: the item count as a Bitcoin-style variable-length integer,
// followed by each item length-prefixed the same way.
func SerializeWitnessStack(stack wire.TxWitness) ([]byte, error) {
	var buf bytes.Buffer
	if err := wire.WriteVarInt(&buf, 0, uint64(len(stack))); err != nil {
		return nil, err
	}

	for _, item := range stack {
		if err := wire.WriteVarBytes(&buf, 0, item); err != nil {
			return nil, err
		}
	}

	return buf.Bytes(), nil
}

// PsbtPrevOutputFetcher returns a txscript.PrevOutputFetcher built from
// the UTXO information carried in a PSBT packet. Inputs without any UTXO
// information are skipped.
func PsbtPrevOutputFetcher(packet *psbt.Packet) *txscript.MultiPrevOutFetcher {
	fetcher := txscript.NewMultiPrevOutFetcher(nil)
	for idx, txIn := range packet.UnsignedTx.TxIn {
		in := packet.Inputs[idx]

		// The full previous transaction is authoritative when
		// present. The packet arrives from an external caller, so a
		// previous transaction without the referenced output falls
		// through to the witness UTXO instead of being trusted.
		if in.NonWitnessUtxo != nil {
			prevIndex := txIn.PreviousOutPoint.Index
			if prevIndex < uint32(len(in.NonWitnessUtxo.TxOut)) {
				fetcher.AddPrevOut(
					txIn.PreviousOutPoint,
					in.NonWitnessUtxo.TxOut[prevIndex],
				)

				continue
			}

			log.Warnf("Input %d references output %d of a "+
				"previous transaction with only %d outputs",
				idx, prevIndex, len(in.NonWitnessUtxo.TxOut))
		}

		if in.WitnessUtxo != nil {
			fetcher.AddPrevOut(
				txIn.PreviousOutPoint, in.WitnessUtxo,
			)
		}
	}

	return fetcher
}

// pkScriptAddress returns the encoded address of a standard output
// script, or an empty string when the script is non-standard or encodes
// more than one address.
func pkScriptAddress(pkScript []byte, net *chaincfg.Params) string {
	_, addrs, _, err := txscript.ExtractPkScriptAddrs(pkScript, net)
	if err != nil || len(addrs) != 1 {
		return ""
	}

	return addrs[0].EncodeAddress()
}
