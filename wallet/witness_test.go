// Copyright (c) 2026 The sanctuary developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wallet

import (
	"encoding/binary"
	"testing"

	"github.com/btcsuite/btcd/btcutil/psbt"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/stretchr/testify/require"
)

// TestSerializeWitnessStack tests the variable-length integer framing of
// the witness stack encoding, including the 0xfd and 0xfe prefix
// boundaries.
func TestSerializeWitnessStack(t *testing.T) {
	t.Parallel()

	t.Run("empty stack", func(t *testing.T) {
		t.Parallel()

		out, err := SerializeWitnessStack(wire.TxWitness{})
		require.NoError(t, err)
		require.Equal(t, []byte{0x00}, out)
	})

	t.Run("short item single-byte prefix", func(t *testing.T) {
		t.Parallel()

		item := []byte{1, 2, 3, 4, 5}
		out, err := SerializeWitnessStack(wire.TxWitness{item})
		require.NoError(t, err)

		require.Equal(t, byte(0x01), out[0])
		require.Equal(t, byte(0x05), out[1])
		require.Equal(t, item, out[2:])
	})

	t.Run("300 byte item gets 0xfd prefix", func(t *testing.T) {
		t.Parallel()

		item := make([]byte, 300)
		out, err := SerializeWitnessStack(wire.TxWitness{item})
		require.NoError(t, err)

		require.Equal(t, byte(0x01), out[0])
		require.Equal(t, byte(0xfd), out[1])
		require.Equal(
			t, uint16(300), binary.LittleEndian.Uint16(out[2:4]),
		)
		require.Len(t, out, 1+3+300)
	})

	t.Run("70000 byte item gets 0xfe prefix", func(t *testing.T) {
		t.Parallel()

		item := make([]byte, 70_000)
		out, err := SerializeWitnessStack(wire.TxWitness{item})
		require.NoError(t, err)

		require.Equal(t, byte(0x01), out[0])
		require.Equal(t, byte(0xfe), out[1])
		require.Equal(
			t, uint32(70_000),
			binary.LittleEndian.Uint32(out[2:6]),
		)
		require.Len(t, out, 1+5+70_000)
	})

	t.Run("multisig shaped stack", func(t *testing.T) {
		t.Parallel()

		stack := wire.TxWitness{
			{},
			make([]byte, 72),
			make([]byte, 72),
			make([]byte, 71),
		}
		out, err := SerializeWitnessStack(stack)
		require.NoError(t, err)

		require.Equal(t, byte(0x04), out[0])
		require.Equal(t, byte(0x00), out[1])
	})
}

// TestPsbtPrevOutputFetcher tests that the fetcher prefers the full
// previous transaction over the witness UTXO and skips inputs without
// either.
func TestPsbtPrevOutputFetcher(t *testing.T) {
	t.Parallel()

	// Arrange: a previous transaction with two outputs, spent by input
	// 0 at index 1.
	prevTx := wire.NewMsgTx(wire.TxVersion)
	prevTx.AddTxOut(wire.NewTxOut(1_000, []byte{0x51}))
	prevTx.AddTxOut(wire.NewTxOut(2_000, []byte{0x52}))
	prevHash := prevTx.TxHash()

	witnessHash := chainhash.Hash{0x01}

	tx := wire.NewMsgTx(wire.TxVersion)
	tx.AddTxIn(wire.NewTxIn(wire.NewOutPoint(&prevHash, 1), nil, nil))
	tx.AddTxIn(wire.NewTxIn(wire.NewOutPoint(&witnessHash, 0), nil, nil))
	tx.AddTxIn(wire.NewTxIn(
		wire.NewOutPoint(&chainhash.Hash{0x02}, 0), nil, nil,
	))
	tx.AddTxOut(wire.NewTxOut(500, []byte{0x53}))

	packet, err := psbt.NewFromUnsignedTx(tx)
	require.NoError(t, err)

	packet.Inputs[0].NonWitnessUtxo = prevTx
	packet.Inputs[1].WitnessUtxo = wire.NewTxOut(3_000, []byte{0x54})

	// Act.
	fetcher := PsbtPrevOutputFetcher(packet)

	// Assert: input 0 resolves through the full transaction.
	out := fetcher.FetchPrevOutput(tx.TxIn[0].PreviousOutPoint)
	require.NotNil(t, out)
	require.Equal(t, int64(2_000), out.Value)

	// Input 1 resolves through the witness UTXO.
	out = fetcher.FetchPrevOutput(tx.TxIn[1].PreviousOutPoint)
	require.NotNil(t, out)
	require.Equal(t, int64(3_000), out.Value)

	// Input 2 has no UTXO information at all.
	require.Nil(t, fetcher.FetchPrevOutput(tx.TxIn[2].PreviousOutPoint))
}

// TestPsbtPrevOutputFetcherTruncatedPrevTx tests that an externally
// supplied previous transaction without the referenced output index is
// not trusted: the input degrades to its witness UTXO, or to nothing,
// instead of crashing the fetcher.
func TestPsbtPrevOutputFetcherTruncatedPrevTx(t *testing.T) {
	t.Parallel()

	// Arrange: both inputs claim to spend output 5 of a previous
	// transaction that only has one output.
	prevTx := wire.NewMsgTx(wire.TxVersion)
	prevTx.AddTxOut(wire.NewTxOut(1_000, []byte{0x51}))
	prevHash := prevTx.TxHash()

	otherHash := chainhash.Hash{0x03}

	tx := wire.NewMsgTx(wire.TxVersion)
	tx.AddTxIn(wire.NewTxIn(wire.NewOutPoint(&prevHash, 5), nil, nil))
	tx.AddTxIn(wire.NewTxIn(wire.NewOutPoint(&otherHash, 5), nil, nil))
	tx.AddTxOut(wire.NewTxOut(500, []byte{0x53}))

	packet, err := psbt.NewFromUnsignedTx(tx)
	require.NoError(t, err)

	packet.Inputs[0].NonWitnessUtxo = prevTx
	packet.Inputs[1].NonWitnessUtxo = prevTx
	packet.Inputs[1].WitnessUtxo = wire.NewTxOut(4_000, []byte{0x54})

	// Act.
	var fetcher *txscript.MultiPrevOutFetcher
	require.NotPanics(t, func() {
		fetcher = PsbtPrevOutputFetcher(packet)
	})

	// Assert: input 0 has nothing usable, input 1 falls back to its
	// witness UTXO.
	require.Nil(t, fetcher.FetchPrevOutput(tx.TxIn[0].PreviousOutPoint))

	out := fetcher.FetchPrevOutput(tx.TxIn[1].PreviousOutPoint)
	require.NotNil(t, out)
	require.Equal(t, int64(4_000), out.Value)
}
