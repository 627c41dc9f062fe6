// Copyright (c) 2026 The sanctuary developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package itest exercises the full transaction-construction flow across
// package boundaries: descriptor parsing, multisig address derivation,
// PSBT signing and finalization, script-engine validation of the result,
// and fee bumping through the store and chain interfaces.
package itest

import (
	"bytes"
	"context"
	"encoding/hex"
	"fmt"
	"testing"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/ecdsa"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/btcsuite/btcd/btcutil/psbt"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/stretchr/testify/require"

	"github.com/nekoguntai/sanctuary-sub007/deriver"
	"github.com/nekoguntai/sanctuary-sub007/descriptor"
	"github.com/nekoguntai/sanctuary-sub007/multisig"
	"github.com/nekoguntai/sanctuary-sub007/wallet"
)

const (
	walletID = "e2e-wallet"

	// rbfSequence opts every constructed input into replaceability.
	rbfSequence = wire.MaxTxInSequenceNum - 2
)

// cosignerKeys is one participant's full key material: the account-level
// private key for signing and its neutered form for the descriptor.
type cosignerKeys struct {
	fingerprint string
	account     *hdkeychain.ExtendedKey
	xpub        string
}

// newCosignerKeys derives the account key at 48h/1h/0h/2h from a
// deterministic seed.
func newCosignerKeys(t *testing.T, params *chaincfg.Params, seedByte byte,
	fingerprint string) *cosignerKeys {

	t.Helper()

	seed := make([]byte, 32)
	for i := range seed {
		seed[i] = seedByte
	}
	key, err := hdkeychain.NewMaster(seed, params)
	require.NoError(t, err)

	for _, step := range []uint32{48, 1, 0, 2} {
		key, err = key.Derive(hdkeychain.HardenedKeyStart + step)
		require.NoError(t, err)
	}

	neutered, err := key.Neuter()
	require.NoError(t, err)

	return &cosignerKeys{
		fingerprint: fingerprint,
		account:     key,
		xpub:        neutered.String(),
	}
}

// privKeyAt derives the signing key at the unhardened change/index tail.
func (c *cosignerKeys) privKeyAt(t *testing.T, change,
	index uint32) *btcec.PrivateKey {

	t.Helper()

	ext, err := c.account.Derive(change)
	require.NoError(t, err)
	ext, err = ext.Derive(index)
	require.NoError(t, err)

	priv, err := ext.ECPrivKey()
	require.NoError(t, err)

	return priv
}

// memStore is an in-memory wallet store.
type memStore struct {
	wallet    *wallet.WalletRecord
	utxos     []*wallet.UtxoRecord
	addresses map[string]*wallet.AddressRecord
}

var _ wallet.Store = (*memStore)(nil)

func (s *memStore) Wallet(_ context.Context,
	id string) (*wallet.WalletRecord, error) {

	if s.wallet != nil && s.wallet.ID == id {
		return s.wallet, nil
	}

	return nil, nil
}

func (s *memStore) Utxos(_ context.Context,
	_ string) ([]*wallet.UtxoRecord, error) {

	return s.utxos, nil
}

func (s *memStore) Utxo(_ context.Context, _, txid string,
	vout uint32) (*wallet.UtxoRecord, error) {

	for _, utxo := range s.utxos {
		if utxo.Txid == txid && utxo.Vout == vout {
			return utxo, nil
		}
	}

	return nil, nil
}

func (s *memStore) Address(_ context.Context, _,
	address string) (*wallet.AddressRecord, error) {

	return s.addresses[address], nil
}

func (s *memStore) ChangeAddress(_ context.Context,
	_ string) (*wallet.AddressRecord, error) {

	for _, rec := range s.addresses {
		if rec.Change {
			return rec, nil
		}
	}

	return nil, nil
}

// memChain is an in-memory chain backend keyed by txid and outpoint.
type memChain struct {
	txs      map[string]*wallet.TxInfo
	prevOuts map[string]*wire.TxOut
}

var _ wallet.ChainSource = (*memChain)(nil)

func (c *memChain) Transaction(_ context.Context,
	txid string) (*wallet.TxInfo, error) {

	return c.txs[txid], nil
}

func (c *memChain) PrevOutput(_ context.Context, txid string,
	vout uint32) (*wire.TxOut, error) {

	return c.prevOuts[fmt.Sprintf("%s:%d", txid, vout)], nil
}

// TestMultisigSpendEndToEnd walks a 2-of-2 wallet from descriptor to a
// fully validated spend and then to an RBF replacement of that spend.
func TestMultisigSpendEndToEnd(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	params := &chaincfg.TestNet3Params

	// Two cosigners and the wallet descriptor binding them.
	alice := newCosignerKeys(t, params, 0x11, "aaaa0001")
	bob := newCosignerKeys(t, params, 0x22, "bbbb0002")

	desc := fmt.Sprintf(
		"wsh(sortedmulti(2,[%s/48h/1h/0h/2h]%s/0/*,"+
			"[%s/48h/1h/0h/2h]%s/0/*))",
		alice.fingerprint, alice.xpub,
		bob.fingerprint, bob.xpub,
	)

	parsed, err := descriptor.Parse(desc)
	require.NoError(t, err)
	require.True(t, parsed.Type.IsMultisig())
	require.Equal(t, 2, parsed.Quorum)
	require.Len(t, parsed.Keys, 2)

	cosigners := make([]multisig.Cosigner, len(parsed.Keys))
	for i, key := range parsed.Keys {
		cosigners[i] = multisig.Cosigner{
			Fingerprint: key.Fingerprint,
			XPub:        key.XPub,
			AccountPath: key.AccountPath,
			Suffix:      key.Suffix,
		}
	}

	// The receive script at m/0/5 and the change script at m/1/0. The
	// deriver must agree with the script builder on the receive address.
	receiveScript := multisig.BuildWitnessScript(
		"m/0/5", cosigners, parsed.Quorum, params,
	)
	require.NotNil(t, receiveScript)
	receiveAddr, err := receiveScript.Address(params)
	require.NoError(t, err)

	derived, err := deriver.AddressFromDescriptor(desc, 5, "testnet", false)
	require.NoError(t, err)
	require.Equal(t, receiveAddr, derived.Address)

	changeScript := multisig.BuildWitnessScript(
		"m/1/0", cosigners, parsed.Quorum, params,
	)
	require.NotNil(t, changeScript)
	changeAddr, err := changeScript.Address(params)
	require.NoError(t, err)

	// A funding transaction pays 100k sats to the receive script.
	fundingPk, err := receiveScript.PkScript()
	require.NoError(t, err)
	fundingValue := int64(100_000)

	fundingTx := wire.NewMsgTx(wire.TxVersion)
	fundingTx.AddTxIn(wire.NewTxIn(
		wire.NewOutPoint(&chainhash.Hash{0x01}, 0), nil, nil,
	))
	fundingTx.AddTxOut(wire.NewTxOut(fundingValue, fundingPk))
	fundingTxid := fundingTx.TxHash()

	// The spend pays 50k to a foreign key and 40k back as change,
	// leaving a 10k fee.
	foreignKey, err := btcec.NewPrivateKey()
	require.NoError(t, err)
	foreignAddr, err := btcutil.NewAddressWitnessPubKeyHash(
		btcutil.Hash160(foreignKey.PubKey().SerializeCompressed()),
		params,
	)
	require.NoError(t, err)
	foreignPk, err := txscript.PayToAddrScript(foreignAddr)
	require.NoError(t, err)
	changePk, err := changeScript.PkScript()
	require.NoError(t, err)

	spendTx := wire.NewMsgTx(wire.TxVersion)
	spendIn := wire.NewTxIn(wire.NewOutPoint(&fundingTxid, 0), nil, nil)
	spendIn.Sequence = rbfSequence
	spendTx.AddTxIn(spendIn)
	spendTx.AddTxOut(wire.NewTxOut(50_000, foreignPk))
	spendTx.AddTxOut(wire.NewTxOut(40_000, changePk))

	packet, err := psbt.NewFromUnsignedTx(spendTx)
	require.NoError(t, err)
	packet.Inputs[0].WitnessScript = receiveScript.Script
	packet.Inputs[0].WitnessUtxo = &wire.TxOut{
		Value:    fundingValue,
		PkScript: fundingPk,
	}
	packet.Inputs[0].SighashType = txscript.SigHashAll

	// Both cosigners sign at m/0/5.
	fetcher := txscript.NewCannedPrevOutputFetcher(fundingPk, fundingValue)
	sigHashes := txscript.NewTxSigHashes(spendTx, fetcher)
	for _, signer := range []*cosignerKeys{alice, bob} {
		priv := signer.privKeyAt(t, 0, 5)

		sigHash, err := txscript.CalcWitnessSigHash(
			receiveScript.Script, sigHashes, txscript.SigHashAll,
			spendTx, 0, fundingValue,
		)
		require.NoError(t, err)

		sig := append(
			ecdsa.Sign(priv, sigHash).Serialize(),
			byte(txscript.SigHashAll),
		)
		packet.Inputs[0].PartialSigs = append(
			packet.Inputs[0].PartialSigs, &psbt.PartialSig{
				PubKey:    priv.PubKey().SerializeCompressed(),
				Signature: sig,
			},
		)
	}

	// Finalize with strict verification and run the result through the
	// script engine.
	finalizer := wallet.NewFinalizer(&wallet.Config{
		ChainParams:  params,
		StrictVerify: true,
	})
	require.NoError(t, finalizer.FinalizeMultisigInput(packet, 0))

	finalTx, err := psbt.Extract(packet)
	require.NoError(t, err)

	vm, err := txscript.NewEngine(
		fundingPk, finalTx, 0, txscript.StandardVerifyFlags, nil,
		txscript.NewTxSigHashes(finalTx, fetcher), fundingValue,
		fetcher,
	)
	require.NoError(t, err)
	require.NoError(t, vm.Execute())

	// The spend sits unconfirmed; replace it at a higher fee rate.
	var spendBuf bytes.Buffer
	require.NoError(t, spendTx.Serialize(&spendBuf))
	spendTxid := spendTx.TxHash().String()

	store := &memStore{
		wallet: &wallet.WalletRecord{
			ID:          walletID,
			Fingerprint: alice.fingerprint,
			Descriptor:  desc,
			Devices: []wallet.DeviceRecord{
				{
					Fingerprint: alice.fingerprint,
					XPub:        alice.xpub,
				},
				{
					Fingerprint: bob.fingerprint,
					XPub:        bob.xpub,
				},
			},
		},
		addresses: map[string]*wallet.AddressRecord{
			receiveAddr: {
				Address:        receiveAddr,
				DerivationPath: "m/0/5",
			},
			changeAddr: {
				Address:        changeAddr,
				DerivationPath: "m/1/0",
				Change:         true,
			},
		},
	}
	chain := &memChain{
		txs: map[string]*wallet.TxInfo{
			spendTxid: {
				Hex: hex.EncodeToString(spendBuf.Bytes()),
			},
		},
		prevOuts: map[string]*wire.TxOut{
			fmt.Sprintf("%s:0", fundingTxid.String()): {
				Value:    fundingValue,
				PkScript: fundingPk,
			},
		},
	}

	bumper := wallet.NewFeeBumper(
		wallet.DefaultConfig(params), chain, store,
	)

	eligibility, err := bumper.CanReplace(ctx, spendTxid)
	require.NoError(t, err)
	require.True(t, eligibility.Eligible)

	result, err := bumper.CreateReplacement(ctx, &wallet.ReplaceRequest{
		WalletID:   walletID,
		Txid:       spendTxid,
		NewFeeRate: eligibility.MinNewFeeRate + 20,
	})
	require.NoError(t, err)

	// The replacement keeps the payment, shrinks the change, and carries
	// everything a signer needs: witness script, witness UTXO and both
	// cosigners' derivations.
	require.Greater(t, result.FeeDelta, btcutil.Amount(0))
	require.Less(t, result.Change, btcutil.Amount(40_000))

	unsigned := result.Packet.UnsignedTx
	require.Len(t, unsigned.TxOut, 2)
	require.Equal(t, int64(50_000), unsigned.TxOut[0].Value)
	require.Equal(t, int64(result.Change), unsigned.TxOut[1].Value)

	input := result.Packet.Inputs[0]
	require.Equal(t, receiveScript.Script, input.WitnessScript)
	require.NotNil(t, input.WitnessUtxo)
	require.Len(t, input.Bip32Derivation, 2)
	require.Equal(t, []string{"m/0/5"}, result.InputPaths)
}
