// Copyright (c) 2026 The sanctuary developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wallet

import (
	"context"
	"fmt"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/btcutil/psbt"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/btcsuite/btcwallet/wallet/txrules"
	"github.com/btcsuite/btcwallet/wallet/txsizes"
	"github.com/lightningnetwork/lnd/fn/v2"

	"github.com/nekoguntai/sanctuary-sub007/decoy"
	"github.com/nekoguntai/sanctuary-sub007/unit"
)

// changePkScriptSize is the assumed script size of a change output when
// estimating fees, sized for the largest standard program (P2WSH/P2TR,
// a 32-byte witness program).
const changePkScriptSize = 34

// Recipient is one payment of a batch transaction.
type Recipient struct {
	// Address is the encoded destination address.
	Address string

	// Amount is the payment value.
	Amount btcutil.Amount
}

// BatchRequest describes a batch payment: multiple recipients funded from
// the wallet's UTXO set in a single transaction.
type BatchRequest struct {
	// WalletID identifies the funding wallet.
	WalletID string

	// Recipients lists the payments, at least one.
	Recipients []Recipient

	// FeeRate is the fee rate the transaction should pay.
	FeeRate unit.SatPerVByte

	// ExcludedUtxos lists outpoints that must not be selected, e.g.
	// outputs reserved by concurrent drafts.
	ExcludedUtxos []wire.OutPoint

	// DecoyOutputs, when greater than one, splits the change across
	// that many randomized outputs so the change is not identifiable as
	// the single odd amount.
	DecoyOutputs int
}

// CreateBatch builds a transaction paying every recipient, funded by a
// first-fit pass over the wallet's UTXO list in store order. Spent and
// excluded outputs are never selected. Change below the dust threshold is
// absorbed into the fee and no change address is requested in that case;
// otherwise the change goes to one or more wallet change addresses.
func (f *FeeBumper) CreateBatch(ctx context.Context,
	req *BatchRequest) (*BumpResult, error) {

	if len(req.Recipients) == 0 {
		return nil, ErrNoRecipients
	}

	// Resolve every recipient script up front so address problems fail
	// the request before any selection work.
	var outputsTotal btcutil.Amount
	outputScripts := make([][]byte, len(req.Recipients))
	for i, recipient := range req.Recipients {
		pkScript, err := payToAddrScript(
			recipient.Address, f.cfg.ChainParams,
		)
		if err != nil {
			return nil, err
		}

		err = txrules.CheckOutput(
			wire.NewTxOut(int64(recipient.Amount), pkScript),
			btcutil.Amount(f.cfg.RelayFeeRate),
		)
		if err != nil {
			return nil, fmt.Errorf("%w: recipient %s: %v",
				ErrDustOutput, recipient.Address, err)
		}

		outputScripts[i] = pkScript
		outputsTotal += recipient.Amount
	}

	selected, fee, err := f.selectUtxos(ctx, req, outputsTotal,
		outputScripts)
	if err != nil {
		return nil, err
	}

	var selectedTotal btcutil.Amount
	for _, utxo := range selected {
		selectedTotal += utxo.Amount
	}

	// Dust-level change is not worth an output; it goes to the miner
	// instead and no change address is consumed.
	change := selectedTotal - outputsTotal - fee
	var changeAmounts []btcutil.Amount
	switch {
	case change < f.cfg.DustThreshold:
		fee += change
		change = 0

	case req.DecoyOutputs > 1:
		changeAmounts = decoy.Generate(
			change, req.DecoyOutputs, f.cfg.DustThreshold,
		)

	default:
		changeAmounts = []btcutil.Amount{change}
	}

	tx := wire.NewMsgTx(wire.TxVersion)
	for _, utxo := range selected {
		hash, err := chainhash.NewHashFromStr(utxo.Txid)
		if err != nil {
			return nil, fmt.Errorf("parsing utxo txid: %w", err)
		}

		txIn := wire.NewTxIn(
			wire.NewOutPoint(hash, utxo.Vout), nil, nil,
		)
		txIn.Sequence = maxRbfSequence
		tx.AddTxIn(txIn)
	}
	for i, recipient := range req.Recipients {
		tx.AddTxOut(wire.NewTxOut(
			int64(recipient.Amount), outputScripts[i],
		))
	}

	for _, amount := range changeAmounts {
		changeRec, err := f.store.ChangeAddress(ctx, req.WalletID)
		if err != nil {
			return nil, err
		}
		if changeRec == nil {
			return nil, ErrNoChangeAddress
		}

		changeScript, err := payToAddrScript(
			changeRec.Address, f.cfg.ChainParams,
		)
		if err != nil {
			return nil, err
		}

		tx.AddTxOut(wire.NewTxOut(int64(amount), changeScript))
	}

	packet, err := psbt.NewFromUnsignedTx(tx)
	if err != nil {
		return nil, fmt.Errorf("creating psbt: %w", err)
	}

	for i, utxo := range selected {
		packet.Inputs[i].WitnessUtxo = &wire.TxOut{
			Value:    int64(utxo.Amount),
			PkScript: utxo.PkScript,
		}
	}

	paths, err := f.decorateInputs(ctx, packet, req.WalletID)
	if err != nil {
		return nil, err
	}

	log.Infof("Built batch of %d payments from %d inputs: fee %v, "+
		"change %v across %d outputs", len(req.Recipients),
		len(selected), fee, change, len(changeAmounts))

	return &BumpResult{
		Packet:     packet,
		Fee:        fee,
		Change:     change,
		InputPaths: paths,
	}, nil
}

// selectUtxos runs a first-fit pass over the wallet's spendable outputs
// in store order, accumulating inputs until they cover the outputs plus
// the fee at the requested rate. The fee estimate includes a change
// output, so a selection that only just covers the target never produces
// an unpayable change line.
func (f *FeeBumper) selectUtxos(ctx context.Context, req *BatchRequest,
	outputsTotal btcutil.Amount,
	outputScripts [][]byte) ([]*UtxoRecord, btcutil.Amount, error) {

	utxos, err := f.store.Utxos(ctx, req.WalletID)
	if err != nil {
		return nil, 0, err
	}

	excluded := fn.NewSet[wire.OutPoint](req.ExcludedUtxos...)

	var spendable []*UtxoRecord
	for _, utxo := range utxos {
		if utxo.Spent {
			continue
		}

		hash, err := chainhash.NewHashFromStr(utxo.Txid)
		if err != nil {
			log.Warnf("Skipping utxo with bad txid %s: %v",
				utxo.Txid, err)

			continue
		}
		if excluded.Contains(wire.OutPoint{
			Hash: *hash, Index: utxo.Vout,
		}) {
			continue
		}

		spendable = append(spendable, utxo)
	}

	if len(spendable) == 0 {
		return nil, 0, ErrNoSpendableUtxos
	}

	// Fixed per-transaction cost: overhead plus every recipient output
	// and the assumed change outputs. A decoy split adds one change
	// line per slot, and each of them has to be paid for at the
	// requested rate.
	changeOutputs := 1
	if req.DecoyOutputs > 1 {
		changeOutputs = req.DecoyOutputs
	}

	baseVSize := txOverheadVSize
	for _, pkScript := range outputScripts {
		baseVSize += 8 +
			wire.VarIntSerializeSize(uint64(len(pkScript))) +
			len(pkScript)
	}
	baseVSize += changeOutputs * (8 + 1 + changePkScriptSize)

	var (
		selected      []*UtxoRecord
		selectedTotal btcutil.Amount
		inputsVSize   int
	)
	for _, utxo := range spendable {
		selected = append(selected, utxo)
		selectedTotal += utxo.Amount
		inputsVSize += txsizes.GetMinInputVirtualSize(utxo.PkScript)

		fee := req.FeeRate.FeeForVSize(
			unit.VByte(baseVSize + inputsVSize),
		)
		if selectedTotal >= outputsTotal+fee {
			return selected, fee, nil
		}
	}

	return nil, 0, fmt.Errorf("%w: have %v, need %v plus fees",
		ErrInsufficientFunds, selectedTotal, outputsTotal)
}
