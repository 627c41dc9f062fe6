// Copyright (c) 2026 The sanctuary developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wallet

import "errors"

var (
	// ErrTxConfirmed is returned when a replacement is requested for a
	// transaction that has already confirmed.
	ErrTxConfirmed = errors.New("transaction is already confirmed")

	// ErrNotSignalingRBF is returned when the transaction to replace
	// does not signal replaceability via its input sequences.
	ErrNotSignalingRBF = errors.New("transaction does not signal RBF")

	// ErrTxUnavailable is returned when the transaction data cannot be
	// found at the chain source.
	ErrTxUnavailable = errors.New("transaction data unavailable")

	// ErrUtxoNotFound is returned when a referenced wallet UTXO does not
	// exist.
	ErrUtxoNotFound = errors.New("utxo not found")

	// ErrUtxoSpent is returned when a referenced wallet UTXO has already
	// been spent.
	ErrUtxoSpent = errors.New("utxo is already spent")

	// ErrInsufficientFunds is returned when the selected inputs cannot
	// cover the requested outputs plus fees.
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrDustOutput is returned when a constructed output would fall
	// below the dust threshold.
	ErrDustOutput = errors.New("output amount below dust threshold")

	// ErrNoChangeOutput is returned when a replacement cannot find a
	// wallet-owned change output to take the fee delta from.
	ErrNoChangeOutput = errors.New("no wallet-owned change output")

	// ErrNoChangeAddress is returned when the store cannot supply a
	// change address for a batch transaction.
	ErrNoChangeAddress = errors.New("no change address available")

	// ErrNoSpendableUtxos is returned when UTXO selection comes up
	// empty.
	ErrNoSpendableUtxos = errors.New("no spendable utxos")

	// ErrNoRecipients is returned when a batch transaction is requested
	// with an empty recipient list.
	ErrNoRecipients = errors.New("at least one recipient is required")

	// ErrFeeRateTooLow is returned when the requested replacement fee
	// rate does not exceed the original transaction's fee rate.
	ErrFeeRateTooLow = errors.New("fee rate does not exceed current rate")

	// ErrMissingWitnessScript is returned when finalization is attempted
	// on an input that carries no witness script.
	ErrMissingWitnessScript = errors.New("input has no witness script")

	// ErrNoPartialSigs is returned when finalization is attempted on an
	// input that carries no partial signatures.
	ErrNoPartialSigs = errors.New("input has no partial signatures")

	// ErrNotMultisigScript is returned when the witness script of an
	// input is not a valid m-of-n multisig script.
	ErrNotMultisigScript = errors.New("witness script is not multisig")

	// ErrSignatureCount is returned when the number of signatures
	// matching script pubkeys differs from the script's m.
	ErrSignatureCount = errors.New("signature count does not match quorum")

	// ErrSigVerification is returned in strict-verify mode when a
	// partial signature fails cryptographic verification.
	ErrSigVerification = errors.New("signature verification failed")
)
