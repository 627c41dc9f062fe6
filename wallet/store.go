// Copyright (c) 2026 The sanctuary developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wallet

import (
	"context"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/wire"
)

// WalletRecord is the persisted description of a wallet: its descriptor,
// its master fingerprint and the signing devices enrolled with it.
type WalletRecord struct {
	// ID is the store's identifier for the wallet.
	ID string

	// Descriptor is the output descriptor the wallet derives its
	// addresses from.
	Descriptor string

	// Fingerprint is the BIP32 master key fingerprint of the wallet's
	// primary device, as 8 hex characters.
	Fingerprint string

	// Devices lists the hardware signers enrolled with the wallet.
	Devices []DeviceRecord
}

// DeviceRecord identifies one enrolled hardware signer.
type DeviceRecord struct {
	// Fingerprint is the device's master key fingerprint, as 8 hex
	// characters.
	Fingerprint string

	// XPub is the device's account-level extended public key.
	XPub string
}

// UtxoRecord is one unspent (or recently spent) output tracked for a
// wallet.
type UtxoRecord struct {
	// Txid is the hex-encoded hash of the funding transaction.
	Txid string

	// Vout is the output index within the funding transaction.
	Vout uint32

	// Amount is the output value.
	Amount btcutil.Amount

	// PkScript is the output script.
	PkScript []byte

	// Spent reports whether the output has been consumed by a later
	// transaction.
	Spent bool
}

// AddressRecord maps a wallet address to the derivation path it was
// created from.
type AddressRecord struct {
	// Address is the encoded address.
	Address string

	// DerivationPath is the path the address was derived at, relative
	// to the account level, e.g. "m/0/12".
	DerivationPath string

	// Change reports whether the address belongs to the internal
	// (change) branch.
	Change bool
}

// TxInfo is the chain source's view of a transaction.
type TxInfo struct {
	// Hex is the raw transaction, hex encoded.
	Hex string

	// Confirmations is the number of blocks mined on top of the
	// transaction's block, zero while unconfirmed.
	Confirmations int32
}

// Store provides read access to the wallet's persisted records. The fee
// bump engine consumes these records and never writes them; persistence
// of the resulting draft transactions is the caller's responsibility.
//
// A nil record with a nil error means the record does not exist. Errors
// are propagated to the caller unchanged.
type Store interface {
	// Wallet fetches a wallet record by ID.
	Wallet(ctx context.Context, walletID string) (*WalletRecord, error)

	// Utxos lists the wallet's tracked outputs in the store's spending
	// preference order.
	Utxos(ctx context.Context, walletID string) ([]*UtxoRecord, error)

	// Utxo fetches a single tracked output.
	Utxo(ctx context.Context, walletID, txid string,
		vout uint32) (*UtxoRecord, error)

	// Address fetches the derivation record for an address owned by the
	// wallet.
	Address(ctx context.Context, walletID,
		address string) (*AddressRecord, error)

	// ChangeAddress returns an internal-branch address for the wallet.
	ChangeAddress(ctx context.Context,
		walletID string) (*AddressRecord, error)
}

// ChainSource provides read access to on-chain transaction data.
type ChainSource interface {
	// Transaction fetches a transaction by its hex-encoded hash. A nil
	// result with a nil error means the chain source does not know the
	// transaction.
	Transaction(ctx context.Context, txid string) (*TxInfo, error)

	// PrevOutput fetches the output a transaction input spends.
	PrevOutput(ctx context.Context, txid string,
		vout uint32) (*wire.TxOut, error)
}
