// Copyright (c) 2026 The sanctuary developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wallet

import (
	"context"

	"github.com/btcsuite/btcd/wire"
	"github.com/stretchr/testify/mock"
)

// mockStore is a testify mock of the Store interface.
type mockStore struct {
	mock.Mock
}

var _ Store = (*mockStore)(nil)

func (m *mockStore) Wallet(ctx context.Context,
	walletID string) (*WalletRecord, error) {

	args := m.Called(ctx, walletID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*WalletRecord), args.Error(1)
}

func (m *mockStore) Utxos(ctx context.Context,
	walletID string) ([]*UtxoRecord, error) {

	args := m.Called(ctx, walletID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]*UtxoRecord), args.Error(1)
}

func (m *mockStore) Utxo(ctx context.Context, walletID, txid string,
	vout uint32) (*UtxoRecord, error) {

	args := m.Called(ctx, walletID, txid, vout)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*UtxoRecord), args.Error(1)
}

func (m *mockStore) Address(ctx context.Context, walletID,
	address string) (*AddressRecord, error) {

	args := m.Called(ctx, walletID, address)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*AddressRecord), args.Error(1)
}

func (m *mockStore) ChangeAddress(ctx context.Context,
	walletID string) (*AddressRecord, error) {

	args := m.Called(ctx, walletID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*AddressRecord), args.Error(1)
}

// mockChain is a testify mock of the ChainSource interface.
type mockChain struct {
	mock.Mock
}

var _ ChainSource = (*mockChain)(nil)

func (m *mockChain) Transaction(ctx context.Context,
	txid string) (*TxInfo, error) {

	args := m.Called(ctx, txid)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*TxInfo), args.Error(1)
}

func (m *mockChain) PrevOutput(ctx context.Context, txid string,
	vout uint32) (*wire.TxOut, error) {

	args := m.Called(ctx, txid, vout)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*wire.TxOut), args.Error(1)
}
