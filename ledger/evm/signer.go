// Copyright (C) 2024, Lux Industries Inc All rights reserved.
// See the file LICENSE for licensing terms.

package evm

import (
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"

	"github.com/luxfi/crypto"
	"github.com/luxfi/geth/common"
	"github.com/luxfi/geth/core/types"
)

// Signer signs the transactions the client sends
type Signer interface {
	SignTx(tx *types.Transaction, evmChainID *big.Int) (*types.Transaction, error)
	Address() common.Address
}

// TxSigner signs with a local secp256k1 key
type TxSigner struct {
	pk      *ecdsa.PrivateKey
	address common.Address
}

// NewTxSigner parses a hex private key, with or without 0x prefix
func NewTxSigner(hexKey string) (*TxSigner, error) {
	pk, err := crypto.HexToECDSA(strings.TrimPrefix(hexKey, "0x"))
	if err != nil {
		return nil, fmt.Errorf("failed to parse private key: %w", err)
	}
	return NewTxSignerFromKey(pk), nil
}

func NewTxSignerFromKey(pk *ecdsa.PrivateKey) *TxSigner {
	return &TxSigner{
		pk:      pk,
		address: common.Address(crypto.PubkeyToAddress(pk.PublicKey)),
	}
}

func (s *TxSigner) SignTx(tx *types.Transaction, evmChainID *big.Int) (*types.Transaction, error) {
	return types.SignTx(tx, types.LatestSignerForChainID(evmChainID), s.pk)
}

func (s *TxSigner) Address() common.Address {
	return s.address
}
