// Copyright (C) 2019-2025, Lux Partners Limited. All rights reserved.
// See the file LICENSE for licensing terms.

package messenger

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"

	"github.com/luxfi/crypto"
	"github.com/luxfi/geth/common"
)

var errSignerMismatch = errors.New("remote signature does not recover to the signer address")

// Signer signs envelope digests
type Signer interface {
	// Sign returns a 65 byte recoverable secp256k1 signature of digest
	Sign(digest []byte) ([]byte, error)

	// Address returns the account the signatures recover to
	Address() common.Address
}

// LocalSigner signs envelopes with a local secret key
type LocalSigner struct {
	sk      *ecdsa.PrivateKey
	address common.Address
}

// NewLocalSigner creates a new local signer
func NewLocalSigner(sk *ecdsa.PrivateKey) *LocalSigner {
	return &LocalSigner{
		sk:      sk,
		address: common.Address(crypto.PubkeyToAddress(sk.PublicKey)),
	}
}

// GenerateLocalSigner creates a local signer with a fresh key
func GenerateLocalSigner() (*LocalSigner, error) {
	sk, err := crypto.GenerateKey()
	if err != nil {
		return nil, fmt.Errorf("failed to generate key: %w", err)
	}
	return NewLocalSigner(sk), nil
}

func (s *LocalSigner) Sign(digest []byte) ([]byte, error) {
	return crypto.Sign(digest, s.sk)
}

func (s *LocalSigner) Address() common.Address {
	return s.address
}

// SignerClient is an interface for remote signing
type SignerClient interface {
	// Sign signs a digest remotely
	Sign(ctx context.Context, digest []byte) ([]byte, error)

	// Address gets the signing account
	Address(ctx context.Context) (common.Address, error)
}

// RemoteSigner signs envelopes via a remote key holder
type RemoteSigner struct {
	client  SignerClient
	address common.Address
}

// NewRemoteSigner creates a new remote signer
func NewRemoteSigner(ctx context.Context, client SignerClient) (*RemoteSigner, error) {
	address, err := client.Address(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get signer address: %w", err)
	}
	return &RemoteSigner{
		client:  client,
		address: address,
	}, nil
}

// Sign signs a digest and checks the result recovers to the signer address
func (s *RemoteSigner) Sign(digest []byte) ([]byte, error) {
	sig, err := s.client.Sign(context.Background(), digest)
	if err != nil {
		return nil, fmt.Errorf("failed to sign remotely: %w", err)
	}
	addr, err := recoverSigner(digest, sig)
	if err != nil {
		return nil, err
	}
	if addr != s.address {
		return nil, errSignerMismatch
	}
	return sig, nil
}

func (s *RemoteSigner) Address() common.Address {
	return s.address
}

func recoverSigner(digest, sig []byte) (common.Address, error) {
	if len(sig) != crypto.SignatureLength {
		return common.Address{}, fmt.Errorf("%w: signature length %d", ErrInvalidSignature, len(sig))
	}
	pub, err := crypto.SigToPub(digest, sig)
	if err != nil {
		return common.Address{}, fmt.Errorf("%w: %w", ErrInvalidSignature, err)
	}
	return common.Address(crypto.PubkeyToAddress(*pub)), nil
}
