// Copyright (C) 2019-2025, Lux Partners Limited. All rights reserved.
// See the file LICENSE for licensing terms.

// Package messenger carries request messages between bridge instances. The
// source chain's Outbox sequences and signs them; the destination chain's
// Inbox authenticates them and is the only entry point allowed to call a
// bridge's receive action.
package messenger

import (
	"errors"
	"fmt"

	"github.com/luxfi/crypto"
	"github.com/luxfi/geth/common"
	"github.com/luxfi/ids"

	"github.com/luxfi/locker"
)

var (
	ErrInvalidEnvelope  = errors.New("invalid envelope")
	ErrInvalidSignature = errors.New("invalid envelope signature")
	ErrUntrustedSigner  = errors.New("untrusted envelope signer")
	ErrWrongChain       = errors.New("envelope addressed to another chain")
	ErrUnknownContract  = errors.New("no receiver for target contract")
)

// Envelope is a request message as it travels between chains
type Envelope struct {
	FromChain string
	Sender    string
	Sequence  uint64
	Message   *locker.RequestMessage
	Signature []byte
}

type unsignedEnvelope struct {
	FromChain string
	Sender    string
	Sequence  uint64
	Message   *locker.RequestMessage
}

// UnsignedBytes returns the bytes covered by the signature
func (e *Envelope) UnsignedBytes() ([]byte, error) {
	return locker.Codec.Marshal(locker.CodecVersion, &unsignedEnvelope{
		FromChain: e.FromChain,
		Sender:    e.Sender,
		Sequence:  e.Sequence,
		Message:   e.Message,
	})
}

// Digest returns the keccak256 hash that is signed
func (e *Envelope) Digest() ([]byte, error) {
	b, err := e.UnsignedBytes()
	if err != nil {
		return nil, err
	}
	return crypto.Keccak256(b), nil
}

// ID returns the hash of the unsigned envelope
func (e *Envelope) ID() ids.ID {
	b, err := e.UnsignedBytes()
	if err != nil {
		return ids.Empty
	}
	return locker.ComputeHash256Array(b)
}

// Verify checks the envelope is well formed. It does not check the signer.
func (e *Envelope) Verify() error {
	switch {
	case e.FromChain == "":
		return fmt.Errorf("%w: empty source chain", ErrInvalidEnvelope)
	case e.Sender == "":
		return fmt.Errorf("%w: empty sender", ErrInvalidEnvelope)
	case e.Message == nil:
		return fmt.Errorf("%w: no message", ErrInvalidEnvelope)
	case len(e.Signature) != crypto.SignatureLength:
		return fmt.Errorf("%w: signature length %d", ErrInvalidSignature, len(e.Signature))
	}
	if err := e.Message.Verify(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidEnvelope, err)
	}
	return nil
}

// Signer recovers the account that signed the envelope
func (e *Envelope) Signer() (common.Address, error) {
	digest, err := e.Digest()
	if err != nil {
		return common.Address{}, fmt.Errorf("%w: %w", ErrInvalidEnvelope, err)
	}
	return recoverSigner(digest, e.Signature)
}

// Bytes returns the byte representation of the envelope
func (e *Envelope) Bytes() []byte {
	b, _ := locker.Codec.Marshal(locker.CodecVersion, e)
	return b
}

// ParseEnvelope parses and verifies an envelope
func ParseEnvelope(b []byte) (*Envelope, error) {
	env := &Envelope{}
	if _, err := locker.Codec.Unmarshal(b, env); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidEnvelope, err)
	}
	if err := env.Verify(); err != nil {
		return nil, err
	}
	return env, nil
}
