// Copyright (C) 2019-2025, Lux Partners Limited. All rights reserved.
// See the file LICENSE for licensing terms.

package messenger

import (
	"context"
	"fmt"
	"sync"

	"github.com/luxfi/geth/common"
	"github.com/luxfi/ids"
	"github.com/luxfi/log"
	"github.com/luxfi/math/set"

	"github.com/luxfi/locker"
	"github.com/luxfi/locker/cache"
	"github.com/luxfi/locker/payload"
)

const signerCacheSize = 1024

// Receiver is a contract the inbox delivers to
type Receiver interface {
	Receive(ctx context.Context, caller common.Address, p *payload.Payload, msgCtx locker.Context) error
}

// Inbox is the receiving side of a chain's messenger and the designated
// entry point of every receiver registered with it.
type Inbox struct {
	chain   string
	address common.Address
	log     log.Logger

	lock      sync.RWMutex
	trusted   map[string]set.Set[common.Address]
	receivers map[string]Receiver

	signers *cache.FIFO[ids.ID, common.Address]
}

// NewInbox creates the inbox of chain. address is the identity receivers
// see as their caller.
func NewInbox(logger log.Logger, chain string, address common.Address) *Inbox {
	return &Inbox{
		chain:     chain,
		address:   address,
		log:       logger,
		trusted:   make(map[string]set.Set[common.Address]),
		receivers: make(map[string]Receiver),
		signers:   cache.NewFIFO[ids.ID, common.Address](signerCacheSize),
	}
}

func (i *Inbox) Chain() string { return i.chain }

func (i *Inbox) Address() common.Address { return i.address }

// Trust accepts envelopes from fromChain signed by any of signers
func (i *Inbox) Trust(fromChain string, signers ...common.Address) {
	i.lock.Lock()
	defer i.lock.Unlock()

	s, ok := i.trusted[fromChain]
	if !ok {
		i.trusted[fromChain] = set.Of(signers...)
		return
	}
	s.Add(signers...)
	i.trusted[fromChain] = s
}

// Register routes envelopes targeting contract to r
func (i *Inbox) Register(contract string, r Receiver) {
	i.lock.Lock()
	defer i.lock.Unlock()

	i.receivers[contract] = r
}

// Deliver authenticates env and invokes the target receiver with the
// provenance recorded in the envelope.
func (i *Inbox) Deliver(ctx context.Context, env *Envelope) error {
	if err := env.Verify(); err != nil {
		return locker.Wrap(locker.ErrCodec, err)
	}
	if env.Message.ToChain != i.chain {
		return locker.Wrap(locker.ErrInvalidArgument, fmt.Errorf("%w: %s", ErrWrongChain, env.Message.ToChain))
	}

	signer, err := i.recoverSigner(env)
	if err != nil {
		return locker.Wrap(locker.ErrUnauthorized, err)
	}

	i.lock.RLock()
	trusted := i.trusted[env.FromChain].Contains(signer)
	receiver, ok := i.receivers[env.Message.Content.Contract]
	i.lock.RUnlock()

	if !trusted {
		return locker.Wrap(locker.ErrUnauthorized, fmt.Errorf("%w: %s on %s", ErrUntrustedSigner, signer.Hex(), env.FromChain))
	}
	if !ok {
		return locker.Wrap(locker.ErrNotRegistered, fmt.Errorf("%w: %s", ErrUnknownContract, env.Message.Content.Contract))
	}

	msgCtx := locker.Context{
		ID:        env.ID(),
		FromChain: env.FromChain,
		Sender:    env.Sender,
		Action:    env.Message.Content.Action,
		Sequence:  env.Sequence,
	}
	i.log.Debug(
		"Delivering envelope",
		log.Stringer("envelopeID", msgCtx.ID),
		log.String("fromChain", msgCtx.FromChain),
		log.String("sender", msgCtx.Sender),
		log.String("action", msgCtx.Action),
		log.Uint64("sequence", msgCtx.Sequence),
	)
	return receiver.Receive(ctx, i.address, env.Message.Content.Payload, msgCtx)
}

// recoverSigner caches by digest and signature so that a reused digest with
// a different signature is recovered again
func (i *Inbox) recoverSigner(env *Envelope) (common.Address, error) {
	digest, err := env.Digest()
	if err != nil {
		return common.Address{}, fmt.Errorf("%w: %w", ErrInvalidEnvelope, err)
	}
	key := locker.ComputeHash256Array(append(digest, env.Signature...))
	return i.signers.Get(key, func(ids.ID) (common.Address, error) {
		return recoverSigner(digest, env.Signature)
	})
}
