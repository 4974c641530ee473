// Copyright (C) 2019-2025, Lux Partners Limited. All rights reserved.
// See the file LICENSE for licensing terms.

package messenger

import (
	"context"
	"fmt"
	"sync"

	"github.com/luxfi/geth/common"
	"github.com/luxfi/log"

	"github.com/luxfi/locker"
)

// Outbox is the sending side of a chain's messenger. It keeps one ordered
// queue per destination chain.
type Outbox struct {
	chain  string
	signer Signer
	log    log.Logger

	mu        sync.RWMutex
	envelopes map[string][]*Envelope
}

// NewOutbox creates an outbox for chain
func NewOutbox(logger log.Logger, chain string, s Signer) *Outbox {
	return &Outbox{
		chain:     chain,
		signer:    s,
		log:       logger,
		envelopes: make(map[string][]*Envelope),
	}
}

func (o *Outbox) Chain() string { return o.chain }

// SignerAddress is the account destination inboxes must trust
func (o *Outbox) SignerAddress() common.Address { return o.signer.Address() }

// Send sequences, signs and queues msg on behalf of sender. Delivery happens
// later and is not observable by the caller.
func (o *Outbox) Send(ctx context.Context, sender string, msg *locker.RequestMessage) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if sender == "" {
		return fmt.Errorf("%w: empty sender", ErrInvalidEnvelope)
	}
	if msg == nil {
		return fmt.Errorf("%w: no message", ErrInvalidEnvelope)
	}
	if err := msg.Verify(); err != nil {
		return err
	}
	queued := *msg
	queued.SQoS = msg.SQoS.Clone()

	o.mu.Lock()
	defer o.mu.Unlock()

	env := &Envelope{
		FromChain: o.chain,
		Sender:    sender,
		Sequence:  uint64(len(o.envelopes[msg.ToChain])),
		Message:   &queued,
	}
	digest, err := env.Digest()
	if err != nil {
		return fmt.Errorf("failed to hash envelope: %w", err)
	}
	sig, err := o.signer.Sign(digest)
	if err != nil {
		return fmt.Errorf("failed to sign envelope: %w", err)
	}
	env.Signature = sig

	o.envelopes[msg.ToChain] = append(o.envelopes[msg.ToChain], env)
	o.log.Debug(
		"Queued envelope",
		log.Stringer("envelopeID", env.ID()),
		log.String("toChain", msg.ToChain),
		log.String("sender", sender),
		log.Uint64("sequence", env.Sequence),
	)
	return nil
}

// Envelope returns the envelope queued for toChain at index
func (o *Outbox) Envelope(toChain string, index uint64) (*Envelope, error) {
	o.mu.RLock()
	defer o.mu.RUnlock()

	queue := o.envelopes[toChain]
	if index >= uint64(len(queue)) {
		return nil, fmt.Errorf("envelope index %d out of bounds for %s", index, toChain)
	}
	return queue[index], nil
}

// Count returns the number of envelopes ever queued for toChain
func (o *Outbox) Count(toChain string) uint64 {
	o.mu.RLock()
	defer o.mu.RUnlock()

	return uint64(len(o.envelopes[toChain]))
}
