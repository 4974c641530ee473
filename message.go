// Copyright (C) 2019-2025, Lux Partners Limited. All rights reserved.
// See the file LICENSE for licensing terms.

// Package locker holds the wire types shared by the bridge core, its
// messenger and its relayer.
package locker

import (
	"errors"
	"fmt"

	"github.com/luxfi/ids"

	"github.com/luxfi/locker/payload"
	"github.com/luxfi/locker/sqos"
)

var ErrInvalidMessage = errors.New("invalid message")

// Content names the remote code that must run and the data it runs with
type Content struct {
	Contract string
	Action   string
	Payload  *payload.Payload
}

// Verify verifies the content
func (c *Content) Verify() error {
	switch {
	case c.Contract == "":
		return fmt.Errorf("%w: empty target contract", ErrInvalidMessage)
	case c.Action == "":
		return fmt.Errorf("%w: empty target action", ErrInvalidMessage)
	case c.Payload == nil:
		return fmt.Errorf("%w: nil payload", ErrInvalidMessage)
	}
	if err := c.Payload.Verify(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidMessage, err)
	}
	return nil
}

// Context is the provenance the messaging layer attaches to an inbound
// message. The bridge treats it as ground truth and never builds one itself.
type Context struct {
	// ID of the envelope that carried the message
	ID ids.ID
	// FromChain is the chain the message was sent from
	FromChain string
	// Sender is the contract that sent the message on FromChain
	Sender string
	// Action is the local action the message invokes
	Action string
	// Sequence is assigned by the source messenger, unique per
	// (FromChain, Sender) route to this chain
	Sequence uint64
}

// RequestMessage is what the bridge hands to its messenger
type RequestMessage struct {
	ToChain string
	SQoS    sqos.Set
	Content Content
}

// NewRequestMessage creates a new request message. The SQoS set is copied.
func NewRequestMessage(toChain string, qos sqos.Set, content Content) (*RequestMessage, error) {
	msg := &RequestMessage{
		ToChain: toChain,
		SQoS:    qos.Clone(),
		Content: content,
	}
	if err := msg.Verify(); err != nil {
		return nil, err
	}
	return msg, nil
}

// Verify verifies the request message
func (m *RequestMessage) Verify() error {
	if m.ToChain == "" {
		return fmt.Errorf("%w: empty destination chain", ErrInvalidMessage)
	}
	if err := m.SQoS.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidMessage, err)
	}
	if err := m.Content.Verify(); err != nil {
		return err
	}
	b, err := Codec.Marshal(CodecVersion, m)
	if err != nil {
		return fmt.Errorf("failed to marshal request message: %w", err)
	}
	if len(b) > MaxMessageSize {
		return fmt.Errorf("%w: message size %d exceeds maximum %d", ErrInvalidMessage, len(b), MaxMessageSize)
	}
	return nil
}

// Bytes returns the byte representation of the request message
func (m *RequestMessage) Bytes() []byte {
	b, _ := Codec.Marshal(CodecVersion, m)
	return b
}

// ID returns the hash of the request message
func (m *RequestMessage) ID() ids.ID {
	return ComputeHash256Array(m.Bytes())
}

// ParseRequestMessage parses a request message from bytes
func ParseRequestMessage(b []byte) (*RequestMessage, error) {
	msg := &RequestMessage{}
	if _, err := Codec.Unmarshal(b, msg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal request message: %w", err)
	}
	if err := msg.Verify(); err != nil {
		return nil, err
	}
	return msg, nil
}
