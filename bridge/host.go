// Copyright (C) 2019-2025, Lux Industries Inc All rights reserved.
// See the file LICENSE for licensing terms.

package bridge

import (
	"context"
	"sync"

	"github.com/luxfi/geth/common"

	"github.com/luxfi/locker"
	"github.com/luxfi/locker/ledger"
)

// Messenger hands request messages to the cross-chain transport. Send
// returns once the message is accepted for delivery.
type Messenger interface {
	Send(ctx context.Context, sender string, msg *locker.RequestMessage) error
}

// Host resolves the contract identities a locker is configured with to the
// collaborators deployed under them
type Host interface {
	Ledger(addr common.Address) (ledger.Ledger, bool)
	Messenger(addr common.Address) (Messenger, bool)
}

var _ Host = (*StaticHost)(nil)

// StaticHost is a Host backed by explicit registrations
type StaticHost struct {
	lock       sync.RWMutex
	ledgers    map[common.Address]ledger.Ledger
	messengers map[common.Address]Messenger
}

func NewStaticHost() *StaticHost {
	return &StaticHost{
		ledgers:    make(map[common.Address]ledger.Ledger),
		messengers: make(map[common.Address]Messenger),
	}
}

// DeployLedger makes l reachable at addr
func (h *StaticHost) DeployLedger(addr common.Address, l ledger.Ledger) {
	h.lock.Lock()
	defer h.lock.Unlock()

	h.ledgers[addr] = l
}

// DeployMessenger makes m reachable at addr
func (h *StaticHost) DeployMessenger(addr common.Address, m Messenger) {
	h.lock.Lock()
	defer h.lock.Unlock()

	h.messengers[addr] = m
}

func (h *StaticHost) Ledger(addr common.Address) (ledger.Ledger, bool) {
	h.lock.RLock()
	defer h.lock.RUnlock()

	l, ok := h.ledgers[addr]
	return l, ok
}

func (h *StaticHost) Messenger(addr common.Address) (Messenger, bool) {
	h.lock.RLock()
	defer h.lock.RUnlock()

	m, ok := h.messengers[addr]
	return m, ok
}
