// Copyright (C) 2019-2025, Lux Industries Inc All rights reserved.
// See the file LICENSE for licensing terms.

package bridge

import (
	"context"
	"errors"

	"github.com/luxfi/geth/common"
	"github.com/luxfi/log"

	"github.com/luxfi/locker"
	"github.com/luxfi/locker/ledger"
	"github.com/luxfi/locker/owner"
	"github.com/luxfi/locker/registry"
	"github.com/luxfi/locker/sqos"
	"github.com/luxfi/locker/state"
)

// update runs one owner-gated invocation. fn receives the current access
// control; its writes are committed only if it succeeds.
func (l *Locker) update(op string, fn func(tx *state.Tx, ac owner.AccessControl) error) error {
	l.lock.Lock()
	defer l.lock.Unlock()

	err := l.store.Update(func(tx *state.Tx) error {
		ac, _, err := state.ReadOwner(tx)
		if err != nil {
			return locker.Wrap(locker.ErrStorage, err)
		}
		return fn(tx, ac)
	})
	if err != nil {
		if locker.CodeOf(err) == locker.CodeUnknown {
			err = locker.Wrap(locker.ErrStorage, err)
		}
		l.log.Debug("Admin call rejected", log.String("op", op), log.Err(err))
		return err
	}
	l.log.Info("Admin call applied", log.String("op", op))
	return nil
}

func (l *Locker) SetLedger(caller, addr common.Address) error {
	return l.setContractRef(caller, ledgerRef, addr)
}

func (l *Locker) SetMessenger(caller, addr common.Address) error {
	return l.setContractRef(caller, messengerRef, addr)
}

func (l *Locker) setContractRef(caller common.Address, name string, addr common.Address) error {
	return l.update("set "+name, func(tx *state.Tx, ac owner.AccessControl) error {
		if err := ac.Authorize(caller); err != nil {
			return err
		}
		if addr == (common.Address{}) {
			return locker.Errorf(locker.ErrInvalidArgument, "zero %s address", name)
		}
		return state.WriteContractRef(tx, name, addr)
	})
}

func (l *Locker) RegisterDestination(caller common.Address, chain, action, contract, remoteAction string) error {
	return l.update("register destination", func(tx *state.Tx, ac owner.AccessControl) error {
		return registry.RegisterDestination(tx, ac, caller, chain, action, contract, remoteAction)
	})
}

func (l *Locker) RegisterPermittedSender(caller common.Address, chain, contract, action string) error {
	return l.update("register permitted sender", func(tx *state.Tx, ac owner.AccessControl) error {
		return registry.RegisterPermittedSender(tx, ac, caller, chain, contract, action)
	})
}

func (l *Locker) UnregisterPermittedSender(caller common.Address, chain, contract, action string) error {
	return l.update("unregister permitted sender", func(tx *state.Tx, ac owner.AccessControl) error {
		return registry.UnregisterPermittedSender(tx, ac, caller, chain, contract, action)
	})
}

func (l *Locker) SetAddressFormat(caller common.Address, chain string, format registry.AddressFormat) error {
	return l.update("set address format", func(tx *state.Tx, ac owner.AccessControl) error {
		return registry.SetAddressFormat(tx, ac, caller, chain, format)
	})
}

// InsertSQoS adds item. An item of the same type must be removed first.
func (l *Locker) InsertSQoS(caller common.Address, item sqos.Item) error {
	return l.updateSQoS(caller, "insert sqos", func(current sqos.Set) (sqos.Set, error) {
		return current.Insert(item)
	})
}

// RemoveSQoS removes the item of type t if present
func (l *Locker) RemoveSQoS(caller common.Address, t sqos.Type) error {
	return l.updateSQoS(caller, "remove sqos", func(current sqos.Set) (sqos.Set, error) {
		return current.Remove(t), nil
	})
}

func (l *Locker) ClearSQoS(caller common.Address) error {
	return l.updateSQoS(caller, "clear sqos", func(sqos.Set) (sqos.Set, error) {
		return nil, nil
	})
}

// SetSQoS replaces the whole set. Nothing changes if items repeat a type.
func (l *Locker) SetSQoS(caller common.Address, items sqos.Set) error {
	return l.updateSQoS(caller, "set sqos", func(sqos.Set) (sqos.Set, error) {
		if err := items.Validate(); err != nil {
			return nil, err
		}
		return items.Clone(), nil
	})
}

func (l *Locker) updateSQoS(caller common.Address, op string, fn func(sqos.Set) (sqos.Set, error)) error {
	return l.update(op, func(tx *state.Tx, ac owner.AccessControl) error {
		if err := ac.Authorize(caller); err != nil {
			return err
		}
		current, err := state.ReadSQoS(tx)
		if err != nil {
			return locker.Wrap(locker.ErrStorage, err)
		}
		next, err := fn(current)
		switch {
		case errors.Is(err, sqos.ErrDuplicateType):
			return locker.Wrap(locker.ErrPolicyConflict, err)
		case err != nil:
			return locker.Wrap(locker.ErrInvalidArgument, err)
		}
		return state.WriteSQoS(tx, next)
	})
}

func (l *Locker) TransferOwnership(caller, newOwner common.Address) error {
	return l.update("transfer ownership", func(tx *state.Tx, ac owner.AccessControl) error {
		next, err := ac.Transfer(caller, newOwner)
		if err != nil {
			return err
		}
		return state.WriteOwner(tx, next)
	})
}

// RenounceOwnership leaves the locker without owner. Every owner-gated call
// fails afterwards.
func (l *Locker) RenounceOwnership(caller common.Address) error {
	return l.update("renounce ownership", func(tx *state.Tx, ac owner.AccessControl) error {
		next, err := ac.Renounce(caller)
		if err != nil {
			return err
		}
		return state.WriteOwner(tx, next)
	})
}

// Owner returns the owner, ok is false once renounced
func (l *Locker) Owner() (common.Address, bool, error) {
	ac, _, err := state.ReadOwner(l.store)
	if err != nil {
		return common.Address{}, false, locker.Wrap(locker.ErrStorage, err)
	}
	addr, ok := ac.Owner()
	return addr, ok, nil
}

func (l *Locker) ResolveDestination(chain, action string) (registry.Destination, bool, error) {
	return registry.ResolveDestination(l.store, chain, action)
}

func (l *Locker) IsPermitted(chain, contract, action string) (bool, error) {
	return registry.IsPermitted(l.store, chain, contract, action)
}

func (l *Locker) AddressFormat(chain string) (registry.AddressFormat, error) {
	return registry.GetAddressFormat(l.store, chain)
}

// SQoS returns a copy of the active set
func (l *Locker) SQoS() (sqos.Set, error) {
	return state.ReadSQoS(l.store)
}

// Ledger returns the configured ledger address
func (l *Locker) Ledger() (common.Address, error) {
	return l.contractRef(ledgerRef)
}

// Messenger returns the configured messenger entry point
func (l *Locker) Messenger() (common.Address, error) {
	return l.contractRef(messengerRef)
}

// Processed reports whether an inbound message has been credited
func (l *Locker) Processed(fromChain, sender string, sequence uint64) (bool, error) {
	return state.HasProcessed(l.store, fromChain, sender, sequence)
}

func (l *Locker) Destinations() ([]state.DestinationEntry, error) {
	return l.store.Destinations()
}

func (l *Locker) PermittedSenders() ([]state.PermittedEntry, error) {
	return l.store.PermittedSenders()
}

// Pending lists the ledger calls sent without an observed outcome
func (l *Locker) Pending() ([]state.PendingTransfer, error) {
	return l.store.Pending()
}

// ResolvePending settles the pending ledger call txID once its outcome is
// known. A credit that did not execute is issued again and a burn that did
// execute is refunded; the other two cases only drop the record.
func (l *Locker) ResolvePending(ctx context.Context, caller common.Address, txID string, executed bool) error {
	return l.update("resolve pending", func(tx *state.Tx, ac owner.AccessControl) error {
		if err := ac.Authorize(caller); err != nil {
			return err
		}
		p, ok, err := state.ReadPending(tx, txID)
		if err != nil {
			return locker.Wrap(locker.ErrStorage, err)
		}
		if !ok {
			return locker.Errorf(locker.ErrInvalidArgument, "no pending ledger call %s", txID)
		}
		if err := state.DeletePending(tx, txID); err != nil {
			return err
		}
		if p.Credit == executed {
			return nil
		}

		led, err := l.ledger()
		if err != nil {
			return err
		}
		if p.Credit {
			err = led.MintOrRelease(ctx, p.Account, p.Amount)
		} else {
			err = refundHolder(ctx, led, p.Account, p.Amount)
		}
		switch {
		case ledger.IsOutcomeUnknown(err):
			// settled by the next ResolvePending of the new submission
			p.TxID, _ = ledger.PendingTxID(err)
			p.Credit = true
			l.metrics.pendingCount.Inc()
			return state.WritePending(tx, p)
		case err != nil:
			return ledgerError("resolvePending", err)
		}
		if !p.Credit {
			l.metrics.refundCount.Inc()
		}
		return nil
	})
}
