// Copyright (C) 2019-2025, Lux Industries Inc All rights reserved.
// See the file LICENSE for licensing terms.

// Package bridge implements the locker: the contract that burns or locks
// tokens on the way out of a chain and mints or releases them on the way in,
// coordinated through a cross-chain messenger.
package bridge

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/holiman/uint256"
	"github.com/luxfi/geth/common"
	"github.com/luxfi/log"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/luxfi/locker"
	"github.com/luxfi/locker/ledger"
	"github.com/luxfi/locker/messenger"
	"github.com/luxfi/locker/owner"
	"github.com/luxfi/locker/payload"
	"github.com/luxfi/locker/registry"
	"github.com/luxfi/locker/state"
)

const (
	// DefaultReceiveAction is the action remote lockers route transfers to
	DefaultReceiveAction = "receive_token"

	// KeyTo holds the recipient of a transfer
	KeyTo = "to"
	// KeyNum holds the amount of a transfer
	KeyNum = "num"

	ledgerRef    = "ledger"
	messengerRef = "messenger"
)

var _ messenger.Receiver = (*Locker)(nil)

// Config configures a Locker
type Config struct {
	// Chain is the name of the local chain
	Chain string
	// Contract is the identity remote chains know this locker by
	Contract string
	// ReceiveAction is the action inbound transfers invoke
	ReceiveAction string
	// Owner becomes the owner of a store that has none yet
	Owner common.Address

	Store      *state.Store
	Host       Host
	Log        log.Logger
	Registerer prometheus.Registerer
}

// Locker is the bridge state machine of one chain. Invocations are
// serialized and each one either commits all of its writes or none.
type Locker struct {
	chain         string
	contract      string
	receiveAction string

	store   *state.Store
	host    Host
	log     log.Logger
	metrics *lockerMetrics

	lock sync.Mutex
}

// New returns the locker persisted in cfg.Store, initializing the owner if
// the store is fresh
func New(cfg Config) (*Locker, error) {
	switch {
	case cfg.Chain == "":
		return nil, locker.Errorf(locker.ErrInvalidArgument, "empty chain")
	case cfg.Contract == "":
		return nil, locker.Errorf(locker.ErrInvalidArgument, "empty contract identity")
	case cfg.Store == nil:
		return nil, locker.Errorf(locker.ErrInvalidArgument, "nil store")
	case cfg.Host == nil:
		return nil, locker.Errorf(locker.ErrInvalidArgument, "nil host")
	}
	if cfg.ReceiveAction == "" {
		cfg.ReceiveAction = DefaultReceiveAction
	}
	if cfg.Log == nil {
		cfg.Log = log.NewNoOpLogger()
	}
	if cfg.Registerer == nil {
		cfg.Registerer = prometheus.NewRegistry()
	}

	err := cfg.Store.Update(func(tx *state.Tx) error {
		_, ok, err := state.ReadOwner(tx)
		if err != nil || ok {
			return err
		}
		return state.WriteOwner(tx, owner.New(cfg.Owner))
	})
	if err != nil {
		return nil, locker.Wrap(locker.ErrStorage, err)
	}

	return &Locker{
		chain:         cfg.Chain,
		contract:      cfg.Contract,
		receiveAction: cfg.ReceiveAction,
		store:         cfg.Store,
		host:          cfg.Host,
		log:           cfg.Log,
		metrics:       newLockerMetrics(cfg.Chain, cfg.Registerer),
	}, nil
}

func (l *Locker) Chain() string         { return l.chain }
func (l *Locker) Contract() string      { return l.contract }
func (l *Locker) ReceiveAction() string { return l.receiveAction }

// TransferOut takes amount from caller and asks the locker registered for
// (toChain, receive action) to credit recipient. The burn completes before
// the message is built; if the message cannot be built or sent the holder is
// refunded.
func (l *Locker) TransferOut(ctx context.Context, caller common.Address, toChain, recipient string, amount *uint256.Int) error {
	l.lock.Lock()
	defer l.lock.Unlock()

	if err := l.transferOut(ctx, caller, toChain, recipient, amount); err != nil {
		l.metrics.rejected("out", err)
		l.log.Debug(
			"Transfer out rejected",
			log.String("toChain", toChain),
			log.Stringer("holder", caller),
			log.Err(err),
		)
		return err
	}
	l.metrics.transferredOut(toChain, amount)
	l.log.Info(
		"Transferred out",
		log.String("toChain", toChain),
		log.Stringer("holder", caller),
		log.String("recipient", recipient),
		log.String("amount", amount.Dec()),
	)
	return nil
}

func (l *Locker) transferOut(ctx context.Context, caller common.Address, toChain, recipient string, amount *uint256.Int) error {
	if toChain == "" {
		return locker.Errorf(locker.ErrInvalidArgument, "empty destination chain")
	}
	if amount == nil || amount.IsZero() {
		return locker.Errorf(locker.ErrInvalidArgument, "zero amount")
	}
	num, err := payload.U128(amount)
	if err != nil {
		return locker.Wrap(locker.ErrInvalidArgument, err)
	}

	led, err := l.ledger()
	if err != nil {
		return err
	}
	msgr, err := l.messenger()
	if err != nil {
		return err
	}

	if err := led.BurnOrLock(ctx, caller, amount); err != nil {
		if ledger.IsOutcomeUnknown(err) {
			l.recordPending(err, state.PendingTransfer{
				Account: caller,
				Amount:  amount,
				ToChain: toChain,
			})
		}
		return ledgerError("burnOrLock", err)
	}

	// From here on the holder has paid: every failure is refunded.
	msg, err := l.buildTransfer(toChain, recipient, num)
	if err != nil {
		return l.refund(ctx, led, caller, amount, toChain, err)
	}
	if err := msgr.Send(ctx, l.contract, msg); err != nil {
		sendErr := locker.Wrap(locker.ErrCrossContractCall, fmt.Errorf("messenger refused message: %w", err))
		return l.refund(ctx, led, caller, amount, toChain, sendErr)
	}
	return nil
}

// buildTransfer resolves the destination of a transfer and encodes it
func (l *Locker) buildTransfer(toChain, recipient string, num payload.Value) (*locker.RequestMessage, error) {
	dest, err := registry.MustResolveDestination(l.store, toChain, l.receiveAction)
	if err != nil {
		return nil, err
	}
	format, err := registry.GetAddressFormat(l.store, toChain)
	if err != nil {
		return nil, locker.Wrap(locker.ErrStorage, err)
	}
	to, err := format.Encode(recipient)
	if err != nil {
		return nil, err
	}
	qos, err := state.ReadSQoS(l.store)
	if err != nil {
		return nil, locker.Wrap(locker.ErrStorage, err)
	}

	p := payload.New()
	p.PushItem(KeyTo, payload.Addr(to))
	p.PushItem(KeyNum, num)
	msg, err := locker.NewRequestMessage(toChain, qos, locker.Content{
		Contract: dest.Contract,
		Action:   dest.Action,
		Payload:  p,
	})
	if err != nil {
		return nil, locker.Wrap(locker.ErrCodec, err)
	}
	return msg, nil
}

// refund gives a burn back to holder after its transfer failed with cause.
// cause is returned unchanged when the refund succeeds.
func (l *Locker) refund(ctx context.Context, led ledger.Ledger, holder common.Address, amount *uint256.Int, toChain string, cause error) error {
	err := refundHolder(ctx, led, holder, amount)
	if err == nil {
		l.metrics.refundCount.Inc()
		return cause
	}

	if ledger.IsOutcomeUnknown(err) {
		l.recordPending(err, state.PendingTransfer{
			Credit:  true,
			Account: holder,
			Amount:  amount,
			ToChain: toChain,
		})
	}
	l.log.Error(
		"Failed to refund holder",
		log.Stringer("holder", holder),
		log.String("amount", amount.Dec()),
		log.Err(err),
	)
	return locker.Wrap(locker.ErrCrossContractCall, errors.Join(cause, err))
}

// refundHolder undoes a BurnOrLock. Ledgers that cannot restore the operator
// allowance are refunded with a plain MintOrRelease.
func refundHolder(ctx context.Context, led ledger.Ledger, holder common.Address, amount *uint256.Int) error {
	if r, ok := led.(ledger.Refunder); ok {
		return r.Refund(ctx, holder, amount)
	}
	return led.MintOrRelease(ctx, holder, amount)
}

// recordPending persists a ledger call whose outcome is unknown so that it
// can be settled with ResolvePending
func (l *Locker) recordPending(err error, p state.PendingTransfer) {
	txID, _ := ledger.PendingTxID(err)
	p.TxID = txID
	l.metrics.pendingCount.Inc()

	werr := l.store.Update(func(tx *state.Tx) error {
		return state.WritePending(tx, p)
	})
	if werr != nil {
		l.log.Error(
			"Failed to record pending ledger call",
			log.String("txID", txID),
			log.Stringer("account", p.Account),
			log.String("amount", p.Amount.Dec()),
			log.Err(werr),
		)
		return
	}
	l.log.Warn(
		"Ledger call outcome unknown",
		log.String("txID", txID),
		log.Bool("credit", p.Credit),
		log.Stringer("account", p.Account),
		log.String("amount", p.Amount.Dec()),
	)
}

// Receive credits an inbound transfer. caller must be the configured
// messenger and msgCtx is the provenance it attached.
func (l *Locker) Receive(ctx context.Context, caller common.Address, p *payload.Payload, msgCtx locker.Context) error {
	l.lock.Lock()
	defer l.lock.Unlock()

	recipient, amount, err := l.receive(ctx, caller, p, msgCtx)
	if err != nil {
		l.metrics.rejected("in", err)
		l.log.Warn(
			"Inbound transfer rejected",
			log.String("fromChain", msgCtx.FromChain),
			log.String("sender", msgCtx.Sender),
			log.Uint64("sequence", msgCtx.Sequence),
			log.Err(err),
		)
		return err
	}
	l.metrics.transferredIn(msgCtx.FromChain, amount)
	l.log.Info(
		"Transferred in",
		log.String("fromChain", msgCtx.FromChain),
		log.String("sender", msgCtx.Sender),
		log.Uint64("sequence", msgCtx.Sequence),
		log.Stringer("recipient", recipient),
		log.String("amount", amount.Dec()),
	)
	return nil
}

func (l *Locker) receive(ctx context.Context, caller common.Address, p *payload.Payload, msgCtx locker.Context) (common.Address, *uint256.Int, error) {
	entry, err := l.messengerAddress()
	if err != nil {
		return common.Address{}, nil, err
	}
	if caller != entry {
		return common.Address{}, nil, locker.Errorf(locker.ErrUnauthorized, "caller %s is not the messenger entry point", caller.Hex())
	}
	if msgCtx.Action != l.receiveAction {
		return common.Address{}, nil, locker.Errorf(locker.ErrUnauthorized, "action %q is not served", msgCtx.Action)
	}
	if err := registry.AssertPermitted(l.store, msgCtx.FromChain, msgCtx.Sender, msgCtx.Action); err != nil {
		return common.Address{}, nil, err
	}

	done, err := state.HasProcessed(l.store, msgCtx.FromChain, msgCtx.Sender, msgCtx.Sequence)
	if err != nil {
		return common.Address{}, nil, locker.Wrap(locker.ErrStorage, err)
	}
	if done {
		return common.Address{}, nil, locker.Errorf(locker.ErrAlreadyProcessed, "sequence %d from %s on %s", msgCtx.Sequence, msgCtx.Sender, msgCtx.FromChain)
	}

	recipient, amount, err := DecodeTransfer(p)
	if err != nil {
		return common.Address{}, nil, err
	}
	led, err := l.ledger()
	if err != nil {
		return common.Address{}, nil, err
	}

	// The marker is written before the mint so that a crash in between can
	// only lose a mint, never repeat one.
	err = l.store.Update(func(tx *state.Tx) error {
		return state.WriteProcessed(tx, msgCtx.FromChain, msgCtx.Sender, msgCtx.Sequence)
	})
	if err != nil {
		return common.Address{}, nil, locker.Wrap(locker.ErrStorage, err)
	}
	l.metrics.processedMarker.WithLabelValues("write").Inc()

	if err := led.MintOrRelease(ctx, recipient, amount); err != nil {
		if ledger.IsOutcomeUnknown(err) {
			// The mint may still land, so the marker stays and a redelivery
			// is refused.
			l.recordPending(err, state.PendingTransfer{
				Credit:    true,
				Account:   recipient,
				Amount:    amount,
				FromChain: msgCtx.FromChain,
				Sender:    msgCtx.Sender,
				Sequence:  msgCtx.Sequence,
			})
			return common.Address{}, nil, ledgerError("mintOrRelease", err)
		}
		rollbackErr := l.store.Update(func(tx *state.Tx) error {
			return state.DeleteProcessed(tx, msgCtx.FromChain, msgCtx.Sender, msgCtx.Sequence)
		})
		if rollbackErr != nil {
			l.log.Error(
				"Failed to clear processed marker",
				log.String("fromChain", msgCtx.FromChain),
				log.String("sender", msgCtx.Sender),
				log.Uint64("sequence", msgCtx.Sequence),
				log.Err(rollbackErr),
			)
		} else {
			l.metrics.processedMarker.WithLabelValues("rollback").Inc()
		}
		return common.Address{}, nil, ledgerError("mintOrRelease", err)
	}
	return recipient, amount, nil
}

// DecodeTransfer extracts the local recipient and amount of a transfer
// payload. The recipient may be an address, 20 raw bytes or a hex string.
func DecodeTransfer(p *payload.Payload) (common.Address, *uint256.Int, error) {
	if p == nil {
		return common.Address{}, nil, locker.Errorf(locker.ErrCodec, "nil payload")
	}

	toValue, ok := p.Item(KeyTo)
	if !ok {
		return common.Address{}, nil, locker.Errorf(locker.ErrCodec, "missing %q", KeyTo)
	}
	recipient, err := decodeRecipient(toValue)
	if err != nil {
		return common.Address{}, nil, err
	}

	numValue, ok := p.Item(KeyNum)
	if !ok {
		return common.Address{}, nil, locker.Errorf(locker.ErrCodec, "missing %q", KeyNum)
	}
	amount, err := numValue.AsU128()
	if err != nil {
		return common.Address{}, nil, locker.Wrap(locker.ErrCodec, fmt.Errorf("%q: %w", KeyNum, err))
	}
	if amount.IsZero() {
		return common.Address{}, nil, locker.Errorf(locker.ErrCodec, "zero amount")
	}
	return recipient, amount, nil
}

func decodeRecipient(v payload.Value) (common.Address, error) {
	switch v.Kind() {
	case payload.KindAddress:
		addr, _ := v.AsAddress()
		if native, ok := addr.Native(); ok {
			return native, nil
		}
		foreign, _ := addr.Foreign()
		return parseHexRecipient(foreign)
	case payload.KindBytes:
		b, _ := v.AsBytes()
		if len(b) != common.AddressLength {
			return common.Address{}, locker.Errorf(locker.ErrCodec, "recipient of %d bytes", len(b))
		}
		return common.BytesToAddress(b), nil
	case payload.KindString:
		s, _ := v.AsString()
		return parseHexRecipient(s)
	default:
		return common.Address{}, locker.Wrap(locker.ErrCodec, fmt.Errorf("%q: %w: have %s", KeyTo, payload.ErrTypeMismatch, v.Kind()))
	}
}

func parseHexRecipient(s string) (common.Address, error) {
	if !common.IsHexAddress(s) {
		return common.Address{}, locker.Errorf(locker.ErrCodec, "recipient %q is not an account of this chain", s)
	}
	return common.HexToAddress(s), nil
}

// ledgerError keeps the ledger's own error matchable next to the bridge kind
func ledgerError(op string, err error) error {
	if ledger.IsCallError(err) || ledger.IsOutcomeUnknown(err) {
		return locker.Wrap(locker.ErrCrossContractCall, err)
	}
	return locker.Wrap(locker.ErrLedger, fmt.Errorf("%s: %w", op, err))
}

func (l *Locker) ledger() (ledger.Ledger, error) {
	addr, err := l.contractRef(ledgerRef)
	if err != nil {
		return nil, err
	}
	led, ok := l.host.Ledger(addr)
	if !ok {
		return nil, locker.Errorf(locker.ErrCrossContractCall, "no ledger deployed at %s", addr.Hex())
	}
	return led, nil
}

func (l *Locker) messenger() (Messenger, error) {
	addr, err := l.contractRef(messengerRef)
	if err != nil {
		return nil, err
	}
	m, ok := l.host.Messenger(addr)
	if !ok {
		return nil, locker.Errorf(locker.ErrCrossContractCall, "no messenger deployed at %s", addr.Hex())
	}
	return m, nil
}

func (l *Locker) messengerAddress() (common.Address, error) {
	return l.contractRef(messengerRef)
}

func (l *Locker) contractRef(name string) (common.Address, error) {
	addr, ok, err := state.ReadContractRef(l.store, name)
	if err != nil {
		return common.Address{}, locker.Wrap(locker.ErrStorage, err)
	}
	if !ok {
		return common.Address{}, locker.Errorf(locker.ErrConfiguration, "%s contract not set", name)
	}
	return addr, nil
}
