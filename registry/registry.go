// Copyright (C) 2019-2025, Lux Industries Inc All rights reserved.
// See the file LICENSE for licensing terms.

// Package registry routes outbound actions to remote contracts and
// authenticates inbound senders. Mutations are owner-gated and upsert;
// lookups are public.
package registry

import (
	"fmt"
	"strings"

	"github.com/luxfi/geth/common"

	"github.com/luxfi/locker"
	"github.com/luxfi/locker/owner"
	"github.com/luxfi/locker/payload"
	"github.com/luxfi/locker/state"
)

// Destination is where an outbound action lands on a remote chain
type Destination = state.Destination

func requireNonEmpty(fields ...string) error {
	for i := 0; i < len(fields); i += 2 {
		if fields[i+1] == "" {
			return locker.Errorf(locker.ErrInvalidArgument, "empty %s", fields[i])
		}
	}
	return nil
}

// RegisterDestination routes (chain, action) to (contract, remoteAction),
// overwriting any previous route.
func RegisterDestination(
	rw state.ReadWriter,
	ac owner.AccessControl,
	caller common.Address,
	chain, action, contract, remoteAction string,
) error {
	if err := ac.Authorize(caller); err != nil {
		return err
	}
	if err := requireNonEmpty(
		"chain", chain,
		"action", action,
		"contract", contract,
		"remote action", remoteAction,
	); err != nil {
		return err
	}
	return state.WriteDestination(rw, chain, action, Destination{Contract: contract, Action: remoteAction})
}

// ResolveDestination looks up the route of (chain, action)
func ResolveDestination(r state.Reader, chain, action string) (Destination, bool, error) {
	return state.ReadDestination(r, chain, action)
}

// MustResolveDestination fails with ErrNotRegistered when no route exists
func MustResolveDestination(r state.Reader, chain, action string) (Destination, error) {
	d, ok, err := state.ReadDestination(r, chain, action)
	if err != nil {
		return Destination{}, locker.Wrap(locker.ErrStorage, err)
	}
	if !ok {
		return Destination{}, locker.Errorf(locker.ErrNotRegistered, "no destination for action %q on chain %q", action, chain)
	}
	return d, nil
}

// RegisterPermittedSender allows contract on chain to invoke the local action
func RegisterPermittedSender(
	rw state.ReadWriter,
	ac owner.AccessControl,
	caller common.Address,
	chain, contract, action string,
) error {
	if err := ac.Authorize(caller); err != nil {
		return err
	}
	if err := requireNonEmpty("chain", chain, "contract", contract, "action", action); err != nil {
		return err
	}
	return state.WritePermitted(rw, chain, contract, action)
}

// UnregisterPermittedSender revokes a permission. Revoking an absent
// permission is a no-op.
func UnregisterPermittedSender(
	rw state.ReadWriter,
	ac owner.AccessControl,
	caller common.Address,
	chain, contract, action string,
) error {
	if err := ac.Authorize(caller); err != nil {
		return err
	}
	return state.DeletePermitted(rw, chain, contract, action)
}

func IsPermitted(r state.Reader, chain, contract, action string) (bool, error) {
	return state.HasPermitted(r, chain, contract, action)
}

// AssertPermitted fails closed: a missing entry, or a failure to read it,
// rejects the sender.
func AssertPermitted(r state.Reader, chain, contract, action string) error {
	ok, err := state.HasPermitted(r, chain, contract, action)
	if err != nil {
		return locker.Wrap(locker.ErrUnauthorized, err)
	}
	if !ok {
		return locker.Errorf(locker.ErrUnauthorized, "sender %s on chain %q may not invoke %q", contract, chain, action)
	}
	return nil
}

// AddressFormat selects how a recipient string is encoded for a destination
// chain
type AddressFormat uint8

const (
	// FormatAuto encodes 0x-prefixed 20-byte hex as native, anything else as foreign
	FormatAuto AddressFormat = iota
	// FormatNative requires a 20-byte hex account
	FormatNative
	// FormatForeign carries the recipient verbatim
	FormatForeign
)

func (f AddressFormat) String() string {
	switch f {
	case FormatAuto:
		return "auto"
	case FormatNative:
		return "native"
	case FormatForeign:
		return "foreign"
	default:
		return fmt.Sprintf("format(%d)", uint8(f))
	}
}

func ParseAddressFormat(s string) (AddressFormat, error) {
	for _, f := range []AddressFormat{FormatAuto, FormatNative, FormatForeign} {
		if strings.EqualFold(f.String(), s) {
			return f, nil
		}
	}
	return 0, locker.Errorf(locker.ErrInvalidArgument, "unknown address format %q", s)
}

// Encode turns a recipient string into a payload address
func (f AddressFormat) Encode(recipient string) (payload.Address, error) {
	if recipient == "" {
		return payload.Address{}, locker.Errorf(locker.ErrInvalidArgument, "empty recipient")
	}
	switch f {
	case FormatAuto:
		return payload.ParseAddress(recipient), nil
	case FormatNative:
		if !common.IsHexAddress(recipient) {
			return payload.Address{}, locker.Errorf(locker.ErrInvalidArgument, "recipient %q is not a hex account", recipient)
		}
		return payload.NativeAddress(common.HexToAddress(recipient)), nil
	case FormatForeign:
		return payload.ForeignAddress(recipient), nil
	default:
		return payload.Address{}, locker.Errorf(locker.ErrInvalidArgument, "unknown address format %d", uint8(f))
	}
}

// SetAddressFormat records the address format of a destination chain
func SetAddressFormat(
	rw state.ReadWriter,
	ac owner.AccessControl,
	caller common.Address,
	chain string,
	format AddressFormat,
) error {
	if err := ac.Authorize(caller); err != nil {
		return err
	}
	if err := requireNonEmpty("chain", chain); err != nil {
		return err
	}
	if format > FormatForeign {
		return locker.Errorf(locker.ErrInvalidArgument, "unknown address format %d", uint8(format))
	}
	return state.WriteAddressFormat(rw, chain, uint8(format))
}

// GetAddressFormat returns the format of chain, FormatAuto if unset
func GetAddressFormat(r state.Reader, chain string) (AddressFormat, error) {
	f, ok, err := state.ReadAddressFormat(r, chain)
	if err != nil || !ok {
		return FormatAuto, err
	}
	return AddressFormat(f), nil
}
