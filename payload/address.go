// Copyright (C) 2019-2025, Lux Industries Inc All rights reserved.
// See the file LICENSE for licensing terms.

package payload

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/luxfi/geth/common"
)

// AddressKind tells a native host-chain account apart from an address that
// only has meaning on some other chain.
type AddressKind uint8

const (
	AddressNative AddressKind = iota + 1
	AddressForeign
)

func (k AddressKind) String() string {
	switch k {
	case AddressNative:
		return "native"
	case AddressForeign:
		return "foreign"
	default:
		return "unknown"
	}
}

// Address is a chain address carried in a payload. A native address is a
// 20-byte account of the host chain, a foreign address is kept verbatim as
// the remote chain prints it.
type Address struct {
	kind    AddressKind
	native  common.Address
	foreign string
}

// NativeAddress wraps a host-chain account.
func NativeAddress(addr common.Address) Address {
	return Address{kind: AddressNative, native: addr}
}

// ForeignAddress wraps an opaque address of another chain.
func ForeignAddress(addr string) Address {
	return Address{kind: AddressForeign, foreign: strings.ToValidUTF8(addr, "�")}
}

// ParseAddress returns a native address for 0x-prefixed 20-byte hex strings and
// a foreign address for anything else.
func ParseAddress(s string) Address {
	if strings.HasPrefix(s, "0x") && common.IsHexAddress(s) {
		return NativeAddress(common.HexToAddress(s))
	}
	return ForeignAddress(s)
}

func (a Address) Kind() AddressKind { return a.kind }

func (a Address) IsNative() bool { return a.kind == AddressNative }

// Native returns the host-chain account. ok is false for foreign addresses.
func (a Address) Native() (common.Address, bool) {
	return a.native, a.kind == AddressNative
}

// Foreign returns the remote representation. ok is false for native addresses.
func (a Address) Foreign() (string, bool) {
	return a.foreign, a.kind == AddressForeign
}

func (a Address) String() string {
	switch a.kind {
	case AddressNative:
		return a.native.Hex()
	case AddressForeign:
		return a.foreign
	default:
		return ""
	}
}

func (a Address) bytes() []byte {
	switch a.kind {
	case AddressNative:
		return append([]byte{byte(AddressNative)}, a.native.Bytes()...)
	default:
		return append([]byte{byte(AddressForeign)}, a.foreign...)
	}
}

func parseAddress(b []byte) (Address, error) {
	if len(b) == 0 {
		return Address{}, fmt.Errorf("%w: empty address", ErrInvalidPayload)
	}
	switch AddressKind(b[0]) {
	case AddressNative:
		if len(b) != 1+common.AddressLength {
			return Address{}, fmt.Errorf("%w: native address must be %d bytes, got %d", ErrInvalidPayload, common.AddressLength, len(b)-1)
		}
		return NativeAddress(common.BytesToAddress(b[1:])), nil
	case AddressForeign:
		if !utf8.Valid(b[1:]) {
			return Address{}, fmt.Errorf("%w: foreign address is not valid UTF-8", ErrInvalidPayload)
		}
		return ForeignAddress(string(b[1:])), nil
	default:
		return Address{}, fmt.Errorf("%w: unknown address kind %d", ErrInvalidPayload, b[0])
	}
}
