// Copyright (C) 2019-2025, Lux Industries Inc All rights reserved.
// See the file LICENSE for licensing terms.

// Package owner implements single-owner access control as a value that is
// handed to every privileged operation.
package owner

import (
	"io"

	"github.com/luxfi/geth/common"
	"github.com/luxfi/geth/rlp"

	"github.com/luxfi/locker"
)

// AccessControl carries the current owner. The zero value has no owner and
// authorizes nobody.
type AccessControl struct {
	owner *common.Address
}

// New returns an AccessControl owned by owner
func New(owner common.Address) AccessControl {
	return AccessControl{owner: &owner}
}

// Owner returns the owner. ok is false once ownership has been renounced.
func (a AccessControl) Owner() (common.Address, bool) {
	if a.owner == nil {
		return common.Address{}, false
	}
	return *a.owner, true
}

// Renounced reports whether the contract has no owner
func (a AccessControl) Renounced() bool {
	return a.owner == nil
}

// Authorize fails unless caller is the current owner
func (a AccessControl) Authorize(caller common.Address) error {
	if a.owner == nil {
		return locker.Errorf(locker.ErrUnauthorized, "ownership renounced")
	}
	if *a.owner != caller {
		return locker.Errorf(locker.ErrUnauthorized, "caller %s is not the owner", caller.Hex())
	}
	return nil
}

// Transfer returns the access control owned by newOwner
func (a AccessControl) Transfer(caller, newOwner common.Address) (AccessControl, error) {
	if err := a.Authorize(caller); err != nil {
		return a, err
	}
	return New(newOwner), nil
}

// Renounce returns an access control without owner. There is no way back.
func (a AccessControl) Renounce(caller common.Address) (AccessControl, error) {
	if err := a.Authorize(caller); err != nil {
		return a, err
	}
	return AccessControl{}, nil
}

type encoded struct {
	Renounced bool
	Owner     common.Address
}

// EncodeRLP implements rlp.Encoder
func (a AccessControl) EncodeRLP(w io.Writer) error {
	e := encoded{Renounced: a.owner == nil}
	if a.owner != nil {
		e.Owner = *a.owner
	}
	return rlp.Encode(w, &e)
}

// DecodeRLP implements rlp.Decoder
func (a *AccessControl) DecodeRLP(s *rlp.Stream) error {
	var e encoded
	if err := s.Decode(&e); err != nil {
		return err
	}
	if e.Renounced {
		*a = AccessControl{}
		return nil
	}
	*a = New(e.Owner)
	return nil
}
