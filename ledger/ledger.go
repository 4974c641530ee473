// Copyright (C) 2019-2025, Lux Industries Inc All rights reserved.
// See the file LICENSE for licensing terms.

// Package ledger defines the token ledger the bridge burns from and mints to.
package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/holiman/uint256"
	"github.com/luxfi/geth/common"
)

var (
	// ErrInsufficientBalance is returned when the holder owns less than the amount
	ErrInsufficientBalance = errors.New("insufficient balance")

	// ErrInsufficientAllowance is returned when the bridge may not spend the amount
	ErrInsufficientAllowance = errors.New("insufficient allowance")

	// ErrOutcomeUnknown matches every PendingError
	ErrOutcomeUnknown = errors.New("outcome unknown")
)

// Ledger moves bridged value. Errors that are neither ErrInsufficientBalance
// nor ErrInsufficientAllowance should be wrapped in a CallError when the call
// could not be executed at all, and in a PendingError when it was submitted
// but its outcome could not be observed.
type Ledger interface {
	// BurnOrLock takes amount from holder
	BurnOrLock(ctx context.Context, holder common.Address, amount *uint256.Int) error

	// MintOrRelease gives amount to recipient
	MintOrRelease(ctx context.Context, recipient common.Address, amount *uint256.Int) error
}

// CallError reports a ledger call that could not be executed, as opposed to
// one the ledger executed and rejected.
type CallError struct {
	Op  string
	Err error
}

func (e *CallError) Error() string {
	return fmt.Sprintf("ledger %s call failed: %v", e.Op, e.Err)
}

func (e *CallError) Unwrap() error { return e.Err }

// IsCallError reports whether err carries a CallError
func IsCallError(err error) bool {
	var ce *CallError
	return errors.As(err, &ce)
}

// IsRejection reports whether err is a business-level ledger rejection
func IsRejection(err error) bool {
	return errors.Is(err, ErrInsufficientBalance) || errors.Is(err, ErrInsufficientAllowance)
}

// Refunder is implemented by ledgers that can undo a BurnOrLock completely,
// including the operator allowance it consumed
type Refunder interface {
	Refund(ctx context.Context, holder common.Address, amount *uint256.Int) error
}

// PendingError reports a ledger call that was submitted but whose outcome is
// unknown. It may still execute, so callers must not treat it as a failure.
type PendingError struct {
	Op string
	// TxID identifies the submission so that it can be looked up later
	TxID string
	Err  error
}

func (e *PendingError) Error() string {
	return fmt.Sprintf("ledger %s call %s sent, outcome unknown: %v", e.Op, e.TxID, e.Err)
}

func (e *PendingError) Unwrap() error { return e.Err }

func (e *PendingError) Is(target error) bool { return target == ErrOutcomeUnknown }

// IsOutcomeUnknown reports whether err carries a PendingError
func IsOutcomeUnknown(err error) bool {
	return errors.Is(err, ErrOutcomeUnknown)
}

// PendingTxID returns the submission id of the PendingError err carries
func PendingTxID(err error) (string, bool) {
	var pe *PendingError
	if !errors.As(err, &pe) {
		return "", false
	}
	return pe.TxID, true
}
