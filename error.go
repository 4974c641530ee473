// Copyright (C) 2019-2025, Lux Industries Inc All rights reserved.
// See the file LICENSE for licensing terms.

package locker

import (
	"errors"
	"fmt"
)

// Code classifies a bridge error. Codes are stable and may be surfaced to
// callers on the host chain.
type Code int32

const (
	CodeUnknown Code = iota
	CodeUnauthorized
	CodeNotRegistered
	CodeLedger
	CodeCrossContractCall
	CodeCodec
	CodePolicyConflict
	CodeConfiguration
	CodeAlreadyProcessed
	CodeInvalidArgument
	CodeStorage
)

func (c Code) String() string {
	switch c {
	case CodeUnauthorized:
		return "unauthorized"
	case CodeNotRegistered:
		return "not registered"
	case CodeLedger:
		return "ledger"
	case CodeCrossContractCall:
		return "cross contract call"
	case CodeCodec:
		return "codec"
	case CodePolicyConflict:
		return "policy conflict"
	case CodeConfiguration:
		return "configuration"
	case CodeAlreadyProcessed:
		return "already processed"
	case CodeInvalidArgument:
		return "invalid argument"
	case CodeStorage:
		return "storage"
	default:
		return "unknown"
	}
}

// Error represents a bridge error
type Error struct {
	Code    Code
	Message string
}

// Error implements the error interface
func (e *Error) Error() string {
	return e.Message
}

// Is reports whether target carries the same code, so wrapped sentinels match
// with errors.Is regardless of the message attached at the call site.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
}

var (
	ErrUnauthorized      = &Error{Code: CodeUnauthorized, Message: "unauthorized"}
	ErrNotRegistered     = &Error{Code: CodeNotRegistered, Message: "method not registered"}
	ErrLedger            = &Error{Code: CodeLedger, Message: "ledger rejected call"}
	ErrCrossContractCall = &Error{Code: CodeCrossContractCall, Message: "cross contract call failed"}
	ErrCodec             = &Error{Code: CodeCodec, Message: "codec error"}
	ErrPolicyConflict    = &Error{Code: CodePolicyConflict, Message: "policy conflict"}
	ErrConfiguration     = &Error{Code: CodeConfiguration, Message: "contract not configured"}
	ErrAlreadyProcessed  = &Error{Code: CodeAlreadyProcessed, Message: "message already processed"}
	ErrInvalidArgument   = &Error{Code: CodeInvalidArgument, Message: "invalid argument"}
	ErrStorage           = &Error{Code: CodeStorage, Message: "storage failure"}
)

// CodeOf returns the code of the first bridge error found in err's chain.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeUnknown
}

// Errorf wraps kind with a formatted message.
func Errorf(kind *Error, format string, args ...any) error {
	return fmt.Errorf("%w: %s", kind, fmt.Sprintf(format, args...))
}

// Wrap attaches kind to err, keeping both matchable with errors.Is.
func Wrap(kind *Error, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %w", kind, err)
}
