// Copyright (C) 2019-2025, Lux Industries Inc All rights reserved.
// See the file LICENSE for licensing terms.

// Package sqos models the delivery-quality directives attached to outbound
// cross-chain messages.
package sqos

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrDuplicateType is returned when a set would hold two items of one type
	ErrDuplicateType = errors.New("duplicate SQoS type")

	ErrUnknownType = errors.New("unknown SQoS type")
)

// Type identifies a quality-of-service directive
type Type uint8

const (
	Reveal Type = iota
	Challenge
	Threshold
	Priority
	ExceptionRollback
	SelectionDelay
	Isolation
	CrossVerify
)

var typeNames = []string{
	Reveal:            "reveal",
	Challenge:         "challenge",
	Threshold:         "threshold",
	Priority:          "priority",
	ExceptionRollback: "exception-rollback",
	SelectionDelay:    "selection-delay",
	Isolation:         "isolation",
	CrossVerify:       "cross-verify",
}

func (t Type) String() string {
	if int(t) < len(typeNames) {
		return typeNames[t]
	}
	return fmt.Sprintf("type(%d)", uint8(t))
}

// Valid reports whether t is a known type
func (t Type) Valid() bool {
	return int(t) < len(typeNames)
}

// ParseType is the inverse of Type.String
func ParseType(s string) (Type, error) {
	for i, name := range typeNames {
		if strings.EqualFold(name, s) {
			return Type(i), nil
		}
	}
	return 0, fmt.Errorf("%w %q", ErrUnknownType, s)
}

// Item is one directive with an optional parameter
type Item struct {
	Type  Type
	Param []byte `rlp:"optional"`
}

// New returns an item without a parameter
func New(t Type) Item {
	return Item{Type: t}
}

// WithParam returns an item carrying param
func WithParam(t Type, param []byte) Item {
	if len(param) == 0 {
		return Item{Type: t}
	}
	return Item{Type: t, Param: append([]byte(nil), param...)}
}

func (i Item) Equal(o Item) bool {
	return i.Type == o.Type && bytes.Equal(i.Param, o.Param)
}

func (i Item) String() string {
	if len(i.Param) == 0 {
		return i.Type.String()
	}
	return fmt.Sprintf("%s(0x%x)", i.Type, i.Param)
}

// Set is an ordered collection holding at most one item per type
type Set []Item

// Validate checks every pair of items for a repeated type
func (s Set) Validate() error {
	for i := 0; i < len(s); i++ {
		if !s[i].Type.Valid() {
			return fmt.Errorf("%w %d", ErrUnknownType, uint8(s[i].Type))
		}
		for j := i + 1; j < len(s); j++ {
			if s[i].Type == s[j].Type {
				return fmt.Errorf("%w: %s", ErrDuplicateType, s[i].Type)
			}
		}
	}
	return nil
}

// Contains reports whether an item of type t exists
func (s Set) Contains(t Type) bool {
	_, ok := s.Get(t)
	return ok
}

// Get returns the item of type t
func (s Set) Get(t Type) (Item, bool) {
	for _, item := range s {
		if item.Type == t {
			return item, true
		}
	}
	return Item{}, false
}

// Insert returns s with item appended. It fails if the type is present; the
// existing item has to be removed first.
func (s Set) Insert(item Item) (Set, error) {
	if !item.Type.Valid() {
		return s, fmt.Errorf("%w %d", ErrUnknownType, uint8(item.Type))
	}
	if s.Contains(item.Type) {
		return s, fmt.Errorf("%w: %s", ErrDuplicateType, item.Type)
	}
	out := s.Clone()
	return append(out, WithParam(item.Type, item.Param)), nil
}

// Remove returns s without the item of type t. Removing an absent type is a
// no-op.
func (s Set) Remove(t Type) Set {
	out := make(Set, 0, len(s))
	for _, item := range s {
		if item.Type != t {
			out = append(out, item)
		}
	}
	return out
}

// Clone returns a deep copy; outbound messages carry a snapshot, never the
// live set.
func (s Set) Clone() Set {
	if s == nil {
		return nil
	}
	out := make(Set, len(s))
	for i, item := range s {
		out[i] = WithParam(item.Type, item.Param)
	}
	return out
}

func (s Set) Equal(o Set) bool {
	if len(s) != len(o) {
		return false
	}
	for i := range s {
		if !s[i].Equal(o[i]) {
			return false
		}
	}
	return true
}
