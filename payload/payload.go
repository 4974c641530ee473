// Copyright (C) 2019-2025, Lux Partners Limited. All rights reserved.
// See the file LICENSE for licensing terms.

// Package payload implements the typed key/value body carried by every
// cross-chain call. The encoding is RLP and independent of the host chain.
package payload

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/holiman/uint256"
	"github.com/luxfi/geth/rlp"
)

const (
	// CodecVersion is the only payload encoding version understood
	CodecVersion uint16 = 0

	// U128Len is the fixed width of an encoded 128-bit integer
	U128Len = 16
)

var (
	// ErrInvalidPayload is returned when bytes do not decode to a payload
	ErrInvalidPayload = errors.New("invalid payload")

	// ErrTypeMismatch is returned when a value is read as the wrong kind
	ErrTypeMismatch = errors.New("payload value type mismatch")

	// ErrOverflow is returned for integers that do not fit in 128 bits
	ErrOverflow = errors.New("value exceeds 128 bits")
)

// Kind is the tag of a payload value
type Kind uint8

const (
	KindBytes Kind = iota + 1
	KindU128
	KindString
	KindAddress
)

func (k Kind) String() string {
	switch k {
	case KindBytes:
		return "bytes"
	case KindU128:
		return "u128"
	case KindString:
		return "string"
	case KindAddress:
		return "address"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

func (k Kind) valid() bool {
	return k >= KindBytes && k <= KindAddress
}

// Value is a tagged union of the types a payload item can hold
type Value struct {
	kind Kind
	raw  []byte
	num  *uint256.Int
	str  string
	addr Address
}

// Bytes returns a byte-string value.
func Bytes(b []byte) Value {
	return Value{kind: KindBytes, raw: append([]byte(nil), b...)}
}

// U128 returns an unsigned 128-bit integer value.
func U128(v *uint256.Int) (Value, error) {
	if v == nil {
		return Value{}, fmt.Errorf("%w: nil integer", ErrInvalidPayload)
	}
	if v.BitLen() > 128 {
		return Value{}, fmt.Errorf("%w: %s", ErrOverflow, v)
	}
	return Value{kind: KindU128, num: v.Clone()}, nil
}

// Uint returns a 128-bit integer value holding u.
func Uint(u uint64) Value {
	return Value{kind: KindU128, num: uint256.NewInt(u)}
}

// String returns a UTF-8 string value. Invalid sequences are replaced so that
// every constructible value survives a round trip.
func String(s string) Value {
	return Value{kind: KindString, str: strings.ToValidUTF8(s, "�")}
}

// Addr returns a chain address value.
func Addr(a Address) Value {
	if a.kind != AddressNative {
		a = ForeignAddress(strings.ToValidUTF8(a.foreign, "�"))
	}
	return Value{kind: KindAddress, addr: a}
}

func (v Value) Kind() Kind { return v.kind }

func (v Value) AsBytes() ([]byte, error) {
	if v.kind != KindBytes {
		return nil, fmt.Errorf("%w: want %s, have %s", ErrTypeMismatch, KindBytes, v.kind)
	}
	return append([]byte(nil), v.raw...), nil
}

func (v Value) AsU128() (*uint256.Int, error) {
	if v.kind != KindU128 {
		return nil, fmt.Errorf("%w: want %s, have %s", ErrTypeMismatch, KindU128, v.kind)
	}
	return v.num.Clone(), nil
}

func (v Value) AsString() (string, error) {
	if v.kind != KindString {
		return "", fmt.Errorf("%w: want %s, have %s", ErrTypeMismatch, KindString, v.kind)
	}
	return v.str, nil
}

func (v Value) AsAddress() (Address, error) {
	if v.kind != KindAddress {
		return Address{}, fmt.Errorf("%w: want %s, have %s", ErrTypeMismatch, KindAddress, v.kind)
	}
	return v.addr, nil
}

// Equal reports whether both values have the same kind and content
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindBytes:
		return bytes.Equal(v.raw, o.raw)
	case KindU128:
		return v.num.Eq(o.num)
	case KindString:
		return v.str == o.str
	case KindAddress:
		return v.addr == o.addr
	default:
		return true
	}
}

func (v Value) String() string {
	switch v.kind {
	case KindBytes:
		return fmt.Sprintf("0x%x", v.raw)
	case KindU128:
		return v.num.Dec()
	case KindString:
		return v.str
	case KindAddress:
		return v.addr.String()
	default:
		return ""
	}
}

func (v Value) body() []byte {
	switch v.kind {
	case KindBytes:
		return v.raw
	case KindU128:
		b := v.num.Bytes32()
		return b[32-U128Len:]
	case KindString:
		return []byte(v.str)
	case KindAddress:
		return v.addr.bytes()
	default:
		return nil
	}
}

func parseValue(kind Kind, body []byte) (Value, error) {
	switch kind {
	case KindBytes:
		return Bytes(body), nil
	case KindU128:
		if len(body) != U128Len {
			return Value{}, fmt.Errorf("%w: u128 must be %d bytes, got %d", ErrInvalidPayload, U128Len, len(body))
		}
		return Value{kind: KindU128, num: new(uint256.Int).SetBytes(body)}, nil
	case KindString:
		if !utf8.Valid(body) {
			return Value{}, fmt.Errorf("%w: string is not valid UTF-8", ErrInvalidPayload)
		}
		return Value{kind: KindString, str: string(body)}, nil
	case KindAddress:
		addr, err := parseAddress(body)
		if err != nil {
			return Value{}, err
		}
		return Value{kind: KindAddress, addr: addr}, nil
	default:
		return Value{}, fmt.Errorf("%w: unknown tag %d", ErrInvalidPayload, uint8(kind))
	}
}

// Item is one named value of a payload
type Item struct {
	Key   string
	Value Value
}

// Payload is an ordered sequence of items. Insertion order is part of the
// encoding.
type Payload struct {
	items []Item
}

// New returns an empty payload
func New() *Payload {
	return &Payload{}
}

// PushItem appends an item. Keys are not checked for uniqueness here; Item
// returns the first match.
func (p *Payload) PushItem(key string, value Value) {
	p.items = append(p.items, Item{Key: key, Value: value})
}

// Item returns the first item with the given key
func (p *Payload) Item(key string) (Value, bool) {
	for _, item := range p.items {
		if item.Key == key {
			return item.Value, true
		}
	}
	return Value{}, false
}

// Items returns a copy of the items in insertion order
func (p *Payload) Items() []Item {
	return append([]Item(nil), p.items...)
}

func (p *Payload) Len() int { return len(p.items) }

// Verify reports duplicate keys and items holding the zero Value
func (p *Payload) Verify() error {
	seen := make(map[string]struct{}, len(p.items))
	for _, item := range p.items {
		if !item.Value.kind.valid() {
			return fmt.Errorf("%w: item %q has no value", ErrInvalidPayload, item.Key)
		}
		if _, ok := seen[item.Key]; ok {
			return fmt.Errorf("%w: duplicate key %q", ErrInvalidPayload, item.Key)
		}
		seen[item.Key] = struct{}{}
	}
	return nil
}

// Equal reports whether both payloads hold the same items in the same order
func (p *Payload) Equal(o *Payload) bool {
	if p == nil || o == nil {
		return p == o
	}
	if len(p.items) != len(o.items) {
		return false
	}
	for i := range p.items {
		if p.items[i].Key != o.items[i].Key || !p.items[i].Value.Equal(o.items[i].Value) {
			return false
		}
	}
	return true
}

type wireItem struct {
	Key  string
	Tag  uint8
	Body []byte
}

type wirePayload struct {
	Version uint16
	Items   []wireItem
}

// EncodeRLP implements rlp.Encoder
func (p *Payload) EncodeRLP(w io.Writer) error {
	wp := wirePayload{
		Version: CodecVersion,
		Items:   make([]wireItem, 0, len(p.items)),
	}
	for _, item := range p.items {
		if !item.Value.kind.valid() {
			return fmt.Errorf("%w: item %q has no value", ErrInvalidPayload, item.Key)
		}
		wp.Items = append(wp.Items, wireItem{
			Key:  item.Key,
			Tag:  uint8(item.Value.kind),
			Body: item.Value.body(),
		})
	}
	return rlp.Encode(w, &wp)
}

// DecodeRLP implements rlp.Decoder
func (p *Payload) DecodeRLP(s *rlp.Stream) error {
	var wp wirePayload
	if err := s.Decode(&wp); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidPayload, err)
	}
	if wp.Version != CodecVersion {
		return fmt.Errorf("%w: unsupported version %d", ErrInvalidPayload, wp.Version)
	}
	items := make([]Item, 0, len(wp.Items))
	for _, wi := range wp.Items {
		v, err := parseValue(Kind(wi.Tag), wi.Body)
		if err != nil {
			return fmt.Errorf("item %q: %w", wi.Key, err)
		}
		items = append(items, Item{Key: wi.Key, Value: v})
	}
	p.items = items
	return nil
}

// Bytes returns the canonical encoding of the payload. It fails when an item
// holds the zero Value.
func (p *Payload) Bytes() ([]byte, error) {
	return rlp.EncodeToBytes(p)
}

// Parse decodes a payload from its canonical encoding
func Parse(b []byte) (*Payload, error) {
	p := New()
	if err := rlp.DecodeBytes(b, p); err != nil {
		if errors.Is(err, ErrInvalidPayload) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", ErrInvalidPayload, err)
	}
	return p, nil
}
