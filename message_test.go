// Copyright (C) 2019-2025, Lux Partners Limited. All rights reserved.
// See the file LICENSE for licensing terms.

package locker

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/luxfi/locker/payload"
	"github.com/luxfi/locker/sqos"
)

func testContent() Content {
	p := payload.New()
	p.PushItem("to", payload.Addr(payload.ForeignAddress("alice.near")))
	p.PushItem("num", payload.Uint(30))
	return Content{
		Contract: "locker-b",
		Action:   "receive_token",
		Payload:  p,
	}
}

func TestRequestMessage(t *testing.T) {
	require := require.New(t)

	qos := sqos.Set{sqos.New(sqos.Reveal), sqos.WithParam(sqos.Threshold, []byte{2})}
	msg, err := NewRequestMessage("chain-b", qos, testContent())
	require.NoError(err)

	// The message keeps its own copy of the set
	qos[1].Param[0] = 9
	require.Equal([]byte{2}, msg.SQoS[1].Param)

	b := msg.Bytes()
	require.NotEmpty(b)
	require.Equal(ComputeHash256Array(b), msg.ID())

	parsed, err := ParseRequestMessage(b)
	require.NoError(err)
	require.Equal(msg.ToChain, parsed.ToChain)
	require.True(msg.SQoS.Equal(parsed.SQoS))
	require.Equal(msg.Content.Contract, parsed.Content.Contract)
	require.Equal(msg.Content.Action, parsed.Content.Action)
	require.True(msg.Content.Payload.Equal(parsed.Content.Payload))
	require.Equal(msg.ID(), parsed.ID())
}

func TestInvalidRequestMessage(t *testing.T) {
	tests := []struct {
		name    string
		toChain string
		qos     sqos.Set
		modify  func(*Content)
	}{
		{
			name: "empty destination chain",
		},
		{
			name:    "empty contract",
			toChain: "chain-b",
			modify:  func(c *Content) { c.Contract = "" },
		},
		{
			name:    "empty action",
			toChain: "chain-b",
			modify:  func(c *Content) { c.Action = "" },
		},
		{
			name:    "nil payload",
			toChain: "chain-b",
			modify:  func(c *Content) { c.Payload = nil },
		},
		{
			name:    "item without value",
			toChain: "chain-b",
			modify:  func(c *Content) { c.Payload.PushItem("memo", payload.Value{}) },
		},
		{
			name:    "repeated sqos type",
			toChain: "chain-b",
			qos:     sqos.Set{sqos.New(sqos.Reveal), sqos.New(sqos.Reveal)},
		},
		{
			name:    "oversized",
			toChain: "chain-b",
			modify: func(c *Content) {
				c.Payload.PushItem("memo", payload.String(strings.Repeat("x", MaxMessageSize)))
			},
		},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			content := testContent()
			if test.modify != nil {
				test.modify(&content)
			}
			_, err := NewRequestMessage(test.toChain, test.qos, content)
			require.ErrorIs(t, err, ErrInvalidMessage)
		})
	}
}

func TestParseRequestMessageRejectsGarbage(t *testing.T) {
	_, err := ParseRequestMessage([]byte{0xff, 0x00, 0x01})
	require.Error(t, err)
}

func TestCodecVersion(t *testing.T) {
	require := require.New(t)

	type record struct {
		Name  string
		Count uint64
	}
	b, err := Codec.Marshal(CodecVersion, &record{Name: "locker", Count: 3})
	require.NoError(err)
	require.Equal([]byte{0, 0}, b[:2])

	var decoded record
	version, err := Codec.Unmarshal(b, &decoded)
	require.NoError(err)
	require.Equal(CodecVersion, version)
	require.Equal(record{Name: "locker", Count: 3}, decoded)

	_, err = Codec.Marshal(CodecVersion+1, &decoded)
	require.ErrorIs(err, ErrUnknownCodecVersion)

	future := append([]byte{0, 1}, b[2:]...)
	version, err = Codec.Unmarshal(future, &decoded)
	require.ErrorIs(err, ErrUnknownCodecVersion)
	require.Equal(uint16(1), version)

	_, err = Codec.Unmarshal([]byte{0}, &decoded)
	require.Error(err)
}

func TestErrorTaxonomy(t *testing.T) {
	require := require.New(t)

	cause := errors.New("insufficient balance")
	err := Wrap(ErrLedger, fmt.Errorf("burnOrLock: %w", cause))
	require.ErrorIs(err, ErrLedger)
	require.ErrorIs(err, cause)
	require.NotErrorIs(err, ErrCodec)
	require.Equal(CodeLedger, CodeOf(err))

	err = fmt.Errorf("outer: %w", Errorf(ErrUnauthorized, "caller %s", "0x02"))
	require.ErrorIs(err, ErrUnauthorized)
	require.Equal(CodeUnauthorized, CodeOf(err))
	require.Contains(err.Error(), "caller 0x02")

	require.Equal(CodeUnknown, CodeOf(cause))
	require.NoError(Wrap(ErrStorage, nil))

	// A fresh value with the same code matches the sentinel
	require.ErrorIs(&Error{Code: CodePolicyConflict, Message: "other text"}, ErrPolicyConflict)
}

func TestCodeString(t *testing.T) {
	for code := CodeUnknown; code <= CodeStorage; code++ {
		require.NotEmpty(t, code.String())
	}
	require.Equal(t, "already processed", CodeAlreadyProcessed.String())
	require.Equal(t, "unknown", Code(99).String())
}
