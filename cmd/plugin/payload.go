// Copyright (C) 2019-2025, Lux Industries Inc All rights reserved.
// See the file LICENSE for licensing terms.

package plugin

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/luxfi/locker/payload"
)

func newPayloadCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "payload",
		Short: "Encode and decode cross-chain payloads",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}
	cmd.AddCommand(newEncodeCmd())
	cmd.AddCommand(newDecodeCmd())
	return cmd
}

func newEncodeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "encode KEY=KIND:VALUE...",
		Short: "Encode a payload",
		Long: `Encode items in order. KIND is one of bytes (hex), u128 (decimal), string
or address (0x-prefixed accounts are native, anything else is foreign).

  locker payload encode to=address:0x00000000000000000000000000000000000000a2 num=u128:30`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := parseItems(args)
			if err != nil {
				return err
			}
			b, err := p.Bytes()
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "0x%x\n", b)
			return nil
		},
	}
}

func newDecodeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "decode HEX",
		Short: "Decode a payload",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := hex.DecodeString(strings.TrimPrefix(args[0], "0x"))
			if err != nil {
				return fmt.Errorf("invalid hex: %w", err)
			}
			p, err := payload.Parse(b)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, item := range p.Items() {
				fmt.Fprintf(out, "%s=%s:%s\n", item.Key, item.Value.Kind(), item.Value)
			}
			return nil
		},
	}
}

func parseItems(args []string) (*payload.Payload, error) {
	p := payload.New()
	for _, arg := range args {
		key, rest, ok := strings.Cut(arg, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("item %q is not KEY=KIND:VALUE", arg)
		}
		kind, raw, ok := strings.Cut(rest, ":")
		if !ok {
			return nil, fmt.Errorf("item %q is not KEY=KIND:VALUE", arg)
		}
		value, err := parseValue(kind, raw)
		if err != nil {
			return nil, fmt.Errorf("item %q: %w", key, err)
		}
		p.PushItem(key, value)
	}
	if err := p.Verify(); err != nil {
		return nil, err
	}
	return p, nil
}

func parseValue(kind, raw string) (payload.Value, error) {
	switch kind {
	case payload.KindBytes.String():
		b, err := hex.DecodeString(strings.TrimPrefix(raw, "0x"))
		if err != nil {
			return payload.Value{}, fmt.Errorf("invalid hex: %w", err)
		}
		return payload.Bytes(b), nil
	case payload.KindU128.String():
		amount, err := parseAmount(raw)
		if err != nil {
			return payload.Value{}, err
		}
		return payload.U128(amount)
	case payload.KindString.String():
		return payload.String(raw), nil
	case payload.KindAddress.String():
		if raw == "" {
			return payload.Value{}, fmt.Errorf("empty address")
		}
		return payload.Addr(payload.ParseAddress(raw)), nil
	default:
		return payload.Value{}, fmt.Errorf("unknown kind %q", kind)
	}
}
