// Copyright (C) 2019-2025, Lux Industries Inc All rights reserved.
// See the file LICENSE for licensing terms.

// Package plugin provides the locker operator commands. The command tree can
// be mounted into a host CLI or run on its own as lockerctl.
package plugin

import (
	"fmt"

	"github.com/holiman/uint256"
	"github.com/luxfi/geth/common"
	"github.com/spf13/cobra"

	"github.com/luxfi/locker/bridge"
	"github.com/luxfi/locker/config"
	"github.com/luxfi/locker/state"
)

// NewLockerCmd creates the locker command
func NewLockerCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "locker",
		Short: "Cross-chain token locker operations",
		Long: `The locker burns or locks tokens leaving a chain and mints or releases them
when a permitted locker on another chain sends them back.

These commands administer a locker's bridge database, encode and decode the
payloads lockers exchange, drive the token ledger directly for recovery, and
run a local two-chain demonstration.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}
	config.AddFlags(cmd.PersistentFlags())

	cmd.AddCommand(newInitCmd())
	cmd.AddCommand(newShowCmd())
	cmd.AddCommand(newAdminCmd())
	cmd.AddCommand(newPayloadCmd())
	cmd.AddCommand(newLedgerCmd())
	cmd.AddCommand(newDemoCmd())
	return cmd
}

func loadConfig(cmd *cobra.Command) (config.Config, error) {
	v, err := config.BuildViper(cmd.Flags())
	if err != nil {
		return config.Config{}, err
	}
	return config.NewConfig(v)
}

// withLocker runs fn against the locker persisted at the configured path
func withLocker(cmd *cobra.Command, fn func(cfg config.Config, l *bridge.Locker) error) error {
	return withLockerHost(cmd, func(cfg config.Config, l *bridge.Locker, _ *bridge.StaticHost) error {
		return fn(cfg, l)
	})
}

// withLockerHost is withLocker for commands that deploy collaborators on the
// locker's host
func withLockerHost(cmd *cobra.Command, fn func(cfg config.Config, l *bridge.Locker, host *bridge.StaticHost) error) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	store, err := state.OpenLevelDB(cfg.DBPath)
	if err != nil {
		return err
	}
	defer store.Close()

	host := bridge.NewStaticHost()
	bc := cfg.BridgeConfig()
	bc.Store = store
	bc.Host = host
	l, err := bridge.New(bc)
	if err != nil {
		return err
	}
	return fn(cfg, l, host)
}

func newInitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Initialize the bridge database",
		Long:  `Create the bridge database and record the configured owner. An existing database keeps its owner.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withLocker(cmd, func(cfg config.Config, l *bridge.Locker) error {
				owner, ok, err := l.Owner()
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Bridge database: %s\n", cfg.DBPath)
				if !ok {
					fmt.Fprintln(out, "  Owner: renounced")
					return nil
				}
				fmt.Fprintf(out, "  Owner: %s\n", owner.Hex())
				return nil
			})
		},
	}
}

func newShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show the locker state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withLocker(cmd, func(cfg config.Config, l *bridge.Locker) error {
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Locker %s on %s\n", l.Contract(), l.Chain())

				owner, ok, err := l.Owner()
				if err != nil {
					return err
				}
				if ok {
					fmt.Fprintf(out, "  Owner: %s\n", owner.Hex())
				} else {
					fmt.Fprintln(out, "  Owner: renounced")
				}
				fmt.Fprintf(out, "  Ledger: %s\n", refString(l.Ledger()))
				fmt.Fprintf(out, "  Messenger: %s\n", refString(l.Messenger()))

				dests, err := l.Destinations()
				if err != nil {
					return err
				}
				fmt.Fprintln(out, "Destinations:")
				for _, d := range dests {
					format, err := l.AddressFormat(d.Chain)
					if err != nil {
						return err
					}
					fmt.Fprintf(out, "  %s/%s -> %s/%s (%s)\n", d.Chain, d.Action, d.Destination.Contract, d.Destination.Action, format)
				}

				permitted, err := l.PermittedSenders()
				if err != nil {
					return err
				}
				fmt.Fprintln(out, "Permitted senders:")
				for _, p := range permitted {
					fmt.Fprintf(out, "  %s/%s may call %s\n", p.Chain, p.Contract, p.Action)
				}

				set, err := l.SQoS()
				if err != nil {
					return err
				}
				fmt.Fprintln(out, "SQoS:")
				for _, item := range set {
					fmt.Fprintf(out, "  %s\n", item)
				}

				pending, err := l.Pending()
				if err != nil {
					return err
				}
				fmt.Fprintln(out, "Pending ledger calls:")
				for _, p := range pending {
					kind := "burn from"
					if p.Credit {
						kind = "credit to"
					}
					fmt.Fprintf(out, "  %s: %s %s of %s\n", p.TxID, kind, p.Account.Hex(), p.Amount.Dec())
				}
				return nil
			})
		},
	}
}

func refString(addr common.Address, err error) string {
	if err != nil {
		return "not set"
	}
	return addr.Hex()
}

func parseAddress(s string) (common.Address, error) {
	if !common.IsHexAddress(s) {
		return common.Address{}, fmt.Errorf("invalid address %q", s)
	}
	return common.HexToAddress(s), nil
}

func parseAmount(s string) (*uint256.Int, error) {
	amount, err := uint256.FromDecimal(s)
	if err != nil {
		return nil, fmt.Errorf("invalid amount %q: %w", s, err)
	}
	return amount, nil
}
