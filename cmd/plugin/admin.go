// Copyright (C) 2019-2025, Lux Industries Inc All rights reserved.
// See the file LICENSE for licensing terms.

package plugin

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/luxfi/geth/common"
	"github.com/spf13/cobra"

	"github.com/luxfi/locker/bridge"
	"github.com/luxfi/locker/config"
	"github.com/luxfi/locker/registry"
	"github.com/luxfi/locker/sqos"
)

const callerFlag = "caller"

func newAdminCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "admin",
		Short: "Owner-gated locker administration",
		Long:  `Every admin command runs as --caller, which defaults to the configured owner. The locker rejects callers that are not its owner.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}
	cmd.PersistentFlags().String(callerFlag, "", "Account the call is made as")

	cmd.AddCommand(adminCmd("set-ledger ADDRESS", "Set the token ledger", 1,
		func(l *bridge.Locker, caller common.Address, args []string) error {
			addr, err := parseAddress(args[0])
			if err != nil {
				return err
			}
			return l.SetLedger(caller, addr)
		}))
	cmd.AddCommand(adminCmd("set-messenger ADDRESS", "Set the messenger entry point", 1,
		func(l *bridge.Locker, caller common.Address, args []string) error {
			addr, err := parseAddress(args[0])
			if err != nil {
				return err
			}
			return l.SetMessenger(caller, addr)
		}))
	cmd.AddCommand(adminCmd("register-destination CHAIN ACTION CONTRACT REMOTE_ACTION", "Route a local action to a remote contract", 4,
		func(l *bridge.Locker, caller common.Address, args []string) error {
			return l.RegisterDestination(caller, args[0], args[1], args[2], args[3])
		}))
	cmd.AddCommand(adminCmd("register-permitted CHAIN CONTRACT ACTION", "Permit a remote contract to invoke an action", 3,
		func(l *bridge.Locker, caller common.Address, args []string) error {
			return l.RegisterPermittedSender(caller, args[0], args[1], args[2])
		}))
	cmd.AddCommand(adminCmd("unregister-permitted CHAIN CONTRACT ACTION", "Revoke a permitted sender", 3,
		func(l *bridge.Locker, caller common.Address, args []string) error {
			return l.UnregisterPermittedSender(caller, args[0], args[1], args[2])
		}))
	cmd.AddCommand(adminCmd("set-address-format CHAIN auto|native|foreign", "Set how recipients on a chain are encoded", 2,
		func(l *bridge.Locker, caller common.Address, args []string) error {
			format, err := registry.ParseAddressFormat(args[1])
			if err != nil {
				return err
			}
			return l.SetAddressFormat(caller, args[0], format)
		}))
	cmd.AddCommand(newSQoSCmd())
	cmd.AddCommand(newResolvePendingCmd())
	cmd.AddCommand(adminCmd("transfer-ownership NEW_OWNER", "Hand the locker to a new owner", 1,
		func(l *bridge.Locker, caller common.Address, args []string) error {
			newOwner, err := parseAddress(args[0])
			if err != nil {
				return err
			}
			return l.TransferOwnership(caller, newOwner)
		}))
	cmd.AddCommand(adminCmd("renounce-ownership", "Leave the locker without owner. This cannot be undone", 0,
		func(l *bridge.Locker, caller common.Address, args []string) error {
			return l.RenounceOwnership(caller)
		}))
	return cmd
}

func newSQoSCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sqos",
		Short: "Manage the security quality-of-service set",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}
	cmd.AddCommand(adminCmd("insert TYPE [PARAM_HEX]", "Add a directive", -1,
		func(l *bridge.Locker, caller common.Address, args []string) error {
			item, err := parseSQoSItem(args)
			if err != nil {
				return err
			}
			return l.InsertSQoS(caller, item)
		}))
	cmd.AddCommand(adminCmd("remove TYPE", "Remove the directive of a type", 1,
		func(l *bridge.Locker, caller common.Address, args []string) error {
			t, err := sqos.ParseType(args[0])
			if err != nil {
				return err
			}
			return l.RemoveSQoS(caller, t)
		}))
	cmd.AddCommand(adminCmd("clear", "Remove every directive", 0,
		func(l *bridge.Locker, caller common.Address, args []string) error {
			return l.ClearSQoS(caller)
		}))
	return cmd
}

// adminCmd builds a command taking nargs positional arguments, or one or two
// when nargs is negative
func adminCmd(
	use string,
	short string,
	nargs int,
	call func(l *bridge.Locker, caller common.Address, args []string) error,
) *cobra.Command {
	args := cobra.ExactArgs(nargs)
	if nargs < 0 {
		args = cobra.RangeArgs(1, 2)
	}
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  args,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withLocker(cmd, func(cfg config.Config, l *bridge.Locker) error {
				caller, err := callerOf(cmd, cfg)
				if err != nil {
					return err
				}
				if err := call(l, caller, args); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Applied %s\n", cmd.Name())
				return nil
			})
		},
	}
}

func newResolvePendingCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "resolve-pending TX_ID executed|dropped",
		Short: "Settle a ledger call whose outcome was unknown",
		Long: `Record whether a pending ledger call took effect. A credit that was dropped is
issued again and a burn that executed is refunded, both through the configured
EVM ledger.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var executed bool
			switch args[1] {
			case "executed":
				executed = true
			case "dropped":
			default:
				return fmt.Errorf("unknown outcome %q", args[1])
			}
			return withLockerHost(cmd, func(cfg config.Config, l *bridge.Locker, host *bridge.StaticHost) error {
				caller, err := callerOf(cmd, cfg)
				if err != nil {
					return err
				}
				if addr, err := l.Ledger(); err == nil && cfg.EVM.Enabled() {
					led, err := dialLedger(cmd.Context(), cfg.EVM)
					if err != nil {
						return err
					}
					host.DeployLedger(addr, led)
				}
				if err := l.ResolvePending(cmd.Context(), caller, args[0], executed); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Resolved %s as %s\n", args[0], args[1])
				return nil
			})
		},
	}
}

func callerOf(cmd *cobra.Command, cfg config.Config) (common.Address, error) {
	caller, err := cmd.Flags().GetString(callerFlag)
	if err != nil {
		return common.Address{}, err
	}
	if caller == "" {
		return cfg.OwnerAddress(), nil
	}
	return parseAddress(caller)
}

func parseSQoSItem(args []string) (sqos.Item, error) {
	t, err := sqos.ParseType(args[0])
	if err != nil {
		return sqos.Item{}, err
	}
	if len(args) == 1 {
		return sqos.New(t), nil
	}
	param, err := hex.DecodeString(strings.TrimPrefix(args[1], "0x"))
	if err != nil {
		return sqos.Item{}, fmt.Errorf("invalid parameter %q: %w", args[1], err)
	}
	return sqos.WithParam(t, param), nil
}
