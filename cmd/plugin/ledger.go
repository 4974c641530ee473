// Copyright (C) 2019-2025, Lux Industries Inc All rights reserved.
// See the file LICENSE for licensing terms.

package plugin

import (
	"context"
	"errors"
	"fmt"

	"github.com/holiman/uint256"
	"github.com/luxfi/geth/common"
	"github.com/luxfi/log"
	"github.com/spf13/cobra"

	"github.com/luxfi/locker/config"
	"github.com/luxfi/locker/ledger"
	"github.com/luxfi/locker/ledger/evm"
)

var errLedgerDisabled = errors.New("no EVM ledger configured, set " + config.RPCURLKey)

func newLedgerCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ledger",
		Short: "Drive the EVM token ledger as the bridge operator",
		Long: `Call the configured ERC-20 token with the operator key, outside of the bridge
flow. Used to settle a transfer by hand, e.g. when a refund could not be made.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}
	cmd.AddCommand(ledgerCmd("burn-or-lock HOLDER AMOUNT", "Burn or lock a holder's tokens",
		func(ctx context.Context, l ledger.Ledger, account common.Address, amount *uint256.Int) error {
			return l.BurnOrLock(ctx, account, amount)
		}))
	cmd.AddCommand(ledgerCmd("mint-or-release RECIPIENT AMOUNT", "Mint or release tokens to a recipient",
		func(ctx context.Context, l ledger.Ledger, account common.Address, amount *uint256.Int) error {
			return l.MintOrRelease(ctx, account, amount)
		}))
	return cmd
}

func ledgerCmd(
	use string,
	short string,
	call func(ctx context.Context, l ledger.Ledger, account common.Address, amount *uint256.Int) error,
) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			account, err := parseAddress(args[0])
			if err != nil {
				return err
			}
			amount, err := parseAmount(args[1])
			if err != nil {
				return err
			}
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			l, err := dialLedger(cmd.Context(), cfg.EVM)
			if err != nil {
				return err
			}
			if err := call(cmd.Context(), l, account, amount); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Applied %s of %s for %s\n", cmd.Name(), amount.Dec(), account.Hex())
			return nil
		},
	}
}

func dialLedger(ctx context.Context, cfg config.EVMConfig) (*evm.TokenLedger, error) {
	if !cfg.Enabled() {
		return nil, errLedgerDisabled
	}
	lc, err := cfg.LedgerConfig()
	if err != nil {
		return nil, err
	}
	signer, err := evm.NewTxSigner(cfg.AccountPrivateKey)
	if err != nil {
		return nil, err
	}
	if ctx == nil {
		ctx = context.Background()
	}
	return evm.Dial(ctx, log.NewNoOpLogger(), cfg.RPCURL, signer, lc)
}
