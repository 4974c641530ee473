// Copyright (C) 2019-2025, Lux Industries Inc All rights reserved.
// See the file LICENSE for licensing terms.

package plugin

import (
	"context"
	"fmt"
	"io"

	"github.com/holiman/uint256"
	"github.com/luxfi/geth/common"
	"github.com/luxfi/log"
	"github.com/spf13/cobra"

	"github.com/luxfi/locker/bridge"
	"github.com/luxfi/locker/ledger"
	"github.com/luxfi/locker/messenger"
	"github.com/luxfi/locker/relayer"
	"github.com/luxfi/locker/sqos"
	"github.com/luxfi/locker/state"
)

var (
	demoOwner     = common.HexToAddress("0x0000000000000000000000000000000000000001")
	demoHolder    = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	demoRecipient = common.HexToAddress("0x00000000000000000000000000000000000000a2")
	demoOperator  = common.HexToAddress("0x00000000000000000000000000000000000000b0")
	demoLedger    = common.HexToAddress("0x0000000000000000000000000000000000000c20")
	demoOutbox    = common.HexToAddress("0x00000000000000000000000000000000000000e0")
	demoInbox     = common.HexToAddress("0x00000000000000000000000000000000000000e1")
)

func newDemoCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "demo",
		Short: "Run a transfer between two in-memory chains",
		Long: `Deploy a lock-mode locker on chain-a and a burn-mode locker on chain-b,
transfer tokens out of chain-a and relay the envelope to chain-b. A second
relay of the same envelope shows that it is only credited once.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			amount, err := cmd.Flags().GetUint64("amount")
			if err != nil {
				return err
			}
			reveal, err := cmd.Flags().GetBool("reveal")
			if err != nil {
				return err
			}
			return runDemo(cmd.Context(), cmd.OutOrStdout(), amount, reveal)
		},
	}
	cmd.Flags().Uint64("amount", 30, "Amount to transfer")
	cmd.Flags().Bool("reveal", false, "Attach the reveal directive to outbound messages")
	return cmd
}

func runDemo(ctx context.Context, out io.Writer, amount uint64, reveal bool) error {
	if ctx == nil {
		ctx = context.Background()
	}
	logger := log.NewNoOpLogger()

	signer, err := messenger.GenerateLocalSigner()
	if err != nil {
		return err
	}
	outbox := messenger.NewOutbox(logger, "chain-a", signer)
	inbox := messenger.NewInbox(logger, "chain-b", demoInbox)
	inbox.Trust("chain-a", signer.Address())

	vault := ledger.NewToken("LCK", ledger.ModeLock, demoOperator)
	hostA := bridge.NewStaticHost()
	hostA.DeployLedger(demoLedger, vault)
	hostA.DeployMessenger(demoOutbox, outbox)
	lockerA, err := bridge.New(bridge.Config{
		Chain:    "chain-a",
		Contract: "locker-a",
		Owner:    demoOwner,
		Store:    state.NewMemory(),
		Host:     hostA,
		Log:      logger,
	})
	if err != nil {
		return err
	}

	wrapped := ledger.NewToken("wLCK", ledger.ModeBurn, demoOperator)
	hostB := bridge.NewStaticHost()
	hostB.DeployLedger(demoLedger, wrapped)
	lockerB, err := bridge.New(bridge.Config{
		Chain:    "chain-b",
		Contract: "locker-b",
		Owner:    demoOwner,
		Store:    state.NewMemory(),
		Host:     hostB,
		Log:      logger,
	})
	if err != nil {
		return err
	}
	inbox.Register("locker-b", lockerB)

	setup := []func() error{
		func() error { return lockerA.SetLedger(demoOwner, demoLedger) },
		func() error { return lockerA.SetMessenger(demoOwner, demoOutbox) },
		func() error {
			return lockerA.RegisterDestination(demoOwner, "chain-b", bridge.DefaultReceiveAction, "locker-b", bridge.DefaultReceiveAction)
		},
		func() error { return lockerB.SetLedger(demoOwner, demoLedger) },
		func() error { return lockerB.SetMessenger(demoOwner, demoInbox) },
		func() error {
			return lockerB.RegisterPermittedSender(demoOwner, "chain-a", "locker-a", bridge.DefaultReceiveAction)
		},
		func() error { return vault.Issue(demoHolder, uint256.NewInt(amount)) },
	}
	if reveal {
		setup = append(setup, func() error { return lockerA.InsertSQoS(demoOwner, sqos.New(sqos.Reveal)) })
	}
	for _, step := range setup {
		if err := step(); err != nil {
			return err
		}
	}
	vault.Approve(demoHolder, demoOperator, uint256.NewInt(amount))

	fmt.Fprintf(out, "Holder %s has %s LCK on chain-a\n", demoHolder.Hex(), vault.BalanceOf(demoHolder).Dec())
	if err := lockerA.TransferOut(ctx, demoHolder, "chain-b", demoRecipient.Hex(), uint256.NewInt(amount)); err != nil {
		return err
	}
	fmt.Fprintf(out, "Transferred %d out of chain-a, vault holds %s LCK\n", amount, vault.BalanceOf(demoOperator).Dec())

	env, err := outbox.Envelope("chain-b", 0)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Envelope %s sequence %d SQoS %v\n", env.ID(), env.Sequence, env.Message.SQoS)

	for _, name := range []string{"first relay", "replayed relay"} {
		r, err := relayer.New(logger, outbox, inbox, state.NewMemory(), nil, relayer.Config{})
		if err != nil {
			return err
		}
		delivered, err := r.RelayPending(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "%s: %d delivered\n", name, delivered)
	}
	fmt.Fprintf(out, "Recipient %s has %s wLCK on chain-b\n", demoRecipient.Hex(), wrapped.BalanceOf(demoRecipient).Dec())
	return nil
}
