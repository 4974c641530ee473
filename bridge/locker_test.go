// Copyright (C) 2019-2025, Lux Industries Inc All rights reserved.
// See the file LICENSE for licensing terms.

package bridge

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/holiman/uint256"
	"github.com/luxfi/geth/common"
	"github.com/luxfi/log"
	"github.com/stretchr/testify/require"

	"github.com/luxfi/locker"
	"github.com/luxfi/locker/ledger"
	"github.com/luxfi/locker/payload"
	"github.com/luxfi/locker/registry"
	"github.com/luxfi/locker/sqos"
	"github.com/luxfi/locker/state"
)

var (
	ownerAddr     = common.HexToAddress("0x0000000000000000000000000000000000000001")
	strangerAddr  = common.HexToAddress("0x0000000000000000000000000000000000000002")
	userAddr      = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	recipientAddr = common.HexToAddress("0x00000000000000000000000000000000000000a2")
	operatorAddr  = common.HexToAddress("0x00000000000000000000000000000000000000b0")
	ledgerAddr    = common.HexToAddress("0x0000000000000000000000000000000000000c20")
	messengerAddr = common.HexToAddress("0x00000000000000000000000000000000000000e1")
	vaultAddr     = common.HexToAddress("0x0000000000000000000000000000000000000c21")
	missingAddr   = common.HexToAddress("0x00000000000000000000000000000000000000ff")

	errTransport = errors.New("transport down")
)

type sentMessage struct {
	sender string
	msg    *locker.RequestMessage
}

type fakeMessenger struct {
	sent   []sentMessage
	err    error
	onSend func()
}

func (m *fakeMessenger) Send(_ context.Context, sender string, msg *locker.RequestMessage) error {
	if m.onSend != nil {
		m.onSend()
	}
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, sentMessage{sender: sender, msg: msg})
	return nil
}

type faultyLedger struct {
	ledger.Ledger
	burnErr   error
	mintErr   error
	refundErr error
}

func (f *faultyLedger) BurnOrLock(ctx context.Context, holder common.Address, amount *uint256.Int) error {
	if f.burnErr != nil {
		return f.burnErr
	}
	return f.Ledger.BurnOrLock(ctx, holder, amount)
}

func (f *faultyLedger) MintOrRelease(ctx context.Context, recipient common.Address, amount *uint256.Int) error {
	if f.mintErr != nil {
		return f.mintErr
	}
	return f.Ledger.MintOrRelease(ctx, recipient, amount)
}

func (f *faultyLedger) Refund(ctx context.Context, holder common.Address, amount *uint256.Int) error {
	if f.refundErr != nil {
		return f.refundErr
	}
	return f.Ledger.(ledger.Refunder).Refund(ctx, holder, amount)
}

// mintOnlyLedger hides the Refunder of the ledger it wraps
type mintOnlyLedger struct {
	ledger.Ledger
}

type testEnv struct {
	locker    *Locker
	store     *state.Store
	host      *StaticHost
	token     *ledger.Token
	ledger    *faultyLedger
	messenger *fakeMessenger
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	require := require.New(t)

	store := state.NewMemory()
	host := NewStaticHost()
	token := ledger.NewToken("LCK", ledger.ModeBurn, operatorAddr)
	faulty := &faultyLedger{Ledger: token}
	msgr := &fakeMessenger{}
	host.DeployLedger(ledgerAddr, faulty)
	host.DeployMessenger(messengerAddr, msgr)

	l, err := New(Config{
		Chain:    "chain-a",
		Contract: "locker-a",
		Owner:    ownerAddr,
		Store:    store,
		Host:     host,
		Log:      log.NewNoOpLogger(),
	})
	require.NoError(err)
	require.NoError(l.SetLedger(ownerAddr, ledgerAddr))
	require.NoError(l.SetMessenger(ownerAddr, messengerAddr))

	return &testEnv{
		locker:    l,
		store:     store,
		host:      host,
		token:     token,
		ledger:    faulty,
		messenger: msgr,
	}
}

func (e *testEnv) fund(t *testing.T, holder common.Address, balance, allowance uint64) {
	t.Helper()
	require.NoError(t, e.token.Issue(holder, uint256.NewInt(balance)))
	e.token.Approve(holder, operatorAddr, uint256.NewInt(allowance))
}

func transferPayload(to payload.Value, num uint64) *payload.Payload {
	p := payload.New()
	p.PushItem(KeyTo, to)
	p.PushItem(KeyNum, payload.Uint(num))
	return p
}

func inboundContext(seq uint64) locker.Context {
	return locker.Context{
		FromChain: "chain-b",
		Sender:    "locker-b",
		Action:    DefaultReceiveAction,
		Sequence:  seq,
	}
}

func TestTransferOut(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()

	env := newTestEnv(t)
	require.NoError(env.locker.RegisterDestination(ownerAddr, "chain-b", "receive_token", "0xABC", "mint"))
	env.fund(t, userAddr, 100, 100)

	require.NoError(env.locker.TransferOut(ctx, userAddr, "chain-b", recipientAddr.Hex(), uint256.NewInt(30)))

	require.Equal(uint256.NewInt(70), env.token.BalanceOf(userAddr))
	require.Equal(uint256.NewInt(70), env.token.TotalSupply())
	require.Len(env.messenger.sent, 1)

	sent := env.messenger.sent[0]
	require.Equal("locker-a", sent.sender)
	require.Equal("chain-b", sent.msg.ToChain)
	require.Equal("0xABC", sent.msg.Content.Contract)
	require.Equal("mint", sent.msg.Content.Action)

	recipient, amount, err := DecodeTransfer(sent.msg.Content.Payload)
	require.NoError(err)
	require.Equal(recipientAddr, recipient)
	require.Equal(uint256.NewInt(30), amount)

	to, ok := sent.msg.Content.Payload.Item(KeyTo)
	require.True(ok)
	addr, err := to.AsAddress()
	require.NoError(err)
	require.True(addr.IsNative())
}

func TestTransferOutInsufficientBalance(t *testing.T) {
	require := require.New(t)

	env := newTestEnv(t)
	require.NoError(env.locker.RegisterDestination(ownerAddr, "chain-b", "receive_token", "0xABC", "mint"))
	env.fund(t, userAddr, 10, 100)

	err := env.locker.TransferOut(context.Background(), userAddr, "chain-b", recipientAddr.Hex(), uint256.NewInt(30))
	require.ErrorIs(err, locker.ErrLedger)
	require.ErrorIs(err, ledger.ErrInsufficientBalance)
	require.Empty(env.messenger.sent)
	require.Equal(uint256.NewInt(10), env.token.BalanceOf(userAddr))
}

func TestTransferOutInsufficientAllowance(t *testing.T) {
	require := require.New(t)

	env := newTestEnv(t)
	require.NoError(env.locker.RegisterDestination(ownerAddr, "chain-b", "receive_token", "0xABC", "mint"))
	env.fund(t, userAddr, 100, 5)

	err := env.locker.TransferOut(context.Background(), userAddr, "chain-b", recipientAddr.Hex(), uint256.NewInt(30))
	require.ErrorIs(err, locker.ErrLedger)
	require.ErrorIs(err, ledger.ErrInsufficientAllowance)
	require.Empty(env.messenger.sent)
}

func TestTransferOutBurnsBeforeSend(t *testing.T) {
	require := require.New(t)

	env := newTestEnv(t)
	require.NoError(env.locker.RegisterDestination(ownerAddr, "chain-b", "receive_token", "0xABC", "mint"))
	env.fund(t, userAddr, 100, 100)

	var balanceAtSend *uint256.Int
	env.messenger.onSend = func() {
		balanceAtSend = env.token.BalanceOf(userAddr)
	}
	require.NoError(env.locker.TransferOut(context.Background(), userAddr, "chain-b", recipientAddr.Hex(), uint256.NewInt(30)))
	require.Equal(uint256.NewInt(70), balanceAtSend)
}

func TestTransferOutFailures(t *testing.T) {
	tests := []struct {
		name     string
		setup    func(t *testing.T, env *testEnv)
		chain    string
		to       string
		amount   *uint256.Int
		expected error
	}{
		{
			name:     "destination not registered",
			chain:    "chain-z",
			amount:   uint256.NewInt(30),
			expected: locker.ErrNotRegistered,
		},
		{
			name: "ledger unreachable",
			setup: func(t *testing.T, env *testEnv) {
				env.ledger.burnErr = &ledger.CallError{Op: "burnOrLock", Err: errTransport}
			},
			amount:   uint256.NewInt(30),
			expected: locker.ErrCrossContractCall,
		},
		{
			name: "ledger not deployed",
			setup: func(t *testing.T, env *testEnv) {
				require.NoError(t, env.locker.SetLedger(ownerAddr, missingAddr))
			},
			amount:   uint256.NewInt(30),
			expected: locker.ErrCrossContractCall,
		},
		{
			name:     "zero amount",
			amount:   uint256.NewInt(0),
			expected: locker.ErrInvalidArgument,
		},
		{
			name:     "amount wider than 128 bits",
			amount:   new(uint256.Int).Lsh(uint256.NewInt(1), 128),
			expected: locker.ErrInvalidArgument,
		},
		{
			name:     "empty recipient",
			to:       "-",
			amount:   uint256.NewInt(30),
			expected: locker.ErrInvalidArgument,
		},
		{
			name: "native format rejects foreign recipient",
			setup: func(t *testing.T, env *testEnv) {
				require.NoError(t, env.locker.SetAddressFormat(ownerAddr, "chain-b", registry.FormatNative))
			},
			to:       "alice.near",
			amount:   uint256.NewInt(30),
			expected: locker.ErrInvalidArgument,
		},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			require := require.New(t)

			env := newTestEnv(t)
			require.NoError(env.locker.RegisterDestination(ownerAddr, "chain-b", "receive_token", "0xABC", "mint"))
			env.fund(t, userAddr, 100, 100)
			if test.setup != nil {
				test.setup(t, env)
			}
			chain := test.chain
			if chain == "" {
				chain = "chain-b"
			}
			to := test.to
			switch to {
			case "":
				to = recipientAddr.Hex()
			case "-":
				to = ""
			}

			err := env.locker.TransferOut(context.Background(), userAddr, chain, to, test.amount)
			require.ErrorIs(err, test.expected)
			require.Empty(env.messenger.sent)
			require.Equal(uint256.NewInt(100), env.token.BalanceOf(userAddr))
			require.Equal(uint256.NewInt(100), env.token.TotalSupply())
			require.Equal(uint256.NewInt(100), env.token.Allowance(userAddr, operatorAddr))
		})
	}
}

func TestTransferOutRefundsWhenMessengerRefuses(t *testing.T) {
	require := require.New(t)

	env := newTestEnv(t)
	require.NoError(env.locker.RegisterDestination(ownerAddr, "chain-b", "receive_token", "0xABC", "mint"))
	env.fund(t, userAddr, 100, 100)
	env.messenger.err = errTransport

	err := env.locker.TransferOut(context.Background(), userAddr, "chain-b", recipientAddr.Hex(), uint256.NewInt(30))
	require.ErrorIs(err, locker.ErrCrossContractCall)
	require.ErrorIs(err, errTransport)
	require.Empty(env.messenger.sent)
	require.Equal(uint256.NewInt(100), env.token.BalanceOf(userAddr))
	require.Equal(uint256.NewInt(100), env.token.TotalSupply())
	require.Equal(uint256.NewInt(100), env.token.Allowance(userAddr, operatorAddr))
}

func TestTransferOutRefundWithoutRefunder(t *testing.T) {
	require := require.New(t)

	env := newTestEnv(t)
	env.host.DeployLedger(ledgerAddr, mintOnlyLedger{Ledger: env.token})
	require.NoError(env.locker.RegisterDestination(ownerAddr, "chain-b", "receive_token", "0xABC", "mint"))
	env.fund(t, userAddr, 100, 100)
	env.messenger.err = errTransport

	err := env.locker.TransferOut(context.Background(), userAddr, "chain-b", recipientAddr.Hex(), uint256.NewInt(30))
	require.ErrorIs(err, errTransport)
	require.Equal(uint256.NewInt(100), env.token.BalanceOf(userAddr))
	// a plain mint cannot give the allowance back
	require.Equal(uint256.NewInt(70), env.token.Allowance(userAddr, operatorAddr))
}

func TestTransferOutRefundFailure(t *testing.T) {
	tests := []struct {
		name          string
		refundErr     error
		expectPending bool
	}{
		{
			name:      "refund not executed",
			refundErr: &ledger.CallError{Op: "refund", Err: errTransport},
		},
		{
			name:          "refund outcome unknown",
			refundErr:     &ledger.PendingError{Op: "refund", TxID: "0xr1", Err: errTransport},
			expectPending: true,
		},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			require := require.New(t)

			env := newTestEnv(t)
			env.fund(t, userAddr, 100, 100)
			env.ledger.refundErr = test.refundErr

			// nothing is registered for chain-z, so the burn has to be refunded
			err := env.locker.TransferOut(context.Background(), userAddr, "chain-z", recipientAddr.Hex(), uint256.NewInt(30))
			require.ErrorIs(err, locker.ErrCrossContractCall)
			require.ErrorIs(err, locker.ErrNotRegistered)
			require.ErrorIs(err, errTransport)
			require.Equal(uint256.NewInt(70), env.token.BalanceOf(userAddr))

			pending, err := env.locker.Pending()
			require.NoError(err)
			if !test.expectPending {
				require.Empty(pending)
				return
			}
			require.Equal([]state.PendingTransfer{{
				TxID:    "0xr1",
				Credit:  true,
				Account: userAddr,
				Amount:  uint256.NewInt(30),
				ToChain: "chain-z",
			}}, pending)
		})
	}
}

func TestTransferOutBurnsBeforeResolving(t *testing.T) {
	require := require.New(t)

	env := newTestEnv(t)
	env.fund(t, userAddr, 10, 100)

	err := env.locker.TransferOut(context.Background(), userAddr, "chain-z", recipientAddr.Hex(), uint256.NewInt(30))
	require.ErrorIs(err, locker.ErrLedger)
	require.ErrorIs(err, ledger.ErrInsufficientBalance)
	require.NotErrorIs(err, locker.ErrNotRegistered)
	require.Equal(uint256.NewInt(10), env.token.BalanceOf(userAddr))
	require.Empty(env.messenger.sent)
}

func TestTransferOutUnconfigured(t *testing.T) {
	require := require.New(t)

	l, err := New(Config{
		Chain:    "chain-a",
		Contract: "locker-a",
		Owner:    ownerAddr,
		Store:    state.NewMemory(),
		Host:     NewStaticHost(),
	})
	require.NoError(err)

	err = l.TransferOut(context.Background(), userAddr, "chain-b", recipientAddr.Hex(), uint256.NewInt(1))
	require.ErrorIs(err, locker.ErrConfiguration)

	err = l.Receive(context.Background(), messengerAddr, transferPayload(payload.Uint(1), 1), inboundContext(0))
	require.ErrorIs(err, locker.ErrConfiguration)
}

func TestTransferOutAddressFormat(t *testing.T) {
	require := require.New(t)

	env := newTestEnv(t)
	require.NoError(env.locker.RegisterDestination(ownerAddr, "near", "receive_token", "locker.near", "receive_token"))
	require.NoError(env.locker.SetAddressFormat(ownerAddr, "near", registry.FormatForeign))
	env.fund(t, userAddr, 100, 100)

	require.NoError(env.locker.TransferOut(context.Background(), userAddr, "near", recipientAddr.Hex(), uint256.NewInt(5)))

	to, ok := env.messenger.sent[0].msg.Content.Payload.Item(KeyTo)
	require.True(ok)
	addr, err := to.AsAddress()
	require.NoError(err)
	foreign, ok := addr.Foreign()
	require.True(ok)
	require.Equal(recipientAddr.Hex(), foreign)
}

func TestTransferOutSnapshotsSQoS(t *testing.T) {
	require := require.New(t)

	env := newTestEnv(t)
	require.NoError(env.locker.RegisterDestination(ownerAddr, "chain-b", "receive_token", "0xABC", "mint"))
	require.NoError(env.locker.InsertSQoS(ownerAddr, sqos.New(sqos.Reveal)))
	env.fund(t, userAddr, 100, 100)

	require.NoError(env.locker.TransferOut(context.Background(), userAddr, "chain-b", recipientAddr.Hex(), uint256.NewInt(1)))
	require.NoError(env.locker.ClearSQoS(ownerAddr))

	require.Equal(sqos.Set{sqos.New(sqos.Reveal)}, env.messenger.sent[0].msg.SQoS)
}

func TestReceive(t *testing.T) {
	require := require.New(t)

	env := newTestEnv(t)
	require.NoError(env.locker.RegisterPermittedSender(ownerAddr, "chain-b", "locker-b", DefaultReceiveAction))

	p := transferPayload(payload.Addr(payload.NativeAddress(recipientAddr)), 50)
	require.NoError(env.locker.Receive(context.Background(), messengerAddr, p, inboundContext(0)))
	require.Equal(uint256.NewInt(50), env.token.BalanceOf(recipientAddr))

	done, err := env.locker.Processed("chain-b", "locker-b", 0)
	require.NoError(err)
	require.True(done)
}

func TestReceiveUnpermittedSender(t *testing.T) {
	require := require.New(t)

	env := newTestEnv(t)
	p := transferPayload(payload.Addr(payload.NativeAddress(recipientAddr)), 50)

	err := env.locker.Receive(context.Background(), messengerAddr, p, inboundContext(0))
	require.ErrorIs(err, locker.ErrUnauthorized)
	require.True(env.token.TotalSupply().IsZero())

	done, err := env.locker.Processed("chain-b", "locker-b", 0)
	require.NoError(err)
	require.False(done)
}

func TestReceiveRejections(t *testing.T) {
	recipient := payload.Addr(payload.NativeAddress(recipientAddr))

	tests := []struct {
		name     string
		caller   common.Address
		payload  *payload.Payload
		ctx      locker.Context
		expected error
	}{
		{
			name:     "caller is not the messenger",
			caller:   strangerAddr,
			payload:  transferPayload(recipient, 50),
			ctx:      inboundContext(0),
			expected: locker.ErrUnauthorized,
		},
		{
			name:     "permitted for another action",
			caller:   messengerAddr,
			payload:  transferPayload(recipient, 50),
			ctx:      locker.Context{FromChain: "chain-b", Sender: "locker-b", Action: "other", Sequence: 0},
			expected: locker.ErrUnauthorized,
		},
		{
			name:     "sender on another chain",
			caller:   messengerAddr,
			payload:  transferPayload(recipient, 50),
			ctx:      locker.Context{FromChain: "chain-c", Sender: "locker-b", Action: DefaultReceiveAction},
			expected: locker.ErrUnauthorized,
		},
		{
			name:     "nil payload",
			caller:   messengerAddr,
			ctx:      inboundContext(0),
			expected: locker.ErrCodec,
		},
		{
			name:   "missing recipient",
			caller: messengerAddr,
			payload: func() *payload.Payload {
				p := payload.New()
				p.PushItem(KeyNum, payload.Uint(50))
				return p
			}(),
			ctx:      inboundContext(0),
			expected: locker.ErrCodec,
		},
		{
			name:   "amount of wrong type",
			caller: messengerAddr,
			payload: func() *payload.Payload {
				p := payload.New()
				p.PushItem(KeyTo, recipient)
				p.PushItem(KeyNum, payload.String("50"))
				return p
			}(),
			ctx:      inboundContext(0),
			expected: payload.ErrTypeMismatch,
		},
		{
			name:     "foreign recipient",
			caller:   messengerAddr,
			payload:  transferPayload(payload.Addr(payload.ForeignAddress("alice.near")), 50),
			ctx:      inboundContext(0),
			expected: locker.ErrCodec,
		},
		{
			name:     "short recipient bytes",
			caller:   messengerAddr,
			payload:  transferPayload(payload.Bytes([]byte{1, 2, 3}), 50),
			ctx:      inboundContext(0),
			expected: locker.ErrCodec,
		},
		{
			name:     "zero amount",
			caller:   messengerAddr,
			payload:  transferPayload(recipient, 0),
			ctx:      inboundContext(0),
			expected: locker.ErrCodec,
		},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			require := require.New(t)

			env := newTestEnv(t)
			require.NoError(env.locker.RegisterPermittedSender(ownerAddr, "chain-b", "locker-b", DefaultReceiveAction))
			require.NoError(env.locker.RegisterPermittedSender(ownerAddr, "chain-b", "locker-b", "other"))

			err := env.locker.Receive(context.Background(), test.caller, test.payload, test.ctx)
			require.ErrorIs(err, test.expected)
			require.True(env.token.TotalSupply().IsZero())

			done, err := env.locker.Processed(test.ctx.FromChain, test.ctx.Sender, test.ctx.Sequence)
			require.NoError(err)
			require.False(done)
		})
	}
}

func TestReceiveRecipientEncodings(t *testing.T) {
	tests := []struct {
		name string
		to   payload.Value
	}{
		{name: "native address", to: payload.Addr(payload.NativeAddress(recipientAddr))},
		{name: "hex foreign address", to: payload.Addr(payload.ForeignAddress(recipientAddr.Hex()))},
		{name: "raw bytes", to: payload.Bytes(recipientAddr.Bytes())},
		{name: "hex string", to: payload.String(recipientAddr.Hex())},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			recipient, amount, err := DecodeTransfer(transferPayload(test.to, 9))
			require.NoError(t, err)
			require.Equal(t, recipientAddr, recipient)
			require.Equal(t, uint256.NewInt(9), amount)
		})
	}
}

func TestReceiveReplay(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()

	env := newTestEnv(t)
	require.NoError(env.locker.RegisterPermittedSender(ownerAddr, "chain-b", "locker-b", DefaultReceiveAction))
	p := transferPayload(payload.Addr(payload.NativeAddress(recipientAddr)), 50)

	require.NoError(env.locker.Receive(ctx, messengerAddr, p, inboundContext(7)))
	err := env.locker.Receive(ctx, messengerAddr, p, inboundContext(7))
	require.ErrorIs(err, locker.ErrAlreadyProcessed)
	require.Equal(uint256.NewInt(50), env.token.BalanceOf(recipientAddr))

	require.NoError(env.locker.Receive(ctx, messengerAddr, p, inboundContext(8)))
	require.Equal(uint256.NewInt(100), env.token.BalanceOf(recipientAddr))
}

func TestReceiveMintFailureClearsMarker(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()

	env := newTestEnv(t)
	require.NoError(env.locker.RegisterPermittedSender(ownerAddr, "chain-b", "locker-b", DefaultReceiveAction))
	p := transferPayload(payload.Addr(payload.NativeAddress(recipientAddr)), 50)

	env.ledger.mintErr = &ledger.CallError{Op: "mintOrRelease", Err: errTransport}
	err := env.locker.Receive(ctx, messengerAddr, p, inboundContext(0))
	require.ErrorIs(err, locker.ErrCrossContractCall)

	done, err := env.locker.Processed("chain-b", "locker-b", 0)
	require.NoError(err)
	require.False(done)

	env.ledger.mintErr = nil
	require.NoError(env.locker.Receive(ctx, messengerAddr, p, inboundContext(0)))
	require.Equal(uint256.NewInt(50), env.token.BalanceOf(recipientAddr))
}

func TestLockModeRelease(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()

	env := newTestEnv(t)
	vault := ledger.NewToken("LCK", ledger.ModeLock, operatorAddr)
	env.host.DeployLedger(vaultAddr, vault)
	require.NoError(env.locker.SetLedger(ownerAddr, vaultAddr))
	require.NoError(env.locker.RegisterPermittedSender(ownerAddr, "chain-b", "locker-b", DefaultReceiveAction))

	p := transferPayload(payload.Addr(payload.NativeAddress(recipientAddr)), 50)
	err := env.locker.Receive(ctx, messengerAddr, p, inboundContext(0))
	require.ErrorIs(err, locker.ErrLedger)
	require.ErrorIs(err, ledger.ErrInsufficientBalance)

	require.NoError(vault.Issue(operatorAddr, uint256.NewInt(80)))
	require.NoError(env.locker.Receive(ctx, messengerAddr, p, inboundContext(0)))
	require.Equal(uint256.NewInt(50), vault.BalanceOf(recipientAddr))
	require.Equal(uint256.NewInt(30), vault.BalanceOf(operatorAddr))
}

func TestSQoSStore(t *testing.T) {
	require := require.New(t)

	env := newTestEnv(t)
	l := env.locker

	require.NoError(l.InsertSQoS(ownerAddr, sqos.New(sqos.Reveal)))
	err := l.InsertSQoS(ownerAddr, sqos.New(sqos.Reveal))
	require.ErrorIs(err, locker.ErrPolicyConflict)
	require.ErrorIs(err, sqos.ErrDuplicateType)

	set, err := l.SQoS()
	require.NoError(err)
	require.Equal(sqos.Set{sqos.New(sqos.Reveal)}, set)

	require.NoError(l.InsertSQoS(ownerAddr, sqos.WithParam(sqos.Threshold, []byte{3})))
	require.NoError(l.RemoveSQoS(ownerAddr, sqos.Reveal))
	require.NoError(l.RemoveSQoS(ownerAddr, sqos.Reveal))
	set, err = l.SQoS()
	require.NoError(err)
	require.Equal(sqos.Set{sqos.WithParam(sqos.Threshold, []byte{3})}, set)

	err = l.SetSQoS(ownerAddr, sqos.Set{sqos.New(sqos.Priority), sqos.New(sqos.Isolation), sqos.New(sqos.Priority)})
	require.ErrorIs(err, locker.ErrPolicyConflict)
	set, err = l.SQoS()
	require.NoError(err)
	require.Equal(sqos.Set{sqos.WithParam(sqos.Threshold, []byte{3})}, set)

	err = l.InsertSQoS(ownerAddr, sqos.New(sqos.Type(42)))
	require.ErrorIs(err, locker.ErrInvalidArgument)

	require.NoError(l.SetSQoS(ownerAddr, sqos.Set{sqos.New(sqos.Challenge), sqos.New(sqos.Reveal)}))
	set, err = l.SQoS()
	require.NoError(err)
	require.Equal(sqos.Set{sqos.New(sqos.Challenge), sqos.New(sqos.Reveal)}, set)

	require.NoError(l.ClearSQoS(ownerAddr))
	set, err = l.SQoS()
	require.NoError(err)
	require.Empty(set)
}

// adminCalls invokes every owner-gated operation as caller
func adminCalls(l *Locker, caller common.Address) map[string]func() error {
	return map[string]func() error{
		"SetLedger":                 func() error { return l.SetLedger(caller, ledgerAddr) },
		"SetMessenger":              func() error { return l.SetMessenger(caller, messengerAddr) },
		"RegisterDestination":       func() error { return l.RegisterDestination(caller, "chain-z", "receive_token", "0xDEF", "mint") },
		"RegisterPermittedSender":   func() error { return l.RegisterPermittedSender(caller, "chain-z", "locker-z", "receive_token") },
		"UnregisterPermittedSender": func() error { return l.UnregisterPermittedSender(caller, "chain-b", "locker-b", "receive_token") },
		"SetAddressFormat":          func() error { return l.SetAddressFormat(caller, "chain-z", registry.FormatForeign) },
		"InsertSQoS":                func() error { return l.InsertSQoS(caller, sqos.New(sqos.Challenge)) },
		"RemoveSQoS":                func() error { return l.RemoveSQoS(caller, sqos.Reveal) },
		"ClearSQoS":                 func() error { return l.ClearSQoS(caller) },
		"SetSQoS":                   func() error { return l.SetSQoS(caller, sqos.Set{sqos.New(sqos.Priority)}) },
		"TransferOwnership":         func() error { return l.TransferOwnership(caller, caller) },
		"RenounceOwnership":         func() error { return l.RenounceOwnership(caller) },
		"ResolvePending":            func() error { return l.ResolvePending(context.Background(), caller, "0x01", true) },
	}
}

func requireAdminStateUnchanged(t *testing.T, l *Locker) {
	t.Helper()
	require := require.New(t)

	dests, err := l.Destinations()
	require.NoError(err)
	require.Len(dests, 1)
	require.Equal("chain-b", dests[0].Chain)

	permitted, err := l.PermittedSenders()
	require.NoError(err)
	require.Equal([]state.PermittedEntry{{Chain: "chain-b", Contract: "locker-b", Action: "receive_token"}}, permitted)

	set, err := l.SQoS()
	require.NoError(err)
	require.Equal(sqos.Set{sqos.New(sqos.Reveal)}, set)

	format, err := l.AddressFormat("chain-z")
	require.NoError(err)
	require.Equal(registry.FormatAuto, format)
}

func seedAdminState(t *testing.T, l *Locker) {
	t.Helper()
	require.NoError(t, l.RegisterDestination(ownerAddr, "chain-b", "receive_token", "0xABC", "mint"))
	require.NoError(t, l.RegisterPermittedSender(ownerAddr, "chain-b", "locker-b", "receive_token"))
	require.NoError(t, l.InsertSQoS(ownerAddr, sqos.New(sqos.Reveal)))
}

func TestAdminRequiresOwner(t *testing.T) {
	env := newTestEnv(t)
	seedAdminState(t, env.locker)

	for name, call := range adminCalls(env.locker, strangerAddr) {
		t.Run(name, func(t *testing.T) {
			require.ErrorIs(t, call(), locker.ErrUnauthorized)
			requireAdminStateUnchanged(t, env.locker)

			owner, ok, err := env.locker.Owner()
			require.NoError(t, err)
			require.True(t, ok)
			require.Equal(t, ownerAddr, owner)
		})
	}
}

func TestRenounceOwnershipIsTerminal(t *testing.T) {
	require := require.New(t)

	env := newTestEnv(t)
	seedAdminState(t, env.locker)
	require.NoError(env.locker.RenounceOwnership(ownerAddr))

	_, ok, err := env.locker.Owner()
	require.NoError(err)
	require.False(ok)

	for _, caller := range []common.Address{ownerAddr, strangerAddr, {}} {
		for name, call := range adminCalls(env.locker, caller) {
			require.ErrorIs(call(), locker.ErrUnauthorized, name)
		}
	}
	requireAdminStateUnchanged(t, env.locker)
}

func TestTransferOwnership(t *testing.T) {
	require := require.New(t)

	env := newTestEnv(t)
	require.NoError(env.locker.TransferOwnership(ownerAddr, strangerAddr))

	require.ErrorIs(env.locker.InsertSQoS(ownerAddr, sqos.New(sqos.Reveal)), locker.ErrUnauthorized)
	require.NoError(env.locker.InsertSQoS(strangerAddr, sqos.New(sqos.Reveal)))

	owner, ok, err := env.locker.Owner()
	require.NoError(err)
	require.True(ok)
	require.Equal(strangerAddr, owner)
}

func TestRegistryUpsertAndRevoke(t *testing.T) {
	require := require.New(t)

	env := newTestEnv(t)
	l := env.locker

	require.NoError(l.RegisterDestination(ownerAddr, "chain-b", "receive_token", "0xABC", "mint"))
	require.NoError(l.RegisterDestination(ownerAddr, "chain-b", "receive_token", "0xDEF", "credit"))
	dest, ok, err := l.ResolveDestination("chain-b", "receive_token")
	require.NoError(err)
	require.True(ok)
	require.Equal(registry.Destination{Contract: "0xDEF", Action: "credit"}, dest)

	require.NoError(l.RegisterPermittedSender(ownerAddr, "chain-b", "locker-b", "receive_token"))
	permitted, err := l.IsPermitted("chain-b", "locker-b", "receive_token")
	require.NoError(err)
	require.True(permitted)

	require.NoError(l.UnregisterPermittedSender(ownerAddr, "chain-b", "locker-b", "receive_token"))
	permitted, err = l.IsPermitted("chain-b", "locker-b", "receive_token")
	require.NoError(err)
	require.False(permitted)

	p := transferPayload(payload.Addr(payload.NativeAddress(recipientAddr)), 1)
	err = l.Receive(context.Background(), messengerAddr, p, inboundContext(0))
	require.ErrorIs(err, locker.ErrUnauthorized)
}

func TestNewKeepsPersistedOwner(t *testing.T) {
	require := require.New(t)

	env := newTestEnv(t)
	seedAdminState(t, env.locker)

	reopened, err := New(Config{
		Chain:    "chain-a",
		Contract: "locker-a",
		Owner:    strangerAddr,
		Store:    env.store,
		Host:     env.host,
	})
	require.NoError(err)

	owner, ok, err := reopened.Owner()
	require.NoError(err)
	require.True(ok)
	require.Equal(ownerAddr, owner)

	dest, ok, err := reopened.ResolveDestination("chain-b", "receive_token")
	require.NoError(err)
	require.True(ok)
	require.Equal("0xABC", dest.Contract)

	addr, err := reopened.Messenger()
	require.NoError(err)
	require.Equal(messengerAddr, addr)
}

func TestRenouncedOwnershipSurvivesReopen(t *testing.T) {
	require := require.New(t)

	path := filepath.Join(t.TempDir(), "db")
	open := func() (*state.Store, *Locker) {
		store, err := state.OpenLevelDB(path)
		require.NoError(err)
		l, err := New(Config{
			Chain:    "chain-a",
			Contract: "locker-a",
			Owner:    ownerAddr,
			Store:    store,
			Host:     NewStaticHost(),
		})
		require.NoError(err)
		return store, l
	}

	store, l := open()
	require.NoError(l.RenounceOwnership(ownerAddr))
	require.NoError(store.Close())

	// the configured owner must not be installed again
	store, l = open()
	defer store.Close()

	_, ok, err := l.Owner()
	require.NoError(err)
	require.False(ok)
	require.ErrorIs(l.InsertSQoS(ownerAddr, sqos.New(sqos.Reveal)), locker.ErrUnauthorized)
	require.ErrorIs(l.TransferOwnership(ownerAddr, ownerAddr), locker.ErrUnauthorized)
}

func TestNewValidatesConfig(t *testing.T) {
	_, err := New(Config{Contract: "locker-a", Store: state.NewMemory(), Host: NewStaticHost()})
	require.ErrorIs(t, err, locker.ErrInvalidArgument)

	_, err = New(Config{Chain: "chain-a", Store: state.NewMemory(), Host: NewStaticHost()})
	require.ErrorIs(t, err, locker.ErrInvalidArgument)

	_, err = New(Config{Chain: "chain-a", Contract: "locker-a", Host: NewStaticHost()})
	require.ErrorIs(t, err, locker.ErrInvalidArgument)
}
