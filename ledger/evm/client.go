// Copyright (C) 2024, Lux Industries Inc All rights reserved.
// See the file LICENSE for licensing terms.

// Package evm implements the bridge ledger for an ERC-20 token deployed on an
// EVM chain. Every call is simulated first so that token rejections surface
// as ledger errors before any transaction is sent.
package evm

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/holiman/uint256"
	"github.com/luxfi/crypto"
	ethereum "github.com/luxfi/geth"
	"github.com/luxfi/geth/accounts/abi"
	"github.com/luxfi/geth/common"
	"github.com/luxfi/geth/common/hexutil"
	"github.com/luxfi/geth/core/types"
	"github.com/luxfi/geth/ethclient"
	"github.com/luxfi/log"

	"github.com/luxfi/locker/ledger"
	"github.com/luxfi/locker/utils"
)

const (
	// If the max base fee is not explicitly set, use 3x the current base fee estimate
	defaultBaseFeeFactor           = 3
	defaultTxInclusionTimeout      = 30 * time.Second
	defaultMaxPriorityFeePerGasWei = 2_500_000_000
)

const erc20ABI = `[
	{"type":"function","name":"burnFrom","inputs":[{"name":"account","type":"address"},{"name":"amount","type":"uint256"}],"outputs":[]},
	{"type":"function","name":"mint","inputs":[{"name":"to","type":"address"},{"name":"amount","type":"uint256"}],"outputs":[]},
	{"type":"function","name":"transferFrom","inputs":[{"name":"from","type":"address"},{"name":"to","type":"address"},{"name":"amount","type":"uint256"}],"outputs":[{"name":"","type":"bool"}]},
	{"type":"function","name":"transfer","inputs":[{"name":"to","type":"address"},{"name":"amount","type":"uint256"}],"outputs":[{"name":"","type":"bool"}]}
]`

var (
	_ ledger.Ledger = (*TokenLedger)(nil)

	// ErrReverted is returned when the token rejects a call for a reason
	// other than balance or allowance
	ErrReverted = errors.New("token call reverted")

	parsedABI = mustParseABI()

	insufficientBalanceSelector   = crypto.Keccak256([]byte("ERC20InsufficientBalance(address,uint256,uint256)"))[:4]
	insufficientAllowanceSelector = crypto.Keccak256([]byte("ERC20InsufficientAllowance(address,uint256,uint256)"))[:4]
)

func mustParseABI() abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(erc20ABI))
	if err != nil {
		panic(err)
	}
	return parsed
}

// Client is the subset of ethclient.Client the ledger needs
type Client interface {
	ChainID(ctx context.Context) (*big.Int, error)
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasTipCap(ctx context.Context) (*big.Int, error)
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
}

var _ Client = (*ethclient.Client)(nil)

// Config describes the token contract and fee policy
type Config struct {
	Token                common.Address
	Mode                 ledger.Mode
	MaxBaseFee           *big.Int
	MaxPriorityFeePerGas *big.Int
	TxInclusionTimeout   time.Duration
}

// TokenLedger drives an ERC-20 token with burnFrom/mint in ModeBurn and
// transferFrom/transfer in ModeLock. The signer is the bridge operator.
type TokenLedger struct {
	logger log.Logger
	client Client
	signer Signer
	config Config

	nonceLock    sync.Mutex
	evmChainID   *big.Int
	currentNonce uint64
	nonceLoaded  bool
}

// Dial connects to rpcURL and returns a ledger for the configured token
func Dial(ctx context.Context, logger log.Logger, rpcURL string, signer Signer, config Config) (*TokenLedger, error) {
	client, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("failed to dial %s: %w", rpcURL, err)
	}
	return New(logger, client, signer, config), nil
}

func New(logger log.Logger, client Client, signer Signer, config Config) *TokenLedger {
	if config.TxInclusionTimeout == 0 {
		config.TxInclusionTimeout = defaultTxInclusionTimeout
	}
	if config.MaxPriorityFeePerGas == nil {
		config.MaxPriorityFeePerGas = big.NewInt(defaultMaxPriorityFeePerGasWei)
	}
	return &TokenLedger{
		logger: logger,
		client: client,
		signer: signer,
		config: config,
	}
}

func (l *TokenLedger) BurnOrLock(ctx context.Context, holder common.Address, amount *uint256.Int) error {
	var (
		data []byte
		err  error
	)
	if l.config.Mode == ledger.ModeLock {
		data, err = parsedABI.Pack("transferFrom", holder, l.signer.Address(), amount.ToBig())
	} else {
		data, err = parsedABI.Pack("burnFrom", holder, amount.ToBig())
	}
	if err != nil {
		return &ledger.CallError{Op: "burnOrLock", Err: err}
	}
	return l.execute(ctx, "burnOrLock", data)
}

func (l *TokenLedger) MintOrRelease(ctx context.Context, recipient common.Address, amount *uint256.Int) error {
	var (
		data []byte
		err  error
	)
	if l.config.Mode == ledger.ModeLock {
		data, err = parsedABI.Pack("transfer", recipient, amount.ToBig())
	} else {
		data, err = parsedABI.Pack("mint", recipient, amount.ToBig())
	}
	if err != nil {
		return &ledger.CallError{Op: "mintOrRelease", Err: err}
	}
	return l.execute(ctx, "mintOrRelease", data)
}

func (l *TokenLedger) execute(ctx context.Context, op string, data []byte) error {
	msg := ethereum.CallMsg{
		From: l.signer.Address(),
		To:   &l.config.Token,
		Data: data,
	}

	callCtx, callCancel := context.WithTimeout(ctx, utils.DefaultRPCTimeout)
	defer callCancel()
	if _, err := l.client.CallContract(callCtx, msg, nil); err != nil {
		return classifyCallError(op, err)
	}

	gasCtx, gasCancel := context.WithTimeout(ctx, utils.DefaultRPCTimeout)
	defer gasCancel()
	gas, err := l.client.EstimateGas(gasCtx, msg)
	if err != nil {
		return classifyCallError(op, err)
	}

	receipt, err := l.sendTx(ctx, op, data, gas)
	if err != nil {
		if ledger.IsOutcomeUnknown(err) {
			return err
		}
		return &ledger.CallError{Op: op, Err: err}
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return fmt.Errorf("%w: transaction %s failed", ErrReverted, receipt.TxHash.Hex())
	}
	return nil
}

// sendTx returns a ledger.PendingError once the transaction may have reached
// the network
func (l *TokenLedger) sendTx(ctx context.Context, op string, data []byte, gas uint64) (*types.Receipt, error) {
	maxBaseFee := l.config.MaxBaseFee
	if maxBaseFee == nil || maxBaseFee.Sign() == 0 {
		headerCtx, headerCancel := context.WithTimeout(ctx, utils.DefaultRPCTimeout)
		defer headerCancel()
		header, err := l.client.HeaderByNumber(headerCtx, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to get latest header: %w", err)
		}
		if header.BaseFee == nil {
			return nil, errors.New("chain does not report a base fee")
		}
		maxBaseFee = new(big.Int).Mul(header.BaseFee, big.NewInt(defaultBaseFeeFactor))
	}

	tipCtx, tipCancel := context.WithTimeout(ctx, utils.DefaultRPCTimeout)
	defer tipCancel()
	gasTipCap, err := l.client.SuggestGasTipCap(tipCtx)
	if err != nil {
		return nil, fmt.Errorf("failed to get gas tip cap: %w", err)
	}
	if gasTipCap.Cmp(l.config.MaxPriorityFeePerGas) > 0 {
		gasTipCap = l.config.MaxPriorityFeePerGas
	}
	gasFeeCap := new(big.Int).Add(maxBaseFee, gasTipCap)

	// Hold the lock until the transaction is sent so that nonces go out in order
	l.nonceLock.Lock()
	if err := l.loadNonce(ctx); err != nil {
		l.nonceLock.Unlock()
		return nil, err
	}
	tx := types.NewTx(&types.DynamicFeeTx{
		ChainID:   l.evmChainID,
		Nonce:     l.currentNonce,
		GasTipCap: gasTipCap,
		GasFeeCap: gasFeeCap,
		Gas:       gas,
		To:        &l.config.Token,
		Value:     big.NewInt(0),
		Data:      data,
	})
	signedTx, err := l.signer.SignTx(tx, l.evmChainID)
	if err != nil {
		l.nonceLock.Unlock()
		return nil, fmt.Errorf("failed to sign transaction: %w", err)
	}

	sendCtx, sendCancel := context.WithTimeout(ctx, utils.DefaultRPCTimeout)
	defer sendCancel()
	if err := l.client.SendTransaction(sendCtx, signedTx); err != nil {
		l.logger.Error(
			"Failed to send transaction",
			log.Stringer("token", l.config.Token),
			log.String("txID", signedTx.Hash().String()),
			log.Err(err),
		)
		if errors.Is(err, context.DeadlineExceeded) {
			// The node may have accepted it anyway. Reload the nonce so a
			// landed transaction is not replaced.
			l.nonceLoaded = false
			l.nonceLock.Unlock()
			return nil, &ledger.PendingError{Op: op, TxID: signedTx.Hash().Hex(), Err: err}
		}
		l.nonceLock.Unlock()
		return nil, fmt.Errorf("failed to send transaction: %w", err)
	}
	l.logger.Info(
		"Sent transaction",
		log.Stringer("token", l.config.Token),
		log.String("txID", signedTx.Hash().String()),
		log.Uint64("nonce", l.currentNonce),
	)
	l.currentNonce++
	l.nonceLock.Unlock()

	receipt, err := l.waitForReceipt(ctx, signedTx.Hash())
	if err != nil {
		return nil, &ledger.PendingError{Op: op, TxID: signedTx.Hash().Hex(), Err: err}
	}
	return receipt, nil
}

// loadNonce must be called with nonceLock held
func (l *TokenLedger) loadNonce(ctx context.Context) error {
	if l.nonceLoaded {
		return nil
	}
	rpcCtx, cancel := context.WithTimeout(ctx, utils.DefaultRPCTimeout)
	defer cancel()
	chainID, err := l.client.ChainID(rpcCtx)
	if err != nil {
		return fmt.Errorf("failed to get chain ID: %w", err)
	}
	nonce, err := l.client.PendingNonceAt(rpcCtx, l.signer.Address())
	if err != nil {
		return fmt.Errorf("failed to get pending nonce: %w", err)
	}
	l.evmChainID = chainID
	l.currentNonce = nonce
	l.nonceLoaded = true
	return nil
}

func (l *TokenLedger) waitForReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	var receipt *types.Receipt
	operation := func() (err error) {
		callCtx, callCancel := context.WithTimeout(ctx, utils.DefaultRPCTimeout)
		defer callCancel()
		receipt, err = l.client.TransactionReceipt(callCtx, txHash)
		return err
	}
	err := utils.WithRetriesTimeout(ctx, l.logger, operation, l.config.TxInclusionTimeout, "waitForReceipt")
	if err != nil {
		return nil, fmt.Errorf("failed to get receipt of %s: %w", txHash.Hex(), err)
	}
	return receipt, nil
}

// classifyCallError tells token rejections apart from calls that could not
// be executed
func classifyCallError(op string, err error) error {
	if data, ok := revertData(err); ok {
		return classifyRevert(data)
	}
	msg := err.Error()
	if idx := strings.Index(msg, "execution reverted"); idx >= 0 {
		return classifyReason(strings.TrimPrefix(msg[idx+len("execution reverted"):], ": "))
	}
	return &ledger.CallError{Op: op, Err: err}
}

type dataError interface {
	ErrorData() interface{}
}

func revertData(err error) ([]byte, bool) {
	var de dataError
	if !errors.As(err, &de) {
		return nil, false
	}
	s, ok := de.ErrorData().(string)
	if !ok {
		return nil, false
	}
	data, err := hexutil.Decode(s)
	if err != nil || len(data) == 0 {
		return nil, false
	}
	return data, true
}

func classifyRevert(data []byte) error {
	if len(data) >= 4 {
		switch {
		case bytes.Equal(data[:4], insufficientBalanceSelector):
			return ledger.ErrInsufficientBalance
		case bytes.Equal(data[:4], insufficientAllowanceSelector):
			return ledger.ErrInsufficientAllowance
		}
	}
	reason, err := abi.UnpackRevert(data)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrReverted, hexutil.Encode(data))
	}
	return classifyReason(reason)
}

func classifyReason(reason string) error {
	lower := strings.ToLower(reason)
	switch {
	case strings.Contains(lower, "exceeds balance"), strings.Contains(lower, "insufficient balance"):
		return fmt.Errorf("%w: %s", ledger.ErrInsufficientBalance, reason)
	case strings.Contains(lower, "allowance"):
		return fmt.Errorf("%w: %s", ledger.ErrInsufficientAllowance, reason)
	default:
		return fmt.Errorf("%w: %s", ErrReverted, reason)
	}
}
