// Copyright (C) 2019-2025, Lux Industries Inc All rights reserved.
// See the file LICENSE for licensing terms.

package config

import (
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/luxfi/geth/common"
	"github.com/luxfi/geth/common/math"

	"github.com/luxfi/locker/bridge"
	"github.com/luxfi/locker/ledger"
	"github.com/luxfi/locker/ledger/evm"
	"github.com/luxfi/locker/relayer"
)

const (
	defaultDBPath     = "locker-db"
	defaultLedgerMode = "burn"
)

var (
	errMissingChain    = errors.New("chain is required")
	errMissingContract = errors.New("contract is required")
	errInvalidOwner    = errors.New("owner must be a hex account")
	errMissingDBPath   = errors.New("db-path is required")
)

// Config is the configuration of one locker deployment
type Config struct {
	DBPath        string        `mapstructure:"db-path"`
	Chain         string        `mapstructure:"chain"`
	Contract      string        `mapstructure:"contract"`
	ReceiveAction string        `mapstructure:"receive-action"`
	Owner         string        `mapstructure:"owner"`
	Relayer       RelayerConfig `mapstructure:"relayer"`
	EVM           EVMConfig     `mapstructure:"evm"`
}

type RelayerConfig struct {
	RevealDelay           time.Duration `mapstructure:"reveal-delay"`
	DeliveryTimeout       time.Duration `mapstructure:"delivery-timeout"`
	PollInterval          time.Duration `mapstructure:"poll-interval"`
	MaxConcurrentMessages int           `mapstructure:"max-concurrent-messages"`
}

// EVMConfig points the locker at an ERC-20 token. It is optional; an empty
// RPCURL leaves the ledger unconfigured.
type EVMConfig struct {
	RPCURL               string        `mapstructure:"rpc-url"`
	TokenAddress         string        `mapstructure:"token-address"`
	Mode                 string        `mapstructure:"mode"`
	AccountPrivateKey    string        `mapstructure:"account-private-key"`
	MaxBaseFee           string        `mapstructure:"max-base-fee"`
	MaxPriorityFeePerGas string        `mapstructure:"max-priority-fee-per-gas"`
	TxInclusionTimeout   time.Duration `mapstructure:"tx-inclusion-timeout"`
}

func (c *Config) Validate() error {
	if c.DBPath == "" {
		return errMissingDBPath
	}
	if c.Chain == "" {
		return errMissingChain
	}
	if c.Contract == "" {
		return errMissingContract
	}
	if !common.IsHexAddress(c.Owner) {
		return fmt.Errorf("%w: %q", errInvalidOwner, c.Owner)
	}
	if err := c.Relayer.Validate(); err != nil {
		return fmt.Errorf("invalid relayer config: %w", err)
	}
	if err := c.EVM.Validate(); err != nil {
		return fmt.Errorf("invalid evm config: %w", err)
	}
	return nil
}

// OwnerAddress is the owner a fresh bridge database is initialized with
func (c *Config) OwnerAddress() common.Address {
	return common.HexToAddress(c.Owner)
}

// BridgeConfig returns the locker configuration without its collaborators
func (c *Config) BridgeConfig() bridge.Config {
	return bridge.Config{
		Chain:         c.Chain,
		Contract:      c.Contract,
		ReceiveAction: c.ReceiveAction,
		Owner:         c.OwnerAddress(),
	}
}

func (r *RelayerConfig) Validate() error {
	switch {
	case r.RevealDelay < 0:
		return fmt.Errorf("negative reveal delay %s", r.RevealDelay)
	case r.DeliveryTimeout <= 0:
		return fmt.Errorf("delivery timeout must be positive, have %s", r.DeliveryTimeout)
	case r.PollInterval <= 0:
		return fmt.Errorf("poll interval must be positive, have %s", r.PollInterval)
	case r.MaxConcurrentMessages <= 0:
		return fmt.Errorf("max concurrent messages must be positive, have %d", r.MaxConcurrentMessages)
	}
	return nil
}

func (r *RelayerConfig) RelayerConfig() relayer.Config {
	return relayer.Config{
		RevealDelay:           r.RevealDelay,
		DeliveryTimeout:       r.DeliveryTimeout,
		PollInterval:          r.PollInterval,
		MaxConcurrentMessages: r.MaxConcurrentMessages,
	}
}

// Enabled reports whether an EVM ledger is configured
func (e *EVMConfig) Enabled() bool {
	return e.RPCURL != ""
}

func (e *EVMConfig) Validate() error {
	if !e.Enabled() {
		return nil
	}
	if !common.IsHexAddress(e.TokenAddress) {
		return fmt.Errorf("token address %q is not a hex account", e.TokenAddress)
	}
	if _, err := ledger.ParseMode(e.Mode); err != nil {
		return err
	}
	if e.AccountPrivateKey == "" {
		return errors.New("account private key is required")
	}
	if _, err := parseWei(e.MaxBaseFee); err != nil {
		return fmt.Errorf("max base fee: %w", err)
	}
	if _, err := parseWei(e.MaxPriorityFeePerGas); err != nil {
		return fmt.Errorf("max priority fee: %w", err)
	}
	if e.TxInclusionTimeout < 0 {
		return fmt.Errorf("negative tx inclusion timeout %s", e.TxInclusionTimeout)
	}
	return nil
}

// LedgerConfig returns the settings of the EVM token ledger
func (e *EVMConfig) LedgerConfig() (evm.Config, error) {
	mode, err := ledger.ParseMode(e.Mode)
	if err != nil {
		return evm.Config{}, err
	}
	maxBaseFee, err := parseWei(e.MaxBaseFee)
	if err != nil {
		return evm.Config{}, err
	}
	maxPriorityFee, err := parseWei(e.MaxPriorityFeePerGas)
	if err != nil {
		return evm.Config{}, err
	}
	return evm.Config{
		Token:                common.HexToAddress(e.TokenAddress),
		Mode:                 mode,
		MaxBaseFee:           maxBaseFee,
		MaxPriorityFeePerGas: maxPriorityFee,
		TxInclusionTimeout:   e.TxInclusionTimeout,
	}, nil
}

// parseWei accepts decimal or 0x-prefixed hex. Empty means unset.
func parseWei(s string) (*big.Int, error) {
	if s == "" {
		return nil, nil
	}
	v, ok := math.ParseBig256(s)
	if !ok {
		return nil, fmt.Errorf("invalid amount %q", s)
	}
	return v, nil
}
