// Copyright (C) 2019-2025, Lux Industries Inc All rights reserved.
// See the file LICENSE for licensing terms.

package config

const (
	// Command line option keys
	ConfigFileKey = "config-file"

	// Environment variable keys
	ConfigFileEnvKey = "LOCKER_CONFIG_FILE"
	EnvPrefix        = "LOCKER"

	// Top-level configuration keys
	DBPathKey        = "db-path"
	ChainKey         = "chain"
	ContractKey      = "contract"
	ReceiveActionKey = "receive-action"
	OwnerKey         = "owner"

	// Relayer configuration keys
	RevealDelayKey           = "relayer.reveal-delay"
	DeliveryTimeoutKey       = "relayer.delivery-timeout"
	PollIntervalKey          = "relayer.poll-interval"
	MaxConcurrentMessagesKey = "relayer.max-concurrent-messages"

	// EVM ledger configuration keys
	RPCURLKey             = "evm.rpc-url"
	TokenAddressKey       = "evm.token-address"
	LedgerModeKey         = "evm.mode"
	AccountPrivateKeyKey  = "evm.account-private-key"
	MaxBaseFeeKey         = "evm.max-base-fee"
	MaxPriorityFeeKey     = "evm.max-priority-fee-per-gas"
	TxInclusionTimeoutKey = "evm.tx-inclusion-timeout"
)

var envKeys = []string{
	ConfigFileKey,
	DBPathKey,
	ChainKey,
	ContractKey,
	ReceiveActionKey,
	OwnerKey,
	RevealDelayKey,
	DeliveryTimeoutKey,
	PollIntervalKey,
	MaxConcurrentMessagesKey,
	RPCURLKey,
	TokenAddressKey,
	LedgerModeKey,
	AccountPrivateKeyKey,
	MaxBaseFeeKey,
	MaxPriorityFeeKey,
	TxInclusionTimeoutKey,
}
