// Copyright (C) 2019-2025, Lux Industries Inc All rights reserved.
// See the file LICENSE for licensing terms.

package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/luxfi/locker/bridge"
	"github.com/luxfi/locker/relayer"
)

func NewConfig(v *viper.Viper) (Config, error) {
	cfg, err := BuildConfig(v)
	if err != nil {
		return cfg, err
	}
	if err = cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("failed to validate configuration: %w", err)
	}
	return cfg, nil
}

// BuildFlagSet declares the command line options that override the config file
func BuildFlagSet() *pflag.FlagSet {
	fs := pflag.NewFlagSet("locker", pflag.ContinueOnError)
	AddFlags(fs)
	return fs
}

func AddFlags(fs *pflag.FlagSet) {
	fs.String(ConfigFileKey, "", "Path to a JSON, YAML or TOML config file. Also read from "+ConfigFileEnvKey)
	fs.String(DBPathKey, defaultDBPath, "Directory of the bridge database")
	fs.String(ChainKey, "", "Name of the local chain")
	fs.String(ContractKey, "", "Identity remote chains know this locker by")
	fs.String(OwnerKey, "", "Owner of a freshly initialized bridge database")
}

// BuildViper builds the viper instance. The config file is optional; every
// key may also be given as a LOCKER_ prefixed environment variable.
func BuildViper(fs *pflag.FlagSet) (*viper.Viper, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()
	// Map key names to env var names. Hyphens and dots become underscores.
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	if err := v.BindPFlags(fs); err != nil {
		return nil, err
	}
	// Keys without a flag or default are only seen by Unmarshal when bound
	for _, key := range envKeys {
		if err := v.BindEnv(key); err != nil {
			return nil, err
		}
	}
	SetDefaultConfigValues(v)

	filename := v.GetString(ConfigFileKey)
	if filename == "" {
		return v, nil
	}
	v.SetConfigFile(filename)
	if ext := strings.TrimPrefix(filepath.Ext(filename), "."); ext == "" {
		v.SetConfigType("json")
	}
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", filename, err)
	}
	return v, nil
}

func SetDefaultConfigValues(v *viper.Viper) {
	v.SetDefault(DBPathKey, defaultDBPath)
	v.SetDefault(ReceiveActionKey, bridge.DefaultReceiveAction)
	v.SetDefault(DeliveryTimeoutKey, relayer.DefaultDeliveryTimeout)
	v.SetDefault(PollIntervalKey, relayer.DefaultPollInterval)
	v.SetDefault(MaxConcurrentMessagesKey, relayer.DefaultMaxConcurrentMessages)
	v.SetDefault(LedgerModeKey, defaultLedgerMode)
}

// BuildConfig constructs the locker config using Viper.
// The following precedence order is used. Each item takes precedence over the item below it:
//  1. Flags
//  2. Environment variables
//  3. Config file
//  4. Defaults
func BuildConfig(v *viper.Viper) (Config, error) {
	SetDefaultConfigValues(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, fmt.Errorf("failed to unmarshal viper config: %w", err)
	}
	if cfg.EVM.AccountPrivateKey != "" {
		cfg.EVM.AccountPrivateKey = os.ExpandEnv(cfg.EVM.AccountPrivateKey)
	}
	return cfg, nil
}
