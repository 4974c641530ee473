// Copyright (C) 2019-2025, Lux Industries Inc All rights reserved.
// See the file LICENSE for licensing terms.

package main

import (
	"fmt"
	"os"

	"github.com/luxfi/locker/cmd/plugin"
)

var (
	version   = "dev"
	buildDate = "unknown"
)

func main() {
	rootCmd := plugin.NewLockerCmd()
	rootCmd.Use = "lockerctl"
	rootCmd.Version = fmt.Sprintf("%s (built %s)", version, buildDate)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
