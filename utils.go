// Copyright (C) 2019-2025, Lux Partners Limited. All rights reserved.
// See the file LICENSE for licensing terms.

package locker

import (
	"crypto/sha256"

	"github.com/luxfi/ids"
)

// Constants
const (
	// KiB is 1024 bytes
	KiB = 1024

	// MaxMessageSize bounds the encoded size of one request message
	MaxMessageSize = 64 * KiB

	// CodecVersion is the version of the message encoding
	CodecVersion uint16 = 0
)

// ComputeHash256Array computes SHA256 hash as an ID
func ComputeHash256Array(data []byte) ids.ID {
	return ids.ID(sha256.Sum256(data))
}
