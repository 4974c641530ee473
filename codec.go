// Copyright (C) 2019-2025, Lux Partners Limited. All rights reserved.
// See the file LICENSE for licensing terms.

package locker

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/luxfi/geth/rlp"
)

const versionLen = 2

var (
	ErrUnknownCodecVersion = errors.New("unknown codec version")
	errShortEncoding       = errors.New("encoding shorter than its version prefix")
)

// CodecImpl encodes bridge messages as a big endian uint16 version followed
// by the RLP encoding of the value
type CodecImpl struct{}

// Codec is the default codec instance
var Codec = &CodecImpl{}

// Marshal encodes v under version. Only CodecVersion is understood.
func (c *CodecImpl) Marshal(version uint16, v interface{}) ([]byte, error) {
	if version != CodecVersion {
		return nil, fmt.Errorf("%w: %d", ErrUnknownCodecVersion, version)
	}
	body, err := rlp.EncodeToBytes(v)
	if err != nil {
		return nil, err
	}
	b := make([]byte, versionLen, versionLen+len(body))
	binary.BigEndian.PutUint16(b, version)
	return append(b, body...), nil
}

// Unmarshal decodes b into v and returns the version it was encoded with
func (c *CodecImpl) Unmarshal(b []byte, v interface{}) (uint16, error) {
	if len(b) < versionLen {
		return 0, errShortEncoding
	}
	version := binary.BigEndian.Uint16(b)
	if version != CodecVersion {
		return version, fmt.Errorf("%w: %d", ErrUnknownCodecVersion, version)
	}
	return version, rlp.DecodeBytes(b[versionLen:], v)
}
