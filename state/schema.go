// Copyright (C) 2019-2025, Lux Industries Inc All rights reserved.
// See the file LICENSE for licensing terms.

package state

import (
	"encoding/binary"

	"github.com/luxfi/geth/rlp"
)

// The key-value layout of a bridge database. Composite keys are the RLP list
// of their parts so that no part can bleed into the next.
var (
	ownerKey = []byte("o")
	sqosKey  = []byte("q")

	destinationPrefix   = []byte("d") // destinationPrefix + rlp(chain, action) -> rlp(Destination)
	permittedPrefix     = []byte("p") // permittedPrefix + rlp(chain, contract, action) -> {1}
	contractRefPrefix   = []byte("c") // contractRefPrefix + name -> address
	addressFormatPrefix = []byte("f") // addressFormatPrefix + chain -> format
	processedPrefix     = []byte("r") // processedPrefix + rlp(chain, sender) + seq (uint64 big endian) -> {1}
	checkpointPrefix    = []byte("k") // checkpointPrefix + route -> next index (uint64 big endian)
	pendingPrefix       = []byte("x") // pendingPrefix + tx id -> rlp(PendingTransfer)
)

var present = []byte{1}

func compositeKey(prefix []byte, parts ...string) []byte {
	enc, err := rlp.EncodeToBytes(parts)
	if err != nil {
		// a list of strings always encodes
		panic(err)
	}
	return append(append([]byte(nil), prefix...), enc...)
}

func splitCompositeKey(prefix, key []byte) ([]string, error) {
	var parts []string
	if err := rlp.DecodeBytes(key[len(prefix):], &parts); err != nil {
		return nil, err
	}
	return parts, nil
}

func destinationKey(chain, action string) []byte {
	return compositeKey(destinationPrefix, chain, action)
}

func permittedKey(chain, contract, action string) []byte {
	return compositeKey(permittedPrefix, chain, contract, action)
}

func contractRefKey(name string) []byte {
	return append(append([]byte(nil), contractRefPrefix...), name...)
}

func addressFormatKey(chain string) []byte {
	return append(append([]byte(nil), addressFormatPrefix...), chain...)
}

func processedKey(chain, sender string, seq uint64) []byte {
	return binary.BigEndian.AppendUint64(compositeKey(processedPrefix, chain, sender), seq)
}

func checkpointKey(route string) []byte {
	return append(append([]byte(nil), checkpointPrefix...), route...)
}

func pendingKey(txID string) []byte {
	return append(append([]byte(nil), pendingPrefix...), txID...)
}

func encodeUint64(v uint64) []byte {
	return binary.BigEndian.AppendUint64(nil, v)
}
