// Copyright (C) 2019-2025, Lux Industries Inc All rights reserved.
// See the file LICENSE for licensing terms.

// Package state persists the bridge tables: owner, destination registry,
// permitted-sender registry, SQoS set and the configuration references. All
// writes of one invocation go through a Tx and reach the database together or
// not at all.
package state

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/holiman/uint256"
	"github.com/luxfi/geth/common"
	"github.com/luxfi/geth/ethdb"
	"github.com/luxfi/geth/ethdb/leveldb"
	"github.com/luxfi/geth/ethdb/memorydb"
	"github.com/luxfi/geth/rlp"

	"github.com/luxfi/locker/owner"
	"github.com/luxfi/locker/sqos"
)

const (
	levelDBCacheMB = 16
	levelDBHandles = 16
)

var ErrTxClosed = errors.New("transaction already closed")

// Reader reads raw keys
type Reader interface {
	Get(key []byte) ([]byte, bool, error)
}

// Writer writes raw keys
type Writer interface {
	Put(key, value []byte) error
	Delete(key []byte) error
}

// ReadWriter is a Reader and a Writer
type ReadWriter interface {
	Reader
	Writer
}

// Store is the committed bridge state
type Store struct {
	db ethdb.KeyValueStore
	// serializes commits against each other
	lock sync.Mutex
}

// New returns a store over db
func New(db ethdb.KeyValueStore) *Store {
	return &Store{db: db}
}

// NewMemory returns a store backed by an in-memory database
func NewMemory() *Store {
	return New(memorydb.New())
}

// OpenLevelDB returns a store persisted in the leveldb directory at path
func OpenLevelDB(path string) (*Store, error) {
	db, err := leveldb.New(path, levelDBCacheMB, levelDBHandles, "locker/db/", false)
	if err != nil {
		return nil, fmt.Errorf("failed to open bridge database at %s: %w", path, err)
	}
	return New(db), nil
}

// Get implements Reader against committed state
func (s *Store) Get(key []byte) ([]byte, bool, error) {
	return get(s.db, key)
}

// Close closes the underlying database
func (s *Store) Close() error {
	return s.db.Close()
}

func get(db ethdb.KeyValueReader, key []byte) ([]byte, bool, error) {
	ok, err := db.Has(key)
	if err != nil || !ok {
		return nil, false, err
	}
	value, err := db.Get(key)
	if err != nil {
		return nil, false, err
	}
	return value, true, nil
}

// Begin opens a transaction. Reads observe committed state overlaid with the
// transaction's own writes.
func (s *Store) Begin() *Tx {
	return &Tx{
		store:   s,
		pending: make(map[string]pendingWrite),
	}
}

// Update runs fn in a transaction and commits it if fn succeeds
func (s *Store) Update(fn func(tx *Tx) error) error {
	tx := s.Begin()
	defer tx.Discard()
	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

type pendingWrite struct {
	value   []byte
	deleted bool
}

// Tx buffers writes until Commit
type Tx struct {
	store   *Store
	pending map[string]pendingWrite
	closed  bool
}

func (t *Tx) Get(key []byte) ([]byte, bool, error) {
	if t.closed {
		return nil, false, ErrTxClosed
	}
	if w, ok := t.pending[string(key)]; ok {
		if w.deleted {
			return nil, false, nil
		}
		return common.CopyBytes(w.value), true, nil
	}
	return get(t.store.db, key)
}

func (t *Tx) Put(key, value []byte) error {
	if t.closed {
		return ErrTxClosed
	}
	t.pending[string(key)] = pendingWrite{value: common.CopyBytes(value)}
	return nil
}

func (t *Tx) Delete(key []byte) error {
	if t.closed {
		return ErrTxClosed
	}
	t.pending[string(key)] = pendingWrite{deleted: true}
	return nil
}

// Dirty reports whether the transaction holds writes
func (t *Tx) Dirty() bool {
	return len(t.pending) > 0
}

// Commit writes all buffered writes in one batch and closes the transaction
func (t *Tx) Commit() error {
	if t.closed {
		return ErrTxClosed
	}
	t.closed = true
	if len(t.pending) == 0 {
		return nil
	}

	keys := make([]string, 0, len(t.pending))
	for k := range t.pending {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	t.store.lock.Lock()
	defer t.store.lock.Unlock()

	batch := t.store.db.NewBatch()
	for _, k := range keys {
		w := t.pending[k]
		var err error
		if w.deleted {
			err = batch.Delete([]byte(k))
		} else {
			err = batch.Put([]byte(k), w.value)
		}
		if err != nil {
			return fmt.Errorf("failed to stage %x: %w", k, err)
		}
	}
	if err := batch.Write(); err != nil {
		return fmt.Errorf("failed to write batch: %w", err)
	}
	t.pending = nil
	return nil
}

// Discard drops buffered writes. It is safe to call after Commit.
func (t *Tx) Discard() {
	t.closed = true
	t.pending = nil
}

// Destination is where an outbound action lands on a remote chain
type Destination struct {
	Contract string
	Action   string
}

// ReadOwner returns the persisted access control. ok is false before the
// owner has ever been written.
func ReadOwner(r Reader) (owner.AccessControl, bool, error) {
	enc, ok, err := r.Get(ownerKey)
	if err != nil || !ok {
		return owner.AccessControl{}, false, err
	}
	var ac owner.AccessControl
	if err := rlp.DecodeBytes(enc, &ac); err != nil {
		return owner.AccessControl{}, false, fmt.Errorf("corrupt owner record: %w", err)
	}
	return ac, true, nil
}

func WriteOwner(w Writer, ac owner.AccessControl) error {
	enc, err := rlp.EncodeToBytes(ac)
	if err != nil {
		return err
	}
	return w.Put(ownerKey, enc)
}

func ReadDestination(r Reader, chain, action string) (Destination, bool, error) {
	enc, ok, err := r.Get(destinationKey(chain, action))
	if err != nil || !ok {
		return Destination{}, false, err
	}
	var d Destination
	if err := rlp.DecodeBytes(enc, &d); err != nil {
		return Destination{}, false, fmt.Errorf("corrupt destination record: %w", err)
	}
	return d, true, nil
}

func WriteDestination(w Writer, chain, action string, d Destination) error {
	enc, err := rlp.EncodeToBytes(&d)
	if err != nil {
		return err
	}
	return w.Put(destinationKey(chain, action), enc)
}

func HasPermitted(r Reader, chain, contract, action string) (bool, error) {
	_, ok, err := r.Get(permittedKey(chain, contract, action))
	return ok, err
}

func WritePermitted(w Writer, chain, contract, action string) error {
	return w.Put(permittedKey(chain, contract, action), present)
}

func DeletePermitted(w Writer, chain, contract, action string) error {
	return w.Delete(permittedKey(chain, contract, action))
}

// ReadSQoS returns the active SQoS set, empty if never written
func ReadSQoS(r Reader) (sqos.Set, error) {
	enc, ok, err := r.Get(sqosKey)
	if err != nil || !ok {
		return nil, err
	}
	var set sqos.Set
	if err := rlp.DecodeBytes(enc, &set); err != nil {
		return nil, fmt.Errorf("corrupt SQoS record: %w", err)
	}
	if len(set) == 0 {
		return nil, nil
	}
	return set, nil
}

func WriteSQoS(w Writer, set sqos.Set) error {
	if set == nil {
		set = sqos.Set{}
	}
	enc, err := rlp.EncodeToBytes(set)
	if err != nil {
		return err
	}
	return w.Put(sqosKey, enc)
}

// ReadContractRef returns a configured collaborator address
func ReadContractRef(r Reader, name string) (common.Address, bool, error) {
	enc, ok, err := r.Get(contractRefKey(name))
	if err != nil || !ok {
		return common.Address{}, false, err
	}
	if len(enc) != common.AddressLength {
		return common.Address{}, false, fmt.Errorf("corrupt %s reference: %d bytes", name, len(enc))
	}
	return common.BytesToAddress(enc), true, nil
}

func WriteContractRef(w Writer, name string, addr common.Address) error {
	return w.Put(contractRefKey(name), addr.Bytes())
}

func ReadAddressFormat(r Reader, chain string) (uint8, bool, error) {
	enc, ok, err := r.Get(addressFormatKey(chain))
	if err != nil || !ok {
		return 0, false, err
	}
	if len(enc) != 1 {
		return 0, false, fmt.Errorf("corrupt address format of %s", chain)
	}
	return enc[0], true, nil
}

func WriteAddressFormat(w Writer, chain string, format uint8) error {
	return w.Put(addressFormatKey(chain), []byte{format})
}

func HasProcessed(r Reader, chain, sender string, seq uint64) (bool, error) {
	_, ok, err := r.Get(processedKey(chain, sender, seq))
	return ok, err
}

func WriteProcessed(w Writer, chain, sender string, seq uint64) error {
	return w.Put(processedKey(chain, sender, seq), present)
}

func DeleteProcessed(w Writer, chain, sender string, seq uint64) error {
	return w.Delete(processedKey(chain, sender, seq))
}

// ReadCheckpoint returns the next index to deliver on a relay route
func ReadCheckpoint(r Reader, route string) (uint64, error) {
	enc, ok, err := r.Get(checkpointKey(route))
	if err != nil || !ok {
		return 0, err
	}
	if len(enc) != 8 {
		return 0, fmt.Errorf("corrupt checkpoint of %s", route)
	}
	return binary.BigEndian.Uint64(enc), nil
}

func WriteCheckpoint(w Writer, route string, next uint64) error {
	return w.Put(checkpointKey(route), encodeUint64(next))
}

// PendingTransfer is a ledger call whose outcome was unknown when the
// invocation that issued it ended. Credit is set for calls that give Amount
// to Account and unset for burns taken from it. Inbound records carry the
// message provenance, outbound records the destination chain.
type PendingTransfer struct {
	TxID    string
	Credit  bool
	Account common.Address
	Amount  *uint256.Int

	FromChain string
	Sender    string
	Sequence  uint64
	ToChain   string
}

func ReadPending(r Reader, txID string) (PendingTransfer, bool, error) {
	enc, ok, err := r.Get(pendingKey(txID))
	if err != nil || !ok {
		return PendingTransfer{}, false, err
	}
	var p PendingTransfer
	if err := rlp.DecodeBytes(enc, &p); err != nil {
		return PendingTransfer{}, false, fmt.Errorf("corrupt pending record: %w", err)
	}
	return p, true, nil
}

func WritePending(w Writer, p PendingTransfer) error {
	if p.TxID == "" {
		return errors.New("pending record without tx id")
	}
	enc, err := rlp.EncodeToBytes(&p)
	if err != nil {
		return err
	}
	return w.Put(pendingKey(p.TxID), enc)
}

func DeletePending(w Writer, txID string) error {
	return w.Delete(pendingKey(txID))
}

// Pending lists the committed pending ledger calls
func (s *Store) Pending() ([]PendingTransfer, error) {
	it := s.db.NewIterator(pendingPrefix, nil)
	defer it.Release()

	var out []PendingTransfer
	for it.Next() {
		var p PendingTransfer
		if err := rlp.DecodeBytes(it.Value(), &p); err != nil {
			return nil, fmt.Errorf("corrupt pending record %x: %w", it.Key(), err)
		}
		out = append(out, p)
	}
	return out, it.Error()
}

// DestinationEntry is one row of the destination registry
type DestinationEntry struct {
	Chain       string
	Action      string
	Destination Destination
}

// Destinations lists the committed destination registry
func (s *Store) Destinations() ([]DestinationEntry, error) {
	it := s.db.NewIterator(destinationPrefix, nil)
	defer it.Release()

	var out []DestinationEntry
	for it.Next() {
		parts, err := splitCompositeKey(destinationPrefix, it.Key())
		if err != nil || len(parts) != 2 {
			return nil, fmt.Errorf("corrupt destination key %x", it.Key())
		}
		var d Destination
		if err := rlp.DecodeBytes(it.Value(), &d); err != nil {
			return nil, fmt.Errorf("corrupt destination record: %w", err)
		}
		out = append(out, DestinationEntry{Chain: parts[0], Action: parts[1], Destination: d})
	}
	return out, it.Error()
}

// PermittedEntry is one row of the permitted-sender registry
type PermittedEntry struct {
	Chain    string
	Contract string
	Action   string
}

// PermittedSenders lists the committed permitted-sender registry
func (s *Store) PermittedSenders() ([]PermittedEntry, error) {
	it := s.db.NewIterator(permittedPrefix, nil)
	defer it.Release()

	var out []PermittedEntry
	for it.Next() {
		if !bytes.Equal(it.Value(), present) {
			continue
		}
		parts, err := splitCompositeKey(permittedPrefix, it.Key())
		if err != nil || len(parts) != 3 {
			return nil, fmt.Errorf("corrupt permitted key %x", it.Key())
		}
		out = append(out, PermittedEntry{Chain: parts[0], Contract: parts[1], Action: parts[2]})
	}
	return out, it.Error()
}
