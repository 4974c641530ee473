// Copyright (C) 2019-2025, Lux Industries Inc All rights reserved.
// See the file LICENSE for licensing terms.

package checkpoint

import (
	"container/heap"
	"fmt"
	"sync"

	"github.com/luxfi/log"

	"github.com/luxfi/locker/state"
)

//
// Manager commits relayed envelope indexes to the bridge database in a thread safe manner.
//

type Manager struct {
	logger  log.Logger
	store   *state.Store
	route   string
	lock    sync.Mutex
	next    uint64
	pending *indexHeap
	// Set when next moved past the persisted value
	dirty bool
}

func NewManager(
	logger log.Logger,
	store *state.Store,
	route string,
	startingIndex uint64,
) (*Manager, error) {
	h := &indexHeap{}
	heap.Init(h)

	stored, err := state.ReadCheckpoint(store, route)
	if err != nil {
		logger.Error(
			"Failed to read checkpoint",
			log.String("route", route),
			log.Err(err),
		)
		return nil, fmt.Errorf("failed to read the checkpoint of %s: %w", route, err)
	}
	next := max(stored, startingIndex)
	logger.Info(
		"Creating checkpoint manager",
		log.String("route", route),
		log.Uint64("next", next),
	)

	return &Manager{
		logger:  logger,
		store:   store,
		route:   route,
		next:    next,
		pending: h,
		dirty:   next != stored,
	}, nil
}

// Next returns the first index that has not been committed
func (m *Manager) Next() uint64 {
	m.lock.Lock()
	defer m.lock.Unlock()

	return m.next
}

// Stage marks index as handled. Indexes are committed in sequence, so an
// index past the committed one is held in memory until the gap is filled.
func (m *Manager) Stage(index uint64) {
	m.lock.Lock()
	defer m.lock.Unlock()

	if index < m.next {
		m.logger.Debug(
			"Attempting to stage an index that is already committed. Skipping.",
			log.Uint64("index", index),
			log.Uint64("next", m.next),
			log.String("route", m.route),
		)
		return
	}

	heap.Push(m.pending, index)
	for m.pending.Len() > 0 {
		lowest := m.pending.Peek()
		if lowest > m.next {
			break
		}
		heap.Pop(m.pending)
		if lowest == m.next {
			m.next++
			m.dirty = true
		}
	}
}

// Flush persists the committed index if it changed
func (m *Manager) Flush() error {
	m.lock.Lock()
	defer m.lock.Unlock()

	if !m.dirty {
		return nil
	}
	err := m.store.Update(func(tx *state.Tx) error {
		return state.WriteCheckpoint(tx, m.route, m.next)
	})
	if err != nil {
		m.logger.Error(
			"Failed to write checkpoint",
			log.String("route", m.route),
			log.Uint64("next", m.next),
			log.Err(err),
		)
		return err
	}
	m.dirty = false
	return nil
}

type indexHeap []uint64

func (h indexHeap) Len() int           { return len(h) }
func (h indexHeap) Less(i, j int) bool { return h[i] < h[j] }
func (h indexHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }

func (h *indexHeap) Push(x any) {
	*h = append(*h, x.(uint64))
}

func (h *indexHeap) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}

func (h indexHeap) Peek() uint64 {
	return h[0]
}
