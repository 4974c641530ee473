// Copyright (C) 2025, Lux Industries Inc All rights reserved.
// See the file LICENSE for licensing terms.

package cache

import (
	"fmt"
	"sync"

	"golang.org/x/sync/singleflight"
)

// FetchFunc computes the value of a missing key
type FetchFunc[K comparable, V any] func(key K) (V, error)

// FIFO is a bounded cache that evicts the oldest inserted key first.
// Concurrent misses on the same key run fetch once.
type FIFO[K comparable, V any] struct {
	lock    sync.RWMutex
	data    map[K]V
	ring    []K
	next    int
	full    bool
	sfGroup singleflight.Group
}

// NewFIFO returns a cache holding at most capacity keys
func NewFIFO[K comparable, V any](capacity int) *FIFO[K, V] {
	if capacity < 1 {
		capacity = 1
	}
	return &FIFO[K, V]{
		data: make(map[K]V, capacity),
		ring: make([]K, capacity),
	}
}

// Get returns the cached value of key or fetches and caches it. Failed
// fetches are not cached.
func (c *FIFO[K, V]) Get(key K, fetch FetchFunc[K, V]) (V, error) {
	if v, ok := c.Peek(key); ok {
		return v, nil
	}

	v, err, _ := c.sfGroup.Do(keyToString(key), func() (interface{}, error) {
		if v, ok := c.Peek(key); ok {
			return v, nil
		}
		v, err := fetch(key)
		if err != nil {
			return nil, err
		}
		c.Put(key, v)
		return v, nil
	})
	if err != nil {
		return *new(V), err
	}
	return v.(V), nil
}

// Peek returns the cached value without fetching
func (c *FIFO[K, V]) Peek(key K) (V, bool) {
	c.lock.RLock()
	defer c.lock.RUnlock()

	v, ok := c.data[key]
	return v, ok
}

// Put inserts or overwrites key. Overwriting keeps the key's position.
func (c *FIFO[K, V]) Put(key K, val V) {
	c.lock.Lock()
	defer c.lock.Unlock()

	if _, ok := c.data[key]; ok {
		c.data[key] = val
		return
	}
	if c.full {
		delete(c.data, c.ring[c.next])
	}
	c.ring[c.next] = key
	c.data[key] = val
	c.next = (c.next + 1) % len(c.ring)
	if c.next == 0 {
		c.full = true
	}
}

func (c *FIFO[K, V]) Len() int {
	c.lock.RLock()
	defer c.lock.RUnlock()

	return len(c.data)
}

func keyToString[K comparable](key K) string {
	if s, ok := any(key).(fmt.Stringer); ok {
		return s.String()
	}
	return fmt.Sprintf("%v", key)
}
