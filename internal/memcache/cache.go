// Copyright 2025 Matt Ramotar. All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package memcache implements the engine's Memory Cache: a bounded,
// optionally TTL'd mapping from key to most recent domain value.
//
// Trade-offs:
//   - sync.RWMutex guarding a map + container/list gives predictable LRU
//     eviction and TTL expiry. sync.Map was considered but it cannot give
//     ordered iteration for LRU without extra bookkeeping.
//   - The cache is advisory: misses never fail, callers fall through to the
//     source of truth or origin.
package memcache

import (
	"container/list"
	"sync"
	"time"
)

type entry[K comparable, V any] struct {
	key       K
	value     V
	expiresAt time.Time
	hasTTL    bool
	elem      *list.Element
}

// Cache is a thread-safe, bounded, LRU-evicting, optionally TTL'd memory
// cache mapping K to V.
type Cache[K comparable, V any] struct {
	mu         sync.RWMutex
	entries    map[K]*entry[K, V]
	lru        *list.List
	maxEntries int
	ttl        time.Duration // 0 disables expiry
}

// New creates a Cache with the given capacity. A maxEntries <= 0 means
// unbounded. A ttl <= 0 disables expiry.
func New[K comparable, V any](maxEntries int, ttl time.Duration) *Cache[K, V] {
	return &Cache[K, V]{
		entries:    make(map[K]*entry[K, V]),
		lru:        list.New(),
		maxEntries: maxEntries,
		ttl:        ttl,
	}
}

// Get returns the cached value for k, if present and unexpired.
func (c *Cache[K, V]) Get(k K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[k]
	if !ok {
		var zero V
		return zero, false
	}

	if e.hasTTL && time.Now().After(e.expiresAt) {
		c.deleteLocked(k)
		var zero V
		return zero, false
	}

	c.lru.MoveToFront(e.elem)
	return e.value, true
}

// Put stores v for k, evicting the least-recently-used entry if the cache
// is at capacity.
func (c *Cache[K, V]) Put(k K, v V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var expiresAt time.Time
	hasTTL := c.ttl > 0
	if hasTTL {
		expiresAt = time.Now().Add(c.ttl)
	}

	if e, ok := c.entries[k]; ok {
		e.value = v
		e.expiresAt = expiresAt
		e.hasTTL = hasTTL
		c.lru.MoveToFront(e.elem)
		return
	}

	if c.maxEntries > 0 && c.lru.Len() >= c.maxEntries {
		c.evictOldestLocked()
	}

	e := &entry[K, V]{key: k, value: v, expiresAt: expiresAt, hasTTL: hasTTL}
	e.elem = c.lru.PushFront(e)
	c.entries[k] = e
}

// Invalidate removes k from the cache. Returns true if k was present.
func (c *Cache[K, V]) Invalidate(k K) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.deleteLocked(k)
}

// InvalidateAll clears the entire cache.
func (c *Cache[K, V]) InvalidateAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[K]*entry[K, V])
	c.lru = list.New()
}

// Len returns the current number of entries.
func (c *Cache[K, V]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

func (c *Cache[K, V]) deleteLocked(k K) bool {
	e, ok := c.entries[k]
	if !ok {
		return false
	}
	c.lru.Remove(e.elem)
	delete(c.entries, k)
	return true
}

func (c *Cache[K, V]) evictOldestLocked() {
	oldest := c.lru.Back()
	if oldest == nil {
		return
	}
	e := oldest.Value.(*entry[K, V])
	c.lru.Remove(oldest)
	delete(c.entries, e.key)
}
