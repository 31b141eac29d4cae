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

// Package keyspace manages the per-key coordination blocks described in
// spec.md §3/§5: for each key, a read/write barrier lock, a write-queue
// mutex, and a monotonic version counter. Blocks are created lazily on
// first reference and never removed while the engine is alive, avoiding a
// race between "look up the block" and "another goroutine destroys it".
package keyspace

import (
	"sync"
	"sync/atomic"
)

// Block is the per-key coordination state. Zero value is not usable;
// construct via Registry.GetOrCreate.
type Block struct {
	// SOTLock serializes source-of-truth reads against concurrent writes
	// for this key (the barrier in internal/sourceoftruth).
	SOTLock sync.RWMutex
	// WriteQueueLock serializes drains of this key's write queue.
	WriteQueueLock sync.Mutex
	// version is bumped on every successful source-of-truth write.
	version atomic.Uint64
}

// Version returns the current write version for this key.
func (b *Block) Version() uint64 { return b.version.Load() }

// WriteInProgress reports whether a writer currently holds SOTLock for
// exclusive access. It never blocks: a failed TryRLock means a writer holds
// the lock, so the probe itself is released immediately on success.
func (b *Block) WriteInProgress() bool {
	if b.SOTLock.TryRLock() {
		b.SOTLock.RUnlock()
		return false
	}
	return true
}

// BumpVersion atomically advances the version and returns the new value.
func (b *Block) BumpVersion() uint64 { return b.version.Add(1) }

// Registry is a concurrent map from key to coordination Block. Insertion
// goes through sync.Map's atomic LoadOrStore, so concurrent first
// references to a key agree on one Block; reads of an already-published
// Block proceed lock-free via sync.Map's fast path, mirroring the teacher's
// Store.GetOrCreate two-phase lookup (plain Load, then LoadOrStore on miss).
type Registry[K comparable] struct {
	blocks sync.Map // K -> *Block
}

// NewRegistry creates an empty coordination-block registry.
func NewRegistry[K comparable]() *Registry[K] {
	return &Registry[K]{}
}

// GetOrCreate returns the Block for k, creating it on first reference.
func (r *Registry[K]) GetOrCreate(k K) *Block {
	if v, ok := r.blocks.Load(k); ok {
		return v.(*Block)
	}
	b := &Block{}
	actual, _ := r.blocks.LoadOrStore(k, b)
	return actual.(*Block)
}

// Len reports the number of keys with a coordination block. Intended for
// tests and telemetry, not the hot path.
func (r *Registry[K]) Len() int {
	n := 0
	r.blocks.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}
