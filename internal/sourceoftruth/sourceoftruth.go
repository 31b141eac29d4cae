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

// Package sourceoftruth defines the local durable-store contract and the
// read/write barrier that serializes it against the write queue.
package sourceoftruth

import (
	"context"
	"time"

	"github.com/matt-ramotar/store/internal/keyspace"
)

// writeWaitPoll bounds how long the relay goroutine sleeps between checks
// of whether an in-flight write for a key has completed.
const writeWaitPoll = time.Millisecond

// Adapter is the local durable store a Store engine persists into: a
// database, a file, or an in-memory map. K is the engine's key type, L is
// the local representation produced by a Converter.
type Adapter[K comparable, L any] interface {
	// Reader streams the current value for key, then one update per
	// subsequent write, until ctx is canceled. Implementations that cannot
	// stream may emit a single value and block until ctx.Done().
	Reader(ctx context.Context, key K) (<-chan L, error)
	// Write persists value for key.
	Write(ctx context.Context, key K, value L) error
	// Delete removes key's persisted value, if any.
	Delete(ctx context.Context, key K) error
	// DeleteAll removes every persisted value.
	DeleteAll(ctx context.Context) error
}

// Barrier wraps an Adapter with the per-key read/write serialization
// described in spec.md §3: a read in flight observes a consistent
// snapshot, and a concurrent write blocks new reads from starting until it
// completes, then those reads see the new value. Grounded on the teacher's
// managedVSA pattern of guarding mutable per-key state behind lightweight
// synchronization rather than a single global lock.
type Barrier[K comparable, L any] struct {
	adapter Adapter[K, L]
	blocks  *keyspace.Registry[K]
}

// NewBarrier wraps adapter with per-key read/write coordination driven by
// the shared registry (also used by the write queue for the same keys).
func NewBarrier[K comparable, L any](adapter Adapter[K, L], blocks *keyspace.Registry[K]) *Barrier[K, L] {
	return &Barrier[K, L]{adapter: adapter, blocks: blocks}
}

// Read opens a stream for key. Per spec.md §4.3, a value the adapter
// produces while a write for key is in flight is suppressed rather than
// handed to the caller: it may reflect a state the write is about to
// supersede. Once the write completes, Read re-subscribes to obtain the
// authoritative post-write value and resumes relaying from there. Values
// observed while no write is in progress pass straight through.
func (b *Barrier[K, L]) Read(ctx context.Context, key K) (<-chan L, error) {
	block := b.blocks.GetOrCreate(key)
	block.SOTLock.RLock()
	raw, err := b.adapter.Reader(ctx, key)
	block.SOTLock.RUnlock()
	if err != nil {
		return nil, err
	}

	out := make(chan L, 4)
	go b.relay(ctx, key, block, raw, out)
	return out, nil
}

// relay forwards values from raw to out, suppressing and replaying any
// value that races a concurrent write for key.
func (b *Barrier[K, L]) relay(ctx context.Context, key K, block *keyspace.Block, raw <-chan L, out chan<- L) {
	defer close(out)

	for {
		select {
		case <-ctx.Done():
			return
		case v, ok := <-raw:
			if !ok {
				return
			}

			if !block.WriteInProgress() {
				select {
				case out <- v:
				case <-ctx.Done():
					return
				}
				continue
			}

			if !b.waitForWrite(ctx, block) {
				return
			}

			fresh, err := b.adapter.Reader(ctx, key)
			if err != nil {
				return
			}
			raw = fresh
		}
	}
}

// waitForWrite blocks until no write is in progress for block or ctx is
// canceled, polling rather than taking SOTLock.RLock directly so ctx
// cancellation is honored even if the write never completes.
func (b *Barrier[K, L]) waitForWrite(ctx context.Context, block *keyspace.Block) bool {
	for block.WriteInProgress() {
		select {
		case <-ctx.Done():
			return false
		case <-time.After(writeWaitPoll):
		}
	}
	return true
}

// Write persists value for key under the key's exclusive write lock,
// then advances the key's version so later reads know the value has
// changed.
func (b *Barrier[K, L]) Write(ctx context.Context, key K, value L) error {
	block := b.blocks.GetOrCreate(key)
	block.SOTLock.Lock()
	defer block.SOTLock.Unlock()

	if err := b.adapter.Write(ctx, key, value); err != nil {
		return err
	}
	block.BumpVersion()
	return nil
}

// Delete removes key's persisted value under the key's exclusive write
// lock and advances its version.
func (b *Barrier[K, L]) Delete(ctx context.Context, key K) error {
	block := b.blocks.GetOrCreate(key)
	block.SOTLock.Lock()
	defer block.SOTLock.Unlock()

	if err := b.adapter.Delete(ctx, key); err != nil {
		return err
	}
	block.BumpVersion()
	return nil
}

// DeleteAll removes every persisted value. It does not hold any per-key
// lock: spec.md's ClearAll allows in-flight fetches to repopulate entries
// concurrently with the clear.
func (b *Barrier[K, L]) DeleteAll(ctx context.Context) error {
	return b.adapter.DeleteAll(ctx)
}
