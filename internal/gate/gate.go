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

// Package gate implements the conflict-resolution gate consulted before a
// mutable-mode read: if bookkeeping shows an unresolved failed push for a
// key, the gate replays the write queue before the read proceeds.
package gate

import (
	"context"
	"time"
)

// Bookkeeper records, per key, the timestamp of the most recent failed
// origin push. Absence of a record means "in sync". Grounded on the
// teacher's persistence.Persister contract: a narrow, swappable interface
// the core depends on without knowing its storage.
type Bookkeeper[K comparable] interface {
	GetLastFailedSync(ctx context.Context, key K) (time.Time, bool, error)
	SetLastFailedSync(ctx context.Context, key K, ts time.Time) error
	Clear(ctx context.Context, key K) error
	ClearAll(ctx context.Context) error
}

// Replayer drains a key's write queue by re-driving the updater. It is
// satisfied by writequeue.Driver.Flush.
type Replayer[K comparable] func(ctx context.Context, key K) error

// Gate is the conflict-resolution step run before a mutable-mode read.
type Gate[K comparable] struct {
	bookkeeper Bookkeeper[K]
	replay     Replayer[K]
}

// New creates a Gate over bookkeeper, replaying pending writes via replay.
func New[K comparable](bookkeeper Bookkeeper[K], replay Replayer[K]) *Gate[K] {
	return &Gate[K]{bookkeeper: bookkeeper, replay: replay}
}

// Resolve implements spec.md §4.9: if no failed-sync record exists for
// key, it returns immediately with no conflict. Otherwise it replays the
// write queue; on full success the bookkeeping record is cleared, on
// failure it is kept, with its timestamp moved to the time of the failed
// replay (and the error is returned so the caller can report it, though
// the read proceeds regardless).
func (g *Gate[K]) Resolve(ctx context.Context, key K) error {
	_, present, err := g.bookkeeper.GetLastFailedSync(ctx, key)
	if err != nil {
		return err
	}
	if !present {
		return nil
	}

	if err := g.replay(ctx, key); err != nil {
		if setErr := g.bookkeeper.SetLastFailedSync(ctx, key, time.Now()); setErr != nil {
			return setErr
		}
		return err
	}

	return g.bookkeeper.Clear(ctx, key)
}
