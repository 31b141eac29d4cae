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

package sourceoftruth

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"
)

// Postgres schema (reference):
//
// CREATE TABLE IF NOT EXISTS store_entries (
//   entry_key   TEXT PRIMARY KEY,
//   payload     TEXT NOT NULL,
//   updated_at  TIMESTAMPTZ NOT NULL DEFAULT now()
// );

// Codec turns an engine key K into the TEXT primary key stored in Postgres,
// and decodes/encodes the local representation L to/from TEXT.
type Codec[K comparable, L any] interface {
	EncodeKey(k K) string
	EncodeValue(l L) (string, error)
	DecodeValue(s string) (L, error)
}

// Postgres is a durable Adapter backed by a single table, keyed by a
// caller-supplied Codec. It follows the teacher's pattern of a single
// upsert per write and a row-per-key schema; unlike the teacher's
// commit-log table (append-only, idempotent via commit_id), a source of
// truth holds latest-value-per-key, so a plain upsert suffices here — no
// per-write idempotency token is needed because this adapter has no retry
// path of its own (the write queue above it handles retries).
type Postgres[K comparable, L any] struct {
	db             *sql.DB
	codec          Codec[K, L]
	defaultTimeout time.Duration

	mu       sync.Mutex
	watchers map[string][]chan L
}

// NewPostgres creates a Postgres-backed adapter over db using table
// "store_entries" with columns (entry_key, payload, updated_at).
func NewPostgres[K comparable, L any](db *sql.DB, codec Codec[K, L]) *Postgres[K, L] {
	return &Postgres[K, L]{
		db:             db,
		codec:          codec,
		defaultTimeout: 10 * time.Second,
		watchers:       make(map[string][]chan L),
	}
}

func (p *Postgres[K, L]) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok || p.defaultTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, p.defaultTimeout)
}

// Reader emits the current row for key (if any), then one emission per
// subsequent Write/Delete observed through this process, until ctx is
// canceled. Cross-process writes are not observed; callers needing that
// should poll or layer LISTEN/NOTIFY on top.
func (p *Postgres[K, L]) Reader(ctx context.Context, key K) (<-chan L, error) {
	encKey := p.codec.EncodeKey(key)
	out := make(chan L, 4)

	qctx, cancel := p.withTimeout(ctx)
	defer cancel()

	var payload string
	err := p.db.QueryRowContext(qctx, `SELECT payload FROM store_entries WHERE entry_key = $1`, encKey).Scan(&payload)
	switch {
	case err == sql.ErrNoRows:
		// no current value; still register the watcher below
	case err != nil:
		return nil, fmt.Errorf("select store_entries(%s): %w", encKey, err)
	default:
		v, decErr := p.codec.DecodeValue(payload)
		if decErr != nil {
			return nil, fmt.Errorf("decode store_entries(%s): %w", encKey, decErr)
		}
		out <- v
	}

	p.mu.Lock()
	p.watchers[encKey] = append(p.watchers[encKey], out)
	p.mu.Unlock()

	go func() {
		<-ctx.Done()
		p.mu.Lock()
		p.removeWatcherLocked(encKey, out)
		p.mu.Unlock()
		close(out)
	}()

	return out, nil
}

// Write upserts value for key.
func (p *Postgres[K, L]) Write(ctx context.Context, key K, value L) error {
	encKey := p.codec.EncodeKey(key)
	payload, err := p.codec.EncodeValue(value)
	if err != nil {
		return fmt.Errorf("encode store_entries(%s): %w", encKey, err)
	}

	qctx, cancel := p.withTimeout(ctx)
	defer cancel()

	_, err = p.db.ExecContext(qctx, `
		INSERT INTO store_entries (entry_key, payload, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (entry_key) DO UPDATE SET payload = EXCLUDED.payload, updated_at = now()
	`, encKey, payload)
	if err != nil {
		return fmt.Errorf("upsert store_entries(%s): %w", encKey, err)
	}

	p.notify(encKey, value)
	return nil
}

// Delete removes key's row.
func (p *Postgres[K, L]) Delete(ctx context.Context, key K) error {
	encKey := p.codec.EncodeKey(key)

	qctx, cancel := p.withTimeout(ctx)
	defer cancel()

	if _, err := p.db.ExecContext(qctx, `DELETE FROM store_entries WHERE entry_key = $1`, encKey); err != nil {
		return fmt.Errorf("delete store_entries(%s): %w", encKey, err)
	}

	var zero L
	p.notify(encKey, zero)
	return nil
}

// DeleteAll truncates the table and notifies every open reader with the
// zero value of L.
func (p *Postgres[K, L]) DeleteAll(ctx context.Context) error {
	qctx, cancel := p.withTimeout(ctx)
	defer cancel()

	if _, err := p.db.ExecContext(qctx, `DELETE FROM store_entries`); err != nil {
		return fmt.Errorf("delete all store_entries: %w", err)
	}

	var zero L
	p.mu.Lock()
	keys := make([]string, 0, len(p.watchers))
	for k := range p.watchers {
		keys = append(keys, k)
	}
	p.mu.Unlock()
	for _, k := range keys {
		p.notify(k, zero)
	}
	return nil
}

func (p *Postgres[K, L]) notify(encKey string, value L) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, w := range p.watchers[encKey] {
		select {
		case w <- value:
		default:
		}
	}
}

func (p *Postgres[K, L]) removeWatcherLocked(encKey string, target chan L) {
	watchers := p.watchers[encKey]
	for i, w := range watchers {
		if w == target {
			p.watchers[encKey] = append(watchers[:i], watchers[i+1:]...)
			return
		}
	}
}
