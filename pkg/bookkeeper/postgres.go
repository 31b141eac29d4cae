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

package bookkeeper

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Postgres schema (reference), matching the teacher's one-table-per-concern
// convention:
//
// CREATE TABLE IF NOT EXISTS failed_syncs (
//   entry_key    TEXT PRIMARY KEY,
//   failed_at    TIMESTAMPTZ NOT NULL
// );

// KeyEncoder turns an engine key K into the TEXT primary key used by the
// failed_syncs table.
type KeyEncoder[K comparable] func(k K) string

// Postgres is a durable Bookkeeper backed by a single table of
// {key, timestamp} rows, as spec.md §6.2 recommends.
type Postgres[K comparable] struct {
	db             *sql.DB
	encode         KeyEncoder[K]
	defaultTimeout time.Duration
}

// NewPostgres creates a Postgres-backed bookkeeper over table
// "failed_syncs" with columns (entry_key, failed_at).
func NewPostgres[K comparable](db *sql.DB, encode KeyEncoder[K]) *Postgres[K] {
	return &Postgres[K]{db: db, encode: encode, defaultTimeout: 10 * time.Second}
}

func (p *Postgres[K]) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok || p.defaultTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, p.defaultTimeout)
}

func (p *Postgres[K]) GetLastFailedSync(ctx context.Context, key K) (time.Time, bool, error) {
	qctx, cancel := p.withTimeout(ctx)
	defer cancel()

	var ts time.Time
	err := p.db.QueryRowContext(qctx, `SELECT failed_at FROM failed_syncs WHERE entry_key = $1`, p.encode(key)).Scan(&ts)
	switch {
	case err == sql.ErrNoRows:
		return time.Time{}, false, nil
	case err != nil:
		return time.Time{}, false, fmt.Errorf("select failed_syncs(%s): %w", p.encode(key), err)
	default:
		return ts, true, nil
	}
}

// SetLastFailedSync upserts the failed-sync timestamp for key. Idempotent
// like the teacher's commit tables: repeating the same (key, ts) pair, or
// overwriting with a later one, both leave the table in the same state a
// single successful write would have.
func (p *Postgres[K]) SetLastFailedSync(ctx context.Context, key K, ts time.Time) error {
	qctx, cancel := p.withTimeout(ctx)
	defer cancel()

	_, err := p.db.ExecContext(qctx, `
		INSERT INTO failed_syncs (entry_key, failed_at)
		VALUES ($1, $2)
		ON CONFLICT (entry_key) DO UPDATE SET failed_at = EXCLUDED.failed_at
	`, p.encode(key), ts)
	if err != nil {
		return fmt.Errorf("upsert failed_syncs(%s): %w", p.encode(key), err)
	}
	return nil
}

func (p *Postgres[K]) Clear(ctx context.Context, key K) error {
	qctx, cancel := p.withTimeout(ctx)
	defer cancel()

	if _, err := p.db.ExecContext(qctx, `DELETE FROM failed_syncs WHERE entry_key = $1`, p.encode(key)); err != nil {
		return fmt.Errorf("delete failed_syncs(%s): %w", p.encode(key), err)
	}
	return nil
}

func (p *Postgres[K]) ClearAll(ctx context.Context) error {
	qctx, cancel := p.withTimeout(ctx)
	defer cancel()

	if _, err := p.db.ExecContext(qctx, `DELETE FROM failed_syncs`); err != nil {
		return fmt.Errorf("delete all failed_syncs: %w", err)
	}
	return nil
}
