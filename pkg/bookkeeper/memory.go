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

// Package bookkeeper provides ready-to-use internal/gate.Bookkeeper
// implementations: an in-process map, a Postgres table, and one Redis
// string key per engine key.
// Each stores, per key, the timestamp of the most recent failed origin
// push; absence means "in sync" (spec.md §4.1/§4.9).
package bookkeeper

import (
	"context"
	"sync"
	"time"
)

// Memory is an in-process Bookkeeper. Cross-session reconciliation is
// lost on restart, which spec.md explicitly permits for volatile
// implementations.
type Memory[K comparable] struct {
	mu      sync.Mutex
	records map[K]time.Time
}

// NewMemory creates an empty in-memory bookkeeper.
func NewMemory[K comparable]() *Memory[K] {
	return &Memory[K]{records: make(map[K]time.Time)}
}

func (m *Memory[K]) GetLastFailedSync(ctx context.Context, key K) (time.Time, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ts, ok := m.records[key]
	return ts, ok, nil
}

func (m *Memory[K]) SetLastFailedSync(ctx context.Context, key K, ts time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[key] = ts
	return nil
}

func (m *Memory[K]) Clear(ctx context.Context, key K) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.records, key)
	return nil
}

func (m *Memory[K]) ClearAll(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = make(map[K]time.Time)
	return nil
}
