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

package gate

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

type memBookkeeper struct {
	mu      sync.Mutex
	records map[string]time.Time
}

func newMemBookkeeper() *memBookkeeper {
	return &memBookkeeper{records: make(map[string]time.Time)}
}

func (b *memBookkeeper) GetLastFailedSync(ctx context.Context, key string) (time.Time, bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	ts, ok := b.records[key]
	return ts, ok, nil
}

func (b *memBookkeeper) SetLastFailedSync(ctx context.Context, key string, ts time.Time) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.records[key] = ts
	return nil
}

func (b *memBookkeeper) Clear(ctx context.Context, key string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.records, key)
	return nil
}

func (b *memBookkeeper) ClearAll(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.records = make(map[string]time.Time)
	return nil
}

func TestGate_NoRecordMeansNoConflict(t *testing.T) {
	bk := newMemBookkeeper()
	replayCalled := false
	g := New[string](bk, func(ctx context.Context, key string) error {
		replayCalled = true
		return nil
	})

	if err := g.Resolve(context.Background(), "k"); err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if replayCalled {
		t.Fatalf("expected replay not to be invoked when no record is present")
	}
}

func TestGate_SuccessfulReplayClearsRecord(t *testing.T) {
	bk := newMemBookkeeper()
	_ = bk.SetLastFailedSync(context.Background(), "k", time.Now())

	g := New[string](bk, func(ctx context.Context, key string) error {
		return nil
	})

	if err := g.Resolve(context.Background(), "k"); err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if _, ok, _ := bk.GetLastFailedSync(context.Background(), "k"); ok {
		t.Fatalf("expected bookkeeping record cleared after successful replay")
	}
}

func TestGate_FailedReplayLeavesRecordAndReturnsError(t *testing.T) {
	bk := newMemBookkeeper()
	_ = bk.SetLastFailedSync(context.Background(), "k", time.Now())

	wantErr := errors.New("updater down")
	g := New[string](bk, func(ctx context.Context, key string) error {
		return wantErr
	})

	if err := g.Resolve(context.Background(), "k"); !errors.Is(err, wantErr) {
		t.Fatalf("expected Resolve to surface replay error, got %v", err)
	}
	if _, ok, _ := bk.GetLastFailedSync(context.Background(), "k"); !ok {
		t.Fatalf("expected bookkeeping record to persist after failed replay")
	}
}
