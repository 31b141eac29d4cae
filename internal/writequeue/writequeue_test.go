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

package writequeue

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/matt-ramotar/store/internal/keyspace"
)

type recordingUpdater struct {
	mu    sync.Mutex
	posts []string
	fail  map[string]bool
}

func (u *recordingUpdater) Post(ctx context.Context, key string, value string) (string, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.fail[value] {
		return "", errors.New("boom")
	}
	u.posts = append(u.posts, value)
	return value, nil
}

func TestQueue_PushDoesNotDiscardUndrainedOlderEntry(t *testing.T) {
	q := NewQueue[string, string]()
	q.Push("k", "v1")
	q.Push("k", "v2")

	e, ok := q.Pending("k")
	if !ok || e.Value != "v1" {
		t.Fatalf("expected oldest entry v1 still queued, got %+v ok=%v", e, ok)
	}
}

func TestDriver_DriveSettlesOlderEntriesOnSuccess(t *testing.T) {
	u := &recordingUpdater{fail: map[string]bool{}}
	q := NewQueue[string, string]()
	d := NewDriver[string, string, string](q, keyspace.NewRegistry[string](), u)

	d.Enqueue("k", "v1")
	e2 := d.Enqueue("k", "v2")

	if err := d.Drive(context.Background(), "k", e2); err != nil {
		t.Fatalf("Drive: %v", err)
	}
	if len(u.posts) != 1 || u.posts[0] != "v2" {
		t.Fatalf("expected exactly one post of v2, got %v", u.posts)
	}

	if _, ok := q.Pending("k"); ok {
		t.Fatalf("expected v1 superseded and removed once v2 was successfully driven")
	}
}

func TestDriver_DriveFailureLeavesQueueUntouched(t *testing.T) {
	u := &recordingUpdater{fail: map[string]bool{"v1": true}}
	q := NewQueue[string, string]()
	d := NewDriver[string, string, string](q, keyspace.NewRegistry[string](), u)

	e1 := d.Enqueue("k", "v1")
	if err := d.Drive(context.Background(), "k", e1); err == nil {
		t.Fatalf("expected Drive to surface updater error")
	}

	e, ok := q.Pending("k")
	if !ok || e.Value != "v1" || e.ID != e1.ID {
		t.Fatalf("expected v1 to remain queued untouched after a failed Drive, got %+v ok=%v", e, ok)
	}
}

func TestDriver_FailureDoesNotClobberOlderUndrainedWrite(t *testing.T) {
	u := &recordingUpdater{fail: map[string]bool{"v2": true}}
	q := NewQueue[string, string]()
	d := NewDriver[string, string, string](q, keyspace.NewRegistry[string](), u)

	d.Enqueue("k", "v1")
	e2 := d.Enqueue("k", "v2")

	if err := d.Drive(context.Background(), "k", e2); err == nil {
		t.Fatalf("expected Drive to surface updater error for v2")
	}

	// v1 must not have been dropped: v2 was never pushed successfully, so
	// nothing is superseded yet. If the origin never recovers, v1 must
	// still be retriable.
	e, ok := q.Pending("k")
	if !ok || e.Value != "v1" {
		t.Fatalf("expected v1 to survive v2's failed drive, got %+v ok=%v", e, ok)
	}
}

func TestDriver_FlushDrainsQueueInOrderSettlingAsItGoes(t *testing.T) {
	u := &recordingUpdater{fail: map[string]bool{}}
	q := NewQueue[string, string]()
	d := NewDriver[string, string, string](q, keyspace.NewRegistry[string](), u)

	d.Enqueue("k", "v1")
	d.Enqueue("k", "v2")

	if err := d.Flush(context.Background(), "k"); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	if len(u.posts) != 2 || u.posts[0] != "v1" || u.posts[1] != "v2" {
		t.Fatalf("expected v1 then v2 posted in FIFO order, got %v", u.posts)
	}
	if _, ok := q.Pending("k"); ok {
		t.Fatalf("expected queue drained after Flush")
	}
}

func TestDriver_FlushRetriesAfterFailure(t *testing.T) {
	u := &recordingUpdater{fail: map[string]bool{"v1": true}}
	q := NewQueue[string, string]()
	d := NewDriver[string, string, string](q, keyspace.NewRegistry[string](), u)

	d.Enqueue("k", "v1")
	if err := d.Flush(context.Background(), "k"); err == nil {
		t.Fatalf("expected Flush to surface updater error")
	}

	e, ok := q.Pending("k")
	if !ok || e.Value != "v1" {
		t.Fatalf("expected failed entry left queued, got %+v ok=%v", e, ok)
	}

	u.fail["v1"] = false
	if err := d.Flush(context.Background(), "k"); err != nil {
		t.Fatalf("expected retry to succeed, got %v", err)
	}
	if len(u.posts) != 1 || u.posts[0] != "v1" {
		t.Fatalf("expected v1 posted once on retry, got %v", u.posts)
	}
}

func TestDriver_FlushStopsOnFirstFailureLeavingLaterEntriesQueued(t *testing.T) {
	u := &recordingUpdater{fail: map[string]bool{"v1": true}}
	q := NewQueue[string, string]()
	d := NewDriver[string, string, string](q, keyspace.NewRegistry[string](), u)

	d.Enqueue("k", "v1")
	d.Enqueue("k", "v2")

	if err := d.Flush(context.Background(), "k"); err == nil {
		t.Fatalf("expected Flush to stop and surface v1's error")
	}
	if len(u.posts) != 0 {
		t.Fatalf("expected v2 never posted while v1 is still unsettled, got %v", u.posts)
	}

	u.fail["v1"] = false
	if err := d.Flush(context.Background(), "k"); err != nil {
		t.Fatalf("expected retry to drain both entries, got %v", err)
	}
	if len(u.posts) != 2 || u.posts[0] != "v1" || u.posts[1] != "v2" {
		t.Fatalf("expected v1 then v2 posted in order, got %v", u.posts)
	}
}

func TestDriver_EmptyQueueFlushIsNoop(t *testing.T) {
	u := &recordingUpdater{fail: map[string]bool{}}
	q := NewQueue[string, string]()
	d := NewDriver[string, string, string](q, keyspace.NewRegistry[string](), u)

	if err := d.Flush(context.Background(), "missing"); err != nil {
		t.Fatalf("expected nil error for empty queue, got %v", err)
	}
}

func TestDriver_DiscardRemovesOnlyMatchingEntry(t *testing.T) {
	q := NewQueue[string, string]()
	d := NewDriver[string, string, string](q, keyspace.NewRegistry[string](), &recordingUpdater{fail: map[string]bool{}})

	e1 := d.Enqueue("k", "v1")
	d.Enqueue("k", "v2")

	d.Discard("k", e1.ID)

	e, ok := q.Pending("k")
	if !ok || e.Value != "v2" {
		t.Fatalf("expected v2 to remain after discarding v1, got %+v ok=%v", e, ok)
	}
}
