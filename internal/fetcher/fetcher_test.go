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

package fetcher

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestController_SingleCallerReceivesValueAndDone(t *testing.T) {
	c := New[string, int]()
	src := func(ctx context.Context, key string, out chan<- Emission[int]) {
		out <- Emission[int]{Value: 42}
		out <- Emission[int]{Done: true}
		close(out)
	}

	ch, unsubscribe := c.Fetch(context.Background(), "k", src)
	defer unsubscribe()
	first := <-ch
	if first.Value != 42 || first.Err != nil {
		t.Fatalf("unexpected first emission: %+v", first)
	}
	second := <-ch
	if !second.Done {
		t.Fatalf("expected Done emission, got %+v", second)
	}
	if _, ok := <-ch; ok {
		t.Fatalf("expected channel closed after Done")
	}
}

func TestController_ConcurrentCallersCoalesceIntoOneSourceInvocation(t *testing.T) {
	c := New[string, int]()
	var invocations atomic.Int32
	started := make(chan struct{})
	release := make(chan struct{})

	src := func(ctx context.Context, key string, out chan<- Emission[int]) {
		invocations.Add(1)
		close(started)
		<-release
		out <- Emission[int]{Value: 7, Done: true}
		close(out)
	}

	const callers = 10
	chans := make([]<-chan Emission[int], callers)
	unsubs := make([]func(), callers)
	chans[0], unsubs[0] = c.Fetch(context.Background(), "k", src)
	defer unsubs[0]()
	<-started // ensure the first call has registered before the rest join

	var wg sync.WaitGroup
	for i := 1; i < callers; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			chans[i], unsubs[i] = c.Fetch(context.Background(), "k", src)
		}()
	}
	wg.Wait()
	for i := 1; i < callers; i++ {
		defer unsubs[i]()
	}

	close(release)

	for _, ch := range chans {
		got := <-ch
		if got.Value != 7 || !got.Done {
			t.Fatalf("unexpected emission: %+v", got)
		}
	}

	if n := invocations.Load(); n != 1 {
		t.Fatalf("expected exactly 1 source invocation, got %d", n)
	}
}

func TestController_InFlightTracksActiveKeys(t *testing.T) {
	c := New[string, int]()
	release := make(chan struct{})
	src := func(ctx context.Context, key string, out chan<- Emission[int]) {
		<-release
		out <- Emission[int]{Value: 1, Done: true}
		close(out)
	}

	ch, unsubscribe := c.Fetch(context.Background(), "k", src)
	defer unsubscribe()
	deadline := time.After(time.Second)
	for c.InFlight() != 1 {
		select {
		case <-deadline:
			t.Fatalf("expected InFlight to reach 1")
		default:
		}
	}

	close(release)
	<-ch
	<-ch

	deadline = time.After(time.Second)
	for c.InFlight() != 0 {
		select {
		case <-deadline:
			t.Fatalf("expected InFlight to return to 0 after completion")
		default:
		}
	}
}

// TestController_LastSubscriberDetachCancelsUpstream exercises spec.md
// §4.6 point 4 / §5's ref_count model: once the last subscriber unsubscribes
// without the call ever completing, the upstream Source's own context is
// canceled.
func TestController_LastSubscriberDetachCancelsUpstream(t *testing.T) {
	c := New[string, int]()
	canceled := make(chan struct{})
	started := make(chan struct{})
	src := func(ctx context.Context, key string, out chan<- Emission[int]) {
		defer close(out)
		close(started)
		<-ctx.Done()
		close(canceled)
	}

	_, unsubscribe := c.Fetch(context.Background(), "k", src)
	<-started

	unsubscribe()

	select {
	case <-canceled:
	case <-time.After(time.Second):
		t.Fatalf("expected detaching the last subscriber to cancel the upstream source")
	}

	deadline := time.After(time.Second)
	for c.InFlight() != 0 {
		select {
		case <-deadline:
			t.Fatalf("expected InFlight to return to 0 after the last subscriber detached")
		default:
		}
	}
}

// TestController_OneCallerCtxCancellationDoesNotAffectOthers guards against
// the upstream call being driven by whichever caller's ctx happened to
// create the map entry: a different caller's ctx being canceled must not
// tear down the fetch for subscribers still attached.
func TestController_OneCallerCtxCancellationDoesNotAffectOthers(t *testing.T) {
	c := New[string, int]()
	release := make(chan struct{})
	started := make(chan struct{})
	src := func(ctx context.Context, key string, out chan<- Emission[int]) {
		close(started)
		<-release
		out <- Emission[int]{Value: 99, Done: true}
		close(out)
	}

	firstCtx, firstCancel := context.WithCancel(context.Background())
	ch1, unsub1 := c.Fetch(firstCtx, "k", src)
	defer unsub1()
	<-started

	ch2, unsub2 := c.Fetch(context.Background(), "k", src)
	defer unsub2()

	// The caller who created the call cancels its own ctx; the shared
	// fetch must survive for ch2.
	firstCancel()
	close(release)

	got2 := <-ch2
	if got2.Value != 99 || !got2.Done {
		t.Fatalf("expected the second subscriber to still receive the emission, got %+v", got2)
	}
	<-ch1
}

// TestController_EarlyDetachDoesNotStarveRemainingSubscribers exercises
// that an early-detaching, non-owning subscriber tears down nothing for
// the subscribers that remain.
func TestController_EarlyDetachDoesNotStarveRemainingSubscribers(t *testing.T) {
	c := New[string, int]()
	release := make(chan struct{})
	src := func(ctx context.Context, key string, out chan<- Emission[int]) {
		<-release
		out <- Emission[int]{Value: 5, Done: true}
		close(out)
	}

	ch1, unsub1 := c.Fetch(context.Background(), "k", src)
	defer unsub1()
	ch2, unsub2 := c.Fetch(context.Background(), "k", src)

	unsub2() // detach early, before any emission arrives
	close(release)

	got := <-ch1
	if got.Value != 5 || !got.Done {
		t.Fatalf("expected remaining subscriber to still receive the emission, got %+v", got)
	}

	select {
	case v, ok := <-ch2:
		t.Fatalf("expected no further delivery to a detached subscriber, got %+v ok=%v", v, ok)
	case <-time.After(50 * time.Millisecond):
	}
}
