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

// Package fetcher de-duplicates concurrent origin fetches for the same key:
// if N callers request the same key while a fetch is already in flight, all
// N receive the single in-flight result instead of N redundant origin calls.
//
// This generalizes the request-coalescing (singleflight) pattern to fetchers
// that can emit more than one value per call (a streaming origin response),
// by multicasting every emission to every waiting caller instead of a single
// value/error pair.
package fetcher

import (
	"context"
	"sync"
)

// Emission is one value (or terminal error) produced by an in-flight fetch.
type Emission[N any] struct {
	Value N
	Err   error
	Done  bool // true on the final emission for this call; Err may be set on it, but the read pipeline does not read Value from a Done emission
}

// Source performs the actual origin call for a key, emitting values/errors
// onto out until it returns. Source must close nothing; Controller owns
// lifecycle of out.
type Source[K comparable, N any] func(ctx context.Context, key K, out chan<- Emission[N])

// call tracks one in-flight fetch for a key, the set of subscriber channels
// still listening to it, and the cancel func for the upstream Source's own
// context — independent of any one subscriber's ctx, so one caller's
// cancellation cannot tear down a fetch other callers still need.
type call[N any] struct {
	subs   []chan Emission[N]
	cancel context.CancelFunc
}

// Controller de-duplicates concurrent fetches per key, grounded on
// cachemanager.RequestCoalescer's map-of-in-flight-calls design, generalized
// from a single result to a multicast stream of Emission values so a
// streaming Source can feed every waiting subscriber.
type Controller[K comparable, N any] struct {
	mu    sync.Mutex
	calls map[any]*call[N]
}

// New creates an empty fetch-coalescing Controller.
func New[K comparable, N any]() *Controller[K, N] {
	return &Controller[K, N]{calls: make(map[any]*call[N])}
}

// Fetch runs src for key, or subscribes to an already-in-flight call for
// the same key (the 0→1/N→N+1 ref-counted join described in spec.md §5's
// {ref_count, multicast_channel} model). The returned channel receives
// every Emission produced for this key until the call completes (Done ==
// true), then is closed. The returned func detaches this subscriber;
// callers must call it (or drain the channel to Done) to avoid leaking the
// subscriber slot. The upstream src call is driven by its own context, not
// any one caller's ctx: it is canceled only when the last subscriber
// detaches, not when an arbitrary subscriber's ctx is canceled.
func (c *Controller[K, N]) Fetch(ctx context.Context, key K, src Source[K, N]) (<-chan Emission[N], func()) {
	sub := make(chan Emission[N], 8)

	c.mu.Lock()
	if existing, ok := c.calls[key]; ok {
		existing.subs = append(existing.subs, sub)
		c.mu.Unlock()
		return sub, func() { c.unsubscribe(key, sub) }
	}

	callCtx, cancel := context.WithCancel(context.Background())
	cl := &call[N]{subs: []chan Emission[N]{sub}, cancel: cancel}
	c.calls[key] = cl
	c.mu.Unlock()

	upstream := make(chan Emission[N], 8)
	go src(callCtx, key, upstream)
	go c.pump(key, cl, upstream)

	return sub, func() { c.unsubscribe(key, sub) }
}

// unsubscribe detaches sub from key's in-flight call, if any. Once the last
// subscriber detaches, the upstream Source's context is canceled and the
// call is removed so a later Fetch starts a fresh one.
func (c *Controller[K, N]) unsubscribe(key K, sub chan Emission[N]) {
	c.mu.Lock()
	cl, ok := c.calls[key]
	if !ok {
		c.mu.Unlock()
		return
	}

	idx := -1
	for i, s := range cl.subs {
		if s == sub {
			idx = i
			break
		}
	}
	if idx < 0 {
		c.mu.Unlock()
		return
	}
	cl.subs = append(cl.subs[:idx], cl.subs[idx+1:]...)

	if len(cl.subs) > 0 {
		c.mu.Unlock()
		return
	}

	delete(c.calls, key)
	cancel := cl.cancel
	c.mu.Unlock()
	cancel()
}

// pump relays every emission from upstream to all current subscribers of
// cl, then tears the call down once upstream closes (or emits Done).
func (c *Controller[K, N]) pump(key K, cl *call[N], upstream chan Emission[N]) {
	for emission := range upstream {
		c.mu.Lock()
		subs := append([]chan Emission[N](nil), cl.subs...)
		c.mu.Unlock()

		for _, s := range subs {
			s <- emission
		}

		if emission.Done {
			break
		}
	}

	c.mu.Lock()
	// The call may already have been removed by unsubscribe tearing down
	// the last subscriber; only delete (and close) if this pump's call is
	// still the one registered for key.
	var subs []chan Emission[N]
	if c.calls[key] == cl {
		delete(c.calls, key)
		subs = cl.subs
	}
	c.mu.Unlock()

	for _, s := range subs {
		close(s)
	}
}

// InFlight reports the number of keys with an active fetch. Intended for
// tests and telemetry.
func (c *Controller[K, N]) InFlight() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.calls)
}
