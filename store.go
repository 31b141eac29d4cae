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

package store

import (
	"context"
	"time"

	"github.com/matt-ramotar/store/internal/convert"
	"github.com/matt-ramotar/store/internal/fetcher"
	"github.com/matt-ramotar/store/internal/gate"
	"github.com/matt-ramotar/store/internal/keyspace"
	"github.com/matt-ramotar/store/internal/memcache"
	"github.com/matt-ramotar/store/internal/pipeline"
	"github.com/matt-ramotar/store/internal/sourceoftruth"
	"github.com/matt-ramotar/store/internal/telemetry"
	"github.com/matt-ramotar/store/internal/writequeue"
)

// Options configures a Store's optional collaborators. The zero value is
// valid: no memory cache bound, no validator (all values valid), immutable
// mode (no conflict-resolution gate), no fallback fetcher, no telemetry.
type Options[K comparable, N, L, V any] struct {
	// MemoryCacheSize bounds the in-memory cache; 0 means unbounded.
	MemoryCacheSize int
	// MemoryCacheTTL expires cache entries after this duration; 0 disables
	// expiry.
	MemoryCacheTTL time.Duration
	// Validator rejects stale cache/local values, forcing a fetch. Defaults
	// to AlwaysValid.
	Validator convert.Validator[V]
	// Bookkeeper and Mutable together enable the conflict-resolution gate
	// (spec.md §4.9): Mutable=true with a non-nil Bookkeeper consults it
	// before every read. Mutable=false (the default) runs in immutable
	// mode, skipping the gate entirely.
	Bookkeeper gate.Bookkeeper[K]
	Mutable    bool
	// Fallback is consulted when the primary fetcher errors before
	// producing any value for a read (spec.md §4.6).
	Fallback fetcher.Source[K, N]
	// Metrics, if set, records Prometheus counters/gauges for every
	// pipeline stage.
	Metrics *telemetry.Metrics
}

// Store is the coordination engine: it mediates reads and writes across a
// memory cache, a local source of truth, and a remote origin, with
// per-key fetch de-duplication, read/write barriers, a write queue, and
// conflict resolution. K is the engine's key type, N is the shape values
// take over the wire, L is the shape persisted locally, and V is the
// shape delivered to callers.
type Store[K comparable, N, L, V any] struct {
	converter convert.Converter[N, L, V]

	cache      *memcache.Cache[K, V]
	barrier    *sourceoftruth.Barrier[K, L]
	driver     *writequeue.Driver[K, L, any]
	bookkeeper gate.Bookkeeper[K]
	metrics    *telemetry.Metrics
	pipe       *pipeline.Pipeline[K, N, L, V]
}

// New constructs a Store with default Options. See NewWithOptions to
// configure a bounded cache, a validator, mutable-mode conflict
// resolution, a fallback fetcher, or telemetry.
func New[K comparable, N, L, V any](
	adapter sourceoftruth.Adapter[K, L],
	converter convert.Converter[N, L, V],
	source fetcher.Source[K, N],
	updater writequeue.Updater[K, L, any],
) *Store[K, N, L, V] {
	return NewWithOptions(adapter, converter, source, updater, Options[K, N, L, V]{})
}

// NewWithOptions constructs a Store with the given collaborators and
// Options.
func NewWithOptions[K comparable, N, L, V any](
	adapter sourceoftruth.Adapter[K, L],
	converter convert.Converter[N, L, V],
	source fetcher.Source[K, N],
	updater writequeue.Updater[K, L, any],
	opts Options[K, N, L, V],
) *Store[K, N, L, V] {
	blocks := keyspace.NewRegistry[K]()
	cache := memcache.New[K, V](opts.MemoryCacheSize, opts.MemoryCacheTTL)
	barrier := sourceoftruth.NewBarrier[K, L](adapter, blocks)
	fetchCtrl := fetcher.New[K, N]()
	queue := writequeue.NewQueue[K, L]()
	driver := writequeue.NewDriver[K, L, any](queue, blocks, updater)

	validator := opts.Validator
	if validator == nil {
		validator = convert.AlwaysValid[V]()
	}

	var bookkeeper gate.Bookkeeper[K]
	var gt *gate.Gate[K]
	if opts.Mutable && opts.Bookkeeper != nil {
		bookkeeper = opts.Bookkeeper
		gt = gate.New[K](bookkeeper, driver.Flush)
	}

	return &Store[K, N, L, V]{
		converter:  converter,
		cache:      cache,
		barrier:    barrier,
		driver:     driver,
		bookkeeper: bookkeeper,
		metrics:    opts.Metrics,
		pipe: &pipeline.Pipeline[K, N, L, V]{
			Cache:          cache,
			Converter:      converter,
			Validator:      validator,
			Barrier:        barrier,
			FetchCtrl:      fetchCtrl,
			Source:         source,
			FallbackSource: opts.Fallback,
			Gate:           gt,
			Metrics:        opts.Metrics,
		},
	}
}

// Stream implements spec.md §6.1: an unbounded, multi-subscriber-safe
// sequence of ReadResponse values for request.Key. Cancel ctx to
// unsubscribe; the returned channel is closed once no further work
// remains for this subscription.
func (s *Store[K, N, L, V]) Stream(ctx context.Context, request ReadRequest[K]) <-chan ReadResponse[V] {
	policy := pipeline.Policy{
		Fresh:      request.Policy.Fresh,
		Refresh:    request.Policy.Refresh,
		SkipMemory: request.Policy.SkipMemory,
		SkipDisk:   request.Policy.SkipDisk,
	}

	in := s.pipe.Stream(ctx, request.Key, policy)
	out := make(chan ReadResponse[V])
	go func() {
		defer close(out)
		for e := range in {
			out <- translateEmission(e)
		}
	}()
	return out
}

func translateEmission[V any](e pipeline.Emission[V]) ReadResponse[V] {
	origin := translateOrigin(e.Origin)
	switch e.Kind {
	case pipeline.KindLoading:
		return loadingResponse[V]()
	case pipeline.KindData:
		return dataResponse(e.Value, origin)
	case pipeline.KindNoNewData:
		return noNewDataResponse[V](origin)
	default:
		return errorResponse[V](origin, e.Err)
	}
}

func translateOrigin(o pipeline.Origin) Origin {
	switch o {
	case pipeline.OriginCache:
		return OriginCache
	case pipeline.OriginSourceOfTruth:
		return OriginSourceOfTruth
	default:
		return OriginFetcher
	}
}

// Write implements spec.md §4.8: the optimistic local write and the
// updater call have both resolved by the time Write returns. A failed
// local write aborts before the queue entry is driven to the updater; a
// failed updater call leaves the entry queued and records a bookkeeping
// timestamp so a later read's conflict-resolution gate retries it.
func (s *Store[K, N, L, V]) Write(ctx context.Context, request WriteRequest[K, V]) WriteResponse {
	l, err := s.converter.DomainToLocal(request.Value)
	if err != nil {
		return WriteResponse{Kind: WriteError, Err: &ConversionError{Err: err}}
	}

	entry := s.driver.Enqueue(request.Key, l)

	if err := s.barrier.Write(ctx, request.Key, l); err != nil {
		s.driver.Discard(request.Key, entry.ID)
		return WriteResponse{Kind: WriteError, Err: &SourceOfTruthError{Op: SOTWrite, Err: err}}
	}
	s.observeWrite()

	if err := s.driver.Drive(ctx, request.Key, entry); err != nil {
		if s.bookkeeper != nil {
			_ = s.bookkeeper.SetLastFailedSync(ctx, request.Key, time.Now())
		}
		s.observeWriteFailure()
		return WriteResponse{Kind: WriteError, Err: &UpdaterError{Err: err}}
	}

	if s.bookkeeper != nil {
		_ = s.bookkeeper.Clear(ctx, request.Key)
	}
	return WriteResponse{Kind: WriteSuccess}
}

// Clear implements spec.md §4.10: invalidate the memory cache entry and
// delete the source-of-truth entry for key. The origin is untouched.
func (s *Store[K, N, L, V]) Clear(ctx context.Context, key K) error {
	s.cache.Invalidate(key)
	return s.barrier.Delete(ctx, key)
}

// ClearAll implements spec.md §4.10: invalidate the entire memory cache
// and delete every source-of-truth entry. The origin is untouched.
func (s *Store[K, N, L, V]) ClearAll(ctx context.Context) error {
	s.cache.InvalidateAll()
	return s.barrier.DeleteAll(ctx)
}

func (s *Store[K, N, L, V]) observeWrite() {
	if s.metrics != nil {
		s.metrics.WritesTotal.Inc()
	}
}

func (s *Store[K, N, L, V]) observeWriteFailure() {
	if s.metrics != nil {
		s.metrics.WriteFailuresTotal.Inc()
	}
}
