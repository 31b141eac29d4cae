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

// Package pipeline composes the memory cache, the source-of-truth barrier,
// the fetcher controller, and the conflict-resolution gate into the read
// pipeline described in spec.md §4.7. It intentionally defines its own
// request/response shapes rather than importing the root store package, to
// keep the dependency graph acyclic (the root package imports pipeline,
// not the reverse).
package pipeline

import (
	"context"

	"github.com/matt-ramotar/store/internal/convert"
	"github.com/matt-ramotar/store/internal/fetcher"
	"github.com/matt-ramotar/store/internal/gate"
	"github.com/matt-ramotar/store/internal/memcache"
	"github.com/matt-ramotar/store/internal/sourceoftruth"
	"github.com/matt-ramotar/store/internal/telemetry"
)

// Origin identifies which layer produced a Data or NoNewData emission.
type Origin int

const (
	OriginCache Origin = iota
	OriginSourceOfTruth
	OriginFetcher
)

// Kind classifies one Emission on the pipeline's output stream.
type Kind int

const (
	KindLoading Kind = iota
	KindData
	KindNoNewData
	KindError
)

// Emission is one value on a Pipeline's output stream.
type Emission[V any] struct {
	Kind   Kind
	Value  V
	Origin Origin
	Err    error
}

// Policy mirrors the root package's ReadPolicy without importing it.
type Policy struct {
	Fresh      bool
	Refresh    bool
	SkipMemory bool
	SkipDisk   bool
}

func (p Policy) wantsFetch(haveValidValue bool) bool {
	if p.Fresh || p.Refresh {
		return true
	}
	return !haveValidValue
}

// Pipeline wires together one key space's collaborators into the read
// pipeline. N is the network/origin shape, L is the local/durable shape,
// V is the domain shape handed to callers.
type Pipeline[K comparable, N, L, V any] struct {
	Cache          *memcache.Cache[K, V]
	Converter      convert.Converter[N, L, V]
	Validator      convert.Validator[V]
	Barrier        *sourceoftruth.Barrier[K, L]
	FetchCtrl      *fetcher.Controller[K, N]
	Source         fetcher.Source[K, N]
	FallbackSource fetcher.Source[K, N] // nil disables the fallback
	Gate           *gate.Gate[K]        // nil disables the conflict-resolution step (immutable mode)
	Metrics        *telemetry.Metrics   // nil disables telemetry
}

// Stream implements spec.md §4.7. The returned channel is closed once the
// pipeline has nothing further to emit for this subscription; cancel ctx
// to detach early.
func (p *Pipeline[K, N, L, V]) Stream(ctx context.Context, key K, policy Policy) <-chan Emission[V] {
	out := make(chan Emission[V], 8)
	go p.run(ctx, key, policy, out)
	return out
}

func (p *Pipeline[K, N, L, V]) run(ctx context.Context, key K, policy Policy, out chan<- Emission[V]) {
	defer close(out)

	if p.Gate != nil {
		if err := p.Gate.Resolve(ctx, key); err != nil {
			p.observeGateReplay(true)
			out <- Emission[V]{Kind: KindError, Origin: OriginSourceOfTruth, Err: err}
		} else {
			p.observeGateReplay(false)
		}
	}

	haveValid := false
	if !policy.SkipMemory && !policy.Fresh {
		if v, ok := p.Cache.Get(key); ok && p.Validator.IsValid(v) {
			p.observeCache(true)
			out <- Emission[V]{Kind: KindData, Value: v, Origin: OriginCache}
			haveValid = true
		} else {
			p.observeCache(false)
		}
	}

	if !policy.wantsFetch(haveValid) {
		if !policy.SkipDisk {
			p.localOnly(ctx, key, out)
		}
		return
	}

	out <- Emission[V]{Kind: KindLoading}
	p.compositeFetch(ctx, key, policy, out)
}

// localOnly subscribes to the source-of-truth reader only, per step 5.
func (p *Pipeline[K, N, L, V]) localOnly(ctx context.Context, key K, out chan<- Emission[V]) {
	ch, err := p.Barrier.Read(ctx, key)
	if err != nil {
		out <- Emission[V]{Kind: KindError, Origin: OriginSourceOfTruth, Err: err}
		return
	}
	for l := range ch {
		p.emitFromLocal(l, OriginSourceOfTruth, out)
	}
}

// compositeFetch subscribes to both the source-of-truth reader and the
// fetcher controller, per step 4. The source-of-truth reader is skipped
// when the policy is Fresh or SkipDisk. It returns only once both the
// fetch and the source-of-truth relay have finished.
func (p *Pipeline[K, N, L, V]) compositeFetch(ctx context.Context, key K, policy Policy, out chan<- Emission[V]) {
	sotDone := make(chan struct{})
	if policy.Fresh || policy.SkipDisk {
		close(sotDone)
	} else if sotCh, err := p.Barrier.Read(ctx, key); err != nil {
		out <- Emission[V]{Kind: KindError, Origin: OriginSourceOfTruth, Err: err}
		close(sotDone)
	} else {
		go func() {
			defer close(sotDone)
			for l := range sotCh {
				p.emitFromLocal(l, OriginSourceOfTruth, out)
			}
		}()
	}

	p.runFetch(ctx, key, p.Source, out, true)
	<-sotDone
}

// runFetch drives src (falling back to FallbackSource once, if configured
// and no Data has yet been produced by this call), converting each origin
// value, writing it through the barrier, and reflecting it to consumers
// tagged OriginFetcher once the source-of-truth write has completed.
func (p *Pipeline[K, N, L, V]) runFetch(ctx context.Context, key K, src fetcher.Source[K, N], out chan<- Emission[V], allowFallback bool) {
	if src == nil {
		return
	}
	ch, unsubscribe := p.FetchCtrl.Fetch(ctx, key, src)
	defer unsubscribe()

	produced := false
	for emission := range ch {
		p.observeFetch(emission)
		if emission.Err != nil {
			out <- Emission[V]{Kind: KindError, Origin: OriginFetcher, Err: emission.Err}
			if !produced && allowFallback && p.FallbackSource != nil {
				p.runFetch(ctx, key, p.FallbackSource, out, false)
				return
			}
			continue
		}
		if emission.Done {
			continue
		}

		l, err := p.Converter.NetworkToLocal(emission.Value)
		if err != nil {
			out <- Emission[V]{Kind: KindError, Origin: OriginFetcher, Err: err}
			continue
		}
		if err := p.Barrier.Write(ctx, key, l); err != nil {
			out <- Emission[V]{Kind: KindError, Origin: OriginSourceOfTruth, Err: err}
			continue
		}
		produced = true

		v, err := p.Converter.LocalToDomain(l)
		if err != nil {
			out <- Emission[V]{Kind: KindError, Origin: OriginFetcher, Err: err}
			continue
		}
		if !policySkipMemoryIrrelevant() {
			p.Cache.Put(key, v)
		}
		out <- Emission[V]{Kind: KindData, Value: v, Origin: OriginFetcher}
	}
}

// policySkipMemoryIrrelevant exists only to document that memory-cache
// writes on the fetch path are unconditional: SkipMemory governs reads of
// the cache, not whether a fresh origin value gets cached for later reads.
func policySkipMemoryIrrelevant() bool { return false }

func (p *Pipeline[K, N, L, V]) emitFromLocal(l L, origin Origin, out chan<- Emission[V]) {
	v, err := p.Converter.LocalToDomain(l)
	if err != nil {
		out <- Emission[V]{Kind: KindError, Origin: origin, Err: err}
		return
	}
	if p.Validator.IsValid(v) {
		out <- Emission[V]{Kind: KindData, Value: v, Origin: origin}
		return
	}
	out <- Emission[V]{Kind: KindNoNewData, Origin: origin}
}

func (p *Pipeline[K, N, L, V]) observeCache(hit bool) {
	if p.Metrics == nil {
		return
	}
	if hit {
		p.Metrics.CacheHitsTotal.WithLabelValues(telemetry.ResultHit).Inc()
	} else {
		p.Metrics.CacheHitsTotal.WithLabelValues(telemetry.ResultMiss).Inc()
	}
}

func (p *Pipeline[K, N, L, V]) observeFetch(e fetcher.Emission[N]) {
	if p.Metrics == nil {
		return
	}
	switch {
	case e.Err != nil:
		p.Metrics.FetchesTotal.WithLabelValues(telemetry.FetchOutcomeError).Inc()
	case e.Done:
		p.Metrics.FetchesTotal.WithLabelValues(telemetry.FetchOutcomeNoNewData).Inc()
	default:
		p.Metrics.FetchesTotal.WithLabelValues(telemetry.FetchOutcomeSuccess).Inc()
	}
}

func (p *Pipeline[K, N, L, V]) observeGateReplay(failed bool) {
	if p.Metrics == nil {
		return
	}
	p.Metrics.GateReplaysTotal.Inc()
	if failed {
		p.Metrics.GateReplayErrorsTotal.Inc()
	}
}
