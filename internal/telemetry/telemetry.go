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

// Package telemetry exposes process-level Prometheus counters and gauges
// for the read pipeline, write queue, and conflict-resolution gate. Safe
// to call from hot paths: each observer is a single atomic add on the
// registered collector.
package telemetry

import "github.com/prometheus/client_golang/prometheus"

// Metrics bundles every collector the engine reports. Construct with New
// and register once with a prometheus.Registerer (or use the default
// registry via MustRegister).
type Metrics struct {
	CacheHitsTotal        *prometheus.CounterVec
	SourceOfTruthHits     *prometheus.CounterVec
	FetchesTotal          *prometheus.CounterVec
	FetchCoalescedTotal   prometheus.Counter
	WritesTotal           prometheus.Counter
	WriteFailuresTotal    prometheus.Counter
	GateReplaysTotal      prometheus.Counter
	GateReplayErrorsTotal prometheus.Counter
	PendingWriteKeys      prometheus.Gauge
}

// New constructs a Metrics bundle. Callers register it with a Registerer
// of their choosing (prometheus.NewRegistry() for tests, or
// prometheus.DefaultRegisterer in a long-running process).
func New() *Metrics {
	return &Metrics{
		CacheHitsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "store",
			Name:      "cache_hits_total",
			Help:      "Reads satisfied by the in-memory cache, labeled by hit/miss.",
		}, []string{"result"}),
		SourceOfTruthHits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "store",
			Name:      "source_of_truth_hits_total",
			Help:      "Reads satisfied by the local source of truth, labeled by hit/miss.",
		}, []string{"result"}),
		FetchesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "store",
			Name:      "fetches_total",
			Help:      "Origin fetch emissions received by read subscriptions, labeled by outcome.",
		}, []string{"result"}),
		FetchCoalescedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "store",
			Name:      "fetch_coalesced_total",
			Help:      "Read requests that joined an already in-flight origin fetch instead of starting a new one.",
		}),
		WritesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "store",
			Name:      "writes_total",
			Help:      "Optimistic local writes accepted by the write queue.",
		}),
		WriteFailuresTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "store",
			Name:      "write_failures_total",
			Help:      "Updater pushes that failed and were recorded in the bookkeeper.",
		}),
		GateReplaysTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "store",
			Name:      "gate_replays_total",
			Help:      "Conflict-resolution gate consultations before a read, whether or not a replay was needed.",
		}),
		GateReplayErrorsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "store",
			Name:      "gate_replay_errors_total",
			Help:      "Conflict-resolution gate replays that failed to clear bookkeeping.",
		}),
		PendingWriteKeys: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "store",
			Name:      "pending_write_keys",
			Help:      "Number of keys with an unresolved failed-sync bookkeeping record.",
		}),
	}
}

// MustRegister registers every collector in m with reg.
func (m *Metrics) MustRegister(reg prometheus.Registerer) {
	reg.MustRegister(
		m.CacheHitsTotal,
		m.SourceOfTruthHits,
		m.FetchesTotal,
		m.FetchCoalescedTotal,
		m.WritesTotal,
		m.WriteFailuresTotal,
		m.GateReplaysTotal,
		m.GateReplayErrorsTotal,
		m.PendingWriteKeys,
	)
}

const (
	ResultHit  = "hit"
	ResultMiss = "miss"

	FetchOutcomeSuccess  = "success"
	FetchOutcomeError    = "error"
	FetchOutcomeNoNewData = "no_new_data"
)
