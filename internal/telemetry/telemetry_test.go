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

package telemetry

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetrics_RegisterAndIncrement(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New()
	m.MustRegister(reg)

	m.CacheHitsTotal.WithLabelValues(ResultHit).Inc()
	m.WritesTotal.Inc()
	m.PendingWriteKeys.Set(3)

	if got := testutil.ToFloat64(m.CacheHitsTotal.WithLabelValues(ResultHit)); got != 1 {
		t.Fatalf("expected cache hit counter 1, got %v", got)
	}
	if got := testutil.ToFloat64(m.WritesTotal); got != 1 {
		t.Fatalf("expected writes counter 1, got %v", got)
	}
	if got := testutil.ToFloat64(m.PendingWriteKeys); got != 3 {
		t.Fatalf("expected pending write keys gauge 3, got %v", got)
	}
}
