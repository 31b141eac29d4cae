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

// Package main provides a runnable demonstration of the store engine: an
// HTTP API over a Store[string, Item, Item, Item] backed by an in-memory
// source of truth and bookkeeper, fetching and pushing writes to an
// upstream origin server reachable at -origin_addr.
//
// Try it:
//
//	go run ./cmd/storedemo -http_addr :8080 -origin_addr http://localhost:9000
//	curl http://localhost:8080/items/widget-1
//	curl -X PUT -d '{"name":"widget-1","value":42}' http://localhost:8080/items/widget-1
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	storeengine "github.com/matt-ramotar/store"
	"github.com/matt-ramotar/store/internal/convert"
	"github.com/matt-ramotar/store/internal/telemetry"
	"github.com/matt-ramotar/store/pkg/bookkeeper"
	fetcherhttp "github.com/matt-ramotar/store/pkg/fetcher"
	"github.com/matt-ramotar/store/pkg/sourceoftruth"
	updaterhttp "github.com/matt-ramotar/store/pkg/updater"
)

// Item is the demo's domain value: network, local, and domain shape are
// all the same type, so the engine's Converter is the identity.
type Item struct {
	Name  string `json:"name"`
	Value int    `json:"value"`
}

func main() {
	httpAddr := flag.String("http_addr", ":8080", "HTTP listen address for the demo API")
	metricsAddr := flag.String("metrics_addr", "", "If non-empty, expose Prometheus /metrics on this address (e.g., :9090)")
	originAddr := flag.String("origin_addr", "http://localhost:9000", "Base URL of the upstream origin server items are fetched from and pushed to")
	memoryCacheSize := flag.Int("memory_cache_size", 1024, "Max entries kept in the in-memory cache; 0 is unbounded")
	memoryCacheTTL := flag.Duration("memory_cache_ttl", time.Minute, "Expiry for in-memory cache entries; 0 disables expiry")
	mutable := flag.Bool("mutable", true, "Enable the conflict-resolution gate (replay pending writes before a read)")
	flag.Parse()

	metrics := telemetry.New()
	registry := prometheus.NewRegistry()
	metrics.MustRegister(registry)

	httpClient := &http.Client{Timeout: 5 * time.Second}
	urlFor := func(key string) string {
		return strings.TrimRight(*originAddr, "/") + "/items/" + key
	}

	adapter := sourceoftruth.NewMemory[string, Item]()
	bk := bookkeeper.NewMemory[string]()
	source := fetcherhttp.HTTPJSON[string, Item](httpClient, urlFor)
	updater := updaterhttp.NewHTTPJSON[string, Item, any](httpClient, urlFor)

	engine := storeengine.NewWithOptions[string, Item, Item, Item](
		adapter,
		convert.IdentityConverter[Item]{},
		source,
		updater,
		storeengine.Options[string, Item, Item, Item]{
			MemoryCacheSize: *memoryCacheSize,
			MemoryCacheTTL:  *memoryCacheTTL,
			Bookkeeper:      bk,
			Mutable:         *mutable,
			Metrics:         metrics,
		},
	)

	mux := http.NewServeMux()
	registerRoutes(mux, engine)
	httpServer := &http.Server{Addr: *httpAddr, Handler: mux}

	go func() {
		fmt.Printf("store demo API listening on %s (origin %s)\n", *httpAddr, *originAddr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("could not listen on %s: %v", *httpAddr, err)
		}
	}()

	var metricsServer *http.Server
	if *metricsAddr != "" {
		metricsMux := http.NewServeMux()
		metricsMux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
		metricsServer = &http.Server{Addr: *metricsAddr, Handler: metricsMux}
		go func() {
			fmt.Printf("metrics listening on %s\n", *metricsAddr)
			if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Fatalf("could not listen on %s: %v", *metricsAddr, err)
			}
		}()
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	fmt.Println("\nshutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		log.Fatalf("API server shutdown failed: %v", err)
	}
	if metricsServer != nil {
		if err := metricsServer.Shutdown(ctx); err != nil {
			log.Fatalf("metrics server shutdown failed: %v", err)
		}
	}

	fmt.Println("stopped.")
}

func registerRoutes(mux *http.ServeMux, engine *storeengine.Store[string, Item, Item, Item]) {
	mux.HandleFunc("/items/", func(w http.ResponseWriter, r *http.Request) {
		key := strings.TrimPrefix(r.URL.Path, "/items/")
		if key == "" {
			http.Error(w, "missing item key", http.StatusBadRequest)
			return
		}

		switch r.Method {
		case http.MethodGet:
			handleGet(w, r, engine, key)
		case http.MethodPut:
			handlePut(w, r, engine, key)
		default:
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		}
	})
}

func handleGet(w http.ResponseWriter, r *http.Request, engine *storeengine.Store[string, Item, Item, Item], key string) {
	ctx := r.Context()
	refresh := r.URL.Query().Get("refresh") == "true"

	responses := engine.Stream(ctx, storeengine.ReadRequest[string]{
		Key:    key,
		Policy: storeengine.Cached(refresh),
	})

	for resp := range responses {
		switch resp.Kind {
		case storeengine.ReadData:
			writeJSON(w, http.StatusOK, resp.Value)
			return
		case storeengine.ReadError:
			http.Error(w, resp.Err.Error(), http.StatusBadGateway)
			return
		}
	}
	http.Error(w, "no data available", http.StatusNotFound)
}

func handlePut(w http.ResponseWriter, r *http.Request, engine *storeengine.Store[string, Item, Item, Item], key string) {
	var item Item
	if err := json.NewDecoder(r.Body).Decode(&item); err != nil {
		http.Error(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	item.Name = key

	resp := engine.Write(r.Context(), storeengine.WriteRequest[string, Item]{
		Key:       key,
		Value:     item,
		CreatedAt: time.Now(),
	})
	if resp.Kind != storeengine.WriteSuccess {
		http.Error(w, resp.Err.Error(), http.StatusBadGateway)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
