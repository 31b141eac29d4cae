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

// Package fetcher provides ready-to-use internal/fetcher.Source
// implementations: a one-shot HTTP GET decoder and a helper to chain a
// fallback fetcher per spec.md §4.6.
package fetcher

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/matt-ramotar/store/internal/fetcher"
)

// URLBuilder maps an engine key to the request URL fetched for it.
type URLBuilder[K comparable] func(key K) string

// HTTPJSON builds a one-shot internal/fetcher.Source that issues a GET
// against urlFor(key) and decodes the JSON response body into N.
func HTTPJSON[K comparable, N any](client *http.Client, urlFor URLBuilder[K]) fetcher.Source[K, N] {
	if client == nil {
		client = http.DefaultClient
	}
	return func(ctx context.Context, key K, out chan<- fetcher.Emission[N]) {
		defer close(out)

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, urlFor(key), nil)
		if err != nil {
			out <- fetcher.Emission[N]{Err: fmt.Errorf("build request: %w", err), Done: true}
			return
		}

		resp, err := client.Do(req)
		if err != nil {
			out <- fetcher.Emission[N]{Err: fmt.Errorf("do request: %w", err), Done: true}
			return
		}
		defer resp.Body.Close()

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			out <- fetcher.Emission[N]{Err: fmt.Errorf("unexpected status %d", resp.StatusCode), Done: true}
			return
		}

		var value N
		if err := json.NewDecoder(resp.Body).Decode(&value); err != nil {
			out <- fetcher.Emission[N]{Err: fmt.Errorf("decode response: %w", err), Done: true}
			return
		}

		out <- fetcher.Emission[N]{Value: value}
		out <- fetcher.Emission[N]{Done: true}
	}
}

// HTTPStreamingNDJSON builds a long-lived internal/fetcher.Source that
// issues a GET against urlFor(key) and decodes the response body as
// newline-delimited JSON, emitting one value per line as it arrives rather
// than waiting for the body to close. Useful for an origin that keeps the
// connection open and pushes successive updates for a key (a change feed
// or a tailing log), per spec.md §4.6's allowance for long-lived fetchers.
// The call ends, emitting Done, when the body closes, decoding fails, or
// ctx is canceled.
func HTTPStreamingNDJSON[K comparable, N any](client *http.Client, urlFor URLBuilder[K]) fetcher.Source[K, N] {
	if client == nil {
		client = http.DefaultClient
	}
	return func(ctx context.Context, key K, out chan<- fetcher.Emission[N]) {
		defer close(out)

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, urlFor(key), nil)
		if err != nil {
			out <- fetcher.Emission[N]{Err: fmt.Errorf("build request: %w", err), Done: true}
			return
		}

		resp, err := client.Do(req)
		if err != nil {
			out <- fetcher.Emission[N]{Err: fmt.Errorf("do request: %w", err), Done: true}
			return
		}
		defer resp.Body.Close()

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			out <- fetcher.Emission[N]{Err: fmt.Errorf("unexpected status %d", resp.StatusCode), Done: true}
			return
		}

		scanner := bufio.NewScanner(resp.Body)
		for scanner.Scan() {
			line := scanner.Bytes()
			if len(line) == 0 {
				continue
			}
			var value N
			if err := json.Unmarshal(line, &value); err != nil {
				out <- fetcher.Emission[N]{Err: fmt.Errorf("decode response line: %w", err)}
				continue
			}
			out <- fetcher.Emission[N]{Value: value}
		}
		if err := scanner.Err(); err != nil {
			out <- fetcher.Emission[N]{Err: fmt.Errorf("read response stream: %w", err)}
		}
		out <- fetcher.Emission[N]{Done: true}
	}
}

// WithFallback chains primary and fallback into a single Source: if
// primary's call ends without ever emitting a value, its terminal error
// (if any) is followed by fallback's full emission sequence. This mirrors
// spec.md §4.6's "fallbacks chain" rule at the Source level; the
// per-subscription chaining across independent fetch attempts is handled
// by internal/pipeline.
func WithFallback[K comparable, N any](primary, fallback fetcher.Source[K, N]) fetcher.Source[K, N] {
	return func(ctx context.Context, key K, out chan<- fetcher.Emission[N]) {
		inner := make(chan fetcher.Emission[N], 8)
		go primary(ctx, key, inner)

		produced := false
		for emission := range inner {
			if emission.Err != nil {
				if !produced && fallback != nil {
					emission.Done = false // fallback's emissions follow; its own Done ends the call
					out <- emission
					fallback(ctx, key, out)
					return
				}
				out <- emission
				continue
			}
			if !emission.Done {
				produced = true
			}
			out <- emission
		}
		close(out)
	}
}
