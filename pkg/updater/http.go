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

// Package updater provides a ready-to-use internal/writequeue.Updater
// implementation that pushes writes to an origin over HTTP.
package updater

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
)

// URLBuilder maps an engine key to the request URL posted to for it.
type URLBuilder[K comparable] func(key K) string

// HTTPJSON is an internal/writequeue.Updater that POSTs value as a JSON
// body to urlFor(key) and decodes the JSON response into R.
type HTTPJSON[K comparable, L any, R any] struct {
	Client *http.Client
	URLFor URLBuilder[K]
}

// NewHTTPJSON constructs an HTTPJSON updater. A nil client uses
// http.DefaultClient.
func NewHTTPJSON[K comparable, L any, R any](client *http.Client, urlFor URLBuilder[K]) *HTTPJSON[K, L, R] {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPJSON[K, L, R]{Client: client, URLFor: urlFor}
}

// Post implements internal/writequeue.Updater.
func (u *HTTPJSON[K, L, R]) Post(ctx context.Context, key K, value L) (R, error) {
	var zero R

	body, err := json.Marshal(value)
	if err != nil {
		return zero, fmt.Errorf("marshal request body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.URLFor(key), bytes.NewReader(body))
	if err != nil {
		return zero, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := u.Client.Do(req)
	if err != nil {
		return zero, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return zero, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	var response R
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return zero, fmt.Errorf("decode response: %w", err)
	}
	return response, nil
}
