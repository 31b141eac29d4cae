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

import "time"

// ReadPolicy controls how a read request may consult the memory cache,
// local source of truth, and origin.
type ReadPolicy struct {
	// Fresh suppresses any cache/local read and forces a fetch from origin.
	Fresh bool
	// Refresh requests a parallel origin fetch even when cache/local are
	// satisfactory. Ignored when Fresh is set (a fetch always happens).
	Refresh bool
	// SkipMemory bypasses the memory cache lookup.
	SkipMemory bool
	// SkipDisk bypasses the source-of-truth read.
	SkipDisk bool
}

// Cached returns the conventional "serve from cache/local, optionally
// refreshing from origin in parallel" policy described in spec.md §3.
func Cached(refresh bool) ReadPolicy {
	return ReadPolicy{Refresh: refresh}
}

// FreshPolicy suppresses cache/local and always fetches from origin.
func FreshPolicy() ReadPolicy {
	return ReadPolicy{Fresh: true}
}

// wantsFetch reports whether this policy requires an origin fetch given
// whether the cache/local read already produced a valid value.
func (p ReadPolicy) wantsFetch(haveValidValue bool) bool {
	if p.Fresh {
		return true
	}
	if p.Refresh {
		return true
	}
	return !haveValidValue
}

// ReadRequest describes one subscription to the engine's read pipeline.
type ReadRequest[K comparable] struct {
	Key    K
	Policy ReadPolicy
}

// ReadResponse is the tagged union emitted by Store.Stream.
type ReadResponse[V any] struct {
	Kind  ReadResponseKind
	Value V
	Origin Origin
	Err   error
}

type ReadResponseKind int

const (
	ReadLoading ReadResponseKind = iota
	ReadData
	ReadNoNewData
	ReadError
)

func loadingResponse[V any]() ReadResponse[V] {
	return ReadResponse[V]{Kind: ReadLoading}
}

func dataResponse[V any](v V, origin Origin) ReadResponse[V] {
	return ReadResponse[V]{Kind: ReadData, Value: v, Origin: origin}
}

func noNewDataResponse[V any](origin Origin) ReadResponse[V] {
	return ReadResponse[V]{Kind: ReadNoNewData, Origin: origin}
}

func errorResponse[V any](origin Origin, err error) ReadResponse[V] {
	return ReadResponse[V]{Kind: ReadError, Origin: origin, Err: err}
}

// WriteRequest describes a local mutation to push to the origin.
type WriteRequest[K comparable, V any] struct {
	Key       K
	Value     V
	CreatedAt time.Time
}

// WriteResponseKind classifies the outcome of Store.Write.
type WriteResponseKind int

const (
	WriteSuccess WriteResponseKind = iota
	WriteError
)

// WriteResponse is returned by Store.Write once the optimistic local write
// and the updater call have both resolved.
type WriteResponse struct {
	Kind WriteResponseKind
	Err  error
}

// UpdaterResultKind classifies the outcome of an Updater.Post call.
type UpdaterResultKind int

const (
	UpdaterSuccess UpdaterResultKind = iota
	UpdaterFailure
)

// UpdaterResult is returned by an Updater after attempting to push a write
// to the origin.
type UpdaterResult[R any] struct {
	Kind     UpdaterResultKind
	Response R
	Err      error
}
