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

// Package store implements a client-side reactive data-access engine that
// mediates between an in-memory cache, a local durable source of truth,
// and a remote origin.
//
// Reads stream through a pipeline that serves from cache or the local
// store while a fetch from the origin runs in the background, with at
// most one origin fetch in flight per key. Writes apply optimistically to
// the local store and are pushed to the origin by a per-key write queue;
// a failed push is recorded by a bookkeeper and replayed by a
// conflict-resolution gate before the next read for that key.
//
// Three collaborator interfaces carry the domain-specific parts of the
// system: sourceoftruth.Adapter (the local durable store), a Converter
// (translates between the origin, local, and domain value shapes), and a
// writequeue.Updater (pushes writes to the origin). The engine itself is
// transport- and storage-agnostic; see pkg/sourceoftruth, pkg/bookkeeper,
// pkg/fetcher, and pkg/updater for ready-to-use implementations.
package store
