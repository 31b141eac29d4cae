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

package bookkeeper

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// redisClient is the minimal surface this adapter needs, mirroring the
// teacher's RedisEvaler: depend on a narrow interface instead of the full
// redis.Cmdable so tests can fake it without a live Redis connection.
// *redis.Client satisfies it automatically.
type redisClient interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) *redis.StatusCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
	Scan(ctx context.Context, cursor uint64, match string, count int64) *redis.ScanCmd
}

// Redis is a durable Bookkeeper backed by one string key per engine key,
// holding a Unix-nanosecond timestamp. Grounded on the teacher's
// RedisPersister: a thin client wrapper with a documented key layout,
// here simplified to plain SET/GET/DEL since, unlike the commit log the
// teacher idempotently replays, a bookkeeping record is a single
// overwritable latest-value rather than an append-only ledger.
type Redis[K comparable] struct {
	client redisClient
	encode KeyEncoder[K]
	ttl    time.Duration // 0 disables expiry
}

// RedisKey is the key-layout helper, exported for interoperability with
// external tooling inspecting the store, mirroring the teacher's
// RedisCounterKey/RedisCommitMarkerKey helpers.
func RedisKey(encoded string) string {
	return fmt.Sprintf("store:failed_sync:%s", encoded)
}

// NewRedis creates a Redis-backed bookkeeper. ttl, if positive, bounds how
// long a failed-sync record survives without being refreshed or cleared;
// 0 disables expiry.
func NewRedis[K comparable](client redisClient, encode KeyEncoder[K], ttl time.Duration) *Redis[K] {
	return &Redis[K]{client: client, encode: encode, ttl: ttl}
}

func (r *Redis[K]) GetLastFailedSync(ctx context.Context, key K) (time.Time, bool, error) {
	val, err := r.client.Get(ctx, RedisKey(r.encode(key))).Result()
	if err == redis.Nil {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("redis get %s: %w", r.encode(key), err)
	}
	nanos, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("parse failed-sync timestamp for %s: %w", r.encode(key), err)
	}
	return time.Unix(0, nanos), true, nil
}

func (r *Redis[K]) SetLastFailedSync(ctx context.Context, key K, ts time.Time) error {
	if err := r.client.Set(ctx, RedisKey(r.encode(key)), ts.UnixNano(), r.ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", r.encode(key), err)
	}
	return nil
}

func (r *Redis[K]) Clear(ctx context.Context, key K) error {
	if err := r.client.Del(ctx, RedisKey(r.encode(key))).Err(); err != nil {
		return fmt.Errorf("redis del %s: %w", r.encode(key), err)
	}
	return nil
}

// ClearAll scans and deletes every failed-sync key. Redis has no native
// "delete by prefix"; SCAN is the documented non-blocking approach the
// go-redis client exposes for this.
func (r *Redis[K]) ClearAll(ctx context.Context) error {
	iter := r.client.Scan(ctx, 0, RedisKey("*"), 0).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("redis scan failed-sync keys: %w", err)
	}
	if len(keys) == 0 {
		return nil
	}
	if err := r.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("redis del failed-sync keys: %w", err)
	}
	return nil
}
