// Copyright (c) 2026 John Earle
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

package ingest

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	// seenTTL is how long a processed message ID is remembered. It must
	// exceed the fetch lookback window so re-scanned candidates stay
	// recognisable across cycles.
	seenTTL = 120 * 24 * time.Hour

	seenKeyPrefix = "desk:seen:"
)

// SeenFilter is a Redis-backed fast path in front of the authoritative
// database dedup queries. The store remains the source of truth; a Redis
// failure degrades to the database check rather than failing the cycle.
type SeenFilter struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewSeenFilter creates a seen filter backed by Redis.
func NewSeenFilter(rdb *redis.Client) *SeenFilter {
	return &SeenFilter{rdb: rdb, ttl: seenTTL}
}

// Contains reports whether the message ID was already processed for the
// account. Errors fail open: an unreachable Redis never hides a message.
func (f *SeenFilter) Contains(ctx context.Context, account, messageID string) bool {
	if f == nil || messageID == "" {
		return false
	}
	n, err := f.rdb.Exists(ctx, seenKey(account, messageID)).Result()
	if err != nil {
		return false
	}
	return n > 0
}

// Add marks a message ID as processed after it has been persisted.
func (f *SeenFilter) Add(ctx context.Context, account, messageID string) error {
	if f == nil || messageID == "" {
		return nil
	}
	if err := f.rdb.Set(ctx, seenKey(account, messageID), 1, f.ttl).Err(); err != nil {
		return fmt.Errorf("seen SET: %w", err)
	}
	return nil
}

func seenKey(account, messageID string) string {
	return fmt.Sprintf("%s%s:%s", seenKeyPrefix, account, messageID)
}
