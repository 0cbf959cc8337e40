// IDEM Realtime - Presence and Notification Fan-out
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/idem-realtime

package store

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const presenceKeyPrefix = "idem:presence:"

// RedisPresence mirrors registry membership into Redis so that processes
// without access to the registry (the CRUD API) can show online badges.
//
// Keys expire after ttl; Refresh must be called more often than that while
// users stay connected. A crash of the realtime server therefore clears all
// badges within one ttl.
type RedisPresence struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewRedisPresence creates a mirror writing keys with the given ttl.
func NewRedisPresence(rdb *redis.Client, ttl time.Duration) *RedisPresence {
	return &RedisPresence{rdb: rdb, ttl: ttl}
}

func presenceKey(userID int64) string {
	return presenceKeyPrefix + strconv.FormatInt(userID, 10)
}

// RecordPresence implements PresenceRecorder.
func (p *RedisPresence) RecordPresence(ctx context.Context, userID int64, online bool, at time.Time) error {
	key := presenceKey(userID)
	if !online {
		if err := p.rdb.Del(ctx, key).Err(); err != nil {
			return fmt.Errorf("redis presence offline: %w", err)
		}
		return nil
	}
	if err := p.rdb.Set(ctx, key, at.Unix(), p.ttl).Err(); err != nil {
		return fmt.Errorf("redis presence online: %w", err)
	}
	return nil
}

// Refresh extends the TTL of every given user's key in one pipeline.
func (p *RedisPresence) Refresh(ctx context.Context, userIDs []int64) error {
	if len(userIDs) == 0 {
		return nil
	}
	_, err := p.rdb.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, id := range userIDs {
			pipe.Expire(ctx, presenceKey(id), p.ttl)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis presence refresh: %w", err)
	}
	return nil
}

// Lookup reports whether a user is marked online and since when.
func (p *RedisPresence) Lookup(ctx context.Context, userID int64) (bool, time.Time, error) {
	secs, err := p.rdb.Get(ctx, presenceKey(userID)).Int64()
	if errors.Is(err, redis.Nil) {
		return false, time.Time{}, nil
	}
	if err != nil {
		return false, time.Time{}, fmt.Errorf("redis presence lookup: %w", err)
	}
	return true, time.Unix(secs, 0), nil
}

// Interval is how often Refresh should run to keep keys alive.
func (p *RedisPresence) Interval() time.Duration {
	return p.ttl / 3
}
