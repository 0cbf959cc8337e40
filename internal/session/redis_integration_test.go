// IDEM Realtime - Presence and Notification Fan-out
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/idem-realtime

//go:build integration

package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/tomtom215/idem-realtime/internal/testinfra"
)

func TestRedisStore(t *testing.T) {
	testinfra.SkipIfNoDocker(t)
	ctx := context.Background()

	rc, err := testinfra.NewRedisContainer(ctx)
	if err != nil {
		t.Fatalf("start redis: %v", err)
	}
	defer testinfra.CleanupContainer(t, ctx, rc.Container)

	rdb := redis.NewClient(&redis.Options{Addr: rc.Addr})
	defer rdb.Close()

	store := NewRedisStore(rdb)
	storeContract(t, store)

	t.Run("key carries ttl", func(t *testing.T) {
		if err := store.Create(ctx, New("ttl", 3, time.Hour)); err != nil {
			t.Fatal(err)
		}
		ttl := rdb.TTL(ctx, redisKey("ttl")).Val()
		if ttl <= 0 || ttl > time.Hour {
			t.Errorf("TTL = %v, want (0, 1h]", ttl)
		}
	})

	t.Run("expired session rejected on create", func(t *testing.T) {
		s := New("gone", 3, time.Hour)
		s.ExpiresAt = time.Now().Add(-time.Second)
		if err := store.Create(ctx, s); !errors.Is(err, ErrSessionExpired) {
			t.Errorf("expected ErrSessionExpired, got %v", err)
		}
	})
}
