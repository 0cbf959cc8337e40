// IDEM Realtime - Presence and Notification Fan-out
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/idem-realtime

package main

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/tomtom215/idem-realtime/internal/api"
	"github.com/tomtom215/idem-realtime/internal/config"
	"github.com/tomtom215/idem-realtime/internal/logging"
	"github.com/tomtom215/idem-realtime/internal/session"
	"github.com/tomtom215/idem-realtime/internal/store"
)

// backends holds every external dependency the hub and API read from.
type backends struct {
	redis    *redis.Client
	sessions session.Store
	data     store.Backend
	mirror   *store.RedisPresence
	recorder *store.AsyncRecorder
	checks   map[string]api.CheckFunc

	// recordsLastSeen is set when presence changes are written to data.
	recordsLastSeen bool
}

// openBackends connects Redis, the session store and the relational store.
// Optional pieces stay nil when their configuration is empty.
func openBackends(ctx context.Context, cfg *config.Config) (*backends, error) {
	b := &backends{checks: make(map[string]api.CheckFunc)}

	if cfg.Redis.Addr != "" {
		b.redis = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		rdb := b.redis
		b.checks["redis"] = func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		}
		logging.Info().Str("addr", cfg.Redis.Addr).Msg("Redis client configured")
	}

	sessions, err := session.Open(cfg.Session.Store, cfg.Session.Path, b.redis)
	if err != nil {
		b.close()
		return nil, fmt.Errorf("open session store: %w", err)
	}
	b.sessions = sessions
	logging.Info().Str("store", cfg.Session.Store).Msg("Session store opened")

	if cfg.Database.URL != "" {
		pg, err := store.OpenPostgres(ctx, cfg.Database.URL, cfg.Database.MaxConns, cfg.Database.QueryTimeout)
		if err != nil {
			b.close()
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		b.data = store.NewBreakerStore(pg, store.BreakerSettings{
			Name:         "postgres",
			MaxRequests:  cfg.Database.BreakerMaxRequests,
			Interval:     cfg.Database.BreakerInterval,
			Timeout:      cfg.Database.BreakerTimeout,
			MinRequests:  cfg.Database.BreakerMinRequests,
			FailureRatio: cfg.Database.BreakerFailureRatio,
		})
		logging.Info().Msg("Postgres store opened")
	} else {
		b.data = store.NewMemoryStore()
		logging.Warn().Msg("DATABASE_URL not set, using in-memory store (conversations and unread counts are empty)")
	}
	data := b.data
	b.checks["database"] = data.Ping

	var recorders store.MultiRecorder
	if cfg.Presence.RecordLastSeen {
		recorders = append(recorders, b.data)
		b.recordsLastSeen = true
	}
	if cfg.Presence.RedisMirror && b.redis != nil {
		b.mirror = store.NewRedisPresence(b.redis, cfg.Presence.MirrorTTL)
		recorders = append(recorders, b.mirror)
	}
	if len(recorders) > 0 {
		b.recorder = store.NewAsyncRecorder(recorders, cfg.Presence.QueueSize, cfg.Database.QueryTimeout)
	}

	return b, nil
}

// lastSeen returns the persisted last_seen reader, or nil when presence
// changes are not recorded.
func (b *backends) lastSeen() store.LastSeenReader {
	if !b.recordsLastSeen {
		return nil
	}
	return b.data
}

// onlineSince returns the presence mirror lookup, or nil.
func (b *backends) onlineSince() api.OnlineSinceLookup {
	if b.mirror == nil {
		return nil
	}
	return b.mirror
}

// cleanupSessions purges expired sessions from stores that need it.
func (b *backends) cleanupSessions(ctx context.Context) error {
	n, err := b.sessions.CleanupExpired(ctx)
	if err != nil {
		return err
	}
	if n > 0 {
		logging.Debug().Int("removed", n).Msg("Expired sessions purged")
	}
	return nil
}

// refreshPresence extends the TTL of every mirrored online user.
func refreshPresence(mirror *store.RedisPresence, online func() []int64) func(context.Context) error {
	return func(ctx context.Context) error {
		return mirror.Refresh(ctx, online())
	}
}

func (b *backends) close() {
	if b.sessions != nil {
		if err := b.sessions.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing session store")
		}
	}
	if b.data != nil {
		b.data.Close()
	}
	if b.redis != nil {
		if err := b.redis.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing redis client")
		}
	}
}

// sessionCleanupInterval falls back to an hour when unset.
func sessionCleanupInterval(cfg *config.Config) time.Duration {
	if cfg.Session.CleanupInterval > 0 {
		return cfg.Session.CleanupInterval
	}
	return time.Hour
}
