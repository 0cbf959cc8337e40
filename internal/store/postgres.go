// IDEM Realtime - Presence and Notification Fan-out
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/idem-realtime

package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tomtom215/idem-realtime/internal/metrics"
)

const (
	participantsSQL = `SELECT user_id FROM conversation_participants
WHERE conversation_id = $1 AND user_id <> $2 AND left_at IS NULL
ORDER BY user_id`

	unreadSQL = `SELECT COUNT(*) FROM notifications
WHERE user_id = $1 AND read_at IS NULL`

	lastSeenSQL = `UPDATE users SET last_seen = $2 WHERE id = $1`

	readLastSeenSQL = `SELECT last_seen FROM users WHERE id = $1`
)

// PostgresStore reads the social network's relational schema.
type PostgresStore struct {
	pool    *pgxpool.Pool
	timeout time.Duration
}

// OpenPostgres connects a pgx pool and verifies connectivity.
func OpenPostgres(ctx context.Context, url string, maxConns int32, queryTimeout time.Duration) (*PostgresStore, error) {
	cfg, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	if maxConns > 0 {
		cfg.MaxConns = maxConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create pgx pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return &PostgresStore{pool: pool, timeout: queryTimeout}, nil
}

func (s *PostgresStore) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.timeout)
}

// Participants implements ConversationStore.
func (s *PostgresStore) Participants(ctx context.Context, conversationID, excluding int64) ([]int64, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	start := time.Now()
	rows, err := s.pool.Query(ctx, participantsSQL, conversationID, excluding)
	if err != nil {
		metrics.RecordStoreQuery("participants", time.Since(start), err)
		return nil, fmt.Errorf("query participants: %w", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[int64])
	metrics.RecordStoreQuery("participants", time.Since(start), err)
	if err != nil {
		return nil, fmt.Errorf("scan participants: %w", err)
	}
	return ids, nil
}

// UnreadNotifications implements NotificationCounter.
func (s *PostgresStore) UnreadNotifications(ctx context.Context, userID int64) (int64, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	start := time.Now()
	var count int64
	err := s.pool.QueryRow(ctx, unreadSQL, userID).Scan(&count)
	metrics.RecordStoreQuery("unread_count", time.Since(start), err)
	if err != nil {
		return 0, fmt.Errorf("count unread notifications: %w", err)
	}
	return count, nil
}

// RecordPresence implements PresenceRecorder by updating users.last_seen.
// Both transitions are recorded: the online time is the start of the
// session and the offline time is when the user was last reachable.
func (s *PostgresStore) RecordPresence(ctx context.Context, userID int64, _ bool, at time.Time) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	start := time.Now()
	_, err := s.pool.Exec(ctx, lastSeenSQL, userID, at)
	metrics.RecordStoreQuery("last_seen", time.Since(start), err)
	if err != nil {
		return fmt.Errorf("update last_seen: %w", err)
	}
	return nil
}

// LastSeen implements LastSeenReader. Unknown users and a NULL column both
// report ok == false.
func (s *PostgresStore) LastSeen(ctx context.Context, userID int64) (time.Time, bool, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	start := time.Now()
	var at *time.Time
	err := s.pool.QueryRow(ctx, readLastSeenSQL, userID).Scan(&at)
	if errors.Is(err, pgx.ErrNoRows) {
		err = nil
	}
	metrics.RecordStoreQuery("read_last_seen", time.Since(start), err)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("read last_seen: %w", err)
	}
	if at == nil {
		return time.Time{}, false, nil
	}
	return *at, true, nil
}

// Ping checks database connectivity.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close closes the pool.
func (s *PostgresStore) Close() {
	s.pool.Close()
}
