// IDEM Realtime - Presence and Notification Fan-out
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/idem-realtime

package store

import (
	"context"
	"errors"
	"time"

	"github.com/tomtom215/idem-realtime/internal/logging"
	"github.com/tomtom215/idem-realtime/internal/metrics"
)

// MultiRecorder records to every recorder, joining their errors.
type MultiRecorder []PresenceRecorder

// RecordPresence implements PresenceRecorder.
func (m MultiRecorder) RecordPresence(ctx context.Context, userID int64, online bool, at time.Time) error {
	var errs []error
	for _, r := range m {
		if err := r.RecordPresence(ctx, userID, online, at); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

type presenceChange struct {
	userID int64
	online bool
	at     time.Time
}

// AsyncRecorder decouples presence persistence from the hub. Record never
// blocks; changes beyond the queue size are dropped and counted.
type AsyncRecorder struct {
	next    PresenceRecorder
	queue   chan presenceChange
	timeout time.Duration
}

// NewAsyncRecorder creates a recorder with a bounded queue. Run must be
// started for queued changes to be written.
func NewAsyncRecorder(next PresenceRecorder, queueSize int, timeout time.Duration) *AsyncRecorder {
	if queueSize <= 0 {
		queueSize = 1024
	}
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &AsyncRecorder{
		next:    next,
		queue:   make(chan presenceChange, queueSize),
		timeout: timeout,
	}
}

// Record queues a presence change.
func (a *AsyncRecorder) Record(userID int64, online bool, at time.Time) {
	select {
	case a.queue <- presenceChange{userID: userID, online: online, at: at}:
	default:
		metrics.PresenceRecorderDropped.Inc()
		logging.Warn().Int64("user_id", userID).Bool("online", online).Msg("presence recorder queue full, dropping change")
	}
}

// Run writes queued changes until ctx is canceled. It drains nothing on
// exit; presence is derived state and is rebuilt as users reconnect.
func (a *AsyncRecorder) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case c := <-a.queue:
			wctx, cancel := context.WithTimeout(ctx, a.timeout)
			if err := a.next.RecordPresence(wctx, c.userID, c.online, c.at); err != nil {
				logging.Warn().Err(err).Int64("user_id", c.userID).Bool("online", c.online).Msg("failed to record presence")
			}
			cancel()
		}
	}
}

// String implements fmt.Stringer for supervisor logs.
func (a *AsyncRecorder) String() string {
	return "presence-recorder"
}
