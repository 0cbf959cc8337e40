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

	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/tomtom215/idem-realtime/internal/logging"
	"github.com/tomtom215/idem-realtime/internal/metrics"
)

// BreakerSettings configures BreakerStore.
type BreakerSettings struct {
	Name         string
	MaxRequests  uint32        // requests allowed while half-open
	Interval     time.Duration // closed-state counting window
	Timeout      time.Duration // open duration before half-open
	MinRequests  uint32        // requests needed before tripping
	FailureRatio float64       // failure ratio that trips the breaker
}

// BreakerStore wraps a Backend with a circuit breaker so a slow or failing
// database fails fast instead of piling up blocked connection goroutines.
//
// Context cancellation by the caller is not counted as a backend failure.
type BreakerStore struct {
	next Backend
	cb   *gobreaker.CircuitBreaker[any]
	name string
}

// NewBreakerStore wraps next.
func NewBreakerStore(next Backend, s BreakerSettings) *BreakerStore {
	if s.Name == "" {
		s.Name = "postgres"
	}
	if s.FailureRatio <= 0 {
		s.FailureRatio = 0.6
	}

	metrics.CircuitBreakerState.WithLabelValues(s.Name).Set(0)

	cb := gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name:        s.Name,
		MaxRequests: s.MaxRequests,
		Interval:    s.Interval,
		Timeout:     s.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < s.MinRequests {
				return false
			}
			ratio := float64(counts.TotalFailures) / float64(counts.Requests)
			if ratio >= s.FailureRatio {
				logging.Warn().Str("breaker", s.Name).Uint32("failures", counts.TotalFailures).
					Float64("failure_rate", ratio*100).Msg("opening circuit")
				return true
			}
			return false
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Info().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).
				Msg("circuit breaker state transition")
			metrics.CircuitBreakerState.WithLabelValues(name).Set(stateToFloat(to))
			metrics.CircuitBreakerTransitions.WithLabelValues(name, from.String(), to.String()).Inc()
		},
	})

	return &BreakerStore{next: next, cb: cb, name: s.Name}
}

func stateToFloat(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return 0
	}
}

// State returns the breaker state name.
func (b *BreakerStore) State() string {
	return b.cb.State().String()
}

func (b *BreakerStore) execute(fn func() (any, error)) (any, error) {
	result, err := b.cb.Execute(fn)
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			metrics.CircuitBreakerRequests.WithLabelValues(b.name, "rejected").Inc()
			return nil, fmt.Errorf("%w: %v", ErrCircuitOpen, err)
		}
		metrics.CircuitBreakerRequests.WithLabelValues(b.name, "failure").Inc()
		return nil, err
	}
	metrics.CircuitBreakerRequests.WithLabelValues(b.name, "success").Inc()
	return result, nil
}

// Participants implements ConversationStore.
func (b *BreakerStore) Participants(ctx context.Context, conversationID, excluding int64) ([]int64, error) {
	res, err := b.execute(func() (any, error) {
		return b.next.Participants(ctx, conversationID, excluding)
	})
	if err != nil {
		return nil, err
	}
	ids, _ := res.([]int64)
	return ids, nil
}

// UnreadNotifications implements NotificationCounter.
func (b *BreakerStore) UnreadNotifications(ctx context.Context, userID int64) (int64, error) {
	res, err := b.execute(func() (any, error) {
		return b.next.UnreadNotifications(ctx, userID)
	})
	if err != nil {
		return 0, err
	}
	n, _ := res.(int64)
	return n, nil
}

// RecordPresence implements PresenceRecorder.
func (b *BreakerStore) RecordPresence(ctx context.Context, userID int64, online bool, at time.Time) error {
	_, err := b.execute(func() (any, error) {
		return nil, b.next.RecordPresence(ctx, userID, online, at)
	})
	return err
}

// LastSeen implements LastSeenReader.
func (b *BreakerStore) LastSeen(ctx context.Context, userID int64) (time.Time, bool, error) {
	res, err := b.execute(func() (any, error) {
		at, ok, err := b.next.LastSeen(ctx, userID)
		if err != nil || !ok {
			return nil, err
		}
		return at, nil
	})
	if err != nil {
		return time.Time{}, false, err
	}
	at, ok := res.(time.Time)
	return at, ok, nil
}

// Ping bypasses the breaker so readiness reflects the real backend.
func (b *BreakerStore) Ping(ctx context.Context) error {
	return b.next.Ping(ctx)
}

// Close closes the wrapped backend.
func (b *BreakerStore) Close() {
	b.next.Close()
}
