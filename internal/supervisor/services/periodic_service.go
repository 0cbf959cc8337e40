// IDEM Realtime - Presence and Notification Fan-out
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/idem-realtime

package services

import (
	"context"
	"time"

	"github.com/tomtom215/idem-realtime/internal/logging"
)

// PeriodicService runs task every interval until ctx ends.
//
// A failing task is logged and retried on the next tick; it never makes
// Serve return, so a flapping Redis does not churn the supervisor.
type PeriodicService struct {
	name     string
	interval time.Duration
	task     func(ctx context.Context) error
}

// NewPeriodicService creates a service running task every interval.
func NewPeriodicService(name string, interval time.Duration, task func(ctx context.Context) error) *PeriodicService {
	return &PeriodicService{name: name, interval: interval, task: task}
}

// Serve implements suture.Service.
func (s *PeriodicService) Serve(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := s.task(ctx); err != nil && ctx.Err() == nil {
				logging.Warn().Err(err).Str("service", s.name).Msg("periodic task failed")
			}
		}
	}
}

// String implements fmt.Stringer.
func (s *PeriodicService) String() string {
	return s.name
}
