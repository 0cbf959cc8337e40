// IDEM Realtime - Presence and Notification Fan-out
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/idem-realtime

package services

import (
	"context"
	"fmt"
)

// NATSIngress is satisfied by *websocket.NATSSubscriber.
type NATSIngress interface {
	Start(ctx context.Context) error
	Stop()
	Wait()
}

// NATSIngressService runs the NATS event subscriber under suture.
//
//  1. Start subscribes to the notification and message subjects
//  2. Serve blocks until ctx ends
//  3. Stop cancels the processing loops and Wait drains them
type NATSIngressService struct {
	ingress NATSIngress
	name    string
}

// NewNATSIngressService wraps ingress.
func NewNATSIngressService(ingress NATSIngress) *NATSIngressService {
	return &NATSIngressService{ingress: ingress, name: "nats-ingress"}
}

// Serve implements suture.Service. A Start failure is returned so that
// suture retries with backoff.
func (s *NATSIngressService) Serve(ctx context.Context) error {
	if err := s.ingress.Start(ctx); err != nil {
		return fmt.Errorf("nats ingress start failed: %w", err)
	}

	<-ctx.Done()

	s.ingress.Stop()
	s.ingress.Wait()
	return ctx.Err()
}

// String implements fmt.Stringer.
func (s *NATSIngressService) String() string {
	return s.name
}
