// IDEM Realtime - Presence and Notification Fan-out
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/idem-realtime

package services

import (
	"context"
	"errors"
	"io"
	"sync/atomic"
	"testing"
	"time"

	"github.com/thejerf/suture/v4"

	"github.com/tomtom215/idem-realtime/internal/logging"
)

//nolint:gochecknoinits // init ensures consistent logging for tests
func init() {
	logging.Init(logging.Config{
		Level:  "info",
		Format: "console",
		Output: io.Discard,
	})
}

var (
	_ suture.Service = (*HubService)(nil)
	_ suture.Service = (*FuncService)(nil)
	_ suture.Service = (*PeriodicService)(nil)
	_ suture.Service = (*NATSIngressService)(nil)
)

type mockHub struct {
	runs atomic.Int32
}

func (m *mockHub) RunWithContext(ctx context.Context) error {
	m.runs.Add(1)
	<-ctx.Done()
	return ctx.Err()
}

func TestHubService(t *testing.T) {
	hub := &mockHub{}
	svc := NewHubService(hub)

	if svc.String() != "websocket-hub" {
		t.Errorf("String() = %q, want websocket-hub", svc.String())
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	if err := svc.Serve(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Serve() = %v, want context.DeadlineExceeded", err)
	}
	if hub.runs.Load() != 1 {
		t.Errorf("RunWithContext calls = %d, want 1", hub.runs.Load())
	}
}

func TestFuncService(t *testing.T) {
	wantErr := errors.New("recorder failed")
	svc := NewFuncService("presence-recorder", func(context.Context) error { return wantErr })

	if svc.String() != "presence-recorder" {
		t.Errorf("String() = %q", svc.String())
	}
	if err := svc.Serve(context.Background()); !errors.Is(err, wantErr) {
		t.Errorf("Serve() = %v, want %v", err, wantErr)
	}
}

func TestPeriodicService(t *testing.T) {
	t.Run("runs task on every tick", func(t *testing.T) {
		var calls atomic.Int32
		svc := NewPeriodicService("session-cleanup", 10*time.Millisecond, func(context.Context) error {
			calls.Add(1)
			return nil
		})

		ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
		defer cancel()

		if err := svc.Serve(ctx); !errors.Is(err, context.DeadlineExceeded) {
			t.Errorf("Serve() = %v, want context.DeadlineExceeded", err)
		}
		if calls.Load() < 3 {
			t.Errorf("task ran %d times, want at least 3", calls.Load())
		}
	})

	t.Run("task errors do not stop the service", func(t *testing.T) {
		var calls atomic.Int32
		svc := NewPeriodicService("presence-refresh", 10*time.Millisecond, func(context.Context) error {
			calls.Add(1)
			return errors.New("redis unavailable")
		})

		ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
		defer cancel()

		if err := svc.Serve(ctx); !errors.Is(err, context.DeadlineExceeded) {
			t.Errorf("Serve() = %v, want context.DeadlineExceeded", err)
		}
		if calls.Load() < 2 {
			t.Errorf("task ran %d times, want retries after failure", calls.Load())
		}
	})
}

type mockIngress struct {
	startErr error
	started  atomic.Int32
	stopped  atomic.Int32
	waited   atomic.Int32
}

func (m *mockIngress) Start(context.Context) error {
	if m.startErr != nil {
		return m.startErr
	}
	m.started.Add(1)
	return nil
}

func (m *mockIngress) Stop() { m.stopped.Add(1) }
func (m *mockIngress) Wait() { m.waited.Add(1) }

func TestNATSIngressService(t *testing.T) {
	t.Run("starts and stops the subscriber", func(t *testing.T) {
		ingress := &mockIngress{}
		svc := NewNATSIngressService(ingress)

		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()

		if err := svc.Serve(ctx); !errors.Is(err, context.DeadlineExceeded) {
			t.Errorf("Serve() = %v, want context.DeadlineExceeded", err)
		}
		if ingress.started.Load() != 1 || ingress.stopped.Load() != 1 || ingress.waited.Load() != 1 {
			t.Errorf("start/stop/wait = %d/%d/%d, want 1/1/1",
				ingress.started.Load(), ingress.stopped.Load(), ingress.waited.Load())
		}
	})

	t.Run("start failure is returned for restart", func(t *testing.T) {
		startErr := errors.New("nats: no servers available for connection")
		svc := NewNATSIngressService(&mockIngress{startErr: startErr})

		if err := svc.Serve(context.Background()); !errors.Is(err, startErr) {
			t.Errorf("Serve() = %v, want wrapped %v", err, startErr)
		}
	})

	t.Run("restarted by supervisor after failure", func(t *testing.T) {
		ingress := &flakyIngress{failures: 2}
		sup := suture.New("test-sup", suture.Spec{
			FailureThreshold: 10,
			FailureBackoff:   10 * time.Millisecond,
			Timeout:          time.Second,
		})
		sup.Add(NewNATSIngressService(ingress))

		ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
		defer cancel()
		errCh := sup.ServeBackground(ctx)

		deadline := time.Now().Add(400 * time.Millisecond)
		for ingress.attempts.Load() < 3 && time.Now().Before(deadline) {
			time.Sleep(10 * time.Millisecond)
		}
		if ingress.attempts.Load() < 3 {
			t.Errorf("Start attempts = %d, want at least 3", ingress.attempts.Load())
		}

		cancel()
		<-errCh
	})
}

type flakyIngress struct {
	failures int32
	attempts atomic.Int32
}

func (f *flakyIngress) Start(context.Context) error {
	if f.attempts.Add(1) <= f.failures {
		return errors.New("connection refused")
	}
	return nil
}

func (f *flakyIngress) Stop() {}
func (f *flakyIngress) Wait() {}
