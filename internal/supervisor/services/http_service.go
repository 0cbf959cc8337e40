// IDEM Realtime - Presence and Notification Fan-out
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/idem-realtime

package services

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/thejerf/suture/v4"

	"github.com/tomtom215/idem-realtime/internal/logging"
)

// defaultShutdownTimeout applies when a caller passes a non-positive timeout.
const defaultShutdownTimeout = 10 * time.Second

// HTTPServer is the part of *http.Server the service drives.
type HTTPServer interface {
	Serve(l net.Listener) error
	Shutdown(ctx context.Context) error
}

// ListenFunc opens the listener for one run. net.Listen by default.
type ListenFunc func(network, addr string) (net.Listener, error)

// HTTPServerService serves the WebSocket and polling routes under suture.
//
// Every run binds its own listener, so a port conflict fails the run before
// any request is accepted and suture backs off. When ctx ends the drain
// hooks run first, then Shutdown waits for in-flight HTTP requests. Shutdown
// does not track hijacked WebSocket connections; the hub closes those when
// its own context ends.
type HTTPServerService struct {
	server          HTTPServer
	addr            string
	listen          ListenFunc
	shutdownTimeout time.Duration
	drain           []func()
	name            string
}

// HTTPOption customizes an HTTPServerService.
type HTTPOption func(*HTTPServerService)

// WithListenFunc replaces net.Listen.
func WithListenFunc(fn ListenFunc) HTTPOption {
	return func(s *HTTPServerService) { s.listen = fn }
}

// WithDrainHook runs fn when shutdown begins, before the listener closes.
// Used to fail readiness so load balancers stop routing new handshakes.
func WithDrainHook(fn func()) HTTPOption {
	return func(s *HTTPServerService) { s.drain = append(s.drain, fn) }
}

// NewHTTPServerService serves server on addr. A non-positive
// shutdownTimeout selects 10s.
func NewHTTPServerService(server HTTPServer, addr string, shutdownTimeout time.Duration, opts ...HTTPOption) *HTTPServerService {
	if shutdownTimeout <= 0 {
		shutdownTimeout = defaultShutdownTimeout
	}
	s := &HTTPServerService{
		server:          server,
		addr:            addr,
		listen:          net.Listen,
		shutdownTimeout: shutdownTimeout,
		name:            "http-server",
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Serve implements suture.Service.
func (h *HTTPServerService) Serve(ctx context.Context) error {
	ln, err := h.listen("tcp", h.addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", h.addr, err)
	}
	logging.Info().Str("addr", ln.Addr().String()).Msg("HTTP server listening")

	errCh := make(chan error, 1)
	go func() { errCh <- h.server.Serve(ln) }()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			// Closed outside the supervisor; an *http.Server cannot serve again.
			logging.Warn().Msg("HTTP server closed externally, not restarting")
			return suture.ErrDoNotRestart
		}
		return fmt.Errorf("http server failed: %w", err)

	case <-ctx.Done():
		for _, fn := range h.drain {
			fn()
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), h.shutdownTimeout)
		defer cancel()
		if err := h.server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("http server shutdown failed: %w", err)
		}
		<-errCh
		logging.Info().Msg("HTTP server stopped")
		return ctx.Err()
	}
}

// String implements fmt.Stringer for suture's logs.
func (h *HTTPServerService) String() string {
	return h.name
}
