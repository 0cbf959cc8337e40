// IDEM Realtime - Presence and Notification Fan-out
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/idem-realtime

package client

import (
	"context"
	"time"

	"github.com/tomtom215/idem-realtime/internal/config"
)

// Config holds controller settings.
type Config struct {
	// ServerURL is the ws:// or wss:// URL of the /ws endpoint.
	ServerURL string

	// APIBaseURL is the http(s) base used by the polling fallback.
	APIBaseURL string

	MaxReconnectAttempts int
	ReconnectBaseDelay   time.Duration
	PollInterval         time.Duration
	HeartbeatInterval    time.Duration
	TypingInterval       time.Duration
}

// DefaultConfig returns the reference timings against a local server.
func DefaultConfig() Config {
	return Config{
		ServerURL:            "ws://127.0.0.1:8080/ws",
		APIBaseURL:           "http://127.0.0.1:8080",
		MaxReconnectAttempts: 5,
		ReconnectBaseDelay:   time.Second,
		PollInterval:         30 * time.Second,
		HeartbeatInterval:    30 * time.Second,
		TypingInterval:       3 * time.Second,
	}
}

// ConfigFrom maps the client section of the service configuration.
func ConfigFrom(c config.ClientConfig) Config {
	return Config{
		ServerURL:            c.ServerURL,
		APIBaseURL:           c.APIBaseURL,
		MaxReconnectAttempts: c.MaxReconnectAttempts,
		ReconnectBaseDelay:   c.ReconnectBaseDelay,
		PollInterval:         c.PollInterval,
		HeartbeatInterval:    c.HeartbeatInterval,
		TypingInterval:       c.TypingInterval,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.MaxReconnectAttempts <= 0 {
		c.MaxReconnectAttempts = d.MaxReconnectAttempts
	}
	if c.ReconnectBaseDelay <= 0 {
		c.ReconnectBaseDelay = d.ReconnectBaseDelay
	}
	if c.PollInterval <= 0 {
		c.PollInterval = d.PollInterval
	}
	if c.HeartbeatInterval <= 0 {
		c.HeartbeatInterval = d.HeartbeatInterval
	}
	if c.TypingInterval <= 0 {
		c.TypingInterval = d.TypingInterval
	}
	return c
}

// SessionSource yields the session id sent in every auth frame. It is asked
// again on each reconnect so a refreshed session is picked up.
type SessionSource interface {
	SessionID(ctx context.Context) (string, error)
}

// StaticSession is a SessionSource with a fixed id.
type StaticSession string

// SessionID implements SessionSource.
func (s StaticSession) SessionID(context.Context) (string, error) {
	return string(s), nil
}
