// IDEM Realtime - Presence and Notification Fan-out
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/idem-realtime

package config

import (
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"
)

// Validate checks that required configuration is present and valid.
func (c *Config) Validate() error {
	if err := c.validateServer(); err != nil {
		return err
	}

	if err := c.validateHeartbeat(); err != nil {
		return err
	}

	if err := c.validateClient(); err != nil {
		return err
	}

	if err := c.validateSession(); err != nil {
		return err
	}

	if err := c.validateNATS(); err != nil {
		return err
	}

	return c.validateLogging()
}

func (c *Config) validateServer() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("HTTP_PORT must be between 1 and 65535, got %d", c.Server.Port)
	}
	if c.Server.SendBuffer < 1 {
		return fmt.Errorf("WS_SEND_BUFFER must be at least 1, got %d", c.Server.SendBuffer)
	}
	if c.Server.MaxFrameSize < 512 {
		return fmt.Errorf("WS_MAX_FRAME_SIZE must be at least 512 bytes, got %d", c.Server.MaxFrameSize)
	}
	if c.Server.AuthTimeout <= 0 {
		return fmt.Errorf("WS_AUTH_TIMEOUT must be positive")
	}
	if c.Server.HandshakeRateLimit < 0 {
		return fmt.Errorf("WS_HANDSHAKE_RATE_LIMIT must not be negative")
	}
	return nil
}

func (c *Config) validateHeartbeat() error {
	if c.Heartbeat.Interval < time.Second {
		return fmt.Errorf("HEARTBEAT_INTERVAL must be at least 1s, got %v", c.Heartbeat.Interval)
	}
	if c.Heartbeat.MissedLimit < 1 {
		return fmt.Errorf("HEARTBEAT_MISSED_LIMIT must be at least 1, got %d", c.Heartbeat.MissedLimit)
	}
	return nil
}

func (c *Config) validateClient() error {
	if c.Client.MaxReconnectAttempts < 1 {
		return fmt.Errorf("CLIENT_MAX_RECONNECT_ATTEMPTS must be at least 1, got %d", c.Client.MaxReconnectAttempts)
	}
	if c.Client.ReconnectBaseDelay <= 0 {
		return fmt.Errorf("CLIENT_RECONNECT_BASE_DELAY must be positive")
	}
	if c.Client.PollInterval <= 0 {
		return fmt.Errorf("CLIENT_POLL_INTERVAL must be positive")
	}
	return nil
}

func (c *Config) validateSession() error {
	switch c.Session.Store {
	case "memory":
	case "badger":
		if c.Session.Path == "" {
			return fmt.Errorf("SESSION_PATH is required when SESSION_STORE=badger")
		}
	case "redis":
		if c.Redis.Addr == "" {
			return fmt.Errorf("REDIS_ADDR is required when SESSION_STORE=redis")
		}
	default:
		return fmt.Errorf("SESSION_STORE must be one of memory, badger, redis; got %q", c.Session.Store)
	}
	if c.Session.TTL <= 0 {
		return fmt.Errorf("SESSION_TTL must be positive")
	}
	if c.Session.CacheTTL < 0 || c.Session.CacheSize < 0 {
		return fmt.Errorf("SESSION_CACHE_TTL and SESSION_CACHE_SIZE must not be negative")
	}
	return nil
}

func (c *Config) validateNATS() error {
	if !c.NATS.Enabled {
		return nil
	}
	if c.NATS.URL == "" && !c.NATS.EmbeddedServer {
		return fmt.Errorf("NATS_URL is required when NATS_ENABLED=true")
	}
	if c.NATS.NotificationSubject == "" || c.NATS.MessageSubject == "" {
		return fmt.Errorf("NATS subjects must not be empty")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch strings.ToLower(c.Logging.Level) {
	case "trace", "debug", "info", "warn", "warning", "error", "fatal", "panic", "disabled":
	default:
		return fmt.Errorf("LOG_LEVEL %q is not a valid level", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "json", "console":
	default:
		return fmt.Errorf("LOG_FORMAT must be json or console, got %q", c.Logging.Format)
	}
	return nil
}

func joinHostPort(host string, port int) string {
	return net.JoinHostPort(host, strconv.Itoa(port))
}
