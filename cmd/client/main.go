// IDEM Realtime - Presence and Notification Fan-out
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/idem-realtime

// Package main runs a headless realtime client that logs every pushed event.
// It is useful for smoke-testing a deployment:
//
//	CLIENT_SERVER_URL=wss://idem.example/ws \
//	CLIENT_API_BASE_URL=https://idem.example \
//	CLIENT_SESSION_ID=<session cookie value> ./client
package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/idem-realtime/internal/client"
	"github.com/tomtom215/idem-realtime/internal/config"
	"github.com/tomtom215/idem-realtime/internal/logging"
	"github.com/tomtom215/idem-realtime/internal/protocol"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logging.Init(logging.Config{
		Level:   cfg.Logging.Level,
		Format:  cfg.Logging.Format,
		Caller:  cfg.Logging.Caller,
		Service: "idem-client",
	})

	if cfg.Client.SessionID == "" {
		logging.Fatal().Msg("CLIENT_SESSION_ID is required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	c := client.New(client.ConfigFrom(cfg.Client), client.StaticSession(cfg.Client.SessionID), client.Handler{
		OnAuthenticated: func(userID int64) {
			logging.Info().Int64("user_id", userID).Msg("Authenticated")
		},
		OnNotification: func(n json.RawMessage) {
			logging.Info().RawJSON("notification", n).Msg("Notification")
		},
		OnNewMessage: func(conversationID int64, m json.RawMessage) {
			logging.Info().Int64("conversation_id", conversationID).RawJSON("message", m).Msg("New message")
		},
		OnTyping: func(userID, conversationID int64) {
			logging.Info().Int64("user_id", userID).Int64("conversation_id", conversationID).Msg("Typing")
		},
		OnStopTyping: func(userID, conversationID int64) {
			logging.Info().Int64("user_id", userID).Int64("conversation_id", conversationID).Msg("Stopped typing")
		},
		OnUserStatus: func(userID int64, status protocol.Status, at time.Time) {
			logging.Info().Int64("user_id", userID).Str("status", string(status)).Time("at", at).Msg("User status")
		},
		OnUnreadCount: func(count int64) {
			logging.Info().Int64("count", count).Msg("Unread notifications")
		},
		OnStateChange: func(s client.State) {
			logging.Info().Str("state", s.String()).Msg("Client state")
		},
	})

	if err := c.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		stop()
		logging.Fatal().Err(err).Msg("Client stopped")
	}
}
