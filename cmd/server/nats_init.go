// IDEM Realtime - Presence and Notification Fan-out
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/idem-realtime

//go:build nats

package main

import (
	"fmt"
	"time"

	"github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"

	"github.com/tomtom215/idem-realtime/internal/config"
	"github.com/tomtom215/idem-realtime/internal/logging"
	"github.com/tomtom215/idem-realtime/internal/supervisor"
	"github.com/tomtom215/idem-realtime/internal/supervisor/services"
	ws "github.com/tomtom215/idem-realtime/internal/websocket"
)

const embeddedReadyTimeout = 30 * time.Second

// startEmbeddedNATS runs an in-process NATS server for single-node deployments.
func startEmbeddedNATS(port int) (*server.Server, error) {
	opts := &server.Options{
		ServerName: "idem-realtime",
		Host:       "127.0.0.1",
		Port:       port,
		NoSigs:     true,
		MaxPayload: 1024 * 1024,
	}

	ns, err := server.NewServer(opts)
	if err != nil {
		return nil, fmt.Errorf("create NATS server: %w", err)
	}
	ns.ConfigureLogger()

	go ns.Start()

	if !ns.ReadyForConnections(embeddedReadyTimeout) {
		ns.Shutdown()
		return nil, fmt.Errorf("NATS server not ready within timeout")
	}
	return ns, nil
}

// initNATS connects to NATS (starting an embedded server if configured) and
// registers the event subscriber in the messaging layer. The returned
// cleanup closes the connection and server after the tree stops.
func initNATS(cfg *config.Config, hub *ws.Hub, tree *supervisor.SupervisorTree) (func(), error) {
	if !cfg.NATS.Enabled {
		return func() {}, nil
	}

	var embedded *server.Server
	url := cfg.NATS.URL
	if cfg.NATS.EmbeddedServer {
		ns, err := startEmbeddedNATS(cfg.NATS.EmbeddedPort)
		if err != nil {
			return nil, err
		}
		embedded = ns
		url = ns.ClientURL()
		logging.Info().Str("url", url).Msg("Embedded NATS server started")
	}

	nc, err := nats.Connect(url,
		nats.Name("idem-realtime"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logging.Warn().Err(err).Msg("NATS disconnected")
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logging.Info().Str("url", c.ConnectedUrl()).Msg("NATS reconnected")
		}),
	)
	if err != nil {
		if embedded != nil {
			embedded.Shutdown()
		}
		return nil, fmt.Errorf("connect to NATS at %s: %w", url, err)
	}

	handler := ws.NewNATSConnHandler(nc, cfg.NATS.QueueGroup)
	subscriber := ws.NewNATSSubscriber(hub, handler, ws.NATSSubjects{
		Notification: cfg.NATS.NotificationSubject,
		Message:      cfg.NATS.MessageSubject,
	})
	tree.AddMessagingService(services.NewNATSIngressService(subscriber))

	logging.Info().
		Str("notification_subject", cfg.NATS.NotificationSubject).
		Str("message_subject", cfg.NATS.MessageSubject).
		Msg("NATS ingress configured")

	return func() {
		if err := handler.Close(); err != nil {
			logging.Warn().Err(err).Msg("Error closing NATS handler")
		}
		nc.Close()
		if embedded != nil {
			embedded.Shutdown()
			embedded.WaitForShutdown()
		}
	}, nil
}
