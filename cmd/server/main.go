// IDEM Realtime - Presence and Notification Fan-out
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/idem-realtime

package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/tomtom215/idem-realtime/internal/api"
	"github.com/tomtom215/idem-realtime/internal/config"
	"github.com/tomtom215/idem-realtime/internal/logging"
	"github.com/tomtom215/idem-realtime/internal/session"
	"github.com/tomtom215/idem-realtime/internal/supervisor"
	"github.com/tomtom215/idem-realtime/internal/supervisor/services"
	ws "github.com/tomtom215/idem-realtime/internal/websocket"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
	})

	logging.Info().
		Str("addr", cfg.Server.Addr()).
		Str("session_store", cfg.Session.Store).
		Bool("ingress", cfg.Ingress.Enabled).
		Bool("nats", cfg.NATS.Enabled).
		Msg("Starting IDEM realtime server")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	b, err := openBackends(ctx, cfg)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to open backends")
	}
	defer b.close()

	if cfg.Ingress.Enabled && cfg.Ingress.Token == "" {
		logging.Warn().Msg("Ingress is enabled without INGRESS_TOKEN; every ingress request will be rejected")
	}

	validator := session.NewValidator(b.sessions, cfg.Server.AuthTimeout).
		WithCache(cfg.Session.CacheSize, cfg.Session.CacheTTL)

	opts := ws.Options{
		Validator:         validator,
		Conversations:     b.data,
		Notifications:     b.data,
		SendBuffer:        cfg.Server.SendBuffer,
		MaxFrameSize:      cfg.Server.MaxFrameSize,
		AuthTimeout:       cfg.Server.AuthTimeout,
		LookupTimeout:     cfg.Database.QueryTimeout,
		HeartbeatInterval: cfg.Heartbeat.Interval,
		MissedLimit:       cfg.Heartbeat.MissedLimit,
	}
	if b.recorder != nil {
		opts.Presence = b.recorder
	}
	hub := ws.NewHub(opts)

	handler := api.NewHandler(api.Deps{
		Config:        cfg,
		Hub:           hub,
		Sessions:      validator,
		Notifications: b.data,
		LastSeen:      b.lastSeen(),
		OnlineSince:   b.onlineSince(),
		Checks:        b.checks,
	})
	router := api.NewRouter(handler)

	httpServer := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      router.SetupChi(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	tree, err := supervisor.NewSupervisorTree(logging.NewSlogLogger(), supervisor.TreeConfigFrom(cfg.Supervisor))
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to create supervisor tree")
	}

	// Data layer
	if b.recorder != nil {
		tree.AddDataService(services.NewFuncService("presence-recorder", b.recorder.Run))
	}
	tree.AddDataService(services.NewPeriodicService("session-cleanup", sessionCleanupInterval(cfg), b.cleanupSessions))
	if cfg.Session.CacheTTL > 0 {
		tree.AddDataService(services.NewPeriodicService("session-cache-sweep", cfg.Session.CacheTTL, validator.SweepCache))
	}
	if b.mirror != nil {
		tree.AddDataService(services.NewPeriodicService("presence-refresh", b.mirror.Interval(), refreshPresence(b.mirror, hub.OnlineUsers)))
	}

	// Messaging layer
	tree.AddMessagingService(services.NewHubService(hub))
	natsCleanup, err := initNATS(cfg, hub, tree)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to initialize NATS ingress")
	}
	defer natsCleanup()

	// API layer
	tree.AddAPIService(services.NewHTTPServerService(httpServer, cfg.Server.Addr(), cfg.Server.ShutdownTimeout,
		services.WithDrainHook(handler.StartDraining)))

	logging.Info().Msg("Supervisor tree starting")
	if err := tree.Serve(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logging.Error().Err(err).Msg("Supervisor tree exited with error")
	}

	unstopped, _ := tree.UnstoppedServiceReport()
	if len(unstopped) > 0 {
		logging.Warn().Int("count", len(unstopped)).Msg("Services failed to stop within timeout")
		for _, svc := range unstopped {
			logging.Warn().Str("service", svc.Name).Msg("Service failed to stop")
		}
	}
	logging.Info().Msg("Server stopped")
}
