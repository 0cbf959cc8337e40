// IDEM Realtime - Presence and Notification Fan-out
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/idem-realtime

//go:build !nats

package main

import (
	"github.com/tomtom215/idem-realtime/internal/config"
	"github.com/tomtom215/idem-realtime/internal/logging"
	"github.com/tomtom215/idem-realtime/internal/supervisor"
	ws "github.com/tomtom215/idem-realtime/internal/websocket"
)

// initNATS is a no-op for non-NATS builds.
func initNATS(cfg *config.Config, _ *ws.Hub, _ *supervisor.SupervisorTree) (func(), error) {
	if cfg.NATS.Enabled {
		logging.Warn().Msg("NATS_ENABLED=true but NATS support not compiled (build with -tags nats)")
	}
	return func() {}, nil
}
