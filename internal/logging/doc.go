// IDEM Realtime - Presence and Notification Fan-out
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/idem-realtime

// Package logging provides centralized zerolog-based structured logging for
// the realtime server and client.
//
// # Overview
//
// The package provides:
//   - A process-wide zerolog logger configured once from main
//   - JSON output for production, console output for development
//   - A service field on every line ("idem-realtime" or "idem-client")
//   - Context-aware logging that carries request and connection ids
//   - An slog adapter so suture's event hook writes through zerolog
//
// # Quick Start
//
//	logging.Init(logging.Config{Level: "info", Format: "json"})
//
//	logging.Info().Int64("user_id", uid).Msg("authenticated")
//	logging.Ctx(ctx).Warn().Err(err).Msg("participants lookup failed")
//
// # Connection Fields
//
// Every per-connection log line should carry the connection id and, once the
// connection is authenticated, the user id:
//
//	log := logging.ForConnection(client.ID(), client.UserID())
//	log.Debug().Str("type", "typing").Msg("frame received")
//
// # Testing
//
// Tests silence output by initializing with io.Discard:
//
//	logging.Init(logging.Config{Level: "info", Format: "console", Output: io.Discard})
package logging
