// IDEM Realtime - Presence and Notification Fan-out
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/idem-realtime

/*
Package services adapts the server's long-running components to
suture.Service.

Wrappers:

  - HTTPServerService: per-run listener, drain hooks, then Shutdown
  - HubService: websocket.Hub.RunWithContext
  - NATSIngressService: NATSSubscriber Start / Stop / Wait
  - PeriodicService: a task run on a ticker (session cleanup, presence
    mirror refresh)
  - FuncService: any func(ctx) error, e.g. store.AsyncRecorder.Run

Each wrapper depends on a small interface rather than the concrete type so
that this package imports nothing from the rest of the module except
logging.
*/
package services
