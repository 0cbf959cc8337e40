// IDEM Realtime - Presence and Notification Fan-out
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/idem-realtime

/*
Package api provides the HTTP surface of the realtime service.

Routes:

	GET  /ws                                     WebSocket upgrade
	GET  /healthz                                liveness
	GET  /readyz                                 readiness (store pings)
	GET  /metrics                                Prometheus
	GET  /api/v1/notifications/unread-count      polling fallback
	POST /internal/v1/notifications              push a notification
	POST /internal/v1/conversations/{id}/messages fan out a new message
	GET  /internal/v1/presence/{userID}          online check

/ws checks the Origin header against server.allowed_origins and is rate
limited per IP with httprate. The unread-count endpoint authenticates with
the session cookie or an X-Session-ID header. /internal/v1 is for the CRUD
backend: it requires "Authorization: Bearer <ingress.token>" and refuses
every request while no token is configured.

Usage Example:

	handler := api.NewHandler(api.Deps{
	    Config:        cfg,
	    Hub:           hub,
	    Sessions:      validator,
	    Notifications: st,
	})
	srv := &http.Server{Handler: api.NewRouter(handler).SetupChi()}

See Also:

  - internal/websocket: Hub, FanOut and the ingress request types
  - internal/middleware: request id and metrics middleware
*/
package api
