// IDEM Realtime - Presence and Notification Fan-out
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/idem-realtime

/*
Package client implements the reconnection controller that runs inside every
realtime client.

The controller keeps one WebSocket to the server, authenticates it with the
web session id and surfaces pushed frames through a Handler. When the
connection cannot be kept up it gives up and pulls the unread notification
count over HTTP instead.

States:

	DISCONNECTED ──dial──▶ CONNECTING ──auth_success──▶ CONNECTED
	     ▲                     │                           │
	     └──── backoff ◀───────┴──── close / auth_error ◀──┘
	                           │
	                 attempts >= max
	                           ▼
	                        POLLING (terminal)

Reconnect delays are base, 2x base, 4x base and so on (no jitter). The
attempt counter resets on every auth_success. Authentication is per
connection; every reconnect runs the auth handshake again.

Usage:

	c := client.New(client.ConfigFrom(cfg.Client), client.StaticSession(id), client.Handler{
	    OnNotification: func(n json.RawMessage) { ... },
	    OnUnreadCount:  func(count int64) { ... },
	})
	go c.Run(ctx)
	_ = c.Typing(conversationID)
*/
package client
