// IDEM Realtime - Presence and Notification Fan-out
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/idem-realtime

/*
Package main is the entry point for the IDEM realtime server.

The server holds one WebSocket per online user and pushes notifications, new
messages, typing indicators and online/offline changes to them. The CRUD
backend hands events over through the internal HTTP ingress or NATS.

# Supervisor Tree

	RootSupervisor ("idem-realtime")
	├── DataSupervisor ("data-layer")
	│   ├── presence-recorder (last_seen + redis mirror writes)
	│   ├── session-cleanup (periodic)
	│   └── presence-refresh (periodic, redis mirror only)
	├── MessagingSupervisor ("messaging-layer")
	│   ├── websocket-hub
	│   └── nats-ingress (optional, -tags nats)
	└── APISupervisor ("api-layer")
	    └── http-server (/ws, /api/v1, /internal/v1, /healthz, /readyz, /metrics)

# Configuration

Koanf v2 layers built-in defaults, an optional config.yaml and environment
variables. The most used variables:

	HTTP_PORT=8080
	SESSION_STORE=memory|badger|redis
	DATABASE_URL=postgres://idem:idem@db:5432/idem
	REDIS_ADDR=redis:6379
	INGRESS_TOKEN=change-me
	NATS_ENABLED=true NATS_EMBEDDED=true

Without DATABASE_URL an in-memory store is used, so conversations have no
participants and unread counts are zero.

# Build Tags

	go build ./cmd/server               # HTTP ingress only
	go build -tags nats ./cmd/server    # plus NATS event ingress

# Signals

SIGINT and SIGTERM cancel the root context. The HTTP server drains, the hub
closes every connection with 1001. Queued presence writes are dropped;
presence is rebuilt as users reconnect.
*/
package main
