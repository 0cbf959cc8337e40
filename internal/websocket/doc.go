// IDEM Realtime - Presence and Notification Fan-out
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/idem-realtime

/*
Package websocket holds one persistent connection per online user and relays
notifications, new messages, typing indicators and presence changes to the
right subset of them.

Key Components:

  - Hub: owns connection lifecycle (attach, authenticate, detach) on a single
    goroutine and broadcasts presence
  - Registry: user id to connection map shared with fan-out
  - Client: one websocket connection with a read and a write goroutine
  - FanOut / PresenceQuery: the interfaces collaborators call to push events

Architecture:

	            ┌───────────────┐
	 attach ──▶ │      Hub      │ ──▶ user_status online/offline
	 promote ─▶ │ RunWithContext│
	 detach ──▶ └──────┬────────┘
	                   │ Register / Unregister
	              ┌────▼─────┐
	 Deliver ───▶ │ Registry │ ◀── typing relay (reader goroutines)
	              └────┬─────┘
	       ┌───────────┼───────────┐
	   Client 1    Client 2    Client 3

Each client has two goroutines:
  - readPump: parses frames and dispatches them in arrival order
  - writePump: writes queued frames, control pings and the final close frame

Connection states:

	CONNECTING --auth ok--> AUTHENTICATED --transport gone--> CLOSED
	    |                                                       ^
	    +---------------------- transport gone -----------------+

Before authentication only auth frames are acted on. A rejected auth leaves
the connection in CONNECTING. A second successful login for the same user
closes the older connection with code 4000; its close does not announce the
user offline.

Wire format:

Text frames holding a JSON object with a "type" field. See package protocol
for the frame catalogue.

Heartbeat:

The server sends a control ping every heartbeat interval. Any inbound frame or
pong extends the read deadline to interval x missed limit; expiry closes the
connection like any other transport failure.

Thread Safety:

  - Registry uses an RWMutex and is read by Deliver from any goroutine
  - Sends never block: frames go into a bounded per-connection buffer and are
    dropped (and counted) when it is full
  - Session, participant and unread count lookups run on the connection's own
    goroutine with a timeout, so a slow store only stalls that connection

NATS ingress:

Built with -tags nats, NATSSubscriber consumes notification and message
events from NATS subjects and calls FanOut. Without the tag a stub is
compiled.

See Also:

  - github.com/gorilla/websocket: Underlying WebSocket library
  - internal/protocol: frame types and codec
  - internal/api: /ws upgrade handler and HTTP ingress
*/
package websocket
