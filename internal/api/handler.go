// IDEM Realtime - Presence and Notification Fan-out
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/idem-realtime

package api

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/tomtom215/idem-realtime/internal/config"
	"github.com/tomtom215/idem-realtime/internal/session"
	"github.com/tomtom215/idem-realtime/internal/store"
	ws "github.com/tomtom215/idem-realtime/internal/websocket"
)

// CheckFunc is a readiness check for one dependency.
type CheckFunc func(ctx context.Context) error

// OnlineSinceLookup reports the mirrored presence of a user and when the
// current session began. It is satisfied by store.RedisPresence.
type OnlineSinceLookup interface {
	Lookup(ctx context.Context, userID int64) (online bool, at time.Time, err error)
}

// Deps collects the Handler's collaborators. Config, Hub, Sessions and
// Notifications are required.
type Deps struct {
	Config        *config.Config
	Hub           *ws.Hub
	Sessions      session.Validator
	Notifications store.NotificationCounter

	// LastSeen adds the persisted last_seen to presence responses when set.
	LastSeen store.LastSeenReader

	// OnlineSince adds online_since from the presence mirror when set.
	OnlineSince OnlineSinceLookup

	// Checks are run by /readyz, keyed by dependency name.
	Checks map[string]CheckFunc
}

// Handler contains dependencies for API handlers.
//
// Handler methods are split across files:
//   - handlers_ws.go: WebSocket upgrade
//   - handlers_health.go: liveness and readiness
//   - handlers_notifications.go: unread count for polling clients
//   - handlers_ingress.go: internal fan-out and presence routes
type Handler struct {
	config        *config.Config
	hub           *ws.Hub
	sessions      session.Validator
	notifications store.NotificationCounter
	lastSeen      store.LastSeenReader
	onlineSince   OnlineSinceLookup
	checks        map[string]CheckFunc
	startTime     time.Time

	// draining fails readiness once shutdown has begun.
	draining atomic.Bool
}

// StartDraining makes /readyz report 503 so new handshakes go elsewhere
// while existing connections are closed.
func (h *Handler) StartDraining() {
	h.draining.Store(true)
}

// NewHandler creates a Handler from deps.
func NewHandler(deps Deps) *Handler {
	checks := deps.Checks
	if checks == nil {
		checks = map[string]CheckFunc{}
	}
	return &Handler{
		config:        deps.Config,
		hub:           deps.Hub,
		sessions:      deps.Sessions,
		notifications: deps.Notifications,
		lastSeen:      deps.LastSeen,
		onlineSince:   deps.OnlineSince,
		checks:        checks,
		startTime:     time.Now(),
	}
}
