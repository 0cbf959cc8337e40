// IDEM Realtime - Presence and Notification Fan-out
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/idem-realtime

package api

import (
	"context"
	"net/http"
	"sort"
	"time"
)

// readyTimeout bounds all readiness checks together.
const readyTimeout = 2 * time.Second

// HealthStatus is the /healthz and /readyz body.
type HealthStatus struct {
	Status      string            `json:"status"`
	Uptime      float64           `json:"uptime_seconds"`
	Connections int               `json:"connections"`
	OnlineUsers int               `json:"online_users"`
	Checks      map[string]string `json:"checks,omitempty"`
}

// Healthz reports liveness. It never touches external dependencies.
func (h *Handler) Healthz(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, h.status("healthy", nil))
}

// Readyz runs every registered check and returns 503 if any fails or the
// server is draining.
func (h *Handler) Readyz(w http.ResponseWriter, r *http.Request) {
	if h.draining.Load() {
		respondJSON(w, http.StatusServiceUnavailable, h.status("draining", nil))
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), readyTimeout)
	defer cancel()

	names := make([]string, 0, len(h.checks))
	for name := range h.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	results := make(map[string]string, len(names))
	ready := true
	for _, name := range names {
		if err := h.checks[name](ctx); err != nil {
			results[name] = sanitizeLogValue(err.Error())
			ready = false
			continue
		}
		results[name] = "ok"
	}

	if !ready {
		respondJSON(w, http.StatusServiceUnavailable, h.status("degraded", results))
		return
	}
	respondJSON(w, http.StatusOK, h.status("ready", results))
}

func (h *Handler) status(s string, checks map[string]string) HealthStatus {
	return HealthStatus{
		Status:      s,
		Uptime:      time.Since(h.startTime).Seconds(),
		Connections: h.hub.GetClientCount(),
		OnlineUsers: h.hub.Registry().Len(),
		Checks:      checks,
	}
}
