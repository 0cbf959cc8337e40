// IDEM Realtime - Presence and Notification Fan-out
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/idem-realtime

package api

import (
	"net/http"
	"strings"
)

// SessionHeader carries the session id for clients that cannot send cookies.
const SessionHeader = "X-Session-ID"

// UnreadCountResponse is the polling fallback body.
type UnreadCountResponse struct {
	Success     bool  `json:"success"`
	UnreadCount int64 `json:"unread_count"`
}

// sessionID reads the session cookie, then the header.
func (h *Handler) sessionID(r *http.Request) string {
	if c, err := r.Cookie(h.config.Session.CookieName); err == nil && c.Value != "" {
		return c.Value
	}
	return strings.TrimSpace(r.Header.Get(SessionHeader))
}

// UnreadCount returns the caller's unread notification count. Polling
// clients use it when the WebSocket is unavailable.
func (h *Handler) UnreadCount(w http.ResponseWriter, r *http.Request) {
	id := h.sessionID(r)
	if id == "" {
		respondError(w, r, http.StatusUnauthorized, ErrCodeUnauthorized, ErrMissingSession.Error(), nil)
		return
	}

	userID, ok := h.sessions.Validate(r.Context(), id)
	if !ok {
		respondError(w, r, http.StatusUnauthorized, ErrCodeUnauthorized, ErrInvalidSession.Error(), nil)
		return
	}

	count, err := h.notifications.UnreadNotifications(r.Context(), userID)
	if err != nil {
		respondError(w, r, http.StatusServiceUnavailable, ErrCodeServiceUnavailable, "Unread count unavailable", err)
		return
	}

	respondJSON(w, http.StatusOK, UnreadCountResponse{Success: true, UnreadCount: count})
}
