// IDEM Realtime - Presence and Notification Fan-out
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/idem-realtime

package api

import (
	"crypto/subtle"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"

	"github.com/tomtom215/idem-realtime/internal/logging"
	"github.com/tomtom215/idem-realtime/internal/protocol"
	ws "github.com/tomtom215/idem-realtime/internal/websocket"
)

const (
	// maxIngressBody caps ingress request bodies.
	maxIngressBody = 1 << 20

	ingressSource = "http"
)

// IngressResult is returned by the fan-out routes.
type IngressResult struct {
	Success   bool `json:"success"`
	Delivered int  `json:"delivered"`
}

// PresenceResponse is returned by GET /internal/v1/presence/{userID}.
type PresenceResponse struct {
	UserID int64 `json:"user_id"`
	Online bool  `json:"online"`

	// LastSeen is the last recorded presence change, read from the database.
	LastSeen *time.Time `json:"last_seen,omitempty"`

	// OnlineSince is when the current session began, read from the presence
	// mirror. It is absent for offline users.
	OnlineSince *time.Time `json:"online_since,omitempty"`
}

// RequireIngressToken checks "Authorization: Bearer <token>" in constant
// time. With no token configured every request is refused.
func (h *Handler) RequireIngressToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		want := h.config.Ingress.Token
		if want == "" {
			respondError(w, r, http.StatusServiceUnavailable, ErrCodeServiceUnavailable, "Ingress token not configured", nil)
			return
		}

		got, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok || subtle.ConstantTimeCompare([]byte(got), []byte(want)) != 1 {
			w.Header().Set("WWW-Authenticate", `Bearer realm="idem-realtime"`)
			respondError(w, r, http.StatusUnauthorized, ErrCodeUnauthorized, "Invalid ingress token", nil)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// decodeBody reads a bounded JSON body into v.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxIngressBody)
	return json.NewDecoder(r.Body).Decode(v)
}

// pathID parses a positive int64 URL parameter.
func pathID(r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

// IngressNotification pushes {user_id, notification} to the user if online.
func (h *Handler) IngressNotification(w http.ResponseWriter, r *http.Request) {
	var req ws.NotificationRequest
	if err := decodeBody(w, r, &req); err != nil {
		respondError(w, r, http.StatusBadRequest, ErrCodeBadRequest, "Invalid JSON body", nil)
		return
	}

	delivered, err := ws.ApplyNotification(h.hub, ingressSource, &req)
	if err != nil {
		respondError(w, r, http.StatusBadRequest, ErrCodeValidationFailed, err.Error(), nil)
		return
	}

	n := 0
	if delivered {
		n = 1
	}
	respondJSON(w, http.StatusAccepted, IngressResult{Success: true, Delivered: n})
}

// IngressMessage fans {message} out to the participants of conversation {id}
// except the sender.
func (h *Handler) IngressMessage(w http.ResponseWriter, r *http.Request) {
	conversationID, ok := pathID(r, "id")
	if !ok {
		respondError(w, r, http.StatusBadRequest, ErrCodeBadRequest, "Invalid conversation id", nil)
		return
	}

	var req ws.MessageRequest
	if err := decodeBody(w, r, &req); err != nil {
		respondError(w, r, http.StatusBadRequest, ErrCodeBadRequest, "Invalid JSON body", nil)
		return
	}
	req.ConversationID = protocol.ID(conversationID)

	n, err := ws.ApplyMessage(r.Context(), h.hub, ingressSource, &req)
	switch {
	case errors.Is(err, ws.ErrInvalidPayload):
		respondError(w, r, http.StatusBadRequest, ErrCodeValidationFailed, err.Error(), nil)
		return
	case err != nil:
		respondError(w, r, http.StatusServiceUnavailable, ErrCodeServiceUnavailable, "Participants unavailable", err)
		return
	}

	respondJSON(w, http.StatusAccepted, IngressResult{Success: true, Delivered: n})
}

// IngressPresence reports whether a user holds a connection on this node.
func (h *Handler) IngressPresence(w http.ResponseWriter, r *http.Request) {
	userID, ok := pathID(r, "userID")
	if !ok {
		respondError(w, r, http.StatusBadRequest, ErrCodeBadRequest, "Invalid user id", nil)
		return
	}

	resp := PresenceResponse{UserID: userID, Online: h.hub.IsOnline(userID)}

	if h.lastSeen != nil {
		at, ok, err := h.lastSeen.LastSeen(r.Context(), userID)
		switch {
		case err != nil:
			logging.Ctx(r.Context()).Warn().Err(err).Int64("user_id", userID).Msg("last seen lookup failed")
		case ok:
			resp.LastSeen = &at
		}
	}

	if h.onlineSince != nil {
		online, at, err := h.onlineSince.Lookup(r.Context(), userID)
		switch {
		case err != nil:
			logging.Ctx(r.Context()).Warn().Err(err).Int64("user_id", userID).Msg("presence mirror lookup failed")
		case online && !at.IsZero():
			resp.OnlineSince = &at
		}
	}

	respondJSON(w, http.StatusOK, resp)
}
