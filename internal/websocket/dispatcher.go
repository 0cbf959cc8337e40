// IDEM Realtime - Presence and Notification Fan-out
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/idem-realtime

package websocket

import (
	"context"
	"errors"

	"github.com/tomtom215/idem-realtime/internal/metrics"
	"github.com/tomtom215/idem-realtime/internal/protocol"
)

// auth_error messages.
const (
	authErrSessionRequired      = "session id required"
	authErrInvalidSession       = "invalid session"
	authErrAlreadyAuthenticated = "already authenticated"
)

// dispatch handles one inbound frame on the connection's read goroutine.
// Protocol errors are logged and dropped; the connection stays open.
func (h *Hub) dispatch(c *Client, data []byte) {
	frame, err := protocol.ParseInbound(data)
	if err != nil {
		reason := "malformed"
		if errors.Is(err, protocol.ErrUnknownType) {
			reason = "unknown_type"
		}
		metrics.WSProtocolErrors.WithLabelValues(reason).Inc()
		c.log().Warn().Err(err).Int("bytes", len(data)).Msg("dropping invalid frame")
		if errors.Is(err, protocol.ErrInvalidAuth) {
			h.rejectAuth(c, "invalid", authErrInvalidSession)
		}
		return
	}

	metrics.WSFramesReceived.WithLabelValues(string(frame.Kind())).Inc()

	if _, ok := frame.(protocol.Auth); !ok && c.State() != StateAuthenticated {
		c.log().Debug().Str("frame", string(frame.Kind())).Msg("ignoring frame before authentication")
		return
	}

	switch f := frame.(type) {
	case protocol.Auth:
		h.handleAuth(c, f)
	case protocol.Typing:
		h.relayTyping(c, int64(f.ConversationID), true)
	case protocol.StopTyping:
		h.relayTyping(c, int64(f.ConversationID), false)
	case protocol.Ping:
		c.Send(protocol.Pong{})
	}
}

func (h *Hub) handleAuth(c *Client, f protocol.Auth) {
	if f.SessionID == "" {
		h.rejectAuth(c, "empty", authErrSessionRequired)
		return
	}
	if c.State() == StateAuthenticated {
		h.rejectAuth(c, "duplicate", authErrAlreadyAuthenticated)
		return
	}

	ctx, cancel := context.WithTimeout(c.ctx, h.opts.AuthTimeout)
	userID, ok := h.opts.Validator.Validate(ctx, f.SessionID)
	cancel()

	if !ok || userID <= 0 {
		metrics.WSAuthAttempts.WithLabelValues("invalid").Inc()
		c.log().Info().Msg("authentication rejected")
		c.Send(protocol.AuthError{Message: authErrInvalidSession})
		return
	}

	h.authenticate(c, userID)
}

// rejectAuth answers an auth frame that cannot bind the connection. An
// authenticated connection always hears "already authenticated".
func (h *Hub) rejectAuth(c *Client, result, message string) {
	if c.State() == StateAuthenticated {
		result, message = "duplicate", authErrAlreadyAuthenticated
	}
	metrics.WSAuthAttempts.WithLabelValues(result).Inc()
	c.Send(protocol.AuthError{Message: message})
}
