// IDEM Realtime - Presence and Notification Fan-out
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/idem-realtime

package client

import (
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/idem-realtime/internal/protocol"
)

// Handler receives pushed frames. Nil callbacks are skipped. Callbacks run on
// the controller goroutine and should return quickly.
type Handler struct {
	OnAuthenticated func(userID int64)
	OnNotification  func(notification json.RawMessage)
	OnNewMessage    func(conversationID int64, message json.RawMessage)
	OnTyping        func(userID, conversationID int64)
	OnStopTyping    func(userID, conversationID int64)
	OnUserStatus    func(userID int64, status protocol.Status, at time.Time)

	// OnUnreadCount is called for pushed counts and for every poll.
	OnUnreadCount func(count int64)

	OnStateChange func(state State)
}

func (h *Handler) dispatch(f protocol.Outbound) {
	switch f := f.(type) {
	case protocol.Notification:
		if h.OnNotification != nil {
			h.OnNotification(f.Notification)
		}
	case protocol.NewMessage:
		if h.OnNewMessage != nil {
			h.OnNewMessage(int64(f.ConversationID), f.Message)
		}
	case protocol.UserTyping:
		if h.OnTyping != nil {
			h.OnTyping(int64(f.UserID), int64(f.ConversationID))
		}
	case protocol.UserStoppedTyping:
		if h.OnStopTyping != nil {
			h.OnStopTyping(int64(f.UserID), int64(f.ConversationID))
		}
	case protocol.UserStatus:
		if h.OnUserStatus != nil {
			h.OnUserStatus(int64(f.UserID), f.Status, f.Timestamp)
		}
	case protocol.UnreadCount:
		if h.OnUnreadCount != nil {
			h.OnUnreadCount(f.Count)
		}
	}
}
