// IDEM Realtime - Presence and Notification Fan-out
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/idem-realtime

package websocket

import (
	"context"
	"errors"
	"fmt"

	"github.com/goccy/go-json"

	"github.com/tomtom215/idem-realtime/internal/logging"
	"github.com/tomtom215/idem-realtime/internal/metrics"
	"github.com/tomtom215/idem-realtime/internal/protocol"
)

// ErrInvalidPayload is returned when an event payload is not a JSON object
// or lacks required fields.
var ErrInvalidPayload = errors.New("invalid event payload")

// Event is a domain event pushed to one user.
type Event interface {
	frame() protocol.Outbound
}

// Notification wraps a notification object created by the API.
type Notification struct {
	Payload json.RawMessage
}

// NewMessage wraps a direct message object.
type NewMessage struct {
	ConversationID int64
	Message        json.RawMessage
}

func (e Notification) frame() protocol.Outbound {
	return protocol.Notification{Notification: e.Payload}
}

func (e NewMessage) frame() protocol.Outbound {
	return protocol.NewMessage{ConversationID: protocol.ID(e.ConversationID), Message: e.Message}
}

// FanOut pushes domain events to connected users. Delivery is best effort:
// an event for a user without a connection is dropped.
type FanOut interface {
	// Deliver queues ev for userID and reports whether a connection took it.
	Deliver(userID int64, ev Event) bool

	// DeliverMessage sends a new_message to every participant of the
	// conversation except message.sender_id, returning the number of
	// connections that took it.
	DeliverMessage(ctx context.Context, conversationID int64, message json.RawMessage) (int, error)
}

// PresenceQuery answers whether a user currently holds a connection.
type PresenceQuery interface {
	IsOnline(userID int64) bool
}

var (
	_ FanOut        = (*Hub)(nil)
	_ PresenceQuery = (*Hub)(nil)
)

// Deliver implements FanOut.
func (h *Hub) Deliver(userID int64, ev Event) bool {
	frame := ev.frame()
	event := string(frame.Kind())

	target, ok := h.registry.Lookup(userID)
	if !ok {
		metrics.FanOutDeliveries.WithLabelValues(event, "offline").Inc()
		logging.Debug().Int64("user_id", userID).Str("event", event).Msg("recipient offline, event dropped")
		return false
	}

	if !target.Send(frame) {
		metrics.FanOutDeliveries.WithLabelValues(event, "dropped").Inc()
		return false
	}
	metrics.FanOutDeliveries.WithLabelValues(event, "delivered").Inc()
	return true
}

type messageSender struct {
	SenderID protocol.ID `json:"sender_id"`
}

// DeliverMessage implements FanOut.
func (h *Hub) DeliverMessage(ctx context.Context, conversationID int64, message json.RawMessage) (int, error) {
	if conversationID <= 0 {
		return 0, fmt.Errorf("%w: conversation_id must be positive", ErrInvalidPayload)
	}
	if !protocol.IsObject(message) {
		return 0, fmt.Errorf("%w: message must be an object", ErrInvalidPayload)
	}

	var sender messageSender
	if err := json.Unmarshal(message, &sender); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}

	ctx, cancel := context.WithTimeout(ctx, h.opts.LookupTimeout)
	defer cancel()

	participants, err := h.opts.Conversations.Participants(ctx, conversationID, int64(sender.SenderID))
	if err != nil {
		return 0, fmt.Errorf("load participants for conversation %d: %w", conversationID, err)
	}

	ev := NewMessage{ConversationID: conversationID, Message: message}
	delivered := 0
	for _, userID := range participants {
		if userID == int64(sender.SenderID) {
			continue
		}
		if h.Deliver(userID, ev) {
			delivered++
		}
	}
	return delivered, nil
}

// IsOnline implements PresenceQuery.
func (h *Hub) IsOnline(userID int64) bool {
	_, ok := h.registry.Lookup(userID)
	return ok
}

// OnlineUsers returns the ids of every connected user in ascending order.
func (h *Hub) OnlineUsers() []int64 {
	return h.registry.UserIDs()
}
