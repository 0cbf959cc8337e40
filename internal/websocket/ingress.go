// IDEM Realtime - Presence and Notification Fan-out
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/idem-realtime

package websocket

import (
	"context"
	"fmt"

	"github.com/goccy/go-json"

	"github.com/tomtom215/idem-realtime/internal/metrics"
	"github.com/tomtom215/idem-realtime/internal/protocol"
)

// NotificationRequest is the body collaborators send to push a notification,
// over HTTP or NATS.
type NotificationRequest struct {
	UserID       protocol.ID     `json:"user_id" validate:"gt=0"`
	Notification json.RawMessage `json:"notification" validate:"required"`
}

// MessageRequest is the body collaborators send when a direct message was
// stored. Over HTTP the conversation id comes from the path.
type MessageRequest struct {
	ConversationID protocol.ID     `json:"conversation_id" validate:"gt=0"`
	Message        json.RawMessage `json:"message" validate:"required"`
}

// Validate checks ids and that the payload is a JSON object.
func (r *NotificationRequest) Validate() error {
	if err := protocol.ValidateStruct(r); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	if !protocol.IsObject(r.Notification) {
		return fmt.Errorf("%w: notification must be an object", ErrInvalidPayload)
	}
	return nil
}

// Validate checks ids and that the payload is a JSON object.
func (r *MessageRequest) Validate() error {
	if err := protocol.ValidateStruct(r); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	if !protocol.IsObject(r.Message) {
		return fmt.Errorf("%w: message must be an object", ErrInvalidPayload)
	}
	return nil
}

// ApplyNotification validates req and delivers it. source labels metrics.
func ApplyNotification(f FanOut, source string, req *NotificationRequest) (bool, error) {
	if err := req.Validate(); err != nil {
		metrics.IngressRequests.WithLabelValues(source, "notification", "invalid").Inc()
		return false, err
	}
	delivered := f.Deliver(int64(req.UserID), Notification{Payload: req.Notification})
	metrics.IngressRequests.WithLabelValues(source, "notification", "accepted").Inc()
	return delivered, nil
}

// ApplyMessage validates req and fans it out to the conversation.
func ApplyMessage(ctx context.Context, f FanOut, source string, req *MessageRequest) (int, error) {
	if err := req.Validate(); err != nil {
		metrics.IngressRequests.WithLabelValues(source, "message", "invalid").Inc()
		return 0, err
	}
	n, err := f.DeliverMessage(ctx, int64(req.ConversationID), req.Message)
	if err != nil {
		metrics.IngressRequests.WithLabelValues(source, "message", "error").Inc()
		return 0, err
	}
	metrics.IngressRequests.WithLabelValues(source, "message", "accepted").Inc()
	return n, nil
}
