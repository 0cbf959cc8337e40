// IDEM Realtime - Presence and Notification Fan-out
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/idem-realtime

package logging

import (
	"context"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type contextKey string

const (
	requestIDKey contextKey = "request_id"
	connIDKey    contextKey = "conn_id"
	userIDKey    contextKey = "user_id"
)

// GenerateRequestID creates a new unique request ID.
func GenerateRequestID() string {
	return uuid.New().String()
}

// ContextWithRequestID returns a new context with the given request ID.
func ContextWithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

// RequestIDFromContext retrieves the request ID from context.
// Returns empty string if not present.
func RequestIDFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(requestIDKey).(string); ok {
		return id
	}
	return ""
}

// ContextWithConnection tags ctx with a WebSocket connection id and user id.
// A zero userID means the connection has not authenticated yet.
func ContextWithConnection(ctx context.Context, connID uint64, userID int64) context.Context {
	ctx = context.WithValue(ctx, connIDKey, connID)
	if userID != 0 {
		ctx = context.WithValue(ctx, userIDKey, userID)
	}
	return ctx
}

// Ctx returns a logger with the request, connection and user ids found in
// ctx added as fields.
//
//	logging.Ctx(ctx).Info().Msg("delivered")
func Ctx(ctx context.Context) *zerolog.Logger {
	c := With()

	if id := RequestIDFromContext(ctx); id != "" {
		c = c.Str("request_id", id)
	}
	if id, ok := ctx.Value(connIDKey).(uint64); ok {
		c = c.Uint64("conn_id", id)
	}
	if id, ok := ctx.Value(userIDKey).(int64); ok {
		c = c.Int64("user_id", id)
	}

	l := c.Logger()
	return &l
}
