// IDEM Realtime - Presence and Notification Fan-out
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/idem-realtime

package protocol

import (
	"bytes"
	"strconv"
	"time"

	"github.com/goccy/go-json"
)

// Type is the value of the mandatory "type" discriminator.
type Type string

// Client to server frame types.
const (
	TypeAuth       Type = "auth"
	TypeTyping     Type = "typing"
	TypeStopTyping Type = "stop_typing"
	TypePing       Type = "ping"
)

// Server to client frame types. typing and stop_typing are shared with the
// inbound set and carry the sender's user id when sent by the server.
const (
	TypeAuthSuccess  Type = "auth_success"
	TypeAuthError    Type = "auth_error"
	TypePong         Type = "pong"
	TypeNotification Type = "notification"
	TypeNewMessage   Type = "new_message"
	TypeUserStatus   Type = "user_status"
	TypeUnreadCount  Type = "unread_count"
)

// Status is a presence value carried by user_status frames.
type Status string

const (
	StatusOnline  Status = "online"
	StatusOffline Status = "offline"
)

// ID is a user or conversation identifier. Browsers frequently send ids read
// from DOM data attributes as strings, so both 42 and "42" decode.
type ID int64

// UnmarshalJSON accepts a JSON number or a quoted decimal string.
func (id *ID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) >= 2 && data[0] == '"' {
		data = data[1 : len(data)-1]
	}
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*id = 0
		return nil
	}
	n, err := strconv.ParseInt(string(data), 10, 64)
	if err != nil {
		return err
	}
	*id = ID(n)
	return nil
}

// Frame is any protocol frame.
type Frame interface {
	Kind() Type
}

// Inbound is a frame sent by a client. The set of implementations is closed.
type Inbound interface {
	Frame
	inbound()
}

// Outbound is a frame sent by the server. The set of implementations is closed.
type Outbound interface {
	Frame
	outbound()
}

// Auth binds the connection to the user owning SessionID.
type Auth struct {
	SessionID string `json:"session_id"`
}

// Typing announces that the sender is typing in a conversation.
type Typing struct {
	ConversationID ID `json:"conversation_id" validate:"gt=0"`
}

// StopTyping clears a previous Typing.
type StopTyping struct {
	ConversationID ID `json:"conversation_id" validate:"gt=0"`
}

// Ping is an application level heartbeat, answered with Pong.
type Ping struct{}

func (Auth) Kind() Type       { return TypeAuth }
func (Typing) Kind() Type     { return TypeTyping }
func (StopTyping) Kind() Type { return TypeStopTyping }
func (Ping) Kind() Type       { return TypePing }

func (Auth) inbound()       {}
func (Typing) inbound()     {}
func (StopTyping) inbound() {}
func (Ping) inbound()       {}

// AuthSuccess confirms authentication.
type AuthSuccess struct {
	UserID ID `json:"user_id" validate:"gt=0"`
}

// AuthError rejects an auth frame. The connection stays open.
type AuthError struct {
	Message string `json:"message"`
}

// UserTyping relays a Typing frame to another participant.
type UserTyping struct {
	UserID         ID `json:"user_id" validate:"gt=0"`
	ConversationID ID `json:"conversation_id" validate:"gt=0"`
}

// UserStoppedTyping relays a StopTyping frame to another participant.
type UserStoppedTyping struct {
	UserID         ID `json:"user_id" validate:"gt=0"`
	ConversationID ID `json:"conversation_id" validate:"gt=0"`
}

// Pong answers Ping.
type Pong struct{}

// Notification carries a notification object as stored by the API.
type Notification struct {
	Notification json.RawMessage `json:"notification" validate:"required"`
}

// NewMessage carries a direct message object.
type NewMessage struct {
	ConversationID ID              `json:"conversation_id" validate:"gt=0"`
	Message        json.RawMessage `json:"message" validate:"required"`
}

// UserStatus announces a presence change.
type UserStatus struct {
	UserID    ID        `json:"user_id" validate:"gt=0"`
	Status    Status    `json:"status" validate:"oneof=online offline"`
	Timestamp time.Time `json:"timestamp"`
}

// UnreadCount is the number of unread notifications for the recipient.
type UnreadCount struct {
	Count int64 `json:"count" validate:"gte=0"`
}

func (AuthSuccess) Kind() Type       { return TypeAuthSuccess }
func (AuthError) Kind() Type         { return TypeAuthError }
func (UserTyping) Kind() Type        { return TypeTyping }
func (UserStoppedTyping) Kind() Type { return TypeStopTyping }
func (Pong) Kind() Type              { return TypePong }
func (Notification) Kind() Type      { return TypeNotification }
func (NewMessage) Kind() Type        { return TypeNewMessage }
func (UserStatus) Kind() Type        { return TypeUserStatus }
func (UnreadCount) Kind() Type       { return TypeUnreadCount }

func (AuthSuccess) outbound()       {}
func (AuthError) outbound()         {}
func (UserTyping) outbound()        {}
func (UserStoppedTyping) outbound() {}
func (Pong) outbound()              {}
func (Notification) outbound()      {}
func (NewMessage) outbound()        {}
func (UserStatus) outbound()        {}
func (UnreadCount) outbound()       {}
