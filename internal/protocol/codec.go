// IDEM Realtime - Presence and Notification Fan-out
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/idem-realtime

package protocol

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-json"
)

var (
	// ErrMalformed is returned for frames that are not a JSON object with a
	// string "type", or whose payload fails to decode or validate.
	ErrMalformed = errors.New("malformed frame")

	// ErrUnknownType is returned for well formed frames with an unrecognized type.
	ErrUnknownType = errors.New("unknown frame type")

	// ErrInvalidAuth is returned alongside ErrMalformed for auth frames whose
	// session_id is present but not a string.
	ErrInvalidAuth = errors.New("invalid auth frame")
)

var validate = validator.New(validator.WithRequiredStructEnabled())

type envelope struct {
	Type Type `json:"type"`
}

// ParseInbound decodes a client frame into its concrete type.
func ParseInbound(data []byte) (Inbound, error) {
	kind, err := peekType(data)
	if err != nil {
		return nil, err
	}

	switch kind {
	case TypeAuth:
		f, err := decode[Auth](data)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidAuth, err)
		}
		return f, nil
	case TypeTyping:
		return decode[Typing](data)
	case TypeStopTyping:
		return decode[StopTyping](data)
	case TypePing:
		return Ping{}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, kind)
	}
}

// ParseOutbound decodes a server frame into its concrete type.
func ParseOutbound(data []byte) (Outbound, error) {
	kind, err := peekType(data)
	if err != nil {
		return nil, err
	}

	switch kind {
	case TypeAuthSuccess:
		return decode[AuthSuccess](data)
	case TypeAuthError:
		return decode[AuthError](data)
	case TypeTyping:
		return decode[UserTyping](data)
	case TypeStopTyping:
		return decode[UserStoppedTyping](data)
	case TypePong:
		return Pong{}, nil
	case TypeNotification:
		f, err := decode[Notification](data)
		if err == nil && !IsObject(f.Notification) {
			return nil, fmt.Errorf("%w: notification must be an object", ErrMalformed)
		}
		return f, err
	case TypeNewMessage:
		f, err := decode[NewMessage](data)
		if err == nil && !IsObject(f.Message) {
			return nil, fmt.Errorf("%w: message must be an object", ErrMalformed)
		}
		return f, err
	case TypeUserStatus:
		return decode[UserStatus](data)
	case TypeUnreadCount:
		return decode[UnreadCount](data)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, kind)
	}
}

func peekType(data []byte) (Type, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if env.Type == "" {
		return "", fmt.Errorf("%w: missing type", ErrMalformed)
	}
	return env.Type, nil
}

func decode[T Frame](data []byte) (T, error) {
	var f T
	if err := json.Unmarshal(data, &f); err != nil {
		return f, fmt.Errorf("%w: %s: %v", ErrMalformed, f.Kind(), err)
	}
	if err := validate.Struct(f); err != nil {
		return f, fmt.Errorf("%w: %s: %v", ErrMalformed, f.Kind(), err)
	}
	return f, nil
}

// ValidateStruct runs the frame validator against any tagged struct. Ingress
// request bodies share the frame rules for ids and payloads.
func ValidateStruct(v any) error {
	return validate.Struct(v)
}

// Encode serializes f with its "type" discriminator as the first field.
func Encode(f Frame) ([]byte, error) {
	body, err := json.Marshal(f)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", f.Kind(), err)
	}

	kind := f.Kind()
	buf := make([]byte, 0, len(body)+len(kind)+12)
	buf = append(buf, `{"type":"`...)
	buf = append(buf, kind...)
	buf = append(buf, '"')
	if len(body) > 2 {
		buf = append(buf, ',')
		buf = append(buf, body[1:]...)
	} else {
		buf = append(buf, '}')
	}
	return buf, nil
}

// IsObject reports whether raw is a JSON object.
func IsObject(raw []byte) bool {
	raw = bytes.TrimSpace(raw)
	return len(raw) >= 2 && raw[0] == '{' && json.Valid(raw)
}
