// IDEM Realtime - Presence and Notification Fan-out
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/idem-realtime

package protocol

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func TestParseInbound(t *testing.T) {
	tests := []struct {
		name string
		data string
		want Inbound
	}{
		{"auth", `{"type":"auth","session_id":"abc"}`, Auth{SessionID: "abc"}},
		{"auth empty session", `{"type":"auth"}`, Auth{}},
		{"typing", `{"type":"typing","conversation_id":7}`, Typing{ConversationID: 7}},
		{"typing string id", `{"type":"typing","conversation_id":"7"}`, Typing{ConversationID: 7}},
		{"stop typing", `{"type":"stop_typing","conversation_id":7}`, StopTyping{ConversationID: 7}},
		{"ping", `{"type":"ping"}`, Ping{}},
		{"ping with extra fields", `{"type":"ping","t":123}`, Ping{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseInbound([]byte(tt.data))
			if err != nil {
				t.Fatalf("ParseInbound() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("ParseInbound() = %#v, want %#v", got, tt.want)
			}
		})
	}
}

func TestParseInbound_Errors(t *testing.T) {
	tests := []struct {
		name    string
		data    string
		wantErr error
	}{
		{"not json", `hello`, ErrMalformed},
		{"array", `[1,2]`, ErrMalformed},
		{"missing type", `{"session_id":"abc"}`, ErrMalformed},
		{"non string type", `{"type":5}`, ErrMalformed},
		{"unknown type", `{"type":"subscribe"}`, ErrUnknownType},
		{"server only type", `{"type":"auth_success","user_id":1}`, ErrUnknownType},
		{"typing without conversation", `{"type":"typing"}`, ErrMalformed},
		{"typing zero conversation", `{"type":"typing","conversation_id":0}`, ErrMalformed},
		{"typing bad conversation", `{"type":"typing","conversation_id":"x"}`, ErrMalformed},
		{"stop typing negative", `{"type":"stop_typing","conversation_id":-3}`, ErrMalformed},
		{"auth numeric session", `{"type":"auth","session_id":123}`, ErrInvalidAuth},
		{"auth numeric session is malformed", `{"type":"auth","session_id":123}`, ErrMalformed},
		{"auth object session", `{"type":"auth","session_id":{"id":"x"}}`, ErrInvalidAuth},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseInbound([]byte(tt.data))
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("ParseInbound() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestEncode(t *testing.T) {
	ts := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name  string
		frame Frame
		want  string
	}{
		{"auth success", AuthSuccess{UserID: 42}, `{"type":"auth_success","user_id":42}`},
		{"auth error", AuthError{Message: "invalid session"}, `{"type":"auth_error","message":"invalid session"}`},
		{"pong", Pong{}, `{"type":"pong"}`},
		{"typing relay", UserTyping{UserID: 1, ConversationID: 7}, `{"type":"typing","user_id":1,"conversation_id":7}`},
		{"stop typing relay", UserStoppedTyping{UserID: 1, ConversationID: 7}, `{"type":"stop_typing","user_id":1,"conversation_id":7}`},
		{"unread count", UnreadCount{Count: 3}, `{"type":"unread_count","count":3}`},
		{"user status", UserStatus{UserID: 42, Status: StatusOnline, Timestamp: ts},
			`{"type":"user_status","user_id":42,"status":"online","timestamp":"2026-03-01T12:00:00Z"}`},
		{"notification", Notification{Notification: []byte(`{"id":9}`)}, `{"type":"notification","notification":{"id":9}}`},
		{"new message", NewMessage{ConversationID: 7, Message: []byte(`{"id":1,"sender_id":2}`)},
			`{"type":"new_message","conversation_id":7,"message":{"id":1,"sender_id":2}}`},
		{"client auth", Auth{SessionID: "abc"}, `{"type":"auth","session_id":"abc"}`},
		{"client ping", Ping{}, `{"type":"ping"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Encode(tt.frame)
			if err != nil {
				t.Fatalf("Encode() error = %v", err)
			}
			if string(got) != tt.want {
				t.Errorf("Encode() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestParseOutbound(t *testing.T) {
	t.Run("user status", func(t *testing.T) {
		f, err := ParseOutbound([]byte(`{"type":"user_status","user_id":42,"status":"offline","timestamp":"2026-03-01T12:00:00Z"}`))
		if err != nil {
			t.Fatalf("ParseOutbound() error = %v", err)
		}
		us, ok := f.(UserStatus)
		if !ok {
			t.Fatalf("got %T, want UserStatus", f)
		}
		if us.UserID != 42 || us.Status != StatusOffline {
			t.Errorf("unexpected frame %+v", us)
		}
	})

	t.Run("invalid status rejected", func(t *testing.T) {
		_, err := ParseOutbound([]byte(`{"type":"user_status","user_id":42,"status":"away"}`))
		if !errors.Is(err, ErrMalformed) {
			t.Errorf("expected ErrMalformed, got %v", err)
		}
	})

	t.Run("notification must be object", func(t *testing.T) {
		_, err := ParseOutbound([]byte(`{"type":"notification","notification":"text"}`))
		if !errors.Is(err, ErrMalformed) {
			t.Errorf("expected ErrMalformed, got %v", err)
		}
	})

	t.Run("new message", func(t *testing.T) {
		f, err := ParseOutbound([]byte(`{"type":"new_message","conversation_id":7,"message":{"id":1}}`))
		if err != nil {
			t.Fatalf("ParseOutbound() error = %v", err)
		}
		nm := f.(NewMessage)
		if nm.ConversationID != 7 || !strings.Contains(string(nm.Message), `"id":1`) {
			t.Errorf("unexpected frame %+v", nm)
		}
	})

	t.Run("inbound only type unknown", func(t *testing.T) {
		_, err := ParseOutbound([]byte(`{"type":"auth","session_id":"x"}`))
		if !errors.Is(err, ErrUnknownType) {
			t.Errorf("expected ErrUnknownType, got %v", err)
		}
	})
}

func TestIsObject(t *testing.T) {
	for raw, want := range map[string]bool{
		`{"a":1}`: true,
		` {} `:    true,
		`[]`:      false,
		`"x"`:     false,
		`{`:       false,
		``:        false,
	} {
		if got := IsObject([]byte(raw)); got != want {
			t.Errorf("IsObject(%q) = %v, want %v", raw, got, want)
		}
	}
}
