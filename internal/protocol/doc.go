// IDEM Realtime - Presence and Notification Fan-out
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/idem-realtime

// Package protocol defines the JSON frames exchanged over the realtime
// WebSocket.
//
// Every frame is a JSON object with a string "type". Frames are parsed once
// at the boundary into a closed set of Go types (Inbound for client frames,
// Outbound for server frames) so handlers can switch exhaustively:
//
//	f, err := protocol.ParseInbound(data)
//	switch f := f.(type) {
//	case protocol.Auth:
//	case protocol.Typing:
//	case protocol.StopTyping:
//	case protocol.Ping:
//	}
//
// Payload shape is checked with go-playground/validator tags. A frame that
// is not valid JSON, lacks a type, or fails validation returns ErrMalformed.
// An unrecognized type returns ErrUnknownType.
package protocol
