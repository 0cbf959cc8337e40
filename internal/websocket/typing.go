// IDEM Realtime - Presence and Notification Fan-out
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/idem-realtime

package websocket

import (
	"context"

	"github.com/tomtom215/idem-realtime/internal/protocol"
)

// relayTyping forwards a typing or stop_typing indicator to the other
// participants of a conversation who are online. No server-side throttling:
// clients debounce.
func (h *Hub) relayTyping(c *Client, conversationID int64, typing bool) {
	sender, ok := c.UserID()
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(c.ctx, h.opts.LookupTimeout)
	participants, err := h.opts.Conversations.Participants(ctx, conversationID, sender)
	cancel()
	if err != nil {
		c.log().Warn().Err(err).Int64("conversation_id", conversationID).Msg("typing relay skipped: participant lookup failed")
		return
	}

	var frame protocol.Outbound
	if typing {
		frame = protocol.UserTyping{UserID: protocol.ID(sender), ConversationID: protocol.ID(conversationID)}
	} else {
		frame = protocol.UserStoppedTyping{UserID: protocol.ID(sender), ConversationID: protocol.ID(conversationID)}
	}
	data, err := protocol.Encode(frame)
	if err != nil {
		c.log().Error().Err(err).Msg("failed to encode typing frame")
		return
	}

	for _, userID := range participants {
		if userID == sender {
			continue
		}
		if target, ok := h.registry.Lookup(userID); ok {
			target.enqueue(frame.Kind(), data)
		}
	}
}
