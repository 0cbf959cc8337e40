// IDEM Realtime - Presence and Notification Fan-out
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/idem-realtime

package websocket

import (
	"context"
	"errors"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/tomtom215/idem-realtime/internal/logging"
	"github.com/tomtom215/idem-realtime/internal/metrics"
	"github.com/tomtom215/idem-realtime/internal/protocol"
)

const (
	writeWait = 10 * time.Second

	// CloseSuperseded is sent to a connection replaced by a newer
	// authentication of the same user.
	CloseSuperseded = 4000
)

// State is the lifecycle state of a connection.
type State int32

const (
	StateConnecting State = iota
	StateAuthenticated
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateAuthenticated:
		return "authenticated"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// clientIDCounter generates unique, monotonically increasing IDs for clients.
// DETERMINISM: This ensures clients can be sorted in a consistent order for
// broadcast operations, eliminating non-deterministic map iteration order.
var clientIDCounter atomic.Uint64

// Client is a middleman between one websocket connection and the hub.
type Client struct {
	id   uint64
	hub  *Hub
	conn *websocket.Conn

	// send holds encoded frames. It is never closed; done signals shutdown.
	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once
	closeCode int
	closeText string

	// ctx bounds store lookups made on behalf of this connection.
	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	state  State
	userID int64
}

// NewClient wraps an upgraded connection. The client does nothing until it
// is attached to the hub and started.
func NewClient(hub *Hub, conn *websocket.Conn) *Client {
	ctx, cancel := context.WithCancel(context.Background())
	return &Client{
		id:     clientIDCounter.Add(1),
		hub:    hub,
		conn:   conn,
		send:   make(chan []byte, hub.opts.SendBuffer),
		done:   make(chan struct{}),
		ctx:    ctx,
		cancel: cancel,
	}
}

// ID returns the client's unique identifier for deterministic ordering.
func (c *Client) ID() uint64 {
	return c.id
}

// State returns the current lifecycle state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// UserID returns the authenticated user, or false before authentication.
func (c *Client) UserID() (int64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.userID, c.state == StateAuthenticated
}

// promote moves CONNECTING to AUTHENTICATED. It happens at most once.
func (c *Client) promote(userID int64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateConnecting {
		return false
	}
	c.state = StateAuthenticated
	c.userID = userID
	return true
}

// markClosed makes the state terminal and reports whether the connection
// had authenticated.
func (c *Client) markClosed() (int64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	wasAuthenticated := c.state == StateAuthenticated
	c.state = StateClosed
	return c.userID, wasAuthenticated
}

func (c *Client) log() *zerolog.Logger {
	userID, _ := c.UserID()
	l := logging.ForConnection(c.id, userID)
	return &l
}

// Send encodes f and queues it for the write goroutine. It never blocks.
func (c *Client) Send(f protocol.Outbound) bool {
	data, err := protocol.Encode(f)
	if err != nil {
		c.log().Error().Err(err).Str("frame", string(f.Kind())).Msg("failed to encode frame")
		metrics.RecordFrameDropped(string(f.Kind()), "encode")
		return false
	}
	return c.enqueue(f.Kind(), data)
}

// enqueue queues an already encoded frame. A closed connection or a full
// buffer drops the frame.
func (c *Client) enqueue(kind protocol.Type, data []byte) bool {
	select {
	case <-c.done:
		metrics.RecordFrameDropped(string(kind), "closed")
		return false
	default:
	}

	select {
	case c.send <- data:
		metrics.RecordFrameSent(string(kind))
		return true
	case <-c.done:
		metrics.RecordFrameDropped(string(kind), "closed")
		return false
	default:
		c.log().Warn().Str("frame", string(kind)).Msg("send buffer full, dropping frame")
		metrics.RecordFrameDropped(string(kind), "buffer_full")
		return false
	}
}

// Close asks the write goroutine to send a close frame and drop the
// transport. Only the first call's code is used.
func (c *Client) Close(code int, text string) {
	c.closeOnce.Do(func() {
		c.closeCode = code
		c.closeText = text
		c.cancel()
		close(c.done)
	})
}

// Done is closed once the connection starts shutting down.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

func (c *Client) extendDeadline() error {
	return c.conn.SetReadDeadline(time.Now().Add(c.hub.opts.readDeadline()))
}

// readPump reads frames and dispatches them in arrival order.
func (c *Client) readPump() {
	defer func() {
		c.Close(websocket.CloseNormalClosure, "")
		c.hub.detach(c)
	}()

	c.conn.SetReadLimit(c.hub.opts.MaxFrameSize)
	if err := c.extendDeadline(); err != nil {
		c.log().Error().Err(err).Msg("failed to set read deadline")
		return
	}

	// Control pongs answer the server's pings and count as liveness.
	c.conn.SetPongHandler(func(string) error {
		return c.extendDeadline()
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			c.handleReadError(err)
			return
		}
		if err := c.extendDeadline(); err != nil {
			c.log().Error().Err(err).Msg("failed to extend read deadline")
			return
		}
		c.hub.dispatch(c, data)
	}
}

func (c *Client) handleReadError(err error) {
	var netErr net.Error
	switch {
	case errors.As(err, &netErr) && netErr.Timeout():
		metrics.WSHeartbeatTimeouts.Inc()
		c.log().Info().Dur("deadline", c.hub.opts.readDeadline()).Msg("heartbeat deadline expired, closing connection")
		c.Close(websocket.CloseGoingAway, "heartbeat timeout")
	case errors.Is(err, websocket.ErrReadLimit):
		metrics.WSProtocolErrors.WithLabelValues("frame_too_large").Inc()
		c.log().Warn().Int64("limit", c.hub.opts.MaxFrameSize).Msg("frame exceeds size limit, closing connection")
		c.Close(websocket.CloseMessageTooBig, "frame too large")
	case websocket.IsUnexpectedCloseError(err,
		websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived):
		c.log().Warn().Err(err).Msg("unexpected websocket close error")
	default:
		c.log().Debug().Err(err).Msg("websocket connection closed")
	}
}

// writePump owns all writes on the connection: queued frames, control pings
// every heartbeat interval and the final close frame.
func (c *Client) writePump() {
	ticker := time.NewTicker(c.hub.opts.HeartbeatInterval)
	defer func() {
		ticker.Stop()
		c.Close(websocket.CloseNormalClosure, "")
		_ = c.conn.Close() // Explicitly ignore error - best-effort cleanup
	}()

	for {
		select {
		case data := <-c.send:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				c.log().Error().Err(err).Msg("failed to set write deadline")
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				c.log().Debug().Err(err).Msg("failed to write frame")
				return
			}

		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				c.log().Debug().Err(err).Msg("failed to write ping")
				return
			}

		case <-c.done:
			msg := websocket.FormatCloseMessage(c.closeCode, c.closeText)
			if err := c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait)); err != nil {
				c.log().Debug().Err(err).Msg("failed to write close message")
			}
			return
		}
	}
}

// Start begins reading and writing for the client.
func (c *Client) Start() {
	go c.writePump()
	go c.readPump()
}
