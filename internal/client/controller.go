// IDEM Realtime - Presence and Notification Fan-out
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/idem-realtime

package client

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/tomtom215/idem-realtime/internal/logging"
	"github.com/tomtom215/idem-realtime/internal/protocol"
)

const writeWait = 10 * time.Second

var (
	// ErrNotConnected is returned by Typing and StopTyping outside CONNECTED.
	ErrNotConnected = errors.New("not connected")

	// ErrAuthRejected wraps the server's auth_error message.
	ErrAuthRejected = errors.New("authentication rejected")

	// ErrAlreadyRunning is returned by a second concurrent Run.
	ErrAlreadyRunning = errors.New("controller already running")
)

// Option customizes a Controller.
type Option func(*Controller)

// WithDialer replaces the WebSocket dialer.
func WithDialer(d *websocket.Dialer) Option {
	return func(c *Controller) { c.dialer = d }
}

// WithHTTPClient replaces the HTTP client used for polling.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Controller) { c.httpClient = hc }
}

// Controller keeps a realtime connection up and falls back to polling.
type Controller struct {
	cfg        Config
	sessions   SessionSource
	handler    Handler
	dialer     *websocket.Dialer
	httpClient *http.Client
	poller     *Poller
	log        zerolog.Logger

	// sleep waits between reconnect attempts.
	sleep func(ctx context.Context, d time.Duration) error

	state   atomic.Int32
	running atomic.Bool

	// mu guards conn and serializes writes to it.
	mu   sync.Mutex
	conn *websocket.Conn

	typingMu sync.Mutex
	typing   map[int64]*rate.Sometimes
}

// New creates a controller. Run starts it.
func New(cfg Config, sessions SessionSource, handler Handler, opts ...Option) *Controller {
	c := &Controller{
		cfg:      cfg.withDefaults(),
		sessions: sessions,
		handler:  handler,
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: 10 * time.Second,
		},
		log:    logging.WithComponent("client"),
		sleep:  sleepContext,
		typing: make(map[int64]*rate.Sometimes),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.poller = NewPoller(c.cfg.APIBaseURL, sessions, c.httpClient)
	return c
}

// State returns the current lifecycle state.
func (c *Controller) State() State {
	return State(c.state.Load())
}

func (c *Controller) setState(s State) {
	old := State(c.state.Swap(int32(s)))
	if old == s {
		return
	}
	c.log.Debug().Str("from", old.String()).Str("to", s.String()).Msg("client state changed")
	if c.handler.OnStateChange != nil {
		c.handler.OnStateChange(s)
	}
}

// Run connects and reconnects until ctx ends or the attempt limit is hit, in
// which case it polls until ctx ends. It always returns a non-nil error.
func (c *Controller) Run(ctx context.Context) error {
	if !c.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	defer c.running.Store(false)

	b := newReconnectBackOff(c.cfg.ReconnectBaseDelay)
	attempts := 0

	for {
		c.setState(StateConnecting)
		err := c.connectOnce(ctx, func() {
			attempts = 0
			b.Reset()
		})
		c.setState(StateDisconnected)

		if ctx.Err() != nil {
			return ctx.Err()
		}

		attempts++
		if attempts >= c.cfg.MaxReconnectAttempts {
			c.log.Warn().Err(err).Int("attempts", attempts).Msg("realtime connection unavailable, falling back to polling")
			return c.poll(ctx)
		}

		delay := b.NextBackOff()
		c.log.Info().Err(err).Int("attempt", attempts).Dur("retry_in", delay).Msg("realtime connection lost")
		if err := c.sleep(ctx, delay); err != nil {
			return err
		}
	}
}

// connectOnce dials, authenticates and reads until the connection ends.
// onAuth runs on every auth_success.
func (c *Controller) connectOnce(ctx context.Context, onAuth func()) error {
	sessionID, err := c.sessions.SessionID(ctx)
	if err != nil {
		return fmt.Errorf("session id: %w", err)
	}

	conn, resp, err := c.dialer.DialContext(ctx, c.cfg.ServerURL, nil)
	if resp != nil && resp.Body != nil {
		defer resp.Body.Close()
	}
	if err != nil {
		if resp != nil {
			return fmt.Errorf("websocket dial failed (HTTP %d): %w", resp.StatusCode, err)
		}
		return fmt.Errorf("websocket dial: %w", err)
	}

	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()

	done := make(chan struct{})
	defer c.closeConn(conn)
	defer close(done)

	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-done:
		}
	}()

	readTimeout := 2 * c.cfg.HeartbeatInterval
	extend := func() { _ = conn.SetReadDeadline(time.Now().Add(readTimeout)) }
	extend()
	conn.SetPingHandler(func(data string) error {
		extend()
		return conn.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(writeWait))
	})

	if err := c.sendOn(conn, protocol.Auth{SessionID: sessionID}); err != nil {
		return fmt.Errorf("send auth: %w", err)
	}

	heartbeat := false
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("read: %w", err)
		}
		extend()

		frame, err := protocol.ParseOutbound(data)
		if err != nil {
			c.log.Debug().Err(err).Msg("dropping unparseable frame")
			continue
		}

		switch f := frame.(type) {
		case protocol.AuthSuccess:
			onAuth()
			c.setState(StateConnected)
			if !heartbeat {
				heartbeat = true
				go c.heartbeat(conn, done)
			}
			if c.handler.OnAuthenticated != nil {
				c.handler.OnAuthenticated(int64(f.UserID))
			}
		case protocol.AuthError:
			return fmt.Errorf("%w: %s", ErrAuthRejected, f.Message)
		case protocol.Pong:
		default:
			c.handler.dispatch(frame)
		}
	}
}

func (c *Controller) closeConn(conn *websocket.Conn) {
	c.mu.Lock()
	if c.conn == conn {
		c.conn = nil
	}
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	c.mu.Unlock()
	_ = conn.Close()
}

// heartbeat sends an application ping every interval while conn is current.
func (c *Controller) heartbeat(conn *websocket.Conn, done <-chan struct{}) {
	t := time.NewTicker(c.cfg.HeartbeatInterval)
	defer t.Stop()
	for {
		select {
		case <-done:
			return
		case <-t.C:
			if err := c.sendOn(conn, protocol.Ping{}); err != nil {
				c.log.Debug().Err(err).Msg("heartbeat ping failed")
				return
			}
		}
	}
}

// sendOn writes f if conn is still the current connection.
func (c *Controller) sendOn(conn *websocket.Conn, f protocol.Inbound) error {
	data, err := protocol.Encode(f)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil || c.conn != conn {
		return ErrNotConnected
	}
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteMessage(websocket.TextMessage, data)
}

func (c *Controller) send(f protocol.Inbound) error {
	if c.State() != StateConnected {
		return ErrNotConnected
	}
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}
	return c.sendOn(conn, f)
}

// Typing announces typing in a conversation, at most once per typing
// interval per conversation.
func (c *Controller) Typing(conversationID int64) error {
	if c.State() != StateConnected {
		return ErrNotConnected
	}

	c.typingMu.Lock()
	s, ok := c.typing[conversationID]
	if !ok {
		s = &rate.Sometimes{Interval: c.cfg.TypingInterval}
		c.typing[conversationID] = s
	}
	c.typingMu.Unlock()

	var err error
	s.Do(func() {
		err = c.send(protocol.Typing{ConversationID: protocol.ID(conversationID)})
	})
	return err
}

// StopTyping always sends and re-arms Typing for the conversation.
func (c *Controller) StopTyping(conversationID int64) error {
	c.typingMu.Lock()
	delete(c.typing, conversationID)
	c.typingMu.Unlock()

	return c.send(protocol.StopTyping{ConversationID: protocol.ID(conversationID)})
}

// poll pulls the unread count now and every poll interval until ctx ends.
func (c *Controller) poll(ctx context.Context) error {
	c.setState(StatePolling)
	c.pollOnce(ctx)

	t := time.NewTicker(c.cfg.PollInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
			c.pollOnce(ctx)
		}
	}
}

func (c *Controller) pollOnce(ctx context.Context) {
	count, err := c.poller.UnreadCount(ctx)
	if err != nil {
		if ctx.Err() == nil {
			c.log.Warn().Err(err).Msg("unread count poll failed")
		}
		return
	}
	if c.handler.OnUnreadCount != nil {
		c.handler.OnUnreadCount(count)
	}
}
