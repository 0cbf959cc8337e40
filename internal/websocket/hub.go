// IDEM Realtime - Presence and Notification Fan-out
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/idem-realtime

package websocket

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/tomtom215/idem-realtime/internal/logging"
	"github.com/tomtom215/idem-realtime/internal/metrics"
	"github.com/tomtom215/idem-realtime/internal/protocol"
	"github.com/tomtom215/idem-realtime/internal/session"
	"github.com/tomtom215/idem-realtime/internal/store"
)

// ShutdownReason identifies why the hub is shutting down.
// This enables clear observability in logs and metrics.
type ShutdownReason string

const (
	// ShutdownReasonContextCanceled indicates the parent context was canceled.
	// This is the normal graceful shutdown path (e.g., SIGTERM).
	ShutdownReasonContextCanceled ShutdownReason = "context_canceled"

	// ShutdownReasonContextDeadline indicates the context deadline was exceeded.
	// This may indicate a hung operation during shutdown.
	ShutdownReasonContextDeadline ShutdownReason = "context_deadline"
)

// PresenceSink receives every presence change. It must not block.
// store.AsyncRecorder satisfies it.
type PresenceSink interface {
	Record(userID int64, online bool, at time.Time)
}

// Options configures a Hub. Zero values are replaced by DefaultOptions.
type Options struct {
	Validator     session.Validator
	Conversations store.ConversationStore
	Notifications store.NotificationCounter

	// Presence is optional.
	Presence PresenceSink

	SendBuffer   int
	MaxFrameSize int64

	// AuthTimeout bounds the session lookup behind an auth frame.
	AuthTimeout time.Duration

	// LookupTimeout bounds participant and unread count lookups.
	LookupTimeout time.Duration

	HeartbeatInterval time.Duration
	MissedLimit       int

	Now func() time.Time
}

// DefaultOptions returns the production defaults without collaborators.
func DefaultOptions() Options {
	return Options{
		SendBuffer:        256,
		MaxFrameSize:      64 * 1024,
		AuthTimeout:       5 * time.Second,
		LookupTimeout:     5 * time.Second,
		HeartbeatInterval: 30 * time.Second,
		MissedLimit:       2,
		Now:               time.Now,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.SendBuffer <= 0 {
		o.SendBuffer = d.SendBuffer
	}
	if o.MaxFrameSize <= 0 {
		o.MaxFrameSize = d.MaxFrameSize
	}
	if o.AuthTimeout <= 0 {
		o.AuthTimeout = d.AuthTimeout
	}
	if o.LookupTimeout <= 0 {
		o.LookupTimeout = d.LookupTimeout
	}
	if o.HeartbeatInterval <= 0 {
		o.HeartbeatInterval = d.HeartbeatInterval
	}
	if o.MissedLimit <= 0 {
		o.MissedLimit = d.MissedLimit
	}
	if o.Now == nil {
		o.Now = d.Now
	}
	return o
}

func (o Options) readDeadline() time.Duration {
	return o.HeartbeatInterval * time.Duration(o.MissedLimit)
}

// promotion asks the hub goroutine to authenticate a connection.
type promotion struct {
	client *Client
	userID int64
	done   chan struct{}
}

// Hub owns connection lifecycle. Attach, promotion and detach are serialized
// on the RunWithContext goroutine so that every registry change and its
// presence broadcast happen as one step. Frame delivery does not go through
// the hub goroutine; it reads the registry directly.
type Hub struct {
	opts     Options
	registry *Registry

	// clients holds every attached connection, authenticated or not.
	clients map[*Client]struct{}
	mu      sync.RWMutex

	register   chan *Client
	unregister chan *Client
	promotions chan promotion

	// stopped is closed when the current run ends. A restarted run gets a
	// fresh channel.
	stopped chan struct{}
	runMu   sync.Mutex
}

// NewHub creates a new Hub.
func NewHub(opts Options) *Hub {
	return &Hub{
		opts:       opts.withDefaults(),
		registry:   NewRegistry(),
		clients:    make(map[*Client]struct{}),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		promotions: make(chan promotion),
		stopped:    make(chan struct{}),
	}
}

// Registry exposes the connection registry.
func (h *Hub) Registry() *Registry {
	return h.registry
}

// RunWithContext runs the hub until ctx is canceled, then closes every
// connection and returns ctx.Err(). Designed for suture supervision: a run
// that ends for any reason, including a panic, closes its connections, and
// the next run starts accepting again.
//
// DETERMINISM: shutdown is checked first so that a canceled context wins
// over pending lifecycle events.
func (h *Hub) RunWithContext(ctx context.Context) error {
	stopped := h.startRun()
	defer h.finishRun(stopped)

	for {
		select {
		case <-ctx.Done():
			h.logGracefulShutdown(ctx)
			return ctx.Err()
		default:
		}

		select {
		case <-ctx.Done():
			h.logGracefulShutdown(ctx)
			return ctx.Err()

		case client := <-h.register:
			h.handleRegister(client)

		case client := <-h.unregister:
			h.handleUnregister(client)

		case p := <-h.promotions:
			h.handlePromotion(p)
		}
	}
}

func (h *Hub) startRun() chan struct{} {
	h.runMu.Lock()
	defer h.runMu.Unlock()
	select {
	case <-h.stopped:
		h.stopped = make(chan struct{})
	default:
	}
	return h.stopped
}

func (h *Hub) finishRun(stopped chan struct{}) {
	h.runMu.Lock()
	close(stopped)
	h.runMu.Unlock()
	h.closeAllClients()
}

func (h *Hub) done() <-chan struct{} {
	h.runMu.Lock()
	defer h.runMu.Unlock()
	return h.stopped
}

// Attach hands a freshly upgraded client to the hub. It returns false once
// the hub has stopped.
func (h *Hub) Attach(c *Client) bool {
	select {
	case h.register <- c:
		return true
	case <-h.done():
		return false
	}
}

// detach is called by the read goroutine when the transport is gone.
func (h *Hub) detach(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done():
		// No one is listening for presence anymore; just drop the entry.
		h.mu.Lock()
		if _, ok := h.clients[c]; ok {
			delete(h.clients, c)
			metrics.WSConnections.Dec()
		}
		h.mu.Unlock()
		if userID, ok := c.markClosed(); ok {
			h.registry.Unregister(userID, c)
			metrics.WSAuthenticated.Set(float64(h.registry.Len()))
		}
	}
}

// authenticate blocks until the hub goroutine has promoted c.
func (h *Hub) authenticate(c *Client, userID int64) {
	stopped := h.done()
	p := promotion{client: c, userID: userID, done: make(chan struct{})}
	select {
	case h.promotions <- p:
	case <-stopped:
		return
	}
	select {
	case <-p.done:
	case <-stopped:
	}
}

func (h *Hub) handleRegister(c *Client) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	total := len(h.clients)
	h.mu.Unlock()

	metrics.WSConnections.Inc()
	c.log().Debug().Int("total_clients", total).Msg("websocket client connected")
}

func (h *Hub) handleUnregister(c *Client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		metrics.WSConnections.Dec()
	}
	total := len(h.clients)
	h.mu.Unlock()

	userID, wasAuthenticated := c.markClosed()
	if !wasAuthenticated {
		c.log().Debug().Int("total_clients", total).Msg("websocket client disconnected before authenticating")
		return
	}

	if !h.registry.Unregister(userID, c) {
		c.log().Debug().Msg("superseded connection closed")
		return
	}

	metrics.WSAuthenticated.Set(float64(h.registry.Len()))
	h.broadcastStatus(userID, protocol.StatusOffline, nil)
	c.log().Info().Int("online_users", h.registry.Len()).Msg("websocket client disconnected")
}

func (h *Hub) handlePromotion(p promotion) {
	defer close(p.done)

	c := p.client
	if !c.promote(p.userID) {
		// Closed while the session lookup was in flight.
		return
	}

	prev := h.registry.Register(p.userID, c)
	metrics.WSAuthAttempts.WithLabelValues("success").Inc()
	metrics.WSAuthenticated.Set(float64(h.registry.Len()))

	c.Send(protocol.AuthSuccess{UserID: protocol.ID(p.userID)})

	if prev != nil {
		metrics.WSSuperseded.Inc()
		prev.log().Info().Uint64("replaced_by", c.id).Msg("connection superseded by a newer login")
		prev.Close(CloseSuperseded, "superseded")
	}

	h.broadcastStatus(p.userID, protocol.StatusOnline, c)
	go h.sendUnreadCount(c, p.userID)

	c.log().Info().Int("online_users", h.registry.Len()).Msg("websocket client authenticated")
}

// broadcastStatus sends user_status to every registered connection except
// skip, then forwards the change to the presence sink.
func (h *Hub) broadcastStatus(userID int64, status protocol.Status, skip *Client) {
	at := h.opts.Now().UTC().Truncate(time.Second)
	frame := protocol.UserStatus{UserID: protocol.ID(userID), Status: status, Timestamp: at}

	data, err := protocol.Encode(frame)
	if err != nil {
		logging.Error().Err(err).Msg("failed to encode user_status")
		return
	}

	for _, target := range h.registry.All() {
		if target == skip {
			continue
		}
		target.enqueue(protocol.TypeUserStatus, data)
	}

	if h.opts.Presence != nil {
		h.opts.Presence.Record(userID, status == protocol.StatusOnline, at)
	}
}

func (h *Hub) sendUnreadCount(c *Client, userID int64) {
	if h.opts.Notifications == nil {
		return
	}

	ctx, cancel := context.WithTimeout(c.ctx, h.opts.LookupTimeout)
	defer cancel()

	n, err := h.opts.Notifications.UnreadNotifications(ctx, userID)
	if err != nil {
		c.log().Warn().Err(err).Msg("failed to load unread notification count")
		return
	}
	c.Send(protocol.UnreadCount{Count: n})
}

// logGracefulShutdown logs the shutdown with structured fields. ctx.Err()
// is not logged as an error because cancellation is the expected shutdown
// path. finishRun closes the clients afterwards.
func (h *Hub) logGracefulShutdown(ctx context.Context) {
	clientCount := h.GetClientCount()

	logging.Info().
		Str("component", "websocket-hub").
		Str("reason", string(getShutdownReason(ctx))).
		Int("clients_closed", clientCount).
		Msg("websocket hub stopped")
}

// getShutdownReason determines the shutdown reason from the context error.
func getShutdownReason(ctx context.Context) ShutdownReason {
	switch ctx.Err() {
	case context.Canceled:
		return ShutdownReasonContextCanceled
	case context.DeadlineExceeded:
		return ShutdownReasonContextDeadline
	default:
		return ShutdownReasonContextCanceled
	}
}

// closeAllClients closes every attached connection.
// DETERMINISM: Closes clients in ID order to ensure consistent shutdown behavior.
func (h *Hub) closeAllClients() {
	h.mu.RLock()
	clients := make([]*Client, 0, len(h.clients))
	for client := range h.clients {
		clients = append(clients, client)
	}
	h.mu.RUnlock()

	sort.Slice(clients, func(i, j int) bool {
		return clients[i].id < clients[j].id
	})

	for _, client := range clients {
		client.Close(websocket.CloseGoingAway, "server shutting down")
	}
}

// GetClientCount returns the number of attached connections, including
// ones that have not authenticated.
func (h *Hub) GetClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
