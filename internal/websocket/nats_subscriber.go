// IDEM Realtime - Presence and Notification Fan-out
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/idem-realtime

//go:build nats

package websocket

import (
	"context"
	"fmt"
	"sync"

	"github.com/goccy/go-json"
	"github.com/nats-io/nats.go"

	"github.com/tomtom215/idem-realtime/internal/logging"
)

// NATSMessageHandler defines the interface for receiving NATS messages.
// This allows the subscriber to work with any message source.
type NATSMessageHandler interface {
	// Subscribe subscribes to a subject and returns a channel of payloads.
	Subscribe(ctx context.Context, subject string) (<-chan []byte, error)
	// Close releases resources.
	Close() error
}

// NATSSubjects names the subjects carrying domain events.
type NATSSubjects struct {
	Notification string
	Message      string
}

// NATSSubscriber feeds notification and message events from NATS into a
// FanOut.
type NATSSubscriber struct {
	fanout   FanOut
	handler  NATSMessageHandler
	subjects NATSSubjects
	mu       sync.Mutex
	running  bool
	cancel   context.CancelFunc
	wg       sync.WaitGroup
}

// NewNATSSubscriber creates a new NATS to FanOut bridge.
func NewNATSSubscriber(fanout FanOut, handler NATSMessageHandler, subjects NATSSubjects) *NATSSubscriber {
	return &NATSSubscriber{
		fanout:   fanout,
		handler:  handler,
		subjects: subjects,
	}
}

// Start subscribes to both subjects and processes payloads until ctx is
// canceled or Stop is called. Subscriptions live on a context derived from
// ctx, so Stop or a failed Start releases them.
func (s *NATSSubscriber) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return nil
	}
	runCtx, cancel := context.WithCancel(ctx)
	s.running = true
	s.cancel = cancel
	s.mu.Unlock()

	notifications, err := s.handler.Subscribe(runCtx, s.subjects.Notification)
	if err != nil {
		s.resetRunning()
		return fmt.Errorf("subscribe %s: %w", s.subjects.Notification, err)
	}
	messages, err := s.handler.Subscribe(runCtx, s.subjects.Message)
	if err != nil {
		s.resetRunning()
		return fmt.Errorf("subscribe %s: %w", s.subjects.Message, err)
	}

	s.wg.Add(2)
	go s.process(runCtx, notifications, s.handleNotification)
	go s.process(runCtx, messages, func(data []byte) { s.handleMessage(runCtx, data) })

	logging.Info().
		Str("notification_subject", s.subjects.Notification).
		Str("message_subject", s.subjects.Message).
		Msg("NATS event subscriber started")
	return nil
}

func (s *NATSSubscriber) resetRunning() {
	s.mu.Lock()
	s.running = false
	cancel := s.cancel
	s.cancel = nil
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// Stop stops the subscriber and waits for in-flight events.
func (s *NATSSubscriber) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	cancel := s.cancel
	s.cancel = nil
	s.mu.Unlock()

	cancel()
	s.wg.Wait()
	logging.Info().Msg("NATS event subscriber stopped")
}

// Wait blocks until both processing loops have exited.
func (s *NATSSubscriber) Wait() {
	s.wg.Wait()
}

func (s *NATSSubscriber) process(ctx context.Context, payloads <-chan []byte, handle func([]byte)) {
	defer s.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case data, ok := <-payloads:
			if !ok {
				return
			}
			handle(data)
		}
	}
}

func (s *NATSSubscriber) handleNotification(data []byte) {
	var req NotificationRequest
	if err := json.Unmarshal(data, &req); err != nil {
		logging.Warn().Err(err).Msg("failed to unmarshal NATS notification event")
		return
	}
	if _, err := ApplyNotification(s.fanout, "nats", &req); err != nil {
		logging.Warn().Err(err).Msg("rejected NATS notification event")
	}
}

func (s *NATSSubscriber) handleMessage(ctx context.Context, data []byte) {
	var req MessageRequest
	if err := json.Unmarshal(data, &req); err != nil {
		logging.Warn().Err(err).Msg("failed to unmarshal NATS message event")
		return
	}
	if _, err := ApplyMessage(ctx, s.fanout, "nats", &req); err != nil {
		logging.Warn().Err(err).Int64("conversation_id", int64(req.ConversationID)).Msg("rejected NATS message event")
	}
}

// NATSConnHandler adapts a core NATS connection to NATSMessageHandler using
// queue subscriptions, so several replicas of a collaborator may publish
// while exactly one subscriber group member receives each event.
type NATSConnHandler struct {
	nc         *nats.Conn
	queueGroup string
	bufferSize int

	mu   sync.Mutex
	subs []*nats.Subscription
}

// NewNATSConnHandler wraps nc. An empty queueGroup uses plain subscriptions.
func NewNATSConnHandler(nc *nats.Conn, queueGroup string) *NATSConnHandler {
	return &NATSConnHandler{nc: nc, queueGroup: queueGroup, bufferSize: 256}
}

// Subscribe implements NATSMessageHandler. The returned channel closes when
// ctx is canceled.
func (h *NATSConnHandler) Subscribe(ctx context.Context, subject string) (<-chan []byte, error) {
	msgs := make(chan *nats.Msg, h.bufferSize)

	var (
		sub *nats.Subscription
		err error
	)
	if h.queueGroup != "" {
		sub, err = h.nc.ChanQueueSubscribe(subject, h.queueGroup, msgs)
	} else {
		sub, err = h.nc.ChanSubscribe(subject, msgs)
	}
	if err != nil {
		return nil, err
	}

	h.mu.Lock()
	h.subs = append(h.subs, sub)
	h.mu.Unlock()

	out := make(chan []byte)
	go func() {
		defer close(out)
		defer sub.Unsubscribe() //nolint:errcheck
		for {
			select {
			case <-ctx.Done():
				return
			case msg := <-msgs:
				select {
				case out <- msg.Data:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

// Close unsubscribes every subscription. The connection stays open.
func (h *NATSConnHandler) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	var firstErr error
	for _, sub := range h.subs {
		if err := sub.Unsubscribe(); err != nil && firstErr == nil && err != nats.ErrBadSubscription {
			firstErr = err
		}
	}
	h.subs = nil
	return firstErr
}
