// IDEM Realtime - Presence and Notification Fan-out
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/idem-realtime

package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tomtom215/idem-realtime/internal/middleware"
)

// Router wires Handler methods to routes.
type Router struct {
	handler *Handler

	// public covers /ws and /api/v1; ingress covers /internal/v1.
	public  *ChiMiddleware
	ingress *ChiMiddleware
}

// NewRouter builds middleware from the handler's config.
func NewRouter(handler *Handler) *Router {
	cfg := handler.config

	public := DefaultChiMiddlewareConfig()
	public.CORSAllowedOrigins = cfg.Server.AllowedOrigins
	public.CORSAllowCredentials = true
	public.RateLimitRequests = cfg.Server.HandshakeRateLimit
	public.RateLimitWindow = time.Minute
	public.RateLimitOnLimit = func(w http.ResponseWriter, r *http.Request) {
		respondError(w, r, http.StatusTooManyRequests, "TOO_MANY_REQUESTS", "Too many connection attempts", nil)
	}

	ingress := DefaultChiMiddlewareConfig()
	ingress.CORSAllowedOrigins = cfg.Ingress.CORSOrigins
	ingress.RateLimitRequests = 0

	return &Router{
		handler: handler,
		public:  NewChiMiddleware(public),
		ingress: NewChiMiddleware(ingress),
	}
}

// SetupChi configures all HTTP routes using Chi router.
func (router *Router) SetupChi() http.Handler {
	r := chi.NewRouter()

	// ========================
	// Global Middleware Stack
	// ========================
	r.Use(middleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)

	// ========================
	// Health and Metrics
	// ========================
	r.Get("/healthz", router.handler.Healthz)
	r.Get("/readyz", router.handler.Readyz)
	r.Handle("/metrics", promhttp.Handler())

	// ========================
	// WebSocket
	// ========================
	// Not wrapped by PrometheusMetrics: the upgrade hijacks the connection.
	r.With(router.public.RateLimit()).Get("/ws", router.handler.WebSocket)

	// ========================
	// Polling fallback
	// ========================
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(router.public.CORS())
		r.Use(middleware.PrometheusMetrics)

		r.Get("/notifications/unread-count", router.handler.UnreadCount)
	})

	// ========================
	// Internal ingress
	// ========================
	if router.handler.config.Ingress.Enabled {
		r.Route("/internal/v1", func(r chi.Router) {
			r.Use(router.ingress.CORS())
			r.Use(middleware.PrometheusMetrics)
			r.Use(router.handler.RequireIngressToken)

			r.Post("/notifications", router.handler.IngressNotification)
			r.Post("/conversations/{id}/messages", router.handler.IngressMessage)
			r.Get("/presence/{userID}", router.handler.IngressPresence)
		})
	}

	return r
}
