package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/capitalize-ai/concierge-router/internal/middleware"
	"github.com/capitalize-ai/concierge-router/pkg/logger"
)

// Routes collects everything the HTTP surface is built from.
type Routes struct {
	Chat           *ChatHandler
	Conversations  *ConversationHandler
	Messages       *MessageHandler
	QuickResponses *QuickResponseHandler
	Training       *TrainingHandler
	Platform       *PlatformHandler
	Webhook        *WebhookHandler
	Realtime       *RealtimeHandler
	Health         *HealthHandler

	JWTSecret         string
	AllowedOrigins    []string
	RateLimitRequests int
	RateLimitWindow   time.Duration
	Logger            *logger.Logger
}

// Handler builds the chi router.
func (rt Routes) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logging(rt.Logger))
	r.Use(middleware.SecurityHeaders)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.CORS(rt.AllowedOrigins))

	r.Get("/health", rt.Health.Health)
	r.Get("/ready", rt.Health.Ready)
	r.Handle("/metrics", promhttp.Handler())

	r.Get("/ws", rt.Realtime.Serve)
	r.Post("/webhook/platform", rt.Webhook.Receive)

	r.Route("/chat", func(r chi.Router) {
		r.Use(middleware.RateLimit(rt.RateLimitRequests, rt.RateLimitWindow))
		r.Post("/start", rt.Chat.Start)
		r.Post("/message", rt.Chat.Message)
	})

	r.Route("/admin", func(r chi.Router) {
		r.Use(middleware.Auth(rt.JWTSecret))
		r.Use(middleware.RequireScope(middleware.ScopeAdmin))
		r.Use(middleware.OperatorRateLimit(rt.RateLimitRequests*5, rt.RateLimitWindow))

		r.Route("/chat/conversations", func(r chi.Router) {
			r.Get("/", rt.Conversations.List)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", rt.Conversations.Get)
				r.Patch("/", rt.Conversations.Update)
				r.Delete("/", rt.Conversations.Delete)
				r.Post("/messages", rt.Messages.Send)
			})
		})

		r.Route("/chat/quick-responses", func(r chi.Router) {
			r.Get("/", rt.QuickResponses.List)
			r.Post("/", rt.QuickResponses.Create)
			r.Get("/{id}", rt.QuickResponses.Get)
			r.Patch("/{id}", rt.QuickResponses.Update)
			r.Delete("/{id}", rt.QuickResponses.Delete)
		})

		r.Route("/chat/training", func(r chi.Router) {
			r.Get("/", rt.Training.List)
			r.Post("/", rt.Training.Create)
			r.Delete("/{id}", rt.Training.Delete)
		})

		r.Route("/platform", func(r chi.Router) {
			r.Get("/settings", rt.Platform.Settings)
			r.Patch("/settings", rt.Platform.UpdateSettings)
			r.Post("/test", rt.Platform.Test)
		})
	})

	return r
}
