package handler

import (
	"context"
	"errors"
	"net/http"
	"slices"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/capitalize-ai/concierge-router/internal/bus"
	"github.com/capitalize-ai/concierge-router/internal/middleware"
	"github.com/capitalize-ai/concierge-router/internal/model"
	"github.com/capitalize-ai/concierge-router/pkg/logger"
)

// SessionLookup resolves a widget session token to its conversation.
type SessionLookup interface {
	ConversationBySession(ctx context.Context, sessionID string) (*model.Conversation, error)
}

// RealtimeHandler upgrades operator consoles and customer widgets onto the bus.
type RealtimeHandler struct {
	hub       *bus.Hub
	sessions  SessionLookup
	jwtSecret string
	upgrader  websocket.Upgrader
	logger    *logger.Logger
}

// NewRealtimeHandler creates a new realtime handler.
func NewRealtimeHandler(hub *bus.Hub, sessions SessionLookup, jwtSecret string, allowedOrigins []string, log *logger.Logger) *RealtimeHandler {
	return &RealtimeHandler{
		hub:       hub,
		sessions:  sessions,
		jwtSecret: jwtSecret,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(allowedOrigins),
		},
		logger: log,
	}
}

func originChecker(allowed []string) func(r *http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" || slices.Contains(allowed, "*") {
			return true
		}
		return slices.Contains(allowed, origin)
	}
}

var errUnauthenticated = errors.New("unauthenticated")

// Serve handles GET /ws. Operators authenticate with ?token= or a bearer
// header; widgets pass ?session_id= and only see their own conversation.
func (h *RealtimeHandler) Serve(w http.ResponseWriter, r *http.Request) {
	client, err := h.authenticate(r)
	switch {
	case errors.Is(err, model.ErrNotFound):
		writeError(w, http.StatusNotFound, "unknown session")
		return
	case errors.Is(err, errUnauthenticated):
		writeError(w, http.StatusUnauthorized, "authentication required")
		return
	case err != nil:
		writeServiceError(w, r, h.logger, err, "failed to open realtime channel")
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	h.hub.Serve(conn, client)
}

func (h *RealtimeHandler) authenticate(r *http.Request) (*bus.Client, error) {
	token := r.URL.Query().Get("token")
	if token == "" {
		token, _ = middleware.BearerToken(r)
	}
	if token != "" {
		claims, err := middleware.ParseToken(h.jwtSecret, token)
		if err != nil || !claims.HasScope(middleware.ScopeAdmin) {
			return nil, errUnauthenticated
		}
		return bus.NewClient(bus.KindOperator, claims.Subject, ""), nil
	}

	if sid := r.URL.Query().Get("session_id"); sid != "" {
		conv, err := h.sessions.ConversationBySession(r.Context(), sid)
		if err != nil {
			return nil, err
		}
		if conv.Channel != model.ChannelWeb {
			return nil, model.ErrNotFound
		}
		return bus.NewClient(bus.KindCustomer, "customer", conv.ID), nil
	}
	return nil, errUnauthenticated
}
