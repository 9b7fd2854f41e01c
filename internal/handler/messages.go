package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/capitalize-ai/concierge-router/internal/middleware"
	"github.com/capitalize-ai/concierge-router/internal/model"
	"github.com/capitalize-ai/concierge-router/internal/service"
	"github.com/capitalize-ai/concierge-router/pkg/logger"
)

// MessageHandler handles operator replies.
type MessageHandler struct {
	router *service.Router
	logger *logger.Logger
}

// NewMessageHandler creates a new message handler.
func NewMessageHandler(router *service.Router, log *logger.Logger) *MessageHandler {
	return &MessageHandler{
		router: router,
		logger: log,
	}
}

// Send handles POST /admin/chat/conversations/{id}/messages
func (h *MessageHandler) Send(w http.ResponseWriter, r *http.Request) {
	var req model.OperatorMessageRequest
	if err := middleware.DecodeJSON(w, r, &req); err != nil {
		writeServiceError(w, r, h.logger, err, "invalid request")
		return
	}

	res, err := h.router.HandleOutgoingHumanMessage(r.Context(), chi.URLParam(r, "id"), req.Content)
	if err != nil {
		writeServiceError(w, r, h.logger, err, "failed to send message")
		return
	}

	writeJSON(w, http.StatusCreated, res)
}
