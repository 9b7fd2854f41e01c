// Package handler provides HTTP handlers for the API.
package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/capitalize-ai/concierge-router/internal/middleware"
	"github.com/capitalize-ai/concierge-router/internal/model"
	"github.com/capitalize-ai/concierge-router/internal/service"
	"github.com/capitalize-ai/concierge-router/pkg/logger"
)

// ConversationHandler handles the operator conversation endpoints.
type ConversationHandler struct {
	router *service.Router
	logger *logger.Logger
}

// NewConversationHandler creates a new conversation handler.
func NewConversationHandler(router *service.Router, log *logger.Logger) *ConversationHandler {
	return &ConversationHandler{
		router: router,
		logger: log,
	}
}

// List handles GET /admin/chat/conversations
func (h *ConversationHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := model.ConversationFilter{
		Status:  model.Status(q.Get("status")),
		Channel: model.Channel(q.Get("channel")),
		Search:  q.Get("search"),
	}

	var err error
	if filter.Limit, err = queryInt(r, "limit", 0); err != nil {
		writeServiceError(w, r, h.logger, err, "invalid request")
		return
	}
	if filter.Offset, err = queryInt(r, "offset", 0); err != nil {
		writeServiceError(w, r, h.logger, err, "invalid request")
		return
	}

	resp, err := h.router.ListConversations(r.Context(), filter)
	if err != nil {
		writeServiceError(w, r, h.logger, err, "failed to list conversations")
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

// Get handles GET /admin/chat/conversations/{id}
func (h *ConversationHandler) Get(w http.ResponseWriter, r *http.Request) {
	markRead, err := queryBool(r, "mark_read", true)
	if err != nil {
		writeServiceError(w, r, h.logger, err, "invalid request")
		return
	}

	detail, err := h.router.GetConversation(r.Context(), chi.URLParam(r, "id"), markRead)
	if err != nil {
		writeServiceError(w, r, h.logger, err, "failed to get conversation")
		return
	}

	writeJSON(w, http.StatusOK, detail)
}

// Update handles PATCH /admin/chat/conversations/{id}
func (h *ConversationHandler) Update(w http.ResponseWriter, r *http.Request) {
	var patch model.ConversationPatch
	if err := middleware.DecodeJSON(w, r, &patch); err != nil {
		writeServiceError(w, r, h.logger, err, "invalid request")
		return
	}

	conv, err := h.router.UpdateConversation(r.Context(), chi.URLParam(r, "id"), patch)
	if err != nil {
		writeServiceError(w, r, h.logger, err, "failed to update conversation")
		return
	}

	writeJSON(w, http.StatusOK, conv)
}

// Delete handles DELETE /admin/chat/conversations/{id}
func (h *ConversationHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.router.DeleteConversation(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeServiceError(w, r, h.logger, err, "failed to delete conversation")
		return
	}

	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}
