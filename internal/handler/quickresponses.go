package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/capitalize-ai/concierge-router/internal/middleware"
	"github.com/capitalize-ai/concierge-router/internal/model"
	"github.com/capitalize-ai/concierge-router/internal/service"
	"github.com/capitalize-ai/concierge-router/pkg/logger"
)

// QuickResponseHandler serves canned operator replies.
type QuickResponseHandler struct {
	service *service.QuickResponseService
	logger  *logger.Logger
}

// NewQuickResponseHandler creates a new quick response handler.
func NewQuickResponseHandler(svc *service.QuickResponseService, log *logger.Logger) *QuickResponseHandler {
	return &QuickResponseHandler{service: svc, logger: log}
}

// List handles GET /admin/chat/quick-responses
func (h *QuickResponseHandler) List(w http.ResponseWriter, r *http.Request) {
	activeOnly, err := queryBool(r, "active", false)
	if err != nil {
		writeServiceError(w, r, h.logger, err, "invalid request")
		return
	}

	items, err := h.service.List(r.Context(), activeOnly)
	if err != nil {
		writeServiceError(w, r, h.logger, err, "failed to list quick responses")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"quickResponses": items})
}

// Get handles GET /admin/chat/quick-responses/{id}
func (h *QuickResponseHandler) Get(w http.ResponseWriter, r *http.Request) {
	qr, err := h.service.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, r, h.logger, err, "failed to get quick response")
		return
	}
	writeJSON(w, http.StatusOK, qr)
}

// Create handles POST /admin/chat/quick-responses
func (h *QuickResponseHandler) Create(w http.ResponseWriter, r *http.Request) {
	var in model.QuickResponseInput
	if err := middleware.DecodeJSON(w, r, &in); err != nil {
		writeServiceError(w, r, h.logger, err, "invalid request")
		return
	}

	qr, err := h.service.Create(r.Context(), in)
	if err != nil {
		writeServiceError(w, r, h.logger, err, "failed to create quick response")
		return
	}
	writeJSON(w, http.StatusCreated, qr)
}

// Update handles PATCH /admin/chat/quick-responses/{id}
func (h *QuickResponseHandler) Update(w http.ResponseWriter, r *http.Request) {
	var in model.QuickResponseInput
	if err := middleware.DecodeJSON(w, r, &in); err != nil {
		writeServiceError(w, r, h.logger, err, "invalid request")
		return
	}

	qr, err := h.service.Update(r.Context(), chi.URLParam(r, "id"), in)
	if err != nil {
		writeServiceError(w, r, h.logger, err, "failed to update quick response")
		return
	}
	writeJSON(w, http.StatusOK, qr)
}

// Delete handles DELETE /admin/chat/quick-responses/{id}
func (h *QuickResponseHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeServiceError(w, r, h.logger, err, "failed to delete quick response")
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}
