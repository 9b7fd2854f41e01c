package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/capitalize-ai/concierge-router/internal/middleware"
	"github.com/capitalize-ai/concierge-router/internal/model"
	"github.com/capitalize-ai/concierge-router/internal/service"
	"github.com/capitalize-ai/concierge-router/pkg/logger"
)

// TrainingHandler serves the responder's curated Q&A pairs.
type TrainingHandler struct {
	service *service.TrainingService
	logger  *logger.Logger
}

// NewTrainingHandler creates a new training handler.
func NewTrainingHandler(svc *service.TrainingService, log *logger.Logger) *TrainingHandler {
	return &TrainingHandler{service: svc, logger: log}
}

// List handles GET /admin/chat/training
func (h *TrainingHandler) List(w http.ResponseWriter, r *http.Request) {
	pairs, err := h.service.List(r.Context())
	if err != nil {
		writeServiceError(w, r, h.logger, err, "failed to list training pairs")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"trainingPairs": pairs})
}

// Create handles POST /admin/chat/training
func (h *TrainingHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req model.TrainingPairRequest
	if err := middleware.DecodeJSON(w, r, &req); err != nil {
		writeServiceError(w, r, h.logger, err, "invalid request")
		return
	}

	tp, err := h.service.Create(r.Context(), req)
	if err != nil {
		writeServiceError(w, r, h.logger, err, "failed to create training pair")
		return
	}
	writeJSON(w, http.StatusCreated, tp)
}

// Delete handles DELETE /admin/chat/training/{id}
func (h *TrainingHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeServiceError(w, r, h.logger, err, "failed to delete training pair")
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}
