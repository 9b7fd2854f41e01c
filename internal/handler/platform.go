package handler

import (
	"net/http"

	"github.com/capitalize-ai/concierge-router/internal/middleware"
	"github.com/capitalize-ai/concierge-router/internal/model"
	"github.com/capitalize-ai/concierge-router/internal/service"
	"github.com/capitalize-ai/concierge-router/pkg/logger"
)

// PlatformHandler serves the external platform settings.
type PlatformHandler struct {
	service *service.PlatformSettingsService
	logger  *logger.Logger
}

// NewPlatformHandler creates a new platform handler.
func NewPlatformHandler(svc *service.PlatformSettingsService, log *logger.Logger) *PlatformHandler {
	return &PlatformHandler{service: svc, logger: log}
}

// Settings handles GET /admin/platform/settings
func (h *PlatformHandler) Settings(w http.ResponseWriter, r *http.Request) {
	ps, err := h.service.Get(r.Context())
	if err != nil {
		writeServiceError(w, r, h.logger, err, "failed to load platform settings")
		return
	}
	writeJSON(w, http.StatusOK, ps)
}

// UpdateSettings handles PATCH /admin/platform/settings
func (h *PlatformHandler) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	var patch model.PlatformSettingsPatch
	if err := middleware.DecodeJSON(w, r, &patch); err != nil {
		writeServiceError(w, r, h.logger, err, "invalid request")
		return
	}

	ps, err := h.service.Update(r.Context(), patch)
	if err != nil {
		writeServiceError(w, r, h.logger, err, "failed to update platform settings")
		return
	}
	writeJSON(w, http.StatusOK, ps)
}

// Test handles POST /admin/platform/test
func (h *PlatformHandler) Test(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.service.Test(r.Context()))
}
