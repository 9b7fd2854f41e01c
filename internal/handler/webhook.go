package handler

import (
	"errors"
	"io"
	"net/http"

	"go.uber.org/zap"

	"github.com/capitalize-ai/concierge-router/internal/platform"
	"github.com/capitalize-ai/concierge-router/pkg/logger"
)

const maxWebhookBytes = 1 << 20

// WebhookHandler receives signed event batches from the messaging platform.
type WebhookHandler struct {
	adapter *platform.Adapter
	logger  *logger.Logger
}

// NewWebhookHandler creates a new webhook handler.
func NewWebhookHandler(adapter *platform.Adapter, log *logger.Logger) *WebhookHandler {
	return &WebhookHandler{adapter: adapter, logger: log}
}

// Receive handles POST /webhook/platform. Events are processed after the
// response is written.
func (h *WebhookHandler) Receive(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return
		}
		writeError(w, http.StatusBadRequest, "failed to read request body")
		return
	}

	n, err := h.adapter.Accept(r.Context(), body, r.Header.Get(platform.SignatureHeader))
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, map[string]int{"accepted": n})
	case errors.Is(err, platform.ErrMissingSecret),
		errors.Is(err, platform.ErrMissingSignature),
		errors.Is(err, platform.ErrBadSignature):
		h.logger.Warn("rejected webhook", zap.Error(err), zap.String("remote_addr", r.RemoteAddr))
		writeError(w, http.StatusUnauthorized, "invalid signature")
	case errors.Is(err, platform.ErrMalformed):
		writeError(w, http.StatusBadRequest, "malformed payload")
	default:
		h.logger.Error("failed to accept webhook", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to accept webhook")
	}
}
