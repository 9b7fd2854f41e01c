package handler

import (
	"net/http"

	"github.com/capitalize-ai/concierge-router/internal/middleware"
	"github.com/capitalize-ai/concierge-router/internal/model"
	"github.com/capitalize-ai/concierge-router/internal/service"
	"github.com/capitalize-ai/concierge-router/pkg/logger"
)

// ChatHandler serves the embedded web widget.
type ChatHandler struct {
	router *service.Router
	logger *logger.Logger
}

// NewChatHandler creates a new chat handler.
func NewChatHandler(router *service.Router, log *logger.Logger) *ChatHandler {
	return &ChatHandler{
		router: router,
		logger: log,
	}
}

// Start handles POST /chat/start
func (h *ChatHandler) Start(w http.ResponseWriter, r *http.Request) {
	var req model.StartChatRequest
	if err := middleware.DecodeJSON(w, r, &req); err != nil {
		writeServiceError(w, r, h.logger, err, "invalid request")
		return
	}

	resp, err := h.router.StartOrResumeWeb(r.Context(), req.SessionID)
	if err != nil {
		writeServiceError(w, r, h.logger, err, "failed to start chat")
		return
	}

	status := http.StatusOK
	if resp.IsNew {
		status = http.StatusCreated
	}
	writeJSON(w, status, resp)
}

// Message handles POST /chat/message
func (h *ChatHandler) Message(w http.ResponseWriter, r *http.Request) {
	var req model.SendChatMessageRequest
	if err := middleware.DecodeJSON(w, r, &req); err != nil {
		writeServiceError(w, r, h.logger, err, "invalid request")
		return
	}

	res, err := h.router.HandleIncomingCustomerMessage(r.Context(), model.InboundMessage{
		Ref:  model.ConversationRef{SessionID: req.SessionID},
		Text: req.Content,
	})
	if err != nil {
		writeServiceError(w, r, h.logger, err, "failed to send message")
		return
	}

	writeJSON(w, http.StatusOK, model.SendChatMessageResponse{
		SavedMessage: res.SavedMessage,
		AIMessage:    res.AutomatedReply,
	})
}
