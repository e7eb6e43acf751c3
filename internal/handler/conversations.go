// Package handler provides HTTP handlers for the API.
package handler

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/capitalize-ai/localchat/internal/middleware"
	"github.com/capitalize-ai/localchat/internal/model"
	"github.com/capitalize-ai/localchat/internal/service"
	"github.com/capitalize-ai/localchat/pkg/logger"
)

// ConversationHandler handles conversation endpoints.
type ConversationHandler struct {
	service *service.ConversationService
	logger  *logger.Logger
}

// NewConversationHandler creates a new conversation handler.
func NewConversationHandler(svc *service.ConversationService, log *logger.Logger) *ConversationHandler {
	return &ConversationHandler{
		service: svc,
		logger:  log,
	}
}

// Create handles POST /api/conversations
func (h *ConversationHandler) Create(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req model.CreateConversationRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	if err := middleware.ValidateStruct(&req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	conv, err := h.service.Create(ctx, middleware.GetUserID(ctx), &req)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusCreated, &model.ConversationResponse{
		Success:      true,
		Conversation: conv,
	})
}

// List handles GET /api/conversations
func (h *ConversationHandler) List(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	convs, err := h.service.List(ctx, middleware.GetUserID(ctx))
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	if convs == nil {
		convs = []model.Conversation{}
	}

	writeJSON(w, http.StatusOK, &model.ListConversationsResponse{
		Success:       true,
		Conversations: convs,
	})
}

// Get handles GET /api/conversations/{id}
// ?messages=false omits the message history.
func (h *ConversationHandler) Get(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	conversationID := chi.URLParam(r, "id")

	if err := middleware.ValidateConversationID(conversationID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	withMessages := true
	if v := r.URL.Query().Get("messages"); v != "" {
		if parsed, err := strconv.ParseBool(v); err == nil {
			withMessages = parsed
		}
	}

	conv, msgs, err := h.service.Get(ctx, middleware.GetUserID(ctx), conversationID, withMessages)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	resp := &model.ConversationResponse{
		Success:      true,
		Conversation: conv,
	}
	if withMessages {
		if msgs == nil {
			msgs = []model.Message{}
		}
		resp.Messages = &msgs
	}

	writeJSON(w, http.StatusOK, resp)
}

// Rename handles PUT /api/conversations/{id}/title
func (h *ConversationHandler) Rename(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	conversationID := chi.URLParam(r, "id")

	if err := middleware.ValidateConversationID(conversationID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req model.RenameConversationRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	conv, err := h.service.Rename(ctx, middleware.GetUserID(ctx), conversationID, req.Title)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, &model.ConversationResponse{
		Success:      true,
		Conversation: conv,
	})
}

// Delete handles DELETE /api/conversations/{id}
func (h *ConversationHandler) Delete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	conversationID := chi.URLParam(r, "id")

	if err := middleware.ValidateConversationID(conversationID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.service.Delete(ctx, middleware.GetUserID(ctx), conversationID); err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, &model.StatusResponse{
		Success: true,
		Message: "conversation deleted",
	})
}
