package handler

import (
	"net/http"
	"strings"

	"github.com/goccy/go-json"

	"github.com/capitalize-ai/localchat/internal/middleware"
	"github.com/capitalize-ai/localchat/internal/model"
	"github.com/capitalize-ai/localchat/internal/relay"
	"github.com/capitalize-ai/localchat/internal/service"
	"github.com/capitalize-ai/localchat/pkg/logger"
)

// ChatHandler handles chat turns and assistant message persistence.
type ChatHandler struct {
	service *service.ChatService
	logger  *logger.Logger
}

// NewChatHandler creates a new chat handler.
func NewChatHandler(svc *service.ChatService, log *logger.Logger) *ChatHandler {
	return &ChatHandler{
		service: svc,
		logger:  log,
	}
}

// Chat handles POST /api/chat
// The reply is an NDJSON event stream unless the body sets "stream": false.
func (h *ChatHandler) Chat(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req model.ChatRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	if err := middleware.ValidateStruct(&req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if req.ConversationID != nil {
		if strings.TrimSpace(*req.ConversationID) == "" {
			req.ConversationID = nil
		} else if err := middleware.ValidateConversationID(*req.ConversationID); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}

	userID := middleware.GetUserID(ctx)

	if !req.Streaming() {
		content, err := h.service.Complete(ctx, userID, &req)
		if err != nil {
			writeServiceError(w, r, h.logger, err)
			return
		}
		writeJSON(w, http.StatusOK, &model.ChatResponse{
			Success: true,
			Stream:  false,
			Message: content,
		})
		return
	}

	if _, err := h.service.Stream(ctx, userID, &req, newNDJSONEmitter(w)); err != nil {
		writeServiceError(w, r, h.logger, err)
	}
}

// SaveMessage handles POST /api/save-message
func (h *ChatHandler) SaveMessage(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req model.SaveMessageRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	if err := middleware.ValidateStruct(&req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	msg, err := h.service.SaveAssistantMessage(ctx, middleware.GetUserID(ctx), &req)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusCreated, &model.SaveMessageResponse{
		Success: true,
		Message: msg,
	})
}

// newNDJSONEmitter writes one JSON object per line and flushes after each.
// Headers are committed on the first event, so a turn refused before the
// relay starts can still answer with a plain JSON error.
func newNDJSONEmitter(w http.ResponseWriter) relay.Emitter {
	flusher, _ := w.(http.Flusher)
	started := false

	return func(event any) error {
		if !started {
			w.Header().Set("Content-Type", "application/x-ndjson")
			w.Header().Set("Cache-Control", "no-cache")
			w.Header().Set("X-Accel-Buffering", "no")
			w.WriteHeader(http.StatusOK)
			started = true
		}

		data, err := json.Marshal(event)
		if err != nil {
			return err
		}
		data = append(data, '\n')
		if _, err := w.Write(data); err != nil {
			return err
		}
		if flusher != nil {
			flusher.Flush()
		}
		return nil
	}
}
