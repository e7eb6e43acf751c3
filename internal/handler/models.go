package handler

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/capitalize-ai/localchat/internal/middleware"
	"github.com/capitalize-ai/localchat/internal/model"
	"github.com/capitalize-ai/localchat/internal/service"
	"github.com/capitalize-ai/localchat/pkg/logger"
)

// ModelHandler exposes the inference daemon's model administration.
type ModelHandler struct {
	service *service.ChatService
	logger  *logger.Logger
}

// NewModelHandler creates a new model handler.
func NewModelHandler(svc *service.ChatService, log *logger.Logger) *ModelHandler {
	return &ModelHandler{
		service: svc,
		logger:  log,
	}
}

// Health handles GET /api/health
// A disconnected daemon is reported in the body, not as an HTTP error.
func (h *ModelHandler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.service.Health(r.Context()))
}

// List handles GET /api/models
func (h *ModelHandler) List(w http.ResponseWriter, r *http.Request) {
	res := h.service.ListModels(r.Context())
	if !res.Success {
		writeError(w, http.StatusBadGateway, res.Message)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// Pull handles POST /api/pull
func (h *ModelHandler) Pull(w http.ResponseWriter, r *http.Request) {
	var req model.ModelRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	res, err := h.service.PullModel(r.Context(), req.Model)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	h.writeResult(w, r, "pull", req.Model, res.Success, res)
}

// Delete handles POST /api/delete
func (h *ModelHandler) Delete(w http.ResponseWriter, r *http.Request) {
	var req model.ModelRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	res, err := h.service.DeleteModel(r.Context(), req.Model)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	h.writeResult(w, r, "delete", req.Model, res.Success, res)
}

func (h *ModelHandler) writeResult(w http.ResponseWriter, r *http.Request, op, name string, ok bool, res any) {
	h.logger.WithContext(middleware.GetCorrelationID(r.Context()), middleware.GetUserID(r.Context())).
		Info("model "+op,
			zap.String("model", name),
			zap.Bool("success", ok),
		)

	status := http.StatusOK
	if !ok {
		status = http.StatusBadGateway
	}
	writeJSON(w, status, res)
}
